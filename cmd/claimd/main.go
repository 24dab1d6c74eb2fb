package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/traceid"
	"github.com/go-chi/transport"

	passportclaim "github.com/passportxyz/passport-claim"
	"github.com/passportxyz/passport-claim/config"
	"github.com/passportxyz/passport-claim/rpc"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}

	// HTTP transport chain to use for all outgoing connections
	transportChain := transport.Chain(
		http.DefaultTransport,
		transport.SetHeader("User-Agent", "passport-claim/"+passportclaim.VERSION),
		traceid.Transport,
	)

	s, err := rpc.New(cfg, transportChain)
	if err != nil {
		panic(err)
	}
	defer s.Stop(context.Background())

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Service.Port))
	if err != nil {
		panic(err)
	}

	if err := s.Run(context.Background(), l); err != nil {
		panic(err)
	}
}
