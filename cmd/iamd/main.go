package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/go-chi/httplog"
	"github.com/go-chi/traceid"
	"github.com/go-chi/transport"
	"github.com/goware/cachestore/memlru"
	"github.com/rs/zerolog"

	passportclaim "github.com/passportxyz/passport-claim"
	"github.com/passportxyz/passport-claim/config"
	"github.com/passportxyz/passport-claim/iam"
	"github.com/passportxyz/passport-claim/identity"
	"github.com/passportxyz/passport-claim/types"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}

	log := httplog.NewLogger("passport-iam", httplog.Options{
		LogLevel: zerolog.LevelDebugValue,
	})

	// HTTP transport chain to use for all outgoing connections
	httpClient := &http.Client{
		Transport: transport.Chain(
			http.DefaultTransport,
			transport.SetHeader("User-Agent", "passport-claim/"+passportclaim.VERSION),
			traceid.Transport,
		),
	}

	options := []func(options *awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoints.AWSEndpoint != "" {
		options = append(options, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: cfg.Endpoints.AWSEndpoint}, nil
			}),
		), awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", "test")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), options...)
	if err != nil {
		panic(err)
	}

	signer, err := identity.NewKeySigner(cfg.Issuer.SigningKey)
	if err != nil {
		panic(err)
	}
	nullifier, err := identity.NewHashNullifier(cfg.Issuer.NullifierKey)
	if err != nil {
		panic(err)
	}

	cacheBackend := memlru.Backend(1024)
	secrets, err := iam.NewSecretsManagerProvider(secretsmanager.NewFromConfig(awsCfg), cacheBackend)
	if err != nil {
		panic(err)
	}

	verifiers := iam.NewVerifierRegistry()
	for _, oc := range cfg.Platforms.OAuth {
		if oc.Issuer == "" {
			continue
		}
		verifier, err := iam.NewOIDCVerifier(context.Background(), iam.OIDCConfig{
			Provider:      types.ProviderID(oc.Platform),
			Issuer:        oc.Issuer,
			ClientID:      oc.ClientID,
			TokenEndpoint: oc.TokenEndpoint,
			JWKSURL:       oc.JWKSURL,
			RedirectURI:   cfg.Claim.CallbackURL,
		}, httpClient, secrets, log)
		if err != nil {
			panic(err)
		}
		if err := verifiers.Register(verifier); err != nil {
			panic(err)
		}
	}

	service, err := iam.NewService(signer, nullifier, verifiers, cacheBackend, log)
	if err != nil {
		panic(err)
	}

	s := iam.NewServer(service, log, nil)
	defer s.Stop(context.Background())

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Service.Port))
	if err != nil {
		panic(err)
	}

	if err := s.Run(context.Background(), l); err != nil {
		panic(err)
	}
}
