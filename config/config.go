package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Mode      Mode            `toml:"-"`
	Region    string          `toml:"region"`
	Service   ServiceConfig   `toml:"service"`
	Issuer    IssuerConfig    `toml:"issuer"`
	Claim     ClaimConfig     `toml:"claim"`
	Platforms PlatformsConfig `toml:"platforms"`
	Endpoints EndpointsConfig `toml:"endpoints"`
	Database  DatabaseConfig  `toml:"database"`
}

type ServiceConfig struct {
	Mode          string `toml:"mode"`
	Port          uint32 `toml:"port"`
	DebugProfiler bool   `toml:"debug_profiler"`
}

// IssuerConfig configures the credential-issuing side: the signing key,
// the secret seeding nullifier hashes and where issuance is served.
type IssuerConfig struct {
	SigningKey   string `toml:"signing_key"`
	NullifierKey string `toml:"nullifier_key"`
	URL          string `toml:"url"`
}

// ClaimConfig configures the claim-driving side: the wallet key claims
// are signed with, where OAuth redirects land, and how long a run waits
// on them.
type ClaimConfig struct {
	SigningKey      string   `toml:"signing_key"`
	CallbackURL     string   `toml:"callback_url"`
	SignatureType   string   `toml:"signature_type"`
	RedirectTimeout duration `toml:"redirect_timeout"`
}

type PlatformsConfig struct {
	OAuth    []OAuthPlatformConfig `toml:"oauth"`
	BrightID BrightIDConfig        `toml:"brightid"`
	Idena    IdenaConfig           `toml:"idena"`
	EVM      []string              `toml:"evm"`
}

// OAuthPlatformConfig declares one OAuth-backed platform plus the
// issuer-side token exchange used to verify its providers.
type OAuthPlatformConfig struct {
	Platform      string `toml:"platform"`
	Path          string `toml:"path"`
	AuthURL       string `toml:"auth_url"`
	ClientID      string `toml:"client_id"`
	Scope         string `toml:"scope"`
	Issuer        string `toml:"oidc_issuer"`
	TokenEndpoint string `toml:"token_endpoint"`
	JWKSURL       string `toml:"jwks_url"`
}

type BrightIDConfig struct {
	SponsorURL string `toml:"sponsor_url"`
}

type IdenaConfig struct {
	APIURL string `toml:"api_url"`
}

type EndpointsConfig struct {
	AWSEndpoint    string `toml:"aws_endpoint"`
	MetadataServer string `toml:"metadata_server"`
}

type DatabaseConfig struct {
	StampsTable   string `toml:"stamps_table"`
	ByProviderIdx string `toml:"by_provider_index"`
}

func New() (*Config, error) {
	fileName := os.Getenv("CONFIG")
	var cfg Config
	if _, err := toml.DecodeFile(fileName, &cfg); err != nil {
		return nil, err
	}

	var mode Mode
	switch cfg.Service.Mode {
	case "local":
		mode = LocalMode
	case "dev", "development":
		mode = DevelopmentMode
	case "prod", "production":
		mode = ProductionMode
	default:
		return nil, fmt.Errorf("config service.mode value is invalid, must be one of \"development\", \"dev\", \"production\" or \"prod\"")
	}
	cfg.Mode = mode
	cfg.Service.Mode = mode.String()

	return &cfg, nil
}

type Mode uint32

const (
	LocalMode Mode = iota
	DevelopmentMode
	ProductionMode
)

func (m Mode) String() string {
	switch m {
	case LocalMode:
		return "local"
	case DevelopmentMode:
		return "development"
	case ProductionMode:
		return "production"
	default:
		return ""
	}
}

// duration lets TOML carry values like "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Timeout returns the configured rendezvous timeout, or zero to use
// the default.
func (c ClaimConfig) Timeout() time.Duration {
	return c.RedirectTimeout.Duration
}
