package iam

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/goware/cachestore"
	"github.com/goware/cachestore/cachestorectl"

	"github.com/passportxyz/passport-claim/o11y"
)

// SecretProvider hands out OAuth client secrets by issuer and client id.
type SecretProvider interface {
	GetClientSecret(ctx context.Context, issuer string, clientID string) (string, error)
}

type SecretProviderFunc func(ctx context.Context, issuer string, clientID string) (string, error)

func (f SecretProviderFunc) GetClientSecret(ctx context.Context, issuer string, clientID string) (string, error) {
	return f(ctx, issuer, clientID)
}

// SecretsAPI is the slice of the Secrets Manager client we use.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretTTL bounds how long a fetched client secret is served from
// cache before Secrets Manager is consulted again, so rotations land
// within the hour.
const secretTTL = 1 * time.Hour

// SecretsManagerProvider resolves client secrets from AWS Secrets
// Manager under "oauth/<issuer>/<client-id>", caching each for a while.
type SecretsManagerProvider struct {
	secrets SecretsAPI
	cache   cachestore.Store[string]
}

var _ SecretProvider = (*SecretsManagerProvider)(nil)

func NewSecretsManagerProvider(secrets SecretsAPI, cacheBackend cachestore.Backend) (*SecretsManagerProvider, error) {
	cache, err := cachestorectl.Open[string](cacheBackend)
	if err != nil {
		return nil, fmt.Errorf("open secret cache: %w", err)
	}
	return &SecretsManagerProvider{
		secrets: secrets,
		cache:   o11y.NewTracedCache("oauth-secrets", cache),
	}, nil
}

func (p *SecretsManagerProvider) GetClientSecret(ctx context.Context, issuer string, clientID string) (string, error) {
	secretName := "oauth/" + encodeValueForSecretName(issuer) + "/" + encodeValueForSecretName(clientID)

	getter := func(ctx context.Context, _ string) (string, error) {
		secret, err := p.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretName),
		})
		if err != nil {
			return "", fmt.Errorf("get secret: %w", err)
		}
		if secret.SecretString == nil {
			return "", fmt.Errorf("secret is nil")
		}
		return *secret.SecretString, nil
	}

	secret, err := p.cache.GetOrSetWithLockEx(ctx, secretName, getter, secretTTL)
	if err != nil {
		return "", err
	}
	return secret, nil
}

func encodeValueForSecretName(value string) string {
	value = strings.TrimPrefix(value, "https://")
	value = strings.TrimPrefix(value, "http://")

	var result strings.Builder
	for _, char := range value {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '.' {
			result.WriteRune(char)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}
