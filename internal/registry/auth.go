// ABOUTME: Auth broker that obtains and caches short-lived registry access tokens.
// ABOUTME: Dispatches per registry kind and collapses concurrent cache misses.

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/vigilsec/vulnengine/internal/ext"
	"github.com/vigilsec/vulnengine/internal/types"
)

// DockerHubAuthURL is Docker Hub's public token endpoint.
const DockerHubAuthURL = "https://auth.docker.io/token"

const defaultTokenTTL = 300 * time.Second

// ECRTokenProvider supplies an ECR authorization token. The token is already
// a base64 user:password pair, so it is sent with the Basic scheme.
type ECRTokenProvider interface {
	AuthorizationToken(ctx context.Context) (token string, expiresAt time.Time, err error)
}

type cachedToken struct {
	token     Token
	expiresAt time.Time
}

// CacheStats reports token cache effectiveness.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// AuthBroker obtains per registry+repository access tokens and caches them
// until their server-reported expiry. Auth failures return a nil token so
// callers can fall back to unauthenticated requests.
type AuthBroker struct {
	httpClient *http.Client
	hubAuthURL string
	ecr        ECRTokenProvider
	clock      ext.Clock
	logger     *logrus.Logger

	mutex  sync.RWMutex
	cache  map[string]*cachedToken
	hits   uint64
	misses uint64
	group  singleflight.Group
}

// NewAuthBroker creates an auth broker. The ECR provider may be nil when no
// AWS configuration is available; ECR lookups then require caller tokens.
func NewAuthBroker(ecrProvider ECRTokenProvider, clock ext.Clock, logger *logrus.Logger) *AuthBroker {
	return &AuthBroker{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		hubAuthURL: DockerHubAuthURL,
		ecr:        ecrProvider,
		clock:      clock,
		logger:     logger,
		cache:      make(map[string]*cachedToken),
	}
}

// GetToken returns a token for pulling image content, or nil when no token
// could be obtained. A cached token valid at call time is returned without
// any network traffic; concurrent misses for the same registry+repository
// key are collapsed into a single upstream request.
func (b *AuthBroker) GetToken(ctx context.Context, image types.ImageReference, creds *types.RegistryCredentials) *Token {
	key := image.Registry + "/" + image.Repository

	if token := b.lookup(key); token != nil {
		return token
	}

	result, _, _ := b.group.Do(key, func() (interface{}, error) {
		// Re-check under singleflight: a concurrent caller may have
		// populated the entry while this one waited.
		if token := b.lookup(key); token != nil {
			return token, nil
		}

		token, ttl := b.fetchToken(ctx, image, creds)
		if token != nil && ttl > 0 {
			b.store(key, *token, ttl)
		}
		return token, nil
	})

	token, ok := result.(*Token)
	if !ok {
		return nil
	}
	return token
}

// Stats returns cache hit/miss counters and the current entry count.
func (b *AuthBroker) Stats() CacheStats {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return CacheStats{Hits: b.hits, Misses: b.misses, Entries: len(b.cache)}
}

func (b *AuthBroker) lookup(key string) *Token {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	entry, exists := b.cache[key]
	if !exists || b.clock.Now().After(entry.expiresAt) {
		b.misses++
		return nil
	}

	b.hits++
	token := entry.token
	return &token
}

func (b *AuthBroker) store(key string, token Token, ttl time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.cache[key] = &cachedToken{
		token:     token,
		expiresAt: b.clock.Now().Add(ttl),
	}
}

// fetchToken dispatches to the registry-specific auth flow. It returns the
// token and the duration it may be cached for; a zero TTL means the token is
// caller-scoped and must not be reused across requests.
func (b *AuthBroker) fetchToken(ctx context.Context, image types.ImageReference, creds *types.RegistryCredentials) (*Token, time.Duration) {
	logger := b.logger.WithFields(logrus.Fields{
		"registry":   image.Registry,
		"repository": image.Repository,
	})

	switch detectCredentialType(image.Registry, creds) {
	case types.CredentialDockerHub:
		return b.dockerHubToken(ctx, image.Repository, creds, logger)

	case types.CredentialGCR:
		return callerOrEnvToken(creds, []string{"GCR_TOKEN", "GOOGLE_REGISTRY_TOKEN"}, logger)

	case types.CredentialGHCR:
		return callerOrEnvToken(creds, []string{"GHCR_TOKEN", "GITHUB_TOKEN"}, logger)

	case types.CredentialECR:
		return b.ecrToken(ctx, creds, logger)

	default:
		// ACR and custom registries authenticate with Basic credentials.
		if creds != nil && creds.Token != "" {
			return &Token{Kind: TokenKindBearer, Value: creds.Token}, 0
		}
		if creds != nil && creds.Username != "" && creds.Password != "" {
			return &Token{Kind: TokenKindBasic, Value: EncodeBasicAuth(creds.Username, creds.Password)}, 0
		}
		logger.Warn("No credentials for registry, proceeding unauthenticated")
		return nil, 0
	}
}

func (b *AuthBroker) dockerHubToken(ctx context.Context, repository string, creds *types.RegistryCredentials, logger *logrus.Entry) (*Token, time.Duration) {
	endpoint := fmt.Sprintf("%s?service=registry.docker.io&scope=repository:%s:pull",
		b.hubAuthURL, url.QueryEscape(repository))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		logger.WithError(err).Warn("Failed to build Docker Hub token request")
		return nil, 0
	}
	if creds != nil && creds.Username != "" && creds.Password != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Warn("Docker Hub token request failed")
		return nil, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.WithField("status", resp.StatusCode).Warn("Docker Hub token endpoint returned non-OK status")
		return nil, 0
	}

	var payload struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		logger.WithError(err).Warn("Failed to decode Docker Hub token response")
		return nil, 0
	}
	if payload.Token == "" {
		logger.Warn("Docker Hub token response carried no token")
		return nil, 0
	}

	ttl := defaultTokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}

	return &Token{Kind: TokenKindBearer, Value: payload.Token}, ttl
}

func (b *AuthBroker) ecrToken(ctx context.Context, creds *types.RegistryCredentials, logger *logrus.Entry) (*Token, time.Duration) {
	// ECR authorization tokens are base64 user:password pairs already.
	if creds != nil && creds.Token != "" {
		return &Token{Kind: TokenKindBasic, Value: creds.Token}, 0
	}
	if b.ecr == nil {
		logger.Warn("No ECR token provider configured, proceeding unauthenticated")
		return nil, 0
	}

	token, expiresAt, err := b.ecr.AuthorizationToken(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to obtain ECR authorization token")
		return nil, 0
	}

	ttl := expiresAt.Sub(b.clock.Now())
	if ttl < 0 {
		ttl = 0
	}
	return &Token{Kind: TokenKindBasic, Value: token}, ttl
}

// callerOrEnvToken handles registries where tokens arrive pre-issued: the
// caller-supplied token wins, then an environment-configured fallback. These
// are treated as already valid and are not cached with a TTL.
func callerOrEnvToken(creds *types.RegistryCredentials, envVars []string, logger *logrus.Entry) (*Token, time.Duration) {
	if creds != nil && creds.Token != "" {
		return &Token{Kind: TokenKindBearer, Value: creds.Token}, 0
	}
	for _, name := range envVars {
		if value := os.Getenv(name); value != "" {
			return &Token{Kind: TokenKindBearer, Value: value}, 0
		}
	}
	logger.Warn("No token available for registry, proceeding unauthenticated")
	return nil, 0
}

// detectCredentialType picks the auth flow from explicit credentials first,
// falling back to well-known registry hostnames.
func detectCredentialType(registryHost string, creds *types.RegistryCredentials) types.CredentialType {
	if creds != nil && creds.Type != "" {
		return creds.Type
	}

	switch {
	case strings.Contains(registryHost, "docker.io"):
		return types.CredentialDockerHub
	case strings.Contains(registryHost, "ghcr.io"):
		return types.CredentialGHCR
	case strings.Contains(registryHost, "gcr.io"):
		return types.CredentialGCR
	case strings.Contains(registryHost, ".ecr.") && strings.Contains(registryHost, "amazonaws.com"):
		return types.CredentialECR
	case strings.Contains(registryHost, "azurecr.io"):
		return types.CredentialACR
	default:
		return types.CredentialCustom
	}
}
