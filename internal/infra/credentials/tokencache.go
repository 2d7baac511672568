package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"dreamframe/internal/infra"
)

// CloudPlatformScope is the OAuth scope Vertex AI and Cloud Storage accept.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// DefaultRefreshSkew is how long before expiry a cached token is replaced.
const DefaultRefreshSkew = 5 * time.Minute

// Fetcher exchanges long-lived credentials for a fresh short-lived token.
type Fetcher func(ctx context.Context) (*oauth2.Token, error)

// ServiceAccountFetcher builds a Fetcher from a service-account JSON key.
func ServiceAccountFetcher(jsonKey []byte, scopes ...string) (Fetcher, error) {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	cfg, err := google.JWTConfigFromJSON(jsonKey, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	return func(ctx context.Context) (*oauth2.Token, error) {
		// A new source per call so nothing below us caches.
		return cfg.TokenSource(ctx).Token()
	}, nil
}

// TokenCacheOptions configure a TokenCache.
type TokenCacheOptions struct {
	Skew   time.Duration
	Logger *infra.Logger
	Now    func() time.Time
	// RefreshTimeout bounds every token exchange. Exchanges run detached from the
	// caller that started them, so a cancelled request cannot fail its peers.
	RefreshTimeout time.Duration
}

// TokenCache holds one bearer token shared by every request to a provider.
// Reads take a read lock; refreshes are collapsed with singleflight so N concurrent
// callers needing a token trigger one exchange.
type TokenCache struct {
	fetch          Fetcher
	skew           time.Duration
	now            func() time.Time
	logger         *infra.Logger
	refreshTimeout time.Duration

	mu         sync.RWMutex
	token      *oauth2.Token
	generation uint64

	group singleflight.Group
}

// NewTokenCache wraps fetch with caching and single-flight refresh.
func NewTokenCache(fetch Fetcher, opts TokenCacheOptions) *TokenCache {
	if opts.Skew <= 0 {
		opts.Skew = DefaultRefreshSkew
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = infra.DiscardLogger()
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}
	return &TokenCache{
		fetch:          fetch,
		skew:           opts.Skew,
		now:            opts.Now,
		logger:         opts.Logger,
		refreshTimeout: opts.RefreshTimeout,
	}
}

// Token returns a cached token that is valid for at least the skew window,
// refreshing first when needed.
func (c *TokenCache) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := c.cached(); tok != nil {
		return tok, nil
	}
	return c.refresh(ctx)
}

// AccessToken is Token reduced to the bearer string.
func (c *TokenCache) AccessToken(ctx context.Context) (string, error) {
	tok, err := c.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Invalidate discards the cached token and starts a background refresh so the
// next caller usually finds a fresh one.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.generation++
	c.mu.Unlock()

	go func() {
		if _, err := c.refresh(context.Background()); err != nil {
			c.logger.Warn().Err(err).Msg("credentials: background token refresh failed")
		}
	}()
}

// TokenSource adapts the cache to oauth2.TokenSource for Google API clients.
func (c *TokenCache) TokenSource(ctx context.Context) oauth2.TokenSource {
	return cacheSource{ctx: ctx, cache: c}
}

func (c *TokenCache) cached() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fresh(c.token) {
		return c.token
	}
	return nil
}

func (c *TokenCache) fresh(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return c.now().Add(c.skew).Before(tok.Expiry)
}

func (c *TokenCache) refresh(ctx context.Context) (*oauth2.Token, error) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	// Keyed by generation so a refresh started before Invalidate is not reused after it.
	ch := c.group.DoChan(fmt.Sprintf("token-%d", gen), func() (any, error) {
		if tok := c.cached(); tok != nil {
			return tok, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		tok, err := c.fetch(fctx)
		if err != nil {
			return nil, err
		}
		if tok == nil || tok.AccessToken == "" {
			return nil, errors.New("token exchange returned no access token")
		}
		c.mu.Lock()
		if c.generation == gen {
			c.token = tok
		}
		c.mu.Unlock()
		c.logger.Debug().Time("expiry", tok.Expiry).Msg("credentials: token refreshed")
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("refresh token: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("refresh token: %w", res.Err)
		}
		if res.Shared {
			c.logger.Debug().Msg("credentials: joined in-flight token refresh")
		}
		return res.Val.(*oauth2.Token), nil
	}
}

type cacheSource struct {
	ctx   context.Context
	cache *TokenCache
}

func (s cacheSource) Token() (*oauth2.Token, error) {
	return s.cache.Token(s.ctx)
}
