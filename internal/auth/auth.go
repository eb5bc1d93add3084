// Package auth supplies bearer tokens for drive API requests.
//
// The drive core only depends on the Source interface; the default
// implementation persists tokens to a file and renews them through an
// OAuth2 refresh-token exchange.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/pomelodrive/pomelo/internal/logging"
)

// ErrLoginRequired is returned when no usable credentials exist and an
// interactive login is needed.
var ErrLoginRequired = errors.New("auth: login required")

// Source provides the Authorization header value for drive requests and a
// hook to obtain fresh credentials after an unauthorized response.
type Source interface {
	// Header returns the full Authorization header value ("Bearer ...").
	Header(ctx context.Context) (string, error)

	// Reauthenticate obtains fresh credentials. Called by the transport
	// after a 401 before retrying the request once.
	Reauthenticate(ctx context.Context) error
}

// Config holds the OAuth2 settings for the default provider.
type Config struct {
	TokenFile    string
	TokenURL     string
	ClientID     string
	ClientSecret string

	// ExpiryMargin renews a token this long before its actual expiry.
	ExpiryMargin time.Duration
}

// Provider is the file-backed OAuth2 token source.
type Provider struct {
	cfg Config

	mu    sync.Mutex
	token *TokenFile
}

// NewProvider creates a provider. The token file is loaded lazily.
func NewProvider(cfg Config) *Provider {
	if cfg.ExpiryMargin == 0 {
		cfg.ExpiryMargin = time.Minute
	}
	return &Provider{cfg: cfg}
}

// Header implements Source.
func (p *Provider) Header(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		tf, err := LoadTokenFile(p.cfg.TokenFile)
		if err != nil {
			return "", ErrLoginRequired
		}
		p.token = tf
	}

	if p.token.IsExpired(p.cfg.ExpiryMargin) {
		if err := p.refreshLocked(ctx); err != nil {
			return "", err
		}
	}

	return "Bearer " + p.token.AccessToken, nil
}

// Reauthenticate implements Source by forcing a refresh-token exchange.
func (p *Provider) Reauthenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil {
		tf, err := LoadTokenFile(p.cfg.TokenFile)
		if err != nil {
			return ErrLoginRequired
		}
		p.token = tf
	}
	return p.refreshLocked(ctx)
}

// SetToken installs a freshly obtained token and persists it.
func (p *Provider) SetToken(tok *oauth2.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tf := &TokenFile{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if tf.ExpiresAt.IsZero() {
		tf.ExpiresAt = expiryFromToken(tok.AccessToken)
	}
	p.token = tf
	return tf.Save(p.cfg.TokenFile)
}

// Forget drops the in-memory token. The token file is left alone so a later
// session can still try its refresh token.
func (p *Provider) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = nil
}

func (p *Provider) refreshLocked(ctx context.Context) error {
	if p.token.RefreshToken == "" || p.cfg.TokenURL == "" {
		return ErrLoginRequired
	}

	conf := &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: p.cfg.TokenURL},
	}

	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: p.token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}

	p.token.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		p.token.RefreshToken = tok.RefreshToken
	}
	p.token.ExpiresAt = tok.Expiry
	if p.token.ExpiresAt.IsZero() {
		p.token.ExpiresAt = expiryFromToken(tok.AccessToken)
	}

	if err := p.token.Save(p.cfg.TokenFile); err != nil {
		logging.Warn("failed to persist refreshed token", zap.Error(err))
	}

	logging.Debug("access token refreshed", zap.Time("expires_at", p.token.ExpiresAt))
	return nil
}

// expiryFromToken extracts the exp claim from a JWT-shaped access token.
// The token is not verified; the server remains the authority and the value
// is only used to schedule proactive renewal. Returns zero time for opaque
// tokens.
func expiryFromToken(raw string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// StaticSource is a Source with a fixed token and no re-login capability.
// Useful for tests and for tokens supplied on the command line.
type StaticSource string

// Header implements Source.
func (s StaticSource) Header(context.Context) (string, error) {
	return "Bearer " + string(s), nil
}

// Reauthenticate implements Source; a static token cannot be renewed.
func (s StaticSource) Reauthenticate(context.Context) error {
	return ErrLoginRequired
}
