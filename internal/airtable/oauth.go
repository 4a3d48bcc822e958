package airtable

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// Airtable OAuth endpoints.
const (
	DefaultAuthURL  = "https://airtable.com/oauth2/v1/authorize"
	DefaultTokenURL = "https://airtable.com/oauth2/v1/token"
)

// Scopes requested from Airtable: read and write records, read base schemas.
var Scopes = []string{"data.records:read", "data.records:write", "schema.bases:read"}

// OAuthConfig holds the registered Airtable integration settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// OAuth runs the authorization code flow with PKCE.
type OAuth struct {
	cfg *oauth2.Config
}

// NewOAuth builds an OAuth helper, filling in Airtable's endpoints when the
// config leaves them empty.
func NewOAuth(c OAuthConfig) *OAuth {
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	return &OAuth{cfg: &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthURL,
			TokenURL:  c.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}}
}

// Configured reports whether a client ID and redirect URL are set.
func (o *OAuth) Configured() bool {
	return o != nil && o.cfg.ClientID != "" && o.cfg.RedirectURL != ""
}

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// AuthCodeURL returns the consent page URL for state, carrying the S256
// challenge of verifier.
func (o *OAuth) AuthCodeURL(state, verifier string) string {
	return o.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a token.
func (o *OAuth) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	tok, err := o.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return tok, nil
}

// TokenSource returns a source that refreshes tok when it expires and hands
// every newly issued token to onRefresh. A token without a refresh token is
// used as is.
func (o *OAuth) TokenSource(ctx context.Context, tok *oauth2.Token, onRefresh func(*oauth2.Token) error) oauth2.TokenSource {
	if tok.RefreshToken == "" {
		return oauth2.StaticTokenSource(tok)
	}
	return &notifyingSource{
		base:      o.cfg.TokenSource(ctx, tok),
		last:      tok.AccessToken,
		onRefresh: onRefresh,
	}
}

type notifyingSource struct {
	mu        sync.Mutex
	base      oauth2.TokenSource
	last      string
	onRefresh func(*oauth2.Token) error
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if s.onRefresh != nil {
			if err := s.onRefresh(tok); err != nil {
				return nil, fmt.Errorf("store refreshed token: %w", err)
			}
		}
	}
	return tok, nil
}
