package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultAuthURL = "https://www.reddit.com/api/v1/access_token"

	// tokens are renewed this long before the server-declared expiry
	tokenSafetyMargin = 60 * time.Second

	// used when the token response carries no expires_in
	fallbackTokenLifetime = time.Hour
)

// TokenConfig holds the identity used for the credential exchange.
// Without Username the application-only client credentials grant is used.
type TokenConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	AuthURL      string
	Timeout      time.Duration
}

// TokenProvider obtains and caches a Reddit access token
type TokenProvider struct {
	cfg        TokenConfig
	httpClient *http.Client
	log        *logrus.Logger
	now        func() time.Time

	// guards the whole check-exchange-cache sequence so only one exchange is in flight
	mutex       sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewTokenProvider creates a new token provider
func NewTokenProvider(cfg TokenConfig, log *logrus.Logger) *TokenProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &TokenProvider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &userAgentTransport{
				base:      http.DefaultTransport,
				userAgent: cfg.UserAgent,
			},
		},
		log: log,
		now: time.Now,
	}
}

// Token returns a valid access token, exchanging credentials when the cached
// token is missing or inside the safety margin of its expiry
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.accessToken != "" && p.now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	p.log.WithField("grant", p.grantType()).Info("Authenticating with Reddit API")

	issuedAt := p.now()
	tok, err := p.exchange(ctx)
	if err != nil {
		authErr := &AuthError{Message: "credential exchange failed", Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			authErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return "", authErr
	}
	if tok == nil || tok.AccessToken == "" {
		return "", &AuthError{Message: "token response carried no access token"}
	}

	lifetime := fallbackTokenLifetime
	if !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry)
	}

	p.accessToken = tok.AccessToken
	p.tokenExpiry = issuedAt.Add(lifetime - tokenSafetyMargin)

	p.log.WithFields(logrus.Fields{
		"expires_at": p.tokenExpiry.Format(time.RFC3339),
	}).Info("Successfully authenticated with Reddit API")

	return p.accessToken, nil
}

func (p *TokenProvider) exchange(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	if p.cfg.Username != "" {
		conf := &oauth2.Config{
			ClientID:     p.cfg.ClientID,
			ClientSecret: p.cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  p.cfg.AuthURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
		return conf.PasswordCredentialsToken(ctx, p.cfg.Username, p.cfg.Password)
	}

	conf := &clientcredentials.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		TokenURL:     p.cfg.AuthURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return conf.Token(ctx)
}

func (p *TokenProvider) grantType() string {
	if p.cfg.Username != "" {
		return "password"
	}
	return "client_credentials"
}

// userAgentTransport stamps every request with the configured User-Agent;
// Reddit rejects requests without an identifying one
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
