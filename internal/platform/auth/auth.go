package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/edgecv/fleet-console/internal/platform/env"
)

// Mode selects how the console authenticates to the backend API.
type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeStatic   Mode = "static"
	ModeDisabled Mode = "disabled"
)

type Config struct {
	Mode Mode

	StaticToken string

	OIDCIssuerURL    string
	OIDCTokenURL     string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCScopes       []string
	OIDCAudience     string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("BACKEND_AUTH_MODE", string(ModeDisabled))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeStatic):
		mode = ModeStatic
	case string(ModeDisabled):
		mode = ModeDisabled
	default:
		return Config{}, fmt.Errorf("BACKEND_AUTH_MODE must be one of: oidc, static, disabled (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:             mode,
		StaticToken:      strings.TrimSpace(env.String("BACKEND_AUTH_TOKEN", "")),
		OIDCIssuerURL:    strings.TrimSpace(env.String("BACKEND_OIDC_ISSUER_URL", "")),
		OIDCTokenURL:     strings.TrimSpace(env.String("BACKEND_OIDC_TOKEN_URL", "")),
		OIDCClientID:     env.String("BACKEND_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: env.String("BACKEND_OIDC_CLIENT_SECRET", ""),
		OIDCScopes:       parseScopes(env.String("BACKEND_OIDC_SCOPES", "")),
		OIDCAudience:     strings.TrimSpace(env.String("BACKEND_OIDC_AUDIENCE", "")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOIDC:
		if c.OIDCIssuerURL == "" && c.OIDCTokenURL == "" {
			return errors.New("BACKEND_OIDC_ISSUER_URL or BACKEND_OIDC_TOKEN_URL is required when BACKEND_AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("BACKEND_OIDC_CLIENT_ID is required when BACKEND_AUTH_MODE=oidc")
		}
		if strings.TrimSpace(c.OIDCClientSecret) == "" {
			return errors.New("BACKEND_OIDC_CLIENT_SECRET is required when BACKEND_AUTH_MODE=oidc")
		}
	case ModeStatic:
		if c.StaticToken == "" {
			return errors.New("BACKEND_AUTH_TOKEN is required when BACKEND_AUTH_MODE=static")
		}
	case ModeDisabled:
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}

// HTTPClient returns a client that attaches backend credentials to every
// request. base supplies the transport; it is used as-is when auth is
// disabled.
func HTTPClient(ctx context.Context, cfg Config, base *http.Client) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if base == nil {
		base = &http.Client{}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	switch cfg.Mode {
	case ModeDisabled:
		return base, nil
	case ModeStatic:
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.StaticToken, TokenType: "Bearer"})
		return withTimeout(oauth2.NewClient(ctx, ts), base), nil
	case ModeOIDC:
		tokenURL := cfg.OIDCTokenURL
		if tokenURL == "" {
			provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
			if err != nil {
				return nil, fmt.Errorf("oidc provider: %w", err)
			}
			tokenURL = provider.Endpoint().TokenURL
		}
		if tokenURL == "" {
			return nil, errors.New("oidc provider advertises no token endpoint")
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			TokenURL:     tokenURL,
			Scopes:       cfg.OIDCScopes,
		}
		if cfg.OIDCAudience != "" {
			cc.EndpointParams = map[string][]string{"audience": {cfg.OIDCAudience}}
		}
		return withTimeout(cc.Client(ctx), base), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %q", cfg.Mode)
	}
}

func withTimeout(c *http.Client, base *http.Client) *http.Client {
	c.Timeout = base.Timeout
	return c
}

func parseScopes(value string) []string {
	return strings.Fields(value)
}
