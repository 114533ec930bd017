// Package stripe is the marketplace's narrow view of the Stripe API:
// checkout sessions, refunds and webhook verification.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/artisanalley/marketplace-backend/pkg/config"
	"github.com/artisanalley/marketplace-backend/pkg/logger"
)

const defaultRequestTimeout = 10 * time.Second

// keyPrefixes lists the secret and restricted key prefixes valid per environment.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = errors.New(`stripe environment must be "test" or "live"`)
	errKeyEnvMismatch   = errors.New("stripe api key does not match environment")
)

type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	timeout       time.Duration
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
}

// WithBaseURL points API calls at another host, such as stripe-mock or an
// httptest server.
func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = url }
}

// NewClient validates the credentials against the configured environment and
// builds an API client with network retries disabled; callers own retries.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, errInvalidStripeEnv
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !hasAnyPrefix(apiKey, prefixes) {
		return nil, fmt.Errorf("%w: %s requires one of %s", errKeyEnvMismatch, env, strings.Join(prefixes, ", "))
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	backend := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if o.baseURL != "" {
		backend.URL = stripe.String(o.baseURL)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe client initialized")
	}
	return &Client{
		api:           stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backend))),
		environment:   env,
		signingSecret: secret,
		timeout:       timeout,
	}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (c *Client) API() *stripe.Client { return c.api }

// Environment is "test" or "live".
func (c *Client) Environment() string { return c.environment }

func (c *Client) SigningSecret() string { return c.signingSecret }

// withDeadline bounds a single API call by the configured request timeout.
func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}
