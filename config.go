package notifyws

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds every tunable of the transport. Field tags serve both TOML files and environment
// variables (see cmd/notifyctl).
type Config struct {
	// APIBaseURL is the REST base, e.g. https://bank.example.com/api/v1.
	APIBaseURL string `toml:"api_base_url" envconfig:"API_BASE_URL"`
	// RESTPathPrefix is stripped from the end of the APIBaseURL path.
	RESTPathPrefix string `toml:"rest_path_prefix" envconfig:"REST_PATH_PREFIX"`
	// NotificationsPath replaces RESTPathPrefix.
	NotificationsPath string `toml:"notifications_path" envconfig:"NOTIFICATIONS_PATH"`

	HeartbeatInterval time.Duration `toml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
	HandshakeTimeout  time.Duration `toml:"handshake_timeout" envconfig:"HANDSHAKE_TIMEOUT"`
	WriteTimeout      time.Duration `toml:"write_timeout" envconfig:"WRITE_TIMEOUT"`

	BaseDelay   time.Duration `toml:"base_delay" envconfig:"BASE_DELAY"`
	MaxDelay    time.Duration `toml:"max_delay" envconfig:"MAX_DELAY"`
	MaxAttempts int           `toml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
}

// DefaultConfig returns the defaults used by the banking web client.
func DefaultConfig() Config {
	return Config{
		APIBaseURL:        "http://localhost:8080/api/v1",
		RESTPathPrefix:    "/api/v1",
		NotificationsPath: "/ws/notifications",
		HeartbeatInterval: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		MaxAttempts:       5,
	}
}

// Apply returns c with every non-zero field of other copied over it.
func (c Config) Apply(other Config) Config {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.RESTPathPrefix != "" {
		c.RESTPathPrefix = other.RESTPathPrefix
	}
	if other.NotificationsPath != "" {
		c.NotificationsPath = other.NotificationsPath
	}
	if other.HeartbeatInterval != 0 {
		c.HeartbeatInterval = other.HeartbeatInterval
	}
	if other.HandshakeTimeout != 0 {
		c.HandshakeTimeout = other.HandshakeTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.BaseDelay != 0 {
		c.BaseDelay = other.BaseDelay
	}
	if other.MaxDelay != 0 {
		c.MaxDelay = other.MaxDelay
	}
	if other.MaxAttempts != 0 {
		c.MaxAttempts = other.MaxAttempts
	}
	return c
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "api_base_url: %s", err)
	}
	if _, ok := wsScheme(u.Scheme); !ok {
		return errors.Wrapf(ErrInvalidConfig, "api_base_url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.Wrap(ErrInvalidConfig, "api_base_url: missing host")
	}
	if !strings.HasPrefix(c.NotificationsPath, "/") {
		return errors.Wrapf(ErrInvalidConfig, "notifications_path %q must start with /", c.NotificationsPath)
	}
	if c.HeartbeatInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "heartbeat_interval must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.Wrap(ErrInvalidConfig, "write_timeout must be positive")
	}
	if c.BaseDelay <= 0 || c.MaxDelay < c.BaseDelay {
		return errors.Wrap(ErrInvalidConfig, "base_delay must be positive and not above max_delay")
	}
	if c.MaxAttempts < 1 {
		return errors.Wrap(ErrInvalidConfig, "max_attempts must be at least 1")
	}
	return nil
}

// Backoff returns the reconnect policy described by the config.
func (c Config) Backoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		MaxAttempts: c.MaxAttempts,
	}
}

// Endpoint derives the notification endpoint from the REST base URL: the scheme is swapped to its
// websocket counterpart, the REST prefix is replaced by the notifications path and the credential
// is attached as the token and userId query parameters.
func (c Config) Endpoint(cred Credential) (url.URL, error) {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return url.URL{}, errors.Wrapf(ErrInvalidConfig, "api_base_url: %s", err)
	}

	scheme, ok := wsScheme(u.Scheme)
	if !ok {
		return url.URL{}, errors.Wrapf(ErrInvalidConfig, "api_base_url: unsupported scheme %q", u.Scheme)
	}

	base := strings.TrimSuffix(u.Path, "/")
	if prefix := strings.TrimSuffix(c.RESTPathPrefix, "/"); prefix != "" {
		base = strings.TrimSuffix(base, prefix)
	}

	q := url.Values{}
	q.Set("token", cred.AccessToken)
	q.Set("userId", cred.UserID)

	return url.URL{
		Scheme:   scheme,
		User:     u.User,
		Host:     u.Host,
		Path:     base + c.NotificationsPath,
		RawQuery: q.Encode(),
	}, nil
}

func wsScheme(scheme string) (string, bool) {
	switch strings.ToLower(scheme) {
	case "http", "ws":
		return "ws", true
	case "https", "wss":
		return "wss", true
	default:
		return "", false
	}
}
