package livevoice

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultEndpoint is the bidirectional streaming endpoint used by ConfigFromEnv
// when LIVEVOICE_ENDPOINT is unset.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

// Defaults applied by Open and NewStreamer when the field is zero.
const (
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultDrainTimeout     = 10 * time.Second
	DefaultPingInterval     = 20 * time.Second
	DefaultEventBuffer      = 64
	DefaultReadLimit        = 16 * 1024 * 1024
)

// Credential represents a pre-issued credential presented during the handshake.
// Implementations must apply the appropriate authentication headers.
type Credential interface{ apply(h http.Header) }

// credentialChecker is implemented by credentials that can be rejected locally
// before any network traffic.
type credentialChecker interface{ check(now time.Time) error }

// APIKey implements Credential using API key authentication.
type APIKey string

// apply adds the API key using the "x-goog-api-key" header.
func (k APIKey) apply(h http.Header) {
	if k != "" {
		h.Set("x-goog-api-key", string(k))
	}
}

// Bearer implements Credential using a bearer token.
type Bearer string

// apply adds the token to the Authorization header.
func (b Bearer) apply(h http.Header) {
	if b != "" {
		h.Set("Authorization", "Bearer "+string(b))
	}
}

// check rejects a JWT bearer token whose exp claim has already passed. Tokens
// that are not JWTs are opaque to the client and always pass.
func (b Bearer) check(now time.Time) error {
	if b == "" {
		return errors.New("bearer token is empty")
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(b), &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("bearer token expired at %s", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	return nil
}

// Config holds all configuration options for connections and streamers.
// Endpoint and Credential are required; every other field has a usable zero value.
type Config struct {
	// Endpoint is the ws:// or wss:// URL of the streaming service. http and
	// https URLs are accepted and mapped to ws and wss.
	Endpoint string

	// Model, when set, makes Open send a setup message for this model and wait
	// for the peer to acknowledge it. A bare name is prefixed with "models/".
	Model string

	// ResponseModalities is sent with the setup message, e.g. ["TEXT"] or ["AUDIO"].
	ResponseModalities []string

	// Credential is presented during the handshake.
	Credential Credential

	// HandshakeTimeout bounds dial, handshake and setup. Default 15s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write. Zero means no per-write deadline.
	WriteTimeout time.Duration

	// DrainTimeout bounds how long the receive side keeps flushing after the
	// send side stopped. Zero means wait for the peer. Default 10s.
	DrainTimeout time.Duration

	// MaxTurnDuration caps a turn-bounded exchange. Zero means unlimited.
	MaxTurnDuration time.Duration

	// PingInterval is the keepalive period for bidirectional streams.
	// Default 20s; negative disables keepalives.
	PingInterval time.Duration

	// EventBuffer is the capacity of a stream's event channel. Default 64.
	EventBuffer int

	// ReadLimit caps the size of one inbound frame. Default 16MB.
	ReadLimit int64

	// HandshakeHeaders are added to the handshake request.
	HandshakeHeaders http.Header

	// Dialer establishes the transport. Default WebSocketDialer.
	Dialer Dialer

	// Retry, when set, makes a Streamer's lazy (re)connect retry with backoff.
	Retry *RetryConfig

	// Logger receives structured operational events. Default DefaultLogger.
	Logger *Logger

	// Metrics, when set, records frame and connection counters.
	Metrics *Metrics

	now func() time.Time
}

// applyDefaults fills zero fields with their defaults.
func (c Config) applyDefaults() Config {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = DefaultReadLimit
	}
	if c.Dialer == nil {
		c.Dialer = &WebSocketDialer{ReadLimit: c.ReadLimit}
	}
	if c.Logger == nil {
		c.Logger = DefaultLogger
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// handshakeHeader builds the header set sent with the handshake.
func (c Config) handshakeHeader() http.Header {
	h := http.Header{}
	for k, vals := range c.HandshakeHeaders {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	if c.Credential != nil {
		c.Credential.apply(h)
	}
	return h
}

// ConfigFromEnv builds a Config from the environment:
//
//	LIVEVOICE_ENDPOINT      endpoint URL (default DefaultEndpoint)
//	LIVEVOICE_MODEL         optional model for session setup
//	LIVEVOICE_BEARER_TOKEN  bearer credential (takes precedence)
//	LIVEVOICE_API_KEY       API key credential
//	GOOGLE_API_KEY          API key fallback
//
// The result is validated before it is returned.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint: strings.TrimSpace(os.Getenv("LIVEVOICE_ENDPOINT")),
		Model:    strings.TrimSpace(os.Getenv("LIVEVOICE_MODEL")),
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	switch {
	case os.Getenv("LIVEVOICE_BEARER_TOKEN") != "":
		cfg.Credential = Bearer(os.Getenv("LIVEVOICE_BEARER_TOKEN"))
	case os.Getenv("LIVEVOICE_API_KEY") != "":
		cfg.Credential = APIKey(os.Getenv("LIVEVOICE_API_KEY"))
	case os.Getenv("GOOGLE_API_KEY") != "":
		cfg.Credential = APIKey(os.Getenv("GOOGLE_API_KEY"))
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
