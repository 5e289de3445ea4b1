package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-tasmota/internal/command"
	"github.com/nerrad567/gray-logic-tasmota/internal/correlator"
)

// HTTP defaults.
const (
	DefaultHTTPPort    = 80
	DefaultHTTPSPort   = 443
	DefaultHTTPTimeout = 10 * time.Second

	maxResponseSize = 1 << 20
)

// Logger is the logging surface used by transports.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// HTTPConfig describes one device reachable over its web server.
type HTTPConfig struct {
	Host     string
	Port     int
	HTTPS    bool
	Username string
	Password string
	Timeout  time.Duration
}

// BaseURL returns scheme://host[:port], omitting the scheme's default port.
func (c HTTPConfig) BaseURL() string {
	scheme, port := "http", c.Port
	if c.HTTPS {
		scheme = "https"
	}
	if port == 0 || (c.HTTPS && port == DefaultHTTPSPort) || (!c.HTTPS && port == DefaultHTTPPort) {
		return scheme + "://" + c.Host
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// HTTP sends commands as GET /cm?cmnd=... requests. Each call is an
// independent request; HTTP is safe for concurrent use.
type HTTP struct {
	cfg    HTTPConfig
	base   string
	client *http.Client
	logger Logger
	closed atomic.Bool
}

// NewHTTP creates an HTTP transport. A zero Timeout means DefaultHTTPTimeout.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if strings.Contains(cfg.Host, "://") {
		return nil, fmt.Errorf("%w: host %q must not include a scheme", ErrInvalidConfig, cfg.Host)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	return &HTTP{
		cfg:    cfg,
		base:   cfg.BaseURL(),
		client: &http.Client{Timeout: cfg.Timeout},
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger.
func (h *HTTP) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.logger = logger
}

// Host returns the device host.
func (h *HTTP) Host() string { return h.cfg.Host }

// Send issues one command and decodes the JSON reply. A reply timeout set
// on the command applies when it is shorter than the transport's.
func (h *HTTP) Send(ctx context.Context, cmd command.Command) (correlator.Reply, error) {
	if h.closed.Load() {
		return correlator.Reply{}, ErrClosed
	}

	timeout := h.cfg.Timeout
	if t := cmd.Response.Timeout; t > 0 && t < timeout {
		timeout = t
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.commandURL(cmd.String()), nil)
	if err != nil {
		return correlator.Reply{}, fmt.Errorf("%w: building request: %w", ErrConnection, err)
	}

	h.logger.Debug("sending http command", "host", h.cfg.Host, "command", cmd.String())

	resp, err := h.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return correlator.Reply{}, fmt.Errorf("%w: %s: %w", correlator.ErrTimeout, h.cfg.Host, err)
		}
		return correlator.Reply{}, fmt.Errorf("%w: %s: %w", ErrConnection, h.cfg.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return correlator.Reply{}, fmt.Errorf("%w: %w: %s", ErrConnection, ErrAuthentication, h.cfg.Host)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return correlator.Reply{}, fmt.Errorf("%w: %s: HTTP %d %s",
			ErrConnection, h.cfg.Host, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return correlator.Reply{}, fmt.Errorf("%w: reading body from %s: %w", ErrConnection, h.cfg.Host, err)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil || body == nil {
		return correlator.Reply{}, fmt.Errorf("%w: %s answered %q with non-object body %q",
			correlator.ErrProtocol, h.cfg.Host, cmd.String(), truncate(data, 64))
	}

	suffix := command.SuffixResult
	if len(cmd.Response.Topics) > 0 {
		suffix = cmd.Response.Topics[0]
	}
	return correlator.NewReply(h.cfg.Host, suffix, body), nil
}

// Close marks the transport closed. There is no connection to release.
func (h *HTTP) Close() error {
	h.closed.Store(true)
	h.client.CloseIdleConnections()
	return nil
}

// commandURL builds /cm?[user=..&password=..&]cmnd=... Spaces are encoded
// as %20; the Tasmota web server does not treat '+' as a space.
func (h *HTTP) commandURL(cmnd string) string {
	var b strings.Builder
	b.WriteString(h.base)
	b.WriteString("/cm?")
	if h.cfg.Username != "" || h.cfg.Password != "" {
		b.WriteString("user=")
		b.WriteString(queryEscape(h.cfg.Username))
		b.WriteString("&password=")
		b.WriteString(queryEscape(h.cfg.Password))
		b.WriteString("&")
	}
	b.WriteString("cmnd=")
	b.WriteString(queryEscape(cmnd))
	return b.String()
}

func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
