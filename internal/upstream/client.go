package upstream

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"time"

	utls "github.com/refraction-networking/utls"

	"github.com/relayguard/relayguard/internal/config"
	"github.com/relayguard/relayguard/internal/logging"
)

// Client is the outbound HTTP client used for provider traffic. It can
// speak through a uTLS transport so the TLS fingerprint matches a regular
// browser instead of the Go runtime.
type Client struct {
	client  *http.Client
	logger  *logging.Logger
	debug   bool
	useUTLS bool
}

type Option func(*Client)

func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func NewClient(cfg config.UpstreamConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultUpstreamTimeout
	}

	c := &Client{
		client: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(cfg.UseUTLS),
		},
		logger:  logging.NewLogger(),
		debug:   strings.TrimSpace(os.Getenv("RELAYGUARD_DEBUG_TRAFFIC")) == "1",
		useUTLS: cfg.UseUTLS,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if c.debug {
		if dump, err := httputil.DumpRequestOut(req, false); err == nil {
			c.logger.Debug("outbound request", "dump", string(dump))
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if c.debug {
		if dump, err := httputil.DumpResponse(resp, false); err == nil {
			c.logger.Debug("upstream response", "dump", string(dump))
		}
	}
	return resp, nil
}

// CloseIdleConnections releases pooled connections, used during shutdown.
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

func newTransport(useUTLS bool) http.RoundTripper {
	if !useUTLS {
		return &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			rawConn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host := addr
			if strings.Contains(addr, ":") {
				host, _, _ = net.SplitHostPort(addr)
			}
			conf := &utls.Config{
				ServerName: host,
				NextProtos: []string{"h2", "http/1.1"},
			}
			uconn := utls.UClient(rawConn, conf, utls.HelloChrome_120)
			if err := uconn.Handshake(); err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			return uconn, nil
		},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
}
