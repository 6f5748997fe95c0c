// Package session provides the client identity the acquisition protocol
// runs through: cookie jar, TLS fingerprint, User-Agent rotation, and
// optional proxy rotation. The whole run shares one Session; the protocol
// client treats its state as opaque.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/bypass"
	"github.com/shahidirfan100/Google-Trends-Scraper/internal/fingerprint"
	"github.com/shahidirfan100/Google-Trends-Scraper/pkg/httpclient"
	"github.com/shahidirfan100/Google-Trends-Scraper/pkg/proxy"
	"github.com/shahidirfan100/Google-Trends-Scraper/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Config configures one session.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	Fingerprint  fingerprint.Profile
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	// Language is sent as Accept-Language; it should match the hl request
	// parameter or the backend serves inconsistent locales.
	Language string
}

// Session is a live client identity. Cookies persist for its lifetime, so
// tokens minted by the discovery call stay valid for the widget fetches
// that follow.
type Session struct {
	config Config
	client *httpclient.Client
}

// New acquires a session: one fingerprinted transport and one cookie jar
// shared by every request until Close.
func New(cfg Config) (*Session, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if string(cfg.Fingerprint) == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.Language == "" {
		cfg.Language = "en-US,en;q=0.5"
	}

	// The proxy function reads from the request context so the pool can
	// rotate per request without swapping the transport.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("setup fingerprint transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: true,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	return &Session{config: cfg, client: client}, nil
}

// Do executes one request under this identity and reads the full body.
// Non-2xx statuses are returned as responses, not errors; classifying them
// is the transport's job.
func (s *Session) Do(ctx context.Context, req *http.Request) (*bypass.Response, error) {
	var activeProxy *url.URL
	if s.config.ProxyPool != nil {
		activeProxy = s.config.ProxyPool.Next()
	}
	if activeProxy != nil {
		ctx = context.WithValue(ctx, proxyKey, activeProxy)
	}

	req.Header.Set("User-Agent", s.config.UAPool.GetSequential())
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", s.config.Language)
	req.Header.Set("Referer", "https://trends.google.com/trends/explore")

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		if activeProxy != nil {
			_ = s.config.ProxyPool.MarkFailure(activeProxy)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = s.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &bypass.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Warm primes the cookie jar by loading the explore page the way a browser
// would before touching the widget API. Failure is non-fatal; the
// discovery call may still succeed on a cold jar.
func (s *Session) Warm(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://trends.google.com/trends/explore", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	res, err := s.Do(ctx, req)
	if err != nil {
		return err
	}
	if res.StatusCode >= 500 {
		return fmt.Errorf("warmup returned status %d", res.StatusCode)
	}
	return nil
}

// Close releases the session. The cookie jar and its identity are
// discarded; a new Session starts clean.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}
