package util

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// NewHTTPClient builds an outbound client with separate connect, read and total timeouts
func NewHTTPClient(cfg model.HTTPConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   orDefault(cfg.ConnectTimeout, 5*time.Second),
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   orDefault(cfg.ConnectTimeout, 5*time.Second),
		ResponseHeaderTimeout: orDefault(cfg.ReadTimeout, 10*time.Second),
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}

	return &http.Client{
		Timeout:   orDefault(cfg.Timeout, 20*time.Second),
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// NewProxyFunc creates a proxy function based on configuration.
// Hosts matching noProxy (comma-separated suffixes) bypass the proxy.
// If no proxy URLs are provided, falls back to environment variables.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	var bypass []string
	for _, h := range strings.Split(noProxy, ",") {
		if h = strings.TrimSpace(strings.ToLower(h)); h != "" {
			bypass = append(bypass, strings.TrimPrefix(h, "."))
		}
	}

	return func(req *http.Request) (*url.URL, error) {
		host := strings.ToLower(req.URL.Hostname())
		for _, b := range bypass {
			if host == b || strings.HasSuffix(host, "."+b) {
				return nil, nil
			}
		}
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
