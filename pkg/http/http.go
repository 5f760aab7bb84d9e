package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/NamanBalaji/fastdl/internal/logger"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultIdleTimeout    = 90 * time.Second
	keepAlivePeriod       = 30 * time.Second
	maxIdleConns          = 100
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 30 * time.Second
	expectContinueTimeout = 1 * time.Second
	maxConnsPerHost       = 0
	DefaultUserAgent      = "fastdl/1.0"
	defaultDownloadName   = "download"
	ProxyDirect           = "direct"
)

// Options configures the transport of a Client.
type Options struct {
	// Headers are sent with every request and override the default User-Agent.
	Headers map[string]string
	// Proxy is a proxy URL. Empty uses the environment, ProxyDirect disables proxying.
	Proxy string
	// LocalAddr binds outgoing connections to a local IP address.
	LocalAddr string
	// InsecureSkipVerify disables TLS certificate and hostname validation.
	InsecureSkipVerify bool
	// ConnectTimeout bounds dialing and HEAD requests.
	ConnectTimeout time.Duration
}

// Client wraps http.Client with connection settings suited to many parallel range requests.
type Client struct {
	*http.Client

	headers        map[string]string
	connectTimeout time.Duration
}

// NewClient creates a new HTTP client with custom transport settings.
func NewClient(opts Options) (*Client, error) {
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: keepAlivePeriod,
	}

	if opts.LocalAddr != "" {
		ip := net.ParseIP(opts.LocalAddr)
		if ip == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLocalAddr, opts.LocalAddr)
		}

		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}

	proxy, err := proxyFunc(opts.Proxy)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy:                 proxy,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       defaultIdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		DisableCompression:    true,
		MaxConnsPerHost:       maxConnsPerHost,
		// Each fetcher needs its own TCP stream, so stay on HTTP/1.1.
		TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
	}

	if opts.InsecureSkipVerify {
		//nolint:gosec
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		Client:         &http.Client{Transport: transport},
		headers:        headers,
		connectTimeout: connectTimeout,
	}, nil
}

func proxyFunc(raw string) (func(*http.Request) (*url.URL, error), error) {
	switch raw {
	case "":
		return http.ProxyFromEnvironment, nil
	case ProxyDirect:
		return nil, nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, raw)
	}

	return http.ProxyURL(u), nil
}

// Head performs a HEAD request to the specified URL.
func (c *Client) Head(ctx context.Context, urlStr string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	req, err := c.generateRequest(ctx, urlStr, http.MethodHead)
	if err != nil {
		return nil, err
	}

	logger.Debugf("Sending HEAD request to %s", urlStr)

	resp, err := c.Do(req)
	if err != nil {
		logger.Debugf("HEAD request failed for %s: %v", urlStr, err)
		return nil, ClassifyError(err)
	}

	logger.Debugf("HEAD response for %s: status=%d", urlStr, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	return resp, nil
}

// Range performs a GET request for bytes [start, end] inclusive. A negative end asks for an
// open-ended range. The caller owns the body. A server that answers with anything other than
// 206 gets ErrRangesNotSupported.
func (c *Client) Range(ctx context.Context, urlStr string, start, end int64) (*http.Response, error) {
	req, err := c.generateRequest(ctx, urlStr, http.MethodGet)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Range", FormatRange(start, end))

	resp, err := c.Do(req)
	if err != nil {
		return nil, ClassifyError(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		logger.Warnf("Server doesn't honor ranges for %s (status: %d)", urlStr, resp.StatusCode)

		return nil, ErrRangesNotSupported
	}

	return resp, nil
}

// Get performs a plain GET request. The caller owns the body.
func (c *Client) Get(ctx context.Context, urlStr string) (*http.Response, error) {
	req, err := c.generateRequest(ctx, urlStr, http.MethodGet)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, ClassifyError(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, ClassifyHTTPError(resp.StatusCode)
	}

	return resp, nil
}

// generateRequest creates a new HTTP request with the client's default headers.
func (c *Client) generateRequest(ctx context.Context, urlStr, method string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, http.NoBody)
	if err != nil {
		logger.Errorf("Failed to create %s request for %s: %v", method, urlStr, err)
		return nil, ErrRequestCreation
	}

	req.Header.Set("User-Agent", DefaultUserAgent)

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// FormatRange renders a Range header value for the inclusive interval [start, end].
func FormatRange(start, end int64) string {
	if end < 0 {
		return fmt.Sprintf("bytes=%d-", start)
	}

	return fmt.Sprintf("bytes=%d-%d", start, end)
}

// BrowserHeaders returns the Origin and Referer headers a browser would send for urlStr.
func BrowserHeaders(urlStr string) (map[string]string, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"Origin":  u.Scheme + "://" + u.Host,
		"Referer": urlStr,
	}, nil
}

// GetFilename tries extracts the filename from the Content-Disposition header or the URL.
func GetFilename(resp *http.Response) string {
	fileName, ok := getFileNameFromContentDisposition(resp.Header.Get("Content-Disposition"))
	if ok {
		return fileName
	}

	u := resp.Request.URL
	if qname := u.Query().Get("filename"); qname != "" {
		return qname
	}

	base := path.Base(u.Path)
	if base != "" && base != "/" && base != "." {
		return base
	}

	return defaultDownloadName
}

func getFileNameFromContentDisposition(header string) (string, bool) {
	if header == "" {
		return "", false
	}

	if _, params, err := mime.ParseMediaType(header); err == nil {
		if fName, ok := params["filename"]; ok && fName != "" {
			return path.Base(strings.ReplaceAll(fName, "\\", "/")), true
		}
	}

	return "", false
}

// ParseLastModified parses the Last-Modified header.
func ParseLastModified(header string) time.Time {
	if header == "" {
		return time.Time{}
	}

	t, err := http.ParseTime(header)
	if err != nil {
		logger.Debugf("Failed to parse Last-Modified header: %s, error: %v", header, err)
		return time.Time{}
	}

	return t
}
