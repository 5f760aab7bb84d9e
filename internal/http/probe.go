package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/NamanBalaji/fastdl/internal/logger"
	httpPkg "github.com/NamanBalaji/fastdl/pkg/http"
)

// Info is what a metadata probe learned about a resource.
type Info struct {
	// URL is the final URL after redirects.
	URL           string
	FileName      string
	Size          int64 // -1 when unknown
	SupportsRange bool
	ETag          string
	LastModified  string
}

// WeakETag reports whether the ETag is a weak validator.
func (i *Info) WeakETag() bool {
	return strings.HasPrefix(i.ETag, "W/")
}

// Probe learns size, range support, validators and filename for urlStr. It tries HEAD, then a
// one-byte ranged GET, then a plain GET, moving on only when the previous method is
// unsupported. Range support is always confirmed with a ranged request since Accept-Ranges is
// advisory.
func Probe(ctx context.Context, client *httpPkg.Client, urlStr string) (*Info, error) {
	info, err := probeWithHEAD(ctx, client, urlStr)
	if err == nil {
		if info.Size == 0 {
			return info, nil
		}

		confirmed, err := probeWithRangeGET(ctx, client, info.URL)
		switch {
		case err == nil:
			mergeInfo(confirmed, info)
			return confirmed, nil
		case httpPkg.IsFallbackError(err):
			logger.Debugf("Ranged GET not honoured for %s: %v", info.URL, err)
			info.SupportsRange = false

			return info, nil
		default:
			return nil, err
		}
	}

	logger.Warnf("HEAD request failed, falling back. Error: %v", err)

	if !httpPkg.IsFallbackError(err) && !isMethodProblem(err) {
		return nil, err
	}

	info, err = probeWithRangeGET(ctx, client, urlStr)
	if err == nil {
		return info, nil
	}

	logger.Warnf("Range GET request failed, falling back. Error: %v", err)

	if !httpPkg.IsFallbackError(err) {
		return nil, err
	}

	return probeWithRegularGET(ctx, client, urlStr)
}

// Some servers answer HEAD with a generic 4xx or 5xx while serving GET fine.
func isMethodProblem(err error) bool {
	return errors.Is(err, httpPkg.ErrClientRequest) || errors.Is(err, httpPkg.ErrServerProblem)
}

func probeWithHEAD(ctx context.Context, client *httpPkg.Client, urlStr string) (*Info, error) {
	logger.Debugf("Probing with HEAD request: %s", urlStr)

	resp, err := client.Head(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Errorf("Failed to close response body for %s: %v", urlStr, err)
		}
	}()

	supportsRanges := resp.Header.Get("Accept-Ranges") == "bytes"
	logger.Debugf("HEAD request successful, content-length=%d, accept-ranges=%v", resp.ContentLength, supportsRanges)

	return populate(resp, supportsRanges, resp.ContentLength), nil
}

func probeWithRangeGET(ctx context.Context, client *httpPkg.Client, urlStr string) (*Info, error) {
	logger.Debugf("Probing with Range GET request: %s", urlStr)

	resp, err := client.Range(ctx, urlStr, 0, 0)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Errorf("Failed to close response body for %s: %v", urlStr, err)
		}
	}()

	cr, err := httpPkg.ParseContentRange(resp.Header)
	if err != nil {
		logger.Warnf("Failed to parse Content-Range header: %q", resp.Header.Get("Content-Range"))
		return nil, err
	}

	if cr.Start != 0 {
		return nil, httpPkg.ErrRangeMismatch
	}

	logger.Debugf("Range GET request successful, supports-ranges=true, total=%d", cr.Total)

	return populate(resp, true, cr.Total), nil
}

func probeWithRegularGET(ctx context.Context, client *httpPkg.Client, urlStr string) (*Info, error) {
	logger.Debugf("Probing with regular GET request: %s", urlStr)

	resp, err := client.Get(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Errorf("Failed to close response body for %s: %v", urlStr, err)
		}
	}()

	logger.Debugf("Regular GET request successful, content-length=%d", resp.ContentLength)

	return populate(resp, false, resp.ContentLength), nil
}

func populate(resp *http.Response, canRange bool, size int64) *Info {
	if size < 0 {
		size = -1
	}

	return &Info{
		URL:           resp.Request.URL.String(),
		FileName:      httpPkg.GetFilename(resp),
		Size:          size,
		SupportsRange: canRange,
		ETag:          resp.Header.Get("ETag"),
		LastModified:  resp.Header.Get("Last-Modified"),
	}
}

// mergeInfo fills gaps in dst with what the HEAD response said.
func mergeInfo(dst, head *Info) {
	if dst.Size < 0 {
		dst.Size = head.Size
	}

	if dst.ETag == "" {
		dst.ETag = head.ETag
	}

	if dst.LastModified == "" {
		dst.LastModified = head.LastModified
	}

	if dst.FileName != head.FileName && head.FileName != "download" {
		dst.FileName = head.FileName
	}
}
