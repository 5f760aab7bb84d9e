package http

import (
	"net/http"
	"strconv"
	"strings"
)

// ContentRange is a parsed "bytes start-end/total" header. Total is -1 when the server sent "*".
type ContentRange struct {
	Start int64
	End   int64
	Total int64
}

// ParseContentRange reads the Content-Range header of a 206 response.
func ParseContentRange(h http.Header) (ContentRange, error) {
	raw := strings.TrimSpace(h.Get("Content-Range"))

	spec, ok := strings.CutPrefix(raw, "bytes ")
	if !ok {
		return ContentRange{}, ErrInvalidContentRange
	}

	span, total, ok := strings.Cut(strings.TrimSpace(spec), "/")
	if !ok {
		return ContentRange{}, ErrInvalidContentRange
	}

	first, last, ok := strings.Cut(span, "-")
	if !ok {
		return ContentRange{}, ErrInvalidContentRange
	}

	cr := ContentRange{Total: -1}

	var err error

	if cr.Start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return ContentRange{}, ErrInvalidContentRange
	}

	if cr.End, err = strconv.ParseInt(last, 10, 64); err != nil {
		return ContentRange{}, ErrInvalidContentRange
	}

	if cr.Start < 0 || cr.End < cr.Start {
		return ContentRange{}, ErrInvalidContentRange
	}

	if total != "*" {
		if cr.Total, err = strconv.ParseInt(total, 10, 64); err != nil || cr.Total <= cr.End {
			return ContentRange{}, ErrInvalidContentRange
		}
	}

	return cr, nil
}
