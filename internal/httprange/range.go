package httprange

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// ErrUnsatisfiable is returned when the requested range lies outside the
// resource; callers must answer 416 with "Content-Range: bytes */<size>".
var ErrUnsatisfiable = errors.New("requested range not satisfiable")

// Range is a resolved inclusive byte interval within a resource.
type Range struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the Content-Range header value for a 206 response.
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Resolve parses a raw Range header value against a known resource size.
// It returns nil when no (or no parsable) range was requested, meaning the
// full resource should be served, and ErrUnsatisfiable when the range lies
// outside the resource.
func Resolve(header string, size int64) (*Range, error) {
	header = strings.TrimSpace(header)
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return nil, nil
	}

	spec := strings.TrimPrefix(header, "bytes=")
	// only the first range of a multi-range request is honored
	if idx := strings.IndexByte(spec, ','); idx != -1 {
		spec = spec[:idx]
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, nil
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	// suffix form: bytes=-N, last N bytes
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, nil
		}
		if n > size {
			n = size
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		if start >= size {
			return nil, ErrUnsatisfiable
		}
		return &Range{Start: start, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return nil, nil
	}

	// prefix form: bytes=N-
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return nil, nil
		}
	}

	if start < 0 || end < start || start >= size {
		return nil, ErrUnsatisfiable
	}
	if end > size-1 {
		end = size - 1
	}

	return &Range{Start: start, End: end}, nil
}

// ServeFile answers a request for a file with byte-range support. It writes
// 200 with the whole file, 206 with the resolved slice, or 416 when the
// range cannot be satisfied.
func ServeFile(w http.ResponseWriter, r *http.Request, path string, contentType string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	rng, err := Resolve(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	if err != nil {
		return err
	}

	if rng == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		_, err = io.Copy(w, file)
		return err
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		return err
	}

	w.Header().Set("Content-Range", rng.ContentRange(size))
	w.Header().Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err = io.CopyN(w, file, rng.Length())
	return err
}
