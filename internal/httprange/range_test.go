package httprange

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Run("exact range", func(t *testing.T) {
		rng, err := Resolve("bytes=100-199", 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rng == nil || rng.Start != 100 || rng.End != 199 {
			t.Errorf("Resolve(bytes=100-199, 1000) = %v, want [100,199]", rng)
		}
		if rng.Length() != 100 {
			t.Errorf("Length() = %d, want 100", rng.Length())
		}
		if got := rng.ContentRange(1000); got != "bytes 100-199/1000" {
			t.Errorf("ContentRange() = %q", got)
		}
	})

	t.Run("prefix form extends to end", func(t *testing.T) {
		rng, err := Resolve("bytes=500-", 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rng.Start != 500 || rng.End != 999 {
			t.Errorf("got [%d,%d], want [500,999]", rng.Start, rng.End)
		}
	})

	t.Run("suffix form", func(t *testing.T) {
		rng, err := Resolve("bytes=-200", 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rng.Start != 800 || rng.End != 999 {
			t.Errorf("got [%d,%d], want [800,999]", rng.Start, rng.End)
		}
	})

	t.Run("oversized suffix falls back to whole file", func(t *testing.T) {
		for _, n := range []string{"bytes=-1000", "bytes=-1001", "bytes=-99999"} {
			rng, err := Resolve(n, 1000)
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", n, err)
			}
			if rng.Start != 0 || rng.End != 999 {
				t.Errorf("Resolve(%q) = [%d,%d], want [0,999]", n, rng.Start, rng.End)
			}
		}
	})

	t.Run("start beyond size is unsatisfiable", func(t *testing.T) {
		_, err := Resolve("bytes=2000-", 1000)
		if !errors.Is(err, ErrUnsatisfiable) {
			t.Errorf("want ErrUnsatisfiable, got %v", err)
		}
	})

	t.Run("inverted range is unsatisfiable", func(t *testing.T) {
		_, err := Resolve("bytes=200-100", 1000)
		if !errors.Is(err, ErrUnsatisfiable) {
			t.Errorf("want ErrUnsatisfiable, got %v", err)
		}
	})

	t.Run("end clamped to size", func(t *testing.T) {
		rng, err := Resolve("bytes=900-5000", 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rng.Start != 900 || rng.End != 999 {
			t.Errorf("got [%d,%d], want [900,999]", rng.Start, rng.End)
		}
	})

	t.Run("missing or malformed header serves full resource", func(t *testing.T) {
		for _, h := range []string{"", "bytes=", "bytes=abc-def", "items=0-10", "bytes=-", "bytes"} {
			rng, err := Resolve(h, 1000)
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", h, err)
			}
			if rng != nil {
				t.Errorf("Resolve(%q) = %v, want nil", h, rng)
			}
		}
	})

	t.Run("only first range of multi-range is used", func(t *testing.T) {
		rng, err := Resolve("bytes=0-99,200-299", 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rng.Start != 0 || rng.End != 99 {
			t.Errorf("got [%d,%d], want [0,99]", rng.Start, rng.End)
		}
	})
}

func TestServeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("partial content", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/files/1/download", nil)
		r.Header.Set("Range", "bytes=100-199")
		w := httptest.NewRecorder()

		if err := ServeFile(w, r, path, "application/octet-stream"); err != nil {
			t.Fatal(err)
		}

		res := w.Result()
		if res.StatusCode != 206 {
			t.Errorf("status = %d, want 206", res.StatusCode)
		}
		if got := res.Header.Get("Content-Range"); got != "bytes 100-199/1000" {
			t.Errorf("Content-Range = %q", got)
		}
		body := w.Body.Bytes()
		if len(body) != 100 {
			t.Fatalf("body length = %d, want 100", len(body))
		}
		for i, b := range body {
			if b != content[100+i] {
				t.Fatalf("body[%d] = %d, want %d", i, b, content[100+i])
			}
		}
	})

	t.Run("unsatisfiable range", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/files/1/download", nil)
		r.Header.Set("Range", "bytes=2000-")
		w := httptest.NewRecorder()

		if err := ServeFile(w, r, path, ""); err != nil {
			t.Fatal(err)
		}

		res := w.Result()
		if res.StatusCode != 416 {
			t.Errorf("status = %d, want 416", res.StatusCode)
		}
		if got := res.Header.Get("Content-Range"); got != "bytes */1000" {
			t.Errorf("Content-Range = %q", got)
		}
	})

	t.Run("no range serves whole file", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/files/1/download", nil)
		w := httptest.NewRecorder()

		if err := ServeFile(w, r, path, ""); err != nil {
			t.Fatal(err)
		}

		res := w.Result()
		if res.StatusCode != 200 {
			t.Errorf("status = %d, want 200", res.StatusCode)
		}
		if res.Header.Get("Accept-Ranges") != "bytes" {
			t.Error("missing Accept-Ranges header")
		}
		if w.Body.Len() != 1000 {
			t.Errorf("body length = %d, want 1000", w.Body.Len())
		}
	})
}
