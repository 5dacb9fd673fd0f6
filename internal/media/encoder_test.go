package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestParseDurationLine(t *testing.T) {
	cases := []struct {
		line   string
		wantUs int64
		wantOk bool
	}{
		{"  Duration: 00:01:30.05, start: 0.000000, bitrate: 4500 kb/s", 90050000, true},
		{"Duration: 01:00:00.00", 3600000000, true},
		{"  Duration: N/A, start: 0.000000", 0, false},
		{"frame=  100 fps= 25", 0, false},
		{"", 0, false},
	}

	for _, c := range cases {
		got, ok := parseDurationLine(c.line)
		if ok != c.wantOk || got != c.wantUs {
			t.Errorf("parseDurationLine(%q) = (%d, %v), want (%d, %v)", c.line, got, ok, c.wantUs, c.wantOk)
		}
	}
}

func TestParseOutTimeLine(t *testing.T) {
	cases := []struct {
		line   string
		wantUs int64
		wantOk bool
	}{
		{"out_time_us=45025000", 45025000, true},
		{"out_time_us=0", 0, true},
		{"out_time=00:00:45.025000", 0, false},
		{"progress=continue", 0, false},
		{"out_time_us=abc", 0, false},
	}

	for _, c := range cases {
		got, ok := parseOutTimeLine(c.line)
		if ok != c.wantOk || got != c.wantUs {
			t.Errorf("parseOutTimeLine(%q) = (%d, %v), want (%d, %v)", c.line, got, ok, c.wantUs, c.wantOk)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	if got, ok := parseTimestamp("00:00:06.00"); !ok || got != 6 {
		t.Errorf("parseTimestamp = (%v, %v), want (6, true)", got, ok)
	}
	if _, ok := parseTimestamp("6.00"); ok {
		t.Error("expected failure for missing fields")
	}
}

func TestEncodeHLSCapturesTrailingStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}

	dir := t.TempDir()
	stub := filepath.Join(dir, "fake-ffmpeg")
	script := `#!/bin/sh
i=0
while [ $i -lt 50 ]; do
  echo "noise $i" >&2
  i=$((i+1))
done
echo "Error opening output: permission denied" >&2
exit 1
`
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	encoder := NewEncoder(stub)
	session, err := encoder.EncodeHLS(context.Background(), EncodeOptions{
		InputPath:    filepath.Join(dir, "in.mkv"),
		OutputDir:    dir,
		PlaylistName: "playlist.m3u8",
		Height:       720,
		VideoBitrate: "2500k",
		AudioBitrate: "128k",
	})
	if err != nil {
		t.Fatal(err)
	}

	for range session.Progress() {
	}

	waitErr := session.Wait()
	var exitErr *ExitError
	if !errors.As(waitErr, &exitErr) {
		t.Fatalf("Wait() = %v, want *ExitError", waitErr)
	}
	if !strings.Contains(exitErr.Stderr, "Error opening output: permission denied") {
		t.Errorf("stderr missing final line:\n%s", exitErr.Stderr)
	}
}
