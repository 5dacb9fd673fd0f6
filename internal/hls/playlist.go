package hls

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MasterName is the on-disk name of the master manifest; its presence marks
// a stream tree as available.
const MasterName = "master.m3u8"

// MediaPlaylistName is the per-quality playlist name inside each quality
// directory.
const MediaPlaylistName = "playlist.m3u8"

// Quality describes one named rendition for master playlist assembly.
type Quality struct {
	Bandwidth int
	Width     int
	Height    int
}

// qualityTable maps quality names to their advertised bandwidth and
// resolution. "original" is a transmux with unknown true bitrate.
var qualityTable = map[string]Quality{
	"240p":     {Bandwidth: 700_000, Width: 426, Height: 240},
	"360p":     {Bandwidth: 1_200_000, Width: 640, Height: 360},
	"480p":     {Bandwidth: 1_500_000, Width: 854, Height: 480},
	"720p":     {Bandwidth: 2_800_000, Width: 1280, Height: 720},
	"1080p":    {Bandwidth: 5_000_000, Width: 1920, Height: 1080},
	"original": {Bandwidth: 6_000_000},
}

// LookupQuality returns the table entry for a quality name, falling back to
// the "original" entry for unknown names.
func LookupQuality(name string) Quality {
	if q, ok := qualityTable[name]; ok {
		return q
	}
	return qualityTable["original"]
}

// BuildMaster assembles a master playlist from the discovered quality list,
// lowest bandwidth first. A non-empty token is appended to every variant
// reference so sub-requests stay authenticated.
func BuildMaster(qualities []string, token string) string {
	sorted := append([]string(nil), qualities...)
	sort.Slice(sorted, func(i, j int) bool {
		return LookupQuality(sorted[i]).Bandwidth < LookupQuality(sorted[j]).Bandwidth
	})

	playlist := []string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
	}

	for _, name := range sorted {
		q := LookupQuality(name)

		inf := fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d", q.Bandwidth)
		if q.Width > 0 && q.Height > 0 {
			inf += fmt.Sprintf(",RESOLUTION=%dx%d", q.Width, q.Height)
		}
		inf += fmt.Sprintf(",NAME=%s", name)

		playlist = append(playlist, inf, withToken(name+"/"+MediaPlaylistName, token))
	}

	return strings.Join(playlist, "\n") + "\n"
}

// RewriteMediaPlaylist rewrites a quality-level playlist so that segment
// lines point at the fully-qualified segment endpoint and any nested .m3u8
// reference carries the token.
func RewriteMediaPlaylist(content string, segmentBaseURL string, token string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		lines[i] = withToken(strings.TrimSuffix(segmentBaseURL, "/")+"/"+trimmed, token)
	}
	return strings.Join(lines, "\n")
}

func withToken(ref string, token string) string {
	if token == "" {
		return ref
	}

	sep := "?"
	if strings.Contains(ref, "?") {
		sep = "&"
	}
	return ref + sep + "token=" + url.QueryEscape(token)
}

// DiscoverQualities lists the quality directories of a stream tree: every
// subdirectory holding a media playlist, master excluded by construction.
func DiscoverQualities(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var qualities []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), MediaPlaylistName)); err == nil {
			qualities = append(qualities, entry.Name())
		}
	}

	sort.Strings(qualities)
	return qualities, nil
}

// WriteMaster discovers the qualities under dir and persists an untokenized
// master manifest, marking the tree as available.
func WriteMaster(dir string) error {
	qualities, err := DiscoverQualities(dir)
	if err != nil {
		return err
	}
	if len(qualities) == 0 {
		return fmt.Errorf("no quality playlists under %s", dir)
	}

	return os.WriteFile(filepath.Join(dir, MasterName), []byte(BuildMaster(qualities, "")), 0644)
}
