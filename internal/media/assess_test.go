package media

import (
	"strings"
	"testing"
)

func reportWith(videoCodec, audioCodec string) *Report {
	r := &Report{}
	if videoCodec != "" {
		r.Streams = append(r.Streams, Stream{Index: 0, CodecType: "video", CodecName: videoCodec})
	}
	if audioCodec != "" {
		r.Streams = append(r.Streams, Stream{Index: 1, CodecType: "audio", CodecName: audioCodec})
	}
	return r
}

func TestAssess(t *testing.T) {
	t.Run("h264 with aac can transmux", func(t *testing.T) {
		a := Assess(reportWith("h264", "aac"))
		if !a.CanTransmux || a.NeedsTranscode {
			t.Errorf("unexpected assessment: %+v", a)
		}
	})

	t.Run("h264 without audio can transmux", func(t *testing.T) {
		a := Assess(reportWith("h264", ""))
		if !a.CanTransmux {
			t.Errorf("unexpected assessment: %+v", a)
		}
	})

	t.Run("hevc with flac needs both transcoded", func(t *testing.T) {
		a := Assess(reportWith("hevc", "flac"))
		if a.CanTransmux {
			t.Error("hevc+flac must not be transmuxable")
		}
		if !a.NeedsTranscode || !a.VideoTranscode || !a.AudioTranscode {
			t.Errorf("unexpected flags: %+v", a)
		}
		if !strings.Contains(a.Reason, "hevc") || !strings.Contains(a.Reason, "flac") {
			t.Errorf("reason does not name the codecs: %q", a.Reason)
		}
	})

	t.Run("h264 with opus needs only audio transcoded", func(t *testing.T) {
		a := Assess(reportWith("h264", "opus"))
		if a.CanTransmux || a.VideoTranscode || !a.AudioTranscode {
			t.Errorf("unexpected assessment: %+v", a)
		}
	})

	t.Run("no video stream yields neither path", func(t *testing.T) {
		a := Assess(reportWith("", "mp3"))
		if a.CanTransmux || a.NeedsTranscode {
			t.Errorf("unexpected assessment: %+v", a)
		}
		if a.Reason == "" {
			t.Error("expected a reason for the audio-only case")
		}
	})
}
