package media

import (
	"fmt"
	"strings"
)

// Codecs browsers can play inside an HLS/fMP4 stream without re-encoding.
var (
	playableVideoCodecs = map[string]bool{
		"h264": true,
	}
	playableAudioCodecs = map[string]bool{
		"aac": true,
		"mp3": true,
	}
)

// Assessment classifies what work a file needs before it can be streamed.
type Assessment struct {
	CanTransmux    bool   `json:"canTransmux"`
	NeedsTranscode bool   `json:"needsTranscode"`
	VideoTranscode bool   `json:"videoTranscode"`
	AudioTranscode bool   `json:"audioTranscode"`
	Reason         string `json:"reason,omitempty"`
}

// Assess decides between cheap container repackaging and full re-encoding
// from an already-obtained probe report. It performs no I/O.
func Assess(report *Report) Assessment {
	video := report.VideoStream()
	if video == nil {
		return Assessment{
			Reason: "no video stream present",
		}
	}

	videoPlayable := playableVideoCodecs[video.CodecName]

	audioPlayable := true
	var audioCodec string
	if audio := report.AudioStreams(); len(audio) > 0 {
		audioCodec = audio[0].CodecName
		audioPlayable = playableAudioCodecs[audioCodec]
	}

	if videoPlayable && audioPlayable {
		return Assessment{
			CanTransmux: true,
		}
	}

	var reasons []string
	if !videoPlayable {
		reasons = append(reasons, fmt.Sprintf("video codec %q is not web-playable", video.CodecName))
	}
	if !audioPlayable {
		reasons = append(reasons, fmt.Sprintf("audio codec %q is not web-playable", audioCodec))
	}

	return Assessment{
		NeedsTranscode: true,
		VideoTranscode: !videoPlayable,
		AudioTranscode: !audioPlayable,
		Reason:         strings.Join(reasons, ", "),
	}
}
