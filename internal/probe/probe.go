// Package probe extracts technical metadata from media files by running
// ffprobe and decoding its JSON output.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Info holds the technical attributes relevant to catalog records
type Info struct {
	Resolution string
	VideoCodec string
	AudioCodec string
	Bitrate    int64
	HDRFormat  string
}

// Prober extracts technical metadata from a file
type Prober interface {
	Probe(ctx context.Context, path string) (*Info, error)
}

// FFProbe probes files with the ffprobe binary
type FFProbe struct {
	Binary string
}

// NewFFProbe creates a prober using the given binary, or "ffprobe" when empty
func NewFFProbe(binary string) *FFProbe {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &FFProbe{Binary: binary}
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecName     string `json:"codec_name"`
	CodecType     string `json:"codec_type"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	ColorTransfer string `json:"color_transfer"`
}

type ffprobeFormat struct {
	BitRate string `json:"bit_rate"`
}

// Probe runs ffprobe against the path and maps the result to Info
func (p *FFProbe) Probe(ctx context.Context, path string) (*Info, error) {
	cmd := exec.CommandContext(ctx, p.Binary,
		"-v", "error", "-hide_banner",
		"-show_format", "-show_streams",
		"-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	return mapInfo(parsed), nil
}

func mapInfo(parsed ffprobeOutput) *Info {
	info := &Info{}

	for _, s := range parsed.Streams {
		switch strings.ToLower(s.CodecType) {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Resolution = resolutionLabel(s.Width, s.Height)
				info.HDRFormat = hdrFromTransfer(s.ColorTransfer)
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}

	if rate, err := strconv.ParseInt(strings.TrimSpace(parsed.Format.BitRate), 10, 64); err == nil && rate > 0 {
		info.Bitrate = rate
	}

	return info
}

// resolutionLabel maps pixel dimensions to the usual release labels
func resolutionLabel(width, height int) string {
	switch {
	case width >= 3800 || height >= 2100:
		return "2160p"
	case width >= 1900 || height >= 1000:
		return "1080p"
	case width >= 1260 || height >= 700:
		return "720p"
	case width > 0 || height > 0:
		return "480p"
	default:
		return ""
	}
}

func hdrFromTransfer(transfer string) string {
	switch strings.ToLower(transfer) {
	case "smpte2084":
		return "HDR10"
	case "arib-std-b67":
		return "HLG"
	default:
		return ""
	}
}
