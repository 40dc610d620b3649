package probe

import "testing"

func TestMapInfo(t *testing.T) {
	parsed := ffprobeOutput{
		Streams: []ffprobeStream{
			{CodecType: "video", CodecName: "hevc", Width: 3840, Height: 2160, ColorTransfer: "smpte2084"},
			{CodecType: "audio", CodecName: "eac3"},
			{CodecType: "audio", CodecName: "aac"},
		},
		Format: ffprobeFormat{BitRate: "15000000"},
	}

	info := mapInfo(parsed)

	if info.Resolution != "2160p" {
		t.Errorf("expected 2160p, got %q", info.Resolution)
	}
	if info.VideoCodec != "hevc" {
		t.Errorf("expected hevc, got %q", info.VideoCodec)
	}
	if info.AudioCodec != "eac3" {
		t.Errorf("expected first audio stream eac3, got %q", info.AudioCodec)
	}
	if info.Bitrate != 15000000 {
		t.Errorf("expected bitrate 15000000, got %d", info.Bitrate)
	}
	if info.HDRFormat != "HDR10" {
		t.Errorf("expected HDR10, got %q", info.HDRFormat)
	}
}

func TestResolutionLabel(t *testing.T) {
	cases := []struct {
		w, h int
		want string
	}{
		{3840, 2160, "2160p"},
		{1920, 1080, "1080p"},
		{1920, 800, "1080p"}, // scope aspect ratio
		{1280, 720, "720p"},
		{720, 480, "480p"},
		{0, 0, ""},
	}

	for _, c := range cases {
		if got := resolutionLabel(c.w, c.h); got != c.want {
			t.Errorf("resolutionLabel(%d, %d) = %q, want %q", c.w, c.h, got, c.want)
		}
	}
}
