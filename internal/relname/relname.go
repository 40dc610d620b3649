// Package relname extracts structured attributes from release and file
// names: season/episode numbers, resolution, codecs, HDR format and the
// release group. It backs both the season-pack shape checks in the
// ranker and the filename fallback path of the import pipeline.
package relname

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cehbz/torrentname"
)

// Release holds the attributes parsed from a release or file name
type Release struct {
	Title        string
	Year         int
	Season       int // 0 when absent
	Episode      int // 0 when absent
	IsSeasonPack bool
	Resolution   string
	VideoCodec   string
	Source       string
}

var (
	episodeMarker    = regexp.MustCompile(`(?i)\bS(\d{1,2})[\s._-]?E(\d{1,3})\b`)
	seasonMarker     = regexp.MustCompile(`(?i)\bS(\d{1,2})\b`)
	yearRegex        = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	releaseGroupTail = regexp.MustCompile(`-([A-Za-z0-9]+)$`)
)

// Parse extracts release attributes from a name. The torrentname parser
// does the heavy lifting; the season/episode markers are re-checked with
// the stricter patterns used by the season-pack filter so a pack-shaped
// title is never mistaken for a single episode.
func Parse(name string) Release {
	base := stripExtension(name)

	rel := Release{}
	if parsed := torrentname.Parse(base); parsed != nil {
		rel.Title = parsed.Title
		rel.Year = parsed.Year
		rel.Resolution = parsed.Resolution
		rel.VideoCodec = parsed.Codec
		rel.Source = parsed.Source
		if parsed.Season > 0 {
			rel.Season = parsed.Season
		}
		if parsed.Episode > 0 {
			rel.Episode = parsed.Episode
		}
	}

	if m := episodeMarker.FindStringSubmatch(base); m != nil {
		season, _ := strconv.Atoi(m[1])
		episode, _ := strconv.Atoi(m[2])
		rel.Season = season
		rel.Episode = episode
	} else if m := seasonMarker.FindStringSubmatch(base); m != nil {
		season, _ := strconv.Atoi(m[1])
		rel.Season = season
		rel.Episode = 0
		rel.IsSeasonPack = true
	}

	if rel.Year == 0 {
		rel.Year = ExtractYear(base)
	}

	return rel
}

// HasSeasonMarker reports whether a title carries a season marker (S03)
func HasSeasonMarker(title string) bool {
	return seasonMarker.MatchString(title)
}

// HasEpisodeMarker reports whether a title carries a per-episode marker (S03E07)
func HasEpisodeMarker(title string) bool {
	return episodeMarker.MatchString(title)
}

// IsSeasonPackShaped reports whether a title looks like a season pack:
// it must contain a season marker and no per-episode marker. This keeps
// a release that looks like a pack but is actually a single episode out
// of pack ranking.
func IsSeasonPackShaped(title string) bool {
	return HasSeasonMarker(title) && !HasEpisodeMarker(title)
}

// ExtractYear extracts a 4-digit year from a release title.
// Returns 0 if no year is found.
func ExtractYear(title string) int {
	matches := yearRegex.FindStringSubmatch(title)
	if len(matches) > 1 {
		year, err := strconv.Atoi(matches[1])
		if err == nil {
			return year
		}
	}
	return 0
}

// ReleaseGroup extracts the trailing release group tag, e.g. "-NTb"
func ReleaseGroup(name string) string {
	base := stripExtension(name)
	if m := releaseGroupTail.FindStringSubmatch(base); m != nil {
		return m[1]
	}
	return ""
}

// audioPatterns are ordered most specific first
var audioPatterns = []struct {
	pattern *regexp.Regexp
	codec   string
}{
	{regexp.MustCompile(`(?i)\b(ddp|dd\+|e-?ac-?3)`), "EAC3"},
	{regexp.MustCompile(`(?i)\btruehd\b`), "TrueHD"},
	{regexp.MustCompile(`(?i)\bdts-?hd\b`), "DTS-HD"},
	{regexp.MustCompile(`(?i)\bdts\b`), "DTS"},
	{regexp.MustCompile(`(?i)\b(dd[\s.]?\d|ac-?3)\b`), "AC3"},
	{regexp.MustCompile(`(?i)\baac\b`), "AAC"},
	{regexp.MustCompile(`(?i)\bopus\b`), "Opus"},
	{regexp.MustCompile(`(?i)\bflac\b`), "FLAC"},
}

// AudioCodec extracts the audio codec tag from a release name
func AudioCodec(name string) string {
	for _, p := range audioPatterns {
		if p.pattern.MatchString(name) {
			return p.codec
		}
	}
	return ""
}

var hdrPatterns = []struct {
	pattern *regexp.Regexp
	format  string
}{
	{regexp.MustCompile(`(?i)\b(dv|dovi|dolby[\s._-]?vision)\b`), "DV"},
	{regexp.MustCompile(`(?i)\bhdr10\+`), "HDR10+"},
	{regexp.MustCompile(`(?i)\bhdr10\b`), "HDR10"},
	{regexp.MustCompile(`(?i)\bhlg\b`), "HLG"},
	{regexp.MustCompile(`(?i)\bhdr\b`), "HDR"},
}

// HDRFormat extracts the HDR format tag from a release name
func HDRFormat(name string) string {
	for _, p := range hdrPatterns {
		if p.pattern.MatchString(name) {
			return p.format
		}
	}
	return ""
}

func stripExtension(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	// Only strip extensions that look like file suffixes, not ".The.Wire"
	if len(ext) >= 3 && len(ext) <= 5 && !strings.ContainsAny(ext, " ") {
		switch strings.ToLower(ext) {
		case ".mkv", ".mp4", ".avi", ".m4v", ".mov", ".wmv", ".ts", ".webm", ".nzb":
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}
