package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/probe"
	"github.com/amaumene/fetcharr/internal/relname"
)

type placeOutcome int

const (
	placeTransferred     placeOutcome = iota // copied or moved into the library
	placeReusedKnown                         // destination already a catalog file
	placeReusedUntracked                     // identical untracked file, record only
)

// placeFile resolves destination conflicts and transfers the file.
// Existence checks double as the idempotency guard for retried imports.
func (im *Importer) placeFile(src string, size int64, dest *destination) (placeOutcome, string, error) {
	relPath := filepath.Join(dest.dir, dest.filename)
	absPath := filepath.Join(im.cfg.LibraryDir, relPath)

	existing, err := os.Stat(absPath)
	switch {
	case err == nil && existing.Size() == size:
		// Identical content already in place
		if _, err := im.db.GetMediaFileByPath(relPath); err == nil {
			return placeReusedKnown, relPath, nil
		} else if !models.IsNotFound(err) {
			return 0, "", fmt.Errorf("failed to look up catalog record: %w", err)
		}
		return placeReusedUntracked, relPath, nil

	case err == nil:
		// Different content: keep the existing file and its record,
		// place this one under a uniquified name.
		relPath, absPath, err = im.uniquify(dest)
		if err != nil {
			return 0, "", err
		}

	case !os.IsNotExist(err):
		return 0, "", fmt.Errorf("failed to stat destination: %w", err)
	}

	// A catalog record pointing at a file that is gone from disk is
	// stale; drop it so the fresh import owns the path.
	if stale, err := im.db.GetMediaFileByPath(relPath); err == nil {
		if err := im.db.DeleteMediaFile(stale.ID); err != nil {
			return 0, "", fmt.Errorf("failed to drop stale catalog record: %w", err)
		}
		im.logger.WithField("path", relPath).Info("Replaced stale catalog record")
	} else if !models.IsNotFound(err) {
		return 0, "", fmt.Errorf("failed to look up catalog record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return 0, "", fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := im.transfer(src, absPath); err != nil {
		return 0, "", err
	}
	return placeTransferred, relPath, nil
}

// uniquify finds a free suffixed variant of the destination file name
func (im *Importer) uniquify(dest *destination) (string, string, error) {
	ext := filepath.Ext(dest.filename)
	stem := strings.TrimSuffix(dest.filename, ext)

	for i := 1; i < 1000; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		relPath := filepath.Join(dest.dir, candidate)
		absPath := filepath.Join(im.cfg.LibraryDir, relPath)
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			return relPath, absPath, nil
		} else if err != nil && !os.IsNotExist(err) {
			return "", "", fmt.Errorf("failed to stat %s: %w", absPath, err)
		}
	}
	return "", "", fmt.Errorf("no free name for %s", dest.filename)
}

// transfer applies the copy-or-move policy. Move renames, and falls back
// to copy-then-delete when the rename crosses devices.
func (im *Importer) transfer(src, dst string) error {
	if models.ImportMode(im.cfg.ImportMode) == models.ImportModeMove {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
		return os.Remove(src)
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to finish copy: %w", err)
	}
	return nil
}

// parsedTechnical extracts technical attributes from a file name, used
// when probing fails or comes back incomplete.
func parsedTechnical(name string) *probe.Info {
	rel := relname.Parse(name)
	return &probe.Info{
		Resolution: rel.Resolution,
		VideoCodec: rel.VideoCodec,
		AudioCodec: relname.AudioCodec(name),
		HDRFormat:  relname.HDRFormat(name),
	}
}
