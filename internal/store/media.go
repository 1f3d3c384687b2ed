package store

import (
	"os"
	"path/filepath"

	"github.com/frozenspider/chat-history-manager-go/internal/apperror"
	"github.com/frozenspider/chat-history-manager-go/internal/model"
)

// resolveAndCopyMedia implements the media copying contract of spec.md
// §4.1: resolve path against srcRoot; if present, copy to destRoot under a
// path derived from destRelDir and the original file name, and rewrite the
// returned MediaPath to the destination-relative form. If absent, the path
// is preserved verbatim and becomes a not-found marker in the destination.
// File-copy failures are fatal (apperror.MediaIOError) to the enclosing
// operation, as required by spec.md §4.1 and §7.
func resolveAndCopyMedia(mp model.MediaPath, srcRoot, destRoot, destRelDir string) (model.MediaPath, error) {
	if mp.Absent() {
		return mp, nil
	}
	srcPath := filepath.Join(srcRoot, mp.Path)
	info, statErr := os.Stat(srcPath)
	if statErr != nil || info.IsDir() {
		// Source file doesn't exist: preserve path verbatim, not-found.
		return model.MediaPath{Set: true, Path: mp.Path, Found: false}, nil
	}

	destRel := filepath.Join(destRelDir, filepath.Base(mp.Path))
	destPath := filepath.Join(destRoot, destRel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return model.MediaPath{}, apperror.MediaIO(srcPath, err)
	}
	if err := copyFile(srcPath, destPath); err != nil {
		return model.MediaPath{}, apperror.MediaIO(srcPath, err)
	}
	return model.MediaPath{Set: true, Path: filepath.ToSlash(destRel), Found: true}, nil
}
