package fs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"charrag/internal/port"
)

// DefinitionPatterns match every format LoadCharacter understands.
var DefinitionPatterns = []string{"**/*.yaml", "**/*.yml", "**/*.json"}

// Walker finds character definition files with doublestar patterns
// relative to the walked root. Files whose extension is not a known
// definition format are never returned, whatever the patterns say.
type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = DefinitionPatterns
	}
	return &Walker{
		includes: validPatterns(includes),
		excludes: validPatterns(excludes),
	}
}

var _ port.FileWalker = (*Walker)(nil)

// validPatterns drops malformed globs so they cannot match by accident.
func validPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if doublestar.ValidatePattern(p) {
			out = append(out, filepath.ToSlash(p))
		}
	}
	return out
}

// Walk returns matching definitions in lexical order. A missing root yields
// no files rather than an error, so a fresh project has no characters.
func (w *Walker) Walk(root string) ([]port.FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var files []port.FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && w.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.Matches(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, port.FileInfo{
			Path:    path,
			Format:  DefinitionFormat(path),
			ModTime: info.ModTime().Unix(),
			Size:    info.Size(),
		})
		return nil
	})
	return files, err
}

// Matches reports whether a slash-separated path relative to the walked
// root is a definition file passing the include and exclude rules.
func (w *Walker) Matches(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	if DefinitionFormat(relPath) == "" {
		return false
	}
	return w.included(relPath) && !w.excluded(relPath)
}

func (w *Walker) included(path string) bool {
	return matchAny(w.includes, path)
}

func (w *Walker) excluded(path string) bool {
	return matchAny(w.excludes, path)
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, path); err == nil && ok {
			return true
		}
	}
	return false
}

// DefinitionFormat maps a file name to "yaml" or "json", or "" when the
// extension is not a definition format.
func DefinitionFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	}
	return ""
}
