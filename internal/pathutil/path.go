// Package pathutil provides the resolved, canonical filesystem Path type
// used everywhere in the pipeline instead of bare strings, so a caller
// can't accidentally mix a relative path with an already-resolved one.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Path is a resolved, canonical absolute filesystem path. For paths that
// exist, two Paths built by Resolve compare equal (via ==) iff they
// resolve to the same filesystem object, because Resolve runs the string
// through filepath.Abs + EvalSymlinks; a path that does not exist yet is
// only cleaned and made absolute.
type Path string

// Resolve turns raw into a canonical absolute Path. Symlinks are followed
// so two different symlink chains to the same file produce the same Path.
func Resolve(raw string) (Path, error) {
	if raw == "" {
		return "", os.ErrInvalid
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The file may not exist yet (e.g. a load target); fall back to
		// the cleaned absolute path rather than failing resolution.
		return Path(filepath.Clean(abs)), nil
	}
	return Path(real), nil
}

// MustResolve is Resolve without the error, for call sites that already
// know raw is well-formed (tests, constants).
func MustResolve(raw string) Path {
	p, err := Resolve(raw)
	if err != nil {
		return Path(filepath.Clean(raw))
	}
	return p
}

// IsFile reports whether the path exists and is a regular file.
func (p Path) IsFile() bool {
	info, err := os.Stat(string(p))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Exists reports whether anything exists at the path.
func (p Path) Exists() bool {
	_, err := os.Stat(string(p))
	return err == nil
}

// ParentDir returns the Path's containing directory.
func (p Path) ParentDir() Path {
	return Path(filepath.Dir(string(p)))
}

// String satisfies fmt.Stringer.
func (p Path) String() string {
	return string(p)
}

// systemPrefixes are directories whose files the include auditor never
// audits as the including file, since they're pulled in transitively by
// nearly every translation unit and rarely worth auditing. An include of
// a system header from a project file is still audited.
var systemPrefixes = []string{
	"/usr/include",
	"/usr/local/include",
}

// IsSystem reports whether the path lives under a known system include
// directory.
func (p Path) IsSystem() bool {
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(string(p), prefix) {
			return true
		}
	}
	return false
}

// Contains reports whether substr occurs anywhere in the path string.
func (p Path) Contains(substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(string(p), substr)
}

// ASTBlobPath lays source out under astDir the way spec §6 describes:
// "<app-dir>/ast/<absolute-source-path>". astDir is already the
// "<app-dir>/ast" portion (config.Scratch.ASTDir); source is always
// absolute, so the join simply nests the whole path under astDir.
func ASTBlobPath(astDir string, source Path) Path {
	return Path(filepath.Join(astDir, string(source)))
}
