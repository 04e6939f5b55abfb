// Package location interns Paths into small FileIDs and defines the
// (Path, line, column) triple used throughout the pipeline.
package location

import (
	"sync"

	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/types"
)

// Location is a (Path, line, column) triple. Line and column are 1-based;
// a zero line or column means "null".
type Location struct {
	File   types.FileID
	Line   uint32
	Column uint32
}

// Null is the zero value: no line and no column.
var Null = Location{}

// IsNull reports whether the location carries no line/column information.
func (l Location) IsNull() bool {
	return l.Line == 0 || l.Column == 0
}

// Less orders locations by file, then line, then column, giving a stable
// sort order for children keyed by (kind, name, location).
func (l Location) Less(other Location) bool {
	if l.File != other.File {
		return l.File < other.File
	}
	if l.Line != other.Line {
		return l.Line < other.Line
	}
	return l.Column < other.Column
}

// Table is the process-wide Path<->FileID interning table: a single
// mutex guards O(1) amortised interning, and storage uses the same
// parallel-array-plus-index shape used elsewhere in this codebase,
// generalized from symbols to paths.
type Table struct {
	mu       sync.Mutex
	paths    []pathutil.Path
	byPath   map[pathutil.Path]types.FileID
}

// NewTable creates an empty interning table. FileID 0 is reserved as
// types.NullFileID and is never assigned to a real path.
func NewTable() *Table {
	return &Table{
		paths:  make([]pathutil.Path, 1, 64), // index 0 stays the zero Path
		byPath: make(map[pathutil.Path]types.FileID, 64),
	}
}

// Intern returns the FileID for p, allocating a new one if p hasn't been
// seen before.
func (t *Table) Intern(p pathutil.Path) types.FileID {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.byPath[p]; ok {
		return id
	}
	id := types.FileID(len(t.paths))
	t.paths = append(t.paths, p)
	t.byPath[p] = id
	return id
}

// Path returns the path interned as id, or "" if id is unknown.
func (t *Table) Path(id types.FileID) pathutil.Path {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(id) >= len(t.paths) {
		return ""
	}
	return t.paths[id]
}

// Lookup returns the FileID already assigned to p, if any, without
// interning it.
func (t *Table) Lookup(p pathutil.Path) (types.FileID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byPath[p]
	return id, ok
}
