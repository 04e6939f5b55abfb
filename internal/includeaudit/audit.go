// Package includeaudit implements IncludeAuditor: a per-file dependency
// graph of "includes" and "references" edges, audited at the end of a
// walk to flag includes that serve no reference and references that
// cross an undeclared include boundary.
package includeaudit

import (
	"sort"
	"sync"

	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/types"
)

// dep is one file's node in the dependency graph.
type dep struct {
	file       types.FileID
	includes   map[types.FileID]*dep
	references map[types.FileID]map[location.Location]location.Location // referenced file -> use loc -> decl loc
}

func newDep(file types.FileID) *dep {
	return &dep{
		file:       file,
		includes:   make(map[types.FileID]*dep),
		references: make(map[types.FileID]map[location.Location]location.Location),
	}
}

// Auditor accumulates include/reference edges across a walk of one or more
// translation units and answers Check() with two finding categories:
// unused includes and undeclared-but-used headers.
type Auditor struct {
	mu   sync.Mutex
	deps map[types.FileID]*dep
}

// New creates an empty Auditor.
func New() *Auditor {
	return &Auditor{deps: make(map[types.FileID]*dep)}
}

func (a *Auditor) depFor(file types.FileID) *dep {
	d, ok := a.deps[file]
	if !ok {
		d = newDep(file)
		a.deps[file] = d
	}
	return d
}

// HandleInclude records that source includes included. The caller has
// already resolved the included path to a FileID.
func (a *Auditor) HandleInclude(source, included types.FileID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.depFor(source)
	inc := a.depFor(included)
	s.includes[included] = inc
}

// HandleReference records that a use at loc (in loc.File) resolves to a
// declaration at declLoc, in a different file. A reference within the
// same file is not recorded.
func (a *Auditor) HandleReference(loc, declLoc location.Location) {
	if declLoc.IsNull() || declLoc.File == loc.File {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.depFor(loc.File)
	refDep := a.depFor(declLoc.File)
	byLoc, ok := d.references[refDep.file]
	if !ok {
		byLoc = make(map[location.Location]location.Location)
		d.references[refDep.file] = byLoc
	}
	byLoc[loc] = declLoc
}

// Invalidate drops file's dependency node and every edge pointing at it,
// so a reparsed or removed file doesn't leave stale findings behind.
func (a *Auditor) Invalidate(file types.FileID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.deps, file)
	for _, d := range a.deps {
		delete(d.includes, file)
		delete(d.references, file)
	}
}

// FindingKind classifies a Check() result.
type FindingKind uint8

const (
	UnusedInclude FindingKind = iota
	MissingInclude
)

// Finding is one audit result, matching the two message shapes
// checkIncludes() writes to its connection.
type Finding struct {
	Kind    FindingKind
	Source  types.FileID
	Other   types.FileID
	Reasons []string // for MissingInclude: "loc => declLoc" pairs
}

// opaqueSystemPrefixes are exempted from missing-include findings, exactly
// as checkIncludes() exempts libc's internal type-alias headers.
var opaqueSystemPrefixes = []string{
	"/usr/include/sys/_types/_",
	"/usr/include/_types/_",
}

// Check runs validateNeedsInclude over every include edge and
// validateHasInclude over every reference edge, using pathResolve to turn
// a FileID into a pathutil.Path for the system-path exemptions.
func (a *Auditor) Check(pathResolve func(types.FileID) pathutil.Path) []Finding {
	a.mu.Lock()
	defer a.mu.Unlock()

	var findings []Finding

	fileIDs := make([]types.FileID, 0, len(a.deps))
	for id := range a.deps {
		fileIDs = append(fileIDs, id)
	}
	sort.Slice(fileIDs, func(i, j int) bool { return fileIDs[i] < fileIDs[j] })

	for _, id := range fileIDs {
		d := a.deps[id]
		if pathResolve(id).IsSystem() {
			continue
		}

		includeIDs := sortedKeys(d.includes)
		for _, incID := range includeIDs {
			seen := make(map[types.FileID]bool)
			if !validateNeedsInclude(d, d.includes[incID], seen) {
				findings = append(findings, Finding{Kind: UnusedInclude, Source: id, Other: incID})
			}
		}

		refIDs := sortedKeys(d.references)
		for _, refID := range refIDs {
			refPath := pathResolve(refID)
			if isOpaqueSystemAlias(refPath) {
				continue
			}
			seen := make(map[types.FileID]bool)
			if !validateHasInclude(refID, d, seen) {
				reasons := reasonStrings(d.references[refID])
				findings = append(findings, Finding{Kind: MissingInclude, Source: id, Other: refID, Reasons: reasons})
			}
		}
	}
	return findings
}

func isOpaqueSystemAlias(p pathutil.Path) bool {
	for _, prefix := range opaqueSystemPrefixes {
		if len(string(p)) >= len(prefix) && string(p)[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[types.FileID]V) []types.FileID {
	out := make([]types.FileID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func reasonStrings(byLoc map[location.Location]location.Location) []string {
	out := make([]string, 0, len(byLoc))
	for use, decl := range byLoc {
		out = append(out, locString(use)+" => "+locString(decl))
	}
	sort.Strings(out)
	return out
}

func locString(l location.Location) string {
	return itoa(uint64(l.File)) + ":" + itoa(uint64(l.Line)) + ":" + itoa(uint64(l.Column))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// validateHasInclude walks cur's include graph looking for ref, the same
// recursive DFS-with-seen-set shape as validateNeedsInclude below: the
// seen set is keyed on the node being visited so a cycle in the include
// graph terminates the search instead of looping, while still covering
// the full transitive closure.
func validateHasInclude(ref types.FileID, cur *dep, seen map[types.FileID]bool) bool {
	if _, ok := cur.includes[ref]; ok {
		return true
	}
	if seen[cur.file] {
		return false
	}
	seen[cur.file] = true
	for _, inc := range cur.includes {
		if validateHasInclude(ref, inc, seen) {
			return true
		}
	}
	return false
}

// validateNeedsInclude walks header's include graph looking for any
// reference from source, using a DFS with a seen-set keyed on the
// currently-visited header's fileId.
func validateNeedsInclude(source *dep, header *dep, seen map[types.FileID]bool) bool {
	if seen[header.file] {
		return false
	}
	seen[header.file] = true
	if _, ok := source.references[header.file]; ok {
		return true
	}
	for _, child := range header.includes {
		if validateNeedsInclude(source, child, seen) {
			return true
		}
	}
	return false
}
