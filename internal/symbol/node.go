// Package symbol implements the SymbolNode forest: a tagged, hierarchical
// store of declarations/references per file, rooted at a single Root
// node.
package symbol

import (
	"regexp"
	"strings"
	"sync"

	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/types"
)

// Node is one entry in the forest: a declaration, definition, or
// reference produced while walking a translation unit.
type Node struct {
	ID       types.NodeID
	Kind     types.SymbolKind
	Name     string
	Location location.Location

	parent   types.NodeID
	children []types.NodeID

	// Non-owning cross-reference edges. These are ids, not pointers, so
	// an invalidated target silently resolves to NullNodeID instead of
	// keeping the target node alive.
	Referenced          types.NodeID
	Canonical           types.NodeID
	SpecializedTemplate types.NodeID
	Definition          types.NodeID
	Overridden          []types.NodeID
}

// key is the (kind, name, location) triple children of a parent are
// deduplicated on.
type key struct {
	kind types.SymbolKind
	name string
	loc  location.Location
}

// Forest owns the node arena, using a parallel-array-plus-index shape
// with parent/child edges. A single RWMutex guards it: each mutating
// call (EnsureChild, Invalidate) takes the write lock for its own
// duration, and the read accessors (Lookup, Files, Get, ...) take the
// read lock, so goroutines never need to rendezvous through a channel
// just to share this state.
type Forest struct {
	mu sync.RWMutex

	nodes    []*Node // index 0 is unused; NodeID 0 means "no node"
	byID     map[types.NodeID]int
	nextID   types.NodeID
	children map[types.NodeID]map[key]types.NodeID // parent -> key -> child id
	byFile   map[types.FileID]map[types.NodeID]bool
	byName   map[string]map[types.NodeID]bool // declaration spelling -> node ids, across every file
}

// NewForest creates an empty forest with a single Root node (id 1).
func NewForest() *Forest {
	f := &Forest{
		nodes:    make([]*Node, 1, 256),
		byID:     make(map[types.NodeID]int, 256),
		nextID:   1,
		children: make(map[types.NodeID]map[key]types.NodeID),
		byFile:   make(map[types.FileID]map[types.NodeID]bool),
		byName:   make(map[string]map[types.NodeID]bool),
	}
	root := &Node{ID: f.allocID(), Kind: types.KindRoot}
	f.insert(root)
	return f
}

// RootID is always 1 -- the single root every non-root node descends from.
const RootID types.NodeID = 1

func (f *Forest) allocID() types.NodeID {
	id := f.nextID
	f.nextID++
	return id
}

func (f *Forest) insert(n *Node) {
	f.byID[n.ID] = len(f.nodes)
	f.nodes = append(f.nodes, n)
	if !n.Location.IsNull() {
		set, ok := f.byFile[n.Location.File]
		if !ok {
			set = make(map[types.NodeID]bool)
			f.byFile[n.Location.File] = set
		}
		set[n.ID] = true
	}
	if n.Kind != types.KindRoot && n.Kind != types.KindReference && n.Name != "" {
		byName, ok := f.byName[n.Name]
		if !ok {
			byName = make(map[types.NodeID]bool)
			f.byName[n.Name] = byName
		}
		byName[n.ID] = true
	}
}

// get is the unlocked accessor every other method builds on; callers
// must already hold f.mu.
func (f *Forest) get(id types.NodeID) *Node {
	if id == types.NullNodeID {
		return nil
	}
	idx, ok := f.byID[id]
	if !ok {
		return nil
	}
	return f.nodes[idx]
}

// Get returns the node for id, or nil if it doesn't exist (or was
// invalidated). The returned Node must not be mutated by the caller.
func (f *Forest) Get(id types.NodeID) *Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.get(id)
}

// Children returns the ordered child ids of parent, in insertion order.
func (f *Forest) Children(parent types.NodeID) []types.NodeID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p := f.get(parent)
	if p == nil {
		return nil
	}
	return p.children
}

// EnsureChild returns the existing child of parent matching
// (kind, name, loc), or creates and links a new one. This is how ancestor
// nodes get created on demand while walking a translation unit. Only
// VisitWorker's goroutine calls this.
func (f *Forest) EnsureChild(parent types.NodeID, kind types.SymbolKind, name string, loc location.Location) *Node {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key{kind: kind, name: name, loc: loc}
	byKey, ok := f.children[parent]
	if !ok {
		byKey = make(map[key]types.NodeID)
		f.children[parent] = byKey
	}
	if id, ok := byKey[k]; ok {
		if existing := f.get(id); existing != nil {
			return existing
		}
		delete(byKey, k) // stale: the old node was invalidated, fall through
	}

	n := &Node{ID: f.allocID(), Kind: kind, Name: name, Location: loc, parent: parent}
	f.insert(n)
	byKey[k] = n.ID

	if p := f.get(parent); p != nil {
		p.children = append(p.children, n.ID)
	}
	return n
}

// FindDeclaration looks up a previously-indexed declaration by spelling,
// across every file VisitWorker has walked so far -- the cross-TU
// fallback a use in one translation unit needs when tree-sitter's
// per-file byName table (scoped to the single file it parsed) has no
// match, e.g. a call to a function declared in a header that isn't the
// current TU's own source file. Ties (multiple declarations sharing a
// name, such as overloads) resolve to the lowest NodeID, the first one
// indexed, for a deterministic answer.
func (f *Forest) FindDeclaration(name string) (*Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids, ok := f.byName[name]
	if !ok || len(ids) == 0 {
		return nil, false
	}
	var best types.NodeID
	for id := range ids {
		if best == 0 || id < best {
			best = id
		}
	}
	n := f.get(best)
	if n == nil {
		return nil, false
	}
	return n, true
}

// Parent returns the parent id of n, or NullNodeID for the root.
func (f *Forest) Parent(id types.NodeID) types.NodeID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := f.get(id)
	if n == nil {
		return types.NullNodeID
	}
	return n.parent
}

// qualifiedName is the unlocked form QualifiedName, Lookup and PrintTree
// all share.
func (f *Forest) qualifiedName(id types.NodeID) string {
	var parts []string
	for cur := id; cur != types.NullNodeID && cur != RootID; {
		n := f.get(cur)
		if n == nil {
			break
		}
		parts = append([]string{n.Name}, parts...)
		cur = n.parent
	}
	return strings.Join(parts, ".")
}

// QualifiedName returns the dotted concatenation of ancestor names from
// Root down to id.
func (f *Forest) QualifiedName(id types.NodeID) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.qualifiedName(id)
}

// Files returns the set of FileIDs currently represented in the forest.
func (f *Forest) Files() map[types.FileID]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[types.FileID]bool, len(f.byFile))
	for id := range f.byFile {
		out[id] = true
	}
	return out
}

// Invalidate drops every node whose location is in file: dangling
// children are lifted to Root if their own location differs from file,
// otherwise dropped too. Outbound non-owning edges pointing at deleted
// nodes are replaced with NullNodeID. Called from VisitWorker's goroutine
// and, through VisitWorker.InvalidateSync, from the Query facade's.
func (f *Forest) Invalidate(file types.FileID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	toRemove, ok := f.byFile[file]
	if !ok || len(toRemove) == 0 {
		return
	}

	// First pass: detach children of removed nodes.
	for id := range toRemove {
		n := f.get(id)
		if n == nil {
			continue
		}
		for _, childID := range n.children {
			child := f.get(childID)
			if child == nil {
				continue
			}
			if child.Location.File == file {
				continue // it's being removed too, handled below
			}
			// Lift to Root.
			child.parent = RootID
			if root := f.get(RootID); root != nil {
				root.children = append(root.children, childID)
			}
			rootKeys, ok := f.children[RootID]
			if !ok {
				rootKeys = make(map[key]types.NodeID)
				f.children[RootID] = rootKeys
			}
			rootKeys[key{kind: child.Kind, name: child.Name, loc: child.Location}] = childID
		}
		if p := f.get(n.parent); p != nil {
			p.children = removeID(p.children, id)
		}
	}

	// Second pass: actually delete the nodes.
	for id := range toRemove {
		f.remove(id)
	}
	delete(f.byFile, file)

	// Third pass: null out dangling non-owning edges everywhere.
	for _, n := range f.nodes {
		if n == nil {
			continue
		}
		if f.get(n.Referenced) == nil {
			n.Referenced = types.NullNodeID
		}
		if f.get(n.Canonical) == nil {
			n.Canonical = types.NullNodeID
		}
		if f.get(n.SpecializedTemplate) == nil {
			n.SpecializedTemplate = types.NullNodeID
		}
		if f.get(n.Definition) == nil {
			n.Definition = types.NullNodeID
		}
		filtered := n.Overridden[:0]
		for _, o := range n.Overridden {
			if f.get(o) != nil {
				filtered = append(filtered, o)
			}
		}
		n.Overridden = filtered
	}
}

func removeID(ids []types.NodeID, target types.NodeID) []types.NodeID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// remove does swap-and-delete from the parallel array. Caller must hold
// f.mu.
func (f *Forest) remove(id types.NodeID) {
	idx, ok := f.byID[id]
	if !ok {
		return
	}
	removed := f.nodes[idx]
	lastIdx := len(f.nodes) - 1
	lastNode := f.nodes[lastIdx]

	f.nodes[idx] = lastNode
	f.byID[lastNode.ID] = idx

	f.nodes = f.nodes[:lastIdx]
	delete(f.byID, id)
	delete(f.children, id)
	if byName, ok := f.byName[removed.Name]; ok {
		delete(byName, id)
		if len(byName) == 0 {
			delete(f.byName, removed.Name)
		}
	}
}

// Flag controls lookup matching semantics.
type Flag uint8

const (
	// FlagRegExp uses regular-expression matching instead of substring.
	FlagRegExp Flag = 1 << iota
)

// LookupCallback receives one matching node per invocation, in
// deterministic pre-order (parents before children, siblings in
// insertion order). It runs while Forest's read lock is held, so it must
// not call back into any Forest method or it will deadlock.
type LookupCallback func(n *Node, qualifiedName string)

// Lookup finds nodes whose kind intersects mask and whose qualified name
// matches at least one pattern (an empty pattern list matches all),
// invoking cb for each in deterministic pre-order.
func (f *Forest) Lookup(patterns []string, flags Flag, mask types.SymbolKind, cb LookupCallback) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var regexes []*regexp.Regexp
	if flags&FlagRegExp != 0 {
		regexes = make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			if rx, err := regexp.Compile(p); err == nil {
				regexes = append(regexes, rx)
			}
		}
	}

	var walk func(id types.NodeID)
	walk = func(id types.NodeID) {
		n := f.get(id)
		if n == nil {
			return
		}
		if id != RootID && n.Kind&mask != 0 {
			qn := f.qualifiedName(id)
			if matches(qn, patterns, regexes, flags) {
				cb(n, qn)
			}
		}
		for _, childID := range n.children {
			walk(childID)
		}
	}
	walk(RootID)
}

func matches(qualifiedName string, patterns []string, regexes []*regexp.Regexp, flags Flag) bool {
	if len(patterns) == 0 {
		return true
	}
	if flags&FlagRegExp != 0 {
		for _, rx := range regexes {
			if rx.MatchString(qualifiedName) {
				return true
			}
		}
		return false
	}
	for _, p := range patterns {
		if strings.Contains(qualifiedName, p) {
			return true
		}
	}
	return false
}

// PrintTree renders the forest in the same deterministic pre-order used
// by Lookup, one line per node, for the debug-only printtree command.
func (f *Forest) PrintTree(w interface{ WriteString(string) (int, error) }) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var walk func(id types.NodeID, depth int)
	walk = func(id types.NodeID, depth int) {
		n := f.get(id)
		if n == nil {
			return
		}
		if id != RootID {
			w.WriteString(strings.Repeat("  ", depth))
			w.WriteString(n.Kind.String())
			w.WriteString(" ")
			w.WriteString(f.qualifiedName(id))
			w.WriteString("\n")
		}
		for _, childID := range n.children {
			walk(childID, depth+1)
		}
	}
	walk(RootID, 0)
}
