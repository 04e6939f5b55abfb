// Package visitworker implements VisitWorker: it consumes ParseWorker's
// event stream in order, walks each parsed TU into the shared
// symbol.Forest, and feeds the same walk's include/reference edges to an
// includeaudit.Auditor.
package visitworker

import (
	"context"

	"github.com/cxrefd/cxrefd/internal/debug"
	"github.com/cxrefd/cxrefd/internal/frontend"
	"github.com/cxrefd/cxrefd/internal/includeaudit"
	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/parseworker"
	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/symbol"
	"github.com/cxrefd/cxrefd/internal/types"
)

// Worker owns the symbol forest and the include auditor: both are
// mutated from this goroutine's walk and, through InvalidateSync, from
// the Query facade's; both are internally lock-guarded, and readers go
// through the accessor methods below.
type Worker struct {
	forest  *symbol.Forest
	auditor *includeaudit.Auditor
	interns *location.Table

	events <-chan parseworker.Event
	done   chan struct{}

	// usrIndex maps a cursor's pseudo-USR to the node already created for
	// it, so repeated references to the same declaration collapse onto
	// one node.
	usrIndex map[string]types.NodeID
}

// New creates a Worker reading from events. Start must be called to
// begin consuming.
func New(interns *location.Table, events <-chan parseworker.Event) *Worker {
	return &Worker{
		forest:   symbol.NewForest(),
		auditor:  includeaudit.New(),
		interns:  interns,
		events:   events,
		done:     make(chan struct{}),
		usrIndex: make(map[string]types.NodeID),
	}
}

// Start launches the worker's single goroutine, which runs until events
// is closed (i.e. until the paired ParseWorker is aborted).
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Done is closed once the run loop exits.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			w.handle(ev)
		}
	}
}

func (w *Worker) handle(ev parseworker.Event) {
	switch ev.Kind {
	case parseworker.EventInvalidated:
		fileID, ok := w.interns.Lookup(ev.Path)
		if !ok {
			return
		}
		w.InvalidateSync(fileID)
		debug.LogVisit("invalidated symbols for %s", ev.Path)
	case parseworker.EventFailed:
		debug.LogVisit("skipping failed parse of %s: %v", ev.Path, ev.Err)
	case parseworker.EventParsed:
		w.walk(ev.TU)
		debug.LogVisit("indexed %s", ev.Path)
	}
}

// walk recurses into every child regardless of whether the current
// cursor produced a node, matching VisitChildren's Recurse directive
// being the steady-state result.
func (w *Worker) walk(tu *frontend.TU) {
	root := tu.RootCursor()
	frontend.VisitChildren(root, func(c *frontend.Cursor) frontend.VisitResult {
		w.visit(c)
		return frontend.Recurse
	})
}

func (w *Worker) visit(c *frontend.Cursor) {
	if !c.IsValid() {
		return
	}
	loc := c.Location()
	if loc.IsNull() {
		return
	}

	if c.Kind() == frontend.KindInclusionDirective {
		w.handleInclude(c, loc)
		return
	}

	if ref, ok := w.resolveReferenced(c); ok && !ref.isNamespace() {
		w.handleReference(loc, ref.location())
	}

	w.addCursor(c, loc)
}

func (w *Worker) handleInclude(c *frontend.Cursor, loc location.Location) {
	included, ok := c.IncludedFile()
	if !ok {
		return
	}
	includedID := w.interns.Intern(included)
	w.auditor.HandleInclude(loc.File, includedID)
}

func (w *Worker) handleReference(loc, refLoc location.Location) {
	if refLoc.IsNull() {
		return
	}
	w.auditor.HandleReference(loc, refLoc)
}

// resolvedRef is the result of resolveReferenced: either a same-TU
// frontend.Cursor (the common case, resolved purely from the current
// file's syntax) or a cross-TU symbol.Node already sitting in the forest
// from a previously-walked file.
type resolvedRef struct {
	cursor *frontend.Cursor
	node   *symbol.Node
}

func (r resolvedRef) isNamespace() bool {
	if r.cursor != nil {
		return r.cursor.Kind() == frontend.KindNamespaceDefinition
	}
	return r.node.Kind == types.KindNamespace
}

func (r resolvedRef) location() location.Location {
	if r.cursor != nil {
		return r.cursor.Location()
	}
	return r.node.Location
}

// nodeID returns the forest node this reference resolves to, creating it
// (via addCursor) if resolution stayed within the current TU and that
// declaration hasn't been filed yet; a cross-TU resolution is already a
// node in the forest, so it's returned as-is.
func (r resolvedRef) nodeID(w *Worker) types.NodeID {
	if r.cursor != nil {
		if n := w.addCursor(r.cursor, r.cursor.Location()); n != nil {
			return n.ID
		}
		return types.NullNodeID
	}
	return r.node.ID
}

// resolveReferenced approximates clang_getCursorReferenced across
// translation units: a use's TU-local syntax index (frontend.Cursor.
// Referenced, populated only from the single file tree-sitter parsed)
// resolves most declarations, but misses anything declared in a
// different file -- a call into a header's declaration, for instance.
// When the TU-local lookup comes up empty, this falls back to the
// forest's cross-file name index, which accumulates declarations from
// every file VisitWorker has walked so far. A file referencing a
// declaration in a header that hasn't been walked yet still won't
// resolve until that header is indexed.
func (w *Worker) resolveReferenced(c *frontend.Cursor) (resolvedRef, bool) {
	if ref := c.Referenced(); ref.IsValid() && !ref.Equals(c) {
		return resolvedRef{cursor: ref}, true
	}
	if c.Kind() == frontend.KindIdentifierReference {
		if n, ok := w.forest.FindDeclaration(c.Spelling()); ok {
			return resolvedRef{node: n}, true
		}
	}
	return resolvedRef{}, false
}

// symbolKindFor maps a frontend.CursorKind onto the types.SymbolKind bit
// VisitWorker files the resulting node under. Kinds with no forest
// representation (the translation unit, include directives, unclassified
// nodes) return (0, false).
func symbolKindFor(k frontend.CursorKind) (types.SymbolKind, bool) {
	switch k {
	case frontend.KindFunctionDeclaration:
		return types.KindMethodDeclaration, true
	case frontend.KindFunctionDefinition:
		return types.KindMethodDefinition, true
	case frontend.KindConstructorDefinition:
		return types.KindConstructor, true
	case frontend.KindDestructorDefinition:
		return types.KindDestructor, true
	case frontend.KindClassSpecifier:
		return types.KindClass, true
	case frontend.KindStructSpecifier:
		return types.KindStruct, true
	case frontend.KindUnionSpecifier:
		return types.KindUnion, true
	case frontend.KindNamespaceDefinition:
		return types.KindNamespace, true
	case frontend.KindVarDeclaration:
		return types.KindVariableDeclaration, true
	case frontend.KindFieldDeclaration:
		return types.KindVariableDeclaration, true
	case frontend.KindEnumSpecifier:
		return types.KindEnumDeclaration, true
	case frontend.KindEnumerator:
		return types.KindEnumValue, true
	case frontend.KindTypedefDeclaration:
		return types.KindTypedefDeclaration, true
	case frontend.KindPreprocDefine:
		return types.KindMacroDefinition, true
	case frontend.KindIdentifierReference:
		return types.KindReference, true
	default:
		return 0, false
	}
}

// addCursor creates (or reuses) the symbol.Node for a cursor in the
// shared forest. A few notable properties of this translation:
//
//   - lexicalParent is assigned exactly once, from LexicalParent(); it
//     is never separately overwritten by a semantic-parent value.
//   - there is no separate Type node kind in this forest, so a cursor's
//     type is not modeled as its own node.
//   - USR emptiness never suppresses caching: an empty pseudo-USR never
//     occurs here because Cursor.USR() always includes byte offset, so
//     every declaration cursor gets a stable dedup key.
func (w *Worker) addCursor(c *frontend.Cursor, loc location.Location) *symbol.Node {
	kind, ok := symbolKindFor(c.Kind())
	if !ok {
		return nil
	}

	usr := c.USR()
	if id, cached := w.usrIndex[usr]; cached {
		if n := w.forest.Get(id); n != nil {
			return n
		}
		delete(w.usrIndex, usr)
	}

	name := c.Spelling()
	parent := w.parentNodeID(c)
	n := w.forest.EnsureChild(parent, kind, name, loc)
	w.usrIndex[usr] = n.ID

	if ref, ok := w.resolveReferenced(c); ok {
		n.Referenced = ref.nodeID(w)
	} else {
		n.Referenced = types.NullNodeID
	}

	if canon := c.Canonical(); canon.IsValid() && !canon.Equals(c) {
		if canonNode := w.addCursor(canon, canon.Location()); canonNode != nil {
			n.Canonical = canonNode.ID
		}
	}

	if c.IsDefinition() {
		n.Definition = n.ID
	} else if def := c.Definition(); def.IsValid() && !def.Equals(c) {
		if defNode := w.addCursor(def, def.Location()); defNode != nil {
			n.Definition = defNode.ID
		}
	}

	return n
}

// parentNodeID resolves the node that owns c in the forest, ensuring the
// ancestor chain exists. LexicalParent is used, matching where a member
// actually appears in source rather than where it is semantically owned
// (relevant for out-of-line definitions).
func (w *Worker) parentNodeID(c *frontend.Cursor) types.NodeID {
	lexical := c.LexicalParent()
	if !lexical.IsValid() || lexical.Kind() == frontend.KindTranslationUnit {
		return symbol.RootID
	}
	kind, ok := symbolKindFor(lexical.Kind())
	if !ok {
		return symbol.RootID
	}
	parentLoc := lexical.Location()
	if parentLoc.IsNull() {
		return symbol.RootID
	}
	return w.forest.EnsureChild(w.rootOrGrandparent(lexical), kind, lexical.Spelling(), parentLoc).ID
}

func (w *Worker) rootOrGrandparent(c *frontend.Cursor) types.NodeID {
	semantic := c.SemanticParent()
	if !semantic.IsValid() || semantic.Kind() == frontend.KindTranslationUnit {
		return symbol.RootID
	}
	return w.parentNodeID(c)
}

// InvalidateSync drops fileID's symbols and dependency edges immediately.
// The forest and auditor are both internally lock-guarded, so this is
// safe to call from the Query facade's goroutine for the `remove`
// command, which needs the removal to be visible to files() before it
// returns rather than waiting on the asynchronous event pipeline.
func (w *Worker) InvalidateSync(fileID types.FileID) {
	w.forest.Invalidate(fileID)
	w.auditor.Invalidate(fileID)
}

// Forest exposes the symbol forest for read access from the Query
// facade. Callers must not retain Node pointers across a subsequent
// Invalidate, since swap-and-delete can relocate array slots.
func (w *Worker) Forest() *symbol.Forest { return w.forest }

// Auditor exposes the include auditor for the Query facade's checkincludes
// command.
func (w *Worker) Auditor() *includeaudit.Auditor { return w.auditor }

// ResolvePath is the pathResolve callback includeaudit.Auditor.Check needs.
func (w *Worker) ResolvePath(id types.FileID) pathutil.Path {
	return w.interns.Path(id)
}
