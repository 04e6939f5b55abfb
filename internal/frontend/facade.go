// Package frontend is a thin capability wrapper: the rest of the
// pipeline speaks only Cursor/TU vocabulary and never imports a
// parser-library type directly.
//
// The C/C++-capable front end here is github.com/tree-sitter/go-tree-sitter
// plus github.com/tree-sitter/tree-sitter-cpp. Concepts that libclang
// derives from full semantic analysis -- USR, mangling, "referenced"
// cursor resolution -- have no tree-sitter equivalent, so this facade
// approximates them from syntax alone: a per-TU name table populated
// while parsing maps an identifier's spelling to the nearest preceding
// declaration cursor with that name, and USR/mangling are deterministic
// hashes of (path, kind, name, byte offset). See DESIGN.md for the
// tradeoffs this implies.
package frontend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pelletier/go-toml/v2"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/types"
)

// CursorKind is the coarse classification VisitWorker maps onto
// types.SymbolKind. It stands in for CXCursorKind.
type CursorKind uint8

const (
	KindInvalid CursorKind = iota
	KindTranslationUnit
	KindFunctionDefinition
	KindFunctionDeclaration
	KindClassSpecifier
	KindStructSpecifier
	KindUnionSpecifier
	KindEnumSpecifier
	KindEnumerator
	KindNamespaceDefinition
	KindFieldDeclaration
	KindVarDeclaration
	KindTypedefDeclaration
	KindPreprocDefine
	KindInclusionDirective
	KindIdentifierReference
	KindDestructorDefinition
	KindConstructorDefinition
)

// ParseOptions is the facade's parse-time capability list.
type ParseOptions struct {
	// DetailedPreprocessingRecord is required for include-audit: the walk
	// must see preproc_include nodes, which tree-sitter-cpp always
	// exposes, so this flag only documents intent for callers migrating
	// from a libclang-shaped API.
	DetailedPreprocessingRecord bool
	// PrecompiledPreamble has no tree-sitter equivalent; kept only so
	// call sites written against the libclang-shaped API compile.
	PrecompiledPreamble bool
}

// Facade holds the tree-sitter language used for every parse call. A
// single Facade is safe to share across ParseWorker jobs because each
// Parse/Load call creates its own tree_sitter.Parser and each TU keeps its
// own tree/source.
type Facade struct {
	language *tree_sitter.Language
}

// New constructs a Facade configured for C/C++.
func New() *Facade {
	return &Facade{language: tree_sitter.NewLanguage(tree_sitter_cpp.Language())}
}

// TU is an opaque translation-unit handle. Ownership is exclusive: at
// most one live TU exists per Path, enforced by ParseWorker/Query facade
// hand-off, not by this type.
type TU struct {
	Path    pathutil.Path
	source  []byte
	tree    *tree_sitter.Tree
	byName  map[string][]*tree_sitter.Node // spelling -> declaration nodes, innermost-last
	interns *location.Table
	fileID  types.FileID
}

// Close releases the underlying tree-sitter tree. Safe to call on a nil
// receiver or an already-closed TU.
func (tu *TU) Close() {
	if tu == nil || tu.tree == nil {
		return
	}
	tu.tree.Close()
	tu.tree = nil
}

// Parse turns path+args into a TU. A syntax error from tree-sitter is not
// itself a failure (tree-sitter always returns a tree, with ERROR nodes
// marking the damage); Parse only fails if the source can't be read.
func (f *Facade) Parse(path pathutil.Path, args types.CompileCommand, opts ParseOptions, interns *location.Table) (*TU, error) {
	source, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(f.language); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse %s: tree-sitter returned no tree", path)
	}

	tu := &TU{
		Path:    path,
		source:  source,
		tree:    tree,
		byName:  make(map[string][]*tree_sitter.Node),
		interns: interns,
		fileID:  interns.Intern(path),
	}
	tu.indexDeclarations(tree.RootNode())
	return tu, nil
}

// indexDeclarations does a single pass over the tree recording every
// declaration-shaped node under its spelling, so Cursor.Referenced can
// approximate libclang's semantic name resolution.
func (tu *TU) indexDeclarations(n *tree_sitter.Node) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "function_definition", "class_specifier", "struct_specifier",
		"union_specifier", "enum_specifier", "namespace_definition",
		"declaration", "field_declaration", "enumerator":
		if name := declarationName(n, tu.source); name != "" {
			tu.byName[name] = append(tu.byName[name], n)
		}
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		tu.indexDeclarations(n.Child(i))
	}
}

func declarationName(n *tree_sitter.Node, source []byte) string {
	if nameNode := declarationNameNode(n); nameNode != nil {
		return nameNode.Utf8Text(source)
	}
	return ""
}

// declarationNameNode is declarationName's node-returning twin: callers
// that need the name token's own position (Cursor.Location), not just its
// text, use this instead of re-deriving it from a string.
func declarationNameNode(n *tree_sitter.Node) *tree_sitter.Node {
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		return nameNode
	}
	if declNode := n.ChildByFieldName("declarator"); declNode != nil {
		return innermostIdentifierNode(declNode)
	}
	return nil
}

// innermostIdentifier descends through pointer/function/reference
// declarators (which nest a "declarator" field) to the identifier at the
// core, e.g. `int *foo(int)` -> "foo". Qualified names (`Widget::spin`)
// and destructor names (`Widget::~Widget`) nest their own identifier
// under a "name" field instead of "declarator"; operator names
// (`operator+`) have no nested identifier at all.
func innermostIdentifier(n *tree_sitter.Node, source []byte) string {
	if id := innermostIdentifierNode(n); id != nil {
		return id.Utf8Text(source)
	}
	return ""
}

// innermostIdentifierNode is innermostIdentifier's node-returning twin.
func innermostIdentifierNode(n *tree_sitter.Node) *tree_sitter.Node {
	id, _ := descendIdentifier(n)
	return id
}

// isDestructorDeclarator reports whether n's declarator chain passes
// through a destructor_name node, in-class (`~Widget`) or out-of-line
// (`Widget::~Widget`) alike. Checking this directly, rather than testing
// the resolved identifier text for a leading '~', is required for the
// out-of-line case: destructor_name's own "name" field is just the class
// identifier, so by the time descendIdentifier reaches an identifier node
// the '~' is already gone.
func isDestructorDeclarator(n *tree_sitter.Node) bool {
	_, destructor := descendIdentifier(n)
	return destructor
}

// qualifierName returns the scope text of the declarator's
// qualified_identifier, if any -- e.g. "Widget" for `Widget::spin` or
// `Widget::~Widget`. Used to recognize an out-of-line constructor
// definition, whose enclosing lexical scope is the namespace/global scope
// rather than the class itself.
func qualifierName(n *tree_sitter.Node, source []byte) string {
	for n != nil {
		if n.Kind() == "qualified_identifier" {
			if scope := n.ChildByFieldName("scope"); scope != nil {
				return scope.Utf8Text(source)
			}
			return ""
		}
		if inner := n.ChildByFieldName("declarator"); inner != nil {
			n = inner
			continue
		}
		return ""
	}
	return ""
}

// descendIdentifier is innermostIdentifierNode's and isDestructorDeclarator's
// shared walk: it descends through pointer/function/reference declarators
// to the identifier at the core, remembering whether a destructor_name was
// passed through along the way.
func descendIdentifier(n *tree_sitter.Node) (id *tree_sitter.Node, destructor bool) {
	for n != nil {
		switch n.Kind() {
		case "identifier", "field_identifier", "type_identifier", "operator_name":
			return n, destructor
		case "destructor_name":
			destructor = true
			if name := n.ChildByFieldName("name"); name != nil {
				n = name
				continue
			}
			return nil, destructor
		case "qualified_identifier":
			if name := n.ChildByFieldName("name"); name != nil {
				n = name
				continue
			}
			return nil, destructor
		}
		if inner := n.ChildByFieldName("declarator"); inner != nil {
			n = inner
			continue
		}
		return nil, destructor
	}
	return nil, destructor
}

// sidecarMeta is the TOML-encoded companion written next to every saved
// AST blob, so a scratch directory can be inventoried (source path, byte
// counts) without reparsing every entry.
type sidecarMeta struct {
	SourcePath string `toml:"source_path"`
	SourceSize int    `toml:"source_size"`
	DumpSize   int    `toml:"dump_size"`
}

func sidecarPath(path pathutil.Path) string {
	return string(path) + ".toml"
}

// Save serializes the TU's source and syntax dump to path within the
// scratch-directory layout, plus a TOML metadata sidecar. tree-sitter
// carries no native binary AST serialization, so the saved artifact is
// the source bytes plus an S-expression dump of the tree -- opaque to
// everything but this package.
func (f *Facade) Save(tu *TU, path pathutil.Path) error {
	if tu == nil || tu.tree == nil {
		return fmt.Errorf("save: nil translation unit")
	}
	dir := filepath.Dir(string(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save: mkdir %s: %w", dir, err)
	}
	dump := tu.tree.RootNode().ToSexp()
	blob := append([]byte(dump), '\x00')
	blob = append(blob, tu.source...)
	if err := os.WriteFile(string(path), blob, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}

	meta := sidecarMeta{SourcePath: string(tu.Path), SourceSize: len(tu.source), DumpSize: len(dump)}
	metaBlob, err := toml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("save %s: encode metadata: %w", path, err)
	}
	if err := os.WriteFile(sidecarPath(path), metaBlob, 0o644); err != nil {
		return fmt.Errorf("save %s: write metadata: %w", path, err)
	}
	return nil
}

// Load reads back a TU previously written by Save. The dump itself isn't
// re-parsed into a live tree-sitter Tree (there is no such API); Load
// re-parses the stored source bytes instead, giving the same tree shape
// at the cost of reparse time -- acceptable since Load only serves the
// debug `load` command, not the hot parse path.
func (f *Facade) Load(path pathutil.Path, sourcePath pathutil.Path, interns *location.Table) (*TU, error) {
	blob, err := os.ReadFile(string(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	sep := indexByte(blob, 0)
	if sep < 0 {
		return nil, fmt.Errorf("load %s: corrupt AST cache entry", path)
	}
	source := blob[sep+1:]

	if metaBlob, err := os.ReadFile(sidecarPath(path)); err == nil {
		var meta sidecarMeta
		if err := toml.Unmarshal(metaBlob, &meta); err == nil && meta.SourceSize != len(source) {
			return nil, fmt.Errorf("load %s: metadata size mismatch (want %d, got %d)", path, meta.SourceSize, len(source))
		}
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(f.language); err != nil {
		return nil, err
	}
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("load %s: reparse failed", path)
	}
	tu := &TU{
		Path:    sourcePath,
		source:  source,
		tree:    tree,
		byName:  make(map[string][]*tree_sitter.Node),
		interns: interns,
		fileID:  interns.Intern(sourcePath),
	}
	tu.indexDeclarations(tree.RootNode())
	return tu, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// VisitResult is the callback's directive to visitChildren.
type VisitResult uint8

const (
	Continue VisitResult = iota
	Recurse
	Break
)

// VisitCallback is invoked once per child cursor. Suspension is not
// permitted inside it: it must not block.
type VisitCallback func(c *Cursor) VisitResult

// VisitChildren walks c's children depth-first, honoring the callback's
// directive at each node. It returns false if the walk was stopped by
// Break at any depth, mirroring clang_visitChildren's boolean result.
func VisitChildren(c *Cursor, cb VisitCallback) bool {
	if c == nil || c.node == nil {
		return true
	}
	for i := uint(0); i < c.node.ChildCount(); i++ {
		child := c.wrapChild(c.node.Child(i))
		switch cb(child) {
		case Break:
			return false
		case Recurse:
			if !VisitChildren(child, cb) {
				return false
			}
		case Continue:
			// don't descend
		}
	}
	return true
}

// RootCursor returns the cursor for the TU's translation-unit node.
func (tu *TU) RootCursor() *Cursor {
	return &Cursor{tu: tu, node: tu.tree.RootNode()}
}

// CursorAt resolves a (line, column) to the innermost node containing it,
// mirroring clang_getCursor(tu, clang_getLocation(...)). line/column are
// 1-based.
func (tu *TU) CursorAt(line, column uint32) *Cursor {
	if line == 0 || column == 0 {
		return NullCursor(tu)
	}
	point := tree_sitter.Point{Row: uint(line - 1), Column: uint(column - 1)}
	node := tu.tree.RootNode().NamedDescendantForPointRange(point, point)
	if node == nil {
		return NullCursor(tu)
	}
	return &Cursor{tu: tu, node: node}
}

// Cursor is a cheap handle scoped to the life of its owning TU.
type Cursor struct {
	tu   *TU
	node *tree_sitter.Node
}

// NullCursor returns the null-cursor sentinel for tu.
func NullCursor(tu *TU) *Cursor {
	return &Cursor{tu: tu, node: nil}
}

// IsValid reports whether the cursor points at a real node.
func (c *Cursor) IsValid() bool {
	return c != nil && c.node != nil
}

// Equals reports whether c and other refer to the same syntax node.
func (c *Cursor) Equals(other *Cursor) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.node == nil || other.node == nil {
		return c.node == other.node
	}
	return c.node.Id() == other.node.Id()
}

func (c *Cursor) wrapChild(n *tree_sitter.Node) *Cursor {
	return &Cursor{tu: c.tu, node: n}
}

// Kind classifies the cursor's syntax node into the coarse CursorKind
// vocabulary VisitWorker consumes.
func (c *Cursor) Kind() CursorKind {
	if !c.IsValid() {
		return KindInvalid
	}
	switch c.node.Kind() {
	case "translation_unit":
		return KindTranslationUnit
	case "function_definition":
		return c.functionDefinitionKind()
	case "declaration":
		if isFunctionDeclarator(c.node) {
			return KindFunctionDeclaration
		}
		return KindVarDeclaration
	case "class_specifier":
		return KindClassSpecifier
	case "struct_specifier":
		return KindStructSpecifier
	case "union_specifier":
		return KindUnionSpecifier
	case "enum_specifier":
		return KindEnumSpecifier
	case "enumerator":
		return KindEnumerator
	case "namespace_definition":
		return KindNamespaceDefinition
	case "field_declaration":
		if isFunctionDeclarator(c.node) {
			return KindFunctionDeclaration
		}
		return KindFieldDeclaration
	case "type_definition":
		return KindTypedefDeclaration
	case "preproc_define":
		return KindPreprocDefine
	case "preproc_include":
		return KindInclusionDirective
	case "identifier", "field_identifier", "type_identifier":
		return KindIdentifierReference
	default:
		return KindInvalid
	}
}

// functionDefinitionKind classifies a "function_definition" node as a
// plain function, a destructor, or a constructor. A constructor has no
// dedicated tree-sitter-cpp node kind -- it parses as an ordinary
// function_definition whose name matches its enclosing class -- so this
// checks the declarator's name against the enclosing class's spelling,
// either via the lexical parent (in-class `Widget() {}`) or the
// declarator's own qualifier (out-of-line `Widget::Widget() {}`).
func (c *Cursor) functionDefinitionKind() CursorKind {
	declarator := c.node.ChildByFieldName("declarator")
	if declarator == nil {
		return KindFunctionDefinition
	}
	if isDestructorDeclarator(declarator) {
		return KindDestructorDefinition
	}
	name := declarationName(c.node, c.tu.source)
	if name == "" {
		return KindFunctionDefinition
	}
	if qualifier := qualifierName(declarator, c.tu.source); qualifier != "" {
		if qualifier == name {
			return KindConstructorDefinition
		}
		return KindFunctionDefinition
	}
	switch parent := c.enclosingScope(); parent.Kind() {
	case KindClassSpecifier, KindStructSpecifier, KindUnionSpecifier:
		if parent.Spelling() == name {
			return KindConstructorDefinition
		}
	}
	return KindFunctionDefinition
}

func isFunctionDeclarator(n *tree_sitter.Node) bool {
	decl := n.ChildByFieldName("declarator")
	for decl != nil {
		if decl.Kind() == "function_declarator" {
			return true
		}
		decl = decl.ChildByFieldName("declarator")
	}
	return false
}

// Spelling is the node's own text (identifier text for a name, keyword
// text for a keyword node).
func (c *Cursor) Spelling() string {
	if !c.IsValid() {
		return ""
	}
	if name := declarationName(c.node, c.tu.source); name != "" {
		return name
	}
	return c.node.Utf8Text(c.tu.source)
}

// DisplayName is Spelling for this facade -- tree-sitter carries no
// separate "display" form the way libclang's clang_getCursorDisplayName
// adds parameter types for overload disambiguation.
func (c *Cursor) DisplayName() string {
	return c.Spelling()
}

// USR is a deterministic pseudo-USR: hash of (path, kind, spelling,
// start byte). Unlike libclang's USR it is NOT stable across TUs that
// reparse with different flags, since tree-sitter has no notion of
// linkage/mangling to key on -- documented in DESIGN.md.
func (c *Cursor) USR() string {
	if !c.IsValid() {
		return ""
	}
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%d|%s|%d", c.tu.Path, c.Kind(), c.Spelling(), c.node.StartByte())
	return fmt.Sprintf("usr:%016x", h.Sum64())
}

// Mangling approximates clang_Cursor_getMangling with the same hash
// input as USR -- there is no Itanium-ABI mangler in the example corpus.
func (c *Cursor) Mangling() string {
	if !c.IsValid() {
		return ""
	}
	return "_Z" + c.USR()[4:]
}

// Location approximates clang_getCursorLocation: for a declaration-shaped
// cursor this is the name token's own start position, not the start of
// the enclosing declaration (a function_definition node for `int foo()`
// starts at `int`, but the location that matters for "jump to
// declaration" is `foo`). Anything without a resolvable name node -- a
// reference, a directive, a node Kind() doesn't classify as a
// declaration -- falls back to the node's own start position.
func (c *Cursor) Location() location.Location {
	if !c.IsValid() {
		return location.Null
	}
	n := c.node
	if isDeclarationKind(c.Kind()) {
		if nameNode := declarationNameNode(c.node); nameNode != nil {
			n = nameNode
		}
	}
	p := n.StartPosition()
	return location.Location{File: c.tu.fileID, Line: uint32(p.Row) + 1, Column: uint32(p.Column) + 1}
}

// isDeclarationKind reports whether k is one of the cursor kinds
// Referenced() resolves to itself -- the same set of declaration-shaped
// nodes whose Location() should point at the name, not the declaration's
// start.
func isDeclarationKind(k CursorKind) bool {
	switch k {
	case KindFunctionDefinition, KindFunctionDeclaration, KindClassSpecifier,
		KindStructSpecifier, KindUnionSpecifier, KindEnumSpecifier, KindEnumerator,
		KindNamespaceDefinition, KindFieldDeclaration, KindVarDeclaration,
		KindTypedefDeclaration, KindDestructorDefinition, KindConstructorDefinition:
		return true
	default:
		return false
	}
}

// Extent returns the cursor's start and end locations.
func (c *Cursor) Extent() (start, end location.Location) {
	if !c.IsValid() {
		return location.Null, location.Null
	}
	sp, ep := c.node.StartPosition(), c.node.EndPosition()
	return location.Location{File: c.tu.fileID, Line: uint32(sp.Row) + 1, Column: uint32(sp.Column) + 1},
		location.Location{File: c.tu.fileID, Line: uint32(ep.Row) + 1, Column: uint32(ep.Column) + 1}
}

// Referenced approximates clang_getCursorReferenced: for an identifier
// use, the nearest declaration recorded under the same spelling during
// TU indexing; for a declaration cursor, itself.
func (c *Cursor) Referenced() *Cursor {
	if !c.IsValid() {
		return NullCursor(c.tu)
	}
	if isDeclarationKind(c.Kind()) {
		return c
	}
	switch c.Kind() {
	case KindIdentifierReference:
		name := c.Spelling()
		decls := c.tu.byName[name]
		if len(decls) == 0 {
			return NullCursor(c.tu)
		}
		// Nearest preceding declaration by start byte, falling back to
		// the first one recorded.
		best := decls[0]
		for _, d := range decls {
			if d.StartByte() <= c.node.StartByte() {
				best = d
			}
		}
		return &Cursor{tu: c.tu, node: best}
	default:
		return NullCursor(c.tu)
	}
}

// Canonical approximates clang_getCanonicalCursor: the first declaration
// recorded under this cursor's spelling (handles redeclaration, e.g. a
// method declared in a class body and defined out-of-line get the same
// canonical cursor because they share a spelling in byName).
func (c *Cursor) Canonical() *Cursor {
	if !c.IsValid() {
		return NullCursor(c.tu)
	}
	name := declarationName(c.node, c.tu.source)
	if name == "" {
		return c
	}
	decls := c.tu.byName[name]
	if len(decls) == 0 {
		return c
	}
	return &Cursor{tu: c.tu, node: decls[0]}
}

// Definition approximates clang_getCursorDefinition: for a declaration
// with a body, itself; otherwise the first recorded declaration under
// the same spelling that has a body.
func (c *Cursor) Definition() *Cursor {
	if !c.IsValid() {
		return NullCursor(c.tu)
	}
	if c.IsDefinition() {
		return c
	}
	name := declarationName(c.node, c.tu.source)
	for _, d := range c.tu.byName[name] {
		cand := &Cursor{tu: c.tu, node: d}
		if cand.IsDefinition() {
			return cand
		}
	}
	return NullCursor(c.tu)
}

// IsMethod reports whether the cursor is a function-shaped declaration
// whose lexical parent is a class/struct/union, standing in for a check
// against CXCursor_CXXMethod (this facade has no separate method-cursor
// kind since tree-sitter-cpp parses a method the same as any other
// function_definition).
func (c *Cursor) IsMethod() bool {
	if !c.IsValid() {
		return false
	}
	switch c.Kind() {
	case KindFunctionDefinition, KindFunctionDeclaration, KindDestructorDefinition, KindConstructorDefinition:
	default:
		return false
	}
	switch c.LexicalParent().Kind() {
	case KindClassSpecifier, KindStructSpecifier, KindUnionSpecifier:
		return true
	default:
		return false
	}
}

// IsDefinition reports whether the cursor's node carries a body, i.e. it
// is a definition rather than a forward declaration.
func (c *Cursor) IsDefinition() bool {
	if !c.IsValid() {
		return false
	}
	switch c.Kind() {
	case KindFunctionDefinition, KindDestructorDefinition, KindConstructorDefinition,
		KindClassSpecifier, KindStructSpecifier, KindUnionSpecifier,
		KindEnumSpecifier, KindNamespaceDefinition:
		return c.node.ChildByFieldName("body") != nil
	case KindVarDeclaration, KindFieldDeclaration, KindEnumerator, KindTypedefDeclaration:
		return true
	default:
		return false
	}
}

// SemanticParent and LexicalParent are the same node in this
// tree-sitter-backed facade: it has no notion of an out-of-line member
// definition living lexically in one scope and semantically in another.
// VisitWorker places a node under its LexicalParent (parentNodeID) and
// consults SemanticParent only to decide whether that parent sits at the
// root.
func (c *Cursor) SemanticParent() *Cursor {
	return c.enclosingScope()
}

func (c *Cursor) LexicalParent() *Cursor {
	return c.enclosingScope()
}

func (c *Cursor) enclosingScope() *Cursor {
	if !c.IsValid() {
		return NullCursor(c.tu)
	}
	n := c.node.Parent()
	for n != nil {
		switch n.Kind() {
		case "function_definition", "class_specifier", "struct_specifier",
			"union_specifier", "namespace_definition", "translation_unit":
			return &Cursor{tu: c.tu, node: n}
		}
		n = n.Parent()
	}
	return &Cursor{tu: c.tu, node: c.tu.tree.RootNode()}
}

// SpecializedTemplate has no tree-sitter-cpp equivalent (template
// instantiation tracking requires semantic analysis); always null.
func (c *Cursor) SpecializedTemplate() *Cursor {
	return NullCursor(c.tu)
}

// Overridden has no tree-sitter-cpp equivalent for the same reason;
// always empty.
func (c *Cursor) Overridden() []*Cursor {
	return nil
}

// Linkage is a coarse approximation: "static" for anything qualified
// with the `static` keyword, "external" otherwise.
func (c *Cursor) Linkage() string {
	if !c.IsValid() {
		return ""
	}
	text := c.node.Utf8Text(c.tu.source)
	if strings.Contains(text[:min(len(text), 32)], "static") {
		return "static"
	}
	return "external"
}

// IncludedFile resolves a preproc_include cursor to the header path it
// names, relative to the including file's directory (quoted form) or
// mapped to a synthetic /usr/include/<name> path for angle-bracket system
// includes, matching
// clang_getIncludedFile's contract of "the file this directive names".
func (c *Cursor) IncludedFile() (pathutil.Path, bool) {
	if !c.IsValid() || c.Kind() != KindInclusionDirective {
		return "", false
	}
	pathNode := c.node.ChildByFieldName("path")
	if pathNode == nil {
		return "", false
	}
	raw := pathNode.Utf8Text(c.tu.source)
	quoted := pathNode.Kind() == "string_literal"
	name := strings.Trim(raw, "\"<>")
	if name == "" {
		return "", false
	}
	if quoted {
		candidate := filepath.Join(filepath.Dir(string(c.tu.Path)), name)
		if resolved, err := pathutil.Resolve(candidate); err == nil {
			return resolved, true
		}
	}
	// System include: no include-path search list in this facade: stand
	// in with a synthetic /usr/include/<name> path so the auditor's
	// IsSystem() exemption still applies to it.
	return pathutil.Path(filepath.Join("/usr/include", name)), true
}
