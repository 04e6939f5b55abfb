package symbol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/types"
)

func loc(file types.FileID, line, col uint32) location.Location {
	return location.Location{File: file, Line: line, Column: col}
}

func TestNewForestHasSingleRoot(t *testing.T) {
	f := NewForest()
	require.Equal(t, RootID, types.NodeID(1))
	root := f.Get(RootID)
	require.NotNil(t, root)
	require.Equal(t, types.KindRoot, root.Kind)
	require.Empty(t, f.Children(RootID))
}

func TestEnsureChildCreatesOnFirstCall(t *testing.T) {
	f := NewForest()
	n := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	require.NotEqual(t, types.NullNodeID, n.ID)
	require.Equal(t, "Foo", n.Name)
	require.Equal(t, RootID, f.Parent(n.ID))
	require.Equal(t, []types.NodeID{n.ID}, f.Children(RootID))
}

func TestEnsureChildDedupsOnKindNameLocation(t *testing.T) {
	f := NewForest()
	first := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	second := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	require.Equal(t, first.ID, second.ID)
	require.Len(t, f.Children(RootID), 1)
}

func TestEnsureChildDistinguishesByLocation(t *testing.T) {
	f := NewForest()
	first := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	second := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 20, 1))
	require.NotEqual(t, first.ID, second.ID)
	require.Len(t, f.Children(RootID), 2)
}

func TestEnsureChildDistinguishesByKind(t *testing.T) {
	f := NewForest()
	class := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	strct := f.EnsureChild(RootID, types.KindStruct, "Foo", loc(1, 10, 1))
	require.NotEqual(t, class.ID, strct.ID)
}

func TestQualifiedNameConcatenatesAncestors(t *testing.T) {
	f := NewForest()
	class := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	method := f.EnsureChild(class.ID, types.KindMethodDeclaration, "Bar", loc(1, 11, 3))
	require.Equal(t, "Foo.Bar", f.QualifiedName(method.ID))
}

func TestFilesTracksLocationsAcrossInsertion(t *testing.T) {
	f := NewForest()
	f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	f.EnsureChild(RootID, types.KindClass, "Bar", loc(2, 10, 1))

	files := f.Files()
	require.True(t, files[types.FileID(1)])
	require.True(t, files[types.FileID(2)])
	require.Len(t, files, 2)
}

func TestInvalidateRemovesOwnFileNodes(t *testing.T) {
	f := NewForest()
	f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))

	f.Invalidate(types.FileID(1))

	require.Empty(t, f.Children(RootID))
	files := f.Files()
	require.False(t, files[types.FileID(1)])
}

func TestInvalidateLiftsCrossFileChildrenToRoot(t *testing.T) {
	f := NewForest()
	parent := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	child := f.EnsureChild(parent.ID, types.KindMethodDeclaration, "Bar", loc(2, 5, 1))

	f.Invalidate(types.FileID(1))

	require.Equal(t, RootID, f.Parent(child.ID))
	require.Contains(t, f.Children(RootID), child.ID)
	require.NotNil(t, f.Get(child.ID))
}

func TestInvalidateDropsSameFileDescendants(t *testing.T) {
	f := NewForest()
	parent := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	child := f.EnsureChild(parent.ID, types.KindMethodDeclaration, "Bar", loc(1, 11, 1))

	f.Invalidate(types.FileID(1))

	require.Nil(t, f.Get(parent.ID))
	require.Nil(t, f.Get(child.ID))
}

func TestInvalidateNullsDanglingCrossReferenceEdges(t *testing.T) {
	f := NewForest()
	target := f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	ref := f.EnsureChild(RootID, types.KindReference, "Foo", loc(2, 5, 1))
	ref.Referenced = target.ID
	ref.Canonical = target.ID
	ref.Overridden = []types.NodeID{target.ID}

	f.Invalidate(types.FileID(1))

	got := f.Get(ref.ID)
	require.NotNil(t, got)
	require.Equal(t, types.NullNodeID, got.Referenced)
	require.Equal(t, types.NullNodeID, got.Canonical)
	require.Empty(t, got.Overridden)
}

func TestInvalidateOnUnknownFileIsNoop(t *testing.T) {
	f := NewForest()
	f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	f.Invalidate(types.FileID(99))
	require.Len(t, f.Children(RootID), 1)
}

func TestLookupMatchesByMaskAndSubstring(t *testing.T) {
	f := NewForest()
	f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	f.EnsureChild(RootID, types.KindStruct, "Bar", loc(1, 20, 1))

	var got []string
	f.Lookup([]string{"Foo"}, 0, types.KindAll, func(n *Node, qn string) {
		got = append(got, qn)
	})
	require.Equal(t, []string{"Foo"}, got)
}

func TestLookupRespectsKindMask(t *testing.T) {
	f := NewForest()
	f.EnsureChild(RootID, types.KindClass, "Foo", loc(1, 10, 1))
	f.EnsureChild(RootID, types.KindStruct, "Bar", loc(1, 20, 1))

	var got []string
	f.Lookup(nil, 0, types.KindStruct, func(n *Node, qn string) {
		got = append(got, qn)
	})
	require.Equal(t, []string{"Bar"}, got)
}

func TestLookupWithRegexFlag(t *testing.T) {
	f := NewForest()
	f.EnsureChild(RootID, types.KindClass, "Foo123", loc(1, 10, 1))
	f.EnsureChild(RootID, types.KindClass, "Bar", loc(1, 20, 1))

	var got []string
	f.Lookup([]string{"^Foo[0-9]+$"}, FlagRegExp, types.KindAll, func(n *Node, qn string) {
		got = append(got, qn)
	})
	require.Equal(t, []string{"Foo123"}, got)
}
