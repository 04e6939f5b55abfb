package frontend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/types"
)

func writeSource(t *testing.T, content string) pathutil.Path {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return pathutil.MustResolve(p)
}

const sample = `#include "b.h"

class Foo {
  void bar();
};

void Foo::bar() {
  Foo f;
}
`

func TestParseIndexesDeclarationsAndSupportsVisit(t *testing.T) {
	path := writeSource(t, sample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{DetailedPreprocessingRecord: true}, interns)
	require.NoError(t, err)
	defer tu.Close()

	root := tu.RootCursor()
	require.True(t, root.IsValid())
	require.Equal(t, KindTranslationUnit, root.Kind())

	var sawClass, sawInclude bool
	VisitChildren(root, func(c *Cursor) VisitResult {
		switch c.Kind() {
		case KindClassSpecifier:
			sawClass = true
			require.Equal(t, "Foo", c.Spelling())
		case KindInclusionDirective:
			sawInclude = true
		}
		return Recurse
	})
	require.True(t, sawClass)
	require.True(t, sawInclude)
}

func TestInClassMethodDeclarationIsFunctionKind(t *testing.T) {
	path := writeSource(t, sample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	var sawBar bool
	VisitChildren(tu.RootCursor(), func(c *Cursor) VisitResult {
		if c.Kind() == KindClassSpecifier {
			VisitChildren(c, func(field *Cursor) VisitResult {
				if field.Spelling() == "bar" {
					sawBar = true
					require.Equal(t, KindFunctionDeclaration, field.Kind())
					// The declaration's own declarator and name token also
					// spell "bar"; they are not declarations themselves.
					return Continue
				}
				return Recurse
			})
		}
		return Recurse
	})
	require.True(t, sawBar)
}

func TestOutOfLineMethodDefinitionResolvesName(t *testing.T) {
	path := writeSource(t, sample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	var sawDefinition bool
	VisitChildren(tu.RootCursor(), func(c *Cursor) VisitResult {
		if c.Kind() == KindFunctionDefinition {
			sawDefinition = true
			require.Equal(t, "bar", c.Spelling())
		}
		return Recurse
	})
	require.True(t, sawDefinition)
}

func TestCursorReferencedResolvesToDeclaration(t *testing.T) {
	path := writeSource(t, sample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	var identCursor *Cursor
	var walk func(c *Cursor)
	walk = func(c *Cursor) {
		if c.Kind() == KindIdentifierReference && c.Spelling() == "Foo" && identCursor == nil {
			identCursor = c
		}
		VisitChildren(c, func(child *Cursor) VisitResult {
			walk(child)
			return Continue
		})
	}
	walk(tu.RootCursor())

	require.NotNil(t, identCursor)
	ref := identCursor.Referenced()
	require.True(t, ref.IsValid())
}

func TestIncludedFileResolvesQuotedPathRelativeToSource(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "a.cpp")
	hdrPath := filepath.Join(dir, "b.h")
	require.NoError(t, os.WriteFile(srcPath, []byte(sample), 0o644))
	require.NoError(t, os.WriteFile(hdrPath, []byte("// empty\n"), 0o644))

	f := New()
	interns := location.NewTable()
	tu, err := f.Parse(pathutil.MustResolve(srcPath), types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	var includeCursor *Cursor
	VisitChildren(tu.RootCursor(), func(c *Cursor) VisitResult {
		if c.Kind() == KindInclusionDirective {
			includeCursor = c
		}
		return Continue
	})
	require.NotNil(t, includeCursor)

	resolved, ok := includeCursor.IncludedFile()
	require.True(t, ok)
	require.Equal(t, pathutil.MustResolve(hdrPath), resolved)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := writeSource(t, sample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	astPath := pathutil.Path(filepath.Join(t.TempDir(), "a.ast"))
	require.NoError(t, f.Save(tu, astPath))

	loaded, err := f.Load(astPath, path, interns)
	require.NoError(t, err)
	defer loaded.Close()

	require.Equal(t, KindTranslationUnit, loaded.RootCursor().Kind())
}

func TestSaveWritesTOMLMetadataSidecar(t *testing.T) {
	path := writeSource(t, sample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	astPath := pathutil.Path(filepath.Join(t.TempDir(), "a.ast"))
	require.NoError(t, f.Save(tu, astPath))

	sidecar, err := os.ReadFile(string(astPath) + ".toml")
	require.NoError(t, err)
	require.Contains(t, string(sidecar), "source_path")
	require.Contains(t, string(sidecar), string(path))
}

const ctorDtorSample = `class Widget {
 public:
  Widget();
  ~Widget();
  void spin();
};

Widget::Widget() {
}

Widget::~Widget() {
}

void Widget::spin() {
}
`

func TestOutOfLineConstructorIsClassifiedAsConstructor(t *testing.T) {
	path := writeSource(t, ctorDtorSample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	var sawCtor bool
	VisitChildren(tu.RootCursor(), func(c *Cursor) VisitResult {
		if c.Kind() == KindConstructorDefinition {
			sawCtor = true
			require.Equal(t, "Widget", c.Spelling())
		}
		return Recurse
	})
	require.True(t, sawCtor)
}

func TestOutOfLineDestructorIsClassifiedAsDestructor(t *testing.T) {
	path := writeSource(t, ctorDtorSample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	var sawDtor bool
	VisitChildren(tu.RootCursor(), func(c *Cursor) VisitResult {
		if c.Kind() == KindDestructorDefinition {
			sawDtor = true
		}
		return Recurse
	})
	require.True(t, sawDtor)
}

func TestOutOfLinePlainMethodIsNotMisclassifiedAsConstructor(t *testing.T) {
	path := writeSource(t, ctorDtorSample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	var sawSpin bool
	VisitChildren(tu.RootCursor(), func(c *Cursor) VisitResult {
		if c.Kind() == KindFunctionDefinition && c.Spelling() == "spin" {
			sawSpin = true
		}
		return Recurse
	})
	require.True(t, sawSpin)
}

func TestCursorAtResolvesInnermostNode(t *testing.T) {
	path := writeSource(t, sample)
	f := New()
	interns := location.NewTable()

	tu, err := f.Parse(path, types.CompileCommand{}, ParseOptions{}, interns)
	require.NoError(t, err)
	defer tu.Close()

	c := tu.CursorAt(3, 7) // "class Foo" line, inside "Foo"
	require.True(t, c.IsValid())
}
