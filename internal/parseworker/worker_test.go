package parseworker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cxrefd/cxrefd/internal/frontend"
	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/types"
)

func writeCppFile(t *testing.T, content string) pathutil.Path {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "a.cpp")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return pathutil.MustResolve(p)
}

func recvEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestAddFileEmitsParsedEvent(t *testing.T) {
	path := writeCppFile(t, "int main() { return 0; }\n")

	w := New(frontend.New(), location.NewTable(), 4)
	w.Start()
	defer w.Abort()

	w.AddFile(path, types.CompileCommand{})
	ev := recvEvent(t, w.Events())

	require.Equal(t, EventParsed, ev.Kind)
	require.Equal(t, path, ev.Path)
	require.NotNil(t, ev.TU)
	ev.TU.Close()
}

func TestReparseEmitsInvalidatedBeforeParsed(t *testing.T) {
	path := writeCppFile(t, "int main() { return 0; }\n")

	w := New(frontend.New(), location.NewTable(), 4)
	w.Start()
	defer w.Abort()

	w.AddFile(path, types.CompileCommand{})
	first := recvEvent(t, w.Events())
	require.Equal(t, EventParsed, first.Kind)
	first.TU.Close()

	w.AddFile(path, types.CompileCommand{})
	second := recvEvent(t, w.Events())
	require.Equal(t, EventInvalidated, second.Kind, "reparsing a live path must invalidate first")

	third := recvEvent(t, w.Events())
	require.Equal(t, EventParsed, third.Kind)
	third.TU.Close()
}

func TestRapidAddFileCallsCoalesceIntoOneParse(t *testing.T) {
	path := writeCppFile(t, "int main() { return 0; }\n")

	w := New(frontend.New(), location.NewTable(), 4)
	defer w.Abort()

	// Neither call is drained yet: the worker hasn't started, so the
	// second AddFile must find the first job still pending and overwrite
	// its args in place rather than enqueuing a second job.
	w.AddFile(path, types.CompileCommand{Args: []string{"-DFIRST"}})
	w.AddFile(path, types.CompileCommand{Args: []string{"-DSECOND"}})

	w.Start()

	ev := recvEvent(t, w.Events())
	require.Equal(t, EventParsed, ev.Kind)
	ev.TU.Close()

	select {
	case extra := <-w.Events():
		t.Fatalf("expected coalesced single parse, got extra event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRemoveOnUnknownPathEmitsNothing(t *testing.T) {
	w := New(frontend.New(), location.NewTable(), 4)
	w.Start()
	defer w.Abort()

	w.Remove(pathutil.Path("/never/added.cpp"))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for a path that was never live: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAddFileOnMissingSourceEmitsFailed(t *testing.T) {
	w := New(frontend.New(), location.NewTable(), 4)
	w.Start()
	defer w.Abort()

	w.AddFile(pathutil.Path("/does/not/exist.cpp"), types.CompileCommand{})
	ev := recvEvent(t, w.Events())
	require.Equal(t, EventFailed, ev.Kind)
	require.Error(t, ev.Err)
}

func TestAbortClosesEventsChannel(t *testing.T) {
	w := New(frontend.New(), location.NewTable(), 4)
	w.Start()
	w.Abort()

	_, ok := <-w.Events()
	require.False(t, ok)
}

func TestLoadEmitsParsedEventFromSavedBlob(t *testing.T) {
	srcPath := writeCppFile(t, "class Foo {};\n")
	facade := frontend.New()
	interns := location.NewTable()

	tu, err := facade.Parse(srcPath, types.CompileCommand{}, frontend.ParseOptions{}, interns)
	require.NoError(t, err)
	astPath := pathutil.Path(filepath.Join(filepath.Dir(string(srcPath)), "a.ast"))
	require.NoError(t, facade.Save(tu, astPath))
	tu.Close()

	w := New(facade, interns, 4)
	w.Start()
	defer w.Abort()

	w.Load(astPath, astPath)
	ev := recvEvent(t, w.Events())
	require.Equal(t, EventParsed, ev.Kind)
	require.Equal(t, astPath, ev.Path)
	require.NotNil(t, ev.TU)
	ev.TU.Close()
}

func TestMarkRemovedSuppressesRedundantInvalidate(t *testing.T) {
	path := writeCppFile(t, "int main() { return 0; }\n")

	w := New(frontend.New(), location.NewTable(), 4)
	w.Start()
	defer w.Abort()

	w.AddFile(path, types.CompileCommand{})
	first := recvEvent(t, w.Events())
	require.Equal(t, EventParsed, first.Kind)
	first.TU.Close()

	w.MarkRemoved(path)

	w.AddFile(path, types.CompileCommand{})
	ev := recvEvent(t, w.Events())
	require.Equal(t, EventParsed, ev.Kind, "MarkRemoved should suppress the redundant invalidate")
	ev.TU.Close()
}
