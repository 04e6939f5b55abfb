// Package parseworker implements ParseWorker: a single goroutine owning
// the front end, turning add/remove requests into a FIFO stream of
// parsed/invalidated events for VisitWorker and the Query facade's TU
// cache.
package parseworker

import (
	"context"
	"sync"

	"github.com/cxrefd/cxrefd/internal/debug"
	"github.com/cxrefd/cxrefd/internal/frontend"
	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/types"
)

// EventKind classifies an Event sent downstream.
type EventKind uint8

const (
	EventParsed EventKind = iota
	EventInvalidated
	EventFailed
)

// Event is the unit of the FIFO channel out of ParseWorker. Within one
// path, invalidation always precedes the reparse that follows it. A
// Parsed event's TU is a one-time
// hand-off: ParseWorker keeps no reference to it once emitted, so the
// receiver (the Query facade's TU cache) becomes its sole owner.
type Event struct {
	Kind EventKind
	Path pathutil.Path
	TU   *frontend.TU
	Err  error
}

type jobKind uint8

const (
	jobAddFile jobKind = iota
	jobRemove
	jobLoad
)

type job struct {
	kind jobKind
	path pathutil.Path
	args types.CompileCommand

	// astPath is only meaningful for jobLoad: the saved-AST blob to read,
	// as opposed to path, which is the source file it stands in for.
	astPath pathutil.Path
}

// Worker owns the front end exclusively: only its goroutine ever calls
// into frontend.Facade. It tracks which paths currently have a live TU
// downstream (without holding the TU itself) so AddFile knows whether an
// invalidation must precede the next parse.
type Worker struct {
	facade  *frontend.Facade
	interns *location.Table

	jobs   chan *job
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	live       map[pathutil.Path]bool
	pendingAdd map[pathutil.Path]*job

	// astDir is the scratch directory successful parses are mirrored
	// into (config.Scratch.ASTDir). Empty means "don't persist" -- the
	// zero value of config.Config leaves this disabled, which is what
	// every test in this repo relies on to stay confined to t.TempDir().
	astDir string
}

// New creates a Worker with the given job/event queue depth (from
// config.Worker.ParseQueueSize).
func New(facade *frontend.Facade, interns *location.Table, queueSize int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		facade:     facade,
		interns:    interns,
		jobs:       make(chan *job, queueSize),
		events:     make(chan Event, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		live:       make(map[pathutil.Path]bool),
		pendingAdd: make(map[pathutil.Path]*job),
	}
}

// Events returns the channel downstream consumers read from. Closed once
// the worker's run loop exits after Abort.
func (w *Worker) Events() <-chan Event { return w.events }

// SetASTDir enables mirroring every successful parse to astDir, laid out
// per spec §6 ("<app-dir>/ast/<absolute-source-path>") via
// pathutil.ASTBlobPath. Must be called before Start; an empty astDir (the
// default) disables persistence entirely.
func (w *Worker) SetASTDir(astDir string) { w.astDir = astDir }

// Start launches the worker's single goroutine. Must be called exactly
// once.
func (w *Worker) Start() {
	go w.run()
}

// AddFile enqueues a parse (or reparse) request for path. If a TU is
// already live for path, the worker emits invalidated(path) before
// parsing the replacement, so consumers always see invalidate-then-parse
// in that order for the same path, preserving the single-live-TU-per-path
// invariant.
//
// If a queued add job for path hasn't been picked up by the worker yet,
// its args are replaced in place instead of enqueuing a second job: a
// burst of rapid add calls for one path coalesces into a single parse
// using the newest args, rather than running a stale parse first.
func (w *Worker) AddFile(path pathutil.Path, args types.CompileCommand) {
	w.mu.Lock()
	if pending, ok := w.pendingAdd[path]; ok {
		pending.args = args
		w.mu.Unlock()
		return
	}
	j := &job{kind: jobAddFile, path: path, args: args}
	w.pendingAdd[path] = j
	w.mu.Unlock()

	select {
	case w.jobs <- j:
	case <-w.ctx.Done():
		w.mu.Lock()
		delete(w.pendingAdd, path)
		w.mu.Unlock()
	}
}

// Remove enqueues invalidation of path with no replacement parse.
func (w *Worker) Remove(path pathutil.Path) {
	j := &job{kind: jobRemove, path: path}
	select {
	case w.jobs <- j:
	case <-w.ctx.Done():
	}
}

// Load enqueues a request to populate path's TU from a previously saved
// AST blob at astPath rather than reparsing source. Like AddFile, an
// invalidation precedes it if path already has a live TU.
func (w *Worker) Load(astPath, path pathutil.Path) {
	j := &job{kind: jobLoad, path: path, astPath: astPath}
	select {
	case w.jobs <- j:
	case <-w.ctx.Done():
	}
}

// Abort cancels the worker's context and blocks until its goroutine has
// exited and closed Events(). Any front-end operation in flight when
// Abort is called is allowed to finish; no new job is accepted afterward.
// Cancellation is cooperative, not preemptive.
func (w *Worker) Abort() {
	w.cancel()
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	defer close(w.events)
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			w.process(j)
		}
	}
}

func (w *Worker) process(j *job) {
	if j.kind == jobAddFile {
		w.mu.Lock()
		delete(w.pendingAdd, j.path)
		w.mu.Unlock()
	}
	switch j.kind {
	case jobRemove:
		w.invalidate(j.path)
	case jobAddFile:
		w.invalidate(j.path)
		w.parse(j.path, j.args)
	case jobLoad:
		w.invalidate(j.path)
		w.load(j.astPath, j.path)
	}
}

func (w *Worker) invalidate(path pathutil.Path) {
	w.mu.Lock()
	wasLive := w.live[path]
	delete(w.live, path)
	w.mu.Unlock()
	if !wasLive {
		return
	}
	debug.LogParse("invalidated %s", path)
	w.emit(Event{Kind: EventInvalidated, Path: path})
}

func (w *Worker) parse(path pathutil.Path, args types.CompileCommand) {
	tu, err := w.facade.Parse(path, args, frontend.ParseOptions{DetailedPreprocessingRecord: true}, w.interns)
	if err != nil {
		debug.LogParse("parse failed for %s: %v", path, err)
		w.emit(Event{Kind: EventFailed, Path: path, Err: err})
		return
	}
	w.mu.Lock()
	w.live[path] = true
	w.mu.Unlock()
	debug.LogParse("parsed %s", path)
	w.persist(tu, path)
	w.emit(Event{Kind: EventParsed, Path: path, TU: tu})
}

// persist mirrors tu to the scratch AST directory, if one is configured.
// A write failure is logged, not surfaced: the scratch cache is a
// best-effort speedup for a later `load`, never a correctness
// requirement (spec §1 Non-goals: no durable index is required).
func (w *Worker) persist(tu *frontend.TU, path pathutil.Path) {
	if w.astDir == "" {
		return
	}
	blob := pathutil.ASTBlobPath(w.astDir, path)
	if err := w.facade.Save(tu, blob); err != nil {
		debug.LogParse("scratch-save failed for %s: %v", path, err)
	}
}

// load reads a saved AST blob at astPath and installs it as path's TU,
// emitting the same Parsed/Failed events a fresh parse would, so
// downstream consumers (the Query facade's TU cache, VisitWorker) treat
// a load exactly like a reparse.
func (w *Worker) load(astPath, path pathutil.Path) {
	tu, err := w.facade.Load(astPath, path, w.interns)
	if err != nil {
		debug.LogParse("load failed for %s: %v", path, err)
		w.emit(Event{Kind: EventFailed, Path: path, Err: err})
		return
	}
	w.mu.Lock()
	w.live[path] = true
	w.mu.Unlock()
	debug.LogParse("loaded %s", path)
	w.emit(Event{Kind: EventParsed, Path: path, TU: tu})
}

func (w *Worker) emit(e Event) {
	select {
	case w.events <- e:
	case <-w.ctx.Done():
	}
}

// MarkRemoved lets an external owner (the Query facade's TU cache) tell
// the worker a path's TU was released outside the normal add/remove job
// flow, so a later AddFile for the same path doesn't emit a redundant
// invalidated event. Used by `remove`, which releases the cache entry
// synchronously on the Query thread rather than going through the job
// queue.
func (w *Worker) MarkRemoved(path pathutil.Path) {
	w.mu.Lock()
	delete(w.live, path)
	w.mu.Unlock()
}
