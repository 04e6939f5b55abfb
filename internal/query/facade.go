// Package query implements the Query facade: it dispatches a command
// name to a handler, coordinating ParseWorker, VisitWorker and the
// includeaudit.Auditor, and formats every result as the single `result`
// string the external interface expects.
//
// Dispatch is a plain string switch, the same shape as a small RPC
// router, and it centralizes indexer/search-engine access behind one
// struct that owns the request-handling goroutine's view of shared
// state.
package query

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cxrefd/cxrefd/internal/config"
	"github.com/cxrefd/cxrefd/internal/cxrerrors"
	"github.com/cxrefd/cxrefd/internal/debug"
	"github.com/cxrefd/cxrefd/internal/frontend"
	"github.com/cxrefd/cxrefd/internal/includeaudit"
	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/makefile"
	"github.com/cxrefd/cxrefd/internal/parseworker"
	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/symbol"
	"github.com/cxrefd/cxrefd/internal/types"
	"github.com/cxrefd/cxrefd/internal/visitworker"
)

// Result is the single-field reply every handler produces: a reply is
// always a mapping with a single result key.
type Result struct {
	Result string
}

// Request is one parsed command: a command name, a set of dashed
// arguments, and an ordered list of free arguments.
type Request struct {
	Command string
	Args    map[string]string
	Free    []string
}

// Facade owns the TU cache (path -> live TU), guarded by mu: forward()
// applies ParseWorker's events to it, and the remove and load handlers
// also update it directly.
type Facade struct {
	cfg     *config.Config
	interns *location.Table

	parseWorker *parseworker.Worker
	visitWorker *visitworker.Worker

	mu      sync.Mutex
	tuCache map[pathutil.Path]*frontend.TU

	cancelVisit   context.CancelFunc
	forwarderDone chan struct{}
}

// New wires a Facade: it constructs ParseWorker and VisitWorker, starts
// both plus the event-forwarding goroutine that keeps the TU cache in
// sync with ParseWorker's output, and returns ready to accept commands.
func New(cfg *config.Config, ff *frontend.Facade, interns *location.Table) *Facade {
	pw := parseworker.New(ff, interns, cfg.Worker.ParseQueueSize)
	pw.SetASTDir(cfg.Scratch.ASTDir)
	visitEvents := make(chan parseworker.Event, cfg.Worker.VisitQueueSize)
	vw := visitworker.New(interns, visitEvents)

	f := &Facade{
		cfg:           cfg,
		interns:       interns,
		parseWorker:   pw,
		visitWorker:   vw,
		tuCache:       make(map[pathutil.Path]*frontend.TU),
		forwarderDone: make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancelVisit = cancel
	pw.Start()
	vw.Start(ctx)
	go f.forward(pw.Events(), visitEvents)
	return f
}

// forward applies every ParseWorker event to tuCache (under mu), then
// relays it on to VisitWorker so both consumers see the same FIFO order
// ParseWorker produced.
func (f *Facade) forward(in <-chan parseworker.Event, out chan<- parseworker.Event) {
	defer close(out)
	defer close(f.forwarderDone)
	for ev := range in {
		f.mu.Lock()
		switch ev.Kind {
		case parseworker.EventParsed:
			if old, ok := f.tuCache[ev.Path]; ok {
				old.Close()
			}
			f.tuCache[ev.Path] = ev.TU
		case parseworker.EventInvalidated, parseworker.EventFailed:
			if old, ok := f.tuCache[ev.Path]; ok {
				old.Close()
				delete(f.tuCache, ev.Path)
			}
		}
		f.mu.Unlock()
		out <- ev
	}
}

// Dispatch routes req to its handler via a string-keyed switch. An
// unrecognized command name yields "Unknown command".
func (f *Facade) Dispatch(req Request) Result {
	switch req.Command {
	case "syntax":
		return f.handleSyntax()
	case "quit":
		return f.handleQuit()
	case "add":
		return f.handleAdd(req.Args)
	case "remove":
		return f.handleRemove(req.Args, req.Free)
	case "makefile":
		return f.handleMakefile(req.Args, req.Free)
	case "files":
		return f.handleFiles(req.Args)
	case "lookup":
		return f.handleLookup(req.Args, req.Free)
	case "lookupline":
		return f.handleLookupLine(req.Args)
	case "printtree":
		return f.handlePrintTree()
	case "load":
		return f.handleLoad(req.Free)
	case "checkincludes":
		return f.handleCheckIncludes()
	case "scan":
		return f.handleScan()
	default:
		debug.LogQuery("unknown command %q", req.Command)
		return Result{Result: "Unknown command"}
	}
}

func (f *Facade) handleSyntax() Result {
	return Result{Result: strings.Join([]string{
		"syntax                                   this help",
		"quit                                     shut down the daemon",
		"add --file=<path>                        parse and index a file",
		"remove <pattern> [--regexp|--r]           drop cached TUs matching pattern",
		"makefile <path> [--accept=rx] [--reject=rx]  ingest a compile-command listing",
		"files [--regexp=rx | --match=substr]     list indexed files",
		"lookup [--types=k1,k2] [--regexp] <pat>  search the symbol forest",
		"lookupline --file=<path> --line=<n> --column=<n>  resolve a cursor location",
		"printtree                                 dump the symbol forest",
		"load <path>                               load a saved AST",
		"checkincludes                             run the include auditor",
		"scan                                      add every project.root file passing Include/Exclude",
	}, "\n")}
}

// handleQuit implements `quit`: abort ParseWorker, stop VisitWorker,
// then reply once both have drained. This does not terminate the
// process; the host that owns the command loop does that after
// receiving this result, so the response is always sent before teardown
// starts.
func (f *Facade) handleQuit() Result {
	f.parseWorker.Abort()

	var g errgroup.Group
	g.Go(func() error {
		<-f.forwarderDone
		return nil
	})
	g.Go(func() error {
		f.cancelVisit()
		<-f.visitWorker.Done()
		return nil
	})
	_ = g.Wait()

	debug.LogQuery("quit: both workers drained")
	return Result{Result: "quitting"}
}

func (f *Facade) handleAdd(args map[string]string) Result {
	raw, ok := args["file"]
	if !ok || raw == "" {
		return errResult(cxrerrors.New(cxrerrors.InvalidArgument, "add", "No file to add (use --file=<file>)"))
	}
	path, err := pathutil.Resolve(raw)
	if err != nil || !path.IsFile() {
		return errResult(cxrerrors.New(cxrerrors.ResolutionFailure, "add", raw+" doesn't exist"))
	}
	f.parseWorker.AddFile(path, types.CompileCommand{})
	return Result{Result: "File added"}
}

// handleRemove matches paths against the free argument, then removes
// them from the TU cache. Each matched path is recorded before its
// cache entry is deleted, so the reported list always names what was
// actually removed rather than whatever a map iterator lands on next.
func (f *Facade) handleRemove(args map[string]string, free []string) Result {
	_, byRegexp := args["regexp"]
	_, byR := args["r"]
	regexpMode := byRegexp || byR

	if len(free) != 1 || free[0] == "" {
		return errResult(cxrerrors.New(cxrerrors.InvalidArgument, "remove", "Invalid arguments. I need exactly one free arg"))
	}

	var rx *regexp.Regexp
	if regexpMode {
		compiled, err := regexp.Compile(free[0])
		if err != nil {
			return errResult(cxrerrors.New(cxrerrors.InvalidArgument, "remove", "Invalid arguments. Bad regexp"))
		}
		rx = compiled
	}

	f.mu.Lock()
	var toRemove []pathutil.Path
	for path := range f.tuCache {
		matched := (regexpMode && rx.MatchString(string(path))) || (!regexpMode && strings.Contains(string(path), free[0]))
		if matched {
			toRemove = append(toRemove, path)
		}
	}
	sort.Slice(toRemove, func(i, j int) bool { return toRemove[i] < toRemove[j] })
	for _, path := range toRemove {
		if tu, ok := f.tuCache[path]; ok {
			tu.Close()
			delete(f.tuCache, path)
		}
	}
	f.mu.Unlock()

	for _, path := range toRemove {
		// Invalidate the forest synchronously so files()/lookup() no longer
		// see this path's symbols once remove returns, rather than waiting
		// on the asynchronous parse/visit event pipeline to catch up.
		if fileID, ok := f.interns.Lookup(path); ok {
			f.visitWorker.InvalidateSync(fileID)
		}
		f.parseWorker.MarkRemoved(path)
	}

	if len(toRemove) == 0 {
		return Result{Result: "No matches for " + free[0]}
	}
	names := make([]string, len(toRemove))
	for i, p := range toRemove {
		names[i] = string(p)
	}
	return Result{Result: "Removed " + strings.Join(names, ", ")}
}

func (f *Facade) handleMakefile(args map[string]string, free []string) Result {
	if len(free) == 0 {
		return Result{Result: "No Makefile passed"}
	}
	path, err := pathutil.Resolve(free[0])
	if err != nil || !path.IsFile() {
		return Result{Result: "Makefile does not exist: " + free[0]}
	}

	var accept, reject *regexp.Regexp
	if pattern, ok := args["accept"]; ok && pattern != "" {
		accept, _ = regexp.Compile(pattern)
	}
	if pattern, ok := args["reject"]; ok && pattern != "" {
		reject, _ = regexp.Compile(pattern)
	}

	file, err := os.Open(string(path))
	if err != nil {
		return errResult(cxrerrors.Wrap(cxrerrors.Internal, "makefile", err))
	}
	defer file.Close()

	entries, err := makefile.Parse(file, func(source pathutil.Path) bool {
		s := string(source)
		if reject != nil && reject.MatchString(s) {
			return false
		}
		if accept != nil {
			return accept.MatchString(s)
		}
		return true
	})
	if err != nil {
		return errResult(cxrerrors.Wrap(cxrerrors.Internal, "makefile", err))
	}

	for _, entry := range entries {
		f.parseWorker.AddFile(entry.Source, entry.Command)
	}
	return Result{Result: "Added makefile"}
}

func (f *Facade) handleFiles(args map[string]string) Result {
	fileIDs := f.visitWorker.Forest().Files()

	var rx *regexp.Regexp
	if pattern, ok := args["regexp"]; ok && pattern != "" {
		rx, _ = regexp.Compile(pattern)
	}
	substr := args["match"]

	var paths []string
	for id := range fileIDs {
		p := f.interns.Path(id)
		s := string(p)
		if rx != nil && !rx.MatchString(s) {
			continue
		}
		if rx == nil && substr != "" && !strings.Contains(s, substr) {
			continue
		}
		paths = append(paths, s)
	}
	sort.Strings(paths)
	return Result{Result: strings.Join(paths, "\n")}
}

func (f *Facade) handleLookup(args map[string]string, free []string) Result {
	mask := types.KindAll
	if raw, ok := args["types"]; ok && raw != "" {
		mask = 0
		for _, name := range strings.Split(raw, ",") {
			if kind, ok := types.ParseKind(strings.TrimSpace(name)); ok {
				mask |= kind
			}
		}
	}

	var flags symbol.Flag
	if _, ok := args["regexp"]; ok {
		flags |= symbol.FlagRegExp
	}

	var lines []string
	f.visitWorker.Forest().Lookup(free, flags, mask, func(n *symbol.Node, qualifiedName string) {
		lines = append(lines, fmt.Sprintf("%s %s %s:%d:%d", n.Kind, qualifiedName,
			f.interns.Path(n.Location.File), n.Location.Line, n.Location.Column))
	})
	return Result{Result: strings.Join(lines, "\n")}
}

func (f *Facade) handleLookupLine(args map[string]string) Result {
	rawPath, hasFile := args["file"]
	rawLine, hasLine := args["line"]
	rawColumn, hasColumn := args["column"]
	if !hasFile || !hasLine || !hasColumn {
		return errResult(cxrerrors.New(cxrerrors.InvalidArgument, "lookupline", "Invalid argument count"))
	}

	// Resolution is a pure function with no observable "already resolved"
	// state to branch on, so it is simply always applied.
	path, err := pathutil.Resolve(rawPath)
	line, lineErr := strconv.Atoi(rawLine)
	column, columnErr := strconv.Atoi(rawColumn)
	if err != nil || lineErr != nil || columnErr != nil || !path.IsFile() || line == 0 || column == 0 {
		return errResult(cxrerrors.New(cxrerrors.InvalidArgument, "lookupline", "Invalid argument type"))
	}

	f.mu.Lock()
	tu, ok := f.tuCache[path]
	f.mu.Unlock()
	if !ok || tu == nil {
		return errResult(cxrerrors.New(cxrerrors.NotFound, "lookupline", "Translation unit not found"))
	}

	cursor := tu.CursorAt(uint32(line), uint32(column))
	if !cursor.IsValid() {
		return errResult(cxrerrors.New(cxrerrors.NotFound, "lookupline", "Unable to get cursor for location"))
	}

	var referenced *frontend.Cursor
	if cursor.IsMethod() {
		referenced = cursor.Canonical()
	} else {
		referenced = cursor.Referenced()
	}
	if !referenced.IsValid() {
		return errResult(cxrerrors.New(cxrerrors.NotFound, "lookupline", "No referenced cursor"))
	}

	loc := referenced.Location()
	return Result{Result: fmt.Sprintf("Symbol (decl) at %s, line %d column %d", f.interns.Path(loc.File), loc.Line, loc.Column)}
}

func (f *Facade) handlePrintTree() Result {
	var sb strings.Builder
	f.visitWorker.Forest().PrintTree(&sb)
	return Result{Result: sb.String()}
}

// handleLoad never blocks on the load itself: it installs a nil sentinel
// in tuCache and hands the actual work to ParseWorker, replying
// immediately. The eventual result arrives through the same forward()
// event pipeline a fresh parse would use, closing the sentinel in place.
//
// The free arg is the source path, matching the key files()/lookupline
// use for that same file; the saved-AST blob location is derived from it
// via the scratch layout in spec §6 ("<app-dir>/ast/<source-path>"),
// never passed explicitly.
func (f *Facade) handleLoad(free []string) Result {
	if len(free) == 0 {
		return errResult(cxrerrors.New(cxrerrors.InvalidArgument, "load", "No path passed"))
	}
	path, err := pathutil.Resolve(free[0])
	if err != nil {
		return errResult(cxrerrors.Wrap(cxrerrors.ResolutionFailure, "load", err))
	}
	if f.cfg.Scratch.ASTDir == "" {
		return errResult(cxrerrors.New(cxrerrors.InvalidArgument, "load", "No scratch AST directory configured"))
	}
	blob := pathutil.ASTBlobPath(f.cfg.Scratch.ASTDir, path)
	if !blob.IsFile() {
		return errResult(cxrerrors.New(cxrerrors.NotFound, "load", "No saved AST for "+string(path)))
	}

	f.mu.Lock()
	if old, ok := f.tuCache[path]; ok {
		old.Close()
	}
	f.tuCache[path] = nil // sentinel: present but not ready until forward() replaces it
	f.mu.Unlock()

	f.parseWorker.Load(blob, path)
	return Result{Result: "Loading"}
}

func (f *Facade) handleCheckIncludes() Result {
	findings := f.visitWorker.Auditor().Check(f.visitWorker.ResolvePath)
	if len(findings) == 0 {
		return Result{Result: "No findings"}
	}
	lines := make([]string, 0, len(findings))
	for _, finding := range findings {
		source := f.interns.Path(finding.Source)
		other := f.interns.Path(finding.Other)
		switch finding.Kind {
		case includeaudit.UnusedInclude:
			lines = append(lines, fmt.Sprintf("%s includes %s for no reason", source, other))
		case includeaudit.MissingInclude:
			lines = append(lines, fmt.Sprintf("%s should include %s (%s)", source, other, strings.Join(finding.Reasons, " ")))
		}
	}
	return Result{Result: strings.Join(lines, "\n")}
}

// sourceExtensions are the file suffixes handleScan treats as indexable
// C/C++ translation units, matching what frontend.Facade.Parse expects.
var sourceExtensions = map[string]bool{
	".c":   true,
	".cc":  true,
	".cpp": true,
	".cxx": true,
	".h":   true,
	".hh":  true,
	".hpp": true,
	".hxx": true,
}

// handleScan walks cfg.Project.Root, queuing every source file that
// survives cfg.ShouldIndex's Include/Exclude glob filter -- the bulk
// equivalent of calling `add` once per file in a tree, for a project
// that has no Makefile to crib compile commands from. Once
// cfg.Index.MaxFileCount files have been accepted, no further file is
// queued; the remaining source files that pass the filters are counted
// and reported as skipped.
func (f *Facade) handleScan() Result {
	root := f.cfg.Project.Root
	limit := f.cfg.Index.MaxFileCount

	var accepted, truncated int
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if limit > 0 && accepted >= limit {
			truncated++
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !f.cfg.ShouldIndex(rel) {
			return nil
		}
		if limit > 0 && accepted >= limit {
			truncated++
			return nil
		}
		path, err := pathutil.Resolve(p)
		if err != nil {
			return nil
		}
		f.parseWorker.AddFile(path, types.CompileCommand{})
		accepted++
		return nil
	})
	if err != nil {
		return errResult(cxrerrors.Wrap(cxrerrors.Internal, "scan", err))
	}

	msg := fmt.Sprintf("Scanned %d files", accepted)
	if truncated > 0 {
		msg += fmt.Sprintf(" (stopped at max-file-count, %d more skipped)", truncated)
	}
	return Result{Result: msg}
}

func errResult(err error) Result {
	return Result{Result: err.Error()}
}
