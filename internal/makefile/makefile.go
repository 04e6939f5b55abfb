// Package makefile ingests a compile_commands-style build log into
// per-source CompileCommands. Each non-blank line is one compiler
// invocation; the ingestor extracts -I/-D/standard flags and the last
// non-flag argument as the source path.
//
// This is the one component in the pipeline deliberately built on the
// standard library: no shell-tokenizing or compile-command-database
// library is a natural fit here, so bufio.Scanner plus strings (the same
// idiom used for other line-oriented text elsewhere in this codebase) is
// what a reader would expect.
package makefile

import (
	"bufio"
	"io"
	"strings"

	"github.com/cxrefd/cxrefd/internal/pathutil"
	"github.com/cxrefd/cxrefd/internal/types"
)

// Entry is one parsed compiler invocation.
type Entry struct {
	Source  pathutil.Path
	Command types.CompileCommand
}

// Filter accepts or rejects an entry by its resolved source path (never
// applied to flag values).
type Filter func(source pathutil.Path) bool

// recognizedFlagPrefixes are the argument shapes the ingestor keeps
// verbatim; everything else on a compile line is treated as either the
// compiler name (first token) or a candidate source path.
var recognizedFlagPrefixes = []string{"-I", "-D", "-std=", "-isystem", "-include"}

// Parse reads r line by line, one compile command per line, and returns
// an Entry for every line whose last non-flag token resolves to an
// existing file that accept allows. A nil accept keeps everything.
func Parse(r io.Reader, accept Filter) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if shouldSkipLine(line) {
			continue
		}

		entry, ok := parseLine(line)
		if !ok {
			continue
		}
		if accept != nil && !accept(entry.Source) {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func shouldSkipLine(line string) bool {
	return line == "" || strings.HasPrefix(line, "#")
}

// parseLine tokenizes one compile-command line on whitespace (no
// shell-quote handling; a quoted argument with embedded spaces is out of
// scope) and splits it into recognized flags plus a trailing source
// path.
func parseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Entry{}, false
	}

	var args []string
	var sourceRaw string
	for _, f := range fields[1:] { // fields[0] is the compiler name
		if isRecognizedFlag(f) {
			args = append(args, f)
			continue
		}
		if strings.HasPrefix(f, "-") {
			continue // unrecognized flag, ignored
		}
		sourceRaw = f // last positional wins, matching a trailing source arg
	}
	if sourceRaw == "" {
		return Entry{}, false
	}

	source, err := pathutil.Resolve(sourceRaw)
	if err != nil || !source.IsFile() {
		return Entry{}, false
	}

	return Entry{Source: source, Command: types.CompileCommand{Args: args}}, true
}

func isRecognizedFlag(f string) bool {
	for _, prefix := range recognizedFlagPrefixes {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}
