// Package config loads daemon configuration from an optional .cxref.kdl
// file: sane in-code defaults, overridden node-by-node by whatever the
// KDL file specifies.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// Config is per-process configuration for the daemon. There is no
// environment-variable configuration surface: every knob here comes
// from the KDL file or a CLI flag override.
type Config struct {
	Project Project
	Scratch Scratch
	Worker  Worker
	Index   Index
	Include []string
	Exclude []string
}

type Project struct {
	Root string
}

// Scratch controls the on-disk AST cache, laid out under
// "<app-dir>/ast/<absolute-source-path>".
type Scratch struct {
	ASTDir string
}

// Worker sizes the ParseWorker queue and VisitWorker event channel.
type Worker struct {
	ParseQueueSize int
	VisitQueueSize int
}

// Index bounds the `scan` command's directory walk: once MaxFileCount
// files have been accepted, no further file is queued, rather than
// queuing an unbounded number of parse jobs from one command.
type Index struct {
	MaxFileCount int
}

// Default returns the built-in configuration, populated with a
// default-struct-then-override idiom. Scratch.ASTDir is left empty here
// -- ParseWorker treats that as "don't persist ASTs" -- so a Default()
// config never writes outside a caller-chosen directory; cmd/cxrefd
// fills in DefaultASTDir as the real cache-directory default for the CLI.
func Default() *Config {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	return &Config{
		Project: Project{Root: root},
		Worker:  Worker{ParseQueueSize: 256, VisitQueueSize: 256},
		Index:   Index{MaxFileCount: 10000},
		Include: []string{},
		Exclude: []string{"**/.git/**", "**/node_modules/**", "**/build/**"},
	}
}

// DefaultASTDir is the scratch AST cache location a real daemon process
// uses absent an explicit --ast-dir/config override: "<user cache
// dir>/cxrefd/ast", matching spec §6's "<app-dir>/ast/<source-path>"
// layout. Library/test callers that want Default()'s quiet behavior
// simply never call this.
func DefaultASTDir() string {
	appDir, err := os.UserCacheDir()
	if err != nil {
		appDir = os.TempDir()
	}
	return filepath.Join(appDir, "cxrefd", "ast")
}

// Load reads configPath (a .cxref.kdl file) if present and merges it over
// Default(). A missing file is not an error -- Default() alone is
// returned.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	content, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", configPath, err)
	}

	if err := mergeKDL(cfg, string(content)); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
	}

	if !filepath.IsAbs(cfg.Project.Root) {
		base := filepath.Dir(configPath)
		cfg.Project.Root = filepath.Clean(filepath.Join(base, cfg.Project.Root))
	}
	return cfg, nil
}

func mergeKDL(cfg *Config, content string) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return err
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignString(cn, "root", func(v string) { cfg.Project.Root = v })
			}
		case "scratch":
			for _, cn := range n.Children {
				assignString(cn, "ast-dir", func(v string) { cfg.Scratch.ASTDir = v })
			}
		case "worker":
			for _, cn := range n.Children {
				assignInt(cn, "parse-queue-size", func(v int) { cfg.Worker.ParseQueueSize = v })
				assignInt(cn, "visit-queue-size", func(v int) { cfg.Worker.VisitQueueSize = v })
			}
		case "index":
			for _, cn := range n.Children {
				assignInt(cn, "max-file-count", func(v int) { cfg.Index.MaxFileCount = v })
			}
		case "include":
			cfg.Include = collectStringArgs(n)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		}
	}
	return nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	s, ok := n.Arguments[0].Value.(string)
	return s, ok
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func assignString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

func assignInt(n *document.Node, target string, set func(int)) {
	if nodeName(n) == target {
		if v, ok := firstIntArg(n); ok {
			set(v)
		}
	}
}

// ShouldIndex reports whether relPath (project-root-relative, slash
// separated) survives the Include/Exclude glob filters, used by the
// query facade's `scan` command. Exclusion always
// wins; an empty Include list means "everything not excluded".
func (c *Config) ShouldIndex(relPath string) bool {
	for _, pat := range c.Exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}
	if len(c.Include) == 0 {
		return true
	}
	for _, pat := range c.Include {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return true
		}
	}
	return false
}

// collectStringArgs reads either inline arguments (`exclude "a" "b"`) or a
// block of child nodes (`exclude { "a" "b" }`), supporting both formats.
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
