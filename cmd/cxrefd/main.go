package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/cxrefd/cxrefd/internal/config"
	"github.com/cxrefd/cxrefd/internal/debug"
	"github.com/cxrefd/cxrefd/internal/frontend"
	"github.com/cxrefd/cxrefd/internal/location"
	"github.com/cxrefd/cxrefd/internal/query"
)

func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", c.String("config"), err)
	}

	if root := c.String("root"); root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		cfg.Project.Root = abs
	}
	if astDir := c.String("ast-dir"); astDir != "" {
		cfg.Scratch.ASTDir = astDir
	} else if cfg.Scratch.ASTDir == "" {
		cfg.Scratch.ASTDir = config.DefaultASTDir()
	}
	if inc := c.StringSlice("include"); len(inc) > 0 {
		cfg.Include = inc
	}
	if exc := c.StringSlice("exclude"); len(exc) > 0 {
		cfg.Exclude = append(cfg.Exclude, exc...)
	}
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:  "cxrefd",
		Usage: "persistent C/C++ cross-reference daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   ".cxref.kdl",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringFlag{
				Name:  "ast-dir",
				Usage: "Scratch directory for persisted ASTs (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns",
			},
		},
		Action: runCommandLoop,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cxrefd: %v\n", err)
		os.Exit(1)
	}
}

// runCommandLoop wires together the facade stack and reads commands from
// stdin until `quit` or EOF, printing each Result.Result line to stdout.
// This stands in for the daemon's actual IPC transport, which is out of
// scope: it exercises the same command surface a real transport would
// dispatch to.
func runCommandLoop(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	ff := frontend.New()
	interns := location.NewTable()
	facade := query.New(cfg, ff, interns)

	debug.LogQuery("cxrefd ready, root=%s", cfg.Project.Root)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		req := parseRequest(line)
		result := facade.Dispatch(req)
		fmt.Println(result.Result)
		if req.Command == "quit" {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading commands: %w", err)
	}
	return nil
}

// parseRequest tokenizes a line into a command, dashed arguments
// (--key=value, or a bare --flag with an empty value), and an ordered
// list of free arguments,
// matching the request shape the query facade expects. No shell-quote
// handling is attempted here, the same simplification the Makefile
// ingestor makes for compile lines.
func parseRequest(line string) query.Request {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return query.Request{}
	}

	req := query.Request{
		Command: fields[0],
		Args:    make(map[string]string),
	}

	rest := fields[1:]
	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		if !strings.HasPrefix(tok, "--") {
			req.Free = append(req.Free, tok)
			continue
		}
		key := strings.TrimPrefix(tok, "--")
		if eq := strings.IndexByte(key, '='); eq >= 0 {
			req.Args[key[:eq]] = key[eq+1:]
			continue
		}
		// A bare --flag (no '=') is always boolean-by-presence -- it never
		// consumes the next token as a value. lookup --regexp foo needs
		// "foo" to land in Free, not get swallowed as regexp's value.
		req.Args[key] = ""
	}
	return req
}
