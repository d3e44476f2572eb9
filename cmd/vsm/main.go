// Command vsm edits and analyses a value stream map. It serves the web
// panel and JSON API, the MCP tools over stdio, and one-shot commands for
// metrics, diagrams, the wizard and what-if scenarios.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/vsm/pkg/mcp"
)

const usageText = `Usage: vsm <command> [flags]

Commands:
  serve      serve the web panel, JSON API and /metrics (default)
  mcp        serve the MCP tools over stdio
  metrics    print lead time, PCE, takt, EPEI and the timeline ladder
  wizard     build the map from a YAML or JSON form file
  diagram    render the map as mermaid, ascii, ladder, png or svg
  simulate   project a what-if scenario file
  query      evaluate a jq expression against the map
  install    write settings, install mermaid-ascii, reload a running server
  version    print the version

Settings are read from ~/.vsm/settings.json and VSM_* environment variables.
`

// canvasCommands need a configured store and session.
var canvasCommands = map[string]bool{
	"serve": true, "mcp": true, "metrics": true, "wizard": true,
	"diagram": true, "simulate": true, "query": true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	mcp.Version = version

	switch cmd {
	case "version", "-v", "--version":
		printVersion(out)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(out, usageText)
		return nil
	case "install":
		return runInstall(ctx, out, args)
	}
	if !canvasCommands[cmd] {
		fmt.Fprint(os.Stderr, usageText)
		return fmt.Errorf("unknown command %q", cmd)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.LogLevel))
	logger := newLogger(os.Stderr, cfg.LogFormat, level)
	slog.SetDefault(logger)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, st, logger)
	if err != nil {
		st.Close()
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		return runServe(ctx, a, level, args)
	case "mcp":
		return runMCP(ctx, a)
	case "metrics":
		return runMetrics(ctx, a.engine, out, args)
	case "wizard":
		return runWizard(ctx, a.engine, out, args)
	case "diagram":
		return runDiagram(ctx, a.engine, out, args)
	case "simulate":
		return runSimulate(ctx, a.engine, out, args)
	default:
		return runQuery(ctx, a.engine, out, args)
	}
}
