package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/rendis/vsm/internal/diagram"
	"github.com/rendis/vsm/internal/engine"
	"github.com/rendis/vsm/internal/scenario"
	"github.com/rendis/vsm/internal/wizard"
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// runMetrics prints the metrics snapshot and the timeline ladder.
func runMetrics(ctx context.Context, ex engine.Executor, out io.Writer, args []string) error {
	fs := newFlagSet("metrics", out)
	format := fs.String("format", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	snap, err := ex.Metrics(ctx)
	if err != nil {
		return err
	}
	ladder, err := ex.Ladder(ctx)
	if err != nil {
		return err
	}

	switch *format {
	case "json":
		return printJSON(out, map[string]any{"metrics": snap, "ladder": ladder})
	case "text":
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	fmt.Fprintf(out, "Lead time:        %s\n", seconds(snap.TotalLeadTime))
	fmt.Fprintf(out, "Value added:      %s\n", seconds(snap.TotalValueAddedTime))
	fmt.Fprintf(out, "Inventory time:   %s\n", seconds(snap.InventoryTime))
	fmt.Fprintf(out, "PCE:              %.2f%%\n", snap.ProcessCycleEfficiency)
	fmt.Fprintf(out, "Takt time:        %s\n", seconds(snap.TaktTime))
	if snap.BottleneckNodeID != nil {
		fmt.Fprintf(out, "Bottleneck:       %s\n", *snap.BottleneckNodeID)
	}
	if e := snap.EPEI; e != nil {
		if e.Overloaded() {
			fmt.Fprintf(out, "EPEI:             overloaded (pacemaker %s)\n", e.PacemakerNodeID)
		} else {
			fmt.Fprintf(out, "EPEI:             %.2f days (pacemaker %s)\n", e.Days, e.PacemakerNodeID)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, diagram.RenderLadder(ladder))
	return nil
}

func seconds(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2fs", v)
}

// runWizard builds the canvas from a YAML or JSON form file.
func runWizard(ctx context.Context, ex engine.Executor, out io.Writer, args []string) error {
	fs := newFlagSet("wizard", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vsm wizard <form.yaml|->")
	}
	data, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	form, err := wizard.Parse(data)
	if err != nil {
		return err
	}
	res, err := ex.ApplyWizard(ctx, form)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

// runDiagram renders the canvas. Output goes to out unless -out is set;
// png requires -out.
func runDiagram(ctx context.Context, ex engine.Executor, out io.Writer, args []string) error {
	fs := newFlagSet("diagram", out)
	formats := make([]string, 0, len(engine.DiagramFormats))
	for _, f := range engine.DiagramFormats {
		formats = append(formats, string(f))
	}
	format := fs.String("format", string(engine.FormatASCII), "one of: "+strings.Join(formats, ", "))
	outPath := fs.String("out", "", "write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	art, err := ex.Diagram(ctx, engine.DiagramFormat(*format))
	if err != nil {
		return err
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, art.Body, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "Written: %s (%d bytes)\n", *outPath, len(art.Body))
		return nil
	}
	if art.Format == engine.FormatPNG {
		return errors.New("png output is binary, use -out")
	}
	_, err = out.Write(art.Body)
	return err
}

// runSimulate projects a what-if scenario without touching the canvas.
func runSimulate(ctx context.Context, ex engine.Executor, out io.Writer, args []string) error {
	fs := newFlagSet("simulate", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vsm simulate <scenario.yaml|->")
	}
	data, err := readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	sc, err := scenario.Parse(data)
	if err != nil {
		return err
	}
	res, err := ex.Simulate(ctx, sc)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]any{
		"name":      res.Name,
		"delta":     res.Delta,
		"changes":   res.Changes,
		"removed":   res.Removed,
		"projected": res.Projected,
	})
}

// runQuery evaluates a jq expression against the canvas and its metrics.
func runQuery(ctx context.Context, ex engine.Executor, out io.Writer, args []string) error {
	fs := newFlagSet("query", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: vsm query <jq expression>")
	}
	results, err := ex.Query(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := printJSON(out, r); err != nil {
			return err
		}
	}
	return nil
}
