// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/vsm/internal/diagram"
	"github.com/rendis/vsm/internal/metrics"
	"github.com/rendis/vsm/internal/registry"
	"github.com/rendis/vsm/internal/wizard"
)

// sampleForm is the classic stamping and welding line: a supplier coil
// feeds four processes separated by push inventory.
const sampleForm = `
title: Steering brackets
customer:
  name: State Street Assembly
  demandPerDay: 920
  shifts: 2
  availableTimePerShift: 450
  packSize: 20
supplier:
  name: Michigan Steel
  frequency: weekly
receiving:
  name: Coils
  amount: 5000
  leadTimeDays: 5
processes:
  - name: Stamping
    cycleTime: 1
    changeoverTime: 3600
    uptimePercent: 85
    operators: 1
    inventoryAfter:
      amount: 7600
  - name: Spot weld 1
    cycleTime: 39
    changeoverTime: 600
    uptimePercent: 100
    operators: 1
    inventoryAfter:
      amount: 1800
  - name: Spot weld 2
    cycleTime: 46
    changeoverTime: 600
    uptimePercent: 80
    operators: 1
    role: pacemaker
    inventoryAfter:
      amount: 2700
  - name: Assembly
    cycleTime: 62
    operators: 1
finishedGoods:
  amount: 2400
productionControl:
  name: MRP
  electronic: true
`

func main() {
	form, err := wizard.Parse([]byte(sampleForm))
	if err != nil {
		fmt.Fprintf(os.Stderr, "form error: %v\n", err)
		os.Exit(1)
	}
	g, err := wizard.Build(form, registry.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "build error: %v\n", err)
		os.Exit(1)
	}

	payload := diagram.Build(g, metrics.Compute(g))
	payload.Title = form.Title

	outDir := filepath.Join("docs", "assets")
	os.MkdirAll(outDir, 0o755)

	// ASCII (mermaid-ascii with hand-rolled fallback)
	home, _ := os.UserHomeDir()
	binDir := filepath.Join(home, ".vsm", "bin")
	ascii := diagram.RenderASCIIAuto(payload, binDir)
	os.WriteFile(filepath.Join(outDir, "vsm-ascii.txt"), []byte(ascii), 0o644)
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	// Mermaid
	mermaid := diagram.RenderMermaid(payload)
	os.WriteFile(filepath.Join(outDir, "vsm-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"), 0o644)
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	// Timeline ladder
	ladder := diagram.RenderLadder(payload.Ladder)
	os.WriteFile(filepath.Join(outDir, "vsm-ladder.txt"), []byte(ladder), 0o644)
	fmt.Println("=== Ladder ===")
	fmt.Println(ladder)

	// Images (Graphviz)
	for _, format := range []diagram.Format{diagram.FormatPNG, diagram.FormatSVG} {
		img, imgErr := diagram.Render(context.Background(), payload, format)
		if imgErr != nil {
			fmt.Fprintf(os.Stderr, "%s error: %v\n", format, imgErr)
			continue
		}
		path := filepath.Join(outDir, "vsm-sample."+string(format))
		os.WriteFile(path, img, 0o644)
		fmt.Printf("=== Image (%s) ===\nWritten: %s (%d bytes)\n", format, path, len(img))
	}
}
