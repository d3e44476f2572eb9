package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/vsm/pkg/schema"
)

// validateMaterialFlow analyses the material edges only: loops (Kahn's
// algorithm) and process nodes that no material edge touches. Rework loops
// exist in real plants, so both findings are warnings.
func validateMaterialFlow(g *schema.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	present := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		present[n.ID] = true
	}

	// out[id] = material successors of id.
	out := make(map[string][]string)
	inDegree := make(map[string]int)
	touched := make(map[string]bool)
	seenPair := make(map[[2]string]bool)
	for _, e := range g.Edges {
		if e.FlowType != schema.FlowMaterial && e.FlowType != "" {
			continue
		}
		if !present[e.Source] || !present[e.Target] || e.Source == e.Target {
			continue
		}
		touched[e.Source], touched[e.Target] = true, true
		pair := [2]string{e.Source, e.Target}
		if seenPair[pair] {
			continue
		}
		seenPair[pair] = true
		out[e.Source] = append(out[e.Source], e.Target)
		inDegree[e.Target]++
		if _, ok := inDegree[e.Source]; !ok {
			inDegree[e.Source] = 0
		}
	}
	if len(touched) == 0 {
		return result
	}

	queue := make([]string, 0, len(inDegree))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range out[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(inDegree) {
		result.AddWarning("edges", CodeMaterialLoop, "material flow contains a loop")
	}

	for i, n := range g.Nodes {
		if n.Kind == schema.KindProcess && !touched[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%d]", i), CodeOffFlowProcess,
				fmt.Sprintf("process %q is not connected to the material flow", n.ID))
		}
	}
	return result
}
