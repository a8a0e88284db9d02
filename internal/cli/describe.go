package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/presentation/graph"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/process"
)

// DescribeProgram renders the interface and process graph of a program as
// markdown.
func DescribeProgram(program weft.Program) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", program.Name)

	b.WriteString("## Interface\n\n")
	b.WriteString("| Operation | Kind | Request | Response | Faults |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, op := range program.Interface {
		response, faults := "", ""
		if op.Kind == domain.RequestResponse {
			response = typeName(op.Response)
			names := slices.Sorted(maps.Keys(op.Faults))
			faults = strings.Join(names, ", ")
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %s |\n",
			op.Name, op.Kind, escapeCell(typeName(op.Request)), escapeCell(response), faults)
	}

	if starters := process.StarterOperations(program.Main); len(starters) > 0 {
		b.WriteString("\n## Session starters\n\n")
		for _, name := range starters {
			fmt.Fprintf(&b, "- `%s`\n", name)
		}
	}

	b.WriteString("\n## Process\n\n```mermaid\n")
	b.WriteString(graph.GenerateMermaid(program, nil))
	b.WriteString("```\n")
	return b.String()
}

// Describe writes the program description to w, through render when it is
// not nil.
func Describe(w io.Writer, program weft.Program, render func(string) (string, error)) error {
	out := DescribeProgram(program)
	if render != nil {
		rendered, err := render(out)
		if err != nil {
			return fmt.Errorf("failed to render description: %w", err)
		}
		out = rendered
	}
	_, err := io.WriteString(w, out)
	return err
}

func typeName(t domain.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
