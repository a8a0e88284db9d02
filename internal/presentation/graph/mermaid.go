package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/process"
	"github.com/aretw0/weft/pkg/runtime"
)

// GraphOverlay contains session data to visualize on the graph.
type GraphOverlay struct {
	// Operations received so far; their input nodes are marked visited.
	Operations []string
	// Pending is the operation the session currently waits for.
	Pending string
}

// GenerateMermaid produces a Mermaid flowchart of the program's process tree.
// It applies semantic styling:
// - Program entry points: ((Circle))
// - Inputs: [/Parallelogram/]
// - Outputs: [\Parallelogram\]
// - Choices and conditionals: {Rhombus}
// - Parallel and spawn: {{Hexagon}}
// - Scopes: ([Stadium])
// - Default: [Rectangle]
// Inputs whose operation may start a session are styled as starters.
func GenerateMermaid(program weft.Program, overlay *GraphOverlay) string {
	g := &builder{inputs: make(map[string][]string)}
	g.sb.WriteString("graph TD\n")

	name := program.Name
	if name == "" {
		name = "program"
	}
	if program.Init != nil {
		initID := g.node("init", "((", "))")
		g.edge(initID, g.walk(program.Init), "")
	}
	mainID := g.node(name, "((", "))")
	g.edge(mainID, g.walk(program.Main), "")

	g.sb.WriteString("\n    %% Styles\n")
	g.sb.WriteString("    classDef starter fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
	for _, op := range process.StarterOperations(program.Main) {
		for _, id := range g.inputs[op] {
			fmt.Fprintf(&g.sb, "    class %s starter;\n", id)
		}
	}

	if overlay != nil {
		g.sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		g.sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		g.sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, op := range overlay.Operations {
			if seen[op] {
				continue
			}
			seen[op] = true
			for _, id := range g.inputs[op] {
				fmt.Fprintf(&g.sb, "    class %s visited;\n", id)
			}
		}
		for _, id := range g.inputs[overlay.Pending] {
			fmt.Fprintf(&g.sb, "    class %s current;\n", id)
		}
	}

	return g.sb.String()
}

type builder struct {
	sb     strings.Builder
	n      int
	inputs map[string][]string
}

func (g *builder) node(label, opener, closer string) string {
	g.n++
	id := fmt.Sprintf("n%d", g.n)
	fmt.Fprintf(&g.sb, "    %s%s\"%s\"%s\n", id, opener, escapeLabel(label), closer)
	return id
}

func (g *builder) edge(from, to, label string) {
	if to == "" {
		return
	}
	if label == "" {
		fmt.Fprintf(&g.sb, "    %s --> %s\n", from, to)
		return
	}
	fmt.Fprintf(&g.sb, "    %s -- \"%s\" --> %s\n", from, escapeLabel(label), to)
}

func (g *builder) input(op, label string) string {
	id := g.node(label, "[/", "/]")
	g.inputs[op] = append(g.inputs[op], id)
	return id
}

// walk renders p and its children, returning the id of the node for p.
func (g *builder) walk(p runtime.Process) string {
	switch p := p.(type) {
	case nil:
		return ""
	case process.Null, *process.Null:
		return g.node("nullProcess", "[", "]")
	case process.Exit, *process.Exit:
		return g.node("exit", ">", "]")
	case *process.Sequence:
		id := g.node("sequence", "[", "]")
		for i, child := range p.Children {
			g.edge(id, g.walk(child), fmt.Sprint(i+1))
		}
		return id
	case *process.Parallel:
		id := g.node("parallel", "{{", "}}")
		for _, branch := range p.Branches {
			g.edge(id, g.walk(branch), "")
		}
		return id
	case *process.Choice:
		id := g.node("choice", "{", "}")
		g.branches(id, p.Branches, "")
		return id
	case *process.ProvideUntil:
		id := g.node("provide until", "{", "}")
		g.branches(id, p.Provide, "provide")
		g.branches(id, p.Until, "until")
		return id
	case *process.OneWay:
		id := g.input(p.Op.Name, "receive "+p.Op.Name)
		g.edge(id, g.walk(p.Body), "")
		return id
	case *process.RequestResponse:
		id := g.input(p.Op.Name, "serve "+p.Op.Name)
		g.edge(id, g.walk(p.Body), "")
		return id
	case *process.Notification:
		return g.node("notify "+p.Port+"."+p.Op.Name, "[\\", "\\]")
	case *process.SolicitResponse:
		label := "call " + p.Port + "." + p.Op.Name
		if p.Timeout > 0 {
			label += " <br/> ⏱️ " + p.Timeout.String()
		}
		id := g.node(label, "[\\", "\\]")
		if p.Install != nil {
			g.edge(id, g.walk(p.Install), "on reply")
		}
		return id
	case *process.If:
		id := g.node("if", "{", "}")
		for i, b := range p.Branches {
			g.edge(id, g.walk(b.Body), fmt.Sprintf("case %d", i+1))
		}
		g.edge(id, g.walk(p.Else), "else")
		return id
	case *process.While:
		id := g.node("while", "{", "}")
		g.edge(id, g.walk(p.Body), "loop")
		return id
	case *process.Spawn:
		label := "spawn"
		if p.Index != nil {
			label += " " + p.Index.String()
		}
		id := g.node(label, "{{", "}}")
		g.edge(id, g.walk(p.Body), "each")
		return id
	case *process.Scope:
		id := g.node("scope "+p.ID, "([", "])")
		g.edge(id, g.walk(p.Body), "")
		return id
	case *process.Install:
		id := g.node("install", "[", "]")
		for _, name := range slices.Sorted(maps.Keys(p.Handlers)) {
			label := name
			if name == process.CompensationKey {
				label = "compensation"
			}
			g.edge(id, g.walk(p.Handlers[name]), label)
		}
		return id
	case *process.Compensate:
		return g.node("compensate "+p.ID, ">", "]")
	case *process.Throw:
		return g.node("throw "+p.Name, ">", "]")
	case *process.Synchronized:
		id := g.node("synchronized "+p.ID, "[[", "]]")
		g.edge(id, g.walk(p.Body), "")
		return id
	case *process.LinkIn:
		return g.node("linkIn "+p.Link, "[/", "/]")
	case *process.LinkOut:
		return g.node("linkOut "+p.Link, "[\\", "\\]")
	case *process.Assign:
		return g.node(p.Path.String()+" = …", "[", "]")
	case *process.DeepCopy:
		return g.node(p.Path.String()+" << …", "[", "]")
	case *process.MakePointer:
		return g.node(p.Path.String()+" -> "+p.Target.String(), "[", "]")
	case *process.Compound:
		return g.node(p.Path.String()+" "+string(rune(p.Op))+"= …", "[", "]")
	case *process.Increment:
		op := "++"
		if p.Delta < 0 {
			op = "--"
		}
		return g.node(p.Path.String()+op, "[", "]")
	case *process.Undef:
		return g.node("undef "+p.Path.String(), "[", "]")
	default:
		name := fmt.Sprintf("%T", p)
		return g.node(name[strings.LastIndex(name, ".")+1:], "[", "]")
	}
}

func (g *builder) branches(from string, branches []process.Branch, label string) {
	for _, b := range branches {
		if b.Input == nil {
			continue
		}
		in := g.walk(b.Input)
		g.edge(from, in, label)
		g.edge(in, g.walk(b.Body), "then")
	}
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
