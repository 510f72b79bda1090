// Package console renders agent and chat output for a terminal.
package console

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

const (
	// InputPreviewWidth bounds the pretty-printed tool input shown for a call,
	// counted in characters so line breaks count too.
	InputPreviewWidth = 200
	// ResultPreviewWidth bounds the tool result shown after a call.
	ResultPreviewWidth = 500

	Ellipsis = "..."

	bannerWidth = 60
)

// Printer writes styled output. Colors are dropped when out is not a terminal.
type Printer struct {
	out io.Writer

	text   lipgloss.Style
	tool   lipgloss.Style
	muted  lipgloss.Style
	prompt lipgloss.Style
	label  lipgloss.Style
	err    lipgloss.Style
}

// New returns a Printer writing to out.
func New(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	style := func(color string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(color)).TabWidth(lipgloss.NoTabConversion)
	}
	return &Printer{
		out:    out,
		text:   style("14"),
		tool:   style("11"),
		muted:  style("8"),
		prompt: style("11"),
		label:  style("14"),
		err:    style("9"),
	}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Start prints the header of an agent run.
func (p *Printer) Start() {
	fmt.Fprintf(p.out, "%s\n\n", p.muted.Render("─── KindaPat Agent ───"))
}

// Done prints the footer of an agent run.
func (p *Printer) Done() {
	fmt.Fprintf(p.out, "\n%s\n", p.muted.Render("─── Done ───"))
}

// Text prints a complete block of assistant text.
func (p *Printer) Text(text string) {
	fmt.Fprintln(p.out, renderLines(p.text, text))
}

// StreamText prints a partial chunk of assistant text as it arrives.
func (p *Printer) StreamText(delta string) {
	io.WriteString(p.out, delta)
}

// EndStream terminates a streamed block.
func (p *Printer) EndStream() {
	fmt.Fprintln(p.out)
}

// ToolCall prints the tool name and a preview of its input.
func (p *Printer) ToolCall(name string, input json.RawMessage) {
	fmt.Fprintf(p.out, "\n%s %s\n", p.tool.Render("⚡ "+name+":"), InputPreview(input))
}

// ToolResult prints a preview of a tool result.
func (p *Printer) ToolResult(_ string, result string) {
	fmt.Fprintf(p.out, "%s\n\n", renderLines(p.muted, Truncate(result, ResultPreviewWidth)))
}

// Banner prints the framed title shown when an interactive session starts.
func (p *Printer) Banner(title, hint string) {
	rule := strings.Repeat("═", bannerWidth)
	fmt.Fprintf(p.out, "\n%s\n  %s\n  %s\n%s\n\n", rule, title, hint, rule)
}

// Prompt returns the styled input prompt for label, e.g. "you:".
func (p *Printer) Prompt(label string) string {
	return p.prompt.Render(label) + " "
}

// Label prints the speaker label that precedes a streamed chat reply.
func (p *Printer) Label(label string) {
	fmt.Fprint(p.out, p.label.Render(label)+" ")
}

// Error prints err in the "Error: ..." form.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.out, renderLines(p.err, "Error: "+err.Error()))
}

// renderLines styles each line separately. Rendering a multi-line string at
// once pads every line to the widest one.
func renderLines(style lipgloss.Style, s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// Truncate shortens s to width terminal columns and appends Ellipsis when
// anything was cut.
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "") + Ellipsis
}

// InputPreview pretty-prints a tool input, cuts it to InputPreviewWidth and
// always marks it as a preview.
func InputPreview(input json.RawMessage) string {
	var buf bytes.Buffer
	pretty := string(input)
	if err := json.Indent(&buf, input, "", "  "); err == nil {
		pretty = buf.String()
	}
	if runes := []rune(pretty); len(runes) > InputPreviewWidth {
		pretty = string(runes[:InputPreviewWidth])
	}
	return pretty + Ellipsis
}
