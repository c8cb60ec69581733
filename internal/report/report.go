// Package report renders the modification log as a Markdown document and as
// HTML for the browser.
package report

import (
	"fmt"
	"strings"
	"time"

	"tablefix/domain/modifier"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// FileName is the download name of the Markdown report
const FileName = "modification_log.md"

// Input is everything the report describes
type Input struct {
	FileName    string
	Rows        int
	Columns     int
	Entries     []modifier.LogEntry
	GeneratedAt time.Time
}

// Markdown builds the report document
func Markdown(in Input) []byte {
	var b strings.Builder

	b.WriteString("# Modification log\n\n")
	fmt.Fprintf(&b, "- File: %s\n", codeSpan(in.FileName))
	fmt.Fprintf(&b, "- Rows: %d\n", in.Rows)
	fmt.Fprintf(&b, "- Columns: %d\n", in.Columns)
	if !in.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", in.GeneratedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("\n## Entries\n\n")
	if len(in.Entries) == 0 {
		b.WriteString("No modifications applied.\n")
		return []byte(b.String())
	}

	for i, e := range in.Entries {
		fmt.Fprintf(&b, "%d. **%s**", i+1, e.Action)
		if !e.Timestamp.IsZero() {
			fmt.Fprintf(&b, " at %s", e.Timestamp.UTC().Format(time.RFC3339))
		}
		fmt.Fprintf(&b, ": %s\n", codeSpan(e.Details))
	}
	return []byte(b.String())
}

// HTML renders the Markdown report to an HTML fragment. Raw HTML in the
// source is dropped.
func HTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML,
	})
	return markdown.ToHTML(md, p, renderer)
}

// codeSpan wraps s in a backtick fence longer than any run inside it
func codeSpan(s string) string {
	if s == "" {
		return "(none)"
	}
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	fence := strings.Repeat("`", longest+1)
	if longest > 0 {
		return fence + " " + s + " " + fence
	}
	return fence + s + fence
}
