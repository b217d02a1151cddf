// ABOUTME: Transcript export: renders the conversation to a standalone HTML file
// ABOUTME: Builds markdown from the transcript and converts it with goldmark

package main

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/parley/internal/engine"
	"github.com/2389/parley/internal/transcript"
)

const exportPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
blockquote { color: #555; border-left: 3px solid #ccc; margin-left: 0; padding-left: 1rem; }
</style>
</head>
<body>
%s
</body>
</html>
`

func defaultExportPath(e *engine.Engine, profile *Profile) string {
	dir := profile.ExportDir
	if dir == "" {
		dir = "."
	}
	name := "conversation"
	if current := e.CurrentConversation(); current != nil && current.Name != "" {
		name = slugify(current.Name)
	}
	return filepath.Join(expandHome(dir), fmt.Sprintf("%s-%s.html", name, time.Now().Format("20060102-150405")))
}

// exportTranscript writes the current transcript as a standalone HTML
// page. Questions render as quotes, thoughts and workflow nodes as
// sub-items.
func exportTranscript(e *engine.Engine, path string) error {
	entries := e.Snapshot()
	if len(entries) == 0 {
		return fmt.Errorf("nothing to export")
	}

	title := "Conversation"
	if current := e.CurrentConversation(); current != nil && current.Name != "" {
		title = current.Name
	}

	md := buildMarkdown(title, entries)

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &htmlBuf); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	page := fmt.Sprintf(exportPage, html.EscapeString(title), htmlBuf.String())
	if err := os.WriteFile(path, []byte(page), 0644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}

func buildMarkdown(title string, entries []*transcript.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	for _, entry := range entries {
		switch {
		case entry.IsPlaceholder:
		case entry.Role == transcript.RoleQuestion:
			for _, line := range strings.Split(entry.Content, "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
			b.WriteString("\n")
		default:
			for _, thought := range entry.AgentThoughts {
				fmt.Fprintf(&b, "*%s*\n\n", thought.Thought)
			}
			if entry.WorkflowRun != nil {
				for _, node := range entry.WorkflowRun.Nodes {
					fmt.Fprintf(&b, "- `%s` %s (%s)\n", node.NodeType, node.Title, node.Status)
				}
				b.WriteString("\n")
			}
			if entry.Content != "" {
				b.WriteString(entry.Content)
				b.WriteString("\n\n")
			}
			for _, file := range entry.Files {
				fmt.Fprintf(&b, "![%s](%s)\n\n", file.ID, file.URL)
			}
			if entry.Annotation != nil && entry.Annotation.AuthorName != "" {
				fmt.Fprintf(&b, "*Curated by %s*\n\n", entry.Annotation.AuthorName)
			}
		}
	}
	return b.String()
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "conversation"
	}
	return out
}
