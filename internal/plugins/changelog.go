package plugins

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// markdown renders release notes. Raw HTML is kept because older releases
// store their notes as HTML lists.
var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
		),
	),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
	goldmark.WithRendererOptions(
		html.WithUnsafe(),
	),
)

// RenderChangelog converts release notes to HTML.
func RenderChangelog(notes string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(notes), &buf); err != nil {
		return "", fmt.Errorf("converting changelog: %w", err)
	}
	return buf.String(), nil
}

type changelogEntry struct {
	Version  string
	FileName string
	Date     string
	Size     string
	Notes    template.HTML
}

// WriteChangelogPage renders a standalone HTML page with the notes of every
// release, newest first.
func WriteChangelogPage(w io.Writer, releases []Release) error {
	sorted := append([]Release(nil), releases...)
	SortNewestFirst(sorted)

	entries := make([]changelogEntry, 0, len(sorted))
	for _, r := range sorted {
		notes, err := RenderChangelog(r.Updates)
		if err != nil {
			return fmt.Errorf("release %s: %w", r.Version, err)
		}
		created := r.CreatedAt
		if created == "" {
			created = r.Created
		}
		entries = append(entries, changelogEntry{
			Version:  r.Version,
			FileName: r.FriendlyFileName(),
			Date:     FormatDate(created),
			Size:     r.SizeLabel(),
			Notes:    template.HTML(notes),
		})
	}
	return changelogTemplate.Execute(w, entries)
}

var changelogTemplate = template.Must(template.New("changelog").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>ProRVT changelog</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 760px; margin: 2rem auto; color: #1f2937; }
.release { border-bottom: 1px solid #e5e7eb; padding: 1rem 0; }
.meta { color: #6b7280; font-size: .85rem; }
.version { background: #f3f4f6; border-radius: 4px; padding: 2px 6px; font-weight: 600; }
</style>
</head>
<body>
<h1>ProRVT changelog</h1>
{{range .}}<section class="release">
<h2><span class="version">v{{.Version}}</span></h2>
<div class="meta">{{.FileName}} &middot; {{.Size}} &middot; Created: {{.Date}}</div>
{{if .Notes}}{{.Notes}}{{else}}<p>No release notes.</p>{{end}}
</section>
{{else}}<p>No releases published yet.</p>
{{end}}</body>
</html>
`))
