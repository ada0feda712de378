// Package transform turns Markdown sources into the HTML files published next
// to them.
package transform

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dtroode/mdpublish/internal/model"
)

const (
	SourceExt = ".md"
	OutputExt = ".html"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ShouldProcess reports whether entry is a live Markdown file. Deletions,
// folders, non-Markdown files and published outputs are all ignored.
func ShouldProcess(entry model.ChangeEntry) bool {
	if entry.Metadata == nil || entry.Metadata.IsDir {
		return false
	}
	lower := strings.ToLower(entry.Path)
	if strings.HasSuffix(lower, OutputExt) {
		return false
	}
	return strings.HasSuffix(lower, SourceExt) && len(lower) > len(SourceExt)
}

// OutputPath replaces the trailing source extension of path with the output
// extension. Paths without the source extension get the output extension appended.
func OutputPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), SourceExt) {
		return path[:len(path)-len(SourceExt)] + OutputExt
	}
	return path + OutputExt
}

// Render converts Markdown to HTML. Malformed input still renders; if the
// renderer fails the source is published escaped inside <pre>.
func Render(src []byte) []byte {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return []byte("<pre>" + html.EscapeString(string(src)) + "</pre>\n")
	}
	return buf.Bytes()
}
