package presentation

import (
	"fmt"
	"strings"
	"time"

	"github.com/pptmaker/pptmaker-api/internal/pkg/generator"
)

// RenderMarkdown renders a deck as slide-separated Markdown, one "---"
// delimited section per slide with speaker notes in HTML comments.
func RenderMarkdown(title string, slides []generator.Slide, exportedAt time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "---\ntitle: %q\nexported_at: %s\n---\n\n", title, exportedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "# %s\n", title)

	for _, slide := range slides {
		b.WriteString("\n---\n\n")
		fmt.Fprintf(&b, "## %s\n\n", slide.Title)
		for _, bullet := range slide.Bullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
		if notes := strings.TrimSpace(slide.Notes); notes != "" {
			fmt.Fprintf(&b, "\n<!-- notes: %s -->\n", strings.ReplaceAll(notes, "--", "- -"))
		}
	}
	return []byte(b.String())
}
