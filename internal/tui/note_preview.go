package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Glamour output narrower than this is unreadable next to the editor.
const minPreviewWrap = 24

// notePreview renders a note card's markdown beside the editor. The glamour
// renderer is wrap-width bound, so it is rebuilt whenever the pane width
// changes and reused otherwise.
type notePreview struct {
	wrap     int
	renderer *glamour.TermRenderer
}

// render returns the styled preview for the editor's current markdown, or ""
// when there is nothing to show. Renderer failures fall back to the raw
// markdown so the editor keeps working.
func (p *notePreview) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrap := max(minPreviewWrap, width)
	if p.renderer == nil || p.wrap != wrap {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return markdown
		}
		p.renderer = renderer
		p.wrap = wrap
	}

	out, err := p.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(out, "\n")
}
