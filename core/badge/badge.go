// Package badge renders the shields-style trust badge. Rendering is a
// pure function of (repository identity, state); the repository's full
// name is embedded as visible label text so a copied badge pasted into
// an impersonating fork names the repository it actually belongs to.
package badge

import (
	"strings"
	"text/template"

	"github.com/repo-trust/repo-trust/core/identity"
)

type State string

const (
	StateVerified   State = "VERIFIED"
	StateUnverified State = "UNVERIFIED"
	// StateError is rendered only by standalone tooling; the pipeline
	// never publishes it.
	StateError State = "ERROR"
)

const (
	colorVerified   = "#2ea44f"
	colorUnverified = "#d73a49"
	colorError      = "#6e7681"
	colorLabel      = "#555"

	// Approximate glyph width used for badge sizing, matching the
	// shields.io convention.
	charWidth = 7
	padding   = 10
)

var badgeTemplate = template.Must(template.New("badge").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="20" role="img" aria-label="{{.Label}}: {{.Status}}">
  <title>{{.Label}}: {{.Status}}</title>
  <linearGradient id="s" x2="0" y2="100%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="r">
    <rect width="{{.Width}}" height="20" rx="3" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#r)">
    <rect width="{{.LabelWidth}}" height="20" fill="{{.LabelColor}}"/>
    <rect x="{{.LabelWidth}}" width="{{.StatusWidth}}" height="20" fill="{{.StatusColor}}"/>
    <rect width="{{.Width}}" height="20" fill="url(#s)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" text-rendering="geometricPrecision" font-size="110">
    <text aria-hidden="true" x="{{.LabelX}}" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)">{{.Label}}</text>
    <text x="{{.LabelX}}" y="140" transform="scale(.1)" fill="#fff">{{.Label}}</text>
    <text aria-hidden="true" x="{{.StatusX}}" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)">{{.Status}}</text>
    <text x="{{.StatusX}}" y="140" transform="scale(.1)" fill="#fff">{{.Status}}</text>
  </g>
</svg>`))

type badgeData struct {
	Width       int
	LabelWidth  int
	StatusWidth int
	LabelColor  string
	StatusColor string
	Label       string
	Status      string
	LabelX      int
	StatusX     int
}

// Render produces the badge SVG for a repository and state. The output
// is byte-deterministic for identical inputs.
func Render(repo identity.Repository, state State) string {
	label := repo.FullName
	status := string(state)
	statusColor := colorUnverified
	switch state {
	case StateVerified:
		statusColor = colorVerified
	case StateError:
		statusColor = colorError
	}

	labelWidth := len(label)*charWidth + padding
	statusWidth := len(status)*charWidth + padding
	data := badgeData{
		Width:       labelWidth + statusWidth,
		LabelWidth:  labelWidth,
		StatusWidth: statusWidth,
		LabelColor:  colorLabel,
		StatusColor: statusColor,
		Label:       label,
		Status:      status,
		LabelX:      labelWidth * 10 / 2,
		StatusX:     (labelWidth + statusWidth/2) * 10,
	}

	var out strings.Builder
	// The template only references fields that exist; execution cannot fail.
	_ = badgeTemplate.Execute(&out, data)
	return out.String()
}
