package diff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format names a renderer accepted by the type query parameter.
type Format string

const (
	FormatJSON    Format = "json"
	FormatGit     Format = "git"
	FormatPlain   Format = "plain"
	FormatCompact Format = "compact"
	FormatSummary Format = "summary"
)

// ParseFormat maps the type parameter to a renderer. Unknown and empty
// values fall back to JSON.
func ParseFormat(s string) Format {
	switch f := Format(strings.ToLower(s)); f {
	case FormatGit, FormatPlain, FormatCompact, FormatSummary:
		return f
	}
	return FormatJSON
}

func Render(entries []Entry, format Format) (string, error) {
	switch format {
	case FormatGit:
		return renderGit(entries), nil
	case FormatPlain:
		return renderPlain(entries), nil
	case FormatCompact:
		return renderCompact(entries), nil
	case FormatSummary:
		return renderSummary(entries), nil
	default:
		return renderJSON(entries)
	}
}

func renderJSON(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode diff: %w", err)
	}
	return string(data), nil
}

func renderGit(entries []Entry) string {
	var b strings.Builder
	b.WriteString("--- old\n+++ new\n")
	for _, e := range entries {
		switch e.Kind {
		case Added:
			fmt.Fprintf(&b, "+ %s: %s\n", e.Path, e.Value)
		case Removed:
			fmt.Fprintf(&b, "- %s: %s\n", e.Path, e.Value)
		case Changed:
			fmt.Fprintf(&b, "- %s: %s\n", e.Path, e.From)
			fmt.Fprintf(&b, "+ %s: %s\n", e.Path, e.To)
		}
	}
	return b.String()
}

func renderPlain(entries []Entry) string {
	if len(entries) == 0 {
		return "No differences\n"
	}
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case Added:
			fmt.Fprintf(&b, "Added %s: %s\n", e.Path, e.Value)
		case Removed:
			fmt.Fprintf(&b, "Removed %s: %s\n", e.Path, e.Value)
		case Changed:
			fmt.Fprintf(&b, "Changed %s: %s -> %s\n", e.Path, e.From, e.To)
		}
	}
	return b.String()
}

func renderCompact(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case Added:
			parts = append(parts, fmt.Sprintf("+%s=%s", e.Path, e.Value))
		case Removed:
			parts = append(parts, fmt.Sprintf("-%s=%s", e.Path, e.Value))
		case Changed:
			parts = append(parts, fmt.Sprintf("~%s=%s->%s", e.Path, e.From, e.To))
		}
	}
	return strings.Join(parts, " ")
}

func renderSummary(entries []Entry) string {
	counts := make(map[Kind]int, 3)
	for _, e := range entries {
		counts[e.Kind]++
	}
	return fmt.Sprintf("Added: %d, Removed: %d, Changed: %d", counts[Added], counts[Removed], counts[Changed])
}
