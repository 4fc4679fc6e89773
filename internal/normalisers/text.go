package normalisers

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

// TitleFromURL derives a readable title from the last path segment of a URL
// or file path: "/files/my_calendar-2025.ics" becomes "my calendar 2025".
func TitleFromURL(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(strings.ReplaceAll(p, "\\", "/"), "/")

	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

// CopyMetadata returns a shallow copy, or an empty map for nil.
func CopyMetadata(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// CleanLines trims every line, collapses runs of inner whitespace and keeps
// at most one blank line between paragraphs.
func CleanLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// FirstLine returns the first non-empty line of at most maxRunes runes.
func FirstLine(text string, maxRunes int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len([]rune(line)) > maxRunes {
			continue
		}
		return line
	}
	return ""
}
