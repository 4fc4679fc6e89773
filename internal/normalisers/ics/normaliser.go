// Package ics provides a Normaliser for iCalendar feeds such as the event
// calendar of a municipal website.
package ics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata" // Europe/Prague without a system zoneinfo

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles text/calendar documents.
type Normaliser struct{}

// New creates a new iCalendar normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/calendar"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// event is one VEVENT.
type event struct {
	summary     string
	description string
	location    string
	organizer   string
	url         string
	start       string
	end         string
	tzid        string
}

// Normalise renders every event as a paragraph of labelled lines, ordered
// by start time.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	calName, events := parse(string(raw.Content))
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].start < events[j].start
	})

	blocks := make([]string, 0, len(events))
	for _, ev := range events {
		blocks = append(blocks, ev.render())
	}

	title := calName
	if title == "" && len(events) == 1 {
		title = events[0].summary
	}
	if title == "" {
		title = normalisers.TitleFromURL(raw.SourceURL)
	}

	metadata := normalisers.CopyMetadata(raw.Metadata)
	metadata["format"] = "ics"
	metadata["event_count"] = len(events)

	return &domain.NormaliseResult{
		Title:    title,
		Type:     domain.DocumentTypeCalendar,
		Text:     strings.Join(blocks, "\n\n"),
		Metadata: metadata,
	}, nil
}

func (ev event) render() string {
	var lines []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, label+": "+value)
		}
	}

	add("Událost", ev.summary)
	when := formatDateTime(ev.start, ev.tzid)
	if ev.end != "" && ev.end != ev.start {
		when += " – " + formatDateTime(ev.end, ev.tzid)
	}
	add("Kdy", when)
	add("Místo", ev.location)
	add("Pořadatel", ev.organizer)
	add("Popis", ev.description)
	add("Odkaz", ev.url)
	return strings.Join(lines, "\n")
}

// parse unfolds the content lines and collects calendar name and events.
func parse(content string) (string, []event) {
	var (
		calName string
		events  []event
		cur     *event
	)

	for _, line := range unfold(content) {
		name, params, value := splitProperty(line)
		switch {
		case name == "BEGIN" && strings.EqualFold(value, "VEVENT"):
			cur = &event{}
		case name == "END" && strings.EqualFold(value, "VEVENT"):
			if cur != nil {
				events = append(events, *cur)
			}
			cur = nil
		case cur == nil:
			if name == "X-WR-CALNAME" {
				calName = decodeValue(value)
			}
		default:
			switch name {
			case "SUMMARY":
				cur.summary = decodeValue(value)
			case "DESCRIPTION":
				cur.description = decodeValue(value)
			case "LOCATION":
				cur.location = decodeValue(value)
			case "URL":
				cur.url = value
			case "ORGANIZER":
				if cn := params["CN"]; cn != "" {
					cur.organizer = cn
				} else {
					cur.organizer = extractEmail(value)
				}
			case "DTSTART":
				cur.start = value
				cur.tzid = params["TZID"]
			case "DTEND":
				cur.end = value
			}
		}
	}
	return calName, events
}

// unfold joins continuation lines (RFC 5545 section 3.1).
func unfold(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if (strings.HasPrefix(l, " ") || strings.HasPrefix(l, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// splitProperty splits "NAME;K=V;K2=\"a:b\":value". Colons inside quoted
// parameter values do not end the name part.
func splitProperty(line string) (string, map[string]string, string) {
	inQuote := false
	colon := -1
	for i, r := range line {
		if r == '"' {
			inQuote = !inQuote
		} else if r == ':' && !inQuote {
			colon = i
			break
		}
	}
	if colon < 0 {
		return strings.ToUpper(line), nil, ""
	}

	head, value := line[:colon], line[colon+1:]
	parts := strings.Split(head, ";")
	params := make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		if k, v, ok := strings.Cut(p, "="); ok {
			params[strings.ToUpper(k)] = strings.Trim(v, `"`)
		}
	}
	return strings.ToUpper(parts[0]), params, value
}

// decodeValue reverses TEXT escaping.
func decodeValue(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			sb.WriteByte('\n')
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// formatDateTime renders DATE and DATE-TIME values in Czech notation:
// "15. 1. 2024" or "15. 1. 2024 10:00". UTC times are shown in Prague time.
func formatDateTime(value, tzid string) string {
	if t, err := time.Parse("20060102", value); err == nil {
		return fmt.Sprintf("%d. %d. %d", t.Day(), t.Month(), t.Year())
	}

	loc := prague()
	var t time.Time
	var err error
	switch {
	case strings.HasSuffix(value, "Z"):
		t, err = time.Parse("20060102T150405Z", value)
		t = t.In(loc)
	default:
		if tzid != "" {
			if l, lerr := time.LoadLocation(tzid); lerr == nil {
				loc = l
			}
		}
		t, err = time.ParseInLocation("20060102T150405", value, loc)
	}
	if err != nil {
		return value
	}
	return fmt.Sprintf("%d. %d. %d %d:%02d", t.Day(), t.Month(), t.Year(), t.Hour(), t.Minute())
}

func prague() *time.Location {
	if loc, err := time.LoadLocation("Europe/Prague"); err == nil {
		return loc
	}
	return time.FixedZone("CET", 3600)
}

// extractEmail strips a mailto: prefix; values without an @ yield "".
func extractEmail(value string) string {
	if len(value) >= 7 && strings.EqualFold(value[:7], "mailto:") {
		value = value[7:]
	}
	if !strings.Contains(value, "@") {
		return ""
	}
	return value
}
