// Package pinfo parses the free-text reply of the server's "pinfo" console
// command into a privilege fact.
package pinfo

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrNotRecognized reports a reply that carries neither a "no privileges"
// marker nor any known group marker. It is distinct from a negative result.
var ErrNotRecognized = errors.New("pinfo: response not recognized")

const noPrivilegesMarker = "no privileges"

var whitespace = regexp.MustCompile(`\s+`)

type expiryFormat struct {
	pattern *regexp.Regexp
	layout  string
}

var expiryFormats = []expiryFormat{
	{regexp.MustCompile(`(?i)expires:\s*(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`), "2006-01-02 15:04:05"},
	{regexp.MustCompile(`(?i)expires:\s*(\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}:\d{2})`), "02.01.2006 15:04:05"},
}

// Fact is the structured content of a pinfo reply.
type Fact struct {
	HasPrivilege bool
	// Group is empty when no group matched.
	Group string
	// ExpiresAt is nil for a permanent grant. Always UTC.
	ExpiresAt *time.Time
}

// Parser matches replies against an ordered list of known privilege groups.
type Parser struct {
	groups []groupMatcher
}

type groupMatcher struct {
	label   string
	pattern *regexp.Regexp
}

// New compiles matchers for groups. Order matters: when a reply mentions more
// than one known group the earliest entry in groups wins.
func New(groups []string) *Parser {
	p := &Parser{groups: make([]groupMatcher, 0, len(groups))}
	for _, g := range groups {
		label := strings.TrimSpace(g)
		if label == "" {
			continue
		}
		p.groups = append(p.groups, groupMatcher{
			label:   label,
			pattern: regexp.MustCompile(`(?i)group:\s*` + regexp.QuoteMeta(label)),
		})
	}
	return p
}

// Parse is shorthand for New(groups).Parse(response).
func Parse(response string, groups []string) (Fact, error) {
	return New(groups).Parse(response)
}

// Parse extracts the privilege fact from response. When ErrNotRecognized is
// returned the fact may still carry an expiry found in the text; it must not
// be acted upon.
func (p *Parser) Parse(response string) (Fact, error) {
	text := strings.TrimSpace(whitespace.ReplaceAllString(response, " "))
	if text == "" {
		return Fact{}, ErrNotRecognized
	}
	if strings.Contains(strings.ToLower(text), noPrivilegesMarker) {
		return Fact{}, nil
	}

	var fact Fact
	for _, g := range p.groups {
		if g.pattern.MatchString(text) {
			fact.Group = g.label
			fact.HasPrivilege = true
			break
		}
	}
	fact.ExpiresAt = parseExpiry(text)

	if !fact.HasPrivilege {
		return fact, ErrNotRecognized
	}
	return fact, nil
}

func parseExpiry(text string) *time.Time {
	for _, f := range expiryFormats {
		m := f.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		ts, err := time.ParseInLocation(f.layout, m[1], time.UTC)
		if err != nil {
			continue
		}
		return &ts
	}
	return nil
}
