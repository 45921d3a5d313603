package announcement

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const (
	// MaxSectionLength is Discord's embed field value limit.
	MaxSectionLength = 1024
	truncationMarker = "..."
	emptyPlaceholder = "*No members*"

	title  = "Staff"
	footer = "Updated automatically when staff roles change"
)

// SortRoles orders roles by descending priority, keeping configuration order
// for ties.
func SortRoles(roles []StaffRole) []StaffRole {
	sorted := make([]StaffRole, len(roles))
	copy(sorted, roles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return sorted
}

// Render builds the announcement body. roles must already be sorted.
func Render(roles []StaffRole, roster Roster, now time.Time) Content {
	content := Content{Title: title, Footer: footer, Timestamp: now.UTC()}
	folder := cases.Fold()
	for _, role := range roles {
		members, ok := roster[role.RoleID]
		if !ok {
			continue
		}
		content.Sections = append(content.Sections, Section{
			Name:  role.Name,
			Value: sectionValue(members, folder),
		})
	}
	return content
}

func sectionValue(members []Member, folder cases.Caser) string {
	if len(members) == 0 {
		return emptyPlaceholder
	}
	sorted := make([]Member, len(members))
	copy(sorted, members)
	keys := make(map[string]string, len(sorted))
	for _, m := range sorted {
		keys[m.ID] = folder.String(m.DisplayName)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := keys[sorted[i].ID], keys[sorted[j].ID]
		if ki != kj {
			return ki < kj
		}
		return sorted[i].ID < sorted[j].ID
	})

	lines := make([]string, len(sorted))
	for i, m := range sorted {
		lines[i] = m.Mention()
	}
	return truncate(strings.Join(lines, "\n"), MaxSectionLength)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-len(truncationMarker)]) + truncationMarker
}
