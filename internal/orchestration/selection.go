package orchestration

import (
	"regexp"
	"strings"

	"github.com/edgecv/fleet-console/internal/domain"
)

// LatestVersion is used when a catalog label carries no version token.
const LatestVersion = "latest"

var labelVersion = regexp.MustCompile(`(?:^|[\s_-])v(\d+(?:\.\d+)*)\b`)

// ParseComponentLabel splits "<name> v<version>" into name and version. The
// version token may also follow a hyphen or underscore ("cam-v1.2"); a label
// without one is version "latest".
func ParseComponentLabel(label string) (string, string) {
	label = strings.TrimSpace(label)
	loc := labelVersion.FindStringSubmatchIndex(label)
	if loc == nil {
		return label, LatestVersion
	}
	version := label[loc[2]:loc[3]]
	name := strings.TrimSpace(label[:loc[0]])
	if name == "" {
		name = label
	}
	return name, version
}

// Selection is the ordered list of components picked for one deployment.
// ARNs are unique; entries are only appended or removed.
type Selection struct {
	items []domain.ComponentSelection
}

// Add appends entry unless its ARN is already selected. It reports whether
// the list changed.
func (s *Selection) Add(entry domain.CatalogEntry) bool {
	if s.Contains(entry.ARN) {
		return false
	}
	name, version := ParseComponentLabel(entry.Label)
	s.items = append(s.items, domain.ComponentSelection{
		ComponentName:    name,
		ComponentVersion: version,
		ARN:              entry.ARN,
		Scope:            entry.Scope,
	})
	return true
}

// Remove drops the entry with the exact ARN, keeping the order of the rest.
func (s *Selection) Remove(arn string) bool {
	for i, item := range s.items {
		if item.ARN == arn {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Preselect seeds the list with the private option whose ARN matches, as
// when arriving from a deep link. An ARN that is not among the loaded
// options is not an error; the list is left as it is.
func (s *Selection) Preselect(arn string, privateOptions []domain.CatalogEntry) bool {
	arn = strings.TrimSpace(arn)
	if arn == "" {
		return false
	}
	for _, opt := range privateOptions {
		if opt.ARN != arn {
			continue
		}
		opt.Scope = domain.ScopePrivate
		s.items = nil
		return s.Add(opt)
	}
	return false
}

func (s *Selection) Contains(arn string) bool {
	for _, item := range s.items {
		if item.ARN == arn {
			return true
		}
	}
	return false
}

func (s *Selection) Len() int {
	return len(s.items)
}

// Items returns a copy of the selections in the order they were added.
func (s *Selection) Items() []domain.ComponentSelection {
	out := make([]domain.ComponentSelection, len(s.items))
	copy(out, s.items)
	return out
}
