package domain

import (
	"fmt"
	"strings"
)

// Scope tells where a component is published.
type Scope string

const (
	ScopePrivate Scope = "PRIVATE"
	ScopePublic  Scope = "PUBLIC"
)

func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToUpper(strings.TrimSpace(raw))) {
	case ScopePrivate:
		return ScopePrivate, nil
	case ScopePublic:
		return ScopePublic, nil
	default:
		return "", fmt.Errorf("%w: scope must be PRIVATE or PUBLIC (got %q)", ErrInvalidArgument, raw)
	}
}

// Component is a catalog item as listed by the backend.
type Component struct {
	ComponentName string
	ARN           string
	Description   string
	LatestVersion string
}

// CatalogEntry is what a user picks from. Label encodes "<name> v<version>".
type CatalogEntry struct {
	ARN         string
	Label       string
	Scope       Scope
	Description string
}

func (c Component) CatalogEntry(scope Scope) CatalogEntry {
	label := strings.TrimSpace(c.ComponentName)
	if v := strings.TrimSpace(c.LatestVersion); v != "" {
		label += " v" + v
	}
	return CatalogEntry{
		ARN:         c.ARN,
		Label:       label,
		Scope:       scope,
		Description: c.Description,
	}
}

// ComponentSelection is one user-picked component. ARN is unique within a
// deployment request.
type ComponentSelection struct {
	ComponentName    string `json:"component_name" yaml:"component_name"`
	ComponentVersion string `json:"component_version" yaml:"component_version"`
	ARN              string `json:"arn" yaml:"arn"`
	Scope            Scope  `json:"scope" yaml:"scope"`
}

// ComponentRef is the name+version pair sent to the backend.
type ComponentRef struct {
	ComponentName    string `json:"component_name" validate:"required"`
	ComponentVersion string `json:"component_version" validate:"required"`
}

// AutoIncludedComponent is a dependency the backend added on its own.
type AutoIncludedComponent struct {
	ComponentName    string `json:"component_name" yaml:"component_name"`
	ComponentVersion string `json:"component_version" yaml:"component_version"`
	Reason           string `json:"reason" yaml:"reason"`
}
