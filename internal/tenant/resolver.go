// Package tenant derives the active organization from the live navigation
// path and a session-scoped override. The UI is served from statically
// generated route templates, so the framework's route-parameter binding
// can surface a literal placeholder token instead of a real id; the path
// string is the only trustworthy source.
package tenant

import (
	"strings"
)

// anchorSegment precedes the organization id in portal paths, e.g.
// /org/org-42/dashboard.
const anchorSegment = "org"

// placeholderTokens are route-template artifacts that must never be
// treated as organization ids.
var placeholderTokens = map[string]bool{
	"[orgId]":     true,
	"%5BorgId%5D": true,
	"{orgId}":     true,
	":orgId":      true,
	"_":           true,
}

// TenantLister is the slice of the principal the resolver needs.
type TenantLister interface {
	BelongsTo(orgID string) bool
	IsAgency() bool
}

// Resolve returns the active organization id, or "" when not yet
// resolvable. Empty is a pending state, not an error.
//
// Precedence: a concrete id parsed from the path wins; a placeholder in
// the path falls through to the session override; with neither, pending.
func Resolve(path, overrideID string) string {
	if id := FromPath(path); id != "" {
		return id
	}
	return overrideID
}

// FromPath extracts the path element following the anchor segment,
// rejecting known placeholder tokens.
func FromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if seg != anchorSegment || i+1 >= len(segments) {
			continue
		}
		candidate := segments[i+1]
		if candidate == "" || placeholderTokens[candidate] {
			return ""
		}
		return candidate
	}
	return ""
}
