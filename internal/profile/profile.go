// Package profile holds the applicant data used to fill application forms.
package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Recognized attribute names. Anything else in the config's profile section is
// carried along unchanged; unrecognized attributes are simply never selected
// by a mapping.
var knownAttributes = []string{
	"email", "password", "first_name", "last_name", "phone",
	"address", "city", "state", "zip_code", "country",
	"linkedin_url", "github_url", "portfolio_url",
	"current_company", "current_title", "years_experience",
	"resume_path", "photo_path", "cover_letter",
}

// Profile is an immutable applicant attribute bag. It is created once from
// configuration before any attempt starts and shared read-only afterwards.
type Profile struct {
	attrs map[string]string
}

// New builds a Profile from an attribute map. The map is copied; later
// mutation of the argument does not affect the profile.
func New(attrs map[string]string) (*Profile, error) {
	if attrs["email"] == "" {
		return nil, fmt.Errorf("profile requires an email attribute")
	}
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[normalizeName(k)] = v
	}
	return &Profile{attrs: copied}, nil
}

// Get returns the value for an attribute name, or "" if absent.
func (p *Profile) Get(name string) string {
	return p.attrs[normalizeName(name)]
}

// Has reports whether the attribute exists with a non-empty value.
func (p *Profile) Has(name string) bool {
	return p.Get(name) != ""
}

// Attributes returns a copy of the full name to value view.
func (p *Profile) Attributes() map[string]string {
	out := make(map[string]string, len(p.attrs))
	for k, v := range p.attrs {
		out[k] = v
	}
	return out
}

// AttributeNames returns the sorted names of non-empty attributes,
// excluding the password. The password is only ever offered to auth-scoped
// mapping, never to a generic form fill or an AI prompt.
func (p *Profile) AttributeNames() []string {
	names := make([]string, 0, len(p.attrs))
	for k, v := range p.attrs {
		if v == "" || k == "password" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsKnown reports whether the name is one of the documented attributes.
func IsKnown(name string) bool {
	name = normalizeName(name)
	for _, k := range knownAttributes {
		if k == name {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
