// Package mapper resolves detected form controls to profile attributes.
// Resolution is layered: stored portal memory first, deterministic heuristics
// second, the AI capability last. All acceptance logic (thresholds, conflict
// resolution) lives here so the AI boundary stays narrow and testable.
package mapper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/akashpal/jobwright/internal/ai"
	"github.com/akashpal/jobwright/internal/inspector"
	"github.com/akashpal/jobwright/internal/logging"
	"github.com/akashpal/jobwright/internal/memory"
	"github.com/akashpal/jobwright/internal/profile"
)

// Confidence assigned by each deterministic heuristic tier.
const (
	confExactMatch   = 0.95
	confSynonymMatch = 0.90
	confKindMatch    = 0.90
	confFileKeyword  = 0.85
)

// synonyms maps normalized label text to a profile attribute. Only exact
// (whole-label) matches use this table; fuzzier labels go to the AI so a
// wrong guess never silently fills a field.
var synonyms = map[string]string{
	"e mail":           "email",
	"email address":    "email",
	"mail":             "email",
	"given name":       "first_name",
	"forename":         "first_name",
	"surname":          "last_name",
	"family name":      "last_name",
	"phone number":     "phone",
	"mobile":           "phone",
	"mobile number":    "phone",
	"telephone":        "phone",
	"contact number":   "phone",
	"linkedin":         "linkedin_url",
	"linkedin profile": "linkedin_url",
	"github":           "github_url",
	"portfolio":        "portfolio_url",
	"website":          "portfolio_url",
	"company":          "current_company",
	"employer":         "current_company",
	"job title":        "current_title",
	"title":            "current_title",
	"zip":              "zip_code",
	"postal code":      "zip_code",
	"postcode":         "zip_code",
}

// fileKeywords resolve file-upload controls by label substring. Substring
// matching is allowed only for uploads, mirroring how resumes and photos are
// actually labeled in the wild ("Resume (PDF)", "Upload your CV").
var fileKeywords = []struct {
	keyword   string
	attribute string
}{
	{"resume", "resume_path"},
	{"cv", "resume_path"},
	{"curriculum vitae", "resume_path"},
	{"cover letter", "cover_letter"},
	{"photo", "photo_path"},
	{"picture", "photo_path"},
	{"image", "photo_path"},
	{"headshot", "photo_path"},
}

// Resolved pairs a detected field with its accepted mapping.
type Resolved struct {
	Field   inspector.FormField
	Mapping memory.FieldMapping
}

// Result is the outcome of resolving one page's fields.
type Result struct {
	Resolved         []Resolved
	Unmapped         []inspector.FormField
	RequiredUnmapped []inspector.FormField
	AIQueries        int
}

// Options tune one resolution pass.
type Options struct {
	Threshold float64
	// AuthOnly restricts candidates to credentials, for login walls.
	AuthOnly bool
	// WideContext broadens the AI prompt to every profile attribute plus
	// the page text; used on retry after a required field stayed unmapped.
	WideContext bool
	PageText    string
}

// Mapper resolves fields for one profile using an AI client as fallback.
type Mapper struct {
	profile *profile.Profile
	client  ai.Client
}

// New creates a Mapper.
func New(p *profile.Profile, client ai.Client) *Mapper {
	return &Mapper{profile: p, client: client}
}

// NormalizeLabel turns a field label into its lookup key: lower-case,
// punctuation stripped, whitespace collapsed.
func NormalizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Resolve maps each field to a profile attribute. stored carries the portal's
// remembered label-key mappings (possibly empty). Fields that cannot be
// resolved at or above the threshold stay unmapped; required ones among them
// are surfaced separately as a blocking condition.
func (m *Mapper) Resolve(ctx context.Context, fields []inspector.FormField, stored map[string]memory.FieldMapping, opts Options) (*Result, error) {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.5
	}

	result := &Result{}
	type candidate struct {
		field   inspector.FormField
		mapping memory.FieldMapping
		ok      bool
	}
	candidates := make([]candidate, 0, len(fields))

	used := make(map[string]bool) // attributes already consumed by the AI prompt context

	for _, field := range fields {
		key := NormalizeLabel(field.Label)

		mapping, ok := m.resolveFromMemory(key, stored, opts)
		if !ok {
			mapping, ok = m.resolveHeuristic(key, field, opts)
		}
		if !ok && !opts.AuthOnly {
			var queried bool
			var err error
			mapping, ok, queried, err = m.resolveWithAI(ctx, key, field, used, opts)
			if err != nil {
				return nil, err
			}
			if queried {
				result.AIQueries++
			}
		}

		if ok {
			used[mapping.Attribute] = true
		}
		candidates = append(candidates, candidate{field: field, mapping: mapping, ok: ok})
	}

	// Conflict rule: one attribute fills at most one field; the
	// higher-confidence mapping wins and the loser is treated as unmapped.
	best := make(map[string]int) // attribute -> index into candidates
	for i, c := range candidates {
		if !c.ok {
			continue
		}
		prev, seen := best[c.mapping.Attribute]
		if !seen || c.mapping.Confidence > candidates[prev].mapping.Confidence {
			if seen {
				candidates[prev].ok = false
				logging.Debug("Mapping conflict on %q: %q (%.2f) loses to %q (%.2f)",
					c.mapping.Attribute, candidates[prev].field.Label,
					candidates[prev].mapping.Confidence, c.field.Label, c.mapping.Confidence)
			}
			best[c.mapping.Attribute] = i
		} else {
			candidates[i].ok = false
		}
	}

	for _, c := range candidates {
		if c.ok {
			result.Resolved = append(result.Resolved, Resolved{Field: c.field, Mapping: c.mapping})
		} else {
			result.Unmapped = append(result.Unmapped, c.field)
			if c.field.Required {
				result.RequiredUnmapped = append(result.RequiredUnmapped, c.field)
			}
		}
	}
	return result, nil
}

// resolveFromMemory is the fast path: a remembered mapping at or above the
// threshold short-circuits both heuristics and the AI.
func (m *Mapper) resolveFromMemory(key string, stored map[string]memory.FieldMapping, opts Options) (memory.FieldMapping, bool) {
	saved, ok := stored[key]
	if !ok || saved.Confidence < opts.Threshold {
		return memory.FieldMapping{}, false
	}
	if !m.allowedAttribute(saved.Attribute, opts) || !m.profile.Has(saved.Attribute) {
		return memory.FieldMapping{}, false
	}
	return memory.FieldMapping{
		LabelKey:   key,
		Attribute:  saved.Attribute,
		Confidence: saved.Confidence,
		Source:     memory.SourceMemory,
	}, true
}

func (m *Mapper) resolveHeuristic(key string, field inspector.FormField, opts Options) (memory.FieldMapping, bool) {
	mk := func(attr string, conf float64) (memory.FieldMapping, bool) {
		if !m.allowedAttribute(attr, opts) || !m.profile.Has(attr) {
			return memory.FieldMapping{}, false
		}
		return memory.FieldMapping{
			LabelKey:   key,
			Attribute:  attr,
			Confidence: conf,
			Source:     memory.SourceHeuristic,
		}, true
	}

	// Auth pages are structural: the control kind identifies the credential.
	if opts.AuthOnly {
		switch field.Kind {
		case inspector.KindEmail:
			return mk("email", confKindMatch)
		case inspector.KindPassword:
			return mk("password", confKindMatch)
		case inspector.KindText:
			if strings.Contains(key, "email") || strings.Contains(key, "user") {
				return mk("email", confSynonymMatch)
			}
		}
		return memory.FieldMapping{}, false
	}

	// Exact match against an attribute name ("first name" -> first_name).
	exact := strings.ReplaceAll(key, " ", "_")
	if m.profile.Has(exact) && profile.IsKnown(exact) {
		return mk(exact, confExactMatch)
	}

	if attr, ok := synonyms[key]; ok {
		return mk(attr, confSynonymMatch)
	}

	if field.Kind == inspector.KindFile {
		for _, fk := range fileKeywords {
			if containsWord(key, fk.keyword) {
				return mk(fk.attribute, confFileKeyword)
			}
		}
	}
	return memory.FieldMapping{}, false
}

// resolveWithAI asks the model to pick the best-matching attribute for one
// field. The answer is an untrusted hint: it is accepted only when the named
// attribute is a real, allowed candidate and the confidence clears the
// threshold.
func (m *Mapper) resolveWithAI(ctx context.Context, key string, field inspector.FormField, used map[string]bool, opts Options) (memory.FieldMapping, bool, bool, error) {
	attrs := m.candidateAttributes(used, opts)
	if len(attrs) == 0 {
		return memory.FieldMapping{}, false, false, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "A job-application form has a field labeled %q of kind %q.\n", field.Label, field.Kind)
	fmt.Fprintf(&sb, "Available applicant attributes: %s.\n", strings.Join(attrs, ", "))
	if opts.WideContext && opts.PageText != "" {
		fmt.Fprintf(&sb, "Surrounding page text:\n%s\n", opts.PageText)
	}

	answer, err := m.client.Ask(ctx, ai.Request{
		Context:  sb.String(),
		Question: "Which attribute should fill this field? Answer \"none\" if no attribute fits.",
		Shape:    `{"attribute": "<attribute name or none>", "confidence": 0.0}`,
	})
	if err != nil {
		return memory.FieldMapping{}, false, true, err
	}

	attr := strings.TrimSpace(strings.ToLower(answer.Attribute))
	if attr == "" || attr == "none" {
		return memory.FieldMapping{}, false, true, nil
	}
	if !contains(attrs, attr) {
		logging.Debug("AI suggested unavailable attribute %q for field %q", attr, field.Label)
		return memory.FieldMapping{}, false, true, nil
	}
	if answer.Confidence < opts.Threshold {
		logging.Debug("AI mapping %q -> %q below threshold (%.2f < %.2f)", field.Label, attr, answer.Confidence, opts.Threshold)
		return memory.FieldMapping{}, false, true, nil
	}

	return memory.FieldMapping{
		LabelKey:   key,
		Attribute:  attr,
		Confidence: answer.Confidence,
		Source:     memory.SourceAI,
	}, true, true, nil
}

// candidateAttributes lists attributes the AI may choose from. Attributes
// already consumed by an earlier field on the same page are excluded unless
// WideContext asks for the full set.
func (m *Mapper) candidateAttributes(used map[string]bool, opts Options) []string {
	names := m.profile.AttributeNames()
	if opts.WideContext {
		return names
	}
	out := names[:0:0]
	for _, n := range names {
		if !used[n] {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Mapper) allowedAttribute(attr string, opts Options) bool {
	if opts.AuthOnly {
		return attr == "email" || attr == "password"
	}
	return attr != "password"
}

func containsWord(key, word string) bool {
	for _, w := range strings.Fields(key) {
		if w == word {
			return true
		}
	}
	return strings.Contains(key, word+" ") || strings.HasSuffix(key, word) && len(word) > 2
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
