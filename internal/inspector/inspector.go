// Package inspector turns raw page HTML into a normalized view of the
// interactive controls the agent can act on. It is re-run on every page
// visit; nothing here is persisted directly.
package inspector

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// FieldKind classifies a detected control.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindEmail    FieldKind = "email"
	KindPassword FieldKind = "password"
	KindPhone    FieldKind = "phone"
	KindNumber   FieldKind = "number"
	KindURL      FieldKind = "url"
	KindTextarea FieldKind = "textarea"
	KindSelect   FieldKind = "select"
	KindCheckbox FieldKind = "checkbox"
	KindFile     FieldKind = "file"
)

// FormField is one detected control on the live page.
type FormField struct {
	Selector     string
	Kind         FieldKind
	Label        string
	Name         string
	Required     bool
	CurrentValue string
}

// SubmitControl is a candidate button for submitting the current form.
type SubmitControl struct {
	Selector string
	Text     string
}

// Page is the normalized result of inspecting one page.
type Page struct {
	URL              string
	Title            string
	Fields           []FormField
	SubmitCandidates []SubmitControl
	AgreementBoxes   []FormField
	HasLoginWall     bool
	Confirmation     bool
	ErrorBanners     []string
	TextPreview      string
}

var confirmationPhrases = []string{
	"thank you for applying",
	"application received",
	"application submitted",
	"application has been submitted",
	"we have received your application",
	"successfully submitted",
	"thanks for your interest",
}

var signInPhrases = []string{"sign in", "log in", "login", "sign up", "create account"}

var agreementPhrases = []string{"agree", "terms", "privacy", "consent"}

// Inspect parses the page HTML and extracts interactive controls, login-wall
// and confirmation signals, and visible error banners.
func Inspect(html, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	page := &Page{URL: pageURL}
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())

	bodyText := collapseSpace(doc.Find("body").Text())
	page.TextPreview = truncate(bodyText, 1500)
	lowerText := strings.ToLower(bodyText)

	for _, phrase := range confirmationPhrases {
		if strings.Contains(lowerText, phrase) {
			page.Confirmation = true
			break
		}
	}

	doc.Find("input, textarea, select").Each(func(i int, s *goquery.Selection) {
		field, ok := extractField(doc, s)
		if !ok {
			return
		}
		if field.Kind == KindCheckbox && isAgreementBox(field) {
			page.AgreementBoxes = append(page.AgreementBoxes, field)
			return
		}
		page.Fields = append(page.Fields, field)
	})

	page.SubmitCandidates = extractSubmitControls(doc)
	page.HasLoginWall = detectLoginWall(page.Fields, lowerText)
	page.ErrorBanners = extractErrorBanners(doc)

	return page, nil
}

func extractField(doc *goquery.Document, s *goquery.Selection) (FormField, bool) {
	if isHidden(s) {
		return FormField{}, false
	}

	tag := goquery.NodeName(s)
	inputType := strings.ToLower(s.AttrOr("type", "text"))

	var kind FieldKind
	switch tag {
	case "textarea":
		kind = KindTextarea
	case "select":
		kind = KindSelect
	default:
		switch inputType {
		case "hidden", "submit", "button", "image", "reset":
			return FormField{}, false
		case "email":
			kind = KindEmail
		case "password":
			kind = KindPassword
		case "tel":
			kind = KindPhone
		case "number":
			kind = KindNumber
		case "url":
			kind = KindURL
		case "checkbox", "radio":
			kind = KindCheckbox
		case "file":
			kind = KindFile
		default:
			kind = KindText
		}
	}

	field := FormField{
		Kind:         kind,
		Name:         s.AttrOr("name", ""),
		CurrentValue: s.AttrOr("value", ""),
	}
	_, field.Required = s.Attr("required")
	if s.AttrOr("aria-required", "") == "true" {
		field.Required = true
	}

	field.Selector = buildSelector(s, tag)
	field.Label = resolveLabel(doc, s)
	if field.Label == "" && field.Kind == KindFile {
		field.Label = "Upload"
	}
	if field.Label == "" && field.Name == "" {
		// Nothing to key a mapping on.
		return FormField{}, false
	}
	if field.Label == "" {
		field.Label = humanizeName(field.Name)
	}
	return field, true
}

// buildSelector produces the most stable locator available, in order of
// preference: id, data-automation-id (Workday and friends), name, aria-label,
// placeholder, then a sibling-positional fallback.
func buildSelector(s *goquery.Selection, tag string) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		return idSelector(id)
	}
	if aid, ok := s.Attr("data-automation-id"); ok && aid != "" {
		return fmt.Sprintf(`[data-automation-id=%q]`, aid)
	}
	if name, ok := s.Attr("name"); ok && name != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, name)
	}
	if aria, ok := s.Attr("aria-label"); ok && aria != "" {
		return fmt.Sprintf(`%s[aria-label=%q]`, tag, aria)
	}
	if ph, ok := s.Attr("placeholder"); ok && ph != "" {
		return fmt.Sprintf(`%s[placeholder=%q]`, tag, ph)
	}
	// nth-of-type counts same-tag siblings, so the ordinal must too.
	n := 1
	for prev := s.Prev(); prev.Length() > 0; prev = prev.Prev() {
		if goquery.NodeName(prev) == tag {
			n++
		}
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, n)
}

// resolveLabel finds the best human-readable text for a control:
// label[for], wrapping label, aria-label, placeholder, in that order.
func resolveLabel(doc *goquery.Document, s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		label := doc.Find(fmt.Sprintf(`label[for=%q]`, id)).First()
		if text := collapseSpace(label.Text()); text != "" {
			return text
		}
	}
	if wrapping := s.ParentsFiltered("label").First(); wrapping.Length() > 0 {
		if text := collapseSpace(wrapping.Text()); text != "" {
			return text
		}
	}
	if aria := strings.TrimSpace(s.AttrOr("aria-label", "")); aria != "" {
		return aria
	}
	if ph := strings.TrimSpace(s.AttrOr("placeholder", "")); ph != "" {
		return ph
	}
	return ""
}

func extractSubmitControls(doc *goquery.Document) []SubmitControl {
	var controls []SubmitControl
	seen := make(map[string]bool)

	add := func(sel string, text string) {
		if sel == "" || seen[sel] {
			return
		}
		seen[sel] = true
		controls = append(controls, SubmitControl{Selector: sel, Text: text})
	}

	doc.Find(`button, input[type="submit"]`).Each(func(i int, s *goquery.Selection) {
		if isHidden(s) {
			return
		}
		text := collapseSpace(s.Text())
		if text == "" {
			text = s.AttrOr("value", "")
		}
		btnType := strings.ToLower(s.AttrOr("type", ""))
		lower := strings.ToLower(text)

		isSubmitText := false
		for _, word := range []string{"submit", "apply", "continue", "next", "send application", "save and continue"} {
			if strings.Contains(lower, word) {
				isSubmitText = true
				break
			}
		}
		if btnType != "submit" && !isSubmitText {
			return
		}

		sel := ""
		if id, ok := s.Attr("id"); ok && id != "" {
			sel = idSelector(id)
		} else if aid, ok := s.Attr("data-automation-id"); ok && aid != "" {
			sel = fmt.Sprintf(`[data-automation-id=%q]`, aid)
		} else if name, ok := s.Attr("name"); ok && name != "" {
			sel = fmt.Sprintf(`button[name=%q]`, name)
		} else if btnType == "submit" {
			if goquery.NodeName(s) == "input" {
				sel = `input[type="submit"]`
			} else {
				sel = `button[type="submit"]`
			}
		}
		add(sel, text)
	})

	return controls
}

// detectLoginWall is structural first: a visible password input is the
// strongest signal. Sign-in wording alone only counts when an email or text
// input is also present, so plain navigation headers don't trip it.
func detectLoginWall(fields []FormField, lowerText string) bool {
	hasPassword := false
	hasIdentity := false
	for _, f := range fields {
		switch f.Kind {
		case KindPassword:
			hasPassword = true
		case KindEmail, KindText:
			hasIdentity = true
		}
	}
	if hasPassword {
		return true
	}
	if !hasIdentity {
		return false
	}
	for _, phrase := range signInPhrases {
		if strings.Contains(lowerText, phrase) && strings.Contains(lowerText, "password") {
			return true
		}
	}
	return false
}

func extractErrorBanners(doc *goquery.Document) []string {
	var banners []string
	doc.Find(`[role="alert"], [class*="error"], [data-automation-id*="error"]`).Each(func(i int, s *goquery.Selection) {
		if isHidden(s) {
			return
		}
		if text := collapseSpace(s.Text()); text != "" && len(banners) < 10 {
			banners = append(banners, truncate(text, 200))
		}
	})
	return banners
}

func isAgreementBox(f FormField) bool {
	lower := strings.ToLower(f.Label + " " + f.Name)
	for _, phrase := range agreementPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func isHidden(s *goquery.Selection) bool {
	if _, ok := s.Attr("hidden"); ok {
		return true
	}
	if s.AttrOr("aria-hidden", "") == "true" {
		return true
	}
	style := strings.ReplaceAll(s.AttrOr("style", ""), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

func humanizeName(name string) string {
	name = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
	return collapseSpace(name)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts at a rune boundary; the preview feeds AI prompts and must
// stay valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var plainIDRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// idSelector prefers the #id form but falls back to the attribute form for
// ids carrying CSS metacharacters ("ctl00$user.email" on ASP.NET portals,
// colons on Workday), which only needs quote escaping.
func idSelector(id string) string {
	if plainIDRe.MatchString(id) {
		return "#" + id
	}
	return fmt.Sprintf(`[id=%q]`, id)
}
