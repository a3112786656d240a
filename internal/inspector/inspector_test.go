package inspector

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findOne asserts a selector emitted by the inspector resolves to exactly one
// element in the source document.
func findOne(t *testing.T, html, selector string) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find(selector).Length(), "selector %q must match exactly one element", selector)
}

const applicationFormHTML = `
<html>
<head><title>Apply - Acme Corp</title></head>
<body>
<h1>Software Engineer Application</h1>
<form>
  <label for="first-name">First Name</label>
  <input id="first-name" type="text" name="firstName" required>

  <label for="work-email">Work Email</label>
  <input id="work-email" type="email" name="workEmail" required>

  <label>Phone Number <input type="tel" name="phone"></label>

  <input type="text" aria-label="LinkedIn Profile" name="linkedin">

  <input type="text" placeholder="Current Company">

  <label for="resume">Resume (PDF)</label>
  <input id="resume" type="file" name="resume" required>

  <textarea name="cover_letter" aria-label="Cover Letter"></textarea>

  <label><input type="checkbox" name="tos"> I agree to the terms and privacy policy</label>

  <input type="hidden" name="csrf" value="abc">
  <input type="text" name="honeypot" style="display: none">

  <button type="submit" id="submit-btn">Submit Application</button>
</form>
</body>
</html>`

func TestInspectApplicationForm(t *testing.T) {
	page, err := Inspect(applicationFormHTML, "https://jobs.acme.com/apply/1")
	require.NoError(t, err)

	assert.Equal(t, "Apply - Acme Corp", page.Title)
	assert.False(t, page.HasLoginWall)
	assert.False(t, page.Confirmation)

	require.Len(t, page.Fields, 7, "hidden and display:none inputs are skipped, agreement box split out")

	byLabel := make(map[string]FormField)
	for _, f := range page.Fields {
		byLabel[f.Label] = f
	}

	first := byLabel["First Name"]
	assert.Equal(t, "#first-name", first.Selector)
	assert.Equal(t, KindText, first.Kind)
	assert.True(t, first.Required)

	email := byLabel["Work Email"]
	assert.Equal(t, KindEmail, email.Kind)
	assert.True(t, email.Required)

	phone, ok := byLabel["Phone Number"]
	require.True(t, ok, "wrapping label text resolves the phone field")
	assert.Equal(t, KindPhone, phone.Kind)

	linkedin := byLabel["LinkedIn Profile"]
	assert.Equal(t, KindText, linkedin.Kind, "aria-label resolves when no label element exists")

	_, ok = byLabel["Current Company"]
	assert.True(t, ok, "placeholder is the last-resort label")

	resume := byLabel["Resume (PDF)"]
	assert.Equal(t, KindFile, resume.Kind)
	assert.True(t, resume.Required)

	cover := byLabel["Cover Letter"]
	assert.Equal(t, KindTextarea, cover.Kind)

	require.Len(t, page.AgreementBoxes, 1)
	assert.Contains(t, page.AgreementBoxes[0].Label, "agree")

	require.NotEmpty(t, page.SubmitCandidates)
	assert.Equal(t, "#submit-btn", page.SubmitCandidates[0].Selector)
	assert.Equal(t, "Submit Application", page.SubmitCandidates[0].Text)

	// Every emitted selector must locate its element.
	for _, f := range page.Fields {
		findOne(t, applicationFormHTML, f.Selector)
	}
	for _, f := range page.AgreementBoxes {
		findOne(t, applicationFormHTML, f.Selector)
	}
	for _, c := range page.SubmitCandidates {
		findOne(t, applicationFormHTML, c.Selector)
	}
}

func TestSelectorFallbackResolvesAfterOtherControls(t *testing.T) {
	// A select preceding an id-less, name-less input must not inflate the
	// input's ordinal or kind into a selector that matches nothing.
	html := `<html><body><form>
		<label>Country <select name="country"><option>US</option></select></label>
		<input type="text" aria-label="Favorite Color" required>
	</form></body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/apply/1")
	require.NoError(t, err)
	require.Len(t, page.Fields, 2)
	assert.Equal(t, `input[aria-label="Favorite Color"]`, page.Fields[1].Selector)
	findOne(t, html, page.Fields[1].Selector)
}

func TestPositionalFallbackCountsSameTagSiblings(t *testing.T) {
	html := `<html><body><form>
		<select name="country"><option>US</option></select>
		<textarea name="notes"></textarea>
		<label>Favorite Color <input type="text"></label>
	</form></body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/apply/1")
	require.NoError(t, err)
	require.Len(t, page.Fields, 3)

	color := page.Fields[2]
	assert.Equal(t, "Favorite Color", color.Label)
	assert.Equal(t, "input:nth-of-type(1)", color.Selector)
	findOne(t, html, color.Selector)
}

func TestIdWithMetacharactersUsesAttributeSelector(t *testing.T) {
	html := `<html><body><form>
		<input id="ctl00$Main:user.email" type="email" aria-label="Email">
	</form></body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/apply/1")
	require.NoError(t, err)
	require.Len(t, page.Fields, 1)
	assert.Equal(t, `[id="ctl00$Main:user.email"]`, page.Fields[0].Selector)
	findOne(t, html, page.Fields[0].Selector)
}

func TestTruncateCutsAtRuneBoundary(t *testing.T) {
	s := "résumé"
	for n := 0; n <= len(s); n++ {
		cut := truncate(s, n)
		assert.True(t, utf8.ValidString(cut), "truncate(%q, %d) = %q", s, n, cut)
	}
	// The é at byte offset 1 spans bytes 1..2; cutting inside it backs off.
	assert.Equal(t, "r", truncate(s, 2))
	assert.Equal(t, s, truncate(s, len(s)))
}

func TestSelectorPreference(t *testing.T) {
	html := `<html><body><form>
		<input type="text" data-automation-id="legalNameSection_firstName" aria-label="First Name">
		<input type="text" name="lastName" aria-label="Last Name">
	</form></body></html>`

	page, err := Inspect(html, "https://acme.wd5.myworkdayjobs.com/apply")
	require.NoError(t, err)
	require.Len(t, page.Fields, 2)
	assert.Equal(t, `[data-automation-id="legalNameSection_firstName"]`, page.Fields[0].Selector)
	assert.Equal(t, `input[name="lastName"]`, page.Fields[1].Selector)
}

func TestDetectLoginWall(t *testing.T) {
	html := `<html><body>
		<h2>Sign in to continue</h2>
		<form>
			<label for="em">Email</label><input id="em" type="email">
			<label for="pw">Password</label><input id="pw" type="password">
			<button type="submit">Sign In</button>
		</form>
	</body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/login")
	require.NoError(t, err)
	assert.True(t, page.HasLoginWall, "a visible password input is the strongest signal")
}

func TestNavigationHeaderIsNotALoginWall(t *testing.T) {
	html := `<html><body>
		<nav><a href="/login">Sign in</a></nav>
		<form>
			<label for="em">Work Email</label><input id="em" type="email">
		</form>
	</body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/apply/1")
	require.NoError(t, err)
	assert.False(t, page.HasLoginWall, "sign-in wording without a password context must not trip detection")
}

func TestDetectConfirmation(t *testing.T) {
	html := `<html><body>
		<h1>Thank you for applying!</h1>
		<p>We have received your application and will be in touch.</p>
	</body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/apply/1/done")
	require.NoError(t, err)
	assert.True(t, page.Confirmation)
	assert.Empty(t, page.Fields)
}

func TestExtractErrorBanners(t *testing.T) {
	html := `<html><body>
		<div role="alert">Please correct the errors below.</div>
		<div class="field-error">Email address is invalid</div>
		<form><input type="email" aria-label="Email"></form>
	</body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/apply/1")
	require.NoError(t, err)
	require.Len(t, page.ErrorBanners, 2)
	assert.Contains(t, page.ErrorBanners[0], "correct the errors")
}

func TestUnlabeledUnnamedFieldIsSkipped(t *testing.T) {
	html := `<html><body><form><input type="text"></form></body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/apply/1")
	require.NoError(t, err)
	assert.Empty(t, page.Fields, "nothing to key a mapping on")
}

func TestHumanizedNameFallback(t *testing.T) {
	html := `<html><body><form><input type="text" name="years_of_experience"></form></body></html>`

	page, err := Inspect(html, "https://jobs.acme.com/apply/1")
	require.NoError(t, err)
	require.Len(t, page.Fields, 1)
	assert.Equal(t, "years of experience", page.Fields[0].Label)
}
