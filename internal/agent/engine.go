// Package agent runs the application attempt state machine: navigate,
// authenticate, analyze, map, fill, upload, submit, with retries and
// persistent per-portal learning.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/akashpal/jobwright/internal/ai"
	"github.com/akashpal/jobwright/internal/browser"
	"github.com/akashpal/jobwright/internal/database"
	"github.com/akashpal/jobwright/internal/inspector"
	"github.com/akashpal/jobwright/internal/logging"
	"github.com/akashpal/jobwright/internal/mapper"
	"github.com/akashpal/jobwright/internal/memory"
	"github.com/akashpal/jobwright/internal/profile"
)

// State is a position in the attempt lifecycle.
type State string

const (
	StateInit     State = "INIT"
	StateAuth     State = "AUTH"
	StateAnalyze  State = "ANALYZE"
	StateMap      State = "MAP"
	StateFill     State = "FILL"
	StateUpload   State = "UPLOAD"
	StateSubmit   State = "SUBMIT"
	StateDone     State = "DONE"
	StateRetrying State = "RETRYING"
	StateFailed   State = "FAILED"
)

// Options tune the retry loop.
type Options struct {
	MaxRetries          int
	RetryDelay          time.Duration
	ConfidenceThreshold float64
	ScreenshotOnFailure bool
	ScreenshotDir       string
	// ProviderName labels AI usage in the audit trail.
	ProviderName string
}

// Report is the outcome of one Run.
type Report struct {
	AttemptID      string
	JobURL         string
	Domain         string
	Succeeded      bool
	FinalState     State
	Retries        int
	AIQueries      int
	ScreenshotPath string
	// ErrorHistory keeps every pass's classified failure, oldest first.
	ErrorHistory []*AttemptError
	Err          error
}

// Engine wires the capabilities together for one or more attempts.
type Engine struct {
	driver  browser.Driver
	client  ai.Client
	profile *profile.Profile
	store   *memory.Store
	audit   *database.DB
	mapper  *mapper.Mapper
	opts    Options

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates an Engine. audit may be nil. MaxRetries is taken as given so a
// zero-retry run stays expressible; config defaulting owns the fallback.
func New(driver browser.Driver, client ai.Client, p *profile.Profile, store *memory.Store, audit *database.DB, opts Options) *Engine {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ConfidenceThreshold == 0 {
		opts.ConfidenceThreshold = 0.5
	}
	return &Engine{
		driver:  driver,
		client:  client,
		profile: p,
		store:   store,
		audit:   audit,
		mapper:  mapper.New(p, client),
		opts:    opts,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Run executes one application attempt against jobURL, retrying recoverable
// failures up to MaxRetries times. Learning is flushed to disk exactly once,
// at the terminal state. A cancelled context aborts without store writes.
func (e *Engine) Run(ctx context.Context, jobURL string) (*Report, error) {
	report := &Report{
		AttemptID: uuid.New().String(),
		JobURL:    jobURL,
		Domain:    memory.DomainOf(jobURL),
	}
	started := e.now().UTC()
	logging.Info("Attempt %s starting: %s (domain %s)", report.AttemptID, jobURL, report.Domain)

	var lastErr *AttemptError
	for pass := 0; pass <= e.opts.MaxRetries; pass++ {
		if pass > 0 {
			report.Retries = pass
			logging.Info("Attempt %s retry %d/%d after %s error", report.AttemptID, pass, e.opts.MaxRetries, lastErr.Kind)
			if err := e.sleep(ctx, e.opts.RetryDelay); err != nil {
				report.FinalState = StateFailed
				report.Err = err
				return report, err
			}
		}

		aerr := e.runPass(ctx, jobURL, report, pass > 0)
		if aerr == nil {
			report.Succeeded = true
			report.FinalState = StateDone
			e.finishSuccess(report)
			e.recordAudit(report, started, "")
			return report, nil
		}
		if ctx.Err() != nil {
			// Cancellation is not a portal failure; leave the store alone.
			report.FinalState = StateFailed
			report.Err = ctx.Err()
			return report, ctx.Err()
		}
		lastErr = aerr
		report.ErrorHistory = append(report.ErrorHistory, aerr)
		logging.Warn("Attempt %s pass %d failed: %v", report.AttemptID, pass+1, aerr)
	}

	report.FinalState = StateFailed
	report.Err = lastErr
	e.captureFailureScreenshot(ctx, report)
	e.finishFailure(report, lastErr)
	e.recordAudit(report, started, lastErr.Error())
	return report, lastErr
}

// runPass is one full traversal of the state machine. Any returned error is
// classified; nil means the portal confirmed the submission.
func (e *Engine) runPass(ctx context.Context, jobURL string, report *Report, isRetry bool) *AttemptError {
	state := StateInit
	var steps []memory.Step
	accepted := make(map[string]memory.FieldMapping)

	// INIT
	if err := e.driver.Navigate(ctx, jobURL); err != nil {
		return attemptErr(ErrBrowserTimeout, state, "navigation failed: %v", err)
	}
	steps = append(steps, memory.Step{Action: "navigate", Detail: jobURL})

	page, aerr := e.inspect(ctx, state)
	if aerr != nil {
		return aerr
	}

	// AUTH
	if page.HasLoginWall {
		state = StateAuth
		if aerr := e.authenticate(ctx, page); aerr != nil {
			return aerr
		}
		steps = append(steps, memory.Step{Action: "authenticate"})
		if page, aerr = e.inspect(ctx, state); aerr != nil {
			return aerr
		}
		if page.HasLoginWall {
			return attemptErr(ErrAuth, state, "login wall persists after authentication")
		}
	}

	// ANALYZE
	state = StateAnalyze
	if page.Confirmation {
		logging.Info("Attempt %s: page already shows a confirmation", report.AttemptID)
		return nil
	}
	if len(page.Fields) == 0 {
		return attemptErr(ErrFieldDetection, state, "no form fields detected on %s", page.URL)
	}

	// MAP
	state = StateMap
	stored := e.store.FieldMappings(report.Domain)
	result, err := e.mapper.Resolve(ctx, page.Fields, stored, mapper.Options{
		Threshold:   e.opts.ConfidenceThreshold,
		WideContext: isRetry,
		PageText:    page.TextPreview,
	})
	if err != nil {
		var perr *ai.ProviderError
		if errors.As(err, &perr) {
			return attemptErr(ErrAIProvider, state, "field mapping: %v", err)
		}
		return attemptErr(ErrFieldDetection, state, "field mapping: %v", err)
	}
	report.AIQueries += result.AIQueries
	if result.AIQueries > 0 {
		e.audit.RecordAICall(report.AttemptID, e.opts.ProviderName, fmt.Sprintf("field_mapping:%d", result.AIQueries), true)
	}
	if len(result.RequiredUnmapped) > 0 {
		labels := make([]string, 0, len(result.RequiredUnmapped))
		for _, f := range result.RequiredUnmapped {
			labels = append(labels, f.Label)
		}
		return attemptErr(ErrMappingUnresolved, state, "required fields unmapped: %v", labels)
	}

	// FILL
	state = StateFill
	var uploads []mapper.Resolved
	for _, r := range result.Resolved {
		if r.Field.Kind == inspector.KindFile {
			uploads = append(uploads, r)
			continue
		}
		value := e.profile.Get(r.Mapping.Attribute)
		if value == "" {
			continue
		}
		if err := e.driver.Fill(ctx, r.Field.Selector, value); err != nil {
			return attemptErr(ErrBrowserTimeout, state, "fill %q: %v", r.Field.Label, err)
		}
		accepted[r.Mapping.LabelKey] = r.Mapping
		steps = append(steps, memory.Step{Action: "fill", Detail: r.Field.Label})
	}
	for _, box := range page.AgreementBoxes {
		if err := e.driver.Click(ctx, box.Selector); err != nil {
			logging.Warn("Agreement checkbox %q not clickable: %v", box.Label, err)
		}
	}

	// UPLOAD
	if len(uploads) > 0 {
		state = StateUpload
		for _, r := range uploads {
			path := e.profile.Get(r.Mapping.Attribute)
			if path == "" {
				continue
			}
			if err := e.driver.Upload(ctx, r.Field.Selector, path); err != nil {
				return attemptErr(ErrUpload, state, "upload %q: %v", r.Field.Label, err)
			}
			accepted[r.Mapping.LabelKey] = r.Mapping
			steps = append(steps, memory.Step{Action: "upload", Detail: r.Field.Label})
		}
	}

	// SUBMIT
	state = StateSubmit
	if len(page.SubmitCandidates) == 0 {
		return attemptErr(ErrSubmission, state, "no submit control detected")
	}
	submit := page.SubmitCandidates[0]
	if err := e.driver.Click(ctx, submit.Selector); err != nil {
		return attemptErr(ErrSubmission, state, "submit click on %q: %v", submit.Text, err)
	}
	steps = append(steps, memory.Step{Action: "submit", Detail: submit.Text})

	after, aerr := e.inspect(ctx, state)
	if aerr != nil {
		return aerr
	}
	if !after.Confirmation {
		if len(after.ErrorBanners) > 0 {
			return attemptErr(ErrSubmission, state, "portal rejected submission: %s", after.ErrorBanners[0])
		}
		return attemptErr(ErrSubmission, state, "no confirmation after submit (still on %s)", after.URL)
	}

	// DONE: stage the learned strategy; Run flushes it.
	e.store.RecordSuccess(report.Domain, memory.Strategy{
		Steps:         steps,
		FieldMappings: accepted,
	})
	return nil
}

func (e *Engine) inspect(ctx context.Context, state State) (*inspector.Page, *AttemptError) {
	html, err := e.driver.PageHTML(ctx)
	if err != nil {
		return nil, attemptErr(ErrBrowserTimeout, state, "read page: %v", err)
	}
	url, err := e.driver.CurrentURL(ctx)
	if err != nil {
		return nil, attemptErr(ErrBrowserTimeout, state, "read URL: %v", err)
	}
	page, err := inspector.Inspect(html, url)
	if err != nil {
		return nil, attemptErr(ErrFieldDetection, state, "inspect page: %v", err)
	}
	return page, nil
}

// authenticate fills the login wall's credential fields and submits. Mapping
// here is auth-scoped: only email and password are candidates and the AI is
// never consulted.
func (e *Engine) authenticate(ctx context.Context, page *inspector.Page) *AttemptError {
	if !e.profile.Has("password") {
		return attemptErr(ErrAuth, StateAuth, "portal requires sign-in but profile has no password")
	}

	result, err := e.mapper.Resolve(ctx, page.Fields, nil, mapper.Options{
		Threshold: e.opts.ConfidenceThreshold,
		AuthOnly:  true,
	})
	if err != nil {
		return attemptErr(ErrAuth, StateAuth, "credential mapping: %v", err)
	}
	if len(result.Resolved) == 0 {
		return attemptErr(ErrAuth, StateAuth, "no credential fields recognized on login wall")
	}

	for _, r := range result.Resolved {
		value := e.profile.Get(r.Mapping.Attribute)
		if err := e.driver.Fill(ctx, r.Field.Selector, value); err != nil {
			return attemptErr(ErrAuth, StateAuth, "fill credential %q: %v", r.Field.Label, err)
		}
	}

	if len(page.SubmitCandidates) == 0 {
		return attemptErr(ErrAuth, StateAuth, "no sign-in button detected")
	}
	if err := e.driver.Click(ctx, page.SubmitCandidates[0].Selector); err != nil {
		return attemptErr(ErrAuth, StateAuth, "sign-in click: %v", err)
	}
	return nil
}

func (e *Engine) finishSuccess(report *Report) {
	if err := e.store.Flush(); err != nil {
		logging.Warn("Failed to persist learning after success: %v", err)
	}
	logging.Info("Attempt %s succeeded after %d retr%s, %d AI quer%s",
		report.AttemptID, report.Retries, plural(report.Retries, "y", "ies"),
		report.AIQueries, plural(report.AIQueries, "y", "ies"))
}

func (e *Engine) finishFailure(report *Report, aerr *AttemptError) {
	e.store.RecordFailure(report.Domain, memory.FailureRecord{
		State:  string(aerr.State),
		Kind:   string(aerr.Kind),
		Error:  aerr.Err.Error(),
		JobURL: report.JobURL,
	})
	if err := e.store.Flush(); err != nil {
		logging.Warn("Failed to persist learning after failure: %v", err)
	}
	logging.Error("Attempt %s failed in state %s: %v", report.AttemptID, aerr.State, aerr.Err)
}

func (e *Engine) captureFailureScreenshot(ctx context.Context, report *Report) {
	if !e.opts.ScreenshotOnFailure || e.opts.ScreenshotDir == "" {
		return
	}
	shot, err := e.driver.Screenshot(ctx)
	if err != nil {
		logging.Warn("Failure screenshot unavailable: %v", err)
		return
	}
	if err := os.MkdirAll(e.opts.ScreenshotDir, 0755); err != nil {
		logging.Warn("Screenshot directory unavailable: %v", err)
		return
	}
	path := filepath.Join(e.opts.ScreenshotDir, report.AttemptID+".png")
	if err := os.WriteFile(path, shot, 0644); err != nil {
		logging.Warn("Failed to write screenshot: %v", err)
		return
	}
	report.ScreenshotPath = path
	logging.Info("Failure screenshot saved: %s", path)
}

func (e *Engine) recordAudit(report *Report, started time.Time, errText string) {
	outcome := "failure"
	if report.Succeeded {
		outcome = "success"
	}
	e.audit.RecordAttempt(database.AttemptRow{
		ID:             report.AttemptID,
		JobURL:         report.JobURL,
		Domain:         report.Domain,
		Outcome:        outcome,
		FinalState:     string(report.FinalState),
		Retries:        report.Retries,
		Error:          errText,
		ScreenshotPath: report.ScreenshotPath,
		StartedAt:      started,
		FinishedAt:     e.now().UTC(),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
