package browser

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/akashpal/jobwright/internal/config"
	"github.com/akashpal/jobwright/internal/logging"
)

// Typing is paced per keystroke inside this window so portals with bot
// detection see human-looking input timing.
const (
	minKeyDelay = 30 * time.Millisecond
	maxKeyDelay = 120 * time.Millisecond
)

// Session is the chromedp-backed Driver. One Session owns one Chrome
// instance for the lifetime of an application attempt.
type Session struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	implicitWait    time.Duration
	pageLoadTimeout time.Duration
}

// findChrome locates a Chrome-compatible executable in the usual places.
func findChrome() (string, error) {
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "linux":
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, path := range paths {
		if runtime.GOOS == "darwin" {
			if _, err := os.Stat(path); err == nil {
				logging.Debug("Found Chrome at: %s", path)
				return path, nil
			}
		} else {
			if _, err := exec.LookPath(path); err == nil {
				logging.Debug("Found Chrome at: %s", path)
				return path, nil
			}
		}
	}
	if path, err := exec.LookPath("chrome"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("Chrome browser not found. Please install Chrome or Chromium")
}

// NewSession starts Chrome per the browser configuration.
func NewSession(cfg config.BrowserConfig) (*Session, error) {
	chromePath, err := findChrome()
	if err != nil {
		return nil, err
	}
	logging.Info("Using Chrome from: %s", chromePath)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if !cfg.Headless {
		logging.Info("Chrome will run in visible mode (headless=false)")
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, v ...interface{}) {
			logging.Debug("[Chrome] "+format, v...)
		}),
	)

	// Start Chrome with the long-lived context; a timeout here would cancel
	// the whole instance.
	if err := chromedp.Run(ctx); err != nil {
		allocCancel()
		cancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	if cfg.UserAgent != "" {
		if err := chromedp.Run(ctx, emulation.SetUserAgentOverride(cfg.UserAgent)); err != nil {
			logging.Warn("Failed to set user agent override: %v", err)
		}
	}

	return &Session{
		allocCtx:        allocCtx,
		allocCancel:     allocCancel,
		ctx:             ctx,
		cancel:          cancel,
		implicitWait:    cfg.ImplicitWait,
		pageLoadTimeout: cfg.PageLoadTimeout,
	}, nil
}

// opCtx derives a per-operation timeout context from both the browser
// lifetime and the caller's context.
func (s *Session) opCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	merged, cancel1 := mergeContexts(s.ctx, ctx)
	timed, cancel2 := context.WithTimeout(merged, timeout)
	return timed, func() {
		cancel2()
		cancel1()
	}
}

// Navigate loads the URL, then polls document.readyState until the page is
// interactive.
func (s *Session) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := s.opCtx(ctx, s.pageLoadTimeout)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Navigate(url)); err != nil {
		if s.ctx.Err() != nil {
			return fmt.Errorf("Chrome context was cancelled")
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return s.waitForPageLoad(opCtx)
}

func (s *Session) waitForPageLoad(ctx context.Context) error {
	script := `document.readyState === 'complete' || document.readyState === 'interactive'`
	for {
		var ready bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, &ready)); err != nil {
			return fmt.Errorf("failed to check page readiness: %w", err)
		}
		if ready {
			// Small settle delay so late-rendering controls are present.
			time.Sleep(300 * time.Millisecond)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for page to load")
		default:
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// CurrentURL reports the browser's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	opCtx, cancel := s.opCtx(ctx, 5*time.Second)
	defer cancel()

	var url string
	if err := chromedp.Run(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to get current URL: %w", err)
	}
	return url, nil
}

// PageHTML returns the serialized DOM.
func (s *Session) PageHTML(ctx context.Context) (string, error) {
	opCtx, cancel := s.opCtx(ctx, 10*time.Second)
	defer cancel()

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML(`html`, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// Fill clears the element, types the value one keystroke at a time with
// randomized pacing, then dispatches input and change so React-style forms
// pick up the new value.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	opCtx, cancel := s.opCtx(ctx, s.implicitWait+30*time.Second)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
	}
	for _, r := range value {
		actions = append(actions,
			chromedp.SendKeys(selector, string(r), chromedp.ByQuery),
			chromedp.Sleep(keyDelay()),
		)
	}
	actions = append(actions, chromedp.Evaluate(fmt.Sprintf(`
		const element = document.querySelector(%q);
		if (element) {
			element.dispatchEvent(new Event('input', { bubbles: true }));
			element.dispatchEvent(new Event('change', { bubbles: true }));
		}
	`, selector), nil))

	if err := chromedp.Run(opCtx, actions...); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

func keyDelay() time.Duration {
	return minKeyDelay + time.Duration(rand.Int63n(int64(maxKeyDelay-minKeyDelay)))
}

// Click tries a standard click first, then a JavaScript click, then a
// dispatched MouseEvent, then focus plus Enter. The first strategy that runs
// without error wins; selector absence fails all of them.
func (s *Session) Click(ctx context.Context, selector string) error {
	opCtx, cancel := s.opCtx(ctx, s.implicitWait)
	defer cancel()

	logging.Debug("Click: trying standard click on selector: %s", selector)
	if err := chromedp.Run(opCtx, chromedp.Click(selector, chromedp.ByQuery)); err == nil {
		return nil
	}

	logging.Debug("Click: trying JavaScript click on selector: %s", selector)
	var jsResult bool
	jsScript := fmt.Sprintf(`
		(() => {
			const element = document.querySelector(%q);
			if (element) { element.click(); return true; }
			return false;
		})()
	`, selector)
	if err := chromedp.Run(opCtx, chromedp.Evaluate(jsScript, &jsResult)); err == nil && jsResult {
		return nil
	}

	logging.Debug("Click: trying event dispatch on selector: %s", selector)
	eventScript := fmt.Sprintf(`
		(() => {
			const element = document.querySelector(%q);
			if (element) {
				element.dispatchEvent(new MouseEvent('click', {
					view: window,
					bubbles: true,
					cancelable: true
				}));
				return true;
			}
			return false;
		})()
	`, selector)
	if err := chromedp.Run(opCtx, chromedp.Evaluate(eventScript, &jsResult)); err == nil && jsResult {
		return nil
	}

	logging.Debug("Click: trying focus+enter on selector: %s", selector)
	err := chromedp.Run(opCtx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.KeyEvent("\r"),
	)
	if err == nil {
		return nil
	}

	return fmt.Errorf("all click strategies failed for %s: %w", selector, err)
}

// Upload attaches a local file to a file input without opening the native
// file picker.
func (s *Session) Upload(ctx context.Context, selector, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("upload file not accessible: %w", err)
	}

	opCtx, cancel := s.opCtx(ctx, s.implicitWait)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", path, selector, err)
	}
	return nil
}

// Screenshot captures the full page.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := s.opCtx(ctx, 10*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(opCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts down Chrome and releases the allocator.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

// mergeContexts returns a context that is cancelled when either parent is.
// chromedp actions must run on the browser context, but the caller's context
// carries the attempt deadline.
func mergeContexts(browser, caller context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(browser)
	if caller == nil || caller == context.Background() {
		return merged, cancel
	}
	go func() {
		select {
		case <-caller.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}
