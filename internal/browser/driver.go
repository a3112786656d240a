// Package browser wraps the live Chrome session behind a small Driver
// interface so the agent engine can run against a fake in tests.
package browser

import "context"

// Driver is the browser capability the agent engine drives. Every call takes
// a context; implementations apply their own per-operation timeouts on top.
type Driver interface {
	// Navigate loads a URL and waits for the document to become interactive.
	Navigate(ctx context.Context, url string) error

	// CurrentURL reports the page the browser is on right now.
	CurrentURL(ctx context.Context) (string, error)

	// PageHTML returns the full serialized DOM of the current page.
	PageHTML(ctx context.Context) (string, error)

	// Fill types value into the element at selector, clearing it first and
	// firing the input and change events frameworks listen for.
	Fill(ctx context.Context, selector, value string) error

	// Click activates the element at selector, falling back through
	// JavaScript strategies when a plain click does not land.
	Click(ctx context.Context, selector string) error

	// Upload attaches a local file to the file input at selector.
	Upload(ctx context.Context, selector, path string) error

	// Screenshot captures the full page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Close tears down the browser session.
	Close() error
}
