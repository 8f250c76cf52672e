// CLAUDE:SUMMARY Wraps a Rod page as a workflow surface: stealth open, click/type/navigate, element queries.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/pilote/workflow"
)

// Page wraps a Rod page as a drivable surface. It implements
// workflow.Surface.
type Page struct {
	page    *rod.Page
	manager *Manager
}

// OpenPage creates a new stealth tab, applies resource blocking, and
// navigates to the URL waiting for the load event.
func OpenPage(ctx context.Context, mgr *Manager, pageURL string) (*Page, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Page{page: page, manager: mgr}, nil
}

// Rod exposes the underlying page so diagnostic collectors can subscribe
// to its CDP events.
func (p *Page) Rod() *rod.Page { return p.page }

// Close closes the tab.
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

// URL reports the page's current location, empty when the target is gone.
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Click resolves the selector and clicks the element. A selector matching
// more than one element is an error, not a guess.
func (p *Page) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := p.find(ctx, selector, timeout)
	if err != nil {
		return err
	}

	els, err := p.page.Context(ctx).Elements(selector)
	if err == nil && len(els) > 1 {
		return fmt.Errorf("browser: selector %q matches %d elements", selector, len(els))
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

// Type focuses the element and inputs text.
func (p *Page) Type(ctx context.Context, selector, text string, timeout time.Duration) error {
	el, err := p.find(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: type into %q: %w", selector, err)
	}
	return nil
}

// Navigate loads the URL and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.page.Context(navCtx).WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	return nil
}

// WaitVisible blocks until the element is visible.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := p.find(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.Timeout(timeout).WaitVisible(); err != nil {
		return fmt.Errorf("browser: wait visible %q: %w", selector, err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// HTML serialises the current document as outer HTML.
func (p *Page) HTML(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Element waits for the selector's element to attach and returns its
// read-only view.
func (p *Page) Element(ctx context.Context, selector string, timeout time.Duration) (workflow.Element, error) {
	el, err := p.find(ctx, selector, timeout)
	if err != nil {
		return nil, err
	}
	return &element{el: el}, nil
}

// find resolves a selector, translating the attach-wait timeout into the
// sentinel the workflow package understands.
func (p *Page) find(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("browser: %q: %w", selector, workflow.ErrElementNotFound)
		}
		var notFound *rod.ElementNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("browser: %q: %w", selector, workflow.ErrElementNotFound)
		}
		return nil, fmt.Errorf("browser: find %q: %w", selector, err)
	}
	// Drop the attach-wait deadline so later queries get the caller's ctx.
	return el.Context(ctx), nil
}

// element adapts a Rod element to the read-only assertion view.
type element struct {
	el *rod.Element
}

func (e *element) Visible() (bool, error) { return e.el.Visible() }
func (e *element) Text() (string, error)  { return e.el.Text() }

func (e *element) Attribute(name string) (*string, error) {
	return e.el.Attribute(name)
}

func (e *element) Disabled() (bool, error) {
	res, err := e.el.Eval(`() => this.disabled === true`)
	if err != nil {
		return false, fmt.Errorf("browser: disabled state: %w", err)
	}
	return res.Value.Bool(), nil
}

func (e *element) Checked() (bool, error) {
	res, err := e.el.Eval(`() => this.checked === true`)
	if err != nil {
		return false, fmt.Errorf("browser: checked state: %w", err)
	}
	return res.Value.Bool(), nil
}

func (e *element) Value() (string, error) {
	res, err := e.el.Eval(`() => this.value === undefined ? "" : String(this.value)`)
	if err != nil {
		return "", fmt.Errorf("browser: value: %w", err)
	}
	return res.Value.Str(), nil
}
