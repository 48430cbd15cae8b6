// File: internal/engine/novaact/page.go
package novaact

import (
	"context"
	"fmt"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/novaact-mcp/internal/engine"
)

const pageOpTimeout = 30 * time.Second

// pageHandle implements engine.Page against the session's browser context.
type pageHandle struct {
	sessionCtx context.Context
}

var _ engine.Page = (*pageHandle)(nil)

// run executes chromedp actions on the session target, bounded by both the
// caller's context and a per-operation timeout.
func (p *pageHandle) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(p.sessionCtx, ctx)
	defer cancel()
	opCtx, timeoutCancel := context.WithTimeout(opCtx, pageOpTimeout)
	defer timeoutCancel()
	return chromedp.Run(opCtx, actions...)
}

func (p *pageHandle) URL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read page url: %w", err)
	}
	return url, nil
}

func (p *pageHandle) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

// Screenshot captures the current viewport as JPEG at the given quality.
func (p *pageHandle) Screenshot(ctx context.Context, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = 70
	}
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *pageHandle) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %q failed: %w", url, err)
	}
	return nil
}

func (p *pageHandle) Reload(ctx context.Context) error {
	if err := p.run(ctx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("page reload failed: %w", err)
	}
	return nil
}

func (p *pageHandle) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

func (p *pageHandle) Fill(ctx context.Context, selector, value string) error {
	if err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill on %q failed: %w", selector, err)
	}
	return nil
}
