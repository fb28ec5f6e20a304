package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// DefaultTimeoutSec bounds a render when the caller does not.
const DefaultTimeoutSec = 30

// A4 in inches, as expected by Page.printToPDF.
const (
	a4Width  = 8.27
	a4Height = 11.69
)

// ErrDisabled is returned by a Renderer that has PDF output turned off.
var ErrDisabled = errors.New("capture: pdf rendering disabled")

// PDFOptions defines parameters for a Chromium-based PDF print.
type PDFOptions struct {
	// Timeout bounds the entire render, browser start included. If zero,
	// DefaultTimeoutSec is used.
	Timeout time.Duration

	// Landscape switches the page orientation.
	Landscape bool
}

// Renderer turns an HTML document into PDF bytes.
type Renderer interface {
	RenderPDF(ctx context.Context, html []byte) ([]byte, error)
}

// Chromium renders with a headless Chromium started through chromedp for
// every call.
type Chromium struct {
	opts     PDFOptions
	allocOpt []chromedp.ExecAllocatorOption
}

// NewChromium returns a Chromium renderer. allocOpts are appended to
// chromedp's default headless flags, e.g. chromedp.ExecPath.
func NewChromium(opts PDFOptions, allocOpts ...chromedp.ExecAllocatorOption) *Chromium {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return &Chromium{opts: opts, allocOpt: allocOpts}
}

// RenderPDF loads html into a blank page and prints it with background
// graphics on A4.
func (c *Chromium) RenderPDF(parentCtx context.Context, html []byte) ([]byte, error) {
	if len(html) == 0 {
		return nil, fmt.Errorf("capture: empty document")
	}

	allocOpts := append(append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...), c.allocOpt...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// Apply timeout to the entire render sequence.
	ctx, timeoutCancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer timeoutCancel()

	var pdf []byte
	tasks := chromedp.Tasks{
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(c.opts.Landscape).
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return pdf, nil
}

// Disabled is a Renderer that always fails with ErrDisabled.
type Disabled struct{}

func (Disabled) RenderPDF(context.Context, []byte) ([]byte, error) {
	return nil, ErrDisabled
}
