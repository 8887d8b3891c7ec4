// internal/fetch/browser.go
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/valeran/chartex/internal/pagemodel"
	"github.com/valeran/chartex/internal/template"
)

// BrowserFetcher renders pages in headless Chrome before capturing the
// page model. It honors the template's navigation hints: an optional
// wait-for selector and scroll discovery for lazily loaded lists.
type BrowserFetcher struct {
	headless  bool
	timeout   time.Duration
	userAgent string
}

// scrollRounds bounds scroll discovery; infinite feeds must not pin the
// fetcher forever.
const scrollRounds = 8

// NewBrowserFetcher creates a browser fetcher. A zero timeout falls back
// to 60 seconds.
func NewBrowserFetcher(headless bool, timeout time.Duration, userAgent string) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if userAgent == "" {
		userAgent = "chartex/1.0"
	}
	return &BrowserFetcher{headless: headless, timeout: timeout, userAgent: userAgent}
}

// Fetch renders the URL and parses the settled DOM into a page model.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string, nav template.NavigationSpec) (*pagemodel.Page, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(f.userAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, f.timeout)
	defer cancelRun()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
	}
	if nav.WaitFor != "" {
		actions = append(actions, chromedp.WaitVisible(nav.WaitFor, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	if nav.ScrollDiscovery {
		actions = append(actions, scrollToBottom())
	}

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("browser fetch of %s failed: %w", url, err)
	}

	return pagemodel.FromHTML(url, html)
}

// scrollToBottom scrolls in rounds until the document height stops
// growing or the round budget runs out.
func scrollToBottom() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var lastHeight int64
		for i := 0; i < scrollRounds; i++ {
			var height int64
			if err := chromedp.Evaluate(`document.body.scrollHeight`, &height).Do(ctx); err != nil {
				return err
			}
			if height == lastHeight && i > 0 {
				return nil
			}
			lastHeight = height
			if err := chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil).Do(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
		return nil
	})
}
