// Package locator implements the ordered fallback-selector chains used
// to survive portal markup drift: a prioritized list of candidate
// selectors is tried in sequence and the first one present in the DOM
// wins. Which candidate matched is logged, so when a portal redesign
// breaks scraping the drift is visible in the logs instead of buried in
// scattered try/catch loops.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

var ErrNoMatch = errors.New("no candidate selector matched")

type Chain struct {
	// what the chain is looking for, e.g. "username field"
	Name       string
	Candidates []string
}

// Match walks the chain against the live page and returns the first
// candidate with at least one DOM node. ok is false when the chain is
// exhausted, which is an expected state, not an error.
func (c Chain) Match(ctx context.Context) (string, bool, error) {
	for _, candidate := range c.Candidates {
		var nodes []*cdp.Node
		err := chromedp.Run(ctx,
			chromedp.Nodes(candidate, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
		)
		if err != nil {
			return "", false, err
		}
		if len(nodes) > 0 {
			slog.DebugContext(ctx, "locator matched", "chain", c.Name, "candidate", candidate)
			return candidate, true, nil
		}
	}
	slog.DebugContext(ctx, "locator exhausted", "chain", c.Name, "candidates", len(c.Candidates))
	return "", false, nil
}

// Fill sets the value of the first matching candidate.
func (c Chain) Fill(ctx context.Context, value string) error {
	sel, ok, err := c.Match(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", c.Name, ErrNoMatch)
	}
	return chromedp.Run(ctx, chromedp.SetValue(sel, value, chromedp.ByQuery))
}

// Click clicks the first matching candidate.
func (c Chain) Click(ctx context.Context) error {
	sel, ok, err := c.Match(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", c.Name, ErrNoMatch)
	}
	return chromedp.Run(ctx, chromedp.Click(sel, chromedp.ByQuery))
}

// Text returns the text content of the first matching candidate.
func (c Chain) Text(ctx context.Context) (string, error) {
	sel, ok, err := c.Match(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%s: %w", c.Name, ErrNoMatch)
	}
	var text string
	err = chromedp.Run(ctx, chromedp.Text(sel, &text, chromedp.ByQuery))
	return text, err
}

// WaitAny waits for any candidate to become visible, giving each one
// `each` before moving on. Returns the candidate that appeared.
func (c Chain) WaitAny(ctx context.Context, each time.Duration) (string, bool, error) {
	for _, candidate := range c.Candidates {
		wctx, cancel := context.WithTimeout(ctx, each)
		err := chromedp.Run(wctx, chromedp.WaitVisible(candidate, chromedp.ByQuery))
		cancel()
		if err == nil {
			slog.DebugContext(ctx, "locator appeared", "chain", c.Name, "candidate", candidate)
			return candidate, true, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
	}
	return "", false, nil
}

// MatchDoc walks the chain against a parsed document, for connectors
// that scrape over plain HTTP instead of a driven browser.
func (c Chain) MatchDoc(doc *goquery.Document) (*goquery.Selection, string, bool) {
	for _, candidate := range c.Candidates {
		sel := doc.Find(candidate)
		if sel.Length() > 0 {
			slog.Debug("locator matched", "chain", c.Name, "candidate", candidate)
			return sel, candidate, true
		}
	}
	slog.Debug("locator exhausted", "chain", c.Name, "candidates", len(c.Candidates))
	return nil, "", false
}

// MatchSelection is MatchDoc scoped to a subtree.
func (c Chain) MatchSelection(root *goquery.Selection) (*goquery.Selection, string, bool) {
	for _, candidate := range c.Candidates {
		sel := root.Find(candidate)
		if sel.Length() > 0 {
			slog.Debug("locator matched", "chain", c.Name, "candidate", candidate)
			return sel, candidate, true
		}
	}
	return nil, "", false
}
