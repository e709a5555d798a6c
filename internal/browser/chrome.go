// Package browser drives a Chrome instance over the DevTools protocol for
// the Kite web login.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/nsvirk/ocbridge/pkg/utils/zaplogger"
)

// Chrome is a single tab with network events enabled. Response headers
// seen on the tab are kept until Close.
type Chrome struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	headers []map[string]string
}

// NewChrome launches Chrome. The browser lives until Close or until
// parent is done.
func NewChrome(parent context.Context, headless bool) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 900),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)

	c := &Chrome{
		ctx: ctx,
		cancel: func() {
			ctxCancel()
			allocCancel()
		},
	}
	chromedp.ListenTarget(ctx, c.onEvent)

	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		c.cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	zaplogger.Debug("chrome started", zaplogger.Fields{"headless": headless})
	return c, nil
}

func (c *Chrome) onEvent(ev any) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Response != nil {
			c.record(e.Response.Headers)
		}
	case *network.EventResponseReceivedExtraInfo:
		c.record(e.Headers)
	}
}

func (c *Chrome) record(h network.Headers) {
	if len(h) == 0 {
		return
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	c.mu.Lock()
	c.headers = append(c.headers, out)
	c.mu.Unlock()
}

// run executes actions on the tab, bounded by ctx as well as the tab's own life
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) URL(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Cookies returns the cookies of the current page by name
func (c *Chrome) Cookies(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			out[ck.Name] = ck.Value
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return out, nil
}

// StorageItem reads a localStorage key; a missing key is ""
func (c *Chrome) StorageItem(ctx context.Context, key string) (string, error) {
	var value string
	script := fmt.Sprintf("localStorage.getItem(%s) || ''", strconv.Quote(key))
	if err := c.run(ctx, chromedp.Evaluate(script, &value)); err != nil {
		return "", fmt.Errorf("read localStorage %s: %w", key, err)
	}
	return value, nil
}

// ResponseHeaders returns a copy of every captured header set, oldest first
func (c *Chrome) ResponseHeaders() []map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]string, len(c.headers))
	copy(out, c.headers)
	return out
}

func (c *Chrome) Close() error {
	c.cancel()
	return nil
}
