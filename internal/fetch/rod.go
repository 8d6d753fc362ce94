package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AlfredBerg/scrapecrawl/internal/js"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// RodTransport renders documents in a headless browser so content built by
// client side scripts is visible to selectors. Browsers come from a pool that
// is shared by every request of the process.
type RodTransport struct {
	pool   rod.BrowserPool
	launch func() (*rod.Browser, error)
	stable time.Duration
	logger *zap.Logger
}

func NewRodTransport(concurrency int, stable time.Duration, logger *zap.Logger) *RodTransport {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &RodTransport{
		pool:   rod.NewBrowserPool(concurrency),
		stable: stable,
		logger: logger,
	}
	t.launch = t.createBrowser
	return t
}

func (t *RodTransport) createBrowser() (*rod.Browser, error) {
	l := launcher.New().Headless(true)
	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	go l.Cleanup()

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	if err := browser.IgnoreCertErrors(true); err != nil {
		_ = browser.Close()
		return nil, err
	}

	//Don't download files in the browser, e.g. pdf files
	_ = proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorDeny,
		BrowserContextID: browser.BrowserContextID,
	}.Call(browser)

	//Avoid alerts and popups blocking the render
	go browser.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		_ = proto.PageHandleJavaScriptDialog{Accept: false, PromptText: ""}.Call(browser)
	},
		func(e *proto.PageWindowOpen) {
			t.logger.Debug("new window opened, closing it", zap.String("url", e.URL))
			time.Sleep(time.Millisecond * 500)
			pages, err := browser.Pages()
			if err != nil {
				t.logger.Warn("failed getting pages in tab closer", zap.Error(err))
				return
			}
			for _, page := range pages {
				info, err := page.Info()
				if err != nil {
					t.logger.Warn("failed getting page info in tab closer", zap.Error(err))
					return
				}
				if info.URL == e.URL {
					if err := page.Close(); err != nil {
						t.logger.Warn("failed closing page in tab closer", zap.Error(err))
						return
					}
				}
			}
		},
	)()

	return browser, nil
}

// acquire takes a browser from the pool, starting one when the slot is empty.
// The slot is always taken, so the caller must Put the result back even when
// err is set. A nil browser put back frees the slot for a new launch.
func (t *RodTransport) acquire() (browser *rod.Browser, err error) {
	browser = t.pool.Get(func() *rod.Browser {
		var b *rod.Browser
		var pc panics.Catcher
		pc.Try(func() { b, err = t.launch() })
		if r := pc.Recovered(); r != nil {
			err = r.AsError()
		}
		return b
	})
	return browser, err
}

func (t *RodTransport) Send(ctx context.Context, spec RequestSpec) (*Response, error) {
	browser, err := t.acquire()
	defer t.pool.Put(browser)
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if len(spec.Headers) > 0 {
		dict := make([]string, 0, len(spec.Headers)*2)
		for k, v := range spec.Headers {
			dict = append(dict, k, v)
		}
		cleanup, err := page.SetExtraHeaders(dict)
		if err != nil {
			return nil, err
		}
		defer cleanup()
	}

	if err := page.Navigate(spec.URL); err != nil {
		return nil, err
	}

	if t.stable > 0 {
		err = page.Timeout(time.Second * 5).WaitStable(t.stable)
		if err != nil {
			t.logger.Debug("wait stable errored out", zap.String("url", spec.URL), zap.Error(err))
		}
	} else if err := page.WaitLoad(); err != nil {
		return nil, err
	}

	statusRes, err := page.Eval(js.NAVIGATION_STATUS)
	if err != nil {
		return nil, err
	}
	status := navigationStatus(statusRes.Value.Int())

	htmlRes, err := page.Eval(js.DOCUMENT_HTML)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       []byte(htmlRes.Value.Str()),
	}, nil
}

// navigationStatus maps the status reported by the page to the one the fetch
// loop gates on. Navigate already failed for network errors, so a loaded
// document with no reported status is treated as served.
func navigationStatus(reported int) int {
	if reported <= 0 {
		return http.StatusOK
	}
	return reported
}

// Close shuts down every browser that was started by the pool.
func (t *RodTransport) Close() {
	t.pool.Cleanup(func(browser *rod.Browser) {
		if browser == nil {
			return
		}
		if err := browser.Close(); err != nil {
			t.logger.Warn("failed closing browser", zap.Error(err))
		}
	})
}
