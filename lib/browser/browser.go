package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"
)

type Config struct {
	// path to the chrome/chromium binary, empty means whatever
	// chromedp finds on $PATH
	ExecPath  string `json:"exec_path"`
	Headless  bool   `json:"headless"`
	NoSandbox bool   `json:"no_sandbox"`
	UserAgent string `json:"user_agent"`
	// directory portal downloads (admit cards, receipts, results)
	// get written to
	DownloadDir string `json:"download_dir"`
}

// Browser is the process-wide handle to the headless browser. It owns a
// chromedp exec allocator; every Session derives from it and gets its
// own browser context, so cookies and storage never leak between two
// concurrent syncs.
type Browser struct {
	cfg Config

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	started     bool
}

func New(cfg Config) *Browser {
	return &Browser{cfg: cfg}
}

func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureLocked(ctx)
}

func (b *Browser) ensureLocked(ctx context.Context) error {
	if b.started {
		return nil
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", b.cfg.Headless))
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.started = true
	slog.Info("browser allocator started", "headless", b.cfg.Headless)
	return nil
}

func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.allocCancel()
	b.started = false
	slog.Info("browser allocator stopped")
}

func (b *Browser) DownloadDir() string {
	return b.cfg.DownloadDir
}

// Session is one isolated browser context plus a page. Ctx is a chromedp
// context, any context derived from it can be passed to chromedp.Run.
type Session struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// NewSession opens an isolated session. The caller must Close it on
// every exit path. Cancelling the passed ctx tears the session down too.
func (b *Browser) NewSession(ctx context.Context) (*Session, error) {
	b.mu.Lock()
	err := b.ensureLocked(ctx)
	alloc := b.allocCtx
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sctx, cancel := chromedp.NewContext(alloc)

	// eagerly spin up the browser context so a broken chrome install
	// surfaces here instead of mid-login
	err = chromedp.Run(sctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open browser session: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sctx.Done():
		}
	}()

	return &Session{Ctx: sctx, cancel: cancel}, nil
}

func (s *Session) Close() {
	s.cancel()
}

// WithRequest derives a context from the session that carries the
// request context's deadline and cancellation, while staying a valid
// chromedp context.
func (s *Session) WithRequest(req context.Context) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if deadline, ok := req.Deadline(); ok {
		ctx, cancel = context.WithDeadline(s.Ctx, deadline)
	} else {
		ctx, cancel = context.WithCancel(s.Ctx)
	}
	stop := context.AfterFunc(req, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
