package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/sakif/field-survey/internal/client"
	"github.com/sakif/field-survey/internal/config"
	"github.com/sakif/field-survey/internal/guard"
	"github.com/sakif/field-survey/internal/notify"
	"github.com/sakif/field-survey/internal/platform"
	"github.com/sakif/field-survey/internal/record"
	sqliteRepo "github.com/sakif/field-survey/internal/repository/sqlite"
	"github.com/sakif/field-survey/internal/session"
	"github.com/sakif/field-survey/internal/upload"
)

// app is the client core wired together for one CLI invocation.
type app struct {
	out    io.Writer
	logger *slog.Logger

	db       *sqliteRepo.DB
	session  *session.Manager
	storage  *client.StorageClient
	records  *record.Repository
	pipeline *upload.Pipeline
	notes    *notify.Center
	nav      *navigator
	guard    *guard.Guard

	closers []func()
}

func newApp(ctx context.Context, cfg config.Client, out io.Writer, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.SessionDB), 0o700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.SessionDB)
	if err != nil {
		return nil, err
	}

	a := &app{out: out, logger: logger, db: db}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	authClient := client.NewAuthClient(cfg.APIURL, httpClient, db, logger)
	a.session = session.NewManager(authClient, logger, session.WithRefreshInterval(cfg.RefreshInterval))
	a.session.Start()
	a.session.Initialize(ctx)

	forms := client.NewFormsClient(cfg.APIURL, a.session, cfg.HTTPTimeout)
	a.storage = client.NewStorageClient(cfg.APIURL, cfg.Bucket, a.session, cfg.HTTPTimeout)
	a.records = record.NewRepository(forms, a.storage, logger)
	a.pipeline = upload.NewPipeline(a.storage, platform.LocalFileReader{}, logger)

	a.notes = notify.NewCenter(logger)
	a.closers = append(a.closers, a.notes.Subscribe(newPrinter(out).print))

	a.nav = &navigator{at: guard.Default, logger: logger}
	a.guard = guard.New(a.session, a.nav, logger)
	a.closers = append(a.closers, a.guard.Start())
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.notes.Close()
	a.session.Close()
	a.db.Close()
}

// guardError reports that the guard refused a screen. The message has
// already been shown.
type guardError struct {
	at     guard.Location
	target guard.Location
}

func (e *guardError) Error() string {
	return fmt.Sprintf("%s is not available, redirected to %s", e.at, e.target)
}

// open moves to a screen and asks the guard whether it may render.
func (a *app) open(at guard.Location) error {
	a.nav.jump(at)
	d := a.guard.Check()
	if d.Action == guard.Stay {
		return nil
	}

	switch d.Target {
	case guard.Login:
		a.notes.Notify(notify.Info, "Not signed in. Run: surveyctl login")
	default:
		who := ""
		if u := a.session.CurrentUser(); u != nil {
			who = " as " + u.Identity().DisplayName
		}
		a.notes.Notify(notify.Info, "Already signed in"+who)
	}
	return &guardError{at: at, target: d.Target}
}

// navigator is a one-screen stack: the CLI only needs to know where it is.
type navigator struct {
	mu     sync.Mutex
	at     guard.Location
	logger *slog.Logger
}

func (n *navigator) Location() guard.Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.at
}

func (n *navigator) Navigate(to guard.Location) {
	n.mu.Lock()
	from := n.at
	n.at = to
	n.mu.Unlock()
	n.logger.Debug("navigate", slog.String("from", string(from)), slog.String("to", string(to)))
}

// jump sets the location the user asked for, without a redirect.
func (n *navigator) jump(to guard.Location) {
	n.mu.Lock()
	n.at = to
	n.mu.Unlock()
}

// printer writes each notification once, as it appears.
type printer struct {
	out  io.Writer
	mu   sync.Mutex
	seen map[string]bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: make(map[string]bool)}
}

func (p *printer) print(active []notify.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range active {
		if p.seen[n.ID] {
			continue
		}
		p.seen[n.ID] = true
		fmt.Fprintf(p.out, "[%s] %s\n", n.Kind, n.Message)
	}
}
