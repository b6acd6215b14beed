package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/glasserstudy/glasser/internal/cache"
	"github.com/glasserstudy/glasser/internal/client"
	"github.com/glasserstudy/glasser/internal/config"
	"github.com/glasserstudy/glasser/internal/fetch"
	"github.com/glasserstudy/glasser/internal/i18n"
	"github.com/glasserstudy/glasser/internal/mutate"
	"github.com/glasserstudy/glasser/internal/notice"
	"github.com/glasserstudy/glasser/internal/service"
	"github.com/glasserstudy/glasser/internal/session"
)

// ErrReported is returned when the failure was already queued as a notice.
// main exits non-zero without printing it again.
var ErrReported = errors.New("reported")

// app is the wired sync layer for one command run.
type app struct {
	cfg   *config.Config
	dict  *i18n.Dictionary
	board *notice.Board
	gate  *session.Gate
	api   *client.Client
	svc   *service.Services
}

var (
	boardMu sync.Mutex
	board   *notice.Board
)

func setBoard(b *notice.Board) {
	boardMu.Lock()
	board = b
	boardMu.Unlock()
}

func currentBoard() *notice.Board {
	boardMu.Lock()
	defer boardMu.Unlock()
	return board
}

// newApp loads the config and wires session, transport, cache and
// services. Notices go to the package board printed by main.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s config found (create one or set %s)", config.FileName, config.EnvAPIURL)
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", config.FileName, err)
	}
	return wire(cfg)
}

func wire(cfg *config.Config) (*app, error) {
	dict, err := i18n.Load(cfg.Locale)
	if err != nil {
		return nil, err
	}
	b := notice.NewBoard(dict.T)
	setBoard(b)

	var store session.Store
	if cfg.Token != "" {
		store = session.NewMemoryStore(cfg.Token)
	} else {
		store = session.NewFileStore(cfg.SessionPath())
	}
	gate := session.New(store, b)

	api := client.New(cfg.APIURL, gate)
	fc := fetch.New(api, cache.NewStore())
	env := &service.Env{
		Fetch:             fc,
		Dispatch:          mutate.New(fc),
		Gate:              gate,
		Notices:           b,
		Uploader:          api,
		PollInterval:      cfg.PollInterval(),
		NotificationLimit: cfg.NotificationLimit,
	}
	if cfg.NotificationURL != "" && cfg.NotificationURL != cfg.APIURL {
		nfc := fetch.New(client.New(cfg.NotificationURL, gate), cache.NewStore())
		env.NotificationFetch = nfc
		env.NotificationDispatch = mutate.New(nfc)
	}
	switch cfg.PushTransport {
	case config.PushWS:
		env.Push = client.NewWS(cfg.NotificationWSURL, gate)
	case config.PushSSE:
		env.Push = client.NewSSE(cfg.NotificationURL, gate)
	}

	return &app{cfg: cfg, dict: dict, board: b, gate: gate, api: api, svc: service.New(env)}, nil
}

// requireSession fails with a signed-out notice when there is no token.
func (a *app) requireSession() error {
	if a.gate.SignedIn() {
		return nil
	}
	a.board.Notify(notice.Notice{Kind: notice.Error, Key: "session.signedOut"})
	return ErrReported
}

// result turns a service error into ErrReported when the service already
// queued an error notice for it.
func (a *app) result(err error) error {
	if err == nil {
		return nil
	}
	for _, n := range a.board.Pending() {
		if n.Kind == notice.Error {
			return ErrReported
		}
	}
	return err
}

type runFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// withApp wires the app and runs fn with a context bounded by apiTimeout.
func withApp(signedIn bool, fn runFunc) func(*cobra.Command, []string) error {
	return withTimeout(signedIn, apiTimeout, fn)
}

// live runs fn for a signed-in user until interrupted.
func live(fn runFunc) func(*cobra.Command, []string) error {
	return withTimeout(true, 0, fn)
}

func withTimeout(signedIn bool, timeout time.Duration, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if signedIn {
			if err := a.requireSession(); err != nil {
				return err
			}
		}
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return a.result(fn(ctx, a, cmd, args))
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
