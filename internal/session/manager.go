// Package session owns the client's authentication state.
//
// The Manager is constructed once by the application and passed to whatever
// needs it. It holds at most one session. Every write (initialization, auth
// events, the refresh timer, sign-in, sign-out) is funnelled through a single
// update loop, and readers load an immutable State snapshot through an
// atomic pointer, so nobody can observe a half-applied change.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/auth"
	"github.com/sakif/field-survey/internal/model"
)

// DefaultRefreshInterval is how often Start proactively refreshes the token.
const DefaultRefreshInterval = 10 * time.Minute

// State is an immutable snapshot of the manager.
//
// Initialized, not Session, tells the UI whether it may render: it flips to
// true exactly once, after the first restore attempt, whatever its outcome.
type State struct {
	Session     *model.Session
	Initialized bool
}

// User projects the session's user. Nil without a session.
func (s State) User() *model.User {
	if s.Session == nil {
		return nil
	}
	u := s.Session.User
	return &u
}

type update struct {
	apply func(State) State
	done  chan struct{}
}

type observer struct {
	id int
	fn func(State)
}

type Manager struct {
	provider AuthProvider
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	state   atomic.Pointer[State]
	// epoch changes whenever the session is installed or cleared rather than
	// refreshed. Only the update loop writes it.
	epoch   atomic.Uint64
	updates chan update
	stop    chan struct{}
	wg      sync.WaitGroup

	obsMu     sync.Mutex
	observers []observer
	nextObs   int

	initOnce    sync.Once
	startOnce   sync.Once
	closeOnce   sync.Once
	unsubscribe func()
}

type Option func(*Manager)

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// NewManager returns a manager with no session and starts its update loop.
// Call Close when done.
func NewManager(provider AuthProvider, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		logger:   logger,
		interval: DefaultRefreshInterval,
		now:      time.Now,
		updates:  make(chan update),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(&State{})

	m.wg.Add(1)
	go m.loop()
	return m
}

// loop is the only writer of m.state. Observers run on this goroutine in
// subscription order and must not call back into the manager's write methods.
func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case u := <-m.updates:
			prev := *m.state.Load()
			next := u.apply(prev)
			if next != prev {
				m.state.Store(&next)
				m.publish(next)
			}
			close(u.done)
		case <-m.stop:
			return
		}
	}
}

// apply queues fn and waits until it has been applied. After Close it is a no-op.
func (m *Manager) apply(fn func(State) State) {
	u := update{apply: fn, done: make(chan struct{})}
	select {
	case m.updates <- u:
		<-u.done
	case <-m.stop:
	}
}

// setSession installs s, or clears the session when s is nil, and starts a
// new epoch so refreshes already in flight are discarded.
func (m *Manager) setSession(s *model.Session) {
	m.apply(func(st State) State {
		m.epoch.Add(1)
		st.Session = s
		return st
	})
}

// replaceSession swaps in a refreshed session unless the epoch moved on or
// the session was cleared since the refresh started.
func (m *Manager) replaceSession(epoch uint64, s *model.Session) bool {
	var replaced bool
	m.apply(func(st State) State {
		if m.epoch.Load() != epoch || st.Session == nil {
			return st
		}
		st.Session = s
		replaced = true
		return st
	})
	return replaced
}

// refreshedFromEvent applies a TokenRefreshed event only while the same user
// is still signed in.
func (m *Manager) refreshedFromEvent(s *model.Session) {
	m.apply(func(st State) State {
		if st.Session == nil || st.Session.User.ID != s.User.ID {
			return st
		}
		st.Session = s
		return st
	})
}

// Initialize restores a persisted session. Any error leaves the manager
// without a session. Either way the manager is marked initialized, once;
// later calls do nothing.
func (m *Manager) Initialize(ctx context.Context) {
	m.initOnce.Do(func() {
		s, err := m.provider.GetSession(ctx)
		if err != nil {
			m.logger.Warn("restoring session failed", slog.String("error", err.Error()))
			s = nil
		}
		m.apply(func(st State) State {
			m.epoch.Add(1)
			st.Session = s
			st.Initialized = true
			return st
		})
		m.logger.Debug("session manager initialized", slog.Bool("signed_in", s != nil))
	})
}

// Start subscribes to the provider's auth events and launches the refresh
// timer. Both live until Close.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.unsubscribe = m.provider.Subscribe(m.handleEvent)

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			ticker := time.NewTicker(m.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					ctx, cancel := context.WithTimeout(context.Background(), m.interval)
					_ = m.Refresh(ctx)
					cancel()
				case <-m.stop:
					return
				}
			}
		}()
	})
}

func (m *Manager) handleEvent(ev Event) {
	m.logger.Debug("auth event", slog.String("event", ev.Kind.String()))
	switch ev.Kind {
	case SignedIn:
		if ev.Session != nil {
			m.setSession(ev.Session)
		}
	case TokenRefreshed:
		if ev.Session != nil {
			m.refreshedFromEvent(ev.Session)
		}
	case SignedOut:
		m.setSession(nil)
	}
}

// Refresh asks the provider for a new token. Without a session there is
// nothing to refresh and it returns nil. On failure the current session is
// kept and the error returned; the next tick tries again. A refresh that
// completes after a sign-out or a new sign-in is dropped.
func (m *Manager) Refresh(ctx context.Context) error {
	epoch := m.epoch.Load()
	if m.State().Session == nil {
		return nil
	}
	s, err := m.provider.RefreshSession(ctx)
	if err != nil {
		m.logger.Warn("token refresh failed", slog.String("error", err.Error()))
		return err
	}
	if !m.replaceSession(epoch, s) {
		m.logger.Debug("discarding refresh that finished after the session changed")
	}
	return nil
}

// Foreground is called when the app returns to the foreground.
func (m *Manager) Foreground(ctx context.Context) error {
	return m.Refresh(ctx)
}

// SignIn checks the credentials locally, then signs in with the provider.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if err := auth.ValidateCredentials(email, password); err != nil {
		return err
	}
	s, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	m.setSession(s)
	return nil
}

// SignOut clears local state, then asks the provider to invalidate the
// session. A nil return means the backend call succeeded too.
func (m *Manager) SignOut(ctx context.Context) error {
	m.setSession(nil)
	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("sign-out failed on the backend, cleared locally", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// State returns the current snapshot.
func (m *Manager) State() State {
	return *m.state.Load()
}

// CurrentUser is nil when signed out.
func (m *Manager) CurrentUser() *model.User {
	return m.State().User()
}

// Token implements oauth2.TokenSource so HTTP clients can authenticate with
// the current session. An expired access token is refreshed first.
func (m *Manager) Token() (*oauth2.Token, error) {
	s := m.State().Session
	if s == nil {
		return nil, apperror.Unauthenticated("User not authenticated")
	}
	if !s.Valid(m.now()) && s.RefreshToken != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.Refresh(ctx); err == nil {
			s = m.State().Session
		}
	}
	if s == nil {
		return nil, apperror.Unauthenticated("User not authenticated")
	}
	return &oauth2.Token{
		AccessToken: s.AccessToken,
		TokenType:   "Bearer",
		Expiry:      s.ExpiresAt,
	}, nil
}

// Subscribe registers fn for every state change and returns its unsubscribe func.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers = append(m.observers, observer{id: id, fn: fn})
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, o := range m.observers {
			if o.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) publish(st State) {
	m.obsMu.Lock()
	fns := make([]func(State), 0, len(m.observers))
	for _, o := range m.observers {
		fns = append(fns, o.fn)
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Close drops the provider subscription and stops the timer and update loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		close(m.stop)
		m.wg.Wait()
	})
}
