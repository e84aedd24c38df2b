package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
)

// fakeProvider is an in-memory AuthProvider. Set the *Err fields to fail calls.
type fakeProvider struct {
	mu         sync.Mutex
	stored     *model.Session
	getErr     error
	refreshErr error
	signOutErr error
	refreshes  atomic.Int32
	observers  map[int]func(Event)
	nextObs    int

	// When hold is set, RefreshSession closes refreshing and then waits for
	// hold to be closed before answering.
	hold       chan struct{}
	refreshing chan struct{}
}

func (f *fakeProvider) holdRefresh() (started <-chan struct{}, release func()) {
	f.hold = make(chan struct{})
	f.refreshing = make(chan struct{})
	return f.refreshing, func() { close(f.hold) }
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{observers: map[int]func(Event){}}
}

func newSession(token string) *model.Session {
	return &model.Session{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         model.User{ID: "user-1", Email: "agent@example.com", DisplayName: "Agent"},
	}
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*model.Session, error) {
	if password != "secret1" {
		return nil, apperror.Unauthenticated("Invalid login credentials")
	}
	s := newSession("signed-in")
	f.mu.Lock()
	f.stored = s
	f.mu.Unlock()
	return s, nil
}

func (f *fakeProvider) SignOut(context.Context) error {
	f.mu.Lock()
	f.stored = nil
	f.mu.Unlock()
	return f.signOutErr
}

func (f *fakeProvider) GetSession(context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, f.getErr
}

func (f *fakeProvider) RefreshSession(context.Context) (*model.Session, error) {
	n := f.refreshes.Add(1)
	if f.hold != nil {
		close(f.refreshing)
		<-f.hold
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	s := newSession(fmt.Sprintf("refreshed-%d", n))
	f.mu.Lock()
	f.stored = s
	f.mu.Unlock()
	return s, nil
}

func (f *fakeProvider) Subscribe(fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextObs
	f.nextObs++
	f.observers[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.observers, id)
		f.mu.Unlock()
	}
}

func (f *fakeProvider) emit(ev Event) {
	f.mu.Lock()
	fns := make([]func(Event), 0, len(f.observers))
	for _, fn := range f.observers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeProvider) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func newTestManager(t *testing.T, p *fakeProvider, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(p, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	t.Cleanup(m.Close)
	return m
}

func TestInitialize_RestoresSession(t *testing.T) {
	p := newFakeProvider()
	p.stored = newSession("stored")
	m := newTestManager(t, p)

	assert.False(t, m.State().Initialized)
	m.Initialize(context.Background())

	st := m.State()
	assert.True(t, st.Initialized)
	require.NotNil(t, st.Session)
	assert.Equal(t, "stored", st.Session.AccessToken)
	assert.Equal(t, "Agent", m.CurrentUser().DisplayName)
}

func TestInitialize_ErrorInstallsNoSession(t *testing.T) {
	p := newFakeProvider()
	p.stored = newSession("stored")
	p.getErr = errors.New("keychain locked")
	m := newTestManager(t, p)

	m.Initialize(context.Background())

	st := m.State()
	assert.True(t, st.Initialized, "initialized regardless of outcome")
	assert.Nil(t, st.Session)
	assert.Nil(t, m.CurrentUser())
}

func TestInitialize_RunsOnce(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(t, p)

	var initStates int
	m.Subscribe(func(st State) {
		if st.Initialized {
			initStates++
		}
	})

	m.Initialize(context.Background())
	p.stored = newSession("later")
	m.Initialize(context.Background())

	assert.Nil(t, m.State().Session, "second Initialize must not re-read the provider")
	assert.Equal(t, 1, initStates)
}

func TestAuthEvents(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(t, p)
	m.Initialize(context.Background())
	m.Start()

	s := newSession("evt")
	p.emit(Event{Kind: SignedIn, Session: s})
	assert.Same(t, s, m.State().Session)

	r := newSession("evt-refreshed")
	p.emit(Event{Kind: TokenRefreshed, Session: r})
	assert.Same(t, r, m.State().Session)

	p.emit(Event{Kind: SignedOut})
	assert.Nil(t, m.State().Session)

	p.emit(Event{Kind: TokenRefreshed, Session: newSession("late")})
	assert.Nil(t, m.State().Session, "a refresh event after sign-out is ignored")

	p.emit(Event{Kind: SignedIn, Session: s})
	other := newSession("other-user")
	other.User.ID = "user-2"
	p.emit(Event{Kind: TokenRefreshed, Session: other})
	assert.Same(t, s, m.State().Session, "a refresh event for another user is ignored")
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("skipped without a session", func(t *testing.T) {
		p := newFakeProvider()
		m := newTestManager(t, p)
		m.Initialize(ctx)

		require.NoError(t, m.Refresh(ctx))
		assert.Equal(t, int32(0), p.refreshes.Load())
	})

	t.Run("success replaces", func(t *testing.T) {
		p := newFakeProvider()
		p.stored = newSession("old")
		m := newTestManager(t, p)
		m.Initialize(ctx)

		require.NoError(t, m.Refresh(ctx))
		assert.Equal(t, "refreshed-1", m.State().Session.AccessToken)
	})

	t.Run("failure keeps the session", func(t *testing.T) {
		p := newFakeProvider()
		p.stored = newSession("old")
		p.refreshErr = errors.New("offline")
		m := newTestManager(t, p)
		m.Initialize(ctx)

		assert.Error(t, m.Foreground(ctx))
		require.NotNil(t, m.State().Session)
		assert.Equal(t, "old", m.State().Session.AccessToken)
	})
}

func TestRefresh_OverlappingSessionChange(t *testing.T) {
	ctx := context.Background()

	t.Run("sign-out wins", func(t *testing.T) {
		p := newFakeProvider()
		p.stored = newSession("old")
		m := newTestManager(t, p)
		m.Initialize(ctx)

		started, release := p.holdRefresh()
		errc := make(chan error, 1)
		go func() { errc <- m.Refresh(ctx) }()
		<-started

		require.NoError(t, m.SignOut(ctx))
		release()

		require.NoError(t, <-errc)
		assert.Nil(t, m.State().Session)
	})

	t.Run("new sign-in wins", func(t *testing.T) {
		p := newFakeProvider()
		p.stored = newSession("old")
		m := newTestManager(t, p)
		m.Initialize(ctx)

		started, release := p.holdRefresh()
		errc := make(chan error, 1)
		go func() { errc <- m.Refresh(ctx) }()
		<-started

		require.NoError(t, m.SignOut(ctx))
		require.NoError(t, m.SignIn(ctx, "agent@example.com", "secret1"))
		release()

		require.NoError(t, <-errc)
		require.NotNil(t, m.State().Session)
		assert.Equal(t, "signed-in", m.State().Session.AccessToken)
	})
}

func TestStart_PeriodicRefresh(t *testing.T) {
	p := newFakeProvider()
	p.stored = newSession("old")
	m := newTestManager(t, p, WithRefreshInterval(10*time.Millisecond))
	m.Initialize(context.Background())
	m.Start()

	assert.Eventually(t, func() bool { return p.refreshes.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestSessionReplacementIsAtomic(t *testing.T) {
	p := newFakeProvider()
	p.stored = newSession("old")
	m := newTestManager(t, p)
	m.Initialize(context.Background())

	var torn atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			st := m.State()
			if st.Session == nil || st.Session.AccessToken == "" {
				torn.Store(true)
			}
		}
	}()

	for i := 0; i < 50; i++ {
		require.NoError(t, m.Refresh(context.Background()))
	}
	<-done
	assert.False(t, torn.Load(), "a reader saw no session between two valid ones")
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	m := newTestManager(t, p)
	m.Initialize(ctx)

	err := m.SignIn(ctx, "not-an-email", "secret1")
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	err = m.SignIn(ctx, "agent@example.com", "12345")
	assert.True(t, errors.Is(err, apperror.ErrValidation), "short password is rejected locally")

	err = m.SignIn(ctx, "agent@example.com", "wrong-pass")
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))
	assert.Nil(t, m.State().Session)

	require.NoError(t, m.SignIn(ctx, "agent@example.com", "secret1"))
	assert.Equal(t, "user-1", m.CurrentUser().ID)
}

func TestSignOut_ClearsEvenOnBackendFailure(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.stored = newSession("old")
	p.signOutErr = errors.New("network down")
	m := newTestManager(t, p)
	m.Initialize(ctx)

	err := m.SignOut(ctx)
	assert.Error(t, err)
	assert.Nil(t, m.State().Session)

	p.signOutErr = nil
	require.NoError(t, m.SignIn(ctx, "agent@example.com", "secret1"))
	assert.NoError(t, m.SignOut(ctx))
	assert.Nil(t, m.State().Session)
}

func TestToken(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	m := newTestManager(t, p)
	m.Initialize(ctx)

	_, err := m.Token()
	assert.True(t, errors.Is(err, apperror.ErrUnauthenticated))

	require.NoError(t, m.SignIn(ctx, "agent@example.com", "secret1"))
	tok, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "signed-in", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)

	// An expired access token is refreshed before use.
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	tok, err = m.Token()
	require.NoError(t, err)
	assert.Equal(t, "refreshed-1", tok.AccessToken)
}

func TestSubscribeAndClose(t *testing.T) {
	p := newFakeProvider()
	m := NewManager(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.Start()
	assert.Equal(t, 1, p.subscribers())

	var seen []State
	unsubscribe := m.Subscribe(func(st State) { seen = append(seen, st) })
	m.Initialize(context.Background())
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Initialized)

	unsubscribe()
	p.emit(Event{Kind: SignedIn, Session: newSession("x")})
	assert.Len(t, seen, 1)

	m.Close()
	assert.Equal(t, 0, p.subscribers())
	m.Close()

	// Writes after Close are dropped, not blocked.
	p.emit(Event{Kind: SignedOut})
}

func TestSubscribe_NotifiesInSubscriptionOrder(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(t, p)

	var order []int
	for i := 0; i < 8; i++ {
		m.Subscribe(func(State) { order = append(order, i) })
	}
	drop := m.Subscribe(func(State) { order = append(order, 99) })
	m.Subscribe(func(State) { order = append(order, 8) })
	drop()

	m.Initialize(context.Background())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8}, order)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "SIGNED_IN", SignedIn.String())
	assert.Equal(t, "TOKEN_REFRESHED", TokenRefreshed.String())
	assert.Equal(t, "SIGNED_OUT", SignedOut.String())
}
