package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/repository"
	"github.com/sakif/field-survey/internal/session"
)

// ClientID identifies this app at the token endpoint.
const ClientID = "field-survey"

var _ session.AuthProvider = (*AuthClient)(nil)

// AuthClient talks to /auth/v1 and keeps the session persisted in a
// repository.SessionStore, so a restarted process picks up where it left off.
type AuthClient struct {
	baseURL    string
	oauth      *oauth2.Config
	httpClient *http.Client
	store      repository.SessionStore
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	current *model.Session

	// gen counts sign-ins and sign-outs so a refresh that overlaps one can
	// tell its result is stale.
	gen       uint64
	observers map[int]func(session.Event)
	nextObs   int
}

func NewAuthClient(baseURL string, httpClient *http.Client, store repository.SessionStore, logger *slog.Logger) *AuthClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AuthClient{
		baseURL: baseURL,
		oauth: &oauth2.Config{
			ClientID: ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/auth/v1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		store:      store,
		logger:     logger,
		now:        time.Now,
		observers:  make(map[int]func(session.Event)),
	}
}

// SignInWithPassword runs the OAuth 2.0 password grant.
func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.withHTTPClient(ctx), email, password)
	if err != nil {
		return nil, grantError(err, "Invalid login credentials")
	}
	s, err := tokenToSession(tok)
	if err != nil {
		return nil, err
	}
	if err := c.install(ctx, s); err != nil {
		return nil, err
	}
	c.logger.Info("signed in", slog.String("user_id", s.User.ID))
	c.emit(session.Event{Kind: session.SignedIn, Session: s})
	return s, nil
}

// RefreshSession exchanges the refresh token for a new session. The backend
// rotates refresh tokens, so the old one is dead afterwards.
func (c *AuthClient) RefreshSession(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	current, err := c.loaded(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil || current.RefreshToken == "" {
		return nil, apperror.Unauthenticated("Auth session missing!")
	}

	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, grantError(err, "Invalid Refresh Token")
	}
	s, err := tokenToSession(tok)
	if err != nil {
		return nil, err
	}
	ok, err := c.replace(ctx, gen, s)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Debug("dropping refresh that overlapped a sign-in or sign-out")
		return nil, apperror.Unauthenticated("Auth session missing!")
	}
	c.logger.Debug("session refreshed", slog.String("user_id", s.User.ID))
	c.emit(session.Event{Kind: session.TokenRefreshed, Session: s})
	return s, nil
}

// GetSession returns the current session, restoring it from the store on
// first use. A stored session whose access token has expired is refreshed
// before it is returned.
func (c *AuthClient) GetSession(ctx context.Context) (*model.Session, error) {
	s, err := c.loaded(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	if s.Valid(c.now()) {
		return s, nil
	}
	return c.RefreshSession(ctx)
}

// SignOut revokes the user's refresh tokens on the backend, then clears the
// local session whatever the outcome. The backend error, if any, is returned.
func (c *AuthClient) SignOut(ctx context.Context) error {
	current, _ := c.loaded(ctx)
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()

	var remoteErr error
	if current != nil && current.AccessToken != "" {
		remoteErr = c.logout(ctx, current.AccessToken)
		if remoteErr != nil {
			c.logger.Warn("backend sign-out failed", slog.String("error", remoteErr.Error()))
		}
	}

	c.mu.Lock()
	c.gen++
	c.current = nil
	err := c.store.ClearSession(ctx)
	c.mu.Unlock()
	if err != nil {
		c.logger.Error("clearing stored session", slog.String("error", err.Error()))
		remoteErr = errors.Join(remoteErr, err)
	}

	c.emit(session.Event{Kind: session.SignedOut})
	return remoteErr
}

// Subscribe registers fn for auth-change events.
func (c *AuthClient) Subscribe(fn func(session.Event)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *AuthClient) logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return fmt.Errorf("client: building logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: logout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// loaded returns the in-memory session, reading the store the first time.
func (c *AuthClient) loaded(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current, nil
	}
	s, err := c.store.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: loading stored session: %w", err)
	}
	c.current = s
	return s, nil
}

// install persists a freshly signed-in session and starts a new generation.
func (c *AuthClient) install(ctx context.Context, s *model.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("client: saving session: %w", err)
	}
	c.gen++
	c.current = s
	return nil
}

// replace persists a refreshed session only if no sign-in or sign-out
// happened since gen was read. The store write holds mu so SignOut's clear
// cannot land in between.
func (c *AuthClient) replace(ctx context.Context, gen uint64, s *model.Session) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false, nil
	}
	if err := c.store.SaveSession(ctx, s); err != nil {
		return false, fmt.Errorf("client: saving session: %w", err)
	}
	c.current = s
	return true, nil
}

func (c *AuthClient) emit(ev session.Event) {
	c.mu.Lock()
	fns := make([]func(session.Event), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (c *AuthClient) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// tokenToSession reads the session out of a token response. The backend adds
// the signed-in user as an extra "user" field.
func tokenToSession(tok *oauth2.Token) (*model.Session, error) {
	s := &model.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	raw, err := json.Marshal(tok.Extra("user"))
	if err != nil {
		return nil, fmt.Errorf("client: encoding user: %w", err)
	}
	if err := json.Unmarshal(raw, &s.User); err != nil {
		return nil, fmt.Errorf("client: decoding user: %w", err)
	}
	if s.User.ID == "" {
		return nil, fmt.Errorf("client: token response carries no user")
	}
	return s, nil
}

// grantError maps a token endpoint failure. Any 4xx from the endpoint is an
// authentication failure carrying the server's description.
func grantError(err error, fallback string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
		msg := re.ErrorDescription
		if msg == "" {
			msg = fallback
		}
		return &apperror.AppError{Err: apperror.ErrUnauthenticated, Message: msg, Cause: err}
	}
	return fmt.Errorf("client: token request: %w", err)
}
