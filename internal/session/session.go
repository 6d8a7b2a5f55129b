// Package session manages the anonymous credential that authorizes checkout
// calls against the order management API.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/Alturino/makelocal/internal/api"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/metrics"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/internal/storage"
)

const (
	DefaultTTL         = 7 * 24 * time.Hour
	DefaultRefreshLead = time.Hour
	StorageKeyPrefix   = "makelocal-session:"

	endpointAuthAnonymous = "/auth-anonymous"
	createFlightKey       = "session-create"
)

var ErrSessionExpired = errors.New("session expired")

type State string

const (
	StateNone         State = "NONE"
	StateCreating     State = "CREATING"
	StateValid        State = "VALID"
	StateExpiringSoon State = "EXPIRING_SOON"
	StateExpired      State = "EXPIRED"
)

type Doer interface {
	Do(c context.Context, method, endpoint string, body, out any, opts ...api.RequestOption) error
}

type Session struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Usable reports whether the session may still be presented at now.
func (s Session) Usable(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}

type record struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	CreatedAt int64  `json:"createdAt"`
}

type AnonymousAuthResponse struct {
	UserID      string `json:"userId,omitempty"`
	Token       string `json:"token"`
	IsAnonymous bool   `json:"isAnonymous,omitempty"`
	ExpiresIn   *int64 `json:"expiresIn,omitempty"`
}

type Manager struct {
	api     Doer
	storage storage.Storage
	key     string
	metrics *metrics.Metrics

	now         func() time.Time
	refreshLead time.Duration
	defaultTTL  time.Duration

	mu       sync.RWMutex
	current  *Session
	creating bool
	group    singleflight.Group
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithRefreshLead(lead time.Duration) Option {
	return func(m *Manager) { m.refreshLead = lead }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(doer Doer, store storage.Storage, key string, opts ...Option) *Manager {
	m := &Manager{
		api:         doer,
		storage:     store,
		key:         key,
		now:         time.Now,
		refreshLead: DefaultRefreshLead,
		defaultTTL:  DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creating {
		return StateCreating
	}
	if m.current == nil {
		return StateNone
	}
	now := m.now()
	switch {
	case !m.current.Usable(now):
		return StateExpired
	case m.current.ExpiresAt.Sub(now) < m.leadFor(*m.current):
		return StateExpiringSoon
	default:
		return StateValid
	}
}

// Stored returns the cached session, falling back to storage, when it is
// still usable.
func (m *Manager) Stored(c context.Context) (Session, bool) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager Stored").
		Str(log.KeyStorageKey, m.key).
		Logger()

	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()
	if current != nil && current.Usable(m.now()) {
		return *current, true
	}

	var rec record
	found, err := m.storage.Get(c, m.key, &rec)
	if err != nil {
		logger.Warn().Err(err).Msg("failed reading stored session, ignoring it")
		return Session{}, false
	}
	if !found {
		return Session{}, false
	}
	s := Session{
		Token:     rec.Token,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt),
		CreatedAt: time.UnixMilli(rec.CreatedAt),
	}
	if !s.Usable(m.now()) {
		logger.Info().Msg("stored session expired, discarding it")
		if err := m.storage.Remove(c, m.key); err != nil {
			logger.Warn().Err(err).Msg("failed removing expired session")
		}
		return Session{}, false
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return s, true
}

// Create asks the API for a new anonymous session. Concurrent callers share
// one request; a caller whose context ends stops waiting without cancelling
// the shared request.
func (m *Manager) Create(c context.Context) (Session, error) {
	ch := m.group.DoChan(createFlightKey, func() (any, error) {
		return m.create(context.WithoutCancel(c))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	case <-c.Done():
		return Session{}, &inErrors.APIError{
			Code:    inErrors.CodeAborted,
			Message: "session creation was cancelled",
			Err:     c.Err(),
		}
	}
}

func (m *Manager) create(c context.Context) (s Session, err error) {
	c, span := otel.Tracer.Start(c, "Manager create")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager create").
		Str(log.KeyStorageKey, m.key).
		Logger()

	m.mu.Lock()
	m.creating = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.creating = false
		if err == nil {
			m.current = &s
		}
		m.mu.Unlock()
		m.metrics.ObserveSessionCreation(err)
	}()

	logger = logger.With().Str(log.KeyProcess, "requesting anonymous session").Logger()
	logger.Info().Msg("requesting anonymous session")
	resp := AnonymousAuthResponse{}
	err = m.api.Do(c, http.MethodPost, endpointAuthAnonymous, nil, &resp)
	if err != nil {
		err = fmt.Errorf("failed creating anonymous session with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Session{}, err
	}
	if resp.Token == "" {
		err = &inErrors.APIError{
			Code:    inErrors.CodeInvalidResponse,
			Message: "API response missing token",
		}
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Session{}, err
	}

	now := m.now()
	s = Session{
		Token:     resp.Token,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime(now, resp)),
	}
	logger = logger.With().
		Str(log.KeyTokenFingerprint, Fingerprint(s.Token)).
		Time(log.KeySessionExpiresAt, s.ExpiresAt).
		Logger()
	logger.Info().Msg("received anonymous session")

	logger = logger.With().Str(log.KeyProcess, "persisting session").Logger()
	rec := record{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UnixMilli(),
		CreatedAt: s.CreatedAt.UnixMilli(),
	}
	if perr := m.storage.Set(c, m.key, rec, s.ExpiresAt.Sub(now)); perr != nil {
		logger.Warn().Err(perr).Msg("failed persisting session, keeping it in memory only")
	} else {
		logger.Info().Msg("persisted session")
	}
	return s, nil
}

// lifetime prefers the provider supplied expiresIn, then the exp claim of a
// JWT token, then DefaultTTL.
func (m *Manager) lifetime(now time.Time, resp AnonymousAuthResponse) time.Duration {
	if resp.ExpiresIn != nil && *resp.ExpiresIn > 0 {
		return time.Duration(*resp.ExpiresIn) * time.Second
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Token, &claims); err == nil &&
		claims.ExpiresAt != nil && claims.ExpiresAt.After(now) {
		return claims.ExpiresAt.Sub(now)
	}
	return m.defaultTTL
}

func (m *Manager) GetOrCreate(c context.Context) (Session, error) {
	if s, ok := m.Stored(c); ok {
		return s, nil
	}
	zerolog.Ctx(c).Info().Str(log.KeyTag, "Manager GetOrCreate").Msg("no valid session found, creating new one")
	return m.Create(c)
}

// leadFor is the refresh lead of s, capped at half its lifetime so a short
// lived session is not renewed on every use.
func (m *Manager) leadFor(s Session) time.Duration {
	lead := m.refreshLead
	if lifetime := s.ExpiresAt.Sub(s.CreatedAt); lifetime > 0 && lead > lifetime/2 {
		lead = lifetime / 2
	}
	return lead
}

// RefreshIfNeeded renews s when less than the refresh lead remains. A failed
// renewal of a still usable session keeps the old one.
func (m *Manager) RefreshIfNeeded(c context.Context, s Session) (Session, error) {
	now := m.now()
	if s.Usable(now) && s.ExpiresAt.Sub(now) >= m.leadFor(s) {
		return s, nil
	}

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Manager RefreshIfNeeded").
		Str(log.KeyTokenFingerprint, Fingerprint(s.Token)).
		Logger()
	logger.Info().Msg("session expiring soon, refreshing")

	renewed, err := m.Create(c)
	if err != nil {
		if s.Usable(m.now()) {
			logger.Warn().Err(err).Msg("failed refreshing session, keeping current one")
			return s, nil
		}
		return Session{}, err
	}
	return renewed, nil
}

// EnsureValid returns a token that is usable right now, or an error. It never
// returns an expired token.
func (m *Manager) EnsureValid(c context.Context) (string, error) {
	c, span := otel.Tracer.Start(c, "Manager EnsureValid")
	defer span.End()

	s, err := m.GetOrCreate(c)
	if err != nil {
		inErrors.HandleError(err, span)
		return "", err
	}
	s, err = m.RefreshIfNeeded(c, s)
	if err != nil {
		inErrors.HandleError(err, span)
		return "", err
	}
	if !s.Usable(m.now()) {
		inErrors.HandleError(ErrSessionExpired, span)
		return "", ErrSessionExpired
	}
	return s.Token, nil
}

// Clear forgets the session locally. Cookies the API set as HTTP only stay
// with the client until they expire on their own.
func (m *Manager) Clear(c context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	if err := m.storage.Remove(c, m.key); err != nil {
		return fmt.Errorf("failed clearing session with error=%w", err)
	}
	return nil
}

// Fingerprint identifies a token in logs without revealing it.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
