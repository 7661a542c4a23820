package auth

import (
	"context"
	"time"

	httpclient "ojassist/internal/cli/http"
	"ojassist/internal/cli/state"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/utils/logger"

	"go.uber.org/zap"
)

// SessionHolder is the component owning the live session, normally *api.Client.
type SessionHolder interface {
	state.Prober
	Install(s *state.Session) error
	Reset() error
	HTTP() *httpclient.Client
}

// Source reports where the session used by a run came from.
type Source string

const (
	SourceCache Source = "cache"
	SourceLogin Source = "login"
)

// Manager decides between the cached session and a fresh CAS login.
type Manager struct {
	holder SessionHolder
	store  state.Store
	cfg    Config
	creds  func(ctx context.Context) (Credentials, error)
	now    func() time.Time
}

// NewManager wires a session holder to a store. creds is called only when a
// fresh login is needed.
func NewManager(holder SessionHolder, store state.Store, cfg Config, creds func(ctx context.Context) (Credentials, error)) *Manager {
	return &Manager{
		holder: holder,
		store:  store,
		cfg:    cfg,
		creds:  creds,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for staleness and AcquiredAt.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	if now != nil {
		m.now = now
	}
	return m
}

// EnsureSession installs a working session into the holder: a cached one if
// it is fresh and still accepted by the server, otherwise a new login.
func (m *Manager) EnsureSession(ctx context.Context) (Source, error) {
	cached, err := m.store.Load(ctx)
	if err != nil {
		logger.Warn(ctx, "load cached session failed", zap.Error(err))
		cached = nil
	}

	if cached != nil {
		if state.IsStale(cached, m.now()) {
			logger.Info(ctx, "cached session expired", zap.Time("acquired_at", cached.AcquiredAt))
			if err := m.discard(ctx); err != nil {
				return "", err
			}
		} else {
			if err := m.holder.Install(cached); err != nil {
				return "", err
			}
			if state.Validate(ctx, m.holder, cached) {
				logger.Info(ctx, "reusing cached session", zap.Time("acquired_at", cached.AcquiredAt))
				return SourceCache, nil
			}
			logger.Info(ctx, "cached session rejected by server")
			if err := m.discard(ctx); err != nil {
				return "", err
			}
		}
	}

	if err := m.Login(ctx); err != nil {
		return "", err
	}
	return SourceLogin, nil
}

// Login forces a fresh handshake and persists the result.
func (m *Manager) Login(ctx context.Context) error {
	if m.creds == nil {
		return appErr.New(appErr.RequiredFieldEmpty).WithMessage("no credentials available")
	}
	creds, err := m.creds(ctx)
	if err != nil {
		return err
	}
	if err := m.holder.Reset(); err != nil {
		return err
	}

	hs := NewHandshake(m.holder.HTTP(), m.cfg).WithClock(m.now)
	sess, err := hs.Run(ctx, creds)
	if err != nil {
		_ = m.holder.Reset()
		return err
	}
	if err := m.holder.Install(&sess); err != nil {
		return err
	}
	if err := m.store.Save(ctx, sess); err != nil {
		// The login itself worked; only the next run pays for this.
		logger.Warn(ctx, "save session failed", zap.Error(err))
	}
	return nil
}

// Logout forgets the session locally and in the store.
func (m *Manager) Logout(ctx context.Context) error {
	return m.discard(ctx)
}

// Cached returns the stored session without touching the network.
func (m *Manager) Cached(ctx context.Context) (*state.Session, error) {
	return m.store.Load(ctx)
}

func (m *Manager) discard(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	return m.holder.Reset()
}
