// Package verify implements a time-scoped step-up confirmation: re-entering
// a secret unlocks a sensitive action for a bounded window, independent of
// the main session.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/acbmarket/feedctl/internal/clock"
)

// DefaultTTL is the verification window.
const DefaultTTL = 15 * time.Minute

// DefaultAction is the protected action used when none is configured.
const DefaultAction = "purchase"

var (
	// ErrWrongSecret is wrapped by confirmers when the secret is rejected.
	ErrWrongSecret = errors.New("incorrect password")
	// ErrEmptySecret is returned for a blank secret before any network call.
	ErrEmptySecret = errors.New("please enter your password")
	// ErrNotAuthenticated is returned when there is no session to step up.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Confirmer checks a secret with the authentication collaborator.
type Confirmer interface {
	ConfirmSecret(ctx context.Context, secret string) error
}

// Authenticator reports whether a session exists.
type Authenticator interface {
	IsAuthenticated() bool
}

// State is the gate's view of an action.
type State int

const (
	Unverified State = iota
	Verified
	Expired
)

func (s State) String() string {
	switch s {
	case Verified:
		return "verified"
	case Expired:
		return "expired"
	default:
		return "unverified"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// GateOptions configures a Gate. Confirmer is required.
type GateOptions struct {
	Action    string
	TTL       time.Duration
	Store     Store
	Confirmer Confirmer
	Auth      Authenticator
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Gate guards one protected action.
type Gate struct {
	action    string
	ttl       time.Duration
	store     Store
	confirmer Confirmer
	auth      Authenticator
	clock     clock.Clock
	logger    *slog.Logger
}

// NewGate returns a Gate. It panics if opts.Confirmer is nil.
func NewGate(opts GateOptions) *Gate {
	if opts.Confirmer == nil {
		panic("verify: NewGate without a Confirmer")
	}
	if opts.Action == "" {
		opts.Action = DefaultAction
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gate{
		action:    opts.Action,
		ttl:       opts.TTL,
		store:     opts.Store,
		confirmer: opts.Confirmer,
		auth:      opts.Auth,
		clock:     opts.Clock,
		logger:    opts.Logger.With("action", opts.Action),
	}
}

// Action returns the protected action name.
func (g *Gate) Action() string { return g.action }

// TTL returns the verification window.
func (g *Gate) TTL() time.Duration { return g.ttl }

// Confirm checks secret and, on success, records a fresh grant that
// replaces any previous one. A rejected secret leaves the gate unverified
// and returns an error wrapping ErrWrongSecret.
func (g *Gate) Confirm(ctx context.Context, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrEmptySecret
	}
	if g.auth != nil && !g.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if err := g.confirmer.ConfirmSecret(ctx, secret); err != nil {
		if errors.Is(err, ErrWrongSecret) {
			g.logger.Info("verification rejected")
		}
		return fmt.Errorf("confirming %s: %w", g.action, err)
	}

	rec := Record{Action: g.action, GrantedAt: g.clock.Now(), TTL: g.ttl}
	if err := g.store.SaveRecord(rec); err != nil {
		return fmt.Errorf("saving verification: %w", err)
	}
	g.logger.Info("verification granted", "expires_at", rec.ExpiresAt())
	return nil
}

// CanProceed reports whether the action is currently unlocked. An expired
// or unreadable record is deleted on detection.
func (g *Gate) CanProceed() bool {
	rec, ok := g.load()
	if !ok {
		return false
	}
	if g.live(rec) {
		return true
	}
	g.prune("verification expired")
	return false
}

// Status reports the gate state without pruning anything.
func (g *Gate) Status() State {
	rec, found, err := g.store.LoadRecord(g.action)
	if err != nil || !found {
		return Unverified
	}
	if g.live(rec) {
		return Verified
	}
	return Expired
}

// Remaining returns how long the current grant stays valid, or zero.
func (g *Gate) Remaining() time.Duration {
	rec, found, err := g.store.LoadRecord(g.action)
	if err != nil || !found || !g.live(rec) {
		return 0
	}
	return g.expiry(rec).Sub(g.clock.Now())
}

// Clear drops every verification record of this client instance. Called
// on logout.
func (g *Gate) Clear() error {
	if err := g.store.ClearRecords(); err != nil {
		return fmt.Errorf("clearing verification: %w", err)
	}
	return nil
}

func (g *Gate) load() (Record, bool) {
	rec, found, err := g.store.LoadRecord(g.action)
	if err != nil {
		g.logger.Warn("unreadable verification record", "error", err)
		g.prune("unreadable verification record")
		return Record{}, false
	}
	if !found {
		return Record{}, false
	}
	if !rec.valid() {
		g.prune("invalid verification record")
		return Record{}, false
	}
	return rec, true
}

func (g *Gate) live(rec Record) bool {
	return rec.valid() && g.clock.Now().Before(g.expiry(rec))
}

// expiry falls back to the gate's TTL for records saved without one.
func (g *Gate) expiry(rec Record) time.Time {
	if rec.TTL <= 0 {
		rec.TTL = g.ttl
	}
	return rec.ExpiresAt()
}

func (g *Gate) prune(reason string) {
	if err := g.store.DeleteRecord(g.action); err != nil {
		g.logger.Warn("pruning verification record", "error", err)
		return
	}
	g.logger.Debug(reason)
}
