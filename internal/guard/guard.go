// Package guard gates console access behind the shared secrets, locks a
// client out after a wrong secret, and keeps the client's login_sessions row
// alive with a heartbeat while it stays logged in.
package guard

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const (
	DefaultLockoutDuration   = 120 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStoreTimeout      = 5 * time.Second
)

// Role is the access level granted by a secret.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// CanEdit reports whether the role may change data.
func (r Role) CanEdit() bool {
	return r == RoleAdmin
}

var (
	// ErrDenied covers every secret mismatch. There is no user directory,
	// so a wrong secret and an unknown identity are the same thing.
	ErrDenied = errors.New("wrong password")
	// ErrLocked matches any *LockedError.
	ErrLocked = errors.New("login temporarily locked")
	// ErrAttemptInFlight is returned when the same client submits again
	// before the previous attempt finished.
	ErrAttemptInFlight = errors.New("login attempt already in progress")
)

// LockedError is returned by AttemptLogin while a lockout is active.
type LockedError struct {
	UnlockAt  time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrLocked, e.Remaining.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// DeviceInfo describes the client that logged in. Everything is best effort.
type DeviceInfo struct {
	IPAddress   string
	UserAgent   string
	DeviceType  string
	BrowserName string
	OSName      string
	Country     string
	City        string
	Latitude    *float64
	Longitude   *float64
}

// SessionStore owns the login_sessions rows.
type SessionStore interface {
	CreateSession(ctx context.Context, device DeviceInfo, loginTime time.Time) (string, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeactivateSession(ctx context.Context, sessionID string, at time.Time) error
}

// Observer receives guard events. Implementations must not block.
type Observer interface {
	LoginGranted(role Role, device DeviceInfo)
	LoginDenied(device DeviceInfo, unlockAt time.Time)
	LoginRejectedLocked()
	Heartbeat(err error)
}

// Secrets maps the two shared secrets to roles.
type Secrets struct {
	Admin  string
	Viewer string
}

// Options configures a guard. Zero durations fall back to the defaults.
type Options struct {
	Secrets           Secrets
	LockoutDuration   time.Duration
	HeartbeatInterval time.Duration
	// StoreTimeout bounds heartbeat and background persistence calls.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.LockoutDuration <= 0 {
		o.LockoutDuration = DefaultLockoutDuration
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	return o
}

// Deps are the collaborators of a guard. Observer, Addresses and Logger are
// optional.
type Deps struct {
	State     StateStore
	Sessions  SessionStore
	Scheduler Scheduler
	Observer  Observer
	// Addresses extends every lockout to the client's IP address.
	Addresses *AddressLocks
	Logger    *logger.Logger
}

// Status is a point-in-time view of a guard.
type Status struct {
	Authenticated bool          `json:"authenticated"`
	Role          Role          `json:"role,omitempty"`
	SessionID     string        `json:"session_id,omitempty"`
	Locked        bool          `json:"locked"`
	UnlockAt      time.Time     `json:"unlock_at,omitempty"`
	Remaining     time.Duration `json:"-"`
}

// Guard is the session guard of a single client.
type Guard struct {
	key       string
	opts      Options
	state     StateStore
	sessions  SessionStore
	sched     Scheduler
	observer  Observer
	addresses *AddressLocks
	logger    *logger.Logger

	// saveMu serializes writes to the state store so the last write always
	// carries the latest record.
	saveMu sync.Mutex

	mu           sync.Mutex
	record       Record
	inFlight     bool
	heartbeat    Task
	lockoutTimer Task
	lockoutGen   uint64
}

// New creates a guard for the client identified by key. Call Restore before
// use to pick up persisted state.
func New(key string, opts Options, deps Deps) *Guard {
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Guard{
		key:       key,
		opts:      opts.withDefaults(),
		state:     deps.State,
		sessions:  deps.Sessions,
		sched:     deps.Scheduler,
		observer:  observer,
		addresses: deps.Addresses,
		logger:    log.With("client", key),
	}
}

// Key returns the client key the guard persists under.
func (g *Guard) Key() string {
	return g.key
}

// AttemptLogin checks secret and, on success, opens a session and starts the
// heartbeat. While a lockout of the client or of its IP address is active
// every attempt fails with a *LockedError before the secret is looked at. A
// wrong secret returns ErrDenied and locks out both.
func (g *Guard) AttemptLogin(ctx context.Context, secret string, device DeviceInfo) (Role, error) {
	g.mu.Lock()
	if g.inFlight {
		g.mu.Unlock()
		return "", ErrAttemptInFlight
	}

	now := g.sched.Now()
	if !g.record.UnlockAt.IsZero() {
		if now.Before(g.record.UnlockAt) {
			lockedErr := &LockedError{UnlockAt: g.record.UnlockAt, Remaining: g.record.UnlockAt.Sub(now)}
			g.mu.Unlock()
			g.observer.LoginRejectedLocked()
			return "", lockedErr
		}
		// The expiry timer has not fired yet; treat the window as over.
		g.clearLockoutLocked()
	}
	g.inFlight = true
	g.mu.Unlock()

	if unlockAt := g.addresses.LockedUntil(ctx, device.IPAddress, now); !unlockAt.IsZero() {
		g.mu.Lock()
		g.inFlight = false
		g.mu.Unlock()
		g.observer.LoginRejectedLocked()
		return "", &LockedError{UnlockAt: unlockAt, Remaining: unlockAt.Sub(now)}
	}

	role, ok := g.match(secret)
	if !ok {
		unlockAt := now.Add(g.opts.LockoutDuration)
		g.mu.Lock()
		g.inFlight = false
		g.record.UnlockAt = unlockAt
		g.armLockoutLocked(g.opts.LockoutDuration)
		g.mu.Unlock()

		g.persist(ctx)
		g.addresses.Lock(ctx, device.IPAddress, unlockAt, now)
		g.logger.Warn("Login denied, client locked out", "ip", device.IPAddress, "unlock_at", unlockAt)
		g.observer.LoginDenied(device, unlockAt)
		return "", ErrDenied
	}

	g.mu.Lock()
	previous := g.heartbeat
	g.heartbeat = nil
	g.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}

	sessionID, err := g.sessions.CreateSession(ctx, device, now)
	if err != nil {
		// The client stays logged in locally; there is just nothing to heartbeat.
		g.logger.Error("Failed to create login session", "error", err)
		sessionID = ""
	}

	g.mu.Lock()
	g.inFlight = false
	g.record.Authenticated = true
	g.record.Role = role
	g.record.SessionID = sessionID
	if sessionID != "" {
		g.startHeartbeatLocked(sessionID)
	}
	g.mu.Unlock()

	g.persist(ctx)
	g.logger.Info("Login granted", "role", role, "session_id", sessionID, "ip", device.IPAddress)
	g.observer.LoginGranted(role, device)
	return role, nil
}

// Logout stops the heartbeat, marks the session row inactive and clears the
// persisted auth state. Store failures are logged, never returned. A pending
// lockout is left as is.
func (g *Guard) Logout(ctx context.Context) {
	g.mu.Lock()
	heartbeat := g.heartbeat
	g.heartbeat = nil
	sessionID := g.record.SessionID
	g.record.Authenticated = false
	g.record.Role = ""
	g.record.SessionID = ""
	g.mu.Unlock()

	if heartbeat != nil {
		heartbeat.Stop()
	}

	if sessionID != "" {
		if err := g.sessions.DeactivateSession(ctx, sessionID, g.sched.Now()); err != nil {
			g.logger.Error("Failed to mark session inactive", "session_id", sessionID, "error", err)
		}
	}

	g.persist(ctx)
	g.logger.Info("Logged out", "session_id", sessionID)
}

// Restore loads the persisted record, re-arms an unexpired lockout and
// resumes the heartbeat of a stored session.
func (g *Guard) Restore(ctx context.Context) error {
	rec, err := g.state.Load(ctx, g.key)
	if err != nil {
		return fmt.Errorf("failed to load guard state: %w", err)
	}

	now := g.sched.Now()
	dirty := false

	g.mu.Lock()
	if !rec.Authenticated {
		rec.Role = ""
		rec.SessionID = ""
	}
	g.record = rec
	if !rec.UnlockAt.IsZero() {
		if now.Before(rec.UnlockAt) {
			g.armLockoutLocked(rec.UnlockAt.Sub(now))
		} else {
			g.clearLockoutLocked()
			dirty = true
		}
	}
	if rec.Authenticated && rec.SessionID != "" && g.heartbeat == nil {
		g.startHeartbeatLocked(rec.SessionID)
	}
	g.mu.Unlock()

	if dirty {
		g.persist(ctx)
	}
	return nil
}

// Suspend stops timers without touching the session row or the persisted
// record, as if the client had closed the app.
func (g *Guard) Suspend() {
	g.mu.Lock()
	heartbeat := g.heartbeat
	g.heartbeat = nil
	if g.lockoutTimer != nil {
		g.lockoutTimer.Stop()
		g.lockoutTimer = nil
	}
	g.lockoutGen++
	g.mu.Unlock()

	if heartbeat != nil {
		heartbeat.Stop()
	}
}

// Status returns the current state of the client.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := Status{
		Authenticated: g.record.Authenticated,
		Role:          g.record.Role,
		SessionID:     g.record.SessionID,
	}
	if now := g.sched.Now(); !g.record.UnlockAt.IsZero() && now.Before(g.record.UnlockAt) {
		st.Locked = true
		st.UnlockAt = g.record.UnlockAt
		st.Remaining = g.record.UnlockAt.Sub(now)
	}
	return st
}

// empty reports whether the guard holds nothing worth keeping in memory.
func (g *Guard) empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.record.IsZero() && !g.inFlight
}

func (g *Guard) match(secret string) (Role, bool) {
	if constantTimeEqual(secret, g.opts.Secrets.Admin) {
		return RoleAdmin, true
	}
	if constantTimeEqual(secret, g.opts.Secrets.Viewer) {
		return RoleViewer, true
	}
	return "", false
}

func constantTimeEqual(a, b string) bool {
	if b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// startHeartbeatLocked requires g.mu and no running heartbeat.
func (g *Guard) startHeartbeatLocked(sessionID string) {
	g.heartbeat = g.sched.Every(g.opts.HeartbeatInterval, func() { g.beat(sessionID) })
}

func (g *Guard) beat(sessionID string) {
	g.mu.Lock()
	current := g.heartbeat != nil && g.record.SessionID == sessionID
	g.mu.Unlock()
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.StoreTimeout)
	defer cancel()

	err := g.sessions.TouchSession(ctx, sessionID, g.sched.Now())
	if err != nil {
		// Retried implicitly on the next tick.
		g.logger.Warn("Heartbeat failed", "session_id", sessionID, "error", err)
	}
	g.observer.Heartbeat(err)
}

// armLockoutLocked requires g.mu.
func (g *Guard) armLockoutLocked(d time.Duration) {
	if g.lockoutTimer != nil {
		g.lockoutTimer.Stop()
	}
	g.lockoutGen++
	gen := g.lockoutGen
	g.lockoutTimer = g.sched.After(d, func() { g.expireLockout(gen) })
}

// clearLockoutLocked requires g.mu.
func (g *Guard) clearLockoutLocked() {
	if g.lockoutTimer != nil {
		g.lockoutTimer.Stop()
		g.lockoutTimer = nil
	}
	g.lockoutGen++
	g.record.UnlockAt = time.Time{}
}

func (g *Guard) expireLockout(gen uint64) {
	g.mu.Lock()
	if gen != g.lockoutGen || g.record.UnlockAt.IsZero() {
		g.mu.Unlock()
		return
	}
	g.lockoutTimer = nil
	g.record.UnlockAt = time.Time{}
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.StoreTimeout)
	defer cancel()
	g.persist(ctx)
	g.logger.Debug("Lockout expired")
}

// persist writes the current record, or deletes the key when there is
// nothing left to keep.
func (g *Guard) persist(ctx context.Context) {
	g.saveMu.Lock()
	defer g.saveMu.Unlock()

	g.mu.Lock()
	rec := g.record
	g.mu.Unlock()

	var err error
	if rec.IsZero() {
		err = g.state.Delete(ctx, g.key)
	} else {
		err = g.state.Save(ctx, g.key, rec)
	}
	if err != nil {
		g.logger.Error("Failed to persist guard state", "error", err)
	}
}

type nopObserver struct{}

func (nopObserver) LoginGranted(Role, DeviceInfo)     {}
func (nopObserver) LoginDenied(DeviceInfo, time.Time) {}
func (nopObserver) LoginRejectedLocked()              {}
func (nopObserver) Heartbeat(error)                   {}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) LoginGranted(role Role, device DeviceInfo) {
	for _, obs := range o {
		obs.LoginGranted(role, device)
	}
}

func (o Observers) LoginDenied(device DeviceInfo, unlockAt time.Time) {
	for _, obs := range o {
		obs.LoginDenied(device, unlockAt)
	}
}

func (o Observers) LoginRejectedLocked() {
	for _, obs := range o {
		obs.LoginRejectedLocked()
	}
}

func (o Observers) Heartbeat(err error) {
	for _, obs := range o {
		obs.Heartbeat(err)
	}
}
