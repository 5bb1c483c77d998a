package guard

import (
	"context"
	"sync"
	"time"

	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

const addressKeyPrefix = "addr:"

// AddressLocks holds lockouts per IP address, shared by every guard. A
// client that drops its cookie still hits the lockout of its address.
// Records live in the same StateStore as the client records.
type AddressLocks struct {
	state  StateStore
	logger *logger.Logger

	mu    sync.Mutex
	until map[string]time.Time
}

func NewAddressLocks(state StateStore, log *logger.Logger) *AddressLocks {
	if log == nil {
		log = logger.NewNop()
	}
	return &AddressLocks{
		state:  state,
		logger: log.Named("address_locks"),
		until:  make(map[string]time.Time),
	}
}

// LockedUntil returns when the lockout of ip ends, or the zero time when ip
// is not locked at now. Store failures are logged and treated as unlocked.
func (a *AddressLocks) LockedUntil(ctx context.Context, ip string, now time.Time) time.Time {
	if a == nil || ip == "" {
		return time.Time{}
	}

	a.mu.Lock()
	until, ok := a.until[ip]
	if ok && !now.Before(until) {
		delete(a.until, ip)
		ok = false
	}
	a.mu.Unlock()
	if ok {
		return until
	}

	// Another instance may have locked the address.
	rec, err := a.state.Load(ctx, addressKeyPrefix+ip)
	if err != nil {
		a.logger.Error("Failed to load address lockout", "ip", ip, "error", err)
		return time.Time{}
	}
	if rec.UnlockAt.IsZero() {
		return time.Time{}
	}
	if !now.Before(rec.UnlockAt) {
		if err := a.state.Delete(ctx, addressKeyPrefix+ip); err != nil {
			a.logger.Warn("Failed to delete expired address lockout", "ip", ip, "error", err)
		}
		return time.Time{}
	}

	a.mu.Lock()
	a.until[ip] = rec.UnlockAt
	a.mu.Unlock()
	return rec.UnlockAt
}

// Lock records a lockout of ip ending at unlockAt. An earlier unlockAt never
// shortens a running lockout.
func (a *AddressLocks) Lock(ctx context.Context, ip string, unlockAt, now time.Time) {
	if a == nil || ip == "" {
		return
	}

	a.mu.Lock()
	for addr, until := range a.until {
		if !now.Before(until) {
			delete(a.until, addr)
		}
	}
	if current, ok := a.until[ip]; ok && current.After(unlockAt) {
		a.mu.Unlock()
		return
	}
	a.until[ip] = unlockAt
	a.mu.Unlock()

	if err := a.state.Save(ctx, addressKeyPrefix+ip, Record{UnlockAt: unlockAt}); err != nil {
		a.logger.Error("Failed to persist address lockout", "ip", ip, "error", err)
	}
}

// Len returns the number of addresses currently held in memory.
func (a *AddressLocks) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.until)
}
