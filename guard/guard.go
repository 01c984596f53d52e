package guard

import (
	"context"
	"sync"

	core "github.com/DomeLiquid/paycore"
	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type Guard struct {
	requests core.PaymentRequestStore
	attempts core.VerificationAttemptStore
	settings core.SettingsProvider
	clk      clock.Clock

	mu     sync.Mutex
	owners map[string]*ownerLock
}

type ownerLock struct {
	sem  chan struct{}
	refs int
}

func New(requests core.PaymentRequestStore, attempts core.VerificationAttemptStore, settings core.SettingsProvider, clk clock.Clock) *Guard {
	return &Guard{
		requests: requests,
		attempts: attempts,
		settings: settings,
		clk:      clk,
		owners:   map[string]*ownerLock{},
	}
}

// IsDuplicate reports whether another request is already verified with txHash.
func (g *Guard) IsDuplicate(ctx context.Context, txHash string, excludingId string) (bool, error) {
	claimed, err := g.requests.IsTxHashClaimed(ctx, txHash, excludingId)
	if err != nil {
		return false, errors.Wrap(err, "check tx hash claim")
	}
	return claimed, nil
}

// CheckRateLimit returns false once the owner's user attempts for the current UTC day reach
// the configured ceiling. Every outcome counts.
func (g *Guard) CheckRateLimit(ctx context.Context, owner string) (bool, error) {
	limit := g.settings.Settings().RateLimitPerUserPerDay
	if limit <= 0 {
		return true, nil
	}
	count, err := g.attempts.CountOwnerAttempts(ctx, owner, core.AttemptSourceUser, core.StartOfDay(g.clk.Now()))
	if err != nil {
		return false, errors.Wrap(err, "count owner attempts")
	}
	return count < limit, nil
}

// LockOwner serializes an owner's rate-limited attempts. Hold it from CheckRateLimit until the
// attempt row is written. Waiting ends with ctx.
func (g *Guard) LockOwner(ctx context.Context, owner string) (unlock func(), err error) {
	g.mu.Lock()
	l, ok := g.owners[owner]
	if !ok {
		l = &ownerLock{sem: make(chan struct{}, 1)}
		g.owners[owner] = l
	}
	l.refs++
	g.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		g.release(owner, l)
		return nil, errors.Wrap(ctx.Err(), "wait for owner lock")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			g.release(owner, l)
		})
	}, nil
}

func (g *Guard) release(owner string, l *ownerLock) {
	g.mu.Lock()
	defer g.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(g.owners, owner)
	}
}

func (g *Guard) lockedOwners() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.owners)
}
