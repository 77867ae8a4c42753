package updater

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/starforge-mobile/datasync/dataset"
	"github.com/starforge-mobile/datasync/dataset/resolver"
	"github.com/starforge-mobile/datasync/remote"
)

// State is the checker's externally visible phase.
type State string

const (
	StateNotChecked  State = "not_checked"
	StateChecking    State = "checking"
	StateNoUpdate    State = "no_update"
	StateHasUpdate   State = "has_update"
	StateCheckFailed State = "check_failed"
)

// DefaultCooldown suppresses redundant checks while the last answer was
// "no update". Failed checks are never throttled.
const DefaultCooldown = 60 * time.Second

// CheckResult is the outcome of one check.
type CheckResult struct {
	State   State
	Record  *remote.ReleaseRecord
	Remote  *dataset.Descriptor // resolved remote descriptor, when HasUpdate
	Current *dataset.Descriptor // authoritative descriptor at check time
}

// Checker runs the update check state machine:
// NotChecked → Checking → {NoUpdate, HasUpdate, CheckFailed}.
// The core carries no wall-clock policy; the cooldown lives in a small gate
// adapter that a forced check bypasses.
type Checker struct {
	mu     sync.Mutex
	state  State
	store  *remote.Client
	res    *resolver.Resolver
	gate   *cooldownGate
	cached *CheckResult
}

func NewChecker(store *remote.Client, res *resolver.Resolver, cooldown time.Duration) *Checker {
	return &Checker{
		state: StateNotChecked,
		store: store,
		res:   res,
		gate:  newCooldownGate(cooldown),
	}
}

func (c *Checker) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClearCooldown forgets the last "no update" answer so the next check hits
// the store again. Called after a successful pipeline run and on reset.
func (c *Checker) ClearCooldown() {
	c.gate.clear()
}

// Check queries the store and compares against the currently authoritative
// descriptor. While the previous answer was NoUpdate and the cooldown window
// is open, the cached result is returned unless force is set. A failed check
// stores nothing, so the next call is never throttled.
func (c *Checker) Check(ctx context.Context, force bool) (*CheckResult, error) {
	c.mu.Lock()
	if !force && c.state == StateNoUpdate && c.gate.active() && c.cached != nil {
		res := c.cached
		c.mu.Unlock()
		return res, nil
	}
	c.state = StateChecking
	c.mu.Unlock()

	result, err := c.check(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = result.State
	switch result.State {
	case StateNoUpdate:
		c.cached = result
		c.gate.mark()
	case StateHasUpdate:
		c.cached = result
	default:
		c.cached = nil
	}
	return result, err
}

func (c *Checker) check(ctx context.Context) (*CheckResult, error) {
	current := c.res.Effective()

	rec, err := c.store.FindLatestEligible(ctx)
	if err != nil {
		return &CheckResult{State: StateCheckFailed, Current: current}, fmt.Errorf("update check: %w", err)
	}
	if rec == nil {
		// Nothing eligible means already current, not a failure.
		return &CheckResult{State: StateNoUpdate, Current: current}, nil
	}

	desc, err := c.store.ResolveDescriptor(ctx, rec)
	if err != nil {
		return &CheckResult{State: StateCheckFailed, Record: rec, Current: current}, fmt.Errorf("update check: %w", err)
	}

	// Either dimension alone being newer reports an update; the pipeline
	// evaluates artifacts independently downstream.
	if desc.Version.Newer(current.Version) || desc.IconVersion > current.IconVersion {
		return &CheckResult{State: StateHasUpdate, Record: rec, Remote: desc, Current: current}, nil
	}
	return &CheckResult{State: StateNoUpdate, Record: rec, Remote: desc, Current: current}, nil
}

// cooldownGate remembers that a check recently answered "no update". Backed
// by a TTL cache so expiry needs no timer bookkeeping here.
type cooldownGate struct {
	c *gocache.Cache
}

const cooldownKey = "last-no-update-check"

func newCooldownGate(ttl time.Duration) *cooldownGate {
	if ttl <= 0 {
		ttl = DefaultCooldown
	}
	return &cooldownGate{c: gocache.New(ttl, ttl)}
}

func (g *cooldownGate) active() bool {
	_, ok := g.c.Get(cooldownKey)
	return ok
}

func (g *cooldownGate) mark() {
	g.c.SetDefault(cooldownKey, time.Now())
}

func (g *cooldownGate) clear() {
	g.c.Delete(cooldownKey)
}
