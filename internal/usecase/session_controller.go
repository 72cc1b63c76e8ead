package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"crm-hub/internal/domain"
	"crm-hub/internal/metrics"
)

// ErrControllerClosed is returned by operations on a closed controller.
var ErrControllerClosed = errors.New("session controller closed")

// cleanupTimeout bounds the backend sign-out and storage clear after a sign-out.
const cleanupTimeout = 10 * time.Second

// ControllerConfig tunes a SessionController.
type ControllerConfig struct {
	// ForcedRedirectDelay is the pause before RedirectTo is published after a forced sign-out.
	ForcedRedirectDelay time.Duration
	// LoginPath is published as RedirectTo after a forced sign-out.
	LoginPath string
}

// DefaultControllerConfig returns a 1.5s forced redirect to /login.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		ForcedRedirectDelay: 1500 * time.Millisecond,
		LoginPath:           "/login",
	}
}

// SessionDeps are the collaborators of one client's SessionController.
type SessionDeps struct {
	Backend  domain.Backend
	Cache    domain.SessionCache
	Resolver domain.ProfileResolver
	// Storage is cleared on sign-out. Optional.
	Storage domain.ClientStorage
}

type job func(ctx context.Context)

// SessionController owns the identity and profile of one client.
//
// Initialisation, auth events and sign-in run as jobs on a single worker in
// FIFO order. Sign-out takes effect immediately and bumps an epoch; jobs
// enqueued before it never commit their results, the running job's context is
// cancelled, and auth events that occurred before it are dropped.
type SessionController struct {
	clientID string
	deps     SessionDeps
	cfg      ControllerConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	queueMu sync.Mutex
	queue   []job
	wake    chan struct{}

	// writeMu serialises commits, sign-outs and cache writes.
	writeMu       sync.Mutex
	epoch         uint64
	epochCtx      context.Context
	epochCancel   context.CancelFunc
	signedOutAt   time.Time
	cleanupDone   chan struct{}
	redirectTimer *time.Timer
	now           func() time.Time

	// mu guards the published state and its watchers.
	mu       sync.Mutex
	state    domain.SessionState
	watchers map[chan domain.SessionState]struct{}
	closed   bool

	sub       domain.Subscription
	startOnce sync.Once
	closeOnce sync.Once
	started   bool
}

// NewSessionController creates a controller for clientID. Start must be called
// before it does any work.
func NewSessionController(clientID string, deps SessionDeps, cfg ControllerConfig, logger *slog.Logger) *SessionController {
	ctx, cancel := context.WithCancel(context.Background())
	epochCtx, epochCancel := context.WithCancel(ctx)
	cleanupDone := make(chan struct{})
	close(cleanupDone)
	return &SessionController{
		clientID:    clientID,
		deps:        deps,
		cfg:         cfg,
		logger:      logger.With("component", "session_controller", "client_id", clientID),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		wake:        make(chan struct{}, 1),
		epochCtx:    epochCtx,
		epochCancel: epochCancel,
		cleanupDone: cleanupDone,
		now:         time.Now,
		state:       domain.SessionState{Phase: domain.PhaseUninitialized, Loading: true},
		watchers:    make(map[chan domain.SessionState]struct{}),
	}
}

// ClientID returns the client the controller belongs to.
func (c *SessionController) ClientID() string {
	return c.clientID
}

// Start runs initialisation and subscribes to auth events for the lifetime of
// the controller. Calls after the first are no-ops.
func (c *SessionController) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.update(func(s *domain.SessionState) {
			s.Phase = domain.PhaseLoading
			s.Loading = true
		})

		c.enqueue(c.initialise)

		sub, err := c.deps.Backend.SubscribeAuthEvents(ctx, c.onAuthEvent)
		if err != nil {
			c.logger.WarnContext(ctx, "auth event subscription failed", "error", err)
		}

		c.mu.Lock()
		c.sub = sub
		c.started = true
		c.mu.Unlock()

		metrics.ActiveControllers.Inc()
		go c.run()
	})
}

// Close stops the worker, drops the auth event subscription and closes all
// watch channels. Work in flight is cancelled and its result discarded.
func (c *SessionController) Close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		sub, started := c.sub, c.started
		c.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
		if started {
			<-c.done
			metrics.ActiveControllers.Dec()
		}

		c.writeMu.Lock()
		if c.redirectTimer != nil {
			c.redirectTimer.Stop()
		}
		c.writeMu.Unlock()

		c.mu.Lock()
		c.closed = true
		for ch := range c.watchers {
			delete(c.watchers, ch)
			close(ch)
		}
		c.mu.Unlock()
	})
}

// State returns the current snapshot.
func (c *SessionController) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Watch returns a channel carrying the current state followed by every change
// until ctx is done or the controller closes. Slow readers only see the latest state.
func (c *SessionController) Watch(ctx context.Context) <-chan domain.SessionState {
	ch := make(chan domain.SessionState, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch
	}
	ch <- c.state
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-c.ctx.Done():
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.watchers[ch]; ok {
			delete(c.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

// SignIn authenticates with the backend and resolves the profile once.
// An inactive profile signs the client out again and yields
// ErrAccountDeactivated. A failed resolution is not an error: loading stays
// true until a later auth event settles it. A sign-out that overtakes the
// sign-in yields domain.ErrNoSession.
func (c *SessionController) SignIn(ctx context.Context, email, password string) error {
	result := make(chan error, 1)
	e := c.currentEpoch()

	c.enqueue(func(jobCtx context.Context) {
		result <- c.signIn(jobCtx, e, email, password)
	})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerClosed
	}
}

func (c *SessionController) signIn(ctx context.Context, e uint64, email, password string) error {
	// A pending revocation would otherwise clear the new session token.
	err := c.awaitCleanup(ctx)
	if c.currentEpoch() != e {
		return domain.ErrNoSession
	}
	if err != nil {
		return err
	}

	identity, err := c.deps.Backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		if c.currentEpoch() != e {
			return domain.ErrNoSession
		}
		return err
	}

	if !c.commit(e, func() {
		c.deps.Cache.SetIdentity(ctx, identity)
		c.update(func(s *domain.SessionState) {
			*s = domain.SessionState{Phase: domain.PhaseLoading, Identity: identity, Loading: true}
		})
	}) {
		// Its SIGNED_IN event may postdate the sign-out that overtook it.
		c.writeMu.Lock()
		c.signOutLocked(ctx, "overtaken")
		c.startCleanupLocked(ctx)
		c.writeMu.Unlock()
		return domain.ErrNoSession
	}

	profile, err := c.deps.Resolver.Resolve(ctx, identity.ID)
	if err != nil {
		if c.currentEpoch() != e {
			return domain.ErrNoSession
		}
		c.logger.WarnContext(ctx, "profile resolution after sign-in failed; awaiting auth event",
			"identity_id", identity.ID, "error", err)
		return nil
	}

	if profile != nil && !profile.IsActive {
		c.logger.InfoContext(ctx, "sign-in refused for deactivated profile", "identity_id", identity.ID)
		c.endSession(ctx, e, "deactivated", false)
		return domain.ErrAccountDeactivated
	}

	if !c.commit(e, func() {
		c.deps.Cache.SetProfile(ctx, profile)
		c.update(func(s *domain.SessionState) {
			*s = domain.SessionState{Phase: domain.PhaseAuthenticated, Identity: identity, Profile: profile}
		})
	}) {
		return domain.ErrNoSession
	}
	return nil
}

// SignUp registers a new identity and creates its employee profile on a best-effort basis.
func (c *SessionController) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*domain.Identity, error) {
	identity, err := c.deps.Backend.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, err
	}

	profile := &domain.Profile{
		IdentityID: identity.ID,
		Name:       metadata["name"],
		Role:       domain.RoleEmployee,
		Position:   metadata["position"],
		Department: metadata["department"],
		Location:   metadata["location"],
		Phone:      metadata["phone"],
		IsActive:   true,
	}
	if err := c.deps.Backend.CreateProfile(ctx, profile); err != nil {
		c.logger.WarnContext(ctx, "profile creation after sign-up failed",
			"identity_id", identity.ID, "error", err)
	}
	return identity, nil
}

// SignOut clears the identity, profile and cache immediately and cancels the
// running job. Revoking the backend session and clearing client storage happen
// in the background, also when the controller is closed first. Calling it
// repeatedly is safe.
func (c *SessionController) SignOut(ctx context.Context) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.signOutLocked(ctx, "user")
	c.startCleanupLocked(ctx)
}

// endSession signs out when no sign-out happened since epoch e. A forced
// end publishes RedirectTo after the configured delay.
func (c *SessionController) endSession(ctx context.Context, e uint64, trigger string, redirect bool) {
	c.writeMu.Lock()
	if c.epoch != e {
		c.writeMu.Unlock()
		return
	}
	next := c.signOutLocked(ctx, trigger)
	if redirect {
		c.redirectTimer = time.AfterFunc(c.cfg.ForcedRedirectDelay, func() {
			c.writeMu.Lock()
			defer c.writeMu.Unlock()
			if c.epoch != next {
				return
			}
			c.update(func(s *domain.SessionState) { s.RedirectTo = c.cfg.LoginPath })
		})
	}
	c.startCleanupLocked(ctx)
	c.writeMu.Unlock()
}

// signOutLocked requires writeMu. It returns the new epoch.
func (c *SessionController) signOutLocked(ctx context.Context, trigger string) uint64 {
	c.epoch++
	c.signedOutAt = c.now()
	if c.redirectTimer != nil {
		c.redirectTimer.Stop()
		c.redirectTimer = nil
	}
	c.deps.Cache.Clear(context.WithoutCancel(ctx))
	c.update(func(s *domain.SessionState) {
		*s = domain.SessionState{Phase: domain.PhaseUnauthenticated}
	})

	c.epochCancel()
	c.epochCtx, c.epochCancel = context.WithCancel(c.ctx)

	metrics.RecordSignOut(trigger)
	c.logger.InfoContext(ctx, "signed out", "trigger", trigger)
	return c.epoch
}

// startCleanupLocked requires writeMu. Cleanups run one after another and
// outlive Close.
func (c *SessionController) startCleanupLocked(ctx context.Context) {
	prev := c.cleanupDone
	done := make(chan struct{})
	c.cleanupDone = done

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		<-prev
		c.cleanup(ctx)
	}()
}

// awaitCleanup blocks until every cleanup started so far has finished.
func (c *SessionController) awaitCleanup(ctx context.Context) error {
	c.writeMu.Lock()
	done := c.cleanupDone
	c.writeMu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SessionController) cleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	if err := c.deps.Backend.SignOut(ctx); err != nil {
		c.logger.WarnContext(ctx, "backend sign-out failed", "error", err)
	}
	if c.deps.Storage != nil {
		if err := c.deps.Storage.Clear(ctx); err != nil {
			c.logger.WarnContext(ctx, "client storage clear failed", "error", err)
		}
	}
}

// initialise adopts a valid cached session or asks the backend for the current identity.
func (c *SessionController) initialise(ctx context.Context) {
	e := c.currentEpoch()

	if c.deps.Cache.IsValid(ctx) {
		identity, _ := c.deps.Cache.Identity(ctx)
		profile, _ := c.deps.Cache.Profile(ctx)
		if identity != nil && profile != nil {
			metrics.RecordCacheLookup("hit")
			c.commit(e, func() {
				c.update(func(s *domain.SessionState) {
					*s = domain.SessionState{Phase: domain.PhaseAuthenticated, Identity: identity, Profile: profile}
				})
			})
			return
		}
	}
	metrics.RecordCacheLookup("miss")

	identity, err := c.deps.Backend.CurrentIdentity(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to fetch current identity", "error", err)
	}
	if identity == nil {
		c.commit(e, func() {
			c.update(func(s *domain.SessionState) {
				*s = domain.SessionState{Phase: domain.PhaseUnauthenticated}
			})
		})
		return
	}

	c.adoptIdentity(ctx, e, identity)
}

// onAuthEvent queues event. Identity broadcasts are accepted only for the
// identity the client currently holds. Events that occurred before the last
// sign-out are dropped.
func (c *SessionController) onAuthEvent(event domain.AuthEvent) {
	if event.ClientID == "" {
		current := c.State().Identity
		if current == nil || current.ID != event.IdentityID {
			return
		}
	}

	c.writeMu.Lock()
	e, signedOutAt := c.epoch, c.signedOutAt
	c.writeMu.Unlock()
	if !signedOutAt.IsZero() && !event.OccurredAt.After(signedOutAt) {
		c.logger.Debug("dropping auth event older than the last sign-out",
			"kind", event.Kind, "occurred_at", event.OccurredAt)
		return
	}

	c.enqueue(func(ctx context.Context) { c.handleEvent(ctx, e, event) })
}

func (c *SessionController) handleEvent(ctx context.Context, e uint64, event domain.AuthEvent) {
	c.logger.DebugContext(ctx, "auth event", "kind", event.Kind)

	if event.Kind == domain.AuthEventSignedIn && event.Session != nil {
		s := c.State()
		if s.Phase == domain.PhaseAuthenticated && s.Identity != nil && s.Identity.ID == event.Session.ID {
			return
		}
	}

	if event.Session == nil {
		c.commit(e, func() {
			c.deps.Cache.Clear(ctx)
			c.update(func(s *domain.SessionState) {
				*s = domain.SessionState{Phase: domain.PhaseUnauthenticated}
			})
		})
		return
	}
	c.adoptIdentity(ctx, e, event.Session)
}

// adoptIdentity caches identity, resolves its profile and settles the state.
func (c *SessionController) adoptIdentity(ctx context.Context, e uint64, identity *domain.Identity) {
	if !c.commit(e, func() {
		c.deps.Cache.SetIdentity(ctx, identity)
		c.update(func(s *domain.SessionState) {
			*s = domain.SessionState{Phase: domain.PhaseLoading, Identity: identity, Loading: true}
		})
	}) {
		return
	}

	profile, err := c.deps.Resolver.Resolve(ctx, identity.ID)
	switch {
	case err == nil:
		c.commit(e, func() {
			c.deps.Cache.SetProfile(ctx, profile)
			c.update(func(s *domain.SessionState) {
				*s = domain.SessionState{Phase: domain.PhaseAuthenticated, Identity: identity, Profile: profile}
			})
		})
	case errors.Is(err, domain.ErrResolutionTimeout):
		c.logger.WarnContext(ctx, "profile resolution timed out; forcing sign-out",
			"identity_id", identity.ID, "error", err)
		c.endSession(ctx, e, "forced", true)
	default:
		if ctx.Err() != nil {
			return
		}
		c.logger.WarnContext(ctx, "profile resolution failed",
			"identity_id", identity.ID, "error", err)
		c.commit(e, func() {
			c.update(func(s *domain.SessionState) {
				*s = domain.SessionState{Phase: domain.PhaseUnauthenticated, Identity: identity}
			})
		})
	}
}

// commit runs fn when no sign-out happened since epoch e and reports whether it ran.
func (c *SessionController) commit(e uint64, fn func()) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.epoch != e || c.ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

// jobContext is cancelled by the next sign-out.
func (c *SessionController) jobContext() context.Context {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.epochCtx
}

func (c *SessionController) currentEpoch() uint64 {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.epoch
}

// update mutates the state and notifies watchers.
func (c *SessionController) update(fn func(s *domain.SessionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.state)
	for ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- c.state
	}
}

func (c *SessionController) enqueue(j job) {
	c.queueMu.Lock()
	c.queue = append(c.queue, j)
	c.queueMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *SessionController) next() (job, bool) {
	for {
		c.queueMu.Lock()
		if len(c.queue) > 0 {
			j := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.queueMu.Unlock()
			return j, true
		}
		c.queueMu.Unlock()

		select {
		case <-c.wake:
		case <-c.ctx.Done():
			return nil, false
		}
	}
}

func (c *SessionController) run() {
	defer close(c.done)
	for {
		if c.ctx.Err() != nil {
			return
		}
		j, ok := c.next()
		if !ok {
			return
		}
		j(c.jobContext())
	}
}
