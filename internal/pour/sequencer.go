package pour

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"potion_master/internal/logger"
	"potion_master/internal/metrics"
	"potion_master/internal/models"

	"github.com/google/uuid"
)

// Default timings.
const (
	DefaultTick          = 50 * time.Millisecond
	DefaultSettleDelay   = time.Second
	DefaultStepTimeout   = 60 * time.Second
	DefaultCleanDuration = 10 * time.Second
	DefaultCleanPause    = 500 * time.Millisecond
)

// Outcome labels for metrics and the journal.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Relays is the relay bank as seen by the sequencer.
type Relays interface {
	SetChannel(idx int, on bool) error
	AllOff()
}

// Scale is the weight sensor as seen by the sequencer.
type Scale interface {
	Tare(ctx context.Context) error
	Poll() (float64, bool)
}

// Publisher receives lifecycle events.
type Publisher interface {
	Publish(kind models.EventKind, payload any)
}

// Assignment maps ingredient ids to relay channels.
type Assignment map[string]int

func (a Assignment) Channel(ingredient string) (int, bool) {
	ch, ok := a[ingredient]
	return ch, ok
}

type Timing struct {
	Tick          time.Duration // weight poll period inside a step
	SettleDelay   time.Duration // pause after tare
	StepTimeout   time.Duration // max time one ingredient may take
	CleanDuration time.Duration // pump run time per channel when cleaning
	CleanPause    time.Duration // pause between pumps when cleaning
}

func (t Timing) withDefaults() Timing {
	if t.Tick <= 0 {
		t.Tick = DefaultTick
	}
	if t.SettleDelay < 0 {
		t.SettleDelay = 0
	}
	if t.StepTimeout <= 0 {
		t.StepTimeout = DefaultStepTimeout
	}
	if t.CleanDuration <= 0 {
		t.CleanDuration = DefaultCleanDuration
	}
	if t.CleanPause < 0 {
		t.CleanPause = 0
	}
	return t
}

type Config struct {
	Channels Assignment
	Timing   Timing
}

type step struct {
	ingredient string
	channel    int
	target     float64
}

// session is one in-flight preparation. prep is guarded by Sequencer.mu;
// cancelled is the cooperative stop flag polled every tick.
type session struct {
	prep      models.Preparation
	plan      []step
	recipe    models.Recipe
	started   time.Time
	cancelled atomic.Bool
}

// Sequencer runs at most one pour session at a time.
type Sequencer struct {
	relays   Relays
	scale    Scale
	pub      Publisher
	channels Assignment
	timing   Timing
	log      *logger.Logger
	metrics  metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	session *session
}

func New(relays Relays, sc Scale, pub Publisher, cfg Config, log *logger.Logger, m metrics.Collector) *Sequencer {
	if m == nil {
		m = metrics.Noop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sequencer{
		relays:   relays,
		scale:    sc,
		pub:      pub,
		channels: cfg.Channels,
		timing:   cfg.Timing.withDefaults(),
		log:      log,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// StartPour validates the recipe, claims the busy slot and pours in the
// background. It returns as soon as the session is accepted.
func (s *Sequencer) StartPour(ctx context.Context, recipe models.Recipe) (string, error) {
	if err := recipe.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return "", models.ErrAlreadyPreparing
	}
	plan, err := s.resolve(recipe)
	if err != nil {
		s.mu.Unlock()
		s.relays.AllOff()
		s.metrics.IncPour(OutcomeRejected)
		s.log.Errorw("pour_rejected", "cocktail", recipe.CocktailID, "err", err)
		s.pub.Publish(models.EventError, models.ErrorPayload{
			Message:   err.Error(),
			Timestamp: time.Now().UnixMilli(),
		})
		return "", err
	}
	sess := newSession(models.ModeRecipe, recipe, plan)
	s.session = sess
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Infow("pour_started", "session", sess.prep.SessionID, "cocktail", recipe.CocktailID, "steps", len(plan))
	go s.runRecipe(sess)
	return sess.prep.SessionID, nil
}

// StartCleaning runs every pump in turn to flush the lines.
func (s *Sequencer) StartCleaning(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return "", models.ErrAlreadyPreparing
	}
	plan := make([]step, models.RelayChannels)
	for ch := range plan {
		plan[ch] = step{ingredient: fmt.Sprintf("channel_%d", ch), channel: ch}
	}
	sess := newSession(models.ModeCleaning, models.Recipe{}, plan)
	s.session = sess
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Infow("cleaning_started", "session", sess.prep.SessionID)
	go s.runCleaning(sess)
	return sess.prep.SessionID, nil
}

// StopPour flags the active session for cancellation and forces every relay
// off. Calling it while idle is not an error.
func (s *Sequencer) StopPour(ctx context.Context) error {
	s.mu.Lock()
	sess := s.session
	first := sess != nil && !sess.cancelled.Swap(true)
	s.mu.Unlock()

	if first {
		s.log.Infow("pour_stop_requested", "session", sess.prep.SessionID)
	}
	s.relays.AllOff()
	return nil
}

// Current returns a copy of the in-flight preparation.
func (s *Sequencer) Current() (models.Preparation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return models.Preparation{}, false
	}
	return snapshot(&s.session.prep), true
}

// Busy reports whether a session is active.
func (s *Sequencer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Close cancels any session, waits for it to unwind and releases the relays.
func (s *Sequencer) Close() {
	s.cancel()
	s.wg.Wait()
	s.relays.AllOff()
}

func (s *Sequencer) resolve(recipe models.Recipe) ([]step, error) {
	plan := make([]step, 0, len(recipe.Ingredients))
	for _, in := range recipe.Ingredients {
		ch, ok := s.channels.Channel(in.Ingredient)
		if !ok || ch < 0 || ch >= models.RelayChannels {
			return nil, fmt.Errorf("%w: %s", models.ErrUnmappedIngredient, in.Ingredient)
		}
		plan = append(plan, step{ingredient: in.Ingredient, channel: ch, target: in.Amount})
	}
	return plan, nil
}

func newSession(mode models.PrepMode, recipe models.Recipe, plan []step) *session {
	now := time.Now()
	steps := make([]models.StepProgress, len(plan))
	for i, st := range plan {
		steps[i] = models.StepProgress{Ingredient: st.ingredient, Channel: st.channel, Target: st.target}
	}
	return &session{
		recipe:  recipe,
		plan:    plan,
		started: now,
		prep: models.Preparation{
			SessionID:  uuid.NewString(),
			CocktailID: recipe.CocktailID,
			Mode:       mode,
			State:      models.PrepIdle,
			TotalSteps: len(plan),
			Steps:      steps,
			StartedAt:  now,
		},
	}
}

func snapshot(p *models.Preparation) models.Preparation {
	out := *p
	out.Steps = make([]models.StepProgress, len(p.Steps))
	copy(out.Steps, p.Steps)
	return out
}

// update mutates the session under the lock and publishes the result.
func (s *Sequencer) update(sess *session, fn func(p *models.Preparation)) {
	s.mu.Lock()
	fn(&sess.prep)
	sess.prep.Progress = progress(sess.prep.Steps)
	snap := snapshot(&sess.prep)
	s.mu.Unlock()

	s.pub.Publish(models.EventPreparationUpdate, snap)
}

func progress(steps []models.StepProgress) float64 {
	if len(steps) == 0 {
		return 0
	}
	done := 0
	for _, st := range steps {
		if st.Completed {
			done++
		}
	}
	return float64(done) * 100 / float64(len(steps))
}

// wait sleeps d in tick-sized slices; false means the session was stopped.
func (s *Sequencer) wait(sess *session, d time.Duration) bool {
	deadline := time.Now().Add(d)
	t := time.NewTicker(s.timing.Tick)
	defer t.Stop()
	for time.Now().Before(deadline) {
		if sess.cancelled.Load() {
			return false
		}
		select {
		case <-s.ctx.Done():
			sess.cancelled.Store(true)
			return false
		case <-t.C:
		}
	}
	return !sess.cancelled.Load()
}
