package pdfquiz

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options configures a Controller
type Options struct {
	// TickInterval is the countdown period; one second when zero.
	TickInterval time.Duration
	// TimeLimit preselects the minutes shown in Timing; DefaultTimeLimit when out of range.
	TimeLimit    int
	Logger       *zap.SugaredLogger
}

// Controller owns the quiz workflow state machine:
// Intake -> Timing -> Pending -> Answering -> Scoring.
//
// Every method is safe for concurrent use; all state changes happen under one
// lock. Confirming a time limit starts two tasks bound to a per-attempt context:
// the generation pipeline and the countdown ticker. Questions are revealed when
// both are done. Results from an attempt that is no longer current are dropped.
type Controller struct {
	mu           sync.Mutex
	gen          Generator
	log          *zap.SugaredLogger
	tickInterval time.Duration

	phase     Phase
	doc       *Document
	timeLimit int
	session   *QuizSession
	clock     *SessionClock
	current   int
	generated bool
	lastErr   error

	attempt uint64
	cancel  context.CancelFunc
	closed  bool

	subs map[chan View]struct{}
}

// NewController creates a controller in the Intake phase
func NewController(gen Generator, opts Options) *Controller {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = Logger()
	}
	if opts.TimeLimit < MinTimeLimit || opts.TimeLimit > MaxTimeLimit {
		opts.TimeLimit = DefaultTimeLimit
	}
	return &Controller{
		gen:          gen,
		log:          opts.Logger,
		tickInterval: opts.TickInterval,
		phase:        PhaseIntake,
		timeLimit:    opts.TimeLimit,
		subs:         make(map[chan View]struct{}),
	}
}

// Phase returns the active phase
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// TimeLimit returns the last confirmed time limit, or the default.
func (c *Controller) TimeLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLimit
}

// LastError returns the pipeline failure that sent the workflow back to Timing.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError dismisses the last pipeline failure.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr != nil {
		c.lastErr = nil
		c.notifyLocked()
	}
}

// Session returns a copy of the current quiz session, or nil.
func (c *Controller) Session() *QuizSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	cp.Questions = make([]Question, len(c.session.Questions))
	for i, q := range c.session.Questions {
		cp.Questions[i] = q.clone()
	}
	cp.Answers = append([]Answer(nil), c.session.Answers...)
	return &cp
}

// SelectDocument stores a document and moves to Timing. Invalid documents are
// rejected with InvalidInput and leave the phase unchanged.
func (c *Controller) SelectDocument(doc Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIntake {
		return ErrInvalidTransition
	}
	if err := ValidateDocument(doc); err != nil {
		c.log.Infow("document rejected", "name", doc.Name, "content_type", doc.ContentType)
		return err
	}
	c.doc = &doc
	c.lastErr = nil
	c.setPhaseLocked(PhaseTiming)
	c.notifyLocked()
	return nil
}

// ConfirmTimeLimit starts generation and the countdown for a limit in minutes.
func (c *Controller) ConfirmTimeLimit(minutes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseTiming || c.closed {
		return ErrInvalidTransition
	}
	if minutes < MinTimeLimit || minutes > MaxTimeLimit {
		return InvalidInput("please enter a valid time between %d and %d minutes", MinTimeLimit, MaxTimeLimit)
	}

	c.timeLimit = minutes
	c.session = NewQuizSession(minutes)
	c.clock = NewSessionClock(minutes)
	c.clock.Start()
	c.current = 0
	c.generated = false
	c.lastErr = nil
	c.attempt++

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	attempt := c.attempt
	doc := *c.doc

	c.setPhaseLocked(PhasePending)
	c.log.Infow("generation requested", "attempt", attempt, "document", doc.Name, "minutes", minutes)

	go c.runGeneration(ctx, attempt, doc)
	go c.runClock(ctx, attempt)

	c.notifyLocked()
	return nil
}

func (c *Controller) runGeneration(ctx context.Context, attempt uint64, doc Document) {
	questions, err := c.gen.Generate(ctx, doc)
	c.finishGeneration(attempt, questions, err)
}

func (c *Controller) finishGeneration(attempt uint64, questions []Question, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || errors.Is(err, context.Canceled) {
		c.log.Debugw("discarding cancelled generation result", "attempt", attempt)
		return
	}
	if attempt != c.attempt || c.phase != PhasePending {
		c.log.Debugw("discarding stale generation result", "attempt", attempt, "current", c.attempt, "phase", c.phase.String())
		return
	}
	if err == nil && len(questions) == 0 {
		err = newError(KindMalformedResponse, nil, "the question service returned no questions")
	}
	if err != nil {
		c.failLocked(err)
		c.notifyLocked()
		return
	}

	c.session.Populate(questions)
	c.generated = true
	c.log.Infow("questions ready", "attempt", attempt, "count", len(questions))
	c.maybeRevealLocked()
	c.notifyLocked()
}

func (c *Controller) runClock(ctx context.Context, attempt uint64) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.tickAttempt(attempt) {
				return
			}
		}
	}
}

// tickAttempt advances the clock for attempt and reports whether the attempt is still current.
func (c *Controller) tickAttempt(attempt uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.attempt || c.phase != PhasePending {
		return false
	}
	c.tickLocked()
	c.notifyLocked()
	return true
}

// Tick advances the countdown by one second. It is a no-op outside Pending.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhasePending {
		return
	}
	c.tickLocked()
	c.notifyLocked()
}

func (c *Controller) tickLocked() {
	if c.clock.Tick() {
		c.log.Debugw("countdown expired", "attempt", c.attempt)
	}
	c.maybeRevealLocked()
}

func (c *Controller) maybeRevealLocked() {
	if c.phase != PhasePending || !c.generated || !c.clock.Expired() {
		return
	}
	c.stopTasksLocked()
	c.current = 0
	c.setPhaseLocked(PhaseAnswering)
}

// PauseClock pauses the countdown. Generation keeps running.
func (c *Controller) PauseClock() error {
	return c.clockControl(func(clock *SessionClock) { clock.Pause() })
}

// ResumeClock continues the countdown from where it was paused.
func (c *Controller) ResumeClock() error {
	return c.clockControl(func(clock *SessionClock) { clock.Resume() })
}

// RestartClock resets the countdown to the full time limit.
func (c *Controller) RestartClock() error {
	return c.clockControl(func(clock *SessionClock) { clock.Restart() })
}

func (c *Controller) clockControl(fn func(*SessionClock)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhasePending {
		return ErrInvalidTransition
	}
	fn(c.clock)
	c.maybeRevealLocked()
	c.notifyLocked()
	return nil
}

// Cancel abandons the in-flight attempt and returns to Timing.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhasePending {
		return ErrInvalidTransition
	}
	c.stopTasksLocked()
	c.session = nil
	c.clock = nil
	c.generated = false
	c.setPhaseLocked(PhaseTiming)
	c.notifyLocked()
	return nil
}

// SelectOption records option for the current question.
func (c *Controller) SelectOption(option int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseAnswering {
		return ErrInvalidTransition
	}
	if err := c.session.SetAnswer(c.current, option); err != nil {
		return err
	}
	c.notifyLocked()
	return nil
}

// Next moves to the following question; past the last one it finishes the quiz.
func (c *Controller) Next() error {
	return c.advance()
}

// Skip moves on without touching the current answer slot.
func (c *Controller) Skip() error {
	return c.advance()
}

func (c *Controller) advance() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseAnswering {
		return ErrInvalidTransition
	}
	if c.current < len(c.session.Questions)-1 {
		c.current++
	} else {
		c.finishLocked()
	}
	c.notifyLocked()
	return nil
}

// Previous moves back one question; at the first question it does nothing.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseAnswering {
		return ErrInvalidTransition
	}
	if c.current > 0 {
		c.current--
		c.notifyLocked()
	}
	return nil
}

// Finish freezes the answers and moves to Scoring.
func (c *Controller) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseAnswering {
		return ErrInvalidTransition
	}
	c.finishLocked()
	c.notifyLocked()
	return nil
}

func (c *Controller) finishLocked() {
	c.session.Freeze()
	c.setPhaseLocked(PhaseScoring)
	score := ScoreSession(c.session)
	c.log.Infow("quiz finished",
		"session", c.session.ID,
		"correct", score.Correct,
		"attempted", score.Attempted,
		"total", score.Total,
	)
}

// Result scores the frozen session.
func (c *Controller) Result() (Score, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseScoring {
		return Score{}, ErrInvalidTransition
	}
	return ScoreSession(c.session), nil
}

// NewQuestionSet keeps the document and returns to Timing for a fresh set.
func (c *Controller) NewQuestionSet() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseScoring {
		return ErrInvalidTransition
	}
	c.session = nil
	c.clock = nil
	c.current = 0
	c.setPhaseLocked(PhaseTiming)
	c.notifyLocked()
	return nil
}

// NewDocument discards the document and session and returns to Intake.
func (c *Controller) NewDocument() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseScoring {
		return ErrInvalidTransition
	}
	c.doc = nil
	c.session = nil
	c.clock = nil
	c.current = 0
	c.setPhaseLocked(PhaseIntake)
	c.notifyLocked()
	return nil
}

// Close cancels running tasks and ends all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTasksLocked()
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}

func (c *Controller) failLocked(err error) {
	if KindOf(err) == "" {
		err = newError(KindServiceUnavailable, err, "failed to generate questions")
	}
	c.log.Warnw("generation failed", "attempt", c.attempt, "kind", string(KindOf(err)), "error", err)
	c.stopTasksLocked()
	c.lastErr = err
	c.session = nil
	c.clock = nil
	c.generated = false
	c.setPhaseLocked(PhaseTiming)
}

func (c *Controller) stopTasksLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) setPhaseLocked(p Phase) {
	if c.phase == p {
		return
	}
	c.log.Infow("phase changed", "from", c.phase.String(), "to", p.String(), "attempt", c.attempt)
	c.phase = p
}

// Subscribe returns a channel that receives a View after every state change,
// starting with the current one. Slow readers only see the latest views. The
// caller must invoke the returned cancel function.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	ch <- c.viewLocked()
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (c *Controller) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	v := c.viewLocked()
	for ch := range c.subs {
		select {
		case ch <- v:
		default:
			// drop the oldest pending view to make room
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}
