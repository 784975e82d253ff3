package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/core/errorstore"
	"github.com/vietddude/errwatch/internal/infra/storage"
	"github.com/vietddude/errwatch/internal/pipeline/metrics"
)

// Context describes the failing operation.
type Context struct {
	AgentID       string
	TaskID        string
	FilePath      string
	RetryCount    int
	Category      domain.ErrorKind // terminal, build, runtime, test or empty
	CorrelationID string
}

// ErrorSink is the part of the error store the engine uses.
type ErrorSink interface {
	Append(ctx context.Context, rec domain.ErrorRecord) domain.ErrorRecord
	AnalyzePatterns(ctx context.Context, since time.Time) (*domain.PatternAnalysis, error)
}

// HealthRecorder receives escalations for the failing agent.
type HealthRecorder interface {
	RecordEscalation(ctx context.Context, agentID string) error
}

// Notifier publishes escalations outside the process.
type Notifier interface {
	Publish(ctx context.Context, action *domain.RecoveryAction) error
}

// TuneConfig controls ImproveStrategies.
type TuneConfig struct {
	Window         time.Duration
	MinOccurrences int
	MaxRetries     int
	Delay          time.Duration
}

func DefaultTuneConfig() TuneConfig {
	return TuneConfig{
		Window:         7 * 24 * time.Hour,
		MinOccurrences: 5,
		MaxRetries:     2,
		Delay:          5 * time.Second,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategies replaces the default strategy table.
func WithStrategies(strategies ...Strategy) Option {
	return func(e *Engine) {
		e.strategies = strategies
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

func WithTuneConfig(cfg TuneConfig) Option {
	return func(e *Engine) {
		e.tune = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCacheDir sets the directory cleared by the default cache fallback.
func WithCacheDir(dir string) Option {
	return func(e *Engine) {
		e.cacheDir = dir
	}
}

// WithWait replaces the retry wait, for tests.
func WithWait(wait func(ctx context.Context, d time.Duration)) Option {
	return func(e *Engine) {
		e.wait = wait
	}
}

// Engine decides how a live failure should be handled.
type Engine struct {
	sink     ErrorSink
	health   HealthRecorder
	actions  storage.RecoveryActionRepository
	notifier Notifier
	tune     TuneConfig
	cacheDir string
	wait     func(ctx context.Context, d time.Duration)
	logger   *slog.Logger
	now      func() time.Time

	strategies []Strategy
	mu         sync.RWMutex
}

// NewEngine creates a recovery engine.
func NewEngine(
	sink ErrorSink,
	health HealthRecorder,
	actions storage.RecoveryActionRepository,
	opts ...Option,
) *Engine {
	e := &Engine{
		sink:    sink,
		health:  health,
		actions: actions,
		tune:    DefaultTuneConfig(),
		wait:    sleepCtx,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategies == nil {
		e.strategies = DefaultStrategies(e.cacheDir)
	}
	e.logger = e.logger.With("component", "recovery")
	metrics.RecoveryStrategies.Set(float64(len(e.strategies)))
	return e
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Strategies returns a copy of the current table.
func (e *Engine) Strategies() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Strategy, len(e.strategies))
	copy(out, e.strategies)
	return out
}

// Actions returns the retained recovery decisions, oldest first.
func (e *Engine) Actions(ctx context.Context) ([]*domain.RecoveryAction, error) {
	return e.actions.List(ctx)
}

// HandleError decides what to do about err. It always returns an action;
// a retry action is handed back to the caller, who owns the re-invocation.
func (e *Engine) HandleError(ctx context.Context, err error, rc Context) *domain.RecoveryAction {
	if err == nil {
		err = errors.New("unknown error")
	}
	msg := err.Error()
	if rc.CorrelationID == "" {
		rc.CorrelationID = errorstore.CorrelationID(msg, rc.AgentID)
	}

	switch rc.Category {
	case domain.KindTerminal:
		cause := terminalRootCause(strings.ToLower(msg))
		e.record(ctx, rc, domain.KindTerminal, domain.SeverityCritical,
			fmt.Sprintf("Terminal command failed: %s (root cause: %s)", msg, cause))
		return e.escalate(ctx, msg, rc, "terminal failure: "+cause)

	case domain.KindBuild, domain.KindTest:
		e.record(ctx, rc, rc.Category, domain.SeverityCritical,
			fmt.Sprintf("%s failure blocks downstream work: %s", rc.Category, msg))
		return e.escalate(ctx, msg, rc, string(rc.Category)+" failure must be fixed before continuing")

	case domain.KindRuntime:
		// retry count is deliberately ignored for runtime failures
		e.record(ctx, rc, domain.KindRuntime, domain.SeverityHigh, "Runtime failure: "+msg)
		return e.escalate(ctx, msg, rc, "runtime failure")
	}

	strategy, ok := e.match(err, strings.ToLower(msg))
	if !ok {
		return e.escalate(ctx, msg, rc, "no recovery strategy matches")
	}

	switch strategy.Action {
	case domain.ActionRetry:
		attempt := rc.RetryCount + 1
		if attempt > strategy.MaxRetries {
			return e.escalate(ctx, msg, rc,
				fmt.Sprintf("retry budget exhausted after %d attempts (%s)", strategy.MaxRetries, strategy.Name))
		}
		e.wait(ctx, strategy.Delay)
		action := e.newAction(msg, rc, domain.ActionRetry)
		action.RetryCount = attempt
		action.Message = fmt.Sprintf("retry %d/%d after %s (%s)", attempt, strategy.MaxRetries, strategy.Delay, strategy.Name)
		return e.finish(ctx, action)

	case domain.ActionFallback:
		res, ferr := runFallback(ctx, strategy.Fallback, err, rc)
		if ferr != nil {
			e.logger.Warn("Fallback failed", "strategy", strategy.Name, "error", ferr)
			return e.escalate(ctx, msg, rc, ferr.Error())
		}
		e.record(ctx, rc, domain.KindRuntime, domain.SeverityMedium,
			fmt.Sprintf("Recovered via fallback %s: %s", strategy.Name, res.Message))
		action := e.newAction(msg, rc, domain.ActionFallback)
		action.Success = res.Success
		action.Message = res.Message
		return e.finish(ctx, action)

	case domain.ActionSkip:
		e.record(ctx, rc, domain.KindRuntime, domain.SeverityLow,
			fmt.Sprintf("Skipped task after %s: %s", strategy.Name, msg))
		action := e.newAction(msg, rc, domain.ActionSkip)
		action.Success = true
		action.Message = "task skipped (" + strategy.Name + ")"
		return e.finish(ctx, action)

	default:
		return e.escalate(ctx, msg, rc, "strategy "+strategy.Name+" requires escalation")
	}
}

// match finds the first strategy by structured code, then by message.
func (e *Engine) match(err error, lowerMsg string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		for _, s := range e.strategies {
			if s.Code == coded.Code {
				return s, true
			}
		}
	}
	for _, s := range e.strategies {
		if s.matches(lowerMsg) {
			return s, true
		}
	}
	return Strategy{}, false
}

func runFallback(ctx context.Context, fn FallbackFunc, err error, rc Context) (res FallbackResult, ferr error) {
	if fn == nil {
		return FallbackResult{}, fmt.Errorf("%w: no handler", ErrFallbackFailed)
	}
	defer func() {
		if r := recover(); r != nil {
			ferr = fmt.Errorf("%w: handler panicked: %v", ErrFallbackFailed, r)
		}
	}()
	return fn(ctx, err, rc)
}

// escalate logs a critical record, marks the agent as errored and
// publishes the action.
func (e *Engine) escalate(ctx context.Context, msg string, rc Context, reason string) *domain.RecoveryAction {
	kind := rc.Category
	if kind == "" {
		kind = domain.KindRuntime
	}
	e.record(ctx, rc, kind, domain.SeverityCritical, fmt.Sprintf("Escalated: %s (%s)", msg, reason))

	if rc.AgentID != "" {
		if err := e.health.RecordEscalation(ctx, rc.AgentID); err != nil {
			e.logger.Warn("Failed to update agent health", "agent", rc.AgentID, "error", err)
		}
	}

	action := e.newAction(msg, rc, domain.ActionEscalate)
	action.RetryCount = rc.RetryCount
	action.Message = reason
	action = e.finish(ctx, action)

	if e.notifier != nil {
		if err := e.notifier.Publish(ctx, action); err != nil {
			e.logger.Warn("Failed to publish escalation", "action_id", action.ID, "error", err)
		}
	}
	return action
}

func (e *Engine) newAction(msg string, rc Context, kind domain.RecoveryActionKind) *domain.RecoveryAction {
	return &domain.RecoveryAction{
		ID:            uuid.NewString(),
		Timestamp:     e.now(),
		ErrorMessage:  msg,
		CorrelationID: rc.CorrelationID,
		AgentID:       rc.AgentID,
		Kind:          kind,
		RetryCount:    rc.RetryCount,
	}
}

func (e *Engine) finish(ctx context.Context, action *domain.RecoveryAction) *domain.RecoveryAction {
	if err := e.actions.Append(ctx, action, storage.DefaultActionLimit); err != nil {
		e.logger.Warn("Failed to store recovery action", "action_id", action.ID, "error", err)
	}
	metrics.RecoveryActionsTotal.WithLabelValues(string(action.Kind)).Inc()
	e.logger.Info("Recovery decision",
		"action", action.Kind,
		"agent", action.AgentID,
		"correlation_id", action.CorrelationID,
		"retry_count", action.RetryCount,
	)
	return action
}

func (e *Engine) record(ctx context.Context, rc Context, kind domain.ErrorKind, sev domain.Severity, msg string) {
	rec := domain.ErrorRecord{
		Kind:          kind,
		Severity:      sev,
		Category:      "recovery",
		Message:       msg,
		FilePath:      rc.FilePath,
		AgentID:       rc.AgentID,
		TaskID:        rc.TaskID,
		CorrelationID: rc.CorrelationID,
	}
	if rc.RetryCount > 0 {
		rec.Context = map[string]string{"retry_count": strconv.Itoa(rc.RetryCount)}
	}
	e.sink.Append(ctx, rec)
}

var terminalCauses = []struct {
	needles []string
	cause   string
}{
	{[]string{"command not found", "is not recognized as"}, "command not found"},
	{[]string{"permission denied", "eacces"}, "permission denied"},
	{[]string{"timeout", "timed out"}, "command timed out"},
	{[]string{"spawn", "enoent", "exec format error"}, "process could not be spawned"},
}

func terminalRootCause(lowerMsg string) string {
	for _, c := range terminalCauses {
		for _, n := range c.needles {
			if strings.Contains(lowerMsg, n) {
				return c.cause
			}
		}
	}
	return "unknown root cause"
}
