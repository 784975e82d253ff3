package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/core/errorstore"
	"github.com/vietddude/errwatch/internal/pipeline/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyRunning is returned by Start when the loop is already active.
var ErrAlreadyRunning = errors.New("detector already running")

// ErrorSink is the part of the error store the detector uses.
type ErrorSink interface {
	PatternAnalyzer
	Append(ctx context.Context, rec domain.ErrorRecord) domain.ErrorRecord
}

// Config configures the detector and its built-in checks.
type Config struct {
	Interval         time.Duration
	WorkDir          string
	Roots            []string
	Extensions       []string
	ExcludeDirs      []string
	TypeCheckCommand []string
	LintCommand      []string
	CriticalCodes    []string
	ToolTimeout      time.Duration
	LogicThreshold   int
}

// Summary aggregates one detection pass.
type Summary struct {
	Total       int                      `json:"total"`
	ByKind      map[domain.ErrorKind]int `json:"by_type"`
	BySeverity  map[domain.Severity]int  `json:"by_severity"`
	AutoFixable int                      `json:"auto_fixable"`
}

// Result is the output of DetectErrors.
type Result struct {
	Findings []domain.DetectedError `json:"findings"`
	Summary  Summary                `json:"summary"`
}

// Option configures a Detector.
type Option func(*Detector)

// WithRunner replaces the command runner used by the tool checks.
func WithRunner(r CommandRunner) Option {
	return func(d *Detector) {
		d.runner = r
	}
}

// WithChecks replaces the built-in checks.
func WithChecks(checks ...Check) Option {
	return func(d *Detector) {
		d.checks = checks
	}
}

// WithPerformanceRules gives the performance check concrete rules.
func WithPerformanceRules(rules ...LineRule) Option {
	return func(d *Detector) {
		d.perfRules = append(d.perfRules, rules...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

// Detector runs its checks on an interval and records their findings.
type Detector struct {
	cfg       Config
	sink      ErrorSink
	runner    CommandRunner
	checks    []Check
	perfRules []LineRule
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a detector writing to sink.
func New(sink ErrorSink, cfg Config, opts ...Option) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 2 * time.Minute
	}

	d := &Detector{
		cfg:    cfg,
		sink:   sink,
		runner: ExecRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "detector")

	if d.checks == nil {
		tree := SourceTree{Roots: cfg.Roots, Extensions: cfg.Extensions, ExcludeDirs: cfg.ExcludeDirs}
		d.checks = []Check{
			NewTypeCheck(d.runner, cfg.WorkDir, cfg.TypeCheckCommand, cfg.CriticalCodes),
			NewLintCheck(d.runner, cfg.WorkDir, cfg.LintCommand),
			NewLineRuleCheck("patterns", tree, DefaultDesignRules),
			NewSecretsCheck(tree),
			NewLogicCheck(sink, cfg.LogicThreshold),
			NewPerformanceCheck(tree, d.perfRules),
		}
	}
	return d
}

// Start launches the detection loop in the background.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.running = true
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.loop(loopCtx, d.done)

	d.logger.Info("Detector started", "interval", d.cfg.Interval, "checks", len(d.checks))
	return nil
}

// Stop cancels the loop and waits for an in-flight pass to finish.
// Calling Stop on a stopped detector is a no-op.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	<-done
	d.logger.Info("Detector stopped")
}

// Running reports whether the loop is active.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Detector) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer d.exited(done)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := d.DetectErrors(ctx)
			d.logger.Info("Detection pass complete",
				"total", res.Summary.Total,
				"auto_fixable", res.Summary.AutoFixable,
			)
		}
	}
}

// exited clears the running state when the parent context ended the loop.
func (d *Detector) exited(done chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running || d.done != done {
		return
	}
	d.cancel()
	d.running = false
	d.cancel = nil
}

// DetectErrors runs every check concurrently, appends each finding to the
// error store and returns the findings with a summary. A failing check is
// logged and skipped.
func (d *Detector) DetectErrors(ctx context.Context) Result {
	start := time.Now()
	metrics.DetectionRunsTotal.Inc()

	perCheck := make([][]domain.DetectedError, len(d.checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, check := range d.checks {
		g.Go(func() error {
			perCheck[i] = d.runCheck(gctx, check)
			return nil
		})
	}
	_ = g.Wait()

	var findings []domain.DetectedError
	for i, found := range perCheck {
		for _, f := range found {
			if f.CorrelationID == "" {
				f.CorrelationID = errorstore.Fingerprint(f)
			}
			metrics.DetectionFindingsTotal.WithLabelValues(d.checks[i].Name(), string(f.Severity)).Inc()
			d.sink.Append(ctx, f.Record())
			findings = append(findings, f)
		}
	}

	metrics.DetectionLatency.Observe(time.Since(start).Seconds())
	return Result{Findings: findings, Summary: Summarize(findings)}
}

// runCheck isolates a check: errors and panics are contained here.
func (d *Detector) runCheck(ctx context.Context, check Check) (found []domain.DetectedError) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CheckFailuresTotal.WithLabelValues(check.Name()).Inc()
			d.logger.Warn("Check panicked", "check", check.Name(), "panic", fmt.Sprint(r))
			found = nil
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ToolTimeout)
	defer cancel()

	found, err := check.Run(ctx)
	if err != nil {
		metrics.CheckFailuresTotal.WithLabelValues(check.Name()).Inc()
		d.logger.Warn("Check failed", "check", check.Name(), "error", err)
		// partial output from a failed check is still reported
	}
	return found
}

// Summarize counts findings by kind, severity and auto-fixability.
func Summarize(findings []domain.DetectedError) Summary {
	s := Summary{
		Total:      len(findings),
		ByKind:     make(map[domain.ErrorKind]int),
		BySeverity: make(map[domain.Severity]int),
	}
	for _, f := range findings {
		s.ByKind[f.Kind]++
		s.BySeverity[f.Severity]++
		if f.AutoFixable {
			s.AutoFixable++
		}
	}
	return s
}
