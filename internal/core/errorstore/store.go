package errorstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/errwatch/internal/core/domain"
	"github.com/vietddude/errwatch/internal/infra/storage"
	"github.com/vietddude/errwatch/internal/pipeline/metrics"
)

const (
	topN         = 5
	recentWindow = 24 * time.Hour
)

// Store is the bounded, append-only error log every component writes to.
type Store struct {
	repo     storage.ErrorRecordRepository
	limit    int
	fallback io.Writer
	scrubber *Scrubber
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLimit overrides the retention cap.
func WithLimit(limit int) Option {
	return func(s *Store) {
		s.limit = limit
	}
}

// WithFallback sets the diagnostic writer used when persistence fails.
func WithFallback(w io.Writer) Option {
	return func(s *Store) {
		s.fallback = w
	}
}

// WithScrubber replaces the message scrubber. nil disables scrubbing.
func WithScrubber(sc *Scrubber) Option {
	return func(s *Store) {
		s.scrubber = sc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock is used by tests to pin "now".
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store over repo.
func New(repo storage.ErrorRecordRepository, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		limit:    storage.DefaultErrorLimit,
		fallback: os.Stderr,
		scrubber: NewScrubber(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "errorstore")
	return s
}

// Append persists rec and returns the stored copy. It never fails: when the
// backing repository errors, a single line goes to the fallback writer.
func (s *Store) Append(ctx context.Context, rec domain.ErrorRecord) domain.ErrorRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	if s.scrubber != nil {
		rec.Message = s.scrubber.ScrubMessage(rec.Message)
		rec.Context = s.scrubber.ScrubContext(rec.Context)
	}

	metrics.ErrorRecordsTotal.WithLabelValues(string(rec.Kind), string(rec.Severity)).Inc()

	if err := s.repo.Append(ctx, &rec, s.limit); err != nil {
		metrics.StoreFallbacksTotal.Inc()
		_, _ = fmt.Fprintf(s.fallback, "errwatch: failed to persist error record: %v [%s/%s] %s\n",
			err, rec.Kind, rec.Severity, rec.Message)
		return rec
	}

	s.logger.Debug("Error recorded",
		"id", rec.ID,
		"type", rec.Kind,
		"severity", rec.Severity,
		"category", rec.Category,
	)
	return rec
}

// Query returns records matching every provided filter field, oldest first.
func (s *Store) Query(ctx context.Context, filter domain.ErrorFilter) ([]*domain.ErrorRecord, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list error records: %w", err)
	}

	out := make([]*domain.ErrorRecord, 0, len(records))
	for _, rec := range records {
		if filter.Matches(*rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// AnalyzePatterns aggregates the retained history. A non-zero since
// restricts the aggregate to records at or after it.
func (s *Store) AnalyzePatterns(ctx context.Context, since time.Time) (*domain.PatternAnalysis, error) {
	records, err := s.Query(ctx, domain.ErrorFilter{Since: since})
	if err != nil {
		return nil, err
	}

	kinds := make(map[string]int)
	categories := make(map[string]int)
	files := make(map[string]int)
	analysis := &domain.PatternAnalysis{Total: len(records)}
	recentCutoff := s.now().Add(-recentWindow)

	for _, rec := range records {
		kinds[string(rec.Kind)]++
		if rec.Category != "" {
			categories[rec.Category]++
		}
		if rec.FilePath != "" {
			files[rec.FilePath]++
		}
		if rec.Severity == domain.SeverityCritical {
			analysis.CriticalCount++
		}
		if rec.Timestamp.After(recentCutoff) {
			analysis.RecentCount++
		}
	}

	analysis.MostCommonTypes = topCounts(kinds, topN)
	analysis.MostCommonCategories = topCounts(categories, topN)
	analysis.MostCommonFiles = topCounts(files, topN)
	return analysis, nil
}

// topCounts ranks by count descending, then key ascending.
func topCounts(counts map[string]int, n int) []domain.CountEntry {
	entries := make([]domain.CountEntry, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, domain.CountEntry{Key: k, Count: c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
