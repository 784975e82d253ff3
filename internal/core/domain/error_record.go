package domain

import (
	"maps"
	"time"
)

// ErrorKind is the classification taxonomy shared by every producer.
type ErrorKind string

const (
	// Classification findings produced by the detector.
	KindType        ErrorKind = "type"
	KindSyntax      ErrorKind = "syntax"
	KindDesign      ErrorKind = "design"
	KindSecurity    ErrorKind = "security"
	KindLogic       ErrorKind = "logic"
	KindPerformance ErrorKind = "performance"

	// Operational categories supplied by callers of the recovery engine.
	KindTerminal ErrorKind = "terminal"
	KindBuild    ErrorKind = "build"
	KindRuntime  ErrorKind = "runtime"
	KindTest     ErrorKind = "test"
)

// Severity ranks how urgently a record needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ErrorRecord is an immutable entry in the error store.
type ErrorRecord struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Kind          ErrorKind         `json:"type"`
	Severity      Severity          `json:"severity"`
	Category      string            `json:"category"`
	Message       string            `json:"message"`
	FilePath      string            `json:"file_path,omitempty"`
	Line          int               `json:"line,omitempty"`
	Context       map[string]string `json:"context,omitempty"`
	Suggestion    string            `json:"suggestion,omitempty"`
	AgentID       string            `json:"agent_id,omitempty"`
	TaskID        string            `json:"task_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// Clone returns a copy that shares no mutable state with r.
func (r *ErrorRecord) Clone() *ErrorRecord {
	c := *r
	c.Context = maps.Clone(r.Context)
	return &c
}

// DetectedError is the transient output of a single detector check.
type DetectedError struct {
	Kind          ErrorKind
	Severity      Severity
	Category      string
	Message       string
	FilePath      string
	Line          int
	Rule          string
	AutoFixable   bool
	SuggestedFix  string
	CorrelationID string
}

// Record converts the finding into a store record.
func (d DetectedError) Record() ErrorRecord {
	rec := ErrorRecord{
		Kind:          d.Kind,
		Severity:      d.Severity,
		Category:      d.Category,
		Message:       d.Message,
		FilePath:      d.FilePath,
		Line:          d.Line,
		Suggestion:    d.SuggestedFix,
		CorrelationID: d.CorrelationID,
	}
	if d.Rule != "" {
		rec.Context = map[string]string{"rule": d.Rule}
	}
	return rec
}

// ErrorFilter selects records. Zero-valued fields match everything.
type ErrorFilter struct {
	Kind     ErrorKind
	Severity Severity
	Category string
	FilePath string
	Since    time.Time
}

// Matches reports whether rec satisfies every provided field.
func (f ErrorFilter) Matches(rec ErrorRecord) bool {
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.Severity != "" && rec.Severity != f.Severity {
		return false
	}
	if f.Category != "" && rec.Category != f.Category {
		return false
	}
	if f.FilePath != "" && rec.FilePath != f.FilePath {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// CountEntry is one row of a ranked frequency table.
type CountEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// PatternAnalysis aggregates the retained error history.
type PatternAnalysis struct {
	MostCommonTypes      []CountEntry `json:"most_common_types"`
	MostCommonCategories []CountEntry `json:"most_common_categories"`
	MostCommonFiles      []CountEntry `json:"most_common_files"`
	CriticalCount        int          `json:"critical_count"`
	RecentCount          int          `json:"recent_count"`
	Total                int          `json:"total"`
}
