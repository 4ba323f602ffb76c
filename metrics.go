package epadoc

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks validation counters using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	validationsTotal atomic.Uint64
	validationsValid atomic.Uint64
	parseFailures    atomic.Uint64
	checkerFaults    atomic.Uint64

	// Timing (stored as nanoseconds)
	validationTimeTotal atomic.Uint64
	validationTimeMax   atomic.Uint64

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	errorsTotal   atomic.Uint64
	warningsTotal atomic.Uint64
	infosTotal    atomic.Uint64

	checkers sync.Map // map[string]*checkerMetrics
}

type checkerMetrics struct {
	invocations atomic.Uint64
	totalTime   atomic.Uint64 // nanoseconds
	messages    atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordValidation records a completed validation and its messages.
func (m *Metrics) RecordValidation(duration time.Duration, resp *Response) {
	m.validationsTotal.Add(1)
	if resp.Valid() {
		m.validationsValid.Add(1)
	}
	for _, msg := range resp.messages {
		m.RecordMessage(msg.Severity)
	}

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // durations are non-negative
	m.validationTimeTotal.Add(ns)
	for {
		old := m.validationTimeMax.Load()
		if ns <= old || m.validationTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordParseFailure records input that could not be parsed.
func (m *Metrics) RecordParseFailure() {
	m.parseFailures.Add(1)
}

// RecordCheckerFault records a checker that failed instead of reporting.
func (m *Metrics) RecordCheckerFault() {
	m.checkerFaults.Add(1)
}

// RecordCacheHit records a checker result served from the cache.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a checker result that had to be computed.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordMessage counts a message by severity.
func (m *Metrics) RecordMessage(severity Severity) {
	switch severity {
	case SeverityError, SeverityFatal:
		m.errorsTotal.Add(1)
	case SeverityWarning:
		m.warningsTotal.Add(1)
	case SeverityInformation:
		m.infosTotal.Add(1)
	}
}

// RecordChecker records one invocation of a checker.
func (m *Metrics) RecordChecker(name string, duration time.Duration, messages int) {
	cm := m.checker(name)
	cm.invocations.Add(1)
	cm.totalTime.Add(uint64(duration.Nanoseconds())) //nolint:gosec // durations are non-negative
	cm.messages.Add(uint64(messages))                //nolint:gosec // counts are non-negative
}

func (m *Metrics) checker(name string) *checkerMetrics {
	if v, ok := m.checkers.Load(name); ok {
		return v.(*checkerMetrics)
	}
	actual, _ := m.checkers.LoadOrStore(name, &checkerMetrics{})
	return actual.(*checkerMetrics)
}

// ValidationsTotal returns the total number of validations performed.
func (m *Metrics) ValidationsTotal() uint64 {
	return m.validationsTotal.Load()
}

// ValidationsValid returns the number of validations with a positive verdict.
func (m *Metrics) ValidationsValid() uint64 {
	return m.validationsValid.Load()
}

// ParseFailures returns the number of unparseable inputs.
func (m *Metrics) ParseFailures() uint64 {
	return m.parseFailures.Load()
}

// CheckerFaults returns the number of recovered checker faults.
func (m *Metrics) CheckerFaults() uint64 {
	return m.checkerFaults.Load()
}

// AverageValidationTime returns the average validation duration.
func (m *Metrics) AverageValidationTime() time.Duration {
	total := m.validationsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.validationTimeTotal.Load() / total) //nolint:gosec // within int64 range
}

// MaxValidationTime returns the longest validation duration.
func (m *Metrics) MaxValidationTime() time.Duration {
	return time.Duration(m.validationTimeMax.Load()) //nolint:gosec // within int64 range
}

// CacheHits returns the number of cached checker results served.
func (m *Metrics) CacheHits() uint64 {
	return m.cacheHits.Load()
}

// CacheMisses returns the number of checker results computed.
func (m *Metrics) CacheMisses() uint64 {
	return m.cacheMisses.Load()
}

// CacheHitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// ErrorsTotal returns the number of FATAL and ERROR messages seen.
func (m *Metrics) ErrorsTotal() uint64 {
	return m.errorsTotal.Load()
}

// WarningsTotal returns the number of WARNING messages seen.
func (m *Metrics) WarningsTotal() uint64 {
	return m.warningsTotal.Load()
}

// InfosTotal returns the number of INFORMATION messages seen.
func (m *Metrics) InfosTotal() uint64 {
	return m.infosTotal.Load()
}

// CheckerStats describes the invocations of one checker.
type CheckerStats struct {
	Name        string
	Invocations uint64
	TotalTime   time.Duration
	AvgTime     time.Duration
	Messages    uint64
}

// CheckerStats returns statistics for one checker.
func (m *Metrics) CheckerStats(name string) (CheckerStats, bool) {
	v, ok := m.checkers.Load(name)
	if !ok {
		return CheckerStats{}, false
	}
	return statsOf(name, v.(*checkerMetrics)), true
}

// AllCheckerStats returns statistics for every checker, sorted by name.
func (m *Metrics) AllCheckerStats() []CheckerStats {
	var out []CheckerStats
	m.checkers.Range(func(k, v any) bool {
		out = append(out, statsOf(k.(string), v.(*checkerMetrics)))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func statsOf(name string, cm *checkerMetrics) CheckerStats {
	s := CheckerStats{
		Name:        name,
		Invocations: cm.invocations.Load(),
		TotalTime:   time.Duration(cm.totalTime.Load()), //nolint:gosec // within int64 range
		Messages:    cm.messages.Load(),
	}
	if s.Invocations > 0 {
		s.AvgTime = s.TotalTime / time.Duration(s.Invocations) //nolint:gosec // small count
	}
	return s
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	ValidationsTotal uint64         `json:"validationsTotal"`
	ValidationsValid uint64         `json:"validationsValid"`
	ParseFailures    uint64         `json:"parseFailures"`
	CheckerFaults    uint64         `json:"checkerFaults"`
	AvgTime          time.Duration  `json:"avgTimeNs"`
	MaxTime          time.Duration  `json:"maxTimeNs"`
	CacheHits        uint64         `json:"cacheHits"`
	CacheMisses      uint64         `json:"cacheMisses"`
	Errors           uint64         `json:"errors"`
	Warnings         uint64         `json:"warnings"`
	Infos            uint64         `json:"infos"`
	Checkers         []CheckerStats `json:"checkers"`
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		ValidationsTotal: m.ValidationsTotal(),
		ValidationsValid: m.ValidationsValid(),
		ParseFailures:    m.ParseFailures(),
		CheckerFaults:    m.CheckerFaults(),
		AvgTime:          m.AverageValidationTime(),
		MaxTime:          m.MaxValidationTime(),
		CacheHits:        m.CacheHits(),
		CacheMisses:      m.CacheMisses(),
		Errors:           m.ErrorsTotal(),
		Warnings:         m.WarningsTotal(),
		Infos:            m.InfosTotal(),
		Checkers:         m.AllCheckerStats(),
	}
}
