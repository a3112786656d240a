// Package memory is the durable, per-portal knowledge base. One successful
// attempt turns an expensive AI-interpreted run into a stored strategy that
// later attempts on the same portal replay without AI calls.
package memory

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/akashpal/jobwright/internal/logging"
)

const (
	// History lists are capped so the file cannot grow without bound.
	maxHistoryEntries = 100

	successBoost = 0.10
	failureDecay = 0.15
)

// MappingSource tags where a field mapping came from.
type MappingSource string

const (
	SourceMemory    MappingSource = "memory"
	SourceHeuristic MappingSource = "heuristic"
	SourceAI        MappingSource = "ai"
)

// FieldMapping associates a normalized field label with a profile attribute.
type FieldMapping struct {
	LabelKey   string        `json:"label_key"`
	Attribute  string        `json:"attribute"`
	Confidence float64       `json:"confidence"`
	Source     MappingSource `json:"source"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Step is one recorded action in a successful run.
type Step struct {
	Action string `json:"action"` // navigate, authenticate, fill, upload, submit
	Detail string `json:"detail,omitempty"`
}

// Strategy is the learned recipe for one portal: the step order that worked
// plus the field mappings that were accepted. ConfidenceBoost rises with each
// success and decays on failure, but the strategy itself is never deleted.
type Strategy struct {
	Domain          string                  `json:"domain"`
	Steps           []Step                  `json:"steps"`
	FieldMappings   map[string]FieldMapping `json:"field_mappings"`
	ConfidenceBoost float64                 `json:"confidence_boost"`
	SuccessCount    int                     `json:"success_count"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// StrategyRecord is an append-only history entry of one success.
type StrategyRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Strategy  Strategy  `json:"strategy"`
}

// FailureRecord is an append-only history entry of one failed attempt.
type FailureRecord struct {
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
	JobURL    string    `json:"job_url,omitempty"`
}

// domainRecord is the persisted per-portal shape.
type domainRecord struct {
	Strategy           *Strategy               `json:"strategy,omitempty"`
	SuccessfulPatterns []StrategyRecord        `json:"successful_patterns"`
	FailedPatterns     []FailureRecord         `json:"failed_patterns"`
	FieldMappings      map[string]FieldMapping `json:"field_mappings"`
}

// Store is the domain-keyed learning store. All writes are append or upsert;
// nothing destructive happens to history. Persistence is explicit via Flush,
// which the engine calls only at attempt terminal states.
type Store struct {
	mu      sync.Mutex
	path    string
	domains map[string]*domainRecord
}

// Open loads the store from path. A corrupt or unreadable file degrades to an
// empty in-memory store with a logged warning; learning is an optimization,
// never correctness-critical.
func Open(path string) *Store {
	s := &Store{path: path, domains: make(map[string]*domainRecord)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Memory store unreadable at %s, starting empty: %v", path, err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.domains); err != nil {
		logging.Warn("Memory store corrupt at %s, starting empty: %v", path, err)
		s.domains = make(map[string]*domainRecord)
		return s
	}
	logging.Info("Memory store loaded: %d portal(s) known", len(s.domains))
	return s
}

// DomainOf extracts the portal key (host) from a job URL.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func (s *Store) record(domain string) *domainRecord {
	rec, ok := s.domains[domain]
	if !ok {
		rec = &domainRecord{FieldMappings: make(map[string]FieldMapping)}
		s.domains[domain] = rec
	}
	if rec.FieldMappings == nil {
		rec.FieldMappings = make(map[string]FieldMapping)
	}
	return rec
}

// Load returns the live strategy for a domain, or false when the portal is
// unknown. The returned strategy is a copy; callers cannot mutate the store
// through it.
func (s *Store) Load(domain string) (*Strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.domains[domain]
	if !ok || rec.Strategy == nil {
		return nil, false
	}
	cp := *rec.Strategy
	cp.Steps = append([]Step(nil), rec.Strategy.Steps...)
	cp.FieldMappings = copyMappings(rec.Strategy.FieldMappings)
	return &cp, true
}

// FieldMappings returns a copy of the stored label-key mappings for a domain.
func (s *Store) FieldMappings(domain string) map[string]FieldMapping {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.domains[domain]
	if !ok {
		return map[string]FieldMapping{}
	}
	return copyMappings(rec.FieldMappings)
}

// RecordSuccess updates the domain's live strategy, appends to success
// history, and upserts the strategy's field mappings by label key.
func (s *Store) RecordSuccess(domain string, strategy Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(domain)
	now := time.Now().UTC()

	boost := successBoost
	count := 1
	if rec.Strategy != nil {
		boost = rec.Strategy.ConfidenceBoost + successBoost
		count = rec.Strategy.SuccessCount + 1
	}
	if boost > 1 {
		boost = 1
	}

	strategy.Domain = domain
	strategy.ConfidenceBoost = boost
	strategy.SuccessCount = count
	strategy.UpdatedAt = now
	if strategy.FieldMappings == nil {
		strategy.FieldMappings = make(map[string]FieldMapping)
	}
	live := strategy
	live.Steps = append([]Step(nil), strategy.Steps...)
	live.FieldMappings = copyMappings(strategy.FieldMappings)
	rec.Strategy = &live

	rec.SuccessfulPatterns = appendCapped(rec.SuccessfulPatterns, StrategyRecord{Timestamp: now, Strategy: strategy})
	for key, m := range strategy.FieldMappings {
		m.UpdatedAt = now
		rec.FieldMappings[key] = m
	}
}

// RecordFailure appends a failure record and decays the live strategy's
// confidence boost. The strategy is never removed: partial knowledge about a
// portal stays useful even after a bad day.
func (s *Store) RecordFailure(domain string, failure FailureRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(domain)
	if failure.Timestamp.IsZero() {
		failure.Timestamp = time.Now().UTC()
	}
	rec.FailedPatterns = appendFailureCapped(rec.FailedPatterns, failure)

	if rec.Strategy != nil {
		rec.Strategy.ConfidenceBoost -= failureDecay
		if rec.Strategy.ConfidenceBoost < 0 {
			rec.Strategy.ConfidenceBoost = 0
		}
		rec.Strategy.UpdatedAt = time.Now().UTC()
	}
}

// UpsertFieldMapping stores one resolved mapping by label key.
// Last writer wins.
func (s *Store) UpsertFieldMapping(domain, labelKey string, mapping FieldMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping.LabelKey = labelKey
	if mapping.UpdatedAt.IsZero() {
		mapping.UpdatedAt = time.Now().UTC()
	}
	s.record(domain).FieldMappings[labelKey] = mapping
}

// Forget removes everything known about a domain. Only the CLI calls this,
// on explicit user request.
func (s *Store) Forget(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.domains[domain]; !ok {
		return false
	}
	delete(s.domains, domain)
	return true
}

// Domains returns every portal the store knows about.
func (s *Store) Domains() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.domains))
	for d := range s.domains {
		out = append(out, d)
	}
	return out
}

// History returns copies of the success and failure histories for a domain.
func (s *Store) History(domain string) ([]StrategyRecord, []FailureRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.domains[domain]
	if !ok {
		return nil, nil
	}
	return append([]StrategyRecord(nil), rec.SuccessfulPatterns...),
		append([]FailureRecord(nil), rec.FailedPatterns...)
}

// Flush writes the store to disk atomically (temp file + rename) so a crash
// mid-write cannot corrupt prior learning.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.domains, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode memory store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create memory directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write memory store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace memory store: %w", err)
	}
	return nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

func copyMappings(in map[string]FieldMapping) map[string]FieldMapping {
	out := make(map[string]FieldMapping, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func appendCapped(list []StrategyRecord, rec StrategyRecord) []StrategyRecord {
	list = append(list, rec)
	if len(list) > maxHistoryEntries {
		list = list[len(list)-maxHistoryEntries:]
	}
	return list
}

func appendFailureCapped(list []FailureRecord, rec FailureRecord) []FailureRecord {
	list = append(list, rec)
	if len(list) > maxHistoryEntries {
		list = list[len(list)-maxHistoryEntries:]
	}
	return list
}
