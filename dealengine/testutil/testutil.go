// Package testutil provides shared test utilities and mocks for the deal engine.
//
// All mocks here are designed for testing engine components in isolation
// without external dependencies.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/mna-automation/dealcore/dealengine/config"
	"github.com/mna-automation/dealcore/dealengine/deal"
)

// =============================================================================
// MOCK LOGGER
// =============================================================================

// MockLogger implements deal.Logger for testing.
type MockLogger struct {
	// Logs captures all log entries.
	Logs []LogEntry

	mu sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewMockLogger creates a MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{Logs: make([]LogEntry, 0)}
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.log("debug", msg, keysAndValues...)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.log("info", msg, keysAndValues...)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.log("warn", msg, keysAndValues...)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.log("error", msg, keysAndValues...)
}

func (m *MockLogger) Bind(fields ...any) deal.Logger {
	return m
}

func (m *MockLogger) log(level, msg string, keysAndValues ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]any)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	m.Logs = append(m.Logs, LogEntry{Level: level, Message: msg, Fields: fields})
}

// GetLogs returns captured logs (thread-safe).
func (m *MockLogger) GetLogs() []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]LogEntry, len(m.Logs))
	copy(copied, m.Logs)
	return copied
}

// HasLog checks if a log message exists at the given level.
func (m *MockLogger) HasLog(level, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.Logs {
		if entry.Level == level && entry.Message == message {
			return true
		}
	}
	return false
}

// Clear removes all captured logs.
func (m *MockLogger) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = nil
}

// =============================================================================
// SCRIPTED TOOL
// =============================================================================

// ScriptedTool is a tool handler that fails a configured number of times
// before succeeding. Its Handler method matches the gateway's ToolHandler
// signature.
type ScriptedTool struct {
	// FailuresBeforeSuccess is how many leading calls return FailWith.
	FailuresBeforeSuccess int

	// FailWith is the error returned for failing calls.
	FailWith error

	// Result is returned on success. Nil gets a default payload.
	Result map[string]any

	// Delay simulates tool latency per call.
	Delay time.Duration

	// Calls records parameters of every call for assertion.
	Calls []map[string]any

	mu        sync.Mutex
	callCount int
}

// Handler executes one scripted attempt.
func (s *ScriptedTool) Handler(ctx context.Context, params map[string]any) (map[string]any, error) {
	s.mu.Lock()
	s.callCount++
	count := s.callCount
	s.Calls = append(s.Calls, params)
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if count <= s.FailuresBeforeSuccess {
		return nil, s.FailWith
	}
	if s.Result != nil {
		return s.Result, nil
	}
	return map[string]any{"status": "success"}, nil
}

// CallCount returns how many times the tool was invoked (thread-safe).
func (s *ScriptedTool) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// =============================================================================
// MOCK WORKER
// =============================================================================

// MockWorker is a configurable stage worker for engine tests.
type MockWorker struct {
	// StageID is the stage this worker serves.
	StageID deal.StageID

	// Kind is the artifact kind produced. Defaults to "<stage>_result".
	Kind string

	// Payload is the artifact payload. Nil gets a minimal default.
	Payload map[string]any

	// Err causes Execute to fail.
	Err error

	// Delay simulates execution latency.
	Delay time.Duration

	// ExecuteFunc overrides the default behavior entirely when set.
	ExecuteFunc func(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error)

	mu        sync.Mutex
	callCount int
	seenNotes [][]string
}

// Stage implements the worker interface.
func (m *MockWorker) Stage() deal.StageID { return m.StageID }

// Execute implements the worker interface.
func (m *MockWorker) Execute(ctx context.Context, view *deal.ContextView, notes []string) (*deal.Artifact, error) {
	m.mu.Lock()
	m.callCount++
	m.seenNotes = append(m.seenNotes, notes)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, view, notes)
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}

	kind := m.Kind
	if kind == "" {
		kind = string(m.StageID) + "_result"
	}
	payload := m.Payload
	if payload == nil {
		payload = map[string]any{"stage": string(m.StageID)}
	}
	return deal.NewArtifact(m.StageID, kind, payload), nil
}

// CallCount returns how many times Execute ran (thread-safe).
func (m *MockWorker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// NotesSeen returns the revision notes passed to each execution.
func (m *MockWorker) NotesSeen() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([][]string, len(m.seenNotes))
	copy(copied, m.seenNotes)
	return copied
}

// =============================================================================
// MEMORY PERSISTENCE
// =============================================================================

// MemoryPersistence stores run states in memory for assertion.
type MemoryPersistence struct {
	// SaveError causes SaveState to return this error.
	SaveError error

	mu     sync.RWMutex
	states map[string]map[string]any
	saves  int
}

// NewMemoryPersistence creates a MemoryPersistence.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{states: make(map[string]map[string]any)}
}

// SaveState saves the state dict for a run.
func (m *MemoryPersistence) SaveState(ctx context.Context, runID string, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saves++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.states[runID] = state
	return nil
}

// GetState returns the last saved state for a run.
func (m *MemoryPersistence) GetState(runID string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[runID]
}

// SaveCount returns how many saves happened.
func (m *MemoryPersistence) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// =============================================================================
// GRAPH HELPERS
// =============================================================================

// NewChainGraph creates a graph where each stage requires the previous one.
func NewChainGraph(name string, stages ...deal.StageID) *config.GraphConfig {
	g := config.NewGraphConfig(name)
	for i, stage := range stages {
		spec := &config.StageSpec{ID: stage}
		if i > 0 {
			spec.Requires = []deal.StageID{stages[i-1]}
		}
		g.Stages = append(g.Stages, spec)
	}
	return g
}

// NewDiamondGraph creates a four-stage diamond: root fans out to two
// independent branches which join at the sink.
func NewDiamondGraph(name string, root, left, right, sink deal.StageID) *config.GraphConfig {
	g := config.NewGraphConfig(name)
	g.Stages = []*config.StageSpec{
		{ID: root},
		{ID: left, Requires: []deal.StageID{root}},
		{ID: right, Requires: []deal.StageID{root}},
		{ID: sink, Requires: []deal.StageID{left, right}},
	}
	return g
}
