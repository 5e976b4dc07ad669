package deal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CommitRecord is one entry in the context's audit log.
type CommitRecord struct {
	Seq         int       `json:"seq"`
	Stage       StageID   `json:"stage"`
	Revision    int       `json:"revision"`
	CommittedAt time.Time `json:"committed_at"`
}

// DealContext is the single evolving state object all stages read and
// append to. It is owned by the orchestrator: workers never receive it
// directly, only a read View. Artifacts are write-once per stage and only
// land here after the stage's checkpoint (if any) is approved.
//
// All methods are safe for concurrent use; the internal mutex is the
// single mutual-exclusion section around the context store. Callers must
// never perform blocking external work while inside these methods - the
// methods themselves only copy memory.
type DealContext struct {
	DealID    string    `json:"deal_id"`
	CreatedAt time.Time `json:"created_at"`

	mu            sync.RWMutex
	version       int
	artifacts     map[StageID]*Artifact
	facts         map[string]any
	revisionNotes map[StageID][]string
	commitLog     []CommitRecord
}

// NewDealContext creates an empty deal context.
func NewDealContext() *DealContext {
	return &DealContext{
		DealID:        "deal_" + uuid.New().String()[:16],
		CreatedAt:     time.Now().UTC(),
		artifacts:     make(map[StageID]*Artifact),
		facts:         make(map[string]any),
		revisionNotes: make(map[StageID][]string),
	}
}

// Version returns the commit version. Bumped on every commit and fact write.
func (c *DealContext) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Commit appends a stage artifact, assigning its commit sequence number.
// The artifact slot is write-once: committing a second artifact for the
// same stage is an error.
func (c *DealContext) Commit(a *Artifact) (*Artifact, error) {
	if a == nil {
		return nil, fmt.Errorf("cannot commit nil artifact")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.artifacts[a.Stage]; exists {
		return nil, fmt.Errorf("artifact already committed for stage '%s'", a.Stage)
	}

	stored := a.Clone()
	c.version++
	stored.Seq = c.version
	c.artifacts[a.Stage] = stored
	c.commitLog = append(c.commitLog, CommitRecord{
		Seq:         stored.Seq,
		Stage:       stored.Stage,
		Revision:    stored.Revision,
		CommittedAt: time.Now().UTC(),
	})
	return stored.Clone(), nil
}

// Artifact returns a copy of the committed artifact for a stage, or nil.
func (c *DealContext) Artifact(stage StageID) *Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.artifacts[stage].Clone()
}

// HasArtifact checks if a stage has a committed artifact.
func (c *DealContext) HasArtifact(stage StageID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.artifacts[stage]
	return exists
}

// CommittedStages returns the set of stages with committed artifacts.
func (c *DealContext) CommittedStages() map[StageID]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	committed := make(map[StageID]bool, len(c.artifacts))
	for stage := range c.artifacts {
		committed[stage] = true
	}
	return committed
}

// SetFact records a shared fact (e.g. the target company profile).
func (c *DealContext) SetFact(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	c.facts[key] = deepCopyValue(value)
}

// Fact reads a shared fact. Returns nil if absent.
func (c *DealContext) Fact(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deepCopyValue(c.facts[key])
}

// AddRevisionNotes appends reviewer notes for a stage that was sent back
// for revision. Workers see them on the next execution attempt.
func (c *DealContext) AddRevisionNotes(stage StageID, notes string) {
	if notes == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	c.revisionNotes[stage] = append(c.revisionNotes[stage], notes)
}

// RevisionNotes returns accumulated revision notes for a stage.
func (c *DealContext) RevisionNotes(stage StageID) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyStringSlice(c.revisionNotes[stage])
}

// CommitLog returns a copy of the audit log.
func (c *DealContext) CommitLog() []CommitRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	log := make([]CommitRecord, len(c.commitLog))
	copy(log, c.commitLog)
	return log
}

// View takes a consistent read snapshot for a worker execution. The view
// carries deep copies: a worker cannot observe later commits, and nothing
// a worker does to the view reaches the shared context.
func (c *DealContext) View() *ContextView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	artifacts := make(map[StageID]*Artifact, len(c.artifacts))
	for stage, a := range c.artifacts {
		artifacts[stage] = a.Clone()
	}
	return &ContextView{
		dealID:    c.DealID,
		version:   c.version,
		artifacts: artifacts,
		facts:     deepCopyAnyMap(c.facts),
	}
}

// Clone creates a deep copy of the whole context.
func (c *DealContext) Clone() *DealContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &DealContext{
		DealID:        c.DealID,
		CreatedAt:     c.CreatedAt,
		version:       c.version,
		artifacts:     make(map[StageID]*Artifact, len(c.artifacts)),
		facts:         deepCopyAnyMap(c.facts),
		revisionNotes: make(map[StageID][]string, len(c.revisionNotes)),
	}
	for stage, a := range c.artifacts {
		clone.artifacts[stage] = a.Clone()
	}
	for stage, notes := range c.revisionNotes {
		clone.revisionNotes[stage] = copyStringSlice(notes)
	}
	clone.commitLog = make([]CommitRecord, len(c.commitLog))
	copy(clone.commitLog, c.commitLog)
	return clone
}

// ContextView is the read-only snapshot handed to workers. It exposes
// committed artifacts and shared facts; there are no mutators - a worker
// contributes state only through the artifact it returns.
type ContextView struct {
	dealID    string
	version   int
	artifacts map[StageID]*Artifact
	facts     map[string]any
}

// DealID returns the deal identifier.
func (v *ContextView) DealID() string { return v.dealID }

// Version returns the context version the view was taken at.
func (v *ContextView) Version() int { return v.version }

// Artifact returns the committed artifact for a stage, or nil.
func (v *ContextView) Artifact(stage StageID) *Artifact {
	return v.artifacts[stage]
}

// HasArtifact checks if a stage artifact is visible in this view.
func (v *ContextView) HasArtifact(stage StageID) bool {
	_, exists := v.artifacts[stage]
	return exists
}

// Fact reads a shared fact. Returns nil if absent.
func (v *ContextView) Fact(key string) any {
	return v.facts[key]
}

// Facts returns all shared facts.
func (v *ContextView) Facts() map[string]any {
	return v.facts
}
