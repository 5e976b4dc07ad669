// Package checkpoint implements human approval gates. A gated stage
// submits its pending artifact here and blocks until a reviewer decides:
// approve commits it, reject fails the run, revise sends the stage back
// with notes. Nothing a reviewer has not approved reaches the deal context.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mna-automation/dealcore/dealengine/deal"
)

// Decision is a reviewer's verdict on a pending artifact.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionRevise  Decision = "revise"
)

// DecisionFromString parses a decision value.
func DecisionFromString(value string) (Decision, error) {
	switch Decision(value) {
	case DecisionApprove, DecisionReject, DecisionRevise:
		return Decision(value), nil
	default:
		return "", fmt.Errorf("invalid checkpoint decision: '%s'", value)
	}
}

// Resolution is the reviewer's full response to a checkpoint.
type Resolution struct {
	Decision   Decision  `json:"decision"`
	Notes      string    `json:"notes,omitempty"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Status tracks the lifecycle of a checkpoint request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// Request is one pending approval. The artifact carried is the stage's
// uncommitted output: reviewers see exactly what would be committed.
type Request struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	DealID    string         `json:"deal_id"`
	Stage     deal.StageID   `json:"stage"`
	Summary   string         `json:"summary"`
	Artifact  *deal.Artifact `json:"artifact"`
	CreatedAt time.Time      `json:"created_at"`

	status     Status
	resolution chan *Resolution
}

// RequestOption is a functional option for configuring requests.
type RequestOption func(*Request)

// WithSummary sets what the reviewer is being asked to approve.
func WithSummary(summary string) RequestOption {
	return func(r *Request) { r.Summary = summary }
}

// WithArtifact attaches the pending artifact for review.
func WithArtifact(a *deal.Artifact) RequestOption {
	return func(r *Request) { r.Artifact = a.Clone() }
}

// NewRequest creates a pending checkpoint request.
func NewRequest(runID, dealID string, stage deal.StageID, opts ...RequestOption) *Request {
	r := &Request{
		ID:         "chk_" + uuid.New().String()[:16],
		RunID:      runID,
		DealID:     dealID,
		Stage:      stage,
		CreatedAt:  time.Now().UTC(),
		status:     StatusPending,
		resolution: make(chan *Resolution, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status returns the request's lifecycle status. Only stable after the
// gate has finished with the request.
func (r *Request) Status() Status { return r.status }

// IsPending checks if the request still awaits a decision.
func (r *Request) IsPending() bool { return r.status == StatusPending }
