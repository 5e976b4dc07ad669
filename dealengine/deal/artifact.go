package deal

import (
	"time"
)

// Artifact is the immutable output of one stage. The Seq field is the
// monotonic commit sequence number assigned by the DealContext when the
// artifact is committed; it is zero until then.
type Artifact struct {
	Stage      StageID        `json:"stage"`
	Kind       string         `json:"kind"`
	Seq        int            `json:"seq"`
	Revision   int            `json:"revision"`
	Summary    string         `json:"summary,omitempty"`
	Payload    map[string]any `json:"payload"`
	ProducedAt time.Time      `json:"produced_at"`
}

// NewArtifact creates an artifact for the given stage.
func NewArtifact(stage StageID, kind string, payload map[string]any) *Artifact {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Artifact{
		Stage:      stage,
		Kind:       kind,
		Payload:    payload,
		ProducedAt: time.Now().UTC(),
	}
}

// Clone creates a deep copy of the artifact.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	clone := &Artifact{
		Stage:      a.Stage,
		Kind:       a.Kind,
		Seq:        a.Seq,
		Revision:   a.Revision,
		Summary:    a.Summary,
		Payload:    deepCopyAnyMap(a.Payload),
		ProducedAt: a.ProducedAt,
	}
	return clone
}

// Field reads a payload field. Returns nil if absent.
func (a *Artifact) Field(key string) any {
	if a == nil || a.Payload == nil {
		return nil
	}
	return a.Payload[key]
}

// Equivalent reports whether two artifacts carry the same decisions.
// Timestamps and commit sequence numbers are ignored: idempotent workers
// produce equivalent artifacts, not byte-identical ones.
func (a *Artifact) Equivalent(other *Artifact) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a.Stage != other.Stage || a.Kind != other.Kind || a.Revision != other.Revision {
		return false
	}
	return anyMapsEqual(a.Payload, other.Payload)
}

func anyMapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !anyValuesEqual(va, vb) {
			return false
		}
	}
	return true
}

func anyValuesEqual(a, b any) bool {
	switch va := a.(type) {
	case map[string]any:
		vb, ok := b.(map[string]any)
		return ok && anyMapsEqual(va, vb)
	case []any:
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !anyValuesEqual(va[i], vb[i]) {
				return false
			}
		}
		return true
	case []string:
		vb, ok := b.([]string)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if va[i] != vb[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
