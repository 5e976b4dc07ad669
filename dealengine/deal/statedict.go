package deal

import (
	"fmt"
	"time"
)

// ToStateDict serializes the context to a flat map for persistence.
func (c *DealContext) ToStateDict() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	artifacts := make(map[string]any, len(c.artifacts))
	for stage, a := range c.artifacts {
		artifacts[string(stage)] = map[string]any{
			"stage":       string(a.Stage),
			"kind":        a.Kind,
			"seq":         a.Seq,
			"revision":    a.Revision,
			"summary":     a.Summary,
			"payload":     deepCopyAnyMap(a.Payload),
			"produced_at": a.ProducedAt.Format(time.RFC3339Nano),
		}
	}

	notes := make(map[string]any, len(c.revisionNotes))
	for stage, stageNotes := range c.revisionNotes {
		entries := make([]any, len(stageNotes))
		for i, n := range stageNotes {
			entries[i] = n
		}
		notes[string(stage)] = entries
	}

	log := make([]any, len(c.commitLog))
	for i, rec := range c.commitLog {
		log[i] = map[string]any{
			"seq":          rec.Seq,
			"stage":        string(rec.Stage),
			"revision":     rec.Revision,
			"committed_at": rec.CommittedAt.Format(time.RFC3339Nano),
		}
	}

	return map[string]any{
		"deal_id":        c.DealID,
		"created_at":     c.CreatedAt.Format(time.RFC3339Nano),
		"version":        c.version,
		"artifacts":      artifacts,
		"facts":          deepCopyAnyMap(c.facts),
		"revision_notes": notes,
		"commit_log":     log,
	}
}

// FromStateDict restores a context from a persisted state dict.
func FromStateDict(state map[string]any) (*DealContext, error) {
	dealID, ok := state["deal_id"].(string)
	if !ok || dealID == "" {
		return nil, fmt.Errorf("state dict missing deal_id")
	}

	ctx := &DealContext{
		DealID:        dealID,
		artifacts:     make(map[StageID]*Artifact),
		facts:         make(map[string]any),
		revisionNotes: make(map[StageID][]string),
	}

	if raw, ok := state["created_at"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at: %w", err)
		}
		ctx.CreatedAt = t
	}
	ctx.version = asInt(state["version"])

	if facts, ok := state["facts"].(map[string]any); ok {
		ctx.facts = deepCopyAnyMap(facts)
	}

	if artifacts, ok := state["artifacts"].(map[string]any); ok {
		for key, raw := range artifacts {
			entry, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("invalid artifact entry for stage '%s'", key)
			}
			stage, err := StageIDFromString(key)
			if err != nil {
				return nil, err
			}
			a := &Artifact{
				Stage:    stage,
				Seq:      asInt(entry["seq"]),
				Revision: asInt(entry["revision"]),
			}
			if kind, ok := entry["kind"].(string); ok {
				a.Kind = kind
			}
			if summary, ok := entry["summary"].(string); ok {
				a.Summary = summary
			}
			if payload, ok := entry["payload"].(map[string]any); ok {
				a.Payload = deepCopyAnyMap(payload)
			}
			if raw, ok := entry["produced_at"].(string); ok {
				t, err := time.Parse(time.RFC3339Nano, raw)
				if err != nil {
					return nil, fmt.Errorf("invalid produced_at for stage '%s': %w", key, err)
				}
				a.ProducedAt = t
			}
			ctx.artifacts[stage] = a
		}
	}

	if notes, ok := state["revision_notes"].(map[string]any); ok {
		for key, raw := range notes {
			stage, err := StageIDFromString(key)
			if err != nil {
				return nil, err
			}
			entries, ok := raw.([]any)
			if !ok {
				continue
			}
			for _, entry := range entries {
				if note, ok := entry.(string); ok {
					ctx.revisionNotes[stage] = append(ctx.revisionNotes[stage], note)
				}
			}
		}
	}

	if log, ok := state["commit_log"].([]any); ok {
		for _, raw := range log {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			rec := CommitRecord{
				Seq:      asInt(entry["seq"]),
				Revision: asInt(entry["revision"]),
			}
			if stage, ok := entry["stage"].(string); ok {
				rec.Stage = StageID(stage)
			}
			if raw, ok := entry["committed_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
					rec.CommittedAt = t
				}
			}
			ctx.commitLog = append(ctx.commitLog, rec)
		}
	}

	return ctx, nil
}

// asInt tolerates the numeric types a JSON round trip produces.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// deepCopyAnyMap deep-copies a string-keyed map, recursing into nested
// maps and slices. Scalar values are copied by assignment.
func deepCopyAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = deepCopyValue(value)
	}
	return dst
}

func deepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return deepCopyAnyMap(v)
	case []any:
		copied := make([]any, len(v))
		for i, item := range v {
			copied[i] = deepCopyValue(item)
		}
		return copied
	case []string:
		return copyStringSlice(v)
	case []map[string]any:
		copied := make([]map[string]any, len(v))
		for i, item := range v {
			copied[i] = deepCopyAnyMap(item)
		}
		return copied
	default:
		return value
	}
}

func copyStringSlice(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}
