package grounder

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProofreadUpdate is a generator-proposed correction to one column's
// gloss, surfaced after the winning query has executed when the generator notices a
// description doesn't match the data it actually saw (spec-adjacent
// supplement, grounded on the teacher's UpdateRichContextTool). It is
// intentionally inert: nothing in this package applies it. The schema
// context packet stays immutable across repair attempts per invariant —
// a ProofreadUpdate is a proposal for the out-of-band catalog-rebuild
// path (internal/catalog.Store's only writer), never an in-flight edit.
type ProofreadUpdate struct {
	Table      string
	Column     string
	NewGloss   string
	Reason     string
	ProposedAt time.Time
}

// proofreadInput mirrors UpdateRichContextTool's JSON contract
// (table_name/note_key/new_content/reason), renamed to this package's
// column-gloss vocabulary.
type proofreadInput struct {
	Table      string `json:"table_name"`
	Column     string `json:"column_name"`
	NewContent string `json:"new_content"`
	Reason     string `json:"reason"`
}

// ParseProofreadUpdate parses a generator-emitted proofread proposal,
// tolerating markdown code-fencing the way genclient.ExtractSQL does
// for SQL candidates.
func ParseProofreadUpdate(raw string) (ProofreadUpdate, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var in proofreadInput
	if err := json.Unmarshal([]byte(cleaned), &in); err != nil {
		return ProofreadUpdate{}, fmt.Errorf("malformed proofread proposal: %w", err)
	}
	if in.Table == "" || in.Column == "" || in.NewContent == "" {
		return ProofreadUpdate{}, fmt.Errorf("proofread proposal missing table_name, column_name or new_content")
	}
	return ProofreadUpdate{
		Table:    in.Table,
		Column:   in.Column,
		NewGloss: in.NewContent,
		Reason:   in.Reason,
	}, nil
}

// ProofreadHook collects proofread proposals raised while answering a
// single question, gated by config.Features.EnableProofread at the call
// site. It does not read or write the catalog; it is a sink the
// orchestrator drains at the end of a request and hands to whatever
// out-of-band process owns catalog rebuilds.
type ProofreadHook struct {
	proposals []ProofreadUpdate
}

// NewProofreadHook returns an empty hook.
func NewProofreadHook() *ProofreadHook {
	return &ProofreadHook{}
}

// Propose records a raw generator proposal if it parses; malformed
// proposals are dropped rather than failing the answer they arrived
// alongside, the same tolerance UpdateRichContextTool.Call shows
// its caller ("return a friendly error, do not interrupt inference").
func (h *ProofreadHook) Propose(raw string, now time.Time) (ProofreadUpdate, bool) {
	update, err := ParseProofreadUpdate(raw)
	if err != nil {
		return ProofreadUpdate{}, false
	}
	update.ProposedAt = now
	h.proposals = append(h.proposals, update)
	return update, true
}

// Drain returns every proposal collected so far and resets the hook.
func (h *ProofreadHook) Drain() []ProofreadUpdate {
	out := h.proposals
	h.proposals = nil
	return out
}
