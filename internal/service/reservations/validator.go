package reservations

import (
	"context"
	"fmt"

	"reservo/backend/internal/store"
)

// Validator decides whether a candidate may be written. Field presence and
// the parameter whitelist are enforced earlier by ParseCandidate and
// ParsePatch.
type Validator struct {
	conflicts store.ConflictFinder
}

func NewValidator(conflicts store.ConflictFinder) *Validator {
	return &Validator{conflicts: conflicts}
}

func (v *Validator) Validate(ctx context.Context, c Candidate) error {
	if !c.Window().Valid() {
		return invalidTimeOrderError()
	}

	found, err := v.conflicts.FindConflicts(ctx, store.ConflictQuery{
		ClientID:   c.ClientID,
		ProviderID: c.ProviderID,
		Window:     c.Window(),
		ExcludeID:  c.ExcludeID,
	})
	if err != nil {
		return fmt.Errorf("find conflicts: %w", err)
	}
	if len(found) > 0 {
		return conflictError()
	}
	return nil
}
