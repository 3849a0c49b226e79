package integrator

import (
	"context"
	"math"
	"time"
)

const (
	ageFactorFresh  = 1.0
	ageFactorWeek   = 0.95
	ageFactorStale  = 0.85
	accessBoost     = 0.1
	minorThreshold  = 0.1
)

// runImportancePass recomputes each candidate's importance from its age and
// access recency. A memory whose recomputed importance falls below the
// configured floor is archived regardless of how small the move was; above
// the floor, the new value is written only when it moves by more than 0.1.
func (in *Integrator) runImportancePass(ctx context.Context, tenantID string) (bool, error) {
	candidates, err := in.Memories.ListCandidates(ctx, tenantID, in.Config.BatchSize)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	result := &batchResult{}
	for _, m := range candidates {
		age := now.Sub(m.CreatedAt)
		next := nextImportance(m.Importance, age, m.AccessedWithin(24*time.Hour, now))

		if next >= in.Config.MinImportance && math.Abs(next-m.Importance) <= minorThreshold {
			continue
		}

		expectedVersion := m.Version
		m.SetImportance(next)
		if next < in.Config.MinImportance {
			if err := m.Archive(); err != nil {
				// already archived by an earlier pass in this batch; not fatal.
				continue
			}
		}
		if err := in.Memories.Update(ctx, m, expectedVersion); err != nil {
			if abortErr := result.recordFailure(err); abortErr != nil {
				return result.ok(), abortErr
			}
			continue
		}
		result.recordSuccess()
	}
	return result.ok(), nil
}

// nextImportance is the decay formula: importance scaled by the age factor,
// then bumped additively by 0.1 (saturating at 1.0) when the memory was
// accessed within the last day.
func nextImportance(importance float64, age time.Duration, accessedRecently bool) float64 {
	next := importance * ageFactor(age)
	if accessedRecently {
		next = math.Min(next+accessBoost, 1.0)
	}
	return next
}

func ageFactor(age time.Duration) float64 {
	switch {
	case age < 24*time.Hour:
		return ageFactorFresh
	case age < 168*time.Hour:
		return ageFactorWeek
	default:
		return ageFactorStale
	}
}
