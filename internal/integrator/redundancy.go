package integrator

import (
	"context"
	"math"

	"github.com/evalgo/memstore/internal/domain"
)

// runRedundancyPass compares every pair (m_i, m_j), i<j, in the batch and
// collapses near-duplicates above the similarity threshold. Once a memory is
// archived or replaced in this pass it is excluded from further pairs, so no
// two Active memories above threshold survive a single pass.
func (in *Integrator) runRedundancyPass(ctx context.Context, tenantID string) (bool, error) {
	candidates, err := in.Memories.ListCandidates(ctx, tenantID, in.Config.BatchSize)
	if err != nil {
		return false, err
	}

	result := &batchResult{}
	resolved := make(map[string]bool, len(candidates))

	for i := 0; i < len(candidates); i++ {
		mi := candidates[i]
		if resolved[mi.ID] {
			continue
		}
		for j := i + 1; j < len(candidates); j++ {
			mj := candidates[j]
			if resolved[mi.ID] || resolved[mj.ID] {
				continue
			}
			sim := similarity(mi, mj)
			if sim < in.Config.SimilarityThreshold {
				continue
			}

			action := decideRedundancyAction(mi, mj)
			if err := in.applyRedundancyAction(ctx, action, mi, mj); err != nil {
				if abortErr := result.recordFailure(err); abortErr != nil {
					return result.ok(), abortErr
				}
				continue
			}
			result.recordSuccess()
			switch action {
			case actionArchiveJ, actionReplaceJ:
				resolved[mj.ID] = true
			case actionMerge:
				resolved[mj.ID] = true
			}
		}
	}
	return result.ok(), nil
}

type redundancyAction int

const (
	actionArchiveJ redundancyAction = iota
	actionReplaceJ
	actionMerge
)

// decideRedundancyAction makes a three-way decision: archive m_j when m_i
// is strictly more important; otherwise delete m_j when m_i's content is
// longer; otherwise merge. The delete goes through MemoryRepository.Delete,
// which the Postgres repository implements as a soft delete (status
// Deleted); the row is not physically removed.
func decideRedundancyAction(mi, mj *domain.Memory) redundancyAction {
	if mi.Importance > mj.Importance {
		return actionArchiveJ
	}
	if len(mi.Content) > len(mj.Content) {
		return actionReplaceJ
	}
	return actionMerge
}

func (in *Integrator) applyRedundancyAction(ctx context.Context, action redundancyAction, mi, mj *domain.Memory) error {
	switch action {
	case actionArchiveJ:
		expected := mj.Version
		if err := mj.Archive(); err != nil {
			return nil
		}
		return in.Memories.Update(ctx, mj, expected)
	case actionReplaceJ:
		return in.Memories.Delete(ctx, mj.TenantID, mj.ID)
	default: // actionMerge
		expected := mi.Version
		mergeInto(mi, mj)
		if err := in.Memories.Update(ctx, mi, expected); err != nil {
			return err
		}
		// The merged-away memory leaves the active set, or the pass would
		// keep finding the same near-duplicate pair.
		expectedJ := mj.Version
		if err := mj.Archive(); err != nil {
			return nil
		}
		return in.Memories.Update(ctx, mj, expectedJ)
	}
}

// mergeInto folds mj's tags/topics/related into mi (the retained memory),
// keeping the larger importance and bumping mi's version past both inputs'.
func mergeInto(mi, mj *domain.Memory) {
	for _, t := range mj.Tags.Values() {
		mi.AddTag(t)
	}
	for _, t := range mj.Topics.Values() {
		mi.AddTopic(t)
	}
	for _, id := range mj.RelatedIDs.Values() {
		if id != mi.ID {
			_ = mi.AddRelated(id)
		}
	}
	if mj.Importance > mi.Importance {
		mi.SetImportance(mj.Importance)
	}
	if mj.Version >= mi.Version {
		mi.Version = mj.Version + 1
	}
}

// similarity computes cosine similarity over embeddings when both memories
// have one, falling back to Jaccard over keywords otherwise.
func similarity(a, b *domain.Memory) float64 {
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		return cosineSimilarity(a.Embedding, b.Embedding)
	}
	return jaccard(a.Keywords.Values(), b.Keywords.Values())
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	intersection := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, v := range b {
		seen[v] = true
		if set[v] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
