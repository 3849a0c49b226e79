package integrator

import (
	"context"

	"github.com/evalgo/memstore/internal/domain"
)

const (
	minRelatedIDs       = 3
	maxRelatedPerTopic  = 5
	maxNewRelatedPerRun = 5
)

// runRelationshipPass gives under-linked memories more related_ids by
// looking at what else shares their topics: for each memory without enough
// related_ids, for each topic, fetch up to 5 other active memories sharing
// that topic and add up to 5 new IDs total, capped, deduplicated, no
// self-reference.
func (in *Integrator) runRelationshipPass(ctx context.Context, tenantID string) (bool, error) {
	candidates, err := in.Memories.ListCandidates(ctx, tenantID, in.Config.BatchSize)
	if err != nil {
		return false, err
	}

	byTopic := indexByTopic(candidates)
	result := &batchResult{}

	for _, m := range candidates {
		if m.RelatedIDs.Len() >= minRelatedIDs {
			continue
		}
		added := 0
		expectedVersion := m.Version
		changed := false

		for _, topic := range m.Topics.Values() {
			if added >= maxNewRelatedPerRun {
				break
			}
			siblings := byTopic[topic]
			perTopic := 0
			for _, other := range siblings {
				if added >= maxNewRelatedPerRun || perTopic >= maxRelatedPerTopic {
					break
				}
				if other.ID == m.ID || other.Status != domain.StatusActive {
					continue
				}
				if m.RelatedIDs.Has(other.ID) {
					continue
				}
				if err := m.AddRelated(other.ID); err == nil {
					added++
					perTopic++
					changed = true
				}
			}
		}

		if !changed {
			continue
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

func indexByTopic(memories []*domain.Memory) map[string][]*domain.Memory {
	index := make(map[string][]*domain.Memory)
	for _, m := range memories {
		if m.Status != domain.StatusActive {
			continue
		}
		for _, topic := range m.Topics.Values() {
			index[topic] = append(index[topic], m)
		}
	}
	return index
}
