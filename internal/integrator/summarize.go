package integrator

import (
	"context"
	"strings"

	"github.com/evalgo/memstore/internal/domain"
)

const fallbackSummaryWords = 20

// summarize produces a short gist for content: the supplied Summarizer
// collaborator if one is wired, or a first-N-words fallback otherwise. Never
// touches m.Content itself.
func (in *Integrator) summarize(ctx context.Context, content string) (string, error) {
	if in.Summarizer != nil {
		return in.Summarizer.Summarize(ctx, content)
	}
	return firstNWords(content, fallbackSummaryWords), nil
}

func firstNWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ") + "..."
}

// runSummarizationPass selects Active Episodic memories with an empty gist
// and fills it in, leaving Content untouched.
func (in *Integrator) runSummarizationPass(ctx context.Context, tenantID string) (bool, error) {
	candidates, err := in.Memories.ListCandidates(ctx, tenantID, in.Config.BatchSize)
	if err != nil {
		return false, err
	}

	result := &batchResult{}
	for _, m := range candidates {
		if m.Kind != domain.KindEpisodic || m.Gist != "" {
			continue
		}
		gist, err := in.summarize(ctx, m.Content)
		if err != nil {
			if abortErr := result.recordFailure(err); abortErr != nil {
				return result.ok(), abortErr
			}
			continue
		}
		expectedVersion := m.Version
		m.SetGist(gist)
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
