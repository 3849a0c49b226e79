package integrator

import (
	"context"
	"strings"

	"github.com/evalgo/memstore/internal/domain"
	"github.com/evalgo/memstore/internal/store"
)

// Embedder turns free text into the dense vector an IndexRecord carries.
// Dehydration is the synchronous counterpart to the periodic summarization
// task, sharing its first-N-words fallback.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DehydrationService compresses a raw conversational Turn into a Memory plus
// its retrieval-facing IndexRecord: summary, keywords, and embedding.
type DehydrationService struct {
	Memories     store.MemoryRepository
	IndexRecords store.IndexRecordRepository
	Turns        store.TurnRepository
	Embedder     Embedder
	Summarizer   Summarizer
}

// NewDehydrationService constructs a DehydrationService; Embedder and
// Summarizer are both optional collaborators (nil Embedder skips the vector
// column, nil Summarizer falls back to first-N-words).
func NewDehydrationService(memories store.MemoryRepository, index store.IndexRecordRepository, turns store.TurnRepository, embedder Embedder, summarizer Summarizer) *DehydrationService {
	return &DehydrationService{Memories: memories, IndexRecords: index, Turns: turns, Embedder: embedder, Summarizer: summarizer}
}

// Dehydrate folds a single Turn into a new Episodic Memory and its
// IndexRecord, then marks the turn dehydrated. It never reprocesses a turn
// already marked.
func (d *DehydrationService) Dehydrate(ctx context.Context, turn *domain.Turn, userID string) (*domain.Memory, error) {
	if turn.Dehydrated {
		return nil, nil
	}

	m, err := domain.NewMemory(turn.TenantID, userID, domain.KindEpisodic, turn.Content)
	if err != nil {
		return nil, err
	}
	m.Source = "turn"
	m.SourceID = turn.SessionID
	m.Dehydrated = &domain.TurnRef{SessionID: turn.SessionID, TurnID: turn.ID}

	gist, err := d.summarize(ctx, turn.Content)
	if err != nil {
		return nil, err
	}
	m.SetGist(gist)
	for _, kw := range extractKeywords(turn.Content) {
		m.AddKeyword(kw)
	}

	if err := d.Memories.Create(ctx, m); err != nil {
		return nil, err
	}

	var embedding []float32
	if d.Embedder != nil {
		embedding, err = d.Embedder.Embed(ctx, turn.Content)
		if err != nil {
			return nil, err
		}
	}
	rec, err := domain.NewIndexRecord(m)
	if err != nil {
		return nil, err
	}
	searchText := strings.Join([]string{m.Gist, strings.Join(m.Keywords.Values(), " "), m.Content}, " ")
	if err := d.IndexRecords.Upsert(ctx, rec, embedding, searchText); err != nil {
		return nil, err
	}

	if err := d.Turns.MarkDehydrated(ctx, turn.TenantID, turn.ID); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *DehydrationService) summarize(ctx context.Context, content string) (string, error) {
	if d.Summarizer != nil {
		return d.Summarizer.Summarize(ctx, content)
	}
	return firstNWords(content, fallbackSummaryWords), nil
}

// extractKeywords pulls a handful of distinguishing words out of content: a
// plain stopword-filtered split, good enough as a lexical-search seed when
// no richer NLP collaborator is wired.
func extractKeywords(content string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(content)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) < 4 || stopwords[w] {
			continue
		}
		out = append(out, w)
		if len(out) >= 8 {
			break
		}
	}
	return out
}

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"were": true, "been": true, "your": true, "about": true, "there": true,
	"their": true, "would": true, "could": true, "should": true,
}
