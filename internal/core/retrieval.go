package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aicaas.com/chatbot-backend/internal/blob"
	"aicaas.com/chatbot-backend/internal/extract"
	"aicaas.com/chatbot-backend/internal/metrics"
	"aicaas.com/chatbot-backend/internal/store"
)

const (
	recentDocuments  = 3
	NoKnowledgeFound = "No knowledge base documents found."
)

// Retriever builds the prompt context from a chat's most recent documents.
type Retriever struct {
	db           *store.SQLiteStore
	fetcher      blob.Fetcher
	extractor    *extract.Extractor
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	log          *zap.SugaredLogger
}

func NewRetriever(db *store.SQLiteStore, fetcher blob.Fetcher, extractor *extract.Extractor,
	fetchTimeout time.Duration, m *metrics.Metrics, log *zap.SugaredLogger) *Retriever {
	return &Retriever{db: db, fetcher: fetcher, extractor: extractor, fetchTimeout: fetchTimeout, metrics: m, log: log}
}

// Retrieve never fails. Documents are the three newest entries of the bot
// plus the tenant's general knowledge; each one that cannot be read turns
// into an inline placeholder. Selection is by recency, so query only shows
// up in logs.
func (r *Retriever) Retrieve(ctx context.Context, botID *string, tenantID, query string) string {
	entries, err := r.db.RecentKnowledge(ctx, botID, tenantID, recentDocuments)
	if err != nil {
		r.log.Errorw("failed to select knowledge", "error", err)
		return NoKnowledgeFound
	}
	if len(entries) == 0 {
		return NoKnowledgeFound
	}
	r.log.Debugw("retrieving knowledge", "documents", len(entries), "query_len", len(query))

	results := make([]extract.Result, len(entries))
	var g errgroup.Group
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = r.readDocument(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	read := 0
	for i, res := range results {
		if res.Degraded {
			r.metrics.ExtractionDegraded.WithLabelValues(res.Kind.String()).Inc()
		} else {
			read++
		}
		if res.VisionUsed {
			r.metrics.VisionFallbacks.WithLabelValues(res.Kind.String()).Inc()
		}
		fmt.Fprintf(&b, "\n--- DOCUMENT: %s ---\n%s\n--- END DOCUMENT ---\n", entries[i].Filename, extract.Truncate(res.Text))
	}
	fmt.Fprintf(&b, "\n[SYSTEM NOTE: Loaded %d recent documents via RAG.]", read)
	return b.String()
}

func (r *Retriever) readDocument(ctx context.Context, entry store.KnowledgeEntry) extract.Result {
	// Unsupported formats are never fetched.
	if extract.KindForFilename(entry.Filename) == extract.KindUnsupported {
		return extract.Unsupported(entry.Filename)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	data, err := r.fetcher.Fetch(fetchCtx, entry.Location)
	cancel()
	if err != nil {
		r.log.Warnw("failed to fetch document", "knowledge_id", entry.ID, "error", err)
		return extract.FetchFailed(entry.Filename, err)
	}
	return r.extractor.Extract(ctx, entry.Filename, data)
}
