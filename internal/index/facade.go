// Package index exposes the question-answering capability over a pre-built
// vector index. The read side (queries) and write side (rebuilds) are
// distinct collections joined only by an atomic alias swap, so a rebuild in
// progress never affects in-flight queries.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"askhub.app/askhub/common/id"
	"askhub.app/askhub/core/config"
	"askhub.app/askhub/internal/domain"
	"askhub.app/askhub/internal/index/answerer"
	"askhub.app/askhub/internal/index/embedding"
	"askhub.app/askhub/internal/index/vectorstore/qdrant"
)

// Facade is the single entry point for retrieval and generation.
type Facade interface {
	// Query answers a question from the read index. Returns
	// domain.ErrNotReady when no index has been built yet.
	Query(ctx context.Context, text string) (domain.Answer, error)
	// Rebuild replaces the write index from a document batch and atomically
	// re-points the read alias at it. Serialized; never blocks queries.
	Rebuild(ctx context.Context, docs []domain.Document) error
	// Reset drops all cached resources. The next Query rebuilds them
	// transparently.
	Reset()
}

// Store is the vector-store surface the facade needs. *qdrant.Client
// implements it.
type Store interface {
	CreateCollection(ctx context.Context, name string, dimension int) error
	DropCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []qdrant.Point) error
	Search(ctx context.Context, collection string, vector []float64, topK int) ([]qdrant.Hit, error)
	SwapAlias(ctx context.Context, alias, collection string) error
	ResolveAlias(ctx context.Context, alias string) (string, error)
}

type Config struct {
	ReadAlias        string
	CollectionPrefix string
	TopK             int
}

// Deps are factories for the expensive shared resources. They are invoked
// lazily on first use and the results cached for the process lifetime.
type Deps struct {
	NewEmbedder func() (embedding.Embedder, error)
	NewAnswerer func() (answerer.Answerer, error)
	NewStore    func() (Store, error)
}

type facade struct {
	cfg  Config
	deps Deps

	mu  sync.Mutex // guards res
	res *resources

	buildMu sync.Mutex // serializes rebuilds, independent of queries
}

type resources struct {
	embedder embedding.Embedder
	answerer answerer.Answerer
	store    Store
}

func New(cfg Config, deps Deps) Facade {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &facade{cfg: cfg, deps: deps}
}

// resources returns the cached resource set, constructing it on first use.
func (f *facade) resources() (*resources, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.res != nil {
		return f.res, nil
	}

	emb, err := f.deps.NewEmbedder()
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}
	ans, err := f.deps.NewAnswerer()
	if err != nil {
		return nil, fmt.Errorf("building answerer: %w", err)
	}
	store, err := f.deps.NewStore()
	if err != nil {
		return nil, fmt.Errorf("building vector store: %w", err)
	}

	f.res = &resources{embedder: emb, answerer: ans, store: store}
	slog.Info("index resources built")
	return f.res, nil
}

func (f *facade) Reset() {
	f.mu.Lock()
	f.res = nil
	f.mu.Unlock()
	slog.Info("index resources reset")
}

func (f *facade) Query(ctx context.Context, text string) (domain.Answer, error) {
	res, err := f.resources()
	if err != nil {
		return domain.Answer{}, err
	}

	vectors, err := res.embedder.Embed(ctx, []string{text})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("embedding question: %w", err)
	}

	hits, err := res.store.Search(ctx, f.cfg.ReadAlias, vectors[0], f.cfg.TopK)
	if err != nil {
		if qdrant.IsNotFound(err) {
			return domain.Answer{}, domain.ErrNotReady
		}
		return domain.Answer{}, fmt.Errorf("searching index: %w", err)
	}
	if len(hits) == 0 {
		return domain.Answer{}, domain.ErrNotReady
	}

	passages := make([]answerer.Passage, len(hits))
	sources := make([]domain.Source, len(hits))
	for i, h := range hits {
		passages[i] = answerer.Passage{Title: h.Payload.Title, Text: h.Payload.Text}
		sources[i] = domain.Source{Title: h.Payload.Title, URL: h.Payload.URL}
	}

	answerText, err := res.answerer.Answer(ctx, text, passages)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	// Sources keep retrieval order; the formatter owns deduplication.
	return domain.Answer{Text: answerText, Sources: sources}, nil
}

const embedBatchSize = 64

func (f *facade) Rebuild(ctx context.Context, docs []domain.Document) error {
	f.buildMu.Lock()
	defer f.buildMu.Unlock()

	res, err := f.resources()
	if err != nil {
		return err
	}

	chunks := splitDocuments(docs)
	if len(chunks) == 0 {
		return fmt.Errorf("no indexable content in %d documents", len(docs))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float64
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch, err := res.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("embedding batch %d: %w", start/embedBatchSize, err)
		}
		vectors = append(vectors, batch...)
	}

	collection := fmt.Sprintf("%s_%d", f.cfg.CollectionPrefix, id.New())
	if err := res.store.CreateCollection(ctx, collection, len(vectors[0])); err != nil {
		return fmt.Errorf("creating collection %s: %w", collection, err)
	}

	points := make([]qdrant.Point, len(chunks))
	for i, c := range chunks {
		points[i] = qdrant.Point{ID: id.New(), Vector: vectors[i], Payload: c}
	}
	for start := 0; start < len(points); start += embedBatchSize {
		end := min(start+embedBatchSize, len(points))
		if err := res.store.Upsert(ctx, collection, points[start:end]); err != nil {
			return fmt.Errorf("upserting points: %w", err)
		}
	}

	previous, err := res.store.ResolveAlias(ctx, f.cfg.ReadAlias)
	if err != nil && !qdrant.IsNotFound(err) {
		return fmt.Errorf("resolving read alias: %w", err)
	}

	if err := res.store.SwapAlias(ctx, f.cfg.ReadAlias, collection); err != nil {
		return fmt.Errorf("swapping read alias: %w", err)
	}

	if previous != "" && previous != collection {
		if err := res.store.DropCollection(ctx, previous); err != nil {
			slog.Warn("dropping previous collection failed", "collection", previous, "error", err)
		}
	}

	slog.Info("index rebuilt",
		"collection", collection,
		"documents", len(docs),
		"chunks", len(chunks))
	return nil
}

// splitDocuments breaks long documents into paragraph-aligned chunks small
// enough to embed and to hand to the answerer as grounding context.
const maxChunkLen = 1500

func splitDocuments(docs []domain.Document) []qdrant.Payload {
	var chunks []qdrant.Payload
	for _, doc := range docs {
		text := strings.TrimSpace(doc.Text)
		if text == "" {
			continue
		}
		for _, piece := range splitText(text, maxChunkLen) {
			chunks = append(chunks, qdrant.Payload{Title: doc.Title, URL: doc.URL, Text: piece})
		}
	}
	return chunks
}

func splitText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var pieces []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > limit {
			pieces = append(pieces, current.String())
			current.Reset()
		}
		// Oversized paragraphs are cut mid-text rather than dropped. The cut
		// backs off to a rune boundary so no chunk carries a torn rune.
		for len(para) > limit {
			cut := limit
			for cut > 0 && !utf8.RuneStart(para[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			pieces = append(pieces, para[:cut])
			para = para[cut:]
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

// FromConfig wires the production resource factories.
func FromConfig(cfg config.Config) Facade {
	return New(Config{
		ReadAlias:        cfg.Index.ReadAlias,
		CollectionPrefix: cfg.Index.CollectionPrefix,
		TopK:             cfg.Index.TopK,
	}, Deps{
		NewEmbedder: func() (embedding.Embedder, error) {
			return embedding.New(embedding.Config{
				APIKey:  cfg.OpenAI.APIKey,
				BaseURL: cfg.OpenAI.BaseURL,
				Model:   cfg.OpenAI.EmbedModel,
			})
		},
		NewAnswerer: func() (answerer.Answerer, error) {
			return answerer.New(answerer.Config{
				APIKey:    cfg.OpenAI.APIKey,
				BaseURL:   cfg.OpenAI.BaseURL,
				Model:     cfg.OpenAI.ChatModel,
				MaxTokens: cfg.OpenAI.MaxTokens,
			})
		},
		NewStore: func() (Store, error) {
			return qdrant.NewClient(qdrant.Config{
				URL:    cfg.Index.QdrantURL,
				APIKey: cfg.Index.QdrantAPIKey,
			}), nil
		},
	})
}
