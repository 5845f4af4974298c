package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pressroom/backend/internal/apperr"
	"github.com/pressroom/backend/internal/keyword"
	"github.com/pressroom/backend/internal/llm"
	"github.com/pressroom/backend/internal/metrics"
	"github.com/pressroom/backend/internal/quota"
	"github.com/pressroom/backend/internal/storage/models"
	"github.com/pressroom/backend/internal/textsplit"
	"github.com/pressroom/backend/internal/vector"
)

const DefaultChunkSize = 2000

var whitespace = regexp.MustCompile(`\s+`)

type DocumentStore interface {
	CreateDocuments(ctx context.Context, userID string, docs []models.Document) ([]models.Document, error)
}

type Accountant interface {
	Reserve(ctx context.Context, userID string, estimated int) (quota.Result, error)
	RecordUsage(ctx context.Context, userID string, event models.UsageEvent)
}

type Request struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Content string `json:"content"`
	// Format is "html" or "text"; empty sniffs the content.
	Format string `json:"format"`
}

type Result struct {
	ParentID    string   `json:"parent_id"`
	DocumentIDs []string `json:"document_ids"`
	Chunks      int      `json:"chunks"`
	Embedded    bool     `json:"embedded"`
	Indexed     bool     `json:"indexed"`
}

type Config struct {
	Store     DocumentStore
	Embedder  llm.Embedder
	Native    vector.Index
	Index     *keyword.Index
	Usage     Accountant
	ChunkSize int
	Logger    *zap.Logger
}

type Processor struct {
	store     DocumentStore
	embedder  llm.Embedder
	native    vector.Index
	index     *keyword.Index
	usage     Accountant
	chunkSize int
	logger    *zap.Logger
}

func NewProcessor(cfg Config) *Processor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Processor{
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		native:    cfg.Native,
		index:     cfg.Index,
		usage:     cfg.Usage,
		chunkSize: cfg.ChunkSize,
		logger:    cfg.Logger,
	}
}

// Ingest splits a document into chunks and stores one row per chunk. An
// embedding failure does not fail the ingest: chunks are stored without
// vectors and only the keyword fallback can find them.
func (p *Processor) Ingest(ctx context.Context, userID string, req Request) (Result, error) {
	started := time.Now()

	text, title := req.Content, strings.TrimSpace(req.Title)
	if isHTML(req) {
		cleaned, htmlTitle, err := cleanHTML(req.Content)
		if err != nil {
			return Result{}, apperr.NewValidationError("document", apperr.Violation{Field: "content", Reason: err.Error()})
		}
		text = cleaned
		if title == "" {
			title = htmlTitle
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, apperr.NewValidationError("document", apperr.Violation{Field: "content", Reason: "no text content"})
	}
	if title == "" {
		title = "Untitled"
	}

	chars := utf8.RuneCountInString(text)
	if p.usage != nil && p.embedder != nil {
		if _, err := p.usage.Reserve(ctx, userID, quota.EstimateTokens(chars)); err != nil {
			return Result{}, err
		}
	}

	parentID := uuid.New().String()
	chunks := textsplit.Split(parentID, text, p.chunkSize)
	for i := range chunks {
		chunks[i].OwnerID = userID
	}

	logger := p.logger.With(zap.String("user_id", userID), zap.String("parent_id", parentID))
	logger.Info("Processing document", zap.String("title", title), zap.Int("chunks", len(chunks)))

	embeddings := p.embed(ctx, logger, chunks)

	docs := make([]models.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = models.Document{
			ID:      ch.ID,
			Source:  req.Source,
			Title:   title,
			Content: ch.Content,
			Metadata: map[string]string{
				"parent_id":   parentID,
				"chunk_index": strconv.Itoa(ch.Index),
			},
		}
		if embeddings != nil {
			encoded, err := vector.EncodeEmbedding(embeddings[i])
			if err != nil {
				return Result{}, err
			}
			docs[i].Embedding = encoded
		}
	}

	stored, err := p.store.CreateDocuments(ctx, userID, docs)
	if err != nil {
		return Result{}, fmt.Errorf("failed to store document chunks: %w", err)
	}

	res := Result{
		ParentID:    parentID,
		DocumentIDs: make([]string, len(stored)),
		Chunks:      len(stored),
		Embedded:    embeddings != nil,
	}
	for i, d := range stored {
		res.DocumentIDs[i] = d.ID
	}

	if p.native != nil && embeddings != nil {
		items := make([]vector.Item, len(chunks))
		for i, ch := range chunks {
			items[i] = vector.Item{
				ID:         ch.ID,
				DocumentID: ch.ID,
				Content:    ch.Content,
				Title:      title,
				Source:     req.Source,
				Vector:     embeddings[i],
			}
		}
		if err := p.native.Upsert(ctx, userID, items); err != nil {
			logger.Warn("Native vector upsert failed", zap.String("backend", p.native.Name()), zap.Error(err))
		} else {
			res.Indexed = true
		}
	}

	if p.index != nil {
		p.index.AddChunks(chunks)
	}

	metrics.DocumentsIngested.Add(float64(len(stored)))

	if p.usage != nil {
		event := models.UsageEvent{
			EventType:   models.EventDocIngest,
			PromptChars: chars,
			LatencyMs:   time.Since(started).Milliseconds(),
			Metadata:    map[string]string{"parent_id": parentID, "chunks": strconv.Itoa(len(stored))},
		}
		if res.Embedded {
			event.TokensPrompt = quota.EstimateTokens(chars)
		}
		p.usage.RecordUsage(ctx, userID, event)
	}

	logger.Info("Document processed successfully",
		zap.Int("chunks", res.Chunks),
		zap.Bool("embedded", res.Embedded),
		zap.Bool("indexed", res.Indexed),
	)

	return res, nil
}

func (p *Processor) embed(ctx context.Context, logger *zap.Logger, chunks []textsplit.Chunk) [][]float32 {
	if p.embedder == nil || len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}

	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		logger.Warn("Embedding failed, storing chunks without vectors", zap.Error(err))
		return nil
	}
	if len(embeddings) != len(chunks) {
		logger.Warn("Embedding count mismatch, storing chunks without vectors",
			zap.Int("got", len(embeddings)),
			zap.Int("expected", len(chunks)),
		)
		return nil
	}
	return embeddings
}

func isHTML(req Request) bool {
	switch req.Format {
	case "html":
		return true
	case "text":
		return false
	}
	head := strings.ToLower(strings.TrimSpace(req.Content))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html") || strings.Contains(head, "<body")
}

// cleanHTML drops page chrome and returns the body text with paragraph
// breaks kept between block elements.
func cleanHTML(html string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find("script, style, nav, footer, header, aside, noscript").Remove()

	var paragraphs []string
	doc.Find("body").Find("p, h1, h2, h3, h4, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li").Length() > 0 {
			return
		}
		if t := collapse(s.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	if len(paragraphs) == 0 {
		if t := collapse(doc.Find("body").Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}

	return strings.Join(paragraphs, "\n\n"), title, nil
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
