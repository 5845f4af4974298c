package models

import "time"

type Document struct {
	ID      string
	UserID  string
	Source  string
	Title   string
	Content string
	// Embedding is a JSON-encoded float array, empty when not embedded.
	Embedding string
	Metadata  map[string]string
	CreatedAt time.Time
}

const (
	EventAIGenerate    = "ai_generate"
	EventRAGSearch     = "rag_search"
	EventDocIngest     = "doc_ingest"
	EventAdGenerate    = "ad_generate"
	EventImageGenerate = "image_generate"
)

// UsageEvent is an append-only ledger row.
type UsageEvent struct {
	ID               string
	UserID           string
	EventType        string
	PromptChars      int
	CompletionChars  int
	TokensPrompt     int
	TokensCompletion int
	Model            string
	LatencyMs        int64
	CostUSD          *float64
	Metadata         map[string]string
	CreatedAt        time.Time
}

func (e UsageEvent) TotalTokens() int {
	return e.TokensPrompt + e.TokensCompletion
}

// UserProfile holds the token counter for one calendar month ("2006-01").
type UserProfile struct {
	UserID            string
	Period            string
	MonthlyTokensUsed int
	UpdatedAt         time.Time
}

type UsageAggregate struct {
	EventType        string `json:"event_type"`
	Events           int    `json:"events"`
	TokensPrompt     int    `json:"tokens_prompt"`
	TokensCompletion int    `json:"tokens_completion"`
}

type ChainTrace struct {
	RunID      string    `json:"run_id"`
	Chain      string    `json:"chain"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	LatencyMs  int64     `json:"latency_ms"`
	OutputHash string    `json:"output_hash,omitempty"`
	Error      string    `json:"error,omitempty"`
}
