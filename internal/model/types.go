package model

// Document is one ingested source. Re-ingesting the same identifier appends a
// fresh chunk set; nothing is merged or replaced.
type Document struct {
	ID       string
	Filename string
	Chunks   []Chunk
}

// Chunk is a bounded span of document text stored with its embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Index      int
	Embedding  []float32
	Metadata   map[string]string
}

// ScoredChunk is one retrieval hit with its query similarity.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// GradedChunk is a retrieval hit with its binary relevance verdict.
type GradedChunk struct {
	ScoredChunk
	Relevant bool
}

// Turn is one prior message of the conversation, consumed read-only.
type Turn struct {
	Role    string
	Content string
}

// IngestResult reports partial-success counts for one ingestion run.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Created    int    `json:"chunks_created"`
	Skipped    int    `json:"chunks_skipped"`
}

// GenerationRequest describes one answer-generation call. Grounded requests
// carry the relevant chunks; fallback requests carry none.
type GenerationRequest struct {
	Query    string
	History  []Turn
	Context  []Chunk
	Grounded bool
}

// Token is one fragment of a streamed answer. The producer closes the channel
// when the stream completes; a Token with Err set is always the last one.
type Token struct {
	Content string
	Err     error
}

type EventType string

const (
	EventStatus EventType = "status"
	EventChunk  EventType = "chunk"
	EventEnd    EventType = "end"
	EventError  EventType = "error"
)

// Coarse, user-safe reason codes carried by error events.
const (
	ReasonRetrievalUnavailable = "retrieval_unavailable"
	ReasonGenerationFailed     = "generation_failed"
)

// StreamEvent is one frame of the query/stream protocol. A query's sequence
// contains at most one terminal event (end or error).
type StreamEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}
