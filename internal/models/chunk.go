package models

import "github.com/google/uuid"

// Chunk types sent over the wire.
const (
	ChunkTypeMessage = "message"
	ChunkTypeError   = "error"
)

// ChatChunk is one emotion-tagged segment of a generated reply. Chunks are
// transient: they are streamed to the client but never stored as-is.
type ChatChunk struct {
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Emotion  string         `json:"emotion"`
	ChunkID  string         `json:"chunk_id"`
	IsFinal  bool           `json:"is_final"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewChunk builds a message chunk with a fresh correlation id.
func NewChunk(content, emotion string, isFinal bool) ChatChunk {
	return ChatChunk{
		Type:    ChunkTypeMessage,
		Content: content,
		Emotion: emotion,
		ChunkID: uuid.NewString(),
		IsFinal: isFinal,
	}
}

// NewErrorChunk builds a terminal error chunk with the fixed concerned emotion.
func NewErrorChunk(content string) ChatChunk {
	return ChatChunk{
		Type:    ChunkTypeError,
		Content: content,
		Emotion: "concerned",
		ChunkID: uuid.NewString(),
		IsFinal: true,
	}
}
