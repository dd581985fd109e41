package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"emochat/internal/chat"
	"emochat/internal/config"
	"emochat/internal/llm"
	"emochat/internal/models"
	"emochat/internal/rag"
)

type stubRetriever struct {
	results []rag.Result
}

func (s *stubRetriever) Search(ctx context.Context, query string, limit int) ([]rag.Result, error) {
	return s.results, nil
}

func (s *stubRetriever) Close() error { return nil }

type stubGenerator struct {
	chunks []models.ChatChunk
}

func (s *stubGenerator) GenerateTurn(ctx context.Context, messages []llm.PromptMessage) <-chan models.ChatChunk {
	out := make(chan models.ChatChunk)
	go func() {
		defer close(out)
		for _, chunk := range s.chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *stubGenerator) Summarize(ctx context.Context, messages []llm.PromptMessage, previousSummary string) string {
	return "stub summary"
}

func (s *stubGenerator) Close() error { return nil }

func newWSServer(t *testing.T, retriever rag.Retriever, generator llm.Generator) (*httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	engine := chat.NewEngine(st, retriever, generator, config.BasicConfig{
		MaxHistoryMessages: 50,
		SummaryThreshold:   30,
		RetrievalResults:   3,
	})
	handler := NewHandler(engine, st, &fakeIndexer{}, "chat-key", testAdminKey, t.TempDir())
	router := gin.New()
	handler.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	return server, wsURL
}

func dialWS(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v (resp %+v)", err, resp)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

// activeConnections polls /healthz until the reported count settles.
// Registration happens just after the upgrade handshake, so the first
// read after dialing can briefly lag.
func activeConnections(t *testing.T, server *httptest.Server) int {
	t.Helper()
	var count int
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(server.URL + "/healthz")
		if err != nil {
			t.Fatalf("healthz: %v", err)
		}
		var body struct {
			ActiveConnections int `json:"active_connections"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode healthz: %v", err)
		}
		count = body.ActiveConnections
		if count > 0 || time.Now().After(deadline) {
			return count
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	_, wsURL := newWSServer(t, &stubRetriever{}, &stubGenerator{})

	conn := dialWS(t, wsURL+"?token=wrong", nil)

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want 1008", closeErr.Code)
	}
}

func TestWebSocketChatFlow(t *testing.T) {
	retriever := &stubRetriever{results: []rag.Result{
		{ID: "source1", Content: "France is a country in Europe."},
	}}
	generator := &stubGenerator{chunks: []models.ChatChunk{
		models.NewChunk("Paris is the capital of France.", "confident", true),
	}}
	server, wsURL := newWSServer(t, retriever, generator)

	conn := dialWS(t, wsURL+"?token=chat-key", nil)

	if got := activeConnections(t, server); got != 1 {
		t.Errorf("active connections = %d, want 1", got)
	}

	if err := conn.WriteJSON(map[string]string{"type": "start_conversation"}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	var started struct {
		Type           string `json:"type"`
		ConversationID string `json:"conversation_id"`
	}
	if err := conn.ReadJSON(&started); err != nil {
		t.Fatalf("read started: %v", err)
	}
	if started.Type != "conversation_started" || started.ConversationID == "" {
		t.Fatalf("unexpected start frame: %+v", started)
	}

	if err := conn.WriteJSON(map[string]string{
		"type":    "user_message",
		"content": "What's the capital of France?",
	}); err != nil {
		t.Fatalf("send message: %v", err)
	}

	var chunk models.ChatChunk
	if err := conn.ReadJSON(&chunk); err != nil {
		t.Fatalf("read chunk: %v", err)
	}
	if chunk.Type != models.ChunkTypeMessage || chunk.Content != "Paris is the capital of France." {
		t.Errorf("unexpected chunk: %+v", chunk)
	}
	if chunk.Emotion != "confident" || !chunk.IsFinal {
		t.Errorf("chunk emotion/final wrong: %+v", chunk)
	}
	meta := chunk.Metadata
	if meta["conversation_id"] != started.ConversationID {
		t.Errorf("metadata conversation_id = %v", meta["conversation_id"])
	}
	sources, ok := meta["sources"].([]any)
	if !ok || len(sources) != 1 || sources[0] != "source1" {
		t.Errorf("metadata sources = %v", meta["sources"])
	}
}

func TestWebSocketSubprotocolAuth(t *testing.T) {
	_, wsURL := newWSServer(t, &stubRetriever{}, &stubGenerator{
		chunks: []models.ChatChunk{models.NewChunk("hi", "happy", true)},
	})

	header := http.Header{}
	header.Set("Sec-WebSocket-Protocol", "chat, auth:chat-key")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial with subprotocol: %v", err)
	}
	defer conn.Close()
	if got := resp.Header.Get("Sec-WebSocket-Protocol"); got != "chat" {
		t.Errorf("subprotocol not echoed: %q", got)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(map[string]string{"type": "start_conversation"}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	var started map[string]any
	if err := conn.ReadJSON(&started); err != nil {
		t.Fatalf("read started: %v", err)
	}
	if started["type"] != "conversation_started" {
		t.Errorf("unexpected frame: %v", started)
	}
}

func TestWebSocketMessageWithoutConversation(t *testing.T) {
	_, wsURL := newWSServer(t, &stubRetriever{}, &stubGenerator{})

	conn := dialWS(t, wsURL+"?token=chat-key", nil)

	if err := conn.WriteJSON(map[string]string{"type": "user_message", "content": "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	var chunk models.ChatChunk
	if err := conn.ReadJSON(&chunk); err != nil {
		t.Fatalf("read: %v", err)
	}
	if chunk.Type != models.ChunkTypeError {
		t.Errorf("expected error frame, got %+v", chunk)
	}
}

func TestWebSocketUnknownFrameIgnored(t *testing.T) {
	_, wsURL := newWSServer(t, &stubRetriever{}, &stubGenerator{})

	conn := dialWS(t, wsURL+"?token=chat-key", nil)

	if err := conn.WriteJSON(map[string]string{"type": "poke"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	// The connection stays usable after an unknown frame.
	if err := conn.WriteJSON(map[string]string{"type": "start_conversation"}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	var started map[string]any
	if err := conn.ReadJSON(&started); err != nil {
		t.Fatalf("read: %v", err)
	}
	if started["type"] != "conversation_started" {
		t.Errorf("unexpected frame: %v", started)
	}
}
