package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"emochat/internal/auth"
	"emochat/internal/chat"
	"emochat/internal/llm"
	"emochat/internal/models"
	"emochat/internal/rag"
	"emochat/internal/store"
)

// Handler wires HTTP routes to the chat engine, the store and the
// document index.
type Handler struct {
	engine      *chat.Engine
	store       store.Store
	indexer     rag.Indexer
	chatAPIKey  string
	adminAPIKey string
	docsDir     string

	mu          sync.Mutex
	connections map[string]*websocket.Conn
}

// NewHandler constructs a Handler instance.
func NewHandler(engine *chat.Engine, st store.Store, indexer rag.Indexer, chatAPIKey, adminAPIKey, docsDir string) *Handler {
	return &Handler{
		engine:      engine,
		store:       st,
		indexer:     indexer,
		chatAPIKey:  chatAPIKey,
		adminAPIKey: adminAPIKey,
		docsDir:     docsDir,
		connections: make(map[string]*websocket.Conn),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)
	router.GET("/ws", h.serveWebSocket)

	admin := router.Group("/admin", auth.AdminAuth(h.adminAPIKey))
	{
		admin.GET("/prompt", h.getPrompt)
		admin.POST("/prompt", h.setPrompt)
		admin.GET("/documents", h.listDocuments)
		admin.POST("/documents", h.uploadDocument)
		admin.DELETE("/documents/:filename", h.deleteDocument)
		admin.POST("/reload", h.reloadDocuments)
		admin.GET("/conversations", h.listConversations)
		admin.GET("/conversations/:id/download", h.downloadConversation)
		admin.DELETE("/conversations/:id", h.deleteConversation)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"active_connections": h.connectionCount(),
	})
}

func (h *Handler) addConnection(conn *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.connections[id] = conn
	h.mu.Unlock()
	return id
}

func (h *Handler) removeConnection(id string) {
	h.mu.Lock()
	delete(h.connections, id)
	h.mu.Unlock()
}

func (h *Handler) connectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

func (h *Handler) getPrompt(c *gin.Context) {
	prompt, err := h.store.GetSetting(c.Request.Context(), chat.SystemPromptKey)
	if errors.Is(err, store.ErrNotFound) {
		prompt = llm.BaseSystemPrompt
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load prompt"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": prompt})
}

func (h *Handler) setPrompt(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	if err := h.store.SetSetting(c.Request.Context(), chat.SystemPromptKey, req.Prompt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save prompt"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (h *Handler) listDocuments(c *gin.Context) {
	entries, err := os.ReadDir(h.docsDir)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"documents": []string{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read documents"})
		return
	}
	docs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !rag.IsSupportedFile(entry.Name()) {
			continue
		}
		docs = append(docs, entry.Name())
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *Handler) uploadDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	name := filepath.Base(fileHeader.Filename)
	if !rag.IsSupportedFile(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported file type: %s", name)})
		return
	}

	if err := os.MkdirAll(h.docsDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare documents dir"})
		return
	}
	dest := filepath.Join(h.docsDir, name)
	if err := c.SaveUploadedFile(fileHeader, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	chunks, err := h.indexer.IngestFile(c.Request.Context(), dest)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to index %s: %v", name, err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"filename": name, "chunks": chunks})
}

func (h *Handler) deleteDocument(c *gin.Context) {
	name := filepath.Base(c.Param("filename"))
	if name == "." || strings.Contains(name, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}

	path := filepath.Join(h.docsDir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete file"})
		return
	}
	if err := h.indexer.DeleteDocument(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("file removed but index cleanup failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) reloadDocuments(c *gin.Context) {
	chunks, err := h.indexer.ReloadDocuments(c.Request.Context(), h.docsDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("reload failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

func (h *Handler) listConversations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	conversations, err := h.store.ListConversations(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	total, err := h.store.CountConversations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count conversations"})
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": conversations,
		"count":         total,
	})
}

func (h *Handler) downloadConversation(c *gin.Context) {
	id := c.Param("id")
	conv, err := h.store.GetConversation(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	messages, err := h.store.GetMessages(c.Request.Context(), id, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=conversation-%s.json", id))
	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"messages":     messages,
	})
}

func (h *Handler) deleteConversation(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteConversation(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
