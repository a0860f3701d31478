package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/avezek/docuchat/internal/ingest"
	"github.com/avezek/docuchat/internal/logger"
	"github.com/avezek/docuchat/internal/model"
	"github.com/avezek/docuchat/internal/orchestrator"
	"github.com/avezek/docuchat/internal/pdf"
	"github.com/avezek/docuchat/internal/session"
	"github.com/avezek/docuchat/internal/store"
	"github.com/avezek/docuchat/internal/util"
)

// Handler holds the dependencies of all endpoints.
type Handler struct {
	pipeline *ingest.Pipeline
	orch     *orchestrator.Orchestrator
	// store is nil when the service runs without Postgres.
	store  *store.PgStore
	pdfDir string
	log    *logger.Logger
}

func NewHandler(pipeline *ingest.Pipeline, orch *orchestrator.Orchestrator, s *store.PgStore, log *logger.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		orch:     orch,
		store:    s,
		pdfDir:   filepath.Join("data", "pdfs"),
		log:      log.With("component", "api"),
	}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.SendString("ok")
}

type ingestRequest struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
}

// Ingest accepts either a multipart PDF upload (form field: file) or a JSON
// body with already-extracted text.
func (h *Handler) Ingest(c *fiber.Ctx) error {
	if _, err := c.FormFile("file"); err == nil {
		return h.ingestPDF(c)
	}

	var req ingestRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "expected multipart field 'file' or JSON {\"document_id\":..., \"text\":...}",
		})
	}
	docID := req.DocumentID
	if docID == "" {
		docID = util.Timestamped("inline")
	}
	res, err := h.pipeline.IngestText(c.Context(), docID, docID, req.Text)
	return h.ingestResponse(c, res, err)
}

func (h *Handler) ingestPDF(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required (form field: file)"})
	}

	if err := os.MkdirAll(h.pdfDir, 0o755); err != nil {
		h.log.Error("mkdir failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to prepare storage"})
	}
	saveName := util.Timestamped(fh.Filename)
	savePath := filepath.Join(h.pdfDir, saveName)
	if err := c.SaveFile(fh, savePath); err != nil {
		h.log.Error("save file failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save file"})
	}

	pages, err := pdf.ExtractText(savePath)
	if err != nil {
		h.log.Error("pdf extraction failed", "path", savePath, "err", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to extract text from pdf"})
	}
	for i := range pages {
		pages[i] = pdf.Sanitize(pages[i])
	}

	res, err := h.pipeline.Ingest(c.Context(), saveName, fh.Filename, pages)
	return h.ingestResponse(c, res, err)
}

func (h *Handler) ingestResponse(c *fiber.Ctx, res model.IngestResult, err error) error {
	if errors.Is(err, ingest.ErrNoText) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no text extracted"})
	}
	if err != nil {
		h.log.Error("ingestion failed", "doc_id", res.DocumentID, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ingestion failed"})
	}
	return c.JSON(res)
}

// ListFiles returns the uploaded PDFs still on disk.
func (h *Handler) ListFiles(c *fiber.Ctx) error {
	entries, err := os.ReadDir(h.pdfDir)
	if errors.Is(err, os.ErrNotExist) {
		return c.JSON(fiber.Map{"files": []string{}})
	}
	if err != nil {
		h.log.Error("listing uploads failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list files"})
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return c.JSON(fiber.Map{"files": names})
}

// DeleteFile removes an uploaded PDF from disk. Chunks already ingested from
// it stay in the index.
func (h *Handler) DeleteFile(c *fiber.Ctx) error {
	name := filepath.Base(c.Params("filename"))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid filename"})
	}
	err := os.Remove(filepath.Join(h.pdfDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "file not found"})
	}
	if err != nil {
		h.log.Error("deleting upload failed", "file", name, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete file"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// ---- conversation CRUD (disabled without Postgres) ----

type conversationCreate struct {
	Title string `json:"title"`
}

type conversationUpdate struct {
	Title string `json:"title"`
}

type messageCreate struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *Handler) requireStore(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "conversation persistence disabled"})
	}
	return nil
}

func (h *Handler) ListConversations(c *fiber.Ctx) error {
	if err := h.requireStore(c); err != nil || h.store == nil {
		return err
	}
	convs, err := h.store.ListConversations(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list conversations"})
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

func (h *Handler) CreateConversation(c *fiber.Ctx) error {
	if err := h.requireStore(c); err != nil || h.store == nil {
		return err
	}
	var req conversationCreate
	_ = c.BodyParser(&req)
	conv, err := h.store.CreateConversation(c.Context(), req.Title)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create conversation"})
	}
	return c.JSON(fiber.Map{"conversation": conv})
}

func (h *Handler) GetConversation(c *fiber.Ctx) error {
	if err := h.requireStore(c); err != nil || h.store == nil {
		return err
	}
	conv, msgs, err := h.store.GetConversation(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load conversation"})
	}
	return c.JSON(fiber.Map{"conversation": conv, "messages": msgs})
}

func (h *Handler) UpdateConversation(c *fiber.Ctx) error {
	if err := h.requireStore(c); err != nil || h.store == nil {
		return err
	}
	var req conversationUpdate
	if err := c.BodyParser(&req); err != nil || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}
	err := h.store.UpdateConversationTitle(c.Context(), c.Params("id"), req.Title)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update conversation"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) DeleteConversation(c *fiber.Ctx) error {
	if err := h.requireStore(c); err != nil || h.store == nil {
		return err
	}
	err := h.store.DeleteConversation(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete conversation"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handler) AddMessage(c *fiber.Ctx) error {
	if err := h.requireStore(c); err != nil || h.store == nil {
		return err
	}
	var req messageCreate
	if err := c.BodyParser(&req); err != nil || req.Role == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "role and content are required"})
	}
	if err := h.store.AppendMessage(c.Context(), c.Params("id"), req.Role, req.Content); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to add message"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// Chat runs the websocket query/stream protocol: each inbound text message is
// one query; frames go back as JSON stream events. Closing the connection is
// the cancellation signal.
func (h *Handler) Chat(conn *websocket.Conn) {
	convID := conn.Params("conversation_id")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var history session.HistoryStore
	if h.store != nil {
		history = h.store
	}
	sess := session.New(convID, h.orch, history, func(ev model.StreamEvent) error {
		return conn.WriteJSON(ev)
	}, h.log)
	defer sess.Close()

	h.log.Debug("websocket connected", "conversation_id", convID)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			h.log.Debug("websocket closed", "conversation_id", convID, "err", err)
			return
		}
		query := strings.TrimSpace(string(msg))
		if query == "" {
			continue
		}
		sess.HandleQuery(ctx, query)
	}
}
