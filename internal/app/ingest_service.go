package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"pdfchat/internal/ai"
	"pdfchat/internal/index"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/chunker"
	"pdfchat/internal/pkg/pdfextract"
	"pdfchat/internal/platform/logger"
)

const (
	summaryQuery  = "What is the summary of this document?"
	maxTitleWords = 10
)

const summarySystemPrompt = "You summarize documents. Reply with a JSON object containing exactly two keys: " +
	`"summary" (a concise summary of the document) and "title" (a short title of fewer than 10 words). ` +
	"Do not include any other keys or any text outside the JSON object."

// ChatStore, DocumentStore and MessageStore are the relational surfaces the
// ingestion pipeline writes to.
type ChatStore interface {
	Create(chat *model.Chat) error
	GetByIDAndUserID(chatID, userID string) (*model.Chat, error)
	ListByUserID(userID string) ([]model.Chat, error)
	DeleteByIDAndUserID(chatID, userID string) error
}

type DocumentStore interface {
	Create(doc *model.Document) error
	GetByIDAndUserID(id, userID string) (*model.Document, error)
	ListByUserID(userID string) ([]model.Document, error)
	CountOwnedByUser(ids []string, userID string) (int64, error)
	DeleteByIDAndUserID(id, userID string) error
}

type MessageStore interface {
	Create(message *model.Message) error
	ListByChatID(chatID string, limit int) ([]model.Message, error)
	ListByDocumentID(documentID, userID string) ([]model.Message, error)
	DeleteByChatID(chatID string) error
}

// DocumentIndexer embeds chunks and stores them in the vector collection.
type DocumentIndexer interface {
	Index(ctx context.Context, chunks []chunker.Chunk, ref index.DocumentRef) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// ContextRetriever fetches a formatted context block for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, userID, query string, documentIDs []string) (string, error)
}

// IngestService runs the upload pipeline: extract, chunk, index, optionally
// summarize, persist, clean up.
type IngestService struct {
	log       *logger.Logger
	chatRepo  ChatStore
	docRepo   DocumentStore
	msgRepo   MessageStore
	splitter  *chunker.Splitter
	indexer   DocumentIndexer
	retriever ContextRetriever
	llm       LLMClient
	chatCfg   ai.ChatConfig
	tempDir   string

	extractPages func(r io.Reader) ([]pdfextract.PageText, error)
}

type UploadInput struct {
	UserID      string
	ChatID      string // empty = start a new conversation
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

type UploadResult struct {
	ChatID   string         `json:"chat_id"`
	Document model.Document `json:"document"`
	Summary  string         `json:"summary,omitempty"`
}

func NewIngestService(
	log *logger.Logger,
	chatRepo ChatStore,
	docRepo DocumentStore,
	msgRepo MessageStore,
	splitter *chunker.Splitter,
	indexer DocumentIndexer,
	retriever ContextRetriever,
	llm LLMClient,
	chatCfg ai.ChatConfig,
	tempDir string,
) *IngestService {
	if tempDir == "" {
		tempDir = "temp"
	}
	return &IngestService{
		log:          log.With("component", "ingest"),
		chatRepo:     chatRepo,
		docRepo:      docRepo,
		msgRepo:      msgRepo,
		splitter:     splitter,
		indexer:      indexer,
		retriever:    retriever,
		llm:          llm,
		chatCfg:      chatCfg,
		tempDir:      tempDir,
		extractPages: pdfextract.ExtractPages,
	}
}

// Upload ingests one PDF. No database row is written until every chunk is
// durably indexed; the spooled temp file is removed on every exit path.
func (s *IngestService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.UserID == "" || strings.TrimSpace(input.Filename) == "" || input.Content == nil {
		return nil, ErrInvalidInput
	}

	if input.ChatID != "" {
		chat, err := s.chatRepo.GetByIDAndUserID(input.ChatID, input.UserID)
		if err != nil {
			return nil, err
		}
		if chat == nil {
			return nil, ErrChatNotFound
		}
	}

	documentID := uuid.NewString()
	filename := filepath.Base(strings.TrimSpace(input.Filename))
	displayName := strings.TrimSuffix(filename, filepath.Ext(filename))

	tempPath, err := s.spool(input.UserID, filename, input.Content)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("remove temp upload failed", "path", tempPath, "error", err)
		}
	}()

	pages, err := s.extract(tempPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	chunks := s.splitter.Split(pages)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document has no extractable text", ErrExtraction)
	}

	ref := index.DocumentRef{
		ID:          documentID,
		Filename:    filename,
		DisplayName: displayName,
		OwnerUserID: input.UserID,
	}
	if err := s.indexer.Index(ctx, chunks, ref); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndex, err)
	}

	// Summarize only when this upload starts a new conversation.
	newChat := input.ChatID == ""
	summary, title := "", displayName
	if newChat {
		generatedSummary, generatedTitle, err := s.summarize(ctx, input.UserID, documentID)
		if err != nil {
			// Indexing already succeeded; a bad summary never fails the
			// upload.
			s.log.Warn("document summary failed", "document_id", documentID, "error", err)
		} else {
			summary = generatedSummary
			if generatedTitle != "" {
				title = generatedTitle
			}
		}
	}

	chatID := input.ChatID
	if newChat {
		chat := &model.Chat{UserID: input.UserID, Title: title}
		if err := s.chatRepo.Create(chat); err != nil {
			return nil, err
		}
		chatID = chat.ID
	}

	doc := &model.Document{
		ID:          documentID,
		ChatID:      chatID,
		UserID:      input.UserID,
		Filename:    filename,
		ContentType: input.ContentType,
		FilePath:    tempPath,
		FileSize:    input.Size,
		Title:       title,
	}
	if err := s.docRepo.Create(doc); err != nil {
		if newChat {
			_ = s.chatRepo.DeleteByIDAndUserID(chatID, input.UserID)
		}
		return nil, err
	}

	if newChat {
		message := &model.Message{
			ChatID:      chatID,
			UserID:      input.UserID,
			Role:        "assistant",
			Content:     summary,
			DocumentIDs: documentID,
		}
		if err := s.msgRepo.Create(message); err != nil {
			s.log.Warn("persist summary message failed", "document_id", documentID, "error", err)
		}
	}

	s.log.Info("document ingested",
		"document_id", documentID,
		"chat_id", chatID,
		"chunks", len(chunks),
		"new_chat", newChat,
	)
	return &UploadResult{ChatID: chatID, Document: *doc, Summary: summary}, nil
}

// DeleteDocument removes a document's chunks from the vector collection and
// then its row. Ownership is checked before touching the index.
func (s *IngestService) DeleteDocument(ctx context.Context, userID, documentID string) error {
	if userID == "" || documentID == "" {
		return ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if err := s.indexer.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	return s.docRepo.DeleteByIDAndUserID(documentID, userID)
}

func (s *IngestService) ListDocuments(userID string) ([]model.Document, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(userID)
}

func (s *IngestService) GetDocument(userID, documentID string) (*model.Document, error) {
	if userID == "" || documentID == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *IngestService) spool(userID, filename string, content io.Reader) (string, error) {
	dir := filepath.Join(s.tempDir, userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir failed: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+"_"+filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp file failed: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file failed: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file failed: %w", err)
	}
	return path, nil
}

func (s *IngestService) extract(path string) ([]chunker.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pageTexts, err := s.extractPages(f)
	if err != nil {
		return nil, err
	}
	pages := make([]chunker.Page, len(pageTexts))
	for i, p := range pageTexts {
		pages[i] = chunker.Page{Number: p.Number, Text: p.Text}
	}
	return pages, nil
}

// summarize retrieves the new document's own chunks and asks the model for
// a structured summary/title pair.
func (s *IngestService) summarize(ctx context.Context, userID, documentID string) (string, string, error) {
	contextBlock, err := s.retriever.Retrieve(ctx, userID, summaryQuery, []string{documentID})
	if err != nil {
		return "", "", err
	}

	messages := []ai.ChatMessage{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: "Document content:\n\n" + contextBlock},
	}
	raw, err := s.llm.CompleteJSON(ctx, s.chatCfg, messages)
	if err != nil {
		return "", "", err
	}
	return parseSummary(raw)
}

// parseSummary decodes the model's structured output. The output is prompt
// constrained, not guaranteed, so everything here is defensive.
func parseSummary(raw string) (string, string, error) {
	trimmed := stripCodeFence(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", "", fmt.Errorf("%w: empty output", ErrMalformedSummary)
	}

	var parsed struct {
		Summary string `json:"summary"`
		Title   string `json:"title"`
	}
	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedSummary, err)
	}

	summary := strings.TrimSpace(parsed.Summary)
	title := strings.TrimSpace(parsed.Title)
	if summary == "" {
		return "", "", fmt.Errorf("%w: missing summary", ErrMalformedSummary)
	}
	return summary, clampTitle(title), nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// clampTitle enforces the fewer-than-ten-words title constraint.
func clampTitle(title string) string {
	words := strings.Fields(title)
	if len(words) >= maxTitleWords {
		words = words[:maxTitleWords-1]
	}
	return strings.Join(words, " ")
}
