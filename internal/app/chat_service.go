package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
	"pdfchat/internal/platform/logger"
)

const answerSystemPrompt = "You are a helpful assistant. Answer the user's question using only the " +
	"document context below. Be concise and format the answer in markdown. If the context does not " +
	"contain the answer, say so instead of making something up.\n\nContext:\n"

// AsyncMessagePublisher hands messages to the persistence queue.
type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

// HistoryCache caches a chat's message history.
type HistoryCache interface {
	GetHistory(ctx context.Context, chatID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, chatID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, chatID string) error
	MarkDirty(ctx context.Context, chatID string) error
	IsDirty(ctx context.Context, chatID string) (bool, error)
}

// ChatService answers questions grounded in retrieved document chunks and
// persists the resulting conversation turns.
type ChatService struct {
	log          *logger.Logger
	chatRepo     ChatStore
	msgRepo      MessageStore
	docRepo      DocumentStore
	retriever    ContextRetriever
	llm          LLMClient
	chatCfg      ai.ChatConfig
	publisher    AsyncMessagePublisher
	historyCache HistoryCache
}

type SendInput struct {
	UserID      string
	ChatID      string
	Query       string
	DocumentIDs []string // optional retrieval scope
}

type SendResult struct {
	Message model.Message `json:"message"`
	Context string        `json:"context"`
}

func NewChatService(
	log *logger.Logger,
	chatRepo ChatStore,
	msgRepo MessageStore,
	docRepo DocumentStore,
	retriever ContextRetriever,
	llm LLMClient,
	chatCfg ai.ChatConfig,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
) *ChatService {
	return &ChatService{
		log:          log.With("component", "chat"),
		chatRepo:     chatRepo,
		msgRepo:      msgRepo,
		docRepo:      docRepo,
		retriever:    retriever,
		llm:          llm,
		chatCfg:      chatCfg,
		publisher:    publisher,
		historyCache: historyCache,
	}
}

// Send runs one chat turn: verify ownership, retrieve context, generate a
// grounded answer, enqueue both messages for persistence.
func (s *ChatService) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	if input.UserID == "" || input.ChatID == "" {
		return nil, ErrInvalidInput
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ErrInvalidInput
	}

	chat, err := s.chatRepo.GetByIDAndUserID(input.ChatID, input.UserID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	// Check-then-query: requested document ids must belong to the caller
	// before any embedding or search happens.
	documentIDs := dedupe(input.DocumentIDs)
	if len(documentIDs) > 0 {
		owned, err := s.docRepo.CountOwnedByUser(documentIDs, input.UserID)
		if err != nil {
			return nil, err
		}
		if owned != int64(len(documentIDs)) {
			return nil, ErrDocumentNotFound
		}
	}

	contextBlock, err := s.retriever.Retrieve(ctx, input.UserID, query, documentIDs)
	if err != nil {
		return nil, err
	}

	answer, err := s.answer(ctx, query, contextBlock)
	if err != nil {
		return nil, err
	}

	// Ids are minted here, not at persist time, so the message returned to
	// the caller matches the row the worker eventually writes.
	joinedIDs := strings.Join(documentIDs, ",")
	userMessage := model.Message{
		ID:          uuid.NewString(),
		ChatID:      input.ChatID,
		UserID:      input.UserID,
		Role:        "user",
		Content:     query,
		DocumentIDs: joinedIDs,
		CreatedAt:   time.Now(),
	}
	assistantMessage := model.Message{
		ID:          uuid.NewString(),
		ChatID:      input.ChatID,
		UserID:      input.UserID,
		Role:        "assistant",
		Content:     answer,
		DocumentIDs: joinedIDs,
		CreatedAt:   time.Now(),
	}

	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.ChatID)
		_ = s.historyCache.DeleteHistory(ctx, input.ChatID)
	}
	if err := s.publisher.Publish(ctx, userMessage); err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, assistantMessage); err != nil {
		return nil, err
	}

	return &SendResult{Message: assistantMessage, Context: contextBlock}, nil
}

func (s *ChatService) answer(ctx context.Context, query, contextBlock string) (string, error) {
	messages := []ai.ChatMessage{
		{Role: "system", Content: answerSystemPrompt + contextBlock},
		{Role: "user", Content: query},
	}
	answer, err := s.llm.Complete(ctx, s.chatCfg, messages)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}
	return answer, nil
}

func (s *ChatService) ListChats(userID string) ([]model.Chat, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.chatRepo.ListByUserID(userID)
}

// GetHistory returns a chat's messages, served from the cache when it is
// fresh.
func (s *ChatService) GetHistory(ctx context.Context, userID, chatID string, limit int) ([]model.Message, error) {
	if userID == "" || chatID == "" {
		return nil, ErrInvalidInput
	}

	chat, err := s.chatRepo.GetByIDAndUserID(chatID, userID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, chatID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, chatID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.msgRepo.ListByChatID(chatID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, chatID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, chatID, messages)
		}
	}
	return messages, nil
}

// GetDocumentHistory returns the turns that referenced one document.
func (s *ChatService) GetDocumentHistory(userID, documentID string) ([]model.Message, error) {
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
	return s.msgRepo.ListByDocumentID(documentID, userID)
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
