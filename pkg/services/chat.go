package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tenderlens/tenderlens/pkg/llm"
	"github.com/tenderlens/tenderlens/pkg/models"
	"github.com/tenderlens/tenderlens/pkg/prompts"
)

// maxHistoryMessages bounds how much prior conversation is sent to the
// model; older turns stay stored but fall out of the prompt.
const maxHistoryMessages = 20

// Chat answers one question about a completed analysis. The user turn
// is stored before the model call and the assistant turn after it, so
// history survives a mid-stream failure of the model. Response chunks
// are forwarded to onChunk as they arrive; the full assistant reply is
// returned at the end.
func (s *Service) Chat(ctx context.Context, analysisID, question string, onChunk func(string)) (string, error) {
	analysis, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return "", err
	}
	if analysis.Status != models.StatusCompleted || analysis.Report == nil {
		return "", ErrNotCompleted
	}

	apiKey, err := s.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	if err := s.store.AddChatMessage(ctx, &models.ChatMessage{
		ID:         uuid.NewString(),
		AnalysisID: analysisID,
		Role:       "user",
		Content:    question,
	}); err != nil {
		return "", fmt.Errorf("save question: %w", err)
	}

	system, err := s.chatSystemPrompt(ctx, analysis)
	if err != nil {
		return "", err
	}
	history, err := s.chatHistory(ctx, analysisID)
	if err != nil {
		return "", err
	}

	var reply strings.Builder
	gw := s.newGateway(apiKey, analysis.Model)
	err = gw.StreamText(ctx, system, history, analysis.Model, llm.ThinkingMedium,
		func(chunk string) {
			reply.WriteString(chunk)
			if onChunk != nil {
				onChunk(chunk)
			}
		})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if err := s.store.AddChatMessage(ctx, &models.ChatMessage{
		ID:         uuid.NewString(),
		AnalysisID: analysisID,
		Role:       "assistant",
		Content:    reply.String(),
	}); err != nil {
		return "", fmt.Errorf("save answer: %w", err)
	}
	return reply.String(), nil
}

// ChatHistory returns the stored conversation, oldest first.
func (s *Service) ChatHistory(ctx context.Context, analysisID string) ([]*models.ChatMessage, error) {
	if _, err := s.store.GetAnalysis(ctx, analysisID); err != nil {
		return nil, err
	}
	return s.store.GetChatMessages(ctx, analysisID)
}

// chatSystemPrompt builds the grounding context: the full report plus
// every parsed document in full.
func (s *Service) chatSystemPrompt(ctx context.Context, analysis *models.Analysis) (string, error) {
	reportJSON, err := json.MarshalIndent(analysis.Report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	docs, err := s.store.GetDocuments(ctx, analysis.ID)
	if err != nil {
		return "", err
	}
	chatDocs := make([]prompts.ChatDocument, len(docs))
	for i, doc := range docs {
		chatDocs[i] = prompts.ChatDocument{
			Filename: doc.Filename,
			Pages:    doc.Pages,
			Content:  doc.Content,
		}
	}
	return prompts.ChatSystemPrompt(string(reportJSON), chatDocs), nil
}

// chatHistory returns the last turns as model messages. The question
// just saved is the final user message.
func (s *Service) chatHistory(ctx context.Context, analysisID string) ([]llm.Message, error) {
	stored, err := s.store.GetChatMessages(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if len(stored) > maxHistoryMessages {
		stored = stored[len(stored)-maxHistoryMessages:]
	}
	history := make([]llm.Message, len(stored))
	for i, msg := range stored {
		history[i] = llm.Message{Role: msg.Role, Content: msg.Content}
	}
	return history, nil
}
