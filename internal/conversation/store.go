// Package conversation manages conversation lifecycle and turn persistence
// on top of the storage repositories.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/answerline/answer-engine/internal/answer"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/storage"
)

// Store provides conversation acquisition, turn persistence, and context
// round-tripping. At most one ACTIVE conversation exists per
// (tenant, user, channel); Acquire reuses it or creates it.
type Store struct {
	logger *observability.Logger
	repos  *storage.Repositories
}

// NewStore creates a conversation store over the given repositories.
func NewStore(logger *observability.Logger, repos *storage.Repositories) *Store {
	return &Store{logger: logger, repos: repos}
}

// Acquire returns the ACTIVE conversation for (tenant, user, channel),
// creating the tenant, the user, and the conversation lazily on first
// contact. The user is registered as an external customer.
func (s *Store) Acquire(ctx context.Context, tenantID, userID uuid.UUID, channel string) (*storage.Conversation, error) {
	if err := s.repos.Tenants.Ensure(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("ensure tenant: %w", err)
	}
	if _, err := s.repos.Users.Ensure(ctx, tenantID, userID); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	conv, err := s.repos.Conversations.FindActive(ctx, tenantID, userID, channel)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("find active conversation: %w", err)
	}

	conv = &storage.Conversation{
		TenantID: tenantID,
		UserID:   userID,
		Channel:  channel,
	}
	if err := s.repos.Conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info().
		Str("conversation_id", conv.ID.String()).
		Str("channel", channel).
		Msg("Started conversation")
	return conv, nil
}

// AppendUser records an inbound user message and bumps last_message_at.
func (s *Store) AppendUser(ctx context.Context, conversationID uuid.UUID, content string) error {
	return s.append(ctx, &storage.Message{
		ConversationID: conversationID,
		SenderType:     storage.SenderTypeUser,
		Content:        content,
	})
}

// AppendSystem records the engine's reply along with its answer metadata.
func (s *Store) AppendSystem(ctx context.Context, conversationID uuid.UUID, res *answer.Result) error {
	meta, err := json.Marshal(map[string]any{
		"confidence":     res.Confidence,
		"requires_human": res.RequiresHuman,
		"citations":      res.Citations,
	})
	if err != nil {
		return fmt.Errorf("marshal answer metadata: %w", err)
	}
	return s.append(ctx, &storage.Message{
		ConversationID: conversationID,
		SenderType:     storage.SenderTypeSystem,
		Content:        res.Response,
		Metadata:       meta,
	})
}

func (s *Store) append(ctx context.Context, msg *storage.Message) error {
	if err := s.repos.Messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := s.repos.Conversations.TouchLastMessage(ctx, msg.ConversationID, msg.Timestamp); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to bump last_message_at")
	}
	return nil
}

// LoadContext decodes the conversation's stored context. Unknown or corrupt
// context degrades to an empty one rather than failing the turn.
func (s *Store) LoadContext(conv *storage.Conversation) *answer.ConvContext {
	cc := &answer.ConvContext{}
	if len(conv.Context) == 0 {
		return cc
	}
	if err := json.Unmarshal(conv.Context, cc); err != nil {
		s.logger.Warn().
			Err(err).
			Str("conversation_id", conv.ID.String()).
			Msg("Discarding unreadable conversation context")
		return &answer.ConvContext{}
	}
	return cc
}

// SaveContext merges the turn's context over the stored JSON so keys written
// by other components survive.
func (s *Store) SaveContext(ctx context.Context, conv *storage.Conversation, cc *answer.ConvContext) error {
	merged := map[string]json.RawMessage{}
	if len(conv.Context) > 0 {
		if err := json.Unmarshal(conv.Context, &merged); err != nil {
			merged = map[string]json.RawMessage{}
		}
	}

	ours, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	var ourKeys map[string]json.RawMessage
	if err := json.Unmarshal(ours, &ourKeys); err != nil {
		return fmt.Errorf("remarshal context: %w", err)
	}
	// omitempty drops cleared fields from ourKeys; delete them from the
	// stored copy too so stale memory does not resurrect.
	for _, key := range contextKeys {
		delete(merged, key)
	}
	for k, v := range ourKeys {
		merged[k] = v
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal merged context: %w", err)
	}
	if err := s.repos.Conversations.UpdateContext(ctx, conv.ID, raw); err != nil {
		return fmt.Errorf("update context: %w", err)
	}
	conv.Context = raw
	return nil
}

var contextKeys = []string{
	"last_person", "last_chapter", "last_list_topic", "last_list_items", "last_list_index",
}

// Messages returns the conversation's messages in append order.
func (s *Store) Messages(ctx context.Context, conversationID uuid.UUID) ([]*storage.Message, error) {
	return s.repos.Messages.ListByConversation(ctx, conversationID)
}

// Escalate marks the conversation ESCALATED so a later turn starts fresh.
func (s *Store) Escalate(ctx context.Context, conversationID uuid.UUID) error {
	return s.repos.Conversations.UpdateStatus(ctx, conversationID, storage.ConversationStatusEscalated)
}

// Complete closes the conversation.
func (s *Store) Complete(ctx context.Context, conversationID uuid.UUID) error {
	return s.repos.Conversations.UpdateStatus(ctx, conversationID, storage.ConversationStatusCompleted)
}
