// Package storage provides database models and repositories for the answer engine.
package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// KnowledgeBaseStatus represents the lifecycle of a knowledge base.
type KnowledgeBaseStatus string

const (
	KnowledgeBaseStatusActive   KnowledgeBaseStatus = "ACTIVE"
	KnowledgeBaseStatusBuilding KnowledgeBaseStatus = "BUILDING"
	KnowledgeBaseStatusArchived KnowledgeBaseStatus = "ARCHIVED"
)

// DocumentStatus represents the ingestion state of a document.
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "PROCESSING"
	DocumentStatusIndexed    DocumentStatus = "INDEXED"
	DocumentStatusFailed     DocumentStatus = "FAILED"
)

// ConversationStatus represents the state of a conversation.
type ConversationStatus string

const (
	ConversationStatusActive    ConversationStatus = "ACTIVE"
	ConversationStatusCompleted ConversationStatus = "COMPLETED"
	ConversationStatusEscalated ConversationStatus = "ESCALATED"
)

// SenderType identifies who produced a message.
type SenderType string

const (
	SenderTypeUser       SenderType = "USER"
	SenderTypeSystem     SenderType = "SYSTEM"
	SenderTypeHumanAgent SenderType = "HUMAN_AGENT"
)

// UserType distinguishes internal staff from external customers.
type UserType string

const (
	UserTypeInternalStaff    UserType = "INTERNAL_STAFF"
	UserTypeExternalCustomer UserType = "EXTERNAL_CUSTOMER"
)

// Tenant represents an organization account and the root of isolation.
type Tenant struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Domain    *string         `json:"domain,omitempty" db:"domain"`
	Settings  json.RawMessage `json:"settings" db:"settings"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// User represents an end user or staff member. Created lazily on first message.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	UserType  UserType  `json:"user_type" db:"user_type"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// KnowledgeBase groups documents for a tenant.
type KnowledgeBase struct {
	ID            uuid.UUID           `json:"id" db:"id"`
	TenantID      uuid.UUID           `json:"tenant_id" db:"tenant_id"`
	Name          string              `json:"name" db:"name"`
	Description   *string             `json:"description,omitempty" db:"description"`
	Status        KnowledgeBaseStatus `json:"status" db:"status"`
	DocumentCount int                 `json:"document_count" db:"document_count"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
}

// Document represents ingested content belonging to a knowledge base.
// Metadata carries the normalized `columns` header for tabular ingests.
type Document struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	KnowledgeBaseID uuid.UUID       `json:"knowledge_base_id" db:"knowledge_base_id"`
	Title           string          `json:"title" db:"title"`
	ContentPreview  string          `json:"content_preview" db:"content_preview"`
	Status          DocumentStatus  `json:"status" db:"status"`
	ChunkCount      int             `json:"chunk_count" db:"chunk_count"`
	Metadata        json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	IndexedAt       *time.Time      `json:"indexed_at,omitempty" db:"indexed_at"`
}

// ChunkMetadata is the optional positional metadata carried by a chunk.
type ChunkMetadata struct {
	Page         *int    `json:"page,omitempty"`
	ChapterNum   *int    `json:"chapter_num,omitempty"`
	ChapterTitle *string `json:"chapter_title,omitempty"`
}

// KnowledgeChunk is one embedded slice of a document (text chunk or tabular row).
// (document_id, chunk_index) is unique and chunk_index is dense in [0, chunk_count).
type KnowledgeChunk struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	DocumentID uuid.UUID       `json:"document_id" db:"document_id"`
	Content    string          `json:"content" db:"content"`
	ChunkIndex int             `json:"chunk_index" db:"chunk_index"`
	Embedding  []float32       `json:"embedding,omitempty" db:"embedding"`
	Metadata   json.RawMessage `json:"metadata" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Meta decodes the chunk metadata, returning the zero value on absence.
func (c *KnowledgeChunk) Meta() ChunkMetadata {
	var m ChunkMetadata
	if len(c.Metadata) > 0 {
		_ = json.Unmarshal(c.Metadata, &m)
	}
	return m
}

// Conversation maintains short-term memory for one (tenant, user, channel).
// At most one ACTIVE conversation exists per key.
type Conversation struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	TenantID      uuid.UUID          `json:"tenant_id" db:"tenant_id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	Channel       string             `json:"channel" db:"channel"`
	Status        ConversationStatus `json:"status" db:"status"`
	Context       json.RawMessage    `json:"context" db:"context"`
	StartedAt     time.Time          `json:"started_at" db:"started_at"`
	LastMessageAt time.Time          `json:"last_message_at" db:"last_message_at"`
}

// Message is one append-only entry in a conversation. Never updated.
type Message struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	ConversationID uuid.UUID       `json:"conversation_id" db:"conversation_id"`
	SenderType     SenderType      `json:"sender_type" db:"sender_type"`
	Content        string          `json:"content" db:"content"`
	MessageType    string          `json:"message_type" db:"message_type"`
	Metadata       json.RawMessage `json:"metadata" db:"metadata"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// ChapterRef is a distinct (chapter_num, chapter_title) pair seen in a
// tenant's chunk metadata.
type ChapterRef struct {
	Num   int    `json:"chapter_num"`
	Title string `json:"chapter_title"`
}

// TenantChunk is a chunk joined with the owning document's tabular columns,
// as loaded for the per-request retrieval corpus.
type TenantChunk struct {
	Chunk   *KnowledgeChunk
	Columns []string
}
