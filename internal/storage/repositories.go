// Package storage provides database models and repositories for the answer engine.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// DB represents a database connection interface satisfied by *sql.DB and *sql.Tx.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TenantRepository handles tenant CRUD operations.
type TenantRepository struct {
	db DB
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(db DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create creates a new tenant.
func (r *TenantRepository) Create(ctx context.Context, tenant *Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if len(tenant.Settings) == 0 {
		tenant.Settings = json.RawMessage(`{}`)
	}
	tenant.CreatedAt = time.Now()
	tenant.UpdatedAt = time.Now()

	query := `
		INSERT INTO tenants (id, name, domain, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		tenant.ID, tenant.Name, tenant.Domain, tenant.Settings,
		tenant.CreatedAt, tenant.UpdatedAt,
	)
	return err
}

// GetByID retrieves a tenant by ID.
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	query := `
		SELECT id, name, domain, settings, created_at, updated_at
		FROM tenants WHERE id = $1
	`
	tenant := &Tenant{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.Name, &tenant.Domain, &tenant.Settings,
		&tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tenant, err
}

// Ensure makes sure a tenant row exists so foreign keys hold.
func (r *TenantRepository) Ensure(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return r.Create(ctx, &Tenant{ID: id, Name: id.String()})
}

// UserRepository handles user CRUD operations.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.UserType == "" {
		user.UserType = UserTypeExternalCustomer
	}
	if user.Role == "" {
		user.Role = "END_USER"
	}
	user.CreatedAt = time.Now()

	query := `
		INSERT INTO users (id, tenant_id, user_type, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.TenantID, user.UserType, user.Role, user.CreatedAt,
	)
	return err
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, tenant_id, user_type, role, created_at
		FROM users WHERE id = $1
	`
	user := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.TenantID, &user.UserType, &user.Role, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return user, err
}

// Ensure creates the user lazily on first use so foreign keys hold.
func (r *UserRepository) Ensure(ctx context.Context, tenantID, userID uuid.UUID) (*User, error) {
	user, err := r.GetByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	user = &User{ID: userID, TenantID: tenantID, UserType: UserTypeExternalCustomer}
	if err := r.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// KnowledgeBaseRepository handles knowledge base CRUD operations.
type KnowledgeBaseRepository struct {
	db DB
}

// NewKnowledgeBaseRepository creates a new knowledge base repository.
func NewKnowledgeBaseRepository(db DB) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{db: db}
}

// Create creates a new knowledge base.
func (r *KnowledgeBaseRepository) Create(ctx context.Context, kb *KnowledgeBase) error {
	if kb.ID == uuid.Nil {
		kb.ID = uuid.New()
	}
	if kb.Status == "" {
		kb.Status = KnowledgeBaseStatusActive
	}
	kb.CreatedAt = time.Now()

	query := `
		INSERT INTO knowledge_bases (id, tenant_id, name, description, status, document_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		kb.ID, kb.TenantID, kb.Name, kb.Description, kb.Status, kb.DocumentCount, kb.CreatedAt,
	)
	return err
}

// GetByID retrieves a knowledge base by ID with tenant scoping.
func (r *KnowledgeBaseRepository) GetByID(ctx context.Context, tenantID, kbID uuid.UUID) (*KnowledgeBase, error) {
	query := `
		SELECT id, tenant_id, name, description, status, document_count, created_at
		FROM knowledge_bases
		WHERE id = $1 AND tenant_id = $2
	`
	kb := &KnowledgeBase{}
	err := r.db.QueryRowContext(ctx, query, kbID, tenantID).Scan(
		&kb.ID, &kb.TenantID, &kb.Name, &kb.Description, &kb.Status, &kb.DocumentCount, &kb.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return kb, err
}

// EnsureDefault returns the tenant's default knowledge base, creating it on
// first ingest.
func (r *KnowledgeBaseRepository) EnsureDefault(ctx context.Context, tenantID uuid.UUID) (*KnowledgeBase, error) {
	query := `
		SELECT id, tenant_id, name, description, status, document_count, created_at
		FROM knowledge_bases
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at
		LIMIT 1
	`
	kb := &KnowledgeBase{}
	err := r.db.QueryRowContext(ctx, query, tenantID, KnowledgeBaseStatusActive).Scan(
		&kb.ID, &kb.TenantID, &kb.Name, &kb.Description, &kb.Status, &kb.DocumentCount, &kb.CreatedAt,
	)
	if err == nil {
		return kb, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	kb = &KnowledgeBase{TenantID: tenantID, Name: "Default Knowledge Base"}
	if err := r.Create(ctx, kb); err != nil {
		return nil, err
	}
	return kb, nil
}

// IncrementDocumentCount bumps the document counter.
func (r *KnowledgeBaseRepository) IncrementDocumentCount(ctx context.Context, kbID uuid.UUID) error {
	query := `UPDATE knowledge_bases SET document_count = document_count + 1 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, kbID)
	return err
}

// DocumentRepository handles document CRUD operations.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create creates a new document in PROCESSING state.
func (r *DocumentRepository) Create(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = DocumentStatusProcessing
	}
	if len(doc.Metadata) == 0 {
		doc.Metadata = json.RawMessage(`{}`)
	}
	doc.CreatedAt = time.Now()

	query := `
		INSERT INTO documents (id, knowledge_base_id, title, content_preview, status,
			chunk_count, metadata, created_at, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.KnowledgeBaseID, doc.Title, doc.ContentPreview, doc.Status,
		doc.ChunkCount, doc.Metadata, doc.CreatedAt, doc.IndexedAt,
	)
	return err
}

// GetByID retrieves a document by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `
		SELECT id, knowledge_base_id, title, content_preview, status, chunk_count,
			metadata, created_at, indexed_at
		FROM documents WHERE id = $1
	`
	doc := &Document{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.KnowledgeBaseID, &doc.Title, &doc.ContentPreview, &doc.Status,
		&doc.ChunkCount, &doc.Metadata, &doc.CreatedAt, &doc.IndexedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// Finalize marks a document INDEXED (or FAILED) with its final chunk count.
func (r *DocumentRepository) Finalize(ctx context.Context, id uuid.UUID, status DocumentStatus, chunkCount int) error {
	now := time.Now()
	var indexedAt *time.Time
	if status == DocumentStatusIndexed {
		indexedAt = &now
	}

	query := `
		UPDATE documents SET status = $1, chunk_count = $2, indexed_at = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, status, chunkCount, indexedAt, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Update modifies a document's title and preview.
func (r *DocumentRepository) Update(ctx context.Context, doc *Document) error {
	query := `
		UPDATE documents SET title = $1, content_preview = $2, metadata = $3
		WHERE id = $4
	`
	result, err := r.db.ExecContext(ctx, query, doc.Title, doc.ContentPreview, doc.Metadata, doc.ID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTenant lists documents across the tenant's knowledge bases.
func (r *DocumentRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Document, error) {
	query := `
		SELECT d.id, d.knowledge_base_id, d.title, d.content_preview, d.status,
			d.chunk_count, d.metadata, d.created_at, d.indexed_at
		FROM documents d
		JOIN knowledge_bases kb ON kb.id = d.knowledge_base_id
		WHERE kb.tenant_id = $1
		ORDER BY d.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(
			&doc.ID, &doc.KnowledgeBaseID, &doc.Title, &doc.ContentPreview, &doc.Status,
			&doc.ChunkCount, &doc.Metadata, &doc.CreatedAt, &doc.IndexedAt,
		); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ChunkRepository handles knowledge chunk operations.
type ChunkRepository struct {
	db DB
}

// NewChunkRepository creates a new chunk repository.
func NewChunkRepository(db DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// InsertBatch inserts chunks, assigning IDs where absent.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []*KnowledgeChunk) error {
	query := `
		INSERT INTO knowledge_chunks (id, document_id, content, chunk_index, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, chunk := range chunks {
		if chunk.ID == uuid.Nil {
			chunk.ID = uuid.New()
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = time.Now()
		}
		if len(chunk.Metadata) == 0 {
			chunk.Metadata = json.RawMessage(`{}`)
		}

		embedding, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}

		if _, err := r.db.ExecContext(ctx, query,
			chunk.ID, chunk.DocumentID, chunk.Content, chunk.ChunkIndex,
			embedding, chunk.Metadata, chunk.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListByDocument returns a document's chunks in index order.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*KnowledgeChunk, error) {
	query := `
		SELECT id, document_id, content, chunk_index, embedding, metadata, created_at
		FROM knowledge_chunks
		WHERE document_id = $1
		ORDER BY chunk_index
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListByTenant returns the tenant's most recent chunks joined with the owning
// document's tabular columns. This is the per-request retrieval corpus.
func (r *ChunkRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*TenantChunk, error) {
	if limit <= 0 {
		limit = 2000
	}

	query := `
		SELECT c.id, c.document_id, c.content, c.chunk_index, c.embedding, c.metadata,
			c.created_at, d.metadata
		FROM knowledge_chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN knowledge_bases kb ON kb.id = d.knowledge_base_id
		WHERE kb.tenant_id = $1
		ORDER BY c.created_at DESC, c.chunk_index
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TenantChunk
	for rows.Next() {
		chunk := &KnowledgeChunk{}
		var embedding []byte
		var docMeta []byte
		if err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.ChunkIndex,
			&embedding, &chunk.Metadata, &chunk.CreatedAt, &docMeta,
		); err != nil {
			return nil, err
		}
		if len(embedding) > 0 {
			_ = json.Unmarshal(embedding, &chunk.Embedding)
		}
		out = append(out, &TenantChunk{Chunk: chunk, Columns: decodeColumns(docMeta)})
	}
	return out, rows.Err()
}

// CountByDocument returns the number of chunks stored for a document.
func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM knowledge_chunks WHERE document_id = $1`
	var n int
	err := r.db.QueryRowContext(ctx, query, documentID).Scan(&n)
	return n, err
}

// Chapters returns the distinct (chapter_num, chapter_title) pairs seen in any
// chunk of any tenant document. Metadata is JSON, so decoding happens here
// rather than in dialect-specific SQL.
func (r *ChunkRepository) Chapters(ctx context.Context, tenantID uuid.UUID) ([]ChapterRef, error) {
	query := `
		SELECT c.metadata
		FROM knowledge_chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN knowledge_bases kb ON kb.id = d.knowledge_base_id
		WHERE kb.tenant_id = $1 AND c.metadata LIKE '%chapter\_num%' ESCAPE '\'
	`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[int]string)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var m ChunkMetadata
		if err := json.Unmarshal(raw, &m); err != nil || m.ChapterNum == nil {
			continue
		}
		title := ""
		if m.ChapterTitle != nil {
			title = *m.ChapterTitle
		}
		if existing, ok := seen[*m.ChapterNum]; !ok || (existing == "" && title != "") {
			seen[*m.ChapterNum] = title
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chapters := make([]ChapterRef, 0, len(seen))
	for num, title := range seen {
		chapters = append(chapters, ChapterRef{Num: num, Title: title})
	}
	return chapters, nil
}

// DeleteByTenant removes all chunks, documents, and knowledge bases of a tenant.
func (r *ChunkRepository) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) error {
	query := `
		DELETE FROM knowledge_chunks WHERE document_id IN (
			SELECT d.id FROM documents d
			JOIN knowledge_bases kb ON kb.id = d.knowledge_base_id
			WHERE kb.tenant_id = $1
		)
	`
	if _, err := r.db.ExecContext(ctx, query, tenantID); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE knowledge_base_id IN (SELECT id FROM knowledge_bases WHERE tenant_id = $1)`,
		tenantID,
	); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE tenant_id = $1`, tenantID)
	return err
}

func scanChunks(rows *sql.Rows) ([]*KnowledgeChunk, error) {
	var chunks []*KnowledgeChunk
	for rows.Next() {
		chunk := &KnowledgeChunk{}
		var embedding []byte
		if err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.ChunkIndex,
			&embedding, &chunk.Metadata, &chunk.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(embedding) > 0 {
			_ = json.Unmarshal(embedding, &chunk.Embedding)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func decodeColumns(docMeta []byte) []string {
	if len(docMeta) == 0 {
		return nil
	}
	var m struct {
		Columns []string `json:"columns"`
	}
	if err := json.Unmarshal(docMeta, &m); err != nil {
		return nil
	}
	return m.Columns
}

// ConversationRepository handles conversation operations.
type ConversationRepository struct {
	db DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation.
func (r *ConversationRepository) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.Status == "" {
		conv.Status = ConversationStatusActive
	}
	if len(conv.Context) == 0 {
		conv.Context = json.RawMessage(`{}`)
	}
	now := time.Now()
	conv.StartedAt = now
	conv.LastMessageAt = now

	query := `
		INSERT INTO conversations (id, tenant_id, user_id, channel, status, context, started_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		conv.ID, conv.TenantID, conv.UserID, conv.Channel, conv.Status,
		conv.Context, conv.StartedAt, conv.LastMessageAt,
	)
	return err
}

// FindActive returns the single ACTIVE conversation for (tenant, user, channel).
func (r *ConversationRepository) FindActive(ctx context.Context, tenantID, userID uuid.UUID, channel string) (*Conversation, error) {
	query := `
		SELECT id, tenant_id, user_id, channel, status, context, started_at, last_message_at
		FROM conversations
		WHERE tenant_id = $1 AND user_id = $2 AND channel = $3 AND status = $4
		ORDER BY started_at
		LIMIT 1
	`
	conv := &Conversation{}
	err := r.db.QueryRowContext(ctx, query, tenantID, userID, channel, ConversationStatusActive).Scan(
		&conv.ID, &conv.TenantID, &conv.UserID, &conv.Channel, &conv.Status,
		&conv.Context, &conv.StartedAt, &conv.LastMessageAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

// GetByID retrieves a conversation by ID.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `
		SELECT id, tenant_id, user_id, channel, status, context, started_at, last_message_at
		FROM conversations WHERE id = $1
	`
	conv := &Conversation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.TenantID, &conv.UserID, &conv.Channel, &conv.Status,
		&conv.Context, &conv.StartedAt, &conv.LastMessageAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return conv, err
}

// UpdateContext replaces the conversation's mutable context.
func (r *ConversationRepository) UpdateContext(ctx context.Context, id uuid.UUID, context json.RawMessage) error {
	query := `UPDATE conversations SET context = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, context, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastMessage bumps last_message_at.
func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE conversations SET last_message_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, at, id)
	return err
}

// UpdateStatus transitions the conversation status.
func (r *ConversationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status ConversationStatus) error {
	query := `UPDATE conversations SET status = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

// MessageRepository handles append-only message operations.
type MessageRepository struct {
	db DB
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append appends a message. Messages are never updated.
func (r *MessageRepository) Append(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.MessageType == "" {
		msg.MessageType = "TEXT"
	}
	if len(msg.Metadata) == 0 {
		msg.Metadata = json.RawMessage(`{}`)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_type, content, message_type, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderType, msg.Content,
		msg.MessageType, msg.Metadata, msg.Timestamp,
	)
	return err
}

// ListByConversation returns messages in append order.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender_type, content, message_type, metadata, timestamp
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp, id
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderType, &msg.Content,
			&msg.MessageType, &msg.Metadata, &msg.Timestamp,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListRecent returns the most recent messages, newest first.
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID uuid.UUID, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id, conversation_id, sender_type, content, message_type, metadata, timestamp
		FROM messages
		WHERE conversation_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderType, &msg.Content,
			&msg.MessageType, &msg.Metadata, &msg.Timestamp,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Repositories bundles all repositories over one DB handle.
type Repositories struct {
	Tenants        *TenantRepository
	Users          *UserRepository
	KnowledgeBases *KnowledgeBaseRepository
	Documents      *DocumentRepository
	Chunks         *ChunkRepository
	Conversations  *ConversationRepository
	Messages       *MessageRepository
}

// NewRepositories creates all repositories over the given DB handle.
func NewRepositories(db DB) *Repositories {
	return &Repositories{
		Tenants:        NewTenantRepository(db),
		Users:          NewUserRepository(db),
		KnowledgeBases: NewKnowledgeBaseRepository(db),
		Documents:      NewDocumentRepository(db),
		Chunks:         NewChunkRepository(db),
		Conversations:  NewConversationRepository(db),
		Messages:       NewMessageRepository(db),
	}
}
