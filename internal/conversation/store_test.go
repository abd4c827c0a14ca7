package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerline/answer-engine/internal/answer"
	"github.com/answerline/answer-engine/internal/observability"
	"github.com/answerline/answer-engine/internal/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := storage.NewStoreFromDB(db, "sqlite3", observability.DefaultLogger())
	require.NoError(t, err)
	return NewStore(observability.DefaultLogger(), st.Repos())
}

func TestAcquireCreatesLazily(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, user := uuid.New(), uuid.New()

	conv, err := s.Acquire(ctx, tenant, user, "web")
	require.NoError(t, err)
	assert.Equal(t, storage.ConversationStatusActive, conv.Status)
	assert.Equal(t, tenant, conv.TenantID)

	got, err := s.repos.Users.GetByID(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, storage.UserTypeExternalCustomer, got.UserType)
}

func TestAcquireReusesActive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, user := uuid.New(), uuid.New()

	first, err := s.Acquire(ctx, tenant, user, "whatsapp")
	require.NoError(t, err)
	second, err := s.Acquire(ctx, tenant, user, "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different channel gets its own conversation.
	other, err := s.Acquire(ctx, tenant, user, "web")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestAcquireAfterEscalation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	tenant, user := uuid.New(), uuid.New()

	first, err := s.Acquire(ctx, tenant, user, "web")
	require.NoError(t, err)
	require.NoError(t, s.Escalate(ctx, first.ID))

	second, err := s.Acquire(ctx, tenant, user, "web")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAppendOrderingWithinTurn(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	conv, err := s.Acquire(ctx, uuid.New(), uuid.New(), "web")
	require.NoError(t, err)

	require.NoError(t, s.AppendUser(ctx, conv.ID, "what is the salary of Brown James?"))
	require.NoError(t, s.AppendSystem(ctx, conv.ID, &answer.Result{
		Response:   "The salary of Brown James is $64,000.",
		Confidence: 0.95,
		Citations:  []answer.Citation{{Source: "chunk_0", Title: "Context 1", Relevance: 0.8}},
	}))

	msgs, err := s.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, storage.SenderTypeUser, msgs[0].SenderType)
	assert.Equal(t, storage.SenderTypeSystem, msgs[1].SenderType)
	assert.False(t, msgs[1].Timestamp.Before(msgs[0].Timestamp))

	var meta map[string]any
	require.NoError(t, json.Unmarshal(msgs[1].Metadata, &meta))
	assert.InDelta(t, 0.95, meta["confidence"], 1e-9)

	got, err := s.repos.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, got.LastMessageAt.Before(conv.LastMessageAt))
}

func TestContextRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	conv, err := s.Acquire(ctx, uuid.New(), uuid.New(), "web")
	require.NoError(t, err)

	cc := s.LoadContext(conv)
	assert.Empty(t, cc.LastPerson)

	cc.LastPerson = "Akinkuolie, Sarah"
	cc.LastListTopic = "project management"
	cc.LastListItems = []string{"Initiating", "Planning"}
	cc.LastListIndex = 2
	require.NoError(t, s.SaveContext(ctx, conv, cc))

	reloaded, err := s.repos.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	got := s.LoadContext(reloaded)
	assert.Equal(t, "Akinkuolie, Sarah", got.LastPerson)
	assert.Equal(t, []string{"Initiating", "Planning"}, got.LastListItems)
	assert.Equal(t, 2, got.LastListIndex)
}

func TestSaveContextPreservesForeignKeys(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	conv, err := s.Acquire(ctx, uuid.New(), uuid.New(), "web")
	require.NoError(t, err)

	conv.Context = json.RawMessage(`{"locale":"en-GB","last_person":"Old, Name"}`)
	require.NoError(t, s.repos.Conversations.UpdateContext(ctx, conv.ID, conv.Context))

	require.NoError(t, s.SaveContext(ctx, conv, &answer.ConvContext{LastPerson: "New, Name"}))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(conv.Context, &raw))
	assert.Contains(t, raw, "locale")
	assert.Equal(t, `"New, Name"`, string(raw["last_person"]))
}

func TestSaveContextDropsClearedFields(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	conv, err := s.Acquire(ctx, uuid.New(), uuid.New(), "web")
	require.NoError(t, err)

	require.NoError(t, s.SaveContext(ctx, conv, &answer.ConvContext{LastPerson: "Cole, Dana"}))
	require.NoError(t, s.SaveContext(ctx, conv, &answer.ConvContext{}))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(conv.Context, &raw))
	assert.NotContains(t, raw, "last_person")
}

func TestLoadContextToleratesGarbage(t *testing.T) {
	s := testStore(t)
	conv := &storage.Conversation{ID: uuid.New(), Context: json.RawMessage(`not json`)}
	cc := s.LoadContext(conv)
	require.NotNil(t, cc)
	assert.Empty(t, cc.LastPerson)
}
