package task

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritachen3656251-design/Danlink/internal/chat"
	"github.com/ritachen3656251-design/Danlink/internal/store"
)

func newTaskFixture(t *testing.T) (*Handler, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	mem.SeedProfile(store.Profile{ID: "alice", StudentID: "20230001", Name: "小A"})
	mem.SeedProfile(store.Profile{ID: "bob", StudentID: "20230002", Name: "小B"})

	resolver := chat.NewResolver(mem.Conversations)
	chatHandler := &chat.Handler{Convs: mem.Conversations, Msgs: mem.Messages, Tasks: mem.Tasks, Resolver: resolver}
	return &Handler{
		Tasks:    mem.Tasks,
		Accs:     mem.Acceptances,
		Profiles: mem.Profiles,
		Resolver: resolver,
		Chat:     chatHandler,
	}, mem
}

func call(t *testing.T, h echo.HandlerFunc, method, path, body, profileID, taskID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("profile_id", profileID)
	if taskID != "" {
		c.SetParamNames("id")
		c.SetParamValues(taskID)
	}
	require.NoError(t, h(c))
	return rec
}

func TestCreateValidatesType(t *testing.T) {
	h, _ := newTaskFixture(t)
	rec := call(t, h.Create, http.MethodPost, "/tasks", `{"type":"laundry","title":"x","price":"5"}`, "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h.Create, http.MethodPost, "/tasks", `{"type":"delivery","title":"取快递","price":"5"}`, "alice", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAcceptOwnTaskRejected(t *testing.T) {
	h, mem := newTaskFixture(t)
	require.NoError(t, mem.Tasks.Insert(context.Background(), &store.Task{
		ID: "t1", Type: "delivery", Title: "取快递", Price: "5", PublisherID: "alice", Status: "active",
	}))
	rec := call(t, h.Accept, http.MethodPost, "/tasks/t1/accept", "", "alice", "t1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAcceptCreatesAcceptanceAndAnnouncement(t *testing.T) {
	h, mem := newTaskFixture(t)
	ctx := context.Background()
	require.NoError(t, mem.Tasks.Insert(ctx, &store.Task{
		ID: "t1", Type: "delivery", Title: "取快递", Price: "5", PublisherID: "alice", Status: "active",
	}))

	rec := call(t, h.Accept, http.MethodPost, "/tasks/t1/accept", "", "bob", "t1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ConversationID string `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.ConversationID)

	task, err := mem.Tasks.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "accepted", task.Status)

	acc, err := mem.Acceptances.Find(ctx, "t1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "active", acc.Status)

	msgs, err := mem.Messages.List(ctx, body.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "system", msgs[0].Type)
	assert.Equal(t, chat.TplAccepted, msgs[0].SysTemplate)
	assert.Equal(t, chat.RoleAcceptor, msgs[0].SysActorRole)
	assert.Equal(t, "alice", msgs[0].ReceiverID)
}

func TestAcceptIsIdempotent(t *testing.T) {
	h, mem := newTaskFixture(t)
	ctx := context.Background()
	require.NoError(t, mem.Tasks.Insert(ctx, &store.Task{
		ID: "t1", Type: "delivery", Title: "取快递", Price: "5", PublisherID: "alice", Status: "active",
	}))

	first := call(t, h.Accept, http.MethodPost, "/tasks/t1/accept", "", "bob", "t1")
	require.Equal(t, http.StatusOK, first.Code)
	second := call(t, h.Accept, http.MethodPost, "/tasks/t1/accept", "", "bob", "t1")
	require.Equal(t, http.StatusOK, second.Code)

	var body struct {
		AlreadyAccepted bool   `json:"already_accepted"`
		ConversationID  string `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.True(t, body.AlreadyAccepted)

	// Still exactly one acceptance and one announcement.
	msgs, err := mem.Messages.List(ctx, body.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAcceptReusesInquiryThread(t *testing.T) {
	h, mem := newTaskFixture(t)
	ctx := context.Background()
	require.NoError(t, mem.Tasks.Insert(ctx, &store.Task{
		ID: "t1", Type: "delivery", Title: "取快递", Price: "5", PublisherID: "alice", Status: "active",
	}))

	// Bob asks a question before committing.
	inquiryID, err := h.Resolver.Resolve(ctx, "t1", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, mem.Messages.Insert(ctx, &store.Message{
		ID: "m1", ConversationID: inquiryID, SenderID: "bob", ReceiverID: "alice",
		Content: "多重？", Type: "user",
	}))

	rec := call(t, h.Accept, http.MethodPost, "/tasks/t1/accept", "", "bob", "t1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ConversationID string `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, inquiryID, body.ConversationID, "inquiry history stays in the committed conversation")

	msgs, err := mem.Messages.List(ctx, inquiryID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Type)
	assert.Equal(t, "system", msgs[1].Type)
}

func TestCompletedTaskLeavesListing(t *testing.T) {
	h, mem := newTaskFixture(t)
	ctx := context.Background()
	require.NoError(t, mem.Tasks.Insert(ctx, &store.Task{
		ID: "t1", Type: "delivery", Title: "取快递", Price: "5", PublisherID: "alice", Status: "active",
	}))
	require.NoError(t, mem.Tasks.MarkCompleted(ctx, "t1"))

	rec := call(t, h.ListOpen, http.MethodGet, "/tasks", "", "bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tasks []store.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Tasks)
}
