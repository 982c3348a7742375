package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/marketlens/go-insight-backend/internal/domain"
	"github.com/marketlens/go-insight-backend/internal/repo"
	"github.com/marketlens/go-insight-backend/internal/services"
)

const (
	testConvID    = "11111111-1111-1111-1111-111111111111"
	testMsgID     = "22222222-2222-2222-2222-222222222222"
	testSessionID = "33333333-3333-3333-3333-333333333333"
)

//
// Fakes
//

type fakeConvSvc struct {
	appended  []domain.Message
	patches   []repo.MessagePatch
	loadErr   error
	deleteErr error
	appendErr error
	items     []domain.Conversation
	total     int64
	gotPage   int
	gotSize   int
}

func (f *fakeConvSvc) Append(ctx context.Context, conversationID string, msg domain.Message) (*domain.Message, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	if msg.ID == "" {
		msg.ID = testMsgID
	}
	f.appended = append(f.appended, msg)
	return &msg, nil
}

func (f *fakeConvSvc) UpdateMessage(ctx context.Context, conversationID, messageID string, patch repo.MessagePatch) error {
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeConvSvc) Save(ctx context.Context, conversationID string) error { return nil }

func (f *fakeConvSvc) Load(ctx context.Context, conversationID string) (*domain.Conversation, []domain.Message, error) {
	if f.loadErr != nil {
		return nil, nil, f.loadErr
	}
	return &domain.Conversation{ID: conversationID, Title: "Audit example.com"},
		[]domain.Message{{ID: testMsgID, Role: domain.RoleUser, Content: "hi"}}, nil
}

func (f *fakeConvSvc) ListPage(ctx context.Context, page, pageSize int) ([]domain.Conversation, int64, error) {
	f.gotPage, f.gotSize = page, pageSize
	return f.items, f.total, nil
}

func (f *fakeConvSvc) Delete(ctx context.Context, conversationID string) error { return f.deleteErr }
func (f *fakeConvSvc) Clear(ctx context.Context, conversationID string) error  { return nil }

type fakeAnalysisSvc struct {
	startErr error
	getErr   error
	started  []string
}

func (f *fakeAnalysisSvc) Start(ctx context.Context, conversationID, auditDomain string, wait bool) (*domain.Analysis, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, auditDomain)
	return &domain.Analysis{ID: testMsgID, ConversationID: conversationID, Domain: auditDomain, Status: domain.StatusPending}, nil
}

func (f *fakeAnalysisSvc) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.Analysis{ID: id, Status: domain.StatusCompleted, Progress: 100}, nil
}

func (f *fakeAnalysisSvc) List(ctx context.Context, conversationID string) ([]domain.Analysis, error) {
	return []domain.Analysis{{ID: testMsgID, ConversationID: conversationID}}, nil
}

type fakeAssistSvc struct {
	err error
}

func (f *fakeAssistSvc) Answer(ctx context.Context, conversationID, prompt string) (*domain.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Message{ID: testMsgID, Role: domain.RoleAssistant, Content: "try guest checkout"}, nil
}

type fakeIntSvc struct {
	authErr       error
	callbackErr   error
	disconnectErr error
	connected     bool
	target        string
}

func (f *fakeIntSvc) AuthURL(ctx context.Context, provider, sessionID string) (string, error) {
	if f.authErr != nil {
		return "", f.authErr
	}
	return "https://provider.test/auth?state=" + sessionID, nil
}

func (f *fakeIntSvc) HandleCallback(ctx context.Context, provider, state string) (string, error) {
	if f.callbackErr != nil {
		return "", f.callbackErr
	}
	if f.target != "" {
		return f.target, nil
	}
	return "https://app.test/?google_analytics_connected=true", nil
}

func (f *fakeIntSvc) Status(ctx context.Context, provider, sessionID string) (bool, string, error) {
	if sessionID == "" {
		return false, testSessionID, nil
	}
	return f.connected, sessionID, nil
}

func (f *fakeIntSvc) Disconnect(ctx context.Context, provider, sessionID string, confirmed bool) error {
	return f.disconnectErr
}

//
// Harness
//

type fixture struct {
	conv     *fakeConvSvc
	analysis *fakeAnalysisSvc
	assist   *fakeAssistSvc
	integ    *fakeIntSvc
	router   *gin.Engine
}

func newFixture() *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		conv:     &fakeConvSvc{},
		analysis: &fakeAnalysisSvc{},
		assist:   &fakeAssistSvc{},
		integ:    &fakeIntSvc{},
	}
	h := New(f.conv, f.analysis, f.assist, f.integ)

	r := gin.New()
	r.POST("/conversations", h.CreateConversation)
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id", h.GetConversation)
	r.DELETE("/conversations/:id", h.DeleteConversation)
	r.POST("/conversations/:id/clear", h.ClearConversation)
	r.POST("/conversations/:id/messages", h.AppendMessage)
	r.PATCH("/conversations/:id/messages/:mid", h.UpdateMessage)
	r.POST("/conversations/:id/answer", h.Answer)
	r.POST("/conversations/:id/analyses", h.StartAnalysis)
	r.GET("/conversations/:id/analyses", h.ListAnalyses)
	r.GET("/analyses/:id", h.GetAnalysis)
	r.POST("/integrations/:provider/auth-url", h.AuthURL)
	r.GET("/integrations/:provider/callback", h.Callback)
	r.GET("/integrations/:provider/status", h.Status)
	r.POST("/integrations/:provider/disconnect", h.Disconnect)
	f.router = r
	return f
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

//
// Conversations
//

func TestCreateConversation(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodPost, "/conversations", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	conv := decode[domain.Conversation](t, w)
	if conv.ID == "" || conv.Title != "New conversation" {
		t.Fatalf("unexpected payload: %+v", conv)
	}
}

func TestListConversations_PaginationClamped(t *testing.T) {
	f := newFixture()
	f.conv.total = 45

	w := f.do(http.MethodGet, "/conversations?page=-3&page_size=9999", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.conv.gotPage != 1 || f.conv.gotSize != 100 {
		t.Fatalf("pagination not clamped: page=%d size=%d", f.conv.gotPage, f.conv.gotSize)
	}

	resp := decode[ListConversationsResponse](t, w)
	if resp.Pagination.Total != 45 || resp.Pagination.TotalPages != 1 || resp.Pagination.HasNext {
		t.Fatalf("unexpected pagination: %+v", resp.Pagination)
	}
}

func TestGetConversation(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodGet, "/conversations/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id must 400, got %d", w.Code)
	}

	w := f.do(http.MethodGet, "/conversations/"+testConvID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[ConversationResponse](t, w)
	if resp.Conversation.ID != testConvID || len(resp.Messages) != 1 {
		t.Fatalf("unexpected payload: %+v", resp)
	}

	f.conv.loadErr = services.ErrConversationNotFound
	if w := f.do(http.MethodGet, "/conversations/"+testConvID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing conversation must 404, got %d", w.Code)
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture()
	if w := f.do(http.MethodDelete, "/conversations/"+testConvID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	f.conv.deleteErr = services.ErrConversationNotFound
	if w := f.do(http.MethodDelete, "/conversations/"+testConvID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing conversation must 404, got %d", w.Code)
	}
}

func TestClearConversation(t *testing.T) {
	f := newFixture()
	if w := f.do(http.MethodPost, "/conversations/"+testConvID+"/clear", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestAppendMessage(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/conversations/"+testConvID+"/messages",
		AppendMessageRequest{Content: "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.conv.appended) != 1 || f.conv.appended[0].Role != domain.RoleUser {
		t.Fatalf("role must default to user: %+v", f.conv.appended)
	}

	f.conv.appendErr = services.ErrInvalidRole
	w = f.do(http.MethodPost, "/conversations/"+testConvID+"/messages",
		AppendMessageRequest{Role: "root", Content: "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("validation failures must 400, got %d", w.Code)
	}
}

func TestUpdateMessage_UnknownIDStillNoContent(t *testing.T) {
	f := newFixture()
	content := "patched"
	w := f.do(http.MethodPatch, "/conversations/"+testConvID+"/messages/"+testMsgID,
		UpdateMessageRequest{Content: &content})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(f.conv.patches) != 1 || f.conv.patches[0].Content == nil || *f.conv.patches[0].Content != "patched" {
		t.Fatalf("patch not forwarded: %+v", f.conv.patches)
	}
}

func TestAnswer(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/conversations/"+testConvID+"/answer", AnswerRequest{Prompt: "  "}); w.Code != http.StatusBadRequest {
		t.Fatalf("blank prompt must 400, got %d", w.Code)
	}

	w := f.do(http.MethodPost, "/conversations/"+testConvID+"/answer",
		AnswerRequest{Prompt: "How do I fix slow checkout?"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	msg := decode[domain.Message](t, w)
	if msg.Role != domain.RoleAssistant {
		t.Fatalf("expected an assistant envelope: %+v", msg)
	}
}

//
// Analyses
//

func TestStartAnalysis(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/conversations/"+testConvID+"/analyses", StartAnalysisRequest{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing domain must 400, got %d", w.Code)
	}

	w := f.do(http.MethodPost, "/conversations/"+testConvID+"/analyses",
		StartAnalysisRequest{Domain: "example.com"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	an := decode[domain.Analysis](t, w)
	if an.Status != domain.StatusPending || an.Domain != "example.com" {
		t.Fatalf("unexpected pending record: %+v", an)
	}
}

func TestGetAnalysis(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/analyses/"+testMsgID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	f.analysis.getErr = services.ErrAnalysisNotFound
	if w := f.do(http.MethodGet, "/analyses/"+testMsgID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing analysis must 404, got %d", w.Code)
	}
}

func TestListAnalyses(t *testing.T) {
	f := newFixture()
	w := f.do(http.MethodGet, "/conversations/"+testConvID+"/analyses", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	list := decode[[]domain.Analysis](t, w)
	if len(list) != 1 {
		t.Fatalf("expected one record, got %d", len(list))
	}
}

//
// Integrations
//

func TestIntegrationAuthURL(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/integrations/google-analytics/auth-url", AuthURLRequest{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing session must 400, got %d", w.Code)
	}

	w := f.do(http.MethodPost, "/integrations/google-analytics/auth-url",
		AuthURLRequest{SessionID: testSessionID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[AuthURLResponse](t, w)
	if resp.AuthURL == "" {
		t.Fatal("auth_url missing")
	}

	f.integ.authErr = services.ErrUnknownProvider
	if w := f.do(http.MethodPost, "/integrations/nope/auth-url", AuthURLRequest{SessionID: testSessionID}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown provider must 404, got %d", w.Code)
	}
}

func TestIntegrationCallback(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodGet, "/integrations/google-analytics/callback", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing state must 400, got %d", w.Code)
	}

	w := f.do(http.MethodGet, "/integrations/google-analytics/callback?state="+testSessionID+"&code=abc", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if loc != "https://app.test/?google_analytics_connected=true" {
		t.Fatalf("unexpected redirect target: %q", loc)
	}
}

func TestIntegrationStatus(t *testing.T) {
	f := newFixture()
	f.integ.connected = true

	w := f.do(http.MethodGet, "/integrations/google-analytics/status?session_id="+testSessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[StatusResponse](t, w)
	if !resp.Connected || resp.SessionID != testSessionID {
		t.Fatalf("unexpected status: %+v", resp)
	}

	// No session: the server mints one for the client to adopt.
	w = f.do(http.MethodGet, "/integrations/google-analytics/status", nil)
	resp = decode[StatusResponse](t, w)
	if resp.Connected || resp.SessionID == "" {
		t.Fatalf("fresh session must be disconnected with a minted id: %+v", resp)
	}
}

func TestIntegrationDisconnect(t *testing.T) {
	f := newFixture()

	if w := f.do(http.MethodPost, "/integrations/google-analytics/disconnect", DisconnectRequest{Confirm: true}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing session must 400, got %d", w.Code)
	}

	w := f.do(http.MethodPost, "/integrations/google-analytics/disconnect",
		DisconnectRequest{SessionID: testSessionID, Confirm: true})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	f.integ.disconnectErr = services.ErrConnectionNotFound
	if w := f.do(http.MethodPost, "/integrations/google-analytics/disconnect",
		DisconnectRequest{SessionID: testSessionID, Confirm: true}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown connection must 404, got %d", w.Code)
	}
}
