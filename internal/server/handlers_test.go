package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/meishi/internal/assistant"
	"github.com/hyperjump/meishi/internal/config"
	"github.com/hyperjump/meishi/internal/embedding"
	"github.com/hyperjump/meishi/internal/enrich"
	"github.com/hyperjump/meishi/internal/indexer"
	"github.com/hyperjump/meishi/internal/keyword"
	"github.com/hyperjump/meishi/internal/models"
	"github.com/hyperjump/meishi/internal/session"
	"github.com/hyperjump/meishi/internal/staging"
	"github.com/hyperjump/meishi/internal/storage"
	"github.com/hyperjump/meishi/internal/vector"
)

const testUser = "user@example.com"

type stubChatClient struct {
	reply string
}

func (c *stubChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: c.reply}},
		},
	}, nil
}

type testEnv struct {
	router     http.Handler
	store      storage.Storage
	staging    *staging.Store
	stagingDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()

	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	vecIdx, err := vector.NewMemoryIndex(32)
	if err != nil {
		t.Fatalf("failed to create vector index: %v", err)
	}
	kwIdx, err := keyword.NewMemoryBleveIndex()
	if err != nil {
		t.Fatalf("failed to create keyword index: %v", err)
	}
	t.Cleanup(func() { kwIdx.Close() })

	embedder := embedding.NewMockEmbedder(32)
	idx := indexer.NewIndexer(store, embedder, vecIdx, kwIdx, logger)

	stagingDir := filepath.Join(dir, "staging")
	stagingStore, err := staging.NewStore(stagingDir)
	if err != nil {
		t.Fatalf("failed to create staging store: %v", err)
	}
	sessions := session.NewStore(time.Minute, stagingStore, logger)
	committer := enrich.NewCommitter(store, idx, stagingStore, logger)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	engine := assistant.NewEngine(store, embedder, vecIdx, &stubChatClient{reply: "stub answer"}, &cfg.Assistant, logger)

	srv := NewServer(Deps{
		Storage:      store,
		Indexer:      idx,
		Committer:    committer,
		Sessions:     sessions,
		Staging:      stagingStore,
		Assistant:    engine,
		Embedder:     embedder,
		VectorIndex:  vecIdx,
		KeywordIndex: kwIdx,
	}, cfg, logger)

	return &testEnv{router: srv.Router(), store: store, staging: stagingStore, stagingDir: stagingDir}
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	r := httptest.NewRequest(method, path, body)
	r.Header.Set("X-User-Email", testUser)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("failed to encode payload: %v", err)
		}
	}
	return e.do(t, method, path, &buf, "application/json")
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v (body: %s)", err, w.Body.String())
	}
}

func multipartUpload(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestRequireUserHeader(t *testing.T) {
	env := newTestEnv(t)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/contacts", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestContactCRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/v1/contacts", map[string]string{
		"first_name": "John", "last_name": "Doe", "company": "Acme Corp",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created models.Contact
	decodeBody(t, w, &created)
	if created.ID == 0 {
		t.Fatal("created contact has no id")
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d", created.ID), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = env.doJSON(t, http.MethodPut, fmt.Sprintf("/api/v1/contacts/%d", created.ID), map[string]string{
		"first_name": "John", "last_name": "Doe", "company": "Globex",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}
	var updated models.Contact
	decodeBody(t, w, &updated)
	if updated.Company != "Globex" {
		t.Errorf("company = %q, want Globex", updated.Company)
	}

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/contacts/%d", created.ID), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d", created.ID), nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestCreateContactRequiresName(t *testing.T) {
	env := newTestEnv(t)
	w := env.doJSON(t, http.MethodPost, "/api/v1/contacts", map[string]string{"email": "x@y.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchContacts(t *testing.T) {
	env := newTestEnv(t)

	for _, c := range []map[string]string{
		{"first_name": "Jane", "last_name": "Smith", "company": "Globex"},
		{"first_name": "John", "last_name": "Doe", "company": "Acme"},
	} {
		if w := env.doJSON(t, http.MethodPost, "/api/v1/contacts", c); w.Code != http.StatusCreated {
			t.Fatalf("seed failed: %s", w.Body.String())
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/contacts/search?q=Globex", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Contacts []*models.Contact `json:"contacts"`
	}
	decodeBody(t, w, &out)
	if len(out.Contacts) == 0 {
		t.Fatal("expected search hits")
	}
	if out.Contacts[0].LastName != "Smith" {
		t.Errorf("top hit = %s, want Smith", out.Contacts[0].LastName)
	}
}

const importVCF = `BEGIN:VCARD
VERSION:3.0
FN:John Doe
EMAIL:john.new@example.com
END:VCARD
BEGIN:VCARD
VERSION:3.0
FN:Alice Wonderland
EMAIL:alice@example.com
END:VCARD
`

type importResponse struct {
	Report struct {
		Token   string                `json:"token"`
		Total   int                   `json:"total"`
		Exact   int                   `json:"exact_matches"`
		Partial int                   `json:"partial_matches"`
		None    int                   `json:"no_matches"`
		Entries []*models.ReportEntry `json:"contacts"`
	} `json:"report"`
	ProposedActions map[string]string `json:"proposed_actions"`
}

func (e *testEnv) buildImport(t *testing.T) importResponse {
	t.Helper()
	body, contentType := multipartUpload(t, "files", map[string]string{"contacts.vcf": importVCF})
	w := e.do(t, http.MethodPost, "/api/v1/imports", body, contentType)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", w.Code, w.Body.String())
	}
	var resp importResponse
	decodeBody(t, w, &resp)
	return resp
}

func TestImportFlow(t *testing.T) {
	env := newTestEnv(t)

	if w := env.doJSON(t, http.MethodPost, "/api/v1/contacts", map[string]string{
		"first_name": "John", "last_name": "Doe",
	}); w.Code != http.StatusCreated {
		t.Fatalf("seed failed: %s", w.Body.String())
	}

	resp := env.buildImport(t)
	if resp.Report.Token == "" {
		t.Fatal("report has no token")
	}
	if resp.Report.Total != 2 || resp.Report.Exact != 1 || resp.Report.None != 1 {
		t.Fatalf("unexpected report counts: %+v", resp.Report)
	}
	if resp.ProposedActions["0"] != "merge" || resp.ProposedActions["1"] != "skip" {
		t.Errorf("unexpected proposed actions: %v", resp.ProposedActions)
	}

	w := env.doJSON(t, http.MethodPost, "/api/v1/imports/"+resp.Report.Token+"/commit", map[string]interface{}{
		"actions": map[string]string{"0": "merge", "1": "create"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("commit status = %d: %s", w.Code, w.Body.String())
	}
	var outcome models.EnrichmentOutcome
	decodeBody(t, w, &outcome)
	if outcome.Merged != 1 || outcome.Created != 1 || outcome.Skipped != 0 || len(outcome.Failures) != 0 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	contacts, err := env.store.ListContacts(context.Background(), testUser)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts after import, got %d", len(contacts))
	}
	if contacts[0].Email != "john.new@example.com" {
		t.Errorf("merge did not fill email: %q", contacts[0].Email)
	}

	// Session is gone after commit.
	w = env.doJSON(t, http.MethodPost, "/api/v1/imports/"+resp.Report.Token+"/commit", map[string]interface{}{})
	if w.Code != http.StatusNotFound {
		t.Errorf("reused token status = %d, want 404", w.Code)
	}

	// Staged files are gone too.
	entries, err := os.ReadDir(env.stagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging dir not empty after commit: %v", entries)
	}
}

func TestImportCommitInvalidAction(t *testing.T) {
	env := newTestEnv(t)
	resp := env.buildImport(t)

	// merge against a none-classified entry
	w := env.doJSON(t, http.MethodPost, "/api/v1/imports/"+resp.Report.Token+"/commit", map[string]interface{}{
		"actions": map[string]string{"0": "merge"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	contacts, err := env.store.ListContacts(context.Background(), testUser)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("invalid action must produce zero mutations, got %d contacts", len(contacts))
	}
}

func TestImportCommitUnknownActionTag(t *testing.T) {
	env := newTestEnv(t)
	resp := env.buildImport(t)

	w := env.doJSON(t, http.MethodPost, "/api/v1/imports/"+resp.Report.Token+"/commit", map[string]interface{}{
		"actions": map[string]string{"0": "duplicate"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestImportCancel(t *testing.T) {
	env := newTestEnv(t)
	resp := env.buildImport(t)

	w := env.do(t, http.MethodDelete, "/api/v1/imports/"+resp.Report.Token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", w.Code, w.Body.String())
	}

	contacts, err := env.store.ListContacts(context.Background(), testUser)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(contacts) != 0 {
		t.Errorf("cancel must not mutate contacts, got %d", len(contacts))
	}
	entries, err := os.ReadDir(env.stagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging dir not empty after cancel: %v", entries)
	}
}

func TestImportUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.doJSON(t, http.MethodPost, "/api/v1/imports/no-such-token/commit", map[string]interface{}{})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestImportOtherUsersToken(t *testing.T) {
	env := newTestEnv(t)
	resp := env.buildImport(t)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/imports/"+resp.Report.Token, nil)
	r.Header.Set("X-User-Email", "intruder@example.com")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestImportRejectsUnsupportedFile(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartUpload(t, "files", map[string]string{"resume.pdf": "%PDF"})
	w := env.do(t, http.MethodPost, "/api/v1/imports", body, contentType)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
}

func TestUploadContactFile(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/v1/contacts", map[string]string{
		"first_name": "Jane", "last_name": "Smith",
	})
	var created models.Contact
	decodeBody(t, w, &created)

	body, contentType := multipartUpload(t, "file", map[string]string{"notes.txt": "Jane prefers email contact."})
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/contacts/%d/files", created.ID), body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/contacts/%d", created.ID), nil, "")
	var got models.Contact
	decodeBody(t, w, &got)
	if len(got.Files) != 1 || got.Files[0] != "notes.txt" {
		t.Errorf("file not linked: %v", got.Files)
	}

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/contacts/%d/files/notes.txt", created.ID), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("file delete status = %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/contacts/%d/files/notes.txt", created.ID), nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestAssistantQuery(t *testing.T) {
	env := newTestEnv(t)

	w := env.doJSON(t, http.MethodPost, "/api/v1/assistant/query", map[string]string{
		"question": "Who works at Globex?",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Answer string `json:"answer"`
	}
	decodeBody(t, w, &out)
	if out.Answer != "stub answer" {
		t.Errorf("answer = %q", out.Answer)
	}

	w = env.do(t, http.MethodGet, "/api/v1/assistant/history", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var hist struct {
		Messages []*models.ChatMessage `json:"messages"`
	}
	decodeBody(t, w, &hist)
	if len(hist.Messages) != 2 {
		t.Errorf("expected 2 history messages, got %d", len(hist.Messages))
	}

	w = env.do(t, http.MethodDelete, "/api/v1/assistant/history", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/health", nil, ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/api/v1/status", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status status = %d", w.Code)
	}
	var out map[string]interface{}
	decodeBody(t, w, &out)
	if _, ok := out["contacts"]; !ok {
		t.Errorf("status missing contacts count: %v", out)
	}
}
