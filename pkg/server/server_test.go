package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/aegis/pkg/advisory"
	"mercator-hq/aegis/pkg/auditing"
	"mercator-hq/aegis/pkg/config"
	"mercator-hq/aegis/pkg/evidence"
	"mercator-hq/aegis/pkg/evidence/export"
	"mercator-hq/aegis/pkg/evidence/recorder"
	"mercator-hq/aegis/pkg/evidence/storage"
	"mercator-hq/aegis/pkg/generation"
	"mercator-hq/aegis/pkg/governance"
	"mercator-hq/aegis/pkg/identity"
	"mercator-hq/aegis/pkg/knowledge"
	"mercator-hq/aegis/pkg/moderation"
	"mercator-hq/aegis/pkg/pipeline"
	"mercator-hq/aegis/pkg/policy"
	"mercator-hq/aegis/pkg/review"
	"mercator-hq/aegis/pkg/screening"
	"mercator-hq/aegis/pkg/server/types"
	"mercator-hq/aegis/pkg/session"
	"mercator-hq/aegis/pkg/telemetry/health"
	"mercator-hq/aegis/pkg/telemetry/metrics"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"

	benignPrompt  = "What is the weather like today?"
	mediumPrompt  = "How do I hack the HR system and pull the ssn 123-45-6789 of an employee?"
	blockedPrompt = "hack exploit malware phishing backdoor ddos kill bomb weapon terrorism fraud " +
		"money laundering 123-45-6789 111-22-3333 a@b.io personal data medical health"
)

type testEnv struct {
	cfg      *config.Config
	handler  http.Handler
	store    *storage.MemoryStorage
	sessions *session.MemoryStore
	tokens   *identity.TokenManager
	queue    *review.MemoryQueue
}

func newEnv(t *testing.T, auth bool, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.NewDefault()
	cfg.Identity.Secret = testSecret
	cfg.Identity.Enabled = auth
	cfg.Evidence.Backend = "memory"
	for _, m := range mutate {
		m(cfg)
	}

	pack := knowledge.NewStaticStore(knowledge.Default())
	classifier := moderation.NewKeywordClassifier(nil)
	store := storage.NewMemoryStorage()
	sessions := session.NewMemoryStore(session.DefaultTTL)
	queue := review.NewMemoryQueue(100)

	rec := recorder.New(store, pack, &recorder.Config{Async: false})
	t.Cleanup(func() { rec.Close() })

	p := pipeline.New(pipeline.Stages{
		Screener:  screening.New(pack, classifier),
		Policy:    policy.New(pack),
		Generator: generation.NewStaticGenerator("Here is some general information. I am an AI assistant.", nil),
		Auditor:   auditing.New(pack, classifier),
		Composer:  advisory.New(pack),
		Recorder:  rec,
	}, pipeline.Config{GenerationTimeout: time.Second}, pipeline.WithReview(queue))

	sink, err := export.NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create sink: %v", err)
	}

	checker := health.New(time.Second)
	checker.RegisterCheck("audit_store", func(ctx context.Context) error {
		_, err := store.Count(ctx, &evidence.Query{})
		return err
	})

	env := &testEnv{cfg: cfg, store: store, sessions: sessions, queue: queue}
	deps := Deps{
		Pipeline: p,
		Storage:  store,
		Exports:  export.NewService(store, sink),
		Sessions: sessions,
		Review:   queue,
		Metrics:  metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		Health:   checker,
		Build:    BuildInfo{Version: "test"},
	}
	if auth {
		tokens, err := identity.NewTokenManager(identity.Config{Secret: testSecret}, sessions, pack)
		if err != nil {
			t.Fatalf("failed to create token manager: %v", err)
		}
		env.tokens = tokens
		deps.Tokens = tokens
	}

	srv, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, _, err := e.tokens.Issue(context.Background(), userID, role)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestProcess_Allowed(t *testing.T) {
	env := newEnv(t, true)
	token := env.token(t, "alice", "analyst")

	rec := env.do(t, http.MethodPost, "/api/v1/genai/process", token, map[string]any{"prompt": benignPrompt})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[pipeline.Response](t, rec)

	if resp.Blocked || resp.ComplianceStatus == governance.StatusBlocked {
		t.Errorf("expected benign prompt to pass, got %s", resp.ComplianceStatus)
	}
	if resp.RequestID != rec.Header().Get("X-Request-ID") {
		t.Errorf("expected request id %q to match header %q", resp.RequestID, rec.Header().Get("X-Request-ID"))
	}
	if resp.Policy == nil || resp.Policy.Role != "analyst" {
		t.Errorf("expected role from token, got %+v", resp.Policy)
	}

	records, _ := env.store.Query(context.Background(), &evidence.Query{UserID: "alice"})
	if len(records) != 1 {
		t.Errorf("expected one audit record for alice, got %d", len(records))
	}
}

func TestProcess_Blocked(t *testing.T) {
	env := newEnv(t, true)
	token := env.token(t, "alice", "user")

	rec := env.do(t, http.MethodPost, "/api/v1/genai/process", token, map[string]any{"prompt": blockedPrompt})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody[pipeline.Response](t, rec)

	if resp.ComplianceStatus != governance.StatusBlocked {
		t.Errorf("expected blocked, got %s", resp.ComplianceStatus)
	}
	if resp.ResponseText != "Request blocked due to high-risk content" {
		t.Errorf("unexpected response text %q", resp.ResponseText)
	}
	if len(resp.Recommendations) != 1 || resp.Recommendations[0] != "Please review and modify your request" {
		t.Errorf("unexpected recommendations %v", resp.Recommendations)
	}
}

func TestProcess_RejectsBadBodies(t *testing.T) {
	env := newEnv(t, true, func(c *config.Config) { c.Server.MaxBodyBytes = 512 })
	token := env.token(t, "alice", "user")

	tests := []struct {
		name     string
		body     any
		expected int
		code     string
		param    string
	}{
		{"invalid json", `{"prompt":`, http.StatusBadRequest, types.CodeInvalidJSON, ""},
		{"missing prompt", map[string]any{"context": map[string]any{}}, http.StatusBadRequest, types.CodeSchemaViolation, ""},
		{"empty prompt", map[string]any{"prompt": ""}, http.StatusBadRequest, types.CodeSchemaViolation, "prompt"},
		{"prompt not a string", map[string]any{"prompt": 42}, http.StatusBadRequest, types.CodeSchemaViolation, "prompt"},
		{"unknown field", map[string]any{"prompt": "hi", "model": "x"}, http.StatusBadRequest, types.CodeSchemaViolation, ""},
		{"context not an object", map[string]any{"prompt": "hi", "context": "finance"}, http.StatusBadRequest, types.CodeSchemaViolation, "context"},
		{"whitespace prompt", map[string]any{"prompt": "   "}, http.StatusBadRequest, types.CodeInvalidValue, "prompt"},
		{"too large", map[string]any{"prompt": strings.Repeat("a", 1024)}, http.StatusRequestEntityTooLarge, types.CodeRequestTooLarge, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/genai/process", token, tt.body)
			if rec.Code != tt.expected {
				t.Fatalf("expected %d, got %d: %s", tt.expected, rec.Code, rec.Body.String())
			}
			errResp := decodeBody[types.ErrorResponse](t, rec)
			if errResp.Error.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, errResp.Error.Code)
			}
			if tt.param != "" && errResp.Error.Param != tt.param {
				t.Errorf("expected param %q, got %q", tt.param, errResp.Error.Param)
			}
			if errResp.Error.RequestID == "" {
				t.Error("expected request id in error body")
			}
		})
	}
}

func TestProcess_Identity(t *testing.T) {
	env := newEnv(t, true)
	token := env.token(t, "alice", "user")

	if rec := env.do(t, http.MethodPost, "/api/v1/genai/process", "", map[string]any{"prompt": benignPrompt}); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/genai/process", token, map[string]any{"prompt": benignPrompt, "user_id": "bob"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another user's id, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/genai/process", token, map[string]any{"prompt": benignPrompt, "session_id": "session_forged"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown session, got %d", rec.Code)
	}
}

func TestProcess_AuthDisabled(t *testing.T) {
	env := newEnv(t, false)

	rec := env.do(t, http.MethodPost, "/api/v1/genai/process", "", map[string]any{"prompt": benignPrompt})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without user_id, got %d", rec.Code)
	}
	if errResp := decodeBody[types.ErrorResponse](t, rec); errResp.Error.Param != "user_id" {
		t.Errorf("expected user_id param, got %q", errResp.Error.Param)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/genai/process", "", map[string]any{"prompt": benignPrompt, "user_id": "carol"})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuditLogs_Access(t *testing.T) {
	env := newEnv(t, true)
	aliceToken, sess, err := env.tokens.Issue(context.Background(), "alice", "user")
	if err != nil {
		t.Fatal(err)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/genai/process", aliceToken, map[string]any{"prompt": benignPrompt}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	path := "/api/v1/audit/logs/" + sess.ID
	tests := []struct {
		name     string
		token    string
		expected int
		count    int
	}{
		{"owner", aliceToken, http.StatusOK, 1},
		{"other user", env.token(t, "bob", "user"), http.StatusOK, 0},
		{"admin", env.token(t, "root", "admin"), http.StatusOK, 1},
		{"manager", env.token(t, "mia", "manager"), http.StatusOK, 1},
		{"guest", env.token(t, "visitor", "guest"), http.StatusForbidden, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, path, tt.token, nil)
			if rec.Code != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, rec.Code)
			}
			if rec.Code != http.StatusOK {
				return
			}
			body := decodeBody[auditLogsResponse](t, rec)
			if body.Count != tt.count || len(body.Records) != tt.count {
				t.Errorf("expected %d records, got %d", tt.count, body.Count)
			}
			for _, r := range body.Records {
				if r.PromptHash == "" || strings.Contains(rec.Body.String(), benignPrompt) {
					t.Error("audit logs must carry hashes, never raw prompts")
				}
			}
		})
	}
}

func TestExport(t *testing.T) {
	env := newEnv(t, true)
	analyst := env.token(t, "ana", "analyst")
	env.do(t, http.MethodPost, "/api/v1/genai/process", analyst, map[string]any{"prompt": benignPrompt})

	now := time.Now().UTC()
	window := map[string]any{
		"start_date": now.Add(-time.Hour).Format(time.RFC3339),
		"end_date":   now.Add(time.Hour).Format(time.RFC3339),
	}

	rec := env.do(t, http.MethodPost, "/api/v1/audit/export", analyst, window)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[export.Result](t, rec)
	if !strings.HasPrefix(result.ExportID, "export_") {
		t.Errorf("expected export_ id, got %q", result.ExportID)
	}
	if result.RecordCount != 1 || result.RequestedBy != "ana" {
		t.Errorf("unexpected result %+v", result)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/audit/export", env.token(t, "u", "user"), window); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for own-access role, got %d", rec.Code)
	}

	reversed := map[string]any{"start_date": window["end_date"], "end_date": window["start_date"]}
	rec = env.do(t, http.MethodPost, "/api/v1/audit/export", analyst, reversed)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for reversed window, got %d", rec.Code)
	}
}

func TestAnalytics(t *testing.T) {
	env := newEnv(t, true)
	analyst := env.token(t, "ana", "analyst")
	env.do(t, http.MethodPost, "/api/v1/genai/process", analyst, map[string]any{"prompt": benignPrompt})
	env.do(t, http.MethodPost, "/api/v1/genai/process", analyst, map[string]any{"prompt": blockedPrompt})

	rec := env.do(t, http.MethodGet, "/api/v1/analytics", analyst, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	a := decodeBody[evidence.Analytics](t, rec)
	if a.TotalInteractions != 2 || a.Blocked != 1 {
		t.Errorf("expected 2 interactions with 1 blocked, got %d and %d", a.TotalInteractions, a.Blocked)
	}
	if a.RiskDistribution["high"] != 1 {
		t.Errorf("expected one high risk record, got %v", a.RiskDistribution)
	}

	tests := []struct {
		name     string
		path     string
		token    string
		expected int
	}{
		{"user denied", "/api/v1/analytics", env.token(t, "u", "user"), http.StatusForbidden},
		{"bad start", "/api/v1/analytics?start=yesterday", analyst, http.StatusBadRequest},
		{"reversed", "/api/v1/analytics?start=2026-02-02T00:00:00Z&end=2026-02-01T00:00:00Z", analyst, http.StatusBadRequest},
		{"explicit window", "/api/v1/analytics?start=2026-02-01T00:00:00Z&end=2026-02-02T00:00:00Z", analyst, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodGet, tt.path, tt.token, nil); rec.Code != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestSessions(t *testing.T) {
	env := newEnv(t, true)
	alice := env.token(t, "alice", "user")
	admin := env.token(t, "root", "admin")

	rec := env.do(t, http.MethodPost, "/api/v1/sessions", alice, map[string]any{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[createSessionResponse](t, rec)
	if created.Token == "" || created.Session == nil || created.Session.UserID != "alice" {
		t.Fatalf("unexpected session response %+v", created)
	}
	if got := time.Until(created.ExpiresAt); got < 7*time.Hour || got > 8*time.Hour {
		t.Errorf("expected an 8h session, expires in %v", got)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/genai/process", created.Token, map[string]any{"prompt": benignPrompt}); rec.Code != http.StatusOK {
		t.Errorf("expected new token to work, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/sessions", alice, map[string]any{"role": "admin"}); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for role escalation, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/sessions", admin, map[string]any{"user_id": "bob", "role": "manager"}); rec.Code != http.StatusCreated {
		t.Errorf("expected admin to open a session for bob, got %d", rec.Code)
	}

	path := "/api/v1/sessions/" + created.Session.ID
	if rec := env.do(t, http.MethodDelete, path, env.token(t, "bob", "user"), nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 revoking another user's session, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, path, alice, nil); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, path, alice, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after revoke, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/genai/process", created.Token, map[string]any{"prompt": benignPrompt}); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected revoked token to be rejected, got %d", rec.Code)
	}
}

func TestSessions_AuthDisabled(t *testing.T) {
	env := newEnv(t, false)

	if rec := env.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without user_id, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]any{"user_id": "carol", "role": "admin"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	created := decodeBody[createSessionResponse](t, rec)
	if created.Token != "" || created.Session.Role != "" {
		t.Errorf("expected tokenless session with the default role, got %+v", created)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/genai/process", "", map[string]any{
		"prompt": benignPrompt, "user_id": "dave", "session_id": created.Session.ID,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a session owned by someone else, got %d", rec.Code)
	}
}

func TestReviewFlags(t *testing.T) {
	env := newEnv(t, true)
	analyst := env.token(t, "ana", "analyst")

	env.do(t, http.MethodPost, "/api/v1/genai/process", analyst, map[string]any{"prompt": mediumPrompt})

	rec := env.do(t, http.MethodGet, "/api/v1/review/flags?limit=10", analyst, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	flags := decodeBody[reviewFlagsResponse](t, rec)
	if flags.Count == 0 {
		t.Fatal("expected at least one pending flag")
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/review/flags", env.token(t, "u", "user"), nil); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for users, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/review/flags?limit=-1", analyst, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", rec.Code)
	}

	path := "/api/v1/review/flags/" + flags.Flags[0].ID
	if rec := env.do(t, http.MethodPost, path, analyst, map[string]any{"status": "maybe"}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, path, analyst, map[string]any{"status": review.StatusApproved})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeBody[governance.ReviewFlag](t, rec); got.Status != review.StatusApproved {
		t.Errorf("expected approved, got %s", got.Status)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/review/flags/flag_missing", analyst, map[string]any{"status": "approved"}); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if len(env.queue.Pending(0)) != flags.Count-1 {
		t.Errorf("expected resolved flag to leave the pending list")
	}
}

func TestProbesArePublic(t *testing.T) {
	env := newEnv(t, true)
	env.do(t, http.MethodPost, "/api/v1/genai/process", env.token(t, "alice", "user"), map[string]any{"prompt": benignPrompt})

	for _, path := range []string{"/health", "/ready", "/version", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, path, "", nil)
			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
		})
	}

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), `aegis_http_requests_total{code="200",method="post",route="/api/v1/genai/process"}`) {
		t.Errorf("expected process route in metrics, got:\n%s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newEnv(t, false)
	if rec := env.do(t, http.MethodGet, "/api/v1/genai/process", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(config.NewDefault(), Deps{}); err == nil {
		t.Error("expected error without pipeline")
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Identity.Enabled = false
	srv, err := New(cfg, Deps{Pipeline: stubProcessor{}, Storage: storage.NewMemoryStorage()})
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/version"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()
	if !srv.IsRunning() {
		t.Error("expected server to report running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if srv.IsRunning() {
		t.Error("expected server to report stopped")
	}
}

type stubProcessor struct{}

func (stubProcessor) Process(context.Context, governance.Request) (*pipeline.Response, error) {
	return &pipeline.Response{}, nil
}

func TestServe_TLSMisconfigured(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Identity.Enabled = false
	cfg.Server.TLS.Enabled = true
	cfg.Server.TLS.CertFile = filepath.Join(t.TempDir(), "missing.crt")
	cfg.Server.TLS.KeyFile = filepath.Join(t.TempDir(), "missing.key")
	srv, err := New(cfg, Deps{Pipeline: stubProcessor{}, Storage: storage.NewMemoryStorage()})
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	err = srv.Serve(context.Background(), ln)
	if err == nil || !strings.Contains(err.Error(), "failed to configure TLS") {
		t.Errorf("expected TLS configuration error, got %v", err)
	}
	if srv.IsRunning() {
		t.Error("expected server not to be running")
	}
}
