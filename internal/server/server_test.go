package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/identity"
	"taskboard/internal/migrate"
	"taskboard/internal/repo"
	"taskboard/internal/store"
	"taskboard/internal/store/sqlite"
)

type testServer struct {
	URL      string
	client   *http.Client
	identity *identity.Service
	close    func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// tickingClock advances one second per call so updatedAt changes between writes.
type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestServer(t *testing.T, override store.Store) (*testServer, func()) {
	t.Helper()
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "taskboard.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	idSvc, err := identity.NewService(repo.Repo{DB: conn}, identity.Config{
		Secret:            "test-secret",
		Issuer:            "taskboard",
		TokenTTL:          time.Hour,
		RefreshTTL:        24 * time.Hour,
		MinPasswordLength: 8,
		BcryptCost:        bcrypt.MinCost,
	}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	var s store.Store = sqlite.New(conn)
	if override != nil {
		s = override
	}
	e := engine.New(s, zerolog.Nop())
	clock := &tickingClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	e.Now = clock.Now
	handler, err := New(Config{Engine: e, Identity: idSvc, Verifier: idSvc, BasePath: "/api", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:      "http://" + ln.Addr().String(),
		client:   &http.Client{},
		identity: idSvc,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// bearer registers email and returns an Authorization header for it.
func bearer(t *testing.T, srv *testServer, email string) map[string]string {
	t.Helper()
	ctx := context.Background()
	if _, err := srv.identity.SignUp(ctx, email, "password1"); err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	set, err := srv.identity.SignIn(ctx, email, "password1")
	if err != nil {
		t.Fatalf("sign in %s: %v", email, err)
	}
	return map[string]string{"Authorization": "Bearer " + set.IDToken}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env
}

func createTask(t *testing.T, srv *testServer, headers map[string]string, body map[string]any) domain.Task {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks", body, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return created
}

func listTasks(t *testing.T, srv *testServer, headers map[string]string) []domain.Task {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	return tasks
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"ok"`) {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

// countingStore records every store call and fails it.
type countingStore struct {
	store.Store
	calls atomic.Int64
}

func (s *countingStore) ListByOwner(context.Context, string) ([]domain.Task, error) {
	s.calls.Add(1)
	return nil, errBackend
}

func (s *countingStore) Create(context.Context, domain.Task) (domain.Task, error) {
	s.calls.Add(1)
	return domain.Task{}, errBackend
}

func (s *countingStore) Get(context.Context, string) (domain.Task, error) {
	s.calls.Add(1)
	return domain.Task{}, errBackend
}

func (s *countingStore) UpdateByID(context.Context, string, domain.TaskPatch, string) (domain.Task, error) {
	s.calls.Add(1)
	return domain.Task{}, errBackend
}

func (s *countingStore) DeleteByID(context.Context, string) error {
	s.calls.Add(1)
	return errBackend
}

func (s *countingStore) Close() error { return nil }

func TestAuthFailures(t *testing.T) {
	counting := &countingStore{}
	srv, cleanup := newTestServer(t, counting)
	defer cleanup()
	client := srv.Client()

	cases := []struct {
		name    string
		headers map[string]string
		code    string
	}{
		{name: "missing header", headers: nil, code: "unauthorized"},
		{name: "wrong scheme", headers: map[string]string{"Authorization": "Basic abc"}, code: "unauthorized"},
		{name: "bad token", headers: map[string]string{"Authorization": "Bearer not-a-token"}, code: "invalid_token"},
	}
	requests := []struct{ method, path string }{
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPut, "/api/tasks/some-id"},
		{http.MethodDelete, "/api/tasks/some-id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, r := range requests {
				res, data := doJSON(t, client, r.method, srv.URL+r.path, map[string]any{"title": "x"}, tc.headers)
				if res.StatusCode != http.StatusUnauthorized {
					t.Fatalf("%s %s expected 401, got %d %s", r.method, r.path, res.StatusCode, string(data))
				}
				if got := decodeError(t, data).Error.Code; got != tc.code {
					t.Fatalf("%s %s code = %q, want %q", r.method, r.path, got, tc.code)
				}
			}
		})
	}
	if n := counting.calls.Load(); n != 0 {
		t.Fatalf("store touched %d times by unauthenticated requests", n)
	}
}

func TestCreateStampsServerFields(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")

	created := createTask(t, srv, alice, map[string]any{
		"title":       "Report",
		"description": "Q1 numbers",
		"priority":    "High",
		"completed":   true,
		"userEmail":   "mallory@x.com",
		"id":          "chosen-id",
	})
	if created.ID == "" || created.ID == "chosen-id" {
		t.Fatalf("id should be server assigned, got %q", created.ID)
	}
	if created.OwnerEmail != "alice@x.com" {
		t.Fatalf("owner = %q", created.OwnerEmail)
	}
	if created.Completed {
		t.Fatalf("completed must be false at creation")
	}
	if created.Priority != domain.PriorityHigh || created.Status != domain.StatusPending {
		t.Fatalf("unexpected task: %+v", created)
	}
	if created.CreatedAt == "" || created.UpdatedAt == "" {
		t.Fatalf("timestamps missing: %+v", created)
	}

	defaulted := createTask(t, srv, alice, map[string]any{"title": "No priority"})
	if defaulted.Priority != domain.PriorityLow {
		t.Fatalf("priority = %q, want Low", defaulted.Priority)
	}
}

func TestCreateValidation(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")

	for name, body := range map[string]map[string]any{
		"blank title":   {"title": "  "},
		"missing title": {"description": "no title"},
		"bad priority":  {"title": "x", "priority": "Urgent"},
		"bad createdAt": {"title": "x", "createdAt": "garbage"},
	} {
		t.Run(name, func(t *testing.T) {
			res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks", body, alice)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
			}
			if code := decodeError(t, data).Error.Code; code != "bad_request" {
				t.Fatalf("code = %q", code)
			}
		})
	}
}

func TestListIsScopedToCaller(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")
	bob := bearer(t, srv, "bob@x.com")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/tasks", nil, alice)
	if res.StatusCode != http.StatusOK || strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("empty list: %d %s", res.StatusCode, string(data))
	}

	createTask(t, srv, alice, map[string]any{"title": "A1"})
	createTask(t, srv, alice, map[string]any{"title": "A2", "dueDate": "2020-01-01"})
	createTask(t, srv, bob, map[string]any{"title": "B1"})

	tasks := listTasks(t, srv, alice)
	if len(tasks) != 2 {
		t.Fatalf("alice sees %d tasks", len(tasks))
	}
	for _, task := range tasks {
		if task.OwnerEmail != "alice@x.com" {
			t.Fatalf("leaked task %+v", task)
		}
		if task.Title == "A2" && task.Status != domain.StatusMissed {
			t.Fatalf("overdue task status = %q", task.Status)
		}
	}
}

func TestUpdateMerges(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")
	created := createTask(t, srv, alice, map[string]any{
		"title": "Report", "description": "Q1", "priority": "High", "dueDate": "2099-01-01",
	})

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/"+created.ID, map[string]any{"completed": true}, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated domain.Task
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatal(err)
	}
	if !updated.Completed || updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed: %+v", updated)
	}
	if updated.Title != "Report" || updated.Description != "Q1" || updated.Priority != domain.PriorityHigh {
		t.Fatalf("merge lost fields: %+v", updated)
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Fatalf("createdAt changed: %q -> %q", created.CreatedAt, updated.CreatedAt)
	}
	if updated.UpdatedAt == created.UpdatedAt {
		t.Fatalf("updatedAt not refreshed")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/"+created.ID, map[string]any{"dueDate": nil}, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear due date status %d: %s", res.StatusCode, string(data))
	}
	var cleared domain.Task
	_ = json.Unmarshal(data, &cleared)
	if cleared.DueDate != nil {
		t.Fatalf("due date not cleared: %v", *cleared.DueDate)
	}
}

func TestEmptyTaskIDIsBadRequest(t *testing.T) {
	counting := &countingStore{}
	srv, cleanup := newTestServer(t, counting)
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")

	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		res, data := doJSON(t, srv.Client(), method, srv.URL+"/api/tasks/", map[string]any{"completed": true}, alice)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s expected 400, got %d %s", method, res.StatusCode, string(data))
		}
		if msg := decodeError(t, data).Error.Message; msg != "Task ID required" {
			t.Fatalf("message = %q", msg)
		}
	}
	if n := counting.calls.Load(); n != 0 {
		t.Fatalf("store touched %d times for a missing id", n)
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	counting := &countingStore{}
	srv, cleanup := newTestServer(t, counting)
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")

	body := map[string]any{"title": "big", "description": strings.Repeat("a", maxBodyBytes)}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/tasks", body, alice)
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", res.StatusCode, string(data))
	}
	if code := decodeError(t, data).Error.Code; code != "payload_too_large" {
		t.Fatalf("code = %q", code)
	}
	if n := counting.calls.Load(); n != 0 {
		t.Fatalf("store touched %d times for an oversized body", n)
	}
}

func TestOwnershipAndExistence(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")
	bob := bearer(t, srv, "bob@x.com")
	created := createTask(t, srv, alice, map[string]any{"title": "Mine"})

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/"+created.ID, map[string]any{"title": "Stolen"}, bob)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/tasks/"+created.ID, nil, bob)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	tasks := listTasks(t, srv, alice)
	if len(tasks) != 1 || tasks[0].Title != "Mine" {
		t.Fatalf("task mutated by another user: %+v", tasks)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/api/tasks/missing", map[string]any{"title": "x"}, alice)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/tasks/missing", nil, alice)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestDelete(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")
	created := createTask(t, srv, alice, map[string]any{"title": "Gone soon"})

	res, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/api/tasks/"+created.ID, nil, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	var msg MessageResponse
	_ = json.Unmarshal(data, &msg)
	if msg.Message != "Task deleted successfully" {
		t.Fatalf("message = %q", msg.Message)
	}
	if tasks := listTasks(t, srv, alice); len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
}

type failingStore struct{ store.Store }

var errBackend = errors.New("backend exploded: secret detail")

func (failingStore) ListByOwner(context.Context, string) ([]domain.Task, error) {
	return nil, errBackend
}

func (failingStore) Create(context.Context, domain.Task) (domain.Task, error) {
	return domain.Task{}, errBackend
}

func TestStoreFailureIsInternalError(t *testing.T) {
	srv, cleanup := newTestServer(t, failingStore{})
	defer cleanup()
	alice := bearer(t, srv, "alice@x.com")

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		res, data := doJSON(t, srv.Client(), method, srv.URL+"/api/tasks", map[string]any{"title": "x"}, alice)
		if res.StatusCode != http.StatusInternalServerError {
			t.Fatalf("%s expected 500, got %d %s", method, res.StatusCode, string(data))
		}
		env := decodeError(t, data)
		if env.Error.Code != "internal_error" || strings.Contains(string(data), "secret detail") {
			t.Fatalf("unexpected error body: %s", string(data))
		}
	}
}

func TestIdentityEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	creds := map[string]any{"email": "carol@x.com", "password": "password1"}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/auth/signup", creds, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/auth/signup", creds, nil)
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Error.Code != identity.CodeEmailInUse {
		t.Fatalf("duplicate signup: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/auth/signup", map[string]any{"email": "d@x.com", "password": "short"}, nil)
	if res.StatusCode != http.StatusBadRequest || decodeError(t, data).Error.Code != identity.CodeWeakPassword {
		t.Fatalf("weak password: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/auth/signin", map[string]any{"email": "carol@x.com", "password": "wrong-pass"}, nil)
	if res.StatusCode != http.StatusUnauthorized || decodeError(t, data).Error.Code != identity.CodeInvalidCredential {
		t.Fatalf("bad signin: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/auth/signin", creds, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("signin status %d: %s", res.StatusCode, string(data))
	}
	var set identity.TokenSet
	if err := json.Unmarshal(data, &set); err != nil {
		t.Fatal(err)
	}
	if set.IDToken == "" || set.RefreshToken == "" || set.Email != "carol@x.com" {
		t.Fatalf("unexpected token set: %+v", set)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/auth/token", map[string]any{"refreshToken": set.RefreshToken}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d: %s", res.StatusCode, string(data))
	}
	var fresh identity.TokenSet
	_ = json.Unmarshal(data, &fresh)
	listTasks(t, srv, map[string]string{"Authorization": "Bearer " + fresh.IDToken})

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/auth/signout", map[string]any{"refreshToken": set.RefreshToken}, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("signout status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/auth/token", map[string]any{"refreshToken": set.RefreshToken}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked refresh: %d %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "/api/tasks/{id}") || !strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("openapi document incomplete")
	}
}

func TestOpenAPIDocumentConcurrentFirstFetch(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	const n = 8
	bodies := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/api/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			data, err := io.ReadAll(res.Body)
			errs[i] = err
			bodies[i] = string(data)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("fetch %d: %v", i, errs[i])
		}
		if bodies[i] == "" || bodies[i] != bodies[0] {
			t.Fatalf("fetch %d returned a different document", i)
		}
	}
}
