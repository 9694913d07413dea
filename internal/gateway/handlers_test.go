package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/account"
	"github.com/stockparty/game-engine/internal/model"
)

// nopHandler satisfies CommandHandler for HTTP-only tests.
type nopHandler struct{}

func (nopHandler) Init(string, model.Account)                         {}
func (nopHandler) JoinMatch(string) error                             { return nil }
func (nopHandler) Trade(string, string, model.TradeSide, int64) error { return nil }
func (nopHandler) UseCard(string, string, string) error               { return nil }
func (nopHandler) RequestCards(string)                                {}
func (nopHandler) MarkDisconnected(string)                            {}
func (nopHandler) MarkReconnected(string)                             {}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	accounts := account.NewService(account.NewMemoryStore(), decimal.NewFromInt(1000))
	hub := NewHub(accounts, nopHandler{})
	srv := httptest.NewServer(NewServer(accounts, hub).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRegister(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/register", RegisterRequest{
		Username: "alice", Password: "hunter2", Nickname: "Alice",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var body AccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Account == nil {
		t.Fatalf("unexpected body %+v", body)
	}
	if !body.Account.TotalAsset.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected starter grant 1000, got %s", body.Account.TotalAsset)
	}

	// Duplicate username conflicts.
	resp = postJSON(t, srv.URL+"/api/register", RegisterRequest{
		Username: "alice", Password: "other", Nickname: "Alice2",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestRegister_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/register", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/register", RegisterRequest{Username: "alice"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing fields: expected 400, got %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	postJSON(t, srv.URL+"/api/register", RegisterRequest{
		Username: "alice", Password: "hunter2", Nickname: "Alice",
	})

	resp := postJSON(t, srv.URL+"/api/login", LoginRequest{Username: "alice", Password: "hunter2"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body AccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Account == nil || body.Account.Username != "alice" {
		t.Errorf("unexpected body %+v", body)
	}

	resp = postJSON(t, srv.URL+"/api/login", LoginRequest{Username: "alice", Password: "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: expected 401, got %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/api/login", LoginRequest{Username: "nobody", Password: "pw"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown user: expected 401, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/login", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}
