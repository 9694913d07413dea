package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/account"
	"github.com/stockparty/game-engine/internal/event"
	"github.com/stockparty/game-engine/internal/model"
)

// recordingHandler captures dispatched commands on a channel so tests can
// wait for the read pump without sleeping.
type recordingHandler struct {
	calls chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{calls: make(chan string, 16)}
}

func (r *recordingHandler) record(format string, args ...any) {
	select {
	case r.calls <- fmt.Sprintf(format, args...):
	default:
	}
}

func (r *recordingHandler) Init(playerID string, acct model.Account) {
	r.record("init %s %s", playerID, acct.Nickname)
}
func (r *recordingHandler) JoinMatch(playerID string) error {
	r.record("join %s", playerID)
	return nil
}
func (r *recordingHandler) Trade(playerID, code string, side model.TradeSide, qty int64) error {
	r.record("trade %s %s %s %d", playerID, code, side, qty)
	return nil
}
func (r *recordingHandler) UseCard(playerID, instanceID, targetID string) error {
	r.record("useCard %s %s %s", playerID, instanceID, targetID)
	return nil
}
func (r *recordingHandler) RequestCards(playerID string) { r.record("requestCards %s", playerID) }
func (r *recordingHandler) MarkDisconnected(playerID string) {
	r.record("disconnected %s", playerID)
}
func (r *recordingHandler) MarkReconnected(playerID string) {
	r.record("reconnected %s", playerID)
}

func (r *recordingHandler) next(t *testing.T) string {
	t.Helper()
	select {
	case call := <-r.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatched command")
		return ""
	}
}

type wsFixture struct {
	hub      *Hub
	handler  *recordingHandler
	accounts *account.Service
	srv      *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	accounts := account.NewService(account.NewMemoryStore(), decimal.NewFromInt(1000))
	handler := newRecordingHandler()
	hub := NewHub(accounts, handler)
	srv := httptest.NewServer(NewServer(accounts, hub).Router())
	t.Cleanup(srv.Close)
	return &wsFixture{hub: hub, handler: handler, accounts: accounts, srv: srv}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *wsFixture) registerAccount(t *testing.T) *model.Account {
	t.Helper()
	acct, err := f.accounts.Register(context.Background(), "alice", "pw", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return acct
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	env := map[string]any{"type": msgType}
	if payload != nil {
		env["payload"] = payload
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) event.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return event.Message{Type: msg.Type, Payload: msg.Payload}
}

func TestWS_RequiresInitFirst(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)

	send(t, conn, "joinGame", nil)

	msg := readMessage(t, conn)
	if msg.Type != event.TypeError {
		t.Errorf("expected an error message, got %q", msg.Type)
	}
}

func TestWS_InitUnknownAccount(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t)

	send(t, conn, "init", map[string]string{"accountId": "no-such-account"})

	msg := readMessage(t, conn)
	if msg.Type != event.TypeError {
		t.Errorf("expected an error message, got %q", msg.Type)
	}
}

func TestWS_InitThenDispatch(t *testing.T) {
	f := newWSFixture(t)
	acct := f.registerAccount(t)
	conn := f.dial(t)

	send(t, conn, "init", map[string]string{"accountId": acct.ID})
	if got := f.handler.next(t); got != "reconnected "+acct.ID {
		t.Fatalf("expected reconnect mark, got %q", got)
	}
	if got := f.handler.next(t); got != "init "+acct.ID+" Alice" {
		t.Fatalf("expected init, got %q", got)
	}

	send(t, conn, "trade", map[string]any{"stockCode": "AAA", "action": "buy", "quantity": 1})
	if got := f.handler.next(t); got != "trade "+acct.ID+" AAA buy 1" {
		t.Errorf("unexpected trade dispatch %q", got)
	}

	send(t, conn, "useCard", map[string]string{"cardInstanceId": "c-1", "targetId": "AAA"})
	if got := f.handler.next(t); got != "useCard "+acct.ID+" c-1 AAA" {
		t.Errorf("unexpected card dispatch %q", got)
	}

	send(t, conn, "requestCards", nil)
	if got := f.handler.next(t); got != "requestCards "+acct.ID {
		t.Errorf("unexpected cards dispatch %q", got)
	}
}

func TestWS_InvalidTradeSideRejectedAtGateway(t *testing.T) {
	f := newWSFixture(t)
	acct := f.registerAccount(t)
	conn := f.dial(t)

	send(t, conn, "init", map[string]string{"accountId": acct.ID})
	f.handler.next(t) // reconnected
	f.handler.next(t) // init

	send(t, conn, "trade", map[string]any{"stockCode": "AAA", "action": "hold", "quantity": 1})

	msg := readMessage(t, conn)
	if msg.Type != event.TypeError {
		t.Errorf("expected an error message, got %q", msg.Type)
	}
	select {
	case call := <-f.handler.calls:
		t.Errorf("invalid side must not reach the engine, got %q", call)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWS_NotifyReachesSession(t *testing.T) {
	f := newWSFixture(t)
	acct := f.registerAccount(t)
	conn := f.dial(t)

	send(t, conn, "init", map[string]string{"accountId": acct.ID})
	f.handler.next(t) // reconnected
	f.handler.next(t) // init

	f.hub.Notify(acct.ID, event.Message{
		Type:    event.TypeNotification,
		Payload: event.Notification{Level: "info", Title: "hello", Message: "world"},
	})

	msg := readMessage(t, conn)
	if msg.Type != event.TypeNotification {
		t.Errorf("expected a notification, got %q", msg.Type)
	}
}

func TestWS_DisconnectMarksSession(t *testing.T) {
	f := newWSFixture(t)
	acct := f.registerAccount(t)
	conn := f.dial(t)

	send(t, conn, "init", map[string]string{"accountId": acct.ID})
	f.handler.next(t) // reconnected
	f.handler.next(t) // init

	conn.Close()
	if got := f.handler.next(t); got != "disconnected "+acct.ID {
		t.Errorf("expected disconnect mark, got %q", got)
	}
}

// waitForCall drains dispatched commands until want shows up. Reconnect
// tests interleave disconnect marks from dying connections, so exact
// ordering cannot be asserted.
func (r *recordingHandler) waitForCall(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.calls:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestWS_NotifyDuringReconnectChurn(t *testing.T) {
	f := newWSFixture(t)
	acct := f.registerAccount(t)

	// Hammer the session from the engine side, the way round broadcasts
	// land from the controller's timer goroutine.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				f.hub.Notify(acct.ID, event.Message{Type: event.TypeGameState})
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	// Each init displaces the previous session for the same account. A
	// send racing the displacement used to panic the whole process.
	for i := 0; i < 25; i++ {
		conn := f.dial(t)
		send(t, conn, "init", map[string]string{"accountId": acct.ID})
		f.handler.waitForCall(t, "init "+acct.ID+" Alice")
		conn.Close()
	}
}

func TestWS_SettlementPersistsTotalAsset(t *testing.T) {
	f := newWSFixture(t)
	acct := f.registerAccount(t)

	want := decimal.NewFromInt(3150)
	f.hub.Notify(acct.ID, event.Message{
		Type: event.TypeSettlement,
		Payload: event.Settlement{
			Receipt: model.SettlementReceipt{PlayerID: acct.ID, NewTotalAsset: want},
		},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := f.accounts.Get(context.Background(), acct.ID)
		if err == nil && got.TotalAsset.Equal(want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("total asset never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
