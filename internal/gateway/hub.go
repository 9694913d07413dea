// Package gateway is the transport layer: a chi HTTP API for accounts and
// a gorilla WebSocket hub that carries game commands in and engine events
// out. The engine core never sees a socket; the hub implements
// event.Notifier and forwards inbound commands to the match controller.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stockparty/game-engine/internal/account"
	"github.com/stockparty/game-engine/internal/event"
	"github.com/stockparty/game-engine/internal/metrics"
	"github.com/stockparty/game-engine/internal/model"
)

// CommandHandler is the inbound surface of the match engine. Satisfied by
// *match.Controller.
type CommandHandler interface {
	Init(playerID string, acct model.Account)
	JoinMatch(playerID string) error
	Trade(playerID, code string, side model.TradeSide, qty int64) error
	UseCard(playerID, instanceID, targetID string) error
	RequestCards(playerID string)
	MarkDisconnected(playerID string)
	MarkReconnected(playerID string)
}

// inbound is the envelope clients send.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type initPayload struct {
	AccountID string `json:"accountId"`
}

type tradePayload struct {
	StockCode string `json:"stockCode"`
	Action    string `json:"action"` // buy | sell
	Quantity  int64  `json:"quantity"`
}

type useCardPayload struct {
	CardInstanceID string `json:"cardInstanceId"`
	TargetID       string `json:"targetId,omitempty"`
}

// session is one connected client. Sessions are keyed by account id, so a
// reconnect inside the grace window picks its match state back up.
type session struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub manages WebSocket sessions, delivers engine events, and dispatches
// inbound commands. It implements event.Notifier.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session // playerID (account id) → session

	accounts *account.Service
	handler  CommandHandler
}

// NewHub creates a hub over the account service and the engine's command
// surface.
func NewHub(accounts *account.Service, handler CommandHandler) *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		accounts: accounts,
		handler:  handler,
	}
}

// Notify delivers a message to one session, dropping it if the session's
// buffer is full — engine handlers are never blocked by a slow client.
func (h *Hub) Notify(playerID string, msg event.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	// Settlements carry the new persistent total; write it behind the
	// engine's back so a crash between matches loses at most one match.
	if msg.Type == event.TypeSettlement {
		if s, ok := msg.Payload.(event.Settlement); ok {
			go h.persistTotalAsset(playerID, s.Receipt)
		}
	}

	// The lock is held across the send: attach/detach close displaced
	// send channels under the write lock, so sending outside it races a
	// reconnect and panics on the closed channel.
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[playerID]
	if !ok {
		return
	}
	select {
	case sess.send <- data:
	default:
	}
}

// Broadcast delivers a message to every connected session.
func (h *Hub) Broadcast(msg event.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sess := range h.sessions {
		select {
		case sess.send <- data:
		default:
		}
	}
}

func (h *Hub) persistTotalAsset(playerID string, r model.SettlementReceipt) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.accounts.SaveTotalAsset(ctx, playerID, r.NewTotalAsset); err != nil {
		slog.Error("settlement persist failed", "player", playerID, "err", err)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	metrics.WebSocketClients.Inc()
	go h.readPump(conn)
}

// readPump owns the connection: it waits for init, binds the session, and
// dispatches commands until the client goes away.
func (h *Hub) readPump(conn *websocket.Conn) {
	var playerID string

	defer func() {
		metrics.WebSocketClients.Dec()
		if playerID != "" {
			h.detach(playerID, conn)
			h.handler.MarkDisconnected(playerID)
		}
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, "malformed message")
			continue
		}

		if msg.Type == "init" {
			id, err := h.handleInit(conn, msg.Payload)
			if err != nil {
				h.sendError(conn, err.Error())
				continue
			}
			playerID = id
			continue
		}

		if playerID == "" {
			h.sendError(conn, "session not initialized")
			continue
		}
		h.dispatch(playerID, msg)
	}
}

func (h *Hub) handleInit(conn *websocket.Conn, payload json.RawMessage) (string, error) {
	var p initPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.AccountID == "" {
		return "", errInitRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	acct, err := h.accounts.Get(ctx, p.AccountID)
	if err != nil {
		return "", errUnknownAccount
	}

	h.attach(acct.ID, conn)
	h.handler.MarkReconnected(acct.ID)
	h.handler.Init(acct.ID, *acct)

	slog.Info("ws session initialized", "player", acct.ID, "nickname", acct.Nickname)
	return acct.ID, nil
}

func (h *Hub) dispatch(playerID string, msg inbound) {
	switch msg.Type {
	case "joinGame":
		h.handler.JoinMatch(playerID)

	case "trade":
		var p tradePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.Notify(playerID, errorMessage("malformed trade"))
			return
		}
		side := model.TradeSide(p.Action)
		if side != model.Buy && side != model.Sell {
			h.Notify(playerID, errorMessage("invalid trade side"))
			return
		}
		h.handler.Trade(playerID, p.StockCode, side, p.Quantity)

	case "useCard":
		var p useCardPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.Notify(playerID, errorMessage("malformed card request"))
			return
		}
		h.handler.UseCard(playerID, p.CardInstanceID, p.TargetID)

	case "requestCards":
		h.handler.RequestCards(playerID)

	default:
		h.Notify(playerID, errorMessage("unknown message type"))
	}
}

// attach binds a connection as playerID's session, displacing any previous
// connection for the same account.
func (h *Hub) attach(playerID string, conn *websocket.Conn) {
	sess := &session{conn: conn, send: make(chan []byte, 64)}

	h.mu.Lock()
	if old, ok := h.sessions[playerID]; ok {
		close(old.send)
		old.conn.Close()
	}
	h.sessions[playerID] = sess
	h.mu.Unlock()

	go h.writePump(sess)
}

// detach removes the session only if conn still owns it (a reconnect may
// have displaced it already).
func (h *Hub) detach(playerID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sess, ok := h.sessions[playerID]; ok && sess.conn == conn {
		close(sess.send)
		delete(h.sessions, playerID)
	}
}

// writePump drains the session's send buffer and keeps the connection
// alive through proxies with periodic pings.
func (h *Hub) writePump(sess *session) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sess.send:
			if !ok {
				return
			}
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendError(conn *websocket.Conn, reason string) {
	data, err := json.Marshal(errorMessage(reason))
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, data)
}

func errorMessage(reason string) event.Message {
	return event.Message{Type: event.TypeError, Payload: event.Error{Reason: reason}}
}
