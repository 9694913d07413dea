package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stockparty/game-engine/internal/account"
	"github.com/stockparty/game-engine/internal/metrics"
	"github.com/stockparty/game-engine/internal/model"
)

var (
	errInitRequired   = errors.New("init requires an accountId")
	errUnknownAccount = errors.New("unknown account")
)

// Server serves the account HTTP API and hands /ws to the hub.
type Server struct {
	accounts *account.Service
	hub      *Hub
}

// NewServer creates the HTTP surface.
func NewServer(accounts *account.Service, hub *Hub) *Server {
	return &Server{accounts: accounts, hub: hub}
}

// Router assembles the full route tree and middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"game-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint for game commands and events.
	r.Get("/ws", s.hub.HandleWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
	})
	return r
}

// --- Request/Response types ---

// RegisterRequest is the JSON body for POST /api/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

// LoginRequest is the JSON body for POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AccountResponse is the account snapshot returned by register and login.
type AccountResponse struct {
	Success bool           `json:"success"`
	Account *model.Account `json:"user,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Register handles POST /api/register.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" || req.Nickname == "" {
		writeError(w, "username, password, and nickname are required", http.StatusBadRequest)
		return
	}

	acct, err := s.accounts.Register(r.Context(), req.Username, req.Password, req.Nickname)
	if errors.Is(err, account.ErrUsernameTaken) {
		writeError(w, "username already taken", http.StatusConflict)
		return
	}
	if err != nil {
		writeError(w, "registration failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, AccountResponse{
		Success: true,
		Account: acct,
		Message: "Registered! Your starter grant of " + acct.TotalAsset.String() + " has been credited.",
	})
}

// Login handles POST /api/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	acct, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, account.ErrBadCredentials) {
		writeError(w, "invalid username or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		slog.Error("login failed", "username", req.Username, "err", err)
		writeError(w, "login failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, AccountResponse{Success: true, Account: acct})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
