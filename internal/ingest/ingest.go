// Package ingest receives ticket pushes from the helpdesk. Each source
// posts to its own endpoint and authenticates with either an HMAC-SHA256
// body signature or a bearer token.
package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ticketview/ticketview/internal/store"
	"github.com/ticketview/ticketview/pkg/protocol"
)

const maxBodyBytes = 4 << 20

// EndpointConfig authenticates one push source.
type EndpointConfig struct {
	// Secret verifies the X-Hub-Signature-256 header. Takes precedence
	// over BearerToken.
	Secret      string `json:"secret,omitempty" yaml:"secret,omitempty"`
	BearerToken string `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
}

// Payload is the body of a push. Tickets are upserted, Deleted IDs removed.
type Payload struct {
	Tickets []protocol.TicketRecord `json:"tickets"`
	Deleted []string                `json:"deleted,omitempty"`
}

// Result reports what a push changed.
type Result struct {
	Saved   int `json:"saved"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped,omitempty"`
}

// TicketWriter is the part of the store a push writes to.
type TicketWriter interface {
	SaveTicket(t protocol.TicketRecord) error
	DeleteTicket(id string) error
}

// Handler serves POST /api/ingest/{source}.
type Handler struct {
	endpoints map[string]EndpointConfig
	store     TicketWriter
	logger    *slog.Logger
}

// New creates an ingest handler. A source missing from endpoints is
// rejected with 404. A source with neither Secret nor BearerToken accepts
// any request.
func New(endpoints map[string]EndpointConfig, st TicketWriter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{endpoints: endpoints, store: st, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.PathValue("source")
	if name == "" {
		name = extractName(r.URL.Path)
	}
	if name == "" {
		http.Error(w, "missing source name in path", http.StatusBadRequest)
		return
	}
	endpoint, ok := h.endpoints[name]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown ingest source: %s", name), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !authenticate(r, endpoint, body) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if len(payload.Tickets) == 0 && len(payload.Deleted) == 0 {
		http.Error(w, "tickets or deleted is required", http.StatusBadRequest)
		return
	}

	res, err := h.Apply(payload)
	if err != nil {
		h.logger.Error("ingest failed", "source", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("tickets ingested", "source", name, "saved", res.Saved, "deleted", res.Deleted, "skipped", res.Skipped)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(res)
}

// Apply writes a payload to the store. Tickets without an ID are skipped
// and deleting an unknown ID is not an error.
func (h *Handler) Apply(p Payload) (Result, error) {
	var res Result
	for _, t := range p.Tickets {
		if strings.TrimSpace(t.ID) == "" {
			res.Skipped++
			continue
		}
		if err := h.store.SaveTicket(t); err != nil {
			return res, fmt.Errorf("ingest: save %s: %w", t.ID, err)
		}
		res.Saved++
	}
	for _, id := range p.Deleted {
		err := h.store.DeleteTicket(id)
		switch {
		case err == nil:
			res.Deleted++
		case errors.Is(err, store.ErrNotFound):
			h.logger.Debug("delete of unknown ticket ignored", "id", id)
		default:
			return res, fmt.Errorf("ingest: delete %s: %w", id, err)
		}
	}
	return res, nil
}

func authenticate(r *http.Request, endpoint EndpointConfig, body []byte) bool {
	if endpoint.Secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			sig = r.Header.Get("X-Signature-256")
		}
		return verifyHMAC(body, endpoint.Secret, sig)
	}
	if endpoint.BearerToken != "" {
		return r.Header.Get("Authorization") == "Bearer "+endpoint.BearerToken
	}
	// Config validation refuses credential-less sources; only tests and
	// direct callers of New reach this.
	return true
}

// verifyHMAC checks a "sha256=<hex>" signature.
func verifyHMAC(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// extractName gets the last path segment from /api/ingest/{source}.
func extractName(path string) string {
	path = strings.TrimSuffix(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// ComputeSignature signs body the way the helpdesk does.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
