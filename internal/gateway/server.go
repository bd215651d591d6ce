package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rcliao/agent-gateway/internal/model"
)

// router builds the admin HTTP surface. Channel adapters talk to the
// gateway elsewhere; these routes exist for operators and the CLI.
func (g *Gateway) router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", g.handleHealthz)
	r.Get("/status", g.handleStatus)
	r.Get("/sessions", g.handleSessions)

	return r
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(g.startedAt).String(),
	})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	archives, err := g.long.Count(r.Context(), model.SchemaArchiveV1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	keyframes, err := g.long.Count(r.Context(), model.SchemaKeyframeV1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pid":        os.Getpid(),
		"port":       g.cfg.Port,
		"started_at": g.startedAt,
		"sessions":   len(g.sessions.Keys()),
		"archives":   archives,
		"keyframes":  keyframes,
	})
}

func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	keys := g.sessions.Keys()
	entries := make(map[string]*model.SessionEntry, len(keys))
	for _, key := range keys {
		entries[key] = g.sessions.Resolve(key)
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
