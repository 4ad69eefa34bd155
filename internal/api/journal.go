// CLAUDE:SUMMARY Journal and audit API: page through admitted operations, owner-only audit trail reads
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hazyhaar/veritrack/pkg/audit"
)

// AuditReader is the query side of the audit log.
type AuditReader interface {
	Recent(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

const maxJournalPage = 500

func (a *API) RegisterJournalRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/journal", a.handleJournal)
	mux.HandleFunc("GET /api/admin/audit", a.handleAudit)
}

func (a *API) handleJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			jsonError(w, "after must be a non-negative sequence number", http.StatusBadRequest)
			return
		}
		after = n
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxJournalPage {
			jsonError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := a.db.ListJournal(r.Context(), after, limit)
	if err != nil {
		opError(w, err)
		return
	}
	next := after
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"next":    next,
	})
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if claims.Address != a.svc.Params().Owner {
		jsonError(w, "owner only", http.StatusForbidden)
		return
	}
	if a.audit == nil {
		jsonError(w, "audit log not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	f := audit.Filter{Action: q.Get("action"), Caller: q.Get("caller"), Limit: 100}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxJournalPage {
			jsonError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	entries, err := a.audit.Recent(r.Context(), f)
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
