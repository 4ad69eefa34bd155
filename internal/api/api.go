// CLAUDE:SUMMARY Core API struct, route table and shared HTTP helpers: JSON codec, validation, error-kind to status mapping
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	gocache "github.com/patrickmn/go-cache"

	"github.com/hazyhaar/veritrack/internal/auth"
	"github.com/hazyhaar/veritrack/internal/db"
	"github.com/hazyhaar/veritrack/internal/metrics"
	"github.com/hazyhaar/veritrack/internal/protocol"
	"github.com/hazyhaar/veritrack/internal/service"
)

// maxBodySize is the maximum HTTP body size for any JSON request.
const maxBodySize = 64 * 1024

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options tunes the boundary tooling. Zero values fall back to defaults.
type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
	IdempotencyTTL time.Duration
	// Audit serves GET /api/admin/audit when set.
	Audit AuditReader
}

type API struct {
	svc     *service.Service
	db      *db.DB
	auth    *auth.Auth
	metrics *metrics.Metrics
	limiter *Limiter
	idem    *gocache.Cache
	audit   AuditReader
}

func New(svc *service.Service, database *db.DB, a *auth.Auth, m *metrics.Metrics, opts Options) *API {
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 20
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 40
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 10 * time.Minute
	}
	if m == nil {
		m = metrics.New()
	}
	return &API{
		svc:     svc,
		db:      database,
		auth:    a,
		metrics: m,
		limiter: NewLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		idem:    gocache.New(opts.IdempotencyTTL, 2*opts.IdempotencyTTL),
		audit:   opts.Audit,
	}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Accounts
	mux.HandleFunc("POST /api/register", a.handleRegister)
	mux.HandleFunc("POST /api/login", a.handleLogin)

	// Claims
	a.RegisterClaimRoutes(mux)

	// Balances, token ledger, administration
	a.RegisterLedgerRoutes(mux)
	a.RegisterAdminRoutes(mux)

	// Journal, audit, integrity
	a.RegisterJournalRoutes(mux)
	a.RegisterIntegrityRoutes(mux)

	// Operations
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics.Handler())
}

// Handler returns the full HTTP stack: request IDs, security headers, rate limiting
// and per-route metrics around the route table.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return RequestID(SecurityHeaders(a.RateLimit(a.Instrument(mux))))
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, a.svc.Status())
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := a.svc.Status()
	if st.Halted {
		jsonResp(w, http.StatusServiceUnavailable, map[string]any{"status": "halted", "error": st.Error})
		return
	}
	if err := a.db.PingContext(r.Context()); err != nil {
		jsonResp(w, http.StatusServiceUnavailable, map[string]any{"status": "db_unreachable"})
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"status": "ok", "head": st.Head})
}

// --- helpers ---

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// decodeBody reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		jsonError(w, validationMessage(err), http.StatusBadRequest)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request: " + err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// kindStatus maps engine error kinds onto HTTP status codes.
var kindStatus = map[protocol.Kind]int{
	protocol.KindInvalidAddress:      http.StatusBadRequest,
	protocol.KindInsufficientBalance: http.StatusPaymentRequired,
	protocol.KindExpired:             http.StatusConflict,
	protocol.KindInvalidMapping:      http.StatusUnprocessableEntity,
	protocol.KindInvalidProcessState: http.StatusConflict,
	protocol.KindUnauthorized:        http.StatusForbidden,
}

// opError writes err as a JSON error carrying its kind.
func opError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrHalted) {
		jsonError(w, "service halted", http.StatusServiceUnavailable)
		return
	}
	kind := protocol.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		slog.Error("operation failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "kind": kind.String()})
}

func pathID(w http.ResponseWriter, r *http.Request) (protocol.ClaimID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, "invalid claim id", http.StatusBadRequest)
		return 0, false
	}
	return protocol.ClaimID(id), true
}

func pathAddress(w http.ResponseWriter, r *http.Request) (protocol.Address, bool) {
	addr, err := protocol.ParseAddress(r.PathValue("address"))
	if err != nil {
		jsonError(w, "invalid address", http.StatusBadRequest)
		return "", false
	}
	return addr, true
}

// rangeQuery reads the from/to position indices of a range read.
func rangeQuery(w http.ResponseWriter, r *http.Request) (from, to protocol.PositionIndex, ok bool) {
	q := r.URL.Query()
	f, err1 := strconv.ParseUint(q.Get("from"), 10, 64)
	t, err2 := strconv.ParseUint(q.Get("to"), 10, 64)
	if err1 != nil || err2 != nil {
		jsonError(w, "from and to must be position indices", http.StatusBadRequest)
		return 0, 0, false
	}
	return protocol.PositionIndex(f), protocol.PositionIndex(t), true
}
