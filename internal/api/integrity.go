// CLAUDE:SUMMARY Integrity API: binary SHA-256 hash, uptime, runtime stats and journal position
package api

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"
)

var (
	binaryHash     string
	binaryHashOnce sync.Once
	startTime      = time.Now()
)

// computeBinaryHash calculates SHA-256 of the running binary (once).
func computeBinaryHash() string {
	binaryHashOnce.Do(func() {
		exe, err := os.Executable()
		if err != nil {
			binaryHash = "unknown"
			return
		}
		f, err := os.Open(exe)
		if err != nil {
			binaryHash = "unknown"
			return
		}
		defer f.Close()
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			binaryHash = "unknown"
			return
		}
		binaryHash = fmt.Sprintf("sha256:%x", h.Sum(nil))
	})
	return binaryHash
}

// BinaryHash returns the cached binary hash (call from main for startup log).
func BinaryHash() string {
	return computeBinaryHash()
}

func (a *API) RegisterIntegrityRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/integrity", a.handleIntegrity)
}

func (a *API) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	st := a.svc.Status()
	journalHead, err := a.db.JournalHead(r.Context())
	if err != nil {
		opError(w, err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"binary_hash":    computeBinaryHash(),
		"go_version":     runtime.Version(),
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"journal_head":   journalHead,
		"engine_head":    st.Head,
		"in_sync":        journalHead == st.Head,
		"replayed":       st.Replayed,
		"claims":         st.Claims,
		"halted":         st.Halted,
	})
}
