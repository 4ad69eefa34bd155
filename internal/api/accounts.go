package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/hazyhaar/veritrack/internal/auth"
	"github.com/hazyhaar/veritrack/internal/db"
	"github.com/hazyhaar/veritrack/internal/protocol"
)

// handleRe validates handle format: ASCII alphanumeric, underscore, hyphen only.
var handleRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type registerRequest struct {
	Handle   string `json:"handle" validate:"required,min=3,max=30"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !handleRe.MatchString(req.Handle) {
		jsonError(w, "handle must contain only ASCII letters, digits, underscore or hyphen", http.StatusBadRequest)
		return
	}

	hash, err := a.auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	addr, err := auth.NewAddress()
	if err != nil {
		slog.Error("generating address", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	acct, err := a.db.CreateAccount(r.Context(), db.CreateAccountInput{
		Handle:       req.Handle,
		Address:      string(addr),
		PasswordHash: hash,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			jsonError(w, "handle already taken", http.StatusConflict)
			return
		}
		slog.Error("creating account", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	token, err := a.auth.GenerateToken(acct.ID, acct.Handle, addr)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusCreated, map[string]interface{}{
		"account": acct,
		"token":   token,
	})
}

type loginRequest struct {
	Handle   string `json:"handle" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	acct, passwordHash, err := a.db.GetAccountByHandle(r.Context(), req.Handle)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Error("loading account", "error", err)
		}
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if !a.auth.CheckPassword(passwordHash, req.Password) {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := a.auth.GenerateToken(acct.ID, acct.Handle, protocol.Address(acct.Address))
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"account": acct,
		"token":   token,
	})
}
