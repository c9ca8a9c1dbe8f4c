package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"

	garerrs "github.com/jdholdren/garage/internal/errors"
	"github.com/jdholdren/garage/internal/serverutil"
)

const sessionCookieName = "garage_session"

// Describes an operator's session that's persisted to their cookie. Logging in happens in the
// marketplace; it hands over the same cookie.
type sessionState struct {
	OperatorID string
}

// Fetches the current session tied to the request.
func session(r *http.Request, secureCookie *securecookie.SecureCookie) sessionState {
	cookie, err := r.Cookie(sessionCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return sessionState{}
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "error fetching cookie", "err", err)
		return sessionState{}
	}

	value := sessionState{}
	if err := secureCookie.Decode(sessionCookieName, cookie.Value, &value); err != nil {
		slog.ErrorContext(r.Context(), "error decoding cookie", "err", err)
		return sessionState{}
	}

	return value
}

// Sets the session on the request.
func setSession(w http.ResponseWriter, secureCookie *securecookie.SecureCookie, https bool, sess sessionState) {
	encoded, err := secureCookie.Encode(sessionCookieName, sess)
	if err != nil {
		slog.Error("error encoding cookie", "err", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		Secure:   https,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func requireSessionMiddleware(sc *securecookie.SecureCookie) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := session(r, sc)
			if state.OperatorID == "" {
				http.Error(w, "Unauthenticated", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type DebugLogin struct {
	OperatorID string `json:"operator_id" validate:"required,max=128"`
}

func (l DebugLogin) Validate() error {
	return serverutil.ValidateStruct(l)
}

// Logs in as anyone. Only mounted with debug endpoints on.
func (s Server) handleDebugLogin(w http.ResponseWriter, r *http.Request) error {
	body, err := serverutil.DecodeValid[DebugLogin](r.Body)
	if err != nil {
		return err
	}

	setSession(w, s.secureCookie, s.httpsCookies, sessionState{OperatorID: body.OperatorID})
	return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s Server) getLogout(w http.ResponseWriter, r *http.Request) error {
	setSession(w, s.secureCookie, s.httpsCookies, sessionState{})
	return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
}

// Not found responses share one body, whatever was missing.
var errNotFound = garerrs.E("not found", http.StatusNotFound)
