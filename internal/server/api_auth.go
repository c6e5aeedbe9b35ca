package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/benpsk/kalakaari-shop/internal/auth"
	"github.com/benpsk/kalakaari-shop/internal/identity"
	"github.com/benpsk/kalakaari-shop/internal/user"
	"go.uber.org/zap"
)

type apiLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type apiCompleteProfileRequest struct {
	AccountType string `json:"account_type"`
}

type apiSessionResponse struct {
	LoggedIn     bool                              `json:"logged_in"`
	SignedIn     bool                              `json:"signed_in"`
	GreetingName string                            `json:"greeting_name"`
	AccountType  *user.AccountType                 `json:"account_type"`
	User         *user.Identity                    `json:"user"`
	Actions      map[auth.Action]auth.ActionState `json:"actions"`
}

type apiActionResponse struct {
	Message        string               `json:"message,omitempty"`
	RedirectTo     string               `json:"redirect_to,omitempty"`
	External       bool                 `json:"external,omitempty"`
	View           *user.View           `json:"view,omitempty"`
	PendingProfile *user.PendingProfile `json:"pending_profile,omitempty"`
}

var trackedActions = []auth.Action{
	auth.ActionLogin,
	auth.ActionSignup,
	auth.ActionSocialLogin,
	auth.ActionCompleteProfile,
	auth.ActionLogout,
}

// apiSession projects the account state store of the caller's session.
func (h handler) apiSession(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r)
	if client == nil {
		writeErrorJSON(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	store := client.Store()

	resp := apiSessionResponse{
		LoggedIn:     store.LoggedIn(),
		SignedIn:     client.SignedIn(),
		GreetingName: store.GreetingName(),
		Actions:      make(map[auth.Action]auth.ActionState, len(trackedActions)),
	}
	if view, ok := store.Snapshot(); ok {
		resp.AccountType = &view.AccountType
		resp.User = &view.Identity
	}
	for _, a := range trackedActions {
		resp.Actions[a] = client.Actions().State(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h handler) apiLogin(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r)
	var req apiLoginRequest
	if !h.decodeActionRequest(w, r, client, &req) {
		return
	}
	out, err := client.Actions().Login(r.Context(), req.Email, req.Password)
	h.writeActionResult(w, out, err)
}

func (h handler) apiSignup(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r)
	var req auth.SignupInput
	if !h.decodeActionRequest(w, r, client, &req) {
		return
	}
	out, err := client.Actions().Signup(r.Context(), req)
	h.writeActionResult(w, out, err)
}

// apiPendingProfile runs the profile completion entry check. It answers with
// the record to prefill the form with, or with where to go instead.
func (h handler) apiPendingProfile(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r)
	if client == nil {
		writeErrorJSON(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	out := client.Actions().PrepareCompleteProfile(r.Context())
	writeJSON(w, http.StatusOK, actionResponse(out))
}

func (h handler) apiCompleteProfile(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r)
	var req apiCompleteProfileRequest
	if !h.decodeActionRequest(w, r, client, &req) {
		return
	}
	out, err := client.Actions().CompleteProfile(r.Context(), req.AccountType)
	h.writeActionResult(w, out, err)
}

func (h handler) apiLogout(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r)
	if client == nil {
		writeErrorJSON(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	out, err := client.Actions().Logout(r.Context())
	h.writeActionResult(w, out, err)
}

func (h handler) decodeActionRequest(w http.ResponseWriter, r *http.Request, client *auth.Client, dst any) bool {
	if client == nil {
		writeErrorJSON(w, http.StatusInternalServerError, "session unavailable")
		return false
	}
	if err := decodeJSONBody(w, r, dst, defaultRequestBodyLimitBytes); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeErrorJSON(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.log.Debug("rejected action body", zap.String("path", r.URL.Path), zap.Error(err))
		writeErrorJSON(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (h handler) writeActionResult(w http.ResponseWriter, out auth.Outcome, err error) {
	if err != nil {
		writeActionError(w, out, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(out))
}

func actionResponse(out auth.Outcome) apiActionResponse {
	return apiActionResponse{
		Message:        out.Message,
		RedirectTo:     out.Redirect.URL,
		External:       out.Redirect.External,
		View:           out.View,
		PendingProfile: out.Pending,
	}
}

func writeActionError(w http.ResponseWriter, out auth.Outcome, err error) {
	message := out.Message
	if message == "" {
		message = auth.Message(err)
	}
	body := map[string]any{
		"error": message,
		"code":  actionErrorCode(err),
	}
	if !out.Redirect.IsZero() {
		body["redirect_to"] = out.Redirect.URL
	}
	writeJSON(w, actionErrorStatus(err), body)
}

func actionErrorStatus(err error) int {
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	switch identity.CodeOf(err) {
	case identity.CodeWeakPassword, identity.CodeInvalidEmail, identity.CodeOperationNotAllowed:
		return http.StatusBadRequest
	case identity.CodeInvalidCredential, identity.CodeNoCurrentUser:
		return http.StatusUnauthorized
	case identity.CodeEmailInUse, identity.CodeAccountExists:
		return http.StatusConflict
	case identity.CodeNetwork:
		return http.StatusServiceUnavailable
	case "":
	default:
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(err, auth.ErrInFlight), errors.Is(err, auth.ErrInvalidEntry), errors.Is(err, auth.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func actionErrorCode(err error) string {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation/" + verr.Field
	case identity.CodeOf(err) != "":
		return identity.CodeOf(err)
	case errors.Is(err, auth.ErrInFlight):
		return "action/in-flight"
	case errors.Is(err, auth.ErrInvalidEntry):
		return "action/invalid-entry"
	case errors.Is(err, auth.ErrSuperseded):
		return "action/superseded"
	case errors.Is(err, auth.ErrPendingWrite):
		return "profile/pending-write-failed"
	case errors.Is(err, auth.ErrProfileWrite):
		return "profile/write-failed"
	default:
		return "internal"
	}
}

func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
