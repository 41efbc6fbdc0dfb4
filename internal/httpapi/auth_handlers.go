package httpapi

import (
	"net/http"
	"strings"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
	"keygate.io/internal/obs"
)

type signupRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	OrganizationName        string `json:"organization_name"`
	OrganizationDescription string `json:"organization_description"`

	Metadata map[string]any `json:"metadata"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ssoExchangeRequest struct {
	AccessToken  string `json:"access_token"`
	TargetAPIKey string `json:"target_api_key"`
}

type validateRequest struct {
	AccessToken string `json:"access_token"`
}

type tokenPairResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresIn    int64          `json:"expires_in"`
	Claims       map[string]any `json:"claims"`

	OrgOwnerAPIKey  string `json:"org_owner_api_key,omitempty"`
	ClientAppAPIKey string `json:"client_app_api_key,omitempty"`
}

func toTokenPairResponse(res auth.AuthResult) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:     res.AccessToken,
		RefreshToken:    res.RefreshToken,
		ExpiresIn:       res.ExpiresIn,
		Claims:          res.Claims,
		OrgOwnerAPIKey:  res.OrgOwnerAPIKey,
		ClientAppAPIKey: res.ClientAppAPIKey,
	}
}

// outcomeLabel buckets an error into a metric label.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	res, err := a.auth.Signup(r.Context(), auth.SignupRequest{
		Username:                req.Username,
		Password:                req.Password,
		Email:                   req.Email,
		FirstName:               req.FirstName,
		LastName:                req.LastName,
		OrganizationName:        req.OrganizationName,
		OrganizationDescription: req.OrganizationDescription,
		Metadata:                req.Metadata,
	}, principal)
	obs.ObserveAuthOp("signup", outcomeLabel(err))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"username": strings.TrimSpace(req.Username),
	})
	writeJSON(w, http.StatusCreated, toTokenPairResponse(res))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	res, err := a.auth.Login(r.Context(), auth.LoginRequest{
		Username: req.Username,
		Password: req.Password,
	}, principal)
	obs.ObserveAuthOp("login", outcomeLabel(err))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"username": strings.TrimSpace(req.Username),
	})
	writeJSON(w, http.StatusOK, toTokenPairResponse(res))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	res, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	obs.ObserveAuthOp("refresh", outcomeLabel(err))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	writeJSON(w, http.StatusOK, toTokenPairResponse(res))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	err := a.auth.Logout(r.Context(), req.RefreshToken)
	obs.ObserveAuthOp("logout", outcomeLabel(err))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleSSOExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req ssoExchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.AccessToken == "" || req.TargetAPIKey == "" {
		writeError(w, r, http.StatusBadRequest, "access_token and target_api_key are required")
		return
	}

	res, err := a.auth.ExchangeToken(r.Context(), req.AccessToken, req.TargetAPIKey)
	obs.ObserveAuthOp("sso_exchange", outcomeLabel(err))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.sso_exchange", map[string]any{
		"target_client_app_id": res.Claims["clientAppId"],
	})
	writeJSON(w, http.StatusOK, toTokenPairResponse(res))
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.AccessToken == "" {
		writeError(w, r, http.StatusBadRequest, "access_token is required")
		return
	}

	claims, err := a.auth.ValidateAccessToken(req.AccessToken)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"claims": claims,
	})
}
