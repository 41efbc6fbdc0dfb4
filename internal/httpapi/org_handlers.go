package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"keygate.io/internal/audit"
	"keygate.io/internal/auth"
	"keygate.io/internal/orgs"
)

type organizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type clientAppRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type organizationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerAPIKey string    `json:"owner_api_key"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type clientAppResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	APIKey         string    `json:"api_key"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toOrganizationResponse(org *auth.Organization) organizationResponse {
	return organizationResponse{
		ID:          org.ID,
		Name:        org.Name,
		Description: org.Description,
		OwnerAPIKey: org.OwnerAPIKey,
		CreatedAt:   org.CreatedAt,
		UpdatedAt:   org.UpdatedAt,
	}
}

func toClientAppResponse(app *auth.ClientApp) clientAppResponse {
	return clientAppResponse{
		ID:             app.ID,
		OrganizationID: app.OrganizationID,
		Name:           app.Name,
		Description:    app.Description,
		APIKey:         app.APIKey,
		CreatedAt:      app.CreatedAt,
		UpdatedAt:      app.UpdatedAt,
	}
}

func (a *API) handleOrgs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := requireOrgOwner(w, r); !ok {
		return
	}
	var req organizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.orgs.CreateOrganization(r.Context(), orgs.OrganizationInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "orgs.create", map[string]any{
		"organization_id": org.ID,
		"name":            org.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/api/orgs/%s", org.ID))
	writeJSON(w, http.StatusCreated, toOrganizationResponse(org))
}

// handleOrgScoped routes everything under /api/orgs/{id}. An org owner may
// only operate on the organization their key resolves to.
func (a *API) handleOrgScoped(w http.ResponseWriter, r *http.Request) {
	principal, ok := requireOrgOwner(w, r)
	if !ok {
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/orgs/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	segments := strings.Split(path, "/")
	orgID := segments[0]

	if orgID != principal.OrganizationID {
		writeError(w, r, http.StatusForbidden, "not your organization")
		return
	}

	switch {
	case len(segments) == 1:
		a.handleOrganization(w, r, orgID)
	case len(segments) == 2 && segments[1] == "apps":
		a.handleClientApps(w, r, orgID)
	case len(segments) == 3 && segments[1] == "apps":
		a.handleClientApp(w, r, orgID, segments[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrganization(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		org, err := a.orgs.GetOrganization(r.Context(), orgID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrganizationResponse(org))
	case http.MethodPut:
		var req organizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.orgs.UpdateOrganization(r.Context(), orgID, orgs.OrganizationInput{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "orgs.update", map[string]any{
			"organization_id": org.ID,
		})
		writeJSON(w, http.StatusOK, toOrganizationResponse(org))
	case http.MethodDelete:
		if err := a.orgs.DeleteOrganization(r.Context(), orgID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "orgs.delete", map[string]any{
			"organization_id": orgID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleClientApps(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		apps, err := a.orgs.ListClientApps(r.Context(), orgID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		resp := make([]clientAppResponse, 0, len(apps))
		for _, app := range apps {
			resp = append(resp, toClientAppResponse(app))
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req clientAppRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		app, err := a.orgs.CreateClientApp(r.Context(), orgID, orgs.ClientAppInput{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "orgs.app.create", map[string]any{
			"organization_id": orgID,
			"client_app_id":   app.ID,
			"name":            app.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/api/orgs/%s/apps/%s", orgID, app.ID))
		writeJSON(w, http.StatusCreated, toClientAppResponse(app))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleClientApp(w http.ResponseWriter, r *http.Request, orgID, appID string) {
	app, err := a.orgs.GetClientApp(r.Context(), appID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	if app.OrganizationID != orgID {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toClientAppResponse(app))
	case http.MethodPut:
		var req clientAppRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		updated, err := a.orgs.UpdateClientApp(r.Context(), appID, orgs.ClientAppInput{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "orgs.app.update", map[string]any{
			"organization_id": orgID,
			"client_app_id":   appID,
		})
		writeJSON(w, http.StatusOK, toClientAppResponse(updated))
	case http.MethodDelete:
		if err := a.orgs.DeleteClientApp(r.Context(), appID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "orgs.app.delete", map[string]any{
			"organization_id": orgID,
			"client_app_id":   appID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
