package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"gatehouse.io/internal/auth"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updatePermissionRequest struct {
	Description string `json:"description"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.RequirePermissions(auth.PermViewRoles), a.listRoles)(w, r)
	case http.MethodPost:
		a.protected(auth.RequirePermissions(auth.PermManageRoles), a.createRole)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseListWindow(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	roles, err := a.catalog.ListRoles(r.Context(), limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  roles,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.catalog.CreateRole(r.Context(), req.Name, req.Description, req.Permissions)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.Name))
	writeJSON(w, http.StatusCreated, role)
}

// handleRoleResource serves /v1/roles/{name} for reads and /v1/roles/{id}
// for deletes.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	seg := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if seg == "" || strings.Contains(seg, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.RequirePermissions(auth.PermViewRoles), func(w http.ResponseWriter, r *http.Request) {
			role, err := a.catalog.GetRole(r.Context(), seg)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, role)
		})(w, r)
	case http.MethodDelete:
		a.protected(auth.RequirePermissions(auth.PermManageRoles), func(w http.ResponseWriter, r *http.Request) {
			if err := a.catalog.DeleteRole(r.Context(), seg); err != nil {
				handleAuthError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.RequirePermissions(auth.PermViewPermissions), a.listPermissions)(w, r)
	case http.MethodPost:
		a.protected(auth.RequirePermissions(auth.PermManagePermissions), a.createPermission)(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseListWindow(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perms, err := a.catalog.ListPermissions(r.Context(), limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  perms,
		"limit":  limit,
		"offset": offset,
	})
}

func (a *API) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	perm, err := a.catalog.CreatePermission(r.Context(), req.Name, req.Description)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.Name))
	writeJSON(w, http.StatusCreated, perm)
}

// handlePermissionResource serves /v1/permissions/{name} for reads and
// /v1/permissions/{id} for updates and deletes.
func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	seg := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if seg == "" || strings.Contains(seg, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.protected(auth.RequirePermissions(auth.PermViewPermissions), func(w http.ResponseWriter, r *http.Request) {
			perm, err := a.catalog.GetPermission(r.Context(), seg)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, perm)
		})(w, r)
	case http.MethodPatch:
		a.protected(auth.RequirePermissions(auth.PermManagePermissions), func(w http.ResponseWriter, r *http.Request) {
			var req updatePermissionRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			perm, err := a.catalog.UpdatePermission(r.Context(), seg, req.Description)
			if err != nil {
				handleAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, perm)
		})(w, r)
	case http.MethodDelete:
		a.protected(auth.RequirePermissions(auth.PermManagePermissions), func(w http.ResponseWriter, r *http.Request) {
			if err := a.catalog.DeletePermission(r.Context(), seg); err != nil {
				handleAuthError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
