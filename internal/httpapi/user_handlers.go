package httpapi

import (
	"net/http"
	"strings"

	"gatehouse.io/internal/auth"
)

type updateUserRequest struct {
	Email    *string  `json:"email"`
	FullName *string  `json:"full_name"`
	Roles    []string `json:"roles"`
}

// handleUsers serves GET /v1/users: a name search over light projections.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, offset, err := parseListWindow(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	users, err := a.directory.SearchUsers(r.Context(), name, limit, offset)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  users,
		"limit":  limit,
		"offset": offset,
	})
}

// handleUserResource dispatches /v1/users/{id} and its activate/deactivate
// sub-resources.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.protected(auth.RequirePermissions(auth.PermViewUsers), func(w http.ResponseWriter, r *http.Request) {
				a.getUser(w, r, id)
			})(w, r)
		case http.MethodPatch:
			a.protected(auth.RequirePermissions(auth.PermUpdateUser), func(w http.ResponseWriter, r *http.Request) {
				a.updateUser(w, r, id)
			})(w, r)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
	case len(parts) == 2 && parts[1] == "activate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.protected(auth.RequirePermissions(auth.PermUpdateUser), func(w http.ResponseWriter, r *http.Request) {
			a.setUserActive(w, r, id, true)
		})(w, r)
	case len(parts) == 2 && parts[1] == "deactivate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.protected(auth.RequirePermissions(auth.PermDeleteUser), func(w http.ResponseWriter, r *http.Request) {
			a.setUserActive(w, r, id, false)
		})(w, r)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	profile, err := a.directory.GetUser(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, id string) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	profile, err := a.directory.UpdateUser(r.Context(), id, auth.UserUpdate{
		Email:    req.Email,
		FullName: req.FullName,
		Roles:    req.Roles,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) setUserActive(w http.ResponseWriter, r *http.Request, id string, active bool) {
	var err error
	if active {
		err = a.directory.Activate(r.Context(), id)
	} else {
		err = a.directory.Deactivate(r.Context(), id)
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
