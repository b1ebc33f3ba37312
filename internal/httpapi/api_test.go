package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gatehouse.io/internal/auth"
)

// In-memory stores backing the HTTP tests.

type fakeUsers struct {
	seq   int
	users map[string]*auth.User
}

func (f *fakeUsers) Create(_ context.Context, u *auth.User) error {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email %s", auth.ErrConflict, u.Email)
		}
	}
	f.seq++
	if u.ID == "" {
		u.ID = fmt.Sprintf("u%d", f.seq)
	}
	clone := *u
	f.users[u.ID] = &clone
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*auth.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) Search(_ context.Context, name string, limit, offset int) ([]*auth.User, error) {
	var out []*auth.User
	for _, u := range f.users {
		if name == "" || strings.Contains(strings.ToLower(u.FullName), strings.ToLower(name)) {
			clone := *u
			clone.Roles = nil
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeUsers) Update(_ context.Context, u *auth.User) error {
	existing, ok := f.users[u.ID]
	if !ok {
		return auth.ErrNotFound
	}
	existing.Email = u.Email
	existing.FullName = u.FullName
	return nil
}

func (f *fakeUsers) ReplaceRoles(_ context.Context, userID string, roleIDs []string) error {
	if _, ok := f.users[userID]; !ok {
		return auth.ErrNotFound
	}
	return nil
}

func (f *fakeUsers) SetActive(_ context.Context, userID string, active bool) error {
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (f *fakeUsers) SetPasswordDigest(_ context.Context, userID, digest string) error {
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordDigest = &digest
	return nil
}

func (f *fakeUsers) SetRefreshTokenHash(_ context.Context, userID string, hash *string) error {
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.RefreshTokenHash = hash
	return nil
}

type fakeRoles struct {
	seq   int
	roles map[string]*auth.Role
}

func (f *fakeRoles) Create(_ context.Context, role *auth.Role) error {
	if _, ok := f.roles[role.Name]; ok {
		return fmt.Errorf("%w: role %s", auth.ErrConflict, role.Name)
	}
	f.seq++
	if role.ID == "" {
		role.ID = fmt.Sprintf("r%d", f.seq)
	}
	clone := *role
	f.roles[role.Name] = &clone
	return nil
}

func (f *fakeRoles) FindByID(_ context.Context, id string) (*auth.Role, error) {
	for _, role := range f.roles {
		if role.ID == id {
			clone := *role
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeRoles) FindByName(_ context.Context, name string) (*auth.Role, error) {
	role, ok := f.roles[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *role
	return &clone, nil
}

func (f *fakeRoles) List(_ context.Context, limit, offset int) ([]*auth.Role, error) {
	var out []*auth.Role
	for _, role := range f.roles {
		clone := *role
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeRoles) Delete(_ context.Context, id string) error {
	for name, role := range f.roles {
		if role.ID == id {
			delete(f.roles, name)
			return nil
		}
	}
	return auth.ErrNotFound
}

type fakePerms struct {
	seq   int
	perms map[string]*auth.Permission
}

func (f *fakePerms) Create(_ context.Context, perm *auth.Permission) error {
	if _, ok := f.perms[perm.Name]; ok {
		return fmt.Errorf("%w: permission %s", auth.ErrConflict, perm.Name)
	}
	f.seq++
	if perm.ID == "" {
		perm.ID = fmt.Sprintf("p%d", f.seq)
	}
	clone := *perm
	f.perms[perm.Name] = &clone
	return nil
}

func (f *fakePerms) FindByID(_ context.Context, id string) (*auth.Permission, error) {
	for _, perm := range f.perms {
		if perm.ID == id {
			clone := *perm
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakePerms) FindByName(_ context.Context, name string) (*auth.Permission, error) {
	perm, ok := f.perms[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *perm
	return &clone, nil
}

func (f *fakePerms) List(_ context.Context, limit, offset int) ([]auth.Permission, error) {
	var out []auth.Permission
	for _, perm := range f.perms {
		out = append(out, *perm)
	}
	return out, nil
}

func (f *fakePerms) Update(_ context.Context, perm *auth.Permission) error {
	for _, existing := range f.perms {
		if existing.ID == perm.ID {
			existing.Description = perm.Description
			return nil
		}
	}
	return auth.ErrNotFound
}

func (f *fakePerms) Delete(_ context.Context, id string) error {
	for name, perm := range f.perms {
		if perm.ID == id {
			delete(f.perms, name)
			return nil
		}
	}
	return auth.ErrNotFound
}

func newTestAPI(t *testing.T) (*API, *fakeUsers) {
	t.Helper()
	users := &fakeUsers{users: make(map[string]*auth.User)}
	// ADMIN carries the full built-in catalog, mirroring the seed data.
	adminPerms := []auth.Permission{
		{ID: "p1", Name: auth.PermViewUsers},
		{ID: "p2", Name: auth.PermCreateUser},
		{ID: "p3", Name: auth.PermUpdateUser},
		{ID: "p4", Name: auth.PermDeleteUser},
		{ID: "p5", Name: auth.PermViewRoles},
		{ID: "p6", Name: auth.PermManageRoles},
		{ID: "p7", Name: auth.PermViewPermissions},
		{ID: "p8", Name: auth.PermManagePermissions},
	}
	roles := &fakeRoles{seq: 2, roles: map[string]*auth.Role{
		auth.RoleUser: {ID: "r1", Name: auth.RoleUser},
		auth.RoleAdmin: {ID: "r2", Name: auth.RoleAdmin,
			Permissions: adminPerms},
	}}
	perms := &fakePerms{seq: len(adminPerms), perms: make(map[string]*auth.Permission)}
	for i := range adminPerms {
		perms.perms[adminPerms[i].Name] = &adminPerms[i]
	}

	tokens, err := auth.NewTokenService("access-secret", "refresh-secret", "recovery-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	svc, err := auth.NewService(users, roles, tokens)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	catalog, err := auth.NewCatalog(roles, perms)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	directory, err := auth.NewDirectory(users, roles)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	api, err := New(ReadyProbe{}, svc, catalog, directory, tokens, WithVersion("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return api, users
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type sessionResponse struct {
	User   auth.Profile   `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func register(t *testing.T, h http.Handler, email string, roles ...string) sessionResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email":     email,
		"password":  "pw-123456",
		"full_name": strings.Split(email, "@")[0],
		"roles":     roles,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", email, rec.Code, rec.Body)
	}
	var session sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gatehouse-api") {
		t.Fatalf("unexpected body: %s", rec.Body)
	}
}

func TestRegisterLoginAndClaims(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	session := register(t, h, "alice@example.com")
	if len(session.User.Roles) != 1 || session.User.Roles[0] != auth.RoleUser {
		t.Fatalf("expected default USER role, got %v", session.User.Roles)
	}

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "alice@example.com", "password": "pw-123456",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rec.Code, rec.Body)
	}
	var login sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	me := doJSON(t, h, http.MethodGet, "/v1/auth/me", login.Tokens.AccessToken, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me: status %d, body %s", me.Code, me.Body)
	}
	if !strings.Contains(me.Body.String(), auth.RoleUser) {
		t.Fatalf("claims missing role: %s", me.Body)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	register(t, h, "bob@example.com")

	unknown := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "nobody@example.com", "password": "x",
	})
	wrong := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "bob@example.com", "password": "x",
	})
	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("status %d / %d", unknown.Code, wrong.Code)
	}
}

func TestGuardAllowsAndDenies(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	admin := register(t, h, "admin@example.com", auth.RoleAdmin)
	plain := register(t, h, "plain@example.com")

	if rec := doJSON(t, h, http.MethodGet, "/v1/users", admin.Tokens.AccessToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin search: status %d, body %s", rec.Code, rec.Body)
	}
	if rec := doJSON(t, h, http.MethodGet, "/v1/users", plain.Tokens.AccessToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("plain search: status %d, body %s", rec.Code, rec.Body)
	}
	if rec := doJSON(t, h, http.MethodGet, "/v1/users", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous search: status %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/v1/users", "not-a-token", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", rec.Code)
	}
}

func TestRefreshEndpointRequiresRefreshToken(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	session := register(t, h, "ref@example.com")

	// Access token is signed with the wrong secret for this endpoint.
	if rec := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", session.Tokens.AccessToken, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("access token on refresh: status %d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", session.Tokens.RefreshToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status %d, body %s", rec.Code, rec.Body)
	}
	var next sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if next.Tokens.RefreshToken == session.Tokens.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	// The consumed token is dead.
	if rec := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", session.Tokens.RefreshToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("stale refresh: status %d, body %s", rec.Code, rec.Body)
	}
}

func TestLogoutKillsRefresh(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	session := register(t, h, "bye@example.com")

	if rec := doJSON(t, h, http.MethodPost, "/v1/auth/logout", session.Tokens.AccessToken, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", session.Tokens.RefreshToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("refresh after logout: status %d", rec.Code)
	}
}

func TestDeactivateLocksOut(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	admin := register(t, h, "root@example.com", auth.RoleAdmin)
	victim := register(t, h, "victim@example.com")

	rec := doJSON(t, h, http.MethodPost, "/v1/users/"+victim.User.ID+"/deactivate", admin.Tokens.AccessToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate: status %d, body %s", rec.Code, rec.Body)
	}

	login := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "victim@example.com", "password": "pw-123456",
	})
	if login.Code != http.StatusUnauthorized {
		t.Fatalf("inactive login: status %d, body %s", login.Code, login.Body)
	}
	refresh := doJSON(t, h, http.MethodPost, "/v1/auth/refresh", victim.Tokens.RefreshToken, nil)
	if refresh.Code != http.StatusUnauthorized {
		t.Fatalf("inactive refresh: status %d, body %s", refresh.Code, refresh.Body)
	}
}

func TestRecoverAndResetFlow(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	register(t, h, "lost@example.com")

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/recover", "", map[string]any{
		"email": "lost@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("recover: status %d, body %s", rec.Code, rec.Body)
	}
	var out struct {
		ResetToken string `json:"reset_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode recover: %v", err)
	}

	if rec := doJSON(t, h, http.MethodPost, "/v1/auth/reset", "", map[string]any{
		"token": out.ResetToken, "password": "brand-new",
	}); rec.Code != http.StatusNoContent {
		t.Fatalf("reset: status %d, body %s", rec.Code, rec.Body)
	}

	login := doJSON(t, h, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"email": "lost@example.com", "password": "brand-new",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("login after reset: status %d, body %s", login.Code, login.Body)
	}
}

func TestRoleCatalogEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	admin := register(t, h, "boss@example.com", auth.RoleAdmin)

	rec := doJSON(t, h, http.MethodPost, "/v1/roles", admin.Tokens.AccessToken, map[string]any{
		"name":        "support",
		"description": "First line",
		"permissions": []string{"view users"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role: status %d, body %s", rec.Code, rec.Body)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/roles/SUPPORT" {
		t.Fatalf("unexpected Location: %q", loc)
	}

	if rec := doJSON(t, h, http.MethodGet, "/v1/roles/SUPPORT", admin.Tokens.AccessToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("get role: status %d, body %s", rec.Code, rec.Body)
	}

	dup := doJSON(t, h, http.MethodPost, "/v1/roles", admin.Tokens.AccessToken, map[string]any{
		"name": "SUPPORT",
	})
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate role: status %d, body %s", dup.Code, dup.Body)
	}

	unknown := doJSON(t, h, http.MethodPost, "/v1/roles", admin.Tokens.AccessToken, map[string]any{
		"name": "X", "permissions": []string{"NO_SUCH"},
	})
	if unknown.Code != http.StatusNotFound {
		t.Fatalf("unknown permission: status %d, body %s", unknown.Code, unknown.Body)
	}
}

func TestPermissionCatalogEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	admin := register(t, h, "auditor@example.com", auth.RoleAdmin)
	plain := register(t, h, "clerk@example.com")

	rec := doJSON(t, h, http.MethodPost, "/v1/permissions", admin.Tokens.AccessToken, map[string]any{
		"name":        "export reports",
		"description": "Download CSV exports",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create permission: status %d, body %s", rec.Code, rec.Body)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/permissions/EXPORT_REPORTS" {
		t.Fatalf("unexpected Location: %q", loc)
	}
	var created auth.Permission
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode permission: %v", err)
	}

	if rec := doJSON(t, h, http.MethodGet, "/v1/permissions", admin.Tokens.AccessToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("list permissions: status %d, body %s", rec.Code, rec.Body)
	}
	if rec := doJSON(t, h, http.MethodGet, "/v1/permissions", plain.Tokens.AccessToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("list without permission: status %d, body %s", rec.Code, rec.Body)
	}
	if rec := doJSON(t, h, http.MethodGet, "/v1/permissions/EXPORT_REPORTS", admin.Tokens.AccessToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("get permission: status %d, body %s", rec.Code, rec.Body)
	}

	patched := doJSON(t, h, http.MethodPatch, "/v1/permissions/"+created.ID, admin.Tokens.AccessToken, map[string]any{
		"description": "Download exports",
	})
	if patched.Code != http.StatusOK {
		t.Fatalf("update permission: status %d, body %s", patched.Code, patched.Body)
	}

	if rec := doJSON(t, h, http.MethodDelete, "/v1/permissions/"+created.ID, admin.Tokens.AccessToken, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete permission: status %d, body %s", rec.Code, rec.Body)
	}
	if rec := doJSON(t, h, http.MethodDelete, "/v1/permissions/"+created.ID, admin.Tokens.AccessToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("delete again: status %d, body %s", rec.Code, rec.Body)
	}
}

func TestValidationErrors(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"email": "not-an-email", "password": "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email: status %d, body %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":`))
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("truncated body: status %d", recorder.Code)
	}

	if rec := doJSON(t, h, http.MethodGet, "/v1/auth/login", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: status %d", rec.Code)
	}
}
