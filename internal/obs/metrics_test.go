package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/users/abc":                  "/v1/users/:id",
		"/v1/users/abc/activate":         "/v1/users/:id/activate",
		"/v1/users/abc/deactivate":       "/v1/users/:id/deactivate",
		"/v1/users/abc/extra":            "/v1/users/abc/extra",
		"/v1/users":                      "/v1/users",
		"/v1/users?limit=10":             "/v1/users",
		"/v1/roles/abc":                  "/v1/roles/:id",
		"/v1/permissions/abc":            "/v1/permissions/:id",
		"/v1/auth/login":                 "/v1/auth/login",
		"/v1/auth/refresh":               "/v1/auth/refresh",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
