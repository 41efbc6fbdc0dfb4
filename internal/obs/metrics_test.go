package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/api/auth/signup":                  "/api/auth/signup",
		"/api/orgs/01J5K":                   "/api/orgs/:id",
		"/api/orgs/01J5K/apps":              "/api/orgs/:id/apps",
		"/api/orgs/01J5K/apps/01J6A":        "/api/orgs/:id/apps/:id",
		"/api/orgs/01J5K/apps/01J6A?x=1":    "/api/orgs/:id/apps/:id",
		"/api/auth/sso-exchange?verbose=on": "/api/auth/sso-exchange",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
