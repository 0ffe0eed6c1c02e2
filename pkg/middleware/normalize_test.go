package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeTrimsPathAndRestoresHost(t *testing.T) {
	var path, host, scheme string
	h := Normalize()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, host, scheme = r.URL.Path, r.Host, r.URL.Scheme
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/app/me", nil)
	req.URL.Path = "/api/app/me "
	req.Header.Set("X-Forwarded-Host", "relay.example")
	req.Header.Set("X-Forwarded-Proto", "https")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if path != "/api/app/me" || host != "relay.example" || scheme != "https" {
		t.Fatalf("got path=%q host=%q scheme=%q", path, host, scheme)
	}
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"":                    "/",
		" /api/app/me ":       "/api/app/me",
		"//api//app/me":       "/api/app/me",
		"/api/organizations/": "/api/organizations/",
	}
	for in, want := range cases {
		if got := cleanPath(in); got != want {
			t.Fatalf("cleanPath(%q) = %q, want %q", in, got, want)
		}
	}
}
