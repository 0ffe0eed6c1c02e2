package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/projectelevate-biz/tag-sub001/pkg/config"
)

func TestCorsOrigins(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Config
		origins     []string
		credentials bool
	}{
		{"development wildcard", config.Config{Environment: "development"}, []string{"*"}, false},
		{"production base url", config.Config{Environment: "production", BaseURL: "https://app.rebound.test"}, []string{"https://app.rebound.test"}, true},
		{"explicit list", config.Config{Environment: "production", AllowedOrigins: []string{"https://a.test"}}, []string{"https://a.test"}, true},
		{"explicit wildcard", config.Config{Environment: "production", AllowedOrigins: []string{"*"}}, []string{"*"}, false},
		{"nothing configured", config.Config{Environment: "production"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origins, credentials := corsOrigins(&tt.cfg)
			if len(origins) != len(tt.origins) || (len(origins) > 0 && origins[0] != tt.origins[0]) {
				t.Fatalf("origins = %v, want %v", origins, tt.origins)
			}
			if credentials != tt.credentials {
				t.Fatalf("credentials = %v, want %v", credentials, tt.credentials)
			}
		})
	}
}

func TestCORSPreflightAllowsCredentialsForBaseURL(t *testing.T) {
	h := CORS(&config.Config{Environment: "production", BaseURL: "https://app.rebound.test"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/app/me", nil)
	req.Header.Set("Origin", "https://app.rebound.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.rebound.test" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}
}
