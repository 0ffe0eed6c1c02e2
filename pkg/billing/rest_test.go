package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
)

func TestDodoPortalLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/customers/cus_42/customer-portal/session" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer dodo-key" {
			t.Errorf("missing bearer key")
		}
		json.NewEncoder(w).Encode(map[string]string{"link": "https://portal.example/s/1"})
	}))
	defer srv.Close()

	link, err := NewDodoClient("dodo-key", srv.URL).PortalLink(context.Background(), "cus_42")
	if err != nil {
		t.Fatalf("portal link: %v", err)
	}
	if link != "https://portal.example/s/1" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestDodoPortalLinkProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"customer not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewDodoClient("k", srv.URL).PortalLink(context.Background(), "missing")
	var pe *apperrors.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "dodo" {
		t.Fatalf("expected dodo provider error, got %v", err)
	}
}

func TestPaypalCancelSubscription(t *testing.T) {
	var cancelled string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client" || pass != "secret" {
				t.Errorf("token request without client credentials")
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
		case strings.HasPrefix(r.URL.Path, "/v1/billing/subscriptions/"):
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("cancel call without access token: %q", r.Header.Get("Authorization"))
			}
			cancelled = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/billing/subscriptions/"), "/cancel")
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewPaypalClient(PaypalConfig{ClientID: "client", ClientSecret: "secret", APIBase: srv.URL})
	if err := client.CancelSubscription(context.Background(), "I-ABC", ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled != "I-ABC" {
		t.Fatalf("expected I-ABC to be cancelled, got %q", cancelled)
	}
}
