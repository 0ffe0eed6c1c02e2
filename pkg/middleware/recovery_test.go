package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/projectelevate-biz/tag-sub001/pkg/config"
)

func TestRecoveryHidesPanicOutsideDevelopment(t *testing.T) {
	h := Recovery(&config.Config{Environment: "production"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("ledger exploded")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "ledger exploded") {
		t.Fatalf("panic value leaked: %s", rec.Body.String())
	}
}
