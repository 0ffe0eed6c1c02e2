package middleware

import (
	"net/http"
	"path"
	"strings"
)

// Normalize cleans the request before routing: the path loses surrounding
// whitespace and duplicate slashes, and scheme/host are taken from proxy
// headers so absolute URLs and logs reflect the public address.
func Normalize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p := cleanPath(r.URL.Path); p != r.URL.Path {
				r.URL.Path = p
				r.URL.RawPath = ""
			}

			switch proto := strings.ToLower(r.Header.Get("X-Forwarded-Proto")); proto {
			case "http", "https":
				r.URL.Scheme = proto
			}
			if host := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); host != "" {
				r.Host = host
			}
			next.ServeHTTP(w, r)
		})
	}
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	// Clean drops the trailing slash; chi routes "/x/" and "/x" differently
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// MaxBodySize 限制请求体大小
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
