package middleware

import (
	"net/http"

	"github.com/projectelevate-biz/tag-sub001/pkg/config"

	"github.com/go-chi/cors"
)

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	// Stripe-Signature 只在服务端之间出现，不需要放行
	corsHeaders = []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "Cache-Control"}
)

// CORS 创建CORS中间件。会话 cookie 需要凭据，所以只有具体来源才开启 AllowCredentials。
func CORS(cfg *config.Config) func(http.Handler) http.Handler {
	origins, credentials := corsOrigins(cfg)
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   corsMethods,
		AllowedHeaders:   corsHeaders,
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: credentials,
		MaxAge:           300,
	})
}

// corsOrigins 未配置来源时开发环境放开，其它环境只允许 BASE_URL
func corsOrigins(cfg *config.Config) ([]string, bool) {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		switch {
		case cfg.IsDevelopment():
			origins = []string{"*"}
		case cfg.BaseURL != "":
			origins = []string{cfg.BaseURL}
		}
	}
	for _, o := range origins {
		if o == "*" {
			return origins, false
		}
	}
	return origins, len(origins) > 0
}
