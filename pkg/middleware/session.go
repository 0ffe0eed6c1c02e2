package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/projectelevate-biz/tag-sub001/pkg/apperrors"
	"github.com/projectelevate-biz/tag-sub001/pkg/models"
	"github.com/projectelevate-biz/tag-sub001/pkg/utils"

	"github.com/rs/zerolog/log"
)

// ContextKey 用于在context中存储用户信息的键
type ContextKey string

const (
	UserContextKey ContextKey = "user"
)

// UserMirror stores the local copy of an identity
type UserMirror interface {
	UpsertUser(ctx context.Context, user *models.User) error
}

// SessionResolver turns a request into the signed-in user, or nil
type SessionResolver struct {
	tokens     *utils.JWTService
	cookieName string
	users      UserMirror
	mirrored   sync.Map // user id -> *models.User
}

func NewSessionResolver(tokens *utils.JWTService, cookieName string, users UserMirror) *SessionResolver {
	if cookieName == "" {
		cookieName = "rr_session"
	}
	return &SessionResolver{tokens: tokens, cookieName: cookieName, users: users}
}

// Resolve reads the session token from the Authorization header or the
// session cookie. Missing, malformed or expired tokens resolve to nil.
func (s *SessionResolver) Resolve(r *http.Request) *models.User {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(s.cookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil
	}

	claims, err := s.tokens.ValidateSessionToken(token)
	if err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("session token rejected")
		return nil
	}

	if cached, ok := s.mirrored.Load(claims.UserID); ok {
		u := *cached.(*models.User)
		if u.Email == claims.Email {
			return &u
		}
	}

	user := &models.User{ID: claims.UserID, Email: claims.Email, Name: claims.Name, Image: claims.Image}
	if s.users != nil {
		if err := s.users.UpsertUser(r.Context(), user); err != nil {
			log.Error().Err(err).Str("user_id", claims.UserID).Msg("failed to mirror user")
			return user
		}
	}
	stored := *user
	s.mirrored.Store(user.ID, &stored)
	return user
}

// Forget drops the cached mirror so the next request re-reads the user
func (s *SessionResolver) Forget(userID string) {
	s.mirrored.Delete(userID)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return ""
	}
	return strings.TrimSpace(token)
}

// Session attaches the resolved user to the request context. It never rejects;
// handlers call RequireUser.
func Session(resolver *SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := resolver.Resolve(r); user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUser returns ctx carrying user
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUserFromContext 从context中获取用户信息
func GetUserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}

// RequireUser 要求用户必须已认证
func RequireUser(ctx context.Context) (*models.User, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok {
		return nil, apperrors.ErrUnauthenticated
	}
	return user, nil
}
