// internal/pkg/auth/auth.go
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const RoleAdmin = "admin"

var ErrInvalidToken = errors.New("invalid token")

// Principal 是通过认证的调用方，令牌由外部认证服务签发，这里只做校验
type Principal struct {
	UserID string
	Email  string
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Claims 是令牌中携带的业务字段
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier 使用 HS256 共享密钥校验令牌
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify 解析并校验令牌，返回其中的 Principal
func (v *Verifier) Verify(token string) (Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Principal{}, errors.Wrap(ErrInvalidToken, "parse token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.Wrap(ErrInvalidToken, "missing subject")
	}
	return Principal{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// Sign 签发一个令牌，供测试和本地调试使用
func (v *Verifier) Sign(p Principal) (string, error) {
	claims := Claims{
		Email:            p.Email,
		Role:             p.Role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.UserID},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Protect 要求请求携带有效的 Bearer 令牌
func (v *Verifier) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		p, err := v.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// AdminOnly 必须放在 Protect 之后
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok || !p.IsAdmin() {
			writeError(w, http.StatusForbidden, "Not authorized as an admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
