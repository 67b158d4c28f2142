package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/brujulacripto/creditledger/internal/authorization"
	obscontext "github.com/brujulacripto/creditledger/internal/observability/context"
)

const (
	contextUserIDKey = "user_id"
	contextRoleKey   = "role"
)

// Claims is the bearer token issued by the identity provider. Subject is the userId.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var errMissingBearer = errors.New("missing_bearer_token")

// AuthRequired verifies the HS256 bearer token and stores the caller in the
// request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(s.cfg.AuthJWTSecret))
	issuer := strings.TrimSpace(s.cfg.AuthJWTIssuer)

	return func(c *gin.Context) {
		if len(secret) == 0 {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims, err := parseClaims(raw, secret, issuer)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID := strings.TrimSpace(claims.Subject)
		role, ok := normalizeRole(claims.Role)
		if userID == "" || !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		c.Set(contextRoleKey, role)
		c.Request = c.Request.WithContext(obscontext.WithUser(c.Request.Context(), userID, role))
		c.Next()
	}
}

func parseClaims(raw string, secret []byte, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errMissingBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingBearer
	}
	return token, nil
}

// normalizeRole treats a missing role claim as a plain user.
func normalizeRole(role string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "", authorization.RoleUser:
		return authorization.RoleUser, true
	case authorization.RoleOperator:
		return authorization.RoleOperator, true
	default:
		return "", false
	}
}

func callerID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(contextUserIDKey))
}
