package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"storeadmin/internal/caching"
	"storeadmin/internal/common"
	"storeadmin/internal/models"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SessionCookie is read when no Authorization header is sent.
const SessionCookie = "id_token"

var (
	ErrUnknownIssuer = errors.New("token issuer not allowed")
	ErrTokenRevoked  = errors.New("token has been signed out")
)

// IdentityClaims are the OpenID claims of an identity provider ID token.
type IdentityClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

// TokenVerifier validates ID tokens against the provider's keys.
type TokenVerifier struct {
	keyfunc  jwt.Keyfunc
	audience string
	issuers  []string
	methods  []string
}

// NewTokenVerifier checks signature, expiry, audience and issuer. methods defaults to RS256.
func NewTokenVerifier(kf jwt.Keyfunc, audience string, issuers []string, methods ...string) *TokenVerifier {
	if len(methods) == 0 {
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}
	return &TokenVerifier{keyfunc: kf, audience: audience, issuers: issuers, methods: methods}
}

// NewJWKSVerifier fetches the provider JWKS and keeps it refreshed in the background.
// The returned stop func ends the refresh goroutine.
func NewJWKSVerifier(jwksURL string, refresh time.Duration, audience string, issuers []string, logger *zap.SugaredLogger) (*TokenVerifier, func(), error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warnw("JWKS refresh failed", "url", jwksURL, "error", err)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load JWKS from %s: %w", jwksURL, err)
	}
	return NewTokenVerifier(jwks.Keyfunc, audience, issuers), jwks.EndBackground, nil
}

// Verify parses tokenString and returns its claims.
func (v *TokenVerifier) Verify(tokenString string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc,
		jwt.WithValidMethods(v.methods),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if len(v.issuers) > 0 && !slices.Contains(v.issuers, claims.Issuer) {
		return nil, ErrUnknownIssuer
	}
	return claims, nil
}

// RevocationKey is the cache key marking a signed-out token.
func RevocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "revoked:" + hex.EncodeToString(sum[:])
}

// RevokeToken marks token as signed out until it would have expired anyway.
func RevokeToken(ctx context.Context, cache caching.CacheService, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return cache.SetString(ctx, RevocationKey(token), "1", ttl)
}

// SessionMiddleware authenticates the administrator and stores the user and the raw
// token in the request context. cache may be nil, which disables sign-out revocation.
func SessionMiddleware(verifier *TokenVerifier, cache caching.CacheService, logger *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenString := bearerToken(c)
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				logger.Debugw("rejected ID token", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			ctx := c.Request().Context()
			if cache != nil {
				revoked, cacheErr := cache.GetString(ctx, RevocationKey(tokenString))
				if cacheErr != nil {
					logger.Warnw("revocation lookup failed", "error", cacheErr)
				} else if revoked != "" {
					return echo.NewHTTPError(http.StatusUnauthorized, ErrTokenRevoked.Error())
				}
			}

			user := &models.SessionUser{
				Subject: claims.Subject,
				Email:   strings.ToLower(claims.Email),
				Name:    claims.Name,
				Picture: claims.Picture,
			}
			if claims.ExpiresAt != nil {
				user.ExpiresAt = claims.ExpiresAt.Time
			}

			ctx = common.WithUser(ctx, user)
			ctx = common.WithCredential(ctx, tokenString)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
