package handlers

import (
	"net/http"

	"storeadmin/internal/caching"
	"storeadmin/internal/common"
	"storeadmin/internal/middleware"

	"github.com/labstack/echo/v4"
)

// AuthHandlers exposes the signed-in administrator and sign-out.
type AuthHandlers struct {
	cache caching.CacheService
}

func NewAuthHandlers(cache caching.CacheService) *AuthHandlers {
	return &AuthHandlers{cache: cache}
}

type SessionResponse struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
	Message string `json:"message"`
}

// GetSession returns who is logged in
func (h *AuthHandlers) GetSession(c echo.Context) error {
	user, ok := common.GetUserFromContext(c.Request().Context())
	if !ok {
		return common.SendUnauthorizedError(c)
	}
	return c.JSON(http.StatusOK, SessionResponse{
		Name:    user.Name,
		Email:   user.Email,
		Picture: user.Picture,
		Message: "Logged in as " + user.Name,
	})
}

// SignOut revokes the presented token and clears the session cookie
func (h *AuthHandlers) SignOut(c echo.Context) error {
	ctx := c.Request().Context()
	user, ok := common.GetUserFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	if h.cache != nil {
		if err := middleware.RevokeToken(ctx, h.cache, common.CredentialFromContext(ctx), user.ExpiresAt); err != nil {
			return common.SendServerError(c, "Failed to sign out")
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}
