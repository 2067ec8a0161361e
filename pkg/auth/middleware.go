package auth

import (
	"strings"

	"github.com/fitlife/fitlife-sync/pkg/config"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/logger"
	"github.com/labstack/echo/v4"
)

const claimsContextKey = "auth_claims"

// Middleware authenticates requests carrying a bearer access token and
// stores the claims on the echo context.
func Middleware(cfg config.JWTConfig, logg *logger.Logger) echo.MiddlewareFunc {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token")
			}

			claims, err := ParseAccessToken(cfg, token)
			if err != nil {
				logg.Debug(logg.WithField(c.Request().Context(), "remote_ip", c.RealIP()), "rejected access token: "+err.Error())
				return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
			}

			c.Set(claimsContextKey, claims)
			ctx := logg.WithMemberID(c.Request().Context(), claims.MemberID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireRole rejects authenticated callers without the given role.
func RequireRole(role Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFrom(c)
			if claims == nil {
				return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
			}
			if claims.Role != role {
				return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

// ClaimsFrom returns the claims stored by Middleware, or nil.
func ClaimsFrom(c echo.Context) *AccessTokenClaims {
	claims, _ := c.Get(claimsContextKey).(*AccessTokenClaims)
	return claims
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
