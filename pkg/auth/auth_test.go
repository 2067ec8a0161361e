package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitlife/fitlife-sync/pkg/config"
	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWT = config.JWTConfig{Secret: "test-secret", Issuer: "fitlife", TTL: time.Hour}

func TestMintAndParseAccessToken(t *testing.T) {
	token, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{MemberID: "member-1", Role: RoleMember})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testJWT, token)
	require.NoError(t, err)
	assert.Equal(t, "member-1", claims.MemberID)
	assert.Equal(t, RoleMember, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	expired, err := MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), AccessTokenPayload{MemberID: "member-1", Role: RoleMember})
	require.NoError(t, err)
	_, err = ParseAccessToken(testJWT, expired)
	assert.Error(t, err)

	valid, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{MemberID: "member-1", Role: RoleMember})
	require.NoError(t, err)
	other := testJWT
	other.Secret = "another-secret"
	_, err = ParseAccessToken(other, valid)
	assert.Error(t, err)

	wrongIssuer := testJWT
	wrongIssuer.Issuer = "someone-else"
	_, err = ParseAccessToken(wrongIssuer, valid)
	assert.Error(t, err)
}

func TestMintAccessToken_Validation(t *testing.T) {
	_, err := MintAccessToken(config.JWTConfig{}, time.Now(), AccessTokenPayload{MemberID: "m", Role: RoleMember})
	assert.Error(t, err)
	_, err = MintAccessToken(testJWT, time.Now(), AccessTokenPayload{Role: RoleMember})
	assert.Error(t, err)
	_, err = MintAccessToken(testJWT, time.Now(), AccessTokenPayload{MemberID: "m", Role: "owner"})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	e := echo.New()
	handler := Middleware(testJWT, nil)(func(c echo.Context) error {
		return c.String(http.StatusOK, ClaimsFrom(c).MemberID)
	})

	token, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{MemberID: "member-7", Role: RoleMember})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	assert.Equal(t, "member-7", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/notifications", nil)
	err = handler(e.NewContext(req, httptest.NewRecorder()))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))

	req = httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer not-a-jwt")
	err = handler(e.NewContext(req, httptest.NewRecorder()))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeUnauthorized))
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	handler := Middleware(testJWT, nil)(RequireRole(RoleAdmin)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}))

	memberToken, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{MemberID: "member-1", Role: RoleMember})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/notifications/send", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+memberToken)
	err = handler(e.NewContext(req, httptest.NewRecorder()))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	adminToken, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{MemberID: "staff-1", Role: RoleAdmin})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/admin/notifications/send", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
