package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(FakeAuth())
	r.GET("/me", func(c *gin.Context) {
		id, _ := GetAuth0ID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "admin": IsAdmin(c), "token": BearerToken(c)})
	})
	r.GET("/admin", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFakeAuthRequiresUser(t *testing.T) {
	w := do(router(), "/me", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFakeAuthSetsIdentity(t *testing.T) {
	w := do(router(), "/me", map[string]string{"X-User-ID": "auth0|rider", "Authorization": "Bearer abc"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"id":"auth0|rider","admin":false,"token":"abc"}`, w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	r := router()

	w := do(r, "/admin", map[string]string{"X-User-ID": "auth0|rider"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, "/admin", map[string]string{"X-User-ID": "auth0|ops", "X-Admin": "true"})
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestCustomClaimsPermission(t *testing.T) {
	c := &CustomClaims{Permissions: []string{"read:bikes", AdminPermission}}
	require.True(t, c.HasPermission(AdminPermission))
	require.False(t, (&CustomClaims{}).HasPermission(AdminPermission))
}
