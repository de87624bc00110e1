package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/glaucoscan/internal/session"
)

// CookieName is the cookie carrying the session token.
const CookieName = "glaucoscan_session"

type contextKey string

const sessionKey contextKey = "authSession"

// Resolver loads the session named by a token.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*session.Session, error)
}

// GetSession retrieves the authenticated session from context.
func GetSession(ctx context.Context) (*session.Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// CurrentSession retrieves the session stored by RequireRole on the gin context.
func CurrentSession(c *gin.Context) (*session.Session, bool) {
	return GetSession(c.Request.Context())
}

// Token returns the session token carried by the request cookie, or "".
func Token(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireRole admits requests whose session has the given role. Everything
// else (no token, bad token, expired or revoked session, other role) is
// redirected to the home page without explanation.
func RequireRole(resolver Resolver, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := resolver.Resolve(c.Request.Context(), Token(c.Request))
		if err != nil || s.Role != role {
			redirectHome(c)
			return
		}

		ctx := context.WithValue(c.Request.Context(), sessionKey, s)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(sessionKey), s)

		c.Next()
	}
}

// SetCookie writes the session cookie.
func SetCookie(c *gin.Context, token string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, maxAge, "/", "", secure, true)
}

// ClearCookie expires the session cookie.
func ClearCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", secure, true)
}

func redirectHome(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, "/")
	c.Abort()
}
