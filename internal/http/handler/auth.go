package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpmiddleware "github.com/kdrag0n/earlypilot/internal/http/middleware"
	"github.com/kdrag0n/earlypilot/internal/patreon"
	"github.com/kdrag0n/earlypilot/internal/security"
	"github.com/kdrag0n/earlypilot/internal/service"
)

const (
	stateCookie    = "oauthState"
	stateCookieAge = 600
)

// AuthHandler runs the patron login flow: OAuth redirect out, code exchange
// back, sealed session cookie in.
type AuthHandler struct {
	OAuth      *patreon.OAuthClient
	Authorizer *service.Authorizer
	Sessions   *security.SessionCodec
	BaseURL    string
	Logger     *zap.Logger
}

// Login starts the OAuth flow. The next query parameter survives the round
// trip through the state cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	state, err := randomState()
	if err != nil {
		c.String(http.StatusInternalServerError, "Unable to start login.")
		return
	}

	next := sanitizeNext(c.Query("next"))
	c.SetCookie(stateCookie, state+"|"+next, stateCookieAge, "/", "", false, true)
	c.Redirect(http.StatusFound, h.OAuth.AuthorizeURL(h.redirectURI(), state))
}

// LoginCallback finishes the flow: state check, code exchange, identity
// resolution, session cookie.
func (h *AuthHandler) LoginCallback(c *gin.Context) {
	cookie, err := c.Cookie(stateCookie)
	if err != nil {
		c.String(http.StatusBadRequest, "Login session expired. Please try again.")
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", false, true)

	state, next, _ := strings.Cut(cookie, "|")
	if subtle.ConstantTimeCompare([]byte(state), []byte(c.Query("state"))) != 1 {
		c.String(http.StatusBadRequest, "Login state mismatch. Please try again.")
		return
	}

	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "Login was cancelled.")
		return
	}

	accessToken, err := h.OAuth.ExchangeCode(c.Request.Context(), code, h.redirectURI())
	if err != nil {
		h.log().Warn("oauth code exchange failed", zap.Error(err))
		c.String(http.StatusBadGateway, "Login failed. Please try again.")
		return
	}

	user, err := h.Authorizer.Login(c.Request.Context(), accessToken, c.ClientIP())
	if err != nil {
		h.log().Warn("login identity resolution failed", zap.Error(err))
		c.String(http.StatusBadGateway, "Login failed. Please try again.")
		return
	}

	sealed, err := h.Sessions.Encode(security.PatronSession{
		PatreonUserID: user.ID,
		AccessToken:   accessToken,
	})
	if err != nil {
		c.String(http.StatusInternalServerError, "Login failed. Please try again.")
		return
	}

	secure := strings.HasPrefix(h.BaseURL, "https://")
	c.SetCookie(httpmiddleware.SessionCookie, sealed, 0, "/", "", secure, true)

	if next == "" {
		next = "/"
	}
	c.Redirect(http.StatusFound, next)
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie(httpmiddleware.SessionCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) redirectURI() string {
	return strings.TrimRight(h.BaseURL, "/") + "/login/callback"
}

// sanitizeNext only allows same-site relative paths as post-login targets.
func sanitizeNext(raw string) string {
	if raw == "" {
		return ""
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return ""
	}
	return decoded
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (h *AuthHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}
