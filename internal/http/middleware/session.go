package middleware

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/security"
	"github.com/kdrag0n/earlypilot/internal/service"
)

const (
	// SessionCookie holds the sealed patron session.
	SessionCookie = "patronSession"

	accessKey = "benefitAccess"
)

// Access describes how the current request earned benefit access. Tag is the
// audit key for the download log: the user id for session access, the grant
// tag for token access.
type Access struct {
	Type      domain.AccessType
	Tag       string
	UserID    string
	IsCreator bool
}

// Benefits gates exclusive content. A request passes either with a valid
// capability token in the grant query parameter or with an authorized patron
// session cookie; everything else is turned away with the mapped status.
type Benefits struct {
	Sessions   *security.SessionCodec
	Authorizer *service.Authorizer
	Grants     *service.GrantService
	CreatorID  string
}

// Require is the gate middleware for exclusive routes.
func (m *Benefits) Require(c *gin.Context) {
	if token := c.Query("grant"); token != "" {
		m.requireGrant(c, token)
		return
	}
	m.requireSession(c)
}

func (m *Benefits) requireGrant(c *gin.Context, token string) {
	grant, err := m.Grants.Redeem(c.Request.Context(), c.Request.URL.Path, token)
	if errors.Is(err, domain.ErrUnauthorized) {
		// Expired, revoked, wrong path, and forged tokens are deliberately
		// indistinguishable here.
		c.String(http.StatusUnauthorized, "Invalid or expired download link.")
		c.Abort()
		return
	}
	if err != nil {
		c.String(http.StatusInternalServerError, "Unable to verify your download link right now. Please try again later.")
		c.Abort()
		return
	}

	accessType := domain.AccessTypeGrant
	if grant.Type == domain.GrantTypePurchase {
		accessType = domain.AccessTypePurchase
	}
	SetAccess(c, Access{Type: accessType, Tag: grant.Tag})
	c.Next()
}

func (m *Benefits) requireSession(c *gin.Context) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil {
		redirectToLogin(c)
		return
	}
	session, err := m.Sessions.Decode(cookie)
	if err != nil {
		clearSessionCookie(c)
		redirectToLogin(c)
		return
	}

	result := m.Authorizer.Authorize(c.Request.Context(), session, c.ClientIP())
	switch result {
	case domain.AuthorizationSuccess:
		SetAccess(c, Access{
			Type:      sessionAccessType(session.PatreonUserID == m.CreatorID),
			Tag:       session.PatreonUserID,
			UserID:    session.PatreonUserID,
			IsCreator: session.PatreonUserID == m.CreatorID,
		})
		c.Next()
	case domain.AuthorizationTokenExpired:
		clearSessionCookie(c)
		redirectToLogin(c)
	case domain.AuthorizationBlocked:
		c.String(http.StatusForbidden, "Access denied.")
		c.Abort()
	case domain.AuthorizationAPIError:
		c.String(http.StatusInternalServerError, "Unable to verify your membership right now. Please try again later.")
		c.Abort()
	default:
		c.String(http.StatusPaymentRequired, pledgeIssueMessage(result))
		c.Abort()
	}
}

func sessionAccessType(isCreator bool) domain.AccessType {
	if isCreator {
		return domain.AccessTypeCreator
	}
	return domain.AccessTypeUser
}

func pledgeIssueMessage(result domain.AuthorizationResult) string {
	switch result {
	case domain.AuthorizationNoPledge:
		return "This content is for patrons only. Pledge to get access."
	case domain.AuthorizationLowTier:
		return "Your pledge tier does not include this content. Upgrade to get access."
	case domain.AuthorizationPaymentDeclined:
		return "Your last pledge payment was declined. Update your payment method to restore access."
	default:
		return "Access denied."
	}
}

// SetAccess attaches resolved access to the request context.
func SetAccess(c *gin.Context, access Access) {
	c.Set(accessKey, access)
}

// GetAccess exposes the resolved access to handlers.
func GetAccess(c *gin.Context) (Access, bool) {
	value, ok := c.Get(accessKey)
	if !ok {
		return Access{}, false
	}
	access, ok := value.(Access)
	return access, ok
}

func redirectToLogin(c *gin.Context) {
	// Login redirects must never be cached in place of the content.
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}

func clearSessionCookie(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
}
