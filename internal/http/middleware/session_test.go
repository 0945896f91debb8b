package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/domain"
	httpmiddleware "github.com/kdrag0n/earlypilot/internal/http/middleware"
	"github.com/kdrag0n/earlypilot/internal/patreon"
	"github.com/kdrag0n/earlypilot/internal/security"
	"github.com/kdrag0n/earlypilot/internal/service"
)

const creatorID = "creator-1"

type userRepoStub struct {
	blocked map[string]bool
}

func (s *userRepoStub) Get(ctx context.Context, id string) (domain.User, error) {
	if s.blocked[id] {
		return domain.User{ID: id, Blocked: true}, nil
	}
	return domain.User{}, domain.ErrNotFound
}

func (s *userRepoStub) UpsertLogin(ctx context.Context, user domain.User) (domain.User, error) {
	return user, nil
}

func (s *userRepoStub) RecordActivity(ctx context.Context, id string, state domain.AuthorizationResult, ip string, at time.Time) error {
	return nil
}

type identityStub struct {
	identities map[string]*patreon.Identity
}

func (s *identityStub) GetIdentity(ctx context.Context, accessToken string) (*patreon.Identity, error) {
	identity, ok := s.identities[accessToken]
	if !ok {
		return nil, domain.ErrTokenExpired
	}
	return identity, nil
}

type grantRepoStub struct {
	nextID int
	grants map[int]*domain.Grant
}

func (s *grantRepoStub) Create(ctx context.Context, grant domain.Grant) (domain.Grant, error) {
	if s.grants == nil {
		s.grants = make(map[int]*domain.Grant)
		s.nextID = 1
	}
	grant.ID = s.nextID
	s.nextID++
	stored := grant
	s.grants[grant.ID] = &stored
	return grant, nil
}

func (s *grantRepoStub) Get(ctx context.Context, id int) (domain.Grant, error) {
	grant, ok := s.grants[id]
	if !ok {
		return domain.Grant{}, domain.ErrNotFound
	}
	return *grant, nil
}

func (s *grantRepoStub) Redeem(ctx context.Context, id int, path string, now time.Time) (domain.Grant, error) {
	grant, ok := s.grants[id]
	if !ok || grant.Disabled || grant.Path != path || now.After(grant.ExpireTime) {
		return domain.Grant{}, domain.ErrNotFound
	}
	grant.AccessCount++
	return *grant, nil
}

func (s *grantRepoStub) Disable(ctx context.Context, id int) error { return nil }

func (s *grantRepoStub) DisableByTag(ctx context.Context, grantType domain.GrantType, tag string) error {
	return nil
}

func (s *grantRepoStub) ListByTag(ctx context.Context, grantType domain.GrantType, tag string, limit int) ([]domain.Grant, error) {
	return nil, nil
}

type benefitsFixture struct {
	benefits *httpmiddleware.Benefits
	sessions *security.SessionCodec
	grants   *service.GrantService
}

func newBenefitsFixture(t *testing.T) *benefitsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key := make([]byte, security.KeyBytes)
	for i := range key {
		key[i] = 0x66
	}

	sessions, err := security.NewSessionCodec(key)
	require.NoError(t, err)
	codec, err := security.NewGrantCodec(key)
	require.NoError(t, err)

	users := &userRepoStub{blocked: map[string]bool{"blocked-user": true}}
	identities := &identityStub{identities: map[string]*patreon.Identity{
		"creator-token": {ID: creatorID},
		"patron-token": {ID: "patron-1", Pledges: []patreon.Pledge{
			{CreatorID: creatorID, AmountCents: 500},
		}},
		"low-tier-token": {ID: "patron-2", Pledges: []patreon.Pledge{
			{CreatorID: creatorID, AmountCents: 100},
		}},
		"blocked-token": {ID: "blocked-user"},
	}}

	authorizer := service.NewAuthorizer(users, identities, creatorID, 500, zap.NewNop())
	grants := service.NewGrantService(&grantRepoStub{}, codec, "https://dl.example.com", zap.NewNop())

	return &benefitsFixture{
		benefits: &httpmiddleware.Benefits{
			Sessions:   sessions,
			Authorizer: authorizer,
			Grants:     grants,
			CreatorID:  creatorID,
		},
		sessions: sessions,
		grants:   grants,
	}
}

func (f *benefitsFixture) request(t *testing.T, target string, cookie string) (*httptest.ResponseRecorder, httpmiddleware.Access, bool) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	if cookie != "" {
		c.Request.AddCookie(&http.Cookie{Name: httpmiddleware.SessionCookie, Value: cookie})
	}

	f.benefits.Require(c)
	access, ok := httpmiddleware.GetAccess(c)
	return w, access, ok
}

func (f *benefitsFixture) sealSession(t *testing.T, userID, token string) string {
	t.Helper()
	sealed, err := f.sessions.Encode(security.PatronSession{PatreonUserID: userID, AccessToken: token})
	require.NoError(t, err)
	return sealed
}

func TestRequireWithValidGrantToken(t *testing.T) {
	f := newBenefitsFixture(t)

	url, err := f.grants.CreateURL(context.Background(), "/exclusive/a.zip", "friend", domain.GrantTypeCreator, 48)
	require.NoError(t, err)

	target := url[len("https://dl.example.com"):]
	w, access, ok := f.request(t, target, "")
	require.NotEqual(t, http.StatusUnauthorized, w.Code)
	require.True(t, ok)
	require.Equal(t, domain.AccessTypeGrant, access.Type)
	require.Equal(t, "friend", access.Tag)
}

func TestRequireRejectsBadGrantToken(t *testing.T) {
	f := newBenefitsFixture(t)

	w, _, ok := f.request(t, "/exclusive/a.zip?grant=bogus", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.False(t, ok)
}

func TestRequireRedirectsAnonymousToLogin(t *testing.T) {
	f := newBenefitsFixture(t)

	w, _, ok := f.request(t, "/exclusive/a.zip", "")
	require.False(t, ok)
	require.Equal(t, http.StatusFound, w.Code)
	require.Contains(t, w.Header().Get("Location"), "/login")
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRequireRedirectsExpiredSessionToLogin(t *testing.T) {
	f := newBenefitsFixture(t)

	cookie := f.sealSession(t, "patron-1", "stale-token")
	w, _, ok := f.request(t, "/exclusive/a.zip", cookie)
	require.False(t, ok)
	require.Equal(t, http.StatusFound, w.Code)
	require.Contains(t, w.Header().Get("Location"), "/login")
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRequireAllowsActivePatron(t *testing.T) {
	f := newBenefitsFixture(t)

	cookie := f.sealSession(t, "patron-1", "patron-token")
	_, access, ok := f.request(t, "/exclusive/a.zip", cookie)
	require.True(t, ok)
	require.Equal(t, domain.AccessTypeUser, access.Type)
	require.Equal(t, "patron-1", access.Tag)
	require.False(t, access.IsCreator)
}

func TestRequireRecognizesCreator(t *testing.T) {
	f := newBenefitsFixture(t)

	cookie := f.sealSession(t, creatorID, "creator-token")
	_, access, ok := f.request(t, "/exclusive/a.zip", cookie)
	require.True(t, ok)
	require.Equal(t, domain.AccessTypeCreator, access.Type)
	require.True(t, access.IsCreator)
}

func TestRequireReturns402ForPledgeIssues(t *testing.T) {
	f := newBenefitsFixture(t)

	cookie := f.sealSession(t, "patron-2", "low-tier-token")
	w, _, ok := f.request(t, "/exclusive/a.zip", cookie)
	require.False(t, ok)
	require.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestRequireReturns403ForBlockedUser(t *testing.T) {
	f := newBenefitsFixture(t)

	cookie := f.sealSession(t, "blocked-user", "blocked-token")
	w, _, ok := f.request(t, "/exclusive/a.zip", cookie)
	require.False(t, ok)
	require.Equal(t, http.StatusForbidden, w.Code)
}
