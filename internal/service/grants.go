package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/repository"
	"github.com/kdrag0n/earlypilot/internal/security"
)

// Grant durations are float hours to allow sub-hour precision in query
// parameters. One year is the policy ceiling.
const maxGrantDurationHours = 366 * 24

// GrantService creates, issues, and redeems capability grants.
type GrantService struct {
	grants  repository.GrantRepository
	codec   *security.GrantCodec
	baseURL string
	logger  *zap.Logger

	now func() time.Time
}

func NewGrantService(grants repository.GrantRepository, codec *security.GrantCodec, baseURL string, logger *zap.Logger) *GrantService {
	return &GrantService{
		grants:  grants,
		codec:   codec,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// Create inserts a grant expiring durationHours from now.
func (s *GrantService) Create(ctx context.Context, path, tag string, grantType domain.GrantType, durationHours float64) (domain.Grant, error) {
	if durationHours <= 0 || durationHours > maxGrantDurationHours {
		return domain.Grant{}, fmt.Errorf("grant duration %.2fh out of range (0, %d]", durationHours, maxGrantDurationHours)
	}

	grant := domain.Grant{
		Type:       grantType,
		Path:       path,
		Tag:        tag,
		ExpireTime: s.now().Add(time.Duration(durationHours * float64(time.Hour))),
	}
	saved, err := s.grants.Create(ctx, grant)
	if err != nil {
		return domain.Grant{}, fmt.Errorf("create grant: %w", err)
	}
	return saved, nil
}

// IssueToken encodes a capability token for the grant.
func (s *GrantService) IssueToken(grant domain.Grant) (string, error) {
	return s.codec.Issue(grant.ID)
}

// GrantURL builds the redemption URL: <base><path>?grant=<token>.
func (s *GrantService) GrantURL(grant domain.Grant) (string, error) {
	token, err := s.IssueToken(grant)
	if err != nil {
		return "", fmt.Errorf("issue grant token: %w", err)
	}

	path := grant.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.baseURL + path + "?grant=" + url.QueryEscape(token), nil
}

// CreateURL creates a grant and returns its redemption URL in one step.
func (s *GrantService) CreateURL(ctx context.Context, path, tag string, grantType domain.GrantType, durationHours float64) (string, error) {
	grant, err := s.Create(ctx, path, tag, grantType, durationHours)
	if err != nil {
		return "", err
	}
	return s.GrantURL(grant)
}

// Redeem validates a token against storage for the exact resource path and,
// on success, counts the access. Every rejection collapses to
// domain.ErrUnauthorized: expired, disabled, wrong path, unknown id, and
// undecodable tokens must be indistinguishable to the caller.
func (s *GrantService) Redeem(ctx context.Context, path, token string) (domain.Grant, error) {
	grantID, err := s.codec.Redeem(token)
	if err != nil {
		return domain.Grant{}, domain.ErrUnauthorized
	}

	grant, err := s.grants.Redeem(ctx, grantID, path, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Grant{}, domain.ErrUnauthorized
		}
		s.log().Error("grant redemption failed", zap.Int("grantId", grantID), zap.Error(err))
		return domain.Grant{}, fmt.Errorf("redeem grant: %w", err)
	}
	return grant, nil
}

// Disable revokes a grant. Idempotent.
func (s *GrantService) Disable(ctx context.Context, id int) error {
	if err := s.grants.Disable(ctx, id); err != nil {
		return fmt.Errorf("disable grant: %w", err)
	}
	return nil
}

func (s *GrantService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
