package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kdrag0n/earlypilot/internal/domain"
	"github.com/kdrag0n/earlypilot/internal/patreon"
	"github.com/kdrag0n/earlypilot/internal/repository"
	"github.com/kdrag0n/earlypilot/internal/security"
)

// Authorizer decides whether a patron session may access benefits.
type Authorizer struct {
	users      repository.UserRepository
	identities patreon.API
	creatorID  string
	minTier    int
	logger     *zap.Logger

	now func() time.Time
}

func NewAuthorizer(users repository.UserRepository, identities patreon.API, creatorID string, minTierAmountCents int, logger *zap.Logger) *Authorizer {
	return &Authorizer{
		users:      users,
		identities: identities,
		creatorID:  creatorID,
		minTier:    minTierAmountCents,
		logger:     logger,
		now:        time.Now,
	}
}

// Authorize runs the decision ladder for a session:
//
//  1. a locally blocked user always loses, even the creator;
//  2. upstream auth failure means the token is stale, any other upstream
//     failure is a server-side error, both end the attempt;
//  3. the creator always passes;
//  4. otherwise the pledges to this creator decide.
//
// The outcome is mirrored onto the user row for observability; that write is
// best-effort and never changes the decision.
func (a *Authorizer) Authorize(ctx context.Context, session security.PatronSession, clientIP string) domain.AuthorizationResult {
	result := a.decide(ctx, session)
	a.recordActivity(ctx, session.PatreonUserID, result, clientIP)
	return result
}

func (a *Authorizer) decide(ctx context.Context, session security.PatronSession) domain.AuthorizationResult {
	user, err := a.users.Get(ctx, session.PatreonUserID)
	if err == nil && user.Blocked {
		return domain.AuthorizationBlocked
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.log().Error("block list lookup failed", zap.String("userId", session.PatreonUserID), zap.Error(err))
		return domain.AuthorizationAPIError
	}

	identity, err := a.identities.GetIdentity(ctx, session.AccessToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return domain.AuthorizationTokenExpired
		}
		a.log().Warn("identity fetch failed", zap.String("userId", session.PatreonUserID), zap.Error(err))
		return domain.AuthorizationAPIError
	}

	// Always allow the creator, after the block check.
	if identity.ID == a.creatorID {
		return domain.AuthorizationSuccess
	}

	// Each step is separate to return a precise result.
	var (
		creatorPledges int
		amountPledges  int
		validPledge    bool
	)
	for _, pledge := range identity.Pledges {
		if pledge.CreatorID != a.creatorID {
			continue
		}
		creatorPledges++
		if pledge.AmountCents >= a.minTier {
			amountPledges++
		}
		if pledge.DeclinedSince == nil {
			validPledge = true
		}
	}

	switch {
	case creatorPledges == 0:
		return domain.AuthorizationNoPledge
	case amountPledges == 0:
		return domain.AuthorizationLowTier
	case !validPledge:
		return domain.AuthorizationPaymentDeclined
	default:
		return domain.AuthorizationSuccess
	}
}

func (a *Authorizer) recordActivity(ctx context.Context, userID string, result domain.AuthorizationResult, clientIP string) {
	err := a.users.RecordActivity(ctx, userID, result, clientIP, a.now())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.log().Warn("failed to record user activity", zap.String("userId", userID), zap.Error(err))
	}
}

// Login resolves the identity behind a fresh OAuth access token and upserts
// the local user row.
func (a *Authorizer) Login(ctx context.Context, accessToken, clientIP string) (domain.User, error) {
	identity, err := a.identities.GetIdentity(ctx, accessToken)
	if err != nil {
		return domain.User{}, err
	}

	now := a.now()
	user, err := a.users.UpsertLogin(ctx, domain.User{
		ID:           identity.ID,
		Name:         identity.FullName,
		Email:        identity.Email,
		AccessToken:  accessToken,
		CreationTime: identity.Created,
		LoginTime:    &now,
		LoginIP:      clientIP,
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (a *Authorizer) log() *zap.Logger {
	if a != nil && a.logger != nil {
		return a.logger
	}
	return zap.L()
}
