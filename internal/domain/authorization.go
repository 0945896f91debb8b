package domain

// AuthorizationResult is the outcome of validating a patron session against
// the pledge API and the local block list.
type AuthorizationResult string

const (
	AuthorizationSuccess AuthorizationResult = "SUCCESS"

	// Server issues
	AuthorizationAPIError AuthorizationResult = "API_ERROR"

	// User issues
	AuthorizationTokenExpired    AuthorizationResult = "TOKEN_EXPIRED"
	AuthorizationNoPledge        AuthorizationResult = "NO_PLEDGE"
	AuthorizationLowTier         AuthorizationResult = "LOW_TIER"
	AuthorizationPaymentDeclined AuthorizationResult = "PAYMENT_DECLINED"
	AuthorizationBlocked         AuthorizationResult = "BLOCKED"
)

// PledgeIssue reports whether the result should be presented as a payment
// problem the user can fix on Patreon.
func (r AuthorizationResult) PledgeIssue() bool {
	switch r {
	case AuthorizationNoPledge, AuthorizationLowTier, AuthorizationPaymentDeclined, AuthorizationBlocked:
		return true
	}
	return false
}
