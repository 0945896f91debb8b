package domain

import "time"

// AccessType tags a download event with the authorization path that allowed it.
type AccessType string

const (
	AccessTypeUser     AccessType = "USER"
	AccessTypeCreator  AccessType = "CREATOR"
	AccessTypeGrant    AccessType = "GRANT"
	AccessTypePurchase AccessType = "PURCHASE"
)

// DownloadHashAlgorithm identifies the digest recorded for served bytes.
const DownloadHashAlgorithm = "SHA-512"

// DownloadEvent is an append-only audit record of a content access. It is
// never consulted for authorization decisions; Active is flipped to false
// when the purchase behind a download is refunded.
type DownloadEvent struct {
	ID           int
	AccessType   AccessType
	Tag          string
	FileName     string
	FileHash     string
	DownloadTime time.Time
	ClientIP     string
	Active       bool
}
