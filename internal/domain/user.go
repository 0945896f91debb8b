package domain

import (
	"strings"
	"time"
)

// User is a Patreon identity known to this server. Rows are created on first
// successful login and updated on every session validation; they are never
// hard-deleted.
type User struct {
	ID           string
	Name         string
	Email        string
	AccessToken  string
	CreationTime time.Time
	LoginTime    *time.Time
	LoginIP      string
	ActivityTime *time.Time
	ActivityIP   string
	AuthState    *AuthorizationResult
	Blocked      bool

	// Telegram integration
	TelegramID     *int64
	TelegramInvite string
}

// FirstName assumes the first whitespace-separated word is the given name.
// Patreon only exposes a full name, so this is the best we can do.
func (u User) FirstName() string {
	fields := strings.Fields(u.Name)
	if len(fields) == 0 {
		return u.Name
	}
	return fields[0]
}
