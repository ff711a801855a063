package domain

import "time"

// HistoryEntry records one password the user has had. Entries are append-only and pruned to the newest N per user.
type HistoryEntry struct {
	ID           string
	UserID       string
	PasswordHash string
	ChangedAt    time.Time
}
