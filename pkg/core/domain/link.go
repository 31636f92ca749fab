package domain

import "time"

// Link is the persisted record behind a safe-link token.
type Link struct {
	Token         string     `json:"token"`
	OriginalURL   string     `json:"originalUrl"`
	CreatedAt     time.Time  `json:"createdAt"`
	Clicks        int64      `json:"clicks"`
	FirstViewedAt *time.Time `json:"firstViewedAt,omitempty"` // Set once, on the first handshake
}

// IssuedLink is what the issuer hands back to the caller.
type IssuedLink struct {
	Token    string `json:"token"`
	SafeLink string `json:"safelink"`
}
