package archive

import "time"

// SessionRecord is the archived, pseudonymized snapshot of a finished session.
// It never carries the customer's number, DNI or name.
type SessionRecord struct {
	Version        int       `json:"version"`
	CustomerHash   string    `json:"customer_hash"`
	Reason         string    `json:"reason"`
	FinalPhase     string    `json:"final_phase"`
	Segment        string    `json:"segment,omitempty"`
	Credit         float64   `json:"credit,omitempty"`
	NSE            string    `json:"nse,omitempty"`
	AgeVerified    bool      `json:"age_verified,omitempty"`
	LastCategory   string    `json:"last_category,omitempty"`
	DNIAttempts    int       `json:"dni_attempts"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ArchivedAt     time.Time `json:"archived_at"`
}

// ManifestEntry is one line of the daily manifest.
type ManifestEntry struct {
	Key          string    `json:"key"`
	CustomerHash string    `json:"customer_hash"`
	FinalPhase   string    `json:"final_phase"`
	Reason       string    `json:"reason"`
	ArchivedAt   time.Time `json:"archived_at"`
}

const recordVersion = 1
