package conversation

import (
	"slices"
	"time"
)

// Metadata holds durable session facts that outlive individual phases.
// It only grows during a session; Reset happens on expiry alone.
type Metadata struct {
	Name           string    `json:"name,omitempty"`
	DNI            string    `json:"dni,omitempty"`
	Segment        string    `json:"segment,omitempty"`
	Credit         float64   `json:"credit,omitempty"`
	NSE            string    `json:"nse,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	AttemptedDNIs  []string  `json:"attempted_dnis,omitempty"`
	LastCategory   string    `json:"last_category,omitempty"`
	AgeVerified    bool      `json:"age_verified,omitempty"`
}

// Approved reports whether an earlier check in this session approved the customer.
func (m Metadata) Approved() bool {
	return m.Segment != "" && m.Credit > 0
}

// Attempted reports whether dni was already checked in this session.
func (m Metadata) Attempted(dni string) bool {
	return slices.Contains(m.AttemptedDNIs, dni)
}

// MetadataPatch is an additive update. Nil fields are left untouched and
// AttemptedDNIs are appended, never replaced.
type MetadataPatch struct {
	Name           *string    `json:"name,omitempty"`
	DNI            *string    `json:"dni,omitempty"`
	Segment        *string    `json:"segment,omitempty"`
	Credit         *float64   `json:"credit,omitempty"`
	NSE            *string    `json:"nse,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	AttemptedDNIs  []string   `json:"attempted_dnis,omitempty"`
	LastCategory   *string    `json:"last_category,omitempty"`
	AgeVerified    *bool      `json:"age_verified,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p MetadataPatch) Empty() bool {
	return p.Name == nil && p.DNI == nil && p.Segment == nil && p.Credit == nil && p.NSE == nil &&
		p.LastActivityAt == nil && len(p.AttemptedDNIs) == 0 && p.LastCategory == nil && p.AgeVerified == nil
}

// Merge folds other into p; values in other win.
func (p MetadataPatch) Merge(other MetadataPatch) MetadataPatch {
	if other.Name != nil {
		p.Name = other.Name
	}
	if other.DNI != nil {
		p.DNI = other.DNI
	}
	if other.Segment != nil {
		p.Segment = other.Segment
	}
	if other.Credit != nil {
		p.Credit = other.Credit
	}
	if other.NSE != nil {
		p.NSE = other.NSE
	}
	if other.LastActivityAt != nil {
		p.LastActivityAt = other.LastActivityAt
	}
	for _, dni := range other.AttemptedDNIs {
		if !slices.Contains(p.AttemptedDNIs, dni) {
			p.AttemptedDNIs = append(p.AttemptedDNIs, dni)
		}
	}
	if other.LastCategory != nil {
		p.LastCategory = other.LastCategory
	}
	if other.AgeVerified != nil {
		p.AgeVerified = other.AgeVerified
	}
	return p
}

// Apply returns m with the patch applied.
func (m Metadata) Apply(p MetadataPatch) Metadata {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.DNI != nil {
		m.DNI = *p.DNI
	}
	if p.Segment != nil {
		m.Segment = *p.Segment
	}
	if p.Credit != nil {
		m.Credit = *p.Credit
	}
	if p.NSE != nil {
		m.NSE = *p.NSE
	}
	if p.LastActivityAt != nil {
		m.LastActivityAt = *p.LastActivityAt
	}
	if len(p.AttemptedDNIs) > 0 {
		attempted := slices.Clone(m.AttemptedDNIs)
		for _, dni := range p.AttemptedDNIs {
			if !slices.Contains(attempted, dni) {
				attempted = append(attempted, dni)
			}
		}
		m.AttemptedDNIs = attempted
	}
	if p.LastCategory != nil {
		m.LastCategory = *p.LastCategory
	}
	if p.AgeVerified != nil {
		m.AgeVerified = *p.AgeVerified
	}
	return m
}

func ptr[T any](v T) *T { return &v }
