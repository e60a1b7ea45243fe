// Package eligibility decides whether a customer may buy on credit by
// combining the answers of the FNB and GASO credit providers.
package eligibility

import "context"

// Status is the outcome of an eligibility check.
type Status string

const (
	StatusEligible    Status = "eligible"
	StatusNotEligible Status = "not_eligible"
	StatusNeedsHuman  Status = "needs_human"
)

// Handoff reasons attached to StatusNeedsHuman results.
const (
	HandoffBothProvidersDown = "both_providers_down"
)

// Result is what the orchestrator hands back to the conversation.
// Segment, Credit, Name and NSE are only meaningful when Status is eligible.
type Result struct {
	Status        Status  `json:"status"`
	Segment       string  `json:"segment,omitempty"`
	Credit        float64 `json:"credit,omitempty"`
	Name          string  `json:"name,omitempty"`
	NSE           string  `json:"nse,omitempty"`
	HandoffReason string  `json:"handoff_reason,omitempty"`
	Provider      string  `json:"provider,omitempty"`
}

// Eligible reports whether the result approves the customer.
func (r Result) Eligible() bool {
	return r.Status == StatusEligible
}

// NotEligible builds a negative result.
func NotEligible(provider string) Result {
	return Result{Status: StatusNotEligible, Provider: provider}
}

// NeedsHuman builds a hand-off result.
func NeedsHuman(reason string) Result {
	return Result{Status: StatusNeedsHuman, HandoffReason: reason}
}

// Provider is a credit provider that can be queried by national ID.
// Query returns a business answer (eligible or not eligible) or an error when
// the provider could not be reached or refused the request.
type Provider interface {
	Name() string
	Query(ctx context.Context, dni string) (Result, error)
}
