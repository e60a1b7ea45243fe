package events

import "time"

// Event types observable by the notification dispatcher.
const (
	EscalationTriggered    = "escalation_triggered"
	SystemOutageDetected   = "system_outage_detected"
	ProviderDegraded       = "provider_degraded"
	EnrichmentLoopExceeded = "enrichment_loop_exceeded"
	OperatorNotified       = "operator_notified"
	TurnDropped            = "turn_dropped"
	CustomerTracked        = "customer_tracked"
	ProviderRecovered      = "provider_recovered"
)

// Severity levels drive how loudly operators are paged.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// SeverityFor maps an event type to its notification severity.
func SeverityFor(eventType string) string {
	switch eventType {
	case SystemOutageDetected:
		return SeverityCritical
	case EscalationTriggered, EnrichmentLoopExceeded, TurnDropped:
		return SeverityHigh
	case ProviderDegraded:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// ProviderFailure describes one provider's failure within an eligibility check.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Category string `json:"category"`
	Error    string `json:"error,omitempty"`
}

// OutageDetectedV1 is raised when every eligibility provider was unreachable.
type OutageDetectedV1 struct {
	CustomerKey string            `json:"customer_key"`
	Failures    []ProviderFailure `json:"failures"`
	DetectedAt  time.Time         `json:"detected_at"`
}

// ProviderDegradedV1 is raised when one provider failed but another answered.
type ProviderDegradedV1 struct {
	CustomerKey string          `json:"customer_key"`
	Failure     ProviderFailure `json:"failure"`
	AnsweredBy  string          `json:"answered_by"`
	DetectedAt  time.Time       `json:"detected_at"`
}

// EscalationTriggeredV1 is raised when a conversation is handed to a human.
type EscalationTriggeredV1 struct {
	CustomerKey string    `json:"customer_key"`
	Reason      string    `json:"reason"`
	Phase       string    `json:"phase,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EnrichmentLoopExceededV1 is raised when one inbound message needed more
// side effects than the loop allows.
type EnrichmentLoopExceededV1 struct {
	CustomerKey string    `json:"customer_key"`
	Phase       string    `json:"phase"`
	Iterations  int       `json:"iterations"`
	LastKind    string    `json:"last_kind"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// OperatorNotifiedV1 carries a notify-team command from the conversation engine.
type OperatorNotifiedV1 struct {
	CustomerKey string    `json:"customer_key"`
	Reason      string    `json:"reason"`
	Severity    string    `json:"severity"`
	Phase       string    `json:"phase,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TurnDroppedV1 is raised when a turn could not be processed, usually because
// the customer lock was not acquired in time.
type TurnDroppedV1 struct {
	CustomerKey string    `json:"customer_key"`
	MessageID   string    `json:"message_id,omitempty"`
	Reason      string    `json:"reason"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// CustomerTrackedV1 is an analytics event about a customer's progress.
type CustomerTrackedV1 struct {
	CustomerKey string            `json:"customer_key"`
	Event       string            `json:"event"`
	Props       map[string]string `json:"props,omitempty"`
	Phase       string            `json:"phase,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// ProviderRecoveredV1 is raised when a parked customer's check succeeds again.
type ProviderRecoveredV1 struct {
	CustomerKey string    `json:"customer_key"`
	Provider    string    `json:"provider,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
