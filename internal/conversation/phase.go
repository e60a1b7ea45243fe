package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/wolfman30/creditsales-ai-platform/internal/catalog"
)

// PhaseName identifies a phase variant on the wire and in logs.
type PhaseName string

const (
	PhaseGreeting            PhaseName = "greeting"
	PhaseConfirmingClient    PhaseName = "confirming_client"
	PhaseCollectingDNI       PhaseName = "collecting_dni"
	PhaseCheckingEligibility PhaseName = "checking_eligibility"
	PhaseOfferingDNIRetry    PhaseName = "offering_dni_retry"
	PhaseCollectingAge       PhaseName = "collecting_age"
	PhaseOfferingProducts    PhaseName = "offering_products"
	PhaseHandlingObjection   PhaseName = "handling_objection"
	PhaseClosing             PhaseName = "closing"
	PhaseEscalated           PhaseName = "escalated"
	PhaseWaitingForRecovery  PhaseName = "waiting_for_recovery"
)

// Phase is the current step of a customer's session. The set of variants is
// closed: only the types in this file implement it.
type Phase interface {
	Kind() PhaseName
	isPhase()
}

type Greeting struct{}

type ConfirmingClient struct {
	Reprompted bool `json:"reprompted,omitempty"`
}

type CollectingDNI struct {
	Attempts int `json:"attempts,omitempty"`
}

type CheckingEligibility struct {
	DNI string `json:"dni"`
}

// OfferingDNIRetry gives a rejected customer one more ID to try.
type OfferingDNIRetry struct {
	PreviousDNI string `json:"previous_dni"`
}

type CollectingAge struct {
	Segment string  `json:"segment"`
	Credit  float64 `json:"credit"`
	Name    string  `json:"name,omitempty"`
}

// OfferingProducts keeps the objection count so that objections separated by
// other messages still reach the escalation cap.
type OfferingProducts struct {
	Segment       string            `json:"segment"`
	Credit        float64           `json:"credit"`
	Name          string            `json:"name,omitempty"`
	Category      string            `json:"category,omitempty"`
	ShownProducts []catalog.Product `json:"shown_products,omitempty"`
	Objections    int               `json:"objections,omitempty"`
}

type HandlingObjection struct {
	Segment       string            `json:"segment"`
	Credit        float64           `json:"credit"`
	Name          string            `json:"name,omitempty"`
	Category      string            `json:"category,omitempty"`
	ShownProducts []catalog.Product `json:"shown_products,omitempty"`
	Objections    int               `json:"objections"`
}

type Closing struct {
	PurchaseConfirmed bool   `json:"purchase_confirmed"`
	Reason            string `json:"reason,omitempty"`
	Product           string `json:"product,omitempty"`
}

type Escalated struct {
	Reason string `json:"reason"`
}

// WaitingForRecovery parks a customer whose eligibility check could not reach
// any provider. The recovery sweeper retries DNI out of band.
type WaitingForRecovery struct {
	DNI string `json:"dni"`
}

func (Greeting) Kind() PhaseName            { return PhaseGreeting }
func (ConfirmingClient) Kind() PhaseName    { return PhaseConfirmingClient }
func (CollectingDNI) Kind() PhaseName       { return PhaseCollectingDNI }
func (CheckingEligibility) Kind() PhaseName { return PhaseCheckingEligibility }
func (OfferingDNIRetry) Kind() PhaseName    { return PhaseOfferingDNIRetry }
func (CollectingAge) Kind() PhaseName       { return PhaseCollectingAge }
func (OfferingProducts) Kind() PhaseName    { return PhaseOfferingProducts }
func (HandlingObjection) Kind() PhaseName   { return PhaseHandlingObjection }
func (Closing) Kind() PhaseName             { return PhaseClosing }
func (Escalated) Kind() PhaseName           { return PhaseEscalated }
func (WaitingForRecovery) Kind() PhaseName  { return PhaseWaitingForRecovery }

func (Greeting) isPhase()            {}
func (ConfirmingClient) isPhase()    {}
func (CollectingDNI) isPhase()       {}
func (CheckingEligibility) isPhase() {}
func (OfferingDNIRetry) isPhase()    {}
func (CollectingAge) isPhase()       {}
func (OfferingProducts) isPhase()    {}
func (HandlingObjection) isPhase()   {}
func (Closing) isPhase()             {}
func (Escalated) isPhase()           {}
func (WaitingForRecovery) isPhase()  {}

// KnownPhase reports whether p is one of the declared variants.
func KnownPhase(p Phase) bool {
	switch p.(type) {
	case Greeting, ConfirmingClient, CollectingDNI, CheckingEligibility, OfferingDNIRetry,
		CollectingAge, OfferingProducts, HandlingObjection, Closing, Escalated, WaitingForRecovery:
		return true
	default:
		return false
	}
}

type phaseEnvelope struct {
	Name PhaseName       `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalPhase encodes p with its variant name so it can be decoded later.
func MarshalPhase(p Phase) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("conversation: cannot encode nil phase")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("conversation: encode phase %s: %w", p.Kind(), err)
	}
	return json.Marshal(phaseEnvelope{Name: p.Kind(), Data: data})
}

// UnmarshalPhase decodes the output of MarshalPhase.
func UnmarshalPhase(raw []byte) (Phase, error) {
	var env phaseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("conversation: decode phase envelope: %w", err)
	}
	switch env.Name {
	case PhaseGreeting:
		return Greeting{}, nil
	case PhaseConfirmingClient:
		return decodeVariant[ConfirmingClient](env)
	case PhaseCollectingDNI:
		return decodeVariant[CollectingDNI](env)
	case PhaseCheckingEligibility:
		return decodeVariant[CheckingEligibility](env)
	case PhaseOfferingDNIRetry:
		return decodeVariant[OfferingDNIRetry](env)
	case PhaseCollectingAge:
		return decodeVariant[CollectingAge](env)
	case PhaseOfferingProducts:
		return decodeVariant[OfferingProducts](env)
	case PhaseHandlingObjection:
		return decodeVariant[HandlingObjection](env)
	case PhaseClosing:
		return decodeVariant[Closing](env)
	case PhaseEscalated:
		return decodeVariant[Escalated](env)
	case PhaseWaitingForRecovery:
		return decodeVariant[WaitingForRecovery](env)
	default:
		return nil, fmt.Errorf("conversation: unknown phase %q", env.Name)
	}
}

func decodeVariant[T Phase](env phaseEnvelope) (Phase, error) {
	var v T
	if len(env.Data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return nil, fmt.Errorf("conversation: decode phase %s: %w", env.Name, err)
	}
	return v, nil
}
