package conversation

import (
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
)

// Message template keys emitted by the engine. Wording lives in the
// templates catalog, not here.
const (
	TplGreeting             = "greeting"
	TplGreetingReturning    = "greeting_returning"
	TplConfirmReprompt      = "confirm_client_reprompt"
	TplNotClient            = "not_client"
	TplAskDNI               = "ask_dni"
	TplAskDNIAgain          = "ask_dni_again"
	TplDNIInvalid           = "dni_invalid"
	TplDNIAlreadyAttempted  = "dni_already_attempted"
	TplDNIPatience          = "dni_patience"
	TplCheckingDNI          = "checking_dni"
	TplEligibleOffer        = "eligible_offer"
	TplWelcomeBack          = "welcome_back_offer"
	TplAskAge               = "ask_age"
	TplAskAgeNumeric        = "ask_age_numeric"
	TplAgePolicy            = "age_policy_rejection"
	TplNotEligibleRetry     = "not_eligible_retry"
	TplNotEligibleGoodbye   = "not_eligible_goodbye"
	TplAskOtherDNI          = "ask_other_dni"
	TplRetryReprompt        = "dni_retry_reprompt"
	TplOutageWait           = "outage_wait"
	TplHandoff              = "handoff"
	TplProductsIntro        = "products_intro"
	TplNoProducts           = "no_products"
	TplCategoryMenu         = "category_menu"
	TplWhichProduct         = "which_product"
	TplConfirmProduct       = "confirm_product"
	TplPurchaseConfirmed    = "purchase_confirmed"
	TplRejectionGoodbye     = "rejection_goodbye"
	TplObjectionPrice       = "objection_price"
	TplObjectionAlternative = "objection_alternative"
	TplFallbackHelp         = "fallback_help"
	TplOfferAgain           = "offer_again"
	TplBacklogApology       = "backlog_apology"
)

// Escalation and closing reasons.
const (
	ReasonBothProvidersDown      = eligibility.HandoffBothProvidersDown
	ReasonMultipleObjections     = "multiple_objections"
	ReasonEnrichmentLoopExceeded = "enrichment_loop_exceeded"
	ReasonCustomerRequest        = "customer_request"
	ReasonAgePolicy              = "age_policy"
	ReasonNotEligible            = "not_eligible"
	ReasonNotClient              = "not_client"
	ReasonRejected               = "rejected"
	ReasonPurchase               = "purchase_confirmed"
)

// EngineConfig holds the business thresholds the state machine applies.
type EngineConfig struct {
	MinCredit     float64
	MinAge        int
	MaxObjections int
	// Messages shorter than this in collecting_dni are treated as noise.
	MinDNIMessageLength int
	// Segment that requires age verification before products are offered.
	AgeGatedSegment string
	// How many products are shown per category.
	ProductsPerPage int
	// Re-prompts for an ID before the engine goes quiet.
	MaxDNIReprompts int
}

// DefaultEngineConfig returns production thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinCredit:           100,
		MinAge:              25,
		MaxObjections:       3,
		MinDNIMessageLength: 3,
		AgeGatedSegment:     "gaso",
		ProductsPerPage:     3,
		MaxDNIReprompts:     3,
	}
}

// Engine is the conversation state machine. Transition is a pure function
// of its arguments: no I/O, no clock, no randomness.
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if cfg.MinAge <= 0 {
		cfg.MinAge = def.MinAge
	}
	if cfg.MaxObjections <= 0 {
		cfg.MaxObjections = def.MaxObjections
	}
	if cfg.MinDNIMessageLength <= 0 {
		cfg.MinDNIMessageLength = def.MinDNIMessageLength
	}
	if cfg.AgeGatedSegment == "" {
		cfg.AgeGatedSegment = def.AgeGatedSegment
	}
	if cfg.ProductsPerPage <= 0 {
		cfg.ProductsPerPage = def.ProductsPerPage
	}
	if cfg.MaxDNIReprompts <= 0 {
		cfg.MaxDNIReprompts = def.MaxDNIReprompts
	}
	return &Engine{cfg: cfg}
}

// Config returns the thresholds in use.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// Transition decides what happens with message in phase. enrichment is nil
// unless this call resumes after a side effect the engine requested.
func (e *Engine) Transition(phase Phase, message string, meta Metadata, enrichment EnrichmentResult) TransitionResult {
	msg := normalize(message)
	switch p := phase.(type) {
	case Greeting:
		return e.greeting(meta)
	case ConfirmingClient:
		return e.confirmingClient(p, msg, meta)
	case CollectingDNI:
		return e.collectingDNI(p, msg, meta)
	case CheckingEligibility:
		return e.checkingEligibility(p, meta, enrichment)
	case OfferingDNIRetry:
		return e.offeringDNIRetry(p, msg, meta)
	case CollectingAge:
		return e.collectingAge(p, msg)
	case OfferingProducts:
		return e.offeringProducts(p, message, msg, enrichment)
	case HandlingObjection:
		return e.handlingObjection(p, message, msg, enrichment)
	case Closing:
		return e.closing(p, message, msg, meta, enrichment)
	case Escalated:
		return Stay{}
	case WaitingForRecovery:
		return e.waitingForRecovery(p, meta, enrichment)
	default:
		// unknown or nil phase restarts the conversation
		return e.greeting(meta)
	}
}

// approved reports whether an eligibility result clears the credit threshold.
func (e *Engine) approved(res eligibility.Result) bool {
	return res.Eligible() && res.Credit >= e.cfg.MinCredit
}

// EligibilityPatch is the metadata written back after a check resolves. It
// is empty when the check did not resolve (needs_human).
func (e *Engine) EligibilityPatch(dni string, res eligibility.Result) MetadataPatch {
	switch {
	case e.approved(res):
		patch := MetadataPatch{
			DNI:           ptr(dni),
			Segment:       ptr(res.Segment),
			Credit:        ptr(res.Credit),
			AttemptedDNIs: []string{dni},
		}
		if res.Name != "" {
			patch.Name = ptr(res.Name)
		}
		if res.NSE != "" {
			patch.NSE = ptr(res.NSE)
		}
		return patch
	case res.Status == eligibility.StatusNeedsHuman:
		return MetadataPatch{}
	default:
		return MetadataPatch{AttemptedDNIs: []string{dni}}
	}
}

// PhasePatch is the metadata implied by moving from one phase to another:
// the category last browsed and whether the age gate was passed.
func PhasePatch(from, to Phase) MetadataPatch {
	var patch MetadataPatch
	switch next := to.(type) {
	case OfferingProducts:
		if next.Category != "" {
			patch.LastCategory = ptr(next.Category)
		}
		if _, ok := from.(CollectingAge); ok {
			patch.AgeVerified = ptr(true)
		}
	case HandlingObjection:
		if next.Category != "" {
			patch.LastCategory = ptr(next.Category)
		}
	}
	return patch
}
