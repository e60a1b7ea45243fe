package conversation

import (
	"strconv"

	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
)

func (e *Engine) greeting(meta Metadata) TransitionResult {
	if meta.LastCategory != "" {
		return Advance{
			Next: ConfirmingClient{},
			Commands: []Command{
				track("conversation_started", map[string]string{"returning": "true"}),
				text(TplGreetingReturning, map[string]string{"name": firstName(meta.Name), "category": meta.LastCategory}),
			},
		}
	}
	return Advance{
		Next: ConfirmingClient{},
		Commands: []Command{
			track("conversation_started", map[string]string{"returning": "false"}),
			text(TplGreeting, nil),
		},
	}
}

func (e *Engine) confirmingClient(p ConfirmingClient, msg string, meta Metadata) TransitionResult {
	dni, hasDNI := extractDNI(msg)
	switch {
	case isAffirmative(msg):
		if meta.Approved() {
			return e.fastResume(meta)
		}
		if hasDNI {
			return e.submitDNI(p, dni, meta)
		}
		return Advance{Next: CollectingDNI{}, Commands: []Command{text(TplAskDNI, nil)}}
	case isNegative(msg):
		return Advance{
			Next: Closing{Reason: ReasonNotClient},
			Commands: []Command{
				track("not_client", nil),
				text(TplNotClient, nil),
			},
		}
	case hasDNI:
		return e.submitDNI(p, dni, meta)
	case !p.Reprompted:
		return Update{Next: ConfirmingClient{Reprompted: true}, Commands: []Command{text(TplConfirmReprompt, nil)}}
	default:
		return Advance{Next: CollectingDNI{}, Commands: []Command{text(TplAskDNI, nil)}}
	}
}

// fastResume skips the ID lookup for a customer approved earlier in the session.
func (e *Engine) fastResume(meta Metadata) TransitionResult {
	vars := map[string]string{"name": firstName(meta.Name), "credit": formatAmount(meta.Credit)}
	if meta.Segment == e.cfg.AgeGatedSegment && !meta.AgeVerified {
		return Advance{
			Next:     CollectingAge{Segment: meta.Segment, Credit: meta.Credit, Name: meta.Name},
			Commands: []Command{track("fast_resume", map[string]string{"segment": meta.Segment}), text(TplAskAge, vars)},
		}
	}
	return Advance{
		Next:     OfferingProducts{Segment: meta.Segment, Credit: meta.Credit, Name: meta.Name, Category: meta.LastCategory},
		Commands: []Command{track("fast_resume", map[string]string{"segment": meta.Segment}), text(TplWelcomeBack, vars)},
	}
}

// submitDNI requests an eligibility check for dni unless it was already tried.
func (e *Engine) submitDNI(current Phase, dni string, meta Metadata) TransitionResult {
	if meta.Attempted(dni) {
		cmds := []Command{text(TplDNIAlreadyAttempted, nil)}
		if _, ok := current.(CollectingDNI); ok {
			return Stay{Commands: cmds}
		}
		return Advance{Next: CollectingDNI{}, Commands: cmds}
	}
	return NeedEnrichment{
		Request:      CheckEligibilityRequest{DNI: dni},
		PendingPhase: CheckingEligibility{DNI: dni},
		Commands: []Command{
			track("dni_submitted", nil),
			text(TplCheckingDNI, nil),
		},
	}
}

func (e *Engine) collectingDNI(p CollectingDNI, msg string, meta Metadata) TransitionResult {
	if dni, ok := extractDNI(msg); ok {
		return e.submitDNI(p, dni, meta)
	}
	if isPatience(msg) {
		return Stay{Commands: []Command{text(TplDNIPatience, nil)}}
	}
	// acks, stalling and typing noise get no reply
	if isAck(msg) || isStall(msg) || len([]rune(msg)) < e.cfg.MinDNIMessageLength {
		return Stay{}
	}
	if looksLikeBadDNI(msg) {
		return Update{Next: CollectingDNI{Attempts: p.Attempts + 1}, Commands: []Command{text(TplDNIInvalid, nil)}}
	}
	if p.Attempts >= e.cfg.MaxDNIReprompts {
		return Stay{}
	}
	return Update{Next: CollectingDNI{Attempts: p.Attempts + 1}, Commands: []Command{text(TplAskDNIAgain, nil)}}
}

func (e *Engine) checkingEligibility(p CheckingEligibility, meta Metadata, enrichment EnrichmentResult) TransitionResult {
	switch r := enrichment.(type) {
	case nil:
		return NeedEnrichment{Request: CheckEligibilityRequest{DNI: p.DNI}, PendingPhase: p}
	case EligibilityChecked:
		return e.applyEligibility(p.DNI, r.Result, meta)
	default:
		return Stay{}
	}
}

func (e *Engine) applyEligibility(dni string, res eligibility.Result, meta Metadata) TransitionResult {
	switch {
	case e.approved(res):
		props := map[string]string{"segment": res.Segment, "provider": res.Provider}
		vars := map[string]string{"name": firstName(res.Name), "credit": formatAmount(res.Credit)}
		if res.Segment == e.cfg.AgeGatedSegment && !meta.AgeVerified {
			return Advance{
				Next:     CollectingAge{Segment: res.Segment, Credit: res.Credit, Name: res.Name},
				Commands: []Command{track("eligibility_approved", props), text(TplAskAge, vars)},
			}
		}
		return Advance{
			Next:     OfferingProducts{Segment: res.Segment, Credit: res.Credit, Name: res.Name},
			Commands: []Command{track("eligibility_approved", props), text(TplEligibleOffer, vars)},
		}

	case res.Status == eligibility.StatusNeedsHuman && res.HandoffReason == eligibility.HandoffBothProvidersDown:
		return Escalate{
			Reason: ReasonBothProvidersDown,
			Next:   WaitingForRecovery{DNI: dni},
			Commands: []Command{
				text(TplOutageWait, map[string]string{"name": firstName(meta.Name)}),
			},
		}

	case res.Status == eligibility.StatusNeedsHuman:
		reason := res.HandoffReason
		if reason == "" {
			reason = "eligibility_review"
		}
		return Escalate{
			Reason:   reason,
			Next:     Escalated{Reason: reason},
			Commands: []Command{text(TplHandoff, nil), EscalateHandoff{Reason: reason}},
		}
	}

	// Not eligible, or eligible below the credit threshold. One more ID is
	// allowed before the conversation closes.
	attempts := attemptedWith(meta, dni)
	if attempts >= 2 {
		return Advance{
			Next:     Closing{Reason: ReasonNotEligible},
			Commands: []Command{track("eligibility_rejected", map[string]string{"final": "true"}), text(TplNotEligibleGoodbye, nil)},
		}
	}
	return Advance{
		Next:     OfferingDNIRetry{PreviousDNI: dni},
		Commands: []Command{track("eligibility_rejected", map[string]string{"final": "false"}), text(TplNotEligibleRetry, nil)},
	}
}

func (e *Engine) offeringDNIRetry(p OfferingDNIRetry, msg string, meta Metadata) TransitionResult {
	if dni, ok := extractDNI(msg); ok {
		if dni == p.PreviousDNI || meta.Attempted(dni) {
			return Stay{Commands: []Command{text(TplDNIAlreadyAttempted, nil)}}
		}
		return e.submitDNI(p, dni, meta)
	}
	switch {
	case isNegative(msg) || isRejection(msg):
		return Advance{Next: Closing{Reason: ReasonNotEligible}, Commands: []Command{text(TplNotEligibleGoodbye, nil)}}
	case isAffirmative(msg):
		return Advance{Next: CollectingDNI{}, Commands: []Command{text(TplAskOtherDNI, nil)}}
	case isAck(msg) || isStall(msg) || len([]rune(msg)) < e.cfg.MinDNIMessageLength:
		return Stay{}
	default:
		return Stay{Commands: []Command{text(TplRetryReprompt, nil)}}
	}
}

func (e *Engine) collectingAge(p CollectingAge, msg string) TransitionResult {
	age, ok := extractAge(msg)
	if !ok {
		return Stay{Commands: []Command{text(TplAskAgeNumeric, nil)}}
	}
	if age < e.cfg.MinAge {
		return Advance{
			Next: Closing{PurchaseConfirmed: false, Reason: ReasonAgePolicy},
			Commands: []Command{
				track("age_rejected", map[string]string{"age": strconv.Itoa(age)}),
				text(TplAgePolicy, map[string]string{"min_age": strconv.Itoa(e.cfg.MinAge)}),
			},
		}
	}
	return Advance{
		Next: OfferingProducts{Segment: p.Segment, Credit: p.Credit, Name: p.Name},
		Commands: []Command{
			track("age_verified", nil),
			text(TplEligibleOffer, map[string]string{"name": firstName(p.Name), "credit": formatAmount(p.Credit)}),
		},
	}
}

func (e *Engine) waitingForRecovery(p WaitingForRecovery, meta Metadata, enrichment EnrichmentResult) TransitionResult {
	r, ok := enrichment.(EligibilityChecked)
	if !ok {
		return Stay{}
	}
	if r.Result.Status == eligibility.StatusNeedsHuman && r.Result.HandoffReason == eligibility.HandoffBothProvidersDown {
		return Stay{}
	}
	return e.applyEligibility(p.DNI, r.Result, meta)
}

func attemptedWith(meta Metadata, dni string) int {
	if meta.Attempted(dni) {
		return len(meta.AttemptedDNIs)
	}
	return len(meta.AttemptedDNIs) + 1
}
