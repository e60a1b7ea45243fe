package conversation

// TransitionResult is what the engine returns for one invocation.
type TransitionResult interface {
	isTransition()
	Output() []Command
}

// Advance moves to a different phase variant.
type Advance struct {
	Next     Phase
	Commands []Command
}

// Update keeps the variant but changes its fields.
type Update struct {
	Next     Phase
	Commands []Command
}

// Stay leaves the phase untouched.
type Stay struct {
	Commands []Command
}

// NeedEnrichment suspends the engine until Request is executed. When
// PendingPhase is set the loop persists it before running the side effect
// and uses it as the current phase for the resumed call.
type NeedEnrichment struct {
	Request      EnrichmentRequest
	PendingPhase Phase
	Commands     []Command
}

// Escalate hands the customer to a human. Next is the phase the session is
// left in; nil means Escalated{Reason}.
type Escalate struct {
	Reason   string
	Next     Phase
	Commands []Command
}

func (Advance) isTransition()        {}
func (Update) isTransition()         {}
func (Stay) isTransition()           {}
func (NeedEnrichment) isTransition() {}
func (Escalate) isTransition()       {}

func (r Advance) Output() []Command        { return r.Commands }
func (r Update) Output() []Command         { return r.Commands }
func (r Stay) Output() []Command           { return r.Commands }
func (r NeedEnrichment) Output() []Command { return r.Commands }
func (r Escalate) Output() []Command       { return r.Commands }

// NextPhase returns the phase a result leaves the session in, given current.
// NeedEnrichment yields its pending phase when set.
func NextPhase(current Phase, r TransitionResult) Phase {
	switch res := r.(type) {
	case Advance:
		return res.Next
	case Update:
		return res.Next
	case Escalate:
		if res.Next != nil {
			return res.Next
		}
		return Escalated{Reason: res.Reason}
	case NeedEnrichment:
		if res.PendingPhase != nil {
			return res.PendingPhase
		}
		return current
	default:
		return current
	}
}
