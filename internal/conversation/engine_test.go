package conversation

import (
	"reflect"
	"testing"

	"github.com/wolfman30/creditsales-ai-platform/internal/catalog"
	"github.com/wolfman30/creditsales-ai-platform/internal/eligibility"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultEngineConfig())
}

func templatesOf(cmds []Command) []string {
	var out []string
	for _, c := range cmds {
		if st, ok := c.(SendText); ok {
			out = append(out, st.Template)
		}
	}
	return out
}

func hasTemplate(cmds []Command, tpl string) bool {
	for _, got := range templatesOf(cmds) {
		if got == tpl {
			return true
		}
	}
	return false
}

var testProducts = []catalog.Product{
	{ID: "tv-1", Name: "Smart TV 50", Brand: "Samsung", Category: "televisores", Price: 1800},
	{ID: "tv-2", Name: "Smart TV 43", Brand: "LG", Category: "televisores", Price: 1200},
	{ID: "tv-3", Name: "Smart TV 65", Brand: "Sony", Category: "televisores", Price: 4200},
	{ID: "tv-4", Name: "Smart TV 32", Brand: "Hisense", Category: "televisores", Price: 700},
}

func TestFastResumeSkipsEnrichment(t *testing.T) {
	e := newTestEngine()
	meta := Metadata{Segment: "fnb", Credit: 5000, Name: "Juan"}

	res := e.Transition(ConfirmingClient{}, "sí", meta, nil)

	adv, ok := res.(Advance)
	if !ok {
		t.Fatalf("expected Advance, got %T", res)
	}
	next, ok := adv.Next.(OfferingProducts)
	if !ok {
		t.Fatalf("expected offering_products, got %T", adv.Next)
	}
	if next.Segment != "fnb" || next.Credit != 5000 || next.Name != "Juan" {
		t.Fatalf("unexpected offering phase %+v", next)
	}
	if !hasTemplate(adv.Commands, TplWelcomeBack) {
		t.Fatalf("expected welcome back message, got %v", templatesOf(adv.Commands))
	}
}

func TestFastResumeAgeGatedSegmentAsksAge(t *testing.T) {
	e := newTestEngine()
	meta := Metadata{Segment: "gaso", Credit: 3000, Name: "Rosa"}

	res := e.Transition(ConfirmingClient{}, "si", meta, nil)
	if _, ok := NextPhase(ConfirmingClient{}, res).(CollectingAge); !ok {
		t.Fatalf("expected collecting_age, got %T", NextPhase(ConfirmingClient{}, res))
	}

	meta.AgeVerified = true
	res = e.Transition(ConfirmingClient{}, "si", meta, nil)
	if _, ok := NextPhase(ConfirmingClient{}, res).(OfferingProducts); !ok {
		t.Fatalf("expected offering_products after verified age, got %T", NextPhase(ConfirmingClient{}, res))
	}
}

func TestPatienceGetsExactlyOneReply(t *testing.T) {
	e := newTestEngine()

	res := e.Transition(CollectingDNI{}, "no lo tengo a la mano", Metadata{}, nil)

	stay, ok := res.(Stay)
	if !ok {
		t.Fatalf("expected Stay, got %T", res)
	}
	if n := CountOutbound(stay.Commands); n != 1 {
		t.Fatalf("expected exactly one outbound message, got %d", n)
	}
	if !hasTemplate(stay.Commands, TplDNIPatience) {
		t.Fatalf("expected patience template, got %v", templatesOf(stay.Commands))
	}
}

func TestUnderageClosesWithPolicy(t *testing.T) {
	e := newTestEngine()

	res := e.Transition(CollectingAge{Segment: "gaso", Credit: 2000, Name: "Luis"}, "22", Metadata{}, nil)

	adv, ok := res.(Advance)
	if !ok {
		t.Fatalf("expected Advance, got %T", res)
	}
	closing, ok := adv.Next.(Closing)
	if !ok {
		t.Fatalf("expected closing, got %T", adv.Next)
	}
	if closing.PurchaseConfirmed || closing.Reason != ReasonAgePolicy {
		t.Fatalf("unexpected closing %+v", closing)
	}
	for _, c := range adv.Commands {
		if st, ok := c.(SendText); ok && st.Template == TplAgePolicy {
			if st.Vars["min_age"] != "25" {
				t.Fatalf("expected min_age var 25, got %q", st.Vars["min_age"])
			}
			return
		}
	}
	t.Fatalf("expected age policy message, got %v", templatesOf(adv.Commands))
}

func TestAgeAtThresholdOffersProducts(t *testing.T) {
	e := newTestEngine()
	res := e.Transition(CollectingAge{Segment: "gaso", Credit: 2000}, "tengo 25 años", Metadata{}, nil)
	if _, ok := NextPhase(CollectingAge{}, res).(OfferingProducts); !ok {
		t.Fatalf("expected offering_products, got %T", NextPhase(CollectingAge{}, res))
	}
	res = e.Transition(CollectingAge{}, "no se", Metadata{}, nil)
	if !hasTemplate(res.Output(), TplAskAgeNumeric) {
		t.Fatalf("expected numeric re-prompt, got %v", templatesOf(res.Output()))
	}
}

func TestCollectingDNI(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name      string
		phase     CollectingDNI
		message   string
		meta      Metadata
		wantType  string
		wantTpl   string
		wantQuiet bool
	}{
		{name: "valid dni", message: "mi dni es 45678912", wantType: "need", wantTpl: TplCheckingDNI},
		{name: "ack stays silent", message: "ok", wantType: "stay", wantQuiet: true},
		{name: "stall stays silent", message: "ahorita te lo mando", wantType: "stay", wantQuiet: true},
		{name: "short noise", message: "?", wantType: "stay", wantQuiet: true},
		{name: "bad dni", message: "1234567", wantType: "update", wantTpl: TplDNIInvalid},
		{name: "unrelated text reprompts", message: "quiero un televisor", wantType: "update", wantTpl: TplAskDNIAgain},
		{name: "reprompt limit", phase: CollectingDNI{Attempts: 3}, message: "quiero un televisor", wantType: "stay", wantQuiet: true},
		{name: "already attempted", message: "45678912", meta: Metadata{AttemptedDNIs: []string{"45678912"}}, wantType: "stay", wantTpl: TplDNIAlreadyAttempted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Transition(tt.phase, tt.message, tt.meta, nil)
			switch tt.wantType {
			case "need":
				need, ok := res.(NeedEnrichment)
				if !ok {
					t.Fatalf("expected NeedEnrichment, got %T", res)
				}
				req, ok := need.Request.(CheckEligibilityRequest)
				if !ok || req.DNI != "45678912" {
					t.Fatalf("unexpected request %#v", need.Request)
				}
				if pending, ok := need.PendingPhase.(CheckingEligibility); !ok || pending.DNI != "45678912" {
					t.Fatalf("unexpected pending phase %#v", need.PendingPhase)
				}
			case "stay":
				if _, ok := res.(Stay); !ok {
					t.Fatalf("expected Stay, got %T", res)
				}
			case "update":
				if _, ok := res.(Update); !ok {
					t.Fatalf("expected Update, got %T", res)
				}
			}
			if tt.wantQuiet && CountOutbound(res.Output()) != 0 {
				t.Fatalf("expected no outbound, got %v", templatesOf(res.Output()))
			}
			if tt.wantTpl != "" && !hasTemplate(res.Output(), tt.wantTpl) {
				t.Fatalf("expected %s, got %v", tt.wantTpl, templatesOf(res.Output()))
			}
		})
	}
}

func TestConfirmingClientAmbiguousRepromptsOnce(t *testing.T) {
	e := newTestEngine()
	res := e.Transition(ConfirmingClient{}, "hola buenas", Metadata{}, nil)
	upd, ok := res.(Update)
	if !ok || !upd.Next.(ConfirmingClient).Reprompted {
		t.Fatalf("expected reprompt update, got %#v", res)
	}
	res = e.Transition(upd.Next, "hola buenas", Metadata{}, nil)
	if _, ok := NextPhase(upd.Next, res).(CollectingDNI); !ok {
		t.Fatalf("expected collecting_dni after second ambiguous reply, got %T", NextPhase(upd.Next, res))
	}
	res = e.Transition(ConfirmingClient{}, "no", Metadata{}, nil)
	if c, ok := NextPhase(ConfirmingClient{}, res).(Closing); !ok || c.Reason != ReasonNotClient {
		t.Fatalf("expected not_client closing, got %#v", NextPhase(ConfirmingClient{}, res))
	}
}

func TestCheckingEligibilityOutcomes(t *testing.T) {
	e := newTestEngine()
	phase := CheckingEligibility{DNI: "45678912"}

	t.Run("no enrichment reissues request", func(t *testing.T) {
		res := e.Transition(phase, "hola?", Metadata{}, nil)
		need, ok := res.(NeedEnrichment)
		if !ok || need.Request.Kind() != KindCheckEligibility {
			t.Fatalf("expected eligibility request, got %#v", res)
		}
	})

	t.Run("approved non gated", func(t *testing.T) {
		res := e.Transition(phase, "", Metadata{}, EligibilityChecked{DNI: "45678912", Result: eligibility.Result{
			Status: eligibility.StatusEligible, Segment: "fnb", Credit: 2500, Name: "ANA PEREZ", Provider: "fnb",
		}})
		next, ok := NextPhase(phase, res).(OfferingProducts)
		if !ok || next.Credit != 2500 {
			t.Fatalf("expected offering with credit, got %#v", NextPhase(phase, res))
		}
		for _, c := range res.Output() {
			if st, ok := c.(SendText); ok && st.Template == TplEligibleOffer && st.Vars["name"] != "Ana" {
				t.Fatalf("expected first name Ana, got %q", st.Vars["name"])
			}
		}
	})

	t.Run("approved gated asks age", func(t *testing.T) {
		res := e.Transition(phase, "", Metadata{}, EligibilityChecked{Result: eligibility.Result{
			Status: eligibility.StatusEligible, Segment: "gaso", Credit: 2500,
		}})
		if _, ok := NextPhase(phase, res).(CollectingAge); !ok {
			t.Fatalf("expected collecting_age, got %T", NextPhase(phase, res))
		}
	})

	t.Run("below threshold offers retry", func(t *testing.T) {
		res := e.Transition(phase, "", Metadata{}, EligibilityChecked{Result: eligibility.Result{
			Status: eligibility.StatusEligible, Segment: "fnb", Credit: 50,
		}})
		if retry, ok := NextPhase(phase, res).(OfferingDNIRetry); !ok || retry.PreviousDNI != "45678912" {
			t.Fatalf("expected dni retry, got %#v", NextPhase(phase, res))
		}
	})

	t.Run("second rejection closes", func(t *testing.T) {
		meta := Metadata{AttemptedDNIs: []string{"11112222"}}
		res := e.Transition(phase, "", meta, EligibilityChecked{Result: eligibility.NotEligible("fnb")})
		if c, ok := NextPhase(phase, res).(Closing); !ok || c.Reason != ReasonNotEligible {
			t.Fatalf("expected not eligible closing, got %#v", NextPhase(phase, res))
		}
	})

	t.Run("both providers down parks customer", func(t *testing.T) {
		res := e.Transition(phase, "", Metadata{}, EligibilityChecked{Result: eligibility.NeedsHuman(eligibility.HandoffBothProvidersDown)})
		esc, ok := res.(Escalate)
		if !ok || esc.Reason != ReasonBothProvidersDown {
			t.Fatalf("expected escalate both_providers_down, got %#v", res)
		}
		if w, ok := esc.Next.(WaitingForRecovery); !ok || w.DNI != "45678912" {
			t.Fatalf("expected waiting_for_recovery, got %#v", esc.Next)
		}
		for _, c := range esc.Commands {
			if _, ok := c.(NotifyTeam); ok {
				t.Fatalf("outage is already alerted by the orchestrator and the escalation event")
			}
		}
	})
}

func TestWaitingForRecovery(t *testing.T) {
	e := newTestEngine()
	phase := WaitingForRecovery{DNI: "45678912"}

	if res := e.Transition(phase, "hola??", Metadata{}, nil); CountOutbound(res.Output()) != 0 {
		t.Fatalf("parked customer messages should be absorbed")
	}
	res := e.Transition(phase, "", Metadata{}, EligibilityChecked{Result: eligibility.NeedsHuman(eligibility.HandoffBothProvidersDown)})
	if _, ok := res.(Stay); !ok {
		t.Fatalf("expected Stay while still down, got %T", res)
	}
	res = e.Transition(phase, "", Metadata{}, EligibilityChecked{Result: eligibility.Result{
		Status: eligibility.StatusEligible, Segment: "fnb", Credit: 900,
	}})
	if _, ok := NextPhase(phase, res).(OfferingProducts); !ok {
		t.Fatalf("expected recovery to offer products, got %T", NextPhase(phase, res))
	}
}

func TestOfferingProductsPriority(t *testing.T) {
	e := newTestEngine()
	base := OfferingProducts{Segment: "fnb", Credit: 2000, Name: "Juan", Category: "televisores", ShownProducts: testProducts[:3]}

	t.Run("price objection beats rejection", func(t *testing.T) {
		res := e.Transition(base, "no gracias, está muy caro", Metadata{}, nil)
		if obj, ok := NextPhase(base, res).(HandlingObjection); !ok || obj.Objections != 1 {
			t.Fatalf("expected objection, got %#v", NextPhase(base, res))
		}
	})

	t.Run("rejection closes", func(t *testing.T) {
		res := e.Transition(base, "no me interesa", Metadata{}, nil)
		if c, ok := NextPhase(base, res).(Closing); !ok || c.Reason != ReasonRejected {
			t.Fatalf("expected rejected closing, got %#v", NextPhase(base, res))
		}
	})

	t.Run("purchase by ordinal", func(t *testing.T) {
		res := e.Transition(base, "quiero el segundo", Metadata{}, nil)
		c, ok := NextPhase(base, res).(Closing)
		if !ok || !c.PurchaseConfirmed || c.Product != "Smart TV 43" {
			t.Fatalf("expected purchase of second product, got %#v", NextPhase(base, res))
		}
	})

	t.Run("purchase by brand", func(t *testing.T) {
		res := e.Transition(base, "me llevo el Sony", Metadata{}, nil)
		c, ok := NextPhase(base, res).(Closing)
		if !ok || c.Product != "Smart TV 65" {
			t.Fatalf("expected sony purchase, got %#v", NextPhase(base, res))
		}
	})

	t.Run("negated price words do not block a purchase", func(t *testing.T) {
		cases := map[string]string{
			"quiero el segundo, no es caro":               "Smart TV 43",
			"me gusta demasiado, me llevo el Sony":        "Smart TV 65",
			"si, me interesa el primero que no esta caro": testProducts[0].Name,
		}
		for msg, want := range cases {
			res := e.Transition(base, msg, Metadata{}, nil)
			c, ok := NextPhase(base, res).(Closing)
			if !ok || !c.PurchaseConfirmed || c.Product != want {
				t.Fatalf("%q: expected purchase of %s, got %#v", msg, want, NextPhase(base, res))
			}
		}
	})

	t.Run("price word without negation is an objection", func(t *testing.T) {
		for _, msg := range []string{"esta muy caro", "me parece caro", "cuesta demasiado"} {
			res := e.Transition(base, msg, Metadata{}, nil)
			if _, ok := NextPhase(base, res).(HandlingObjection); !ok {
				t.Fatalf("%q: expected objection, got %#v", msg, NextPhase(base, res))
			}
		}
	})

	t.Run("unresolved purchase asks which", func(t *testing.T) {
		res := e.Transition(base, "lo quiero", Metadata{}, nil)
		if !hasTemplate(res.Output(), TplWhichProduct) {
			t.Fatalf("expected which product prompt, got %v", templatesOf(res.Output()))
		}
	})

	t.Run("category keyword fetches products", func(t *testing.T) {
		res := e.Transition(base, "tienen celulares?", Metadata{}, nil)
		need, ok := res.(NeedEnrichment)
		if !ok {
			t.Fatalf("expected NeedEnrichment, got %T", res)
		}
		if req, ok := need.Request.(FetchProductsRequest); !ok || req.Category != "celulares" {
			t.Fatalf("unexpected request %#v", need.Request)
		}
	})

	t.Run("free text goes to question detection", func(t *testing.T) {
		res := e.Transition(base, "cuantas cuotas serian?", Metadata{}, nil)
		need, ok := res.(NeedEnrichment)
		if !ok || need.Request.Kind() != KindDetectQuestion {
			t.Fatalf("expected detect question, got %#v", res)
		}
	})
}

func TestOfferingEnrichmentChain(t *testing.T) {
	e := newTestEngine()
	base := OfferingProducts{Segment: "fnb", Credit: 2000}

	res := e.Transition(base, "algo", Metadata{}, QuestionDetected{IsQuestion: false})
	if need, ok := res.(NeedEnrichment); !ok || need.Request.Kind() != KindShouldEscalate {
		t.Fatalf("expected should_escalate, got %#v", res)
	}
	res = e.Transition(base, "algo", Metadata{}, EscalationDecided{ShouldEscalate: false})
	if need, ok := res.(NeedEnrichment); !ok || need.Request.Kind() != KindExtractCategory {
		t.Fatalf("expected extract_category, got %#v", res)
	}
	res = e.Transition(base, "algo", Metadata{}, CategoryExtracted{})
	if need, ok := res.(NeedEnrichment); !ok || need.Request.Kind() != KindFetchCategories {
		t.Fatalf("expected fetch_categories, got %#v", res)
	}
	res = e.Transition(base, "algo", Metadata{}, EscalationDecided{ShouldEscalate: true})
	if esc, ok := res.(Escalate); !ok || esc.Reason != ReasonCustomerRequest {
		t.Fatalf("expected customer_request escalation, got %#v", res)
	}

	res = e.Transition(base, "tv", Metadata{}, ProductsFetched{Category: "televisores", Products: testProducts})
	upd, ok := res.(Update)
	if !ok {
		t.Fatalf("expected Update, got %T", res)
	}
	shown := upd.Next.(OfferingProducts).ShownProducts
	if len(shown) != 3 || shown[0].ID != "tv-4" {
		t.Fatalf("expected three affordable products cheapest first, got %+v", shown)
	}
	var images int
	for _, c := range upd.Commands {
		if _, ok := c.(SendImage); ok {
			images++
		}
	}
	if images != 3 {
		t.Fatalf("expected an image per product, got %d", images)
	}
}

func TestObjectionsEscalateBeyondCap(t *testing.T) {
	e := newTestEngine()
	var phase Phase = HandlingObjection{Segment: "fnb", Credit: 2000, ShownProducts: testProducts[:2], Objections: 1}

	for i := 0; i < 2; i++ {
		res := e.Transition(phase, "sigue muy caro", Metadata{}, nil)
		if _, ok := res.(Update); !ok {
			t.Fatalf("objection %d: expected Update, got %T", i+2, res)
		}
		if !hasTemplate(res.Output(), TplObjectionAlternative) {
			t.Fatalf("expected alternative offer, got %v", templatesOf(res.Output()))
		}
		phase = NextPhase(phase, res)
	}
	res := e.Transition(phase, "muy caro", Metadata{}, nil)
	esc, ok := res.(Escalate)
	if !ok || esc.Reason != ReasonMultipleObjections {
		t.Fatalf("expected multiple_objections escalation, got %#v", res)
	}
}

func TestObjectionsCountAcrossOtherMessages(t *testing.T) {
	e := newTestEngine()
	var phase Phase = OfferingProducts{Segment: "fnb", Credit: 2000, ShownProducts: testProducts[:3]}

	for i := 1; i <= 3; i++ {
		res := e.Transition(phase, "muy caro", Metadata{}, nil)
		phase = NextPhase(phase, res)
		obj, ok := phase.(HandlingObjection)
		if !ok || obj.Objections != i {
			t.Fatalf("objection %d: got %#v", i, phase)
		}

		res = e.Transition(phase, "cuantas cuotas serian?", Metadata{}, nil)
		need, ok := res.(NeedEnrichment)
		if !ok {
			t.Fatalf("expected NeedEnrichment, got %T", res)
		}
		phase = need.PendingPhase
	}

	res := e.Transition(phase, "muy caro", Metadata{}, nil)
	esc, ok := res.(Escalate)
	if !ok || esc.Reason != ReasonMultipleObjections {
		t.Fatalf("expected multiple_objections escalation, got %#v", res)
	}
}

func TestObjectionCountSurvivesReturnToOffering(t *testing.T) {
	e := newTestEngine()
	phase := HandlingObjection{Segment: "fnb", Credit: 2000, ShownProducts: testProducts[:3], Objections: 2}

	res := e.Transition(phase, "cuantas cuotas serian?", Metadata{}, nil)
	need, ok := res.(NeedEnrichment)
	if !ok {
		t.Fatalf("expected NeedEnrichment, got %T", res)
	}
	offer, ok := need.PendingPhase.(OfferingProducts)
	if !ok || offer.Objections != 2 {
		t.Fatalf("expected pending offering with 2 objections, got %#v", need.PendingPhase)
	}

	res = e.Transition(offer, "sigue caro", Metadata{}, nil)
	if _, ok := res.(Advance); !ok {
		t.Fatalf("expected Advance back to objection, got %T", res)
	}
	if obj, ok := NextPhase(offer, res).(HandlingObjection); !ok || obj.Objections != 3 {
		t.Fatalf("expected third objection, got %#v", NextPhase(offer, res))
	}
	if !hasTemplate(res.Output(), TplObjectionAlternative) {
		t.Fatalf("expected alternative offer, got %v", templatesOf(res.Output()))
	}
}

func TestObjectionAffirmativeReturnsToOffering(t *testing.T) {
	e := newTestEngine()
	phase := HandlingObjection{Segment: "fnb", Credit: 2000, Category: "televisores", Objections: 1}

	res := e.Transition(phase, "si", Metadata{}, nil)
	need, ok := res.(NeedEnrichment)
	if !ok {
		t.Fatalf("expected NeedEnrichment, got %T", res)
	}
	if _, ok := need.PendingPhase.(OfferingProducts); !ok {
		t.Fatalf("expected pending offering phase, got %T", need.PendingPhase)
	}
}

func TestClosingReopens(t *testing.T) {
	e := newTestEngine()
	meta := Metadata{Segment: "fnb", Credit: 3000, Name: "Juan"}

	res := e.Transition(Closing{PurchaseConfirmed: true, Reason: ReasonPurchase}, "quiero otro producto", meta, nil)
	if _, ok := NextPhase(Closing{}, res).(OfferingProducts); !ok {
		t.Fatalf("expected reopened offering, got %T", NextPhase(Closing{}, res))
	}

	res = e.Transition(Closing{Reason: ReasonAgePolicy}, "quiero otro producto", meta, nil)
	if _, ok := NextPhase(Closing{}, res).(OfferingProducts); ok {
		t.Fatalf("age policy closings must not reopen")
	}

	res = e.Transition(Closing{Reason: ReasonPurchase}, "gracias", meta, nil)
	if len(res.Output()) != 0 {
		t.Fatalf("ack after closing should be silent")
	}
}

func TestEscalatedIsTerminal(t *testing.T) {
	e := newTestEngine()
	res := e.Transition(Escalated{Reason: "x"}, "hola", Metadata{}, nil)
	if _, ok := res.(Stay); !ok || len(res.Output()) != 0 {
		t.Fatalf("expected silent Stay, got %#v", res)
	}
}

func TestTransitionIsDeterministic(t *testing.T) {
	e := newTestEngine()
	meta := Metadata{Segment: "fnb", Credit: 2000, Name: "Juan", AttemptedDNIs: []string{"45678912"}}
	phases := allPhaseSamples()
	messages := []string{"", "sí", "no", "ok", "45678912", "1234567", "22", "muy caro", "quiero el primero", "televisores", "qué tienen?", "no lo tengo a la mano"}

	for _, phase := range phases {
		for _, msg := range messages {
			first := e.Transition(phase, msg, meta, nil)
			second := e.Transition(phase, msg, meta, nil)
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("%s %q: results differ: %#v vs %#v", phase.Kind(), msg, first, second)
			}
		}
	}
}

func TestNextPhaseAlwaysKnown(t *testing.T) {
	e := newTestEngine()
	metas := []Metadata{{}, {Segment: "gaso", Credit: 800, Name: "Rosa"}}
	messages := []string{"", "si", "no", "ok", "45678912", "12345", "30", "caro", "lo quiero", "celular", "gracias"}
	enrichments := []EnrichmentResult{nil}
	for _, kind := range AllEnrichmentKinds {
		enrichments = append(enrichments, DefaultResult(sampleRequest(kind)))
	}

	for _, phase := range allPhaseSamples() {
		for _, meta := range metas {
			for _, msg := range messages {
				for _, enr := range enrichments {
					res := e.Transition(phase, msg, meta, enr)
					if res == nil {
						t.Fatalf("%s %q: nil result", phase.Kind(), msg)
					}
					if next := NextPhase(phase, res); !KnownPhase(next) {
						t.Fatalf("%s %q: unknown next phase %#v", phase.Kind(), msg, next)
					}
				}
			}
		}
	}
}

func TestPhasePatch(t *testing.T) {
	patch := PhasePatch(CollectingAge{}, OfferingProducts{Category: "celulares"})
	if patch.AgeVerified == nil || !*patch.AgeVerified {
		t.Fatalf("expected age verified")
	}
	if patch.LastCategory == nil || *patch.LastCategory != "celulares" {
		t.Fatalf("expected last category")
	}
	if !PhasePatch(Greeting{}, ConfirmingClient{}).Empty() {
		t.Fatalf("expected empty patch")
	}
}

func TestEligibilityPatch(t *testing.T) {
	e := newTestEngine()
	approved := e.EligibilityPatch("45678912", eligibility.Result{Status: eligibility.StatusEligible, Segment: "fnb", Credit: 900, Name: "Ana"})
	meta := Metadata{}.Apply(approved)
	if !meta.Approved() || meta.DNI != "45678912" || !meta.Attempted("45678912") {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if !e.EligibilityPatch("1", eligibility.NeedsHuman(eligibility.HandoffBothProvidersDown)).Empty() {
		t.Fatalf("needs_human must not record an attempt")
	}
	rejected := Metadata{}.Apply(e.EligibilityPatch("2", eligibility.NotEligible("fnb")))
	if rejected.Approved() || !rejected.Attempted("2") {
		t.Fatalf("unexpected metadata %+v", rejected)
	}
}

func allPhaseSamples() []Phase {
	return []Phase{
		Greeting{},
		ConfirmingClient{},
		ConfirmingClient{Reprompted: true},
		CollectingDNI{},
		CollectingDNI{Attempts: 3},
		CheckingEligibility{DNI: "45678912"},
		OfferingDNIRetry{PreviousDNI: "45678912"},
		CollectingAge{Segment: "gaso", Credit: 800},
		OfferingProducts{Segment: "fnb", Credit: 2000, ShownProducts: testProducts[:2]},
		HandlingObjection{Segment: "fnb", Credit: 2000, Objections: 2},
		Closing{PurchaseConfirmed: true, Reason: ReasonPurchase},
		Escalated{Reason: "x"},
		WaitingForRecovery{DNI: "45678912"},
	}
}

func sampleRequest(kind EnrichmentKind) EnrichmentRequest {
	switch kind {
	case KindCheckEligibility:
		return CheckEligibilityRequest{DNI: "45678912"}
	case KindDetectQuestion:
		return DetectQuestionRequest{}
	case KindShouldEscalate:
		return ShouldEscalateRequest{}
	case KindExtractCategory:
		return ExtractCategoryRequest{}
	case KindAnswerQuestion:
		return AnswerQuestionRequest{}
	case KindFetchCategories:
		return FetchCategoriesRequest{}
	case KindFetchProducts:
		return FetchProductsRequest{Category: "celulares"}
	default:
		return GenerateBacklogApologyRequest{}
	}
}
