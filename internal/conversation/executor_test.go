package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/wolfman30/creditsales-ai-platform/internal/events"
	"github.com/wolfman30/creditsales-ai-platform/internal/messaging/templates"
	"github.com/wolfman30/creditsales-ai-platform/pkg/logging"
)

func TestExecutorRunsCommandsInOrder(t *testing.T) {
	messenger := &fakeMessenger{}
	emitter := events.NewMemoryEmitter()
	x := NewCommandExecutor(messenger, templates.DefaultCatalog(), emitter, logging.Nop())

	sent, err := x.Execute(context.Background(), "51999000111", OfferingProducts{}, []Command{
		track("products_shown", map[string]string{"category": "televisores"}),
		text(TplProductsIntro, map[string]string{"category": "televisores", "credit": "2000"}),
		SendImage{Path: "https://cdn.example.com/tv.jpg", Caption: "Samsung TV - S/ 1200"},
		SendText{Text: "respuesta libre"},
		NotifyTeam{Reason: ReasonPurchase, Severity: events.SeverityInfo},
		EscalateHandoff{Reason: ReasonCustomerRequest},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sent != 3 {
		t.Fatalf("expected 3 outbound messages, got %d", sent)
	}
	if !strings.Contains(messenger.texts[0], "televisores") || messenger.texts[1] != "respuesta libre" {
		t.Fatalf("unexpected texts %v", messenger.texts)
	}
	if len(messenger.images) != 1 {
		t.Fatalf("expected one image, got %v", messenger.images)
	}
	recorded := emitter.Events()
	if len(recorded) != 2 || recorded[0].Type != events.CustomerTracked || recorded[1].Type != events.OperatorNotified {
		t.Fatalf("unexpected events %+v", recorded)
	}
	tracked := recorded[0].Payload.(events.CustomerTrackedV1)
	if tracked.Event != "products_shown" || tracked.Phase != string(PhaseOfferingProducts) {
		t.Fatalf("unexpected tracking payload %+v", tracked)
	}
}

func TestExecutorContinuesAfterFailure(t *testing.T) {
	messenger := &fakeMessenger{}
	x := NewCommandExecutor(messenger, templates.DefaultCatalog(), events.NewMemoryEmitter(), logging.Nop())

	sent, err := x.Execute(context.Background(), "c1", Greeting{}, []Command{
		text("no_such_template", nil),
		text(TplGreeting, nil),
	})
	if err == nil || !strings.Contains(err.Error(), "send_text") {
		t.Fatalf("expected wrapped render error, got %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected the second message to go out, got %d", sent)
	}

	messenger.failAll = true
	sent, err = x.Execute(context.Background(), "c1", Greeting{}, []Command{text(TplGreeting, nil)})
	if err == nil || sent != 0 {
		t.Fatalf("expected delivery failure, got sent=%d err=%v", sent, err)
	}
}

func TestEveryTemplateRenders(t *testing.T) {
	catalog := templates.DefaultCatalog()
	vars := map[string]string{
		"name": "Juan", "credit": "2000", "category": "celulares", "categories": "celulares, televisores",
		"product": "Galaxy A15", "price": "699", "min_age": "25",
	}
	keys := []string{
		TplGreeting, TplGreetingReturning, TplConfirmReprompt, TplNotClient, TplAskDNI, TplAskDNIAgain,
		TplDNIInvalid, TplDNIAlreadyAttempted, TplDNIPatience, TplCheckingDNI, TplEligibleOffer,
		TplWelcomeBack, TplAskAge, TplAskAgeNumeric, TplAgePolicy, TplNotEligibleRetry,
		TplNotEligibleGoodbye, TplAskOtherDNI, TplRetryReprompt, TplOutageWait, TplHandoff,
		TplProductsIntro, TplNoProducts, TplCategoryMenu, TplWhichProduct, TplConfirmProduct,
		TplPurchaseConfirmed, TplRejectionGoodbye, TplObjectionPrice, TplObjectionAlternative,
		TplFallbackHelp, TplOfferAgain, TplBacklogApology,
	}
	for _, key := range keys {
		out, err := catalog.Render(key, vars)
		if err != nil {
			t.Fatalf("template %s: %v", key, err)
		}
		if strings.TrimSpace(out) == "" {
			t.Fatalf("template %s rendered empty", key)
		}
	}
}
