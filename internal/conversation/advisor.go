package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/creditsales-ai-platform/internal/catalog"
	"github.com/wolfman30/creditsales-ai-platform/internal/llm"
)

const advisorPersona = "Eres un asesor de ventas a credito que atiende por WhatsApp en Peru. " +
	"Respondes en espanol, con frases cortas y amables. Nunca inventas precios ni condiciones."

// Advisor answers the language enrichment kinds with an LLM.
type Advisor struct {
	client     llm.Client
	model      string
	categories []string
}

// NewAdvisor builds an advisor. categories lists the names ExtractCategory may return.
func NewAdvisor(client llm.Client, model string, categories []string) *Advisor {
	if client == nil {
		panic("conversation: llm client required")
	}
	return &Advisor{client: client, model: model, categories: categories}
}

func (a *Advisor) Handle(ctx context.Context, _ string, req EnrichmentRequest) (EnrichmentResult, error) {
	switch r := req.(type) {
	case DetectQuestionRequest:
		answer, err := a.ask(ctx, 5, "Responde solo SI o NO: el mensaje del cliente es una pregunta?", r.Message)
		if err != nil {
			return nil, err
		}
		return QuestionDetected{IsQuestion: isYes(answer)}, nil

	case ShouldEscalateRequest:
		answer, err := a.ask(ctx, 60,
			`Decide si el cliente pide hablar con una persona, esta molesto o tiene un reclamo. `+
				`Responde solo JSON: {"escalate": true|false, "reason": "texto corto"}`, r.Message)
		if err != nil {
			return nil, err
		}
		return parseEscalation(answer)

	case ExtractCategoryRequest:
		prompt := fmt.Sprintf("Categorias disponibles: %s. Responde solo con la categoria que el cliente busca, o NINGUNA.",
			strings.Join(a.categories, ", "))
		answer, err := a.ask(ctx, 10, prompt, r.Message)
		if err != nil {
			return nil, err
		}
		return CategoryExtracted{Category: a.matchCategory(answer)}, nil

	case AnswerQuestionRequest:
		var ctxLines []string
		if r.Category != "" {
			ctxLines = append(ctxLines, "Categoria que esta viendo: "+r.Category)
		}
		if len(r.Products) > 0 {
			ctxLines = append(ctxLines, "Productos mostrados: "+strings.Join(r.Products, "; "))
		}
		prompt := "Responde la pregunta del cliente en maximo dos oraciones. " +
			"Si no sabes la respuesta, ofrece que un asesor lo contacte.\n" + strings.Join(ctxLines, "\n")
		answer, err := a.ask(ctx, 200, prompt, r.Message)
		if err != nil {
			return nil, err
		}
		return QuestionAnswered{Answer: answer}, nil

	case GenerateBacklogApologyRequest:
		prompt := fmt.Sprintf("Escribe una disculpa breve por responder tarde (unos %d minutos). "+
			"Invita al cliente a continuar. No uses mas de una oracion.", int(r.Delay.Minutes()))
		answer, err := a.ask(ctx, 80, prompt, "Cliente: "+r.Name)
		if err != nil {
			return nil, err
		}
		return BacklogApologyGenerated{Text: answer}, nil

	default:
		return nil, fmt.Errorf("conversation: advisor cannot handle %T", req)
	}
}

func (a *Advisor) ask(ctx context.Context, maxTokens int32, instruction, message string) (string, error) {
	if v := ScanCustomerMessage(message); v.Blocked {
		return "", fmt.Errorf("%w: inbound %s", ErrGuardBlocked, strings.Join(v.Reasons, ","))
	}
	resp, err := a.client.Complete(ctx, llm.Request{
		Model:       a.model,
		System:      []string{advisorPersona, instruction},
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: message}},
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: llm completion: %w", err)
	}
	answer := strings.TrimSpace(resp.Text)
	if v := ScanModelReply(answer); v.Blocked {
		return "", fmt.Errorf("%w: reply %s", ErrGuardBlocked, strings.Join(v.Reasons, ","))
	}
	return answer, nil
}

func (a *Advisor) matchCategory(answer string) string {
	got := normalize(strings.Trim(answer, " .\"'"))
	for _, c := range a.categories {
		if normalize(c) == got {
			return catalog.NormalizeCategory(c)
		}
	}
	if c, ok := matchCategory(got); ok {
		return c
	}
	return ""
}

var yesPattern = regexp.MustCompile(`^(si|yes)\b`)

func isYes(answer string) bool {
	return yesPattern.MatchString(normalize(answer))
}

func parseEscalation(answer string) (EnrichmentResult, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("conversation: escalation answer is not json: %q", answer)
	}
	var decoded struct {
		Escalate bool   `json:"escalate"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(answer[start:end+1]), &decoded); err != nil {
		return nil, fmt.Errorf("conversation: decode escalation answer: %w", err)
	}
	reason := ""
	if decoded.Escalate {
		reason = ReasonCustomerRequest
	}
	return EscalationDecided{ShouldEscalate: decoded.Escalate, Reason: reason}, nil
}
