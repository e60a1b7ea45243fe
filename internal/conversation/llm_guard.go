package conversation

import (
	"errors"
	"regexp"
	"strings"
)

// ErrGuardBlocked is returned by the advisor when a customer message or a
// model reply trips the guard. The loop then falls back to the default result.
var ErrGuardBlocked = errors.New("conversation: blocked by llm guard")

const (
	injectionBlockScore = 0.7
	extraSignalBoost    = 0.1
)

type guardPattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

// Inbound patterns run on normalize()d text, so accents are already gone.
var injectionPatterns = []guardPattern{
	{regexp.MustCompile(`(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|rules?|prompts?)`), "override", 0.9},
	{regexp.MustCompile(`(ignora|olvida|olvidate de)\s+(todas?\s+)?(las\s+|tus\s+)?(instrucciones|reglas|indicaciones)`), "override", 0.9},
	{regexp.MustCompile(`(you are now|ahora eres|actua como|act as)\s+(un|una|a|an)\s+`), "role_reassignment", 0.7},
	{regexp.MustCompile(`(system\s*prompt|prompt\s+del\s+sistema|<<\s*sys|new\s+instructions?\s*:|nuevas\s+instrucciones\s*:)`), "new_role", 0.9},
	{regexp.MustCompile(`(jailbreak|dan\s*mode|developer\s*mode|modo\s+desarrollador)`), "jailbreak", 0.9},
	{regexp.MustCompile(`(reveal|show|repeat|muestra|repite|dime)\s+(me\s+)?(your|tus|el)\s+(instructions|instrucciones|prompt|reglas)`), "exfiltration", 0.8},
	{regexp.MustCompile(`(api|secret|aws|database|db)\s*(key|token|secret|password)`), "credentials", 0.8},
	{regexp.MustCompile(`(credito|linea|dni|datos)\s+de\s+otr[oa]s?\s+(cliente|persona)`), "other_customer", 0.8},
	{regexp.MustCompile(`\[/?inst\]|\[/?sys\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>`), "special_tokens", 0.9},
	{regexp.MustCompile(`<\s*(script|iframe|object|embed)\b`), "html_injection", 0.6},
}

var replyLeakPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)(my|mis)\s+(instructions?|instrucciones|system prompt)`), "prompt_disclosure", 1},
	{regexp.MustCompile(`(?i)(powered by|built on|basado en)\s+(claude|gpt|openai|anthropic|bedrock|gemini)`), "tech_stack", 1},
	{regexp.MustCompile(`(?i)(api[_\s]?key|access[_\s]?token|bearer)\s*[:=]\s*\S+`), "credential", 1},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "aws_key", 1},
	{regexp.MustCompile(`(?i)(postgres|redis)://\S+`), "database_url", 1},
	{regexp.MustCompile(`(?i)/admin/|/webhooks/`), "internal_path", 1},
}

// GuardVerdict is the outcome of scanning one piece of text.
type GuardVerdict struct {
	Blocked bool
	Score   float64
	Reasons []string
}

// ScanCustomerMessage scores inbound text for prompt injection. The highest
// pattern weight wins; each extra signal adds a little, capped at 1.
func ScanCustomerMessage(message string) GuardVerdict {
	text := normalize(message)
	if text == "" {
		return GuardVerdict{}
	}
	var v GuardVerdict
	for _, p := range injectionPatterns {
		if p.re.MatchString(text) {
			v.Reasons = append(v.Reasons, p.reason)
			if p.weight > v.Score {
				v.Score = p.weight
			}
		}
	}
	if n := len(v.Reasons); n > 1 {
		v.Score = min(1, v.Score+float64(n-1)*extraSignalBoost)
	}
	v.Blocked = v.Score >= injectionBlockScore
	return v
}

// ScanModelReply flags replies that disclose configuration or internals.
// Any hit blocks the reply.
func ScanModelReply(reply string) GuardVerdict {
	if strings.TrimSpace(reply) == "" {
		return GuardVerdict{}
	}
	var v GuardVerdict
	for _, p := range replyLeakPatterns {
		if p.re.MatchString(reply) {
			v.Reasons = append(v.Reasons, p.reason)
			v.Score = 1
		}
	}
	v.Blocked = len(v.Reasons) > 0
	return v
}
