package eligibility

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// TestIdentities maps customer keys to canned results so demo and QA
// conversations never reach the production credit systems.
type TestIdentities struct {
	mu      sync.RWMutex
	results map[string]Result
}

func NewTestIdentities() *TestIdentities {
	return &TestIdentities{results: make(map[string]Result)}
}

// ParseTestIdentities reads a JSON object of customer key to result, e.g.
//
//	{"51900000001": {"status": "eligible", "segment": "fnb", "credit": 3000, "name": "Demo"}}
func ParseTestIdentities(raw string) (*TestIdentities, error) {
	ids := NewTestIdentities()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ids, nil
	}
	var parsed map[string]Result
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("eligibility: parse test identities: %w", err)
	}
	for key, res := range parsed {
		switch res.Status {
		case StatusEligible, StatusNotEligible, StatusNeedsHuman:
		default:
			return nil, fmt.Errorf("eligibility: test identity %s has invalid status %q", key, res.Status)
		}
		ids.Set(key, res)
	}
	return ids, nil
}

// Set registers a canned result.
func (t *TestIdentities) Set(customerKey string, result Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if result.Provider == "" {
		result.Provider = "test_identity"
	}
	t.results[normalizeKey(customerKey)] = result
}

// Lookup returns the canned result for customerKey, if any.
func (t *TestIdentities) Lookup(customerKey string) (Result, bool) {
	if t == nil {
		return Result{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	res, ok := t.results[normalizeKey(customerKey)]
	return res, ok
}

func normalizeKey(key string) string {
	return strings.TrimPrefix(strings.TrimSpace(key), "+")
}
