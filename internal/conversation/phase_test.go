package conversation

import (
	"encoding/json"
	"testing"
)

func TestPhaseKindAndCustomerNameCoexist(t *testing.T) {
	phase := HandlingObjection{Segment: "fnb", Credit: 2000, Name: "Juan Perez", Objections: 2}

	raw, err := MarshalPhase(phase)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if env.Name != string(PhaseHandlingObjection) {
		t.Fatalf("expected envelope name %s, got %s", PhaseHandlingObjection, env.Name)
	}

	decoded, err := UnmarshalPhase(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := decoded.(HandlingObjection)
	if !ok || got.Kind() != PhaseHandlingObjection {
		t.Fatalf("expected handling_objection, got %#v", decoded)
	}
	if got.Name != "Juan Perez" || got.Objections != 2 {
		t.Fatalf("expected customer name and count to survive, got %#v", got)
	}
}
