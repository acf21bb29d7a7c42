package x402

import (
	"encoding/json"
	"strings"
	"testing"
)

func validPayloadJSON(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()
	data, err := json.Marshal(validSigned())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if mutate != nil {
		mutate(m)
	}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("remarshal: %v", err)
	}
	return out
}

func TestValidatePaymentJSONAccepts(t *testing.T) {
	if err := ValidatePaymentJSON(validPayloadJSON(t, nil)); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
}

func TestValidatePaymentJSONRejects(t *testing.T) {
	auth := func(m map[string]any) map[string]any {
		return m["payload"].(map[string]any)["authorization"].(map[string]any)
	}

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing version", func(m map[string]any) { delete(m, "x402Version") }},
		{"wrong version", func(m map[string]any) { m["x402Version"] = 2 }},
		{"missing payload", func(m map[string]any) { delete(m, "payload") }},
		{"short signature", func(m map[string]any) {
			m["payload"].(map[string]any)["signature"] = "0xabcd"
		}},
		{"signature without prefix", func(m map[string]any) {
			m["payload"].(map[string]any)["signature"] = strings.Repeat("ab", 65)
		}},
		{"missing nonce", func(m map[string]any) { delete(auth(m), "nonce") }},
		{"short nonce", func(m map[string]any) { auth(m)["nonce"] = "0x1234" }},
		{"non-numeric value", func(m map[string]any) { auth(m)["value"] = "lots" }},
		{"negative value", func(m map[string]any) { auth(m)["value"] = "-5" }},
		{"malformed from address", func(m map[string]any) { auth(m)["from"] = "f39Fd6" }},
		{"numeric validAfter", func(m map[string]any) { auth(m)["validAfter"] = 1700000000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePaymentJSON(validPayloadJSON(t, tc.mutate))
			if err == nil {
				t.Fatal("expected a schema violation")
			}
			if ClassOf(err) != ClassInvalidFormat {
				t.Errorf("class = %s, want invalid-format", ClassOf(err))
			}
		})
	}
}

func TestValidatePaymentJSONNamesTheField(t *testing.T) {
	err := ValidatePaymentJSON(validPayloadJSON(t, func(m map[string]any) {
		m["payload"].(map[string]any)["authorization"].(map[string]any)["nonce"] = "0x1234"
	}))
	if err == nil {
		t.Fatal("expected a schema violation")
	}
	if !strings.Contains(err.Error(), "nonce") {
		t.Errorf("violation should name the field: %v", err)
	}
}
