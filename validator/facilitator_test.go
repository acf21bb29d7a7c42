package validator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	x402 "github.com/paidroute/x402"
)

func TestFacilitatorSettlesAuthorization(t *testing.T) {
	var got x402.SignedAuthorization
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"transactionHash": testTxHash})
	}))
	defer server.Close()

	f := NewFacilitator(server.URL)
	receipt, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if receipt.TransactionHash != testTxHash {
		t.Errorf("TransactionHash = %s", receipt.TransactionHash)
	}
	if receipt.Network != "base-sepolia" {
		t.Errorf("Network = %s", receipt.Network)
	}
	if receipt.Payer != testPayer {
		t.Errorf("Payer = %s, want authorization sender", receipt.Payer)
	}
	if got.Payload.Authorization.Value != "100000" {
		t.Errorf("facilitator received value %s", got.Payload.Authorization.Value)
	}
	if got.X402Version != x402.Version {
		t.Errorf("facilitator received version %d", got.X402Version)
	}
}

func TestFacilitatorAcceptsHashAliases(t *testing.T) {
	for _, key := range []string{"transactionHash", "txHash", "tx"} {
		t.Run(key, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{key: testTxHash})
			}))
			defer server.Close()

			f := NewFacilitator(server.URL)
			receipt, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if receipt.TransactionHash != testTxHash {
				t.Errorf("TransactionHash = %s", receipt.TransactionHash)
			}
		})
	}
}

func TestFacilitatorMissingHashIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer server.Close()

	f := NewFacilitator(server.URL)
	_, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
	wantClass(t, err, x402.ClassFacilitatorMalformed)
}

func TestFacilitatorServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := NewFacilitator(server.URL)
	_, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
	wantClass(t, err, x402.ClassFacilitatorUnavailable)
}

func TestFacilitatorClientErrorIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "insufficient funds"})
	}))
	defer server.Close()

	f := NewFacilitator(server.URL)
	_, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
	wantClass(t, err, x402.ClassRejected)
	if want := "insufficient funds"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not carry the facilitator reason %q", err, want)
	}
}

func TestFacilitatorNonJSONIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway timeout</html>"))
	}))
	defer server.Close()

	f := NewFacilitator(server.URL)
	_, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
	wantClass(t, err, x402.ClassFacilitatorUnavailable)
}

func TestFacilitatorUnreachableIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	f := NewFacilitator(server.URL)
	_, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
	wantClass(t, err, x402.ClassFacilitatorUnavailable)
}

func TestFacilitatorVerifySettleFlow(t *testing.T) {
	var verifies, settles int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			verifies++
			json.NewEncoder(w).Encode(map[string]any{"valid": true})
		case "/settle":
			settles++
			json.NewEncoder(w).Encode(map[string]any{"transactionHash": testTxHash})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	f := NewFacilitator(server.URL, WithVerifySettle())
	receipt, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if receipt.TransactionHash != testTxHash {
		t.Errorf("TransactionHash = %s", receipt.TransactionHash)
	}
	if verifies != 1 || settles != 1 {
		t.Errorf("verifies = %d, settles = %d; want 1 each", verifies, settles)
	}
}

func TestFacilitatorVerifyRejectionSkipsSettle(t *testing.T) {
	var settles int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify":
			json.NewEncoder(w).Encode(map[string]any{"valid": false, "reason": "authorization expired"})
		case "/settle":
			settles++
		}
	}))
	defer server.Close()

	f := NewFacilitator(server.URL, WithVerifySettle())
	_, err := f.Validate(context.Background(), &x402.Payment{Signed: testSigned()}, testMethod())
	wantClass(t, err, x402.ClassRejected)
	if !strings.Contains(err.Error(), "authorization expired") {
		t.Errorf("error %q does not carry the verify reason", err)
	}
	if settles != 0 {
		t.Errorf("settle called after failed verification")
	}
}

func TestFacilitatorIgnoresBareHashes(t *testing.T) {
	f := NewFacilitator("http://127.0.0.1:0")
	_, err := f.Validate(context.Background(), &x402.Payment{TransactionHash: testTxHash}, testMethod())
	if err != ErrNotApplicable {
		t.Fatalf("err = %v, want ErrNotApplicable", err)
	}
}
