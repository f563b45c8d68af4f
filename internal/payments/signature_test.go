package payments

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier(secret, 0)
	v.now = func() time.Time { return now }
	return v
}

func TestVerify_ValidSignature(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1"}`)
	v := newTestVerifier("whsec_test", now)

	if err := v.Verify(payload, SignPayload("whsec_test", payload, now.Add(-time.Minute))); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_1"}`)
	good := SignPayload("whsec_test", payload, now)

	cases := []struct {
		name    string
		payload []byte
		header  string
	}{
		{"empty header", payload, ""},
		{"no v1", payload, "t=1700000000"},
		{"no timestamp", payload, "v1=" + strings.Repeat("ab", 32)},
		{"bad timestamp", payload, "t=abc,v1=" + strings.Repeat("ab", 32)},
		{"tampered payload", []byte(`{"id":"evt_2"}`), good},
		{"wrong secret", payload, SignPayload("other", payload, now)},
		{"stale", payload, SignPayload("whsec_test", payload, now.Add(-6*time.Minute))},
		{"future", payload, SignPayload("whsec_test", payload, now.Add(6*time.Minute))},
	}
	v := newTestVerifier("whsec_test", now)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Verify(tc.payload, tc.header)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("got %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerify_AcceptsAnyOfSeveralSignatures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	payload := []byte(`{"id":"evt_rot"}`)
	v := newTestVerifier("new_secret", now)

	oldSig := SignPayload("old_secret", payload, now)
	newSig := SignPayload("new_secret", payload, now)
	header := oldSig + "," + strings.SplitN(newSig, ",", 2)[1]

	if err := v.Verify(payload, header); err != nil {
		t.Fatalf("Verify with rotated secrets: %v", err)
	}
}

func TestVerify_UnconfiguredSecretFails(t *testing.T) {
	now := time.Now()
	payload := []byte(`{}`)
	v := newTestVerifier("", now)
	if err := v.Verify(payload, SignPayload("", payload, now)); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("got %v, want ErrInvalidSignature", err)
	}
}
