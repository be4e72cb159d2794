package signature

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/smallparish/offertory/internal/webhook/domain"
)

const testSecret = "whsec_test_secret"

func TestVerify_ValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	now := time.Now().Unix()
	header := Sign(testSecret, payload, now)

	v := New(testSecret, 5*time.Minute)
	if err := v.Verify(payload, header); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerify_SingleByteTamper(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded","data":{"object":{"amount":2500}}}`)
	header := Sign(testSecret, payload, time.Now().Unix())

	tampered := make([]byte, len(payload))
	copy(tampered, payload)
	tampered[len(tampered)-4] = '9' // 2500 -> 2590

	v := New(testSecret, 0)
	if err := v.Verify(tampered, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := Sign("whsec_other", payload, time.Now().Unix())

	v := New(testSecret, 0)
	if err := v.Verify(payload, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerify_MalformedHeaders(t *testing.T) {
	v := New(testSecret, 0)
	payload := []byte(`{}`)

	for _, header := range []string{
		"",
		"garbage",
		"t=123",
		"v1=deadbeef",
		"t=,v1=",
	} {
		if err := v.Verify(payload, header); !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("header %q: expected ErrInvalidSignature, got %v", header, err)
		}
	}
}

func TestVerify_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	stale := time.Now().Add(-30 * time.Minute).Unix()
	header := Sign(testSecret, payload, stale)

	v := New(testSecret, 5*time.Minute)
	if err := v.Verify(payload, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for stale timestamp, got %v", err)
	}
}

func TestVerify_ToleranceDisabled(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	stale := time.Now().Add(-24 * time.Hour).Unix()
	header := Sign(testSecret, payload, stale)

	v := New(testSecret, 0)
	if err := v.Verify(payload, header); err != nil {
		t.Fatalf("expected old timestamp to pass with tolerance disabled, got %v", err)
	}
}

func TestVerify_EmptySecretFailsClosed(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := Sign(testSecret, payload, time.Now().Unix())

	v := New("", 0)
	if err := v.Verify(payload, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature with empty secret, got %v", err)
	}
}

func TestVerify_SecondSignatureAccepted(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now().Unix()
	valid := Sign(testSecret, payload, now)
	goodSig := valid[strings.Index(valid, "v1=")+len("v1="):]

	// Rotated-secret form: a dead v1 entry ahead of the good one.
	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now, strings.Repeat("0", 64), goodSig)

	v := New(testSecret, 0)
	if err := v.Verify(payload, header); err != nil {
		t.Fatalf("expected one matching v1 entry to verify, got %v", err)
	}
}
