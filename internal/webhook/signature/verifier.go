package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smallparish/offertory/internal/webhook/domain"
)

// Verifier authenticates raw webhook payloads against the shared gateway
// secret. The signature header carries `t=<unix>,v1=<hex hmac>` and the HMAC
// covers "<t>.<raw body>" so the exact received bytes are what is signed;
// re-serializing the payload before verification would break it.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// New builds a Verifier. A zero tolerance disables timestamp checking.
func New(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{
		secret:    []byte(strings.TrimSpace(secret)),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify fails closed: any malformed header, stale timestamp, or digest
// mismatch comes back as ErrInvalidSignature and the caller must not touch
// state.
func (v *Verifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseHeader(header)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	if v.tolerance > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return domain.ErrInvalidSignature
		}
		age := v.now().UTC().Sub(time.Unix(ts, 0).UTC())
		if age > v.tolerance || age < -v.tolerance {
			return domain.ErrInvalidSignature
		}
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func parseHeader(header string) (string, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil, domain.ErrInvalidSignature
	}

	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, domain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

// Sign computes the header value for a payload. Used by tests and by the
// local development event generator.
func Sign(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
