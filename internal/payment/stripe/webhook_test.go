package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	paymentdomain "github.com/studioordo/backoffice/internal/payment/domain"
)

const testSecret = "whsec_test_secret"

func signPayload(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	verifier := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)

	sig := signPayload(testSecret, "1756728000", payload)
	header := fmt.Sprintf("t=1756728000,v1=%s", sig)

	assert.NoError(t, verifier.Verify(payload, header))
}

func TestVerifyAcceptsSecondarySignature(t *testing.T) {
	// Stripe sends multiple v1 entries during secret rotation.
	verifier := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_1"}`)

	good := signPayload(testSecret, "1756728000", payload)
	header := fmt.Sprintf("t=1756728000,v1=%s,v1=%s", "deadbeef", good)

	assert.NoError(t, verifier.Verify(payload, header))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	verifier := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_1"}`)

	sig := signPayload("whsec_other", "1756728000", payload)
	header := fmt.Sprintf("t=1756728000,v1=%s", sig)

	assert.ErrorIs(t, verifier.Verify(payload, header), paymentdomain.ErrInvalidSignature)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	verifier := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_1","amount":100}`)

	sig := signPayload(testSecret, "1756728000", payload)
	header := fmt.Sprintf("t=1756728000,v1=%s", sig)

	tampered := []byte(`{"id":"evt_1","amount":99900}`)
	assert.ErrorIs(t, verifier.Verify(tampered, header), paymentdomain.ErrInvalidSignature)
}

func TestVerifyRejectsMalformedHeaders(t *testing.T) {
	verifier := NewWebhookVerifier(testSecret)
	payload := []byte(`{"id":"evt_1"}`)

	for _, header := range []string{
		"",
		"   ",
		"v1=abc",
		"t=1756728000",
		"garbage",
	} {
		assert.ErrorIs(t, verifier.Verify(payload, header), paymentdomain.ErrInvalidSignature, "header %q", header)
	}
}

func TestParseEvent(t *testing.T) {
	event, err := ParseEvent([]byte(`{
		"id": "evt_42",
		"type": "charge.refunded",
		"data": {"object": {"metadata": {"deal_id": "123"}}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_42", event.ID)
	assert.Equal(t, "charge.refunded", event.Type)
	assert.NotEmpty(t, event.Data.Object)
}

func TestParseEventRejectsBadPayloads(t *testing.T) {
	_, err := ParseEvent([]byte(`{not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = ParseEvent([]byte(`{"type":"charge.refunded"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
