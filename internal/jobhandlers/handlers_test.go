package jobhandlers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jobdomain "github.com/studioordo/backoffice/internal/job/domain"
	paymentdomain "github.com/studioordo/backoffice/internal/payment/domain"
	"github.com/studioordo/backoffice/internal/providers/email"
	"go.uber.org/zap"
)

type fakeEmailProvider struct {
	sent []email.Message
	err  error
}

func (f *fakeEmailProvider) Send(ctx context.Context, msg email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func payloadFor(t *testing.T, jobType string, data any) jobdomain.Payload {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return jobdomain.Payload{Type: jobType, Data: raw}
}

func TestEmailSendDeliversMessage(t *testing.T) {
	provider := &fakeEmailProvider{}
	handler := NewEmailSend(provider, zap.NewNop())

	result := handler(context.Background(), payloadFor(t, TypeEmailSend, email.Message{
		To:      "client@example.com",
		Subject: "Your delivery is ready",
		TextBody: "hello",
	}))

	assert.Equal(t, jobdomain.DispositionSucceeded, result.Disposition)
	require.Len(t, provider.sent, 1)
	assert.Equal(t, "client@example.com", provider.sent[0].To)
}

func TestEmailSendProviderFailureIsRetryable(t *testing.T) {
	provider := &fakeEmailProvider{err: fmt.Errorf("smtp connect refused")}
	handler := NewEmailSend(provider, zap.NewNop())

	result := handler(context.Background(), payloadFor(t, TypeEmailSend, email.Message{To: "x@y.z"}))
	assert.Equal(t, jobdomain.DispositionRetryable, result.Disposition)
}

func TestEmailSendMalformedPayloadIsTerminal(t *testing.T) {
	handler := NewEmailSend(&fakeEmailProvider{}, zap.NewNop())

	result := handler(context.Background(), jobdomain.Payload{Type: TypeEmailSend, Data: []byte("{not json")})
	assert.Equal(t, jobdomain.DispositionTerminal, result.Disposition)
}

func TestNewsletterSendDispatches(t *testing.T) {
	var gotRunID string
	handler := NewNewsletterSend(func(ctx context.Context, sendRunID string) (int, error) {
		gotRunID = sendRunID
		return 42, nil
	}, zap.NewNop())

	result := handler(context.Background(), payloadFor(t, TypeNewsletter, map[string]string{"sendRunId": "run-7"}))
	assert.Equal(t, jobdomain.DispositionSucceeded, result.Disposition)
	assert.Equal(t, "run-7", gotRunID)
}

func TestDiscordSyncFailureIsRetryable(t *testing.T) {
	handler := NewDiscordSync(func(ctx context.Context, userID string, roleIDs []string) error {
		return fmt.Errorf("discord 502")
	}, zap.NewNop())

	result := handler(context.Background(), payloadFor(t, TypeDiscordSync, map[string]any{
		"userId":  "12345",
		"roleIds": []string{"role-a"},
	}))
	assert.Equal(t, jobdomain.DispositionRetryable, result.Disposition)
}

func TestStripeWebhookInvalidSignatureIsTerminal(t *testing.T) {
	handler := NewStripeWebhook(func(ctx context.Context, payload []byte, signature, requestID string) error {
		return paymentdomain.ErrInvalidSignature
	}, zap.NewNop())

	result := handler(context.Background(), payloadFor(t, TypeStripeWebhook, map[string]string{
		"payload":   `{"id":"evt_1"}`,
		"signature": "t=1,v1=bad",
		"requestId": "req-1",
	}))
	assert.Equal(t, jobdomain.DispositionTerminal, result.Disposition)
}

func TestStripeWebhookProcessingFailureIsRetryable(t *testing.T) {
	handler := NewStripeWebhook(func(ctx context.Context, payload []byte, signature, requestID string) error {
		return fmt.Errorf("db unavailable")
	}, zap.NewNop())

	result := handler(context.Background(), payloadFor(t, TypeStripeWebhook, map[string]string{
		"payload":   `{"id":"evt_1"}`,
		"signature": "t=1,v1=good",
		"requestId": "req-1",
	}))
	assert.Equal(t, jobdomain.DispositionRetryable, result.Disposition)
}

func TestRegistrySkipsAbsentCollaborators(t *testing.T) {
	registry := NewRegistry(Dependencies{
		Log:           zap.NewNop(),
		EmailProvider: &fakeEmailProvider{},
	})

	assert.Contains(t, registry, TypeEmailSend)
	assert.NotContains(t, registry, TypeNewsletter)
	assert.NotContains(t, registry, TypeDiscordSync)
	assert.NotContains(t, registry, TypeStripeWebhook)

	known := NewKnownTypes(registry)
	_, ok := known[TypeEmailSend]
	assert.True(t, ok)
	_, ok = known[TypeNewsletter]
	assert.False(t, ok)
}
