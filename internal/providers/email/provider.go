package email

import "context"

// Message is a transactional email. Tag is an optional provider-side
// categorization label.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"textBody"`
	HTMLBody string `json:"htmlBody"`
	Tag      string `json:"tag,omitempty"`
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}
