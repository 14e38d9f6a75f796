package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/studioordo/backoffice/internal/payment/domain"
	"go.uber.org/zap"
)

// Client is a minimal Stripe API client covering the transfer surface the
// payout executor needs. Idempotency is delegated to Stripe via the
// Idempotency-Key header.
type Client struct {
	secretKey string
	baseURL   string
	http      *http.Client
	log       *zap.Logger
}

func NewClient(secretKey, baseURL string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &Client{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log.Named("stripe.client"),
	}
}

type transferResponse struct {
	ID    string `json:"id"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateTransfer(ctx context.Context, req paymentdomain.TransferRequest) (*paymentdomain.Transfer, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("destination", req.DestinationAccountID)
	if req.TransferGroup != "" {
		form.Set("transfer_group", req.TransferGroup)
	}
	for key, value := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var parsed transferResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrTransferFailed, resp.StatusCode)
	}

	if resp.StatusCode >= 400 || parsed.Error != nil {
		message := "unknown error"
		if parsed.Error != nil {
			message = parsed.Error.Message
		}
		c.log.Warn("stripe transfer rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
		)
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrTransferFailed, message)
	}

	return &paymentdomain.Transfer{ID: parsed.ID}, nil
}
