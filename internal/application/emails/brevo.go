package emails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const brevoAPI = "https://api.brevo.com/v3/smtp/email"

// BrevoSendRequest matches Brevo API v3 send transactional email body.
type BrevoSendRequest struct {
	Sender      BrevoSender `json:"sender"`
	To          []BrevoTo   `json:"to"`
	Subject     string      `json:"subject"`
	HTMLContent string      `json:"htmlContent"`
}

type BrevoSender struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BrevoTo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Notifier delivers the outbound hooks the ledger must emit. Delivery is
// fire-and-forget from the ledger's perspective: a failure never rolls back
// committed ledger state. Nil = no-op.
type Notifier interface {
	GrantIssued(ctx context.Context, toEmail string, numberOfShares int64) error
	GrantCancelled(ctx context.Context, toEmail, reason string, forfeitedShares int64) error
	VestingOccurred(ctx context.Context, toEmail string, vestedShares int64) error
}

// BrevoClient sends notification emails via the Brevo (Sendinblue) API.
// Env: SENDINBLUE_API_KEY, MAIL_FROM. Empty API key = no-op.
type BrevoClient struct {
	APIKey   string
	MailFrom string
	Client   *http.Client
}

func (c *BrevoClient) from() string {
	if c.MailFrom != "" {
		return c.MailFrom
	}
	return "noreply@captable.local"
}

func (c *BrevoClient) send(ctx context.Context, toEmail, subject, html string) error {
	if c.APIKey == "" {
		return nil
	}
	body := BrevoSendRequest{
		Sender:      BrevoSender{Email: c.from(), Name: "Equity Administration"},
		To:          []BrevoTo{{Email: toEmail}},
		Subject:     subject,
		HTMLContent: html,
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoAPI, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("api-key", c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brevo send failed: status %d", resp.StatusCode)
	}
	return nil
}

// GrantIssued notifies the holder that a new option grant was approved.
func (c *BrevoClient) GrantIssued(ctx context.Context, toEmail string, numberOfShares int64) error {
	content := fmt.Sprintf(`<h1>Your equity grant has been issued</h1>
<p>A grant of <strong>%d options</strong> has been issued to you. Vesting details are available in your equity dashboard.</p>`, numberOfShares)
	return c.send(ctx, toEmail, "Your equity grant has been issued", EmailLayout(content))
}

// GrantCancelled notifies the holder that a grant was cancelled and how many
// unvested shares were forfeited.
func (c *BrevoClient) GrantCancelled(ctx context.Context, toEmail, reason string, forfeitedShares int64) error {
	content := fmt.Sprintf(`<h1>Your equity grant has been cancelled</h1>
<p>Your grant has been cancelled (%s). <strong>%d unvested shares</strong> were forfeited. Vested and exercised shares are not affected.</p>`, reason, forfeitedShares)
	return c.send(ctx, toEmail, "Your equity grant has been cancelled", EmailLayout(content))
}

// VestingOccurred notifies the holder that a tranche vested.
func (c *BrevoClient) VestingOccurred(ctx context.Context, toEmail string, vestedShares int64) error {
	content := fmt.Sprintf(`<h1>Shares have vested</h1>
<p><strong>%d shares</strong> from your equity grant have vested and are now exercisable.</p>`, vestedShares)
	return c.send(ctx, toEmail, "Shares from your grant have vested", EmailLayout(content))
}
