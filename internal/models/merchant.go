package models

import (
	"time"

	"github.com/baharkarakas/pixhub/internal/fees"
)

type Merchant struct {
	ID                     string      `json:"id"`
	TenantID               string      `json:"tenant_id,omitempty"`
	Name                   string      `json:"name"`
	Email                  string      `json:"email"`
	AuthKey                string      `json:"auth_key"`
	SecretHash             string      `json:"-"`
	Balance                Balance     `json:"balance"`
	FeeIn                  fees.Config `json:"fee_in"`
	FeeOut                 fees.Config `json:"fee_out"`
	CashOutEnabled         bool        `json:"cash_out_enabled"`
	AutoApproveWithdrawals bool        `json:"auto_approve_withdrawals"`
	WebhookEnabled         bool        `json:"webhook_enabled"`
	WebhookInURL           string      `json:"webhook_in_url,omitempty"`
	WebhookOutURL          string      `json:"webhook_out_url,omitempty"`
	CashInProvider         string      `json:"cash_in_provider"`
	CashOutProvider        string      `json:"cash_out_provider"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}
