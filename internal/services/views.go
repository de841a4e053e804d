package services

import (
	"time"

	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/shopspring/decimal"
)

// StatusView is the normalized shape returned by the status lookup,
// identical for transactions and withdrawals.
type StatusView struct {
	ID                string          `json:"id"`
	Kind              string          `json:"kind"` // pix | withdrawal
	ExternalID        string          `json:"external_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Fee               decimal.Decimal `json:"fee"`
	Net               decimal.Decimal `json:"liquid_amount"`
	Status            status.Status   `json:"status"`
	StatusLabel       string          `json:"status_label"`
	Provider          string          `json:"provider"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	Reference         string          `json:"reference,omitempty"`
	TxID              string          `json:"txid,omitempty"`
	E2EID             string          `json:"e2e_id,omitempty"`
	QRCodeText        string          `json:"qr_code_text,omitempty"`
	PixKey            string          `json:"pixkey,omitempty"`
	PixKeyType        string          `json:"pixkey_type,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func ViewFromTransaction(t models.Transaction) StatusView {
	return StatusView{
		ID:                t.ID,
		Kind:              "pix",
		ExternalID:        t.ExternalReference,
		Amount:            t.Amount,
		Fee:               t.Fee,
		Net:               t.Net(),
		Status:            t.Status,
		StatusLabel:       t.Status.Label(),
		Provider:          t.Provider,
		ProviderReference: t.ProviderTransactionID,
		TxID:              t.TxID,
		E2EID:             t.E2EID,
		QRCodeText:        t.QRCodeText,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func ViewFromWithdrawal(w models.Withdrawal) StatusView {
	st := w.Status.Canonical()
	return StatusView{
		ID:                w.ID,
		Kind:              "withdrawal",
		ExternalID:        w.ExternalID,
		Amount:            w.GrossAmount,
		Fee:               w.FeeAmount,
		Net:               w.Amount,
		Status:            st,
		StatusLabel:       st.Label(),
		Provider:          w.Provider,
		ProviderReference: w.ProviderReference,
		Reference:         w.Reference,
		PixKey:            w.PixKey,
		PixKeyType:        w.PixKeyType,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
	}
}
