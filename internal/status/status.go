package status

import "strings"

// Status is the canonical lifecycle value shared by transactions and withdrawals.
type Status string

const (
	Pending     Status = "PENDING"
	UnderReview Status = "UNDER_REVIEW"
	Mediation   Status = "MEDIATION"
	Paid        Status = "PAID"
	Failed      Status = "FAILED"
	Error       Status = "ERROR"
	Canceled    Status = "CANCELED"
)

// provider vocabularies, lower-cased
var tokens = map[string]Status{
	// pending
	"pending":            Pending,
	"pendente":           Pending,
	"waiting":            Pending,
	"waiting_payment":    Pending,
	"created":            Pending,
	"initiated":          Pending,
	"new":                Pending,
	"open":               Pending,
	"authorized":         Pending,
	"processing":         Pending,
	"processando":        Pending,
	"processing_payment": Pending,
	"queued":             Pending,

	// review
	"under_review": UnderReview,
	"in_analysis":  UnderReview,
	"analise":      UnderReview,
	"analyzing":    UnderReview,
	"review":       UnderReview,

	// mediation (MED)
	"med":        Mediation,
	"mediation":  Mediation,
	"disputed":   Mediation,
	"in_dispute": Mediation,

	// paid
	"paid":             Paid,
	"paga":             Paid,
	"pago":             Paid,
	"approved":         Paid,
	"aprovado":         Paid,
	"completed":        Paid,
	"concluido":        Paid,
	"success":          Paid,
	"succeeded":        Paid,
	"confirmed":        Paid,
	"confirmado":       Paid,
	"payin_confirmed":  Paid,
	"payout_confirmed": Paid,

	// failed
	"failed":        Failed,
	"falhou":        Failed,
	"rejected":      Failed,
	"rejeitado":     Failed,
	"refused":       Failed,
	"declined":      Failed,
	"denied":        Failed,
	"error_payment": Failed,
	"expired":       Failed,
	"timeout":       Failed,
	"chargeback":    Failed,
	"returned":      Failed,
	"refunded":      Failed,

	// canceled
	"canceled":  Canceled,
	"cancelled": Canceled,
	"cancelado": Canceled,

	// error
	"error":          Error,
	"erro":           Error,
	"internal_error": Error,
	"provider_error": Error,
}

// Normalize maps any provider status token to the canonical enum.
// It never fails: unknown or empty tokens become Pending.
func Normalize(raw string) Status {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if s, ok := tokens[key]; ok {
		return s
	}
	return Pending
}

// Terminal reports whether the status closes the entity for balance purposes.
func (s Status) Terminal() bool {
	switch s {
	case Paid, Failed, Error, Canceled:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case Pending, UnderReview, Mediation, Paid, Failed, Error, Canceled:
		return true
	}
	return false
}

// Label returns the legacy Portuguese label shown in merchant reports.
func (s Status) Label() string {
	switch s {
	case Paid:
		return "PAGA"
	case Failed, Canceled:
		return "FALHOU"
	case Error:
		return "ERRO"
	case UnderReview:
		return "EM_ANALISE"
	case Mediation:
		return "MED"
	}
	return "PENDENTE"
}
