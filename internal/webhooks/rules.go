package webhooks

import (
	"strings"
	"unicode"

	"github.com/baharkarakas/pixhub/internal/jsonpath"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/services"
	"github.com/baharkarakas/pixhub/internal/status"
)

// Rules lists every provider route. New schema variants go at the end of a path list.
func Rules() []Rule {
	return []Rule{
		// ---------- cash-in ----------
		{
			Provider: "podpay", StoredAs: "podpay", Target: TargetTransaction,
			External:      []string{"data.externalRef", "externalRef"},
			ProviderRef:   []string{"data.id", "id"},
			Internal:      []string{"data.txid", "txid"},
			EventID:       []string{"eventId", "event_id"},
			Status:        []string{"data.status", "status"},
			Amount:        []string{"data.paidAmount", "data.amount"},
			AmountInCents: true,
			E2E:           []string{"data.pix.end2EndId", "data.pix.endToEndId", "pix.end2EndId"},
			PayerName:     []string{"data.customer.name", "data.payer.name"},
			PayerDoc:      []string{"data.customer.document.number", "data.customer.document", "data.payer.document"},
		},
		{
			Provider: "lumnis", StoredAs: "lumnis", Target: TargetTransaction,
			External:    []string{"external_id", "externalId", "data.external_id"},
			ProviderRef: []string{"id", "transaction_id", "data.id"},
			Internal:    []string{"txid", "data.txid"},
			EventID:     []string{"event_id", "webhook_id"},
			Status:      []string{"status", "data.status"},
			Amount:      []string{"amount", "data.amount"},
			E2E:         []string{"end_to_end_id", "e2e_id", "data.end_to_end_id"},
			PayerName:   []string{"payer.name", "payer_name"},
			PayerDoc:    []string{"payer.document", "payer_document"},
		},
		{
			Provider: "pluggou", StoredAs: "pluggou", Target: TargetTransaction,
			External:    []string{"data.external_id", "external_id"},
			ProviderRef: []string{"data.id", "id"},
			Internal:    []string{"data.txid", "txid"},
			EventID:     []string{"id_event", "event_id"},
			Status:      []string{"data.status", "status"},
			Amount:      []string{"data.amount", "amount"},
			E2E:         []string{"data.e2e_id", "data.end_to_end"},
			PayerName:   []string{"data.payer.name"},
			PayerDoc:    []string{"data.payer.document"},
		},
		{
			Provider: "reflowpay", StoredAs: "reflowpay", Target: TargetTransaction,
			External:    []string{"externalReference", "external_reference"},
			ProviderRef: []string{"transactionId", "transaction_id", "id"},
			Internal:    []string{"orderId", "txid"},
			EventID:     []string{"eventId"},
			Status:      []string{"status", "transactionState"},
			Amount:      []string{"amount"},
			E2E:         []string{"endToEndId", "e2eId"},
			PayerName:   []string{"payer.name", "payerName"},
			PayerDoc:    []string{"payer.document", "payerDocument"},
		},
		{
			Provider: "trustpay", StoredAs: "trustpay", Target: TargetTransaction,
			External:    []string{"data.externalId", "data.external_id"},
			ProviderRef: []string{"data.provider_transaction_id", "data.providerId", "data.uuid", "data.metadata.authCode"},
			Internal:    []string{"data.txid", "data.txId"},
			EventID:     []string{"data.eventId", "data.id"},
			Status:      []string{"data.status"},
			Amount:      []string{"data.amount"},
			E2E:         []string{"data.endToEndId", "data.metadata.endToEnd", "data.end_to_end"},
			PayerName:   []string{"data.payer.name", "data.payerName"},
			PayerDoc:    []string{"data.payer.document", "data.payerDocument"},
			Adjust: func(doc map[string]any, ev *services.ProviderEvent) {
				if typ, ok := jsonpath.String(doc, "data.type"); ok && status.Normalize(typ) == status.Paid {
					ev.Status = status.Paid
				}
			},
		},
		{
			Provider: "rapdyn", StoredAs: "rapdyn", Target: TargetTransaction,
			External:      []string{"external_id"},
			ProviderRef:   []string{"id"},
			Internal:      []string{"txid"},
			EventID:       []string{"webhook_id"},
			Status:        []string{"event", "status"},
			Amount:        []string{"total"},
			AmountInCents: true,
			E2E:           []string{"pix.end2EndId"},
			PayerName:     []string{"customer.name"},
			PayerDoc:      []string{"customer.document"},
		},
		{
			Provider: "cass", StoredAs: "cass", Target: TargetTransaction,
			External:    []string{"data.externalRef"},
			ProviderRef: []string{"data.id"},
			Internal:    []string{"data.txid"},
			Status:      []string{"data.status"},
			Amount:      []string{"data.paidAmount", "data.amount"},
			E2E:         []string{"data.pix.end2EndId", "data.endToEndId"},
			Adjust: func(doc map[string]any, ev *services.ProviderEvent) {
				// card and boleto confirmations share the route; only pix settles here
				if m, ok := jsonpath.String(doc, "data.paymentMethod"); ok && ev.Status == status.Paid && !strings.EqualFold(m, "pix") {
					ev.Status = status.Pending
				}
			},
		},
		{
			Provider: "gateway", Target: TargetTransaction,
			External:    []string{"external_reference", "external_id", "externalRef", "data.external_reference"},
			ProviderRef: []string{"provider_transaction_id", "transaction_id", "id", "data.id"},
			Internal:    []string{"txid", "data.txid"},
			EventID:     []string{"event_id", "data.event_id"},
			Status:      []string{"status", "data.status", "event"},
			Amount:      []string{"amount", "data.amount"},
			E2E:         []string{"e2e_id", "end_to_end_id", "endToEndId"},
			PayerName:   []string{"payer.name", "payer_name"},
			PayerDoc:    []string{"payer.document", "payer_document"},
		},

		// ---------- cash-out ----------
		{
			Provider: "podpay-out", StoredAs: "podpay", Target: TargetWithdrawal,
			ProviderRef: []string{"objectId", "data.id"},
			Internal:    []string{"data.externalRef", "externalRef"},
			EventID:     []string{"eventId"},
			Status:      []string{"data.status", "status"},
			E2E:         []string{"data.pix.end2EndId"},
			Adjust: func(doc map[string]any, ev *services.ProviderEvent) {
				desc, _ := jsonpath.First(doc, "data.description", "data.history.0.message")
				if status.Normalize(leadingWord(desc)) == status.Failed {
					ev.Status = status.Failed
				}
			},
		},
		{
			Provider: "pluggou-out", StoredAs: "pluggou", Target: TargetWithdrawal,
			ProviderRef: []string{"data.id", "id"},
			Internal:    []string{"data.external_id", "external_id"},
			EventID:     []string{"id_event"},
			Status:      []string{"data.status", "status"},
			E2E:         []string{"data.e2e_id"},
		},
		{
			Provider: "lumnis-out", StoredAs: "lumnis", Target: TargetWithdrawal,
			ProviderRef:   []string{"id", "receipt.0.identifier"},
			Internal:      []string{"external_id"},
			Status:        []string{"status"},
			Amount:        []string{"paid"},
			AmountInCents: true,
			E2E:           []string{"receipt.0.endtoend"},
		},
		{
			Provider: "reflowpay-out", StoredAs: "reflowpay", Target: TargetWithdrawal,
			ProviderRef: []string{"transactionId"},
			Internal:    []string{"orderId"},
			EventID:     []string{"eventId"},
			Status:      []string{"status"},
			E2E:         []string{"endToEndId"},
		},
		{
			Provider: "xflow-out", StoredAs: "xflow", Target: TargetWithdrawal,
			ProviderRef: []string{"transaction_id"},
			Internal:    []string{"external_id"},
			Status:      []string{"status"},
			E2E:         []string{"end_to_end_id"},
		},
		{
			Provider: "cn-out", StoredAs: "cn", Target: TargetWithdrawal,
			ProviderRef: []string{"uuid"},
			Internal:    []string{"externalId"},
			Status:      []string{"status"},
			E2E:         []string{"endToEndId"},
			Adjust: func(doc map[string]any, ev *services.ProviderEvent) {
				// only the confirmation event settles; the rest is history
				if typ, _ := jsonpath.String(doc, "type"); status.Normalize(typ) != status.Paid && ev.Status == status.Paid {
					ev.Status = status.Pending
				}
			},
		},
	}
}

// leadingWord returns the first run of letters, e.g. "Failed" from "Failed: invalid key".
func leadingWord(s string) string {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		return s
	}
	return s[:end]
}

// Default builds one adapter per rule.
func Default(repos repo.Repositories, txa TransactionApplier, wda WithdrawalApplier) []Adapter {
	rules := Rules()
	out := make([]Adapter, 0, len(rules))
	for _, r := range rules {
		out = append(out, NewAdapter(r, repos, txa, wda))
	}
	return out
}
