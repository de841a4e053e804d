package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/baharkarakas/pixhub/internal/jsonpath"
	"github.com/go-resty/resty/v2"
)

// RESTClient talks to a provider exposing the common charge/payout JSON API.
// It implements both CashIn and CashOut.
type RESTClient struct {
	name string
	http *resty.Client
}

func NewRESTClient(name, baseURL, token string, timeout time.Duration) *RESTClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &RESTClient{name: name, http: c}
}

func (c *RESTClient) Name() string { return c.name }

func (c *RESTClient) post(ctx context.Context, path string, body any) (map[string]any, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s %s: status %d", c.name, path, resp.StatusCode())
	}
	doc, err := jsonpath.Decode(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w", c.name, path, err)
	}
	return doc, nil
}

func (c *RESTClient) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	doc, err := c.post(ctx, "/pix/charges", map[string]any{
		"amount":       req.Amount.StringFixed(2),
		"external_id":  req.ExternalReference,
		"txid":         req.TxID,
		"payer":        req.Payer,
		"callback_url": req.CallbackURL,
	})
	if err != nil {
		return Charge{}, err
	}

	id, ok := jsonpath.First(doc, "id", "transaction_id", "transactionId", "data.id")
	if !ok {
		return Charge{}, fmt.Errorf("%s: charge response without id", c.name)
	}
	ch := Charge{ProviderTransactionID: id, Raw: doc}
	ch.TxID, _ = jsonpath.First(doc, "txid", "data.txid", "pix.txid")
	ch.QRCodeText, _ = jsonpath.First(doc, "qr_code_text", "qrcode", "pix.qrcode", "data.pix.qrcode", "data.qr_code", "emv")
	if s, ok := jsonpath.First(doc, "expires_at", "data.expires_at", "pix.expirationDate"); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			ch.ExpiresAt = &t
		}
	}
	return ch, nil
}

func (c *RESTClient) CreatePayout(ctx context.Context, req PayoutRequest) (Payout, error) {
	doc, err := c.post(ctx, "/pix/payouts", map[string]any{
		"amount":       req.Amount.StringFixed(2),
		"pix_key":      req.PixKey,
		"pix_key_type": req.PixKeyType,
		"external_id":  req.InternalReference,
		"callback_url": req.CallbackURL,
	})
	if err != nil {
		return Payout{}, err
	}
	ref, ok := jsonpath.First(doc, "id", "transaction_id", "uuid", "objectId", "data.id")
	if !ok {
		return Payout{}, fmt.Errorf("%s: payout response without reference", c.name)
	}
	st, _ := jsonpath.First(doc, "status", "data.status")
	return Payout{ProviderReference: ref, Status: st, Raw: doc}, nil
}
