package middleware

import (
	"context"

	"github.com/baharkarakas/pixhub/internal/models"
)

type operatorKey struct{}

type merchantKey struct{}

// Operator is the authenticated back-office caller on admin routes.
type Operator struct {
	ID   string
	Role string
}

func WithOperator(ctx context.Context, o Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, o)
}

func OperatorFrom(ctx context.Context) (Operator, bool) {
	o, ok := ctx.Value(operatorKey{}).(Operator)
	return o, ok
}

func WithMerchant(ctx context.Context, m models.Merchant) context.Context {
	return context.WithValue(ctx, merchantKey{}, m)
}

func MerchantFrom(ctx context.Context) (models.Merchant, bool) {
	m, ok := ctx.Value(merchantKey{}).(models.Merchant)
	return m, ok
}
