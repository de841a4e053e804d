package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/baharkarakas/pixhub/internal/auth"
	"github.com/baharkarakas/pixhub/internal/fees"
	"github.com/baharkarakas/pixhub/internal/models"
	repo "github.com/baharkarakas/pixhub/internal/repository"
)

type MerchantService struct{ r repo.Repositories }

func NewMerchantService(r repo.Repositories) *MerchantService { return &MerchantService{r: r} }

type CreateMerchantInput struct {
	Name                   string
	Email                  string
	FeeIn                  fees.Config
	FeeOut                 fees.Config
	CashOutEnabled         bool
	AutoApproveWithdrawals bool
	WebhookInURL           string
	WebhookOutURL          string
	CashInProvider         string
	CashOutProvider        string
}

func randomKey(prefix string) string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

// Create registers a merchant and returns its plain secret key. The secret is only stored hashed.
func (s *MerchantService) Create(ctx context.Context, in CreateMerchantInput) (models.Merchant, string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return models.Merchant{}, "", invalid("name", "required")
	}
	if in.CashInProvider == "" {
		return models.Merchant{}, "", invalid("cash_in_provider", "required")
	}
	secret := randomKey("sk_")
	hash, err := auth.HashSecret(secret)
	if err != nil {
		return models.Merchant{}, "", err
	}
	m := models.Merchant{
		Name:                   name,
		Email:                  strings.TrimSpace(in.Email),
		AuthKey:                randomKey("ak_"),
		SecretHash:             hash,
		FeeIn:                  in.FeeIn,
		FeeOut:                 in.FeeOut,
		CashOutEnabled:         in.CashOutEnabled,
		AutoApproveWithdrawals: in.AutoApproveWithdrawals,
		WebhookEnabled:         in.WebhookInURL != "" || in.WebhookOutURL != "",
		WebhookInURL:           in.WebhookInURL,
		WebhookOutURL:          in.WebhookOutURL,
		CashInProvider:         in.CashInProvider,
		CashOutProvider:        in.CashOutProvider,
	}
	if m.CashOutProvider == "" {
		m.CashOutProvider = m.CashInProvider
	}
	m, err = s.r.Merchants.Create(ctx, m)
	if err != nil {
		return models.Merchant{}, "", err
	}
	audit(ctx, s.r.AuditLogs, auditEntry(models.EntityMerchant, m.ID, "created", map[string]any{"name": m.Name}))
	return m, secret, nil
}

// Authenticate resolves the X-Auth-Key / X-Secret-Key pair.
func (s *MerchantService) Authenticate(ctx context.Context, authKey, secret string) (models.Merchant, error) {
	if authKey == "" || secret == "" {
		return models.Merchant{}, ErrUnauthorized
	}
	m, err := s.r.Merchants.GetByAuthKey(ctx, authKey)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Merchant{}, ErrUnauthorized
	}
	if err != nil {
		return models.Merchant{}, err
	}
	if err := auth.VerifySecret(secret, m.SecretHash); err != nil {
		return models.Merchant{}, ErrUnauthorized
	}
	return m, nil
}

func (s *MerchantService) GetByID(ctx context.Context, id string) (models.Merchant, error) {
	m, err := s.r.Merchants.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return m, ErrNotFound
	}
	return m, err
}
