// Package memory is an in-process repository used for tests and STORE_DRIVER=memory.
// Transactions are serialized by one lock and staged until commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baharkarakas/pixhub/internal/models"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	txMu sync.Mutex // one writer transaction at a time

	mu           sync.RWMutex
	merchants    map[string]models.Merchant
	transactions map[string]models.Transaction
	withdrawals  map[string]models.Withdrawal
	audits       []models.AuditLog
	now          func() time.Time
}

func New() *Store {
	return &Store{
		merchants:    map[string]models.Merchant{},
		transactions: map[string]models.Transaction{},
		withdrawals:  map[string]models.Withdrawal{},
		now:          time.Now,
	}
}

func NewRepositories() repo.Repositories {
	s := New()
	return s.Repositories()
}

func (s *Store) Repositories() repo.Repositories {
	return repo.Repositories{
		Merchants:    merchants{s},
		Transactions: transactions{s},
		Withdrawals:  withdrawals{s},
		AuditLogs:    auditLogs{s},
		Tx:           s,
	}
}

func cloneTxn(t models.Transaction) models.Transaction {
	t.Payload = t.Payload.Clone()
	return t
}

func cloneWd(w models.Withdrawal) models.Withdrawal {
	w.Meta = w.Meta.Clone()
	return w
}

// ---------- merchants ----------

type merchants struct{ s *Store }

func (r merchants) Create(_ context.Context, m models.Merchant) (models.Merchant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	for _, ex := range r.s.merchants {
		if ex.AuthKey == m.AuthKey || ex.ID == m.ID {
			return models.Merchant{}, repo.ErrConflict
		}
	}
	now := r.s.now()
	m.CreatedAt, m.UpdatedAt = now, now
	r.s.merchants[m.ID] = m
	return m, nil
}

func (r merchants) GetByID(_ context.Context, id string) (models.Merchant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.merchants[id]
	if !ok {
		return models.Merchant{}, repo.ErrNotFound
	}
	return m, nil
}

func (r merchants) GetByAuthKey(_ context.Context, key string) (models.Merchant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.merchants {
		if m.AuthKey == key {
			return m, nil
		}
	}
	return models.Merchant{}, repo.ErrNotFound
}

// ---------- transactions ----------

type transactions struct{ s *Store }

func (r transactions) GetByID(_ context.Context, id string) (models.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.transactions[id]
	if !ok || t.DeletedAt != nil {
		return models.Transaction{}, repo.ErrNotFound
	}
	return cloneTxn(t), nil
}

func (r transactions) GetByExternalReference(_ context.Context, merchantID, ref string) (models.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.transactions {
		if t.MerchantID == merchantID && t.ExternalReference == ref && t.DeletedAt == nil {
			return cloneTxn(t), nil
		}
	}
	return models.Transaction{}, repo.ErrNotFound
}

func txnMatches(t models.Transaction, field repo.RefField, v string) bool {
	switch field {
	case repo.RefExternal:
		return t.ExternalReference == v
	case repo.RefProvider:
		return t.ProviderTransactionID == v
	case repo.RefInternal:
		return t.TxID == v || t.ID == v
	}
	return false
}

func (r transactions) Find(_ context.Context, provider string, field repo.RefField, value string) (models.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *models.Transaction
	merchants := map[string]bool{}
	for _, t := range r.s.transactions {
		if t.DeletedAt != nil || value == "" || (provider != "" && t.Provider != provider) {
			continue
		}
		if !txnMatches(t, field, value) {
			continue
		}
		merchants[t.MerchantID] = true
		if found == nil || t.CreatedAt.After(found.CreatedAt) {
			c := t
			found = &c
		}
	}
	switch {
	case found == nil:
		return models.Transaction{}, repo.ErrNotFound
	case field == repo.RefExternal && len(merchants) > 1:
		return models.Transaction{}, repo.ErrAmbiguous
	}
	return cloneTxn(*found), nil
}

func (r transactions) ListByMerchant(_ context.Context, merchantID string) ([]models.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Transaction
	for _, t := range r.s.transactions {
		if t.MerchantID == merchantID && t.DeletedAt == nil {
			out = append(out, cloneTxn(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---------- withdrawals ----------

type withdrawals struct{ s *Store }

func (r withdrawals) GetByID(_ context.Context, id string) (models.Withdrawal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.withdrawals[id]
	if !ok {
		return models.Withdrawal{}, repo.ErrNotFound
	}
	return cloneWd(w), nil
}

func (r withdrawals) GetByExternalID(_ context.Context, merchantID, externalID string) (models.Withdrawal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, w := range r.s.withdrawals {
		if w.MerchantID == merchantID && externalID != "" && w.ExternalID == externalID {
			return cloneWd(w), nil
		}
	}
	return models.Withdrawal{}, repo.ErrNotFound
}

func (r withdrawals) GetByIdempotencyKey(_ context.Context, merchantID, key string) (models.Withdrawal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, w := range r.s.withdrawals {
		if w.MerchantID == merchantID && key != "" && w.IdempotencyKey == key {
			return cloneWd(w), nil
		}
	}
	return models.Withdrawal{}, repo.ErrNotFound
}

func wdMatches(w models.Withdrawal, field repo.RefField, v string) bool {
	switch field {
	case repo.RefExternal:
		return w.ExternalID == v
	case repo.RefProvider:
		return w.ProviderReference == v
	case repo.RefInternal:
		return w.Reference == v || w.ID == v
	}
	return false
}

func (r withdrawals) Find(_ context.Context, provider string, field repo.RefField, value string) (models.Withdrawal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *models.Withdrawal
	merchants := map[string]bool{}
	for _, w := range r.s.withdrawals {
		if value == "" || (provider != "" && w.Provider != provider) {
			continue
		}
		if !wdMatches(w, field, value) {
			continue
		}
		merchants[w.MerchantID] = true
		if found == nil || w.CreatedAt.After(found.CreatedAt) {
			c := w
			found = &c
		}
	}
	switch {
	case found == nil:
		return models.Withdrawal{}, repo.ErrNotFound
	case field == repo.RefExternal && len(merchants) > 1:
		return models.Withdrawal{}, repo.ErrAmbiguous
	}
	return cloneWd(*found), nil
}

func (r withdrawals) ListByMerchant(_ context.Context, merchantID string) ([]models.Withdrawal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Withdrawal
	for _, w := range r.s.withdrawals {
		if w.MerchantID == merchantID {
			out = append(out, cloneWd(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ---------- audit ----------

type auditLogs struct{ s *Store }

func (r auditLogs) Create(_ context.Context, l models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendAudit(l)
	return nil
}

func (s *Store) appendAudit(l models.AuditLog) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.audits = append(s.audits, l)
}

func (r auditLogs) ListByEntity(_ context.Context, entityType, entityID string) ([]models.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.AuditLog
	for _, l := range r.s.audits {
		if l.EntityType == entityType && l.EntityID != nil && *l.EntityID == entityID {
			out = append(out, l)
		}
	}
	return out, nil
}

// SetBalance overwrites a merchant's buckets. Test and seeding helper.
func (s *Store) SetBalance(merchantID string, b models.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.merchants[merchantID]
	if !ok {
		return repo.ErrNotFound
	}
	m.Balance = b
	s.merchants[merchantID] = m
	return nil
}

// ---------- tx ----------

func (s *Store) WithTx(ctx context.Context, fn func(repo.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &memTx{
		s:            s,
		merchants:    map[string]models.Merchant{},
		transactions: map[string]models.Transaction{},
		withdrawals:  map[string]models.Withdrawal{},
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range t.merchants {
		s.merchants[id] = m
	}
	for id, v := range t.transactions {
		s.transactions[id] = v
	}
	for id, v := range t.withdrawals {
		s.withdrawals[id] = v
	}
	for _, l := range t.audits {
		s.appendAudit(l)
	}
	return nil
}

type memTx struct {
	s            *Store
	merchants    map[string]models.Merchant
	transactions map[string]models.Transaction
	withdrawals  map[string]models.Withdrawal
	audits       []models.AuditLog
}

func (t *memTx) merchant(id string) (models.Merchant, bool) {
	if m, ok := t.merchants[id]; ok {
		return m, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	m, ok := t.s.merchants[id]
	return m, ok
}

func (t *memTx) LockBalance(_ context.Context, merchantID string) (models.Balance, error) {
	m, ok := t.merchant(merchantID)
	if !ok {
		return models.Balance{}, repo.ErrNotFound
	}
	return m.Balance, nil
}

func (t *memTx) AddAvailable(_ context.Context, merchantID string, delta decimal.Decimal) (models.Balance, error) {
	m, ok := t.merchant(merchantID)
	if !ok {
		return models.Balance{}, repo.ErrNotFound
	}
	m.Balance.Available = m.Balance.Available.Add(delta)
	m.UpdatedAt = t.s.now()
	t.merchants[merchantID] = m
	return m.Balance, nil
}

func (t *memTx) allTransactions() map[string]models.Transaction {
	t.s.mu.RLock()
	out := make(map[string]models.Transaction, len(t.s.transactions))
	for k, v := range t.s.transactions {
		out[k] = v
	}
	t.s.mu.RUnlock()
	for k, v := range t.transactions {
		out[k] = v
	}
	return out
}

func (t *memTx) InsertTransaction(_ context.Context, n models.Transaction) (models.Transaction, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	for _, ex := range t.allTransactions() {
		if ex.ID == n.ID ||
			(ex.MerchantID == n.MerchantID && ex.ExternalReference == n.ExternalReference) ||
			(n.TxID != "" && ex.TxID == n.TxID) {
			return models.Transaction{}, repo.ErrConflict
		}
	}
	now := t.s.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	t.transactions[n.ID] = cloneTxn(n)
	return cloneTxn(n), nil
}

func (t *memTx) LockTransaction(_ context.Context, id string) (models.Transaction, error) {
	if v, ok := t.transactions[id]; ok {
		return cloneTxn(v), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.transactions[id]
	if !ok {
		return models.Transaction{}, repo.ErrNotFound
	}
	return cloneTxn(v), nil
}

func (t *memTx) UpdateTransaction(ctx context.Context, n models.Transaction) error {
	if _, err := t.LockTransaction(ctx, n.ID); err != nil {
		return err
	}
	for _, ex := range t.allTransactions() {
		if ex.ID != n.ID && n.TxID != "" && ex.TxID == n.TxID {
			return repo.ErrConflict
		}
	}
	n.UpdatedAt = t.s.now()
	t.transactions[n.ID] = cloneTxn(n)
	return nil
}

func (t *memTx) allWithdrawals() map[string]models.Withdrawal {
	t.s.mu.RLock()
	out := make(map[string]models.Withdrawal, len(t.s.withdrawals))
	for k, v := range t.s.withdrawals {
		out[k] = v
	}
	t.s.mu.RUnlock()
	for k, v := range t.withdrawals {
		out[k] = v
	}
	return out
}

func (t *memTx) InsertWithdrawal(_ context.Context, n models.Withdrawal) (models.Withdrawal, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Reference == "" {
		n.Reference = n.ID
	}
	for _, ex := range t.allWithdrawals() {
		if ex.ID == n.ID || ex.Reference == n.Reference ||
			(ex.MerchantID == n.MerchantID && n.IdempotencyKey != "" && ex.IdempotencyKey == n.IdempotencyKey) ||
			(ex.MerchantID == n.MerchantID && n.ExternalID != "" && ex.ExternalID == n.ExternalID) {
			return models.Withdrawal{}, repo.ErrConflict
		}
	}
	now := t.s.now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	t.withdrawals[n.ID] = cloneWd(n)
	return cloneWd(n), nil
}

func (t *memTx) LockWithdrawal(_ context.Context, id string) (models.Withdrawal, error) {
	if v, ok := t.withdrawals[id]; ok {
		return cloneWd(v), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.withdrawals[id]
	if !ok {
		return models.Withdrawal{}, repo.ErrNotFound
	}
	return cloneWd(v), nil
}

func (t *memTx) UpdateWithdrawal(ctx context.Context, n models.Withdrawal) error {
	if _, err := t.LockWithdrawal(ctx, n.ID); err != nil {
		return err
	}
	n.UpdatedAt = t.s.now()
	t.withdrawals[n.ID] = cloneWd(n)
	return nil
}

func (t *memTx) InsertAudit(_ context.Context, l models.AuditLog) error {
	t.audits = append(t.audits, l)
	return nil
}
