// Package memory is an in-process ledger store. One mutex guards all state,
// so ApplyTransfer is atomic and transfers touching the same accounts
// serialize. It backs the service when no DATABASE_URL is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/BatiOli9/IDDO/internal/core/domain"
)

type idempotentResponse struct {
	status int
	body   []byte
}

type voucherBlob struct {
	contentType string
	body        []byte
}

type Store struct {
	mu sync.Mutex

	users         map[uuid.UUID]domain.User
	byCVU         map[string]uuid.UUID
	byAlias       map[string]uuid.UUID
	accounts      map[uuid.UUID]*domain.Account
	accountByUser map[uuid.UUID]uuid.UUID
	guardians     map[uuid.UUID]uuid.UUID
	transactions  []domain.Transaction
	apiKeys       map[string]uuid.UUID
	idempotency   map[string]idempotentResponse
	vouchers      map[string]voucherBlob

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]domain.User),
		byCVU:         make(map[string]uuid.UUID),
		byAlias:       make(map[string]uuid.UUID),
		accounts:      make(map[uuid.UUID]*domain.Account),
		accountByUser: make(map[uuid.UUID]uuid.UUID),
		guardians:     make(map[uuid.UUID]uuid.UUID),
		apiKeys:       make(map[string]uuid.UUID),
		idempotency:   make(map[string]idempotentResponse),
		vouchers:      make(map[string]voucherBlob),
		now:           time.Now,
	}
}

// SetClock replaces the clock used to stamp transactions created without an
// explicit time.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// --- Seeding -------------------------------------------------------------

// AddUser registers a user and opens its account with the given balance.
func (s *Store) AddUser(u domain.User, balance decimal.Decimal) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if balance.IsNegative() {
		return domain.Account{}, fmt.Errorf("opening balance cannot be negative")
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if _, exists := s.users[u.ID]; exists {
		return domain.Account{}, fmt.Errorf("user %s already exists", u.ID)
	}
	if !domain.ValidCVU(u.CVU) {
		return domain.Account{}, fmt.Errorf("user %s: invalid CVU %q", u.ID, u.CVU)
	}
	if _, taken := s.byCVU[u.CVU]; taken {
		return domain.Account{}, fmt.Errorf("CVU %s already registered", u.CVU)
	}
	u.Alias = domain.NormalizeAlias(u.Alias)
	if u.Alias != "" {
		if _, taken := s.byAlias[u.Alias]; taken {
			return domain.Account{}, fmt.Errorf("alias %s already registered", u.Alias)
		}
		s.byAlias[u.Alias] = u.ID
	}
	s.users[u.ID] = u
	s.byCVU[u.CVU] = u.ID

	acc := &domain.Account{ID: uuid.New(), UserID: u.ID, Balance: balance, CreatedAt: s.now()}
	s.accounts[acc.ID] = acc
	s.accountByUser[u.ID] = acc.ID
	return *acc, nil
}

// LinkGuardian makes parentID the guardian of childID.
func (s *Store) LinkGuardian(childID, parentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[childID]; !ok {
		return fmt.Errorf("child %s: %w", childID, domain.ErrNotFound)
	}
	if _, ok := s.users[parentID]; !ok {
		return fmt.Errorf("parent %s: %w", parentID, domain.ErrNotFound)
	}
	s.guardians[childID] = parentID
	return nil
}

// RecordTransaction appends a historical transaction without moving funds.
// It exists to seed past activity.
func (s *Store) RecordTransaction(tx domain.Transaction) domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	s.transactions = append(s.transactions, tx)
	return tx
}

// --- Ledger reads --------------------------------------------------------

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) User(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) UserByCVU(ctx context.Context, cvu string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCVU[cvu]
	if !ok {
		return nil, fmt.Errorf("cvu %s: %w", cvu, domain.ErrNotFound)
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) UserByAlias(ctx context.Context, aliasLower string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byAlias[aliasLower]
	if !ok {
		return nil, fmt.Errorf("alias %s: %w", aliasLower, domain.ErrNotFound)
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) GuardianOf(ctx context.Context, childID uuid.UUID) (*domain.GuardianLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentID, ok := s.guardians[childID]
	if !ok {
		return nil, fmt.Errorf("guardian of %s: %w", childID, domain.ErrNotFound)
	}
	return &domain.GuardianLink{ChildID: childID, ParentID: parentID}, nil
}

func (s *Store) AccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accID, ok := s.accountByUser[userID]
	if !ok {
		return nil, fmt.Errorf("account of user %s: %w", userID, domain.ErrNotFound)
	}
	acc := *s.accounts[accID]
	return &acc, nil
}

func (s *Store) Account(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	out := *acc
	return &out, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SumSentSince(ctx context.Context, userID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumSentLocked(userID, from, to), nil
}

func (s *Store) sumSentLocked(userID uuid.UUID, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range s.transactions {
		if tx.SenderID != userID {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		total = total.Add(tx.Amount)
	}
	return total
}

func (s *Store) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out, nil
}

func (s *Store) ListTransactionsBySender(ctx context.Context, senderID uuid.UUID) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Transaction
	for _, tx := range s.transactions {
		if tx.SenderID == senderID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// --- Ledger writes -------------------------------------------------------

// ApplyTransfer re-checks balance and daily cap, then debits, credits and
// records the transaction, all under the store lock.
func (s *Store) ApplyTransfer(ctx context.Context, in domain.TransferIntent) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	senderAccID, ok := s.accountByUser[in.SenderID]
	if !ok {
		return nil, fmt.Errorf("sender account: %w", domain.ErrNotFound)
	}
	receiverAccID, ok := s.accountByUser[in.ReceiverID]
	if !ok {
		return nil, fmt.Errorf("receiver account: %w", domain.ErrNotFound)
	}
	sender := s.accounts[senderAccID]
	receiver := s.accounts[receiverAccID]

	at := in.At
	if at.IsZero() {
		at = s.now()
	}
	if dc := in.DailyCap; dc != nil {
		if !dc.Covers(at) {
			return nil, fmt.Errorf("%w: %s", domain.ErrOutsideWindow, at.Format(time.RFC3339Nano))
		}
		sent := s.sumSentLocked(in.SenderID, dc.From, dc.To)
		if sent.Add(in.Amount).GreaterThan(dc.Limit) {
			return nil, fmt.Errorf("%w: sent %s of %s", domain.ErrDailyLimitExceeded,
				sent.StringFixed(domain.MaxScale), dc.Limit.StringFixed(domain.MaxScale))
		}
	}

	newSenderBalance, err := domain.Debit(sender.Balance, in.Amount)
	if err != nil {
		return nil, err
	}

	tx := domain.Transaction{
		ID:         uuid.New(),
		Amount:     in.Amount,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		CreatedAt:  at,
	}

	sender.Balance = newSenderBalance
	receiver.Balance = receiver.Balance.Add(in.Amount)
	s.transactions = append(s.transactions, tx)
	return &tx, nil
}

func (s *Store) AttachVoucher(ctx context.Context, transactionID uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.transactions {
		if s.transactions[i].ID == transactionID {
			r := ref
			s.transactions[i].VoucherURL = &r
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", transactionID, domain.ErrNotFound)
}

// --- API keys ------------------------------------------------------------

func (s *Store) SaveAPIKey(ctx context.Context, userID uuid.UUID, keyHash, keyPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	s.apiKeys[keyHash] = userID
	return nil
}

func (s *Store) UserIDByKeyHash(ctx context.Context, keyHash string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.apiKeys[keyHash]
	if !ok {
		return uuid.Nil, fmt.Errorf("api key: %w", domain.ErrNotFound)
	}
	return id, nil
}

// --- Idempotency ---------------------------------------------------------

func (s *Store) LoadResponse(ctx context.Context, key string) (int, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.idempotency[key]
	if !ok {
		return 0, nil, fmt.Errorf("idempotency key %s: %w", key, domain.ErrNotFound)
	}
	return r.status, r.body, nil
}

// ReserveKey stores a placeholder (status 0) for key unless one exists.
func (s *Store) ReserveKey(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.idempotency[key]; exists {
		return false, nil
	}
	s.idempotency[key] = idempotentResponse{}
	return true, nil
}

func (s *Store) ReleaseKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.idempotency[key]; ok && r.status == 0 {
		delete(s.idempotency, key)
	}
	return nil
}

// SaveResponse fills a reservation or an unknown key. A stored response is
// never replaced.
func (s *Store) SaveResponse(ctx context.Context, key string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, exists := s.idempotency[key]; exists && r.status != 0 {
		return nil
	}
	s.idempotency[key] = idempotentResponse{status: status, body: append([]byte(nil), body...)}
	return nil
}

// --- Vouchers ------------------------------------------------------------

func (s *Store) PutVoucher(ctx context.Context, name, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vouchers[name] = voucherBlob{contentType: contentType, body: append([]byte(nil), body...)}
	return nil
}

func (s *Store) GetVoucher(ctx context.Context, name string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vouchers[name]
	if !ok {
		return nil, "", fmt.Errorf("voucher %s: %w", name, domain.ErrNotFound)
	}
	return v.body, v.contentType, nil
}
