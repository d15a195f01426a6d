package wallet

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestDeposit_CreditsBalance(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	svc := NewService(pool, repo)

	entry, err := svc.Deposit(context.Background(), DepositParams{
		UserID:      "u1",
		Amount:      1000,
		Description: "Bank deposit - Khan Bank",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if entry.Type != TypeDeposit || entry.Status != StatusCompleted {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.ReceiverID == nil || *entry.ReceiverID != "u1" {
		t.Fatalf("expected receiver u1, got %+v", entry.ReceiverID)
	}
	if got := repo.wallets["u1"].Balance; got != 1000 {
		t.Fatalf("expected balance 1000, got %d", got)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
}

func TestDeposit_RejectsZeroAmount(t *testing.T) {
	svc := NewService(&fakePool{}, newFakeRepo())

	if _, err := svc.Deposit(context.Background(), DepositParams{UserID: "u1", Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestDeposit_DuplicateIdempotencyKey(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	repo.reserved["op-1"] = true
	svc := NewService(pool, repo)

	_, err := svc.Deposit(context.Background(), DepositParams{
		UserID:         "u1",
		Amount:         500,
		IdempotencyKey: "op-1",
	})
	if !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}

	if pool.tx.committed {
		t.Errorf("expected commit to be skipped on replay")
	}
	if !pool.tx.rolled {
		t.Errorf("expected rollback to be called")
	}
	if len(repo.entries) != 0 {
		t.Errorf("expected no ledger entry on replay, got %d", len(repo.entries))
	}
}

func TestTransfer_MovesFunds(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	repo.seed("u1", 1000, 0)
	svc := NewService(pool, repo)

	entry, err := svc.Transfer(context.Background(), TransferParams{
		SenderID:   "u1",
		ReceiverID: "u2",
		Amount:     400,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.wallets["u1"].Balance != 600 {
		t.Fatalf("expected sender balance 600, got %d", repo.wallets["u1"].Balance)
	}
	if repo.wallets["u2"].Balance != 400 {
		t.Fatalf("expected receiver balance 400, got %d", repo.wallets["u2"].Balance)
	}
	if entry.Type != TypeTransfer || entry.Status != StatusCompleted {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit to be called")
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	repo.seed("u1", 100, 0)
	svc := NewService(pool, repo)

	_, err := svc.Transfer(context.Background(), TransferParams{
		SenderID:   "u1",
		ReceiverID: "u2",
		Amount:     400,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
	if repo.wallets["u1"].Balance != 100 {
		t.Errorf("expected sender balance unchanged, got %d", repo.wallets["u1"].Balance)
	}
}

func TestTransfer_RejectsSelf(t *testing.T) {
	svc := NewService(&fakePool{}, newFakeRepo())

	_, err := svc.Transfer(context.Background(), TransferParams{
		SenderID:   "u1",
		ReceiverID: "u1",
		Amount:     10,
	})
	if !errors.Is(err, ErrSelfTransfer) {
		t.Fatalf("expected ErrSelfTransfer, got %v", err)
	}
}

func TestWithdraw_PendingEntry(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	repo.seed("u1", 1000, 0)
	svc := NewService(pool, repo)

	entry, err := svc.Withdraw(context.Background(), WithdrawParams{UserID: "u1", Amount: 300})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if entry.Status != StatusPending || entry.Type != TypeWithdrawal {
		t.Fatalf("expected pending withdrawal, got %+v", entry)
	}
	if repo.wallets["u1"].Balance != 700 {
		t.Fatalf("expected balance 700, got %d", repo.wallets["u1"].Balance)
	}
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	repo.seed("u1", 200, 0)
	svc := NewService(pool, repo)

	_, err := svc.Withdraw(context.Background(), WithdrawParams{UserID: "u1", Amount: 500})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
	if repo.wallets["u1"].Balance != 200 {
		t.Errorf("expected balance unchanged, got %d", repo.wallets["u1"].Balance)
	}
	if len(repo.entries) != 0 {
		t.Errorf("expected no ledger entry, got %d", len(repo.entries))
	}
}

func TestSettleWithdrawal_Approve(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	repo.seed("u1", 700, 0)
	sender := "u1"
	repo.entries = append(repo.entries, Transaction{
		ID: "t1", SenderID: &sender, Amount: 300, Type: TypeWithdrawal, Status: StatusPending,
	})
	svc := NewService(pool, repo)

	entry, err := svc.SettleWithdrawal(context.Background(), SettleWithdrawalParams{TransactionID: "t1", Approve: true})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if entry.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", entry.Status)
	}
	if repo.wallets["u1"].Balance != 700 {
		t.Errorf("expected balance unchanged on approval, got %d", repo.wallets["u1"].Balance)
	}
}

func TestSettleWithdrawal_RejectRefunds(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	repo.seed("u1", 700, 0)
	sender := "u1"
	repo.entries = append(repo.entries, Transaction{
		ID: "t1", SenderID: &sender, Amount: 300, Type: TypeWithdrawal, Status: StatusPending,
	})
	svc := NewService(pool, repo)

	entry, err := svc.SettleWithdrawal(context.Background(), SettleWithdrawalParams{TransactionID: "t1", Approve: false})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if entry.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", entry.Status)
	}
	if repo.wallets["u1"].Balance != 1000 {
		t.Errorf("expected refund to 1000, got %d", repo.wallets["u1"].Balance)
	}
}

func TestSettleWithdrawal_RejectsNonPending(t *testing.T) {
	pool := &fakePool{}
	repo := newFakeRepo()
	sender := "u1"
	repo.entries = append(repo.entries, Transaction{
		ID: "t1", SenderID: &sender, Amount: 300, Type: TypeWithdrawal, Status: StatusCompleted,
	})
	svc := NewService(pool, repo)

	_, err := svc.SettleWithdrawal(context.Background(), SettleWithdrawalParams{TransactionID: "t1", Approve: true})
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:       "0₮",
		500:     "500₮",
		1500000: "1,500,000₮",
	}
	for amount, want := range cases {
		if got := FormatAmount(amount); got != want {
			t.Errorf("FormatAmount(%d) = %q, want %q", amount, got, want)
		}
	}
}

// fakeRepo keeps wallets and ledger entries in memory so service
// arithmetic can be asserted without a database.
type fakeRepo struct {
	wallets  map[string]Wallet
	entries  []Transaction
	reserved map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		wallets:  map[string]Wallet{},
		reserved: map[string]bool{},
	}
}

func (f *fakeRepo) seed(userID string, balance, escrowBalance int64) {
	f.wallets[userID] = Wallet{
		ID:            "w-" + userID,
		UserID:        userID,
		Balance:       balance,
		EscrowBalance: escrowBalance,
	}
}

func (f *fakeRepo) EnsureWalletForUpdate(_ context.Context, _ pgx.Tx, userID string) (Wallet, error) {
	if w, ok := f.wallets[userID]; ok {
		return w, nil
	}
	f.seed(userID, 0, 0)
	return f.wallets[userID], nil
}

func (f *fakeRepo) EnsurePairForUpdate(ctx context.Context, tx pgx.Tx, firstUserID, secondUserID string) (Wallet, Wallet, error) {
	a, err := f.EnsureWalletForUpdate(ctx, tx, firstUserID)
	if err != nil {
		return Wallet{}, Wallet{}, err
	}
	b, err := f.EnsureWalletForUpdate(ctx, tx, secondUserID)
	if err != nil {
		return Wallet{}, Wallet{}, err
	}
	return a, b, nil
}

func (f *fakeRepo) SetBalances(_ context.Context, _ pgx.Tx, userID string, balance, escrowBalance int64) error {
	w, ok := f.wallets[userID]
	if !ok {
		return fmt.Errorf("no wallet for %s", userID)
	}
	if balance < 0 || escrowBalance < 0 {
		return fmt.Errorf("negative balance for %s", userID)
	}
	w.Balance = balance
	w.EscrowBalance = escrowBalance
	f.wallets[userID] = w
	return nil
}

func (f *fakeRepo) InsertTransaction(_ context.Context, _ pgx.Tx, params InsertTransactionParams) (Transaction, error) {
	t := Transaction{
		ID:          fmt.Sprintf("t-%d", len(f.entries)+1),
		SenderID:    params.SenderID,
		ReceiverID:  params.ReceiverID,
		Amount:      params.Amount,
		Type:        params.Type,
		Status:      params.Status,
		Description: params.Description,
		CreatedAt:   time.Now(),
	}
	f.entries = append(f.entries, t)
	return t, nil
}

func (f *fakeRepo) ReserveIdempotencyKey(_ context.Context, _ pgx.Tx, key string) error {
	if f.reserved[key] {
		return ErrDuplicateOperation
	}
	f.reserved[key] = true
	return nil
}

func (f *fakeRepo) GetTransactionForUpdate(_ context.Context, _ pgx.Tx, id string) (Transaction, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (f *fakeRepo) SetTransactionStatus(_ context.Context, _ pgx.Tx, id string, status Status) error {
	for i, e := range f.entries {
		if e.ID == id {
			f.entries[i].Status = status
			return nil
		}
	}
	return ErrTransactionNotFound
}

func (f *fakeRepo) GetWallet(_ context.Context, userID string) (Wallet, error) {
	w, ok := f.wallets[userID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (f *fakeRepo) ListTransactions(_ context.Context, userID string, limit int) ([]Transaction, error) {
	out := []Transaction{}
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := f.entries[i]
		if (e.SenderID != nil && *e.SenderID == userID) || (e.ReceiverID != nil && *e.ReceiverID == userID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListPendingWithdrawals(_ context.Context) ([]Transaction, error) {
	out := []Transaction{}
	for _, e := range f.entries {
		if e.Type == TypeWithdrawal && e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
