package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/domain"
)

// PostgresStore backs the core with a pgx connection pool. The paired
// operations (debit+record, decide+mutate) run inside a single database
// transaction with conditional updates so the atomicity invariants hold
// across server instances, not just within one process.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acct domain.Account) (*domain.Account, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (account_number, owner_name, balance, status, pin_hash)
		 VALUES ($1, $2, $3, 'active', $4)
		 RETURNING id, status, created_at`,
		acct.Number, acct.OwnerName, acct.Balance, acct.PINHash,
	).Scan(&acct.ID, &acct.Status, &acct.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("account insert failed: %w", err)
	}
	return &acct, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var acct domain.Account
	err := s.db.QueryRow(ctx,
		`SELECT id, account_number, owner_name, balance, status, COALESCE(pin_hash, ''), created_at
		 FROM accounts WHERE id = $1`, id,
	).Scan(&acct.ID, &acct.Number, &acct.OwnerName, &acct.Balance, &acct.Status, &acct.PINHash, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func (s *PostgresStore) SetAccountStatus(ctx context.Context, id string, status domain.AccountStatus) error {
	tag, err := s.db.Exec(ctx, "UPDATE accounts SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PostgresStore) SetPINHash(ctx context.Context, id, hash string) error {
	tag, err := s.db.Exec(ctx, "UPDATE accounts SET pin_hash = $1 WHERE id = $2", hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// classifyAdjustFailure runs after a conditional update matched no rows,
// to report which precondition failed.
func classifyAdjustFailure(ctx context.Context, q rowQuerier, id string) error {
	var status domain.AccountStatus
	err := q.QueryRow(ctx, "SELECT status FROM accounts WHERE id = $1", id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	if status == domain.AccountBlocked {
		return ErrAccountRestricted
	}
	return ErrInsufficientFunds
}

const adjustBalanceSQL = `
	UPDATE accounts
	SET balance = balance + $1
	WHERE id = $2
	  AND balance + $1 >= 0
	  AND ($1 >= 0 OR status = 'active')
	RETURNING balance`

// AdjustBalance is a single atomic check-and-set: the WHERE clause
// carries the funds and restriction preconditions so two concurrent
// debits can never both pass a stale balance read.
func (s *PostgresStore) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := s.db.QueryRow(ctx, adjustBalanceSQL, delta, id).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, classifyAdjustFailure(ctx, s.db, id)
		}
		return decimal.Zero, err
	}
	return newBalance, nil
}

func insertTransactionTx(ctx context.Context, q rowQuerier, rec domain.Transaction) (*domain.Transaction, error) {
	err := q.QueryRow(ctx,
		`INSERT INTO transactions
		   (account_id, direction, tx_type, amount, description, reference_number,
		    recipient_name, recipient_account, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		rec.AccountID, rec.Direction, rec.Type, rec.Amount, rec.Description, rec.Reference,
		rec.CounterpartyName, rec.CounterpartyAccount, rec.Status, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("transaction insert failed: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) adjustAndRecord(ctx context.Context, accountID string, delta decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var newBalance decimal.Decimal
	err = tx.QueryRow(ctx, adjustBalanceSQL, delta, accountID).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, decimal.Zero, classifyAdjustFailure(ctx, tx, accountID)
		}
		return nil, decimal.Zero, err
	}

	stored, err := insertTransactionTx(ctx, tx, record)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, decimal.Zero, fmt.Errorf("tx commit failed: %w", err)
	}
	return stored, newBalance, nil
}

func (s *PostgresStore) DebitAndRecord(ctx context.Context, accountID string, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	return s.adjustAndRecord(ctx, accountID, amount.Neg(), record)
}

func (s *PostgresStore) CreditAndRecord(ctx context.Context, accountID string, amount decimal.Decimal, record domain.Transaction) (*domain.Transaction, decimal.Decimal, error) {
	return s.adjustAndRecord(ctx, accountID, amount, record)
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, rec domain.Transaction) (*domain.Transaction, error) {
	return insertTransactionTx(ctx, s.db, rec)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID string, filter domain.TxFilter) ([]domain.Transaction, error) {
	query := `SELECT id, account_id, direction, tx_type, amount, description, reference_number,
	                 COALESCE(recipient_name, ''), COALESCE(recipient_account, ''), status, created_at
	          FROM transactions WHERE account_id = $1`
	args := []any{accountID}
	if filter != "" && filter != domain.TxFilterAll {
		query += " AND tx_type = $2"
		args = append(args, string(filter))
	}
	query += " ORDER BY created_at DESC, reference_number DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var rec domain.Transaction
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Direction, &rec.Type, &rec.Amount,
			&rec.Description, &rec.Reference, &rec.CounterpartyName, &rec.CounterpartyAccount,
			&rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertApproval(ctx context.Context, item domain.ApprovalItem) (*domain.ApprovalItem, error) {
	err := s.db.QueryRow(ctx,
		`INSERT INTO approvals (account_id, kind, amount, method, reference_number, status)
		 VALUES ($1, $2, $3, $4, $5, 'pending')
		 RETURNING id, status, created_at`,
		item.AccountID, item.Kind, item.Amount, item.Method, item.Reference,
	).Scan(&item.ID, &item.Status, &item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("approval insert failed: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) GetApproval(ctx context.Context, id string) (*domain.ApprovalItem, error) {
	var item domain.ApprovalItem
	err := s.db.QueryRow(ctx,
		`SELECT id, account_id, kind, amount, COALESCE(method, ''), reference_number, status,
		        COALESCE(admin_notes, ''), created_at, decided_at
		 FROM approvals WHERE id = $1`, id,
	).Scan(&item.ID, &item.AccountID, &item.Kind, &item.Amount, &item.Method, &item.Reference,
		&item.Status, &item.AdminNotes, &item.CreatedAt, &item.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApprovalNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *PostgresStore) ListApprovals(ctx context.Context, status domain.ApprovalStatus) ([]domain.ApprovalItem, error) {
	query := `SELECT id, account_id, kind, amount, COALESCE(method, ''), reference_number, status,
	                 COALESCE(admin_notes, ''), created_at, decided_at
	          FROM approvals`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ApprovalItem
	for rows.Next() {
		var item domain.ApprovalItem
		if err := rows.Scan(&item.ID, &item.AccountID, &item.Kind, &item.Amount, &item.Method,
			&item.Reference, &item.Status, &item.AdminNotes, &item.CreatedAt, &item.DecidedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DecideApproval claims the pending row with a conditional update, then
// applies the ledger mutation and paired record in the same transaction.
// The first decider wins; the loser's conditional update matches no rows.
func (s *PostgresStore) DecideApproval(ctx context.Context, id string, decision domain.ApprovalStatus, notes string, decidedAt time.Time, record domain.Transaction) (*domain.ApprovalItem, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var item domain.ApprovalItem
	err = tx.QueryRow(ctx,
		`UPDATE approvals
		 SET status = $1, admin_notes = $2, decided_at = $3
		 WHERE id = $4 AND status = 'pending'
		 RETURNING id, account_id, kind, amount, COALESCE(method, ''), reference_number, status,
		           COALESCE(admin_notes, ''), created_at, decided_at`,
		decision, notes, decidedAt, id,
	).Scan(&item.ID, &item.AccountID, &item.Kind, &item.Amount, &item.Method, &item.Reference,
		&item.Status, &item.AdminNotes, &item.CreatedAt, &item.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if chkErr := s.db.QueryRow(ctx,
				"SELECT EXISTS(SELECT 1 FROM approvals WHERE id = $1)", id).Scan(&exists); chkErr != nil {
				return nil, chkErr
			}
			if !exists {
				return nil, ErrApprovalNotFound
			}
			return nil, ErrAlreadyDecided
		}
		return nil, err
	}

	if decision == domain.ApprovalApproved {
		delta := item.Amount
		if item.Kind == domain.KindWithdrawal {
			delta = delta.Neg()
		}
		var newBalance decimal.Decimal
		err = tx.QueryRow(ctx, adjustBalanceSQL, delta, item.AccountID).Scan(&newBalance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, classifyAdjustFailure(ctx, tx, item.AccountID)
			}
			return nil, err
		}
		if _, err = insertTransactionTx(ctx, tx, record); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return &item, nil
}

var _ Store = (*PostgresStore)(nil)
