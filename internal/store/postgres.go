package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/creditledger/internal/models"
)

const pgUniqueViolation = "23505"

// Postgres implements Store and IdempotencyStore on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Connect builds a pool with the decimal codec registered on every
// connection, and verifies connectivity.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

func (p *Postgres) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	err := p.pool.QueryRow(ctx,
		"SELECT id, name, email, is_treasury, created_at FROM accounts WHERE id = $1",
		id).Scan(&a.ID, &a.Name, &a.Email, &a.IsTreasury, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

func (p *Postgres) GetAssetType(ctx context.Context, id int64) (*models.AssetType, error) {
	var at models.AssetType
	var description *string
	err := p.pool.QueryRow(ctx,
		"SELECT id, name, description, is_active, created_at FROM asset_types WHERE id = $1",
		id).Scan(&at.ID, &at.Name, &description, &at.IsActive, &at.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetTypeNotFound
		}
		return nil, fmt.Errorf("get asset type: %w", err)
	}
	if description != nil {
		at.Description = *description
	}
	return &at, nil
}

func (p *Postgres) ListBalances(ctx context.Context, userID int64) ([]models.AssetBalance, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT at.id, at.name, w.balance
		FROM wallets w
		JOIN asset_types at ON at.id = w.asset_type_id
		WHERE w.user_id = $1
		ORDER BY at.id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	balances := []models.AssetBalance{}
	for rows.Next() {
		var b models.AssetBalance
		if err := rows.Scan(&b.AssetTypeID, &b.AssetTypeName, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (p *Postgres) ListAssetHistory(ctx context.Context, userID int64) ([]models.AssetHistory, error) {
	balances, err := p.ListBalances(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, transaction_id, user_id, asset_type_id, entry_type, amount, description, created_at
		FROM audit_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	byAsset := make(map[int64][]models.AuditEntry)
	for rows.Next() {
		var e models.AuditEntry
		var description *string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.UserID, &e.AssetTypeID,
			&e.EntryType, &e.Amount, &description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if description != nil {
			e.Description = *description
		}
		byAsset[e.AssetTypeID] = append(byAsset[e.AssetTypeID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history := make([]models.AssetHistory, 0, len(balances))
	for _, b := range balances {
		entries := byAsset[b.AssetTypeID]
		if entries == nil {
			entries = []models.AuditEntry{}
		}
		history = append(history, models.AssetHistory{
			AssetTypeID:   b.AssetTypeID,
			AssetTypeName: b.AssetTypeName,
			Balance:       b.Balance,
			History:       entries,
		})
	}
	return history, nil
}

func (p *Postgres) ExecLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgLedgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (t *pgLedgerTx) LockWallet(ctx context.Context, userID, assetTypeID int64) (*models.Wallet, error) {
	var w models.Wallet
	err := t.tx.QueryRow(ctx,
		"SELECT id, user_id, asset_type_id, balance FROM wallets WHERE user_id = $1 AND asset_type_id = $2 FOR UPDATE",
		userID, assetTypeID).Scan(&w.ID, &w.UserID, &w.AssetTypeID, &w.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock acquisition failed: %w", err)
	}
	return &w, nil
}

func (t *pgLedgerTx) DebitWallet(ctx context.Context, userID, assetTypeID int64, amount decimal.Decimal) (*models.Wallet, error) {
	var w models.Wallet
	err := t.tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance - $3, updated_at = now()
		WHERE user_id = $1 AND asset_type_id = $2
		RETURNING id, user_id, asset_type_id, balance`,
		userID, assetTypeID, amount).Scan(&w.ID, &w.UserID, &w.AssetTypeID, &w.Balance)
	if err != nil {
		return nil, fmt.Errorf("wallet debit failed: %w", err)
	}
	return &w, nil
}

func (t *pgLedgerTx) CreditWallet(ctx context.Context, userID, assetTypeID int64, amount decimal.Decimal) (*models.Wallet, error) {
	var w models.Wallet
	err := t.tx.QueryRow(ctx, `
		INSERT INTO wallets (user_id, asset_type_id, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, asset_type_id)
		DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
		RETURNING id, user_id, asset_type_id, balance`,
		userID, assetTypeID, amount).Scan(&w.ID, &w.UserID, &w.AssetTypeID, &w.Balance)
	if err != nil {
		return nil, fmt.Errorf("wallet credit failed: %w", err)
	}
	return &w, nil
}

func (t *pgLedgerTx) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO audit_ledger (transaction_id, user_id, asset_type_id, entry_type, amount, description)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.TransactionID, entry.UserID, entry.AssetTypeID, entry.EntryType, entry.Amount, entry.Description)
	if err != nil {
		return fmt.Errorf("ledger entry failed: %w", err)
	}
	return nil
}

// IdempotencyStore implementation.

const idempotencyScopeWhere = "user_id = $1 AND method = $2 AND path = $3 AND idempotency_key = $4"

func (p *Postgres) Get(ctx context.Context, scope models.IdempotencyScope) (*models.IdempotencyRecord, error) {
	rec := models.IdempotencyRecord{Scope: scope}
	err := p.pool.QueryRow(ctx, `
		SELECT status, payload_hash, in_progress_until, expires_at, COALESCE(response_status, 0), response_body
		FROM idempotency_keys WHERE `+idempotencyScopeWhere,
		scope.UserID, scope.Method, scope.Path, scope.Key).
		Scan(&rec.Status, &rec.PayloadHash, &rec.InProgressUntil, &rec.ExpiresAt, &rec.ResponseStatus, &rec.ResponseBody)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) Create(ctx context.Context, rec *models.IdempotencyRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, method, path, idempotency_key, status, payload_hash, in_progress_until, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Scope.UserID, rec.Scope.Method, rec.Scope.Path, rec.Scope.Key,
		rec.Status, rec.PayloadHash, rec.InProgressUntil, rec.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("key reservation failed: %w", err)
	}
	return nil
}

func (p *Postgres) Replace(ctx context.Context, rec *models.IdempotencyRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "DELETE FROM idempotency_keys WHERE "+idempotencyScopeWhere,
		rec.Scope.UserID, rec.Scope.Method, rec.Scope.Path, rec.Scope.Key)
	if err != nil {
		return fmt.Errorf("key replace failed: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, method, path, idempotency_key, status, payload_hash, in_progress_until, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Scope.UserID, rec.Scope.Method, rec.Scope.Path, rec.Scope.Key,
		rec.Status, rec.PayloadHash, rec.InProgressUntil, rec.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("key replace failed: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) ExtendInProgress(ctx context.Context, scope models.IdempotencyScope, observed, until time.Time) error {
	ct, err := p.pool.Exec(ctx, `
		UPDATE idempotency_keys SET in_progress_until = $5
		WHERE `+idempotencyScopeWhere+` AND status = $6 AND in_progress_until = $7`,
		scope.UserID, scope.Method, scope.Path, scope.Key,
		until, models.IdempotencyInProgress, observed)
	if err != nil {
		return fmt.Errorf("extend in-progress failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStaleRecord
	}
	return nil
}

func (p *Postgres) Complete(ctx context.Context, scope models.IdempotencyScope, status int, body []byte) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE idempotency_keys SET status = $5, response_status = $6, response_body = $7
		WHERE `+idempotencyScopeWhere,
		scope.UserID, scope.Method, scope.Path, scope.Key,
		models.IdempotencyCompleted, status, body)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, scope models.IdempotencyScope) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM idempotency_keys WHERE "+idempotencyScopeWhere,
		scope.UserID, scope.Method, scope.Path, scope.Key)
	if err != nil {
		return fmt.Errorf("idempotency delete failed: %w", err)
	}
	return nil
}
