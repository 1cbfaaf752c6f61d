package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexbit/backoffice/internal/domain"
	"github.com/nexbit/backoffice/internal/models"
)

// Repository is the Postgres persistence layer. It implements the
// service.Store contract plus the CRUD the HTTP handlers need.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// runInTx executes fn within a database transaction.
func (r *Repository) runInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func requireExactlyOne(tag pgconn.CommandTag, notFound error) error {
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

// Members

func (r *Repository) CreateMember(ctx context.Context, m *models.Member) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	query := `INSERT INTO members (id, username, email, balance, created_at) VALUES ($1, $2, $3, $4, NOW()) RETURNING created_at`
	err := r.db.QueryRow(ctx, query, m.ID, m.Username, m.Email, m.BalanceMicros).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

func (r *Repository) GetMember(ctx context.Context, id string) (*models.Member, error) {
	m := &models.Member{}
	query := `SELECT id, username, email, balance, created_at FROM members WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&m.ID, &m.Username, &m.Email, &m.BalanceMicros, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (r *Repository) GetMemberByUsername(ctx context.Context, username string) (*models.Member, error) {
	m := &models.Member{}
	query := `SELECT id, username, email, balance, created_at FROM members WHERE username = $1`
	err := r.db.QueryRow(ctx, query, username).Scan(&m.ID, &m.Username, &m.Email, &m.BalanceMicros, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member by username: %w", err)
	}
	return m, nil
}

func (r *Repository) ListMembers(ctx context.Context, limit, offset int32) ([]models.Member, error) {
	query := `
		SELECT id, username, email, balance, created_at
		FROM members
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.Username, &m.Email, &m.BalanceMicros, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, nil
}

func (r *Repository) DeleteMember(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return requireExactlyOne(tag, models.ErrMemberNotFound)
}

// Movements

func (r *Repository) CreateMovement(ctx context.Context, mov *models.Movement) error {
	if mov.ID == "" {
		mov.ID = uuid.NewString()
	}
	if mov.OrderID == "" {
		mov.OrderID = uuid.NewString()
	}
	query := `
		INSERT INTO movements (id, order_id, member_id, amount, currency, status, kind, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		mov.ID, mov.OrderID, mov.MemberID, mov.Amount, mov.Currency, mov.Status, mov.Kind, mov.Note,
	).Scan(&mov.CreatedAt, &mov.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create movement: %w", err)
	}
	return nil
}

func (r *Repository) GetMovement(ctx context.Context, kind domain.MovementKind, id string) (*models.Movement, error) {
	mov := &models.Movement{}
	query := `
		SELECT id, order_id, member_id, amount, currency, status, kind, note, created_at, updated_at
		FROM movements
		WHERE id = $1 AND kind = $2
	`
	err := r.db.QueryRow(ctx, query, id, kind).Scan(
		&mov.ID, &mov.OrderID, &mov.MemberID, &mov.Amount, &mov.Currency, &mov.Status, &mov.Kind, &mov.Note, &mov.CreatedAt, &mov.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrMovementNotFound
		}
		return nil, fmt.Errorf("failed to get movement: %w", err)
	}
	return mov, nil
}

// ListMovements filters by kind and status; an empty filter matches everything.
func (r *Repository) ListMovements(ctx context.Context, kind, status string, limit, offset int32) ([]models.Movement, error) {
	query := `
		SELECT id, order_id, member_id, amount, currency, status, kind, note, created_at, updated_at
		FROM movements
		WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, kind, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (r *Repository) ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int32) ([]models.Movement, error) {
	query := `
		SELECT id, order_id, member_id, amount, currency, status, kind, note, created_at, updated_at
		FROM movements
		WHERE kind = 'deposit' AND status = 'pending' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deposits: %w", err)
	}
	defer rows.Close()
	return scanMovements(rows)
}

func (r *Repository) ListProcessingWithdrawals(ctx context.Context, olderThan time.Time, limit int32) ([]models.Movement, error) {
	query := `
		SELECT id, order_id, member_id, amount, currency, status, kind, note, created_at, updated_at
		FROM movements
		WHERE kind = 'withdrawal' AND status = 'processing' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing withdrawals: %w", err)
	}
	defer rows.Close()
	return scanMovements(rows)
}

func scanMovements(rows pgx.Rows) ([]models.Movement, error) {
	var movements []models.Movement
	for rows.Next() {
		var mov models.Movement
		if err := rows.Scan(
			&mov.ID, &mov.OrderID, &mov.MemberID, &mov.Amount, &mov.Currency, &mov.Status, &mov.Kind, &mov.Note, &mov.CreatedAt, &mov.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		movements = append(movements, mov)
	}
	return movements, nil
}

// UpdateMovementStatusIf transitions the record only when its status still
// equals from. Zero rows affected means another worker already handled the
// record; that is reported as claimed=false, not an error.
func (r *Repository) UpdateMovementStatusIf(ctx context.Context, kind domain.MovementKind, id string, from, to domain.MovementStatus) (bool, error) {
	query := `UPDATE movements SET status = $1, updated_at = NOW() WHERE id = $2 AND kind = $3 AND status = $4`
	tag, err := r.db.Exec(ctx, query, to, id, kind, from)
	if err != nil {
		return false, fmt.Errorf("failed to update movement status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetMovementStatus writes the status unconditionally (override path).
func (r *Repository) SetMovementStatus(ctx context.Context, kind domain.MovementKind, id string, to domain.MovementStatus) error {
	query := `UPDATE movements SET status = $1, updated_at = NOW() WHERE id = $2 AND kind = $3`
	tag, err := r.db.Exec(ctx, query, to, id, kind)
	if err != nil {
		return fmt.Errorf("failed to set movement status: %w", err)
	}
	return requireExactlyOne(tag, models.ErrMovementNotFound)
}

func (r *Repository) CountDepositsCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM movements WHERE kind = 'deposit' AND created_at >= $1`
	if err := r.db.QueryRow(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count deposits: %w", err)
	}
	return count, nil
}

// CreditDeposit claims a pending deposit and credits the member as one
// transaction: conditional pending->done update, atomic balance increment,
// ledger append. claimed=false means the record was no longer pending and
// nothing was written.
func (r *Repository) CreditDeposit(ctx context.Context, mov models.Movement, actor string) (int64, bool, error) {
	var (
		newBalance int64
		claimed    bool
	)
	err := r.runInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE movements SET status = 'done', updated_at = NOW() WHERE id = $1 AND kind = 'deposit' AND status = 'pending'`,
			mov.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to claim deposit: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		err = tx.QueryRow(ctx,
			`UPDATE members SET balance = balance + $1 WHERE id = $2 RETURNING balance`,
			mov.Amount, mov.MemberID,
		).Scan(&newBalance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrMemberNotFound
			}
			return fmt.Errorf("failed to credit member: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO ledger (id, member_id, kind, amount, status, note, actor, created_at) VALUES ($1, $2, 'deposit', $3, 'done', $4, $5, NOW())`,
			uuid.NewString(), mov.MemberID, mov.Amount, "deposit "+mov.OrderID, actor,
		)
		if err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return newBalance, claimed, nil
}

// AdjustBalance applies a signed delta to the member balance and appends a
// ledger row in one transaction, returning the balance before and after.
func (r *Repository) AdjustBalance(ctx context.Context, memberID string, delta int64, reason, actor string) (int64, int64, error) {
	var oldBalance, newBalance int64
	err := r.runInTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE members SET balance = balance + $1 WHERE id = $2 RETURNING balance - $1, balance`,
			delta, memberID,
		).Scan(&oldBalance, &newBalance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrMemberNotFound
			}
			return fmt.Errorf("failed to adjust balance: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO ledger (id, member_id, kind, amount, status, note, actor, created_at) VALUES ($1, $2, 'adjust', $3, 'done', $4, $5, NOW())`,
			uuid.NewString(), memberID, delta, reason, actor,
		)
		if err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return oldBalance, newBalance, nil
}

// Ledger

func (r *Repository) ListLedger(ctx context.Context, memberID string, limit, offset int32) ([]models.LedgerEntry, error) {
	query := `
		SELECT id, member_id, kind, amount, status, note, actor, created_at
		FROM ledger
		WHERE member_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, memberID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.Kind, &e.Amount, &e.Status, &e.Note, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Admins

func (r *Repository) CreateAdmin(ctx context.Context, a *models.Admin) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := `
		INSERT INTO admins (id, username, password_hash, email, is_super, two_fa_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, a.ID, a.Username, a.PasswordHash, a.Email, a.IsSuper, a.TwoFAEnabled).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

func (r *Repository) GetAdmin(ctx context.Context, id string) (*models.Admin, error) {
	a := &models.Admin{}
	query := `SELECT id, username, password_hash, email, is_super, two_fa_enabled, created_at FROM admins WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.IsSuper, &a.TwoFAEnabled, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return a, nil
}

func (r *Repository) GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	a := &models.Admin{}
	query := `SELECT id, username, password_hash, email, is_super, two_fa_enabled, created_at FROM admins WHERE username = $1`
	err := r.db.QueryRow(ctx, query, username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.IsSuper, &a.TwoFAEnabled, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin by username: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	query := `SELECT id, username, password_hash, email, is_super, two_fa_enabled, created_at FROM admins ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var admins []models.Admin
	for rows.Next() {
		var a models.Admin
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Email, &a.IsSuper, &a.TwoFAEnabled, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, a)
	}
	return admins, nil
}

func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM admins`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

func (r *Repository) DeleteAdmin(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM admins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete admin: %w", err)
	}
	return requireExactlyOne(tag, models.ErrAdminNotFound)
}

// Settings

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

func (r *Repository) ListSettings(ctx context.Context) ([]models.Setting, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM settings ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []models.Setting
	for rows.Next() {
		var s models.Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, nil
}

func (r *Repository) UpsertSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := r.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	return nil
}
