package verification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a pgx connection pool.
// Schema lives in migrations/verify_db.sql.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL-backed repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetPending(ctx context.Context, userID string) (*PendingVerification, error) {
	query := `
		SELECT user_id, display_name, group_id, email, verification_code,
		       code_expires_at, attempts, status, joined_at, last_attempt
		FROM pending_verifications
		WHERE user_id = $1
	`

	var p PendingVerification
	var email, code *string
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.DisplayName,
		&p.GroupID,
		&email,
		&code,
		&p.CodeExpiresAt,
		&p.Attempts,
		&p.Status,
		&p.JoinedAt,
		&p.LastAttempt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPendingNotFound
		}
		return nil, err
	}

	if email != nil {
		p.Email = *email
	}
	if code != nil {
		p.VerificationCode = *code
	}
	return &p, nil
}

func (r *PostgresRepository) UpsertPending(ctx context.Context, pending *PendingVerification) error {
	query := `
		INSERT INTO pending_verifications
			(user_id, display_name, group_id, email, verification_code,
			 code_expires_at, attempts, status, joined_at, last_attempt)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			group_id = EXCLUDED.group_id,
			email = EXCLUDED.email,
			verification_code = EXCLUDED.verification_code,
			code_expires_at = EXCLUDED.code_expires_at,
			attempts = EXCLUDED.attempts,
			status = EXCLUDED.status,
			joined_at = EXCLUDED.joined_at,
			last_attempt = EXCLUDED.last_attempt
	`

	_, err := r.db.Exec(ctx, query,
		pending.UserID,
		pending.DisplayName,
		pending.GroupID,
		pending.Email,
		pending.VerificationCode,
		pending.CodeExpiresAt,
		pending.Attempts,
		pending.Status,
		pending.JoinedAt,
		pending.LastAttempt,
	)
	return err
}

func (r *PostgresRepository) DeletePending(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM pending_verifications WHERE user_id = $1`, userID)
	return err
}

func (r *PostgresRepository) GetVerified(ctx context.Context, userID string) (*VerifiedUser, error) {
	query := `
		SELECT user_id, display_name, email, group_id, verified_at, verification_method
		FROM verified_users
		WHERE user_id = $1
	`
	return r.scanVerified(r.db.QueryRow(ctx, query, userID))
}

func (r *PostgresRepository) FindVerifiedByEmail(ctx context.Context, email string) (*VerifiedUser, error) {
	query := `
		SELECT user_id, display_name, email, group_id, verified_at, verification_method
		FROM verified_users
		WHERE email = $1
	`
	return r.scanVerified(r.db.QueryRow(ctx, query, NormalizeEmail(email)))
}

func (r *PostgresRepository) scanVerified(row pgx.Row) (*VerifiedUser, error) {
	var u VerifiedUser
	err := row.Scan(
		&u.UserID,
		&u.DisplayName,
		&u.Email,
		&u.GroupID,
		&u.VerifiedAt,
		&u.VerificationMethod,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVerifiedNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepository) CreateVerified(ctx context.Context, user *VerifiedUser) error {
	query := `
		INSERT INTO verified_users
			(user_id, display_name, email, group_id, verified_at, verification_method)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		user.UserID,
		user.DisplayName,
		NormalizeEmail(user.Email),
		user.GroupID,
		user.VerifiedAt,
		user.VerificationMethod,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return ErrEmailTaken
			}
			return ErrAlreadyVerified
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) AppendSecurityLog(ctx context.Context, entry *SecurityLogEntry) error {
	query := `
		INSERT INTO security_logs (id, user_id, display_name, action, details, success, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.DisplayName,
		entry.Action,
		entry.Details,
		entry.Success,
		entry.Timestamp,
	)
	return err
}

func (r *PostgresRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM pending_verifications`).Scan(&count)
	return count, err
}

func (r *PostgresRepository) CountVerified(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	var err error
	if since.IsZero() {
		err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM verified_users`).Scan(&count)
	} else {
		err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM verified_users WHERE verified_at >= $1`, since).Scan(&count)
	}
	return count, err
}

func (r *PostgresRepository) CountSecurityLogs(ctx context.Context, action Action, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM security_logs
		WHERE ($1 = '' OR action = $1)
		AND ($2::timestamptz IS NULL OR timestamp >= $2)
	`

	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	var count int64
	err := r.db.QueryRow(ctx, query, string(action), sinceArg).Scan(&count)
	return count, err
}

func (r *PostgresRepository) ListSecurityLogs(ctx context.Context, limit int) ([]SecurityLogEntry, error) {
	query := `
		SELECT id, user_id, display_name, action, details, success, timestamp
		FROM security_logs
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SecurityLogEntry
	for rows.Next() {
		var e SecurityLogEntry
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.DisplayName,
			&e.Action,
			&e.Details,
			&e.Success,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresRepository) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM pending_verifications WHERE joined_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
