// Package postgres implements the calendar sync stores on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SierraArcega/territory-plan-sub002/internal/domain"
)

// Repository provides Postgres-backed persistence for connections, staged events, activities,
// directory lookups and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const connectionColumns = `connection_id, user_id, provider, account_ref, org_domain, sync_enabled, last_sync_at, status, last_error, created_at, updated_at`

func scanConnection(row pgx.Row) (*domain.CalendarConnection, error) {
	var conn domain.CalendarConnection
	if err := row.Scan(&conn.ID, &conn.UserID, &conn.Provider, &conn.AccountRef, &conn.OrgDomain, &conn.SyncEnabled, &conn.LastSyncAt, &conn.Status, &conn.LastError, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// GetConnection implements domain.ConnectionStore.
func (r *Repository) GetConnection(ctx context.Context, connectionID string) (*domain.CalendarConnection, error) {
	return scanConnection(r.pool.QueryRow(ctx, `SELECT `+connectionColumns+` FROM calendar_connections WHERE connection_id=$1`, connectionID))
}

// GetConnectionByUser implements domain.ConnectionStore.
func (r *Repository) GetConnectionByUser(ctx context.Context, userID string) (*domain.CalendarConnection, error) {
	return scanConnection(r.pool.QueryRow(ctx, `SELECT `+connectionColumns+` FROM calendar_connections WHERE user_id=$1`, userID))
}

// ListSyncableConnections implements domain.ConnectionStore.
func (r *Repository) ListSyncableConnections(ctx context.Context) ([]domain.CalendarConnection, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+connectionColumns+` FROM calendar_connections
        WHERE sync_enabled AND status <> 'disconnected'
        ORDER BY connection_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CalendarConnection, 0)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conn)
	}
	return out, rows.Err()
}

// SaveConnection implements domain.ConnectionStore. The unique user_id column keeps one
// connection per user; reconnecting updates that record in place and keeps its connection_id.
func (r *Repository) SaveConnection(ctx context.Context, conn domain.CalendarConnection) error {
	const stmt = `INSERT INTO calendar_connections (connection_id, user_id, provider, account_ref, org_domain, sync_enabled, last_sync_at, status, last_error)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (user_id) DO UPDATE SET
            provider = EXCLUDED.provider,
            account_ref = EXCLUDED.account_ref,
            org_domain = EXCLUDED.org_domain,
            sync_enabled = EXCLUDED.sync_enabled,
            last_sync_at = EXCLUDED.last_sync_at,
            status = EXCLUDED.status,
            last_error = EXCLUDED.last_error,
            updated_at = NOW()`

	_, err := r.pool.Exec(ctx, stmt,
		conn.ID,
		conn.UserID,
		conn.Provider,
		conn.AccountRef,
		conn.OrgDomain,
		conn.SyncEnabled,
		conn.LastSyncAt,
		string(conn.Status),
		conn.LastError,
	)
	return err
}

// UpdateConnectionSettings implements domain.ConnectionStore.
func (r *Repository) UpdateConnectionSettings(ctx context.Context, userID string, settings domain.ConnectionSettings) (*domain.CalendarConnection, error) {
	row := r.pool.QueryRow(ctx, `UPDATE calendar_connections
        SET sync_enabled = COALESCE($2::boolean, sync_enabled),
            org_domain = COALESCE($3::text, org_domain),
            updated_at = NOW()
        WHERE user_id=$1
        RETURNING `+connectionColumns, userID, settings.SyncEnabled, settings.OrgDomain)
	conn, err := scanConnection(row)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.ErrConnectionNotFound
	}
	return conn, nil
}

// RecordSyncOutcome implements domain.ConnectionStore.
func (r *Repository) RecordSyncOutcome(ctx context.Context, connectionID string, status domain.ConnectionStatus, syncedAt time.Time, lastError string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE calendar_connections
        SET status=$2, last_sync_at=$3, last_error=$4, updated_at=NOW()
        WHERE connection_id=$1`, connectionID, string(status), syncedAt.UTC(), lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// DeleteConnection implements domain.ConnectionStore. Staged events stay for audit.
func (r *Repository) DeleteConnection(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM calendar_connections WHERE user_id=$1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}
