package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/ledgerlink/books-api/models"
	"github.com/ledgerlink/books-api/utils"
)

type ConnectionService struct {
	db *sql.DB
}

func NewConnectionService(db *sql.DB) *ConnectionService {
	return &ConnectionService{db: db}
}

const connectionColumns = `id, tenant_id, realm_id, access_token, refresh_token,
	access_expires_at, refresh_expires_at, scope, status, COALESCE(last_error, ''),
	created_at, updated_at`

func scanConnection(row *sql.Row) (*models.Connection, error) {
	var conn models.Connection
	err := row.Scan(
		&conn.ID, &conn.TenantID, &conn.RealmID, &conn.AccessToken, &conn.RefreshToken,
		&conn.AccessExpiresAt, &conn.RefreshExpiresAt, &conn.Scope, &conn.Status,
		&conn.LastError, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// GetConnected loads the tenant's connection filtered to status=connected.
// Absence is ErrNoConnection, deliberately distinct from an expired token.
func (s *ConnectionService) GetConnected(ctx context.Context, tenantID string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM qbo_connections WHERE tenant_id = $1 AND status = $2`
	conn, err := scanConnection(s.db.QueryRowContext(ctx, query, tenantID, models.StatusConnected))
	if err == sql.ErrNoRows {
		return nil, utils.ErrNoConnection
	}
	return conn, err
}

// Get loads the tenant's connection regardless of status, for the status
// read endpoint. sql.ErrNoRows passes through.
func (s *ConnectionService) Get(ctx context.Context, tenantID string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM qbo_connections WHERE tenant_id = $1`
	return scanConnection(s.db.QueryRowContext(ctx, query, tenantID))
}

// Upsert writes the connection created by a successful OAuth exchange.
// One row per tenant; reconnecting replaces the stored credential pair.
func (s *ConnectionService) Upsert(ctx context.Context, conn *models.Connection) (string, error) {
	query := `
		INSERT INTO qbo_connections (
			tenant_id, realm_id, access_token, refresh_token,
			access_expires_at, refresh_expires_at, scope, status, last_error,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NOW(), NOW())
		ON CONFLICT (tenant_id)
		DO UPDATE SET
			realm_id = EXCLUDED.realm_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			access_expires_at = EXCLUDED.access_expires_at,
			refresh_expires_at = EXCLUDED.refresh_expires_at,
			scope = EXCLUDED.scope,
			status = EXCLUDED.status,
			last_error = NULL,
			updated_at = NOW()
		RETURNING id
	`

	var id string
	err := s.db.QueryRowContext(ctx, query,
		conn.TenantID, conn.RealmID, conn.AccessToken, conn.RefreshToken,
		conn.AccessExpiresAt, conn.RefreshExpiresAt, conn.Scope, conn.Status,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTokensIfCurrent persists a refresh result only if the stored
// access expiry still matches the one observed before the refresh. Returns
// false when another refresh already won the race; the caller should
// re-read instead of overwriting.
func (s *ConnectionService) UpdateTokensIfCurrent(
	ctx context.Context,
	tenantID string,
	observedExpiry time.Time,
	accessToken string,
	refreshToken string,
	accessExpiresAt time.Time,
	refreshExpiresAt *time.Time,
) (bool, error) {
	query := `
		UPDATE qbo_connections
		SET access_token = $1,
			refresh_token = $2,
			access_expires_at = $3,
			refresh_expires_at = COALESCE($4, refresh_expires_at),
			status = $5,
			last_error = NULL,
			updated_at = NOW()
		WHERE tenant_id = $6 AND access_expires_at = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		accessToken, refreshToken, accessExpiresAt, refreshExpiresAt,
		models.StatusConnected, tenantID, observedExpiry,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkNeedsReauth records a failed refresh. The stored refresh credential
// is left untouched in case the failure was transient on the provider side.
func (s *ConnectionService) MarkNeedsReauth(ctx context.Context, tenantID string, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE qbo_connections SET status = $1, last_error = $2, updated_at = NOW() WHERE tenant_id = $3`,
		models.StatusNeedsReauth, reason, tenantID,
	)
	return err
}

// ListConnectedTenantIDs returns every tenant with a live connection, for
// the scheduled sync-all trigger.
func (s *ConnectionService) ListConnectedTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id FROM qbo_connections WHERE status = $1 ORDER BY created_at`,
		models.StatusConnected,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenantIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenantIDs = append(tenantIDs, id)
	}
	return tenantIDs, rows.Err()
}

// Disconnect deletes the connection and every derived row for the tenant.
func (s *ConnectionService) Disconnect(ctx context.Context, tenantID string) error {
	return utils.WithTransaction(s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM financial_metrics WHERE tenant_id = $1`, tenantID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM qbo_reports WHERE tenant_id = $1`, tenantID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM report_periods WHERE tenant_id = $1`, tenantID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM qbo_connections WHERE tenant_id = $1`, tenantID); err != nil {
			return err
		}
		return nil
	})
}
