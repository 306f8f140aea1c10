package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/shared"
)

// ConnectionRepository handles [models.ProviderConnection] persistence.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new [ConnectionRepository] with the given database connection
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a new provider connection with a generated ID.
func (r *ConnectionRepository) Create(conn *models.ProviderConnection) error {
	if conn.UserID == "" {
		return fmt.Errorf("validation failed: %w", shared.ErrInvalidInput)
	}
	if _, err := models.ParseProvider(string(conn.Provider)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if conn.ID == "" {
		conn.ID = shared.GenerateID()
	}
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query := `
		INSERT INTO provider_connections (id, user_id, provider, access_token, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	active := 0
	if conn.Active {
		active = 1
	}
	_, err := r.db.Exec(query, conn.ID, conn.UserID, string(conn.Provider), conn.AccessToken, active, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}

	return nil
}

// GetActive retrieves the user's active connection for a provider.
// Returns nil without error when no active connection exists.
func (r *ConnectionRepository) GetActive(userID string, provider models.Provider) (*models.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider, access_token, active, created_at, updated_at
		FROM provider_connections
		WHERE user_id = ? AND provider = ? AND active = 1 AND deleted_at IS NULL
	`

	conn, err := scanConnection(r.db.QueryRow(query, userID, string(provider)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query connection: %w", err)
	}

	return conn, nil
}

// ListActiveByUser retrieves all active connections for a user.
func (r *ConnectionRepository) ListActiveByUser(userID string) ([]*models.ProviderConnection, error) {
	query := `
		SELECT id, user_id, provider, access_token, active, created_at, updated_at
		FROM provider_connections
		WHERE user_id = ? AND active = 1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.ProviderConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return conns, nil
}

// Deactivate marks a connection inactive.
func (r *ConnectionRepository) Deactivate(id string) error {
	result, err := r.db.Exec(`
		UPDATE provider_connections SET active = 0, updated_at = ? WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connection not found or already deleted: %s", id)
	}

	return nil
}

func scanConnection(row rowScanner) (*models.ProviderConnection, error) {
	var (
		conn     models.ProviderConnection
		provider string
		active   int
	)

	err := row.Scan(&conn.ID, &conn.UserID, &provider, &conn.AccessToken, &active, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}

	conn.Provider = models.Provider(provider)
	conn.Active = active == 1
	return &conn, nil
}
