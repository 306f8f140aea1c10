// package repositories implements SQLite persistence for subscriptions and
// provider connections
package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/subsync/internal/models"
	"github.com/desertthunder/subsync/internal/shared"
)

// SubscriptionRepository handles [models.Subscription] persistence.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new [SubscriptionRepository] with the given database connection
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a new subscription with a generated ID.
func (r *SubscriptionRepository) Create(sub *models.Subscription) error {
	if sub.UserID == "" || sub.ProviderChannelID == "" {
		return fmt.Errorf("validation failed: %w", shared.ErrInvalidInput)
	}
	if _, err := models.ParseProvider(string(sub.Provider)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if sub.ID == "" {
		sub.ID = shared.GenerateID()
	}
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
		INSERT INTO subscriptions (id, user_id, provider, provider_channel_id, title, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	active := 0
	if sub.Active {
		active = 1
	}
	_, err := r.db.Exec(query, sub.ID, sub.UserID, string(sub.Provider), sub.ProviderChannelID, sub.Title, active, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	return nil
}

// Get retrieves a subscription by ID, excluding soft-deleted rows.
func (r *SubscriptionRepository) Get(id string) (*models.Subscription, error) {
	query := `
		SELECT id, user_id, provider, provider_channel_id, title, active, created_at, updated_at
		FROM subscriptions
		WHERE id = ? AND deleted_at IS NULL
	`

	sub, err := scanSubscription(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subscription not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}

	return sub, nil
}

// ListActiveByUser retrieves all active subscriptions for a user.
func (r *SubscriptionRepository) ListActiveByUser(userID string) ([]*models.Subscription, error) {
	query := `
		SELECT id, user_id, provider, provider_channel_id, title, active, created_at, updated_at
		FROM subscriptions
		WHERE user_id = ? AND active = 1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return subs, nil
}

// Deactivate marks a subscription inactive without deleting it.
func (r *SubscriptionRepository) Deactivate(id string) error {
	result, err := r.db.Exec(`
		UPDATE subscriptions SET active = 0, updated_at = ? WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("subscription not found or already deleted: %s", id)
	}

	return nil
}

// Delete soft-deletes a subscription by ID.
func (r *SubscriptionRepository) Delete(id string) error {
	result, err := r.db.Exec(`
		UPDATE subscriptions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("subscription not found or already deleted: %s", id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub      models.Subscription
		provider string
		active   int
	)

	err := row.Scan(&sub.ID, &sub.UserID, &provider, &sub.ProviderChannelID, &sub.Title, &active, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sub.Provider = models.Provider(provider)
	sub.Active = active == 1
	return &sub, nil
}
