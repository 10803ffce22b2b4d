package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/hostmaster-io/hostmaster/internal/domain/account"
	"github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// AccountRepository implements account.Repository
type AccountRepository struct {
	db     *sql.DB
	driver string
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sql.DB, driver string) account.Repository {
	return &AccountRepository{db: db, driver: driver}
}

const accountColumns = `id, user_id, region, access_key_sealed, secret_key_sealed,
		budget, tier, alert_email, alert_slack, alert_sms,
		email, slack_webhook_url, phone_number,
		scan_interval_minutes, is_active, created_at, updated_at`

// Create creates a new account with sealed credentials
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) (int64, error) {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Tier == "" {
		a.Tier = account.TierFree
	}

	query := rebind(r.driver, `
		INSERT INTO cloud_accounts (user_id, region, access_key_sealed, secret_key_sealed,
			budget, tier, alert_email, alert_slack, alert_sms,
			email, slack_webhook_url, phone_number,
			scan_interval_minutes, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.QueryRowContext(ctx, query,
		a.UserID, a.Region, a.AccessKeySealed, a.SecretKeySealed,
		a.Budget, a.Tier, a.AlertEmail, a.AlertSlack, a.AlertSMS,
		a.Email, a.SlackWebhookURL, a.PhoneNumber,
		a.ScanIntervalMinutes, a.IsActive, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return 0, errors.StoreError("failed to create account", err)
	}

	return a.ID, nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	query := rebind(r.driver, `
		SELECT `+accountColumns+`
		FROM cloud_accounts
		WHERE id = ?
	`)

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("account")
	}
	if err != nil {
		return nil, errors.StoreError("failed to get account", err)
	}

	return a, nil
}

// ListActive retrieves all active accounts
func (r *AccountRepository) ListActive(ctx context.Context) ([]*account.Account, error) {
	query := rebind(r.driver, `
		SELECT `+accountColumns+`
		FROM cloud_accounts
		WHERE is_active = ?
		ORDER BY id
	`)

	rows, err := r.db.QueryContext(ctx, query, true)
	if err != nil {
		return nil, errors.StoreError("failed to list active accounts", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, errors.StoreError("failed to scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError("failed to iterate accounts", err)
	}

	return accounts, nil
}

// UpdatePreferences updates budget, tier and notification settings
func (r *AccountRepository) UpdatePreferences(ctx context.Context, a *account.Account) error {
	a.UpdatedAt = time.Now().UTC()

	query := rebind(r.driver, `
		UPDATE cloud_accounts
		SET budget = ?, tier = ?, alert_email = ?, alert_slack = ?, alert_sms = ?,
			email = ?, slack_webhook_url = ?, phone_number = ?,
			scan_interval_minutes = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`)

	result, err := r.db.ExecContext(ctx, query,
		a.Budget, a.Tier, a.AlertEmail, a.AlertSlack, a.AlertSMS,
		a.Email, a.SlackWebhookURL, a.PhoneNumber,
		a.ScanIntervalMinutes, a.UpdatedAt,
		a.ID, a.UserID,
	)
	if err != nil {
		return errors.StoreError("failed to update account preferences", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.StoreError("failed to get affected rows", err)
	}
	if rowsAffected == 0 {
		return errors.NotFound("account")
	}

	return nil
}

// Deactivate marks an account inactive
func (r *AccountRepository) Deactivate(ctx context.Context, id int64) error {
	query := rebind(r.driver, `
		UPDATE cloud_accounts
		SET is_active = ?, updated_at = ?
		WHERE id = ?
	`)

	result, err := r.db.ExecContext(ctx, query, false, time.Now().UTC(), id)
	if err != nil {
		return errors.StoreError("failed to deactivate account", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.StoreError("failed to get affected rows", err)
	}
	if rowsAffected == 0 {
		return errors.NotFound("account")
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var a account.Account
	err := row.Scan(
		&a.ID, &a.UserID, &a.Region, &a.AccessKeySealed, &a.SecretKeySealed,
		&a.Budget, &a.Tier, &a.AlertEmail, &a.AlertSlack, &a.AlertSMS,
		&a.Email, &a.SlackWebhookURL, &a.PhoneNumber,
		&a.ScanIntervalMinutes, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
