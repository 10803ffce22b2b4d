package account

import "context"

// Repository defines the interface for account data access
type Repository interface {
	// Create creates a new account with sealed credentials
	Create(ctx context.Context, a *Account) (int64, error)

	// GetByID retrieves an account by ID
	GetByID(ctx context.Context, id int64) (*Account, error)

	// ListActive retrieves all active accounts (recurring scheduling)
	ListActive(ctx context.Context) ([]*Account, error)

	// UpdatePreferences updates budget, tier and notification settings
	UpdatePreferences(ctx context.Context, a *Account) error

	// Deactivate marks an account inactive; accounts are never deleted
	Deactivate(ctx context.Context, id int64) error
}
