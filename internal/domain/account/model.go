package account

import "time"

// Account identifies one set of cloud credentials owned by a user.
// Access and secret keys are stored sealed (see internal/vault) and are
// never written anywhere in plaintext. Accounts are deactivated, never
// physically deleted.
type Account struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"user_id"`
	Region              string    `json:"region"`
	AccessKeySealed     string    `json:"-"`
	SecretKeySealed     string    `json:"-"`
	Budget              float64   `json:"budget"`
	Tier                string    `json:"tier"`
	AlertEmail          bool      `json:"alert_email"`
	AlertSlack          bool      `json:"alert_slack"`
	AlertSMS            bool      `json:"alert_sms"`
	Email               string    `json:"email"`
	SlackWebhookURL     string    `json:"-"`
	PhoneNumber         string    `json:"-"`
	ScanIntervalMinutes int       `json:"scan_interval_minutes"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Account tiers
const (
	TierFree         = "free"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)
