package scanner

import (
	"context"
)

// Credentials carry one account's decrypted provider keys. They exist
// only for the duration of a scan and are never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Instance is a raw billable asset descriptor as the provider reports
// it, before cost estimation and persistence.
type Instance struct {
	ID           string
	Name         string
	Kind         string // resource type: ec2, rds
	InstanceType string
	Region       string
	State        string
	Engine       string
	MultiAZ      bool
	StorageGB    int
}

// Spend is actual month-to-date spend from the billing API, grouped by
// service and region.
type Spend struct {
	Total     float64
	ByService map[string]float64
	ByRegion  map[string]float64
}

// CloudAPI abstracts the provider SDK. The worker depends on this
// interface; production wires the AWS client, tests wire a fake.
type CloudAPI interface {
	// ListInstances returns compute and database instances in at least
	// the running and stopped states.
	ListInstances(ctx context.Context, creds Credentials) ([]Instance, error)

	// MonthToDateSpend returns actual spend from the billing API.
	// Callers fall back to estimates when this fails: billing access
	// is an optional permission.
	MonthToDateSpend(ctx context.Context, creds Credentials) (*Spend, error)
}
