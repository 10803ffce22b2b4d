package scanner

import (
	"math"
	"strings"

	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
)

const (
	hoursPerMonth     = 730
	defaultHourlyRate = 0.05

	// A stopped instance keeps billing for its storage. Flat estimate,
	// never zero.
	stoppedMonthlyCost = 5.00

	storageRatePerGB = 0.115
	defaultStorageGB = 20
)

// hourlyRates is the static on-demand rate table used when no live
// pricing is available. Unknown classes fall back to defaultHourlyRate.
var hourlyRates = map[string]float64{
	"t3.micro":  0.0104,
	"t3.small":  0.0208,
	"t3.medium": 0.0416,
	"t3.large":  0.0832,
	"t3.xlarge": 0.1664,

	"db.t3.micro":  0.017,
	"db.t3.small":  0.034,
	"db.t3.medium": 0.068,
}

// EstimateMonthlyCost estimates an instance's monthly bill from the
// static rate table: hourly rate times 730 hours, doubled for multi-AZ
// databases, plus storage at a flat per-GB rate. The result is rounded
// to cents here, at the boundary, and nowhere upstream.
func EstimateMonthlyCost(inst Instance) float64 {
	if inst.State == resource.StateStopped {
		return stoppedMonthlyCost
	}

	rate := defaultHourlyRate
	if r, ok := hourlyRates[strings.ToLower(inst.InstanceType)]; ok {
		rate = r
	}

	monthly := rate * hoursPerMonth
	if inst.Kind == resource.TypeDatabase && inst.MultiAZ {
		monthly *= 2
	}

	storageGB := inst.StorageGB
	if storageGB <= 0 {
		storageGB = defaultStorageGB
	}
	monthly += float64(storageGB) * storageRatePerGB

	return round2(monthly)
}

// HourlyRate returns the on-demand rate for an instance class, or the
// default for unknown classes.
func HourlyRate(instanceType string) float64 {
	if r, ok := hourlyRates[strings.ToLower(instanceType)]; ok {
		return r
	}
	return defaultHourlyRate
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
