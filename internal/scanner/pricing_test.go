package scanner

import (
	"errors"
	"testing"

	"github.com/aws/smithy-go"

	"github.com/hostmaster-io/hostmaster/internal/domain/resource"
	apperrors "github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

func TestEstimateMonthlyCost(t *testing.T) {
	tests := []struct {
		name string
		inst Instance
		want float64
	}{
		{
			name: "running t3.micro with default storage",
			inst: Instance{Kind: resource.TypeCompute, InstanceType: "t3.micro", State: resource.StateRunning},
			// 0.0104*730 + 20*0.115
			want: 9.89,
		},
		{
			name: "running t3.large",
			inst: Instance{Kind: resource.TypeCompute, InstanceType: "t3.large", State: resource.StateRunning},
			want: 63.04,
		},
		{
			name: "stopped instance still bills storage",
			inst: Instance{Kind: resource.TypeCompute, InstanceType: "t3.xlarge", State: resource.StateStopped},
			want: 5.00,
		},
		{
			name: "unknown class falls back to default rate",
			inst: Instance{Kind: resource.TypeCompute, InstanceType: "z9.mega", State: resource.StateRunning},
			// 0.05*730 + 20*0.115
			want: 38.80,
		},
		{
			name: "multi-AZ database doubles compute",
			inst: Instance{
				Kind:         resource.TypeDatabase,
				InstanceType: "db.t3.medium",
				State:        resource.StateAvailable,
				MultiAZ:      true,
				StorageGB:    100,
			},
			// 0.068*730*2 + 100*0.115
			want: 110.78,
		},
		{
			name: "single-AZ database with allocated storage",
			inst: Instance{
				Kind:         resource.TypeDatabase,
				InstanceType: "db.t3.micro",
				State:        resource.StateAvailable,
				StorageGB:    50,
			},
			// 0.017*730 + 50*0.115
			want: 18.16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateMonthlyCost(tt.inst); got != tt.want {
				t.Errorf("EstimateMonthlyCost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateMonthlyCost_StoppedNeverZero(t *testing.T) {
	for _, instanceType := range []string{"t3.micro", "t3.xlarge", "db.t3.medium", "unknown"} {
		inst := Instance{InstanceType: instanceType, State: resource.StateStopped}
		if got := EstimateMonthlyCost(inst); got <= 0 {
			t.Errorf("stopped %s costs %v, want > 0", instanceType, got)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "rejected credentials are permanent",
			err:      &smithy.GenericAPIError{Code: "AuthFailure", Message: "credentials invalid"},
			wantCode: apperrors.ErrCodeProviderAuth,
		},
		{
			name:     "invalid token is permanent",
			err:      &smithy.GenericAPIError{Code: "InvalidClientTokenId", Message: "unknown token"},
			wantCode: apperrors.ErrCodeProviderAuth,
		},
		{
			name:     "throttling is transient",
			err:      &smithy.GenericAPIError{Code: "Throttling", Message: "rate exceeded"},
			wantCode: apperrors.ErrCodeProviderTransient,
		},
		{
			name:     "request limit is transient",
			err:      &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "slow down"},
			wantCode: apperrors.ErrCodeProviderTransient,
		},
		{
			name:     "plain network error is transient",
			err:      errors.New("connection reset by peer"),
			wantCode: apperrors.ErrCodeProviderTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("aws", tt.err)
			if code := apperrors.Code(got); code != tt.wantCode {
				t.Errorf("classify() code = %s, want %s", code, tt.wantCode)
			}

			wantRetry := tt.wantCode == apperrors.ErrCodeProviderTransient
			if apperrors.Retryable(got) != wantRetry {
				t.Errorf("Retryable() = %v, want %v", apperrors.Retryable(got), wantRetry)
			}
		})
	}
}
