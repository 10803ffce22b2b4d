package scanner

import (
	"context"
	"errors"
	"net"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	apperrors "github.com/hostmaster-io/hostmaster/internal/pkg/errors"
)

// authErrorCodes are provider API error codes meaning the credentials
// themselves were rejected. Retrying cannot help.
var authErrorCodes = map[string]bool{
	"UnauthorizedOperation":       true,
	"AuthFailure":                 true,
	"InvalidClientTokenId":        true,
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"SignatureDoesNotMatch":       true,
	"UnrecognizedClientException": true,
}

// transientErrorCodes are throttling and availability codes worth a
// queue-level retry.
var transientErrorCodes = map[string]bool{
	"Throttling":               true,
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
	"ServiceUnavailable":       true,
	"InternalError":            true,
	"RequestTimeout":           true,
}

// classify maps a provider SDK error onto the pipeline's error
// taxonomy: auth failures are permanent, everything else about the
// network or the provider's side is transient.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if authErrorCodes[code] {
			return apperrors.ProviderAuthError(provider, err)
		}
		if transientErrorCodes[code] {
			return apperrors.ProviderTransientError(provider, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == 401 || status == 403 {
			return apperrors.ProviderAuthError(provider, err)
		}
		if status >= 500 {
			return apperrors.ProviderTransientError(provider, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ProviderTransientError(provider, err)
	}

	return apperrors.ProviderTransientError(provider, err)
}
