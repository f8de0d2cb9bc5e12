package proxy

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/beauremus/pacsys/pacsyserr"
)

// toStatus maps a backend/policy error to the RPC status code spec.md
// assigns it: DeviceError -> aborted (with facility/error_code/message
// embedded in the message), UnsupportedOperation -> unimplemented,
// AuthenticationError -> unauthenticated, timeouts -> deadline-exceeded,
// policy denial -> permission-denied, everything else -> internal.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	var deviceErr *pacsyserr.DeviceError
	if errors.As(err, &deviceErr) {
		return status.Errorf(codes.Aborted, "(%d, %d, %s)", deviceErr.Facility, deviceErr.ErrorCode, deviceErr.Message)
	}

	var unsupported *pacsyserr.UnsupportedOperation
	if errors.As(err, &unsupported) {
		return status.Errorf(codes.Unimplemented, "%s backend does not support %s", unsupported.Backend, unsupported.Operation)
	}

	var authErr *pacsyserr.AuthenticationError
	if errors.As(err, &authErr) {
		return status.Error(codes.Unauthenticated, authErr.Error())
	}

	var policyErr *pacsyserr.PolicyDenied
	if errors.As(err, &policyErr) {
		return status.Error(codes.PermissionDenied, policyErr.Reason)
	}

	var timeoutErr *pacsyserr.SSHTimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
}
