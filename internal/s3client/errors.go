package s3client

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Sentinel errors for the store-API failures the fetch logic branches on.
// Anything that is neither access-denied nor not-found passes through
// classify unchanged.
var (
	ErrAccessDenied = errors.New("s3: access denied")
	ErrNotFound     = errors.New("s3: object not found")
)

// classify wraps SDK errors with the matching sentinel so callers can use
// errors.Is instead of switching on provider error codes.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "Forbidden":
			return fmt.Errorf("%w: %s", ErrAccessDenied, apiErr.ErrorMessage())
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.ErrorMessage())
		}
	}

	return err
}

func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
