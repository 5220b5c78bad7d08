package cloudwatch

import (
	"context"
	"errors"
	"io"
	"net"

	"cwinsights/internal/querier"

	"github.com/aws/smithy-go"
)

var transientCodes = map[string]bool{
	"ThrottlingException":         true,
	"Throttling":                  true,
	"TooManyRequestsException":    true,
	"RequestLimitExceeded":        true,
	"ServiceUnavailableException": true,
	"ServiceUnavailable":          true,
	"InternalFailure":             true,
	"InternalServerError":         true,
	"RequestTimeout":              true,
	"RequestTimeoutException":     true,
}

var permanentCodes = map[string]bool{
	"MalformedQueryException":     true,
	"InvalidParameterException":   true,
	"ResourceNotFoundException":   true,
	"LimitExceededException":      true,
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"InvalidSignatureException":   true,
	"ExpiredTokenException":       true,
	"InvalidClientTokenId":        true,
	"SignatureDoesNotMatch":       true,
}

type statusCoder interface{ HTTPStatusCode() int }

// classify wraps err as transient or permanent for the poller.
// Cancellation is returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		code := ae.ErrorCode()
		switch {
		case transientCodes[code]:
			return querier.Transient(op, err)
		case permanentCodes[code]:
			return querier.Permanent(op, err)
		case ae.ErrorFault() == smithy.FaultServer:
			return querier.Transient(op, err)
		}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch c := sc.HTTPStatusCode(); {
		case c == 429 || c >= 500:
			return querier.Transient(op, err)
		case c >= 400:
			return querier.Permanent(op, err)
		}
	}

	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return querier.Transient(op, err)
	}
	// other API errors, credential resolution, request building
	return querier.Permanent(op, err)
}
