package ports

import (
	"errors"
	"fmt"

	"tradeKeeper/internal/domain"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Venue Errors
	ErrVenueUnavailable  = errors.New("venue is unavailable")
	ErrConnectionFailed  = errors.New("failed to connect to the venue")
	ErrRateLimited       = errors.New("venue rate limit exceeded")
	ErrAuthFailed        = errors.New("venue authentication failed")
	ErrInsufficientFunds = errors.New("insufficient funds for operation")
	ErrOrderNotFound     = errors.New("order not found on the venue")

	// Engine Errors
	ErrRejected        = errors.New("operation rejected")
	ErrOutcomeUnknown  = errors.New("operation outcome unknown")
	ErrBrokerFatal     = errors.New("fatal broker condition")
	ErrDesync          = errors.New("local model out of sync with venue")
	ErrTrackingAnomaly = errors.New("position tracking anomaly")
	ErrTradingLocked   = errors.New("opening new positions is locked")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)

// VenueError is returned by venue trading calls. Code drives the recovery policy.
type VenueError struct {
	Op   string
	Code domain.ErrorCode
	Msg  string
}

func (e *VenueError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Msg)
}

// NewVenueError builds a VenueError.
func NewVenueError(op string, code domain.ErrorCode, msg string) *VenueError {
	return &VenueError{Op: op, Code: code, Msg: msg}
}

// ErrorCodeOf extracts the venue error code from err.
// Errors that are not VenueErrors map through the standard sentinels.
func ErrorCodeOf(err error) domain.ErrorCode {
	if err == nil {
		return domain.CodeNone
	}
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Code
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return domain.CodeTradeTimeout
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrVenueUnavailable):
		return domain.CodeNoConnection
	case errors.Is(err, ErrRateLimited):
		return domain.CodeTooManyRequests
	case errors.Is(err, ErrInsufficientFunds):
		return domain.CodeNotEnoughMoney
	case errors.Is(err, ErrOrderNotFound):
		return domain.CodeInvalidTicket
	case errors.Is(err, ErrInvalidRequest):
		return domain.CodeInvalidTradeParameters
	}
	return domain.CodeCommonError
}
