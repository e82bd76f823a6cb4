package broker

import "tradeKeeper/internal/domain"

// Pause is how long the executor waits before acting on an outcome.
type Pause int

const (
	NoPause Pause = iota
	ShortPause
	LongPause
)

// Outcome is what the executor does after a failed call.
type Outcome int

const (
	// Retry issues the call again while the budget lasts.
	Retry Outcome = iota
	// Resync stops and reports the result as unknown. Reconciliation finds out what happened.
	Resync
	// GiveUp stops and reports a definite failure.
	GiveUp
	// Fatal stops and reports a condition retrying cannot fix.
	Fatal
	// Accept stops and reports success. A modify that changed nothing ends so.
	Accept
)

func (o Outcome) String() string {
	switch o {
	case Retry:
		return "retry"
	case Resync:
		return "resync"
	case GiveUp:
		return "give up"
	case Accept:
		return "accept"
	default:
		return "fatal"
	}
}

// Policy pairs a pause with an outcome.
type Policy struct {
	Pause   Pause
	Outcome Outcome
}

var (
	fatal      = Policy{NoPause, Fatal}
	resync     = Policy{NoPause, Resync}
	giveUp     = Policy{NoPause, GiveUp}
	retryShort = Policy{ShortPause, Retry}
	retryLong  = Policy{LongPause, Retry}
)

var policies = map[domain.ErrorCode]Policy{
	domain.CodeInvalidFunctionParamValue: fatal,
	domain.CodeCustomIndicatorError:      fatal,
	domain.CodeStringParameterExpected:   fatal,
	domain.CodeIntegerParameterExpected:  fatal,
	domain.CodeUnknownSymbol:             fatal,
	domain.CodeInvalidPriceParam:         fatal,
	domain.CodeCommonError:               fatal,
	domain.CodeInvalidTradeParameters:    fatal,
	domain.CodeOldVersion:                fatal,
	domain.CodeAccountDisabled:           fatal,
	domain.CodeInvalidAccount:            fatal,
	domain.CodeInvalidTradeVolume:        fatal,
	domain.CodeNotEnoughMoney:            fatal,
	domain.CodeOrderLocked:               fatal,
	domain.CodeTradeExpirationDenied:     fatal,
	domain.CodeNotEnoughRights:           fatal,
	domain.CodeMalfunctionalTrade:        fatal,

	domain.CodeTradeNotAllowed:          retryLong,
	domain.CodeLongsNotAllowed:          retryLong,
	domain.CodeShortsNotAllowed:         retryLong,
	domain.CodeServerBusy:               retryLong,
	domain.CodeBrokerBusy:               retryLong,
	domain.CodeTooFrequentRequests:      retryLong,
	domain.CodeTooManyRequests:          retryLong,
	domain.CodeInvalidStops:             retryLong,
	domain.CodeMarketClosed:             retryLong,
	domain.CodeTradeDisabled:            retryLong,
	domain.CodeLongPositionsOnlyAllowed: retryLong,
	domain.CodeTradeModifyDenied:        retryLong,
	domain.CodeNoConnection:             retryLong,

	domain.CodePriceChanged:     retryShort,
	domain.CodeInvalidPrice:     retryShort,
	domain.CodeTradeContextBusy: retryShort,

	domain.CodeTradeTimeout:  resync,
	domain.CodeTradeTimeout2: resync,
	domain.CodeTradeTimeout3: resync,

	domain.CodeOffQuotes:          giveUp,
	domain.CodeRequote:            giveUp,
	domain.CodeTradeTimeout4:      giveUp,
	domain.CodeTradeTooManyOrders: giveUp,
	domain.CodeInvalidTicket:      giveUp,
	domain.CodeNoResult:           giveUp,
}

// modifyPolicies override the common table for modify calls.
var modifyPolicies = map[domain.ErrorCode]Policy{
	domain.CodeNoResult: {NoPause, Accept},
}

// ModifyPolicyFor returns the recovery policy of an error code raised by a
// modify call.
func ModifyPolicyFor(code domain.ErrorCode) Policy {
	if p, ok := modifyPolicies[code]; ok {
		return p
	}
	return PolicyFor(code)
}

// PolicyFor returns the recovery policy of an error code. Unlisted codes are fatal.
func PolicyFor(code domain.ErrorCode) Policy {
	if p, ok := policies[code]; ok {
		return p
	}
	return fatal
}
