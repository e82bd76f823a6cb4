package domain

import "fmt"

// ErrorCode enumerates the venue error conditions a trading call can report.
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeNoResult
	CodeCommonError
	CodeInvalidTradeParameters
	CodeServerBusy
	CodeOldVersion
	CodeNoConnection
	CodeNotEnoughRights
	CodeTooFrequentRequests
	CodeMalfunctionalTrade
	CodeAccountDisabled
	CodeInvalidAccount
	CodeTradeTimeout
	CodeInvalidPrice
	CodeInvalidStops
	CodeInvalidTradeVolume
	CodeMarketClosed
	CodeTradeDisabled
	CodeNotEnoughMoney
	CodePriceChanged
	CodeOffQuotes
	CodeBrokerBusy
	CodeRequote
	CodeOrderLocked
	CodeLongPositionsOnlyAllowed
	CodeTooManyRequests
	CodeTradeTimeout2
	CodeTradeTimeout3
	CodeTradeTimeout4
	CodeTradeModifyDenied
	CodeTradeContextBusy
	CodeTradeExpirationDenied
	CodeTradeTooManyOrders
	CodeTradeNotAllowed
	CodeLongsNotAllowed
	CodeShortsNotAllowed
	CodeInvalidTicket
	CodeInvalidFunctionParamValue
	CodeCustomIndicatorError
	CodeStringParameterExpected
	CodeIntegerParameterExpected
	CodeUnknownSymbol
	CodeInvalidPriceParam
)

var codeNames = map[ErrorCode]string{
	CodeNone:                      "none",
	CodeNoResult:                  "no result",
	CodeCommonError:               "common error",
	CodeInvalidTradeParameters:    "invalid trade parameters",
	CodeServerBusy:                "server busy",
	CodeOldVersion:                "old version",
	CodeNoConnection:              "no connection",
	CodeNotEnoughRights:           "not enough rights",
	CodeTooFrequentRequests:       "too frequent requests",
	CodeMalfunctionalTrade:        "malfunctional trade",
	CodeAccountDisabled:           "account disabled",
	CodeInvalidAccount:            "invalid account",
	CodeTradeTimeout:              "trade timeout",
	CodeInvalidPrice:              "invalid price",
	CodeInvalidStops:              "invalid stops",
	CodeInvalidTradeVolume:        "invalid trade volume",
	CodeMarketClosed:              "market closed",
	CodeTradeDisabled:             "trade disabled",
	CodeNotEnoughMoney:            "not enough money",
	CodePriceChanged:              "price changed",
	CodeOffQuotes:                 "off quotes",
	CodeBrokerBusy:                "broker busy",
	CodeRequote:                   "requote",
	CodeOrderLocked:               "order locked",
	CodeLongPositionsOnlyAllowed:  "long positions only allowed",
	CodeTooManyRequests:           "too many requests",
	CodeTradeTimeout2:             "trade timeout 2",
	CodeTradeTimeout3:             "trade timeout 3",
	CodeTradeTimeout4:             "trade timeout 4",
	CodeTradeModifyDenied:         "modify denied",
	CodeTradeContextBusy:          "trade context busy",
	CodeTradeExpirationDenied:     "expiration denied",
	CodeTradeTooManyOrders:        "too many orders",
	CodeTradeNotAllowed:           "trade not allowed",
	CodeLongsNotAllowed:           "longs not allowed",
	CodeShortsNotAllowed:          "shorts not allowed",
	CodeInvalidTicket:             "invalid ticket",
	CodeInvalidFunctionParamValue: "invalid function parameter value",
	CodeCustomIndicatorError:      "custom indicator error",
	CodeStringParameterExpected:   "string parameter expected",
	CodeIntegerParameterExpected:  "integer parameter expected",
	CodeUnknownSymbol:             "unknown symbol",
	CodeInvalidPriceParam:         "invalid price parameter",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}
