package main

import "fmt"

// Kind identifies a distinct class of domain error. Kinds are compared by
// value, never by formatted message, so callers (API handlers, sync/mine
// loops) can branch on what went wrong.
type Kind string

const (
	KindWrongHash          Kind = "WrongHash"
	KindWrongMerkleRoot    Kind = "WrongMerkleRoot"
	KindWrongNonce         Kind = "WrongNonce"
	KindInvalidSignature   Kind = "InvalidSignature"
	KindBadAddress         Kind = "BadAddress"
	KindNegativeAmount     Kind = "NegativeAmount"
	KindFeeTooLow          Kind = "FeeTooLow"
	KindAlreadyConfirmed   Kind = "AlreadyConfirmed"
	KindAlreadyPending     Kind = "AlreadyPending"
	KindDifficultyMismatch Kind = "DifficultyMismatch"
	KindBlockInvalid       Kind = "BlockInvalid"
	KindBadRewardTx        Kind = "BadRewardTx"
	KindBadTxFields        Kind = "BadTxFields"
	KindBlockExists        Kind = "BlockExists"
	KindMissingParent      Kind = "MissingParent"
	KindPrevHashMismatch   Kind = "PrevHashMismatch"
	KindDoubleSpend        Kind = "DoubleSpend"
	KindInsufficientFunds  Kind = "InsufficientFunds"
	KindUnknownEntity      Kind = "UnknownEntity"
	KindTransportError     Kind = "TransportError"
	KindSystemError        Kind = "SystemError"
)

// ChainError is the error kind carried by the chain engine and its
// collaborators. It is never wrapped in a generic error string: callers
// switch on Kind, not on Error().
type ChainError struct {
	ChainKind Kind
	Msg       string
}

func (e *ChainError) Error() string {
	if e.Msg == "" {
		return string(e.ChainKind)
	}
	return fmt.Sprintf("%s: %s", e.ChainKind, e.Msg)
}

// Is lets errors.Is(err, &ChainError{ChainKind: KindX}) match on kind alone.
func (e *ChainError) Is(target error) bool {
	t, ok := target.(*ChainError)
	if !ok {
		return false
	}
	return t.ChainKind == e.ChainKind
}

func newErr(kind Kind, format string, args ...interface{}) *ChainError {
	return &ChainError{ChainKind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or KindSystemError if err is not a
// *ChainError. Used by the API layer to label the rejection metric with the
// error kind.
func KindOf(err error) Kind {
	var ce *ChainError
	if ce, _ = err.(*ChainError); ce != nil {
		return ce.ChainKind
	}
	return KindSystemError
}
