package dex

import (
	"errors"

	"github.com/helinwang/matchdex/pkg/calc"
)

// Input validation errors.
var (
	ErrZeroAmount       = calc.ErrZeroAmount
	ErrInvalidPrice     = calc.ErrInvalidPrice
	ErrInvalidSide      = calc.ErrInvalidSide
	ErrZeroAddress      = errors.New("zero address")
	ErrIdenticalTokens  = errors.New("identical tokens")
	ErrDifferentLength  = errors.New("different length")
	ErrInvalidDecimals  = errors.New("invalid decimals")
	ErrInvalidFeeRate   = errors.New("invalid fee rate")
	ErrInvalidSlippage  = errors.New("invalid slippage")
	ErrInvalidOrderType = errors.New("invalid order type")
	ErrEmptyMatch       = errors.New("no matched orders")
)

// Authorization errors.
var (
	ErrNotOrderCreator   = errors.New("not order creator")
	ErrNotOwner          = errors.New("caller is not the administrator")
	ErrNotAdmin          = errors.New("caller is not a project admin")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrTxAlreadyExecuted = errors.New("tx already executed")
	ErrInvalidNonce      = errors.New("invalid account nonce")
)

// State errors.
var (
	ErrOrderDoesNotExist  = errors.New("order does not exist")
	ErrInvalidOrderStatus = errors.New("invalid order status")
	ErrNonCancellable     = errors.New("order is not cancellable")
	ErrPairNotEstablished = errors.New("pair not established")
	ErrDecimalsAlreadySet = errors.New("pair decimals already set")
	ErrPairMismatch       = errors.New("bad token match")
	ErrSideMismatch       = errors.New("orders are on the same side")
)

// Economic errors.
var (
	ErrBadPriceMatch      = errors.New("bad price match")
	ErrSlippageTooBig     = errors.New("slippage too big")
	ErrInsufficientLocked = errors.New("fill exceeds locked amount")
	ErrInsufficientValue  = errors.New("insufficient native value")
	ErrUnexpectedValue    = errors.New("native value sent to a non native operation")
	ErrNativeUnsupported  = errors.New("native asset settlement not configured")
	ErrNoFeesToWithdraw   = errors.New("no fees to withdraw")
	ErrTransferFailed     = errors.New("transfer failed")
)

// Transaction envelope errors.
var (
	ErrUnknownTxnType = errors.New("unknown txn type")
	ErrMalformedTxn   = errors.New("malformed txn")
)
