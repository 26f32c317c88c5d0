package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/helinwang/matchdex/pkg/dex"
)

var errorStatus = []struct {
	status int
	errs   []error
}{
	{http.StatusNotFound, []error{dex.ErrOrderDoesNotExist}},
	{http.StatusForbidden, []error{
		dex.ErrNotOrderCreator, dex.ErrNotOwner, dex.ErrNotAdmin, dex.ErrInvalidSignature,
	}},
	{http.StatusConflict, []error{dex.ErrTxAlreadyExecuted, dex.ErrInvalidNonce}},
	{http.StatusBadRequest, []error{
		dex.ErrZeroAmount, dex.ErrInvalidPrice, dex.ErrInvalidSide, dex.ErrZeroAddress,
		dex.ErrIdenticalTokens, dex.ErrDifferentLength, dex.ErrInvalidDecimals,
		dex.ErrInvalidFeeRate, dex.ErrInvalidSlippage, dex.ErrInvalidOrderType,
		dex.ErrEmptyMatch, dex.ErrUnknownTxnType, dex.ErrMalformedTxn,
	}},
	{http.StatusUnprocessableEntity, []error{
		dex.ErrInvalidOrderStatus, dex.ErrNonCancellable, dex.ErrPairNotEstablished,
		dex.ErrDecimalsAlreadySet, dex.ErrPairMismatch, dex.ErrSideMismatch,
		dex.ErrBadPriceMatch, dex.ErrSlippageTooBig, dex.ErrInsufficientLocked,
		dex.ErrInsufficientValue, dex.ErrUnexpectedValue, dex.ErrNativeUnsupported,
		dex.ErrNoFeesToWithdraw, dex.ErrTransferFailed,
	}},
}

func statusOf(err error) int {
	for _, s := range errorStatus {
		for _, e := range s.errs {
			if errors.Is(err, e) {
				return s.status
			}
		}
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
