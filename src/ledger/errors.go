package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNonPositiveValue is returned for transactions with a value <= 0.
	ErrNonPositiveValue = errors.New("transaction value must be positive")
	// ErrInsufficientBalance is returned when the origin cannot cover the value.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateTransaction is returned when the transaction is already pending.
	ErrDuplicateTransaction = errors.New("transaction already in mempool")
	// ErrTransactionConfirmed is returned when the transaction is already in
	// a block of the chain.
	ErrTransactionConfirmed = errors.New("transaction already confirmed")

	// ErrBadLinkage is returned when a block does not extend its predecessor.
	ErrBadLinkage = errors.New("block does not link to previous block")
	// ErrBadIndex is returned when a block index is not predecessor + 1.
	ErrBadIndex = errors.New("unexpected block index")
	// ErrBadHash is returned when the stored hash differs from the recomputed one.
	ErrBadHash = errors.New("block hash mismatch")
	// ErrInsufficientWork is returned when a hash does not meet the difficulty.
	ErrInsufficientWork = errors.New("block hash does not meet difficulty")
	// ErrGenesisMismatch is returned when a chain starts from another genesis.
	ErrGenesisMismatch = errors.New("genesis block mismatch")
	// ErrEmptyChain is returned when validating a chain with no blocks.
	ErrEmptyChain = errors.New("empty chain")
	// ErrChainNotLonger is returned by ReplaceChain when the candidate is not
	// strictly longer than the local chain.
	ErrChainNotLonger = errors.New("candidate chain is not longer")
)

// ValidationError is a locally rejected transaction or block. Err is one of
// the sentinel errors of this package.
type ValidationError struct {
	Err    error
	Detail string
}

// NewValidationError wraps err with a formatted detail message.
func NewValidationError(err error, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Err:    err,
		Detail: fmt.Sprintf(format, args...),
	}
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Detail)
}

// Unwrap allows errors.Is against the sentinel values.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation checks that err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
