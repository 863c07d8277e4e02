package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock ledger operations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorNotFound indicates the book does not have a stock record.
	StockErrorNotFound StockErrorCode = "stock_not_found"
	// StockErrorNegativeResult indicates an adjustment would drive the quantity below zero.
	StockErrorNegativeResult StockErrorCode = "stock_negative_result"
)

// StockError wraps ledger-specific failures with machine readable codes.
type StockError struct {
	Op      string
	Code    StockErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// InsufficientStockDetail reports which book failed an all-or-nothing
// decrement and by how much. It travels as the Err of a StockError with
// code StockErrorInsufficient so services can surface the numbers.
type InsufficientStockDetail struct {
	BookID    string
	Requested int
	Available int
}

// Error implements the error interface.
func (d *InsufficientStockDetail) Error() string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("book %s: requested %d, available %d", d.BookID, d.Requested, d.Available)
}
