package core

import "fmt"

// PartialWriteError reports a purchase whose installments were only partly
// appended. The rows already written stay in the ledger.
type PartialWriteError struct {
	PurchaseID string
	Written    int
	Total      int
	Err        error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: %d of %d installments appended for purchase %s: %v",
		e.Written, e.Total, e.PurchaseID, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}
