package warehouse

import "errors"

// Status is the coarse result vocabulary exposed to operators.
type Status string

const (
	StatusSuccess           Status = "SUCCESS"
	StatusOperationFailed   Status = "OPERATION_FAILED"
	StatusClientNotFound    Status = "CLIENT_NOT_FOUND"
	StatusSupplierNotFound  Status = "SUPPLIER_NOT_FOUND"
	StatusProductNotFound   Status = "PRODUCT_NOT_FOUND"
	StatusOrderNotFound     Status = "ORDER_NOT_FOUND"
	StatusInvoiceNotFound   Status = "INVOICE_NOT_FOUND"
	StatusBackorderNotFound Status = "BACKORDER_NOT_FOUND"
	StatusAlreadyExists     Status = "ALREADY_EXISTS"
	StatusInvalidQuantity   Status = "INVALID_QUANTITY"
	StatusAlreadyAllocated  Status = "ALREADY_ALLOCATED"
)

// StatusOf maps an error returned by Service to a Status. A nil error is
// SUCCESS; anything unrecognised is OPERATION_FAILED.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrClientNotFound):
		return StatusClientNotFound
	case errors.Is(err, ErrSupplierNotFound):
		return StatusSupplierNotFound
	case errors.Is(err, ErrProductNotFound):
		return StatusProductNotFound
	case errors.Is(err, ErrOrderNotFound):
		return StatusOrderNotFound
	case errors.Is(err, ErrInvoiceNotFound):
		return StatusInvoiceNotFound
	case errors.Is(err, ErrBackorderNotFound):
		return StatusBackorderNotFound
	case errors.Is(err, ErrAlreadyAssociated):
		return StatusAlreadyExists
	case errors.Is(err, ErrInvalidQuantity):
		return StatusInvalidQuantity
	case errors.Is(err, ErrAlreadyAllocated):
		return StatusAlreadyAllocated
	default:
		return StatusOperationFailed
	}
}
