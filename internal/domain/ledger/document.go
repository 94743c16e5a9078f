package ledger

// DocumentKind enumerates the business documents that can originate a stock
// movement. Together with the document ID it forms a tagged reference to the
// source document, which is opaque to the ledger itself.
type DocumentKind string

const (
	// DocumentKindPurchaseOrder is a purchase order
	DocumentKindPurchaseOrder DocumentKind = "PURCHASE_ORDER"
	// DocumentKindSalesOrder is a sales order
	DocumentKindSalesOrder DocumentKind = "SALES_ORDER"
	// DocumentKindSalesReturn is a sales return
	DocumentKindSalesReturn DocumentKind = "SALES_RETURN"
	// DocumentKindPurchaseReturn is a purchase return
	DocumentKindPurchaseReturn DocumentKind = "PURCHASE_RETURN"
	// DocumentKindTransferOrder is an inter-branch transfer order
	DocumentKindTransferOrder DocumentKind = "TRANSFER_ORDER"
	// DocumentKindProductionOrder is a production order
	DocumentKindProductionOrder DocumentKind = "PRODUCTION_ORDER"
	// DocumentKindStockTaking is a stock taking/count
	DocumentKindStockTaking DocumentKind = "STOCK_TAKING"
	// DocumentKindManual is a manual operation without a backing document
	DocumentKindManual DocumentKind = "MANUAL"
)

// String returns the string representation of DocumentKind
func (k DocumentKind) String() string {
	return string(k)
}

// IsValid returns true if the document kind is valid
func (k DocumentKind) IsValid() bool {
	switch k {
	case DocumentKindPurchaseOrder,
		DocumentKindSalesOrder,
		DocumentKindSalesReturn,
		DocumentKindPurchaseReturn,
		DocumentKindTransferOrder,
		DocumentKindProductionOrder,
		DocumentKindStockTaking,
		DocumentKindManual:
		return true
	}
	return false
}

// DocumentRef is a tagged reference to the business document that originated
// a movement. The zero value means "no document".
type DocumentRef struct {
	Kind DocumentKind `json:"kind"`
	ID   string       `json:"id"`
}

// IsZero returns true if no document is referenced
func (r DocumentRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// Validate checks that the reference is either empty or fully specified
func (r DocumentRef) Validate() error {
	if r.IsZero() {
		return nil
	}
	if !r.Kind.IsValid() {
		return NewValidationError("document_kind", "unknown document kind")
	}
	if r.ID == "" {
		return NewValidationError("document_id", "document ID is required when a document kind is set")
	}
	return nil
}
