package models

type DocumentType string

const (
	DocumentTypeInvoice   DocumentType = "invoice"
	DocumentTypeProforma  DocumentType = "proforma"
	DocumentTypeQuotation DocumentType = "quotation"
	DocumentTypePurchase  DocumentType = "purchase"
)

var AllDocumentTypes = []DocumentType{
	DocumentTypeInvoice,
	DocumentTypeProforma,
	DocumentTypeQuotation,
	DocumentTypePurchase,
}

func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeInvoice, DocumentTypeProforma, DocumentTypeQuotation, DocumentTypePurchase:
		return true
	}
	return false
}

func (t DocumentType) String() string {
	return string(t)
}

// DefaultPrefix is used when the business has not configured one.
func (t DocumentType) DefaultPrefix() string {
	switch t {
	case DocumentTypeProforma:
		return "PRO"
	case DocumentTypeQuotation:
		return "QUO"
	case DocumentTypePurchase:
		return "PUR"
	default:
		return DefaultInvoicePrefix
	}
}

// stockDirection is -1 when the document takes goods out, +1 when it brings them in.
func (t DocumentType) stockDirection() int {
	switch t {
	case DocumentTypeInvoice:
		return -1
	case DocumentTypePurchase:
		return 1
	}
	return 0
}

type InvoiceStatus string

const (
	InvoiceStatusIssued    InvoiceStatus = "Issued"
	InvoiceStatusCancelled InvoiceStatus = "Cancelled"
)

const (
	DocumentActionIssued    = "issued"
	DocumentActionUpdated   = "updated"
	DocumentActionCancelled = "cancelled"
)
