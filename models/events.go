package models

import (
	"context"
	"time"

	"github.com/invoiceflow/invoiceflow_backend/config"
	"github.com/invoiceflow/invoiceflow_backend/utils"
	"github.com/sirupsen/logrus"
)

// publishDocumentEvent runs after commit. Failures are logged, the document stays stored.
func publishDocumentEvent(ctx context.Context, invoice *Invoice, action string) {
	if !config.PubSubEnabled() {
		return
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	event := config.DocumentEvent{
		BusinessId:    invoice.BusinessId,
		DocumentId:    invoice.ID,
		DocumentType:  invoice.DocumentType.String(),
		DocumentNo:    invoice.InvoiceNumber,
		Action:        action,
		Amount:        invoice.Amount.String(),
		OccurredAt:    time.Now().UTC(),
		CorrelationId: correlationId,
	}
	messageId, err := config.PublishDocumentEvent(ctx, event)
	if err != nil {
		config.LogError(config.GetLogger(), "Invoice", "publishDocumentEvent", action, event, err)
		return
	}
	config.GetLogger().WithFields(logrus.Fields{
		"module":        "Invoice",
		"message_id":    messageId,
		"document_no":   invoice.InvoiceNumber,
		"action":        action,
		"correlationId": correlationId,
	}).Debug("document event published")
}
