package masterdata

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/pkg/serrors"
)

// Proposal payloads form a tagged union keyed by EntityType. Each variant is
// strongly typed and decoded at the workflow boundary; the request row
// carries the serialized form.

type VendorPayload struct {
	Name        string `json:"name" validate:"required"`
	Address     string `json:"address"`
	TaxExempt   bool   `json:"tax_exempt"`
	BankDetails string `json:"bank_details"`
}

type CategoryPayload struct {
	Name string `json:"name" validate:"required"`
}

type PaymentTypePayload struct {
	Name string `json:"name" validate:"required"`
}

type InvoiceProfilePayload struct {
	Name       string           `json:"name" validate:"required"`
	VendorID   *uint            `json:"vendor_id"`
	CategoryID *uint            `json:"category_id"`
	Amount     *decimal.Decimal `json:"amount"`
}

type InvoiceArchivePayload struct {
	InvoiceID uint   `json:"invoice_id" validate:"required"`
	Reason    string `json:"reason" validate:"required"`
}

// DecodePayload unmarshals raw into the variant for entityType.
func DecodePayload(entityType EntityType, raw json.RawMessage) (interface{}, error) {
	var (
		v   interface{}
		err error
	)
	switch entityType {
	case EntityVendor:
		p := &VendorPayload{}
		err = json.Unmarshal(raw, p)
		v = p
	case EntityCategory:
		p := &CategoryPayload{}
		err = json.Unmarshal(raw, p)
		v = p
	case EntityPaymentType:
		p := &PaymentTypePayload{}
		err = json.Unmarshal(raw, p)
		v = p
	case EntityInvoiceProfile:
		p := &InvoiceProfilePayload{}
		err = json.Unmarshal(raw, p)
		v = p
	case EntityInvoiceArchive:
		p := &InvoiceArchivePayload{}
		err = json.Unmarshal(raw, p)
		v = p
	default:
		return nil, serrors.NewValidationError("UNKNOWN_ENTITY_TYPE", "unknown master-data entity type")
	}
	if err != nil {
		return nil, serrors.NewValidationError("MALFORMED_PAYLOAD", "proposal payload is not valid JSON for its entity type")
	}
	return v, nil
}

// MergeEdits overlays admin edits onto the stored payload key by key; edited
// keys win. Both documents must be JSON objects.
func MergeEdits(payload, edits json.RawMessage) (json.RawMessage, error) {
	if len(edits) == 0 {
		return payload, nil
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(payload, &base); err != nil {
		return nil, serrors.NewValidationError("MALFORMED_PAYLOAD", "proposal payload is not a JSON object")
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(edits, &overlay); err != nil {
		return nil, serrors.NewValidationError("MALFORMED_EDITS", "admin edits are not a JSON object")
	}
	for k, v := range overlay {
		base[k] = v
	}
	return json.Marshal(base)
}
