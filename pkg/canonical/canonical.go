// Package canonical holds the platform-agnostic records produced by the
// mapping engine.
//
// Monetary fields are decimal major units unless documented as raw minor
// units. Both encode as JSON numbers when decimal.MarshalJSONWithoutQuotes is
// set, which the juniper binary does at startup. Timestamps are ISO-8601 instants and currencies are upper-case
// ISO-4217 codes; both are nil when the source had no value.
package canonical

import (
	"fmt"

	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/Ramsey-B/juniper/pkg/utils"
	"github.com/shopspring/decimal"
)

// TimestampLayout is the format of every canonical timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

const (
	AddressTypeBilling  = "BILLING"
	AddressTypeShipping = "SHIPPING"

	PhoneTypePrimary = "PRIMARY"

	LinkTypeEmail = "EMAIL"
)

// Record is the untyped output of the mapping engine, keyed by target field.
type Record map[string]any

type Address struct {
	Type         string  `json:"type"`
	AddressLine1 *string `json:"address_line_1"`
	AddressLine2 *string `json:"address_line_2"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	PostalCode   *string `json:"postal_code"`
	Country      *string `json:"country"`
	ParentType   string  `json:"parent_type"`
	ParentID     string  `json:"parent_id"`
}

type PhoneNumber struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type ExternalLink struct {
	Type string `json:"type"`
	Link string `json:"link"`
}

type Customer struct {
	PlatformID       string         `json:"platform_id" validate:"required"`
	PlatformUniqueID string         `json:"platform_unique_id" validate:"required"`
	SourcePlatform   *string        `json:"source_platform"`
	Name             *string        `json:"name"`
	TaxNumber        *string        `json:"tax_number"`
	CurrencyID       *string        `json:"currency_id"`
	Addresses        []Address      `json:"addresses"`
	PhoneNumbers     []PhoneNumber  `json:"phone_numbers"`
	ExternalLinks    []ExternalLink `json:"external_links"`
	CreatedAt        *string        `json:"created_at"`
	UpdatedAt        *string        `json:"updated_at"`
}

// ShippingAddress returns the first SHIPPING address, if any.
func (c *Customer) ShippingAddress() *Address {
	return findAddress(c.Addresses, AddressTypeShipping)
}

// Email returns the first EMAIL external link.
func (c *Customer) Email() *string {
	for _, link := range c.ExternalLinks {
		if link.Type == LinkTypeEmail && link.Link != "" {
			email := link.Link
			return &email
		}
	}
	return nil
}

type Product struct {
	PlatformID       string  `json:"platform_id" validate:"required"`
	PlatformUniqueID string  `json:"platform_unique_id" validate:"required"`
	SourcePlatform   *string `json:"source_platform"`
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	Code             *string `json:"code"`
	// UnitPrice is raw minor units from the default price.
	UnitPrice  *int64  `json:"unit_price"`
	CurrencyID *string `json:"currency_id"`
	Status     *string `json:"status"`
	CreatedAt  *string `json:"created_at"`
	UpdatedAt  *string `json:"updated_at"`
}

type LineItem struct {
	PlatformID       string           `json:"platform_id" validate:"required"`
	PlatformUniqueID string           `json:"platform_unique_id" validate:"required"`
	LineItemType     *string          `json:"line_item_type"`
	LineItemTypeID   *string          `json:"line_item_type_id"`
	Description      *string          `json:"description"`
	ItemID           *string          `json:"item_id"`
	Quantity         *int64           `json:"quantity"`
	UnitAmount       *decimal.Decimal `json:"unit_amount"`
	SubTotal         *decimal.Decimal `json:"sub_total"`
	TaxAmount        *decimal.Decimal `json:"tax_amount"`
	TotalDiscount    *decimal.Decimal `json:"total_discount"`
	TotalAmount      *decimal.Decimal `json:"total_amount"`
	TaxID            *string          `json:"tax_id"`
}

type Invoice struct {
	PlatformID       string           `json:"platform_id" validate:"required"`
	PlatformUniqueID string           `json:"platform_unique_id" validate:"required"`
	SourcePlatform   *string          `json:"source_platform"`
	DocumentNumber   *string          `json:"document_number"`
	ContactID        *string          `json:"contact_id"`
	PostedDate       *string          `json:"posted_date"`
	DueDate          *string          `json:"due_date"`
	CurrencyID       *string          `json:"currency_id"`
	Status           *string          `json:"status"`
	SubTotal         *decimal.Decimal `json:"sub_total"`
	TaxAmount        *decimal.Decimal `json:"tax_amount"`
	TotalDiscount    *decimal.Decimal `json:"total_discount"`
	TotalAmount      *decimal.Decimal `json:"total_amount"`
	AmountDue        *decimal.Decimal `json:"amount_due"`
	ShippingAmount   *decimal.Decimal `json:"shipping_amount"`
	Memo             *string          `json:"memo"`
	LineItems        []LineItem       `json:"line_items" validate:"dive"`
	Addresses        []Address        `json:"addresses"`
	CreatedAt        *string          `json:"created_at"`
	UpdatedAt        *string          `json:"updated_at"`
}

// ShippingAddress returns the invoice's own SHIPPING address, if any.
func (i *Invoice) ShippingAddress() *Address {
	return findAddress(i.Addresses, AddressTypeShipping)
}

type TaxRate struct {
	PlatformID       string           `json:"platform_id" validate:"required"`
	PlatformUniqueID string           `json:"platform_unique_id" validate:"required"`
	SourcePlatform   *string          `json:"source_platform"`
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	Rate             *decimal.Decimal `json:"rate"`
	CreatedAt        *string          `json:"created_at"`
	UpdatedAt        *string          `json:"updated_at"`
}

type Refund struct {
	PlatformID       string  `json:"platform_id" validate:"required"`
	PlatformUniqueID string  `json:"platform_unique_id" validate:"required"`
	SourcePlatform   *string `json:"source_platform"`
	// Amount is raw minor units.
	Amount      *int64  `json:"amount"`
	CurrencyID  *string `json:"currency_id"`
	PaymentID   *string `json:"payment_id"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	CreatedAt   *string `json:"created_at"`
}

type CreditNote struct {
	PlatformID       string           `json:"platform_id" validate:"required"`
	PlatformUniqueID string           `json:"platform_unique_id" validate:"required"`
	SourcePlatform   *string          `json:"source_platform"`
	ContactID        *string          `json:"contact_id"`
	CurrencyID       *string          `json:"currency_id"`
	DocumentNumber   *string          `json:"document_number"`
	InvoiceIDs       []string         `json:"invoice_ids"`
	Memo             *string          `json:"memo"`
	PostedDate       *string          `json:"posted_date"`
	Status           *string          `json:"status"`
	TaxAmount        *decimal.Decimal `json:"tax_amount"`
	TotalAmount      *decimal.Decimal `json:"total_amount"`
	TotalDiscount    *decimal.Decimal `json:"total_discount"`
	ShippingAmount   *decimal.Decimal `json:"shipping_amount"`
	LineItems        []LineItem       `json:"line_items" validate:"dive"`
	CreatedAt        *string          `json:"created_at"`
}

type Payment struct {
	PlatformID       string  `json:"platform_id" validate:"required"`
	PlatformUniqueID string  `json:"platform_unique_id" validate:"required"`
	SourcePlatform   *string `json:"source_platform"`
	// Amount is raw minor units.
	Amount        *int64  `json:"amount"`
	CurrencyID    *string `json:"currency_id"`
	CustomerID    *string `json:"customer_id"`
	InvoiceID     *string `json:"invoice_id"`
	PaymentMethod *string `json:"payment_method"`
	Status        *string `json:"status"`
	OrderID       *string `json:"order_id"`
	Description   *string `json:"description"`
	CreatedAt     *string `json:"created_at"`
}

// Document is a canonical record a tax request can be built from.
type Document interface {
	DocumentKind() record.Kind
}

func (*Invoice) DocumentKind() record.Kind    { return record.KindInvoice }
func (*CreditNote) DocumentKind() record.Kind { return record.KindCreditNote }
func (*Refund) DocumentKind() record.Kind     { return record.KindRefund }

// Decode converts a mapped record into its typed form and validates it.
func Decode[T any](rec Record) (*T, error) {
	typed, err := utils.ConvertAndValidate[T](map[string]any(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to decode canonical record: %w", err)
	}
	return &typed, nil
}

// DecodeDocument decodes rec into the Document type for kind.
func DecodeDocument(kind record.Kind, rec Record) (Document, error) {
	switch kind {
	case record.KindInvoice:
		return decodeDocument[Invoice](rec)
	case record.KindCreditNote:
		return decodeDocument[CreditNote](rec)
	case record.KindRefund:
		return decodeDocument[Refund](rec)
	default:
		return nil, fmt.Errorf("%s records are not transaction documents", kind)
	}
}

func decodeDocument[T any, P interface {
	*T
	Document
}](rec Record) (Document, error) {
	typed, err := Decode[T](rec)
	if err != nil {
		return nil, err
	}
	return P(typed), nil
}

func findAddress(addresses []Address, addressType string) *Address {
	for i := range addresses {
		if addresses[i].Type == addressType {
			address := addresses[i]
			return &address
		}
	}
	return nil
}
