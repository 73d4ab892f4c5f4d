// Package parsers is the catalog of named conversion functions the mapping
// engine calls. Every parser is pure: it reads the raw value, the record and
// its ancestors and never mutates them.
package parsers

import (
	"sort"

	"github.com/Ramsey-B/juniper/pkg/currency"
	"github.com/Ramsey-B/juniper/pkg/record"
)

const (
	DateParser                 = "date"
	CurrencyParser             = "currency"
	AmountParser               = "amount"
	RateParser                 = "rate"
	ProductStatusParser        = "product_status"
	PaymentStatusParser        = "payment_status"
	TotalTaxAmountParser       = "total_tax_amount"
	TotalDiscountAmountParser  = "total_discount_amount"
	ContactAddressesParser     = "contact_addresses"
	ContactPhoneNumbersParser  = "contact_phone_numbers"
	ContactExternalLinksParser = "contact_external_links"
	InvoiceAddressesParser     = "invoice_addresses"
	ItemIDParser               = "item_id"
	LineItemQuantityParser     = "line_item_quantity"
	LineItemUnitAmountParser   = "line_item_unit_amount"
	InvoiceIDsParser           = "invoice_ids"
	ParentDataModelParser      = "parent_data_model"
)

// Parser converts a raw source value into its canonical form.
type Parser interface {
	Parse(raw any, obj record.Object, ancestors record.Ancestors) (any, error)
}

// ParserFunc adapts a plain function to Parser.
type ParserFunc func(raw any, obj record.Object, ancestors record.Ancestors) (any, error)

func (f ParserFunc) Parse(raw any, obj record.Object, ancestors record.Ancestors) (any, error) {
	return f(raw, obj, ancestors)
}

// Registry is an immutable name -> Parser table.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds the registry of all platform parsers around converter.
func NewRegistry(converter currency.Converter) *Registry {
	amounts := &amountParsers{converter: converter}

	return &Registry{
		parsers: map[string]Parser{
			DateParser:                 ParserFunc(parseDate),
			CurrencyParser:             ParserFunc(amounts.parseCurrency),
			AmountParser:               ParserFunc(amounts.parseAmount),
			RateParser:                 ParserFunc(parseRate),
			ProductStatusParser:        ParserFunc(parseProductStatus),
			PaymentStatusParser:        ParserFunc(parsePaymentStatus),
			TotalTaxAmountParser:       ParserFunc(amounts.parseTotalTaxAmount),
			TotalDiscountAmountParser:  ParserFunc(amounts.parseTotalDiscountAmount),
			ContactAddressesParser:     ParserFunc(parseContactAddresses),
			ContactPhoneNumbersParser:  ParserFunc(parseContactPhoneNumbers),
			ContactExternalLinksParser: ParserFunc(parseContactExternalLinks),
			InvoiceAddressesParser:     ParserFunc(parseInvoiceAddresses),
			ItemIDParser:               ParserFunc(parseItemID),
			LineItemQuantityParser:     ParserFunc(parseLineItemQuantity),
			LineItemUnitAmountParser:   ParserFunc(amounts.parseLineItemUnitAmount),
			InvoiceIDsParser:           ParserFunc(parseInvoiceIDs),
			ParentDataModelParser:      ParserFunc(parseParentDataModel),
		},
	}
}

func (r *Registry) Get(name string) (Parser, bool) {
	parser, ok := r.parsers[name]
	return parser, ok
}

// Names lists the registered parser names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
