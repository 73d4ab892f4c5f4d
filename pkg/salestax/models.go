// Package salestax models the sales-tax service and talks to it over HTTP.
package salestax

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultTaxabilityCode applies when neither the product nor the corporation
// names a taxability code.
const DefaultTaxabilityCode = "TPP"

type TransactionType string

const (
	TransactionTypeSale   TransactionType = "SALE"
	TransactionTypeReturn TransactionType = "RETURN"
	TransactionTypeRefund TransactionType = "REFUND"
)

type Address struct {
	AddressLine1 *string `json:"address_line_1,omitempty"`
	AddressLine2 *string `json:"address_line_2,omitempty"`
	City         *string `json:"city,omitempty"`
	State        *string `json:"state,omitempty"`
	PostalCode   *string `json:"postal_code,omitempty"`
	Country      *string `json:"country,omitempty"`
}

// Customer is a customer record held by the sales-tax service.
type Customer struct {
	ID               uuid.UUID `json:"id"`
	CorporationID    string    `json:"corporation_id"`
	Name             *string   `json:"name,omitempty"`
	Email            *string   `json:"email,omitempty"`
	SourcePlatform   string    `json:"source_platform"`
	SourcePlatformID string    `json:"source_platform_id"`
	ShippingAddress  *Address  `json:"shipping_address,omitempty"`
}

// Product is a product record held by the sales-tax service.
type Product struct {
	ID               uuid.UUID `json:"id"`
	CorporationID    string    `json:"corporation_id"`
	Name             *string   `json:"name,omitempty"`
	Sku              *string   `json:"sku,omitempty"`
	Description      *string   `json:"description,omitempty"`
	TaxCode          *string   `json:"tax_code,omitempty"`
	SourcePlatform   string    `json:"source_platform"`
	SourcePlatformID string    `json:"source_platform_id"`
}

// Corporation carries the effective per-corporation settings.
type Corporation struct {
	ID                           string   `json:"id" validate:"required"`
	DefaultProductTaxabilityCode *string  `json:"default_product_taxability_code,omitempty"`
	ShipFrom                     *Address `json:"ship_from,omitempty"`
}

// DefaultTaxabilityCode is the corporation default, or TPP when unset.
func (c Corporation) DefaultTaxabilityCode() string {
	if c.DefaultProductTaxabilityCode != nil && *c.DefaultProductTaxabilityCode != "" {
		return *c.DefaultProductTaxabilityCode
	}
	return DefaultTaxabilityCode
}

type Addresses struct {
	ShipTo   Address  `json:"ship_to_address"`
	ShipFrom *Address `json:"ship_from_address,omitempty"`
}

type CustomerDetails struct {
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
}

type LineItem struct {
	ProductID      *uuid.UUID      `json:"product_id,omitempty"`
	TaxabilityCode string          `json:"taxability_code"`
	Quantity       int64           `json:"quantity"`
	Amount         decimal.Decimal `json:"amount"`
	Discount       decimal.Decimal `json:"discount"`
}

// Metadata describes the source transaction the request was built from.
type Metadata struct {
	SourcePlatform      string           `json:"source_platform"`
	SourcePlatformID    string           `json:"source_platform_id"`
	DocumentNumber      *string          `json:"document_number,omitempty"`
	Subtotal            *decimal.Decimal `json:"subtotal,omitempty"`
	Discount            *decimal.Decimal `json:"discount,omitempty"`
	ShippingAndHandling *decimal.Decimal `json:"shipping_and_handling,omitempty"`
	Total               *decimal.Decimal `json:"total,omitempty"`
	TaxCollected        *decimal.Decimal `json:"tax_collected,omitempty"`
}

// TaxCalculationRequest is built once per transaction and not changed after.
type TaxCalculationRequest struct {
	CorporationID       string          `json:"corporation_id"`
	TransactionDate     *string         `json:"transaction_date,omitempty"`
	TransactionCurrency *string         `json:"transaction_currency,omitempty"`
	TransactionType     TransactionType `json:"transaction_type"`
	Addresses           Addresses       `json:"addresses"`
	CustomerDetails     CustomerDetails `json:"customer_details"`
	LineItems           []LineItem      `json:"line_items"`
	Metadata            Metadata        `json:"metadata"`
}

// Clone returns a deep copy so callers cannot reach into a built request.
func (r TaxCalculationRequest) Clone() TaxCalculationRequest {
	clone := r
	clone.LineItems = slices.Clone(r.LineItems)
	if r.Addresses.ShipFrom != nil {
		shipFrom := *r.Addresses.ShipFrom
		clone.Addresses.ShipFrom = &shipFrom
	}
	if r.CustomerDetails.CustomerID != nil {
		id := *r.CustomerDetails.CustomerID
		clone.CustomerDetails.CustomerID = &id
	}
	return clone
}

type TaxLine struct {
	ProductID      *uuid.UUID      `json:"product_id,omitempty"`
	TaxabilityCode string          `json:"taxability_code"`
	TaxableAmount  decimal.Decimal `json:"taxable_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Rate           decimal.Decimal `json:"rate"`
}

// CalculationResult is the service's answer. Its contents are opaque here
// beyond passing them on.
type CalculationResult struct {
	ID        string          `json:"id"`
	TotalTax  decimal.Decimal `json:"total_tax"`
	Currency  *string         `json:"currency,omitempty"`
	LineItems []TaxLine       `json:"line_items"`
}

type productLookupRequest struct {
	SourcePlatforms   []string `json:"source_platforms"`
	SourcePlatformIDs []string `json:"source_platform_ids"`
}

type productLookupResponse struct {
	Products []Product `json:"products"`
}
