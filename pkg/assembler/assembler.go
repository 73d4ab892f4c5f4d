// Package assembler builds sales-tax calculation requests from canonical
// transaction documents.
//
// A request is built from an invoice (SALE), a credit note (RETURN) or a
// refund (REFUND). The customer and every line item product are resolved
// against the identity directory, the line item products in a single batch.
// Unresolved references are not errors: the customer reference is left out
// and the line item falls back to the corporation's taxability code. A
// request without a ship-to address is never built.
package assembler

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/canonical"
	"github.com/Ramsey-B/juniper/pkg/currency"
	"github.com/Ramsey-B/juniper/pkg/metrics"
	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/Ramsey-B/juniper/pkg/resolver"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/Ramsey-B/juniper/pkg/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultSourcePlatform is used when a document does not carry its own.
const DefaultSourcePlatform = "STRIPE"

var (
	ErrMissingShipToAddress = errors.New("no ship-to address could be determined")
	ErrUnsupportedRecord    = errors.New("record cannot be turned into a tax request")
)

// MissingShipToAddressError is returned when neither the caller nor the
// resolved customer supplies a ship-to address.
type MissingShipToAddressError struct {
	Kind       record.Kind
	PlatformID string
}

func (e *MissingShipToAddressError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.PlatformID, ErrMissingShipToAddress)
}

func (e *MissingShipToAddressError) Is(target error) bool {
	return target == ErrMissingShipToAddress
}

// Resolver is the identity lookup the assembler depends on.
type Resolver interface {
	ResolveCustomer(ctx context.Context, corporationID, platform, platformID string) (*resolver.ResolvedCustomer, error)
	ResolveProducts(ctx context.Context, corporationID, platform string, platformIDs []string) (resolver.ProductSet, error)
}

// Options carries per-transaction inputs that are not part of the document.
type Options struct {
	// ShipTo is the ship-to address supplied with the transaction.
	ShipTo   *salestax.Address
	ShipFrom *salestax.Address
}

// Built is a finished request plus the references that could not be resolved.
type Built struct {
	Request            salestax.TaxCalculationRequest
	UnresolvedCustomer bool
	UnresolvedProducts []string
}

type Assembler struct {
	resolver  Resolver
	converter currency.Converter
	logger    ectologger.Logger
}

func New(resolver Resolver, converter currency.Converter, logger ectologger.Logger) *Assembler {
	return &Assembler{
		resolver:  resolver,
		converter: converter,
		logger:    logger,
	}
}

// document is the part of each supported record the build works from.
type document struct {
	kind            record.Kind
	platformID      string
	sourcePlatform  string
	transactionType salestax.TransactionType
	contactID       string
	date            *string
	currency        *string
	lines           []canonical.LineItem
	metadata        salestax.Metadata
}

// Build assembles the tax calculation request for doc.
func (a *Assembler) Build(ctx context.Context, doc canonical.Document, corporation salestax.Corporation, opts Options) (*Built, error) {
	ctx, span := tracing.StartSpan(ctx, "assembler.Assembler.Build")
	defer span.End()

	if _, err := utils.Validate(corporation); err != nil {
		return nil, fmt.Errorf("invalid corporation: %w", err)
	}

	d, err := a.describe(doc)
	if err != nil {
		metrics.TaxRequestsTotal.WithLabelValues("unknown", "unsupported").Inc()
		return nil, err
	}

	log := a.logger.WithContext(ctx).WithFields(map[string]any{
		"corporation_id":   corporation.ID,
		"kind":             d.kind,
		"platform_id":      d.platformID,
		"transaction_type": d.transactionType,
	})

	productIDs := ectolinq.Map(d.lines, func(line canonical.LineItem) string {
		return deref(line.ItemID)
	})

	var (
		customer *resolver.ResolvedCustomer
		products resolver.ProductSet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customer, err = a.resolver.ResolveCustomer(gctx, corporation.ID, d.sourcePlatform, d.contactID)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = a.resolver.ResolveProducts(gctx, corporation.ID, d.sourcePlatform, productIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.TaxRequestsTotal.WithLabelValues(string(d.transactionType), "unavailable").Inc()
		log.WithError(err).Error("Failed to resolve references")
		return nil, err
	}

	shipTo := opts.ShipTo
	if shipTo == nil && customer != nil {
		shipTo = customer.ShippingAddress
	}
	if shipTo == nil {
		metrics.TaxRequestsTotal.WithLabelValues(string(d.transactionType), "missing_ship_to").Inc()
		return nil, &MissingShipToAddressError{Kind: d.kind, PlatformID: d.platformID}
	}

	shipFrom := opts.ShipFrom
	if shipFrom == nil {
		shipFrom = corporation.ShipFrom
	}

	built := &Built{
		Request: salestax.TaxCalculationRequest{
			CorporationID:       corporation.ID,
			TransactionDate:     d.date,
			TransactionCurrency: d.currency,
			TransactionType:     d.transactionType,
			Addresses: salestax.Addresses{
				ShipTo:   *shipTo,
				ShipFrom: copyAddress(shipFrom),
			},
			Metadata: d.metadata,
		},
	}

	if customer != nil {
		id := customer.ID
		built.Request.CustomerDetails.CustomerID = &id
	} else {
		built.UnresolvedCustomer = true
		log.WithFields(map[string]any{"contact_id": d.contactID}).Warn("Customer could not be resolved, building request without a customer")
	}

	if d.kind == record.KindRefund {
		line, err := a.refundLine(doc.(*canonical.Refund), corporation)
		if err != nil {
			metrics.TaxRequestsTotal.WithLabelValues(string(d.transactionType), "failed").Inc()
			return nil, err
		}
		built.Request.LineItems = []salestax.LineItem{line}
	} else {
		built.Request.LineItems = make([]salestax.LineItem, 0, len(d.lines))
		for _, line := range d.lines {
			itemID := deref(line.ItemID)
			product, found := products.Get(itemID)

			item := salestax.LineItem{
				TaxabilityCode: resolver.TaxCode(products, itemID, corporation),
				Quantity:       quantity(line),
				Amount:         lineAmount(line),
				Discount:       decimalOrZero(line.TotalDiscount),
			}
			if found {
				id := product.ID
				item.ProductID = &id
			} else if itemID != "" && !ectolinq.Contains(built.UnresolvedProducts, itemID) {
				built.UnresolvedProducts = append(built.UnresolvedProducts, itemID)
			}
			built.Request.LineItems = append(built.Request.LineItems, item)
		}
	}

	if len(built.UnresolvedProducts) > 0 {
		log.WithFields(map[string]any{"products": built.UnresolvedProducts}).Info("Some products could not be resolved, using default taxability codes")
	}

	metrics.TaxRequestsTotal.WithLabelValues(string(d.transactionType), "built").Inc()
	built.Request = built.Request.Clone()
	return built, nil
}

// TransactionShipTo is the document's own shipping address, for callers that
// treat it as the ship-to supplied with the transaction.
func TransactionShipTo(doc canonical.Document) *salestax.Address {
	invoice, ok := doc.(*canonical.Invoice)
	if !ok || invoice == nil {
		return nil
	}
	return FromCanonicalAddress(invoice.ShippingAddress())
}

// FromCanonicalAddress converts a canonical address into the request shape.
func FromCanonicalAddress(address *canonical.Address) *salestax.Address {
	if address == nil {
		return nil
	}
	return &salestax.Address{
		AddressLine1: address.AddressLine1,
		AddressLine2: address.AddressLine2,
		City:         address.City,
		State:        address.State,
		PostalCode:   address.PostalCode,
		Country:      address.Country,
	}
}

func (a *Assembler) describe(doc canonical.Document) (*document, error) {
	switch d := doc.(type) {
	case *canonical.Invoice:
		if d == nil {
			break
		}
		return &document{
			kind:            record.KindInvoice,
			platformID:      d.PlatformID,
			sourcePlatform:  sourcePlatform(d.SourcePlatform),
			transactionType: salestax.TransactionTypeSale,
			contactID:       deref(d.ContactID),
			date:            firstNonNil(d.PostedDate, d.CreatedAt),
			currency:        d.CurrencyID,
			lines:           d.LineItems,
			metadata: salestax.Metadata{
				SourcePlatform:      sourcePlatform(d.SourcePlatform),
				SourcePlatformID:    d.PlatformID,
				DocumentNumber:      d.DocumentNumber,
				Subtotal:            d.SubTotal,
				Discount:            d.TotalDiscount,
				ShippingAndHandling: d.ShippingAmount,
				Total:               d.TotalAmount,
				TaxCollected:        d.TaxAmount,
			},
		}, nil
	case *canonical.CreditNote:
		if d == nil {
			break
		}
		return &document{
			kind:            record.KindCreditNote,
			platformID:      d.PlatformID,
			sourcePlatform:  sourcePlatform(d.SourcePlatform),
			transactionType: salestax.TransactionTypeReturn,
			contactID:       deref(d.ContactID),
			date:            firstNonNil(d.PostedDate, d.CreatedAt),
			currency:        d.CurrencyID,
			lines:           d.LineItems,
			metadata: salestax.Metadata{
				SourcePlatform:      sourcePlatform(d.SourcePlatform),
				SourcePlatformID:    d.PlatformID,
				DocumentNumber:      d.DocumentNumber,
				Discount:            d.TotalDiscount,
				ShippingAndHandling: d.ShippingAmount,
				Total:               d.TotalAmount,
				TaxCollected:        d.TaxAmount,
			},
		}, nil
	case *canonical.Refund:
		if d == nil {
			break
		}
		return &document{
			kind:            record.KindRefund,
			platformID:      d.PlatformID,
			sourcePlatform:  sourcePlatform(d.SourcePlatform),
			transactionType: salestax.TransactionTypeRefund,
			date:            d.CreatedAt,
			currency:        d.CurrencyID,
			metadata: salestax.Metadata{
				SourcePlatform:   sourcePlatform(d.SourcePlatform),
				SourcePlatformID: d.PlatformID,
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedRecord, doc)
}

// refundLine turns the refunded amount into the request's single line.
func (a *Assembler) refundLine(refund *canonical.Refund, corporation salestax.Corporation) (salestax.LineItem, error) {
	line := salestax.LineItem{
		TaxabilityCode: corporation.DefaultTaxabilityCode(),
		Quantity:       1,
		Amount:         decimal.Zero,
		Discount:       decimal.Zero,
	}
	if refund.Amount == nil {
		return line, nil
	}

	amount, err := a.converter.ToMajorUnits(refund.Amount, deref(refund.CurrencyID))
	if err != nil {
		return line, fmt.Errorf("refund %s: %w", refund.PlatformID, err)
	}
	line.Amount = *amount
	return line, nil
}

// quantity defaults to 1 only when the source omits it. An explicit zero,
// as on metered usage lines, is passed through.
func quantity(line canonical.LineItem) int64 {
	if line.Quantity == nil {
		return 1
	}
	return *line.Quantity
}

// lineAmount is the line total, or unit amount times quantity when the total
// is missing.
func lineAmount(line canonical.LineItem) decimal.Decimal {
	if line.TotalAmount != nil {
		return *line.TotalAmount
	}
	if line.UnitAmount != nil {
		return line.UnitAmount.Mul(decimal.NewFromInt(quantity(line)))
	}
	return decimal.Zero
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func sourcePlatform(platform *string) string {
	if platform == nil || *platform == "" {
		return DefaultSourcePlatform
	}
	return *platform
}

func firstNonNil(values ...*string) *string {
	return ectolinq.Find(values, func(v *string) bool { return v != nil })
}

func copyAddress(address *salestax.Address) *salestax.Address {
	if address == nil {
		return nil
	}
	clone := *address
	return &clone
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
