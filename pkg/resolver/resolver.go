// Package resolver translates source-platform identifiers into the sales-tax
// service's identifiers.
//
// Not found is a valid outcome and never an error: an unresolved customer is
// nil and an unresolved product is simply absent from the ProductSet. Only a
// directory that could not be asked at all produces an error, always a
// *ResolutionUnavailableError, and callers must not apply tax code defaulting
// in that case.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/metrics"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/google/uuid"
)

// Directory is the identity directory held by the sales-tax service.
type Directory interface {
	GetCustomerBySourcePlatformID(ctx context.Context, corporationID, platform, platformID string) (*salestax.Customer, error)
	GetProductsBySourcePlatforms(ctx context.Context, corporationID string, platforms, platformIDs []string) ([]salestax.Product, error)
}

// ResolutionUnavailableError means the directory could not answer. It is
// distinct from not found.
type ResolutionUnavailableError struct {
	Entity string
	Err    error
}

func (e *ResolutionUnavailableError) Error() string {
	return fmt.Sprintf("%s resolution unavailable: %v", e.Entity, e.Err)
}

func (e *ResolutionUnavailableError) Unwrap() error {
	return e.Err
}

// IsResolutionUnavailable reports whether err is or wraps a *ResolutionUnavailableError.
func IsResolutionUnavailable(err error) bool {
	var target *ResolutionUnavailableError
	return errors.As(err, &target)
}

type ResolvedCustomer struct {
	ID              uuid.UUID
	ShippingAddress *salestax.Address
}

type ResolvedProduct struct {
	ID      uuid.UUID
	TaxCode *string
}

// ProductSet maps source-platform product ids to resolved products.
type ProductSet map[string]ResolvedProduct

func (s ProductSet) Get(platformID string) (ResolvedProduct, bool) {
	product, ok := s[platformID]
	return product, ok
}

// TaxCode returns the taxability code for one line item's product. An absent
// product or an empty tax code falls back to the corporation default, then TPP.
func TaxCode(products ProductSet, platformID string, corporation salestax.Corporation) string {
	if product, ok := products.Get(platformID); ok && product.TaxCode != nil && *product.TaxCode != "" {
		return *product.TaxCode
	}
	return corporation.DefaultTaxabilityCode()
}

type Resolver struct {
	directory Directory
	logger    ectologger.Logger
}

func NewResolver(directory Directory, logger ectologger.Logger) *Resolver {
	return &Resolver{
		directory: directory,
		logger:    logger,
	}
}

// ResolveCustomer looks up a single customer. It returns nil, nil when the
// customer is unknown or platformID is empty.
func (r *Resolver) ResolveCustomer(ctx context.Context, corporationID, platform, platformID string) (*ResolvedCustomer, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.ResolveCustomer")
	defer span.End()

	if platformID == "" {
		return nil, nil
	}

	customer, err := r.directory.GetCustomerBySourcePlatformID(ctx, corporationID, platform, platformID)
	if err != nil {
		metrics.ResolverLookupsTotal.WithLabelValues("customer", "unavailable").Inc()
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"corporation_id": corporationID,
			"platform_id":    platformID,
		}).Error("Customer directory lookup failed")
		return nil, &ResolutionUnavailableError{Entity: "customer", Err: err}
	}

	if customer == nil {
		metrics.ResolverLookupsTotal.WithLabelValues("customer", "not_found").Inc()
		return nil, nil
	}

	metrics.ResolverLookupsTotal.WithLabelValues("customer", "found").Inc()
	return &ResolvedCustomer{
		ID:              customer.ID,
		ShippingAddress: customer.ShippingAddress,
	}, nil
}

// ResolveProducts looks up every distinct id in one batched directory call.
// Unknown products are omitted from the result.
func (r *Resolver) ResolveProducts(ctx context.Context, corporationID, platform string, platformIDs []string) (ProductSet, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.ResolveProducts")
	defer span.End()

	ids := distinct(platformIDs)
	products := make(ProductSet, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	platforms := ectolinq.Map(ids, func(string) string { return platform })

	found, err := r.directory.GetProductsBySourcePlatforms(ctx, corporationID, platforms, ids)
	if err != nil {
		metrics.ResolverLookupsTotal.WithLabelValues("product", "unavailable").Inc()
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"corporation_id": corporationID,
			"product_count":  len(ids),
		}).Error("Product directory lookup failed")
		return nil, &ResolutionUnavailableError{Entity: "product", Err: err}
	}

	for _, product := range found {
		if product.SourcePlatform != "" && product.SourcePlatform != platform {
			continue
		}
		if !ectolinq.Contains(ids, product.SourcePlatformID) {
			continue
		}
		products[product.SourcePlatformID] = ResolvedProduct{
			ID:      product.ID,
			TaxCode: product.TaxCode,
		}
	}

	metrics.ResolverLookupsTotal.WithLabelValues("product", "found").Add(float64(len(products)))
	metrics.ResolverLookupsTotal.WithLabelValues("product", "not_found").Add(float64(len(ids) - len(products)))

	return products, nil
}

// distinct drops empty and repeated ids, keeping first-seen order.
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
