package parsers

import (
	"fmt"

	"github.com/Ramsey-B/juniper/pkg/canonical"
	"github.com/Ramsey-B/juniper/pkg/record"
)

var (
	customerBillingPath  = record.MustParsePath("address")
	customerShippingPath = record.MustParsePath("shipping.address")
	invoiceBillingPath   = record.MustParsePath("customer_address")
	invoiceShippingPath  = record.MustParsePath("customer_shipping.address")
)

// parseContactAddresses collects a customer's billing and shipping addresses.
func parseContactAddresses(_ any, obj record.Object, _ record.Ancestors) (any, error) {
	return collectAddresses(obj, customerBillingPath, customerShippingPath)
}

// parseInvoiceAddresses collects the customer addresses snapshotted on an invoice.
func parseInvoiceAddresses(_ any, obj record.Object, _ record.Ancestors) (any, error) {
	return collectAddresses(obj, invoiceBillingPath, invoiceShippingPath)
}

func collectAddresses(obj record.Object, billing, shipping record.Path) ([]canonical.Address, error) {
	addresses := []canonical.Address{}

	parentType := ""
	if kind, ok := record.KindFromObject(obj.Type()); ok {
		parentType = kind.DataModel()
	}
	parentID, _ := obj["id"].(string)

	for _, source := range []struct {
		path        record.Path
		addressType string
	}{
		{path: billing, addressType: canonical.AddressTypeBilling},
		{path: shipping, addressType: canonical.AddressTypeShipping},
	} {
		raw := source.path.Lookup(obj)
		if raw == nil {
			continue
		}

		fields, ok := record.FromAny(raw)
		if !ok {
			return nil, fmt.Errorf("%s is not an address object", source.path)
		}

		addresses = append(addresses, canonical.Address{
			Type:         source.addressType,
			AddressLine1: optionalString(fields["line1"]),
			AddressLine2: optionalString(fields["line2"]),
			City:         optionalString(fields["city"]),
			State:        optionalString(fields["state"]),
			PostalCode:   optionalString(fields["postal_code"]),
			Country:      optionalString(fields["country"]),
			ParentType:   parentType,
			ParentID:     parentID,
		})
	}

	return addresses, nil
}

func parseContactPhoneNumbers(_ any, obj record.Object, _ record.Ancestors) (any, error) {
	phones := []canonical.PhoneNumber{}
	if phone := optionalString(obj["phone"]); phone != nil {
		phones = append(phones, canonical.PhoneNumber{
			Type:   canonical.PhoneTypePrimary,
			Number: *phone,
		})
	}
	return phones, nil
}

func parseContactExternalLinks(_ any, obj record.Object, _ record.Ancestors) (any, error) {
	links := []canonical.ExternalLink{}
	if email := optionalString(obj["email"]); email != nil {
		links = append(links, canonical.ExternalLink{
			Type: canonical.LinkTypeEmail,
			Link: *email,
		})
	}
	return links, nil
}

// optionalString returns nil for missing, empty or non-string values.
func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}
