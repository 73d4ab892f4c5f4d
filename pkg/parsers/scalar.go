package parsers

import (
	"fmt"
	"time"

	"github.com/Ramsey-B/juniper/pkg/canonical"
	"github.com/Ramsey-B/juniper/pkg/enums"
	"github.com/Ramsey-B/juniper/pkg/record"
)

const (
	ProductStatusActive   = "ACTIVE"
	ProductStatusArchived = "ARCHIVED"
)

var (
	itemIDPath         = record.MustParsePath("price.product")
	itemIDFallbackPath = record.MustParsePath("pricing.price_details.product")
)

// parseDate converts unix seconds into a UTC ISO-8601 instant. Zero is treated
// as unset.
func parseDate(raw any, _ record.Object, _ record.Ancestors) (any, error) {
	if raw == nil {
		return nil, nil
	}

	seconds, ok := record.Int64(raw)
	if !ok {
		return nil, fmt.Errorf("expected unix seconds, got %v", raw)
	}
	if seconds == 0 {
		return nil, nil
	}

	return time.Unix(seconds, 0).UTC().Format(canonical.TimestampLayout), nil
}

func parseProductStatus(raw any, _ record.Object, _ record.Ancestors) (any, error) {
	if raw == nil {
		return nil, nil
	}

	active, ok := raw.(bool)
	if !ok {
		return nil, fmt.Errorf("expected a boolean active flag, got %T", raw)
	}
	if active {
		return ProductStatusActive, nil
	}
	return ProductStatusArchived, nil
}

// parsePaymentStatus reports FAILED whenever the record carries a payment
// error, whatever its nominal status. Otherwise the status table applies.
func parsePaymentStatus(raw any, obj record.Object, _ record.Ancestors) (any, error) {
	if obj["last_payment_error"] != nil {
		return enums.PaymentFailed, nil
	}

	match := enums.PaymentStatus.Lookup(raw)
	if !match.Found {
		return nil, nil
	}
	return match.Value, nil
}

// parseItemID reads the product id of a line item's price. The product may be
// an id or an expanded object.
func parseItemID(_ any, obj record.Object, _ record.Ancestors) (any, error) {
	product := itemIDPath.Lookup(obj)
	if product == nil {
		product = itemIDFallbackPath.Lookup(obj)
	}

	switch t := product.(type) {
	case nil:
		return nil, nil
	case string:
		return t, nil
	case map[string]any:
		id, _ := t["id"].(string)
		if id == "" {
			return nil, nil
		}
		return id, nil
	default:
		return nil, fmt.Errorf("unexpected product reference %T", product)
	}
}

// parseInvoiceIDs wraps a single invoice id in a list.
func parseInvoiceIDs(raw any, _ record.Object, _ record.Ancestors) (any, error) {
	switch t := raw.(type) {
	case nil:
		return []string{}, nil
	case string:
		if t == "" {
			return []string{}, nil
		}
		return []string{t}, nil
	case map[string]any:
		if id, ok := t["id"].(string); ok && id != "" {
			return []string{id}, nil
		}
		return []string{}, nil
	default:
		return nil, fmt.Errorf("expected an invoice id, got %T", raw)
	}
}

// parseParentDataModel names the collection of the immediate parent document.
func parseParentDataModel(_ any, _ record.Object, ancestors record.Ancestors) (any, error) {
	parent, ok := ancestors.Parent()
	if !ok {
		return nil, nil
	}

	kind := parent.Kind
	if kind == "" {
		kind, ok = record.KindFromObject(parent.Object.Type())
		if !ok {
			return nil, nil
		}
	}
	return kind.DataModel(), nil
}
