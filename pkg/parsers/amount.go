package parsers

import (
	"fmt"

	"github.com/Ramsey-B/juniper/pkg/currency"
	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/shopspring/decimal"
)

type amountParsers struct {
	converter currency.Converter
}

func (p *amountParsers) parseCurrency(raw any, _ record.Object, _ record.Ancestors) (any, error) {
	if raw == nil {
		return nil, nil
	}

	code, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected a currency code string, got %T", raw)
	}
	if code == "" {
		return nil, nil
	}

	return p.converter.Normalize(code)
}

// parseAmount converts integer minor units into major units of the document currency.
func (p *amountParsers) parseAmount(raw any, obj record.Object, ancestors record.Ancestors) (any, error) {
	if raw == nil {
		return nil, nil
	}

	minor, ok := record.Int64(raw)
	if !ok {
		return nil, fmt.Errorf("expected integer minor units, got %v", raw)
	}

	major, err := p.converter.ToMajorUnits(&minor, documentCurrency(obj, ancestors))
	if err != nil {
		return nil, err
	}
	return *major, nil
}

// parseLineItemUnitAmount handles unit amounts sent as decimal strings of minor
// units, e.g. "1000.5".
func (p *amountParsers) parseLineItemUnitAmount(raw any, obj record.Object, ancestors record.Ancestors) (any, error) {
	if raw == nil {
		return nil, nil
	}

	minor, ok := record.Decimal(raw)
	if !ok {
		return nil, fmt.Errorf("expected a numeric unit amount, got %v", raw)
	}

	return p.converter.MinorToMajor(minor, documentCurrency(obj, ancestors))
}

func (p *amountParsers) parseTotalTaxAmount(_ any, obj record.Object, ancestors record.Ancestors) (any, error) {
	return p.sumAmounts(obj, ancestors, "total_tax_amounts", "tax_amounts")
}

func (p *amountParsers) parseTotalDiscountAmount(_ any, obj record.Object, ancestors record.Ancestors) (any, error) {
	return p.sumAmounts(obj, ancestors, "total_discount_amounts", "discount_amounts")
}

// sumAmounts adds the minor-unit "amount" of every entry and converts the total
// once. Documents prefer their totals array and fall back to the plain one;
// line items only carry the plain one.
func (p *amountParsers) sumAmounts(obj record.Object, ancestors record.Ancestors, totalsKey, itemsKey string) (any, error) {
	var entries []any
	if isDocument(obj) {
		entries = nonEmptyArray(obj[totalsKey])
		if entries == nil {
			entries = nonEmptyArray(obj[itemsKey])
		}
	} else {
		entries = nonEmptyArray(obj[itemsKey])
	}

	var total int64
	for i, entry := range entries {
		m, ok := record.FromAny(entry)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not an object", itemsKey, i)
		}
		if m["amount"] == nil {
			continue
		}
		amount, ok := record.Int64(m["amount"])
		if !ok {
			return nil, fmt.Errorf("%s[%d].amount is not an integer: %v", itemsKey, i, m["amount"])
		}
		total += amount
	}

	major, err := p.converter.ToMajorUnits(&total, documentCurrency(obj, ancestors))
	if err != nil {
		return nil, err
	}
	return *major, nil
}

// documentCurrency picks the currency amounts on obj are denominated in.
// Invoices and credit notes carry their own; line items use the immediate
// parent's. Anything else uses its own currency and falls back to the parent.
func documentCurrency(obj record.Object, ancestors record.Ancestors) string {
	own, _ := obj["currency"].(string)
	if isDocument(obj) {
		return own
	}

	parentCurrency := ""
	if parent, ok := ancestors.Parent(); ok {
		parentCurrency, _ = parent.Object["currency"].(string)
	}

	if isLineItem(obj) || own == "" {
		return parentCurrency
	}
	return own
}

func isDocument(obj record.Object) bool {
	kind, ok := record.KindFromObject(obj.Type())
	return ok && (kind == record.KindInvoice || kind == record.KindCreditNote)
}

func isLineItem(obj record.Object) bool {
	kind, ok := record.KindFromObject(obj.Type())
	return ok && kind == record.KindLineItem
}

func nonEmptyArray(v any) []any {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil
	}
	return arr
}

// parseRate turns a percentage into a fraction, 8.25 -> 0.0825.
func parseRate(raw any, _ record.Object, _ record.Ancestors) (any, error) {
	if raw == nil {
		return nil, nil
	}

	percentage, ok := record.Decimal(raw)
	if !ok {
		return nil, fmt.Errorf("expected a numeric percentage, got %v", raw)
	}

	return percentage.Div(decimal.NewFromInt(100)), nil
}

func parseLineItemQuantity(raw any, _ record.Object, _ record.Ancestors) (any, error) {
	if raw == nil {
		return nil, nil
	}

	quantity, ok := record.Int64(raw)
	if !ok {
		return nil, fmt.Errorf("expected an integer quantity, got %v", raw)
	}
	return quantity, nil
}
