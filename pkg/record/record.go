// Package record models raw source-platform objects and the ancestor context
// they are mapped in.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind identifies an entity kind.
type Kind string

const (
	KindCustomer   Kind = "customer"
	KindProduct    Kind = "product"
	KindInvoice    Kind = "invoice"
	KindLineItem   Kind = "line_item"
	KindTaxRate    Kind = "tax_rate"
	KindRefund     Kind = "refund"
	KindCreditNote Kind = "credit_note"
	KindPayment    Kind = "payment"
)

var kinds = []Kind{
	KindCustomer,
	KindProduct,
	KindInvoice,
	KindLineItem,
	KindTaxRate,
	KindRefund,
	KindCreditNote,
	KindPayment,
}

var dataModels = map[Kind]string{
	KindCustomer:   "PAYMENT_CUSTOMERS",
	KindProduct:    "PAYMENT_ITEMS",
	KindInvoice:    "PAYMENT_INVOICES",
	KindLineItem:   "PAYMENT_LINE_ITEMS",
	KindTaxRate:    "PAYMENT_TAX_RATES",
	KindRefund:     "PAYMENT_REFUNDS",
	KindCreditNote: "PAYMENT_CREDIT_NOTES",
	KindPayment:    "PAYMENT_PAYMENTS",
}

// platform "object" discriminators
var objectKinds = map[string]Kind{
	"customer":              KindCustomer,
	"product":               KindProduct,
	"invoice":               KindInvoice,
	"line_item":             KindLineItem,
	"credit_note_line_item": KindLineItem,
	"tax_rate":              KindTaxRate,
	"refund":                KindRefund,
	"credit_note":           KindCreditNote,
	"payment_intent":        KindPayment,
}

// Kinds lists every supported kind.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func ParseKind(s string) (Kind, error) {
	kind := Kind(s)
	if _, ok := dataModels[kind]; !ok {
		return "", fmt.Errorf("unsupported entity kind %q", s)
	}
	return kind, nil
}

// KindFromObject maps a platform "object" discriminator to a kind.
func KindFromObject(object string) (Kind, bool) {
	kind, ok := objectKinds[object]
	return kind, ok
}

// DataModel is the canonical collection name for the kind.
func (k Kind) DataModel() string {
	return dataModels[k]
}

func (k Kind) String() string {
	return string(k)
}

// Object is a decoded JSON object from the source platform.
type Object map[string]any

// Type returns the platform "object" discriminator, e.g. "invoice".
func (o Object) Type() string {
	s, _ := o["object"].(string)
	return s
}

// Decode reads a JSON object, keeping numbers as json.Number so minor-unit
// integers survive without float rounding.
func Decode(data []byte) (Object, error) {
	var obj Object
	if err := unmarshalUseNumber(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}
	return obj, nil
}

// FromAny converts an already-decoded value into an Object.
func FromAny(v any) (Object, bool) {
	switch t := v.(type) {
	case Object:
		return t, true
	case map[string]any:
		return Object(t), true
	default:
		return nil, false
	}
}

// Ancestor is one enclosing document of a record.
type Ancestor struct {
	Kind   Kind
	Object Object
}

// Ancestors is ordered nearest-parent-first: index 0 is the immediate parent.
type Ancestors []Ancestor

// Parent returns the immediate parent.
func (a Ancestors) Parent() (Ancestor, bool) {
	if len(a) == 0 {
		return Ancestor{}, false
	}
	return a[0], true
}

// Push returns a new list with the given document as the immediate parent.
// The receiver is left untouched.
func (a Ancestors) Push(kind Kind, obj Object) Ancestors {
	out := make(Ancestors, 0, len(a)+1)
	out = append(out, Ancestor{Kind: kind, Object: obj})
	return append(out, a...)
}

// Int64 coerces a JSON-decoded number into an int64. Fractional values are rejected.
func Int64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		f, err := t.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Decimal coerces a JSON-decoded number or numeric string into a decimal.
func Decimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case int64:
		return decimal.NewFromInt(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case float64:
		return decimal.NewFromFloat(t), true
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func unmarshalUseNumber(data []byte, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(v)
}
