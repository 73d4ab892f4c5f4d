package parsers

import (
	"encoding/json"
	"testing"

	"github.com/Ramsey-B/juniper/pkg/canonical"
	"github.com/Ramsey-B/juniper/pkg/currency"
	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(currency.NewConverter())
}

func parse(t *testing.T, name string, raw any, obj record.Object, ancestors record.Ancestors) (any, error) {
	t.Helper()
	parser, ok := newTestRegistry().Get(name)
	require.True(t, ok, "parser %s not registered", name)
	return parser.Parse(raw, obj, ancestors)
}

func assertDecimal(t *testing.T, expected string, actual any) {
	t.Helper()
	d, ok := actual.(decimal.Decimal)
	require.True(t, ok, "expected decimal.Decimal, got %T", actual)
	assert.True(t, decimal.RequireFromString(expected).Equal(d), "expected %s, got %s", expected, d)
}

func TestRegistryNames(t *testing.T) {
	names := newTestRegistry().Names()
	assert.Contains(t, names, AmountParser)
	assert.Contains(t, names, PaymentStatusParser)
	assert.Len(t, names, 17)
	assert.IsIncreasing(t, names)

	_, ok := newTestRegistry().Get("STRIPE_AMOUNT_PARSER")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	value, err := parse(t, DateParser, json.Number("1699900800"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "2023-11-13T18:40:00.000Z", value)

	value, err = parse(t, DateParser, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, value)

	value, err = parse(t, DateParser, 0, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, value)

	_, err = parse(t, DateParser, "yesterday", nil, nil)
	assert.Error(t, err)
}

func TestParseCurrency(t *testing.T) {
	value, err := parse(t, CurrencyParser, "usd", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "USD", value)

	value, err = parse(t, CurrencyParser, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, value)

	_, err = parse(t, CurrencyParser, "zzz", nil, nil)
	var invalid *currency.InvalidCurrencyError
	assert.ErrorAs(t, err, &invalid)
}

func TestParseRate(t *testing.T) {
	value, err := parse(t, RateParser, 8.25, nil, nil)
	require.NoError(t, err)
	assertDecimal(t, "0.0825", value)

	value, err = parse(t, RateParser, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestParseProductStatus(t *testing.T) {
	value, err := parse(t, ProductStatusParser, true, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ProductStatusActive, value)

	value, err = parse(t, ProductStatusParser, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ProductStatusArchived, value)

	value, err = parse(t, ProductStatusParser, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestParsePaymentStatus(t *testing.T) {
	testCases := []struct {
		testName string
		obj      record.Object
		expected any
	}{
		{testName: "error wins over succeeded", obj: record.Object{"status": "succeeded", "last_payment_error": map[string]any{"code": "card_declined"}}, expected: "FAILED"},
		{testName: "succeeded", obj: record.Object{"status": "succeeded", "last_payment_error": nil}, expected: "PAID"},
		{testName: "processing", obj: record.Object{"status": "processing"}, expected: "ATTEMPTED"},
		{testName: "canceled", obj: record.Object{"status": "canceled"}, expected: "CREATED"},
		{testName: "unmapped", obj: record.Object{"status": "mystery"}, expected: nil},
	}

	for _, testCase := range testCases {
		t.Run(testCase.testName, func(t *testing.T) {
			value, err := parse(t, PaymentStatusParser, testCase.obj["status"], testCase.obj, nil)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, value)
		})
	}
}

func TestParseAmount(t *testing.T) {
	invoice := record.Object{"object": "invoice", "currency": "usd"}
	line := record.Object{"object": "line_item", "currency": "jpy"}
	jpyInvoice := record.Object{"object": "invoice", "currency": "jpy"}

	value, err := parse(t, AmountParser, json.Number("10825"), invoice, nil)
	require.NoError(t, err)
	assertDecimal(t, "108.25", value)

	// line items use the parent's currency even when they carry their own
	value, err = parse(t, AmountParser, 500, line, record.Ancestors{}.Push(record.KindInvoice, invoice))
	require.NoError(t, err)
	assertDecimal(t, "5", value)

	value, err = parse(t, AmountParser, 500, record.Object{"object": "line_item"}, record.Ancestors{}.Push(record.KindInvoice, jpyInvoice))
	require.NoError(t, err)
	assertDecimal(t, "500", value)

	value, err = parse(t, AmountParser, nil, invoice, nil)
	require.NoError(t, err)
	assert.Nil(t, value)

	_, err = parse(t, AmountParser, 100, record.Object{"object": "line_item"}, nil)
	var invalid *currency.InvalidCurrencyError
	assert.ErrorAs(t, err, &invalid)

	_, err = parse(t, AmountParser, "ten", invoice, nil)
	assert.Error(t, err)
}

func TestParseLineItemUnitAmount(t *testing.T) {
	invoice := record.Object{"object": "invoice", "currency": "usd"}
	line := record.Object{"object": "line_item"}

	value, err := parse(t, LineItemUnitAmountParser, "1000.5", line, record.Ancestors{}.Push(record.KindInvoice, invoice))
	require.NoError(t, err)
	assertDecimal(t, "10.005", value)
}

func TestAggregateAmounts(t *testing.T) {
	invoice := record.Object{
		"object":            "invoice",
		"currency":          "usd",
		"total_tax_amounts": []any{map[string]any{"amount": json.Number("825")}},
		"tax_amounts":       []any{map[string]any{"amount": json.Number("1")}},
		"discount_amounts":  []any{map[string]any{"amount": 100}},
	}
	line := record.Object{
		"object":           "line_item",
		"discount_amounts": []any{map[string]any{"amount": 50}, map[string]any{"amount": 25}},
		"tax_amounts":      []any{},
	}
	ancestors := record.Ancestors{}.Push(record.KindInvoice, invoice)

	value, err := parse(t, TotalTaxAmountParser, nil, invoice, nil)
	require.NoError(t, err)
	assertDecimal(t, "8.25", value)

	// an empty totals array falls back to the plain array
	value, err = parse(t, TotalDiscountAmountParser, nil, invoice, nil)
	require.NoError(t, err)
	assertDecimal(t, "1", value)

	value, err = parse(t, TotalDiscountAmountParser, nil, line, ancestors)
	require.NoError(t, err)
	assertDecimal(t, "0.75", value)

	value, err = parse(t, TotalTaxAmountParser, nil, line, ancestors)
	require.NoError(t, err)
	assertDecimal(t, "0", value)

	_, err = parse(t, TotalTaxAmountParser, nil, record.Object{"object": "invoice", "currency": "usd", "tax_amounts": []any{"bad"}}, nil)
	assert.Error(t, err)
}

func TestParseItemID(t *testing.T) {
	testCases := []struct {
		testName string
		obj      record.Object
		expected any
	}{
		{testName: "product id", obj: record.Object{"price": map[string]any{"product": "prod_1"}}, expected: "prod_1"},
		{testName: "expanded product", obj: record.Object{"price": map[string]any{"product": map[string]any{"id": "prod_2"}}}, expected: "prod_2"},
		{testName: "pricing fallback", obj: record.Object{"price": nil, "pricing": map[string]any{"price_details": map[string]any{"product": "prod_3"}}}, expected: "prod_3"},
		{testName: "missing", obj: record.Object{}, expected: nil},
	}

	for _, testCase := range testCases {
		t.Run(testCase.testName, func(t *testing.T) {
			value, err := parse(t, ItemIDParser, nil, testCase.obj, nil)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, value)
		})
	}
}

func TestParseContactAddresses(t *testing.T) {
	customer := record.Object{
		"object":   "customer",
		"id":       "cus_1",
		"address":  map[string]any{"line1": "1 Main St", "city": "Austin", "state": "TX", "postal_code": "78701", "country": "US"},
		"shipping": map[string]any{"address": map[string]any{"city": "Dallas", "line2": ""}},
	}

	value, err := parse(t, ContactAddressesParser, nil, customer, nil)
	require.NoError(t, err)

	addresses, ok := value.([]canonical.Address)
	require.True(t, ok)
	require.Len(t, addresses, 2)

	assert.Equal(t, canonical.AddressTypeBilling, addresses[0].Type)
	assert.Equal(t, "1 Main St", *addresses[0].AddressLine1)
	assert.Equal(t, "PAYMENT_CUSTOMERS", addresses[0].ParentType)
	assert.Equal(t, "cus_1", addresses[0].ParentID)

	assert.Equal(t, canonical.AddressTypeShipping, addresses[1].Type)
	assert.Equal(t, "Dallas", *addresses[1].City)
	assert.Nil(t, addresses[1].AddressLine2)

	value, err = parse(t, ContactAddressesParser, nil, record.Object{"object": "customer", "id": "cus_2", "address": nil}, nil)
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestParseInvoiceAddresses(t *testing.T) {
	invoice := record.Object{
		"object":            "invoice",
		"id":                "in_1",
		"customer_address":  nil,
		"customer_shipping": map[string]any{"name": "Jane", "address": map[string]any{"city": "Austin"}},
	}

	value, err := parse(t, InvoiceAddressesParser, nil, invoice, nil)
	require.NoError(t, err)

	addresses := value.([]canonical.Address)
	require.Len(t, addresses, 1)
	assert.Equal(t, canonical.AddressTypeShipping, addresses[0].Type)
	assert.Equal(t, "PAYMENT_INVOICES", addresses[0].ParentType)
}

func TestParseContactLinks(t *testing.T) {
	customer := record.Object{"phone": "+15125550100", "email": "jane@example.com"}

	phones, err := parse(t, ContactPhoneNumbersParser, nil, customer, nil)
	require.NoError(t, err)
	assert.Equal(t, []canonical.PhoneNumber{{Type: "PRIMARY", Number: "+15125550100"}}, phones)

	links, err := parse(t, ContactExternalLinksParser, nil, customer, nil)
	require.NoError(t, err)
	assert.Equal(t, []canonical.ExternalLink{{Type: "EMAIL", Link: "jane@example.com"}}, links)

	links, err = parse(t, ContactExternalLinksParser, nil, record.Object{"email": nil}, nil)
	require.NoError(t, err)
	assert.Equal(t, []canonical.ExternalLink{}, links)
}

func TestParseInvoiceIDs(t *testing.T) {
	value, err := parse(t, InvoiceIDsParser, "in_1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"in_1"}, value)

	value, err = parse(t, InvoiceIDsParser, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, value)
}

func TestParseParentDataModel(t *testing.T) {
	value, err := parse(t, ParentDataModelParser, nil, record.Object{}, record.Ancestors{}.Push(record.KindCreditNote, record.Object{"id": "cn_1"}))
	require.NoError(t, err)
	assert.Equal(t, "PAYMENT_CREDIT_NOTES", value)

	value, err = parse(t, ParentDataModelParser, nil, record.Object{}, nil)
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestParsersDoNotMutateInputs(t *testing.T) {
	invoice := record.Object{
		"object":      "invoice",
		"currency":    "usd",
		"tax_amounts": []any{map[string]any{"amount": 10}},
	}
	before, err := json.Marshal(invoice)
	require.NoError(t, err)

	registry := newTestRegistry()
	for _, name := range registry.Names() {
		parser, _ := registry.Get(name)
		_, _ = parser.Parse(invoice["currency"], invoice, nil)
	}

	after, err := json.Marshal(invoice)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}
