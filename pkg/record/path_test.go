package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	testCases := []struct {
		testName string
		expr     string
		err      error
	}{
		{testName: "single key", expr: "id"},
		{testName: "nested keys", expr: "default_price.unit_amount"},
		{testName: "numeric segment", expr: "tax_ids.data.0.value"},
		{testName: "bracket index", expr: "lines.data[0].id"},
		{testName: "wildcard", expr: "lines.data[*].id"},
		{testName: "parent scope", expr: "$parent.currency"},
		{testName: "empty", expr: "", err: ErrEmptyPath},
		{testName: "empty segment", expr: "a..b", err: ErrEmptySegment},
		{testName: "unclosed index", expr: "a[0", err: ErrMalformedIndex},
		{testName: "non numeric index", expr: "a[x]", err: ErrMalformedIndex},
		{testName: "trailing text after index", expr: "a[0]b", err: ErrMalformedIndex},
		{testName: "bare parent", expr: "$parent", err: ErrParentWithoutPath},
	}

	for _, testCase := range testCases {
		t.Run(testCase.testName, func(t *testing.T) {
			path, err := ParsePath(testCase.expr)
			if testCase.err != nil {
				assert.ErrorIs(t, err, testCase.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expr, path.String())
		})
	}
}

func TestPathLookup(t *testing.T) {
	obj := Object{
		"id":       "cus_123",
		"currency": "usd",
		"address":  nil,
		"tax_ids": map[string]any{
			"data": []any{
				map[string]any{"value": "US123456789"},
				map[string]any{"value": "EU987"},
			},
		},
		"lines": map[string]any{
			"data": []any{
				map[string]any{"id": "il_1", "tax_amounts": []any{map[string]any{"amount": 1}, map[string]any{"amount": 2}}},
				map[string]any{"id": "il_2", "tax_amounts": []any{map[string]any{"amount": 3}}},
				map[string]any{"description": "no id"},
			},
		},
		"metadata": map[string]any{"0": "zero key"},
	}

	testCases := []struct {
		testName string
		expr     string
		expected any
	}{
		{testName: "top level", expr: "id", expected: "cus_123"},
		{testName: "numeric segment", expr: "tax_ids.data.0.value", expected: "US123456789"},
		{testName: "bracket index", expr: "tax_ids.data[1].value", expected: "EU987"},
		{testName: "index out of range", expr: "tax_ids.data.5.value", expected: nil},
		{testName: "missing key", expr: "shipping.address.city", expected: nil},
		{testName: "null intermediate", expr: "address.line1", expected: nil},
		{testName: "scalar intermediate", expr: "currency.code", expected: nil},
		{testName: "aggregate over array", expr: "lines.data.id", expected: []any{"il_1", "il_2"}},
		{testName: "wildcard aggregate", expr: "lines.data[*].id", expected: []any{"il_1", "il_2"}},
		{testName: "flattened aggregate", expr: "lines.data.tax_amounts.amount", expected: []any{1, 2, 3}},
		{testName: "numeric key on object", expr: "metadata.0", expected: "zero key"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.testName, func(t *testing.T) {
			path := MustParsePath(testCase.expr)
			assert.Equal(t, testCase.expected, path.Resolve(obj, nil))
		})
	}
}

func TestPathResolveParent(t *testing.T) {
	parent := Object{"id": "in_1", "currency": "eur"}
	child := Object{"id": "il_1"}

	path := MustParsePath("$parent.currency")
	assert.Equal(t, ScopeParent, path.Scope())
	assert.Equal(t, "eur", path.Resolve(child, Ancestors{}.Push(KindInvoice, parent)))
	assert.Nil(t, path.Resolve(child, nil))
}

func TestAncestorsPush(t *testing.T) {
	invoice := Object{"id": "in_1"}
	line := Object{"id": "il_1"}

	base := Ancestors{}.Push(KindInvoice, invoice)
	nested := base.Push(KindLineItem, line)

	require.Len(t, base, 1)
	require.Len(t, nested, 2)

	parent, ok := nested.Parent()
	require.True(t, ok)
	assert.Equal(t, KindLineItem, parent.Kind)
	assert.Equal(t, KindInvoice, nested[1].Kind)

	_, ok = Ancestors(nil).Parent()
	assert.False(t, ok)
}

func TestDecodeKeepsNumbers(t *testing.T) {
	obj, err := Decode([]byte(`{"id":"in_1","amount":9007199254740993}`))
	require.NoError(t, err)

	assert.Equal(t, json.Number("9007199254740993"), obj["amount"])
	v, ok := Int64(obj["amount"])
	assert.True(t, ok)
	assert.Equal(t, int64(9007199254740993), v)

	_, err = Decode([]byte(`null`))
	assert.Error(t, err)
}

func TestNumberCoercion(t *testing.T) {
	v, ok := Int64(float64(12))
	assert.True(t, ok)
	assert.Equal(t, int64(12), v)

	_, ok = Int64(12.5)
	assert.False(t, ok)

	_, ok = Int64(true)
	assert.False(t, ok)

	d, ok := Decimal(json.Number("8.25"))
	assert.True(t, ok)
	assert.Equal(t, "8.25", d.String())

	d, ok = Decimal("1000.5")
	assert.True(t, ok)
	assert.Equal(t, "1000.5", d.String())
}

func TestKinds(t *testing.T) {
	kind, err := ParseKind("credit_note")
	require.NoError(t, err)
	assert.Equal(t, "PAYMENT_CREDIT_NOTES", kind.DataModel())

	_, err = ParseKind("subscription")
	assert.Error(t, err)

	kind, ok := KindFromObject("payment_intent")
	assert.True(t, ok)
	assert.Equal(t, KindPayment, kind)

	assert.Len(t, Kinds(), 8)
}
