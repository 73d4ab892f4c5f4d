package canonical

import (
	"testing"

	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocument(t *testing.T) {
	rec := Record{
		"platform_id":        "in_1",
		"platform_unique_id": "in_1",
		"contact_id":         "cus_1",
		"currency_id":        "USD",
		"sub_total":          decimal.RequireFromString("100.50"),
		"addresses": []any{
			map[string]any{"type": AddressTypeBilling, "city": "Denver"},
			map[string]any{"type": AddressTypeShipping, "city": "Austin"},
		},
		"line_items": []any{
			map[string]any{"platform_id": "il_1", "platform_unique_id": "il_1", "quantity": 2},
		},
	}

	doc, err := DecodeDocument(record.KindInvoice, rec)
	require.NoError(t, err)
	assert.Equal(t, record.KindInvoice, doc.DocumentKind())

	invoice, ok := doc.(*Invoice)
	require.True(t, ok)
	assert.Equal(t, "cus_1", *invoice.ContactID)
	assert.True(t, decimal.RequireFromString("100.5").Equal(*invoice.SubTotal))
	require.Len(t, invoice.LineItems, 1)
	assert.Equal(t, int64(2), *invoice.LineItems[0].Quantity)
	assert.Equal(t, "Austin", *invoice.ShippingAddress().City)
}

func TestDecodeDocumentRejects(t *testing.T) {
	_, err := DecodeDocument(record.KindCustomer, Record{"platform_id": "cus_1", "platform_unique_id": "cus_1"})
	assert.ErrorContains(t, err, "not transaction documents")

	_, err = DecodeDocument(record.KindRefund, Record{"platform_id": "re_1"})
	assert.Error(t, err)

	_, err = DecodeDocument(record.KindCreditNote, Record{
		"platform_id":        "cn_1",
		"platform_unique_id": "cn_1",
		"line_items":         []any{map[string]any{"platform_id": "cnli_1"}},
	})
	assert.Error(t, err)
}

func TestCustomerHelpers(t *testing.T) {
	customer, err := Decode[Customer](Record{
		"platform_id":        "cus_1",
		"platform_unique_id": "cus_1",
		"addresses":          []any{map[string]any{"type": AddressTypeBilling, "city": "Denver"}},
		"external_links": []any{
			map[string]any{"type": "WEBSITE", "link": "https://example.com"},
			map[string]any{"type": LinkTypeEmail, "link": "a@example.com"},
		},
	})
	require.NoError(t, err)

	assert.Nil(t, customer.ShippingAddress())
	require.NotNil(t, customer.Email())
	assert.Equal(t, "a@example.com", *customer.Email())
}
