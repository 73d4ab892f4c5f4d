package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerJSON = `{"object": "customer", "id": "cus_1", "email": "a@example.com", "created": 1699900800}`

func TestRunMap(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runMap(&out, record.KindCustomer, []byte(customerJSON), false))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "customer", resp["kind"])
	canonical := resp["record"].(map[string]any)
	assert.Equal(t, "cus_1", canonical["platform_id"])
}

func TestRunMapEvent(t *testing.T) {
	envelope := `{"id": "evt_1", "type": "customer.created", "data": {"object": ` + customerJSON + `}}`

	var out bytes.Buffer
	require.NoError(t, runMap(&out, record.KindCustomer, []byte(envelope), true))
	assert.Contains(t, out.String(), `"platform_id": "cus_1"`)

	assert.Error(t, runMap(&out, record.KindCustomer, []byte(`{"id": "evt_1"}`), true))
	assert.Error(t, runMap(&out, record.KindCustomer, []byte(`not json`), false))
}

func TestMapCommandWritesNumericAmounts(t *testing.T) {
	t.Cleanup(func() { decimal.MarshalJSONWithoutQuotes = false })
	invoice := `{"object": "invoice", "id": "in_1", "currency": "usd", "subtotal": 10000, "created": 1699900800}`

	var out bytes.Buffer
	root := newRootCommand()
	root.SetIn(bytes.NewBufferString(invoice))
	root.SetOut(&out)
	root.SetArgs([]string{"map", "invoice", "-"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), `"sub_total": 100`)
	assert.NotContains(t, out.String(), `"sub_total": "100"`)
}

func TestMapCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customer.json")
	require.NoError(t, os.WriteFile(path, []byte(customerJSON), 0o600))

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"map", "customer", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), `"data_model"`)

	root = newRootCommand()
	root.SetIn(bytes.NewBufferString(customerJSON))
	root.SetOut(&out)
	root.SetArgs([]string{"map", "customer", "-"})
	require.NoError(t, root.Execute())

	root = newRootCommand()
	root.SetArgs([]string{"map", "subscription", path})
	assert.ErrorContains(t, root.Execute(), "unsupported entity kind")

	root = newRootCommand()
	root.SetArgs([]string{"map", "customer", filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, root.Execute())
}
