// Package enums holds the closed lookup tables that translate platform status
// strings into canonical values.
//
// Lookups return a Match instead of a bare string so callers can tell "mapped"
// apart from "no mapping exists" and pick their own default.
package enums

import (
	"sort"

	"github.com/Gobusters/ectolinq"
)

// Canonical artifact statuses shared by invoices and credit notes.
const (
	ArtifactDraft         = "DRAFT"
	ArtifactIssued        = "ISSUED"
	ArtifactPaid          = "PAID"
	ArtifactUncollectible = "UNCOLLECTIBLE"
	ArtifactVoid          = "VOID"
)

const (
	RefundPending   = "PENDING"
	RefundSucceeded = "SUCCEEDED"
	RefundFailed    = "FAILED"
	RefundCancelled = "CANCELLED"
)

const (
	PaymentMethodCard           = "CARD"
	PaymentMethodUPI            = "UPI"
	PaymentMethodLink           = "LINK"
	PaymentMethodBankTransfer   = "BANK_TRANSFER"
	PaymentMethodPayPal         = "PAYPAL"
	PaymentMethodWallet         = "WALLET"
	PaymentMethodBuyNowPayLater = "BUY_NOW_PAY_LATER"
)

const (
	PaymentCreated   = "CREATED"
	PaymentAttempted = "ATTEMPTED"
	PaymentPaid      = "PAID"
	PaymentFailed    = "FAILED"
)

// Table names used by mapping descriptors.
const (
	ArtifactStatusTable = "artifact_status"
	RefundStatusTable   = "refund_status"
	PaymentMethodTable  = "payment_method"
	PaymentStatusTable  = "payment_status"
)

// Match is the result of a table lookup.
type Match struct {
	Value string
	Found bool
}

// Table is an immutable raw-value to canonical-value lookup.
type Table struct {
	name    string
	entries map[string]string
}

func NewTable(name string, entries map[string]string) Table {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return Table{name: name, entries: copied}
}

func (t Table) Name() string {
	return t.name
}

// Lookup resolves a raw value. Anything that is not a string is unmapped.
func (t Table) Lookup(raw any) Match {
	key, ok := raw.(string)
	if !ok {
		return Match{}
	}

	value, ok := t.entries[key]
	if !ok {
		return Match{}
	}

	return Match{Value: value, Found: true}
}

// Values returns the distinct canonical values the table can produce.
func (t Table) Values() []string {
	values := make([]string, 0, len(t.entries))
	for _, v := range t.entries {
		if !ectolinq.Contains(values, v) {
			values = append(values, v)
		}
	}
	sort.Strings(values)
	return values
}

var ArtifactStatus = NewTable(ArtifactStatusTable, map[string]string{
	"draft":         ArtifactDraft,
	"open":          ArtifactIssued,
	"issued":        ArtifactIssued,
	"paid":          ArtifactPaid,
	"uncollectible": ArtifactUncollectible,
	"void":          ArtifactVoid,
})

var RefundStatus = NewTable(RefundStatusTable, map[string]string{
	"pending":         RefundPending,
	"requires_action": RefundPending,
	"succeeded":       RefundSucceeded,
	"failed":          RefundFailed,
	"canceled":        RefundCancelled,
})

var PaymentMethod = NewTable(PaymentMethodTable, map[string]string{
	"card":                PaymentMethodCard,
	"card_present":        PaymentMethodCard,
	"interac_present":     PaymentMethodCard,
	"upi":                 PaymentMethodUPI,
	"link":                PaymentMethodLink,
	"us_bank_account":     PaymentMethodBankTransfer,
	"sepa_debit":          PaymentMethodBankTransfer,
	"bacs_debit":          PaymentMethodBankTransfer,
	"au_becs_debit":       PaymentMethodBankTransfer,
	"acss_debit":          PaymentMethodBankTransfer,
	"bank_transfer":       PaymentMethodBankTransfer,
	"ach_credit_transfer": PaymentMethodBankTransfer,
	"ach_debit":           PaymentMethodBankTransfer,
	"paypal":              PaymentMethodPayPal,
	"apple_pay":           PaymentMethodWallet,
	"google_pay":          PaymentMethodWallet,
	"cashapp":             PaymentMethodWallet,
	"wechat_pay":          PaymentMethodWallet,
	"alipay":              PaymentMethodWallet,
	"amazon_pay":          PaymentMethodWallet,
	"revolut_pay":         PaymentMethodWallet,
	"klarna":              PaymentMethodBuyNowPayLater,
	"affirm":              PaymentMethodBuyNowPayLater,
	"afterpay_clearpay":   PaymentMethodBuyNowPayLater,
	"zip":                 PaymentMethodBuyNowPayLater,
})

// PaymentStatus is the nominal-status table. The error-indicator precedence
// lives in the payment status parser, not here.
var PaymentStatus = NewTable(PaymentStatusTable, map[string]string{
	"requires_payment_method": PaymentCreated,
	"canceled":                PaymentCreated,
	"requires_confirmation":   PaymentAttempted,
	"requires_capture":        PaymentAttempted,
	"requires_action":         PaymentAttempted,
	"processing":              PaymentAttempted,
	"succeeded":               PaymentPaid,
})

var catalog = map[string]Table{
	ArtifactStatusTable: ArtifactStatus,
	RefundStatusTable:   RefundStatus,
	PaymentMethodTable:  PaymentMethod,
	PaymentStatusTable:  PaymentStatus,
}

// ByName returns the table registered under name.
func ByName(name string) (Table, bool) {
	table, ok := catalog[name]
	return table, ok
}

// Names lists the registered tables in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
