package processor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/internal/services/pipeline"
	"github.com/Ramsey-B/juniper/pkg/assembler"
	"github.com/Ramsey-B/juniper/pkg/canonical"
	"github.com/Ramsey-B/juniper/pkg/currency"
	"github.com/Ramsey-B/juniper/pkg/descriptors"
	"github.com/Ramsey-B/juniper/pkg/kafka"
	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/Ramsey-B/juniper/pkg/resolver"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shippedInvoiceEvent = `{
	"id": "evt_1",
	"type": "invoice.finalized",
	"data": {"object": {
		"object": "invoice",
		"id": "in_1",
		"customer": "cus_1",
		"currency": "usd",
		"created": 1699900800,
		"customer_shipping": {"address": {"line1": "1 Congress Ave", "city": "Austin", "state": "TX", "postal_code": "78701", "country": "US"}},
		"lines": {"data": [{"object": "line_item", "id": "il_1", "amount": 500, "quantity": 1, "price": {"product": "prod_1"}}]}
	}}
}`

const customerEvent = `{"id": "evt_2", "type": "customer.created", "data": {"object": {"object": "customer", "id": "cus_1", "email": "a@example.com"}}}`

type noSettings struct{}

func (noSettings) Get(_ context.Context, _ string) (salestax.Corporation, error) {
	return salestax.Corporation{}, httperror.NewHTTPError(http.StatusNotFound, "corporation settings not found")
}

type fakeCalculator struct {
	err error
}

func (f *fakeCalculator) CalculateTax(_ context.Context, request salestax.TaxCalculationRequest) (*salestax.CalculationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &salestax.CalculationResult{ID: "calc_1", TotalTax: decimal.RequireFromString("0.41"), Currency: request.TransactionCurrency}, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]*kafka.OutputMessage
	failOn   string
}

func (f *fakePublisher) PublishToTopic(_ context.Context, topic string, msg *kafka.OutputMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if topic == f.failOn {
		return errors.New("broker unavailable")
	}
	if f.messages == nil {
		f.messages = map[string][]*kafka.OutputMessage{}
	}
	f.messages[topic] = append(f.messages[topic], msg)
	return nil
}

func (f *fakePublisher) on(topic string) []*kafka.OutputMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[topic]
}

type fakeClaimer struct {
	claimed  map[string]bool
	released []string
	err      error
}

func (f *fakeClaimer) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeClaimer) Release(_ context.Context, key string) error {
	delete(f.claimed, key)
	f.released = append(f.released, key)
	return nil
}

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newPipeline(t *testing.T, calculator *fakeCalculator) *pipeline.Service {
	t.Helper()
	return newPipelineWithDirectory(t, resolver.NewMemoryDirectory(), calculator)
}

func newPipelineWithDirectory(t *testing.T, directory resolver.Directory, calculator *fakeCalculator) *pipeline.Service {
	t.Helper()
	set, err := descriptors.Load()
	require.NoError(t, err)
	builder := assembler.New(resolver.NewResolver(directory, noopLogger()), currency.NewConverter(), noopLogger())
	return pipeline.NewService(set, noSettings{}, builder, calculator, noopLogger())
}

func receive(t *testing.T, raw string, corporationID string) *kafka.ReceivedMessage {
	t.Helper()
	event, err := kafka.ParseStripeEvent([]byte(raw))
	require.NoError(t, err)
	return &kafka.ReceivedMessage{
		Topic:   "stripe-events",
		Offset:  7,
		Headers: kafka.MessageHeaders{CorporationID: corporationID},
		Event:   event,
	}
}

func TestProcessInvoiceEvent(t *testing.T) {
	publisher := &fakePublisher{}
	config := DefaultProcessorConfig()
	config.Calculate = true
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{}), publisher, nil, noopLogger())

	result, err := p.ProcessMessage(context.Background(), receive(t, shippedInvoiceEvent, "corp_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, record.KindInvoice, result.Kind)
	assert.Equal(t, "in_1", result.PlatformID)

	canonicalMessages := publisher.on(config.CanonicalTopic)
	require.Len(t, canonicalMessages, 1)
	assert.Equal(t, kafka.MessageTypeCanonicalRecord, canonicalMessages[0].Type)
	assert.Equal(t, "evt_1", canonicalMessages[0].Source.EventID)
	assert.Equal(t, "STRIPE", canonicalMessages[0].Source.Platform)

	requests := publisher.on(config.TaxRequestTopic)
	require.Len(t, requests, 1)
	built := requests[0].Data.(*assembler.Built)
	assert.Equal(t, salestax.TransactionTypeSale, built.Request.TransactionType)
	assert.Equal(t, "Austin", *built.Request.Addresses.ShipTo.City)
	assert.True(t, built.UnresolvedCustomer)
	assert.Equal(t, []string{"prod_1"}, built.UnresolvedProducts)

	calculations := publisher.on(config.CalculationTopic)
	require.Len(t, calculations, 1)
	assert.Equal(t, "calc_1", result.Calculation.ID)

	assert.Empty(t, publisher.on(config.ErrorTopic))
	assert.Equal(t, Stats{EventsProcessed: 1, RequestsBuilt: 1}, p.Stats())
}

func TestProcessNonDocumentEventOnlyPublishesRecord(t *testing.T) {
	publisher := &fakePublisher{}
	config := DefaultProcessorConfig()
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{}), publisher, nil, noopLogger())

	result, err := p.ProcessMessage(context.Background(), receive(t, customerEvent, "corp_1"))
	require.NoError(t, err)
	assert.Equal(t, record.KindCustomer, result.Kind)
	assert.Nil(t, result.Request)
	assert.Len(t, publisher.on(config.CanonicalTopic), 1)
	assert.Empty(t, publisher.on(config.TaxRequestTopic))
}

func TestProcessWithoutCorporationSkipsRequest(t *testing.T) {
	publisher := &fakePublisher{}
	config := DefaultProcessorConfig()
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{}), publisher, nil, noopLogger())

	result, err := p.ProcessMessage(context.Background(), receive(t, shippedInvoiceEvent, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Len(t, publisher.on(config.CanonicalTopic), 1)
	assert.Empty(t, publisher.on(config.TaxRequestTopic))
}

func TestProcessUnknownObjectIsSkipped(t *testing.T) {
	publisher := &fakePublisher{}
	p := NewProcessor(DefaultProcessorConfig(), newPipeline(t, &fakeCalculator{}), publisher, nil, noopLogger())

	result, err := p.ProcessMessage(context.Background(), receive(t, `{"id": "evt_3", "data": {"object": {"object": "subscription", "id": "sub_1"}}}`, "corp_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Empty(t, publisher.messages)
	assert.Equal(t, int64(1), p.Stats().EventsSkipped)
}

func TestProcessDuplicateEvent(t *testing.T) {
	publisher := &fakePublisher{}
	claimer := &fakeClaimer{claimed: map[string]bool{}}
	config := DefaultProcessorConfig()
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{}), publisher, claimer, noopLogger())

	first, err := p.ProcessMessage(context.Background(), receive(t, customerEvent, "corp_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, first.Outcome)

	second, err := p.ProcessMessage(context.Background(), receive(t, customerEvent, "corp_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Len(t, publisher.on(config.CanonicalTopic), 1)
	assert.True(t, claimer.claimed["juniper:event:evt_2"])
}

func TestProcessRedeliveryAfterResolverOutage(t *testing.T) {
	publisher := &fakePublisher{}
	claimer := &fakeClaimer{claimed: map[string]bool{}}
	directory := resolver.NewMemoryDirectory()
	config := DefaultProcessorConfig()
	p := NewProcessor(config, newPipelineWithDirectory(t, directory, &fakeCalculator{}), publisher, claimer, noopLogger())

	directory.SetError(errors.New("directory timeout"))
	first, err := p.ProcessMessage(context.Background(), receive(t, shippedInvoiceEvent, "corp_1"))
	require.Error(t, err)
	assert.True(t, resolver.IsResolutionUnavailable(err))
	assert.Equal(t, OutcomeFailed, first.Outcome)
	assert.Empty(t, publisher.on(config.TaxRequestTopic))
	assert.Equal(t, []string{"juniper:event:evt_1"}, claimer.released)

	directory.SetError(nil)
	second, err := p.ProcessMessage(context.Background(), receive(t, shippedInvoiceEvent, "corp_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, second.Outcome)
	assert.Len(t, publisher.on(config.TaxRequestTopic), 1)
	assert.True(t, claimer.claimed["juniper:event:evt_1"])

	third, err := p.ProcessMessage(context.Background(), receive(t, shippedInvoiceEvent, "corp_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, third.Outcome)
	assert.Len(t, publisher.on(config.TaxRequestTopic), 1)
}

func TestProcessClaimFailureStillProcesses(t *testing.T) {
	publisher := &fakePublisher{}
	config := DefaultProcessorConfig()
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{}), publisher, &fakeClaimer{err: errors.New("redis down")}, noopLogger())

	result, err := p.ProcessMessage(context.Background(), receive(t, customerEvent, "corp_1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
}

func TestProcessAssemblyFailureGoesToErrorTopic(t *testing.T) {
	publisher := &fakePublisher{}
	config := DefaultProcessorConfig()
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{}), publisher, nil, noopLogger())

	// no shipping address on the invoice and no resolvable customer
	raw := `{"id": "evt_4", "data": {"object": {"object": "invoice", "id": "in_9", "customer": "cus_9", "currency": "usd", "lines": {"data": []}}}}`
	result, err := p.ProcessMessage(context.Background(), receive(t, raw, "corp_1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, assembler.ErrMissingShipToAddress)
	assert.Equal(t, OutcomeFailed, result.Outcome)

	// the canonical record is still published
	assert.Len(t, publisher.on(config.CanonicalTopic), 1)

	errorMessages := publisher.on(config.ErrorTopic)
	require.Len(t, errorMessages, 1)
	data := errorMessages[0].Data.(map[string]any)
	assert.Equal(t, StageAssemble, data["stage"])
	assert.Equal(t, kafka.MessageTypeError, errorMessages[0].Type)
	assert.Equal(t, int64(1), p.Stats().EventsFailed)
}

func TestProcessFieldErrorsArePublished(t *testing.T) {
	publisher := &fakePublisher{}
	config := DefaultProcessorConfig()
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{}), publisher, nil, noopLogger())

	raw := `{"id": "evt_5", "data": {"object": {"object": "invoice", "id": "in_5", "currency": "zzz", "subtotal": 100}}}`
	result, err := p.ProcessMessage(context.Background(), receive(t, raw, ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)

	canonicalMessages := publisher.on(config.CanonicalTopic)
	require.Len(t, canonicalMessages, 1)
	assert.Nil(t, canonicalMessages[0].Data.(canonical.Record)["sub_total"])

	errorMessages := publisher.on(config.ErrorTopic)
	require.NotEmpty(t, errorMessages)
	for _, msg := range errorMessages {
		assert.Equal(t, StageField, msg.Data.(map[string]any)["stage"])
	}
}

func TestProcessCalculationFailure(t *testing.T) {
	publisher := &fakePublisher{}
	config := DefaultProcessorConfig()
	config.Calculate = true
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{err: salestax.ErrServiceUnavailable}), publisher, nil, noopLogger())

	_, err := p.ProcessMessage(context.Background(), receive(t, shippedInvoiceEvent, "corp_1"))
	assert.ErrorIs(t, err, salestax.ErrServiceUnavailable)
	assert.Len(t, publisher.on(config.TaxRequestTopic), 1)
	assert.Empty(t, publisher.on(config.CalculationTopic))
	require.Len(t, publisher.on(config.ErrorTopic), 1)
}

func TestProcessPublishFailure(t *testing.T) {
	config := DefaultProcessorConfig()
	publisher := &fakePublisher{failOn: config.CanonicalTopic}
	p := NewProcessor(config, newPipeline(t, &fakeCalculator{}), publisher, nil, noopLogger())

	result, err := p.ProcessMessage(context.Background(), receive(t, customerEvent, "corp_1"))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	require.Len(t, publisher.on(config.ErrorTopic), 1)
	assert.Equal(t, StagePublish, publisher.on(config.ErrorTopic)[0].Data.(map[string]any)["stage"])
}

func TestMessageHandler(t *testing.T) {
	p := NewProcessor(DefaultProcessorConfig(), newPipeline(t, &fakeCalculator{}), &fakePublisher{}, nil, noopLogger())
	handler := p.MessageHandler()

	assert.NoError(t, handler(context.Background(), receive(t, customerEvent, "corp_1")))
	assert.Error(t, handler(context.Background(), &kafka.ReceivedMessage{}))
}
