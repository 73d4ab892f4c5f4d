package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/internal/services/pipeline"
	"github.com/Ramsey-B/juniper/pkg/assembler"
	"github.com/Ramsey-B/juniper/pkg/kafka"
	"github.com/Ramsey-B/juniper/pkg/mapping"
	"github.com/Ramsey-B/juniper/pkg/metrics"
	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

// Processing stages reported on the error topic
const (
	StageDecode    = "decode_event"
	StageMap       = "map_record"
	StageField     = "map_field"
	StageAssemble  = "assemble_request"
	StageCalculate = "calculate_tax"
	StagePublish   = "publish_output"
)

// Pipeline is the mapping and assembly work done for each event
type Pipeline interface {
	MapRecord(ctx context.Context, kind record.Kind, obj record.Object) (*mapping.Result, error)
	AssembleRequest(ctx context.Context, mapped *mapping.Result, corporationID string, opts assembler.Options) (*assembler.Built, error)
	Calculate(ctx context.Context, request salestax.TaxCalculationRequest) (*salestax.CalculationResult, error)
}

// Publisher writes output messages to a topic
type Publisher interface {
	PublishToTopic(ctx context.Context, topic string, msg *kafka.OutputMessage) error
}

// Claimer records that an event has been handled. Claim returns false when
// the key was already claimed. Release gives the key back so a failed event
// can be redelivered.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ProcessorConfig configures the event processor
type ProcessorConfig struct {
	// ProcessTimeout bounds the handling of a single event
	ProcessTimeout time.Duration

	// CanonicalTopic receives every mapped canonical record
	CanonicalTopic string

	// TaxRequestTopic receives built tax requests. Requests are only built
	// when it is set.
	TaxRequestTopic string

	// Calculate submits built requests and publishes the result to
	// CalculationTopic
	Calculate        bool
	CalculationTopic string

	// ErrorTopic, when set, receives processing failures. If empty, failures
	// are only logged.
	ErrorTopic string

	// DedupeTTL is how long an event id stays claimed
	DedupeTTL time.Duration
}

// DefaultProcessorConfig returns a ProcessorConfig with sensible defaults
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		ProcessTimeout:   30 * time.Second,
		CanonicalTopic:   "canonical-records",
		TaxRequestTopic:  "tax-requests",
		Calculate:        false,
		CalculationTopic: "tax-calculations",
		ErrorTopic:       "juniper-errors",
		DedupeTTL:        24 * time.Hour,
	}
}

// Processor turns platform events into canonical records and tax requests
type Processor struct {
	config    ProcessorConfig
	pipeline  Pipeline
	publisher Publisher
	claimer   Claimer
	logger    ectologger.Logger

	// Metrics
	eventsProcessed int64
	eventsSkipped   int64
	eventsFailed    int64
	requestsBuilt   int64
	mu              sync.Mutex
}

// NewProcessor creates a new event processor. claimer may be nil, in which
// case redelivered events are processed again.
func NewProcessor(config ProcessorConfig, pipeline Pipeline, publisher Publisher, claimer Claimer, logger ectologger.Logger) *Processor {
	return &Processor{
		config:    config,
		pipeline:  pipeline,
		publisher: publisher,
		claimer:   claimer,
		logger:    logger,
	}
}

// Outcome of processing one event
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// ProcessResult contains the result of processing a message
type ProcessResult struct {
	Kind        record.Kind
	PlatformID  string
	Outcome     Outcome
	Request     *salestax.TaxCalculationRequest
	Calculation *salestax.CalculationResult
	Error       error
	Duration    time.Duration
}

// ProcessMessage maps the event's object, publishes the canonical record and,
// for transaction documents, builds and publishes the tax request.
func (p *Processor) ProcessMessage(ctx context.Context, msg *kafka.ReceivedMessage) (*ProcessResult, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.ProcessMessage")
	defer span.End()

	start := time.Now()
	result := &ProcessResult{}
	defer func() {
		result.Duration = time.Since(start)
		metrics.EventsProcessedTotal.WithLabelValues(string(result.Kind), string(result.Outcome)).Inc()
		p.count(result.Outcome)
	}()

	if p.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.ProcessTimeout)
		defer cancel()
	}

	if msg == nil || msg.Event == nil {
		result.Outcome = OutcomeFailed
		result.Error = fmt.Errorf("message carries no event")
		return result, result.Error
	}

	obj, err := msg.Event.Object()
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = fmt.Errorf("failed to decode event object: %w", err)
		p.publishError(ctx, StageDecode, msg, result, result.Error)
		return result, result.Error
	}

	kind, ok := record.KindFromObject(obj.Type())
	if !ok {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"event_id":   msg.Event.ID,
			"event_type": msg.Event.Type,
			"object":     obj.Type(),
		}).Debug("Skipping event for unmapped object type")
		result.Outcome = OutcomeSkipped
		return result, nil
	}
	result.Kind = kind
	result.PlatformID, _ = obj["id"].(string)

	held, proceed := p.claim(ctx, msg)
	if !proceed {
		result.Outcome = OutcomeDuplicate
		return result, nil
	}
	if held {
		defer func() {
			if result.Outcome == OutcomeFailed {
				p.release(ctx, msg)
			}
		}()
	}

	mapped, err := p.pipeline.MapRecord(ctx, kind, obj)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = fmt.Errorf("failed to map %s: %w", kind, err)
		p.publishError(ctx, StageMap, msg, result, result.Error)
		return result, result.Error
	}
	for _, fieldErr := range mapped.FieldErrors {
		p.publishError(ctx, StageField, msg, result, fieldErr)
	}

	if err := p.publish(ctx, p.config.CanonicalTopic, kafka.MessageTypeCanonicalRecord, msg, result, mapped.Record); err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err
		return result, err
	}

	if err := p.buildRequest(ctx, msg, mapped, result); err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err
		return result, err
	}

	result.Outcome = OutcomeProcessed
	return result, nil
}

func (p *Processor) buildRequest(ctx context.Context, msg *kafka.ReceivedMessage, mapped *mapping.Result, result *ProcessResult) error {
	if p.config.TaxRequestTopic == "" || !pipeline.IsDocumentKind(mapped.Kind) {
		return nil
	}

	corporationID := msg.Headers.CorporationID
	if corporationID == "" {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"event_id":    msg.Event.ID,
			"kind":        mapped.Kind,
			"platform_id": result.PlatformID,
		}).Warn("No corporation_id header, tax request not built")
		return nil
	}

	built, err := p.pipeline.AssembleRequest(ctx, mapped, corporationID, assembler.Options{})
	if err != nil {
		err = fmt.Errorf("failed to assemble tax request: %w", err)
		p.publishError(ctx, StageAssemble, msg, result, err)
		return err
	}
	result.Request = &built.Request
	p.mu.Lock()
	p.requestsBuilt++
	p.mu.Unlock()

	if err := p.publish(ctx, p.config.TaxRequestTopic, kafka.MessageTypeTaxRequest, msg, result, built); err != nil {
		return err
	}

	if !p.config.Calculate {
		return nil
	}

	calculation, err := p.pipeline.Calculate(ctx, built.Request)
	if err != nil {
		p.publishError(ctx, StageCalculate, msg, result, err)
		return err
	}
	result.Calculation = calculation

	return p.publish(ctx, p.config.CalculationTopic, kafka.MessageTypeTaxCalculation, msg, result, calculation)
}

func eventKey(msg *kafka.ReceivedMessage) string {
	return fmt.Sprintf("juniper:event:%s", msg.Event.ID)
}

// claim reports whether this delivery holds the event's claim and whether it
// should be processed. A failing claim store does not block processing.
func (p *Processor) claim(ctx context.Context, msg *kafka.ReceivedMessage) (held, proceed bool) {
	if p.claimer == nil || msg.Event.ID == "" {
		return false, true
	}

	claimed, err := p.claimer.Claim(ctx, eventKey(msg), p.config.DedupeTTL)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to claim event %s, processing anyway", msg.Event.ID)
		return false, true
	}
	if !claimed {
		p.logger.WithContext(ctx).Debugf("Event %s already processed", msg.Event.ID)
	}
	return claimed, claimed
}

// release drops the claim of a failed event so a redelivery is processed.
func (p *Processor) release(ctx context.Context, msg *kafka.ReceivedMessage) {
	if err := p.claimer.Release(context.WithoutCancel(ctx), eventKey(msg)); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to release claim on event %s", msg.Event.ID)
	}
}

func (p *Processor) publish(ctx context.Context, topic, messageType string, msg *kafka.ReceivedMessage, result *ProcessResult, data any) error {
	if topic == "" {
		return nil
	}

	out := p.outputMessage(ctx, messageType, msg, result, data)
	if err := p.publisher.PublishToTopic(ctx, topic, out); err != nil {
		err = fmt.Errorf("failed to publish %s: %w", messageType, err)
		p.publishError(ctx, StagePublish, msg, result, err)
		return err
	}
	return nil
}

func (p *Processor) outputMessage(ctx context.Context, messageType string, msg *kafka.ReceivedMessage, result *ProcessResult, data any) *kafka.OutputMessage {
	out := &kafka.OutputMessage{
		Source: kafka.MessageSource{
			Platform:      sourcePlatform(msg),
			CorporationID: msg.Headers.CorporationID,
			PlatformID:    result.PlatformID,
		},
		Type:      messageType,
		Kind:      result.Kind,
		Timestamp: time.Now().UTC(),
		Data:      data,
		TraceID:   tracing.GetTraceID(ctx),
		SpanID:    tracing.GetSpanID(ctx),
	}
	if msg.Event != nil {
		out.Source.EventID = msg.Event.ID
		out.Source.EventType = msg.Event.Type
	}
	return out
}

func (p *Processor) publishError(ctx context.Context, stage string, msg *kafka.ReceivedMessage, result *ProcessResult, err error) {
	if p.publisher == nil || p.config.ErrorTopic == "" || msg == nil || err == nil {
		return
	}

	errorMsg := p.outputMessage(ctx, kafka.MessageTypeError, msg, result, map[string]any{
		"stage": stage,
		"error": err.Error(),
		"input": map[string]any{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"key":       string(msg.Key),
		},
	})

	if pubErr := p.publisher.PublishToTopic(ctx, p.config.ErrorTopic, errorMsg); pubErr != nil {
		p.logger.WithContext(ctx).WithError(pubErr).Error("Failed to publish processing error message")
	}
}

func sourcePlatform(msg *kafka.ReceivedMessage) string {
	if msg.Headers.SourcePlatform != "" {
		return msg.Headers.SourcePlatform
	}
	return assembler.DefaultSourcePlatform
}

// MessageHandler returns a kafka.MessageHandler for use with the consumer
func (p *Processor) MessageHandler() kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.ReceivedMessage) error {
		if msg != nil && msg.Headers.TraceParent != "" {
			ctx = tracing.ContextWithTraceParent(ctx, msg.Headers.TraceParent)
		}

		result, err := p.ProcessMessage(ctx, msg)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"kind":        result.Kind,
				"platform_id": result.PlatformID,
			}).Error("Failed to process event")
			return err
		}

		if result.Request != nil {
			p.logger.WithContext(ctx).WithFields(map[string]any{
				"kind":             result.Kind,
				"platform_id":      result.PlatformID,
				"transaction_type": result.Request.TransactionType,
				"line_items":       len(result.Request.LineItems),
			}).Info("Tax request built")
		}
		return nil
	}
}

func (p *Processor) count(outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch outcome {
	case OutcomeProcessed:
		p.eventsProcessed++
	case OutcomeFailed:
		p.eventsFailed++
	default:
		p.eventsSkipped++
	}
}

// Stats returns processor statistics
type Stats struct {
	EventsProcessed int64
	EventsSkipped   int64
	EventsFailed    int64
	RequestsBuilt   int64
}

func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		EventsProcessed: p.eventsProcessed,
		EventsSkipped:   p.eventsSkipped,
		EventsFailed:    p.eventsFailed,
		RequestsBuilt:   p.requestsBuilt,
	}
}
