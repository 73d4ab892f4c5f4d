package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/assembler"
	"github.com/Ramsey-B/juniper/pkg/canonical"
	"github.com/Ramsey-B/juniper/pkg/mapping"
	"github.com/Ramsey-B/juniper/pkg/metrics"
	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

type Mapper interface {
	Map(kind record.Kind, obj record.Object) (*mapping.Result, error)
	Kinds() []record.Kind
}

type CorporationRepository interface {
	Get(ctx context.Context, corporationID string) (salestax.Corporation, error)
}

type Assembler interface {
	Build(ctx context.Context, doc canonical.Document, corporation salestax.Corporation, opts assembler.Options) (*assembler.Built, error)
}

type Calculator interface {
	CalculateTax(ctx context.Context, request salestax.TaxCalculationRequest) (*salestax.CalculationResult, error)
}

// BuildInput is one raw transaction document plus its per-request options.
type BuildInput struct {
	Kind          record.Kind
	Object        record.Object
	CorporationID string
	ShipTo        *salestax.Address
	ShipFrom      *salestax.Address
}

// BuildOutput carries the canonical record alongside the built request.
type BuildOutput struct {
	Mapped *mapping.Result
	Built  *assembler.Built
}

type Service struct {
	mapper       Mapper
	corporations CorporationRepository
	assembler    Assembler
	calculator   Calculator
	logger       ectologger.Logger
}

func NewService(mapper Mapper, corporations CorporationRepository, assembler Assembler, calculator Calculator, logger ectologger.Logger) *Service {
	return &Service{
		mapper:       mapper,
		corporations: corporations,
		assembler:    assembler,
		calculator:   calculator,
		logger:       logger,
	}
}

// Kinds lists the entity kinds that can be mapped.
func (s *Service) Kinds() []record.Kind {
	return s.mapper.Kinds()
}

// MapRecord maps one raw platform object into its canonical record. Field
// failures are logged and counted; the record is still returned.
func (s *Service) MapRecord(ctx context.Context, kind record.Kind, obj record.Object) (*mapping.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.MapRecord")
	defer span.End()

	metrics.RecordsMappedTotal.WithLabelValues(kind.String()).Inc()

	result, err := s.mapper.Map(kind, obj)
	if err != nil {
		return nil, err
	}

	for _, fieldErr := range result.FieldErrors {
		view := fieldErr.View()
		metrics.FieldErrorsTotal.WithLabelValues(kind.String(), view.Field).Inc()
		s.logger.WithContext(ctx).WithError(fieldErr).WithFields(map[string]any{
			"kind":        kind,
			"platform_id": obj["id"],
			"field":       view.Field,
		}).Warn("canonical field set to null")
	}

	return result, nil
}

// Corporation returns the effective settings for a corporation. A corporation
// without stored settings, or a service without a settings store, gets the
// defaults.
func (s *Service) Corporation(ctx context.Context, corporationID string) (salestax.Corporation, error) {
	if s.corporations == nil {
		return salestax.Corporation{ID: corporationID}, nil
	}

	corporation, err := s.corporations.Get(ctx, corporationID)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
			return salestax.Corporation{ID: corporationID}, nil
		}
		return salestax.Corporation{}, err
	}
	return corporation, nil
}

// BuildTaxRequest maps a raw invoice, credit note or refund and assembles its
// tax calculation request.
func (s *Service) BuildTaxRequest(ctx context.Context, input BuildInput) (*BuildOutput, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.BuildTaxRequest")
	defer span.End()

	if err := checkBuildable(input.Kind, input.CorporationID); err != nil {
		return nil, err
	}

	mapped, err := s.MapRecord(ctx, input.Kind, input.Object)
	if err != nil {
		return nil, err
	}

	built, err := s.AssembleRequest(ctx, mapped, input.CorporationID, assembler.Options{
		ShipTo:   input.ShipTo,
		ShipFrom: input.ShipFrom,
	})
	if err != nil {
		return nil, err
	}

	return &BuildOutput{Mapped: mapped, Built: built}, nil
}

// AssembleRequest builds the tax request for an already mapped document. The
// document's own shipping address is used when opts carries no ship-to.
func (s *Service) AssembleRequest(ctx context.Context, mapped *mapping.Result, corporationID string, opts assembler.Options) (*assembler.Built, error) {
	if err := checkBuildable(mapped.Kind, corporationID); err != nil {
		return nil, err
	}

	doc, err := canonical.DecodeDocument(mapped.Kind, mapped.Record)
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid canonical %s: %s", mapped.Kind, err.Error())
	}

	corporation, err := s.Corporation(ctx, corporationID)
	if err != nil {
		return nil, err
	}

	if opts.ShipTo == nil {
		opts.ShipTo = assembler.TransactionShipTo(doc)
	}

	return s.assembler.Build(ctx, doc, corporation, opts)
}

func checkBuildable(kind record.Kind, corporationID string) error {
	if corporationID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "corporation_id is required")
	}
	if !IsDocumentKind(kind) {
		return fmt.Errorf("%s: %w", kind, assembler.ErrUnsupportedRecord)
	}
	return nil
}

// Calculate submits a built request to the tax calculator.
func (s *Service) Calculate(ctx context.Context, request salestax.TaxCalculationRequest) (*salestax.CalculationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Calculate")
	defer span.End()

	if s.calculator == nil {
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "tax calculation is not configured")
	}

	result, err := s.calculator.CalculateTax(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate tax: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"corporation_id":   request.CorporationID,
		"transaction_type": request.TransactionType,
	}).Info("tax calculated")

	return result, nil
}

// IsDocumentKind reports whether a tax request can be built from kind.
func IsDocumentKind(kind record.Kind) bool {
	switch kind {
	case record.KindInvoice, record.KindCreditNote, record.KindRefund:
		return true
	default:
		return false
	}
}
