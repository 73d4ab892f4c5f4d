package canonical

import (
	"context"
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/juniper/pkg/canonical"
	maperr "github.com/Ramsey-B/juniper/pkg/errors"
	"github.com/Ramsey-B/juniper/pkg/mapping"
	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/labstack/echo/v4"
)

type Mapper interface {
	MapRecord(ctx context.Context, kind record.Kind, obj record.Object) (*mapping.Result, error)
	Kinds() []record.Kind
}

type Handler struct {
	mapper Mapper
}

func NewHandler(mapper Mapper) *Handler {
	return &Handler{mapper: mapper}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/canonical/:kind", h.Map)
	g.GET("/descriptors", h.ListDescriptors)
}

// MapResponse is a canonical record plus the fields that were nulled.
type MapResponse struct {
	Kind        record.Kind      `json:"kind"`
	DataModel   string           `json:"data_model"`
	Record      canonical.Record `json:"record"`
	FieldErrors []maperr.View    `json:"field_errors"`
}

func NewMapResponse(result *mapping.Result) MapResponse {
	views := make([]maperr.View, 0, len(result.FieldErrors))
	for _, fieldErr := range result.FieldErrors {
		views = append(views, fieldErr.View())
	}
	return MapResponse{
		Kind:        result.Kind,
		DataModel:   result.Kind.DataModel(),
		Record:      result.Record,
		FieldErrors: views,
	}
}

// Map handles POST /canonical/:kind. The body is the raw platform object.
func (h *Handler) Map(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "canonical_handler.Map")
	defer span.End()

	kind, err := record.ParseKind(c.Param("kind"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return httperror.WrapError(http.StatusBadRequest, err)
	}

	obj, err := record.Decode(body)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s object: %s", kind, err.Error())
	}

	result, err := h.mapper.MapRecord(ctx, kind, obj)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, NewMapResponse(result))
}

type DescriptorSummary struct {
	Kind      record.Kind `json:"kind"`
	DataModel string      `json:"data_model"`
}

// ListDescriptors handles GET /descriptors.
func (h *Handler) ListDescriptors(c echo.Context) error {
	kinds := h.mapper.Kinds()
	out := make([]DescriptorSummary, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, DescriptorSummary{Kind: kind, DataModel: kind.DataModel()})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": out})
}
