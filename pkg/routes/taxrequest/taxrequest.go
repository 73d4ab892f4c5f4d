package taxrequest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Ramsey-B/juniper/internal/services/pipeline"
	appctx "github.com/Ramsey-B/juniper/pkg/context"
	"github.com/Ramsey-B/juniper/pkg/record"
	canonicalroutes "github.com/Ramsey-B/juniper/pkg/routes/canonical"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/Ramsey-B/juniper/pkg/utils"
	"github.com/labstack/echo/v4"
)

type Service interface {
	BuildTaxRequest(ctx context.Context, input pipeline.BuildInput) (*pipeline.BuildOutput, error)
	Calculate(ctx context.Context, request salestax.TaxCalculationRequest) (*salestax.CalculationResult, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/tax-requests", h.Create)
}

type CreateRequest struct {
	Kind          string            `json:"kind" validate:"required"`
	Object        json.RawMessage   `json:"object" validate:"required"`
	CorporationID string            `json:"corporation_id"`
	ShipTo        *salestax.Address `json:"ship_to"`
	ShipFrom      *salestax.Address `json:"ship_from"`
	Calculate     bool              `json:"calculate"`
}

type CreateResponse struct {
	Canonical          canonicalroutes.MapResponse    `json:"canonical"`
	Request            salestax.TaxCalculationRequest `json:"request"`
	UnresolvedCustomer bool                           `json:"unresolved_customer"`
	UnresolvedProducts []string                       `json:"unresolved_products"`
	Calculation        *salestax.CalculationResult    `json:"calculation,omitempty"`
}

// Create handles POST /tax-requests. The corporation comes from the
// X-Corporation-ID header unless the body names one.
func (h *Handler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "taxrequest_handler.Create")
	defer span.End()

	req, err := utils.BindRequest[CreateRequest](c)
	if err != nil {
		return err
	}

	kind, err := record.ParseKind(req.Kind)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	obj, err := record.Decode(req.Object)
	if err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s object: %s", kind, err.Error())
	}

	corporationID := req.CorporationID
	if corporationID == "" {
		corporationID = appctx.GetCorporationID(ctx)
	}

	out, err := h.service.BuildTaxRequest(ctx, pipeline.BuildInput{
		Kind:          kind,
		Object:        obj,
		CorporationID: corporationID,
		ShipTo:        req.ShipTo,
		ShipFrom:      req.ShipFrom,
	})
	if err != nil {
		return err
	}

	resp := CreateResponse{
		Canonical:          canonicalroutes.NewMapResponse(out.Mapped),
		Request:            out.Built.Request,
		UnresolvedCustomer: out.Built.UnresolvedCustomer,
		UnresolvedProducts: out.Built.UnresolvedProducts,
	}

	if calculate, _ := strconv.ParseBool(c.QueryParam("calculate")); calculate || req.Calculate {
		resp.Calculation, err = h.service.Calculate(ctx, out.Built.Request)
		if err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, resp)
}
