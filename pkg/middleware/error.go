package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/assembler"
	"github.com/Ramsey-B/juniper/pkg/context"
	"github.com/Ramsey-B/juniper/pkg/currency"
	maperr "github.com/Ramsey-B/juniper/pkg/errors"
	"github.com/Ramsey-B/juniper/pkg/resolver"
	"github.com/Ramsey-B/juniper/pkg/salestax"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		logger.WithContext(ctx).WithError(err).Error("api is returning an error")
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "Internal Server Error"
		meta := map[string]any{}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			}
		}

		if httpErr := ToHTTPError(err); httpErr != nil {
			code = httperror.GetStatusCode(httpErr)
			message = httpErr.Error()
			if httpErr.Meta != nil {
				meta = httpErr.Meta
			}
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

// ToHTTPError maps pipeline errors onto HTTP errors. It returns nil for
// errors it does not recognize.
func ToHTTPError(err error) *httperror.HTTPError {
	if err == nil {
		return nil
	}

	if httperror.IsHTTPError(err) {
		return httperror.ToHTTPError(err)
	}

	var mappingErr *maperr.MappingError
	if errors.As(err, &mappingErr) {
		return mappingErr.ToHTTPError()
	}

	var currencyErr *currency.InvalidCurrencyError
	if errors.As(err, &currencyErr) {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var shipToErr *assembler.MissingShipToAddressError
	if errors.As(err, &shipToErr) {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error()).
			AddMetaValue("kind", shipToErr.Kind.String()).
			AddMetaValue("platform_id", shipToErr.PlatformID)
	}

	if errors.Is(err, assembler.ErrUnsupportedRecord) {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if resolver.IsResolutionUnavailable(err) || errors.Is(err, salestax.ErrServiceUnavailable) {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	var statusErr *salestax.StatusError
	if errors.As(err, &statusErr) {
		return httperror.NewHTTPError(http.StatusBadGateway, err.Error()).
			AddMetaValue("upstream_status", strconv.Itoa(statusErr.StatusCode))
	}

	return nil
}
