package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"min=0"`
}

func TestConvert(t *testing.T) {
	w, err := Convert[widget](map[string]any{"name": "a", "count": 2})
	require.NoError(t, err)
	assert.Equal(t, widget{Name: "a", Count: 2}, w)

	same, err := Convert[widget](widget{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", same.Name)

	_, err = Convert[widget](map[string]any{"count": "many"})
	assert.Error(t, err)
}

func TestConvertAndValidate(t *testing.T) {
	_, err := ConvertAndValidate[widget](map[string]any{"count": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'Name'")

	_, err = ConvertAndValidate[widget](map[string]any{"name": "a", "count": -1})
	assert.Error(t, err)
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue("USD", "len=3"))
	assert.Error(t, ValidateValue("US", "len=3"))
}

func TestBindRequest(t *testing.T) {
	e := echo.New()
	bind := func(body string) (widget, error) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return BindRequest[widget](e.NewContext(req, httptest.NewRecorder()))
	}

	w, err := bind(`{"name": "a", "count": 1}`)
	require.NoError(t, err)
	assert.Equal(t, "a", w.Name)

	_, err = bind(`{"count": 1}`)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	_, err = bind(`{"name":`)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
