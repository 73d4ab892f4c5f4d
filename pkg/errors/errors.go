package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// MappingError describes a failure while producing a single canonical field.
// The breadcrumbs locate the failure inside a descriptor.
type MappingError struct {
	Descriptor string
	Field      string
	Parser     string
	Enum       string
	itemIndex  *int
	Message    string
	cause      error
}

func NewMappingError(msg string) *MappingError {
	return &MappingError{
		Message: msg,
	}
}

// WrapMappingError keeps err as the cause so errors.As still reaches it.
func WrapMappingError(e error) *MappingError {
	if e == nil {
		return nil
	}

	var mappingError *MappingError
	if errors.As(e, &mappingError) {
		return mappingError
	}

	return &MappingError{
		Message: e.Error(),
		cause:   e,
	}
}

// NewMappingErrorf creates a new MappingError with a formatted message. A %w
// argument becomes the cause.
func NewMappingErrorf(format string, args ...any) *MappingError {
	var cause error
	for i, arg := range args {
		if err, ok := arg.(error); ok && strings.Contains(format, "%w") {
			format = strings.Replace(format, "%w", "%v", 1)
			args[i] = err.Error()
			if cause == nil {
				cause = err
			}
		}
	}

	return &MappingError{
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

func (e *MappingError) Error() string {
	path := []string{}
	if e.Descriptor != "" {
		path = append(path, fmt.Sprintf("descriptor '%s'", e.Descriptor))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}
	if e.Parser != "" {
		path = append(path, fmt.Sprintf("parser '%s'", e.Parser))
	}
	if e.Enum != "" {
		path = append(path, fmt.Sprintf("enum '%s'", e.Enum))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *MappingError) Unwrap() error {
	return e.cause
}

func (e *MappingError) AddDescriptor(name string) *MappingError {
	e.Descriptor = name
	return e
}

func (e *MappingError) AddField(field string) *MappingError {
	e.Field = field
	return e
}

func (e *MappingError) AddParser(name string) *MappingError {
	e.Parser = name
	return e
}

func (e *MappingError) AddEnum(name string) *MappingError {
	e.Enum = name
	return e
}

func (e *MappingError) AddItemIndex(itemIndex int) *MappingError {
	e.itemIndex = &itemIndex
	return e
}

// ItemIndex is the position of the nested item the error came from, if any.
func (e *MappingError) ItemIndex() (int, bool) {
	if e.itemIndex == nil {
		return 0, false
	}
	return *e.itemIndex, true
}

func (e *MappingError) ToHTTPError() *httperror.HTTPError {
	err := httperror.NewHTTPError(http.StatusBadRequest, e.Error()).
		AddMetaValue("descriptor", e.Descriptor).
		AddMetaValue("field", e.Field).
		AddMetaValue("parser", e.Parser).
		AddMetaValue("enum", e.Enum)
	if index, ok := e.ItemIndex(); ok {
		err = err.AddMetaValue("item_index", strconv.Itoa(index))
	}
	return err
}

// View is the JSON shape of a MappingError in API responses and error events.
type View struct {
	Descriptor string `json:"descriptor,omitempty"`
	Field      string `json:"field,omitempty"`
	Parser     string `json:"parser,omitempty"`
	Enum       string `json:"enum,omitempty"`
	ItemIndex  *int   `json:"item_index,omitempty"`
	Message    string `json:"message"`
}

func (e *MappingError) View() View {
	return View{
		Descriptor: e.Descriptor,
		Field:      e.Field,
		Parser:     e.Parser,
		Enum:       e.Enum,
		ItemIndex:  e.itemIndex,
		Message:    e.Message,
	}
}

func IsMappingError(err error) bool {
	var mappingError *MappingError
	return errors.As(err, &mappingError)
}
