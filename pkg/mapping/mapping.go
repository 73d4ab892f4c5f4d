// Package mapping provides the field mapping engine that turns raw platform
// objects into canonical records.
//
// # Overview
//
// A Descriptor is an ordered list of directives, one per target field. Each
// directive reads its value from exactly one source:
//   - Path: a dotted path into the record, e.g. "tax_ids.data.0.value"
//   - Parser: a named function from the parsers registry, called with the value
//     at Path (if any), the record and its ancestors
//   - Enum: a closed lookup table applied to the value at Path
//   - Constant: a literal
//   - Nested: another descriptor applied to every element of the array at Path
//
// Directives never read each other's output, so declaration order only
// decides the order FieldErrors are reported in.
//
// # Ancestors
//
// Nested descriptors map their elements with the current record pushed to the
// front of the ancestors, so a line item sees its invoice at index 0. Paths
// prefixed with "$parent." read from that record.
//
// # Errors
//
// A parser failure, such as an unknown currency, sets only that field to nil
// and is reported in Result.FieldErrors. The rest of the record still maps.
//
// # Example
//
//	compiler := NewCompiler(parsers.NewRegistry(currency.NewConverter()))
//	descriptor, _ := compiler.Compile(DescriptorDefinition{
//	    Name: "stripe.tax_rate",
//	    Kind: record.KindTaxRate,
//	    Directives: []DirectiveDefinition{
//	        {Target: "platform_id", Path: "id"},
//	        {Target: "rate", Path: "percentage", Parser: "rate"},
//	    },
//	})
//
//	result, _ := descriptor.Map(record.Object{"id": "txr_1", "percentage": 8.25}, nil)
//	// result.Record["rate"] == decimal 0.0825
package mapping

import (
	"fmt"

	"github.com/Gobusters/ectolinq"
	"github.com/Ramsey-B/juniper/pkg/canonical"
	"github.com/Ramsey-B/juniper/pkg/enums"
	"github.com/Ramsey-B/juniper/pkg/errors"
	"github.com/Ramsey-B/juniper/pkg/parsers"
	"github.com/Ramsey-B/juniper/pkg/record"
)

type directiveSource int

const (
	sourcePath directiveSource = iota
	sourceParser
	sourceEnum
	sourceConstant
	sourceNested
)

type directive struct {
	target     string
	source     directiveSource
	path       record.Path
	parser     parsers.Parser
	parserName string
	enum       enums.Table
	constant   any
	nested     *Descriptor
}

// Descriptor is a compiled, immutable mapping for one entity kind. It is safe
// for concurrent use.
type Descriptor struct {
	name       string
	kind       record.Kind
	directives []directive
}

// Result is the output of mapping one record.
type Result struct {
	Kind        record.Kind
	Record      canonical.Record
	FieldErrors []*errors.MappingError
}

// HasFieldErrors reports whether any field was nulled by a failure.
func (r *Result) HasFieldErrors() bool {
	return len(r.FieldErrors) > 0
}

func (d *Descriptor) Name() string {
	return d.name
}

func (d *Descriptor) Kind() record.Kind {
	return d.kind
}

// Targets lists the target fields in declaration order.
func (d *Descriptor) Targets() []string {
	return ectolinq.Map(d.directives, func(dir directive) string {
		return dir.target
	})
}

// Map applies the descriptor to obj. Every target is present in the output,
// nil when the source had no value or its directive failed.
func (d *Descriptor) Map(obj record.Object, ancestors record.Ancestors) (*Result, error) {
	if obj == nil {
		return nil, errors.NewMappingError("record is nil").AddDescriptor(d.name)
	}

	result := &Result{
		Kind:   d.kind,
		Record: make(canonical.Record, len(d.directives)),
	}

	for _, dir := range d.directives {
		value, fieldErrors := d.apply(dir, obj, ancestors)
		result.Record[dir.target] = value
		result.FieldErrors = append(result.FieldErrors, fieldErrors...)
	}

	return result, nil
}

func (d *Descriptor) apply(dir directive, obj record.Object, ancestors record.Ancestors) (any, []*errors.MappingError) {
	switch dir.source {
	case sourceConstant:
		return dir.constant, nil

	case sourceEnum:
		match := dir.enum.Lookup(dir.path.Resolve(obj, ancestors))
		if !match.Found {
			return nil, nil
		}
		return match.Value, nil

	case sourceParser:
		var raw any
		if !dir.path.IsZero() {
			raw = dir.path.Resolve(obj, ancestors)
		}
		value, err := dir.parser.Parse(raw, obj, ancestors)
		if err != nil {
			return nil, []*errors.MappingError{
				errors.WrapMappingError(err).
					AddDescriptor(d.name).
					AddField(dir.target).
					AddParser(dir.parserName),
			}
		}
		return value, nil

	case sourceNested:
		return d.applyNested(dir, obj, ancestors)

	default:
		return dir.path.Resolve(obj, ancestors), nil
	}
}

// applyNested maps every element of the array at the directive path with the
// nested descriptor, keeping source order.
func (d *Descriptor) applyNested(dir directive, obj record.Object, ancestors record.Ancestors) (any, []*errors.MappingError) {
	items := []canonical.Record{}

	raw := dir.path.Resolve(obj, ancestors)
	if raw == nil {
		return items, nil
	}

	elements, ok := raw.([]any)
	if !ok {
		return items, []*errors.MappingError{
			errors.NewMappingErrorf("expected an array, got %T", raw).
				AddDescriptor(d.name).
				AddField(dir.target),
		}
	}

	childAncestors := ancestors.Push(d.kind, obj)

	var fieldErrors []*errors.MappingError
	for i, element := range elements {
		child, ok := record.FromAny(element)
		if !ok {
			fieldErrors = append(fieldErrors, errors.NewMappingErrorf("expected an object, got %T", element).
				AddDescriptor(dir.nested.name).
				AddField(fmt.Sprintf("%s[%d]", dir.target, i)).
				AddItemIndex(i))
			continue
		}

		childResult, err := dir.nested.Map(child, childAncestors)
		if err != nil {
			fieldErrors = append(fieldErrors, errors.WrapMappingError(err).AddItemIndex(i))
			continue
		}

		for _, fieldErr := range childResult.FieldErrors {
			fieldErrors = append(fieldErrors, fieldErr.
				AddField(fmt.Sprintf("%s[%d].%s", dir.target, i, fieldErr.Field)).
				AddItemIndex(i))
		}
		items = append(items, childResult.Record)
	}

	return items, fieldErrors
}
