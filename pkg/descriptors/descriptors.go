// Package descriptors loads the built-in Stripe mapping descriptors.
package descriptors

import (
	"embed"
	"fmt"
	"path"
	"sort"

	"github.com/Ramsey-B/juniper/pkg/currency"
	"github.com/Ramsey-B/juniper/pkg/mapping"
	"github.com/Ramsey-B/juniper/pkg/parsers"
	"github.com/Ramsey-B/juniper/pkg/record"
	"gopkg.in/yaml.v3"
)

// SourcePlatform is the platform tag the built-in descriptors map from.
const SourcePlatform = "STRIPE"

//go:embed stripe/*.yaml
var stripeFS embed.FS

// nested descriptors have to be compiled before the documents that use them
var compileOrder = []record.Kind{
	record.KindLineItem,
	record.KindCustomer,
	record.KindProduct,
	record.KindInvoice,
	record.KindTaxRate,
	record.KindRefund,
	record.KindCreditNote,
	record.KindPayment,
}

// Set holds one compiled descriptor per entity kind.
type Set struct {
	byKind map[record.Kind]*mapping.Descriptor
}

// Load compiles the embedded Stripe descriptors.
func Load() (*Set, error) {
	return LoadWith(parsers.NewRegistry(currency.NewConverter()))
}

func LoadWith(registry *parsers.Registry) (*Set, error) {
	definitions, err := readDefinitions()
	if err != nil {
		return nil, err
	}

	compiler := mapping.NewCompiler(registry)
	set := &Set{byKind: make(map[record.Kind]*mapping.Descriptor, len(compileOrder))}

	for _, kind := range compileOrder {
		definition, ok := definitions[kind]
		if !ok {
			return nil, fmt.Errorf("no descriptor defined for %s", kind)
		}

		descriptor, err := compiler.Compile(definition)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s descriptor: %w", kind, err)
		}
		set.byKind[kind] = descriptor
	}

	return set, nil
}

func readDefinitions() (map[record.Kind]mapping.DescriptorDefinition, error) {
	entries, err := stripeFS.ReadDir("stripe")
	if err != nil {
		return nil, err
	}

	definitions := make(map[record.Kind]mapping.DescriptorDefinition, len(entries))
	for _, entry := range entries {
		name := path.Join("stripe", entry.Name())

		data, err := stripeFS.ReadFile(name)
		if err != nil {
			return nil, err
		}

		var definition mapping.DescriptorDefinition
		if err := yaml.Unmarshal(data, &definition); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}

		if _, duplicate := definitions[definition.Kind]; duplicate {
			return nil, fmt.Errorf("%s redefines the %s descriptor", name, definition.Kind)
		}
		definitions[definition.Kind] = definition
	}

	return definitions, nil
}

func (s *Set) Get(kind record.Kind) (*mapping.Descriptor, bool) {
	descriptor, ok := s.byKind[kind]
	return descriptor, ok
}

// Kinds lists the kinds with a descriptor, sorted by name.
func (s *Set) Kinds() []record.Kind {
	kinds := make([]record.Kind, 0, len(s.byKind))
	for kind := range s.byKind {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Map maps obj with the descriptor for kind.
func (s *Set) Map(kind record.Kind, obj record.Object) (*mapping.Result, error) {
	descriptor, ok := s.Get(kind)
	if !ok {
		return nil, fmt.Errorf("no descriptor for %s", kind)
	}
	return descriptor.Map(obj, nil)
}
