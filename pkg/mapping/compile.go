package mapping

import (
	"fmt"
	"sync"

	"github.com/Ramsey-B/juniper/pkg/enums"
	"github.com/Ramsey-B/juniper/pkg/errors"
	"github.com/Ramsey-B/juniper/pkg/parsers"
	"github.com/Ramsey-B/juniper/pkg/record"
	"github.com/Ramsey-B/juniper/pkg/utils"
)

// Compiler turns definitions into Descriptors. Compiled descriptors are kept
// by name so later definitions can reference them as nested descriptors.
type Compiler struct {
	parsers *parsers.Registry

	mu          sync.RWMutex
	descriptors map[string]*Descriptor
}

func NewCompiler(registry *parsers.Registry) *Compiler {
	return &Compiler{
		parsers:     registry,
		descriptors: map[string]*Descriptor{},
	}
}

// Get returns a previously compiled descriptor.
func (c *Compiler) Get(name string) (*Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	descriptor, ok := c.descriptors[name]
	return descriptor, ok
}

// Compile validates def and resolves every parser, enum and nested reference.
func (c *Compiler) Compile(def DescriptorDefinition) (*Descriptor, error) {
	if _, err := utils.Validate(def); err != nil {
		return nil, errors.WrapMappingError(err).AddDescriptor(def.Name)
	}

	if _, err := record.ParseKind(def.Kind.String()); err != nil {
		return nil, errors.WrapMappingError(err).AddDescriptor(def.Name)
	}

	if _, exists := c.Get(def.Name); exists {
		return nil, errors.NewMappingError("descriptor is already compiled").AddDescriptor(def.Name)
	}

	descriptor := &Descriptor{
		name:       def.Name,
		kind:       def.Kind,
		directives: make([]directive, 0, len(def.Directives)),
	}

	seen := map[string]struct{}{}
	for _, definition := range def.Directives {
		if _, duplicate := seen[definition.Target]; duplicate {
			return nil, errors.NewMappingError("target is declared more than once").
				AddDescriptor(def.Name).
				AddField(definition.Target)
		}
		seen[definition.Target] = struct{}{}

		compiled, err := c.compileDirective(definition)
		if err != nil {
			return nil, errors.WrapMappingError(err).AddDescriptor(def.Name).AddField(definition.Target)
		}
		descriptor.directives = append(descriptor.directives, compiled)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[def.Name] = descriptor

	return descriptor, nil
}

func (c *Compiler) compileDirective(def DirectiveDefinition) (directive, error) {
	compiled := directive{target: def.Target}

	sources := 0
	if def.Parser != "" {
		sources++
	}
	if def.Enum != "" {
		sources++
	}
	if def.Constant != nil {
		sources++
	}
	if def.Nested != "" {
		sources++
	}
	if sources > 1 {
		return compiled, errors.NewMappingError("directive must specify at most one of parser, enum, constant or nested")
	}

	if def.Path != "" {
		path, err := record.ParsePath(def.Path)
		if err != nil {
			return compiled, errors.NewMappingErrorf("invalid path: %w", err)
		}
		compiled.path = path
	}

	switch {
	case def.Parser != "":
		parser, ok := c.parsers.Get(def.Parser)
		if !ok {
			return compiled, errors.NewMappingErrorf("parser %q not found", def.Parser).AddParser(def.Parser)
		}
		compiled.source = sourceParser
		compiled.parser = parser
		compiled.parserName = def.Parser

	case def.Enum != "":
		table, ok := enums.ByName(def.Enum)
		if !ok {
			return compiled, errors.NewMappingErrorf("enum %q not found", def.Enum).AddEnum(def.Enum)
		}
		if compiled.path.IsZero() {
			return compiled, errors.NewMappingError("enum directive requires a path").AddEnum(def.Enum)
		}
		compiled.source = sourceEnum
		compiled.enum = table

	case def.Constant != nil:
		if !compiled.path.IsZero() {
			return compiled, errors.NewMappingError("constant directive must not specify a path")
		}
		if !isScalar(def.Constant) {
			return compiled, errors.NewMappingErrorf("constant must be a scalar, got %T", def.Constant)
		}
		compiled.source = sourceConstant
		compiled.constant = def.Constant

	case def.Nested != "":
		nested, ok := c.Get(def.Nested)
		if !ok {
			return compiled, errors.NewMappingErrorf("nested descriptor %q is not compiled", def.Nested)
		}
		if compiled.path.IsZero() {
			return compiled, errors.NewMappingError("nested directive requires a path")
		}
		compiled.source = sourceNested
		compiled.nested = nested

	default:
		if compiled.path.IsZero() {
			return compiled, errors.NewMappingError("directive must specify a path, parser, enum, constant or nested descriptor")
		}
		compiled.source = sourcePath
	}

	return compiled, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}

// MustCompile is Compile for static definitions.
func (c *Compiler) MustCompile(def DescriptorDefinition) *Descriptor {
	descriptor, err := c.Compile(def)
	if err != nil {
		panic(fmt.Sprintf("failed to compile descriptor %s: %v", def.Name, err))
	}
	return descriptor
}
