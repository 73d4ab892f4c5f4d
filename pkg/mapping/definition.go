package mapping

import (
	"github.com/Ramsey-B/juniper/pkg/record"
)

// DirectiveDefinition is the declarative form of one target field.
//
// Exactly one of Parser, Enum, Constant or Nested may be set. With none of
// them the directive is a plain path copy. Path is required for Enum, Nested
// and plain copies, optional for Parser, and not allowed with Constant.
type DirectiveDefinition struct {
	Target   string `yaml:"target" json:"target" validate:"required"`
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	Parser   string `yaml:"parser,omitempty" json:"parser,omitempty"`
	Enum     string `yaml:"enum,omitempty" json:"enum,omitempty"`
	Constant any    `yaml:"constant,omitempty" json:"constant,omitempty"`
	Nested   string `yaml:"nested,omitempty" json:"nested,omitempty"`
}

// DescriptorDefinition is the declarative form of a Descriptor.
type DescriptorDefinition struct {
	Name       string                `yaml:"name" json:"name" validate:"required"`
	Kind       record.Kind           `yaml:"kind" json:"kind" validate:"required"`
	Directives []DirectiveDefinition `yaml:"directives" json:"directives" validate:"required,min=1,dive"`
}
