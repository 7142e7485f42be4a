package common

import "strings"

// Field types understood by the grid.
const (
	TypeText     = "text"
	TypeNumber   = "number"
	TypeDate     = "date"
	TypeSelect   = "select"
	TypePassword = "password"
	TypeBool     = "bool"
)

// EnumSelector is the selectorOf value of select fields backed by allowedValues.
const EnumSelector = "enum"

// MaskedValue replaces sensitive values on the wire.
const MaskedValue = "****"

// SchemaConfig describes how one entity is listed and edited.
type SchemaConfig struct {
	Title   string        `json:"title"`
	APIURL  string        `json:"apiUrl"`
	Fields  []FieldConfig `json:"fields"`
	Actions []string      `json:"actions"`
}

// FieldConfig is the declarative description of a single column.
type FieldConfig struct {
	Name           string   `json:"name"`
	Label          string   `json:"label"`
	Type           string   `json:"type"`
	SelectorOf     string   `json:"selectorOf,omitempty"`
	AllowedValues  []string `json:"allowedValues,omitempty"`
	MasterSelector string   `json:"masterSelector,omitempty"`
	Href           string   `json:"href,omitempty"`
	Tags           bool     `json:"tags,omitempty"`
	Block          bool     `json:"block,omitempty"`
	ChartData      bool     `json:"chartData,omitempty"`
	ShortSpan      bool     `json:"short-span,omitempty"`
	Optional       bool     `json:"optional,omitempty"`
}

// FieldKind selects the renderer of a field.
type FieldKind int

const (
	KindPlain FieldKind = iota
	KindSelect
	KindChart
	KindBlock
	KindTags
)

func (k FieldKind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindChart:
		return "chart"
	case KindBlock:
		return "block"
	case KindTags:
		return "tags"
	default:
		return "plain"
	}
}

// Kind resolves the render kind: select, then chart, block, tags, plain.
func (f FieldConfig) Kind() FieldKind {
	switch {
	case f.Type == TypeSelect:
		return KindSelect
	case f.ChartData:
		return KindChart
	case f.Block:
		return KindBlock
	case f.Tags:
		return KindTags
	default:
		return KindPlain
	}
}

// IsEnum reports whether a select field is served from its allowedValues.
func (f FieldConfig) IsEnum() bool {
	return f.SelectorOf == EnumSelector
}

// IsReference reports whether the field points at another entity.
func (f FieldConfig) IsReference() bool {
	return f.Type == TypeSelect && f.SelectorOf != "" && !f.IsEnum()
}

// IsTimestamp reports the bookkeeping columns that are never editable.
func IsTimestamp(fieldName string) bool {
	return fieldName == "created_at" || fieldName == "updated_at"
}

// Field returns the named field, if present.
func (s *SchemaConfig) Field(name string) (FieldConfig, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldConfig{}, false
}

// NormalizeModelType maps a model type from a URL to its registry key.
func NormalizeModelType(modelType string) string {
	return strings.ToLower(strings.TrimSpace(modelType))
}
