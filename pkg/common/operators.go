package common

// Filter operators.
const (
	OpBlank       = "blank"
	OpNotBlank    = "notBlank"
	OpEquals      = "equals"
	OpNotEquals   = "notEquals"
	OpContains    = "contains"
	OpNotContains = "notContains"
	OpIn          = "in"
	OpEq          = "="
	OpGt          = ">"
	OpGte         = ">="
	OpLt          = "<"
	OpLte         = "<="
	OpBetween     = "between"
)

// OperatorOption is one entry of the operator dropdown in the filter row.
type OperatorOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var textOperators = []OperatorOption{
	{OpBlank, "Blank"},
	{OpNotBlank, "Not Blank"},
	{OpEquals, "Equals"},
	{OpNotEquals, "Not Equals"},
	{OpContains, "Contains"},
	{OpNotContains, "Not Contains"},
	{OpIn, "In"},
}

var comparisonOperators = []OperatorOption{
	{OpEq, "="},
	{OpGt, ">"},
	{OpGte, ">="},
	{OpLt, "<"},
	{OpLte, "<="},
	{OpBetween, "Between"},
}

var equalityOperators = []OperatorOption{
	{OpEq, "Equals"},
}

// OperatorsFor returns the operators offered for a field type, in display order.
func OperatorsFor(fieldType string) []OperatorOption {
	var src []OperatorOption
	switch fieldType {
	case TypeText, TypeSelect, TypePassword:
		src = textOperators
	case TypeNumber, TypeDate:
		src = comparisonOperators
	default:
		src = equalityOperators
	}
	out := make([]OperatorOption, len(src))
	copy(out, src)
	return out
}

// OperatorLabel returns the display text of op for a field type, or "" when op is not offered.
func OperatorLabel(fieldType, op string) string {
	for _, o := range OperatorsFor(fieldType) {
		if o.Value == op {
			return o.Label
		}
	}
	return ""
}

// OperatorAllowed reports whether op is valid for the field type.
func OperatorAllowed(fieldType, op string) bool {
	return OperatorLabel(fieldType, op) != ""
}

// IsValueless reports operators that take no value.
func IsValueless(op string) bool {
	return op == OpBlank || op == OpNotBlank
}
