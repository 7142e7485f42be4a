package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFilter is returned for a filter whose operator or values do not fit the field type.
var ErrInvalidFilter = errors.New("invalid filter")

// ValidateFilter checks the operator against the field type and the values it requires.
func ValidateFilter(fieldType string, f FilterOption) error {
	if !OperatorAllowed(fieldType, f.Operator) {
		return fmt.Errorf("%w: operator %q not allowed for %s field %s", ErrInvalidFilter, f.Operator, fieldType, f.Column)
	}
	switch {
	case IsValueless(f.Operator):
		return nil
	case f.Operator == OpBetween:
		if f.Value == "" || f.Value2 == "" {
			return fmt.Errorf("%w: between on %s needs two values", ErrInvalidFilter, f.Column)
		}
	case f.Value == "":
		return fmt.Errorf("%w: %s on %s needs a value", ErrInvalidFilter, f.Operator, f.Column)
	}
	return nil
}

// FilterClause builds the WHERE fragment of one filter against a qualified column.
// Text comparisons are case-insensitive through LOWER(), which works on SQLite and Postgres alike.
func FilterClause(fieldType, column string, f FilterOption) (string, []interface{}, error) {
	if err := ValidateFilter(fieldType, f); err != nil {
		return "", nil, err
	}

	switch fieldType {
	case TypeNumber, TypeBool:
		return comparisonClause(column, f, func(v string) interface{} { return typedValue(fieldType, v) })
	case TypeDate:
		return comparisonClause(fmt.Sprintf("DATE(%s)", column), f, nil)
	default:
		return textClause(column, f)
	}
}

func comparisonClause(column string, f FilterOption, conv func(string) interface{}) (string, []interface{}, error) {
	value := func(v string) interface{} {
		if conv == nil {
			return v
		}
		return conv(v)
	}
	placeholder := "?"
	if conv == nil {
		placeholder = "DATE(?)"
	}

	if f.Operator == OpBetween {
		return fmt.Sprintf("%s BETWEEN %s AND %s", column, placeholder, placeholder),
			[]interface{}{value(f.Value), value(f.Value2)}, nil
	}
	return fmt.Sprintf("%s %s %s", column, f.Operator, placeholder), []interface{}{value(f.Value)}, nil
}

func textClause(column string, f FilterOption) (string, []interface{}, error) {
	lowered := fmt.Sprintf("LOWER(%s)", column)
	switch f.Operator {
	case OpIn:
		values := ParseCommaSeparated(f.Value)
		if len(values) == 0 {
			return "", nil, fmt.Errorf("%w: in on %s needs at least one value", ErrInvalidFilter, f.Column)
		}
		parts := make([]string, 0, len(values))
		args := make([]interface{}, 0, len(values))
		for _, v := range values {
			parts = append(parts, lowered+" LIKE ?")
			args = append(args, likePattern(v))
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	case OpContains:
		return lowered + " LIKE ?", []interface{}{likePattern(f.Value)}, nil
	case OpNotContains:
		return fmt.Sprintf("NOT (%s LIKE ?)", lowered), []interface{}{likePattern(f.Value)}, nil
	case OpEquals:
		return column + " = ?", []interface{}{f.Value}, nil
	case OpNotEquals:
		return column + " <> ?", []interface{}{f.Value}, nil
	case OpBlank:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", column, column), nil, nil
	case OpNotBlank:
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", column, column), nil, nil
	}
	return "", nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidFilter, f.Operator)
}

func likePattern(v string) string {
	return "%" + strings.ToLower(strings.TrimSpace(v)) + "%"
}

func typedValue(fieldType, v string) interface{} {
	v = strings.TrimSpace(v)
	if fieldType == TypeBool {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return v
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// ParseSort parses sort expressions. Each value may hold a comma separated list of
// "field dir", "+field" or "-field" entries; direction defaults to ascending.
func ParseSort(values ...string) []SortOption {
	var out []SortOption
	for _, value := range values {
		for _, field := range ParseCommaSeparated(value) {
			direction := "ASC"
			colName := field

			lower := strings.ToLower(field)
			switch {
			case strings.HasPrefix(field, "-"):
				direction = "DESC"
				colName = strings.TrimPrefix(field, "-")
			case strings.HasPrefix(field, "+"):
				colName = strings.TrimPrefix(field, "+")
			case strings.HasSuffix(lower, " desc"):
				direction = "DESC"
				colName = field[:len(field)-len(" desc")]
			case strings.HasSuffix(lower, " asc"):
				colName = field[:len(field)-len(" asc")]
			}

			colName = strings.TrimSpace(colName)
			if colName == "" {
				continue
			}
			out = append(out, SortOption{Column: colName, Direction: direction})
		}
	}
	return out
}

// ParseCommaSeparated splits a comma separated value and drops empty entries.
func ParseCommaSeparated(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
