package tableview

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
)

// FilterPrefix starts the page query parameters of committed filters.
const FilterPrefix = "filter."

// FilterEntry is one column filter: an operator and up to two operands.
type FilterEntry struct {
	Operator string `json:"operator"`
	Value    string `json:"value,omitempty"`
	Value2   string `json:"value2,omitempty"`
}

// Chip is the removable label of an active filter.
type Chip struct {
	Field string
	Text  string
}

// FilterStore holds the filter row inputs, the committed filters and the
// page query string that mirrors them.
type FilterStore struct {
	schema  *Schema
	inputs  map[string]FilterEntry
	filters map[string]FilterEntry
	query   url.Values
}

func NewFilterStore(schema *Schema) *FilterStore {
	return &FilterStore{
		schema:  schema,
		inputs:  make(map[string]FilterEntry),
		filters: make(map[string]FilterEntry),
		query:   url.Values{},
	}
}

// OperatorsFor returns the operators offered for a field.
func OperatorsFor(field *Field) []common.OperatorOption {
	return common.OperatorsFor(field.Type)
}

// SetInput records what the filter row widgets of a field hold.
func (s *FilterStore) SetInput(field, operator, value, value2 string) {
	s.inputs[field] = FilterEntry{Operator: operator, Value: value, Value2: value2}
}

// Input returns the widget state of a field.
func (s *FilterStore) Input(field string) FilterEntry {
	return s.inputs[field]
}

// SetFilter commits the input of a field. It returns false and changes nothing
// when the input is not a valid filter for the field.
func (s *FilterStore) SetFilter(field string) bool {
	f, ok := s.schema.Field(field)
	if !ok {
		logger.Debug("Ignoring filter on unknown field %s", field)
		return false
	}

	entry := s.inputs[field]
	entry.Value = strings.TrimSpace(entry.Value)
	entry.Value2 = strings.TrimSpace(entry.Value2)
	if common.IsValueless(entry.Operator) {
		entry.Value, entry.Value2 = "", ""
	} else if entry.Operator != common.OpBetween {
		entry.Value2 = ""
	}

	err := common.ValidateFilter(f.Type, common.FilterOption{
		Column:   field,
		Operator: entry.Operator,
		Value:    entry.Value,
		Value2:   entry.Value2,
	})
	if err != nil {
		logger.Debug("Filter not applied: %v", err)
		return false
	}

	s.filters[field] = entry
	s.writeQuery(field, &entry)
	return true
}

// ClearFilter removes the filter, input and query parameters of a field.
func (s *FilterStore) ClearFilter(field string) {
	delete(s.filters, field)
	delete(s.inputs, field)
	s.writeQuery(field, nil)
}

// HasFilter reports whether a filter is committed for field.
func (s *FilterStore) HasFilter(field string) bool {
	_, ok := s.filters[field]
	return ok
}

// Filters returns a copy of the committed filters.
func (s *FilterStore) Filters() map[string]FilterEntry {
	out := make(map[string]FilterEntry, len(s.filters))
	for k, v := range s.filters {
		out[k] = v
	}
	return out
}

func (s *FilterStore) writeQuery(field string, entry *FilterEntry) {
	base := FilterPrefix + field + "-"
	s.query.Del(base + "operator")
	s.query.Del(base + "value")
	s.query.Del(base + "value2")
	if entry == nil {
		return
	}
	s.query.Set(base+"operator", entry.Operator)
	if entry.Value != "" {
		s.query.Set(base+"value", entry.Value)
	}
	if entry.Value2 != "" {
		s.query.Set(base+"value2", entry.Value2)
	}
}

// LoadFromURL restores filters from a page query string. Filter parameters
// that do not form a valid filter are dropped from the query.
func (s *FilterStore) LoadFromURL(values url.Values) {
	s.query = url.Values{}
	grouped := make(map[string]*FilterEntry)
	for key, vals := range values {
		if !strings.HasPrefix(key, FilterPrefix) {
			s.query[key] = append([]string(nil), vals...)
			continue
		}

		rest := strings.TrimPrefix(key, FilterPrefix)
		idx := strings.LastIndex(rest, "-")
		if idx <= 0 || len(vals) == 0 {
			continue
		}
		field, part := rest[:idx], rest[idx+1:]
		entry, ok := grouped[field]
		if !ok {
			entry = &FilterEntry{}
			grouped[field] = entry
		}
		switch part {
		case "operator":
			entry.Operator = vals[0]
		case "value":
			entry.Value = vals[0]
		case "value2":
			entry.Value2 = vals[0]
		}
	}

	for field, entry := range grouped {
		if _, ok := s.schema.Field(field); !ok {
			continue
		}
		s.SetInput(field, entry.Operator, entry.Value, entry.Value2)
		if !s.SetFilter(field) {
			delete(s.inputs, field)
		}
	}
}

// Serialize flattens the committed filters into list request parameters.
func (s *FilterStore) Serialize() map[string]string {
	out := make(map[string]string, len(s.filters)*2)
	for field, entry := range s.filters {
		out[field+"-operator"] = entry.Operator
		if entry.Value != "" {
			out[field+"-value"] = entry.Value
		}
		if entry.Value2 != "" {
			out[field+"-value2"] = entry.Value2
		}
	}
	return out
}

// Query returns a copy of the page query string.
func (s *FilterStore) Query() url.Values {
	out := make(url.Values, len(s.query))
	for k, v := range s.query {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Chips returns the labels of the committed filters in schema order.
func (s *FilterStore) Chips() []Chip {
	chips := make([]Chip, 0, len(s.filters))
	for field, entry := range s.filters {
		f, ok := s.schema.Field(field)
		if !ok {
			continue
		}
		chips = append(chips, Chip{Field: field, Text: chipText(f, entry)})
	}
	sort.Slice(chips, func(i, j int) bool {
		fi, _ := s.schema.Field(chips[i].Field)
		fj, _ := s.schema.Field(chips[j].Field)
		return fi.Index < fj.Index
	})
	return chips
}

func chipText(f *Field, entry FilterEntry) string {
	op := common.OperatorLabel(f.Type, entry.Operator)
	switch {
	case common.IsValueless(entry.Operator):
		return fmt.Sprintf("%s is %s", f.Label, op)
	case entry.Operator == common.OpBetween:
		return fmt.Sprintf("%s %s %s and %s", f.Label, op, entry.Value, entry.Value2)
	default:
		return fmt.Sprintf("%s %s %s", f.Label, op, entry.Value)
	}
}
