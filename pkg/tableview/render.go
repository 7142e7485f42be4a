package tableview

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
)

// Record is one row as returned by the list endpoint.
type Record = map[string]interface{}

const (
	// BlockPreviewLength is the number of characters shown before "Read more".
	BlockPreviewLength = 120
	DateDisplayLayout  = "Jan 2, 2006\n3:04 PM"
	DateInputLayout    = "2006-01-02"

	ReadMoreLabel  = "Read more"
	ReadLessLabel  = "Read less"
	ShowChartLabel = "Show Chart"
)

// FragmentKind tells a view how to paint a cell.
type FragmentKind int

const (
	FragmentText FragmentKind = iota
	FragmentLink
	FragmentChart
	FragmentBlock
	FragmentTags
	FragmentInput
	FragmentTextarea
	FragmentSelect
	FragmentEmpty
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentLink:
		return "link"
	case FragmentChart:
		return "chart"
	case FragmentBlock:
		return "block"
	case FragmentTags:
		return "tags"
	case FragmentInput:
		return "input"
	case FragmentTextarea:
		return "textarea"
	case FragmentSelect:
		return "select"
	case FragmentEmpty:
		return "empty"
	default:
		return "text"
	}
}

// Fragment is the rendered content of one cell.
type Fragment struct {
	Kind  FragmentKind
	Field string
	// Text is the display text; for a link, its anchor text; for a block, the full text.
	Text string
	Href string
	Tags []string

	Short     string
	Truncated bool

	ChartTitle string
	ChartData  interface{}

	InputType   string
	Value       string
	Placeholder string
	Default     *Option
	Searchable  bool
	MasterField string
}

// Renderer turns record fields into fragments.
type Renderer struct {
	Location *time.Location
}

// Render renders a field with the default renderer.
func Render(record Record, field *Field, editMode bool) Fragment {
	return Renderer{}.Render(record, field, editMode)
}

// Render dispatches on the field kind: select, chart, block, tags, then plain.
func (r Renderer) Render(record Record, field *Field, editMode bool) Fragment {
	switch field.Kind {
	case common.KindSelect:
		return r.renderSelect(record, field, editMode)
	case common.KindChart:
		return r.renderChart(record, field, editMode)
	case common.KindBlock:
		return r.renderBlock(record, field, editMode)
	case common.KindTags:
		return r.renderTags(record, field, editMode)
	default:
		return r.renderPlain(record, field, editMode)
	}
}

func (r Renderer) renderSelect(record Record, field *Field, editMode bool) Fragment {
	value := displayValue(record[field.Name])
	text := value
	if !field.IsEnum() {
		text = ""
		if value != "" {
			text = referenceName(record, field)
		}
	}

	if !editMode {
		return Fragment{Kind: FragmentText, Field: field.Name, Text: text}
	}

	frag := Fragment{
		Kind:        FragmentSelect,
		Field:       field.Name,
		Value:       value,
		Placeholder: field.Label,
		Searchable:  !field.IsEnum(),
	}
	if value != "" {
		frag.Default = &Option{ID: value, Name: text}
	}
	if field.Master != nil {
		frag.MasterField = field.Master.Name
	}
	return frag
}

// DefaultOption is the option a select starts with when editing record.
func DefaultOption(record Record, field *Field) *Option {
	value := displayValue(record[field.Name])
	if value == "" {
		return nil
	}
	if field.IsEnum() {
		return &Option{ID: value, Name: value}
	}
	return &Option{ID: value, Name: referenceName(record, field)}
}

func referenceName(record Record, field *Field) string {
	if ref, ok := record[field.SelectorOf].(map[string]interface{}); ok {
		return displayValue(ref["name"])
	}
	return ""
}

func (r Renderer) renderChart(record Record, field *Field, editMode bool) Fragment {
	if editMode {
		return Fragment{Kind: FragmentEmpty, Field: field.Name}
	}
	return Fragment{
		Kind:       FragmentChart,
		Field:      field.Name,
		Text:       ShowChartLabel,
		ChartTitle: displayValue(record["name"]),
		ChartData:  chartSeries(record[field.Name]),
	}
}

// chartSeries extracts sensorData from a chart value, which arrives either
// decoded or as a JSON string.
func chartSeries(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return v["sensorData"]
	case string:
		if res := gjson.Get(v, "sensorData"); res.Exists() {
			return res.Value()
		}
	}
	return nil
}

func (r Renderer) renderBlock(record Record, field *Field, editMode bool) Fragment {
	text := displayValue(record[field.Name])
	if editMode {
		return Fragment{Kind: FragmentTextarea, Field: field.Name, Value: text, Placeholder: field.Label}
	}
	if text == "" {
		return Fragment{Kind: FragmentEmpty, Field: field.Name}
	}

	short, truncated := truncate(text, BlockPreviewLength)
	return Fragment{Kind: FragmentBlock, Field: field.Name, Text: text, Short: short, Truncated: truncated}
}

func truncate(text string, n int) (string, bool) {
	if utf8.RuneCountInString(text) <= n {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:n]) + "...", true
}

func (r Renderer) renderTags(record Record, field *Field, editMode bool) Fragment {
	value := displayValue(record[field.Name])
	if editMode {
		return Fragment{Kind: FragmentInput, Field: field.Name, InputType: "text", Value: value, Placeholder: field.Label}
	}
	return Fragment{Kind: FragmentTags, Field: field.Name, Tags: common.ParseCommaSeparated(value)}
}

func (r Renderer) renderPlain(record Record, field *Field, editMode bool) Fragment {
	value := displayValue(record[field.Name])

	if editMode && !common.IsTimestamp(field.Name) {
		frag := Fragment{
			Kind:        FragmentInput,
			Field:       field.Name,
			InputType:   inputType(field.Type),
			Value:       value,
			Placeholder: field.Label,
		}
		if field.Type == common.TypeDate && value != "" {
			if t, ok := parseTime(value); ok {
				frag.Value = t.In(r.location()).Format(DateInputLayout)
			}
		}
		return frag
	}

	if field.Href != "" {
		if href := displayValue(record[field.Href]); href != "" {
			return Fragment{Kind: FragmentLink, Field: field.Name, Text: value, Href: href}
		}
	}

	switch field.Type {
	case common.TypeDate:
		value = r.FormatDate(value)
	case common.TypePassword:
		if value != "" {
			value = common.MaskedValue
		}
	}
	return Fragment{Kind: FragmentText, Field: field.Name, Text: value}
}

func inputType(fieldType string) string {
	switch fieldType {
	case common.TypeNumber, common.TypeDate, common.TypePassword:
		return fieldType
	case common.TypeBool:
		return "checkbox"
	default:
		return "text"
	}
}

func (r Renderer) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// FormatDate renders a timestamp on two lines; unparseable values are returned as is.
func (r Renderer) FormatDate(value string) string {
	if value == "" {
		return ""
	}
	t, ok := parseTime(value)
	if !ok {
		return value
	}
	return t.In(r.location()).Format(DateDisplayLayout)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	DateInputLayout,
}

func parseTime(value string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RecordID returns the id of a record as sent back to the backend.
func RecordID(record Record) string {
	return displayValue(record["id"])
}

// displayValue converts a decoded JSON value to its display string.
func displayValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// HashPassword returns the hex SHA-256 of a password as sent on save.
func HashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// CollectSave builds the body of a save request from edit inputs. Empty values,
// bookkeeping timestamps and masked passwords are left out.
func CollectSave(schema *Schema, inputs map[string]string) map[string]interface{} {
	body := make(map[string]interface{})
	for _, f := range schema.Fields {
		value, ok := inputs[f.Name]
		if !ok || value == "" || common.IsTimestamp(f.Name) || f.Kind == common.KindChart {
			continue
		}

		switch f.Type {
		case common.TypePassword:
			if value == common.MaskedValue {
				continue
			}
			body[f.Name] = HashPassword(value)
		case common.TypeNumber:
			body[f.Name] = parseNumber(value)
		case common.TypeBool:
			if b, err := strconv.ParseBool(value); err == nil {
				body[f.Name] = b
			} else {
				body[f.Name] = value
			}
		default:
			body[f.Name] = value
		}
	}
	return body
}

// parseNumber keeps integers exact and falls back to float, then to the raw text.
func parseNumber(value string) interface{} {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}
