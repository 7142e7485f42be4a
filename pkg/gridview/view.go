package gridview

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/tableview"
)

// Query parameters owned by the page rather than the filter store.
const (
	paramEdit       = "edit"
	paramNew        = "new"
	paramNotice     = "notice"
	paramNoticeKind = "noticeKind"
	paramPage       = "page"
	paramReturn     = "return"
)

var viewParams = []string{paramEdit, paramNew, paramNotice, paramNoticeKind, paramPage}

// Page is the template model of a grid page or a rows fragment.
type Page struct {
	Title       string
	ModelType   string
	BaseURL     string
	NewURL      string
	CancelURL   string
	SaveURL     string
	NextURL     string
	Return      string
	Notice      string
	NoticeKind  string
	ServerTime  string
	Stats       tableview.Stats
	Columns     []Column
	ColumnCount int
	Chips       []ChipLink
	Rows        []Row
	Editing     bool
	EditID      string
}

type Column struct {
	Field     string
	Label     string
	Sort      string
	SortURL   string
	ShortSpan bool
	Operators []common.OperatorOption
	Operator  string
	Value     string
	Value2    string
	ValueType string
	Between   bool
	Hidden    []HiddenInput
}

type HiddenInput struct {
	Name  string
	Value string
}

type ChipLink struct {
	Text      string
	RemoveURL string
}

type Row struct {
	ID        string
	IsNew     bool
	Editing   bool
	EditURL   string
	DeleteURL string
	Actions   []ActionLink
	Cells     []Cell
}

type ActionLink struct {
	Label string
	URL   string
}

// Cell is a render fragment with its markup already sanitized.
type Cell struct {
	Kind        string
	Field       string
	Text        string
	HTML        string
	ShortHTML   string
	Truncated   bool
	Tags        []string
	ChartTitle  string
	ChartJSON   string
	InputType   string
	Value       string
	Checked     bool
	Placeholder string
	Options     []tableview.Option
	OptionsURL  string
	Searchable  bool
	MasterField string
}

// baseQuery is the engine query without the page's own parameters.
func baseQuery(e *tableview.Engine) url.Values {
	q := e.Query()
	for _, k := range viewParams {
		q.Del(k)
	}
	return q
}

func copyValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func withoutFilter(q url.Values, field string) url.Values {
	out := copyValues(q)
	prefix := tableview.FilterPrefix + field + "-"
	for k := range out {
		if strings.HasPrefix(k, prefix) {
			out.Del(k)
		}
	}
	return out
}

func withSort(q url.Values, sorts []common.SortOption) url.Values {
	out := copyValues(q)
	out.Del("sort")
	for _, s := range sorts {
		out.Add("sort", s.Column+" "+strings.ToLower(s.Direction))
	}
	return out
}

func hiddenInputs(q url.Values) []HiddenInput {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []HiddenInput
	for _, k := range keys {
		for _, v := range q[k] {
			out = append(out, HiddenInput{Name: k, Value: v})
		}
	}
	return out
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func inputType(f *tableview.Field) string {
	switch f.Type {
	case common.TypeNumber:
		return "number"
	case common.TypeDate:
		return "date"
	}
	return "text"
}

func (v *View) columns(e *tableview.Engine, base url.Values, basePath string) []Column {
	schema := e.Schema()
	current := common.ParseSort(base["sort"]...)

	var cols []Column
	for _, h := range e.Header() {
		f, _ := schema.Field(h.Field)
		between := false
		for _, op := range h.Operators {
			if op.Value == common.OpBetween {
				between = true
			}
		}
		cols = append(cols, Column{
			Field:     h.Field,
			Label:     h.Label,
			Sort:      h.Sort,
			SortURL:   withQuery(basePath, withSort(base, tableview.CycleSort(current, h.Field))),
			ShortSpan: h.ShortSpan,
			Operators: h.Operators,
			Operator:  h.Input.Operator,
			Value:     h.Input.Value,
			Value2:    h.Input.Value2,
			ValueType: inputType(f),
			Between:   between,
			Hidden:    hiddenInputs(withoutFilter(base, h.Field)),
		})
	}
	return cols
}

func (v *View) chips(e *tableview.Engine, base url.Values, basePath string) []ChipLink {
	var out []ChipLink
	for _, c := range e.Chips() {
		out = append(out, ChipLink{Text: c.Text, RemoveURL: withQuery(basePath, withoutFilter(base, c.Field))})
	}
	return out
}

func (v *View) rows(ctx context.Context, e *tableview.Engine, records []tableview.Record, base url.Values, basePath string) []Row {
	schema := e.Schema()
	edit := e.Editing()

	var out []Row
	if edit != nil && edit.IsNew {
		out = append(out, Row{IsNew: true, Editing: true, Cells: v.cells(ctx, e, e.RenderNewRow(), basePath)})
	}
	for _, record := range records {
		id := tableview.RecordID(record)
		editQuery := copyValues(base)
		editQuery.Set(paramEdit, id)

		row := Row{
			ID:        id,
			Editing:   edit != nil && !edit.IsNew && edit.ID == id,
			EditURL:   withQuery(basePath, editQuery),
			DeleteURL: basePath + "/delete/" + url.PathEscape(id),
			Cells:     v.cells(ctx, e, e.RenderRow(record), basePath),
		}
		for _, a := range schema.Config.Actions {
			row.Actions = append(row.Actions, ActionLink{
				Label: actionLabel(a),
				URL:   basePath + "/action/" + url.PathEscape(id) + "/" + url.PathEscape(a),
			})
		}
		out = append(out, row)
	}
	return out
}

func actionLabel(action string) string {
	if action == "" {
		return action
	}
	return strings.ToUpper(action[:1]) + action[1:]
}

func (v *View) cells(ctx context.Context, e *tableview.Engine, frags []tableview.Fragment, basePath string) []Cell {
	out := make([]Cell, 0, len(frags))
	for _, f := range frags {
		c := Cell{
			Kind:        f.Kind.String(),
			Field:       f.Field,
			Text:        f.Text,
			Truncated:   f.Truncated,
			Tags:        f.Tags,
			ChartTitle:  f.ChartTitle,
			InputType:   f.InputType,
			Value:       f.Value,
			Placeholder: f.Placeholder,
			Searchable:  f.Searchable,
			MasterField: f.MasterField,
		}
		switch f.Kind {
		case tableview.FragmentLink:
			c.HTML = linkHTML(f.Text, f.Href)
		case tableview.FragmentText:
			c.HTML = textHTML(f.Text)
		case tableview.FragmentBlock:
			c.HTML = textHTML(f.Text)
			c.ShortHTML = textHTML(f.Short)
		case tableview.FragmentChart:
			data, err := json.Marshal(f.ChartData)
			if err == nil {
				c.ChartJSON = string(data)
			}
		case tableview.FragmentInput:
			c.Checked = f.InputType == "checkbox" && f.Value == "true"
		case tableview.FragmentSelect:
			c.OptionsURL = basePath + "/options/" + url.PathEscape(f.Field)
			if l, ok := e.Selector(f.Field); ok {
				l.Open(ctx)
				c.Options = l.Options()
			}
			if len(c.Options) == 0 && f.Default != nil {
				c.Options = []tableview.Option{*f.Default}
			}
		}
		out = append(out, c)
	}
	return out
}

// nextURL is the rows fragment of the page after the loaded ones, or empty at the end.
func nextURL(e *tableview.Engine, base url.Values, basePath string) string {
	st := e.Pagination()
	if st.Exhausted {
		return ""
	}
	q := copyValues(base)
	q.Set(paramPage, strconv.Itoa(st.Page))
	return withQuery(basePath+"/rows", q)
}
