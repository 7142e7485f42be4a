package tableview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
)

// ScrollThreshold is the distance from the end of the page that triggers the next page.
const ScrollThreshold = 100

var (
	ErrNotLoaded = errors.New("no model loaded")
	// ErrEditInProgress is returned when a row is opened while another is being edited.
	ErrEditInProgress = errors.New("another row is being edited")
	ErrNotEditing     = errors.New("no row is being edited")
	ErrUnknownField   = errors.New("unknown field")
	ErrUnknownRecord  = errors.New("unknown record")
	ErrUnknownAction  = errors.New("unknown action")
)

// Stats are the counters of the last list response.
type Stats struct {
	Total       int64
	CurrentPage int
	TotalPages  int
	ServerTime  string
}

// HeaderCell is one column header with its sort state and filter widgets.
type HeaderCell struct {
	Field     string
	Label     string
	Sort      string
	ShortSpan bool
	Operators []common.OperatorOption
	Input     FilterEntry
}

// EditState is the row being created or edited.
type EditState struct {
	ID     string
	IsNew  bool
	Values map[string]string
	// Texts holds the display text of select values.
	Texts map[string]string
}

// TableViewState is everything one grid view knows.
type TableViewState struct {
	ModelType string
	Schema    *Schema
	Filters   *FilterStore
	Pager     *Pager
	Selectors *SelectorSet
	Sort      []common.SortOption
	Rows      []Record
	Stats     Stats
	Edit      *EditState
}

// Engine drives one table view against the backend. It is safe for concurrent
// use; the state lock is never held across a request.
type Engine struct {
	mu       sync.Mutex
	client   Transport
	loader   *SchemaLoader
	renderer Renderer
	pageSize int
	observer LoadingObserver
	state    *TableViewState
}

type EngineOption func(*Engine)

func WithPageSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

func WithRenderer(r Renderer) EngineOption {
	return func(e *Engine) { e.renderer = r }
}

// WithLoadingObserver reports the table loading indicator.
func WithLoadingObserver(o LoadingObserver) EngineOption {
	return func(e *Engine) { e.observer = o }
}

func NewEngine(client Transport, opts ...EngineOption) *Engine {
	e := &Engine{
		client:   client,
		loader:   NewSchemaLoader(client),
		pageSize: 20,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load opens a model: schema, dependencies, filters from query, first page.
func (e *Engine) Load(ctx context.Context, modelType string, query url.Values) error {
	schema, err := e.loader.LoadSchema(ctx, modelType)
	if err != nil {
		logger.Error("Failed to load %s: %v", modelType, err)
		return err
	}

	st := &TableViewState{
		ModelType: modelType,
		Schema:    schema,
		Filters:   NewFilterStore(schema),
		Pager:     NewPager(e.pageSize),
	}
	st.Filters.LoadFromURL(query)
	st.Pager.SetObserver(e.observer)
	st.Selectors = NewSelectorSet(schema, e.client, e, e.pageSize)
	for _, s := range common.ParseSort(query["sort"]...) {
		if _, ok := schema.Field(s.Column); ok {
			st.Sort = append(st.Sort, s)
		}
	}

	e.mu.Lock()
	e.state = st
	e.mu.Unlock()

	logger.Info("Loaded %s with %d fields", modelType, len(schema.Fields))
	return e.Fetch(ctx, true)
}

func (e *Engine) current() (*TableViewState, error) {
	if e.state == nil {
		return nil, ErrNotLoaded
	}
	return e.state, nil
}

// Fetch loads the next page, or page 1 after clearing the rows when clear is set.
func (e *Engine) Fetch(ctx context.Context, clear bool) error {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if clear {
		st.Pager.Reset()
		st.Rows = nil
	}
	page, gen, ok := st.Pager.Begin()
	if !ok {
		e.mu.Unlock()
		return nil
	}
	params := e.listParams(st, page)
	apiURL := st.Schema.Config.APIURL
	e.mu.Unlock()

	resp, err := e.client.Get(ctx, apiURL, params)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		st.Pager.Fail(gen)
		return fmt.Errorf("fetch %s page %d: %w", st.ModelType, page, err)
	}

	var list common.ListResponse
	if err := resp.Decode(&list); err != nil {
		st.Pager.Fail(gen)
		return fmt.Errorf("decode %s page %d: %w", st.ModelType, page, err)
	}
	if e.state != st || !st.Pager.Complete(gen, len(list.Items)) {
		logger.Debug("Dropping stale page %d of %s", page, st.ModelType)
		return nil
	}

	st.Rows = append(st.Rows, list.Items...)
	st.Stats = Stats{
		Total:       list.Total,
		CurrentPage: list.CurrentPage,
		TotalPages:  list.TotalPages,
		ServerTime:  list.ServerTime,
	}
	return nil
}

func (e *Engine) listParams(st *TableViewState, page int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(st.Pager.PageSize()))
	for k, v := range st.Filters.Serialize() {
		params.Set(k, v)
	}
	if len(st.Sort) > 0 {
		parts := make([]string, 0, len(st.Sort))
		for _, s := range st.Sort {
			parts = append(parts, s.Column+" "+strings.ToLower(s.Direction))
		}
		params.Set("sort", strings.Join(parts, ","))
	}
	return params
}

// OnScroll loads the next page when the viewport is near the end of the document.
func (e *Engine) OnScroll(ctx context.Context, scrollTop, viewport, docHeight float64) error {
	if scrollTop+viewport < docHeight-ScrollThreshold {
		return nil
	}
	return e.Fetch(ctx, false)
}

// ToggleSort cycles a column through ascending, descending and unsorted. The
// column moves to the end of the sort order.
func (e *Engine) ToggleSort(ctx context.Context, field string) error {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if _, ok := st.Schema.Field(field); !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	st.Sort = CycleSort(st.Sort, field)
	e.mu.Unlock()

	return e.Fetch(ctx, true)
}

// CycleSort returns sorts with field advanced from unsorted to ASC, ASC to DESC and
// DESC back to unsorted. A sorted field is moved to the end.
func CycleSort(sorts []common.SortOption, field string) []common.SortOption {
	next := "ASC"
	out := make([]common.SortOption, 0, len(sorts)+1)
	for _, s := range sorts {
		if s.Column != field {
			out = append(out, s)
			continue
		}
		switch s.Direction {
		case "ASC":
			next = "DESC"
		default:
			next = ""
		}
	}
	if next != "" {
		out = append(out, common.SortOption{Column: field, Direction: next})
	}
	return out
}

// SetFilterInput records the filter row widgets of a field.
func (e *Engine) SetFilterInput(field, operator, value, value2 string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.current()
	if err != nil {
		return err
	}
	st.Filters.SetInput(field, operator, value, value2)
	return nil
}

// CommitFilter applies the input of a field and reloads when it was valid.
func (e *Engine) CommitFilter(ctx context.Context, field string) (bool, error) {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	changed := st.Filters.SetFilter(field)
	e.mu.Unlock()

	if !changed {
		return false, nil
	}
	return true, e.Fetch(ctx, true)
}

// RemoveFilter drops the filter of a field and reloads when one was set.
func (e *Engine) RemoveFilter(ctx context.Context, field string) error {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	had := st.Filters.HasFilter(field)
	st.Filters.ClearFilter(field)
	e.mu.Unlock()

	if !had {
		return nil
	}
	return e.Fetch(ctx, true)
}

// NewRow opens an empty row for a new record.
func (e *Engine) NewRow() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.current()
	if err != nil {
		return err
	}
	if st.Edit != nil {
		return ErrEditInProgress
	}
	st.Selectors.Reset()
	st.Edit = &EditState{IsNew: true, Values: map[string]string{}, Texts: map[string]string{}}
	return nil
}

// EditRow opens a loaded record for editing.
func (e *Engine) EditRow(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.current()
	if err != nil {
		return err
	}
	if st.Edit != nil {
		return ErrEditInProgress
	}
	record := st.find(id)
	if record == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}

	st.Selectors.Reset()
	edit := &EditState{ID: id, Values: map[string]string{}, Texts: map[string]string{}}
	for _, f := range st.Schema.Fields {
		frag := e.renderer.Render(record, f, true)
		switch frag.Kind {
		case FragmentInput, FragmentTextarea:
			edit.Values[f.Name] = frag.Value
		case FragmentSelect:
			edit.Values[f.Name] = frag.Value
			if frag.Default != nil {
				edit.Texts[f.Name] = frag.Default.Name
				if l, ok := st.Selectors.Loader(f.Name); ok {
					l.SetDefault(frag.Default)
				}
			}
		}
	}
	st.Edit = edit
	return nil
}

func (st *TableViewState) find(id string) Record {
	for _, r := range st.Rows {
		if RecordID(r) == id {
			return r
		}
	}
	return nil
}

// SetEditValue sets an input of the edited row. Changing a select to a new value
// clears and resets the selects that depend on it.
func (e *Engine) SetEditValue(field, value string) error {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if st.Edit == nil {
		e.mu.Unlock()
		return ErrNotEditing
	}
	f, ok := st.Schema.Field(field)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	old, had := st.Edit.Values[field]
	changed := !had || old != value
	st.Edit.Values[field] = value
	loader, isSelect := st.Selectors.Loader(field)
	selectors := st.Selectors
	e.mu.Unlock()

	if !isSelect || !changed {
		return nil
	}
	text := ""
	if opt, found := loader.Lookup(value); found {
		text = opt.Name
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != st || st.Edit == nil {
		return nil
	}
	st.Edit.Texts[field] = text
	for _, name := range selectors.MasterChanged(f.Name) {
		delete(st.Edit.Values, name)
		delete(st.Edit.Texts, name)
	}
	return nil
}

// SelectedText returns the display text of a select in the edited row.
func (e *Engine) SelectedText(field string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil || e.state.Edit == nil {
		return ""
	}
	return e.state.Edit.Texts[field]
}

// Selector returns the option loader of a select field.
func (e *Engine) Selector(field string) (*SelectorLoader, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, false
	}
	return e.state.Selectors.Loader(field)
}

// Save sends the edited row and reloads the table.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if st.Edit == nil {
		e.mu.Unlock()
		return ErrNotEditing
	}
	body := CollectSave(st.Schema, st.Edit.Values)
	method, path := http.MethodPost, st.Schema.Config.APIURL
	if !st.Edit.IsNew {
		method, path = http.MethodPut, path+"/"+url.PathEscape(st.Edit.ID)
	}
	e.mu.Unlock()

	logger.Debug("Saving %s with %d values", path, len(body))
	if _, err := e.client.Do(ctx, method, path, body); err != nil {
		return fmt.Errorf("save %s: %w", st.ModelType, err)
	}

	e.mu.Lock()
	if e.state == st {
		st.Edit = nil
	}
	e.mu.Unlock()
	return e.Fetch(ctx, true)
}

// Cancel leaves edit mode. A new row is dropped; an edited row is reloaded.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	edit := st.Edit
	st.Edit = nil
	e.mu.Unlock()

	if edit == nil || edit.IsNew {
		return nil
	}
	return e.Fetch(ctx, true)
}

// Delete removes a record and reloads the table.
func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	path := st.Schema.Config.APIURL + "/" + url.PathEscape(id)
	e.mu.Unlock()

	if _, err := e.client.Do(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("delete %s %s: %w", st.ModelType, id, err)
	}
	return e.Fetch(ctx, true)
}

// RunAction calls a row action. Actions in the response are dispatched by the transport.
func (e *Engine) RunAction(ctx context.Context, id, action string) error {
	e.mu.Lock()
	st, err := e.current()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	known := false
	for _, a := range st.Schema.Config.Actions {
		if a == action {
			known = true
			break
		}
	}
	path := st.Schema.Config.APIURL + "/" + url.PathEscape(id) + "/" + url.PathEscape(action)
	e.mu.Unlock()

	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if _, err := e.client.Get(ctx, path, nil); err != nil {
		return fmt.Errorf("action %s on %s %s: %w", action, st.ModelType, id, err)
	}
	return nil
}

// Schema returns the loaded schema.
func (e *Engine) Schema() *Schema {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	return e.state.Schema
}

// Rows returns the loaded records.
func (e *Engine) Rows() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	return append([]Record(nil), e.state.Rows...)
}

// Header returns the column headers in schema order.
func (e *Engine) Header() []HeaderCell {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	st := e.state

	sortOf := make(map[string]string, len(st.Sort))
	for _, s := range st.Sort {
		sortOf[s.Column] = strings.ToLower(s.Direction)
	}
	cells := make([]HeaderCell, 0, len(st.Schema.Fields))
	for _, f := range st.Schema.Fields {
		cells = append(cells, HeaderCell{
			Field:     f.Name,
			Label:     f.Label,
			Sort:      sortOf[f.Name],
			ShortSpan: f.ShortSpan,
			Operators: OperatorsFor(f),
			Input:     st.Filters.Input(f.Name),
		})
	}
	return cells
}

func (e *Engine) Chips() []Chip {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	return e.state.Filters.Chips()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return Stats{}
	}
	return e.state.Stats
}

// Query returns the page query string for the current filters and sort.
func (e *Engine) Query() url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return url.Values{}
	}
	q := e.state.Filters.Query()
	q.Del("sort")
	for _, s := range e.state.Sort {
		q.Add("sort", s.Column+" "+strings.ToLower(s.Direction))
	}
	return q
}

// Pagination returns the table pagination state.
func (e *Engine) Pagination() PaginationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return PaginationState{}
	}
	return e.state.Pager.State()
}

// Editing returns a copy of the edited row, if any.
func (e *Engine) Editing() *EditState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil || e.state.Edit == nil {
		return nil
	}
	edit := *e.state.Edit
	edit.Values = copyStrings(e.state.Edit.Values)
	edit.Texts = copyStrings(e.state.Edit.Texts)
	return &edit
}

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RenderRow renders every field of a record. The edited row renders in edit mode
// with the pending input values.
func (e *Engine) RenderRow(record Record) []Fragment {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	st := e.state

	editMode := false
	if st.Edit != nil && !st.Edit.IsNew && RecordID(record) == st.Edit.ID {
		editMode = true
	}
	return e.renderFields(st, record, editMode)
}

// RenderNewRow renders the row of a record being created.
func (e *Engine) RenderNewRow() []Fragment {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil || e.state.Edit == nil || !e.state.Edit.IsNew {
		return nil
	}
	return e.renderFields(e.state, Record{}, true)
}

func (e *Engine) renderFields(st *TableViewState, record Record, editMode bool) []Fragment {
	out := make([]Fragment, 0, len(st.Schema.Fields))
	for _, f := range st.Schema.Fields {
		frag := e.renderer.Render(record, f, editMode)
		if editMode && st.Edit != nil {
			if v, ok := st.Edit.Values[f.Name]; ok && frag.Kind != FragmentText && frag.Kind != FragmentEmpty {
				frag.Value = v
			}
			if frag.Kind == FragmentSelect {
				frag.Default = nil
				if v := st.Edit.Values[f.Name]; v != "" {
					frag.Default = &Option{ID: v, Name: st.Edit.Texts[f.Name]}
				}
			}
		}
		out = append(out, frag)
	}
	return out
}
