package tableview

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
)

// Option is one entry of a select dropdown.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Selection reads the display text currently selected in a select widget.
type Selection interface {
	SelectedText(field string) string
}

// SelectorLoader pages the options of one select field from the model it references.
type SelectorLoader struct {
	field     *Field
	dep       *common.SchemaConfig
	client    Transport
	selection Selection
	pager     *Pager

	mu            sync.Mutex
	query         string
	options       []Option
	defaultOption *Option
}

func newSelectorLoader(field *Field, dep *common.SchemaConfig, client Transport, selection Selection, pageSize int) *SelectorLoader {
	return &SelectorLoader{
		field:     field,
		dep:       dep,
		client:    client,
		selection: selection,
		pager:     NewPager(pageSize),
	}
}

func (l *SelectorLoader) Field() *Field {
	return l.field
}

// SetDefault sets the option that stays first in the list, normally the current value.
func (l *SelectorLoader) SetDefault(opt *Option) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.defaultOption = opt
}

func (l *SelectorLoader) Default() *Option {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.defaultOption
}

// Options returns the default option followed by the loaded ones.
func (l *SelectorLoader) Options() []Option {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Option, 0, len(l.options)+1)
	if l.defaultOption != nil {
		out = append(out, *l.defaultOption)
	}
	return append(out, l.options...)
}

// Lookup returns the option with the given id among the known options.
func (l *SelectorLoader) Lookup(id string) (Option, bool) {
	for _, opt := range l.Options() {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

func (l *SelectorLoader) State() PaginationState {
	return l.pager.State()
}

// Open loads the first page with no search text. A list left over from a search
// is replaced; an unfiltered list that is already loaded is kept.
func (l *SelectorLoader) Open(ctx context.Context) {
	st := l.pager.State()
	if st.Loading {
		return
	}

	l.mu.Lock()
	searched := l.query != ""
	l.query = ""
	l.mu.Unlock()

	if searched {
		l.pager.Reset()
	} else if st.Page > 1 || st.Exhausted {
		return
	}
	l.load(ctx, false)
}

// Search restarts loading at page 1 with a new search text.
func (l *SelectorLoader) Search(ctx context.Context, query string) {
	l.mu.Lock()
	l.query = query
	l.mu.Unlock()

	l.pager.Reset()
	l.load(ctx, false)
}

// ScrollEnd appends the next page for the current search text.
func (l *SelectorLoader) ScrollEnd(ctx context.Context) {
	l.load(ctx, true)
}

// Invalidate drops the loaded options, the default and the search text.
func (l *SelectorLoader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pager.Reset()
	l.options = nil
	l.defaultOption = nil
	l.query = ""
}

func (l *SelectorLoader) load(ctx context.Context, appendPage bool) {
	masterText := ""
	if l.field.Master != nil {
		if l.selection != nil {
			masterText = l.selection.SelectedText(l.field.Master.Name)
		}
		if masterText == "" {
			logger.Debug("Select %s first to load %s", l.field.Master.Name, l.field.Name)
			return
		}
	}

	page, gen, ok := l.pager.Begin()
	if !ok {
		return
	}

	if l.field.IsEnum() {
		opts := make([]Option, 0, len(l.field.AllowedValues))
		for _, v := range l.field.AllowedValues {
			opts = append(opts, Option{ID: v, Name: v})
		}
		l.apply(gen, appendPage, opts, 0)
		return
	}

	if l.dep == nil {
		logger.Warn("No configuration loaded for %s of field %s", l.field.SelectorOf, l.field.Name)
		l.pager.Fail(gen)
		return
	}

	l.mu.Lock()
	query := l.query
	l.mu.Unlock()

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("query", query)
	params.Set("pageSize", strconv.Itoa(l.pager.PageSize()))
	params.Set("sort", "name")
	if masterText != "" {
		params.Set(l.field.Master.Name+"-operator", common.OpContains)
		params.Set(l.field.Master.Name+"-value", masterText)
	}

	resp, err := l.client.Get(ctx, l.dep.APIURL, params)
	if err != nil {
		logger.Warn("Error fetching %s: %v", l.field.Name, err)
		l.pager.Fail(gen)
		return
	}

	var list common.ListResponse
	if err := resp.Decode(&list); err != nil {
		logger.Warn("Error decoding %s options: %v", l.field.Name, err)
		l.pager.Fail(gen)
		return
	}

	opts := make([]Option, 0, len(list.Items))
	for _, item := range list.Items {
		opts = append(opts, Option{ID: displayValue(item["id"]), Name: displayValue(item["name"])})
	}
	l.apply(gen, appendPage, opts, len(opts))
}

// apply stores a page of options. n is the page size the server returned;
// enum pages pass 0 so the loader is exhausted after one page.
func (l *SelectorLoader) apply(gen int, appendPage bool, opts []Option, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.pager.Complete(gen, n) {
		logger.Debug("Dropping stale options of %s", l.field.Name)
		return
	}
	if !appendPage {
		l.options = nil
	}
	for _, opt := range opts {
		if l.defaultOption != nil && opt.ID == l.defaultOption.ID {
			continue
		}
		l.options = append(l.options, opt)
	}
}

// SelectorSet holds the loaders of the select fields of a schema.
type SelectorSet struct {
	schema  *Schema
	loaders map[string]*SelectorLoader
}

// NewSelectorSet creates a loader for every select field of schema.
func NewSelectorSet(schema *Schema, client Transport, selection Selection, pageSize int) *SelectorSet {
	set := &SelectorSet{schema: schema, loaders: make(map[string]*SelectorLoader)}
	for _, f := range schema.SelectFields() {
		dep, _ := schema.Dependency(f.SelectorOf)
		set.loaders[f.Name] = newSelectorLoader(f, dep, client, selection, pageSize)
	}
	return set
}

func (s *SelectorSet) Loader(field string) (*SelectorLoader, bool) {
	l, ok := s.loaders[field]
	return l, ok
}

// MasterChanged invalidates the direct dependents of master and returns their names.
func (s *SelectorSet) MasterChanged(master string) []string {
	f, ok := s.schema.Field(master)
	if !ok {
		return nil
	}
	var names []string
	for _, dep := range f.Dependents {
		if dl, ok := s.loaders[dep.Name]; ok {
			dl.Invalidate()
			names = append(names, dep.Name)
		}
	}
	if len(names) > 0 {
		logger.Debug("Master %s changed, reset %v", master, names)
	}
	return names
}

// Reset invalidates every loader.
func (s *SelectorSet) Reset() {
	for _, l := range s.loaders {
		l.Invalidate()
	}
}
