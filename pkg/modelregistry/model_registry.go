package modelregistry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
)

// Optional model methods the REST handler calls around queries and writes.
type (
	// FetchConditioner adds a default WHERE clause to list and get queries.
	FetchConditioner interface{ PreFetchConditions() string }
	// FetchSorter orders lists after any requested sort.
	FetchSorter interface{ PreFetchSort() string }
	// IDCleaner normalises an id taken from the URL.
	IDCleaner interface{ CleanID(id string) string }
	// PreUpdater adjusts column values before they are inserted or updated.
	PreUpdater interface {
		PreUpdate(values map[string]interface{})
	}
)

// Entry is one registered model with its derived grid configuration.
type Entry struct {
	Name    string
	Model   interface{}
	Table   string
	Config  common.SchemaConfig
	Columns []string

	hooks interface{}
}

// FetchConditions returns the model's default WHERE clause, if any.
func (e *Entry) FetchConditions() string {
	if m, ok := e.hooks.(FetchConditioner); ok {
		return m.PreFetchConditions()
	}
	return ""
}

// DefaultSort returns the model's default ORDER BY expression, if any.
func (e *Entry) DefaultSort() string {
	if m, ok := e.hooks.(FetchSorter); ok {
		return m.PreFetchSort()
	}
	return ""
}

// CleanID normalises id. An empty result keeps the original.
func (e *Entry) CleanID(id string) string {
	if m, ok := e.hooks.(IDCleaner); ok {
		if cleaned := m.CleanID(id); cleaned != "" {
			return cleaned
		}
	}
	return id
}

// PreUpdate lets the model adjust values before a write.
func (e *Entry) PreUpdate(values map[string]interface{}) {
	if m, ok := e.hooks.(PreUpdater); ok {
		m.PreUpdate(values)
	}
}

// HasColumn reports whether the model's table has the column.
func (e *Entry) HasColumn(column string) bool {
	for _, c := range e.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// SensitiveFields lists the password-typed fields that are masked on output.
func (e *Entry) SensitiveFields() []string {
	var out []string
	for _, f := range e.Config.Fields {
		if f.Type == common.TypePassword {
			out = append(out, f.Name)
		}
	}
	return out
}

// DefaultModelRegistry is a thread-safe name → model registry.
type DefaultModelRegistry struct {
	entries map[string]*Entry
	mutex   sync.RWMutex
}

// Global default registry instance
var defaultRegistry = NewModelRegistry()

// NewModelRegistry creates a new model registry
func NewModelRegistry() *DefaultModelRegistry {
	return &DefaultModelRegistry{
		entries: make(map[string]*Entry),
	}
}

// RegisterModel registers a struct model under name; an empty name uses the
// lowercase type name. The grid configuration is built once here.
func (r *DefaultModelRegistry) RegisterModel(name string, model interface{}) error {
	modelType := reflect.TypeOf(model)
	if modelType == nil {
		return fmt.Errorf("model cannot be nil")
	}

	originalType := modelType
	for modelType.Kind() == reflect.Ptr || modelType.Kind() == reflect.Slice || modelType.Kind() == reflect.Array {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return fmt.Errorf("model must be a struct or pointer to struct, got %s", originalType.String())
	}

	if name == "" {
		name = modelType.Name()
	}
	name = common.NormalizeModelType(name)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("model %s already registered", name)
	}

	zero := reflect.New(modelType).Elem().Interface()
	cfg, columns := BuildSchemaConfig(name, zero)
	r.entries[name] = &Entry{
		Name:    name,
		Model:   zero,
		Table:   tableName(modelType),
		Config:  cfg,
		Columns: columns,
		hooks:   reflect.New(modelType).Interface(),
	}
	return nil
}

func tableName(modelType reflect.Type) string {
	if provider, ok := reflect.New(modelType).Interface().(common.TableNameProvider); ok {
		return provider.TableName()
	}
	return inflection.Plural(toSnakeCase(modelType.Name()))
}

// GetEntry returns the entry registered under name (case-insensitive).
func (r *DefaultModelRegistry) GetEntry(name string) (*Entry, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entry, exists := r.entries[common.NormalizeModelType(name)]
	if !exists {
		return nil, fmt.Errorf("model %s not found", name)
	}
	return entry, nil
}

// GetEntryByPath resolves the entry whose apiUrl ends in the given path segment,
// falling back to the registry name.
func (r *DefaultModelRegistry) GetEntryByPath(segment string) (*Entry, error) {
	r.mutex.RLock()
	for _, entry := range r.entries {
		if strings.TrimSuffix(entry.Config.APIURL, "/") == "/api/"+segment {
			r.mutex.RUnlock()
			return entry, nil
		}
	}
	r.mutex.RUnlock()
	return r.GetEntry(segment)
}

func (r *DefaultModelRegistry) GetModel(name string) (interface{}, error) {
	entry, err := r.GetEntry(name)
	if err != nil {
		return nil, err
	}
	return entry.Model, nil
}

// Entries returns all entries ordered by name.
func (r *DefaultModelRegistry) Entries() []*Entry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GetModels returns a pointer to a zero value of each model, ordered by name,
// ready for AutoMigrate.
func (r *DefaultModelRegistry) GetModels() []interface{} {
	entries := r.Entries()
	models := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		models = append(models, reflect.New(reflect.TypeOf(e.Model)).Interface())
	}
	return models
}

// Global convenience functions using the default registry

// Default returns the process-wide registry.
func Default() *DefaultModelRegistry {
	return defaultRegistry
}

// RegisterModel registers a model with the default global registry
func RegisterModel(model interface{}, name string) error {
	return defaultRegistry.RegisterModel(name, model)
}

// GetModels returns the models of the default global registry
func GetModels() []interface{} {
	return defaultRegistry.GetModels()
}
