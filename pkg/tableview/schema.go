package tableview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/restclient"
)

var (
	// ErrConfigNotFound is returned when the backend has no configuration for a model type.
	ErrConfigNotFound = errors.New("model configuration not found")
	ErrDuplicateField = errors.New("duplicate field")
	// ErrUnknownMaster is returned for a masterSelector that names no field of the schema.
	ErrUnknownMaster = errors.New("unknown master selector")
)

// Transport is the HTTP client used by the engine. *restclient.Client implements it.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (*restclient.Response, error)
	Do(ctx context.Context, method, path string, body interface{}) (*restclient.Response, error)
}

// Field is a FieldConfig with its master and dependents resolved.
type Field struct {
	common.FieldConfig
	Kind       common.FieldKind
	Index      int
	Master     *Field
	Dependents []*Field
}

// Schema is a validated SchemaConfig plus the configurations of the models
// its select fields point at.
type Schema struct {
	Config       common.SchemaConfig
	Fields       []*Field
	Dependencies map[string]*common.SchemaConfig

	byName map[string]*Field
}

// NewSchema indexes cfg and resolves masterSelector references.
func NewSchema(cfg common.SchemaConfig) (*Schema, error) {
	s := &Schema{
		Config:       cfg,
		Fields:       make([]*Field, 0, len(cfg.Fields)),
		Dependencies: make(map[string]*common.SchemaConfig),
		byName:       make(map[string]*Field, len(cfg.Fields)),
	}

	for i, fc := range cfg.Fields {
		if _, exists := s.byName[fc.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, fc.Name)
		}
		f := &Field{FieldConfig: fc, Kind: fc.Kind(), Index: i}
		s.Fields = append(s.Fields, f)
		s.byName[fc.Name] = f
	}

	for _, f := range s.Fields {
		if f.MasterSelector == "" {
			continue
		}
		master, ok := s.byName[f.MasterSelector]
		if !ok || master == f {
			return nil, fmt.Errorf("%w: %s on field %s", ErrUnknownMaster, f.MasterSelector, f.Name)
		}
		f.Master = master
		master.Dependents = append(master.Dependents, f)
	}

	return s, nil
}

// Field returns the named field.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Dependency returns the loaded configuration of a referenced model.
func (s *Schema) Dependency(selectorOf string) (*common.SchemaConfig, bool) {
	cfg, ok := s.Dependencies[selectorOf]
	return cfg, ok
}

// SelectFields returns the select fields in schema order.
func (s *Schema) SelectFields() []*Field {
	var out []*Field
	for _, f := range s.Fields {
		if f.Kind == common.KindSelect {
			out = append(out, f)
		}
	}
	return out
}

// SchemaLoader fetches model configurations from the backend.
type SchemaLoader struct {
	client Transport
}

func NewSchemaLoader(client Transport) *SchemaLoader {
	return &SchemaLoader{client: client}
}

// LoadSchema fetches the configuration of modelType and the configurations of
// every model its select fields reference.
func (l *SchemaLoader) LoadSchema(ctx context.Context, modelType string) (*Schema, error) {
	cfg, err := l.fetchConfig(ctx, modelType)
	if err != nil {
		return nil, err
	}

	schema, err := NewSchema(*cfg)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", modelType, err)
	}

	if err := l.LoadDependencies(ctx, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// LoadDependencies fills the dependency cache, one level deep.
func (l *SchemaLoader) LoadDependencies(ctx context.Context, schema *Schema) error {
	for _, f := range schema.SelectFields() {
		if f.IsEnum() || f.SelectorOf == "" {
			continue
		}
		if _, loaded := schema.Dependencies[f.SelectorOf]; loaded {
			continue
		}

		cfg, err := l.fetchConfig(ctx, f.SelectorOf)
		if err != nil {
			return fmt.Errorf("dependency %s of field %s: %w", f.SelectorOf, f.Name, err)
		}
		schema.Dependencies[f.SelectorOf] = cfg
	}
	return nil
}

func (l *SchemaLoader) fetchConfig(ctx context.Context, modelType string) (*common.SchemaConfig, error) {
	logger.Debug("Loading configuration of %s", modelType)

	resp, err := l.client.Get(ctx, "/api/config/"+url.PathEscape(modelType), nil)
	if err != nil {
		var statusErr *restclient.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, modelType)
		}
		return nil, fmt.Errorf("load configuration of %s: %w", modelType, err)
	}

	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, modelType)
	}
	var cfg common.SchemaConfig
	if err := resp.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration of %s: %w", modelType, err)
	}
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, modelType)
	}
	return &cfg, nil
}
