package modelregistry

import (
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
)

// Struct tag keys read by the schema builder.
//
//	Role     string `json:"role" extras:"enum:Admin|Scraper"`
//	TeamID   uint   `json:"team_id"`
//	Team     *Team  `json:"-" gorm:"foreignKey:TeamID"`
//	Password string `json:"password" extras:"sensitive"`
const (
	extrasTag = "extras"
	gormTag   = "gorm"
	jsonTag   = "json"
)

var timeType = reflect.TypeOf(time.Time{})

// Optional model methods consulted when building a SchemaConfig.
type (
	titled interface{ GetTitle() string }
	apiURLer interface{ GetApiUrl() string }
	actioned interface{ ExtraActions() string }
)

type extras map[string]string

func parseExtras(tag string) extras {
	out := extras{}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, ":")
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

func (e extras) has(key string) bool {
	_, ok := e[key]
	return ok
}

// BuildSchemaConfig derives the grid configuration of a model from its struct tags.
// name is the registry key; it provides the default title and api url.
func BuildSchemaConfig(name string, model interface{}) (common.SchemaConfig, []string) {
	modelType := baseType(reflect.TypeOf(model))

	cfg := common.SchemaConfig{
		Title:   name,
		APIURL:  "/api/" + name,
		Actions: []string{},
	}
	instance := reflect.New(modelType).Interface()
	if m, ok := instance.(titled); ok && m.GetTitle() != "" {
		cfg.Title = m.GetTitle()
	}
	if m, ok := instance.(apiURLer); ok && m.GetApiUrl() != "" {
		cfg.APIURL = m.GetApiUrl()
	}
	if m, ok := instance.(actioned); ok {
		cfg.Actions = common.ParseCommaSeparated(m.ExtraActions())
	}

	var columns []string
	cfg.Fields = extractFields(modelType, &columns)
	logger.Debug("Built configuration for %s with %d fields", name, len(cfg.Fields))
	return cfg, columns
}

func extractFields(modelType reflect.Type, columns *[]string) []common.FieldConfig {
	foreignKeys := map[string]bool{}
	for i := 0; i < modelType.NumField(); i++ {
		if fk, ok := gormSetting(modelType.Field(i).Tag.Get(gormTag), "foreignKey"); ok && !isCollection(modelType.Field(i).Type) {
			foreignKeys[fk] = true
		}
	}

	var fields []common.FieldConfig
	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if !field.IsExported() {
			continue
		}

		if field.Anonymous && baseType(field.Type).Kind() == reflect.Struct && baseType(field.Type) != timeType {
			fields = append(fields, extractFields(baseType(field.Type), columns)...)
			continue
		}
		if isCollection(field.Type) {
			continue
		}

		fx := parseExtras(field.Tag.Get(extrasTag))
		fk, isRelation := gormSetting(field.Tag.Get(gormTag), "foreignKey")

		if !isRelation {
			*columns = append(*columns, fieldName(field))
		}
		if fx.has("hidden") || foreignKeys[field.Name] {
			continue
		}

		info := common.FieldConfig{
			Name:           fieldName(field),
			Label:          field.Name,
			Optional:       fx.has("optional"),
			Block:          fx.has("block"),
			ChartData:      fx.has("chartData"),
			Tags:           fx.has("tags"),
			ShortSpan:      fx.has("short-span"),
			MasterSelector: fx["masterSelector"],
			Href:           fx["href"],
		}

		switch {
		case isRelation:
			info.Name = relationColumn(modelType, fk)
			info.Type = common.TypeSelect
			info.SelectorOf = strings.ToLower(baseType(field.Type).Name())
			logger.Debug("Field %s of %s is a selector of %s", field.Name, modelType.Name(), info.SelectorOf)
		case fx.has("enum"):
			info.Type = common.TypeSelect
			info.SelectorOf = common.EnumSelector
			info.AllowedValues = strings.Split(fx["enum"], "|")
		default:
			info.Type = scalarType(field.Type, fx.has("sensitive"))
		}

		if info.Type == "" {
			if !info.ChartData {
				logger.Debug("Skipping field %s of %s with unsupported type %s", field.Name, modelType.Name(), field.Type)
				continue
			}
			info.Type = common.TypeText
		}
		fields = append(fields, info)
	}
	return fields
}

func scalarType(t reflect.Type, sensitive bool) string {
	t = baseType(t)
	switch t.Kind() {
	case reflect.String:
		if sensitive {
			return common.TypePassword
		}
		return common.TypeText
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return common.TypeNumber
	case reflect.Bool:
		return common.TypeBool
	case reflect.Struct:
		if t == timeType {
			return common.TypeDate
		}
	}
	return ""
}

// relationColumn returns the json name of the struct field holding the foreign key.
func relationColumn(modelType reflect.Type, fk string) string {
	if f, ok := modelType.FieldByName(fk); ok {
		return fieldName(f)
	}
	return toSnakeCase(fk)
}

func fieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get(jsonTag), ",")
	switch name {
	case "-":
		return strings.ToLower(field.Name)
	case "":
		return toSnakeCase(field.Name)
	}
	return name
}

func gormSetting(tag, key string) (string, bool) {
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if k, v, ok := strings.Cut(part, ":"); ok && strings.EqualFold(k, key) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func isCollection(t reflect.Type) bool {
	t = baseType(t)
	return t.Kind() == reflect.Slice || t.Kind() == reflect.Map || t.Kind() == reflect.Array
}

func baseType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// toSnakeCase mirrors the default column naming of gorm and bun: TeamID -> team_id.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && !unicode.IsUpper(runes[i+1])
			if i > 0 && (prevLower || (nextLower && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
