package gridapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/modelregistry"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// ActionFunc runs a custom row action. A nil action answers with an empty body.
type ActionFunc func(ctx context.Context, db common.Database, id string) (*common.Action, error)

// Handler serves the grid REST API for every model in the registry.
type Handler struct {
	db       common.Database
	registry *modelregistry.DefaultModelRegistry

	mu      sync.RWMutex
	actions map[string]ActionFunc

	pageSize int
	now      func() time.Time
}

// NewHandler creates a new API handler with database and registry abstractions
func NewHandler(db common.Database, registry *modelregistry.DefaultModelRegistry) *Handler {
	return &Handler{
		db:       db,
		registry: registry,
		actions:  make(map[string]ActionFunc),
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
}

// SetDefaultPageSize changes the page size used when a request has none.
func (h *Handler) SetDefaultPageSize(n int) {
	if n > 0 && n <= MaxPageSize {
		h.pageSize = n
	}
}

// SetClock replaces the time source of serverTime and audit columns.
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

// RegisterAction binds a row action declared in the model's extra actions.
func (h *Handler) RegisterAction(modelType, action string, fn ActionFunc) error {
	entry, err := h.registry.GetEntry(modelType)
	if err != nil {
		return err
	}
	declared := false
	for _, a := range entry.Config.Actions {
		if a == action {
			declared = true
			break
		}
	}
	if !declared {
		return fmt.Errorf("action %s is not declared by model %s", action, entry.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions[entry.Name+"/"+action] = fn
	return nil
}

func (h *Handler) action(entry *modelregistry.Entry, action string) ActionFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.actions[entry.Name+"/"+action]
}

// handlePanic is a helper function to handle panics with stack traces
func (h *Handler) handlePanic(w http.ResponseWriter, method string, err interface{}) {
	stack := debug.Stack()
	logger.Error("Panic in %s: %v\nStack trace:\n%s", method, err, string(stack))
	h.sendError(w, http.StatusInternalServerError, "internal_error", fmt.Sprintf("Internal server error in %s", method), fmt.Errorf("%v", err))
}

func (h *Handler) recoverPanic(w http.ResponseWriter, method string) {
	if err := recover(); err != nil {
		h.handlePanic(w, method, err)
	}
}

// HandleConfig serves GET /api/config/{modelType}.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	defer h.recoverPanic(w, "HandleConfig")

	modelType := mux.Vars(r)["modelType"]
	logger.Info("Getting configuration for %s", modelType)

	entry, err := h.registry.GetEntry(modelType)
	if err != nil {
		logger.Warn("Unknown model type %s: %v", modelType, err)
		h.sendError(w, http.StatusNotFound, "invalid_entity", "Unknown model type", err)
		return
	}
	h.sendJSON(w, http.StatusOK, entry.Config)
}

// HandleList serves GET {apiUrl}.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	defer h.recoverPanic(w, "HandleList")
	ctx := r.Context()

	entry, ok := h.entry(w, r)
	if !ok {
		return
	}

	opts, err := h.parseListOptions(r, entry)
	if err != nil {
		logger.Warn("Rejected list request for %s: %v", entry.Name, err)
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid list request", err)
		return
	}

	logger.Info("Listing %s page %d size %d with %d filters", entry.Name, opts.Page, opts.PageSize, len(opts.Filters))

	// count and page use separate builders
	countQuery, err := h.listQuery(entry, opts)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_filter", "Invalid filter", err)
		return
	}
	total, err := countQuery.Count(ctx)
	if err != nil {
		logger.Error("Error counting %s: %v", entry.Name, err)
		h.sendError(w, http.StatusInternalServerError, "query_error", "Error counting records", err)
		return
	}

	pageQuery, _ := h.listQuery(entry, opts)
	pageQuery = pageQuery.ColumnExpr(entry.Table + ".*")
	for _, s := range opts.Sort {
		pageQuery = pageQuery.Order(fmt.Sprintf("%s.%s %s", entry.Table, s.Column, s.Direction))
	}
	if order := entry.DefaultSort(); order != "" {
		pageQuery = pageQuery.Order(order)
	}
	if entry.HasColumn("id") {
		pageQuery = pageQuery.Order(entry.Table + ".id ASC")
	}
	pageQuery = pageQuery.Limit(opts.PageSize).Offset(opts.Offset())

	var items []map[string]interface{}
	if err := pageQuery.Scan(ctx, &items); err != nil {
		logger.Error("Error listing %s: %v", entry.Name, err)
		h.sendError(w, http.StatusInternalServerError, "query_error", "Error executing query", err)
		return
	}

	h.prepareRecords(ctx, entry, items)
	logger.Debug("Found %d of %d %s records", len(items), total, entry.Name)
	h.sendJSON(w, http.StatusOK, common.NewListResponse(items, int64(total), opts, h.now()))
}

// HandleGet serves GET {apiUrl}/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	defer h.recoverPanic(w, "HandleGet")

	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	record, err := h.fetchRecord(r.Context(), entry, mux.Vars(r)["id"])
	switch {
	case errors.Is(err, errNotFound):
		h.sendError(w, http.StatusNotFound, "not_found", "Record not found", nil)
		return
	case err != nil:
		h.sendError(w, http.StatusInternalServerError, "query_error", "Error executing query", err)
		return
	}
	h.sendJSON(w, http.StatusOK, record)
}

var errNotFound = errors.New("record not found")

func (h *Handler) fetchRecord(ctx context.Context, entry *modelregistry.Entry, id string) (map[string]interface{}, error) {
	query := h.db.NewSelect().Table(entry.Table).
		ColumnExpr(entry.Table+".*").
		Where(entry.Table+".id = ?", entry.CleanID(id))
	if condition := entry.FetchConditions(); condition != "" {
		query = query.Where(condition)
	}

	var rows []map[string]interface{}
	err := query.Limit(1).Scan(ctx, &rows)
	if err != nil {
		logger.Error("Error reading %s %s: %v", entry.Name, id, err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errNotFound
	}
	h.prepareRecords(ctx, entry, rows)
	return rows[0], nil
}

// HandleCreate serves POST {apiUrl}.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	defer h.recoverPanic(w, "HandleCreate")

	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}

	values := h.writableValues(entry, body, true)
	if len(values) == 0 {
		h.sendError(w, http.StatusBadRequest, "invalid_data", "No writable fields in request body", nil)
		return
	}

	logger.Info("Creating %s record", entry.Name)
	query := h.db.NewInsert().Table(entry.Table)
	for column, value := range values {
		query = query.Value(column, value)
	}
	if _, err := query.Exec(r.Context()); err != nil {
		logger.Error("Error creating %s record: %v", entry.Name, err)
		h.sendError(w, http.StatusInternalServerError, "create_error", "Error creating record", err)
		return
	}

	maskSensitive(entry, values)
	h.sendJSON(w, http.StatusCreated, values)
}

// HandleUpdate serves PUT {apiUrl}/{id}. Masked passwords in the body keep the stored value.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	defer h.recoverPanic(w, "HandleUpdate")

	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	body, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	id := entry.CleanID(mux.Vars(r)["id"])

	values := h.writableValues(entry, body, false)
	if len(values) == 0 {
		h.sendError(w, http.StatusBadRequest, "invalid_data", "No writable fields in request body", nil)
		return
	}

	logger.Info("Updating %s record %s", entry.Name, id)
	result, err := h.db.NewUpdate().Table(entry.Table).
		SetMap(values).
		Where("id = ?", id).
		Exec(r.Context())
	if err != nil {
		logger.Error("Update error: %v", err)
		h.sendError(w, http.StatusInternalServerError, "update_error", "Error updating record", err)
		return
	}
	if result.RowsAffected() == 0 {
		h.sendError(w, http.StatusNotFound, "not_found", "No records found to update", nil)
		return
	}

	record, err := h.fetchRecord(r.Context(), entry, id)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "query_error", "Error reading updated record", err)
		return
	}
	h.sendJSON(w, http.StatusOK, record)
}

// HandleDelete serves DELETE {apiUrl}/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	defer h.recoverPanic(w, "HandleDelete")

	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	id := entry.CleanID(mux.Vars(r)["id"])
	logger.Info("Deleting %s record %s", entry.Name, id)

	result, err := h.db.NewDelete().Table(entry.Table).Where("id = ?", id).Exec(r.Context())
	if err != nil {
		logger.Error("Error deleting %s record %s: %v", entry.Name, id, err)
		h.sendError(w, http.StatusInternalServerError, "delete_error", "Error deleting record", err)
		return
	}
	if result.RowsAffected() == 0 {
		h.sendError(w, http.StatusNotFound, "not_found", "Record not found", nil)
		return
	}
	h.sendJSON(w, http.StatusOK, common.Action{Action: common.ActionToast, Message: "Record deleted"})
}

// HandleAction serves GET {apiUrl}/{id}/{action}.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	defer h.recoverPanic(w, "HandleAction")

	entry, ok := h.entry(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	fn := h.action(entry, vars["action"])
	if fn == nil {
		h.sendError(w, http.StatusNotFound, "invalid_action", fmt.Sprintf("Unknown action %s", vars["action"]), nil)
		return
	}

	id := entry.CleanID(vars["id"])
	logger.Info("Running action %s on %s record %s", vars["action"], entry.Name, id)
	act, err := fn(r.Context(), h.db, id)
	if err != nil {
		logger.Error("Action %s on %s failed: %v", vars["action"], entry.Name, err)
		h.sendError(w, http.StatusInternalServerError, "action_error", "Error running action", err)
		return
	}
	if act == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.sendJSON(w, http.StatusOK, act)
}

func (h *Handler) entry(w http.ResponseWriter, r *http.Request) (*modelregistry.Entry, bool) {
	entity := mux.Vars(r)["entity"]
	entry, err := h.registry.GetEntryByPath(entity)
	if err != nil {
		logger.Error("Invalid entity: %v", err)
		h.sendError(w, http.StatusNotFound, "invalid_entity", "Invalid entity", err)
		return nil, false
	}
	return entry, true
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]interface{}, bool) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Error("Failed to decode request body: %v", err)
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", err)
		return nil, false
	}
	return body, true
}

func (h *Handler) parseListOptions(r *http.Request, entry *modelregistry.Entry) (common.ListOptions, error) {
	values := r.URL.Query()
	opts := common.ListOptions{
		Page:     positiveInt(values.Get("page"), 1),
		PageSize: positiveInt(values.Get("pageSize"), h.pageSize),
		Query:    strings.TrimSpace(values.Get("query")),
	}
	if opts.PageSize > MaxPageSize {
		opts.PageSize = MaxPageSize
	}

	for _, field := range entry.Config.Fields {
		operator := values.Get(field.Name + "-operator")
		if operator == "" {
			continue
		}
		opts.Filters = append(opts.Filters, common.FilterOption{
			Column:   field.Name,
			Operator: operator,
			Value:    values.Get(field.Name + "-value"),
			Value2:   values.Get(field.Name + "-value2"),
		})
	}

	for _, s := range common.ParseSort(values["sort"]...) {
		if !entry.HasColumn(s.Column) {
			return opts, fmt.Errorf("invalid sort column: %s", s.Column)
		}
		opts.Sort = append(opts.Sort, s)
	}
	return opts, nil
}

func positiveInt(value string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// listQuery builds the filtered FROM/WHERE part shared by the count and the page query.
func (h *Handler) listQuery(entry *modelregistry.Entry, opts common.ListOptions) (common.SelectQuery, error) {
	query := h.db.NewSelect().Table(entry.Table)

	for _, filter := range opts.Filters {
		field, _ := entry.Config.Field(filter.Column)
		column := entry.Table + "." + field.Name
		fieldType := field.Type

		switch {
		case field.IsReference():
			ref, err := h.registry.GetEntry(field.SelectorOf)
			if err != nil {
				return nil, err
			}
			alias := "ref_" + field.Name
			query = query.Join(fmt.Sprintf("LEFT JOIN %s AS %s ON %s.id = %s", ref.Table, alias, alias, column))
			column = alias + ".name"
			fieldType = common.TypeText
		case field.IsEnum():
			fieldType = common.TypeText
		}

		clause, args, err := common.FilterClause(fieldType, column, filter)
		if err != nil {
			return nil, err
		}
		logger.Debug("Applying filter: %s %v", clause, args)
		query = query.Where(clause, args...)
	}

	if condition := entry.FetchConditions(); condition != "" {
		query = query.Where(condition)
	}

	if opts.Query != "" && entry.HasColumn("name") {
		query = query.Where(fmt.Sprintf("LOWER(%s.name) LIKE ?", entry.Table), "%"+strings.ToLower(opts.Query)+"%")
	}
	return query, nil
}

// writableValues keeps the body keys that are real, editable columns.
func (h *Handler) writableValues(entry *modelregistry.Entry, body map[string]interface{}, creating bool) map[string]interface{} {
	sensitive := make(map[string]bool)
	for _, name := range entry.SensitiveFields() {
		sensitive[name] = true
	}

	values := make(map[string]interface{}, len(body))
	for column, value := range body {
		if column == "id" || common.IsTimestamp(column) || !entry.HasColumn(column) {
			continue
		}
		if sensitive[column] && value == common.MaskedValue {
			continue
		}
		switch value.(type) {
		case map[string]interface{}, []interface{}:
			encoded, err := json.Marshal(value)
			if err != nil {
				continue
			}
			value = string(encoded)
		}
		values[column] = value
	}
	if len(values) == 0 {
		return values
	}
	entry.PreUpdate(values)

	now := h.now()
	if entry.HasColumn("updated_at") {
		values["updated_at"] = now
	}
	if creating && entry.HasColumn("created_at") {
		values["created_at"] = now
	}
	return values
}

// prepareRecords normalises driver values, embeds referenced records and masks secrets.
func (h *Handler) prepareRecords(ctx context.Context, entry *modelregistry.Entry, records []map[string]interface{}) {
	for _, record := range records {
		for k, v := range record {
			if b, ok := v.([]byte); ok {
				record[k] = string(b)
			}
		}
	}
	h.embedReferences(ctx, entry, records)
	for _, record := range records {
		maskSensitive(entry, record)
	}
}

// embedReferences stores {id, name} of each referenced record under the field's selectorOf key.
func (h *Handler) embedReferences(ctx context.Context, entry *modelregistry.Entry, records []map[string]interface{}) {
	if len(records) == 0 {
		return
	}
	for _, field := range entry.Config.Fields {
		if !field.IsReference() {
			continue
		}
		ref, err := h.registry.GetEntry(field.SelectorOf)
		if err != nil {
			logger.Warn("Cannot embed %s of %s: %v", field.SelectorOf, entry.Name, err)
			continue
		}

		seen := make(map[string]bool)
		var ids []interface{}
		for _, record := range records {
			if v := record[field.Name]; v != nil && !seen[fmt.Sprint(v)] {
				seen[fmt.Sprint(v)] = true
				ids = append(ids, v)
			}
		}
		if len(ids) == 0 {
			continue
		}

		columns := ref.Table + ".id"
		if ref.HasColumn("name") {
			columns += ", " + ref.Table + ".name"
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

		var related []map[string]interface{}
		err = h.db.NewSelect().Table(ref.Table).
			ColumnExpr(columns).
			Where(fmt.Sprintf("%s.id IN (%s)", ref.Table, placeholders), ids...).
			Scan(ctx, &related)
		if err != nil {
			logger.Warn("Failed to load %s references of %s: %v", field.SelectorOf, entry.Name, err)
			continue
		}

		byID := make(map[string]map[string]interface{}, len(related))
		for _, rel := range related {
			if b, ok := rel["name"].([]byte); ok {
				rel["name"] = string(b)
			}
			byID[fmt.Sprint(rel["id"])] = rel
		}
		for _, record := range records {
			if rel, ok := byID[fmt.Sprint(record[field.Name])]; ok {
				record[field.SelectorOf] = rel
			}
		}
	}
}

func maskSensitive(entry *modelregistry.Entry, record map[string]interface{}) {
	for _, name := range entry.SensitiveFields() {
		if _, ok := record[name]; ok {
			record[name] = common.MaskedValue
		}
	}
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func (h *Handler) sendError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	detail := ""
	if details != nil {
		detail = fmt.Sprintf("%v", details)
	}
	h.sendJSON(w, status, common.Response{
		Success: false,
		Error: &common.APIError{
			Code:    code,
			Message: message,
			Detail:  detail,
		},
	})
}
