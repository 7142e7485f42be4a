package gridview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/gorilla/mux"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/logger"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/restclient"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/security"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/tableview"
)

// TokenCookie carries the bearer token of browser sessions.
const TokenCookie = "token"

// maxSeekPages bounds the pages fetched while looking for a record or page.
const maxSeekPages = 100

// View serves server-rendered grids. Every request drives its own
// tableview.Engine against the REST backend with the caller's token.
type View struct {
	prefix     string
	apiBaseURL string
	loginPath  string
	pageSize   int
	httpClient *http.Client
	renderer   tableview.Renderer
	templates  *pongo2.TemplateSet
}

type Option func(*View)

// WithAPIBaseURL fixes the backend address. By default the request host is used.
func WithAPIBaseURL(base string) Option {
	return func(v *View) { v.apiBaseURL = strings.TrimSuffix(base, "/") }
}

func WithPrefix(prefix string) Option {
	return func(v *View) { v.prefix = "/" + strings.Trim(prefix, "/") }
}

func WithLoginPath(path string) Option {
	return func(v *View) { v.loginPath = path }
}

func WithPageSize(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.pageSize = n
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(v *View) { v.httpClient = hc }
}

func WithRenderer(r tableview.Renderer) Option {
	return func(v *View) { v.renderer = r }
}

func New(opts ...Option) *View {
	v := &View{
		prefix:    "/model",
		loginPath: "/login",
		pageSize:  20,
		templates: pongo2.NewSet("gridview", pongo2.NewFSLoader(TemplatesFS())),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetupMuxRoutes mounts the grid pages under the view prefix (default /model).
//
//	GET  /model/{modelType}
//	GET  /model/{modelType}/rows?page=N
//	GET  /model/{modelType}/options/{field}
//	POST /model/{modelType}/save
//	POST /model/{modelType}/delete/{id}
//	POST /model/{modelType}/action/{id}/{action}
func SetupMuxRoutes(muxRouter *mux.Router, view *View, middlewares ...mux.MiddlewareFunc) *mux.Router {
	pages := muxRouter.PathPrefix(view.prefix).Subrouter()
	pages.Use(middlewares...)

	pages.HandleFunc("/{modelType}", view.HandlePage).Methods("GET")
	pages.HandleFunc("/{modelType}/rows", view.HandleRows).Methods("GET")
	pages.HandleFunc("/{modelType}/options/{field}", view.HandleOptions).Methods("GET")
	pages.HandleFunc("/{modelType}/save", view.HandleSave).Methods("POST")
	pages.HandleFunc("/{modelType}/delete/{id}", view.HandleDelete).Methods("POST")
	pages.HandleFunc("/{modelType}/action/{id}/{action}", view.HandleAction).Methods("POST")
	return pages
}

// session collects what the transport reports during one request.
type session struct {
	engine *tableview.Engine
	client *restclient.Client

	mu       sync.Mutex
	notices  []string
	redirect string
}

func (s *session) Notify(kind, title, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if kind == restclient.NotifyError {
		return
	}
	s.notices = append(s.notices, message)
}

func (s *session) notice(fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return fallback
	}
	return strings.Join(s.notices, " ")
}

func requestToken(r *http.Request) string {
	if token, err := security.BearerToken(r); err == nil {
		return token
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func (v *View) apiBase(r *http.Request) string {
	if v.apiBaseURL != "" {
		return v.apiBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// newSession returns nil after redirecting to login when the request has no token.
func (v *View) newSession(w http.ResponseWriter, r *http.Request) *session {
	token := requestToken(r)
	if token == "" {
		v.redirectToLogin(w, r)
		return nil
	}

	s := &session{}
	dispatcher := &restclient.DefaultDispatcher{
		Notifier: s,
		OnRedirect: func(_ context.Context, target string) {
			s.mu.Lock()
			s.redirect = target
			s.mu.Unlock()
		},
	}
	opts := []restclient.Option{restclient.WithNotifier(s), restclient.WithDispatcher(dispatcher)}
	if v.httpClient != nil {
		opts = append(opts, restclient.WithHTTPClient(v.httpClient))
	}
	s.client = restclient.New(v.apiBase(r), restclient.NewTokenGate(token), opts...)
	s.engine = tableview.NewEngine(s.client, tableview.WithPageSize(v.pageSize), tableview.WithRenderer(v.renderer))
	return s
}

func (v *View) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := v.loginPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (v *View) basePath(modelType string) string {
	return v.prefix + "/" + url.PathEscape(modelType)
}

// HandlePage renders the full grid. ?edit=<id> opens a row for editing and
// ?new=1 opens an empty row.
func (v *View) HandlePage(w http.ResponseWriter, r *http.Request) {
	modelType := mux.Vars(r)["modelType"]
	s := v.newSession(w, r)
	if s == nil {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	if err := s.engine.Load(ctx, modelType, q); err != nil {
		v.fail(w, r, err)
		return
	}
	if id := q.Get(paramEdit); id != "" {
		if err := seekRecord(ctx, s.engine, id); err != nil {
			v.fail(w, r, err)
			return
		}
		if err := s.engine.EditRow(id); err != nil {
			v.fail(w, r, err)
			return
		}
	} else if q.Get(paramNew) != "" {
		if err := s.engine.NewRow(); err != nil {
			v.fail(w, r, err)
			return
		}
	}

	base := baseQuery(s.engine)
	basePath := v.basePath(modelType)
	newQuery := copyValues(base)
	newQuery.Set(paramNew, "1")
	stats := s.engine.Stats()

	page := &Page{
		Title:      s.engine.Schema().Config.Title,
		ModelType:  modelType,
		BaseURL:    basePath,
		NewURL:     withQuery(basePath, newQuery),
		CancelURL:  withQuery(basePath, base),
		SaveURL:    basePath + "/save",
		NextURL:    nextURL(s.engine, base, basePath),
		Return:     base.Encode(),
		Notice:     q.Get(paramNotice),
		NoticeKind: q.Get(paramNoticeKind),
		ServerTime: textHTML(v.renderer.FormatDate(stats.ServerTime)),
		Stats:      stats,
		Columns:    v.columns(s.engine, base, basePath),
		Chips:      v.chips(s.engine, base, basePath),
		Rows:       v.rows(ctx, s.engine, s.engine.Rows(), base, basePath),
	}
	page.ColumnCount = len(page.Columns) + 1
	if edit := s.engine.Editing(); edit != nil {
		page.Editing = true
		page.EditID = edit.ID
	}
	if page.NoticeKind == "" && page.Notice != "" {
		page.NoticeKind = restclient.NotifySuccess
	}

	v.render(w, http.StatusOK, "grid.tmpl", page)
}

// HandleRows renders the rows of one page, for infinite scrolling.
func (v *View) HandleRows(w http.ResponseWriter, r *http.Request) {
	modelType := mux.Vars(r)["modelType"]
	s := v.newSession(w, r)
	if s == nil {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	target, err := strconv.Atoi(q.Get(paramPage))
	if err != nil || target < 1 {
		target = 1
	}
	if err := s.engine.Load(ctx, modelType, q); err != nil {
		v.fail(w, r, err)
		return
	}
	if err := seekPage(ctx, s.engine, target); err != nil {
		v.fail(w, r, err)
		return
	}

	records := s.engine.Rows()
	from := (target - 1) * v.pageSize
	if from > len(records) {
		from = len(records)
	}

	base := baseQuery(s.engine)
	basePath := v.basePath(modelType)
	page := &Page{
		ModelType: modelType,
		BaseURL:   basePath,
		NextURL:   nextURL(s.engine, base, basePath),
		Return:    base.Encode(),
		Rows:      v.rows(ctx, s.engine, records[from:], base, basePath),
	}
	page.ColumnCount = len(s.engine.Header()) + 1

	v.render(w, http.StatusOK, "rows.tmpl", page)
}

type optionsResponse struct {
	Options   []tableview.Option `json:"options"`
	Exhausted bool               `json:"exhausted"`
}

// HandleOptions returns select options as JSON. Query: query (search text), page,
// master (display text of the master select).
func (v *View) HandleOptions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s := v.newSession(w, r)
	if s == nil {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	schema, err := tableview.NewSchemaLoader(s.client).LoadSchema(ctx, vars["modelType"])
	if err != nil {
		v.fail(w, r, err)
		return
	}
	field, ok := schema.Field(vars["field"])
	if !ok || field.Kind != common.KindSelect {
		v.fail(w, r, fmt.Errorf("%w: %s", tableview.ErrUnknownField, vars["field"]))
		return
	}

	selection := masterSelection{}
	if field.Master != nil {
		selection[field.Master.Name] = q.Get("master")
	}
	loader, _ := tableview.NewSelectorSet(schema, s.client, selection, v.pageSize).Loader(field.Name)
	loader.Search(ctx, q.Get("query"))

	pages, err := strconv.Atoi(q.Get(paramPage))
	if err != nil || pages > maxSeekPages {
		pages = 1
	}
	for i := 1; i < pages && !loader.State().Exhausted; i++ {
		loader.ScrollEnd(ctx)
	}

	resp := optionsResponse{Options: loader.Options(), Exhausted: loader.State().Exhausted}
	if resp.Options == nil {
		resp.Options = []tableview.Option{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("Failed to encode options: %v", err)
	}
}

type masterSelection map[string]string

func (m masterSelection) SelectedText(field string) string { return m[field] }

// HandleSave creates (empty id) or updates a record from the edit form.
func (v *View) HandleSave(w http.ResponseWriter, r *http.Request) {
	modelType := mux.Vars(r)["modelType"]
	s := v.newSession(w, r)
	if s == nil {
		return
	}
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		v.fail(w, r, err)
		return
	}
	ret := returnQuery(r)
	if err := s.engine.Load(ctx, modelType, ret); err != nil {
		v.fail(w, r, err)
		return
	}

	id := r.PostForm.Get("id")
	var err error
	if id == "" {
		err = s.engine.NewRow()
	} else if err = seekRecord(ctx, s.engine, id); err == nil {
		err = s.engine.EditRow(id)
	}
	if err != nil {
		v.fail(w, r, err)
		return
	}

	for _, f := range editOrder(s.engine.Schema()) {
		value, present := r.PostForm[f.Name]
		switch {
		case f.Type == common.TypeBool:
			checked := present && len(value) > 0 && value[len(value)-1] == "true"
			err = s.engine.SetEditValue(f.Name, strconv.FormatBool(checked))
		case present && len(value) > 0:
			err = s.engine.SetEditValue(f.Name, value[len(value)-1])
		default:
			continue
		}
		if err != nil {
			v.fail(w, r, err)
			return
		}
	}

	if err := s.engine.Save(ctx); err != nil {
		v.afterMutation(w, r, s, modelType, ret, err, "")
		return
	}
	v.afterMutation(w, r, s, modelType, ret, nil, "Record saved")
}

// HandleDelete removes a record.
func (v *View) HandleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s := v.newSession(w, r)
	if s == nil {
		return
	}
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		v.fail(w, r, err)
		return
	}
	ret := returnQuery(r)
	if err := s.engine.Load(ctx, vars["modelType"], ret); err != nil {
		v.fail(w, r, err)
		return
	}
	err := s.engine.Delete(ctx, vars["id"])
	v.afterMutation(w, r, s, vars["modelType"], ret, err, "Record deleted")
}

// HandleAction runs a row action. A Redirect action in the response wins over
// going back to the grid.
func (v *View) HandleAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s := v.newSession(w, r)
	if s == nil {
		return
	}
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		v.fail(w, r, err)
		return
	}
	ret := returnQuery(r)
	if err := s.engine.Load(ctx, vars["modelType"], ret); err != nil {
		v.fail(w, r, err)
		return
	}
	err := s.engine.RunAction(ctx, vars["id"], vars["action"])
	if err == nil {
		s.mu.Lock()
		target := s.redirect
		s.mu.Unlock()
		if target != "" {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
	}
	v.afterMutation(w, r, s, vars["modelType"], ret, err, "Done")
}

func returnQuery(r *http.Request) url.Values {
	q, err := url.ParseQuery(r.PostForm.Get(paramReturn))
	if err != nil {
		return url.Values{}
	}
	return q
}

// afterMutation sends the browser back to the grid with a notice.
func (v *View) afterMutation(w http.ResponseWriter, r *http.Request, s *session, modelType string, ret url.Values, err error, done string) {
	if err != nil && isAuthError(err) {
		v.redirectToLogin(w, r)
		return
	}

	q := copyValues(ret)
	for _, k := range viewParams {
		q.Del(k)
	}
	if err != nil {
		logger.Warn("Grid %s request failed: %v", modelType, err)
		q.Set(paramNotice, err.Error())
		q.Set(paramNoticeKind, restclient.NotifyError)
	} else {
		q.Set(paramNotice, s.notice(done))
		q.Set(paramNoticeKind, restclient.NotifySuccess)
	}
	http.Redirect(w, r, withQuery(v.basePath(modelType), q), http.StatusSeeOther)
}

func isAuthError(err error) bool {
	return errors.Is(err, restclient.ErrUnauthenticated) || errors.Is(err, restclient.ErrUnauthorized)
}

func (v *View) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isAuthError(err):
		v.redirectToLogin(w, r)
	case errors.Is(err, tableview.ErrConfigNotFound):
		v.renderError(w, http.StatusNotFound, "Page not found", err)
	case errors.Is(err, tableview.ErrUnknownRecord),
		errors.Is(err, tableview.ErrUnknownField),
		errors.Is(err, tableview.ErrUnknownAction):
		v.renderError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, tableview.ErrEditInProgress), errors.Is(err, tableview.ErrNotEditing):
		v.renderError(w, http.StatusConflict, "Conflict", err)
	default:
		v.renderError(w, http.StatusBadGateway, "Backend error", err)
	}
}

type errorPage struct {
	Title   string
	Message string
}

func (v *View) renderError(w http.ResponseWriter, status int, title string, err error) {
	logger.Warn("Grid page failed with %d: %v", status, err)
	v.render(w, status, "error.tmpl", &errorPage{Title: title, Message: err.Error()})
}

func (v *View) render(w http.ResponseWriter, status int, name string, page interface{}) {
	tmpl, err := v.templates.FromCache(name)
	if err != nil {
		logger.Error("Failed to load template %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	err = tmpl.ExecuteWriter(pongo2.Context{
		"page":     page,
		"readMore": tableview.ReadMoreLabel,
		"readLess": tableview.ReadLessLabel,
	}, &buf)
	if err != nil {
		logger.Error("Failed to execute template %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Debug("Failed to write %s: %v", name, err)
	}
}

// seekRecord fetches pages until the record is loaded.
func seekRecord(ctx context.Context, e *tableview.Engine, id string) error {
	for i := 0; i < maxSeekPages; i++ {
		for _, record := range e.Rows() {
			if tableview.RecordID(record) == id {
				return nil
			}
		}
		if e.Pagination().Exhausted {
			break
		}
		if err := e.Fetch(ctx, false); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s", tableview.ErrUnknownRecord, id)
}

// seekPage fetches pages until page n is loaded or the list ends.
func seekPage(ctx context.Context, e *tableview.Engine, n int) error {
	for i := 0; i < maxSeekPages; i++ {
		st := e.Pagination()
		if st.Exhausted || st.Page > n {
			return nil
		}
		if err := e.Fetch(ctx, false); err != nil {
			return err
		}
	}
	return nil
}

// editOrder puts masters before their dependents, so setting a master does not
// clear a dependent value sent in the same form.
func editOrder(schema *tableview.Schema) []*tableview.Field {
	depth := func(f *tableview.Field) int {
		d := 0
		for m := f.Master; m != nil && d < len(schema.Fields); m = m.Master {
			d++
		}
		return d
	}
	fields := append([]*tableview.Field(nil), schema.Fields...)
	sort.SliceStable(fields, func(i, j int) bool { return depth(fields[i]) < depth(fields[j]) })

	out := fields[:0]
	for _, f := range fields {
		if common.IsTimestamp(f.Name) || f.Kind == common.KindChart {
			continue
		}
		out = append(out, f)
	}
	return out
}
