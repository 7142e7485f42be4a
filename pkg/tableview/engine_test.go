package tableview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlog "gorm.io/gorm/logger"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/common/adapters/database"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/gridapi"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/modelregistry"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/restclient"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/security"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/testmodels"
)

type seenRequest struct {
	method string
	path   string
	query  url.Values
	body   map[string]interface{}
}

// requestLog records every API request that reaches the backend.
type requestLog struct {
	mu       sync.Mutex
	requests []seenRequest
}

func (l *requestLog) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen := seenRequest{method: r.Method, path: r.URL.Path, query: r.URL.Query()}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				_ = json.Unmarshal(data, &seen.body)
			}
			r.Body = io.NopCloser(bytes.NewReader(data))
		}
		l.mu.Lock()
		l.requests = append(l.requests, seen)
		l.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (l *requestLog) count(method, path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.requests {
		if r.method == method && r.path == path {
			n++
		}
	}
	return n
}

func (l *requestLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

func (l *requestLog) last(method, path string) seenRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.requests) - 1; i >= 0; i-- {
		if l.requests[i].method == method && l.requests[i].path == path {
			return l.requests[i]
		}
	}
	return seenRequest{}
}

func newBackend(t *testing.T) (*restclient.Client, *requestLog) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlog.Default.LogMode(gormlog.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, testmodels.MigrateGORM(db))

	now := time.Date(2024, 9, 7, 15, 4, 5, 0, time.UTC)
	require.NoError(t, testmodels.Seed(context.Background(), database.NewGormAdapter(db), now))

	registry := modelregistry.NewModelRegistry()
	require.NoError(t, testmodels.RegisterTestModels(registry))
	handler := gridapi.NewHandlerWithGORM(db, registry)
	handler.SetClock(func() time.Time { return now })
	require.NoError(t, handler.RegisterAction("player", "retire", func(ctx context.Context, db common.Database, id string) (*common.Action, error) {
		_, err := db.NewUpdate().Table("players").SetMap(map[string]interface{}{"active": false}).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return nil, err
		}
		return &common.Action{Action: common.ActionToast, Message: "Player retired"}, nil
	}))

	log := &requestLog{}
	tokens := security.NewStaticTokens(map[string]security.TokenUser{"secret": {UserID: 1, Roles: "Admin"}})
	router := mux.NewRouter()
	gridapi.SetupMuxRoutes(router, handler, log.middleware, security.NewAuthMiddleware(tokens.Authenticate))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	client := restclient.New(server.URL, restclient.NewTokenGate("secret"), restclient.WithHTTPClient(server.Client()))
	return client, log
}

func rowNames(rows []Record) []string {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, displayValue(r["name"]))
	}
	return names
}

func TestEngineEndToEnd(t *testing.T) {
	client, log := newBackend(t)
	ctx := context.Background()
	engine := NewEngine(client, WithPageSize(20))

	// load with a filter taken from the page URL
	require.NoError(t, engine.Load(ctx, "player", url.Values{
		"filter.country_id-operator": {"contains"},
		"filter.country_id-value":    {"egy"},
	}))

	assert.Equal(t, 1, log.count("GET", "/api/config/player"))
	assert.Equal(t, 1, log.count("GET", "/api/config/team"))
	assert.Equal(t, 1, log.count("GET", "/api/config/country"))
	assert.Equal(t, 1, log.count("GET", "/api/config/city"))
	assert.Equal(t, 1, log.count("GET", "/api/players"))

	first := log.last("GET", "/api/players")
	assert.Equal(t, "contains", first.query.Get("country_id-operator"))
	assert.Equal(t, "egy", first.query.Get("country_id-value"))
	assert.Equal(t, "1", first.query.Get("page"))
	assert.Equal(t, "20", first.query.Get("pageSize"))

	assert.Len(t, engine.Rows(), 16)
	assert.Equal(t, int64(16), engine.Stats().Total)
	assert.Equal(t, "2024-09-07T15:04:05Z", engine.Stats().ServerTime)
	assert.Equal(t, []Chip{{Field: "country_id", Text: "Country Contains egy"}}, engine.Chips())
	assert.True(t, engine.Pagination().Exhausted)

	require.NoError(t, engine.OnScroll(ctx, 5000, 800, 5000))
	assert.Equal(t, 1, log.count("GET", "/api/players"), "no request past the last page")

	// remove the filter and scroll through all pages
	require.NoError(t, engine.RemoveFilter(ctx, "country_id"))
	require.NoError(t, engine.RemoveFilter(ctx, "country_id"))
	assert.Equal(t, 2, log.count("GET", "/api/players"), "removing a missing filter does not reload")
	assert.Empty(t, engine.Chips())
	assert.Empty(t, engine.Query())
	assert.Len(t, engine.Rows(), 20)

	require.NoError(t, engine.OnScroll(ctx, 0, 800, 2000))
	assert.Len(t, engine.Rows(), 20, "far from the end")
	require.NoError(t, engine.OnScroll(ctx, 1150, 800, 2000))
	require.NoError(t, engine.OnScroll(ctx, 1150, 800, 2000))
	require.NoError(t, engine.OnScroll(ctx, 1150, 800, 2000))
	assert.Len(t, engine.Rows(), testmodels.SeedPlayerCount)
	assert.Equal(t, 4, log.count("GET", "/api/players"))
	assert.Equal(t, "3", log.last("GET", "/api/players").query.Get("page"))

	// sort cycling
	require.NoError(t, engine.ToggleSort(ctx, "age"))
	assert.Equal(t, "age asc", log.last("GET", "/api/players").query.Get("sort"))
	require.NoError(t, engine.ToggleSort(ctx, "name"))
	require.NoError(t, engine.ToggleSort(ctx, "age"))
	assert.Equal(t, "name asc,age desc", log.last("GET", "/api/players").query.Get("sort"))
	rows := engine.Rows()
	require.Len(t, rows, 20)
	assert.Equal(t, "Player 01", rows[0]["name"])

	header := engine.Header()
	require.Equal(t, "name", header[0].Field)
	assert.Equal(t, "asc", header[0].Sort)
	assert.Equal(t, "desc", header[2].Sort)
	assert.Equal(t, []string{"name asc", "age desc"}, engine.Query()["sort"])

	require.NoError(t, engine.ToggleSort(ctx, "name"))
	require.NoError(t, engine.ToggleSort(ctx, "name"))
	assert.Equal(t, "age desc", log.last("GET", "/api/players").query.Get("sort"))
	assert.Equal(t, float64(34), engine.Rows()[0]["age"])
	assert.ErrorIs(t, engine.ToggleSort(ctx, "height"), ErrUnknownField)

	// filters are committed only when valid
	require.NoError(t, engine.SetFilterInput("age", "between", "18", ""))
	changed, err := engine.CommitFilter(ctx, "age")
	require.NoError(t, err)
	assert.False(t, changed)
	before := log.count("GET", "/api/players")
	require.NoError(t, engine.SetFilterInput("age", "between", "18", "20"))
	changed, err = engine.CommitFilter(ctx, "age")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, before+1, log.count("GET", "/api/players"))
	assert.Equal(t, int64(9), engine.Stats().Total)
	assert.Equal(t, "between", engine.Query().Get("filter.age-operator"))
	require.NoError(t, engine.RemoveFilter(ctx, "age"))
}

func TestEngineEditRow(t *testing.T) {
	client, log := newBackend(t)
	ctx := context.Background()
	engine := NewEngine(client)
	require.NoError(t, engine.Load(ctx, "player", nil))

	row := engine.Rows()[0]
	id := displayValue(row["id"])
	require.NoError(t, engine.EditRow(id))
	assert.ErrorIs(t, engine.NewRow(), ErrEditInProgress)

	edit := engine.Editing()
	require.NotNil(t, edit)
	assert.Equal(t, "Player 01", edit.Values["name"])
	assert.Equal(t, "Al Ahly", edit.Texts["team_id"])
	assert.Equal(t, "Egypt", edit.Texts["country_id"])
	assert.Equal(t, "Cairo", edit.Texts["city_id"])
	assert.NotContains(t, edit.Values, "created_at")

	frags := engine.RenderRow(row)
	assert.Equal(t, FragmentInput, frags[0].Kind)
	assert.Equal(t, FragmentText, frags[len(frags)-1].Kind, "timestamps stay read-only")

	require.NoError(t, engine.SetEditValue("name", ""))
	require.NoError(t, engine.SetEditValue("age", "30"))
	require.NoError(t, engine.Save(ctx))

	put := log.last("PUT", "/api/players/"+id)
	require.NotNil(t, put.body)
	assert.NotContains(t, put.body, "name", "empty values are not sent")
	assert.NotContains(t, put.body, "created_at")
	assert.NotContains(t, put.body, "updated_at")
	assert.Equal(t, float64(30), put.body["age"])

	assert.Nil(t, engine.Editing())
	assert.Equal(t, 2, log.count("GET", "/api/players"), "save reloads the table")
	row = engine.Rows()[0]
	assert.Equal(t, "Player 01", row["name"])
	assert.Equal(t, float64(30), row["age"])

	// cancel reloads an edited row
	require.NoError(t, engine.EditRow(id))
	require.NoError(t, engine.Cancel(ctx))
	assert.Equal(t, 3, log.count("GET", "/api/players"))

	assert.ErrorIs(t, engine.Save(ctx), ErrNotEditing)
	assert.ErrorIs(t, engine.EditRow("9999"), ErrUnknownRecord)
}

func TestEngineSameMasterValueKeepsDependents(t *testing.T) {
	client, _ := newBackend(t)
	ctx := context.Background()
	engine := NewEngine(client)
	require.NoError(t, engine.Load(ctx, "player", nil))
	require.NoError(t, engine.EditRow(displayValue(engine.Rows()[0]["id"])))

	edit := engine.Editing()
	country := edit.Values["country_id"]
	city := edit.Values["city_id"]
	require.NotEmpty(t, country)
	require.NotEmpty(t, city)

	require.NoError(t, engine.SetEditValue("country_id", country))
	edit = engine.Editing()
	assert.Equal(t, city, edit.Values["city_id"])
	assert.Equal(t, "Cairo", edit.Texts["city_id"])
	cities, _ := engine.Selector("city_id")
	require.NotNil(t, cities.Default())
	assert.Equal(t, city, cities.Default().ID)

	require.NoError(t, engine.SetEditValue("country_id", "2"))
	assert.NotContains(t, engine.Editing().Values, "city_id")
	assert.Nil(t, cities.Default())
}

func TestEngineCascadingCreate(t *testing.T) {
	client, log := newBackend(t)
	ctx := context.Background()
	engine := NewEngine(client)
	require.NoError(t, engine.Load(ctx, "player", nil))
	require.NoError(t, engine.NewRow())

	frags := engine.RenderNewRow()
	require.NotEmpty(t, frags)
	assert.Equal(t, FragmentInput, frags[0].Kind)

	cities, ok := engine.Selector("city_id")
	require.True(t, ok)
	cities.Open(ctx)
	assert.Zero(t, log.count("GET", "/api/cities"), "cities wait for a country")

	countries, _ := engine.Selector("country_id")
	countries.Open(ctx)
	assert.Equal(t, []Option{{ID: "1", Name: "Egypt"}, {ID: "3", Name: "England"}, {ID: "2", Name: "Spain"}}, countries.Options())

	require.NoError(t, engine.SetEditValue("country_id", "2"))
	cities.Open(ctx)
	assert.Equal(t, []Option{{ID: "4", Name: "Barcelona"}, {ID: "3", Name: "Madrid"}}, cities.Options())
	req := log.last("GET", "/api/cities")
	assert.Equal(t, "Spain", req.query.Get("country_id-value"))
	assert.Equal(t, "contains", req.query.Get("country_id-operator"))
	assert.Equal(t, "name", req.query.Get("sort"))

	require.NoError(t, engine.SetEditValue("city_id", "3"))
	assert.Equal(t, "Madrid", engine.Editing().Texts["city_id"])

	// switching the country clears the city
	require.NoError(t, engine.SetEditValue("country_id", "1"))
	assert.NotContains(t, engine.Editing().Values, "city_id")
	assert.Empty(t, cities.Options())
	cities.Open(ctx)
	assert.Equal(t, []Option{{ID: "2", Name: "Alexandria"}, {ID: "1", Name: "Cairo"}}, cities.Options())

	teams, _ := engine.Selector("team_id")
	teams.Search(ctx, "ahly")
	require.Equal(t, []Option{{ID: "1", Name: "Al Ahly"}}, teams.Options())
	assert.Equal(t, "ahly", log.last("GET", "/api/teams").query.Get("query"))

	positions, _ := engine.Selector("position")
	positions.Open(ctx)
	assert.Len(t, positions.Options(), 4)
	assert.Zero(t, log.count("GET", "/api/config/enum"))

	for field, value := range map[string]string{
		"name": "New Player", "position": "Forward", "age": "19", "active": "true",
		"team_id": "1", "city_id": "1",
	} {
		require.NoError(t, engine.SetEditValue(field, value))
	}
	assert.ErrorIs(t, engine.SetEditValue("height", "190"), ErrUnknownField)
	require.NoError(t, engine.Save(ctx))

	post := log.last("POST", "/api/players")
	assert.Equal(t, map[string]interface{}{
		"name": "New Player", "position": "Forward", "age": float64(19), "active": true,
		"team_id": "1", "country_id": "1", "city_id": "1",
	}, post.body)
	assert.Equal(t, int64(testmodels.SeedPlayerCount+1), engine.Stats().Total)

	// a new row is dropped on cancel without a request
	require.NoError(t, engine.NewRow())
	before := log.total()
	require.NoError(t, engine.Cancel(ctx))
	assert.Nil(t, engine.Editing())
	assert.Equal(t, before, log.total())
}

func TestEngineDeleteAndActions(t *testing.T) {
	client, log := newBackend(t)
	ctx := context.Background()
	engine := NewEngine(client)
	require.NoError(t, engine.Load(ctx, "player", nil))

	id := displayValue(engine.Rows()[1]["id"])
	require.NoError(t, engine.RunAction(ctx, id, "retire"))
	assert.Equal(t, 1, log.count("GET", "/api/players/"+id+"/retire"))

	assert.ErrorIs(t, engine.RunAction(ctx, id, "transfer"), ErrUnknownAction)
	assert.Zero(t, log.count("GET", "/api/players/"+id+"/transfer"))

	require.NoError(t, engine.Delete(ctx, id))
	assert.Equal(t, 1, log.count("DELETE", "/api/players/"+id))
	assert.Equal(t, int64(testmodels.SeedPlayerCount-1), engine.Stats().Total)
	for _, r := range engine.Rows() {
		assert.NotEqual(t, id, displayValue(r["id"]))
	}

	err := engine.Delete(ctx, id)
	var statusErr *restclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestEngineRendersRows(t *testing.T) {
	client, _ := newBackend(t)
	engine := NewEngine(client)
	require.NoError(t, engine.Load(context.Background(), "player", nil))

	schema := engine.Schema()
	frags := engine.RenderRow(engine.Rows()[0])
	require.Len(t, frags, len(schema.Fields))

	byField := make(map[string]Fragment, len(frags))
	for _, f := range frags {
		byField[f.Field] = f
	}
	assert.Equal(t, Fragment{Kind: FragmentLink, Field: "name", Text: "Player 01", Href: "https://example.com/players/1"}, byField["name"])
	assert.Equal(t, "Goalkeeper", byField["position"].Text)
	assert.Equal(t, "Al Ahly", byField["team_id"].Text)
	assert.Equal(t, "Cairo", byField["city_id"].Text)
	assert.Equal(t, FragmentChart, byField["stats"].Kind)
	assert.Equal(t, []interface{}{float64(0), float64(0), float64(0)}, byField["stats"].ChartData)
	assert.Equal(t, FragmentBlock, byField["bio"].Kind)
	assert.Equal(t, "Sep 7, 2024\n3:04 PM", byField["created_at"].Text)
}

func TestEngineNotLoaded(t *testing.T) {
	engine := NewEngine(&fakeTransport{})
	ctx := context.Background()

	assert.ErrorIs(t, engine.Fetch(ctx, true), ErrNotLoaded)
	assert.ErrorIs(t, engine.NewRow(), ErrNotLoaded)
	assert.Nil(t, engine.Rows())
	assert.Nil(t, engine.Header())
	assert.Equal(t, Stats{}, engine.Stats())
	assert.Equal(t, "", engine.SelectedText("country_id"))
}

func TestEngineLoadUnknownModel(t *testing.T) {
	client, log := newBackend(t)
	engine := NewEngine(client)

	err := engine.Load(context.Background(), "stadium", nil)
	assert.ErrorIs(t, err, ErrConfigNotFound)
	assert.Equal(t, 1, log.count("GET", "/api/config/stadium"))
}

func TestEngineDropsLateResults(t *testing.T) {
	release := make(chan struct{})
	blocked := make(chan struct{})
	var mu sync.Mutex
	listCalls := 0

	transport := &fakeTransport{reply: func(c call) (*restclient.Response, error) {
		switch c.path {
		case "/api/config/team":
			return jsonResponse(common.SchemaConfig{Title: "Teams", APIURL: "/api/teams",
				Fields: []common.FieldConfig{{Name: "name", Label: "Name", Type: common.TypeText}}}), nil
		case "/api/teams":
			mu.Lock()
			listCalls++
			n := listCalls
			mu.Unlock()
			if n == 2 {
				close(blocked)
				<-release
				return jsonResponse(listOf(option(99, "late"))), nil
			}
			return jsonResponse(listOf(option(n, fmt.Sprintf("fresh %d", n)))), nil
		}
		return nil, &restclient.StatusError{Code: http.StatusNotFound}
	}}

	var loading []bool
	var loadingMu sync.Mutex
	engine := NewEngine(transport, WithLoadingObserver(func(l bool) {
		loadingMu.Lock()
		loading = append(loading, l)
		loadingMu.Unlock()
	}))
	ctx := context.Background()
	require.NoError(t, engine.Load(ctx, "team", nil))
	assert.Equal(t, []string{"fresh 1"}, rowNames(engine.Rows()))

	done := make(chan error)
	go func() { done <- engine.Fetch(ctx, true) }()
	<-blocked

	require.NoError(t, engine.Fetch(ctx, true))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"fresh 3"}, rowNames(engine.Rows()))
	assert.False(t, engine.Pagination().Loading)

	loadingMu.Lock()
	defer loadingMu.Unlock()
	assert.Equal(t, false, loading[len(loading)-1])
}

func TestCycleSort(t *testing.T) {
	sorts := CycleSort(nil, "name")
	assert.Equal(t, []common.SortOption{{Column: "name", Direction: "ASC"}}, sorts)

	sorts = CycleSort(sorts, "age")
	sorts = CycleSort(sorts, "name")
	assert.Equal(t, []common.SortOption{
		{Column: "age", Direction: "ASC"},
		{Column: "name", Direction: "DESC"},
	}, sorts)

	sorts = CycleSort(sorts, "name")
	assert.Equal(t, []common.SortOption{{Column: "age", Direction: "ASC"}}, sorts)
}
