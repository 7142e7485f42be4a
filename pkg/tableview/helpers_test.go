package tableview

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
	"github.com/ahmedsaleh747/go-creative-utils/pkg/restclient"
)

var fixedNow = time.Date(2024, 9, 7, 15, 4, 5, 0, time.UTC)

type call struct {
	method string
	path   string
	query  url.Values
	body   interface{}
}

// fakeTransport records calls and answers them through reply.
type fakeTransport struct {
	mu    sync.Mutex
	calls []call
	reply func(c call) (*restclient.Response, error)
}

func (f *fakeTransport) Get(ctx context.Context, path string, query url.Values) (*restclient.Response, error) {
	return f.record(call{method: "GET", path: path, query: query})
}

func (f *fakeTransport) Do(ctx context.Context, method, path string, body interface{}) (*restclient.Response, error) {
	return f.record(call{method: method, path: path, body: body})
}

func (f *fakeTransport) record(c call) (*restclient.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	reply := f.reply
	f.mu.Unlock()
	if reply == nil {
		return &restclient.Response{Status: 200}, nil
	}
	return reply(c)
}

func (f *fakeTransport) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeTransport) count(method, path string) int {
	n := 0
	for _, c := range f.recorded() {
		if c.method == method && c.path == path {
			n++
		}
	}
	return n
}

func jsonResponse(v interface{}) *restclient.Response {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return &restclient.Response{Status: 200, Body: data}
}

func listOf(items ...map[string]interface{}) common.ListResponse {
	return common.NewListResponse(items, int64(len(items)), common.ListOptions{Page: 1, PageSize: 20}, fixedNow)
}

func option(id int, name string) map[string]interface{} {
	return map[string]interface{}{"id": id, "name": name}
}

// playerConfig mirrors what the backend serves for a player-like model.
func playerConfig() common.SchemaConfig {
	return common.SchemaConfig{
		Title:  "Players",
		APIURL: "/api/players",
		Fields: []common.FieldConfig{
			{Name: "name", Label: "Name", Type: common.TypeText, Href: "profile_url"},
			{Name: "position", Label: "Position", Type: common.TypeSelect, SelectorOf: common.EnumSelector,
				AllowedValues: []string{"Goalkeeper", "Defender", "Midfielder", "Forward"}, ShortSpan: true},
			{Name: "age", Label: "Age", Type: common.TypeNumber, ShortSpan: true},
			{Name: "active", Label: "Active", Type: common.TypeBool},
			{Name: "bio", Label: "Bio", Type: common.TypeText, Block: true, Optional: true},
			{Name: "stats", Label: "Stats", Type: common.TypeText, ChartData: true, Optional: true},
			{Name: "labels", Label: "Labels", Type: common.TypeText, Tags: true, Optional: true},
			{Name: "secret", Label: "Secret", Type: common.TypePassword},
			{Name: "country_id", Label: "Country", Type: common.TypeSelect, SelectorOf: "country"},
			{Name: "city_id", Label: "City", Type: common.TypeSelect, SelectorOf: "city", MasterSelector: "country_id"},
			{Name: "created_at", Label: "Created At", Type: common.TypeDate},
		},
		Actions: []string{"retire"},
	}
}

func mustSchema(cfg common.SchemaConfig) *Schema {
	s, err := NewSchema(cfg)
	if err != nil {
		panic(err)
	}
	s.Dependencies["country"] = &common.SchemaConfig{Title: "Countries", APIURL: "/api/countries",
		Fields: []common.FieldConfig{{Name: "name", Label: "Name", Type: common.TypeText}}}
	s.Dependencies["city"] = &common.SchemaConfig{Title: "Cities", APIURL: "/api/cities",
		Fields: []common.FieldConfig{{Name: "name", Label: "Name", Type: common.TypeText}}}
	return s
}
