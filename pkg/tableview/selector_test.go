package tableview

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/restclient"
)

type staticSelection map[string]string

func (s staticSelection) SelectedText(field string) string { return s[field] }

// pagedOptions serves n named options, pageSize per page. Search text is ignored.
func pagedOptions(prefix string, n, pageSize int) func(c call) (*restclient.Response, error) {
	return func(c call) (*restclient.Response, error) {
		page, _ := strconv.Atoi(c.query.Get("page"))
		var items []map[string]interface{}
		for i := (page-1)*pageSize + 1; i <= n && i <= page*pageSize; i++ {
			items = append(items, option(i, fmt.Sprintf("%s %02d", prefix, i)))
		}
		return jsonResponse(listOf(items...)), nil
	}
}

func loaderFor(t *testing.T, field string, transport *fakeTransport, selection Selection, pageSize int) *SelectorLoader {
	t.Helper()
	set := NewSelectorSet(mustSchema(playerConfig()), transport, selection, pageSize)
	l, ok := set.Loader(field)
	require.True(t, ok)
	return l
}

func optionIDs(opts []Option) []string {
	ids := make([]string, 0, len(opts))
	for _, o := range opts {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestEnumSelectorUsesAllowedValues(t *testing.T) {
	transport := &fakeTransport{}
	l := loaderFor(t, "position", transport, nil, 2)

	l.Open(context.Background())
	assert.Equal(t, []Option{
		{ID: "Goalkeeper", Name: "Goalkeeper"},
		{ID: "Defender", Name: "Defender"},
		{ID: "Midfielder", Name: "Midfielder"},
		{ID: "Forward", Name: "Forward"},
	}, l.Options())
	assert.True(t, l.State().Exhausted)
	assert.Empty(t, transport.recorded(), "enum options need no request")

	l.ScrollEnd(context.Background())
	assert.Len(t, l.Options(), 4)
}

func TestSelectorPaging(t *testing.T) {
	transport := &fakeTransport{reply: pagedOptions("Country", 5, 2)}
	l := loaderFor(t, "country_id", transport, nil, 2)
	ctx := context.Background()

	l.Open(ctx)
	l.Open(ctx)
	assert.Equal(t, []string{"1", "2"}, optionIDs(l.Options()))
	require.Len(t, transport.recorded(), 1, "opening again does not reload")

	c := transport.recorded()[0]
	assert.Equal(t, "/api/countries", c.path)
	assert.Equal(t, "1", c.query.Get("page"))
	assert.Equal(t, "2", c.query.Get("pageSize"))
	assert.Equal(t, "name", c.query.Get("sort"))
	assert.Equal(t, "", c.query.Get("query"))

	l.ScrollEnd(ctx)
	l.ScrollEnd(ctx)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, optionIDs(l.Options()))
	assert.True(t, l.State().Exhausted)

	l.ScrollEnd(ctx)
	assert.Len(t, transport.recorded(), 3, "no request once exhausted")

	l.Search(ctx, "egy")
	calls := transport.recorded()
	require.Len(t, calls, 4)
	assert.Equal(t, "egy", calls[3].query.Get("query"))
	assert.Equal(t, "1", calls[3].query.Get("page"))
	assert.Equal(t, []string{"1", "2"}, optionIDs(l.Options()), "search replaces the list")
	assert.False(t, l.State().Exhausted)

	l.ScrollEnd(ctx)
	assert.Equal(t, "egy", transport.recorded()[4].query.Get("query"), "scrolling keeps the search text")
}

func TestSelectorOpenAfterSearch(t *testing.T) {
	transport := &fakeTransport{reply: pagedOptions("Country", 10, 2)}
	l := loaderFor(t, "country_id", transport, nil, 2)
	ctx := context.Background()

	l.Search(ctx, "egy")
	require.Len(t, transport.recorded(), 1)

	l.Open(ctx)
	calls := transport.recorded()
	require.Len(t, calls, 2, "opening after a search reloads the full list")
	assert.Equal(t, "", calls[1].query.Get("query"))
	assert.Equal(t, "1", calls[1].query.Get("page"))
	assert.Equal(t, []string{"1", "2"}, optionIDs(l.Options()))

	l.ScrollEnd(ctx)
	calls = transport.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "", calls[2].query.Get("query"), "scrolling pages the full list")
	assert.Equal(t, "2", calls[2].query.Get("page"))

	l.Open(ctx)
	assert.Len(t, transport.recorded(), 3, "the unfiltered list is kept")
}

func TestSelectorKeepsDefaultOption(t *testing.T) {
	transport := &fakeTransport{reply: pagedOptions("Country", 3, 20)}
	l := loaderFor(t, "country_id", transport, nil, 20)
	l.SetDefault(&Option{ID: "2", Name: "Country 02"})

	l.Open(context.Background())
	assert.Equal(t, []Option{
		{ID: "2", Name: "Country 02"},
		{ID: "1", Name: "Country 01"},
		{ID: "3", Name: "Country 03"},
	}, l.Options())

	opt, ok := l.Lookup("3")
	assert.True(t, ok)
	assert.Equal(t, "Country 03", opt.Name)
}

func TestSelectorRequiresMaster(t *testing.T) {
	transport := &fakeTransport{reply: pagedOptions("City", 2, 20)}
	selection := staticSelection{}
	l := loaderFor(t, "city_id", transport, selection, 20)
	ctx := context.Background()

	l.Open(ctx)
	assert.Empty(t, transport.recorded(), "no request without a master value")
	assert.False(t, l.State().Loading)

	selection["country_id"] = "Egypt"
	l.Open(ctx)
	calls := transport.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "/api/cities", calls[0].path)
	assert.Equal(t, "contains", calls[0].query.Get("country_id-operator"))
	assert.Equal(t, "Egypt", calls[0].query.Get("country_id-value"))
	assert.Len(t, l.Options(), 2)
}

func TestSelectorFailureClearsLoading(t *testing.T) {
	fail := true
	transport := &fakeTransport{reply: func(c call) (*restclient.Response, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return pagedOptions("Country", 1, 20)(c)
	}}
	l := loaderFor(t, "country_id", transport, nil, 20)

	l.Open(context.Background())
	assert.Equal(t, PaginationState{Page: 1}, l.State())
	assert.Empty(t, l.Options())

	fail = false
	l.Open(context.Background())
	assert.Len(t, l.Options(), 1)
}

func TestMasterChangedResetsDirectDependents(t *testing.T) {
	cfg := playerConfig()
	cfg.Fields = append(cfg.Fields, playerConfig().Fields[9])
	cfg.Fields[len(cfg.Fields)-1].Name = "district_id"
	cfg.Fields[len(cfg.Fields)-1].MasterSelector = "city_id"
	schema := mustSchema(cfg)

	transport := &fakeTransport{reply: pagedOptions("Option", 3, 20)}
	selection := staticSelection{"country_id": "Egypt", "city_id": "Cairo"}
	set := NewSelectorSet(schema, transport, selection, 20)
	ctx := context.Background()

	for _, name := range []string{"country_id", "city_id", "district_id"} {
		l, _ := set.Loader(name)
		l.Open(ctx)
		require.Len(t, l.Options(), 3, name)
	}

	assert.Equal(t, []string{"city_id"}, set.MasterChanged("country_id"))

	city, _ := set.Loader("city_id")
	district, _ := set.Loader("district_id")
	country, _ := set.Loader("country_id")
	assert.Empty(t, city.Options())
	assert.Equal(t, PaginationState{Page: 1}, city.State())
	assert.Len(t, district.Options(), 3, "only direct dependents are reset")
	assert.Len(t, country.Options(), 3)

	assert.Nil(t, set.MasterChanged("age"))
	assert.Nil(t, set.MasterChanged("unknown"))
}
