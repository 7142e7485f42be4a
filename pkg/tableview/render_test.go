package tableview

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
)

func sampleRecord() Record {
	return Record{
		"id":          float64(7),
		"name":        "Mo Salah",
		"profile_url": "https://example.com/salah",
		"position":    "Forward",
		"age":         float64(32),
		"active":      true,
		"bio":         strings.Repeat("a", 119) + "\nsecond line",
		"stats":       `{"sensorData":[1,2.5,3]}`,
		"labels":      "captain, , left-footed ,",
		"secret":      "****",
		"country_id":  float64(1),
		"country":     map[string]interface{}{"id": float64(1), "name": "Egypt"},
		"city_id":     nil,
		"created_at":  "2024-09-07T15:04:05Z",
	}
}

func renderField(t *testing.T, record Record, name string, edit bool) Fragment {
	t.Helper()
	f, ok := mustSchema(playerConfig()).Field(name)
	require.True(t, ok)
	return Render(record, f, edit)
}

func TestRenderReadMode(t *testing.T) {
	r := sampleRecord()

	tests := []struct {
		field string
		want  Fragment
	}{
		{"name", Fragment{Kind: FragmentLink, Field: "name", Text: "Mo Salah", Href: "https://example.com/salah"}},
		{"position", Fragment{Kind: FragmentText, Field: "position", Text: "Forward"}},
		{"age", Fragment{Kind: FragmentText, Field: "age", Text: "32"}},
		{"active", Fragment{Kind: FragmentText, Field: "active", Text: "true"}},
		{"stats", Fragment{Kind: FragmentChart, Field: "stats", Text: "Show Chart", ChartTitle: "Mo Salah",
			ChartData: []interface{}{float64(1), 2.5, float64(3)}}},
		{"labels", Fragment{Kind: FragmentTags, Field: "labels", Tags: []string{"captain", "left-footed"}}},
		{"secret", Fragment{Kind: FragmentText, Field: "secret", Text: "****"}},
		{"country_id", Fragment{Kind: FragmentText, Field: "country_id", Text: "Egypt"}},
		{"city_id", Fragment{Kind: FragmentText, Field: "city_id", Text: ""}},
		{"created_at", Fragment{Kind: FragmentText, Field: "created_at", Text: "Sep 7, 2024\n3:04 PM"}},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, renderField(t, r, tt.field, false)); diff != "" {
				t.Errorf("fragment mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderBlock(t *testing.T) {
	r := sampleRecord()
	frag := renderField(t, r, "bio", false)

	assert.Equal(t, FragmentBlock, frag.Kind)
	assert.True(t, frag.Truncated)
	assert.Equal(t, r["bio"], frag.Text)
	assert.Equal(t, strings.Repeat("a", 119)+"\n...", frag.Short)

	r["bio"] = "short bio"
	frag = renderField(t, r, "bio", false)
	assert.False(t, frag.Truncated)
	assert.Equal(t, "short bio", frag.Short)

	r["bio"] = strings.Repeat("é", 120)
	frag = renderField(t, r, "bio", false)
	assert.False(t, frag.Truncated, "length counts characters")

	r["bio"] = ""
	assert.Equal(t, FragmentEmpty, renderField(t, r, "bio", false).Kind)
}

func TestRenderPrecedence(t *testing.T) {
	f := &Field{FieldConfig: common.FieldConfig{Name: "x", Type: common.TypeText, ChartData: true, Block: true, Tags: true}}
	f.Kind = f.FieldConfig.Kind()
	assert.Equal(t, FragmentChart, Render(Record{"x": "{}"}, f, false).Kind)

	f.ChartData = false
	f.Kind = f.FieldConfig.Kind()
	assert.Equal(t, FragmentBlock, Render(Record{"x": "long"}, f, false).Kind)

	f.Block = false
	f.Kind = f.FieldConfig.Kind()
	assert.Equal(t, FragmentTags, Render(Record{"x": "a,b"}, f, false).Kind)
}

func TestRenderLinkWithoutHref(t *testing.T) {
	r := sampleRecord()
	r["profile_url"] = ""
	assert.Equal(t, Fragment{Kind: FragmentText, Field: "name", Text: "Mo Salah"}, renderField(t, r, "name", false))
}

func TestRenderDates(t *testing.T) {
	renderer := Renderer{Location: time.FixedZone("EET", 2*3600)}
	assert.Equal(t, "Sep 7, 2024\n5:04 PM", renderer.FormatDate("2024-09-07T15:04:05Z"))
	assert.Equal(t, "Jan 2, 2025\n12:00 AM", Renderer{}.FormatDate("2025-01-02"))
	assert.Equal(t, "Sep 7, 2024\n3:04 PM", Renderer{}.FormatDate("2024-09-07 15:04:05"))
	assert.Equal(t, "yesterday", Renderer{}.FormatDate("yesterday"))
	assert.Equal(t, "", Renderer{}.FormatDate(""))
}

func TestRenderEditMode(t *testing.T) {
	r := sampleRecord()

	tests := []struct {
		field string
		want  Fragment
	}{
		{"name", Fragment{Kind: FragmentInput, Field: "name", InputType: "text", Value: "Mo Salah", Placeholder: "Name"}},
		{"age", Fragment{Kind: FragmentInput, Field: "age", InputType: "number", Value: "32", Placeholder: "Age"}},
		{"active", Fragment{Kind: FragmentInput, Field: "active", InputType: "checkbox", Value: "true", Placeholder: "Active"}},
		{"secret", Fragment{Kind: FragmentInput, Field: "secret", InputType: "password", Value: "****", Placeholder: "Secret"}},
		{"labels", Fragment{Kind: FragmentInput, Field: "labels", InputType: "text", Value: "captain, , left-footed ,", Placeholder: "Labels"}},
		{"stats", Fragment{Kind: FragmentEmpty, Field: "stats"}},
		{"position", Fragment{Kind: FragmentSelect, Field: "position", Value: "Forward", Placeholder: "Position",
			Default: &Option{ID: "Forward", Name: "Forward"}}},
		{"country_id", Fragment{Kind: FragmentSelect, Field: "country_id", Value: "1", Placeholder: "Country",
			Default: &Option{ID: "1", Name: "Egypt"}, Searchable: true}},
		{"city_id", Fragment{Kind: FragmentSelect, Field: "city_id", Placeholder: "City", Searchable: true, MasterField: "country_id"}},
		{"created_at", Fragment{Kind: FragmentText, Field: "created_at", Text: "Sep 7, 2024\n3:04 PM"}},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, renderField(t, r, tt.field, true)); diff != "" {
				t.Errorf("fragment mismatch (-want +got):\n%s", diff)
			}
		})
	}

	bio := renderField(t, r, "bio", true)
	assert.Equal(t, FragmentTextarea, bio.Kind)
	assert.Equal(t, r["bio"], bio.Value)
}

func TestRenderDateInput(t *testing.T) {
	cfg := playerConfig()
	cfg.Fields = append(cfg.Fields, common.FieldConfig{Name: "founded", Label: "Founded", Type: common.TypeDate})
	f, _ := mustSchema(cfg).Field("founded")

	frag := Render(Record{"founded": "1907-04-24T00:00:00Z"}, f, true)
	assert.Equal(t, "date", frag.InputType)
	assert.Equal(t, "1907-04-24", frag.Value)
}

func TestDefaultOption(t *testing.T) {
	s := mustSchema(playerConfig())
	country, _ := s.Field("country_id")
	position, _ := s.Field("position")
	city, _ := s.Field("city_id")

	assert.Equal(t, &Option{ID: "1", Name: "Egypt"}, DefaultOption(sampleRecord(), country))
	assert.Equal(t, &Option{ID: "Forward", Name: "Forward"}, DefaultOption(sampleRecord(), position))
	assert.Nil(t, DefaultOption(sampleRecord(), city))
}

func TestCollectSave(t *testing.T) {
	s := mustSchema(playerConfig())

	body := CollectSave(s, map[string]string{
		"name":       "",
		"position":   "Defender",
		"age":        "27",
		"active":     "false",
		"bio":        "line one\nline two",
		"labels":     "a,b",
		"secret":     "hunter2",
		"country_id": "3",
		"city_id":    "",
		"created_at": "2024-01-01",
		"unknown":    "x",
	})

	want := map[string]interface{}{
		"position":   "Defender",
		"age":        int64(27),
		"active":     false,
		"bio":        "line one\nline two",
		"labels":     "a,b",
		"secret":     "f52fbd32b2b3b86ff88ef6c490628285f482af15ddcb29541f94bcf526a3f6c7",
		"country_id": "3",
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("save body mismatch (-want +got):\n%s", diff)
	}
	assert.NotContains(t, body, "name", "empty values are not sent")

	body = CollectSave(s, map[string]string{"secret": common.MaskedValue, "age": "twelve"})
	assert.Equal(t, map[string]interface{}{"age": "twelve"}, body)

	body = CollectSave(s, map[string]string{"age": "9007199254740993"})
	assert.Equal(t, int64(9007199254740993), body["age"], "large integers stay exact")
	body = CollectSave(s, map[string]string{"age": " 27.5 "})
	assert.Equal(t, 27.5, body["age"])
}

func TestHashPassword(t *testing.T) {
	assert.Equal(t, "8c6976e5b5410415bde908bd4dee15dfb167a9c873fc4bb8a81f6f2ab448a918", HashPassword("admin"))
}
