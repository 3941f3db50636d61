package model

import (
	"context"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personyze/tracker-go/internal/store"
)

func saveAll(t *testing.T, kv store.KV, fn func(tx *store.Tx)) {
	t.Helper()
	require.NoError(t, kv.Edit(context.Background(), func(tx *store.Tx) error {
		fn(tx)
		return nil
	}))
}

func TestCondition_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	_, ok, err := LoadCondition(ctx, kv, 1)
	require.NoError(t, err)
	assert.False(t, ok, "unfilled condition needs a cache fill")

	saveAll(t, kv, func(tx *store.Tx) { Condition{ID: 1, Name: "Returning visitor"}.Save(tx) })

	c, ok, err := LoadCondition(ctx, kv, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Condition{ID: 1, Name: "Returning visitor"}, c)
}

func TestAction_RoundTripRequiresPlaceholders(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	a := Action{
		ID: 10, Name: "Banner", ContentType: ContentTypeHTML, ContentParam: "html",
		ContentBegin: "<div>", ContentEnd: "</div>", LibsApp: "slider", CacheVersion: 3,
		Placeholders: []Placeholder{{ID: 100, Name: "Top", HTMLID: "top", UnitsCountMax: 2}},
	}

	saveAll(t, kv, func(tx *store.Tx) { a.Save(tx) })

	_, ok, err := LoadAction(ctx, kv, 10)
	require.NoError(t, err)
	assert.False(t, ok, "action is incomplete until its placeholders are cached")

	saveAll(t, kv, func(tx *store.Tx) { a.Placeholders[0].Save(tx) })

	got, ok, err := LoadAction(ctx, kv, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a, got)
}

func TestAction_DataPersistsSeparately(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	a := Action{ID: 10, Data: map[string]string{"html": "<b>x</b>"}}

	saveAll(t, kv, func(tx *store.Tx) { a.SaveData(tx) })

	loaded := Action{ID: 10}
	require.NoError(t, LoadActionData(ctx, kv, &loaded))
	assert.Equal(t, a.Data, loaded.Data)

	saveAll(t, kv, func(tx *store.Tx) { Action{ID: 10}.SaveData(tx) })
	require.NoError(t, LoadActionData(ctx, kv, &loaded))
	assert.Nil(t, loaded.Data)
}

func TestLoadResult(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	_, ok, err := LoadResult(ctx, kv)
	require.NoError(t, err)
	assert.False(t, ok, "nothing persisted yet")

	r := &Result{
		Conditions: []Condition{{ID: 2, Name: "B"}, {ID: 1, Name: "A"}},
		Actions:    []Action{{ID: 10, Name: "Banner", Placeholders: []Placeholder{}, Data: map[string]string{"k": "v"}}},
	}
	saveAll(t, kv, func(tx *store.Tx) {
		r.Save(tx)
		for _, c := range r.Conditions {
			c.Save(tx)
		}
		r.Actions[0].Save(tx)
		r.Actions[0].SaveData(tx)
	})

	got, ok, err := LoadResult(ctx, kv)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, got)
}

func TestLoadResult_MissingMetadata(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	saveAll(t, kv, func(tx *store.Tx) {
		tx.PutIntList(KeyConditions, []int{1})
		tx.PutIntList(KeyActions, []int{})
	})

	_, ok, err := LoadResult(ctx, kv)
	require.NoError(t, err)
	assert.False(t, ok, "a cleared cache invalidates the persisted result")
}

func TestApply_ReplaceOnNavigate(t *testing.T) {
	current := &Result{
		Conditions: []Condition{{ID: 1}},
		Actions:    []Action{{ID: 10}},
	}
	delivered := &Result{
		Conditions: []Condition{{ID: 2}},
		Actions:    []Action{{ID: 11}, {ID: 11}},
	}

	got := Apply(current, delivered, true, nil, nil)
	assert.Equal(t, []int{2}, got.ConditionIDs())
	assert.Equal(t, []int{11}, got.ActionIDs(), "duplicates collapse")
}

func TestApply_ReplaceWhenEmpty(t *testing.T) {
	delivered := &Result{Conditions: []Condition{{ID: 2}}, Actions: []Action{}}

	assert.Equal(t, []int{2}, Apply(nil, delivered, false, nil, nil).ConditionIDs())
	assert.Equal(t, []int{2}, Apply(NewResult(), delivered, false, nil, nil).ConditionIDs())
}

func TestApply_MergeThenDismiss(t *testing.T) {
	current := &Result{
		Conditions: []Condition{{ID: 1}, {ID: 2}},
		Actions:    []Action{{ID: 10}, {ID: 11}},
	}
	delivered := &Result{
		Conditions: []Condition{{ID: 2}, {ID: 3}},
		Actions:    []Action{{ID: 12}},
	}

	got := Apply(current, delivered, false, []int{1}, []int{11, 12})
	assert.Equal(t, []int{2, 3}, got.ConditionIDs())
	assert.Equal(t, []int{10}, got.ActionIDs(), "dismiss applies after adding")
	assert.Equal(t, []int{1, 2}, current.ConditionIDs(), "current is not mutated")
}

func TestApply_Idempotent(t *testing.T) {
	current := &Result{Conditions: []Condition{{ID: 1}}, Actions: []Action{{ID: 10}}}
	delivered := &Result{Conditions: []Condition{{ID: 1}}, Actions: []Action{{ID: 10}}}

	once := Apply(current, delivered, false, nil, nil)
	twice := Apply(once, delivered, false, nil, nil)
	assert.Equal(t, once, twice)
}

func TestClone_IsDeep(t *testing.T) {
	r := &Result{Actions: []Action{{ID: 1, Data: map[string]string{"a": "1"}}}}
	c := r.Clone()
	c.Actions[0].Data["a"] = "2"

	assert.Equal(t, "1", r.Actions[0].Data["a"])
	assert.Nil(t, (*Result)(nil).Clone())
}

func TestAction_Content(t *testing.T) {
	a := Action{ContentBegin: "<p>", ContentEnd: "</p>", ContentParam: "msg", Data: map[string]string{"msg": "hi"}}
	assert.Equal(t, "<p>hi</p>", a.Content())

	a.Data = nil
	assert.Equal(t, "<p></p>", a.Content())

	a.Data = map[string]string{"msg": "hi"}
	a.ContentParam = ""
	assert.Equal(t, "<p></p>", a.Content())
}

func TestAction_ContentHTMLDoc(t *testing.T) {
	a := Action{
		ID: 10, ContentType: ContentTypeHTML, ContentParam: "html",
		ContentBegin: `<div class="banner">`, ContentEnd: "</div>",
		LibsApp: "slider, ,popup", CacheVersion: 7,
		Data: map[string]string{"html": "<b>50% off</b>"},
	}

	doc, err := a.ContentHTMLDoc()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "action_html_doc", []byte(doc))

	_, err = Action{ContentType: ContentTypeJSON}.ContentHTMLDoc()
	assert.True(t, errors.Is(err, ErrWrongContentType))
}

func TestAction_ContentJSONArray(t *testing.T) {
	a := Action{
		ID: 11, ContentType: ContentTypeJSON,
		ContentBegin: `[{"sku":"A1","price":9.5,"tags":["x", "y"]},`,
		ContentParam: "items", Data: map[string]string{"items": `7, {"sku":"B2","ok":true}`},
		ContentEnd: "]",
	}

	items, err := a.ContentJSONArray()
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{
		{"sku": "A1", "price": "9.5", "tags": `["x","y"]`},
		{"sku": "B2", "ok": "true"},
	}, items)

	_, err = Action{ContentType: ContentTypeJSON, ContentBegin: "{}"}.ContentJSONArray()
	assert.Error(t, err, "objects are not arrays")

	_, err = Action{ContentType: ContentTypeHTML}.ContentJSONArray()
	assert.ErrorIs(t, err, ErrWrongContentType)
}

func TestParseClicked(t *testing.T) {
	c, err := ParseClicked(10, []byte(`{"href":"https://shop.example.com","clicked":"target","arg":""}`))
	require.NoError(t, err)
	assert.Equal(t, Clicked{ActionID: 10, Href: "https://shop.example.com", Status: "target"}, c)

	_, err = ParseClicked(10, []byte(`{"href":"x"}`))
	assert.Error(t, err)

	_, err = ParseClicked(10, []byte(`nope`))
	assert.Error(t, err)
}
