// Package model holds the cached campaign entities and the current result.
//
// Conditions, actions and placeholders are identified by id. Their metadata
// is cached in the store under per-id keys; an entity whose metadata is not
// in the store needs a cache fill from the gateway before it is delivered.
package model

import (
	"context"

	"github.com/personyze/tracker-go/internal/store"
)

// Condition is a campaign trigger currently matching the user.
type Condition struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// LoadCondition reads cached metadata. ok is false when the condition has
// never been filled.
func LoadCondition(ctx context.Context, g store.Getter, id int) (c Condition, ok bool, err error) {
	c.ID = id
	c.Name, ok, err = store.GetString(ctx, g, conditionNameKey(id))
	return c, ok, err
}

// Save records the condition's metadata.
func (c Condition) Save(tx *store.Tx) {
	tx.PutString(conditionNameKey(c.ID), c.Name)
}

// Placeholder is a named insertion point within an action's content.
type Placeholder struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	HTMLID        string `json:"html_id"`
	UnitsCountMax int    `json:"units_count_max"`
}

// LoadPlaceholder reads cached metadata. ok is false when the placeholder
// has never been filled.
func LoadPlaceholder(ctx context.Context, g store.Getter, id int) (Placeholder, bool, error) {
	p := Placeholder{ID: id}

	name, ok, err := store.GetString(ctx, g, placeholderNameKey(id))
	if err != nil || !ok {
		return p, false, err
	}
	p.Name = name

	if p.HTMLID, _, err = store.GetString(ctx, g, placeholderHTMLIDKey(id)); err != nil {
		return p, false, err
	}
	units, _, err := store.GetInt(ctx, g, placeholderUnitsCountMaxKey(id))
	if err != nil {
		return p, false, err
	}
	p.UnitsCountMax = int(units)
	return p, true, nil
}

// Save records the placeholder's metadata.
func (p Placeholder) Save(tx *store.Tx) {
	tx.PutString(placeholderNameKey(p.ID), p.Name)
	tx.PutString(placeholderHTMLIDKey(p.ID), p.HTMLID)
	tx.PutInt(placeholderUnitsCountMaxKey(p.ID), int64(p.UnitsCountMax))
}

// Action is a personalized content unit the host should render.
type Action struct {
	ID           int           `json:"id"`
	Name         string        `json:"name"`
	ContentType  string        `json:"content_type"`
	ContentParam string        `json:"content_param"`
	ContentBegin string        `json:"content_begin"`
	ContentEnd   string        `json:"content_end"`
	LibsApp      string        `json:"libs_app"`
	Placeholders []Placeholder `json:"placeholders"`

	// Data is supplied per delivery and persisted apart from the metadata.
	Data map[string]string `json:"data,omitempty"`

	// CacheVersion is the cache version the metadata was fetched under.
	CacheVersion int `json:"cache_version"`
}

// LoadAction reads cached metadata, including every placeholder. ok is false
// when the action or any of its placeholders has never been filled. Data is
// not loaded; see LoadActionData.
func LoadAction(ctx context.Context, g store.Getter, id int) (Action, bool, error) {
	a := Action{ID: id}

	phIDs, ok, err := store.GetIntList(ctx, g, actionPlaceholdersKey(id))
	if err != nil || !ok {
		return a, false, err
	}
	a.Placeholders = make([]Placeholder, 0, len(phIDs))
	for _, phID := range phIDs {
		p, ok, err := LoadPlaceholder(ctx, g, phID)
		if err != nil || !ok {
			return a, false, err
		}
		a.Placeholders = append(a.Placeholders, p)
	}

	name, ok, err := store.GetString(ctx, g, actionNameKey(id))
	if err != nil || !ok {
		return a, false, err
	}
	a.Name = name

	fields := []struct {
		key string
		dst *string
	}{
		{actionContentTypeKey(id), &a.ContentType},
		{actionContentParamKey(id), &a.ContentParam},
		{actionContentBeginKey(id), &a.ContentBegin},
		{actionContentEndKey(id), &a.ContentEnd},
		{actionLibsKey(id), &a.LibsApp},
	}
	for _, f := range fields {
		if *f.dst, _, err = store.GetString(ctx, g, f.key); err != nil {
			return a, false, err
		}
	}

	cv, _, err := store.GetInt(ctx, g, actionCacheVersionKey(id))
	if err != nil {
		return a, false, err
	}
	a.CacheVersion = int(cv)
	return a, true, nil
}

// LoadActionData attaches the persisted per-delivery data to a.
func LoadActionData(ctx context.Context, kv store.KV, a *Action) error {
	data, err := kv.ActionData(ctx, a.ID)
	if err != nil {
		return err
	}
	a.Data = data
	return nil
}

// Save records the action's metadata and its placeholder id list. The
// placeholders' own metadata is saved separately when fetched.
func (a Action) Save(tx *store.Tx) {
	tx.PutString(actionNameKey(a.ID), a.Name)
	tx.PutString(actionContentTypeKey(a.ID), a.ContentType)
	tx.PutString(actionContentParamKey(a.ID), a.ContentParam)
	tx.PutString(actionContentBeginKey(a.ID), a.ContentBegin)
	tx.PutString(actionContentEndKey(a.ID), a.ContentEnd)
	tx.PutString(actionLibsKey(a.ID), a.LibsApp)
	tx.PutInt(actionCacheVersionKey(a.ID), int64(a.CacheVersion))

	ids := make([]int, len(a.Placeholders))
	for i, p := range a.Placeholders {
		ids[i] = p.ID
	}
	tx.PutIntList(actionPlaceholdersKey(a.ID), ids)
}

// SaveData records the per-delivery data. Nil data removes what is stored.
func (a Action) SaveData(tx *store.Tx) {
	tx.PutActionData(a.ID, a.Data)
}
