package model

import (
	"context"
	"slices"

	"github.com/personyze/tracker-go/internal/store"
)

// Result is the set of conditions and actions currently matching the user.
// Membership is by id and order is delivery order; no id appears twice.
type Result struct {
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
}

// NewResult returns an empty result.
func NewResult() *Result {
	return &Result{Conditions: []Condition{}, Actions: []Action{}}
}

// LoadResult rebuilds the last persisted result. ok is false when no result
// was persisted or any member's metadata is no longer cached.
func LoadResult(ctx context.Context, kv store.KV) (*Result, bool, error) {
	condIDs, okC, err := store.GetIntList(ctx, kv, KeyConditions)
	if err != nil {
		return nil, false, err
	}
	actIDs, okA, err := store.GetIntList(ctx, kv, KeyActions)
	if err != nil {
		return nil, false, err
	}
	if !okC || !okA {
		return nil, false, nil
	}

	r := &Result{
		Conditions: make([]Condition, 0, len(condIDs)),
		Actions:    make([]Action, 0, len(actIDs)),
	}
	for _, id := range condIDs {
		c, ok, err := LoadCondition(ctx, kv, id)
		if err != nil || !ok {
			return nil, false, err
		}
		r.Conditions = append(r.Conditions, c)
	}
	for _, id := range actIDs {
		a, ok, err := LoadAction(ctx, kv, id)
		if err != nil || !ok {
			return nil, false, err
		}
		if err := LoadActionData(ctx, kv, &a); err != nil {
			return nil, false, err
		}
		r.Actions = append(r.Actions, a)
	}
	return r, true, nil
}

// Save records the ordered id lists of the result.
func (r *Result) Save(tx *store.Tx) {
	tx.PutIntList(KeyConditions, r.ConditionIDs())
	tx.PutIntList(KeyActions, r.ActionIDs())
}

// ConditionIDs returns condition ids in order.
func (r *Result) ConditionIDs() []int {
	ids := make([]int, len(r.Conditions))
	for i, c := range r.Conditions {
		ids[i] = c.ID
	}
	return ids
}

// ActionIDs returns action ids in order.
func (r *Result) ActionIDs() []int {
	ids := make([]int, len(r.Actions))
	for i, a := range r.Actions {
		ids[i] = a.ID
	}
	return ids
}

// IsEmpty reports whether the result has no conditions and no actions.
func (r *Result) IsEmpty() bool {
	return r == nil || len(r.Conditions) == 0 && len(r.Actions) == 0
}

// Apply folds a newly delivered result into current and returns the new
// current result.
//
// A navigation flush, or an absent or empty current result, replaces the
// result wholesale. Otherwise unseen conditions and actions are appended and
// then every dismissed id is removed.
func Apply(current, delivered *Result, navigate bool, dismissConditions, dismissActions []int) *Result {
	if navigate || current.IsEmpty() {
		return appendUnseen(NewResult(), delivered)
	}

	merged := appendUnseen(current.Clone(), delivered)
	merged.Conditions = slices.DeleteFunc(merged.Conditions, func(c Condition) bool {
		return slices.Contains(dismissConditions, c.ID)
	})
	merged.Actions = slices.DeleteFunc(merged.Actions, func(a Action) bool {
		return slices.Contains(dismissActions, a.ID)
	})
	return merged
}

// appendUnseen adds every member of delivered whose id is not yet in r.
func appendUnseen(r, delivered *Result) *Result {
	for _, c := range delivered.Conditions {
		if !slices.ContainsFunc(r.Conditions, func(x Condition) bool { return x.ID == c.ID }) {
			r.Conditions = append(r.Conditions, c)
		}
	}
	for _, a := range delivered.Actions {
		if !slices.ContainsFunc(r.Actions, func(x Action) bool { return x.ID == a.ID }) {
			r.Actions = append(r.Actions, cloneAction(a))
		}
	}
	return r
}

// Clone returns a deep copy, so callers can hand results to the host
// without sharing mutable state with the engine.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{
		Conditions: append([]Condition{}, r.Conditions...),
		Actions:    make([]Action, len(r.Actions)),
	}
	for i, a := range r.Actions {
		out.Actions[i] = cloneAction(a)
	}
	return out
}

func cloneAction(a Action) Action {
	a.Placeholders = append([]Placeholder(nil), a.Placeholders...)
	if a.Data != nil {
		data := make(map[string]string, len(a.Data))
		for k, v := range a.Data {
			data[k] = v
		}
		a.Data = data
	}
	return a
}
