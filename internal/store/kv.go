package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Getter reads a single raw preference value.
type Getter interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// KV is the durable key-value store used by the tracker.
//
// Reads go through Get and the typed helpers below. All writes go through
// Edit, which applies a batch of operations atomically: either every
// operation in the batch is visible afterwards or none is.
type KV interface {
	Getter

	// ActionData returns the per-delivery data stored for an action,
	// or nil when none is stored.
	ActionData(ctx context.Context, actionID int) (map[string]string, error)

	// Edit records operations on a Tx and commits them atomically.
	// If fn returns an error nothing is committed.
	Edit(ctx context.Context, fn func(tx *Tx) error) error

	// Close releases the store's resources.
	Close() error
}

type opKind int

const (
	opPut opKind = iota
	opRemove
	opClear
	opPutData
	opDeleteData
)

type op struct {
	kind     opKind
	key      string
	value    string
	actionID int
	data     map[string]string
}

// Tx buffers the operations of one Edit. Operations apply in the order they
// were recorded, so a Clear followed by Puts leaves exactly those Puts.
type Tx struct {
	ops []op
}

// PutString stores a string value.
func (tx *Tx) PutString(key, value string) {
	tx.ops = append(tx.ops, op{kind: opPut, key: key, value: value})
}

// PutInt stores an integer value.
func (tx *Tx) PutInt(key string, value int64) {
	tx.PutString(key, strconv.FormatInt(value, 10))
}

// PutBool stores a boolean value.
func (tx *Tx) PutBool(key string, value bool) {
	tx.PutString(key, strconv.FormatBool(value))
}

// PutIntList stores an ordered list of integers.
func (tx *Tx) PutIntList(key string, values []int) {
	if values == nil {
		values = []int{}
	}
	b, _ := json.Marshal(values)
	tx.PutString(key, string(b))
}

// Remove deletes a key. Removing a missing key is not an error.
func (tx *Tx) Remove(key string) {
	tx.ops = append(tx.ops, op{kind: opRemove, key: key})
}

// Clear deletes every preference. Action data is kept.
func (tx *Tx) Clear() {
	tx.ops = append(tx.ops, op{kind: opClear})
}

// PutActionData stores per-delivery data for an action.
// A nil map deletes any stored data.
func (tx *Tx) PutActionData(actionID int, data map[string]string) {
	if data == nil {
		tx.ops = append(tx.ops, op{kind: opDeleteData, actionID: actionID})
		return
	}
	cp := make(map[string]string, len(data))
	for k, v := range data {
		cp[k] = v
	}
	tx.ops = append(tx.ops, op{kind: opPutData, actionID: actionID, data: cp})
}

// Len returns the number of recorded operations.
func (tx *Tx) Len() int {
	return len(tx.ops)
}

// GetString reads a string value.
func GetString(ctx context.Context, g Getter, key string) (string, bool, error) {
	return g.Get(ctx, key)
}

// GetInt reads an integer value. Missing keys report ok=false.
func GetInt(ctx context.Context, g Getter, key string) (int64, bool, error) {
	s, ok, err := g.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode %q as int: %w", key, err)
	}
	return n, true, nil
}

// GetBool reads a boolean value. Missing keys read as false.
func GetBool(ctx context.Context, g Getter, key string) (bool, error) {
	s, ok, err := g.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("decode %q as bool: %w", key, err)
	}
	return b, nil
}

// GetIntList reads an ordered integer list. Missing keys report ok=false.
func GetIntList(ctx context.Context, g Getter, key string) ([]int, bool, error) {
	s, ok, err := g.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var out []int
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, false, fmt.Errorf("decode %q as int list: %w", key, err)
	}
	if out == nil {
		out = []int{}
	}
	return out, true, nil
}
