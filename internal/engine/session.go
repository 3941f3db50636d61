package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/personyze/tracker-go/internal/ledger"
	"github.com/personyze/tracker-go/internal/model"
	"github.com/personyze/tracker-go/internal/store"
)

// Cache clear reasons.
const (
	clearExplicit = "explicit"
	clearVersion  = "version"
	clearAPIKey   = "api_key"
)

// ensureLoadedLocked restores session state, ledgers and the last result
// from the store on first use. Caller must hold e.mu.
func (e *Engine) ensureLoadedLocked(ctx context.Context) error {
	if e.loaded {
		return nil
	}

	userID, ok, err := store.GetInt(ctx, e.kv, model.KeyUserID)
	if err != nil {
		return fmt.Errorf("loading user id: %w", err)
	}
	if !ok || int32(userID) == 0 {
		userID = int64(newUserID())
		if err := e.kv.Edit(ctx, func(tx *store.Tx) error {
			tx.PutInt(model.KeyUserID, userID)
			return nil
		}); err != nil {
			return fmt.Errorf("saving user id: %w", err)
		}
	}

	wantNew, err := store.GetBool(ctx, e.kv, model.KeyNewSession)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	sessionID, _, err := store.GetString(ctx, e.kv, model.KeySessionID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	lastCheck, _, err := store.GetInt(ctx, e.kv, model.KeyNotiLastCheck)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	cacheVersion, _, err := store.GetInt(ctx, e.kv, model.KeyCacheVersion)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	blocked, _, err := store.GetString(ctx, e.kv, model.KeyBlocked)
	if err != nil {
		return fmt.Errorf("loading ledgers: %w", err)
	}
	past, _, err := store.GetString(ctx, e.kv, model.KeyPastSessions)
	if err != nil {
		return fmt.Errorf("loading ledgers: %w", err)
	}
	keyHash, hashOK, err := store.GetInt(ctx, e.kv, model.KeyAPIKeyHash)
	if err != nil {
		return fmt.Errorf("loading api key hash: %w", err)
	}

	e.userID = int32(userID)
	e.wantNewSession = wantNew
	e.sessionID = sessionID
	e.cacheVersion = int(cacheVersion)
	e.blocked = ledger.ParseBlocked(blocked)
	e.past = ledger.ParsePastSessions(past)
	e.notiLastCheck = time.Time{}
	if lastCheck != 0 {
		e.notiLastCheck = time.UnixMilli(lastCheck)
	}

	if !hashOK || uint32(keyHash) != e.keyHash {
		if hashOK {
			e.logger.Info("api key changed, clearing cache")
		}
		if err := e.clearCacheLocked(ctx, clearAPIKey); err != nil {
			return err
		}
	}

	result, ok, err := model.LoadResult(ctx, e.kv)
	if err != nil {
		return fmt.Errorf("loading result: %w", err)
	}
	if ok {
		e.result = result
	}

	e.loaded = true
	e.logger.Debug("session loaded",
		"user_id", e.userID,
		"session_id", e.sessionID,
		"cache_version", e.cacheVersion,
		"has_result", e.result != nil,
	)
	return nil
}

// newUserID returns a random non-zero device id.
func newUserID() int32 {
	for {
		if id := int32(rand.Uint32()); id != 0 {
			return id
		}
	}
}

// putSessionLocked records session fields and both ledgers.
// Caller must hold e.mu.
func (e *Engine) putSessionLocked(tx *store.Tx) {
	if e.sessionID != "" {
		tx.PutString(model.KeySessionID, e.sessionID)
	}
	if e.cacheVersion != 0 {
		tx.PutInt(model.KeyCacheVersion, int64(e.cacheVersion))
	}
	tx.PutString(model.KeyBlocked, e.blocked.String())
	tx.PutString(model.KeyPastSessions, e.past.String())
}

// clearCacheLocked resets the store to its bootstrap: identity, session
// fields, ledgers and the result's id lists survive; every cached condition,
// action and placeholder does not. Caller must hold e.mu.
func (e *Engine) clearCacheLocked(ctx context.Context, reason string) error {
	conditions, okC, err := store.GetIntList(ctx, e.kv, model.KeyConditions)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	actions, okA, err := store.GetIntList(ctx, e.kv, model.KeyActions)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	err = e.kv.Edit(ctx, func(tx *store.Tx) error {
		tx.Clear()
		tx.PutInt(model.KeyUserID, int64(e.userID))
		tx.PutInt(model.KeyAPIKeyHash, int64(e.keyHash))
		if e.wantNewSession {
			tx.PutBool(model.KeyNewSession, true)
		}
		if !e.notiLastCheck.IsZero() {
			tx.PutInt(model.KeyNotiLastCheck, e.notiLastCheck.UnixMilli())
		}
		e.putSessionLocked(tx)
		if okC {
			tx.PutIntList(model.KeyConditions, conditions)
		}
		if okA {
			tx.PutIntList(model.KeyActions, actions)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	e.metrics.RecordCacheClear(reason)
	e.logger.Info("cache cleared", "reason", reason, "cache_version", e.cacheVersion)
	return nil
}

// ClearCache drops every cached condition, action and placeholder. The next
// flush re-fetches the metadata of whatever the gateway delivers.
func (e *Engine) ClearCache(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	return e.clearCacheLocked(ctx, clearExplicit)
}

// SessionInfo is a read-only snapshot of the session state.
type SessionInfo struct {
	UserID            int32         `json:"user_id"`
	SessionID         string        `json:"session_id"`
	SessionStart      time.Time     `json:"session_start"`
	SessionExpired    bool          `json:"session_expired"`
	NewSessionPending bool          `json:"new_session_pending"`
	CacheVersion      int           `json:"cache_version"`
	Blocked           map[int]int   `json:"blocked_actions"`
	PastSessions      []int64       `json:"past_sessions"`
	QueuedCommands    int           `json:"queued_commands"`
	NotiLastCheck     time.Time     `json:"noti_last_check"`
	Result            *model.Result `json:"result,omitempty"`
}

// SessionInfo loads the session if needed and returns a snapshot of it.
func (e *Engine) SessionInfo(ctx context.Context) (SessionInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoadedLocked(ctx); err != nil {
		return SessionInfo{}, err
	}

	info := SessionInfo{
		UserID:            e.userID,
		SessionID:         e.sessionID,
		SessionExpired:    ledger.SessionExpired(e.sessionID, e.clock.Now()),
		NewSessionPending: e.wantNewSession,
		CacheVersion:      e.cacheVersion,
		Blocked:           e.blocked.Clone(),
		PastSessions:      append([]int64{}, e.past...),
		QueuedCommands:    e.queue.Len(),
		NotiLastCheck:     e.notiLastCheck,
		Result:            e.result.Clone(),
	}
	if start := ledger.SessionStart(e.sessionID); start != 0 {
		info.SessionStart = time.Unix(start, 0)
	}
	return info, nil
}
