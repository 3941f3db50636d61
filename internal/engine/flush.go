package engine

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/personyze/tracker-go/internal/apierr"
	"github.com/personyze/tracker-go/internal/command"
	"github.com/personyze/tracker-go/internal/ledger"
	"github.com/personyze/tracker-go/internal/metrics"
	"github.com/personyze/tracker-go/internal/model"
	"github.com/personyze/tracker-go/internal/store"
	"github.com/personyze/tracker-go/internal/wire"
)

const (
	flushKey    = "flush"
	trackerPath = "tracker-v1"
)

// GetResult sends the queued commands and returns the merged result. A
// request is sent even with nothing queued when no result is known yet.
func (e *Engine) GetResult(ctx context.Context) (*model.Result, error) {
	pending, drains := e.queueState()
	r, err := e.flush(ctx, true)
	if err != nil {
		return nil, err
	}
	// A joined flush may have drained the queue before this call's commands
	// were added, or run without needing a result. Commands queued by the
	// flush itself or by other callers are not this call's to wait for.
	if r == nil || (pending && e.drainCount() == drains) {
		if r, err = e.flush(ctx, true); err != nil {
			return nil, err
		}
	}
	if r == nil {
		r = model.NewResult()
	}
	return r, nil
}

// StartNewSession sends the queued commands, then forgets the current result
// and asks the gateway for a new session on the next flush. The new-session
// request is recorded even when the flush fails.
func (e *Engine) StartNewSession(ctx context.Context) error {
	_, flushErr := e.flush(ctx, false)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoadedLocked(ctx); err != nil {
		if flushErr != nil {
			return flushErr
		}
		return err
	}
	e.wantNewSession = true
	e.result = nil
	err := e.kv.Edit(ctx, func(tx *store.Tx) error {
		tx.PutBool(model.KeyNewSession, true)
		tx.Remove(model.KeyConditions)
		tx.Remove(model.KeyActions)
		return nil
	})
	if flushErr != nil {
		return flushErr
	}
	return err
}

// Done sends the queued commands in the background. Errors are logged.
func (e *Engine) Done() {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		if _, err := e.flush(context.Background(), false); err != nil {
			e.logger.Error("background flush failed", "error", err, "code", apierr.CodeOf(err))
		}
	}()
}

// flush joins the flush in flight, or starts one. Every joiner receives the
// same outcome. A joiner whose ctx ends stops waiting; the flush carries on.
func (e *Engine) flush(ctx context.Context, requireResult bool) (*model.Result, error) {
	if e.inFlight.Load() {
		e.joined.Add(1)
		e.metrics.RecordCoalesced()
	}

	detached := context.WithoutCancel(ctx)
	ch := e.flights.DoChan(flushKey, func() (any, error) {
		e.inFlight.Store(true)
		defer e.inFlight.Store(false)
		return e.runFlush(detached, requireResult)
	})

	select {
	case res := <-ch:
		if e.consumeFollowUp() {
			e.Done()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		r, _ := res.Val.(*model.Result)
		return r.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) consumeFollowUp() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	followUp := e.followUp
	e.followUp = false
	return followUp
}

// queueState reports whether commands are queued and how many times the
// queue has been drained so far.
func (e *Engine) queueState() (pending bool, drains uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len() > 0, e.drains
}

func (e *Engine) drainCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drains
}

// flushPlan carries a decoded reply from the locked apply step through the
// unlocked cache fill to the locked merge.
type flushPlan struct {
	delivered         *model.Result
	fillConditions    []int
	fillActions       []int
	refetchAll        bool
	navigate          bool
	cacheVersion      int
	dismissConditions []int
	dismissActions    []int
}

// runFlush is the shared body of a coalesced flush.
func (e *Engine) runFlush(ctx context.Context, requireResult bool) (*model.Result, error) {
	logger := e.logger.With("flow", e.flowGen.Generate())
	start := e.clock.Now()

	r, err := e.exchange(ctx, logger, requireResult)
	if err != nil {
		e.metrics.RecordFlush(metrics.OutcomeError, 0)
		e.metrics.RecordError(string(apierr.CodeOf(err)))
		logger.Warn("flush failed", "error", err)
		return nil, err
	}
	if r.sent {
		e.metrics.RecordFlush(metrics.OutcomeSent, e.clock.Now().Sub(start).Seconds())
	} else {
		e.metrics.RecordFlush(metrics.OutcomeCached, 0)
	}
	return r.result, nil
}

type exchangeResult struct {
	result *model.Result
	sent   bool
}

func (e *Engine) exchange(ctx context.Context, logger *slog.Logger, requireResult bool) (exchangeResult, error) {
	e.mu.Lock()
	if err := e.ensureLoadedLocked(ctx); err != nil {
		e.mu.Unlock()
		return exchangeResult{}, err
	}
	if e.queue.Len() == 0 && (!requireResult || e.result != nil) {
		r := e.result.Clone()
		e.mu.Unlock()
		logger.Debug("nothing to send")
		return exchangeResult{result: r}, nil
	}

	req := e.buildRequestLocked()
	body, err := wire.EncodeTrackerRequest(req)
	if err != nil {
		e.mu.Unlock()
		logger.Warn("discarding queued commands", "commands", len(req.Commands), "error", err)
		return exchangeResult{}, err
	}
	navigate, wantNew := e.navigate, e.wantNewSession
	e.navigate, e.wantNewSession = false, false
	e.mu.Unlock()

	e.metrics.RecordRequestBytes(len(body))
	logger.Debug("sending tracker request",
		"commands", len(req.Commands),
		"new_session", req.NewSession,
		"bytes", len(body),
	)

	text, err := e.transport.Post(ctx, trackerPath, body)
	var resp *wire.TrackerResponse
	if err == nil {
		resp, err = wire.DecodeTrackerResponse([]byte(text))
	}
	if err != nil {
		e.mu.Lock()
		e.navigate = e.navigate || navigate
		e.wantNewSession = e.wantNewSession || wantNew
		e.mu.Unlock()
		return exchangeResult{}, err
	}

	plan, err := e.applyResponse(ctx, logger, resp, navigate)
	if err != nil {
		return exchangeResult{}, err
	}
	if err := e.fillCache(ctx, logger, plan); err != nil {
		return exchangeResult{}, err
	}
	r, err := e.merge(ctx, plan)
	if err != nil {
		return exchangeResult{}, err
	}
	return exchangeResult{result: r, sent: true}, nil
}

// buildRequestLocked drains the queue into a tracker request.
// Caller must hold e.mu.
func (e *Engine) buildRequestLocked() *wire.TrackerRequest {
	var sessionID *string
	if e.sessionID != "" {
		id := e.sessionID
		sessionID = &id
	}

	queued := e.queue.Drain()
	e.drains++
	commands := make([][]string, len(queued))
	for i, cmd := range queued {
		commands[i] = cmd
	}

	return &wire.TrackerRequest{
		UserID:       e.userID,
		SessionID:    sessionID,
		NewSession:   e.wantNewSession || ledger.SessionExpired(e.sessionID, e.clock.Now()),
		PastSessions: e.past.String(),
		Platform:     e.device.Platform,
		TimeZone:     e.device.TimeZone,
		Languages:    e.device.Language,
		Screen:       e.device.Screen,
		OS:           e.device.OS,
		DeviceType:   e.device.DeviceType,
		NotiEnabled:  e.notiEnabled,
		Commands:     commands,
	}
}

// applyResponse commits the session, cache-version and ledger changes of a
// reply and prepares the delivered result. Blocked actions are left out of
// it and reported back as "dont-show".
func (e *Engine) applyResponse(ctx context.Context, logger *slog.Logger, resp *wire.TrackerResponse, navigate bool) (*flushPlan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessionID := e.sessionID
	if resp.SessionID != nil {
		sessionID = *resp.SessionID
	}
	cacheVersion := resp.CacheVersion
	if cacheVersion == 0 {
		cacheVersion = e.cacheVersion
	}
	clearCache := cacheVersion > e.cacheVersion
	newSession := ledger.SessionStart(sessionID) != ledger.SessionStart(e.sessionID)

	e.cacheVersion = cacheVersion
	e.sessionID = sessionID
	if newSession {
		e.blocked.Decrement()
		e.past = e.past.Add(ledger.SessionStart(sessionID))
		e.metrics.RecordNewSession()
		logger.Info("new session", "session_id", sessionID)
	}

	if clearCache {
		if err := e.clearCacheLocked(ctx, clearVersion); err != nil {
			return nil, err
		}
	} else {
		err := e.kv.Edit(ctx, func(tx *store.Tx) error {
			e.putSessionLocked(tx)
			if newSession {
				tx.Remove(model.KeyNewSession)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	plan := &flushPlan{
		delivered:         model.NewResult(),
		refetchAll:        clearCache,
		navigate:          navigate,
		cacheVersion:      cacheVersion,
		dismissConditions: resp.DismissConditions,
		dismissActions:    resp.DismissActions,
	}

	for _, dc := range resp.Conditions {
		c, ok, err := model.LoadCondition(ctx, e.kv, dc.ID)
		if err != nil {
			return nil, err
		}
		if clearCache || !ok {
			plan.fillConditions = append(plan.fillConditions, dc.ID)
		}
		plan.delivered.Conditions = append(plan.delivered.Conditions, c)
	}

	var blocked []int
	for _, da := range resp.Actions {
		if e.blocked.Contains(da.ID) {
			e.queue.Add(command.ActionStatus, strconv.Itoa(da.ID), command.StatusDontShow)
			blocked = append(blocked, da.ID)
			continue
		}
		a, ok, err := model.LoadAction(ctx, e.kv, da.ID)
		if err != nil {
			return nil, err
		}
		if clearCache || !ok {
			plan.fillActions = append(plan.fillActions, da.ID)
			a.CacheVersion = cacheVersion
		}
		a.Data = da.Data
		plan.delivered.Actions = append(plan.delivered.Actions, a)
	}
	if len(blocked) > 0 {
		e.followUp = true
		logger.Info("suppressed blocked actions", "actions", blocked)
	}

	err := e.kv.Edit(ctx, func(tx *store.Tx) error {
		for _, a := range plan.delivered.Actions {
			a.SaveData(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// merge folds the filled delivered result into the current one and
// persists it.
func (e *Engine) merge(ctx context.Context, plan *flushPlan) (*model.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.result = model.Apply(e.result, plan.delivered, plan.navigate, plan.dismissConditions, plan.dismissActions)
	if err := e.kv.Edit(ctx, func(tx *store.Tx) error {
		e.result.Save(tx)
		return nil
	}); err != nil {
		return nil, err
	}
	return e.result.Clone(), nil
}
