package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/personyze/tracker-go/internal/model"
	"github.com/personyze/tracker-go/internal/store"
	"github.com/personyze/tracker-go/internal/wire"
)

// Metadata endpoints; the id list is appended.
const (
	conditionsPath   = "conditions/columns/id,name/where/id:"
	actionsPath      = "actions/columns/id,name,content_type,content_param,content_begin,content_end,libs_app,placeholders/where/id:"
	placeholdersPath = "placeholders/columns/id,name,html_id,units_count_max/where/id:"
)

// fillCache fetches metadata for every delivered entity the store does not
// know. Conditions and actions are fetched concurrently; the first error
// wins.
func (e *Engine) fillCache(ctx context.Context, logger *slog.Logger, plan *flushPlan) error {
	g, gctx := errgroup.WithContext(ctx)
	if len(plan.fillConditions) > 0 {
		g.Go(func() error {
			return e.fillConditions(gctx, logger, plan)
		})
	}
	if len(plan.fillActions) > 0 {
		g.Go(func() error {
			return e.fillActions(gctx, logger, plan)
		})
	}
	return g.Wait()
}

func (e *Engine) fillConditions(ctx context.Context, logger *slog.Logger, plan *flushPlan) error {
	e.metrics.RecordCacheFill("conditions")
	logger.Debug("filling conditions", "ids", plan.fillConditions)

	text, err := e.transport.Get(ctx, conditionsPath+joinIDs(plan.fillConditions))
	if err != nil {
		return err
	}
	rows, err := wire.DecodeConditionRows([]byte(text))
	if err != nil {
		return err
	}

	conditions := plan.delivered.Conditions
	var filled []model.Condition
	for _, row := range rows {
		i := slices.IndexFunc(conditions, func(c model.Condition) bool { return c.ID == row.ID })
		if i < 0 {
			continue
		}
		conditions[i].Name = row.Name
		filled = append(filled, conditions[i])
	}
	return e.edit(ctx, func(tx *store.Tx) error {
		for _, c := range filled {
			c.Save(tx)
		}
		return nil
	})
}

func (e *Engine) fillActions(ctx context.Context, logger *slog.Logger, plan *flushPlan) error {
	e.metrics.RecordCacheFill("actions")
	logger.Debug("filling actions", "ids", plan.fillActions)

	text, err := e.transport.Get(ctx, actionsPath+joinIDs(plan.fillActions))
	if err != nil {
		return err
	}
	rows, err := wire.DecodeActionRows([]byte(text))
	if err != nil {
		return err
	}

	actions := plan.delivered.Actions
	var filled []model.Action
	var missing []int
	for _, row := range rows {
		i := slices.IndexFunc(actions, func(a model.Action) bool { return a.ID == row.ID })
		if i < 0 {
			continue
		}
		a := &actions[i]
		a.Name = row.Name
		a.ContentType = row.ContentType
		a.ContentParam = row.ContentParam
		a.ContentBegin = row.ContentBegin
		a.ContentEnd = row.ContentEnd
		a.LibsApp = row.LibsApp
		a.CacheVersion = plan.cacheVersion
		a.Placeholders = make([]model.Placeholder, 0, len(row.Placeholders))
		for _, phID := range row.Placeholders {
			p := model.Placeholder{ID: phID}
			ok := false
			if !plan.refetchAll {
				if p, ok, err = model.LoadPlaceholder(ctx, e.kv, phID); err != nil {
					return fmt.Errorf("loading placeholder %d: %w", phID, err)
				}
			}
			if !ok && !slices.Contains(missing, phID) {
				missing = append(missing, phID)
			}
			a.Placeholders = append(a.Placeholders, p)
		}
		filled = append(filled, *a)
	}
	if err := e.edit(ctx, func(tx *store.Tx) error {
		for _, a := range filled {
			a.Save(tx)
		}
		return nil
	}); err != nil {
		return err
	}

	if len(missing) == 0 {
		return nil
	}
	return e.fillPlaceholders(ctx, logger, actions, missing)
}

func (e *Engine) fillPlaceholders(ctx context.Context, logger *slog.Logger, actions []model.Action, ids []int) error {
	e.metrics.RecordCacheFill("placeholders")
	logger.Debug("filling placeholders", "ids", ids)

	text, err := e.transport.Get(ctx, placeholdersPath+joinIDs(ids))
	if err != nil {
		return err
	}
	rows, err := wire.DecodePlaceholderRows([]byte(text))
	if err != nil {
		return err
	}

	filled := make([]model.Placeholder, 0, len(rows))
	for _, row := range rows {
		p := model.Placeholder{ID: row.ID, Name: row.Name, HTMLID: row.HTMLID, UnitsCountMax: row.UnitsCountMax}
		for i := range actions {
			for j := range actions[i].Placeholders {
				if actions[i].Placeholders[j].ID == p.ID {
					actions[i].Placeholders[j] = p
				}
			}
		}
		filled = append(filled, p)
	}
	return e.edit(ctx, func(tx *store.Tx) error {
		for _, p := range filled {
			p.Save(tx)
		}
		return nil
	})
}

// edit runs a store transaction under the engine lock.
func (e *Engine) edit(ctx context.Context, fn func(tx *store.Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kv.Edit(ctx, fn)
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
