package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lattice-backend/internal/audit"
	"lattice-backend/internal/auth"
	"lattice-backend/internal/model"
	"lattice-backend/internal/schema"
	"lattice-backend/internal/store"
)

// Cascader deletes a record together with its schema-declared dependents.
// Everything, cascade rows, pivot detachment and the parent deletion, runs
// in one transaction; any failure leaves all rows unchanged.
type Cascader struct {
	models *model.Factory
	store  *store.Store
	audit  audit.Recorder
	logger zerolog.Logger
}

func NewCascader(models *model.Factory, st *store.Store, rec audit.Recorder, logger zerolog.Logger) *Cascader {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Cascader{models: models, store: st, audit: rec, logger: logger}
}

// Delete removes one record and its dependents. The identity guard and the
// already-deleted guard both fire before any mutation begins.
func (c *Cascader) Delete(ctx context.Context, m *model.Model, id string, user *auth.UserContext) error {
	if m.Doc.Identity && user != nil && user.ID == id {
		c.logger.Warn().Str("entity", m.Doc.Entity).Str("actor", user.ID).Msg("self-deletion rejected")
		return ForbiddenError()
	}

	// Soft-deleted records are gone as far as mutations are concerned.
	if _, err := m.Find(ctx, c.store.DB, id); err != nil {
		if err == store.ErrNotFound {
			return NotFoundError(m.Doc.Entity, id)
		}
		return fmt.Errorf("fetch %s/%s: %w", m.Doc.Entity, id, err)
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := c.cascadeChildren(ctx, tx, m, id); err != nil {
		return err
	}

	// Pivot rows for belongs-to-many style relations go with the parent.
	for _, relSpec := range m.Doc.Relations {
		rel := m.Relation(relSpec.Name)
		if rel == nil {
			continue
		}
		if sql, params, ok := rel.DetachSQL(id); ok {
			if _, err := store.Exec(ctx, tx, sql, params...); err != nil {
				return fmt.Errorf("detach %s: %w", rel.Name, m.Dialect().MapError(err))
			}
		}
	}

	var sql string
	var params []any
	if m.SoftDeleting() {
		sql, params = m.SoftDeleteSQL(id)
	} else {
		sql, params = m.HardDeleteSQL(id)
	}
	affected, err := store.Exec(ctx, tx, sql, params...)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", m.Doc.Entity, id, m.Dialect().MapError(err))
	}
	if affected == 0 {
		return NotFoundError(m.Doc.Entity, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	actor := ""
	if user != nil {
		actor = user.ID
	}
	c.audit.Record(audit.Entry{Entity: m.Doc.Entity, Action: "delete", RecordID: id, ActorID: actor})
	return nil
}

// cascadeChildren walks the enabled child relations and removes dependents
// row by row.
func (c *Cascader) cascadeChildren(ctx context.Context, tx store.Querier, m *model.Model, parentID string) error {
	for i := range m.Doc.Children {
		child := &m.Doc.Children[i]
		if !child.Enabled() {
			continue
		}

		childModel, err := c.models.Base(child.Entity)
		if err != nil {
			return fmt.Errorf("cascade %s: %w", child.Entity, err)
		}

		ids, err := c.childIDs(ctx, tx, childModel, child.ForeignKey, parentID)
		if err != nil {
			return fmt.Errorf("cascade %s: fetch rows: %w", child.Entity, err)
		}

		soft := softCascade(m.SoftDeleting(), childModel.SoftDeleting(), child.Mode)
		for _, childID := range ids {
			var sql string
			var params []any
			if soft {
				sql, params = childModel.SoftDeleteSQL(childID)
			} else {
				sql, params = childModel.HardDeleteSQL(childID)
			}
			if _, err := store.Exec(ctx, tx, sql, params...); err != nil {
				return fmt.Errorf("cascade %s/%v: %w", child.Entity, childID, childModel.Dialect().MapError(err))
			}
		}

		c.logger.Debug().
			Str("parent", m.Doc.Entity).
			Str("child", child.Entity).
			Int("rows", len(ids)).
			Bool("soft", soft).
			Msg("cascaded child deletions")
	}
	return nil
}

func (c *Cascader) childIDs(ctx context.Context, q store.Querier, childModel *model.Model, foreignKey, parentID string) ([]any, error) {
	pb := childModel.Dialect().NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		childModel.PrimaryKey(), childModel.Table(), foreignKey, pb.Add(parentID))
	if childModel.SoftDeleting() {
		sql += " AND deleted_at IS NULL"
	}
	rows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row[childModel.PrimaryKey()])
	}
	return ids, nil
}

// softCascade decides whether a child row is soft-deleted. Hard mode always
// removes; soft mode soft-deletes whenever the child supports it; auto
// follows the parent.
func softCascade(parentSoft, childSoft bool, mode string) bool {
	switch mode {
	case schema.CascadeHard:
		return false
	case schema.CascadeSoft:
		return childSoft
	default:
		return parentSoft && childSoft
	}
}
