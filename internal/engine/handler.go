package engine

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"lattice-backend/internal/audit"
	"lattice-backend/internal/auth"
	"lattice-backend/internal/listing"
	"lattice-backend/internal/model"
	"lattice-backend/internal/schema"
	"lattice-backend/internal/store"
)

// reservedParams are listing parameters that are never field filters.
var reservedParams = map[string]bool{
	"page": true, "per_page": true, "sort": true, "order": true,
	"q": true, "contexts": true,
}

type Handler struct {
	schemas  *schema.Service
	models   *model.Factory
	store    *store.Store
	authz    auth.Authorizer
	audit    audit.Recorder
	cascader *Cascader
	logger   zerolog.Logger
}

func NewHandler(schemas *schema.Service, models *model.Factory, st *store.Store, authz auth.Authorizer, rec audit.Recorder, logger zerolog.Logger) *Handler {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Handler{
		schemas:  schemas,
		models:   models,
		store:    st,
		authz:    authz,
		audit:    rec,
		cascader: NewCascader(models, st, rec, logger),
		logger:   logger,
	}
}

// List handles GET /api/:entity
func (h *Handler) List(c *fiber.Ctx) error {
	doc, err := h.resolveDoc(c)
	if err != nil {
		return err
	}
	if err := ValidateAccess(doc, "read", h.authz, auth.GetUser(c), h.logger); err != nil {
		return err
	}

	eng := h.listingFor(doc)
	h.applyQuery(c, eng)

	result, err := eng.Run(c.Context(), h.store.DB)
	if err != nil {
		return fmt.Errorf("list %s: %w", doc.Entity, err)
	}
	return c.JSON(result)
}

// DetailList handles GET /api/:entity/:id/:relation, the nested listing of
// a parent record's related rows.
func (h *Handler) DetailList(c *fiber.Ctx) error {
	doc, err := h.resolveDoc(c)
	if err != nil {
		return err
	}
	if err := ValidateAccess(doc, "read", h.authz, auth.GetUser(c), h.logger); err != nil {
		return err
	}

	m, err := h.models.Model(doc.Entity)
	if err != nil {
		return h.mapSchemaError(err)
	}

	relName := c.Params("relation")
	rel := m.Relation(relName)
	if rel == nil {
		return NotFoundError(doc.Entity, relName)
	}

	parentID := c.Params("id")

	if rel.Kind == model.HasMany {
		targetDoc := rel.Target.Doc
		eng := h.listingFor(targetDoc)
		h.applyQuery(c, eng)
		eng.Extend(listing.Constraint{Field: rel.Spec.ForeignKey, Value: parentID})

		result, err := eng.Run(c.Context(), h.store.DB)
		if err != nil {
			return fmt.Errorf("detail list %s.%s: %w", doc.Entity, relName, err)
		}
		return c.JSON(result)
	}

	// Pivot-backed relations are served whole; their row sets are bounded by
	// the pivot, not by client pagination.
	rows, err := m.Related(c.Context(), h.store.DB, relName, parentID)
	if err != nil {
		return fmt.Errorf("detail list %s.%s: %w", doc.Entity, relName, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(listing.Result{Rows: rows, Count: int64(len(rows))})
}

// Schema handles GET /api/:entity/schema?contexts=list,form
func (h *Handler) Schema(c *fiber.Ctx) error {
	doc, err := h.resolveDoc(c)
	if err != nil {
		return err
	}
	if err := ValidateAccess(doc, "read", h.authz, auth.GetUser(c), h.logger); err != nil {
		return err
	}

	projection, err := h.schemas.ProjectFor(doc.Entity, c.Query("contexts"))
	if err != nil {
		return h.mapSchemaError(err)
	}
	return c.JSON(projection)
}

// GetByID handles GET /api/:entity/:id
func (h *Handler) GetByID(c *fiber.Ctx) error {
	doc, err := h.resolveDoc(c)
	if err != nil {
		return err
	}
	if err := ValidateAccess(doc, "read", h.authz, auth.GetUser(c), h.logger); err != nil {
		return err
	}

	m, err := h.models.Model(doc.Entity)
	if err != nil {
		return h.mapSchemaError(err)
	}

	id := c.Params("id")
	row, err := m.Find(c.Context(), h.store.DB, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(doc.Entity, id)
		}
		return fmt.Errorf("get %s/%s: %w", doc.Entity, id, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

// Create handles POST /api/:entity
func (h *Handler) Create(c *fiber.Ctx) error {
	doc, err := h.resolveDoc(c)
	if err != nil {
		return err
	}
	user := auth.GetUser(c)
	if err := ValidateAccess(doc, "create", h.authz, user, h.logger); err != nil {
		return err
	}

	m, err := h.models.Model(doc.Entity)
	if err != nil {
		return h.mapSchemaError(err)
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	plan, details := PlanWrite(m, body, nil)
	if len(details) > 0 {
		return ValidationError(details)
	}

	record, err := ExecuteWritePlan(c.Context(), h.store, plan)
	if err != nil {
		return h.mapWriteError(err)
	}

	h.record(user, doc.Entity, "create", record[m.PrimaryKey()])
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": record})
}

// Update handles PUT /api/:entity/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	doc, err := h.resolveDoc(c)
	if err != nil {
		return err
	}
	user := auth.GetUser(c)
	if err := ValidateAccess(doc, "update", h.authz, user, h.logger); err != nil {
		return err
	}

	m, err := h.models.Model(doc.Entity)
	if err != nil {
		return h.mapSchemaError(err)
	}

	id := c.Params("id")
	if _, err := m.Find(c.Context(), h.store.DB, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(doc.Entity, id)
		}
		return fmt.Errorf("fetch %s/%s: %w", doc.Entity, id, err)
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}

	plan, details := PlanWrite(m, body, id)
	if len(details) > 0 {
		return ValidationError(details)
	}

	record, err := ExecuteWritePlan(c.Context(), h.store, plan)
	if err != nil {
		return h.mapWriteError(err)
	}

	h.record(user, doc.Entity, "update", id)
	return c.JSON(fiber.Map{"data": record})
}

// Delete handles DELETE /api/:entity/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	doc, err := h.resolveDoc(c)
	if err != nil {
		return err
	}
	user := auth.GetUser(c)
	if err := ValidateAccess(doc, "delete", h.authz, user, h.logger); err != nil {
		return err
	}

	m, err := h.models.Model(doc.Entity)
	if err != nil {
		return h.mapSchemaError(err)
	}

	id := c.Params("id")
	if err := h.cascader.Delete(c.Context(), m, id, user); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// Restore handles POST /api/:entity/:id/restore. Restoring does not cascade
// to children.
func (h *Handler) Restore(c *fiber.Ctx) error {
	doc, err := h.resolveDoc(c)
	if err != nil {
		return err
	}
	user := auth.GetUser(c)
	if err := ValidateAccess(doc, "update", h.authz, user, h.logger); err != nil {
		return err
	}

	m, err := h.models.Model(doc.Entity)
	if err != nil {
		return h.mapSchemaError(err)
	}

	id := c.Params("id")
	if _, err := m.FindTrashed(c.Context(), h.store.DB, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(doc.Entity, id)
		}
		return fmt.Errorf("fetch trashed %s/%s: %w", doc.Entity, id, err)
	}

	sql, params := m.RestoreSQL(id)
	if _, err := store.Exec(c.Context(), h.store.DB, sql, params...); err != nil {
		return fmt.Errorf("restore %s/%s: %w", doc.Entity, id, err)
	}

	h.record(user, doc.Entity, "restore", id)

	row, err := m.Find(c.Context(), h.store.DB, id)
	if err != nil {
		return fmt.Errorf("fetch restored %s/%s: %w", doc.Entity, id, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) resolveDoc(c *fiber.Ctx) (*schema.Document, error) {
	name := c.Params("entity")
	doc, err := h.schemas.Load(name)
	if err != nil {
		return nil, h.mapSchemaError(err)
	}
	return doc, nil
}

func (h *Handler) listingFor(doc *schema.Document) *listing.Engine {
	eng := listing.New(doc.Table, doc.PrimaryKey.Field, listing.FromDocument(doc), doc.DefaultSort, h.store.Dialect, h.logger)
	if doc.SoftDelete && h.schemas.SoftDeleteRegistered() {
		eng.WithSoftDelete()
	}
	return eng
}

// applyQuery feeds the request's query parameters through the listing
// engine's whitelisted entry points.
func (h *Handler) applyQuery(c *fiber.Ctx, eng *listing.Engine) {
	filterParams := make(map[string]string)
	for key, value := range c.Queries() {
		if reservedParams[key] {
			continue
		}
		filterParams[key] = value
	}
	eng.ApplyFilters(filterParams)
	eng.ApplySearch(c.Query("q"))
	eng.ApplySort(c.Query("sort"), c.Query("order"))

	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("per_page"))
	eng.Paginate(page, size)
}

func (h *Handler) record(user *auth.UserContext, entity, action string, id any) {
	actor := ""
	if user != nil {
		actor = user.ID
	}
	h.audit.Record(audit.Entry{
		Entity:   entity,
		Action:   action,
		RecordID: fmt.Sprintf("%v", id),
		ActorID:  actor,
	})
}

// mapSchemaError turns schema and model configuration failures into the
// error taxonomy.
func (h *Handler) mapSchemaError(err error) error {
	var notFound *schema.NotFoundError
	if errors.As(err, &notFound) {
		return UnknownEntityError(notFound.Entity)
	}
	var invalid *schema.ValidationError
	if errors.As(err, &invalid) {
		h.logger.Error().Str("entity", invalid.Entity).Strs("problems", invalid.Problems).Msg("schema rejected")
		return ConfigurationError(fmt.Sprintf("Schema for %s is invalid", invalid.Entity))
	}
	var config *model.ConfigError
	if errors.As(err, &config) {
		h.logger.Error().Str("entity", config.Entity).Str("reason", config.Reason).Msg("model configuration rejected")
		return ConfigurationError(fmt.Sprintf("Configuration for %s is invalid", config.Entity))
	}
	return err
}

// mapWriteError converts data errors raised mid-transaction, after the
// rollback has already happened, into structured conflict errors.
func (h *Handler) mapWriteError(err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, store.ErrUniqueViolation) {
		return ConflictError("A record with this value already exists")
	}
	if errors.Is(err, store.ErrForeignKeyViolation) {
		return ConflictError("A referenced record does not exist")
	}
	if errors.Is(err, store.ErrNotFound) {
		return NewAppError("NOT_FOUND", 404, "Record not found")
	}
	return err
}
