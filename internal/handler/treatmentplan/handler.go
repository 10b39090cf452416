package treatmentplan

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/middleware"
	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/service/treatmentplan"
	"github.com/jwalitptl/physio-api/pkg/errors"
	"github.com/jwalitptl/physio-api/pkg/httputil"
	"github.com/jwalitptl/physio-api/pkg/validator"
)

type Handler struct {
	service treatmentplan.TreatmentPlanService
}

func NewHandler(service treatmentplan.TreatmentPlanService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	plans := r.Group("/treatment-plans")
	{
		plans.GET("", h.ListTreatmentPlans)
		plans.POST("", middleware.RequireRole(model.RolePhysiotherapist, model.RoleAdmin), h.CreateTreatmentPlan)
		plans.GET("/:id", h.GetTreatmentPlan)
		plans.PUT("/:id", h.UpdateTreatmentPlan)
		plans.DELETE("/:id", h.DeleteTreatmentPlan)

		plans.GET("/:id/exercises", h.ListExercises)
		plans.POST("/:id/exercises", h.AddExercise)
		plans.DELETE("/:id/exercises/:exerciseId", h.RemoveExercise)
	}
}

func (h *Handler) ListTreatmentPlans(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	plans, err := h.service.List(c.Request.Context(), middleware.CurrentActor(c), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, plans)
}

func (h *Handler) GetTreatmentPlan(c *gin.Context) {
	id, ok := pathID(c, "id", "treatment plan")
	if !ok {
		return
	}

	plan, err := h.service.Get(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, plan)
}

func (h *Handler) CreateTreatmentPlan(c *gin.Context) {
	var req model.CreateTreatmentPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(validator.Message(err), err))
		return
	}

	plan, err := h.service.Create(c.Request.Context(), middleware.CurrentActor(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, plan)
}

func (h *Handler) UpdateTreatmentPlan(c *gin.Context) {
	id, ok := pathID(c, "id", "treatment plan")
	if !ok {
		return
	}

	var req model.UpdateTreatmentPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(validator.Message(err), err))
		return
	}

	plan, err := h.service.Update(c.Request.Context(), middleware.CurrentActor(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, plan)
}

func (h *Handler) DeleteTreatmentPlan(c *gin.Context) {
	id, ok := pathID(c, "id", "treatment plan")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.CurrentActor(c), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"message": "Treatment plan deleted successfully"})
}

func (h *Handler) ListExercises(c *gin.Context) {
	id, ok := pathID(c, "id", "treatment plan")
	if !ok {
		return
	}

	items, err := h.service.ListExercises(c.Request.Context(), middleware.CurrentActor(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, items)
}

func (h *Handler) AddExercise(c *gin.Context) {
	id, ok := pathID(c, "id", "treatment plan")
	if !ok {
		return
	}

	var input model.PrescribedExerciseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		httputil.RespondWithError(c, errors.BadRequest(validator.Message(err), err))
		return
	}

	item, err := h.service.AddExercise(c.Request.Context(), middleware.CurrentActor(c), id, &input)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, item)
}

func (h *Handler) RemoveExercise(c *gin.Context) {
	planID, ok := pathID(c, "id", "treatment plan")
	if !ok {
		return
	}
	itemID, ok := pathID(c, "exerciseId", "prescribed exercise")
	if !ok {
		return
	}

	if err := h.service.RemoveExercise(c.Request.Context(), middleware.CurrentActor(c), planID, itemID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, gin.H{"message": "Exercise removed from treatment plan"})
}

// pathID parses a uuid path parameter. A malformed id cannot name an
// existing row, so it is reported as not found.
func pathID(c *gin.Context, param, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httputil.RespondWithError(c, errors.NotFound(resource, err))
		return uuid.Nil, false
	}
	return id, true
}

func parseFilters(c *gin.Context) (model.TreatmentPlanFilters, error) {
	filters := model.TreatmentPlanFilters{Status: c.Query("status")}

	for _, f := range []struct {
		param string
		dst   **uuid.UUID
	}{
		{"patient_id", &filters.PatientID},
		{"physiotherapist_id", &filters.PhysiotherapistID},
	} {
		raw := c.Query(f.param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return filters, errors.BadRequest("invalid "+f.param, err)
		}
		*f.dst = &id
	}
	return filters, nil
}
