package goal

import (
	"errors"
	"net/http"
	"strconv"

	"creatorhub-platform/pkg/db/pagination"
	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/logger"
	"creatorhub-platform/pkg/middleware"
	"creatorhub-platform/pkg/task"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Handler struct {
	svc      *Service
	enqueuer task.Enqueuer
}

type HandlerParams struct {
	fx.In
	Service  *Service
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{svc: p.Service, enqueuer: p.Enqueuer}
}

func (h *Handler) Register(r *gin.RouterGroup) {
	goals := r.Group("/goals")
	goals.POST("", h.createGoal)
	goals.GET("", h.publicGoals)
	goals.GET("/:id", h.getGoal)
	goals.PATCH("/:id", h.updateGoal)
	goals.DELETE("/:id", h.deactivateGoal)
	goals.POST("/:id/contributions", h.recordContribution)
	goals.GET("/:id/contributions", h.listContributions)
	goals.POST("/:id/milestones/check", h.checkMilestones)

	r.GET("/creators/:id/goals", h.creatorGoals)
	r.GET("/creators/:id/goal-stats", h.creatorStats)
}

// RegisterWebhooks mounts the payment provider callbacks. r must verify the
// provider signature; the callbacks carry no user identity.
func (h *Handler) RegisterWebhooks(r *gin.RouterGroup) {
	r.POST("/contributions/:id", h.settlePayment)
}

func requireUser(c *gin.Context) (string, bool) {
	id := middleware.UserID(c.Request.Context())
	if id == "" {
		_ = c.Error(errutil.Unauthorized("missing user identity", nil))
		return "", false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return false
	}
	return true
}

func (h *Handler) createGoal(c *gin.Context) {
	creatorID, ok := requireUser(c)
	if !ok {
		return
	}
	var in CreateGoalInput
	if !bindJSON(c, &in) {
		return
	}

	goal, err := h.svc.CreateGoal(c.Request.Context(), creatorID, in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, newGoalView(goal))
}

func (h *Handler) publicGoals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	goals, err := h.svc.GetPublicGoals(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (h *Handler) getGoal(c *gin.Context) {
	detail, err := h.svc.GetGoal(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) updateGoal(c *gin.Context) {
	creatorID, ok := requireUser(c)
	if !ok {
		return
	}
	var in UpdateGoalInput
	if !bindJSON(c, &in) {
		return
	}

	goal, err := h.svc.UpdateGoal(c.Request.Context(), creatorID, c.Param("id"), in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newGoalView(goal))
}

func (h *Handler) deactivateGoal(c *gin.Context) {
	creatorID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.svc.DeactivateGoal(c.Request.Context(), creatorID, c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

type contributionResponse struct {
	Contribution      *ContributionView `json:"contribution"`
	MilestonesReached []*Milestone      `json:"milestones_reached"`
	PendingSettlement bool              `json:"pending_settlement"`
}

// recordContribution records the contribution and, when it completed
// immediately, reports milestones it unlocked.
func (h *Handler) recordContribution(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var in ContributionInput
	if !bindJSON(c, &in) {
		return
	}
	in.GoalID = c.Param("id")

	ctx := c.Request.Context()
	contribution, err := h.svc.RecordContribution(ctx, userID, in)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := contributionResponse{
		Contribution:      newContributionView(contribution),
		MilestonesReached: []*Milestone{},
		PendingSettlement: contribution.PaymentStatus == PaymentPending,
	}
	if contribution.PaymentStatus == PaymentCompleted {
		reached, err := h.svc.CheckMilestones(ctx, contribution.GoalID)
		if err != nil {
			// the contribution is stored; milestones are picked up on the next check
			logger.Ctx(ctx).Warn("milestone check failed after contribution", zap.Error(err))
		} else {
			resp.MilestonesReached = reached
		}
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listContributions(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	items, info, err := h.svc.ListContributions(c.Request.Context(), c.Param("id"), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contributions": items, "page_info": info})
}

func (h *Handler) checkMilestones(c *gin.Context) {
	reached, err := h.svc.CheckMilestones(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones_reached": reached})
}

func (h *Handler) creatorGoals(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"
	if includeInactive && middleware.UserID(c.Request.Context()) != c.Param("id") {
		includeInactive = false
	}

	goals, err := h.svc.GetCreatorGoals(c.Request.Context(), c.Param("id"), includeInactive)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (h *Handler) creatorStats(c *gin.Context) {
	stats, err := h.svc.GetCreatorStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type settleRequest struct {
	Status PaymentStatus `json:"status" binding:"required"`
}

// settlePayment is the payment provider webhook. Settlement runs on the task
// worker when a queue is configured, inline otherwise.
func (h *Handler) settlePayment(c *gin.Context) {
	var req settleRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	contributionID := c.Param("id")

	if h.enqueuer == nil {
		contribution, err := h.svc.SettleContribution(ctx, contributionID, req.Status)
		if err != nil {
			_ = c.Error(err)
			return
		}
		if contribution.PaymentStatus == PaymentCompleted {
			if _, err := h.svc.CheckMilestones(ctx, contribution.GoalID); err != nil {
				logger.Ctx(ctx).Warn("milestone check failed after settlement", zap.Error(err))
			}
		}
		c.JSON(http.StatusOK, newContributionView(contribution))
		return
	}

	t, err := NewSettleContributionTask(SettleContributionPayload{
		ContributionID: contributionID,
		Status:         req.Status,
		TraceID:        trace.SpanFromContext(ctx).SpanContext().TraceID().String(),
	})
	if err != nil {
		_ = c.Error(errutil.Internal("failed to build settlement task", err))
		return
	}
	if _, err := h.enqueuer.Enqueue(ctx, t); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		_ = c.Error(errutil.Internal("failed to enqueue settlement", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"contribution_id": contributionID, "status": "queued"})
}
