package flashsale

import (
	"io"
	"net/http"
	"time"

	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/logger"
	"creatorhub-platform/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const countdownInterval = time.Second

type Handler struct {
	tracker  Tracker
	interval time.Duration
	now      func() time.Time
}

type HandlerParams struct {
	fx.In
	Tracker Tracker `optional:"true"`
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{tracker: p.Tracker, interval: countdownInterval, now: time.Now}
}

// Register mounts the request/response routes.
func (h *Handler) Register(r *gin.RouterGroup) {
	sales := r.Group("/flash-sales")
	sales.POST("/quote", h.quote)
	sales.POST("/:id/views", h.recordView)
	sales.POST("/:id/conversions", h.recordConversion)
}

// RegisterStream mounts the countdown feed, which must sit outside any
// request timeout.
func (h *Handler) RegisterStream(r *gin.RouterGroup) {
	r.GET("/flash-sales/countdown", h.countdown)
}

type quoteRequest struct {
	Sale        Sale     `json:"sale"`
	SelectedIDs []string `json:"selected_ids"`
}

type quoteResponse struct {
	Totals             Totals     `json:"totals"`
	DiscountPercentage int64      `json:"discount_percentage"`
	Remaining          *Remaining `json:"remaining"`
	Ended              bool       `json:"ended"`
	SoldOut            bool       `json:"sold_out"`
	ShareSlug          string     `json:"share_slug,omitempty"`
}

func (h *Handler) quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}
	if err := validation.ValidateStruct(&req.Sale); err != nil {
		_ = c.Error(err)
		return
	}

	remaining := TimeRemaining(h.now(), req.Sale.EndsAt)
	c.JSON(http.StatusOK, quoteResponse{
		Totals:             SelectionTotals(req.Sale.Items, req.SelectedIDs),
		DiscountPercentage: DiscountPercentage(&req.Sale),
		Remaining:          remaining,
		Ended:              remaining == nil,
		SoldOut:            req.Sale.SoldOut(),
		ShareSlug:          ShareSlug(&req.Sale),
	})
}

// countdown streams the remaining time as server-sent events until the sale
// ends or the client disconnects.
func (h *Handler) countdown(c *gin.Context) {
	endsAt, err := time.Parse(time.RFC3339, c.Query("ends_at"))
	if err != nil {
		_ = c.Error(errutil.BadRequest("ends_at must be an RFC3339 timestamp", err))
		return
	}

	ctx := c.Request.Context()
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		logger.Ctx(ctx).Debug("write deadline not adjustable", zap.Error(err))
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	feed := watch(ctx, endsAt, h.interval, h.now)
	c.Stream(func(w io.Writer) bool {
		r, ok := <-feed
		if !ok {
			if ctx.Err() == nil {
				c.SSEvent("ended", gin.H{"ends_at": endsAt})
			}
			return false
		}
		c.SSEvent("remaining", r)
		return true
	})
}

func (h *Handler) recordView(c *gin.Context) {
	h.track(c, "view", func(t Tracker) error { return t.RecordView(c.Request.Context(), c.Param("id")) })
}

func (h *Handler) recordConversion(c *gin.Context) {
	h.track(c, "conversion", func(t Tracker) error { return t.RecordConversion(c.Request.Context(), c.Param("id")) })
}

// track never fails the request; counters are informational.
func (h *Handler) track(c *gin.Context, kind string, record func(Tracker) error) {
	saleID := c.Param("id")
	if h.tracker == nil {
		c.JSON(http.StatusAccepted, gin.H{"sale_id": saleID})
		return
	}

	ctx := c.Request.Context()
	if err := record(h.tracker); err != nil {
		logger.Ctx(ctx).Warn("failed to record flash sale "+kind, zap.String("sale_id", saleID), zap.Error(err))
		c.JSON(http.StatusAccepted, gin.H{"sale_id": saleID})
		return
	}

	counts, err := h.tracker.Counts(ctx, saleID)
	if err != nil {
		logger.Ctx(ctx).Warn("failed to read flash sale counters", zap.String("sale_id", saleID), zap.Error(err))
		c.JSON(http.StatusAccepted, gin.H{"sale_id": saleID})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sale_id": saleID, "views": counts.Views, "conversions": counts.Conversions})
}
