package vipcode

import (
	"net/http"
	"strconv"

	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	svc *Service
}

type HandlerParams struct {
	fx.In
	Service *Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{svc: p.Service}
}

func (h *Handler) Register(r *gin.RouterGroup) {
	codes := r.Group("/vip-codes")
	codes.POST("", h.createCode)
	codes.GET("", h.listCodes)
	codes.GET("/stats", h.stats)
	codes.GET("/lookup/:code", h.lookup)
	codes.POST("/redeem", h.redeem)
	codes.DELETE("/:id", h.deactivate)
	codes.GET("/:id/redemptions", h.redemptions)
}

func requireUser(c *gin.Context) (string, bool) {
	id := middleware.UserID(c.Request.Context())
	if id == "" {
		_ = c.Error(errutil.Unauthorized("missing user identity", nil))
		return "", false
	}
	return id, true
}

func (h *Handler) createCode(c *gin.Context) {
	creatorID, ok := requireUser(c)
	if !ok {
		return
	}
	var in CreateCodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	code, err := h.svc.CreateCode(c.Request.Context(), creatorID, in)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, code)
}

func (h *Handler) listCodes(c *gin.Context) {
	creatorID, ok := requireUser(c)
	if !ok {
		return
	}
	codes, err := h.svc.ListCreatorCodes(c.Request.Context(), creatorID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": codes})
}

func (h *Handler) lookup(c *gin.Context) {
	code, err := h.svc.LookupCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             code.ID,
		"code":           code.Code,
		"title":          code.Title,
		"description":    code.Description,
		"price_cents":    code.PriceCents,
		"benefits":       code.Benefits,
		"expires_at":     code.ExpiresAt,
		"remaining_uses": code.RemainingUses(),
	})
}

func (h *Handler) redeem(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	ctx := c.Request.Context()
	client := middleware.Client(ctx)
	req.Client = ClientInfo{
		IPAddress:   client.IPAddress,
		UserAgent:   client.UserAgent,
		Referrer:    client.Referrer,
		UTMSource:   client.UTMSource,
		UTMMedium:   client.UTMMedium,
		UTMCampaign: client.UTMCampaign,
		Channel:     client.Channel,
	}

	redemption, err := h.svc.RedeemCode(ctx, userID, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, redemption)
}

func (h *Handler) deactivate(c *gin.Context) {
	creatorID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.svc.DeactivateCode(c.Request.Context(), creatorID, c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) redemptions(c *gin.Context) {
	creatorID, ok := requireUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := h.svc.ListRedemptions(c.Request.Context(), creatorID, c.Param("id"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redemptions": items})
}

func (h *Handler) stats(c *gin.Context) {
	creatorID, ok := requireUser(c)
	if !ok {
		return
	}
	stats, err := h.svc.GetCreatorCodeStats(c.Request.Context(), creatorID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
