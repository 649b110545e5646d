package vipcode

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"creatorhub-platform/pkg/db/option"
	"creatorhub-platform/pkg/db/pagination"
	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/logger"
	"creatorhub-platform/pkg/repository"
	"creatorhub-platform/pkg/sequence"
	"creatorhub-platform/pkg/validation"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const generateAttempts = 5

var redemptionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vipcode_redemptions_total",
		Help: "VIP code redemption attempts by result",
	},
	[]string{"result"},
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	views ViewRecorder
	now   func() time.Time

	code       repository.Repository[VipCode]
	redemption repository.Repository[Redemption]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Views ViewRecorder `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	views := p.Views
	if views == nil {
		views = noopViews{}
	}
	return &Service{
		db:    p.DB,
		node:  p.Node,
		views: views,
		now:   func() time.Time { return time.Now().UTC() },

		code:       repository.ProvideStore[VipCode](p.DB),
		redemption: repository.ProvideStore[Redemption](p.DB),
	}
}

func toJSON(m map[string]any) (datatypes.JSON, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errutil.ValidationFailed("metadata must be a JSON object", err,
			errutil.WithDetails(errutil.Detail{Field: "metadata", Message: "invalid JSON"}))
	}
	return datatypes.JSON(b), nil
}

// CreateCode stores a new active code. An empty input code is generated and
// regenerated on collision; an explicit code that already exists is a
// Conflict.
func (s *Service) CreateCode(ctx context.Context, creatorID string, in CreateCodeInput) (*VipCode, error) {
	zapLog := logger.Ctx(ctx).With(zap.String("creator_id", creatorID))

	if creatorID == "" {
		return nil, errutil.Unauthorized("creator id is required", nil)
	}
	if in.Code != "" {
		if err := ValidateCodeFormat(in.Code); err != nil {
			return nil, err
		}
	}
	if err := validation.ValidateStruct(&in); err != nil {
		return nil, err
	}
	metadata, err := toJSON(in.Metadata)
	if err != nil {
		return nil, err
	}

	benefits := in.Benefits
	if benefits == nil {
		benefits = []string{}
	}

	now := s.now()
	code := &VipCode{
		ID:          s.node.Generate().String(),
		CreatorID:   creatorID,
		Title:       in.Title,
		Description: in.Description,
		MaxUses:     in.MaxUses,
		CurrentUses: 0,
		PriceCents:  in.PriceCents,
		Benefits:    datatypes.JSONSlice[string](benefits),
		ExpiresAt:   in.ExpiresAt,
		IsActive:    true,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if in.Code != "" {
		code.Code = Canonicalize(in.Code)
		if err := s.code.Create(ctx, code); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, errutil.Conflict("code already exists", err,
					errutil.WithDetails(errutil.Detail{Field: "code", Message: "already exists"}))
			}
			zapLog.Error("failed to create vip code", zap.Error(err))
			return nil, errutil.Persistence("create_code", err)
		}
		zapLog.Info("vip code created", zap.String("code_id", code.ID))
		return code, nil
	}

	for attempt := 1; attempt <= generateAttempts; attempt++ {
		generated, err := sequence.GenerateCode(sequence.DefaultCodeLength)
		if err != nil {
			return nil, errutil.Internal("failed to generate code", err)
		}
		code.Code = generated

		err = s.code.Create(ctx, code)
		if err == nil {
			zapLog.Info("vip code created", zap.String("code_id", code.ID), zap.Int("attempt", attempt))
			return code, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			zapLog.Error("failed to create vip code", zap.Error(err))
			return nil, errutil.Persistence("create_code", err)
		}
		zapLog.Warn("generated code collided, retrying", zap.Int("attempt", attempt))
	}
	return nil, errutil.Conflict("could not generate a unique code", nil)
}

// LookupCode returns the active code matching the canonical form of raw and
// records a view. The view is best effort.
func (s *Service) LookupCode(ctx context.Context, raw string) (*VipCode, error) {
	canonical := Canonicalize(raw)
	if canonical == "" {
		return nil, errutil.NotFound("code not found", nil)
	}

	code, err := s.code.FindOne(ctx, &VipCode{Code: canonical, IsActive: true})
	if err != nil {
		return nil, errutil.Persistence("lookup_code", err)
	}
	if code == nil {
		return nil, errutil.NotFound("code not found", nil)
	}

	if err := s.views.RecordView(ctx, code); err != nil {
		logger.Ctx(ctx).Warn("failed to record code view", zap.String("code_id", code.ID), zap.Error(err))
	}
	return code, nil
}

// RedeemCode runs the redemption checks in order (not found, usage limit,
// expiry, already redeemed) and then inserts the redemption and bumps
// current_uses, all in one transaction.
func (s *Service) RedeemCode(ctx context.Context, userID string, req RedeemRequest) (redemption *Redemption, err error) {
	zapLog := logger.Ctx(ctx).With(zap.String("user_id", userID), zap.String("code", Canonicalize(req.Code)))

	defer func() {
		result := "success"
		if err != nil {
			result = strings.ToLower(string(errutil.StatusOf(err)))
		}
		redemptionsTotal.WithLabelValues(result).Inc()
	}()

	if userID == "" {
		return nil, errutil.Unauthorized("user id is required", nil)
	}
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}
	metadata, err := toJSON(req.Metadata)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.code.WithTrx(tx).FindOne(ctx, &VipCode{Code: Canonicalize(req.Code), IsActive: true}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Persistence("lookup_code", err)
		}
		if code == nil {
			return errutil.NotFound("code not found", nil)
		}
		if code.IsExhausted() {
			return errutil.UsageLimitExceeded("code has reached its usage limit", nil)
		}
		if code.IsExpired(now) {
			return errutil.Expired("code has expired", nil)
		}

		existing, err := s.redemption.WithTrx(tx).FindOne(ctx, &Redemption{CodeID: code.ID, UserID: userID})
		if err != nil {
			return errutil.Persistence("check_redemption", err)
		}
		if existing != nil {
			return errutil.AlreadyRedeemed("code already redeemed by this user", nil)
		}

		r := &Redemption{
			ID:          s.node.Generate().String(),
			CodeID:      code.ID,
			UserID:      userID,
			IPAddress:   req.Client.IPAddress,
			UserAgent:   req.Client.UserAgent,
			Referrer:    req.Client.Referrer,
			UTMSource:   req.Client.UTMSource,
			UTMMedium:   req.Client.UTMMedium,
			UTMCampaign: req.Client.UTMCampaign,
			Channel:     req.Client.Channel,
			Metadata:    metadata,
			RedeemedAt:  now,
		}
		if code.PriceCents > 0 {
			// payment is authorized upstream; the reference is trusted as given
			if req.PaymentReference == "" {
				return errutil.ValidationFailed("payment reference is required for a paid code", nil,
					errutil.WithDetails(errutil.Detail{Field: "payment_reference", Message: "is required"}))
			}
			ref := req.PaymentReference
			r.PaymentReference = &ref
			r.AmountPaidCents = req.AmountPaidCents
			if r.AmountPaidCents == 0 {
				r.AmountPaidCents = code.PriceCents
			}
		}

		if err := s.redemption.WithTrx(tx).Create(ctx, r); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.AlreadyRedeemed("code already redeemed by this user", err)
			}
			return errutil.Persistence("create_redemption", err)
		}

		res := tx.Model(&VipCode{}).
			Where("id = ? AND current_uses < max_uses", code.ID).
			UpdateColumns(map[string]any{
				"current_uses": gorm.Expr("current_uses + 1"),
				"updated_at":   now,
			})
		if res.Error != nil {
			return errutil.Persistence("increment_uses", res.Error)
		}
		if res.RowsAffected == 0 {
			return errutil.UsageLimitExceeded("code has reached its usage limit", nil)
		}

		redemption = r
		return nil
	})
	if err != nil {
		zapLog.Warn("redemption rejected", zap.Error(err))
		return nil, err
	}

	zapLog.Info("code redeemed", zap.String("redemption_id", redemption.ID), zap.String("code_id", redemption.CodeID))
	return redemption, nil
}

func (s *Service) DeactivateCode(ctx context.Context, creatorID, codeID string) error {
	code, err := s.ownedCode(ctx, creatorID, codeID)
	if err != nil {
		return err
	}
	if !code.IsActive {
		return nil
	}

	if err := s.code.Update(ctx, codeID, map[string]any{"is_active": false, "updated_at": s.now()}); err != nil {
		return errutil.Persistence("deactivate_code", err)
	}

	logger.Ctx(ctx).Info("vip code deactivated", zap.String("code_id", codeID), zap.String("creator_id", creatorID))
	return nil
}

func (s *Service) ownedCode(ctx context.Context, creatorID, codeID string) (*VipCode, error) {
	code, err := s.code.FindOne(ctx, &VipCode{ID: codeID})
	if err != nil {
		return nil, errutil.Persistence("load_code", err)
	}
	if code == nil || code.CreatorID != creatorID {
		return nil, errutil.NotFound("code not found", nil)
	}
	return code, nil
}

func (s *Service) ListCreatorCodes(ctx context.Context, creatorID string) ([]*VipCode, error) {
	codes, err := s.code.Find(ctx, &VipCode{CreatorID: creatorID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}))
	if err != nil {
		return nil, errutil.Persistence("list_codes", err)
	}
	return codes, nil
}

// ListRedemptions returns the latest redemptions of a code owned by creatorID.
func (s *Service) ListRedemptions(ctx context.Context, creatorID, codeID string, limit int) ([]*Redemption, error) {
	if _, err := s.ownedCode(ctx, creatorID, codeID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > pagination.MaxLimit {
		limit = pagination.DefaultLimit
	}

	redemptions, err := s.redemption.Find(ctx, &Redemption{CodeID: codeID},
		option.WithSortBy(option.QuerySortBy{SortBy: "redeemed_at", OrderBy: "desc"}),
		option.WithLimit(limit))
	if err != nil {
		return nil, errutil.Persistence("list_redemptions", err)
	}
	return redemptions, nil
}

type redemptionAggregate struct {
	Count   int64
	Revenue int64
}

func (s *Service) GetCreatorCodeStats(ctx context.Context, creatorID string) (*CodeStats, error) {
	codes, err := s.code.Find(ctx, &VipCode{CreatorID: creatorID})
	if err != nil {
		return nil, errutil.Persistence("load_codes", err)
	}

	var agg redemptionAggregate
	if err := s.db.WithContext(ctx).
		Model(&Redemption{}).
		Select("COUNT(*) AS count, COALESCE(SUM(vip_code_redemptions.amount_paid_cents), 0) AS revenue").
		Joins("JOIN vip_codes ON vip_codes.id = vip_code_redemptions.code_id").
		Where("vip_codes.creator_id = ?", creatorID).
		Scan(&agg).Error; err != nil {
		return nil, errutil.Persistence("aggregate_redemptions", err)
	}

	stats := &CodeStats{
		CreatorID:        creatorID,
		TotalCodes:       int64(len(codes)),
		TotalRedemptions: agg.Count,
		RevenueCents:     agg.Revenue,
	}
	for _, c := range codes {
		if c.IsActive {
			stats.ActiveCodes++
		}
	}

	views, err := s.views.CreatorViews(ctx, creatorID)
	if err != nil {
		logger.Ctx(ctx).Warn("failed to read code views", zap.String("creator_id", creatorID), zap.Error(err))
	} else {
		stats.TotalViews = views
	}
	return stats, nil
}
