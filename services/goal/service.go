package goal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"creatorhub-platform/pkg/db/option"
	"creatorhub-platform/pkg/db/pagination"
	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/logger"
	"creatorhub-platform/pkg/repository"
	"creatorhub-platform/pkg/validation"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const recentContributionLimit = 10

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	goal         repository.Repository[Goal]
	contribution repository.Repository[Contribution]
	milestone    repository.Repository[Milestone]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		now:  func() time.Time { return time.Now().UTC() },

		goal:         repository.ProvideStore[Goal](p.DB),
		contribution: repository.ProvideStore[Contribution](p.DB),
		milestone:    repository.ProvideStore[Milestone](p.DB),
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

func checkWindow(startsAt, endsAt *time.Time) error {
	if startsAt != nil && endsAt != nil && !endsAt.After(*startsAt) {
		return errutil.ValidationFailed("ends_at must be after starts_at", nil,
			errutil.WithDetails(errutil.Detail{Field: "ends_at", Message: "must be after starts_at"}))
	}
	return nil
}

// CreateGoal stores the goal together with its four default milestones in a
// single transaction.
func (s *Service) CreateGoal(ctx context.Context, creatorID string, in CreateGoalInput) (*Goal, error) {
	zapLog := logger.Ctx(ctx).With(zap.String("creator_id", creatorID))

	if creatorID == "" {
		return nil, errutil.Unauthorized("creator id is required", nil)
	}
	if err := validation.ValidateStruct(&in); err != nil {
		return nil, err
	}
	if err := checkWindow(in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}
	metadata, err := toJSON(in.Metadata)
	if err != nil {
		return nil, err
	}

	now := s.now()
	goal := &Goal{
		ID:                 s.node.Generate().String(),
		CreatorID:          creatorID,
		Title:              in.Title,
		Description:        in.Description,
		TargetAmountCents:  in.TargetAmountCents,
		CurrentAmountCents: 0,
		Emoji:              in.Emoji,
		Color:              in.Color,
		ImageURL:           in.ImageURL,
		StartsAt:           in.StartsAt,
		EndsAt:             in.EndsAt,
		IsPublic:           in.IsPublic,
		ShowProgress:       in.ShowProgress,
		CelebrationMessage: in.CelebrationMessage,
		Metadata:           metadata,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	milestones := make([]*Milestone, 0, len(defaultMilestones))
	for _, tpl := range defaultMilestones {
		milestones = append(milestones, &Milestone{
			ID:              s.node.Generate().String(),
			GoalID:          goal.ID,
			Percentage:      tpl.Percentage,
			AmountCents:     MilestoneAmount(goal.TargetAmountCents, tpl.Percentage),
			Title:           tpl.Title,
			Message:         tpl.Message,
			CelebrationType: celebrationFor(tpl.Percentage),
			CreatedAt:       now,
		})
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.goal.WithTrx(tx).Create(ctx, goal); err != nil {
			return errutil.Persistence("create_goal", err)
		}
		if err := s.milestone.WithTrx(tx).BatchCreate(ctx, milestones); err != nil {
			return errutil.Persistence("create_milestones", err)
		}
		return nil
	}); err != nil {
		zapLog.Error("failed to create goal", zap.Error(err))
		return nil, err
	}

	zapLog.Info("goal created", zap.String("goal_id", goal.ID), zap.Int64("target_amount_cents", goal.TargetAmountCents))
	return goal, nil
}

// RecordContribution checks the goal preconditions in order (not found,
// expired, already completed) and records the contribution. Contributions
// without a payment reference complete immediately and move the goal total in
// the same transaction.
func (s *Service) RecordContribution(ctx context.Context, userID string, in ContributionInput) (*Contribution, error) {
	zapLog := logger.Ctx(ctx).With(zap.String("user_id", userID), zap.String("goal_id", in.GoalID))

	if userID == "" {
		return nil, errutil.Unauthorized("user id is required", nil)
	}
	if err := validation.ValidateStruct(&in); err != nil {
		return nil, err
	}

	now := s.now()
	contribution := &Contribution{
		ID:            s.node.Generate().String(),
		GoalID:        in.GoalID,
		ContributorID: userID,
		AmountCents:   in.AmountCents,
		Message:       in.Message,
		IsAnonymous:   in.IsAnonymous,
		PaymentStatus: PaymentCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.PaymentReference != "" {
		ref := in.PaymentReference
		contribution.PaymentReference = &ref
		contribution.PaymentStatus = PaymentPending
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		goal, err := s.goal.WithTrx(tx).FindOne(ctx, &Goal{ID: in.GoalID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Persistence("load_goal", err)
		}
		if goal == nil || !goal.IsActive {
			return errutil.NotFound("goal not found", nil)
		}
		if goal.HasEnded(now) {
			return errutil.Expired("goal has ended", nil)
		}
		if goal.IsCompleted() {
			return errutil.AlreadyCompleted("goal has already reached its target", nil)
		}

		if err := s.contribution.WithTrx(tx).Create(ctx, contribution); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errutil.Conflict("payment reference already recorded", err)
			}
			return errutil.Persistence("create_contribution", err)
		}

		if contribution.PaymentStatus == PaymentCompleted {
			return s.incrementGoal(tx, goal.ID, contribution.AmountCents, now)
		}
		return nil
	}); err != nil {
		zapLog.Warn("contribution rejected", zap.Error(err))
		return nil, err
	}

	zapLog.Info("contribution recorded",
		zap.String("contribution_id", contribution.ID),
		zap.String("payment_status", string(contribution.PaymentStatus)),
	)
	return contribution, nil
}

func (s *Service) incrementGoal(tx *gorm.DB, goalID string, amount int64, now time.Time) error {
	res := tx.Model(&Goal{}).
		Where("id = ?", goalID).
		UpdateColumns(map[string]any{
			"current_amount_cents": gorm.Expr("current_amount_cents + ?", amount),
			"updated_at":           now,
		})
	if res.Error != nil {
		return errutil.Persistence("increment_goal", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.Persistence("increment_goal", gorm.ErrRecordNotFound)
	}
	return nil
}

// SettleContribution moves a pending contribution to completed or failed.
// Settling an already settled contribution returns it unchanged.
func (s *Service) SettleContribution(ctx context.Context, contributionID string, status PaymentStatus) (*Contribution, error) {
	zapLog := logger.Ctx(ctx).With(zap.String("contribution_id", contributionID), zap.String("status", string(status)))

	if status != PaymentCompleted && status != PaymentFailed {
		return nil, errutil.ValidationFailed("status must be completed or failed", nil,
			errutil.WithDetails(errutil.Detail{Field: "status", Message: "must be one of completed failed"}))
	}

	var settled *Contribution
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.contribution.WithTrx(tx).FindOne(ctx, &Contribution{ID: contributionID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Persistence("load_contribution", err)
		}
		if current == nil {
			return errutil.NotFound("contribution not found", nil)
		}
		if current.PaymentStatus != PaymentPending {
			if current.PaymentStatus != status {
				zapLog.Warn("contribution already settled with another status", zap.String("current", string(current.PaymentStatus)))
			}
			settled = current
			return nil
		}

		now := s.now()
		res := tx.Model(&Contribution{}).
			Where("id = ? AND payment_status = ?", contributionID, PaymentPending).
			Updates(map[string]any{"payment_status": status, "updated_at": now})
		if res.Error != nil {
			return errutil.Persistence("settle_contribution", res.Error)
		}
		if res.RowsAffected == 0 {
			// settled concurrently
			latest, err := s.contribution.WithTrx(tx).FindOne(ctx, &Contribution{ID: contributionID})
			if err != nil {
				return errutil.Persistence("load_contribution", err)
			}
			settled = latest
			return nil
		}

		current.PaymentStatus = status
		current.UpdatedAt = now
		settled = current

		if status == PaymentCompleted {
			return s.incrementGoal(tx, current.GoalID, current.AmountCents, now)
		}
		return nil
	}); err != nil {
		zapLog.Error("failed to settle contribution", zap.Error(err))
		return nil, err
	}

	zapLog.Info("contribution settled", zap.String("payment_status", string(settled.PaymentStatus)))
	return settled, nil
}

// CheckMilestones flips every unreached milestone at or below the current
// progress and returns only the ones this call flipped.
func (s *Service) CheckMilestones(ctx context.Context, goalID string) ([]*Milestone, error) {
	zapLog := logger.Ctx(ctx).With(zap.String("goal_id", goalID))

	goal, err := s.goal.FindOne(ctx, &Goal{ID: goalID})
	if err != nil {
		return nil, errutil.Persistence("load_goal", err)
	}
	if goal == nil {
		return nil, errutil.NotFound("goal not found", nil)
	}

	progress := goal.ProgressPercent()
	candidates, err := s.milestone.Find(ctx, &Milestone{GoalID: goalID},
		option.ApplyOperator(
			option.Condition{Field: "is_reached", Operator: option.EQ, Value: false},
			option.Condition{Field: "percentage", Operator: option.LTE, Value: progress},
		),
		option.WithSortBy(option.QuerySortBy{SortBy: "percentage", OrderBy: "asc"}),
	)
	if err != nil {
		return nil, errutil.Persistence("load_milestones", err)
	}

	reached := make([]*Milestone, 0, len(candidates))
	now := s.now()
	for _, m := range candidates {
		res := s.db.WithContext(ctx).Model(&Milestone{}).
			Where("id = ? AND is_reached = ?", m.ID, false).
			Updates(map[string]any{"is_reached": true, "reached_at": now})
		if res.Error != nil {
			return nil, errutil.Persistence("mark_milestone", res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		m.IsReached = true
		m.ReachedAt = &now
		reached = append(reached, m)
	}

	if len(reached) > 0 {
		zapLog.Info("milestones reached", zap.Int("count", len(reached)), zap.Float64("progress", progress))
	}
	return reached, nil
}

// UpdateGoal applies the non-nil fields of in. A new target re-derives the
// milestone amounts and flips any milestone the current total already
// passes; reached flags are never reset.
func (s *Service) UpdateGoal(ctx context.Context, creatorID, goalID string, in UpdateGoalInput) (*Goal, error) {
	zapLog := logger.Ctx(ctx).With(zap.String("creator_id", creatorID), zap.String("goal_id", goalID))

	if err := validation.ValidateStruct(&in); err != nil {
		return nil, err
	}

	var (
		updated       *Goal
		targetChanged bool
	)
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		goal, err := s.goal.WithTrx(tx).FindOne(ctx, &Goal{ID: goalID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Persistence("load_goal", err)
		}
		if goal == nil || goal.CreatorID != creatorID {
			return errutil.NotFound("goal not found", nil)
		}

		startsAt, endsAt := goal.StartsAt, goal.EndsAt
		if in.StartsAt != nil {
			startsAt = in.StartsAt
		}
		if in.EndsAt != nil {
			endsAt = in.EndsAt
		}
		if err := checkWindow(startsAt, endsAt); err != nil {
			return err
		}

		updates := map[string]any{"updated_at": s.now()}
		if in.Title != nil {
			updates["title"] = *in.Title
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.TargetAmountCents != nil {
			updates["target_amount_cents"] = *in.TargetAmountCents
		}
		if in.Emoji != nil {
			updates["emoji"] = *in.Emoji
		}
		if in.Color != nil {
			updates["color"] = *in.Color
		}
		if in.ImageURL != nil {
			updates["image_url"] = *in.ImageURL
		}
		if in.StartsAt != nil {
			updates["starts_at"] = *in.StartsAt
		}
		if in.EndsAt != nil {
			updates["ends_at"] = *in.EndsAt
		}
		if in.IsPublic != nil {
			updates["is_public"] = *in.IsPublic
		}
		if in.ShowProgress != nil {
			updates["show_progress"] = *in.ShowProgress
		}
		if in.CelebrationMessage != nil {
			updates["celebration_message"] = *in.CelebrationMessage
		}
		if in.Metadata != nil {
			metadata, err := toJSON(in.Metadata)
			if err != nil {
				return err
			}
			updates["metadata"] = metadata
		}

		if err := s.goal.WithTrx(tx).Update(ctx, goalID, updates); err != nil {
			return errutil.Persistence("update_goal", err)
		}

		if in.TargetAmountCents != nil && *in.TargetAmountCents != goal.TargetAmountCents {
			targetChanged = true
			milestones, err := s.milestone.WithTrx(tx).Find(ctx, &Milestone{GoalID: goalID})
			if err != nil {
				return errutil.Persistence("load_milestones", err)
			}
			for _, m := range milestones {
				amount := MilestoneAmount(*in.TargetAmountCents, m.Percentage)
				if amount == m.AmountCents {
					continue
				}
				if err := s.milestone.WithTrx(tx).Update(ctx, m.ID, map[string]any{"amount_cents": amount}); err != nil {
					return errutil.Persistence("update_milestones", err)
				}
			}
		}

		updated, err = s.goal.WithTrx(tx).FindOne(ctx, &Goal{ID: goalID})
		if err != nil {
			return errutil.Persistence("load_goal", err)
		}
		return nil
	}); err != nil {
		zapLog.Warn("failed to update goal", zap.Error(err))
		return nil, err
	}

	if targetChanged {
		if _, err := s.CheckMilestones(ctx, goalID); err != nil {
			// the update is stored; milestones are picked up on the next check
			zapLog.Warn("milestone check failed after target change", zap.Error(err))
		}
	}

	return updated, nil
}

func (s *Service) DeactivateGoal(ctx context.Context, creatorID, goalID string) error {
	goal, err := s.goal.FindOne(ctx, &Goal{ID: goalID})
	if err != nil {
		return errutil.Persistence("load_goal", err)
	}
	if goal == nil || goal.CreatorID != creatorID {
		return errutil.NotFound("goal not found", nil)
	}
	if !goal.IsActive {
		return nil
	}

	if err := s.goal.Update(ctx, goalID, map[string]any{"is_active": false, "updated_at": s.now()}); err != nil {
		return errutil.Persistence("deactivate_goal", err)
	}

	logger.Ctx(ctx).Info("goal deactivated", zap.String("goal_id", goalID), zap.String("creator_id", creatorID))
	return nil
}

// GetGoal loads an active goal with its milestones and latest completed
// contributions.
func (s *Service) GetGoal(ctx context.Context, goalID string) (*GoalDetail, error) {
	var (
		goal          *Goal
		milestones    []*Milestone
		contributions []*Contribution
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		goal, err = s.goal.FindOne(gctx, &Goal{ID: goalID})
		if err != nil {
			return errutil.Persistence("load_goal", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		milestones, err = s.milestone.Find(gctx, &Milestone{GoalID: goalID},
			option.WithSortBy(option.QuerySortBy{SortBy: "percentage", OrderBy: "asc"}))
		if err != nil {
			return errutil.Persistence("load_milestones", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		contributions, err = s.contribution.Find(gctx, &Contribution{GoalID: goalID, PaymentStatus: PaymentCompleted},
			option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
			option.WithLimit(recentContributionLimit))
		if err != nil {
			return errutil.Persistence("load_contributions", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Ctx(ctx).Error("failed to load goal", zap.String("goal_id", goalID), zap.Error(err))
		return nil, err
	}

	if goal == nil || !goal.IsActive {
		return nil, errutil.NotFound("goal not found", nil)
	}

	views := make([]*ContributionView, 0, len(contributions))
	for _, c := range contributions {
		views = append(views, newContributionView(c))
	}

	return &GoalDetail{
		Goal:                newGoalView(goal),
		Milestones:          milestones,
		RecentContributions: views,
	}, nil
}

// ListContributions pages through completed contributions, newest first.
func (s *Service) ListContributions(ctx context.Context, goalID string, page pagination.Pagination) ([]*ContributionView, *pagination.PageInfo, error) {
	page = page.Normalize()

	rows, err := s.contribution.Find(ctx, &Contribution{GoalID: goalID, PaymentStatus: PaymentCompleted},
		option.ApplyPagination(page))
	if err != nil {
		return nil, nil, errutil.Persistence("list_contributions", err)
	}

	rows, info := pagination.BuildCursorPageInfo(rows, page.Limit, func(c *Contribution) string {
		cursor, _ := pagination.EncodeCursor(pagination.NewCursor(c.CreatedAt, c.ID))
		return cursor
	})

	views := make([]*ContributionView, 0, len(rows))
	for _, c := range rows {
		views = append(views, newContributionView(c))
	}
	return views, info, nil
}

func (s *Service) GetPublicGoals(ctx context.Context, limit int) ([]*GoalView, error) {
	if limit <= 0 || limit > pagination.MaxLimit {
		limit = pagination.DefaultLimit
	}

	goals, err := s.goal.Find(ctx, &Goal{IsActive: true, IsPublic: true},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}),
		option.WithLimit(limit))
	if err != nil {
		return nil, errutil.Persistence("list_public_goals", err)
	}
	return toViews(goals), nil
}

func (s *Service) GetCreatorGoals(ctx context.Context, creatorID string, includeInactive bool) ([]*GoalView, error) {
	query := &Goal{CreatorID: creatorID}
	if !includeInactive {
		query.IsActive = true
	}

	goals, err := s.goal.Find(ctx, query,
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}))
	if err != nil {
		return nil, errutil.Persistence("list_creator_goals", err)
	}
	return toViews(goals), nil
}

func toViews(goals []*Goal) []*GoalView {
	views := make([]*GoalView, 0, len(goals))
	for _, g := range goals {
		views = append(views, newGoalView(g))
	}
	return views
}

type contributionAggregate struct {
	Total        int64
	Count        int64
	Contributors int64
}

// GetCreatorStats aggregates goal counts and completed contributions across
// every goal the creator owns.
func (s *Service) GetCreatorStats(ctx context.Context, creatorID string) (*CreatorStats, error) {
	var (
		goals []*Goal
		agg   contributionAggregate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		goals, err = s.goal.Find(gctx, &Goal{CreatorID: creatorID})
		if err != nil {
			return errutil.Persistence("load_goals", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Model(&Contribution{}).
			Select("COALESCE(SUM(goal_contributions.amount_cents), 0) AS total, "+
				"COUNT(*) AS count, "+
				"COUNT(DISTINCT goal_contributions.contributor_id) AS contributors").
			Joins("JOIN goals ON goals.id = goal_contributions.goal_id").
			Where("goals.creator_id = ? AND goal_contributions.payment_status = ?", creatorID, PaymentCompleted).
			Scan(&agg).Error
		if err != nil {
			return errutil.Persistence("aggregate_contributions", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Ctx(ctx).Error("failed to load creator stats", zap.String("creator_id", creatorID), zap.Error(err))
		return nil, err
	}

	stats := &CreatorStats{
		CreatorID:         creatorID,
		TotalGoals:        int64(len(goals)),
		TotalRaisedCents:  agg.Total,
		ContributionCount: agg.Count,
		ContributorCount:  agg.Contributors,
	}
	for _, goal := range goals {
		if goal.IsActive {
			stats.ActiveGoals++
		}
		if goal.IsCompleted() {
			stats.CompletedGoals++
		}
	}
	return stats, nil
}
