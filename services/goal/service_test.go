package goal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"creatorhub-platform/pkg/db/pagination"
	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/repository"
	"creatorhub-platform/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	repository.Repository[T]
	batchCreateFn func(ctx context.Context, resources []*T) error
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	return m
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if m.batchCreateFn != nil {
		return m.batchCreateFn(ctx, resources)
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Goal{}, &Contribution{}, &Milestone{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node}), db
}

func createGoal(t *testing.T, svc *Service, target int64) *Goal {
	t.Helper()
	goal, err := svc.CreateGoal(context.Background(), "creator-1", CreateGoalInput{
		Title:             "New camera",
		TargetAmountCents: target,
		IsPublic:          true,
		ShowProgress:      true,
	})
	require.NoError(t, err)
	return goal
}

func reload(t *testing.T, db *gorm.DB, id string) *Goal {
	t.Helper()
	var g Goal
	require.NoError(t, db.First(&g, "id = ?", id).Error)
	return &g
}

func TestCreateGoalMaterializesMilestones(t *testing.T) {
	svc, db := newTestService(t)
	goal := createGoal(t, svc, 10001)

	require.True(t, goal.IsActive)
	require.Zero(t, goal.CurrentAmountCents)

	var milestones []Milestone
	require.NoError(t, db.Where("goal_id = ?", goal.ID).Order("percentage asc").Find(&milestones).Error)
	require.Len(t, milestones, 4)

	want := []struct {
		pct         int
		amount      int64
		celebration CelebrationType
	}{
		{25, 2500, CelebrationConfetti},
		{50, 5001, CelebrationConfetti},
		{75, 7501, CelebrationConfetti},
		{100, 10001, CelebrationFireworks},
	}
	for i, w := range want {
		require.Equal(t, w.pct, milestones[i].Percentage)
		require.Equal(t, w.amount, milestones[i].AmountCents)
		require.Equal(t, w.celebration, milestones[i].CelebrationType)
		require.False(t, milestones[i].IsReached)
	}
}

func TestCreateGoalValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateGoal(ctx, "creator-1", CreateGoalInput{Title: "", TargetAmountCents: 100})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = svc.CreateGoal(ctx, "creator-1", CreateGoalInput{Title: "x", TargetAmountCents: 0})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	start := time.Now().Add(time.Hour)
	end := start.Add(-time.Minute)
	_, err = svc.CreateGoal(ctx, "creator-1", CreateGoalInput{Title: "x", TargetAmountCents: 100, StartsAt: &start, EndsAt: &end})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = svc.CreateGoal(ctx, "", CreateGoalInput{Title: "x", TargetAmountCents: 100})
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func TestCreateGoalRollsBackWhenMilestonesFail(t *testing.T) {
	svc, db := newTestService(t)
	svc.milestone = &repoMock[Milestone]{
		batchCreateFn: func(ctx context.Context, _ []*Milestone) error {
			return errors.New("disk full")
		},
	}

	_, err := svc.CreateGoal(context.Background(), "creator-1", CreateGoalInput{Title: "x", TargetAmountCents: 100})
	require.True(t, errutil.Is(err, errutil.StatusPersistence))

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	step, _ := be.Detail("step")
	require.Equal(t, "create_milestones", step)

	var count int64
	require.NoError(t, db.Model(&Goal{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestContributionReachesQuarterMilestone(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 10000)

	contribution, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 2500})
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, contribution.PaymentStatus)
	require.EqualValues(t, 2500, reload(t, db, goal.ID).CurrentAmountCents)

	reached, err := svc.CheckMilestones(ctx, goal.ID)
	require.NoError(t, err)
	require.Len(t, reached, 1)
	require.Equal(t, 25, reached[0].Percentage)
	require.EqualValues(t, 2500, reached[0].AmountCents)
	require.True(t, reached[0].IsReached)
	require.NotNil(t, reached[0].ReachedAt)

	again, err := svc.CheckMilestones(ctx, goal.ID)
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestCheckMilestonesReachesSeveralAtOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 1000)

	_, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 1200})
	require.NoError(t, err)

	reached, err := svc.CheckMilestones(ctx, goal.ID)
	require.NoError(t, err)
	require.Len(t, reached, 4)
	require.Equal(t, 25, reached[0].Percentage)
	require.Equal(t, 100, reached[3].Percentage)

	_, err = svc.CheckMilestones(ctx, "missing")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestRecordContributionPreconditionOrder(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: "missing", AmountCents: 100})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	inactive := createGoal(t, svc, 1000)
	require.NoError(t, svc.DeactivateGoal(ctx, "creator-1", inactive.ID))
	_, err = svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: inactive.ID, AmountCents: 100})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	// funded and ended: expiry is reported first
	base := time.Now().UTC()
	end := base.Add(time.Hour)
	ended, err := svc.CreateGoal(ctx, "creator-1", CreateGoalInput{Title: "ended", TargetAmountCents: 100, EndsAt: &end})
	require.NoError(t, err)
	_, err = svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: ended.ID, AmountCents: 100})
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, err = svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: ended.ID, AmountCents: 100})
	require.True(t, errutil.Is(err, errutil.StatusExpired))

	svc.now = func() time.Time { return base }
	_, err = svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: ended.ID, AmountCents: 100})
	require.True(t, errutil.Is(err, errutil.StatusAlreadyCompleted))

	var count int64
	require.NoError(t, db.Model(&Contribution{}).Where("goal_id = ?", ended.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRecordContributionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	goal := createGoal(t, svc, 1000)

	_, err := svc.RecordContribution(context.Background(), "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 0})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = svc.RecordContribution(context.Background(), "", ContributionInput{GoalID: goal.ID, AmountCents: 10})
	require.True(t, errutil.Is(err, errutil.StatusUnauthorized))
}

func TestPendingContributionSettles(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 10000)

	pending, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 5000, PaymentReference: "pay_123"})
	require.NoError(t, err)
	require.Equal(t, PaymentPending, pending.PaymentStatus)
	require.Zero(t, reload(t, db, goal.ID).CurrentAmountCents)

	reached, err := svc.CheckMilestones(ctx, goal.ID)
	require.NoError(t, err)
	require.Empty(t, reached)

	settled, err := svc.SettleContribution(ctx, pending.ID, PaymentCompleted)
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, settled.PaymentStatus)
	require.EqualValues(t, 5000, reload(t, db, goal.ID).CurrentAmountCents)

	// replayed webhook
	again, err := svc.SettleContribution(ctx, pending.ID, PaymentCompleted)
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, again.PaymentStatus)
	require.EqualValues(t, 5000, reload(t, db, goal.ID).CurrentAmountCents)

	late, err := svc.SettleContribution(ctx, pending.ID, PaymentFailed)
	require.NoError(t, err)
	require.Equal(t, PaymentCompleted, late.PaymentStatus)

	reached, err = svc.CheckMilestones(ctx, goal.ID)
	require.NoError(t, err)
	require.Len(t, reached, 2)
}

func TestFailedContributionNeverCounts(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 10000)

	pending, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 5000, PaymentReference: "pay_fail"})
	require.NoError(t, err)

	failed, err := svc.SettleContribution(ctx, pending.ID, PaymentFailed)
	require.NoError(t, err)
	require.Equal(t, PaymentFailed, failed.PaymentStatus)

	completedLate, err := svc.SettleContribution(ctx, pending.ID, PaymentCompleted)
	require.NoError(t, err)
	require.Equal(t, PaymentFailed, completedLate.PaymentStatus)
	require.Zero(t, reload(t, db, goal.ID).CurrentAmountCents)

	_, err = svc.SettleContribution(ctx, pending.ID, PaymentPending)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = svc.SettleContribution(ctx, "missing", PaymentCompleted)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestDuplicatePaymentReferenceConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 10000)

	_, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 100, PaymentReference: "pay_dup"})
	require.NoError(t, err)
	_, err = svc.RecordContribution(ctx, "fan-2", ContributionInput{GoalID: goal.ID, AmountCents: 100, PaymentReference: "pay_dup"})
	require.True(t, errutil.Is(err, errutil.StatusConflict))
}

func TestConcurrentContributionsKeepTotal(t *testing.T) {
	svc, db := newTestService(t)
	goal := createGoal(t, svc, 1_000_000)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordContribution(context.Background(), "fan", ContributionInput{GoalID: goal.ID, AmountCents: 100})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, workers*100, reload(t, db, goal.ID).CurrentAmountCents)
}

func TestOverfundingIsDisplayedClamped(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 1000)

	_, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 1500})
	require.NoError(t, err)

	views, err := svc.GetCreatorGoals(ctx, "creator-1", false)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.EqualValues(t, 1500, views[0].CurrentAmountCents)
	require.Equal(t, float64(100), views[0].ProgressPercent)
}

func TestUpdateGoalRederivesMilestones(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 1000)

	_, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 300})
	require.NoError(t, err)
	reached, err := svc.CheckMilestones(ctx, goal.ID)
	require.NoError(t, err)
	require.Len(t, reached, 1)

	title := "Better camera"
	target := int64(4000)
	updated, err := svc.UpdateGoal(ctx, "creator-1", goal.ID, UpdateGoalInput{Title: &title, TargetAmountCents: &target})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Equal(t, target, updated.TargetAmountCents)
	require.EqualValues(t, 300, updated.CurrentAmountCents)

	var milestones []Milestone
	require.NoError(t, db.Where("goal_id = ?", goal.ID).Order("percentage asc").Find(&milestones).Error)
	require.EqualValues(t, 1000, milestones[0].AmountCents)
	require.EqualValues(t, 4000, milestones[3].AmountCents)
	// reached flags never reset
	require.True(t, milestones[0].IsReached)

	_, err = svc.UpdateGoal(ctx, "creator-2", goal.ID, UpdateGoalInput{Title: &title})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	empty := ""
	_, err = svc.UpdateGoal(ctx, "creator-1", goal.ID, UpdateGoalInput{Title: &empty})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestUpdateGoalLoweredTargetReachesMilestones(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 1000)

	_, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 300})
	require.NoError(t, err)
	reached, err := svc.CheckMilestones(ctx, goal.ID)
	require.NoError(t, err)
	require.Len(t, reached, 1)

	target := int64(400)
	_, err = svc.UpdateGoal(ctx, "creator-1", goal.ID, UpdateGoalInput{TargetAmountCents: &target})
	require.NoError(t, err)

	var milestones []Milestone
	require.NoError(t, db.Where("goal_id = ?", goal.ID).Order("percentage asc").Find(&milestones).Error)
	require.Len(t, milestones, 4)
	// 300 of 400 is 75%
	require.True(t, milestones[0].IsReached)
	require.True(t, milestones[1].IsReached)
	require.True(t, milestones[2].IsReached)
	require.NotNil(t, milestones[2].ReachedAt)
	require.False(t, milestones[3].IsReached)
	require.EqualValues(t, 300, milestones[2].AmountCents)

	reached, err = svc.CheckMilestones(ctx, goal.ID)
	require.NoError(t, err)
	require.Empty(t, reached)
}

func TestDeactivateGoal(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 1000)

	require.True(t, errutil.Is(svc.DeactivateGoal(ctx, "creator-2", goal.ID), errutil.StatusNotFound))
	require.NoError(t, svc.DeactivateGoal(ctx, "creator-1", goal.ID))
	require.NoError(t, svc.DeactivateGoal(ctx, "creator-1", goal.ID))
	require.False(t, reload(t, db, goal.ID).IsActive)

	_, err := svc.GetGoal(ctx, goal.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	all, err := svc.GetCreatorGoals(ctx, "creator-1", true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	active, err := svc.GetCreatorGoals(ctx, "creator-1", false)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestGetGoalHidesAnonymousContributors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 10000)

	_, err := svc.RecordContribution(ctx, "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 100, IsAnonymous: true})
	require.NoError(t, err)
	_, err = svc.RecordContribution(ctx, "fan-2", ContributionInput{GoalID: goal.ID, AmountCents: 200})
	require.NoError(t, err)
	_, err = svc.RecordContribution(ctx, "fan-3", ContributionInput{GoalID: goal.ID, AmountCents: 300, PaymentReference: "pay_pending"})
	require.NoError(t, err)

	detail, err := svc.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	require.Len(t, detail.Milestones, 4)
	require.Len(t, detail.RecentContributions, 2)
	require.Equal(t, float64(3), detail.Goal.ProgressPercent)

	for _, c := range detail.RecentContributions {
		if c.IsAnonymous {
			require.Empty(t, c.ContributorID)
		} else {
			require.Equal(t, "fan-2", c.ContributorID)
		}
	}
}

func TestListContributionsPages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	goal := createGoal(t, svc, 1_000_000)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		_, err := svc.RecordContribution(ctx, "fan", ContributionInput{GoalID: goal.ID, AmountCents: int64(100 + i)})
		require.NoError(t, err)
	}

	first, info, err := svc.ListContributions(ctx, goal.ID, pagination.Pagination{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.True(t, info.HasMore)
	require.EqualValues(t, 104, first[0].AmountCents)

	second, info, err := svc.ListContributions(ctx, goal.ID, pagination.Pagination{Limit: 3, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.False(t, info.HasMore)
	require.EqualValues(t, 100, second[1].AmountCents)
}

func TestPublicGoalsAndCreatorStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	funded := createGoal(t, svc, 1000)
	open := createGoal(t, svc, 5000)
	private, err := svc.CreateGoal(ctx, "creator-1", CreateGoalInput{Title: "private", TargetAmountCents: 100})
	require.NoError(t, err)
	other, err := svc.CreateGoal(ctx, "creator-2", CreateGoalInput{Title: "other", TargetAmountCents: 100, IsPublic: true})
	require.NoError(t, err)

	for _, c := range []struct {
		user   string
		goalID string
		amount int64
		ref    string
	}{
		{"fan-1", funded.ID, 600, ""},
		{"fan-2", funded.ID, 400, ""},
		{"fan-1", open.ID, 250, ""},
		{"fan-3", open.ID, 999, "pay_pending"},
		{"fan-9", other.ID, 50, ""},
	} {
		_, err := svc.RecordContribution(ctx, c.user, ContributionInput{GoalID: c.goalID, AmountCents: c.amount, PaymentReference: c.ref})
		require.NoError(t, err)
	}
	require.NoError(t, svc.DeactivateGoal(ctx, "creator-1", private.ID))

	public, err := svc.GetPublicGoals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, public, 3)

	stats, err := svc.GetCreatorStats(ctx, "creator-1")
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalGoals)
	require.EqualValues(t, 2, stats.ActiveGoals)
	require.EqualValues(t, 1, stats.CompletedGoals)
	require.EqualValues(t, 1250, stats.TotalRaisedCents)
	require.EqualValues(t, 3, stats.ContributionCount)
	require.EqualValues(t, 2, stats.ContributorCount)
}
