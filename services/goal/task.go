package goal

import (
	"context"
	"encoding/json"
	"fmt"

	"creatorhub-platform/pkg/errutil"
	"creatorhub-platform/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type SettleContributionPayload struct {
	ContributionID string        `json:"contribution_id"`
	Status         PaymentStatus `json:"status"`
	TraceID        string        `json:"trace_id,omitempty"`
}

func NewSettleContributionTask(p SettleContributionPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.GoalContributionSettle, b,
		asynq.Queue(taskname.QueueCritical),
		asynq.MaxRetry(10),
		// one settlement per contribution in flight, whatever the status
		asynq.TaskID(SettleTaskID(p.ContributionID)),
	), nil
}

func SettleTaskID(contributionID string) string {
	return fmt.Sprintf("settle:%s", contributionID)
}

type Task struct {
	svc *Service
}

type TaskParams struct {
	fx.In
	Service *Service
}

func NewTask(p TaskParams) *Task {
	return &Task{svc: p.Service}
}

// HandleSettleContribution settles the contribution, then flips any milestone
// the new total reached. Business rejections are not retried.
func (t *Task) HandleSettleContribution(ctx context.Context, task *asynq.Task) error {
	var payload SettleContributionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("contribution_id", payload.ContributionID),
		zap.String("status", string(payload.Status)),
		zap.String("trace_id", payload.TraceID),
	)

	contribution, err := t.svc.SettleContribution(ctx, payload.ContributionID, payload.Status)
	if err != nil {
		switch errutil.StatusOf(err) {
		case errutil.StatusNotFound, errutil.StatusValidationFailed:
			zapLog.Warn("dropping settlement", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		zapLog.Error("failed to settle contribution", zap.Error(err))
		return err
	}

	if contribution.PaymentStatus != PaymentCompleted {
		return nil
	}

	reached, err := t.svc.CheckMilestones(ctx, contribution.GoalID)
	if err != nil {
		zapLog.Error("failed to check milestones", zap.Error(err))
		return err
	}

	zapLog.Info("contribution settled", zap.Int("milestones_reached", len(reached)))
	return nil
}
