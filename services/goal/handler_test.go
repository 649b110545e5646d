package goal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"creatorhub-platform/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *captureEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

func newTestRouter(t *testing.T, enqueuer *captureEnqueuer) (*gin.Engine, *Service, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, db := newTestService(t)
	h := &Handler{svc: svc}
	if enqueuer != nil {
		h.enqueuer = enqueuer
	}

	engine := gin.New()
	engine.Use(middleware.Error(), middleware.Identity())
	v1 := engine.Group("/v1")
	h.Register(v1)
	h.RegisterWebhooks(v1.Group("/payments", middleware.WebhookSignature(testWebhookSecret)))
	return engine, svc, db
}

func doJSON(engine *gin.Engine, method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

// postWebhook sends body to a payment callback, signed when secret is set.
func postWebhook(engine *gin.Engine, path, secret string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(middleware.HeaderWebhookSignature, middleware.SignPayload(secret, raw))
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHandlerContributionFlow(t *testing.T) {
	engine, _, _ := newTestRouter(t, nil)

	rec := doJSON(engine, http.MethodPost, "/v1/goals", "", map[string]any{"title": "Mic", "target_amount_cents": 1000})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(engine, http.MethodPost, "/v1/goals", "creator-1", map[string]any{"title": "Mic", "target_amount_cents": 1000, "is_public": true})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created GoalView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doJSON(engine, http.MethodPost, "/v1/goals/"+created.ID+"/contributions", "fan-1", map[string]any{"amount_cents": 500})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp contributionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.PendingSettlement)
	require.Len(t, resp.MilestonesReached, 2)

	rec = doJSON(engine, http.MethodGet, "/v1/goals/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(engine, http.MethodGet, "/v1/goals/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", errorCode(t, rec))

	rec = doJSON(engine, http.MethodPost, "/v1/goals/"+created.ID+"/contributions", "fan-1", map[string]any{"amount_cents": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, rec))
}

func TestHandlerCompletedGoalConflicts(t *testing.T) {
	engine, svc, _ := newTestRouter(t, nil)
	goal := createGoal(t, svc, 100)

	rec := doJSON(engine, http.MethodPost, "/v1/goals/"+goal.ID+"/contributions", "fan-1", map[string]any{"amount_cents": 100})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(engine, http.MethodPost, "/v1/goals/"+goal.ID+"/contributions", "fan-1", map[string]any{"amount_cents": 100})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ALREADY_COMPLETED", errorCode(t, rec))
}

func TestHandlerSettlesInlineWithoutQueue(t *testing.T) {
	engine, svc, db := newTestRouter(t, nil)
	goal := createGoal(t, svc, 1000)

	pending, err := svc.RecordContribution(context.Background(), "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 1000, PaymentReference: "pay_1"})
	require.NoError(t, err)

	rec := postWebhook(engine, "/v1/payments/contributions/"+pending.ID, testWebhookSecret, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1000, reload(t, db, goal.ID).CurrentAmountCents)

	var milestones []Milestone
	require.NoError(t, db.Where("goal_id = ? AND is_reached = ?", goal.ID, true).Find(&milestones).Error)
	require.Len(t, milestones, 4)
}

func TestHandlerQueuesSettlement(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	engine, svc, db := newTestRouter(t, enqueuer)
	goal := createGoal(t, svc, 1000)

	pending, err := svc.RecordContribution(context.Background(), "fan-1", ContributionInput{GoalID: goal.ID, AmountCents: 250, PaymentReference: "pay_2"})
	require.NoError(t, err)

	rec := postWebhook(engine, "/v1/payments/contributions/"+pending.ID, testWebhookSecret, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enqueuer.tasks, 1)
	require.Zero(t, reload(t, db, goal.ID).CurrentAmountCents)

	worker := NewTask(TaskParams{Service: svc})
	require.NoError(t, worker.HandleSettleContribution(context.Background(), enqueuer.tasks[0]))
	require.EqualValues(t, 250, reload(t, db, goal.ID).CurrentAmountCents)

	var reached int64
	require.NoError(t, db.Model(&Milestone{}).Where("goal_id = ? AND is_reached = ?", goal.ID, true).Count(&reached).Error)
	require.EqualValues(t, 1, reached)

	enqueuer.err = asynq.ErrTaskIDConflict
	rec = postWebhook(engine, "/v1/payments/contributions/"+pending.ID, testWebhookSecret, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandlerRejectsUnsignedSettlement(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	engine, svc, db := newTestRouter(t, enqueuer)
	goal := createGoal(t, svc, 1000)

	// a fan records a pending contribution with a reference of their own
	rec := doJSON(engine, http.MethodPost, "/v1/goals/"+goal.ID+"/contributions", "fan-1",
		map[string]any{"amount_cents": 1000, "payment_reference": "made_up"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp contributionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.PendingSettlement)
	path := "/v1/payments/contributions/" + resp.Contribution.ID

	rec = doJSON(engine, http.MethodPost, path, "fan-1", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = postWebhook(engine, path, "guessed", map[string]any{"status": "completed"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Empty(t, enqueuer.tasks)
	require.Zero(t, reload(t, db, goal.ID).CurrentAmountCents)

	var stored Contribution
	require.NoError(t, db.First(&stored, "id = ?", resp.Contribution.ID).Error)
	require.Equal(t, PaymentPending, stored.PaymentStatus)
}
