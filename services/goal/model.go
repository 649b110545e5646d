package goal

import (
	"time"

	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type CelebrationType string

const (
	CelebrationConfetti  CelebrationType = "confetti"
	CelebrationFireworks CelebrationType = "fireworks"
)

// Goal is a creator funding goal. CurrentAmountCents is only ever moved by an
// atomic increment alongside a completed contribution.
type Goal struct {
	ID                 string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CreatorID          string         `gorm:"column:creator_id;index;not null" json:"creator_id"`
	Title              string         `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description        string         `gorm:"column:description;type:text" json:"description,omitempty"`
	TargetAmountCents  int64          `gorm:"column:target_amount_cents;not null" json:"target_amount_cents"`
	CurrentAmountCents int64          `gorm:"column:current_amount_cents;not null" json:"current_amount_cents"`
	Emoji              string         `gorm:"column:emoji;type:varchar(16)" json:"emoji,omitempty"`
	Color              string         `gorm:"column:color;type:varchar(32)" json:"color,omitempty"`
	ImageURL           string         `gorm:"column:image_url" json:"image_url,omitempty"`
	StartsAt           *time.Time     `gorm:"column:starts_at" json:"starts_at,omitempty"`
	EndsAt             *time.Time     `gorm:"column:ends_at" json:"ends_at,omitempty"`
	IsPublic           bool           `gorm:"column:is_public" json:"is_public"`
	ShowProgress       bool           `gorm:"column:show_progress" json:"show_progress"`
	CelebrationMessage string         `gorm:"column:celebration_message;type:text" json:"celebration_message,omitempty"`
	Metadata           datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	IsActive           bool           `gorm:"column:is_active;index" json:"is_active"`
	CreatedAt          time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Goal) TableName() string { return "goals" }

// ProgressPercent is the unclamped progress, 0 when the target is 0.
func (g *Goal) ProgressPercent() float64 {
	if g.TargetAmountCents <= 0 {
		return 0
	}
	return float64(g.CurrentAmountCents*100) / float64(g.TargetAmountCents)
}

// DisplayProgress clamps ProgressPercent to 100.
func (g *Goal) DisplayProgress() float64 {
	return min(g.ProgressPercent(), 100)
}

func (g *Goal) IsCompleted() bool {
	return g.CurrentAmountCents >= g.TargetAmountCents
}

func (g *Goal) HasEnded(now time.Time) bool {
	return g.EndsAt != nil && g.EndsAt.Before(now)
}

type Contribution struct {
	ID               string        `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	GoalID           string        `gorm:"column:goal_id;index;not null" json:"goal_id"`
	ContributorID    string        `gorm:"column:contributor_id;index;not null" json:"contributor_id"`
	AmountCents      int64         `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Message          string        `gorm:"column:message;type:text" json:"message,omitempty"`
	IsAnonymous      bool          `gorm:"column:is_anonymous" json:"is_anonymous"`
	PaymentReference *string       `gorm:"column:payment_reference;uniqueIndex" json:"payment_reference,omitempty"`
	PaymentStatus    PaymentStatus `gorm:"column:payment_status;type:varchar(16);index;not null" json:"payment_status"`
	CreatedAt        time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (Contribution) TableName() string { return "goal_contributions" }

type Milestone struct {
	ID              string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	GoalID          string          `gorm:"column:goal_id;index;not null" json:"goal_id"`
	Percentage      int             `gorm:"column:percentage;not null" json:"percentage"`
	AmountCents     int64           `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Title           string          `gorm:"column:title;type:varchar(255)" json:"title"`
	Message         string          `gorm:"column:message;type:text" json:"message,omitempty"`
	CelebrationType CelebrationType `gorm:"column:celebration_type;type:varchar(16)" json:"celebration_type"`
	IsReached       bool            `gorm:"column:is_reached" json:"is_reached"`
	ReachedAt       *time.Time      `gorm:"column:reached_at" json:"reached_at,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (Milestone) TableName() string { return "goal_milestones" }

// MilestoneAmount is round(target * pct / 100) in minor units.
func MilestoneAmount(target int64, pct int) int64 {
	return (target*int64(pct) + 50) / 100
}

type milestoneTemplate struct {
	Percentage int
	Title      string
	Message    string
}

var defaultMilestones = []milestoneTemplate{
	{Percentage: 25, Title: "25% reached", Message: "A quarter of the way there!"},
	{Percentage: 50, Title: "Halfway there", Message: "Half of the goal is funded."},
	{Percentage: 75, Title: "75% reached", Message: "Almost there, keep it going!"},
	{Percentage: 100, Title: "Goal reached", Message: "The goal is fully funded. Thank you!"},
}

func celebrationFor(pct int) CelebrationType {
	if pct >= 100 {
		return CelebrationFireworks
	}
	return CelebrationConfetti
}

type CreateGoalInput struct {
	Title              string         `json:"title" validate:"required,max=255"`
	Description        string         `json:"description" validate:"max=5000"`
	TargetAmountCents  int64          `json:"target_amount_cents" validate:"gt=0"`
	Emoji              string         `json:"emoji" validate:"max=16"`
	Color              string         `json:"color" validate:"max=32"`
	ImageURL           string         `json:"image_url" validate:"omitempty,url"`
	StartsAt           *time.Time     `json:"starts_at"`
	EndsAt             *time.Time     `json:"ends_at"`
	IsPublic           bool           `json:"is_public"`
	ShowProgress       bool           `json:"show_progress"`
	CelebrationMessage string         `json:"celebration_message" validate:"max=1000"`
	Metadata           map[string]any `json:"metadata"`
}

type UpdateGoalInput struct {
	Title              *string        `json:"title" validate:"omitempty,min=1,max=255"`
	Description        *string        `json:"description" validate:"omitempty,max=5000"`
	TargetAmountCents  *int64         `json:"target_amount_cents" validate:"omitempty,gt=0"`
	Emoji              *string        `json:"emoji" validate:"omitempty,max=16"`
	Color              *string        `json:"color" validate:"omitempty,max=32"`
	ImageURL           *string        `json:"image_url" validate:"omitempty,url"`
	StartsAt           *time.Time     `json:"starts_at"`
	EndsAt             *time.Time     `json:"ends_at"`
	IsPublic           *bool          `json:"is_public"`
	ShowProgress       *bool          `json:"show_progress"`
	CelebrationMessage *string        `json:"celebration_message" validate:"omitempty,max=1000"`
	Metadata           map[string]any `json:"metadata"`
}

type ContributionInput struct {
	GoalID           string `json:"goal_id" validate:"required"`
	AmountCents      int64  `json:"amount_cents" validate:"gt=0"`
	Message          string `json:"message" validate:"max=1000"`
	IsAnonymous      bool   `json:"is_anonymous"`
	PaymentReference string `json:"payment_reference" validate:"max=255"`
}

// GoalView is the read projection with display progress clamped to 100.
type GoalView struct {
	*Goal
	ProgressPercent float64 `json:"progress_percent"`
}

func newGoalView(g *Goal) *GoalView {
	return &GoalView{Goal: g, ProgressPercent: g.DisplayProgress()}
}

// ContributionView hides the contributor of anonymous contributions.
type ContributionView struct {
	ID            string        `json:"id"`
	GoalID        string        `json:"goal_id"`
	ContributorID string        `json:"contributor_id,omitempty"`
	AmountCents   int64         `json:"amount_cents"`
	Message       string        `json:"message,omitempty"`
	IsAnonymous   bool          `json:"is_anonymous"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
}

func newContributionView(c *Contribution) *ContributionView {
	v := &ContributionView{
		ID:            c.ID,
		GoalID:        c.GoalID,
		ContributorID: c.ContributorID,
		AmountCents:   c.AmountCents,
		Message:       c.Message,
		IsAnonymous:   c.IsAnonymous,
		PaymentStatus: c.PaymentStatus,
		CreatedAt:     c.CreatedAt,
	}
	if c.IsAnonymous {
		v.ContributorID = ""
	}
	return v
}

type GoalDetail struct {
	Goal                *GoalView           `json:"goal"`
	Milestones          []*Milestone        `json:"milestones"`
	RecentContributions []*ContributionView `json:"recent_contributions"`
}

type CreatorStats struct {
	CreatorID         string `json:"creator_id"`
	TotalGoals        int64  `json:"total_goals"`
	ActiveGoals       int64  `json:"active_goals"`
	CompletedGoals    int64  `json:"completed_goals"`
	TotalRaisedCents  int64  `json:"total_raised_cents"`
	ContributionCount int64  `json:"contribution_count"`
	ContributorCount  int64  `json:"contributor_count"`
}
