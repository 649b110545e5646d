package vipcode

import (
	"time"

	"gorm.io/datatypes"
)

const MaxBenefits = 10

// VipCode is a creator-issued code. CurrentUses only moves through the
// guarded increment in RedeemCode and never passes MaxUses.
type VipCode struct {
	ID          string                      `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CreatorID   string                      `gorm:"column:creator_id;index;not null" json:"creator_id"`
	Code        string                      `gorm:"column:code;type:varchar(50);uniqueIndex;not null" json:"code"`
	Title       string                      `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description string                      `gorm:"column:description;type:text" json:"description,omitempty"`
	MaxUses     int64                       `gorm:"column:max_uses;not null" json:"max_uses"`
	CurrentUses int64                       `gorm:"column:current_uses;not null" json:"current_uses"`
	PriceCents  int64                       `gorm:"column:price_cents;not null" json:"price_cents"`
	Benefits    datatypes.JSONSlice[string] `gorm:"column:benefits" json:"benefits"`
	ExpiresAt   *time.Time                  `gorm:"column:expires_at" json:"expires_at,omitempty"`
	IsActive    bool                        `gorm:"column:is_active;index" json:"is_active"`
	Metadata    datatypes.JSON              `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

func (VipCode) TableName() string { return "vip_codes" }

func (c *VipCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

func (c *VipCode) IsExhausted() bool {
	return c.CurrentUses >= c.MaxUses
}

func (c *VipCode) RemainingUses() int64 {
	return max(c.MaxUses-c.CurrentUses, 0)
}

// Redemption is written once per (code, user) and never updated.
type Redemption struct {
	ID               string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CodeID           string         `gorm:"column:code_id;not null;uniqueIndex:idx_redemption_code_user" json:"code_id"`
	UserID           string         `gorm:"column:user_id;not null;uniqueIndex:idx_redemption_code_user;index" json:"user_id"`
	IPAddress        string         `gorm:"column:ip_address;type:varchar(64)" json:"ip_address,omitempty"`
	UserAgent        string         `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	Referrer         string         `gorm:"column:referrer;type:text" json:"referrer,omitempty"`
	UTMSource        string         `gorm:"column:utm_source;type:varchar(255)" json:"utm_source,omitempty"`
	UTMMedium        string         `gorm:"column:utm_medium;type:varchar(255)" json:"utm_medium,omitempty"`
	UTMCampaign      string         `gorm:"column:utm_campaign;type:varchar(255)" json:"utm_campaign,omitempty"`
	Channel          string         `gorm:"column:channel;type:varchar(32)" json:"channel,omitempty"`
	PaymentReference *string        `gorm:"column:payment_reference" json:"payment_reference,omitempty"`
	AmountPaidCents  int64          `gorm:"column:amount_paid_cents;not null" json:"amount_paid_cents"`
	Metadata         datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	RedeemedAt       time.Time      `gorm:"column:redeemed_at;index" json:"redeemed_at"`
}

func (Redemption) TableName() string { return "vip_code_redemptions" }

type CreateCodeInput struct {
	// Code is generated when empty.
	Code        string         `json:"code"`
	Title       string         `json:"title" validate:"required,max=255"`
	Description string         `json:"description" validate:"max=5000"`
	MaxUses     int64          `json:"max_uses" validate:"gte=1"`
	PriceCents  int64          `json:"price_cents" validate:"gte=0"`
	Benefits    []string       `json:"benefits" validate:"max=10,dive,required,max=255"`
	ExpiresAt   *time.Time     `json:"expires_at"`
	Metadata    map[string]any `json:"metadata"`
}

// ClientInfo is the request metadata stored on a redemption.
type ClientInfo struct {
	IPAddress   string
	UserAgent   string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Channel     string
}

type RedeemRequest struct {
	Code             string         `json:"code" validate:"required"`
	PaymentReference string         `json:"payment_reference" validate:"max=255"`
	AmountPaidCents  int64          `json:"amount_paid_cents" validate:"gte=0"`
	Metadata         map[string]any `json:"metadata"`
	Client           ClientInfo     `json:"-"`
}

type CodeStats struct {
	CreatorID        string `json:"creator_id"`
	TotalCodes       int64  `json:"total_codes"`
	ActiveCodes      int64  `json:"active_codes"`
	TotalRedemptions int64  `json:"total_redemptions"`
	RevenueCents     int64  `json:"revenue_cents"`
	TotalViews       int64  `json:"total_views"`
}
