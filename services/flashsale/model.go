package flashsale

import "time"

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

type Item struct {
	ID                 string `json:"id" validate:"required"`
	Title              string `json:"title"`
	OriginalPriceCents int64  `json:"original_price_cents" validate:"gte=0"`
	SalePriceCents     int64  `json:"sale_price_cents" validate:"gte=0"`
}

// Sale is a display-only definition; purchases happen elsewhere.
type Sale struct {
	ID                 string       `json:"id" validate:"required"`
	Title              string       `json:"title" validate:"required"`
	Description        string       `json:"description,omitempty"`
	Items              []Item       `json:"items" validate:"dive"`
	DiscountType       DiscountType `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue      int64        `json:"discount_value" validate:"gte=0"`
	OriginalPriceCents int64        `json:"original_price_cents" validate:"gte=0"`
	StartsAt           time.Time    `json:"starts_at"`
	EndsAt             time.Time    `json:"ends_at" validate:"required"`
	MaxPurchases       *int64       `json:"max_purchases,omitempty"`
	CurrentPurchases   int64        `json:"current_purchases"`
	Views              int64        `json:"views"`
	Conversions        int64        `json:"conversions"`
	CreatorID          string       `json:"creator_id"`
	Tags               []string     `json:"tags,omitempty"`
	IsShareable        bool         `json:"is_shareable"`
}

// SoldOut reports whether a purchase cap exists and has been reached.
func (s *Sale) SoldOut() bool {
	return s.MaxPurchases != nil && s.CurrentPurchases >= *s.MaxPurchases
}

type Remaining struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	TotalMs int64 `json:"total_ms"`
}

type Totals struct {
	OriginalTotal int64 `json:"original_total"`
	SaleTotal     int64 `json:"sale_total"`
	Savings       int64 `json:"savings"`
}
