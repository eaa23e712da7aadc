package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SalesVelocity struct {
	TenantID           string          `db:"tenant_id"`
	VariationID        string          `db:"variation_id"`
	LocationID         string          `db:"location_id"`
	PeriodDays         int             `db:"period_days"`
	TotalQuantitySold  decimal.Decimal `db:"total_quantity_sold"`
	TotalRevenueAmount int64           `db:"total_revenue_amount"`
	DailyAvgQuantity   decimal.Decimal `db:"daily_avg_quantity"`
	WeeklyAvgQuantity  decimal.Decimal `db:"weekly_avg_quantity"`
	MonthlyAvgQuantity decimal.Decimal `db:"monthly_avg_quantity"`
	PeriodStartDate    time.Time       `db:"period_start_date"`
	PeriodEndDate      time.Time       `db:"period_end_date"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// ApplyAverages derives the daily/weekly/monthly averages from the totals.
func (v *SalesVelocity) ApplyAverages() {
	days := decimal.NewFromInt(int64(v.PeriodDays))
	if days.IsZero() {
		return
	}
	v.DailyAvgQuantity = v.TotalQuantitySold.Div(days)
	v.WeeklyAvgQuantity = v.TotalQuantitySold.Div(days.Div(decimal.NewFromInt(7)))
	v.MonthlyAvgQuantity = v.TotalQuantitySold.Div(days.Div(decimal.NewFromInt(30)))
}
