package services

import (
	"context"
	"fmt"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"mirrorapi/models"
)

// QuotaGuard enforces the monthly token budget. The check is a soft gate at
// request start; the debit happens after the provider reports actual usage,
// so a single generation may run past the limit and the next one is blocked.
type QuotaGuard struct {
	DB *gorm.DB
}

func NewQuotaGuard(db *gorm.DB) *QuotaGuard {
	return &QuotaGuard{DB: db}
}

func (q *QuotaGuard) CheckBudget(ctx context.Context, user *models.UserAccount) error {
	if user.CurrentMonthTokens >= user.MonthlyTokenLimit {
		return NewPipelineError(ErrQuotaExceeded,
			fmt.Sprintf("monthly budget reached: %d/%d tokens", user.CurrentMonthTokens, user.MonthlyTokenLimit))
	}
	return nil
}

// Debit records the usage ledger entry unconditionally and increments the
// user's consumed counter only when the provider actually billed tokens.
// Zero-token replies (refusals, image-predict calls without usage metadata)
// still leave an audit row.
func (q *QuotaGuard) Debit(ctx context.Context, user *models.UserAccount, generationID *uint, usage TokenUsage) error {
	record := models.MirrorUsage{
		UserAccountID:    user.ID,
		GenerationID:     generationID,
		PromptTokens:     int(usage.PromptTokens),
		CompletionTokens: int(usage.CompletionTokens),
		TotalTokens:      int(usage.TotalTokens),
	}
	if err := q.DB.WithContext(ctx).Create(&record).Error; err != nil {
		sentry.CaptureException(err)
		return err
	}

	if usage.TotalTokens <= 0 {
		return nil
	}

	err := q.DB.WithContext(ctx).Model(&models.UserAccount{}).
		Where("id = ?", user.ID).
		Update("current_month_tokens", gorm.Expr("current_month_tokens + ?", usage.TotalTokens)).Error
	if err != nil {
		sentry.CaptureException(err)
		return err
	}
	user.CurrentMonthTokens += int(usage.TotalTokens)
	return nil
}

// ResetMonthlyBudgets zeroes every consumed counter. Ran by the scheduler on
// the first of each month.
func (q *QuotaGuard) ResetMonthlyBudgets(ctx context.Context) (int64, error) {
	result := q.DB.WithContext(ctx).Model(&models.UserAccount{}).
		Where("current_month_tokens > 0").
		Update("current_month_tokens", 0)
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return 0, result.Error
	}
	fmt.Printf("[Quota] Monthly budget reset for %d users\n", result.RowsAffected)
	return result.RowsAffected, nil
}
