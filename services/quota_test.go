package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorapi/dbhelper"
	"mirrorapi/models"
	"mirrorapi/services"
	"mirrorapi/test"
)

func TestCheckBudgetBlocksAtLimit(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db)
	user.CurrentMonthTokens = user.MonthlyTokenLimit
	db.Save(user)

	quota := services.NewQuotaGuard(db)
	err := quota.CheckBudget(context.Background(), user)
	assert.True(t, services.IsKind(err, services.ErrQuotaExceeded))
}

func TestCheckBudgetAllowsBelowLimit(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db)
	user.CurrentMonthTokens = user.MonthlyTokenLimit - 1
	db.Save(user)

	quota := services.NewQuotaGuard(db)
	assert.NoError(t, quota.CheckBudget(context.Background(), user))
}

func TestDebitWithTokensIncrementsCounter(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db)

	generationID := uint(42)
	quota := services.NewQuotaGuard(db)
	err := quota.Debit(context.Background(), user, &generationID, services.TokenUsage{
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
	})
	require.NoError(t, err)
	assert.Equal(t, 150, user.CurrentMonthTokens)

	var fresh models.UserAccount
	db.First(&fresh, user.ID)
	assert.Equal(t, 150, fresh.CurrentMonthTokens)

	var usage models.MirrorUsage
	require.NoError(t, db.Where("user_account_id = ?", user.ID).Take(&usage).Error)
	require.NotNil(t, usage.GenerationID)
	assert.Equal(t, generationID, *usage.GenerationID)
	assert.Equal(t, 100, usage.PromptTokens)
	assert.Equal(t, 50, usage.CompletionTokens)
	assert.Equal(t, 150, usage.TotalTokens)
}

func TestDebitZeroTokensLeavesLedgerRowOnly(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	user := test.FakeUser(db)

	quota := services.NewQuotaGuard(db)
	err := quota.Debit(context.Background(), user, nil, services.TokenUsage{})
	require.NoError(t, err)

	var count int64
	db.Model(&models.MirrorUsage{}).Where("user_account_id = ?", user.ID).Count(&count)
	assert.Equal(t, int64(1), count)

	var fresh models.UserAccount
	db.First(&fresh, user.ID)
	assert.Equal(t, 0, fresh.CurrentMonthTokens)
}

func TestResetMonthlyBudgets(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	spender := test.FakeUser(db)
	spender.CurrentMonthTokens = 900
	db.Save(spender)

	quota := services.NewQuotaGuard(db)
	affected, err := quota.ResetMonthlyBudgets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	var fresh models.UserAccount
	db.First(&fresh, spender.ID)
	assert.Equal(t, 0, fresh.CurrentMonthTokens)
}
