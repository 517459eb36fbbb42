package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorapi/dbhelper"
	"mirrorapi/models"
	"mirrorapi/test"
)

func TestGoogleSignInNewUser(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)

	req := test.NewJSONRequest("POST", "/auth/google/v2", models.GoogleAuthSignIn{
		IdToken:  "sometoken",
		Platform: "ios",
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response models.GoogleSignInOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.New)
	assert.Equal(t, "fake@example.com", response.Email)
	assert.NotEmpty(t, response.AccessToken)
	assert.NotEmpty(t, response.RefreshToken)

	var user models.UserAccount
	require.NoError(t, db.Where("google_id = ?", "123googleid").Take(&user).Error)
	assert.Equal(t, "FINISHED_AUTH", user.Status)
	assert.Equal(t, models.PlatformIOS, user.Platform)
}

func TestGoogleSignInExistingUser(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)
	existing := models.UserAccount{
		Name:     "Existing",
		Email:    "fake@example.com",
		GoogleID: "123googleid",
		Platform: models.PlatformAndroid,
		Status:   "FINISHED_AUTH",
	}
	db.Create(&existing)

	req := test.NewJSONRequest("POST", "/auth/google/v2", models.GoogleAuthSignIn{
		IdToken:  "sometoken",
		Platform: "android",
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response models.GoogleSignInOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.False(t, response.New)
	assert.Equal(t, UIntToStr(existing.ID), response.Id)

	var count int64
	db.Model(&models.UserAccount{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestGoogleSignInInvalidPlatform(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)

	req := test.NewJSONRequest("POST", "/auth/google/v2", models.GoogleAuthSignIn{
		IdToken:  "sometoken",
		Platform: "windows",
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMe(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)
	user := test.FakeUser(db)
	user.CurrentMonthTokens = 42
	db.Save(user)

	req := test.NewJSONAuthRequest("GET", "/auth/me", userPk(user), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response models.UserMeInfoOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, user.Email, response.Email)
	assert.Equal(t, user.MonthlyTokenLimit, response.MonthlyTokenLimit)
	assert.Equal(t, 42, response.CurrentMonthTokens)
}

func TestMeUnauthorized(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateSettings(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("POST", "/auth/settings", userPk(user), models.UserSettingsIn{ReceiveNotifications: true})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var fresh models.UserAccount
	db.First(&fresh, user.ID)
	assert.True(t, fresh.ReceiveNotifications)
}

func TestRegisterAndDeletePushToken(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)
	user := test.FakeUser(db)

	in := models.UserPushIn{Token: "new-push-token", Platform: "android"}
	req := test.NewJSONAuthRequest("POST", "/auth/register-push", userPk(user), in)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	db.Model(&models.UserPushToken{}).Where("user_account_id = ? and token = ?", user.ID, in.Token).Count(&count)
	assert.Equal(t, int64(1), count)

	// registering the same token again must not duplicate it
	req = test.NewJSONAuthRequest("POST", "/auth/register-push", userPk(user), in)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	db.Model(&models.UserPushToken{}).Where("user_account_id = ? and token = ?", user.ID, in.Token).Count(&count)
	assert.Equal(t, int64(1), count)

	req = test.NewJSONAuthRequest("POST", "/auth/delete-push", userPk(user), in)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	db.Model(&models.UserPushToken{}).Where("user_account_id = ? and token = ?", user.ID, in.Token).Count(&count)
	assert.Zero(t, count)
}

func TestRefreshToken(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)
	user := test.FakeUser(db)

	refreshToken, err := GenerateRefreshToken(userPk(user))
	require.NoError(t, err)

	req := test.NewJSONRequest("POST", "/auth/refresh-token", models.RefreshTokenIn{RefreshToken: refreshToken})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response models.TokenPairOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotEmpty(t, response.AccessToken)
	assert.NotEmpty(t, response.RefreshToken)
}

func TestRefreshTokenEmpty(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)

	req := test.NewJSONRequest("POST", "/auth/refresh-token", models.RefreshTokenIn{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncSubscriptionActiveEntitlement(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	google := test.GoogleServiceMock{
		SubscriptionPayload: `{"subscriber": {"entitlements": {"pro": {"expires_date": "2106-01-02T15:04:05Z"}}}}`,
	}
	media := test.NewMediaStoreMock("https://fakecdn.com/photo")
	e := SetupServer(db, google, media, &test.URLCacheMock{}, &test.NoopAlerter{}, nil, nil, nil)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("POST", "/auth/sync-subscription", userPk(user), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "pro", response["subscription"])

	var fresh models.UserAccount
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.NotNil(t, fresh.Subscription)
	assert.Equal(t, string(models.Pro), *fresh.Subscription)
}

func TestSyncSubscriptionNoEntitlements(t *testing.T) {
	db := dbhelper.SetupTestDB()
	cleaner := dbhelper.SetupCleaner(db)
	defer cleaner()
	e, _ := setupMirrorServer(db)
	user := test.FakeUser(db)

	req := test.NewJSONAuthRequest("POST", "/auth/sync-subscription", userPk(user), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var fresh models.UserAccount
	require.NoError(t, db.First(&fresh, user.ID).Error)
	require.NotNil(t, fresh.Subscription)
	assert.Equal(t, string(models.Free), *fresh.Subscription)
}

func TestSubscriptionFromStatus(t *testing.T) {
	plan, err := subscriptionFromStatus([]byte(`{"subscriber": {"entitlements": {"pro": {"expires_date": "2106-01-02T15:04:05Z"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, models.Pro, plan)

	// pro_plus wins over a plain pro entitlement
	plan, err = subscriptionFromStatus([]byte(`{"subscriber": {"entitlements": {"pro": {}, "pro_plus": {}}}}`))
	require.NoError(t, err)
	assert.Equal(t, models.ProPlus, plan)

	// a pro entitlement inside its trial period stores the trial plan
	plan, err = subscriptionFromStatus([]byte(`{"subscriber": {"entitlements": {"pro": {"period_type": "trial"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, models.Trial, plan)

	// lapsed entitlements do not count
	plan, err = subscriptionFromStatus([]byte(`{"subscriber": {"entitlements": {"pro": {"expires_date": "2020-01-02T15:04:05Z"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, models.Free, plan)

	_, err = subscriptionFromStatus([]byte(`{"unexpected": true}`))
	assert.Error(t, err)

	_, err = subscriptionFromStatus([]byte(`not json`))
	assert.Error(t, err)
}
