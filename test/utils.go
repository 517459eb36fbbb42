package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"google.golang.org/api/idtoken"
	"gorm.io/gorm"

	"mirrorapi/models"
	"mirrorapi/services"
)

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {

	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

func GenerateUserToken(userPk string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userPk,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	t, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error when signing user token for %s. Error %s ", userPk, err)
	}
	return t
}

func NewJSONAuthRequest(method string, target string, userPk string, param interface{}) *http.Request {
	log.Println(JsonString(param))
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

// NewMultipartAuthRequest builds an authenticated multipart request with a
// photo part plus plain form fields, matching the generate endpoints.
func NewMultipartAuthRequest(method string, target string, userPk string, photo []byte, fields map[string]string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("photo", "selfie.png")
	part.Write(photo)
	for key, value := range fields {
		writer.WriteField(key, value)
	}
	writer.Close()

	req := httptest.NewRequest(method, target, body)
	req.Header.Add("Content-Type", writer.FormDataContentType())
	token := GenerateUserToken(userPk)
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))
	return req
}

// Minimal valid PNG header plus padding, enough for sniffing as image/png.
func FakePNG() []byte {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	return append(png, make([]byte, 64)...)
}

func FakeUser(db *gorm.DB) *models.UserAccount {
	user := &models.UserAccount{
		Name:              "OurName",
		Email:             "email@example.com",
		GoogleID:          "12232",
		Platform:          models.PlatformIOS,
		LastIp:            "123.122.122.122",
		Status:            "FINISHED_AUTH",
		AvatarURL:         "pictureurl",
		MonthlyTokenLimit: 1000,
	}
	db.Create(&user)
	tokenDb := models.UserPushToken{
		UserAccountID: user.ID,
		Platform:      "android",
		Token:         "cX-UZ3zwQEiPt-2GJkG2gA:APA91bGqRflaGrJrnynhRwZ442HdgUjVcO7mWMFnx6IwAdJ9RRKopvSP4QU7hbvTmk1XAp8XGvtHZLvo5JmOPTVKBbGqqvhfbZWKlXA9csEjx1hgpNvrWepU",
		Active:        true,
	}
	db.Save(&tokenDb)
	return user
}

func FakeAdmin(db *gorm.DB) *models.UserAccount {
	user := &models.UserAccount{
		Name:         "Admin",
		Email:        "admin@example.com",
		GoogleID:     "9999",
		Platform:     models.PlatformWeb,
		Status:       "FINISHED_AUTH",
		IsSuperadmin: true,
	}
	db.Create(&user)
	return user
}

func FakeProviderConfig(db *gorm.DB, section models.Section, model string) *models.ProviderConfig {
	config := &models.ProviderConfig{
		Provider: "google",
		Section:  section,
		Alias:    "Default",
		ApiKey:   "test-api-key",
		IsActive: true,
		Settings: models.ProviderSettings{Model: model},
	}
	db.Create(&config)
	return config
}

type GoogleServiceMock struct {
	// raw RevenueCat subscriber payload to return; empty means no entitlements
	SubscriptionPayload string
}

func (gsm GoogleServiceMock) ValidateIdToken(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {

	return &idtoken.Payload{Issuer: "Issue", Audience: "AAA", Expires: 119919191919, IssuedAt: 12312321321, Subject: "fake@example.com", Claims: map[string]interface{}{
		"email":   "fake@example.com",
		"picture": "pictureurl",
		"sub":     "123googleid",
	}}, nil

}

func (gsm GoogleServiceMock) GetUserSubscriptionStatus(ctx context.Context, appUserId string) ([]byte, error) {
	if gsm.SubscriptionPayload != "" {
		return []byte(gsm.SubscriptionPayload), nil
	}
	return []byte(`{"subscriber": {"entitlements": {}}}`), nil
}

// MediaStoreMock keeps every persisted object in memory for assertions.
type MediaStoreMock struct {
	MockUrl   string
	Persisted map[string][]byte
}

func NewMediaStoreMock(mockUrl string) *MediaStoreMock {
	return &MediaStoreMock{MockUrl: mockUrl, Persisted: map[string][]byte{}}
}

func (m *MediaStoreMock) InitPresignClient(ctx context.Context) error {
	return nil
}

func (m *MediaStoreMock) Persist(ctx context.Context, fileKey string, content []byte) (string, error) {
	m.Persisted[fileKey] = content
	return fileKey, nil
}

func (m *MediaStoreMock) PresignLink(ctx context.Context, bucketName string, fileName string) (string, error) {
	return fmt.Sprintf("https://fakebucketurl.com/%s", fileName), nil
}

func (m *MediaStoreMock) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	return m.MockUrl, nil
}

func (m *MediaStoreMock) UploadToPresignedURL(ctx context.Context, bucketName, url string, fileContent []byte) (string, int, error) {
	return url, 204, nil
}

type URLCacheMock struct{}

func (u URLCacheMock) GetReadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	return fmt.Sprintf("https://fakecdn.com/%s", objectKey), nil
}

// FakeInvoker scripts the generation backend response for pipeline tests.
type FakeInvoker struct {
	Result *services.GenerationResult
	Err    error
	Calls  int

	LastPrompt   string
	LastMIMEType string
}

func (f *FakeInvoker) Invoke(ctx context.Context, backend services.ResolvedBackend, prompt string, image []byte, mimeType string) (*services.GenerationResult, error) {
	f.Calls++
	f.LastPrompt = prompt
	f.LastMIMEType = mimeType
	return f.Result, f.Err
}

// FakeChatInvoker scripts the advisory chat reply.
type FakeChatInvoker struct {
	Reply string
	Usage services.TokenUsage
	Err   error

	LastSystemPrompt string
	LastHistory      []services.ChatTurn
}

func (f *FakeChatInvoker) Chat(ctx context.Context, backend services.ResolvedBackend, systemPrompt string, history []services.ChatTurn) (string, services.TokenUsage, error) {
	f.LastSystemPrompt = systemPrompt
	f.LastHistory = history
	return f.Reply, f.Usage, f.Err
}

type NoopAlerter struct {
	Messages []string
}

func (n *NoopAlerter) Alert(message string) {
	n.Messages = append(n.Messages, message)
}
