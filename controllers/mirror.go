package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"mirrorapi/models"
	"mirrorapi/services"
	"mirrorapi/tasks"
)

// ~12MB, phone camera selfies fit comfortably
const maxUploadBytes = 12 << 20

type MirrorController struct {
	AWSService  services.MediaStoreProvider
	URLCache    services.URLCacheServiceProvider
	FirebaseApp *firebase.App
}

func (m *MirrorController) MirrorRoutes(g *echo.Group) {
	g.POST("/generate", m.generate)
	g.POST("/generate/async", m.generateAsync)
	g.GET("/history", m.history)
	g.POST("/chat", m.chat)
}

func (m *MirrorController) readRequest(c echo.Context) (*services.GenerationRequest, error) {
	user := c.Get("currentUser").(models.UserAccount)

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "photo file is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "photo is too large")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, echo.ErrInternalServerError
	}
	defer file.Close()
	imageBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, echo.ErrInternalServerError
	}
	mimeType := http.DetectContentType(imageBytes)
	if mimeType != "image/png" && mimeType != "image/jpeg" && mimeType != "image/webp" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unsupported photo type: %s", mimeType))
	}

	in := models.GenerateMirrorIn{
		Hairstyle:    services.StrPointer(c.FormValue("hairstyle")),
		Color:        services.StrPointer(c.FormValue("color")),
		Instructions: services.StrPointer(c.FormValue("instructions")),
		Section:      c.FormValue("section"),
	}
	if err := c.Validate(&in); err != nil {
		return nil, err
	}

	section := models.SectionLook
	if in.Section != "" {
		section = models.Section(in.Section)
	}

	return &services.GenerationRequest{
		User:     &user,
		Section:  section,
		Image:    imageBytes,
		MIMEType: mimeType,
		Selection: services.StyleSelection{
			Hairstyle:    derefOrEmpty(in.Hairstyle),
			Color:        derefOrEmpty(in.Color),
			Instructions: derefOrEmpty(in.Instructions),
		},
	}, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (m *MirrorController) generate(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	req, err := m.readRequest(c)
	if err != nil {
		return err
	}

	orchestrator := services.NewGenerationOrchestrator(db, m.AWSService, alerterFromContext(c))
	generation, err := orchestrator.ProcessGeneration(c.Request().Context(), req)
	if err != nil {
		return mirrorErrorResponse(c, err)
	}

	return c.JSON(http.StatusOK, m.generationOut(c.Request().Context(), generation))
}

func (m *MirrorController) generateAsync(c echo.Context) error {
	db := c.Get("__db").(*gorm.DB)
	asynqClient, ok := c.Get("__asynqclient").(*asynq.Client)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Service is not available, please try again a bit later"})
	}
	req, err := m.readRequest(c)
	if err != nil {
		return err
	}

	orchestrator := services.NewGenerationOrchestrator(db, m.AWSService, alerterFromContext(c))
	if err := orchestrator.Quota.CheckBudget(c.Request().Context(), req.User); err != nil {
		return mirrorErrorResponse(c, err)
	}
	generation, err := orchestrator.CreatePending(c.Request().Context(), req)
	if err != nil {
		return echo.ErrInternalServerError
	}
	if generation.InputImageKey == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Could not store your photo, please try again"})
	}

	task, err := tasks.NewMirrorGenerationTask(generation.ID)
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not process your photo, please try again"})
	}
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Queue("generate"))
	if err != nil {
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Sorry, could not process your photo, please try again"})
	}
	fmt.Printf("[Queue] Mirror generation %v task submitted, User ID: %v Task ID %v\n", generation.ID, req.User.ID, info.ID)

	return c.JSON(http.StatusAccepted, models.GenerateMirrorOut{
		GenerationID: generation.ID,
		Status:       generation.Status,
	})
}

func (m *MirrorController) generationOut(ctx context.Context, generation *models.MirrorGeneration) models.GenerateMirrorOut {
	out := models.GenerateMirrorOut{
		GenerationID: generation.ID,
		Status:       generation.Status,
		Degraded:     generation.Status == models.GenerationDegraded,
	}
	if generation.Prompt != nil {
		out.Prompt = *generation.Prompt
	}
	if generation.RemoteResultURL != nil {
		out.ResultURL = *generation.RemoteResultURL
	} else if generation.ResultImageKey != nil {
		url, err := m.URLCache.GetReadURL(ctx, *generation.ResultImageKey)
		if err != nil {
			sentry.CaptureException(err)
		}
		out.ResultURL = url
	}
	return out
}

func (m *MirrorController) history(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var generations []models.MirrorGeneration
	result := db.Where("owner_id = ?", user.ID).Order("id desc").Limit(100).Find(&generations)
	if result.Error != nil {
		sentry.CaptureException(result.Error)
		return echo.ErrInternalServerError
	}

	items := []models.MirrorHistoryItemOut{}
	for _, generation := range generations {
		item := models.MirrorHistoryItemOut{
			GenerationID: generation.ID,
			Status:       generation.Status,
			Hairstyle:    generation.Hairstyle,
			Color:        generation.Color,
			CreatedAt:    generation.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if generation.RemoteResultURL != nil {
			item.ResultURL = generation.RemoteResultURL
		} else if generation.ResultImageKey != nil {
			url, err := m.URLCache.GetReadURL(c.Request().Context(), *generation.ResultImageKey)
			if err != nil {
				sentry.CaptureException(err)
			} else if url != "" {
				item.ResultURL = &url
			}
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, models.MirrorHistoryOut{Generations: items})
}

func (m *MirrorController) chat(c echo.Context) error {
	user := c.Get("currentUser").(models.UserAccount)
	db := c.Get("__db").(*gorm.DB)

	var in models.ChatIn
	if err := c.Bind(&in); err != nil {
		return echo.ErrBadRequest
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	section := models.SectionAdvisory
	if in.Section != "" {
		section = models.Section(in.Section)
	}

	history := make([]services.ChatTurn, 0, len(in.History))
	for _, msg := range in.History {
		history = append(history, services.ChatTurn{Role: msg.Role, Message: msg.Message})
	}

	orchestrator := services.NewChatOrchestrator(db, alerterFromContext(c))
	out, err := orchestrator.ProcessChat(c.Request().Context(), &user, section, history, in.Message)
	if err != nil {
		return mirrorErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func mirrorErrorResponse(c echo.Context, err error) error {
	switch services.ErrorKindOf(err) {
	case services.ErrQuotaExceeded:
		return c.JSON(http.StatusPaymentRequired, map[string]string{"message": "You used up your monthly AI budget"})
	case services.ErrConfigurationMissing:
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"message": "Generation is temporarily unavailable, please try again later"})
	case services.ErrProviderRefusal:
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"message": "The AI could not process this photo, please try a different one"})
	default:
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Something went wrong, please try again"})
	}
}

func alerterFromContext(c echo.Context) services.OperatorAlerter {
	if alerter, ok := c.Get("__alerter").(services.OperatorAlerter); ok {
		return alerter
	}
	return nil
}
