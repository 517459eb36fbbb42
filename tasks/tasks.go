package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"mirrorapi/models"
	"mirrorapi/services"
)

const (
	TypeMirrorGeneration  = "mirror:generate"
	TypeMonthlyQuotaReset = "mirror:reset_monthly"
)

type MirrorGenerationPayload struct {
	GenerationID uint `json:"generation_id"`
}

func NewClient() (*asynq.Client, error) {
	return asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}), nil
}

func NewMirrorGenerationTask(generationID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(MirrorGenerationPayload{GenerationID: generationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMirrorGeneration, payload), nil

}

func NewMonthlyQuotaResetTask() *asynq.Task {
	return asynq.NewTask(TypeMonthlyQuotaReset, nil)
}

// HandleMirrorGenerationTask resumes a pending generation from the worker:
// re-downloads the stored input image and drives the pipeline to a terminal
// state, then notifies the user.
func HandleMirrorGenerationTask(ctx context.Context, t *asynq.Task, db *gorm.DB, orchestrator *services.GenerationOrchestrator, awsService services.MediaStoreProvider, fbApp *firebase.App) error {
	var payload MirrorGenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	fmt.Printf("[Mirror %v] Worker processing\n", payload.GenerationID)

	var generation models.MirrorGeneration
	res := db.First(&generation, payload.GenerationID)
	if res.Error != nil {
		sentry.CaptureException(fmt.Errorf("[QUEUE] Error retrieving generation %v: %v", payload.GenerationID, res.Error))
		return res.Error
	}
	if generation.Status != models.GenerationPending {
		fmt.Printf("[Mirror %v] Already in state %s, skipping\n", payload.GenerationID, generation.Status)
		return nil
	}

	var user models.UserAccount
	if err := db.First(&user, generation.OwnerID).Error; err != nil {
		sentry.CaptureException(fmt.Errorf("[Mirror %v] Error retrieving owner %v: %v", payload.GenerationID, generation.OwnerID, err))
		return err
	}

	if generation.InputImageKey == nil {
		err := fmt.Errorf("[Mirror %v] Input image key is nil, cannot proceed", payload.GenerationID)
		sentry.CaptureException(err)
		return err
	}
	bucketName := services.GetEnv("R2_MIRROR_BUCKET", "mirror-media")
	fileUrl, err := awsService.GetPresignedR2FileReadURL(ctx, bucketName, *generation.InputImageKey)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Mirror %v] Error presigning input %s: %v", payload.GenerationID, *generation.InputImageKey, err))
		return err
	}
	imageBytes, err := services.ReadFileFromUrl(fileUrl)
	if err != nil {
		sentry.CaptureException(fmt.Errorf("[Mirror %v] Error downloading input %s: %v", payload.GenerationID, *generation.InputImageKey, err))
		return err
	}
	fmt.Printf("[Mirror %v] Downloaded input image, %d bytes\n", payload.GenerationID, len(imageBytes))

	sel := services.StyleSelection{}
	if generation.Hairstyle != nil {
		sel.Hairstyle = *generation.Hairstyle
	}
	if generation.Color != nil {
		sel.Color = *generation.Color
	}
	if generation.Instructions != nil {
		sel.Instructions = *generation.Instructions
	}

	mimeType := http.DetectContentType(imageBytes)
	result, err := orchestrator.Run(ctx, &user, &generation, imageBytes, mimeType, sel)
	if err != nil {
		// terminal failure already recorded on the row, do not retry
		// refusals or config errors through the queue
		kind := services.ErrorKindOf(err)
		if kind == services.ErrProviderRefusal || kind == services.ErrConfigurationMissing {
			notifyGenerationDone(fbApp, db, &user, &generation)
			return nil
		}
		return err
	}

	notifyGenerationDone(fbApp, db, &user, result)
	return nil
}

func notifyGenerationDone(fbApp *firebase.App, db *gorm.DB, user *models.UserAccount, generation *models.MirrorGeneration) {
	if fbApp == nil || !user.ReceiveNotifications {
		return
	}
	title := "Your new look is ready"
	message := "Open the mirror to see your new hairstyle"
	if generation.Status == models.GenerationFailed {
		title = "Generation failed"
		message = "We could not process your photo, please try again"
	}
	services.SendNotification(fbApp, db, user.ID, title, message, map[string]string{
		"generation_id": fmt.Sprintf("%d", generation.ID),
		"type":          "mirror_generation",
		"status":        generation.Status,
	})
}

// HandleMonthlyQuotaResetTask zeroes consumed token counters. Scheduled for
// the first of every month.
func HandleMonthlyQuotaResetTask(ctx context.Context, t *asynq.Task, db *gorm.DB) error {
	quota := services.NewQuotaGuard(db)
	affected, err := quota.ResetMonthlyBudgets(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("[QUEUE] Monthly quota reset complete, %d users affected\n", affected)
	return nil
}
