package services

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"mirrorapi/models"
)

const (
	backendCallTimeout = 10 * time.Second
	materializeTimeout = time.Minute
	inputKeyTemplate   = "mirror/%d/input/%d"
	resultKeyTemplate  = "mirror/%d/result/%d"
)

// GenerationRequest is one user-submitted photo plus their style selection.
type GenerationRequest struct {
	User      *models.UserAccount
	Section   models.Section
	Image     []byte
	MIMEType  string
	Selection StyleSelection
}

// GenerationOrchestrator runs the full pipeline for a single request: budget
// gate, input persistence, prompt composition, backend resolution and call,
// result materialization and the usage debit. Every terminal state lands in a
// MirrorGeneration row.
type GenerationOrchestrator struct {
	DB         *gorm.DB
	Store      ConfigStore
	Selector   *BackendSelector
	Dispatcher *BackendDispatcher
	Fetcher    *ResultFetcher
	Quota      *QuotaGuard
	Media      MediaStoreProvider
	Alerter    OperatorAlerter
}

func NewGenerationOrchestrator(db *gorm.DB, media MediaStoreProvider, alerter OperatorAlerter) *GenerationOrchestrator {
	store := &GormConfigStore{DB: db}
	return &GenerationOrchestrator{
		DB:         db,
		Store:      store,
		Selector:   &BackendSelector{Store: store, Alerter: alerter},
		Dispatcher: NewBackendDispatcher(),
		Fetcher:    NewResultFetcher(media),
		Quota:      NewQuotaGuard(db),
		Media:      media,
		Alerter:    alerter,
	}
}

// ProcessGeneration is the synchronous path: creates the row, stores the
// input image and runs the pipeline to a terminal status.
func (o *GenerationOrchestrator) ProcessGeneration(ctx context.Context, req *GenerationRequest) (*models.MirrorGeneration, error) {
	if err := o.Quota.CheckBudget(ctx, req.User); err != nil {
		return nil, err
	}

	generation, err := o.CreatePending(ctx, req)
	if err != nil {
		return nil, err
	}

	return o.Run(ctx, req.User, generation, req.Image, req.MIMEType, req.Selection)
}

// CreatePending persists the request as a pending row with the input image
// already uploaded, ready for Run either inline or from the worker.
func (o *GenerationOrchestrator) CreatePending(ctx context.Context, req *GenerationRequest) (*models.MirrorGeneration, error) {
	generation := models.MirrorGeneration{
		OwnerID:      req.User.ID,
		Section:      req.Section,
		Status:       models.GenerationPending,
		Hairstyle:    StrPointer(req.Selection.Hairstyle),
		Color:        StrPointer(req.Selection.Color),
		Instructions: StrPointer(req.Selection.Instructions),
	}
	if err := o.DB.WithContext(ctx).Create(&generation).Error; err != nil {
		sentry.CaptureException(err)
		return nil, err
	}

	inputKey := fmt.Sprintf(inputKeyTemplate, req.User.ID, generation.ID)
	if _, err := o.Media.Persist(ctx, inputKey, req.Image); err != nil {
		fmt.Printf("[Mirror %d] Input upload failed: %v\n", generation.ID, err)
		sentry.CaptureException(err)
	} else {
		generation.InputImageKey = &inputKey
		if err := o.DB.WithContext(ctx).Save(&generation).Error; err != nil {
			sentry.CaptureException(err)
		}
	}
	return &generation, nil
}

// Run drives a pending generation to completed, degraded or failed.
func (o *GenerationOrchestrator) Run(ctx context.Context, user *models.UserAccount, generation *models.MirrorGeneration, image []byte, mimeType string, sel StyleSelection) (*models.MirrorGeneration, error) {
	start := time.Now()

	persona, err := o.Store.PersonaConfig(ctx, generation.Section)
	if err != nil {
		sentry.CaptureException(err)
		return o.fail(ctx, generation, start, ErrConfigurationMissing, err)
	}

	prompt := ComposePrompt(persona, sel)
	generation.Prompt = &prompt

	backend, err := o.Selector.Resolve(ctx, generation.Section)
	if err != nil {
		return o.fail(ctx, generation, start, ErrorKindOf(err), err)
	}
	generation.LLMModel = &backend.ModelID

	fmt.Printf("[Mirror %d] Dispatching to %s backend, model %s\n", generation.ID, backend.Kind, backend.ModelID)
	callCtx, cancel := context.WithTimeout(ctx, backendCallTimeout)
	result, err := o.Dispatcher.Invoke(callCtx, *backend, prompt, image, mimeType)
	cancel()
	if err != nil {
		return o.fail(ctx, generation, start, ErrorKindOf(err), err)
	}

	resultKey := fmt.Sprintf(resultKeyTemplate, user.ID, generation.ID)
	fetchCtx, cancelFetch := context.WithTimeout(ctx, materializeTimeout)
	materialized, err := o.Fetcher.Materialize(fetchCtx, result, backend.APIKey, resultKey)
	cancelFetch()
	if err != nil {
		return o.fail(ctx, generation, start, ErrorKindOf(err), err)
	}

	if materialized.Degraded {
		generation.Status = models.GenerationDegraded
		generation.RemoteResultURL = &materialized.Address
	} else {
		generation.Status = models.GenerationCompleted
		generation.ResultImageKey = &materialized.Address
	}
	generation.GenerationRetryTimes = materialized.Attempts
	generation.Duration = durationSeconds(start)
	generation.LLMInputTokenCount = Int32Pointer(result.Usage.PromptTokens)
	generation.LLMOutputTokenCount = Int32Pointer(result.Usage.CompletionTokens)
	generation.LLMTotalTokenCount = Int32Pointer(result.Usage.TotalTokens)

	if err := o.DB.WithContext(ctx).Save(generation).Error; err != nil {
		sentry.CaptureException(err)
		return nil, err
	}

	if err := o.Quota.Debit(ctx, user, &generation.ID, result.Usage); err != nil {
		fmt.Printf("[Mirror %d] Usage debit failed: %v\n", generation.ID, err)
	}

	fmt.Printf("[Mirror %d] %s in %.2fs, %d tokens\n",
		generation.ID, generation.Status, *generation.Duration, result.Usage.TotalTokens)
	return generation, nil
}

func (o *GenerationOrchestrator) fail(ctx context.Context, generation *models.MirrorGeneration, start time.Time, kind ErrorKind, cause error) (*models.MirrorGeneration, error) {
	fmt.Printf("[Mirror %d] Failed (%s): %v\n", generation.ID, kind, cause)
	sentry.CaptureException(cause)
	if kind == ErrProviderRefusal && o.Alerter != nil {
		o.Alerter.Alert(fmt.Sprintf("[Mirror %d] Provider refused generation: %v", generation.ID, cause))
	}

	generation.Status = models.GenerationFailed
	generation.GenerationErrorKind = StrPointer(string(kind))
	generation.GenerationErrorMsg = StrPointer(cause.Error())
	generation.Duration = durationSeconds(start)
	if err := o.DB.WithContext(ctx).Save(generation).Error; err != nil {
		sentry.CaptureException(err)
	}
	return generation, cause
}

func durationSeconds(start time.Time) *float64 {
	seconds := time.Since(start).Seconds()
	return &seconds
}
