package main

import (
	"context"
	"log"
	"os"

	firebase "firebase.google.com/go/v4"
	"github.com/hibiken/asynq"

	"mirrorapi/dbhelper"
	"mirrorapi/services"
	"mirrorapi/tasks"
	"mirrorapi/telegram"
)

func runScheduler() {

	scheduler := asynq.NewScheduler(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")}, &asynq.SchedulerOpts{
		LogLevel: asynq.InfoLevel,
	})

	scheduled := []struct {
		cron string
		task *asynq.Task
		desc string
	}{
		{
			cron: "0 0 1 * *", // midnight on the first of every month
			task: tasks.NewMonthlyQuotaResetTask(),
			desc: "Monthly token budget reset",
		},
	}

	for _, t := range scheduled {
		entryID, err := scheduler.Register(t.cron, t.task)
		if err != nil {
			log.Fatalf("Failed to register task '%s': %v", t.desc, err)
		}
		log.Printf("Registered task '%s' with ID: %s, cron: %s", t.desc, entryID, t.cron)
	}

	log.Println("Starting scheduler...")
	if err := scheduler.Run(); err != nil {
		log.Fatalf("Scheduler failed: %v", err)
	}
}

func main() {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")},
		asynq.Config{Concurrency: 10, Queues: map[string]int{
			"generate": 7,
			"default":  3,
		}},
	)
	awsService := &services.AWSService{}
	err := awsService.InitPresignClient(context.Background())
	if err != nil {
		log.Fatal("[Queue] Failed to initialize AWS provider: S3")
	}
	app, err := firebase.NewApp(context.Background(), nil)
	if err != nil {
		log.Fatalf("error initializing firebase app: %v\n", err)
		return
	}
	db := dbhelper.SetupDB()
	alerter := telegram.NewAlertBot()
	orchestrator := services.NewGenerationOrchestrator(db, awsService, alerter)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeMirrorGeneration, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleMirrorGenerationTask(ctx, t, db, orchestrator, awsService, app)
	})
	mux.HandleFunc(tasks.TypeMonthlyQuotaReset, func(ctx context.Context, t *asynq.Task) error {
		return tasks.HandleMonthlyQuotaResetTask(ctx, t, db)
	})

	go runScheduler()
	if err := srv.Run(mux); err != nil {
		log.Fatal(err)
	}
}
