package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dzackiero/cv-evaluation/internal/config"
	"github.com/dzackiero/cv-evaluation/internal/domain/fiber/handler"
	"github.com/dzackiero/cv-evaluation/internal/logger"
	"github.com/dzackiero/cv-evaluation/internal/middleware"
	"github.com/dzackiero/cv-evaluation/internal/model"
	"github.com/dzackiero/cv-evaluation/internal/queue"
	"github.com/dzackiero/cv-evaluation/internal/repository"
	"github.com/dzackiero/cv-evaluation/internal/service"
	"github.com/dzackiero/cv-evaluation/internal/usecase"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	appConfig := config.LoadAppConfig()
	workerConfig := config.LoadWorkerConfig()

	zapLog, err := logger.New(appConfig.Env == "production", appConfig.Env != "production")
	if err != nil {
		log.Fatal(err)
	}
	defer zapLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := fiber.New(fiber.Config{
		AppName:   appConfig.Name,
		BodyLimit: 10 * 1024 * 1024,
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			message := err.Error()
			if message == "" {
				message = "Internal Server Error"
			}
			return ctx.Status(code).JSON(fiber.Map{"error": message})
		},
	})
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{AllowOrigins: "*"}))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: appConfig.Env != "production",
	}))
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(healthcheck.New())
	app.Use(middleware.RateLimiter(50, time.Minute))

	db := ConnectDB()

	jobRepo := repository.NewJobRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	contextRepo := repository.NewContextDocumentRepository(db)

	gemini, err := service.NewGeminiService(ctx)
	if err != nil {
		zapLog.Fatal("create gemini service", zap.Error(err))
	}

	var generator usecase.Generator = gemini
	if workerConfig.Provider == "openrouter" {
		generator = service.NewOpenRouterService()
		zapLog.Info("using openrouter generation backend")
	}

	retrieval := service.NewRetrievalService(contextRepo, gemini, zapLog)
	if err := retrieval.SeedContextDocuments(ctx, defaultContextDocuments()); err != nil {
		zapLog.Fatal("seed context documents", zap.Error(err))
	}

	documents := service.NewDocumentService(documentRepo)

	var uc *usecase.EvaluationUsecase
	runner := queue.NewRunner(taskRepo, queue.FailureFunc(func(ctx context.Context, task model.Task, cause error) {
		uc.TaskFailed(ctx, task, cause)
	}), zapLog, queue.Config{
		PollInterval:       time.Duration(workerConfig.PollIntervalMs) * time.Millisecond,
		DefaultConcurrency: workerConfig.StageConcurrency,
		TaskLease:          time.Duration(workerConfig.TaskLeaseMs) * time.Millisecond,
	})
	uc = usecase.NewEvaluationUsecase(jobRepo, documents, retrieval, generator, runner, zapLog)

	runner.Register(usecase.TaskCvEvaluation, uc.ProcessCvEvaluation)
	runner.Register(usecase.TaskProjectEvaluation, uc.ProcessProjectEvaluation)
	runner.Register(usecase.TaskOverallScoring, uc.ProcessOverallScoring)
	go runner.Start(ctx)

	evaluateHandler := handler.NewEvaluateHandler(uc, documents)
	evaluateHandler.RegisterRoutes(app)

	go func() {
		<-ctx.Done()
		zapLog.Info("shutting down")
		_ = app.Shutdown()
	}()

	zapLog.Info("server running", zap.String("port", appConfig.Port))
	if err := app.Listen(appConfig.Port); err != nil {
		zapLog.Fatal("server stopped", zap.Error(err))
	}
}

func ConnectDB() *gorm.DB {
	dbConfig := config.LoadDBConfig()
	appConfig := config.LoadAppConfig()

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Name,
		dbConfig.Port,
		dbConfig.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	pgDB, err := db.DB()
	if err != nil {
		log.Fatalf("Could not get database instance: %v", err)
	}
	if appConfig.Env != "production" {
		pgDB.SetMaxIdleConns(5)
		pgDB.SetMaxOpenConns(10)
		pgDB.SetConnMaxLifetime(30 * time.Minute)
	} else {
		pgDB.SetMaxIdleConns(20)
		pgDB.SetMaxOpenConns(200)
		pgDB.SetConnMaxLifetime(time.Hour)
	}

	err = db.AutoMigrate(
		&model.Job{},
		&model.EvaluationResult{},
		&model.Document{},
		&model.ContextDocument{},
		&model.Task{},
	)
	if err != nil {
		log.Fatal("migration failed: ", err)
	}
	return db
}

// defaultContextDocuments is the bootstrap knowledge base. Seeding
// skips kinds that already have rows, so operators can replace these
// through the database without them coming back.
func defaultContextDocuments() []model.ContextDocument {
	return []model.ContextDocument{
		{
			Kind:  model.ContextJobDescription,
			Title: "Product Engineer (Backend)",
			Content: `You'll be building product features alongside a frontend engineer and product manager, ` +
				`as well as addressing issues to ensure our apps are robust and our codebase is clean. ` +
				`The role also touches AI-powered systems: designing and fine-tuning prompts, building LLM chaining flows, ` +
				`implementing Retrieval-Augmented Generation against vector databases, and handling long-running AI processes ` +
				`gracefully with job orchestration, async background workers, and retry mechanisms. ` +
				`Required: strong backend track record (Node.js, Django, or Rails), database management (MySQL, PostgreSQL, MongoDB), ` +
				`RESTful APIs, cloud technologies (AWS, Google Cloud, Azure), scalable application design, automated testing, ` +
				`and familiarity with LLM APIs, embeddings, vector databases, and prompt design best practices.`,
		},
		{
			Kind:  model.ContextCaseStudy,
			Title: "Backend evaluation service case study",
			Content: `Build a backend service that automates the initial screening of a job application. ` +
				`The service accepts a candidate CV and a project report, evaluates both against the provided rubrics with an LLM, ` +
				`and returns a match rate, a project score, and an overall summary. The evaluation runs asynchronously: ` +
				`submission returns a job id immediately and clients poll for the result. Expected qualities: correct prompt design ` +
				`and LLM chaining, RAG context injection, clean modular code, resilience against LLM API failures with retries and ` +
				`backoff, and clear documentation of trade-offs.`,
		},
	}
}
