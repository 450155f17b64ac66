// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mindscribe-go/internal/config"
	"mindscribe-go/internal/handler"
	"mindscribe-go/internal/middleware"
	"mindscribe-go/internal/pipeline"
	"mindscribe-go/internal/repository"
	"mindscribe-go/internal/service"
	"mindscribe-go/internal/session"
	"mindscribe-go/pkg/analysis"
	"mindscribe-go/pkg/database"
	"mindscribe-go/pkg/es"
	"mindscribe-go/pkg/kafka"
	"mindscribe-go/pkg/log"
	"mindscribe-go/pkg/storage"
	"mindscribe-go/pkg/token"
)

func main() {
	configPath := "./configs/config.yaml"
	if p := os.Getenv("MINDSCRIBE_CONFIG"); p != "" {
		configPath = p
	}

	// 1. 初始化配置
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(log.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis，二者缺一不可
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 4. 可选组件：搜索与导出
	var indexer service.EntryIndexer
	var pipelineIndexer pipeline.Indexer
	var searcher service.Searcher
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败，检索功能不可用: %v", err)
		} else {
			idx := es.NewEntryIndex(es.ESClient, cfg.Elasticsearch.IndexName)
			indexer, pipelineIndexer, searcher = idx, idx, idx
		}
	}
	var objectStore service.ObjectStore
	if cfg.MinIO.Enabled {
		if err := storage.InitMinIO(cfg.MinIO); err != nil {
			log.Errorf("MinIO 初始化失败，导出功能不可用: %v", err)
		} else {
			objectStore = storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName)
		}
	}

	// 5. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	journalRepository := repository.NewJournalRepository(database.DB, database.RDB)
	analysisMarker := repository.NewAnalysisMarker(database.RDB)

	// 6. 初始化分析管道 (Processor)
	analysisClient := analysis.NewClient(cfg.Analysis)
	processor := pipeline.NewProcessor(journalRepository, analysisClient, analysisMarker, pipelineIndexer, cfg.Analysis)

	// 7. 启动后台 Kafka 消费者
	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	var publisher service.TaskPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Brokers != "" {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
		go kafka.StartConsumer(rootCtx, cfg.Kafka, processor, database.RDB)
	} else {
		log.Warnf("未配置 Kafka，后台分析仅由在线会话驱动")
	}

	// 8. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	sessions := session.NewManager()
	userService := service.NewUserService(userRepository, jwtManager, database.RDB, sessions)
	entryService := service.NewEntryService(journalRepository, userRepository, publisher, indexer, processor)
	alertService := service.NewAlertService(journalRepository, userRepository)
	rosterService := service.NewRosterService(journalRepository, userRepository)
	insightsService := service.NewInsightsService(journalRepository, cfg.Insights.Timezone)
	searchService := service.NewSearchService(searcher)
	exportService := service.NewExportService(journalRepository, objectStore)

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(cfg.Server.CORSOrigins))

	userHandler := handler.NewUserHandler(userService)
	journalHandler := handler.NewJournalHandler(entryService)
	insightsHandler := handler.NewInsightsHandler(insightsService)
	therapistHandler := handler.NewTherapistHandler(rosterService, alertService, insightsService)
	feedHandler := handler.NewFeedHandler(userService, entryService, rosterService, processor, jwtManager, sessions)
	authMiddleware := middleware.AuthMiddleware(jwtManager, userService)

	// 10. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(authMiddleware)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}
		apiV1.GET("/therapists", userHandler.ListTherapists)

		journals := apiV1.Group("/journals")
		journals.Use(authMiddleware)
		{
			journals.POST("", journalHandler.Create)
			journals.GET("", journalHandler.List)
			journals.GET("/search", handler.NewSearchHandler(searchService).Search)
			journals.POST("/export", handler.NewExportHandler(exportService).Export)
			journals.GET("/:id", journalHandler.Get)
			journals.POST("/:id/analyze", journalHandler.Analyze)
		}

		insights := apiV1.Group("/insights")
		insights.Use(authMiddleware)
		{
			insights.GET("/dashboard", insightsHandler.Dashboard)
			insights.GET("/coping", insightsHandler.Coping)
		}

		// 治疗师路由组，需要同时通过认证和治疗师授权两个中间件
		therapist := apiV1.Group("/therapist")
		therapist.Use(authMiddleware, middleware.TherapistAuthMiddleware())
		{
			therapist.GET("/patients", therapistHandler.Patients)
			therapist.GET("/patients/:uid/journals", therapistHandler.PatientJournals)
			therapist.GET("/patients/:uid/dashboard", therapistHandler.PatientDashboard)
			therapist.GET("/alerts", therapistHandler.Alerts)
			therapist.POST("/alerts/:id/acknowledge", therapistHandler.Acknowledge)
			therapist.POST("/alerts/:id/resolve", therapistHandler.Resolve)
		}

		// 推送路由 (WebSocket)，token 在路径中
		apiV1.GET("/feed/:token", feedHandler.Handle)
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 先结束所有会话，WebSocket 推送与会话内分析随之退出
	sessions.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopBackground()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("关闭 Kafka producer 失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
