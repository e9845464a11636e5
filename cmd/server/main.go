// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"rfx-assist-go/internal/config"
	"rfx-assist-go/internal/handler"
	"rfx-assist-go/internal/middleware"
	"rfx-assist-go/internal/repository"
	"rfx-assist-go/internal/service"
	"rfx-assist-go/pkg/database"
	"rfx-assist-go/pkg/deck"
	"rfx-assist-go/pkg/embedding"
	"rfx-assist-go/pkg/es"
	"rfx-assist-go/pkg/kafka"
	"rfx-assist-go/pkg/llm"
	"rfx-assist-go/pkg/log"
	"rfx-assist-go/pkg/storage"
	"rfx-assist-go/pkg/token"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库与外部协作方
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	store, err := storage.NewStore(cfg.MinIO)
	if err != nil {
		log.Fatalf("MinIO 初始化失败: %v", err)
	}
	searcher, err := es.NewClient(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Fatalf("Elasticsearch 初始化失败: %v", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.DB)
	historyCache := repository.NewHistoryCache(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	deckClient := deck.NewClient(cfg.Deck)

	filter := service.RelevanceFilter{
		Percentile: cfg.Relevance.Percentile,
		Cutoff:     cfg.Relevance.Cutoff,
	}
	composer := service.PromptComposer{
		DefaultLength: cfg.Answer.DefaultLength,
		DefaultTone:   cfg.Answer.DefaultTone,
	}
	synthesizer := service.NewAnswerSynthesizer(llmClient, cfg.Answer.Temperature)
	deckCoordinator := service.NewDeckCoordinator(deckClient)

	queryService := service.NewQueryService(
		conversationRepo, historyCache,
		embeddingClient, searcher,
		filter, composer, synthesizer,
		producer, deckCoordinator,
		cfg.Relevance.SearchLimit,
	)
	batchService := service.NewBatchService(
		conversationRepo,
		embeddingClient, searcher,
		filter, composer, synthesizer,
		store, producer,
		cfg.Relevance.BatchSearchLimit,
	)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	queryHandler := handler.NewQueryHandler(queryService)
	batchHandler := handler.NewBatchHandler(batchService)
	conversationHandler := handler.NewConversationHandler(conversationRepo)
	wsHandler := handler.NewWSHandler(queryService, jwtManager)

	apiV1 := r.Group("/api/v1")
	{
		// RFx 问答路由组，需要认证
		rfx := apiV1.Group("/rfx")
		rfx.Use(middleware.AuthMiddleware(jwtManager))
		{
			rfx.POST("/query", queryHandler.NewQuery)
			rfx.POST("/refine", queryHandler.Refine)
			rfx.POST("/questions", queryHandler.MultiQuestion)
			rfx.POST("/batch", batchHandler.ProcessFile)
		}

		// Conversation 路由组，需要认证
		conversations := apiV1.Group("/conversations")
		conversations.Use(middleware.AuthMiddleware(jwtManager))
		{
			conversations.GET("", conversationHandler.GetConversations)
			conversations.GET("/:id/messages", conversationHandler.GetMessages)
		}
	}

	// WebSocket 路由 (token 在路径中，浏览器无法为 WebSocket 设置请求头)
	r.GET("/ws/query/:token", wsHandler.Handle)

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

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
