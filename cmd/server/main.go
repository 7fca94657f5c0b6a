// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/handler"
	"catalog-assist-go/internal/middleware"
	"catalog-assist-go/internal/pipeline"
	"catalog-assist-go/internal/repository"
	"catalog-assist-go/internal/seed"
	"catalog-assist-go/internal/service"
	"catalog-assist-go/pkg/database"
	"catalog-assist-go/pkg/embedding"
	"catalog-assist-go/pkg/es"
	"catalog-assist-go/pkg/kafka"
	"catalog-assist-go/pkg/llm"
	"catalog-assist-go/pkg/log"
	"catalog-assist-go/pkg/storage"
	"catalog-assist-go/pkg/tika"
	"catalog-assist-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 初始化数据库和 Redis
	db, err := database.OpenDB(cfg.Database)
	if err != nil {
		log.Fatal("数据库连接失败", err)
	}
	defer func() {
		if err := database.CloseDB(db); err != nil {
			log.Errorf("关闭数据库失败: %v", err)
		}
	}()
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	rdb, err := database.OpenRedis(rootCtx, cfg.Database.Redis)
	if err != nil {
		log.Fatal("Redis 连接失败", err)
	}
	defer rdb.Close()

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	historyCache := repository.NewHistoryCache(rdb)

	// 5. 可选的外部组件：对象存储、向量索引、向量模型
	var (
		procOpts  []pipeline.Option
		objects   service.ObjectRemover
		vectors   repository.VectorIndex
		embedder  embedding.Client
		publisher service.IngestPublisher
	)
	if cfg.MinIO.Enabled {
		archive, err := storage.NewArchive(rootCtx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		objects = archive
		procOpts = append(procOpts, pipeline.WithArchive(archive), pipeline.WithExtractor(tika.NewClient(cfg.Tika)))
	}
	if cfg.Elasticsearch.Enabled {
		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("Elasticsearch 初始化失败", err)
		}
		index := es.NewVectorIndex(esClient, cfg.Elasticsearch.IndexName, cfg.Embedding.Dimensions)
		if err := index.EnsureIndex(rootCtx); err != nil {
			log.Fatal("创建 Elasticsearch 索引失败", err)
		}
		vectors = index
	} else if cfg.Embedding.Enabled {
		vectors = repository.NewChunkVectorRepository(db)
	}
	if cfg.Embedding.Enabled {
		embedder = embedding.NewClient(cfg.Embedding)
		procOpts = append(procOpts, pipeline.WithEmbedding(embedder, vectors, cfg.Embedding.Concurrency))
	}

	// 6. 初始化文件处理管道 (Processor)
	processor, err := pipeline.NewProcessor(docRepo, chunkRepo, pipeline.NewChunkConfig(cfg.Chunking), procOpts...)
	if err != nil {
		log.Fatal("初始化入库管道失败", err)
	}

	// 7. 启动后台 Kafka 消费者
	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer func() {
			if err := producer.Close(); err != nil {
				log.Errorf("关闭 Kafka 生产者失败: %v", err)
			}
		}()
		publisher = producer

		consumer := kafka.NewConsumer(cfg.Kafka, rdb, processor)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(rootCtx); err != nil {
				log.Errorf("Kafka 消费者异常退出: %v", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	// 8. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	gateway, err := llm.NewGatewayFromConfig(cfg.LLM)
	if err != nil {
		log.Fatal("初始化模型网关失败", err)
	}
	retrievalService, err := service.NewRetrievalService(cfg.Retrieval, catalogRepo, docRepo, chunkRepo, embedder, vectors)
	if err != nil {
		log.Fatal("初始化检索服务失败", err)
	}
	catalogService := service.NewCatalogService(catalogRepo, docRepo)
	documentService := service.NewDocumentService(docRepo, chunkRepo, processor, publisher, vectors, objects)
	conversationService := service.NewConversationService(conversationRepo, historyCache)
	chatService := service.NewChatService(*cfg, userRepo, retrievalService,
		service.NewContextAssembler(cfg.LLM.Prompt), gateway, conversationService)

	// 8.1 导入 initfile 目录中的初始数据，已导入则跳过
	importer := seed.NewImporter(userRepo, catalogRepo, docRepo, catalogService, documentService)
	if _, err := importer.Run(rootCtx, cfg.Server.SeedDir); err != nil {
		log.Errorf("初始化导入失败: %v", err)
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	authMiddleware := middleware.AuthMiddleware(jwtManager, userRepo)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	documentHandler := handler.NewDocumentHandler(documentService)
	chatHandler := handler.NewChatHandler(chatService, jwtManager, userRepo)

	// 10. 注册路由
	apiV1 := r.Group("/api/v1")
	apiV1.Use(authMiddleware)
	{
		catalog := apiV1.Group("/catalog")
		{
			catalog.GET("", catalogHandler.List)
			catalog.GET("/:id", catalogHandler.Get)
			catalog.GET("/:id/documents", catalogHandler.Documents)
		}

		documents := apiV1.Group("/documents")
		{
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/chunks", documentHandler.Chunks)
		}

		apiV1.GET("/search", handler.NewSearchHandler(retrievalService).Search)
		apiV1.POST("/chat", chatHandler.Ask)
		apiV1.GET("/users/conversation", handler.NewConversationHandler(conversationService).GetConversations)

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			admin.POST("/catalog", catalogHandler.Create)
			admin.DELETE("/catalog/:id", catalogHandler.Delete)

			admin.POST("/documents", documentHandler.Register)
			admin.POST("/documents/:id/ingest", documentHandler.Ingest)
			admin.POST("/documents/:id/reindex", documentHandler.Reindex)
			admin.PUT("/documents/:id/deactivate", documentHandler.Deactivate)
			admin.DELETE("/documents/:id", documentHandler.Delete)
		}
	}
	// WebSocket 无法携带 Authorization 头，token 放在路径中
	r.GET("/chat/:token", chatHandler.Handle)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止消费者并等待当前任务结束
	stop()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	log.Info("服务已优雅关闭")
}
