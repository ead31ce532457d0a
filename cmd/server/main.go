package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"spechub-go/internal/config"
	"spechub-go/internal/handler"
	"spechub-go/internal/middleware"
	"spechub-go/internal/model"
	"spechub-go/internal/pipeline"
	"spechub-go/internal/repository"
	"spechub-go/internal/service"
	"spechub-go/pkg/database"
	"spechub-go/pkg/embedding"
	"spechub-go/pkg/es"
	"spechub-go/pkg/jobs"
	"spechub-go/pkg/kafka"
	"spechub-go/pkg/llm"
	"spechub-go/pkg/log"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("服务启动中...")

	// 3. 初始化数据库连接
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := database.DB.AutoMigrate(
		&model.SourceRecord{},
		&model.EmbeddingChunk{},
		&model.Link{},
		&model.Cluster{},
		&model.ClusterComputation{},
		&model.Report{},
	); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	// 4. 初始化 Elasticsearch（含向量索引创建）
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Fatalf("初始化 Elasticsearch 失败: %v", err)
	}

	// 5. 初始化 Kafka 生产者
	kafka.InitProducer(cfg.Kafka)

	// 6. 初始化出站模型客户端
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	// 7. 组装仓储层
	sourceRepo := repository.NewSourceRepository(database.DB)
	chunkRepo := repository.NewEmbeddingChunkRepository(database.DB)
	linkRepo := repository.NewLinkRepository(database.DB)
	clusterRepo := repository.NewClusterRepository(database.DB)
	compRepo := repository.NewComputationRepository(database.DB)
	reportRepo := repository.NewReportRepository(database.DB)

	// 8. 组装服务层
	searchService := service.NewSearchService(embeddingClient, cfg.Elasticsearch)
	linkerService := service.NewLinkerService(searchService, linkRepo)
	vectorSource := service.NewESVectorSource(cfg.Elasticsearch)
	clusterService := service.NewClusterService(sourceRepo, clusterRepo, compRepo, llmClient, vectorSource, cfg.Clustering.Sections)
	registry := jobs.NewRegistry()
	reportService := service.NewReportService(sourceRepo, reportRepo, searchService, llmClient, registry)

	// 9. 组装索引流水线并启动 Kafka 消费者
	// 聚类重算由证据索引成功后的触发策略评估驱动，无需手工轮询
	processor := pipeline.NewProcessor(embeddingClient, cfg.Elasticsearch, cfg.Embedding, sourceRepo, chunkRepo, linkerService, clusterService)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 10. 注册 HTTP 路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	sourceHandler := handler.NewSourceHandler(sourceRepo, processor)
	searchHandler := handler.NewSearchHandler(searchService)
	linkHandler := handler.NewLinkHandler(linkerService)
	clusterHandler := handler.NewClusterHandler(clusterService)
	reportHandler := handler.NewReportHandler(reportService, registry)

	api := r.Group("/api/v1")
	{
		api.POST("/sources", sourceHandler.Upsert)
		api.POST("/sources/reindex", sourceHandler.Reindex)

		api.GET("/search", searchHandler.Search)
		api.GET("/search/related", searchHandler.Related)

		api.POST("/links/auto", linkHandler.AutoLink)
		api.GET("/links", linkHandler.List)

		api.GET("/clusters", clusterHandler.List)
		api.POST("/clusters/recompute", clusterHandler.Recompute)

		api.POST("/reports", reportHandler.Start)
		api.GET("/reports", reportHandler.List)
		api.GET("/reports/:id", reportHandler.Get)
		api.GET("/reports/stream/:jobId", reportHandler.Stream)
	}

	// 11. 启动 HTTP 服务并支持优雅停机
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Infof("HTTP 服务已启动，监听端口 %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("收到退出信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("服务关闭异常: %v", err)
	}
	log.Info("服务已退出")
}
