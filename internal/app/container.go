// Package app 在进程启动时一次性构建全部依赖：
// 基础设施客户端、repository、service、流水线与消费者。
// 所有昂贵的客户端（连接池）只实例化一次，之后以只读方式注入，
// 不存在包级全局可变状态。
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"zhiwen-go/internal/chunker"
	"zhiwen-go/internal/config"
	"zhiwen-go/internal/extractor"
	"zhiwen-go/internal/model"
	"zhiwen-go/internal/pipeline"
	"zhiwen-go/internal/repository"
	"zhiwen-go/internal/service"
	"zhiwen-go/pkg/database"
	"zhiwen-go/pkg/embedding"
	"zhiwen-go/pkg/es"
	"zhiwen-go/pkg/kafka"
	"zhiwen-go/pkg/llm"
	"zhiwen-go/pkg/log"
	"zhiwen-go/pkg/storage"
	"zhiwen-go/pkg/tasks"
	"zhiwen-go/pkg/tika"
	"zhiwen-go/pkg/token"
	"zhiwen-go/pkg/tokenizer"
)

// Container 持有组装完成的全部组件，由 main 构建并向路由注册传递。
type Container struct {
	Cfg *config.Config

	DB       *gorm.DB
	WorkerDB *gorm.DB
	RDB      *redis.Client
	Store    *storage.Client
	ES       *es.Client
	Producer *kafka.Producer
	Consumer *kafka.Consumer

	JWTManager     *token.JWTManager
	TokenBlacklist repository.TokenBlacklist

	UserService       service.UserService
	PermissionService service.PermissionService
	CollectionService service.CollectionService
	DocumentService   service.DocumentService
	EmbeddingService  service.EmbeddingService
	SearchService     service.SearchService
	CitationService   service.CitationService
	QueryService      service.QueryService

	Processor *pipeline.Processor
}

// New 按依赖顺序组装容器：基础设施 → repository → service → 流水线 → 消费者。
// 任何一步失败都返回错误，进程不应带着残缺的依赖继续启动。
func New(cfg *config.Config) (*Container, error) {
	// 请求路径与后台流水线各用一个独立的 MySQL 句柄，
	// 上传请求的会话结束不会波及正在进行的文档处理。
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	workerDB, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		return nil, err
	}
	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		return nil, err
	}
	esClient, err := es.NewClient(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("初始化 Elasticsearch 失败: %w", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)

	// 请求路径的 repository
	userRepo := repository.NewUserRepository(db)
	collectionRepo := repository.NewCollectionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	queryRepo := repository.NewQueryRepository(db)
	blacklist := repository.NewTokenBlacklist(rdb)
	cacheTTL := time.Duration(cfg.Embedding.CacheTTLMinutes) * time.Minute
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	embeddingCache := repository.NewEmbeddingCache(rdb, cacheTTL)

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)

	// 外部供应商客户端
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	tikaClient := tika.NewClient(cfg.Tika)

	// service 层
	userService := service.NewUserService(userRepo, jwtManager, blacklist)
	permissionService := service.NewPermissionService(collectionRepo)
	embeddingService := service.NewEmbeddingService(cfg.Embedding, embeddingClient, chunkRepo, esClient)
	searchService := service.NewSearchService(cfg.Embedding, embeddingService, embeddingCache, esClient, chunkRepo, documentRepo)
	citationService := service.NewCitationService(cfg.RAG.Citation)
	queryService := service.NewQueryService(cfg.RAG.Query, cfg.LLM, searchService, citationService, llmClient, queryRepo)
	collectionService := service.NewCollectionService(collectionRepo, documentRepo, chunkRepo, userRepo, permissionService, store, esClient)
	documentService := service.NewDocumentService(documentRepo, chunkRepo, permissionService, store, producer, esClient)

	// 后台流水线：独立的 DB 句柄与嵌入服务实例，不与请求路径共享可变状态
	workerDocumentRepo := repository.NewDocumentRepository(workerDB)
	workerChunkRepo := repository.NewChunkRepository(workerDB)
	workerEmbedding := service.NewEmbeddingService(cfg.Embedding, embeddingClient, workerChunkRepo, esClient)
	registry := extractor.NewRegistry(
		extractor.NewPlainTextExtractor(),
		extractor.NewTikaExtractor(tikaClient),
	)
	counter := tokenizer.NewCounter(cfg.RAG.Chunk.Encoding)
	textChunker := chunker.NewChunker(cfg.RAG.Chunk, counter)
	processor := pipeline.NewProcessor(
		workerDocumentRepo,
		workerChunkRepo,
		store,
		registry,
		textChunker,
		workerEmbedding,
		pipeline.NewKafkaNotifier(producer),
	)

	consumer := kafka.NewConsumer(cfg.Kafka, rdb,
		func(ctx context.Context, task tasks.DocumentProcessingTask) error {
			return processor.Process(ctx, task.DocumentID, task.Force)
		},
		func(ctx context.Context, task tasks.DocumentProcessingTask, cause error) {
			// 投递次数耗尽：把文档落到 failed 终态，避免永远停在 processing。
			if err := workerDocumentRepo.UpdateFields(task.DocumentID, map[string]interface{}{
				"status":           model.DocStatusFailed,
				"processing_error": fmt.Sprintf("处理任务多次失败: %v", cause),
			}); err != nil {
				log.Errorf("[App] 标记文档失败状态时出错, documentID: %s, error: %v", task.DocumentID, err)
			}
		},
	)

	return &Container{
		Cfg:               cfg,
		DB:                db,
		WorkerDB:          workerDB,
		RDB:               rdb,
		Store:             store,
		ES:                esClient,
		Producer:          producer,
		Consumer:          consumer,
		JWTManager:        jwtManager,
		TokenBlacklist:    blacklist,
		UserService:       userService,
		PermissionService: permissionService,
		CollectionService: collectionService,
		DocumentService:   documentService,
		EmbeddingService:  embeddingService,
		SearchService:     searchService,
		CitationService:   citationService,
		QueryService:      queryService,
		Processor:         processor,
	}, nil
}

// Close 释放容器持有的外部连接，按与建立相反的顺序关闭。
func (c *Container) Close() {
	if err := c.Consumer.Close(); err != nil {
		log.Errorf("[App] 关闭 Kafka 消费者失败: %v", err)
	}
	if err := c.Producer.Close(); err != nil {
		log.Errorf("[App] 关闭 Kafka 生产者失败: %v", err)
	}
	if err := c.RDB.Close(); err != nil {
		log.Errorf("[App] 关闭 Redis 连接失败: %v", err)
	}
	for _, db := range []*gorm.DB{c.DB, c.WorkerDB} {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Errorf("[App] 关闭 MySQL 连接失败: %v", err)
			}
		}
	}
}
