// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"zhiwen-go/internal/app"
	"zhiwen-go/internal/config"
	"zhiwen-go/internal/handler"
	"zhiwen-go/internal/middleware"
	"zhiwen-go/pkg/log"
)

func main() {
	// 1. 初始化配置
	configPath := flag.String("config", defaultConfigPath(), "配置文件路径")
	flag.Parse()
	cfg := config.Init(*configPath)

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 组装依赖容器：基础设施客户端、repository、service、流水线
	container, err := app.New(cfg)
	if err != nil {
		log.Fatalf("依赖容器初始化失败: %v", err)
	}
	defer container.Close()

	// 4. 启动后台 Kafka 消费者，驱动文档处理流水线
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	go container.Consumer.Run(consumerCtx)

	// 5. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())
	registerRoutes(r, container)

	// 6. 启动 HTTP 服务器并实现优雅停机
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

	// 先停消费者，让正在处理的文档走到终态后不再领取新任务
	stopConsumer()

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// defaultConfigPath 允许用环境变量覆盖默认配置路径，便于容器化部署。
func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "./configs/config.yaml"
}

// registerRoutes 注册全部 HTTP 与 WebSocket 路由。
func registerRoutes(r *gin.Engine, c *app.Container) {
	authRequired := middleware.AuthMiddleware(c.JWTManager, c.TokenBlacklist, c.UserService)

	userHandler := handler.NewUserHandler(c.UserService)
	authHandler := handler.NewAuthHandler(c.UserService)
	collectionHandler := handler.NewCollectionHandler(c.CollectionService)
	documentHandler := handler.NewDocumentHandler(c.DocumentService)
	searchHandler := handler.NewSearchHandler(c.SearchService, c.PermissionService)
	queryHandler := handler.NewQueryHandler(c.QueryService, c.PermissionService)
	queryWSHandler := handler.NewQueryWSHandler(c.QueryService, c.PermissionService)

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refresh", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(authRequired)
			{
				authed.GET("/profile", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// Collection 路由组，需要认证
		collections := apiV1.Group("/collections")
		collections.Use(authRequired)
		{
			collections.POST("", collectionHandler.Create)
			collections.GET("", collectionHandler.List)
			collections.GET("/:id", collectionHandler.Get)
			collections.PUT("/:id", collectionHandler.Update)
			collections.DELETE("/:id", collectionHandler.Delete)
			collections.GET("/:id/members", collectionHandler.ListMembers)
			collections.POST("/:id/members", collectionHandler.AddMember)
			collections.PUT("/:id/members/:userId", collectionHandler.UpdateMemberRole)
			collections.DELETE("/:id/members/:userId", collectionHandler.RemoveMember)
		}

		// Document 路由组，需要认证
		documents := apiV1.Group("/documents")
		documents.Use(authRequired)
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/preview", documentHandler.Preview)
			documents.GET("/:id/download", documentHandler.Download)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/reprocess", documentHandler.Reprocess)
		}

		// Search 路由组，需要认证
		search := apiV1.Group("/search")
		search.Use(authRequired)
		{
			search.GET("", searchHandler.Search)
		}

		// Query 路由组，需要认证；stream 走 SSE
		query := apiV1.Group("/query")
		query.Use(authRequired)
		{
			query.POST("", queryHandler.Ask)
			query.GET("/stream", queryHandler.Stream)
		}
		queries := apiV1.Group("/queries")
		queries.Use(authRequired)
		{
			queries.GET("", queryHandler.History)
			queries.GET("/:id", queryHandler.Get)
		}

		// WebSocket 问答，token 走查询参数
		ws := apiV1.Group("/ws")
		ws.Use(authRequired)
		{
			ws.GET("/query", queryWSHandler.Handle)
		}
	}
}
