package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/moments-social/moments-backend/internal/ai"
	"github.com/moments-social/moments-backend/internal/config"
	"github.com/moments-social/moments-backend/internal/email"
	"github.com/moments-social/moments-backend/internal/handler"
	"github.com/moments-social/moments-backend/internal/middleware"
	"github.com/moments-social/moments-backend/internal/migration"
	"github.com/moments-social/moments-backend/internal/repository"
	"github.com/moments-social/moments-backend/internal/routes"
	"github.com/moments-social/moments-backend/internal/service"
	pkgcache "github.com/moments-social/moments-backend/pkg/cache"
	pkgjwt "github.com/moments-social/moments-backend/pkg/jwt"
	pkglogger "github.com/moments-social/moments-backend/pkg/logger"
	pkgredis "github.com/moments-social/moments-backend/pkg/redis"
	pkgstorage "github.com/moments-social/moments-backend/pkg/storage"
)

// @title Moments API
// @version 1.0
// @description Mobile-first social feed backend
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	pkglogger.Init()
	pkglogger.InitStructured(env)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = fmt.Sprintf("configs/config.%s.yaml", env)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		pkglogger.Fatal("Failed to load config %s: %v", configPath, err)
	}

	db, err := initDB(cfg, env)
	if err != nil {
		pkglogger.Fatal("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to MySQL")

	if err := migration.Run(db); err != nil {
		pkglogger.Fatal("Migration failed: %v", err)
	}

	// Redis is optional; without it the app runs uncached and
	// verification codes cannot be issued.
	redisClient, err := pkgredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		pkglogger.Info("Warning: Failed to connect to Redis: %v (continuing without Redis)", err)
		redisClient = nil
	} else {
		pkglogger.Info("Connected to Redis")
	}
	cacheService := pkgcache.NewService(redisClient)

	var s3Client *pkgstorage.S3Client
	if cfg.Storage.Bucket != "" {
		s3Client, err = pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			PublicURL:       cfg.Storage.PublicURL,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if err != nil {
			pkglogger.Info("Warning: S3 storage init failed: %v (continuing without uploads)", err)
			s3Client = nil
		} else {
			pkglogger.Info("Connected to object storage")
		}
	}

	var mailer email.Mailer
	if cfg.Email.FromEmail != "" {
		mailer, err = email.NewSESMailer(cfg.Email.Region, cfg.Email.FromEmail, cfg.Email.FromName)
		if err != nil {
			pkglogger.Info("Warning: SES init failed: %v (falling back to log mailer)", err)
			mailer = email.LogMailer{}
		}
	} else {
		mailer = email.LogMailer{}
	}

	aiClient := ai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model)

	jwtManager := pkgjwt.NewManager(cfg.JWT.Secret, cfg.JWT.TTLHours)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)

	authService := service.NewAuthService(userRepo, jwtManager, cacheService, mailer)
	postService := service.NewPostService(postRepo, cacheService, aiClient)

	h := &routes.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Post:   handler.NewPostHandler(postService),
		Upload: handler.NewUploadHandler(s3Client),
		AI:     handler.NewAIHandler(aiClient),
	}

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	allowOrigins := cfg.Server.AllowedOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "X-New-Token"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "moments-backend",
			"time":    time.Now().Unix(),
		})
	})

	routes.Setup(router, h, jwtManager)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	pkglogger.Info("Server listening on %s", addr)
	if err := router.Run(addr); err != nil {
		pkglogger.Fatal("Server stopped: %v", err)
	}
}

func initDB(cfg *config.Config, env string) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	mysqlCfg.Params["time_zone"] = "'+08:00'"

	logMode := gormlogger.Warn
	if env == "development" || env == "local" {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}
