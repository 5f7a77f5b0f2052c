package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	aws_pkg "github.com/GHOST-031/agrova-sub001/backend/pkg/aws"
	"github.com/GHOST-031/agrova-sub001/backend/services/common/logger"
	commonmw "github.com/GHOST-031/agrova-sub001/backend/services/common/middleware"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/controllers"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/database"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/kafka"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/repository/memstore"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/routes"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/services"
	"gorm.io/gorm"
)

const serviceName = "order-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// AWS is optional locally; every AWS-backed feature is skipped without it.
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)
	awsReady := awsErr == nil

	log := initLogger(ctx, cfg, awsCfg, awsReady)
	defer log.Sync()
	zap.ReplaceGlobals(log)
	if !awsReady {
		log.Warn("AWS config unavailable, running without AWS integrations", zap.Error(awsErr))
	}

	if cfg.UseSecrets && awsReady {
		if err := cfg.ApplySecrets(ctx, aws_pkg.NewSecretsClient(awsCfg)); err != nil {
			log.Warn("Failed to read DB credentials from Secrets Manager", zap.Error(err))
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	// --- Store ---
	var uow repository.UnitOfWork
	var db *gorm.DB
	switch cfg.StoreDriver {
	case StoreDriverMemory:
		log.Warn("Using in-memory store; data is lost on restart")
		uow = memstore.New()
	default:
		db, err = database.ConnectPostgres(cfg.Postgres, log,
			&models.Product{},
			&models.CheckoutGroup{},
			&models.Order{},
			&models.OrderItem{},
			&models.OrderStatusEntry{},
		)
		if err != nil {
			log.Fatal("Error connecting to database", zap.Error(err))
		}
		uow = repository.NewGormUnitOfWork(db)
	}

	// --- Integrations ---
	var metrics *aws_pkg.MetricsClient
	var serviceMetrics services.MetricsRecorder
	var httpMetrics commonmw.MetricsRecorder
	if awsReady {
		metrics = aws_pkg.NewMetricsClient(awsCfg)
		serviceMetrics = metrics
		httpMetrics = metrics
	}

	var producer services.MessageProducer
	var kafkaProducer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaProducer = kafka.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic, log)
		producer = kafkaProducer
	}

	var snsPublisher aws_pkg.SNSEventPublisher
	if awsReady && cfg.OrderSNSTopicArn != "" {
		snsPublisher = aws_pkg.NewSNSClient(awsCfg)
	}
	events := services.NewOrderEventPublisher(producer, snsPublisher, cfg.OrderSNSTopicArn, log)

	var buyers services.BuyerDirectory
	if cfg.UserServiceURL != "" {
		buyers = services.NewUserClient(cfg.UserServiceURL)
	}
	var details repository.ProductDetailsRepository
	if awsReady && cfg.ProductDetailsTable != "" {
		details = repository.NewDynamoProductDetailsRepository(aws_pkg.NewDynamoDBClient(awsCfg), cfg.ProductDetailsTable)
	}

	// --- Services ---
	checkoutService := services.NewCheckoutService(uow, log,
		services.WithPopulator(services.NewEnricher(buyers, details, log)),
		services.WithEvents(events),
		services.WithMetrics(serviceMetrics),
	)
	orderService := services.NewOrderService(uow, events, serviceMetrics, log)

	if awsReady && cfg.PaymentEventsQueueURL != "" {
		consumer := services.NewSQSPaymentConsumer(
			aws_pkg.NewSQSConsumer(awsCfg, cfg.PaymentEventsQueueURL, log),
			orderService, serviceMetrics, log,
		)
		go consumer.Start(ctx)
	}

	// --- HTTP ---
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestID())
	r.Use(commonmw.RequestLogger(log, "/health"))
	r.Use(commonmw.SecurityHeaders())
	r.Use(commonmw.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(commonmw.MetricsMiddleware(httpMetrics, serviceName))
	r.Use(commonmw.RateLimitMiddleware(cfg.RateLimitPerMinute, cfg.RateLimitBurst))
	r.Use(func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(reqCtx)
		c.Next()
	})

	routes.RegisterOrderRoutes(r,
		controllers.NewCheckoutController(checkoutService),
		controllers.NewOrderController(orderService),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "store": cfg.StoreDriver})
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("Order Service starting", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Warn("Failed to close Kafka producer", zap.Error(err))
		}
	}
	if err := database.Close(db); err != nil {
		log.Warn("Failed to close database", zap.Error(err))
	}
	log.Info("Server exiting")
}

func initLogger(ctx context.Context, cfg *Config, awsCfg sdkaws.Config, awsReady bool) *zap.Logger {
	if awsReady && cfg.ShipLogs {
		shipper, err := aws_pkg.NewLogShipper(ctx, awsCfg, serviceName, aws_pkg.LogShipping{
			Group:         cfg.LogGroup,
			RetentionDays: int32(cfg.LogRetentionDays),
		})
		if err == nil {
			if log, err := logger.InitializeWithWriter(cfg.Env, shipper); err == nil {
				log.Info("Shipping logs to CloudWatch", zap.String("stream", shipper.Stream()))
				return log
			}
		} else {
			fmt.Fprintf(os.Stderr, "cloudwatch logs disabled: %v\n", err)
		}
	}
	log, err := logger.Initialize(cfg.Env)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return log
}
