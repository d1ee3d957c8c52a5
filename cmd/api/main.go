// cmd/api/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neurostore-be/internal/config"
	"neurostore-be/internal/domain/model"
	"neurostore-be/internal/events"
	"neurostore-be/internal/handler"
	"neurostore-be/internal/infra/db"
	"neurostore-be/internal/infra/redisstore"
	infraRepo "neurostore-be/internal/infra/repository"
	"neurostore-be/internal/logger"
	"neurostore-be/internal/payment"
	"neurostore-be/internal/usecase"
	"neurostore-be/internal/worker"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func main() {
	//ローカルでは.envから読む。無ければ環境変数だけで動く
	_ = godotenv.Load("../.env")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger.Init(cfg.GoEnv)
	defer logger.Sync()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		logger.L().Fatal("db connect failed", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.Product{},
		&model.Address{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.AuditLog{},
	); err != nil {
		logger.L().Fatal("db migrate failed", zap.Error(err))
	}

	//Redis（失効トークン）
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	revocation := redisstore.NewRevocationStore(rdb)

	//イベント発行（ブローカー未設定ならnoop）
	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers)
	} else {
		logger.L().Info("kafka brokers not configured, events disabled")
		publisher = events.NewNoopPublisher()
	}
	defer publisher.Close()

	//Repository（GORM実装）生成
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	orderItemRepo := infraRepo.NewOrderItemGormRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//決済ゲートウェイ
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.FEURL)

	clock := &realClock{}

	//Usecase生成
	reconcileUC := usecase.NewReconcileUsecase(txManager, cartRepo, gateway, publisher, clock)
	orderUC := usecase.NewOrderUsecase(txManager, orderRepo, orderItemRepo, addressRepo, productRepo, publisher, clock)
	checkoutUC := usecase.NewCheckoutUsecase(orderRepo, orderItemRepo, gateway, reconcileUC, clock)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager, auditRepo, publisher, clock)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo)
	productUC := usecase.NewProductUsecase(productRepo)

	//期限切れTEMPの掃除係
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := worker.NewExpirySweeper(orderRepo, clock, cfg.SweepInterval)
	go sweeper.Run(sweepCtx)

	//Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{cfg.FEURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	//Handler生成＋ルート登録
	handler.NewProductHandler(productUC).RegisterRoutes(e)
	handler.NewAuthHandler(revocation).RegisterRoutes(e, cfg, revocation)
	handler.NewOrderHandler(orderUC, cartUC).RegisterRoutes(e, cfg, revocation)
	handler.NewCheckoutHandler(checkoutUC).RegisterRoutes(e, cfg, revocation)
	handler.NewCartHandler(cartUC).RegisterRoutes(e, cfg, revocation)
	handler.NewAdminOrderHandler(adminOrderUC).RegisterRoutes(e, cfg, revocation)
	handler.NewWebhookHandler(gateway, reconcileUC).RegisterRoutes(e)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	addr := ":8080"
	if cfg.Port != "" {
		if cfg.Port[0] != ':' {
			addr = ":" + cfg.Port
		} else {
			addr = cfg.Port
		}
	}

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.L().Fatal("server start failed", zap.Error(err))
		}
	}()

	//SIGINT/SIGTERMでgraceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.L().Info("shutting down")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.L().Error("server shutdown failed", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		logger.L().Warn("redis close failed", zap.Error(err))
	}
}
