package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/myapphub/apphub/internal/config"
	"github.com/myapphub/apphub/internal/model/packageInfo"
	"github.com/myapphub/apphub/internal/notify"
	"github.com/myapphub/apphub/internal/permission"
	"github.com/myapphub/apphub/internal/repository/appRepo"
	"github.com/myapphub/apphub/internal/repository/packageRepo"
	"github.com/myapphub/apphub/internal/repository/uploadRepo"
	"github.com/myapphub/apphub/internal/service/distributeService"
	"github.com/myapphub/apphub/internal/sign"
	"github.com/myapphub/apphub/internal/storage"
	"github.com/myapphub/apphub/pkg/database/postgres"
	"github.com/myapphub/apphub/pkg/database/redis"
	"github.com/myapphub/apphub/pkg/logger"
)

func main() {
	ctx := context.Background()
	ctx, _ = logger.New(ctx)
	log := logger.GetLogger(ctx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading config", zap.Error(err))
	}

	pool, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Error connecting to postgres", zap.Error(err))
	}
	defer pool.Close()

	var store storage.Storage
	storageType := packageInfo.StorageKind(cfg.Storage.Type)
	switch storageType {
	case packageInfo.StorageRemote:
		store, err = storage.NewMinIO(ctx, cfg.Storage.MinIO)
	default:
		storageType = packageInfo.StorageLocal
		store, err = storage.NewLocal(cfg.Storage.LocalRoot, cfg.ExternalURL)
	}
	if err != nil {
		log.Fatal("Error initializing storage", zap.Error(err))
	}

	apps := appRepo.New(pool)
	notifier := notify.New(redis.New(cfg.Redis), cfg.NotifyChannel)

	distributeSvc := distributeService.New(
		apps,
		packageRepo.New(pool),
		uploadRepo.New(pool),
		store,
		notifier,
		sign.New(cfg.InstallSignSecret),
		distributeService.Options{
			StorageType:  storageType,
			ExternalURL:  cfg.ExternalURL,
			FetchTimeout: cfg.Storage.FetchTimeout,
		},
	)
	perm := permission.New(apps)

	log.Info("apphub core ready",
		zap.String("storage", string(storageType)),
		zap.String("external_url", cfg.ExternalURL),
		zap.Bool("distribute", distributeSvc != nil),
		zap.Bool("permissions", perm != nil))

	// The HTTP surface is mounted by the embedding server; this process
	// just holds the wired core until it is told to stop.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
}
