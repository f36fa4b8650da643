package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairchat/internal/auth"
	"pairchat/internal/blob"
	"pairchat/internal/config"
	"pairchat/internal/db"
	clog "pairchat/internal/log"
	"pairchat/internal/mw"
	"pairchat/internal/server"
	"pairchat/internal/service"
	"pairchat/internal/store"
	"pairchat/internal/store/badgerstore"
	"pairchat/internal/store/gormstore"
	"pairchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、打开存储并启动 Gin 服务。
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	uploader, uploadDir, err := newUploader(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.BlobDriver).Msg("blob store")
	}
	hasher, err := auth.NewHasher(cfg.PasswordHasher)
	if err != nil {
		log.Fatal().Err(err).Msg("password hasher")
	}
	codec := auth.NewCodec(cfg.JWTSecret, cfg.SessionTTL)
	registry := ws.NewRegistry()

	engine, stopLimiters := server.SetupRouter(server.Deps{
		Auth:           auth.NewAuthenticator(codec, st),
		Users:          service.NewUserService(st, hasher, codec, uploader, registry),
		Messages:       service.NewMessageService(st),
		Dispatcher:     service.NewDispatcher(st, uploader, registry),
		Registry:       registry,
		SessionTTL:     codec.TTL(),
		SecureCookie:   !cfg.IsDev(),
		Dev:            cfg.IsDev(),
		AllowedOrigins: mw.AllowedOrigins(cfg.ClientURL),
		UploadDir:      uploadDir,
		StaticDir:      "frontend/dist",
	})
	defer stopLimiters()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: engine, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Str("store", cfg.DatabaseDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server run")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// 已升级的 websocket 连接不受 Shutdown 管理，进程退出时一并断开。
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("server stopped")
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DriverBadger:
		s, err := badgerstore.Open(cfg.BadgerPath, clog.Component("badger"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case db.DriverPostgres, db.DriverSQLite:
		gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(gdb); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return gormstore.New(gdb), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DatabaseDriver)
	}
}

// newUploader 返回上传协作方，以及需要以 /uploads 托管的本地目录（仅 disk 模式）。
func newUploader(ctx context.Context, cfg config.Config) (blob.Uploader, string, error) {
	switch cfg.BlobDriver {
	case config.BlobS3:
		s, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	default:
		base := fmt.Sprintf("%s/uploads", cfg.PublicBaseURL)
		return blob.NewDisk(cfg.UploadDir, base), cfg.UploadDir, nil
	}
}
