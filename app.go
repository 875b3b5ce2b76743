package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dingtalk-mcp/dingtalk/config"
	"dingtalk-mcp/dingtalk/pkg/api"
	"dingtalk-mcp/dingtalk/pkg/auth"
	"dingtalk-mcp/dingtalk/pkg/dingtalk"
	"dingtalk-mcp/dingtalk/pkg/handler"
	"dingtalk-mcp/dingtalk/pkg/mcpserver"
	"dingtalk-mcp/dingtalk/pkg/notes"
	"dingtalk-mcp/dingtalk/pkg/notes/impl"
	"dingtalk-mcp/tools/httpclient"
	"dingtalk-mcp/tools/logger"

	"github.com/gin-gonic/gin"
)

// app 进程内共享的组件
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	appAuth *auth.AppAuthenticator
	notes   notes.Service
	mcp     *mcpserver.Server
}

// newApp 按配置组装各组件，两个认证器和所有客户端共用一个 http.Client
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	httpClient := httpclient.NewClient(httpclient.Options{
		Timeout:             cfg.HTTPTimeout,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	})

	appAuth := auth.NewAppAuthenticator(cfg, httpClient, log)
	userAuth := auth.NewUserAuthenticator(cfg, httpClient, log)

	client := dingtalk.NewClient(cfg, httpClient, log)
	directory := dingtalk.NewDirectoryClient(cfg, client, appAuth)
	sender := dingtalk.NewSender(cfg, client, userAuth, appAuth)
	dispatcher := handler.NewDispatcher(directory, sender, log)

	store, err := newNotesService(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	srv, err := mcpserver.New(ctx, dispatcher, store, log)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, appAuth: appAuth, notes: store, mcp: srv}, nil
}

// newNotesService 配置了 MySQL 时使用数据库，否则使用内存存储
func newNotesService(ctx context.Context, cfg *config.Config, log *logger.Logger) (notes.Service, error) {
	if !cfg.MySQLEnabled() {
		return impl.NewMemoryImpl(notes.Seed()...), nil
	}

	db, err := cfg.GetDB()
	if err != nil {
		return nil, err
	}
	store := impl.NewNotesImpl(db)
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	log.Info("Using mysql notes store")
	return store, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("Starting %s %s (transport=%s, send_mode=%s)", mcpserver.Name, version, cfg.Transport, cfg.SendMode)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize: %v", err)
		return err
	}

	if cfg.Transport == config.TransportHTTP {
		return a.serveHTTP(ctx)
	}
	return a.serveStdio(ctx)
}

func (a *app) serveStdio(ctx context.Context) error {
	err := a.mcp.ServeStdio(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("Stdio server stopped: %v", err)
		return err
	}
	a.log.Info("Server exited")
	return nil
}

func (a *app) serveHTTP(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewHandler(version, a.notes, a.appAuth, a.log), a.mcp.HTTPHandler())

	// 配置HTTP服务器
	server := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      router,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server starting on port %s...", a.cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.log.Fatal("Failed to start server: %v", err)
			return err
		}
	case <-ctx.Done():
	}

	a.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Fatal("Server forced to shutdown: %v", err)
		return err
	}

	a.log.Info("Server exited")
	return nil
}
