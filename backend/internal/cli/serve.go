package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sharednote/backend/config"
	"sharednote/backend/internal/cache"
	"sharednote/backend/internal/collab"
	"sharednote/backend/internal/httpapi"
	"sharednote/backend/internal/httpapi/handlers"
	"sharednote/backend/internal/httpapi/middleware"
	"sharednote/backend/internal/lock"
	"sharednote/backend/internal/presence"
	"sharednote/backend/internal/ws"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the collaboration server",
	Long: `Run the HTTP and WebSocket server together with the periodic sweep.

Storage is chosen by storage.driver (memory, bolt or mysql). Redis presence
mirroring and the Kafka event stream are enabled when redis.addrs and
kafka.brokers are set.`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := serve(cmd.Context(), cfg); err != nil {
		exitError("%v", err)
	}
}

func newRedis(cfg *config.Config) (redis.UniversalClient, error) {
	if len(cfg.Redis.Addrs) == 0 {
		return nil, nil
	}
	// 单个地址是单机客户端，多个地址是集群客户端
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

func newProducer(cfg *config.Config) (sarama.SyncProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return producer, nil
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	rdb, err := newRedis(cfg)
	if err != nil {
		return err
	}
	var presenceCache cache.PresenceCache
	if rdb != nil {
		defer rdb.Close()
		presenceCache = cache.NewRedisPresence(rdb)
	}

	hub := ws.NewHub(presenceCache)
	notifiers := collab.Notifiers{hub}

	producer, err := newProducer(cfg)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		// Kafka 本地队列 + worker 重试发送
		dispatcher := collab.NewKafkaDispatcher(producer, cfg.Kafka.Topic, collab.NewSemaphoreControl(cfg.Kafka.Workers), collab.KafkaDispatcherOptions{
			QueueSize:   cfg.Kafka.QueueSize,
			Workers:     cfg.Kafka.Workers,
			MaxRetry:    cfg.Kafka.MaxRetry,
			BaseBackoff: cfg.Kafka.BaseBackoff,
			MaxBackoff:  cfg.Kafka.MaxBackoff,
		})
		// 先于 producer.Close 执行，队列里的事件发完再关
		defer dispatcher.Close()
		notifiers = append(notifiers, dispatcher)
	}

	opt := collab.Options{
		Locks: lock.NewManager(lock.Options{
			Inactivity: cfg.Collab.LockInactivity,
			RequestTTL: cfg.Collab.LockRequestTTL,
		}),
		Presence: presence.NewTracker(presence.Options{
			HeartbeatWindow: cfg.Collab.HeartbeatWindow,
			Retention:       cfg.Collab.PresenceRetention,
		}),
		Documents:           be.documents,
		LockStore:           be.locks,
		MirrorTTL:           2 * cfg.Collab.HeartbeatWindow,
		Notifier:            notifiers,
		ReleaseOnDisconnect: cfg.Collab.ReleaseOnDisconnect,
	}
	if presenceCache != nil {
		opt.Mirror = presenceCache
	}
	svc := collab.NewService(be.log, opt)
	if err := svc.Restore(ctx); err != nil {
		return err
	}

	var auth gin.HandlerFunc
	if cfg.Auth.JWTSecret != "" {
		auth = middleware.JWTAuth([]byte(cfg.Auth.JWTSecret))
	} else {
		// 从 Authorization 或 ?token= 提取 token，调用 auth-service /v1/auth/verify
		auth = middleware.AuthMiddleware(cfg.Auth.Path)
	}

	router := httpapi.NewRouter(httpapi.RouterOptions{
		Documents:    handlers.NewDocuments(svc, presenceCache),
		WS:           ws.NewManager(hub, svc, collab.NewSemaphoreControl(cfg.Collab.SubmitConcurrency)),
		Auth:         auth,
		AllowOrigins: cfg.Running.AllowOrigins,
		AccessLog:    cfg.Running.AccessLog,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Running.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	color.New(color.FgGreen).Printf("sharednote listening on %s ", srv.Addr)
	fmt.Printf("(storage=%s redis=%t kafka=%t)\n", cfg.Storage.Driver, rdb != nil, producer != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunSweeper(gctx, cfg.Collab.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Printf("sharednote stopped err=%v", err)
	return err
}
