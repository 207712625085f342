package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/adapter/poolpresenter"
	"github.com/park285/Squares-KakaoTalk-bot/internal/bot"
	appcfg "github.com/park285/Squares-KakaoTalk-bot/internal/config"
	"github.com/park285/Squares-KakaoTalk-bot/internal/httpapi"
	"github.com/park285/Squares-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Squares-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Squares-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/park285/Squares-KakaoTalk-bot/internal/render"
	"github.com/park285/Squares-KakaoTalk-bot/internal/scorefeed"
	"go.uber.org/zap"
)

type prefixProvider struct{ prefix string }

func (p prefixProvider) Prefix() string { return p.prefix }

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}

	rdb, err := pool.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis_init_error", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	mopts := []pool.Option{pool.WithDefaults(pool.Defaults{
		Size:         cfg.GridSize,
		AxisMode:     cfg.AxisMode,
		LockAfter:    cfg.DefaultLock,
		MaxPerPlayer: cfg.MaxPerPlayer,
	})}
	var repo *pool.Repository
	if cfg.DatabaseURL != "" {
		repo, err = pool.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive_init_error", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatal("archive_migrate_error", zap.Error(err))
		}
		mopts = append(mopts, pool.WithArchive(repo))
	}
	mgr := pool.NewManager(pool.NewRedisStore(rdb, cfg.PoolTTL), mopts...)

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("msgcat_init_error", zap.Error(err))
	}
	renderer := render.NewSVGBoardRenderer()

	client := irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(headers))
	cctx, ccancel := context.WithTimeout(ctx, 5*time.Second)
	if ic, err := client.GetConfig(cctx); err != nil {
		logger.Warn("iris_config_error", zap.Error(err))
	} else {
		logger.Info("iris_config", zap.Int("port", ic.Port), zap.Int("polling", ic.PollingSpeed), zap.Int("rate", ic.MessageRate))
	}
	ccancel()

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})
	egress := irisfast.NewEgress(cfg.EgressMode, client, ws, logger)

	presenter := poolpresenter.NewPresenter(egress, renderer)
	formatter := poolpresenter.NewFormatter(cat, prefixProvider{prefix: cfg.BotPrefix}, time.Local)
	ropts := []bot.Option{bot.WithRoomFilter(cfg.RoomAllowed)}
	if repo != nil {
		ropts = append(ropts, bot.WithHistory(repo))
	}
	router := bot.NewRouter(cfg.BotPrefix, mgr, presenter, formatter, ropts...)

	ws.OnMessage(func(msg *irisfast.Message) {
		if !router.Matches(msg) {
			return
		}
		// WS 수신 루프를 막지 않도록 분리
		go func() {
			hctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			router.Handle(hctx, msg)
		}()
	})

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		api := httpapi.NewServer(mgr, renderer,
			httpapi.WithCORSOrigins(cfg.CORSOrigins),
			httpapi.WithHealthCheck(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		)
		srv = &http.Server{Addr: cfg.HTTPAddr, Handler: api.Routes(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http_serve_error", zap.Error(err))
			}
		}()
	}

	poller := scorefeed.NewPoller(scorefeed.NewClient(cfg.ESPNBaseURL), mgr, router.NotifyFeed, cfg.ScorePollInterval)
	go poller.Run(ctx)

	wctx, wcancel := context.WithTimeout(ctx, 10*time.Second)
	if err := ws.Connect(wctx); err != nil {
		wcancel()
		logger.Fatal("ws_connect_error", zap.Error(err))
	}
	wcancel()
	logger.Info("squares_bot_ready", zap.String("prefix", cfg.BotPrefix), zap.String("egress", cfg.EgressMode))

	<-ctx.Done()
	logger.Info("squares_bot_shutdown")

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if srv != nil {
		_ = srv.Shutdown(sctx)
	}
	_ = ws.Close(sctx)
}
