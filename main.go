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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"debateserver/announce"
	"debateserver/arena"
	"debateserver/arena/actions"
	"debateserver/arena/betting"
	"debateserver/arena/broadcast"
	sessions "debateserver/arena/database"
	"debateserver/arena/match"
	"debateserver/arena/matchmaking"
	"debateserver/arena/settlement"
	"debateserver/auth"
	"debateserver/database"
	"debateserver/handlers"
	"debateserver/judge"
	"debateserver/middlewares"
	"debateserver/storage"
	"debateserver/store"
	"debateserver/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

func main() {
	logger, err := utils.InitLogger() // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}
	auth.SetKey(config.JWTSecretKey)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// PostgreSQL、Redis、MongoDBを並行して初期化
	var (
		db      *gorm.DB
		rdb     *redis.Client
		chatlog *store.ChatLog
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		db, err = database.InitPostgreSQL(gctx, config, logger)
		return err
	})
	g.Go(func() error {
		var err error
		rdb, err = database.InitRedis(gctx, config, logger)
		return err
	})
	if config.MongoURI != "" {
		g.Go(func() error {
			var err error
			chatlog, err = store.NewChatLog(gctx, config.MongoURI, config.MongoDB)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatal("データストアの初期化に失敗しました", zap.Error(err))
	}

	if err := database.AutoMigrateDB(db, logger); err != nil {
		logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
	}
	st := store.NewGormStore(db)

	registry := match.NewRegistry()
	ledger := betting.NewLedger(st, logger)

	// 審査サービス未設定なら Ranker は常に失敗し、簡易採点に切り替わる
	var (
		rawJudge  judge.Judge
		moderator judge.Moderator
	)
	if config.JudgeURL != "" || config.ModerationURL != "" {
		client := judge.NewHTTPClient(config.JudgeURL, config.ModerationURL, config.JudgeAPIKey, config.JudgeRPS)
		if config.JudgeURL != "" {
			rawJudge = client
		}
		if config.ModerationURL != "" {
			moderator = client
		}
	}
	ranker := judge.NewRanker(rawJudge, judge.DefaultPolicy(), logger)

	var opts []settlement.Option
	r2 := storage.R2Config{
		AccountID:       config.R2AccountID,
		AccessKeyID:     config.R2AccessKeyID,
		SecretAccessKey: config.R2SecretAccessKey,
		BucketName:      config.R2Bucket,
		PublicBaseURL:   config.R2PublicBaseURL,
	}
	if r2.Enabled() {
		uploader, err := storage.NewR2Uploader(ctx, r2)
		if err != nil {
			logger.Fatal("R2の初期化に失敗しました", zap.Error(err))
		}
		opts = append(opts, settlement.WithArchiver(storage.NewTranscriptArchiver(uploader)))
	}
	if config.DiscordToken != "" {
		announcer, err := announce.NewDiscordAnnouncer(config.DiscordToken, config.DiscordChannelID)
		if err != nil {
			logger.Fatal("Discordの初期化に失敗しました", zap.Error(err))
		}
		defer announcer.Close()
		opts = append(opts, settlement.WithAnnouncer(announcer))
	}
	pipeline := settlement.New(st, ranker, ledger, registry, logger, opts...)

	// nil の *ChatLog をインターフェースに入れないようにする
	var (
		archive actions.ChatArchive
		history handlers.ChatHistory
	)
	if chatlog != nil {
		archive, history = chatlog, chatlog
		defer chatlog.Close(context.Background())
	}

	engine := actions.NewEngine(actions.Deps{
		Queue:     matchmaking.NewQueue(),
		Factory:   match.NewFactory(match.NewRand(), time.Now, config.MessagesPerSide),
		Registry:  registry,
		Ledger:    ledger,
		Pipeline:  pipeline,
		Store:     st,
		Moderator: moderator,
		ChatLog:   archive,
		Logger:    logger,
	})

	sessionStore := sessions.NewSessionStore(rdb, logger)
	hub := broadcast.NewHub(logger)
	hub.OnRoomsChanged = func(userID uint, rooms []string) {
		if err := sessionStore.UpdateRooms(ctx, userID, rooms); err != nil {
			logger.Warn("セッションの部屋情報の更新に失敗しました", zap.Uint("userID", userID), zap.Error(err))
		}
	}

	// クーロンスケジューラのセットアップ
	scheduler := utils.StartCronJobs(ctx, utils.Jobs{
		SweepTurns: func(now time.Time) {
			hub.Deliver(0, engine.SweepTurnDeadlines(now))
		},
		ReconcileBets: engine.ReconcileBets,
	}, logger)
	defer scheduler.Stop()

	allowed := make(map[string]bool, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		allowed[o] = true
	}
	wsServer := &arena.Server{
		Engine:   engine,
		Hub:      hub,
		Store:    st,
		Sessions: sessionStore,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
		},
		Logger:  logger,
		BaseCtx: ctx,
	}

	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "SessionID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	//各HTTPリクエストのルーティング
	router.GET("/health", handlers.HealthHandler)
	router.GET("/debates/live", func(c *gin.Context) {
		handlers.LiveDebatesHandler(c, registry, logger)
	})
	router.GET("/debates/:id", func(c *gin.Context) {
		handlers.DebateHandler(c, registry, st, logger)
	})
	router.GET("/debates/:id/replay", func(c *gin.Context) {
		handlers.ReplayHandler(c, registry, st, logger)
	})
	router.GET("/debates/:id/odds", func(c *gin.Context) {
		handlers.OddsHandler(c, registry, st, logger)
	})
	router.GET("/debates/:id/chat", func(c *gin.Context) {
		handlers.ChatHandler(c, history, logger)
	})
	router.GET("/users/me/bets", middlewares.AuthRequired(logger), func(c *gin.Context) {
		handlers.MyBetsHandler(c, st, logger)
	})
	router.GET("/ws", func(c *gin.Context) {
		wsServer.HandleConnections(c.Writer, c.Request)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.ServerPort),
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("サーバーの停止に失敗しました", zap.Error(err))
		}
	}()

	logger.Info("サーバーを起動します", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
