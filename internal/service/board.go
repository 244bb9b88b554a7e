package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-erboard/internal/changefeed"
	"wisefido-erboard/internal/common/database"
	mqttcommon "wisefido-erboard/internal/common/mqtt"
	rediscommon "wisefido-erboard/internal/common/redis"
	"wisefido-erboard/internal/config"
	"wisefido-erboard/internal/replica"
	"wisefido-erboard/internal/repository"
	"wisefido-erboard/internal/views"
)

// BoardService 急诊看板协同服务
type BoardService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	replica     *replica.Replica
	consumer    *changefeed.Consumer
	refresher   *views.Refresher
}

// NewBoardService 创建看板服务
func NewBoardService(cfg *config.Config, logger *zap.Logger) (*BoardService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Board.AutoMigrate {
		if err := repository.EnsureSchema(context.Background(), db); err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}

	// 初始化 Redis（变更流与视图缓存）
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化 MQTT（可选）
	var mqttClient *mqttcommon.Client
	var broadcastTo views.MessagePublisher
	if cfg.Board.EnableBroadcast {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			_ = rediscommon.Close(redisClient)
			_ = database.Close(db)
			return nil, err
		}
		broadcastTo = mqttClient
	}

	store := repository.NewPostgresBedStore(db, logger)
	s := assemble(cfg, logger, store, redisClient, broadcastTo)
	s.db = db
	s.mqttClient = mqttClient
	return s, nil
}

// assemble 组装副本、变更流与视图刷新
func assemble(cfg *config.Config, logger *zap.Logger, store replica.Store, redisClient *redis.Client, broadcastTo views.MessagePublisher) *BoardService {
	var publisher replica.Publisher
	var consumer *changefeed.Consumer
	if cfg.Board.TriggerMode == "events" {
		publisher = changefeed.NewPublisher(redisClient, cfg.Board.ChangeStream, cfg.Board.StreamMaxLen, cfg.Board.ClientID, logger)
	}

	r := replica.New(store, publisher, replica.Options{
		ClientID:   cfg.Board.ClientID,
		Sections:   cfg.Board.Sections,
		Thresholds: cfg.Thresholds(),
		Weights:    cfg.Assignment,
	}, logger)

	if cfg.Board.TriggerMode == "events" {
		consumer = changefeed.NewConsumer(
			redisClient,
			cfg.Board.ChangeStream,
			cfg.Board.ConsumerGroup,
			cfg.Board.ConsumerName,
			int64(cfg.Board.BatchSize),
			r.ApplyEvent,
			logger,
		)
	}

	var broadcaster *views.Broadcaster
	if broadcastTo != nil {
		broadcaster = views.NewBroadcaster(broadcastTo, cfg.MQTT.QoS, logger)
	}
	cache := views.NewCacheManager(views.NewRedisViewStore(redisClient), cfg.ViewTTL(), logger)
	refresher := views.NewRefresher(cache, broadcaster, cfg.Thresholds(), cfg.Assignment, logger)
	r.OnChange(refresher.Trigger)

	return &BoardService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		replica:     r,
		consumer:    consumer,
		refresher:   refresher,
	}
}

// Replica 本客户端的床位副本（供界面层调用变更操作与读取派生视图）
func (s *BoardService) Replica() *replica.Replica {
	return s.replica
}

// Start 启动服务（阻塞直到 ctx 结束）
func (s *BoardService) Start(ctx context.Context) error {
	s.logger.Info("Starting ER board service",
		zap.String("client_id", s.config.Board.ClientID),
		zap.String("trigger_mode", s.config.Board.TriggerMode),
		zap.Strings("sections", s.config.Board.Sections),
		zap.Bool("broadcast_enabled", s.config.Board.EnableBroadcast),
	)

	go s.refresher.Run(ctx)

	interval := s.config.ResyncEvery()
	switch s.config.Board.TriggerMode {
	case "polling":
		s.logger.Info("Starting polling mode", zap.Duration("interval", interval))
		return s.replica.Run(ctx, interval, nil)
	case "events":
		// 变更流为主，定时全量同步兜底
		s.logger.Info("Starting event-driven mode", zap.Duration("resync_interval", interval))
		if s.consumer == nil {
			return fmt.Errorf("change feed consumer not initialized")
		}
		// 先建组再全量同步，避免漏掉两者之间发布的事件
		if err := s.consumer.EnsureGroup(ctx); err != nil {
			s.logger.Error("Failed to create consumer group", zap.Error(err))
		}
		return s.replica.Run(ctx, interval, s.consumer)
	default:
		return fmt.Errorf("unsupported trigger mode: %s", s.config.Board.TriggerMode)
	}
}

// Stop 停止服务
func (s *BoardService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping ER board service")

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.consumer != nil && s.config.Board.EphemeralGroup {
		// ctx 可能已取消，单独给删除留出时间
		dropCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.consumer.DropGroup(dropCtx); err != nil {
			s.logger.Warn("Failed to drop consumer group",
				zap.String("group", s.config.Board.ConsumerGroup),
				zap.Error(err),
			)
		}
		cancel()
	}

	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("ER board service stopped")
	return nil
}
