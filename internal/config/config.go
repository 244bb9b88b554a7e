package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"wisefido-erboard/internal/assignment"
	"wisefido-erboard/internal/common/config"
	"wisefido-erboard/internal/scheduler"
)

// Config 急诊看板协同服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Board struct {
		// 本客户端 id，写入 updated_by 与事件 origin
		ClientID string

		// 关注的分区；为空表示全部
		Sections []string

		// 选项：events（变更流 + 兜底全量同步）、polling（仅全量同步）
		TriggerMode string

		// 全量同步间隔（秒），默认 60 秒
		ResyncInterval int

		// Redis Streams 配置
		ChangeStream  string // 变更流名称
		StreamMaxLen  int64  // XADD MAXLEN ~
		ConsumerGroup string // 每个客户端独立的消费者组
		ConsumerName  string
		BatchSize     int

		// 未配置 BOARD_CLIENT_ID / BOARD_CONSUMER_GROUP 时组名随机生成，停止时删除该组
		EphemeralGroup bool

		// 派生视图缓存 TTL（秒）
		ViewTTL int

		// 是否通过 MQTT 推送派生视图
		EnableBroadcast bool

		// 启动时建表
		AutoMigrate bool
	}

	Tasks struct {
		MedicationOverdueMinutes int
		ActionOverdueMinutes     int
		UrgentTriageMax          int
	}

	Assignment assignment.Weights

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 默认值，环境变量覆盖（DB_* / REDIS_* / MQTT_*）
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "erboard",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Board.ClientID = getEnv("BOARD_CLIENT_ID", uuid.NewString())

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "erboard-" + cfg.Board.ClientID,
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Board.Sections = splitList(getEnv("BOARD_SECTIONS", ""))
	cfg.Board.TriggerMode = getEnv("BOARD_TRIGGER_MODE", "events")
	cfg.Board.ResyncInterval = getEnvInt("BOARD_RESYNC_INTERVAL", 60)
	cfg.Board.ChangeStream = getEnv("BOARD_CHANGE_STREAM", "erboard:beds:changes")
	cfg.Board.StreamMaxLen = int64(getEnvInt("BOARD_STREAM_MAXLEN", 10000))
	cfg.Board.ConsumerGroup = getEnv("BOARD_CONSUMER_GROUP", "erboard-"+cfg.Board.ClientID)
	cfg.Board.ConsumerName = getEnv("BOARD_CONSUMER_NAME", cfg.Board.ClientID)
	cfg.Board.EphemeralGroup = os.Getenv("BOARD_CLIENT_ID") == "" && os.Getenv("BOARD_CONSUMER_GROUP") == ""
	cfg.Board.BatchSize = getEnvInt("BOARD_BATCH_SIZE", 10)
	cfg.Board.ViewTTL = getEnvInt("BOARD_VIEW_TTL", 120)
	cfg.Board.EnableBroadcast = getEnv("BOARD_ENABLED_BROADCAST", "false") == "true"
	cfg.Board.AutoMigrate = getEnv("BOARD_AUTO_MIGRATE", "false") == "true"

	cfg.Tasks.MedicationOverdueMinutes = getEnvInt("MEDICATION_OVERDUE_MINUTES", 60)
	cfg.Tasks.ActionOverdueMinutes = getEnvInt("ACTION_OVERDUE_MINUTES", 90)
	cfg.Tasks.UrgentTriageMax = getEnvInt("URGENT_TRIAGE_MAX", 2)

	w := assignment.DefaultWeights()
	w.DischargingStatusWeight = getEnvFloat("ASSIGN_DISCHARGING_WEIGHT", w.DischargingStatusWeight)
	w.AgeBumpPerHour = getEnvFloat("ASSIGN_AGE_BUMP_PER_HOUR", w.AgeBumpPerHour)
	w.AgeBumpCapHours = getEnvFloat("ASSIGN_AGE_BUMP_CAP_HOURS", w.AgeBumpCapHours)
	w.RecencyWindow = time.Duration(getEnvInt("ASSIGN_RECENCY_WINDOW_MINUTES", int(w.RecencyWindow/time.Minute))) * time.Minute
	w.RecencyPenalty = getEnvFloat("ASSIGN_RECENCY_PENALTY", w.RecencyPenalty)
	w.CapacityThreshold = getEnvInt("ASSIGN_CAPACITY_THRESHOLD", w.CapacityThreshold)
	w.CapacityPenalty = getEnvFloat("ASSIGN_CAPACITY_PENALTY", w.CapacityPenalty)
	w.ShiftEndWindow = time.Duration(getEnvInt("ASSIGN_SHIFT_END_WINDOW_MINUTES", int(w.ShiftEndWindow/time.Minute))) * time.Minute
	w.ShiftEndPenalty = getEnvFloat("ASSIGN_SHIFT_END_PENALTY", w.ShiftEndPenalty)
	w.DischargeReliefMinBeds = getEnvInt("ASSIGN_DISCHARGE_RELIEF_MIN_BEDS", w.DischargeReliefMinBeds)
	w.DischargeReliefFactor = getEnvFloat("ASSIGN_DISCHARGE_RELIEF_FACTOR", w.DischargeReliefFactor)
	w.DischargeReliefCap = getEnvFloat("ASSIGN_DISCHARGE_RELIEF_CAP", w.DischargeReliefCap)
	cfg.Assignment = w

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Board.TriggerMode {
	case "events", "polling":
	default:
		return fmt.Errorf("unsupported trigger mode: %s", c.Board.TriggerMode)
	}
	if c.Board.ResyncInterval <= 0 {
		return fmt.Errorf("BOARD_RESYNC_INTERVAL must be positive, got %d", c.Board.ResyncInterval)
	}
	if c.Tasks.UrgentTriageMax < 1 || c.Tasks.UrgentTriageMax > 5 {
		return fmt.Errorf("URGENT_TRIAGE_MAX must be within 1..5, got %d", c.Tasks.UrgentTriageMax)
	}
	return nil
}

// ResyncEvery 全量同步间隔
func (c *Config) ResyncEvery() time.Duration {
	return time.Duration(c.Board.ResyncInterval) * time.Second
}

// ViewTTL 派生视图缓存 TTL
func (c *Config) ViewTTL() time.Duration {
	return time.Duration(c.Board.ViewTTL) * time.Second
}

// Thresholds 任务派生阈值
func (c *Config) Thresholds() scheduler.Thresholds {
	return scheduler.Thresholds{
		MedicationOverdue: time.Duration(c.Tasks.MedicationOverdueMinutes) * time.Minute,
		ActionOverdue:     time.Duration(c.Tasks.ActionOverdueMinutes) * time.Minute,
		UrgentTriageMax:   c.Tasks.UrgentTriageMax,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
