package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"debateserver/models"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// LoadConfig は config.json を読み、.env と環境変数で上書きする
// config.json がなくても環境変数だけで起動できる
func LoadConfig(filename string) (models.Config, error) {
	config := models.Config{
		DBSSLMode:       "disable",
		RedisAddr:       "localhost:6379",
		ServerPort:      8080,
		MessagesPerSide: 5,
	}

	configFile, err := os.Open(filename)
	switch {
	case err == nil:
		defer configFile.Close()
		if err := json.NewDecoder(configFile).Decode(&config); err != nil {
			return config, fmt.Errorf("decode %s: %w", filename, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return config, err
	}

	// .env はローカル開発用。なくてもエラーにしない
	_ = godotenv.Load()

	if err := applyEnv(&config); err != nil {
		return config, err
	}
	if config.JWTSecretKey == "" {
		return config, errors.New("JWT_SECRET_KEY is not set")
	}
	return config, nil
}

func applyEnv(c *models.Config) error {
	str := map[string]*string{
		"DB_HOST":              &c.DBHost,
		"DB_USER":              &c.DBUser,
		"DB_PASSWORD":          &c.DBPassword,
		"DB_NAME":              &c.DBName,
		"DB_SSLMODE":           &c.DBSSLMode,
		"REDIS_ADDR":           &c.RedisAddr,
		"REDIS_PASSWORD":       &c.RedisPassword,
		"JWT_SECRET_KEY":       &c.JWTSecretKey,
		"JUDGE_URL":            &c.JudgeURL,
		"JUDGE_API_KEY":        &c.JudgeAPIKey,
		"MODERATION_URL":       &c.ModerationURL,
		"MONGO_URI":            &c.MongoURI,
		"MONGO_DB":             &c.MongoDB,
		"R2_ACCOUNT_ID":        &c.R2AccountID,
		"R2_ACCESS_KEY_ID":     &c.R2AccessKeyID,
		"R2_SECRET_ACCESS_KEY": &c.R2SecretAccessKey,
		"R2_BUCKET":            &c.R2Bucket,
		"R2_PUBLIC_BASE_URL":   &c.R2PublicBaseURL,
		"DISCORD_TOKEN":        &c.DiscordToken,
		"DISCORD_CHANNEL_ID":   &c.DiscordChannelID,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REDIS_DB":          &c.RedisDB,
		"SERVER_PORT":       &c.ServerPort,
		"MESSAGES_PER_SIDE": &c.MessagesPerSide,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	if v := os.Getenv("JUDGE_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid JUDGE_RPS: %w", err)
		}
		c.JudgeRPS = rps
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}

func InitPostgreSQL(ctx context.Context, config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
		config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	var err error
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

func InitRedis(ctx context.Context, config models.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		return nil, err
	}

	logger.Info("Connected to Redis")
	return rdb, nil
}
