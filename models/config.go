package models

// Config 構造体はサーバー全体の設定情報を保持します。
// config.json の値を環境変数で上書きする
type Config struct {
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	JWTSecretKey   string   `json:"jwt_secret_key"`
	ServerPort     int      `json:"server_port"`
	AllowedOrigins []string `json:"allowed_origins"`

	JudgeURL      string  `json:"judge_url"`
	JudgeAPIKey   string  `json:"judge_api_key"`
	JudgeRPS      float64 `json:"judge_rps"`
	ModerationURL string  `json:"moderation_url"`

	MongoURI string `json:"mongo_uri"`
	MongoDB  string `json:"mongo_db"`

	R2AccountID       string `json:"r2_account_id"`
	R2AccessKeyID     string `json:"r2_access_key_id"`
	R2SecretAccessKey string `json:"r2_secret_access_key"`
	R2Bucket          string `json:"r2_bucket"`
	R2PublicBaseURL   string `json:"r2_public_base_url"`

	DiscordToken     string `json:"discord_token"`
	DiscordChannelID string `json:"discord_channel_id"`

	MessagesPerSide int `json:"messages_per_side"`
}
