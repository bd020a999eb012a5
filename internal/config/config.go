// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
// 配置在进程启动时加载一次，之后以只读方式注入各组件。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RAG           RAGConfig           `mapstructure:"rag"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
// TaskTopic 承载文档处理任务，EventTopic 承载处理进度事件。
type KafkaConfig struct {
	Brokers    string `mapstructure:"brokers"`
	TaskTopic  string `mapstructure:"task_topic"`
	EventTopic string `mapstructure:"event_topic"`
	GroupID    string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey          string `mapstructure:"api_key"`
	BaseURL         string `mapstructure:"base_url"`
	Model           string `mapstructure:"model"`
	Dimensions      int    `mapstructure:"dimensions"`
	BatchSize       int    `mapstructure:"batch_size"`
	BatchIntervalMs int    `mapstructure:"batch_interval_ms"`
	MaxRetries      int    `mapstructure:"max_retries"`
	BackoffSeconds  int    `mapstructure:"backoff_seconds"`
	BackoffCapSecs  int    `mapstructure:"backoff_cap_seconds"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RAGConfig 汇总检索增强问答流水线的可调参数。
type RAGConfig struct {
	Chunk    ChunkConfig    `mapstructure:"chunk"`
	Citation CitationConfig `mapstructure:"citation"`
	Query    QueryConfig    `mapstructure:"query"`
}

// ChunkConfig 配置分块器的 token 预算。
type ChunkConfig struct {
	TargetTokens  int    `mapstructure:"target_tokens"`
	MinTokens     int    `mapstructure:"min_tokens"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	OverlapTokens int    `mapstructure:"overlap_tokens"`
	Encoding      string `mapstructure:"encoding"`
}

// CitationConfig 配置引用生成的阈值。
type CitationConfig struct {
	MinSimilarity float64 `mapstructure:"min_similarity"`
	MaxCitations  int     `mapstructure:"max_citations"`
}

// QueryConfig 配置问答编排的检索参数。
type QueryConfig struct {
	RetrieveLimit       int     `mapstructure:"retrieve_limit"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// Init 从指定路径读取 YAML 配置并解析为 Config。
// 配置不可读或不可解析属于部署错误，直接 panic 使进程尽早失败。
func Init(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
	return &conf
}
