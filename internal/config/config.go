// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Relevance     RelevanceConfig     `mapstructure:"relevance"`
	Answer        AnswerConfig        `mapstructure:"answer"`
	Deck          DeckConfig          `mapstructure:"deck"`
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
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
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
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// RelevanceConfig 控制相关性过滤：分位阈值与全局截断线。
// 分位阈值低于 cutoff 时整个检索结果被视为不相关。
type RelevanceConfig struct {
	Percentile       float64 `mapstructure:"percentile"`
	Cutoff           float64 `mapstructure:"cutoff"`
	SearchLimit      int     `mapstructure:"search_limit"`
	BatchSearchLimit int     `mapstructure:"batch_search_limit"`
}

// AnswerConfig 控制答案生成的缺省选项与采样温度。
type AnswerConfig struct {
	DefaultLength string  `mapstructure:"default_length"`
	DefaultTone   string  `mapstructure:"default_tone"`
	Temperature   float64 `mapstructure:"temperature"`
}

// DeckConfig 存储外部幻灯片合并服务的配置。
type DeckConfig struct {
	ServiceURL     string `mapstructure:"service_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults(&Conf)
}

// applyDefaults 填充未配置项的缺省值。
func applyDefaults(c *Config) {
	if c.Relevance.Percentile == 0 {
		c.Relevance.Percentile = 75
	}
	if c.Relevance.Cutoff == 0 {
		c.Relevance.Cutoff = 0.75
	}
	if c.Relevance.SearchLimit == 0 {
		c.Relevance.SearchLimit = 5
	}
	if c.Relevance.BatchSearchLimit == 0 {
		c.Relevance.BatchSearchLimit = 3
	}
	if c.Answer.DefaultLength == "" {
		c.Answer.DefaultLength = "medium"
	}
	if c.Answer.DefaultTone == "" {
		c.Answer.DefaultTone = "professional"
	}
	if c.Answer.Temperature == 0 {
		c.Answer.Temperature = 0.2
	}
	if c.Elasticsearch.IndexName == "" {
		c.Elasticsearch.IndexName = "rfx_answers"
	}
	if c.Deck.TimeoutSeconds == 0 {
		c.Deck.TimeoutSeconds = 30
	}
}
