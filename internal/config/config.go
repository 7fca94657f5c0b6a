// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量覆盖配置时使用的前缀，例如 CATALOG_ASSIST_SERVER_PORT。
const EnvPrefix = "CATALOG_ASSIST"

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
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
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chat          ChatConfig          `mapstructure:"chat"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SeedDir         string        `mapstructure:"seed_dir"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	// Driver 取值 mysql 或 sqlite
	Driver string       `mapstructure:"driver"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SQLiteConfig 存储嵌入式 SQLite 的配置。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
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

// KafkaConfig 存储 Kafka 相关的配置。未启用时文档入库同步执行。
type KafkaConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int64  `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。未启用时向量存放在关系库中。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Dimensions  int           `mapstructure:"dimensions"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ChunkingConfig 对应切块器参数，单位为字符。
type ChunkingConfig struct {
	MaxSize int `mapstructure:"max_size"`
	Overlap int `mapstructure:"overlap"`
	MinSize int `mapstructure:"min_size"`
}

// RetrievalConfig 控制检索策略与打分参数。
type RetrievalConfig struct {
	// Strategy 取值 lexical 或 embedding
	Strategy       string  `mapstructure:"strategy"`
	MaxResults     int     `mapstructure:"max_results"`
	CandidateLimit int     `mapstructure:"candidate_limit"`
	MinScore       float64 `mapstructure:"min_score"`
	PhraseBonus    float64 `mapstructure:"phrase_bonus"`
	TitleBonus     float64 `mapstructure:"title_bonus"`
	BudgetChars    int     `mapstructure:"budget_chars"`
	CharsPerToken  float64 `mapstructure:"chars_per_token"`
}

// ProviderConfig 描述一个模型提供方。Kind 取值 openai、anthropic、ollama。
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Providers      []ProviderConfig    `mapstructure:"providers"`
	Order          []string            `mapstructure:"order"`
	AttemptTimeout time.Duration       `mapstructure:"attempt_timeout"`
	Generation     LLMGenerationConfig `mapstructure:"generation"`
	Prompt         LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// ChatConfig 控制一次问答的上下文窗口与超时。
type ChatConfig struct {
	HistoryTurns    int           `mapstructure:"history_turns"`
	MaxContextChars int           `mapstructure:"max_context_chars"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.seed_dir", "initfile")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.mysql.max_open_conns", 100)
	v.SetDefault("database.mysql.conn_max_lifetime", time.Hour)
	v.SetDefault("database.sqlite.path", "catalog-assist.db")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_expire_hours", 24)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("kafka.topic", "document-ingest")
	v.SetDefault("kafka.group_id", "catalog-assist-ingest")
	v.SetDefault("kafka.max_attempts", 3)

	v.SetDefault("elasticsearch.index_name", "catalog_chunks")
	v.SetDefault("minio.bucket_name", "catalog-documents")

	v.SetDefault("embedding.enabled", false)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("chunking.max_size", 1000)
	v.SetDefault("chunking.overlap", 100)
	v.SetDefault("chunking.min_size", 50)

	v.SetDefault("retrieval.strategy", "lexical")
	v.SetDefault("retrieval.max_results", 8)
	v.SetDefault("retrieval.candidate_limit", 500)
	v.SetDefault("retrieval.min_score", 0.0)
	v.SetDefault("retrieval.phrase_bonus", 2.0)
	v.SetDefault("retrieval.title_bonus", 0.5)
	v.SetDefault("retrieval.budget_chars", 6000)
	v.SetDefault("retrieval.chars_per_token", 4.0)

	v.SetDefault("llm.attempt_timeout", 60*time.Second)
	v.SetDefault("llm.prompt.rules", "Você é o assistente técnico do catálogo. Responda apenas com base nos trechos de referência; se a informação não estiver neles, diga que não sabe.")
	v.SetDefault("llm.prompt.ref_start", "<<REF>>")
	v.SetDefault("llm.prompt.ref_end", "<<END>>")
	v.SetDefault("llm.prompt.no_result_text", "Não encontrei informações relevantes nos documentos do catálogo para responder a esta pergunta.")

	v.SetDefault("chat.history_turns", 10)
	v.SetDefault("chat.max_context_chars", 12000)
	v.SetDefault("chat.request_timeout", 120*time.Second)
}

// Load 读取 YAML 配置文件并叠加环境变量，返回校验后的配置。
// configPath 为空时只使用默认值与环境变量。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验相互依赖的配置项。
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql":
		if c.Database.MySQL.DSN == "" {
			errs = append(errs, errors.New("database.mysql.dsn is required for the mysql driver"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver %q", c.Database.Driver))
	}

	ch := c.Chunking
	if ch.MaxSize <= 0 || ch.Overlap < 0 || ch.Overlap >= ch.MaxSize || ch.MinSize < 0 || ch.MinSize > ch.MaxSize {
		errs = append(errs, fmt.Errorf("invalid chunking config: max_size=%d overlap=%d min_size=%d", ch.MaxSize, ch.Overlap, ch.MinSize))
	}

	switch c.Retrieval.Strategy {
	case "lexical":
	case "embedding":
		if !c.Embedding.Enabled {
			errs = append(errs, errors.New("retrieval.strategy=embedding requires embedding.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported retrieval.strategy %q", c.Retrieval.Strategy))
	}
	if c.Retrieval.CharsPerToken <= 0 {
		errs = append(errs, errors.New("retrieval.chars_per_token must be positive"))
	}

	if strings.TrimSpace(c.LLM.Prompt.NoResultText) == "" {
		errs = append(errs, errors.New("llm.prompt.no_result_text must not be empty"))
	}
	if c.JWT.AccessTokenExpireHours <= 0 {
		errs = append(errs, errors.New("jwt.access_token_expire_hours must be positive"))
	}

	names := make(map[string]struct{}, len(c.LLM.Providers))
	for _, p := range c.LLM.Providers {
		if p.Name == "" {
			errs = append(errs, errors.New("llm.providers entry without name"))
			continue
		}
		if _, dup := names[p.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate llm provider %q", p.Name))
		}
		names[p.Name] = struct{}{}
	}
	for _, name := range c.LLM.Order {
		if _, ok := names[name]; !ok {
			errs = append(errs, fmt.Errorf("llm.order references unknown provider %q", name))
		}
	}
	return errors.Join(errs...)
}

// ProviderOrder 返回提供方调用顺序；未显式配置时按声明顺序。
func (c LLMConfig) ProviderOrder() []string {
	if len(c.Order) > 0 {
		return c.Order
	}
	order := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		order = append(order, p.Name)
	}
	return order
}

// BudgetForTokens 把 token 上限按字符/token 比例换算为字符数。
func (c RetrievalConfig) BudgetForTokens(tokens int) int {
	return int(float64(tokens) * c.CharsPerToken)
}
