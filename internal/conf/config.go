package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/reconcile"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/database"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-manager-backend/internal/pkg/redis"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 FILEMANAGER_STORAGE_BACKEND
const EnvPrefix = "FILEMANAGER"

// 对象存储后端
const (
	StorageMinIO  = "minio"
	StorageS3     = "s3"
	StorageMemory = "memory"
)

// 元数据存储后端
const (
	MetadataMongo    = "mongo"
	MetadataPostgres = "postgres"
	MetadataMemory   = "memory"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	S3        S3Config        `mapstructure:"s3"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Database  database.Config `mapstructure:"database"`
	Redis     pkgredis.Config `mapstructure:"redis"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Files     FilesConfig     `mapstructure:"files"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       logger.Config   `mapstructure:"log"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	GRPCPort int    `mapstructure:"grpc_port"`
	Mode     string `mapstructure:"mode"` // gin 模式：debug, release, test
}

type StorageConfig struct {
	Backend             string `mapstructure:"backend"`
	DefaultBucket       string `mapstructure:"default_bucket"`
	CreateDefaultBucket bool   `mapstructure:"create_default_bucket"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

type S3Config struct {
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	BaseEndpoint string `mapstructure:"base_endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type MetadataConfig struct {
	Backend string `mapstructure:"backend"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ReconcileConfig 对账配置
//
// enabled 为 false 时不连接 Redis，不一致记录只写日志。
type ReconcileConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Mode        string        `mapstructure:"mode"`
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Workers     int           `mapstructure:"workers"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
}

type FilesConfig struct {
	DefaultUploader string        `mapstructure:"default_uploader"`
	CopyKeyPolicy   string        `mapstructure:"copy_key_policy"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size"` // 字节
	RecordTimeout   time.Duration `mapstructure:"record_timeout"`
}

type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LoadConfig 读取配置文件，path 为空时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// setDefaults 注册所有 key 的默认值，AutomaticEnv 只覆盖已知 key
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.mode", "release")

	v.SetDefault("storage.backend", StorageMinIO)
	v.SetDefault("storage.default_bucket", "files")
	v.SetDefault("storage.create_default_bucket", true)

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.region", "")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.base_endpoint", "")
	v.SetDefault("s3.use_path_style", false)

	v.SetDefault("metadata.backend", MetadataMongo)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "file_manager")
	v.SetDefault("mongo.collection", "files")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	db := database.DefaultConfig()
	v.SetDefault("database.host", db.Host)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.user", db.User)
	v.SetDefault("database.password", db.Password)
	v.SetDefault("database.dbname", "file_manager")
	v.SetDefault("database.sslmode", db.SSLMode)
	v.SetDefault("database.maxidleconns", db.MaxIdleConns)
	v.SetDefault("database.maxopenconns", db.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", db.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", db.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", db.LogLevel)
	v.SetDefault("database.slowthreshold", db.SlowThreshold)
	v.SetDefault("database.preparestmt", db.PrepareStmt)
	v.SetDefault("database.timezone", db.Timezone)
	v.SetDefault("database.automigrate", true)

	rds := pkgredis.DefaultConfig()
	v.SetDefault("redis.mode", string(rds.Mode))
	v.SetDefault("redis.master_addr", rds.MasterAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", rds.DB)
	v.SetDefault("redis.pool_size", rds.PoolSize)
	v.SetDefault("redis.min_idle_conns", rds.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rds.DialTimeout)
	v.SetDefault("redis.read_timeout", rds.ReadTimeout)
	v.SetDefault("redis.write_timeout", rds.WriteTimeout)
	v.SetDefault("redis.pool_timeout", rds.PoolTimeout)
	v.SetDefault("redis.max_retries", rds.MaxRetries)

	wc := reconcile.DefaultWorkerConfig()
	v.SetDefault("reconcile.enabled", false)
	v.SetDefault("reconcile.mode", string(reconcile.ModeReport))
	v.SetDefault("reconcile.interval", wc.Interval)
	v.SetDefault("reconcile.batch_size", wc.BatchSize)
	v.SetDefault("reconcile.max_attempts", wc.MaxAttempts)
	v.SetDefault("reconcile.workers", 4)
	v.SetDefault("reconcile.lock_ttl", wc.LockTTL)

	v.SetDefault("files.default_uploader", "system")
	v.SetDefault("files.copy_key_policy", string(biz.CopyKeyPreserve))
	v.SetDefault("files.max_upload_size", int64(100<<20))
	v.SetDefault("files.record_timeout", 5*time.Second)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
	v.SetDefault("auth.token_ttl", 15*time.Minute)

	lg := logger.DefaultConfig()
	v.SetDefault("log.level", lg.Level)
	v.SetDefault("log.format", lg.Format)
	v.SetDefault("log.output", lg.Output)
	v.SetDefault("log.enable_caller", lg.EnableCaller)
	v.SetDefault("log.enable_stacktrace", lg.EnableStacktrace)
	v.SetDefault("log.file.filename", lg.File.Filename)
	v.SetDefault("log.file.max_size", lg.File.MaxSize)
	v.SetDefault("log.file.max_age", lg.File.MaxAge)
	v.SetDefault("log.file.max_backups", lg.File.MaxBackups)
	v.SetDefault("log.file.compress", lg.File.Compress)
}

// Validate 校验配置，拒绝未知的后端和策略
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return errors.New("server.grpc_port must be between 0 and 65535")
	}

	switch c.Storage.Backend {
	case StorageMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.AccessKey == "" || c.MinIO.SecretKey == "" {
			return errors.New("minio.endpoint, minio.access_key and minio.secret_key are required")
		}
	case StorageS3:
		if c.S3.Region == "" {
			return errors.New("s3.region is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.DefaultBucket == "" {
		return errors.New("storage.default_bucket is required")
	}

	switch c.Metadata.Backend {
	case MetadataMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return errors.New("mongo.uri, mongo.database and mongo.collection are required")
		}
	case MetadataPostgres:
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	case MetadataMemory:
	default:
		return fmt.Errorf("unknown metadata.backend %q", c.Metadata.Backend)
	}

	if c.Reconcile.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if !reconcile.Mode(c.Reconcile.Mode).Valid() {
		return fmt.Errorf("unknown reconcile.mode %q", c.Reconcile.Mode)
	}

	if !biz.CopyKeyPolicy(c.Files.CopyKeyPolicy).Valid() {
		return fmt.Errorf("unknown files.copy_key_policy %q", c.Files.CopyKeyPolicy)
	}
	if c.Files.MaxUploadSize <= 0 {
		return errors.New("files.max_upload_size must be greater than 0")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth is enabled")
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
