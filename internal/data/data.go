package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/lk2023060901/file-manager-backend/internal/conf"
	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	fmdata "github.com/lk2023060901/file-manager-backend/internal/filemanager/data"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/database"
	"github.com/lk2023060901/file-manager-backend/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/file-manager-backend/internal/pkg/minio"
	pkgredis "github.com/lk2023060901/file-manager-backend/internal/pkg/redis"
	"go.uber.org/zap"
)

const initTimeout = 30 * time.Second

// Data 按配置选择的存储后端
type Data struct {
	Objects biz.ObjectStore
	Entries biz.EntryRepo
	// Redis 仅在启用对账时创建
	Redis  *pkgredis.Client
	Logger *logger.Logger
}

// NewData 连接配置的对象存储、元数据存储和 Redis
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var closers []func()
	cleanup := func() {
		log.Info("cleaning up data resources")
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Data, func(), error) {
		cleanup()
		return nil, nil, err
	}

	d := &Data{Logger: log}

	objects, err := initObjectStore(ctx, config, log)
	if err != nil {
		return fail(fmt.Errorf("failed to init object store: %w", err))
	}
	d.Objects = objects.store
	if objects.close != nil {
		closers = append(closers, objects.close)
	}

	entries, closeEntries, err := initEntryRepo(ctx, config, log)
	if err != nil {
		return fail(fmt.Errorf("failed to init metadata store: %w", err))
	}
	d.Entries = entries
	if closeEntries != nil {
		closers = append(closers, closeEntries)
	}

	if config.Reconcile.Enabled {
		redisClient, err := pkgredis.New(&config.Redis, log)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		d.Redis = redisClient
		closers = append(closers, func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		})
	}

	log.Info("data layer initialized",
		zap.String("storage", config.Storage.Backend),
		zap.String("metadata", config.Metadata.Backend),
		zap.Bool("reconcile", config.Reconcile.Enabled),
	)
	return d, cleanup, nil
}

type objectStore struct {
	store biz.ObjectStore
	close func()
}

func initObjectStore(ctx context.Context, config *conf.Config, log *logger.Logger) (objectStore, error) {
	switch config.Storage.Backend {
	case conf.StorageMinIO:
		client, err := pkgminio.NewClient(&pkgminio.Config{
			Endpoint:        config.MinIO.Endpoint,
			AccessKeyID:     config.MinIO.AccessKey,
			SecretAccessKey: config.MinIO.SecretKey,
			Region:          config.MinIO.Region,
			UseSSL:          config.MinIO.UseSSL,
		}, log.Logger)
		if err != nil {
			return objectStore{}, err
		}
		closeFn := func() { _ = client.Close() }

		if err := client.Ping(ctx); err != nil {
			closeFn()
			return objectStore{}, err
		}
		if config.Storage.CreateDefaultBucket {
			if err := client.EnsureBucket(ctx, config.Storage.DefaultBucket); err != nil {
				closeFn()
				return objectStore{}, fmt.Errorf("failed to ensure bucket %s: %w", config.Storage.DefaultBucket, err)
			}
		}
		return objectStore{store: fmdata.NewMinIOObjectStore(client, log), close: closeFn}, nil

	case conf.StorageS3:
		client, err := fmdata.NewS3Client(ctx, &fmdata.S3Config{
			Region:       config.S3.Region,
			AccessKey:    config.S3.AccessKey,
			SecretKey:    config.S3.SecretKey,
			BaseEndpoint: config.S3.BaseEndpoint,
			UsePathStyle: config.S3.UsePathStyle,
		})
		if err != nil {
			return objectStore{}, err
		}
		if config.Storage.CreateDefaultBucket {
			if err := ensureS3Bucket(ctx, client, config.Storage.DefaultBucket, config.S3.Region); err != nil {
				return objectStore{}, fmt.Errorf("failed to ensure bucket %s: %w", config.Storage.DefaultBucket, err)
			}
		}
		return objectStore{store: fmdata.NewS3ObjectStore(client, log)}, nil

	case conf.StorageMemory:
		log.Warn("using in-memory object store, data is lost on restart")
		return objectStore{store: fmdata.NewMemoryObjectStore()}, nil
	}
	return objectStore{}, fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
}

// ensureS3Bucket 创建不存在的 bucket
func ensureS3Bucket(ctx context.Context, client *s3.Client, bucket, region string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 不允许显式指定 LocationConstraint
	if region != "" && region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	_, err := client.CreateBucket(ctx, in)

	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return err
	}
	return nil
}

func initEntryRepo(ctx context.Context, config *conf.Config, log *logger.Logger) (biz.EntryRepo, func(), error) {
	switch config.Metadata.Backend {
	case conf.MetadataMongo:
		client, err := fmdata.NewMongoClient(ctx, &fmdata.MongoConfig{
			URI:            config.Mongo.URI,
			Database:       config.Mongo.Database,
			Collection:     config.Mongo.Collection,
			ConnectTimeout: config.Mongo.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Warn("failed to disconnect mongo", zap.Error(err))
			}
		}

		repo, err := fmdata.NewMongoEntryRepo(ctx, client, config.Mongo.Database, config.Mongo.Collection)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return repo, closeFn, nil

	case conf.MetadataPostgres:
		db, err := database.New(&config.Database, log)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := db.Close(); err != nil {
				log.Warn("failed to close database", zap.Error(err))
			}
		}

		repo := fmdata.NewGormEntryRepo(db)
		if config.Database.AutoMigrate {
			if err := repo.Migrate(); err != nil {
				closeFn()
				return nil, nil, fmt.Errorf("failed to auto migrate: %w", err)
			}
		}
		return repo, closeFn, nil

	case conf.MetadataMemory:
		log.Warn("using in-memory metadata store, data is lost on restart")
		return fmdata.NewMemoryEntryRepo(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown metadata backend %q", config.Metadata.Backend)
}
