package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lk2023060901/file-manager-backend/internal/filemanager/biz"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig MongoDB 连接配置
type MongoConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// entryDoc 目录条目的 BSON 文档
type entryDoc struct {
	ID          string            `bson:"_id"`
	FileName    string            `bson:"file_name"`
	ObjectKey   string            `bson:"object_key"`
	BucketName  string            `bson:"bucket_name"`
	ContentType string            `bson:"content_type"`
	FileSize    int64             `bson:"file_size"`
	UploadDate  time.Time         `bson:"upload_date"`
	UploadedBy  string            `bson:"uploaded_by"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
}

func toEntryDoc(e *biz.DirectoryEntry) *entryDoc {
	return &entryDoc{
		ID:          e.ID,
		FileName:    e.FileName,
		ObjectKey:   e.ObjectKey,
		BucketName:  e.BucketName,
		ContentType: e.ContentType,
		FileSize:    e.FileSize,
		UploadDate:  e.UploadDate.UTC(),
		UploadedBy:  e.UploadedBy,
		Metadata:    e.Metadata,
	}
}

func (d *entryDoc) toBiz() *biz.DirectoryEntry {
	return &biz.DirectoryEntry{
		ID:          d.ID,
		FileName:    d.FileName,
		ObjectKey:   d.ObjectKey,
		BucketName:  d.BucketName,
		ContentType: d.ContentType,
		FileSize:    d.FileSize,
		UploadDate:  d.UploadDate.UTC(),
		UploadedBy:  d.UploadedBy,
		Metadata:    d.Metadata,
	}
}

// NewMongoClient 连接 MongoDB 并校验连通性
func NewMongoClient(ctx context.Context, cfg *MongoConfig) (*mongo.Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// MongoEntryRepo 基于 MongoDB 的 biz.EntryRepo 实现
type MongoEntryRepo struct {
	collection *mongo.Collection
}

var _ biz.EntryRepo = (*MongoEntryRepo)(nil)

// NewMongoEntryRepo 创建仓储并确保索引存在
func NewMongoEntryRepo(ctx context.Context, client *mongo.Client, database, collection string) (*MongoEntryRepo, error) {
	coll := client.Database(database).Collection(collection)

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "bucket_name", Value: 1}, {Key: "object_key", Value: 1}, {Key: "upload_date", Value: 1}}},
		{Keys: bson.D{{Key: "object_key", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &MongoEntryRepo{collection: coll}, nil
}

// Insert 插入条目
func (r *MongoEntryRepo) Insert(ctx context.Context, entry *biz.DirectoryEntry) error {
	if _, err := r.collection.InsertOne(ctx, toEntryDoc(entry)); err != nil {
		return classifyMongoError("insert", err)
	}
	return nil
}

// FindByID 按 id 查询
func (r *MongoEntryRepo) FindByID(ctx context.Context, id string) (*biz.DirectoryEntry, error) {
	return r.findOne(ctx, "find_by_id", bson.M{"_id": id})
}

// FindByObjectKey 按 object key 查询，bucket 为空时不过滤 bucket，多条时取最早上传的一条
func (r *MongoEntryRepo) FindByObjectKey(ctx context.Context, bucket, key string) (*biz.DirectoryEntry, error) {
	filter := bson.M{"object_key": key}
	if bucket != "" {
		filter["bucket_name"] = bucket
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "upload_date", Value: 1}})
	return r.findOne(ctx, "find_by_object_key", filter, opts)
}

// FindAll 返回全部条目，按上传时间升序
func (r *MongoEntryRepo) FindAll(ctx context.Context) ([]*biz.DirectoryEntry, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "upload_date", Value: 1}}))
	if err != nil {
		return nil, classifyMongoError("find_all", err)
	}
	defer cursor.Close(ctx)

	var docs []*entryDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("find_all", err)
	}

	entries := make([]*biz.DirectoryEntry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, d.toBiz())
	}
	return entries, nil
}

// DeleteByID 删除条目，返回是否删除了记录
func (r *MongoEntryRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, classifyMongoError("delete_by_id", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoEntryRepo) findOne(ctx context.Context, op string, filter bson.M, opts ...*options.FindOneOptions) (*biz.DirectoryEntry, error) {
	var doc entryDoc
	if err := r.collection.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, biz.ErrEntryNotFound
		}
		return nil, classifyMongoError(op, err)
	}
	return doc.toBiz(), nil
}

// classifyMongoError 把驱动错误转换为 *biz.StoreError
func classifyMongoError(op string, err error) error {
	se := &biz.StoreError{
		Store:   biz.StoreMetadata,
		Op:      op,
		Message: err.Error(),
		Err:     err,
	}

	var cmdErr mongo.CommandError
	var writeErr mongo.WriteException
	switch {
	case biz.ContextCode(err) != "":
		se.Code = biz.ContextCode(err)
	case mongo.IsDuplicateKeyError(err):
		se.Code = "DuplicateKey"
	case errors.As(err, &cmdErr) && cmdErr.Name != "":
		se.Code = cmdErr.Name
	case errors.As(err, &cmdErr):
		se.Code = strconv.Itoa(int(cmdErr.Code))
	case errors.As(err, &writeErr) && len(writeErr.WriteErrors) > 0:
		se.Code = strconv.Itoa(writeErr.WriteErrors[0].Code)
		se.Message = writeErr.WriteErrors[0].Message
	case mongo.IsNetworkError(err):
		se.Code = "NetworkError"
	case mongo.IsTimeout(err):
		se.Code = "Timeout"
	}

	if se.Code == "" {
		se.Code = biz.CodeUnknown
	}
	return se
}
