package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InstanceRecord 流水线实例的数据库行。
// 完整实例以 JSON 存入 Data，常用查询字段冗余为独立列。
type InstanceRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	Pipeline    string `gorm:"size:128;index"`
	State       string `gorm:"size:32;index"`
	FailedStage string `gorm:"size:128"`
	ErrorCode   string `gorm:"size:64"`
	Data        []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定表名。
func (InstanceRecord) TableName() string {
	return "pipeline_instances"
}

// OpenDatabase 按驱动打开数据库连接
// 支持: sqlite, mysql, postgres
func OpenDatabase(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// GormInstanceStore 数据库实例归档存储。
type GormInstanceStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormInstanceStore 创建数据库存储并自动迁移表结构。
func NewGormInstanceStore(db *gorm.DB, logger *zap.Logger) (*GormInstanceStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&InstanceRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormInstanceStore{
		db:     db,
		logger: logger.With(zap.String("store", "gorm_instance")),
	}, nil
}

// Save 保存实例。
func (s *GormInstanceStore) Save(ctx context.Context, inst *Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	record := InstanceRecord{
		ID:          inst.ID,
		Pipeline:    inst.Pipeline,
		State:       string(inst.State),
		FailedStage: inst.FailedStage,
		ErrorCode:   string(inst.ErrorCode),
		Data:        data,
		CreatedAt:   inst.CreatedAt,
		UpdatedAt:   inst.UpdatedAt,
	}

	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}

	s.logger.Debug("instance archived",
		zap.String("instance_id", inst.ID),
		zap.String("state", string(inst.State)),
	)
	return nil
}

// Load 加载实例。
func (s *GormInstanceStore) Load(ctx context.Context, id string) (*Instance, error) {
	var record InstanceRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("instance not found: %w", err)
	}

	var inst Instance
	if err := json.Unmarshal(record.Data, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}
	return &inst, nil
}

// List 列出实例，按创建时间倒序。
func (s *GormInstanceStore) List(ctx context.Context, pipeline string, limit int) ([]*Instance, error) {
	query := s.db.WithContext(ctx).Model(&InstanceRecord{}).Order("created_at DESC")
	if pipeline != "" {
		query = query.Where("pipeline = ?", pipeline)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []InstanceRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	out := make([]*Instance, 0, len(records))
	for _, record := range records {
		var inst Instance
		if err := json.Unmarshal(record.Data, &inst); err != nil {
			s.logger.Warn("skipping corrupt instance record",
				zap.String("id", record.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, &inst)
	}
	return out, nil
}
