package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"aepaudit/internal/logger"
	"aepaudit/pkg/model"
)

// ErrNotFound 查询的运行记录不存在
var ErrNotFound = gorm.ErrRecordNotFound

// Run 一次审计运行的持久化记录
type Run struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	TargetURL    string     `json:"targetUrl"`
	Status       string     `json:"status"`
	Passed       int        `json:"passed"`
	Total        int        `json:"total"`
	DocumentPath string     `json:"documentPath,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`

	Verdicts []VerdictRow `gorm:"foreignKey:RunID" json:"verdicts,omitempty"`
}

// VerdictRow 单个校验器在一次运行中的结论，Detail 保存完整结论的JSON
type VerdictRow struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	RunID       string `gorm:"index;size:36" json:"-"`
	Position    int    `json:"position"`
	ValidatorID string `json:"validatorId"`
	Name        string `json:"name"`
	Valid       bool   `json:"valid"`
	Message     string `json:"message"`
	Detail      string `json:"detail,omitempty"`
}

// VerdictRowsFrom 把校验汇总展开为持久化行，Position保持执行顺序
func VerdictRowsFrom(runID string, sum *model.Summary) []VerdictRow {
	rows := make([]VerdictRow, 0, len(sum.Results))
	for i, r := range sum.Results {
		row := VerdictRow{
			RunID:       runID,
			Position:    i,
			ValidatorID: r.ID,
			Name:        r.Name,
			Valid:       r.Verdict.Valid,
			Message:     r.Verdict.Message,
		}
		if b, err := json.Marshal(r.Verdict); err == nil {
			row.Detail = string(b)
		}
		rows = append(rows, row)
	}
	return rows
}

// Store 基于sqlite的运行记录仓库
type Store struct {
	db *gorm.DB
}

// Open 打开(或创建)sqlite数据库并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&Run{}, &VerdictRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRun 插入或更新运行记录及其结论
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	return s.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(r).Error
}

// ListRuns 按开始时间倒序返回全部运行，不加载结论明细
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := s.db.WithContext(ctx).Order("started_at desc").Find(&runs).Error
	return runs, err
}

// GetRun 返回单次运行及其全部结论
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := s.db.WithContext(ctx).
		Preload("Verdicts", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&r, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Close 关闭底层数据库连接
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
