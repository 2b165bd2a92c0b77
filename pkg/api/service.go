package api

import (
	"context"

	"aepaudit/internal/config"
	"aepaudit/internal/logger"
	"aepaudit/internal/service"
	"aepaudit/internal/storage"
	"aepaudit/internal/validator"
	"aepaudit/pkg/model"
)

// Service 服务接口
type Service interface {
	// Validators 列出全部校验器
	Validators() []model.ValidatorInfo

	// ValidateDocument 对内存中的捕获文档执行校验
	ValidateDocument(ctx context.Context, doc model.Document, ids []string, opts validator.Options) (model.Summary, error)

	// ValidateFile 对磁盘上的捕获文件执行校验
	ValidateFile(ctx context.Context, path string, ids []string, opts validator.Options) (model.Summary, error)

	// Capture 抓取目标站点并返回捕获文档
	Capture(ctx context.Context, cfg model.RunConfig, onVisit func(url string, depth int, err error)) (model.Document, error)

	// StartRun 启动异步审计运行（抓取+校验）
	StartRun(cfg model.RunConfig) (string, error)

	// Subscribe 订阅运行状态广播
	Subscribe() (<-chan model.StatusUpdate, func())

	// Runs 列出历史运行
	Runs(ctx context.Context) ([]storage.Run, error)

	// GetRun 获取单次运行详情
	GetRun(ctx context.Context, id string) (*storage.Run, error)

	// Close 取消所有在途运行
	Close()
}

// NewService 创建并返回服务接口实现。
// store 为 nil 时仅支持无持久化的校验与抓取操作。
func NewService(l logger.Logger, cfg *config.Config, store *storage.Store) Service {
	return service.New(l, cfg, store)
}
