package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aepaudit/internal/capture"
	"aepaudit/internal/config"
	"aepaudit/internal/crawler"
	"aepaudit/internal/logger"
	"aepaudit/internal/report"
	"aepaudit/internal/storage"
	"aepaudit/internal/validator"
	"aepaudit/pkg/model"

	"github.com/google/uuid"
)

// ErrNoStore 未配置持久化时的查询错误
var ErrNoStore = errors.New("persistence not configured")

// Capturer 抓取器抽象，测试用桩实现替换真实浏览器
type Capturer interface {
	Crawl(ctx context.Context, startURL string) error
}

// capturerFactory 按一次运行的参数装配抓取器
type capturerFactory func(opts crawler.Options, f *capture.Filter, side *capture.MemorySideChannel, sink *capture.Correlator, onVisit func(url string, depth int, err error)) Capturer

// Service 审计服务：串起抓取、关联、校验与持久化
type Service struct {
	log   logger.Logger
	cfg   *config.Config
	store *storage.Store
	runs  *runRegistry

	// CaptureDir 服务端运行落盘捕获文档的目录
	CaptureDir string

	subsMu sync.RWMutex
	subs   map[string]chan model.StatusUpdate

	newCapturer capturerFactory
}

// New 创建审计服务。store 为 nil 时运行记录只存在内存里。
func New(l logger.Logger, cfg *config.Config, store *storage.Store) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	s := &Service{
		log:        l,
		cfg:        cfg,
		store:      store,
		runs:       newRunRegistry(l),
		CaptureDir: "captures",
		subs:       make(map[string]chan model.StatusUpdate),
	}
	s.newCapturer = s.defaultCapturer
	return s
}

func (s *Service) defaultCapturer(opts crawler.Options, f *capture.Filter, side *capture.MemorySideChannel, sink *capture.Correlator, onVisit func(string, int, error)) Capturer {
	c := crawler.New(opts, f, side, sink, s.log)
	c.OnVisit = onVisit
	return c
}

// Validators 返回全部校验器元信息，顺序即执行顺序
func (s *Service) Validators() []model.ValidatorInfo {
	descs := validator.Registry()
	out := make([]model.ValidatorInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, model.ValidatorInfo{ID: d.ID, Name: d.Name, Description: d.Description})
	}
	return out
}

// ValidateDocument 对捕获文档运行指定校验器并汇总结论
func (s *Service) ValidateDocument(ctx context.Context, doc model.Document, ids []string, opts validator.Options) (model.Summary, error) {
	descs, err := validator.Select(ids)
	if err != nil {
		return model.Summary{}, err
	}
	results := validator.RunAll(ctx, doc, descs, opts)
	sum := report.Aggregate(results)
	s.log.Info("校验完成", "passed", sum.Passed, "total", sum.Total)
	return sum, nil
}

// ValidateFile 读取捕获文件并运行校验
func (s *Service) ValidateFile(ctx context.Context, path string, ids []string, opts validator.Options) (model.Summary, error) {
	doc, err := capture.Load(path)
	if err != nil {
		return model.Summary{}, err
	}
	return s.ValidateDocument(ctx, doc, ids, opts)
}

// Capture 抓取目标站点并返回关联后的捕获文档
func (s *Service) Capture(ctx context.Context, cfg model.RunConfig, onVisit func(url string, depth int, err error)) (model.Document, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = s.cfg.Crawl.Patterns
	}
	if len(patterns) == 0 {
		patterns = capture.DefaultPatterns
	}
	f := capture.NewFilter(patterns)
	side := capture.NewMemorySideChannel()
	corr := capture.NewCorrelator(f, side, s.log)

	cr := s.newCapturer(s.crawlOptions(cfg), f, side, corr, onVisit)
	if err := cr.Crawl(ctx, cfg.TargetURL); err != nil {
		return nil, err
	}

	stats := corr.Stats()
	s.log.Info("采集完成", "events", stats.Total, "matched", stats.Matched)
	return corr.Finalize(), nil
}

// StartRun 异步执行一次抓取+校验运行，立即返回运行 ID。
// 进度经 Subscribe 广播，结果落库。
func (s *Service) StartRun(cfg model.RunConfig) (string, error) {
	if cfg.TargetURL == "" {
		return "", errors.New("target url required")
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s.runs.create(id, cancel)

	rec := &storage.Run{
		ID:        id,
		TargetURL: cfg.TargetURL,
		Status:    string(model.RunRunning),
		StartedAt: time.Now().UTC(),
	}
	if s.store != nil {
		if err := s.store.SaveRun(ctx, rec); err != nil {
			cancel()
			s.runs.remove(id)
			return "", fmt.Errorf("record run: %w", err)
		}
	}

	go s.execute(ctx, id, rec, cfg)
	return id, nil
}

// execute 运行主流程：抓取 -> 校验 -> 落库，逐阶段广播进度
func (s *Service) execute(ctx context.Context, id string, rec *storage.Run, cfg model.RunConfig) {
	defer func() {
		if a, ok := s.runs.get(id); ok {
			a.Cancel()
		}
		s.runs.remove(id)
	}()

	s.publish("status", "crawl", "started", fmt.Sprintf("crawling %s", cfg.TargetURL), map[string]any{"runId": id})

	doc, err := s.Capture(ctx, cfg, func(url string, depth int, visitErr error) {
		status := "progress"
		msg := fmt.Sprintf("visited %s", url)
		if visitErr != nil {
			msg = fmt.Sprintf("failed %s: %v", url, visitErr)
		}
		s.publish("status", "crawl", status, msg, map[string]any{"runId": id, "depth": depth})
	})
	if err != nil {
		s.finishFailed(ctx, id, rec, "crawl", err)
		return
	}
	s.publish("status", "crawl", "completed", fmt.Sprintf("captured %d pages", len(doc)), map[string]any{"runId": id, "pages": len(doc)})

	if path, err := s.saveDocument(id, doc); err != nil {
		s.log.Warn("捕获文档落盘失败", "runId", id, "error", err)
	} else {
		rec.DocumentPath = path
	}

	s.publish("status", "validate", "started", "running validators", map[string]any{"runId": id})
	sum, err := s.ValidateDocument(ctx, doc, cfg.Validators, s.validatorOptions(cfg))
	if err != nil {
		s.finishFailed(ctx, id, rec, "validate", err)
		return
	}
	for _, r := range sum.Results {
		status := "passed"
		if !r.Verdict.Valid {
			status = "failed"
		}
		s.publish("status", r.ID, status, r.Verdict.Message, map[string]any{"runId": id})
	}
	s.publish("status", "validate", "completed", fmt.Sprintf("%d/%d validators passed", sum.Passed, sum.Total), map[string]any{"runId": id})

	now := time.Now().UTC()
	rec.Status = string(model.RunSucceeded)
	rec.Passed = sum.Passed
	rec.Total = sum.Total
	rec.FinishedAt = &now
	rec.Verdicts = storage.VerdictRowsFrom(id, &sum)
	if s.store != nil {
		if err := s.store.SaveRun(ctx, rec); err != nil {
			s.log.Err(err, "保存运行结果失败", "runId", id)
		}
	}

	s.publish("result", "", "completed", fmt.Sprintf("run %s finished", id), map[string]any{
		"runId":  id,
		"passed": sum.Passed,
		"total":  sum.Total,
		"valid":  sum.Valid,
	})
	s.log.Info("审计运行完成", "runId", id, "passed", sum.Passed, "total", sum.Total)
}

// finishFailed 统一的失败收尾：记状态、落库、广播
func (s *Service) finishFailed(ctx context.Context, id string, rec *storage.Run, stage string, cause error) {
	now := time.Now().UTC()
	rec.Status = string(model.RunFailed)
	rec.Error = cause.Error()
	rec.FinishedAt = &now
	if s.store != nil {
		if err := s.store.SaveRun(ctx, rec); err != nil {
			s.log.Err(err, "保存失败状态出错", "runId", id)
		}
	}
	s.publish("status", stage, "failed", cause.Error(), map[string]any{"runId": id})
	s.log.Err(cause, "审计运行失败", "runId", id, "stage", stage)
}

// saveDocument 把捕获文档写到捕获目录
func (s *Service) saveDocument(id string, doc model.Document) (string, error) {
	if s.CaptureDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.CaptureDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.CaptureDir, id+".json")
	if err := capture.Save(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// Runs 返回历史运行列表
func (s *Service) Runs(ctx context.Context) ([]storage.Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListRuns(ctx)
}

// GetRun 返回单次运行详情
func (s *Service) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.GetRun(ctx, id)
}

// Subscribe 订阅运行状态广播，返回取消函数。
// 慢消费者会错过更新，不会阻塞发布方。
func (s *Service) Subscribe() (<-chan model.StatusUpdate, func()) {
	id := uuid.NewString()
	ch := make(chan model.StatusUpdate, 16)
	s.subsMu.Lock()
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Service) publish(typ, stage, status, msg string, details map[string]any) {
	upd := model.StatusUpdate{
		Type:      typ,
		Stage:     stage,
		Status:    status,
		Message:   msg,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- upd:
		default:
		}
	}
}

// validatorOptions 合并运行参数与配置文件里的校验参数
func (s *Service) validatorOptions(cfg model.RunConfig) validator.Options {
	opts := validator.Options{
		Mode:          validator.IdentityMode(cfg.ECIDMode),
		WindowSeconds: cfg.Window,
		LimitKiB:      cfg.LimitKiB,
	}
	if opts.Mode == "" {
		opts.Mode = validator.IdentityMode(s.cfg.Validate.ECIDMode)
	}
	if opts.WindowSeconds == 0 {
		opts.WindowSeconds = s.cfg.Validate.WindowSeconds
	}
	if opts.LimitKiB == 0 {
		opts.LimitKiB = s.cfg.Validate.LimitKiB
	}
	return opts
}

// crawlOptions 合并运行参数与配置文件里的抓取参数
func (s *Service) crawlOptions(cfg model.RunConfig) crawler.Options {
	o := crawler.Options{
		DevtoolsURL: s.cfg.Crawl.DevtoolsURL,
		MaxPages:    cfg.MaxPages,
		MaxDepth:    cfg.MaxDepth,
		Concurrency: s.cfg.Crawl.Concurrency,
		PageTimeout: time.Duration(s.cfg.Crawl.PageTimeoutMS) * time.Millisecond,
		SettleDelay: time.Duration(s.cfg.Crawl.SettleDelayMS) * time.Millisecond,
	}
	if o.MaxPages <= 0 {
		o.MaxPages = s.cfg.Crawl.MaxPages
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = s.cfg.Crawl.MaxDepth
	}
	return o
}

// Close 取消所有在途运行
func (s *Service) Close() {
	for _, a := range s.runs.list() {
		a.Cancel()
	}
}
