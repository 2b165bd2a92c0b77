package service

import (
	"context"
	"sync"

	"aepaudit/internal/logger"
)

// activeRun 一次在途的审计运行
type activeRun struct {
	ID     string
	Cancel context.CancelFunc
}

// runRegistry 全局在途运行登记表
type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*activeRun
	log  logger.Logger
}

func newRunRegistry(l logger.Logger) *runRegistry {
	if l == nil {
		l = logger.NewNop()
	}
	return &runRegistry{runs: make(map[string]*activeRun), log: l}
}

// create 登记新运行
func (r *runRegistry) create(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[id] = &activeRun{ID: id, Cancel: cancel}
	r.log.Info("登记审计运行", "runId", id)
}

// remove 注销运行
func (r *runRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, id)
	r.log.Info("注销审计运行", "runId", id)
}

// get 查询在途运行
func (r *runRegistry) get(id string) (*activeRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.runs[id]
	return a, ok
}

// list 返回所有在途运行
func (r *runRegistry) list() []*activeRun {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*activeRun, 0, len(r.runs))
	for _, a := range r.runs {
		out = append(out, a)
	}
	return out
}
