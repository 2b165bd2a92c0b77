package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"aepaudit/internal/capture"
	"aepaudit/internal/logger"
	"aepaudit/pkg/traffic"

	"github.com/google/uuid"
	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"golang.org/x/sync/semaphore"
)

// bodyFetchTimeout 单次报文体回取的超时
const bodyFetchTimeout = 3 * time.Second

// Options 抓取参数
type Options struct {
	DevtoolsURL string
	MaxPages    int
	MaxDepth    int
	Concurrency int
	PageTimeout time.Duration
	SettleDelay time.Duration
}

// Crawler 驱动浏览器逐页访问站点，把采集到的网络事件喂给关联引擎。
// 每次页面访问使用独立标签页，访问之间互不串扰。
type Crawler struct {
	opts   Options
	filter *capture.Filter
	side   *capture.MemorySideChannel
	sink   *capture.Correlator
	log    logger.Logger
	clock  func() float64

	// OnVisit 每个页面访问结束后回调，用于进度上报
	OnVisit func(url string, depth int, err error)
}

// New 创建抓取器，零值参数回落到缺省配置
func New(opts Options, f *capture.Filter, side *capture.MemorySideChannel, sink *capture.Correlator, l logger.Logger) *Crawler {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.DevtoolsURL == "" {
		opts.DevtoolsURL = "http://127.0.0.1:9222"
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 2 * time.Second
	}
	return &Crawler{
		opts:   opts,
		filter: f,
		side:   side,
		sink:   sink,
		log:    l,
		clock:  func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// Crawl 从种子页面开始逐层广度抓取同主机链接。
// 单页失败只记日志不中断；一个页面都没采到才算整体失败。
func (c *Crawler) Crawl(ctx context.Context, startURL string) error {
	seed, ok := normalizeURL(startURL)
	if !ok {
		return fmt.Errorf("invalid start url %q", startURL)
	}
	seedHost := hostOf(seed)

	sem := semaphore.NewWeighted(int64(c.opts.Concurrency))
	visited := map[string]bool{seed: true}
	frontier := []string{seed}
	scheduled := 1

	var capturedMu sync.Mutex
	captured := 0

	for depth := 0; depth <= c.opts.MaxDepth && len(frontier) > 0; depth++ {
		var (
			nextMu sync.Mutex
			next   []string
			wg     sync.WaitGroup
		)
		wantLinks := depth < c.opts.MaxDepth

		for _, u := range frontier {
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return err
			}
			wg.Add(1)
			go func(u string, depth int) {
				defer wg.Done()
				defer sem.Release(1)

				links, err := c.visit(ctx, u, wantLinks)
				if c.OnVisit != nil {
					c.OnVisit(u, depth, err)
				}
				if err != nil {
					c.log.Warn("页面访问失败", "url", u, "depth", depth, "error", err)
					return
				}
				capturedMu.Lock()
				captured++
				capturedMu.Unlock()
				nextMu.Lock()
				next = append(next, links...)
				nextMu.Unlock()
			}(u, depth)
		}
		wg.Wait()

		// 并发访问让链接到达顺序不稳定，排序后再挑选下一层
		sort.Strings(next)
		var level []string
		for _, raw := range next {
			n, ok := normalizeURL(raw)
			if !ok || !sameHost(seedHost, n) || visited[n] {
				continue
			}
			if scheduled >= c.opts.MaxPages {
				break
			}
			visited[n] = true
			scheduled++
			level = append(level, n)
		}
		frontier = level
	}

	if captured == 0 {
		return fmt.Errorf("no pages captured from %s", seed)
	}
	c.log.Info("抓取完成", "seed", seed, "pages", captured)
	return nil
}

// visitState 单次页面访问的采集现场。
// 事件先在本地缓冲，访问收尾时连同旁路报文体一起移交关联引擎。
type visitState struct {
	mu      sync.Mutex
	pc      traffic.PageContext
	tracked map[network.RequestID]string
	pending map[network.RequestID]traffic.RawEvent
	events  []traffic.RawEvent
	logs    []string
}

type beaconEntry struct {
	URL  string  `json:"url"`
	Body *string `json:"body"`
	TS   float64 `json:"ts"`
}

// visit 在新标签页中加载一个页面并采集其分析流量
func (c *Crawler) visit(ctx context.Context, pageURL string, wantLinks bool) ([]string, error) {
	dt := devtool.New(c.opts.DevtoolsURL)
	tab, err := dt.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create tab: %w", err)
	}
	defer dt.Close(context.Background(), tab)

	conn, err := rpcc.DialContext(ctx, tab.WebSocketDebuggerURL)
	if err != nil {
		return nil, fmt.Errorf("dial tab: %w", err)
	}
	defer conn.Close()
	cl := cdp.NewClient(conn)

	st := &visitState{
		pc:      traffic.PageContext{ID: uuid.NewString(), URL: pageURL},
		tracked: make(map[network.RequestID]string),
		pending: make(map[network.RequestID]traffic.RawEvent),
	}

	// 先订阅事件流再启用各域，避免丢事件
	reqStream, err := cl.Network.RequestWillBeSent(ctx)
	if err != nil {
		return nil, err
	}
	defer reqStream.Close()
	respStream, err := cl.Network.ResponseReceived(ctx)
	if err != nil {
		return nil, err
	}
	defer respStream.Close()
	finStream, err := cl.Network.LoadingFinished(ctx)
	if err != nil {
		return nil, err
	}
	defer finStream.Close()
	failStream, err := cl.Network.LoadingFailed(ctx)
	if err != nil {
		return nil, err
	}
	defer failStream.Close()
	conStream, err := cl.Runtime.ConsoleAPICalled(ctx)
	if err != nil {
		return nil, err
	}
	defer conStream.Close()
	loadStream, err := cl.Page.LoadEventFired(ctx)
	if err != nil {
		return nil, err
	}
	defer loadStream.Close()

	if err := cl.Page.Enable(ctx); err != nil {
		return nil, fmt.Errorf("enable page: %w", err)
	}
	if err := cl.Network.Enable(ctx, nil); err != nil {
		return nil, fmt.Errorf("enable network: %w", err)
	}
	if err := cl.Runtime.Enable(ctx); err != nil {
		return nil, fmt.Errorf("enable runtime: %w", err)
	}
	if _, err := cl.Page.AddScriptToEvaluateOnNewDocument(ctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(beaconHookScript)); err != nil {
		c.log.Warn("注入sendBeacon钩子失败", "url", pageURL, "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(5)
	go func() { defer wg.Done(); c.pumpRequests(ctx, cl, st, reqStream) }()
	go func() { defer wg.Done(); c.pumpResponses(st, respStream) }()
	go func() { defer wg.Done(); c.pumpFinished(ctx, cl, st, finStream) }()
	go func() { defer wg.Done(); c.pumpFailures(st, failStream) }()
	go func() { defer wg.Done(); c.pumpConsole(st, conStream) }()

	loaded := make(chan struct{})
	go func() {
		if _, err := loadStream.Recv(); err == nil {
			close(loaded)
		}
	}()

	nav, err := cl.Page.Navigate(ctx, page.NewNavigateArgs(pageURL))
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if nav.ErrorText != nil && *nav.ErrorText != "" {
		return nil, fmt.Errorf("navigate %s: %s", pageURL, *nav.ErrorText)
	}

	select {
	case <-loaded:
	case <-time.After(c.opts.PageTimeout):
		c.log.Warn("页面加载超时，按已捕获内容继续", "url", pageURL)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// 留出节拍让迟到的采集请求发出
	select {
	case <-time.After(c.opts.SettleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// 停止事件流并等泵收尾，之后缓冲不再增长
	loadStream.Close()
	reqStream.Close()
	respStream.Close()
	finStream.Close()
	failStream.Close()
	conStream.Close()
	wg.Wait()

	// 钩子镜像的报文体要先入旁路存储，回放请求事件时才查得到
	var beacons []beaconEntry
	if err := c.eval(ctx, cl, "window.__beaconLog || []", &beacons); err != nil {
		c.log.Debug("回收sendBeacon记录失败", "url", pageURL, "error", err)
	}
	if c.side != nil {
		for _, b := range beacons {
			if b.Body != nil {
				c.side.Put(b.URL, *b.Body)
			}
		}
	}

	var html string
	if err := c.eval(ctx, cl, "document.documentElement ? document.documentElement.outerHTML : ''", &html); err != nil {
		c.log.Debug("读取页面HTML失败", "url", pageURL, "error", err)
	}

	var links []string
	if wantLinks {
		expr := "Array.from(document.querySelectorAll('a[href]')).map(function(a) { return a.href; })"
		if err := c.eval(ctx, cl, expr, &links); err != nil {
			c.log.Debug("提取页面链接失败", "url", pageURL, "error", err)
		}
	}

	st.mu.Lock()
	// 始终没等到加载完成的响应按无报文体落盘
	for id, raw := range st.pending {
		delete(st.pending, id)
		st.events = append(st.events, raw)
	}
	events := st.events
	logs := st.logs
	st.mu.Unlock()

	for _, ev := range events {
		c.sink.Add(ev)
	}
	c.sink.AttachHTML(st.pc, html)
	c.sink.AttachLogs(st.pc, logs)

	c.log.Info("页面访问完成", "url", pageURL, "events", len(events), "links", len(links))
	return links, nil
}

// eval 在页面主帧执行表达式并按值取回结果
func (c *Crawler) eval(ctx context.Context, cl *cdp.Client, expr string, out any) error {
	reply, err := cl.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(expr).SetReturnByValue(true))
	if err != nil {
		return err
	}
	if reply.ExceptionDetails != nil {
		return fmt.Errorf("evaluate: %s", reply.ExceptionDetails.Text)
	}
	if out == nil || len(reply.Result.Value) == 0 {
		return nil
	}
	return json.Unmarshal(reply.Result.Value, out)
}

// pumpRequests 消费请求事件。报文体优先取事件携带的，
// 其次主动回取，都拿不到时留给关联引擎走旁路。
func (c *Crawler) pumpRequests(ctx context.Context, cl *cdp.Client, st *visitState, stream network.RequestWillBeSentClient) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			return
		}
		if c.filter != nil && !c.filter.Match(ev.Request.URL) {
			continue
		}

		raw := traffic.NewRequest(st.pc, ev.Request.URL, ev.Request.Method, c.clock())
		raw.Headers = headersToMap(ev.Request.Headers)
		if ev.Request.PostData != nil {
			body := *ev.Request.PostData
			raw.Body = &body
			raw.HasPostData = true
		} else if ev.Request.HasPostData != nil && *ev.Request.HasPostData {
			raw.HasPostData = true
			if body, ok := c.fetchPostData(ctx, cl, ev.RequestID); ok {
				raw.Body = &body
			}
		}

		st.mu.Lock()
		st.tracked[ev.RequestID] = ev.Request.URL
		st.events = append(st.events, raw)
		st.mu.Unlock()
	}
}

// pumpResponses 消费响应头事件，报文体要等加载完成后再取
func (c *Crawler) pumpResponses(st *visitState, stream network.ResponseReceivedClient) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			return
		}
		st.mu.Lock()
		if url, ok := st.tracked[ev.RequestID]; ok {
			raw := traffic.NewResponse(st.pc, url, ev.Response.Status, c.clock())
			raw.Headers = headersToMap(ev.Response.Headers)
			st.pending[ev.RequestID] = raw
		}
		st.mu.Unlock()
	}
}

// pumpFinished 加载完成后补全响应报文体并归档
func (c *Crawler) pumpFinished(ctx context.Context, cl *cdp.Client, st *visitState, stream network.LoadingFinishedClient) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			return
		}
		st.mu.Lock()
		raw, ok := st.pending[ev.RequestID]
		delete(st.pending, ev.RequestID)
		st.mu.Unlock()
		if !ok {
			continue
		}
		if body, found := c.fetchResponseBody(ctx, cl, ev.RequestID); found {
			raw.Content = &body
		}
		st.mu.Lock()
		st.events = append(st.events, raw)
		st.mu.Unlock()
	}
}

// pumpFailures 消费加载失败事件
func (c *Crawler) pumpFailures(st *visitState, stream network.LoadingFailedClient) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			return
		}
		st.mu.Lock()
		if raw, ok := st.pending[ev.RequestID]; ok {
			delete(st.pending, ev.RequestID)
			st.events = append(st.events, raw)
		}
		if url, ok := st.tracked[ev.RequestID]; ok {
			st.events = append(st.events, traffic.NewFailure(st.pc, url, ev.ErrorText, c.clock()))
		}
		st.mu.Unlock()
	}
}

// pumpConsole 收集页面控制台输出
func (c *Crawler) pumpConsole(st *visitState, stream runtime.ConsoleAPICalledClient) {
	for {
		ev, err := stream.Recv()
		if err != nil {
			return
		}
		line := consoleLine(ev.Type, ev.Args)
		st.mu.Lock()
		st.logs = append(st.logs, line)
		st.mu.Unlock()
	}
}

func (c *Crawler) fetchPostData(ctx context.Context, cl *cdp.Client, id network.RequestID) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, bodyFetchTimeout)
	defer cancel()
	reply, err := cl.Network.GetRequestPostData(cctx, network.NewGetRequestPostDataArgs(id))
	if err != nil {
		return "", false
	}
	return reply.PostData, true
}

func (c *Crawler) fetchResponseBody(ctx context.Context, cl *cdp.Client, id network.RequestID) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, bodyFetchTimeout)
	defer cancel()
	reply, err := cl.Network.GetResponseBody(cctx, network.NewGetResponseBodyArgs(id))
	if err != nil {
		return "", false
	}
	return decodeBody(reply.Body, reply.Base64Encoded), true
}
