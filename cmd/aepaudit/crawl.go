package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"aepaudit/internal/capture"
	"aepaudit/internal/config"
	"aepaudit/internal/logger"
	"aepaudit/internal/report"
	"aepaudit/internal/validator"
	"aepaudit/pkg/api"
	"aepaudit/pkg/model"
)

// patternFlag 可重复的 -pattern 参数
type patternFlag []string

func (p *patternFlag) String() string { return strings.Join(*p, ",") }

func (p *patternFlag) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// runCrawl 抓取站点、把捕获文档写盘，按需顺带执行整套校验。
// 返回值表示抓取（以及可选的校验）是否成功。
func runCrawl(args []string) (bool, error) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	var patterns patternFlag
	var (
		target   = fs.String("url", "", "start URL to crawl (required)")
		out      = fs.String("o", "requests.json", "output capture file")
		devtools = fs.String("devtools", "", "DevTools HTTP endpoint")
		maxPages = fs.Int("max-pages", 0, "maximum number of pages to visit")
		maxDepth = fs.Int("max-depth", 0, "link depth beyond the start page")
		cfgPath  = fs.String("config", "", "config file")
		validate = fs.Bool("validate", false, "run the validator suite after the crawl")
		verbose  = fs.Bool("v", false, "show per-event detail for failing checks")
		level    = fs.String("log-level", "info", "log level")
	)
	fs.Var(&patterns, "pattern", "beacon URL pattern, repeatable (default Adobe Edge endpoints)")
	fs.Parse(args)

	if *target == "" {
		fs.Usage()
		return false, fmt.Errorf("crawl: -url is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return false, err
	}
	if *devtools != "" {
		cfg.Crawl.DevtoolsURL = *devtools
	}

	l := logger.New(logger.Options{Level: *level, Writers: []string{"console"}})
	svc := api.NewService(l, cfg, nil)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := model.RunConfig{
		TargetURL: *target,
		MaxPages:  *maxPages,
		MaxDepth:  *maxDepth,
		Patterns:  patterns,
	}
	doc, err := svc.Capture(ctx, runCfg, func(url string, depth int, visitErr error) {
		if visitErr != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", url, visitErr)
			return
		}
		fmt.Printf("✓ %s (depth %d)\n", url, depth)
	})
	if err != nil {
		return false, err
	}
	if err := capture.Save(*out, doc); err != nil {
		return false, err
	}
	fmt.Printf("captured %d page(s) to %s\n", len(doc), *out)

	if !*validate {
		return true, nil
	}
	sum, err := svc.ValidateDocument(ctx, doc, nil, validator.Options{})
	if err != nil {
		return false, err
	}
	report.Render(os.Stdout, sum.Results, *verbose)
	return sum.Valid, nil
}
