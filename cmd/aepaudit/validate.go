package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"aepaudit/internal/logger"
	"aepaudit/internal/report"
	"aepaudit/internal/validator"
	"aepaudit/pkg/api"
)

// runValidate 执行校验类子命令。ids 为空表示运行全部校验器。
// 返回值表示文档是否通过了所选校验。
func runValidate(name string, ids []string, args []string) (bool, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	var (
		verbose = fs.Bool("v", false, "show per-event detail for failing checks")
		mode    = fs.String("mode", "", "ECID search mode: post_data or all")
		window  = fs.Float64("window", 0, "duplicate window in seconds (default 1)")
		limit   = fs.Float64("limit", 0, "payload size limit in KiB (default 32)")
		level   = fs.String("log-level", "warn", "log level")
	)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: aepaudit %s [flags] [capture-file]\n\nThe capture file defaults to requests.json.\n\n", name)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	path := fs.Arg(0)
	if path == "" {
		path = "requests.json"
	}

	l := logger.New(logger.Options{Level: *level, Writers: []string{"console"}})
	svc := api.NewService(l, nil, nil)

	opts := validator.Options{
		Mode:          validator.IdentityMode(*mode),
		WindowSeconds: *window,
		LimitKiB:      *limit,
	}
	sum, err := svc.ValidateFile(context.Background(), path, ids, opts)
	if err != nil {
		return false, err
	}

	if len(sum.Results) == 1 {
		report.RenderResult(os.Stdout, sum.Results[0], *verbose)
	} else {
		report.Render(os.Stdout, sum.Results, *verbose)
	}
	return sum.Valid, nil
}
