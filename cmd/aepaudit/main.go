package main

import (
	"fmt"
	"os"
)

const usageText = `aepaudit inspects analytics beacons captured while crawling a site.

Usage:
  aepaudit <command> [flags] [capture-file]

Commands:
  run              run the whole validator suite against a capture file
  required-fields  check that every event carries eventType, timestamp and identityMap
  ecid             check that all events share a single ECID
  pageview         check that every page emits exactly one page view event
  duplicates       check for near-identical events inside a time window
  size             check event payload sizes against a limit
  crawl            drive a DevTools browser over a site and write a capture file
  serve            start the HTTP/WebSocket audit service

Run "aepaudit <command> -h" for the flags of a command.
`

// main 是命令行入口：按子命令分发，校验失败或出错时以非零码退出
func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	var (
		ok  bool
		err error
	)
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "run":
		ok, err = runValidate(cmd, nil, args)
	case "required-fields":
		ok, err = runValidate(cmd, []string{"required_fields"}, args)
	case "ecid":
		ok, err = runValidate(cmd, []string{"ecid_consistency"}, args)
	case "pageview":
		ok, err = runValidate(cmd, []string{"page_view_integrity"}, args)
	case "duplicates":
		ok, err = runValidate(cmd, []string{"no_duplicate_events"}, args)
	case "size":
		ok, err = runValidate(cmd, []string{"payload_size"}, args)
	case "crawl":
		ok, err = runCrawl(args)
	case "serve":
		err = runServe(args)
		ok = err == nil
	case "help", "-h", "--help":
		fmt.Fprint(os.Stderr, usageText)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}
