// tcm calls a running tcm-bridge, or runs a method in-process with -local.
//
//	tcm check_root
//	tcm silence_install path=/data/local/tmp/app.apk
//	tcm common_install url=https://example.com/app.apk sha256=<hex>
//	tcm -local history limit=5
//
// The JSON response is printed to stdout. The exit status is 0 when the
// method succeeded and, for boolean methods, returned true.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/and2long/tcm/bridge/internal/app"
	"github.com/and2long/tcm/bridge/internal/bridge"
	"github.com/and2long/tcm/bridge/internal/config"
	"github.com/and2long/tcm/bridge/internal/dispatch"
	"github.com/and2long/tcm/bridge/internal/logging"
	"github.com/and2long/tcm/bridge/internal/version"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	local := flag.Bool("local", false, "run the method in-process instead of calling the bridge")
	timeout := flag.Duration("timeout", 10*time.Minute, "request timeout")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info("tcm"))
		return
	}

	req, err := parseRequest(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcm: %v\n", err)
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcm: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var resp *dispatch.Response
	if *local {
		resp, err = callLocal(ctx, cfg, req)
	} else {
		resp, err = bridge.NewClient(cfg.SocketPath).Call(ctx, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcm: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(resp)

	if !resp.Success || (resp.Result != nil && !*resp.Result) {
		os.Exit(1)
	}
}

func callLocal(ctx context.Context, cfg *config.Config, req dispatch.Request) (*dispatch.Response, error) {
	logger := logging.New(os.Stderr, cfg.LogLevel, "text")
	a, err := app.Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	resp := a.Handler.Handle(ctx, req)
	return &resp, nil
}

// parseRequest builds a request from "<method> [key=value ...]".
func parseRequest(args []string) (dispatch.Request, error) {
	if len(args) == 0 {
		return dispatch.Request{}, fmt.Errorf("missing method")
	}

	req := dispatch.Request{Method: args[0]}
	for _, arg := range args[1:] {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return dispatch.Request{}, fmt.Errorf("argument %q is not key=value", arg)
		}
		if req.Args == nil {
			req.Args = make(map[string]string)
		}
		req.Args[key] = value
	}
	return req, nil
}

func usage() {
	printUsage(flag.CommandLine.Output())
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "usage: tcm [flags] <method> [key=value ...]\n\nmethods:\n")
	for _, m := range dispatch.Methods {
		fmt.Fprintf(w, "  %s\n", m)
	}
	fmt.Fprintf(w, "\nflags:\n")
	flag.PrintDefaults()
}
