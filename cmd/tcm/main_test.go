package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseRequest(t *testing.T) {
	req, err := parseRequest([]string{"silence_install", "path=/data/local/tmp/app.apk", "sha256=a=b"})
	if err != nil {
		t.Fatalf("parseRequest failed: %v", err)
	}
	if req.Method != "silence_install" {
		t.Errorf("Method = %q", req.Method)
	}
	if req.Args["path"] != "/data/local/tmp/app.apk" || req.Args["sha256"] != "a=b" {
		t.Errorf("Args = %v", req.Args)
	}

	req, err = parseRequest([]string{"check_root"})
	if err != nil || req.Args != nil {
		t.Errorf("bare method: %+v %v", req, err)
	}
}

func TestParseRequest_Errors(t *testing.T) {
	for _, args := range [][]string{nil, {"history", "limit"}, {"history", "=5"}} {
		if _, err := parseRequest(args); err == nil {
			t.Errorf("parseRequest(%q) succeeded", args)
		}
	}
}

func TestPrintUsage_ListsMethods(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, m := range []string{"check_root", "silence_install", "open_launcher"} {
		if !strings.Contains(buf.String(), m) {
			t.Errorf("usage missing %s", m)
		}
	}
}
