package main

import (
	"fmt"
	"io"
	"runtime"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0" ./cmd/vsm/
var version = "dev"

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "vsm %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
}
