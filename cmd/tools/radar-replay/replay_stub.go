//go:build !pcap
// +build !pcap

package main

import (
	"context"
	"fmt"
)

// replayCapture is a stub when PCAP support is disabled.
// Build with -tags=pcap to enable capture replay.
func replayCapture(ctx context.Context, path string, port int, target string, speed float64) (int, error) {
	return 0, fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable capture replay")
}
