// Command radar-replay resends radar observation datagrams from a pcap
// capture to a running engine's radar UDP listener, pacing packets by their
// capture timestamps.
//
// PCAP decoding needs libpcap; build with -tags=pcap to enable it.
//
// Usage:
//
//	go run -tags=pcap ./cmd/tools/radar-replay -pcap capture.pcap -target localhost:4040
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
)

var (
	pcapFile = flag.String("pcap", "", "pcap capture to replay (required)")
	target   = flag.String("target", "localhost:4040", "engine radar UDP address")
	srcPort  = flag.Int("port", 4040, "UDP port the capture's radar traffic used")
	speed    = flag.Float64("speed", 1.0, "playback speed multiplier")
	loop     = flag.Bool("loop", false, "restart from the beginning at end of capture")
)

func main() {
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("-pcap flag is required")
	}
	if *speed <= 0 {
		log.Fatal("-speed must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		sent, err := replayCapture(ctx, *pcapFile, *srcPort, *target, *speed)
		if err != nil {
			log.Fatalf("replay: %v", err)
		}
		log.Printf("replayed %d datagrams to %s", sent, *target)
		if !*loop || ctx.Err() != nil {
			return
		}
	}
}
