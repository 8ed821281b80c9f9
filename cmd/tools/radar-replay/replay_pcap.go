//go:build pcap
// +build pcap

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// replayCapture streams the capture's radar datagrams to target, sleeping
// between packets to reproduce the original timing scaled by speed.
func replayCapture(ctx context.Context, path string, port int, target string, speed float64) (int, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return 0, fmt.Errorf("open capture: %w", err)
	}
	defer handle.Close()

	raddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return 0, fmt.Errorf("resolve target: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return 0, fmt.Errorf("dial target: %w", err)
	}
	defer conn.Close()

	source := gopacket.NewPacketSource(handle, handle.LinkType())

	var (
		sent     int
		lastSeen time.Time
	)
	for packet := range source.Packets() {
		if ctx.Err() != nil {
			return sent, nil
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if int(udp.DstPort) != port || len(udp.Payload) == 0 {
			continue
		}

		ts := packet.Metadata().Timestamp
		if !lastSeen.IsZero() && ts.After(lastSeen) {
			gap := time.Duration(float64(ts.Sub(lastSeen)) / speed)
			select {
			case <-ctx.Done():
				return sent, nil
			case <-time.After(gap):
			}
		}
		lastSeen = ts

		if _, err := conn.Write(udp.Payload); err != nil {
			return sent, fmt.Errorf("send datagram: %w", err)
		}
		sent++
	}
	return sent, nil
}
