package protocol

import (
	"FlowSentry/internal/model"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket decodes a captured packet and extracts the fields the feature
// pipeline needs. Non-IPv4 and non-TCP/UDP packets are rejected with an
// error and no side effect; optional fields (TTL, TCP window, payload) are
// marked absent rather than failing the parse.
func ParsePacket(packet gopacket.Packet) (*model.PacketInfo, error) {
	info := &model.PacketInfo{
		Timestamp: time.Now(), // Default to now, overwritten by capture metadata if available
		Length:    len(packet.Data()),
	}

	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		info.Timestamp = meta.Timestamp
	}

	var fiveTuple model.FiveTuple

	// Get IPv4 layer
	l := packet.Layer(layers.LayerTypeIPv4)
	if l == nil {
		// IPv6 flows are not part of the trained feature space, skip them.
		return nil, fmt.Errorf("not an IPv4 packet")
	}
	ipLayer := l.(*layers.IPv4)
	fiveTuple.SrcIP = ipLayer.SrcIP
	fiveTuple.DstIP = ipLayer.DstIP
	fiveTuple.Protocol = uint8(ipLayer.Protocol)
	info.TTL = ipLayer.TTL
	info.HasTTL = true

	// Get transport layer
	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcpLayer := l.(*layers.TCP)
		fiveTuple.SrcPort = uint16(tcpLayer.SrcPort)
		fiveTuple.DstPort = uint16(tcpLayer.DstPort)
		info.TCPFlags = model.TCPFlags{
			SYN: tcpLayer.SYN,
			FIN: tcpLayer.FIN,
			RST: tcpLayer.RST,
			PSH: tcpLayer.PSH,
			ACK: tcpLayer.ACK,
		}
		info.Window = tcpLayer.Window
		info.HasWindow = true
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udpLayer := l.(*layers.UDP)
		fiveTuple.SrcPort = uint16(udpLayer.SrcPort)
		fiveTuple.DstPort = uint16(udpLayer.DstPort)
	} else {
		return nil, fmt.Errorf("not a TCP or UDP packet")
	}

	if app := packet.ApplicationLayer(); app != nil {
		info.Payload = app.Payload()
	}

	info.FiveTuple = fiveTuple
	return info, nil
}
