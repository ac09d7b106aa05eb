package arpsvc

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/KEYinternational/flytrap/internal/arptable"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// arpPacketLen is the length of an ARP packet for Ethernet hardware and IPv4
// protocol addresses.
const arpPacketLen = 28

// handlePacket analyzes a single captured ARP payload.  Malformed and
// uninteresting packets are logged and dropped without an error, since
// arbitrary input from the network is expected and must never stop the
// service.  when is the capture time of the packet.
func (svc *Service) handlePacket(ctx context.Context, data []byte, when time.Time) (err error) {
	if len(data) < arpPacketLen {
		svc.logger.InfoContext(ctx, "short arp packet", "len", len(data), "need", arpPacketLen)

		return nil
	}

	arp := &layers.ARP{}
	err = arp.DecodeFromBytes(data, gopacket.NilDecodeFeedback)
	if err != nil {
		svc.logger.DebugContext(ctx, "bad arp packet", slogutil.KeyError, err)

		return nil
	}

	if arp.AddrType != layers.LinkTypeEthernet ||
		arp.Protocol != layers.EthernetTypeIPv4 ||
		arp.HwAddressSize != 6 ||
		arp.ProtAddressSize != 4 {
		svc.logger.DebugContext(
			ctx,
			"arp packet ignored",
			"htype", uint16(arp.AddrType),
			"ptype", uint16(arp.Protocol),
			"hlen", arp.HwAddressSize,
			"plen", arp.ProtAddressSize,
		)

		return nil
	}

	whenMS := uint64(when.UnixMilli())

	switch arp.Operation {
	case layers.ARPRequest:
		return svc.handleRequest(ctx, arp, whenMS)
	case layers.ARPReply:
		return svc.handleReply(ctx, arp, whenMS)
	default:
		svc.logger.InfoContext(ctx, "unknown arp operation", "oper", arp.Operation)

		return nil
	}
}

// handleRequest handles a who-has request.  It registers the sender's
// mapping, runs the claiming logic against the target, and answers on the
// target's behalf if the target has been claimed.
func (svc *Service) handleRequest(ctx context.Context, arp *layers.ARP, when uint64) (err error) {
	sender := protAddr(arp.SourceProtAddress)
	target := protAddr(arp.DstProtAddress)

	svc.logger.DebugContext(ctx, "who-has", "target", target, "tell", sender)

	err = svc.table.Register(sender, net.HardwareAddr(arp.SourceHwAddress), when)
	if err != nil {
		return err
	}

	if svc.scope != nil && !svc.scope.Contains(target) {
		svc.logger.DebugContext(ctx, "target address out of scope", "target", target)

		return nil
	}

	d, err := svc.table.Observe(target, when)
	if err != nil {
		return err
	}

	if d == arptable.DecisionNone {
		return nil
	}

	return svc.reply(ctx, arp, d)
}

// handleReply handles an is-at announcement by registering both the sender
// and the target mappings.  The latter covers third-party announcements
// observed passively.
func (svc *Service) handleReply(ctx context.Context, arp *layers.ARP, when uint64) (err error) {
	sender := protAddr(arp.SourceProtAddress)
	target := protAddr(arp.DstProtAddress)

	svc.logger.DebugContext(
		ctx,
		"is-at",
		"sender", sender,
		"mac", net.HardwareAddr(arp.SourceHwAddress),
	)

	err = svc.table.Register(sender, net.HardwareAddr(arp.SourceHwAddress), when)
	if err != nil {
		return err
	}

	return svc.table.Register(target, net.HardwareAddr(arp.DstHwAddress), when)
}

// reply builds an is-at reply to the request req, answering with the capture
// device's own hardware address on behalf of the requested target, and
// transmits it.
func (svc *Service) reply(ctx context.Context, req *layers.ARP, d arptable.Decision) (err error) {
	ours := svc.dev.HardwareAddr()

	resp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   ours,
		SourceProtAddress: req.DstProtAddress,
		DstHwAddress:      req.SourceHwAddress,
		DstProtAddress:    req.SourceProtAddress,
	}

	buf := gopacket.NewSerializeBuffer()
	err = gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, resp)
	if err != nil {
		return fmt.Errorf("serializing reply: %w", err)
	}

	svc.logger.DebugContext(
		ctx,
		"replying",
		"decision", d,
		"target", protAddr(req.DstProtAddress),
		"to", net.HardwareAddr(req.SourceHwAddress),
	)

	err = svc.dev.WritePacket(buf.Bytes(), net.HardwareAddr(req.SourceHwAddress))
	if err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}

	return nil
}

// protAddr converts a 4-byte protocol address from an ARP packet into a
// netip.Addr.  addr must be 4 bytes long.
func protAddr(addr []byte) (ip netip.Addr) {
	return netip.AddrFrom4([4]byte(addr))
}
