package topology

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DiscoveryRecord is the structured form of a DEVICE_DISCOVERED payload:
// "IP: <ip>, MAC: <mac>, Hostname: <name>".
type DiscoveryRecord struct {
	IP       string
	MAC      string
	Hostname string
}

// CommunicationRecord is the structured form of a COMMUNICATION_PATTERN
// payload: "Devices <a> and <b> communicate on port <p> via <proc>
// (<n> connections)". Port, process and count are optional on the wire.
type CommunicationRecord struct {
	SrcIP   string
	DstIP   string
	Port    int
	Process string
	Count   int
}

// ParseDiscovery extracts a device record from a discovery payload. An
// unparseable payload is an explicit failure for the caller to drop and
// count, never a fatal condition.
func ParseDiscovery(payload string) (DiscoveryRecord, error) {
	var rec DiscoveryRecord
	for _, part := range strings.Split(payload, ",") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "ip":
			rec.IP = value
		case "mac":
			rec.MAC = normalizeMAC(value)
		case "hostname":
			rec.Hostname = value
		}
	}
	if rec.IP == "" {
		return DiscoveryRecord{}, fmt.Errorf("discovery payload missing IP: %q", payload)
	}
	if net.ParseIP(rec.IP) == nil {
		return DiscoveryRecord{}, fmt.Errorf("discovery payload has invalid IP %q", rec.IP)
	}
	if strings.EqualFold(rec.Hostname, "none") || strings.EqualFold(rec.Hostname, "unknown") {
		rec.Hostname = ""
	}
	return rec, nil
}

// normalizeMAC lowercases the address; MACs compare case-insensitively.
func normalizeMAC(mac string) string {
	mac = strings.ToLower(strings.TrimSpace(mac))
	if mac == "unknown" {
		return ""
	}
	return mac
}

// ParseCommunication extracts an edge record from a communication payload.
// The minimal accepted form is "Devices <a> and <b>"; port, process and
// connection count are parsed when present.
func ParseCommunication(payload string) (CommunicationRecord, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(payload), "Devices ")
	if !ok {
		return CommunicationRecord{}, fmt.Errorf("communication payload missing Devices prefix: %q", payload)
	}

	src, rest, ok := strings.Cut(rest, " and ")
	if !ok {
		return CommunicationRecord{}, fmt.Errorf("communication payload missing pair: %q", payload)
	}
	src = strings.TrimSpace(src)

	dst := rest
	if idx := strings.IndexByte(rest, ' '); idx >= 0 {
		dst = rest[:idx]
	}
	dst = strings.TrimSpace(dst)

	if net.ParseIP(src) == nil || net.ParseIP(dst) == nil {
		return CommunicationRecord{}, fmt.Errorf("communication payload has invalid addresses %q, %q", src, dst)
	}
	if src == dst {
		return CommunicationRecord{}, fmt.Errorf("communication payload is a self-loop on %q", src)
	}

	rec := CommunicationRecord{SrcIP: src, DstIP: dst, Count: 1}

	if _, after, ok := strings.Cut(rest, " on port "); ok {
		portStr := after
		if idx := strings.IndexByte(after, ' '); idx >= 0 {
			portStr = after[:idx]
		}
		if p, err := strconv.Atoi(portStr); err == nil {
			rec.Port = p
		}
	}
	if _, after, ok := strings.Cut(rest, " via "); ok {
		proc := after
		if idx := strings.Index(after, " ("); idx >= 0 {
			proc = after[:idx]
		}
		rec.Process = strings.TrimSpace(proc)
	}
	if idx := strings.LastIndexByte(rest, '('); idx >= 0 {
		if n, after, ok := strings.Cut(rest[idx+1:], " connection"); ok && after != "" {
			if count, err := strconv.Atoi(strings.TrimSpace(n)); err == nil && count > 0 {
				rec.Count = count
			}
		}
	}
	return rec, nil
}
