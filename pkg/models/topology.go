package models

import "time"

// DeviceCategory classifies a topology node.
type DeviceCategory string

const (
	DeviceGateway  DeviceCategory = "gateway"
	DeviceRegular  DeviceCategory = "device"
	DeviceExternal DeviceCategory = "external"
)

// Device is one network endpoint in the topology graph, keyed by IP.
// Duplicate discovery events are last-write-wins.
type Device struct {
	IP       string         `json:"ip"`
	MAC      string         `json:"mac,omitempty"`
	Hostname string         `json:"hostname,omitempty"`
	Category DeviceCategory `json:"category"`
	Rogue    bool           `json:"rogue,omitempty"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
}

// CommunicationEdge is an undirected traffic edge between two devices,
// deduplicated by unordered IP pair. Inferred marks synthetic star edges
// added so no device renders orphaned.
type CommunicationEdge struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Weight   int    `json:"weight"`
	Inferred bool   `json:"inferred,omitempty"`
}

// TopologyGraph is a derived device graph with deterministic layout.
type TopologyGraph struct {
	Devices []Device            `json:"devices"`
	Edges   []CommunicationEdge `json:"edges"`
	BuiltAt time.Time           `json:"built_at"`
}
