package topology

import "github.com/slickerian/siem/pkg/models"

const (
	layerSpacing  = 120.0
	columnSpacing = 100.0
)

// Layout assigns deterministic, non-overlapping positions given only the
// graph: a layered hierarchy rooted at the gateway, with layers assigned by
// hop distance and columns by address order. Devices must already be sorted
// by IP; positions are written in place.
func Layout(devices []models.Device, edges []models.CommunicationEdge) {
	if len(devices) == 0 {
		return
	}

	index := make(map[string]int, len(devices))
	for i, d := range devices {
		index[d.IP] = i
	}

	adj := make(map[string][]string, len(devices))
	for _, e := range edges {
		adj[e.A] = append(adj[e.A], e.B)
		adj[e.B] = append(adj[e.B], e.A)
	}

	root := devices[0].IP
	for _, d := range devices {
		if d.Category == models.DeviceGateway {
			root = d.IP
			break
		}
	}

	layers := make(map[string]int, len(devices))
	layers[root] = 0
	queue := []string{root}
	maxLayer := 0
	for len(queue) > 0 {
		ip := queue[0]
		queue = queue[1:]
		for _, next := range adj[ip] {
			if _, seen := layers[next]; seen {
				continue
			}
			layers[next] = layers[ip] + 1
			if layers[next] > maxLayer {
				maxLayer = layers[next]
			}
			queue = append(queue, next)
		}
	}

	// Disconnected devices settle on their own bottom layer.
	for _, d := range devices {
		if _, seen := layers[d.IP]; !seen {
			layers[d.IP] = maxLayer + 1
		}
	}

	// Devices are IP-sorted, so per-layer column order is already
	// deterministic.
	columns := make(map[int]int)
	counts := make(map[int]int)
	for _, d := range devices {
		counts[layers[d.IP]]++
	}
	for i := range devices {
		layer := layers[devices[i].IP]
		col := columns[layer]
		columns[layer]++
		devices[i].X = (float64(col) - float64(counts[layer]-1)/2) * columnSpacing
		devices[i].Y = float64(layer) * layerSpacing
	}
}
