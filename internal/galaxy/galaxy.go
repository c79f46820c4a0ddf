// Package galaxy is the world model: the sector graph, its ports, and the
// trade engine that runs against them.
package galaxy

import (
	"encoding/json"
	"log"
	"math/rand"
	"strconv"
)

// DefaultSize is used when neither configuration nor a snapshot provides
// a sector count.
const DefaultSize = 200

// StardockSector is the fixed, reserved stardock location.
const StardockSector = 2

// Planet is a placeholder for future expansion; sectors carry the field so
// snapshots round-trip it.
type Planet struct {
	Name string `json:"name"`
}

// Sector is one node of the warp graph. Neighbors are directed warp links
// and are immutable after generation or load.
type Sector struct {
	ID        int
	Neighbors []int
	Port      *Port
	Planet    *Planet
	Stardock  bool
}

// Galaxy holds the dense sector map, keys 1..Size.
type Galaxy struct {
	Size    int
	Sectors map[int]*Sector
}

// New generates a fresh galaxy: 2-4 directed warps per sector, the
// stardock fixed in sector 2, and ports in max(1, size/5) of the
// remaining sectors. The resulting warp graph is not guaranteed to be
// symmetric or connected; Stats reports how hostile the roll came out.
func New(size int, rng *rand.Rand) *Galaxy {
	if size < 1 {
		size = DefaultSize
	}
	g := &Galaxy{Size: size, Sectors: make(map[int]*Sector, size)}
	for id := 1; id <= size; id++ {
		g.Sectors[id] = &Sector{ID: id}
	}

	// Stardock goes in before port placement so placement can exclude it.
	if s, ok := g.Sectors[StardockSector]; ok {
		s.Stardock = true
	}

	g.generateWarps(rng)
	g.generatePorts(rng)

	if s, ok := g.Sectors[StardockSector]; ok && s.Port != nil {
		log.Printf("[GALAXY] Removing port from stardock sector %d", StardockSector)
		s.Port = nil
	}
	return g
}

func (g *Galaxy) generateWarps(rng *rand.Rand) {
	for id := 1; id <= g.Size; id++ {
		count := 2 + rng.Intn(3)
		others := make([]int, 0, g.Size-1)
		for x := 1; x <= g.Size; x++ {
			if x != id {
				others = append(others, x)
			}
		}
		rng.Shuffle(len(others), func(i, j int) {
			others[i], others[j] = others[j], others[i]
		})
		if count > len(others) {
			count = len(others)
		}
		g.Sectors[id].Neighbors = append([]int(nil), others[:count]...)
	}
}

func (g *Galaxy) generatePorts(rng *rand.Rand) {
	portCount := g.Size / 5
	if portCount < 1 {
		portCount = 1
	}
	available := make([]int, 0, g.Size)
	for id := 1; id <= g.Size; id++ {
		if id != StardockSector {
			available = append(available, id)
		}
	}
	rng.Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})
	if portCount > len(available) {
		portCount = len(available)
	}
	for _, id := range available[:portCount] {
		g.Sectors[id].Port = NewPort(rng)
	}
}

// SectorExists reports whether the id is in range.
func (g *Galaxy) SectorExists(id int) bool {
	_, ok := g.Sectors[id]
	return ok
}

// Sector returns the sector, or nil if the id is unknown.
func (g *Galaxy) Sector(id int) *Sector {
	return g.Sectors[id]
}

// IsAdjacent reports whether a directed warp exists from src to dst.
// Arrival does not imply the return trip is legal.
func (g *Galaxy) IsAdjacent(src, dst int) bool {
	s, ok := g.Sectors[src]
	if !ok {
		return false
	}
	for _, n := range s.Neighbors {
		if n == dst {
			return true
		}
	}
	return false
}

// ClientSector is the sector view sent to clients. It deliberately omits
// commodity levels and the price schedule; full port detail is exposed
// only through trade responses.
type ClientSector struct {
	ID        int    `json:"id"`
	Neighbors []int  `json:"neighbors"`
	HasPort   bool   `json:"has_port"`
	HasPlanet bool   `json:"has_planet"`
	Stardock  bool   `json:"stardock"`
	PortName  string `json:"port_name,omitempty"`
}

// ClientView serializes one sector for transmission. Unknown ids yield a
// zero view.
func (g *Galaxy) ClientView(id int) ClientSector {
	s, ok := g.Sectors[id]
	if !ok {
		return ClientSector{}
	}
	view := ClientSector{
		ID:        s.ID,
		Neighbors: append([]int(nil), s.Neighbors...),
		HasPort:   s.Port != nil,
		HasPlanet: s.Planet != nil,
		Stardock:  s.Stardock,
	}
	if s.Port != nil {
		view.PortName = s.Port.Name
	}
	return view
}

// SectorSnapshot is the persisted form of one sector.
type SectorSnapshot struct {
	ID        int           `json:"id"`
	Neighbors []int         `json:"neighbors"`
	Port      *PortSnapshot `json:"port"`
	Planet    *Planet       `json:"planet"`
	Stardock  bool          `json:"stardock"`
}

// Snapshot is the persisted galaxy document. Sector records stay raw so a
// single corrupt record can be skipped without failing the whole load.
type Snapshot struct {
	Size    int                        `json:"size"`
	Sectors map[string]json.RawMessage `json:"sectors"`
}

// Snapshot captures the whole galaxy for persistence.
func (g *Galaxy) Snapshot() *Snapshot {
	sectors := make(map[string]json.RawMessage, len(g.Sectors))
	for id, s := range g.Sectors {
		record := SectorSnapshot{
			ID:        s.ID,
			Neighbors: append([]int(nil), s.Neighbors...),
			Planet:    s.Planet,
			Stardock:  s.Stardock,
		}
		if s.Port != nil {
			record.Port = s.Port.Snapshot()
		}
		raw, err := json.Marshal(record)
		if err != nil {
			// Sector records are plain data; this cannot happen.
			log.Printf("[GALAXY] Failed to snapshot sector %d: %v", id, err)
			continue
		}
		sectors[strconv.Itoa(id)] = raw
	}
	return &Snapshot{Size: g.Size, Sectors: sectors}
}

// FromSnapshot rebuilds a galaxy from a persisted document. It starts from
// a freshly generated galaxy of the recorded size and overlays each valid
// sector record; a malformed record leaves that sector on its generated
// defaults instead of aborting the load.
func FromSnapshot(snap *Snapshot, rng *rand.Rand) *Galaxy {
	size := snap.Size
	if size < 1 {
		for key := range snap.Sectors {
			if id, err := strconv.Atoi(key); err == nil && id > size {
				size = id
			}
		}
	}
	if size < 1 {
		size = DefaultSize
	}

	g := New(size, rng)
	for key, raw := range snap.Sectors {
		id, err := strconv.Atoi(key)
		if err != nil || !g.SectorExists(id) {
			log.Printf("[GALAXY] Skipping snapshot record with bad sector key %q", key)
			continue
		}
		var record SectorSnapshot
		if err := json.Unmarshal(raw, &record); err != nil {
			log.Printf("[GALAXY] Malformed record for sector %d, keeping defaults: %v", id, err)
			continue
		}
		s := g.Sectors[id]
		if record.Neighbors != nil {
			s.Neighbors = append([]int(nil), record.Neighbors...)
		}
		s.Planet = record.Planet
		s.Stardock = record.Stardock
		if record.Port != nil {
			port, err := PortFromSnapshot(record.Port)
			if err != nil {
				log.Printf("[GALAXY] Failed to load port in sector %d: %v", id, err)
				s.Port = nil
			} else {
				s.Port = port
			}
		} else {
			s.Port = nil
		}
	}

	// The stardock location is invariant regardless of what was stored.
	if s, ok := g.Sectors[StardockSector]; ok {
		s.Stardock = true
		s.Port = nil
	}
	return g
}

// Stats summarizes the galaxy for logging and admin inspection.
type Stats struct {
	Size          int
	Ports         int
	Stardocks     int
	Planets       int
	AvgWarpRoutes float64
	NoInbound     int // sectors no warp route leads to
}

// Stats computes summary metrics, including how many sectors have no
// inbound route at all (stranding hazards from the generation roll).
func (g *Galaxy) Stats() Stats {
	st := Stats{Size: g.Size}
	inbound := make(map[int]int, g.Size)
	totalWarps := 0
	for _, s := range g.Sectors {
		if s.Port != nil {
			st.Ports++
		}
		if s.Stardock {
			st.Stardocks++
		}
		if s.Planet != nil {
			st.Planets++
		}
		totalWarps += len(s.Neighbors)
		for _, n := range s.Neighbors {
			inbound[n]++
		}
	}
	if g.Size > 0 {
		st.AvgWarpRoutes = float64(totalWarps) / float64(g.Size)
	}
	for id := 1; id <= g.Size; id++ {
		if inbound[id] == 0 {
			st.NoInbound++
		}
	}
	return st
}
