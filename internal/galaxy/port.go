package galaxy

import (
	"fmt"
	"math"
	"math/rand"
)

// Commodity names. The set is closed: every port quotes all three.
const (
	Fuel      = "fuel"
	Ore       = "ore"
	Equipment = "equipment"
)

// Commodities lists the tradable goods in stable order.
var Commodities = []string{Fuel, Ore, Equipment}

var basePrices = map[string]int{
	Fuel:      10,
	Ore:       25,
	Equipment: 50,
}

// buyCommodity maps a port type to the one commodity that port buys from
// players; the other two it sells to players. The mapping is fixed for the
// port's lifetime.
var buyCommodity = map[int]string{
	1: Fuel,
	2: Ore,
	3: Equipment,
}

var portAdjectives = []string{
	"Rusty", "Celestial", "Crimson", "Silent", "Golden",
	"Ashen", "Drifting", "Hollow", "Iron", "Lucky",
}

var portNouns = []string{
	"Depot", "Exchange", "Outpost", "Terminal", "Station",
	"Reach", "Landing", "Spire", "Junction", "Haven",
}

// Port is a per-sector trading station. Prices are always derived from
// (TypeID, Levels); they are never stored as independent state.
type Port struct {
	Name   string
	TypeID int
	Levels map[string]int // commodity -> stock pressure 0..100
}

// PortSnapshot is the persisted and client-facing form of a port. Prices
// are included for consumers but recomputed on load.
type PortSnapshot struct {
	Name            string         `json:"name"`
	TypeID          int            `json:"type_id"`
	CommodityLevels map[string]int `json:"commodity_levels"`
	Prices          map[string]int `json:"prices"`
}

// NewPort rolls a fresh port: random type, random stock levels, generated
// display name.
func NewPort(rng *rand.Rand) *Port {
	levels := make(map[string]int, len(Commodities))
	for _, c := range Commodities {
		levels[c] = rng.Intn(101)
	}
	name := fmt.Sprintf("%s %s",
		portAdjectives[rng.Intn(len(portAdjectives))],
		portNouns[rng.Intn(len(portNouns))])
	return &Port{
		Name:   name,
		TypeID: 1 + rng.Intn(len(buyCommodity)),
		Levels: levels,
	}
}

// PortFromSnapshot validates a persisted port record. It returns a fully
// valid port or an error; there is no partially-restored state.
func PortFromSnapshot(snap *PortSnapshot) (*Port, error) {
	if snap == nil {
		return nil, fmt.Errorf("port record is empty")
	}
	if snap.Name == "" {
		return nil, fmt.Errorf("port record has no name")
	}
	if _, ok := buyCommodity[snap.TypeID]; !ok {
		return nil, fmt.Errorf("port %q has invalid type %d", snap.Name, snap.TypeID)
	}
	levels := make(map[string]int, len(Commodities))
	for _, c := range Commodities {
		level, ok := snap.CommodityLevels[c]
		if !ok {
			return nil, fmt.Errorf("port %q is missing a %s level", snap.Name, c)
		}
		if level < 0 || level > 100 {
			return nil, fmt.Errorf("port %q has out-of-range %s level %d", snap.Name, c, level)
		}
		levels[c] = level
	}
	return &Port{Name: snap.Name, TypeID: snap.TypeID, Levels: levels}, nil
}

// Trades reports whether the commodity is quoted at this port.
func (p *Port) Trades(commodity string) bool {
	_, ok := p.Levels[commodity]
	return ok
}

// BuysFromPlayers reports the direction for a commodity: true when the
// port buys it from players, false when the port sells it to players.
func (p *Port) BuysFromPlayers(commodity string) bool {
	return buyCommodity[p.TypeID] == commodity
}

// Price quotes one commodity from current stock. Ports that sell a good
// charge more as stock falls; ports that buy a good pay more as stock
// rises. The floor price is 5 credits.
func (p *Port) Price(commodity string) int {
	level := p.Levels[commodity]
	var factor float64
	if p.BuysFromPlayers(commodity) {
		factor = 1.0 + float64(level)/150.0
	} else {
		factor = 0.6 + float64(100-level)/150.0
	}
	price := int(math.Floor(float64(basePrices[commodity]) * factor))
	if price < 5 {
		price = 5
	}
	return price
}

// Prices quotes the full schedule.
func (p *Port) Prices() map[string]int {
	out := make(map[string]int, len(Commodities))
	for _, c := range Commodities {
		out[c] = p.Price(c)
	}
	return out
}

// adjustStock moves a commodity's stock pressure by delta, clamped to
// 0..100. Trades call this after settling at the pre-trade price.
func (p *Port) adjustStock(commodity string, delta int) {
	level := p.Levels[commodity] + delta
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	p.Levels[commodity] = level
}

// Snapshot captures the port for persistence and trade responses.
func (p *Port) Snapshot() *PortSnapshot {
	levels := make(map[string]int, len(p.Levels))
	for k, v := range p.Levels {
		levels[k] = v
	}
	return &PortSnapshot{
		Name:            p.Name,
		TypeID:          p.TypeID,
		CommodityLevels: levels,
		Prices:          p.Prices(),
	}
}
