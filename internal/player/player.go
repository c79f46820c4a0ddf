// Package player holds the per-session ship state owned by the server.
package player

// State is the authoritative record for one player. It is mutated only by
// the server's handlers and echoed back in full on every trade, dock and
// movement result so clients can always resynchronize.
type State struct {
	Sector  int            `json:"sector"`
	Credits int            `json:"credits"`
	Bank    int            `json:"bank"`
	Holds   int            `json:"holds"`
	Cargo   map[string]int `json:"cargo"`
	Hull    int            `json:"hull"`
	Shields int            `json:"shields"`
}

// UsedHolds is the cargo space currently occupied.
func (s *State) UsedHolds() int {
	total := 0
	for _, n := range s.Cargo {
		total += n
	}
	return total
}

// Clone returns a deep copy, used when snapshotting under lock.
func (s *State) Clone() *State {
	out := *s
	out.Cargo = make(map[string]int, len(s.Cargo))
	for k, v := range s.Cargo {
		out.Cargo[k] = v
	}
	return &out
}
