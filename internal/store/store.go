// Package store persists the two snapshot documents: the galaxy and the
// player-state mapping. Both are flat JSON files rewritten wholesale on
// every save; there is no incremental log.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/example/startrader/internal/galaxy"
	"github.com/example/startrader/internal/player"
)

const (
	galaxyFile  = "galaxy.json"
	playersFile = "players.json"
)

// ErrNoSnapshot is returned by the Load functions when no snapshot file
// exists yet. Callers fall back to fresh state.
var ErrNoSnapshot = errors.New("no snapshot on disk")

// Store reads and writes snapshots under one directory.
type Store struct {
	dir string
}

// New ensures the save directory exists.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// writeFile writes via a temp file and rename so a crash mid-write never
// leaves a truncated snapshot.
func (s *Store) writeFile(name string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp := filepath.Join(s.dir, name+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) readFile(name string, v interface{}) error {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoSnapshot
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// SaveGalaxy rewrites the galaxy document. Callers capture the snapshot
// while holding the world lock and may write it afterwards.
func (s *Store) SaveGalaxy(snap *galaxy.Snapshot) error {
	if err := s.writeFile(galaxyFile, snap); err != nil {
		return err
	}
	log.Printf("[SAVE] Galaxy saved.")
	return nil
}

// LoadGalaxy reads the galaxy document. ErrNoSnapshot means no file;
// other errors mean a corrupt file. Both are non-fatal to callers.
func (s *Store) LoadGalaxy() (*galaxy.Snapshot, error) {
	var snap galaxy.Snapshot
	if err := s.readFile(galaxyFile, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SavePlayers rewrites the player-state document.
func (s *Store) SavePlayers(players map[string]*player.State) error {
	if err := s.writeFile(playersFile, players); err != nil {
		return err
	}
	log.Printf("[SAVE] Player state saved.")
	return nil
}

// LoadPlayers reads the player-state document. A missing file yields an
// empty mapping; a corrupt file is reported for the caller to log. Each
// record is normalized on the way in, mirroring the per-sector treatment
// of the galaxy document: a partial record degrades to safe values
// instead of carrying unusable state into the trade paths.
func (s *Store) LoadPlayers() (map[string]*player.State, error) {
	players := make(map[string]*player.State)
	if err := s.readFile(playersFile, &players); err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			return players, nil
		}
		return nil, err
	}
	for id, st := range players {
		if st == nil {
			log.Printf("[LOAD] Dropping empty player record %q", id)
			delete(players, id)
			continue
		}
		normalizePlayer(st)
	}
	return players, nil
}

// normalizePlayer repairs a partially written record: the cargo map is
// always non-nil with every commodity present, and counters that must
// stay non-negative are clamped.
func normalizePlayer(st *player.State) {
	if st.Cargo == nil {
		st.Cargo = make(map[string]int, len(galaxy.Commodities))
	}
	for _, commodity := range galaxy.Commodities {
		count := st.Cargo[commodity]
		if count < 0 {
			count = 0
		}
		st.Cargo[commodity] = count
	}
	if st.Credits < 0 {
		st.Credits = 0
	}
	if st.Bank < 0 {
		st.Bank = 0
	}
	if st.Holds < 0 {
		st.Holds = 0
	}
	if st.Hull < 0 {
		st.Hull = 0
	}
	if st.Shields < 0 {
		st.Shields = 0
	}
}
