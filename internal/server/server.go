// Package server is the session and connection manager: it owns the world
// state, decodes inbound packets, dispatches them to the galaxy, trade and
// stardock components, and fans results back out to connected clients.
package server

import (
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/startrader/internal/auth"
	"github.com/example/startrader/internal/config"
	"github.com/example/startrader/internal/galaxy"
	"github.com/example/startrader/internal/packet"
	"github.com/example/startrader/internal/player"
	"github.com/example/startrader/internal/stardock"
	"github.com/example/startrader/internal/store"
)

// connection is one live websocket session. gorilla connections allow a
// single concurrent writer, so every send goes through writeMu: the read
// loop, the heartbeat ticker and broadcasts all write.
type connection struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) send(packetType string, payload interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(packet.Envelope{Type: packetType, Payload: payload})
}

// GameServer holds the authoritative world state. Connection read loops
// run in parallel goroutines, so every read-modify-write of the galaxy or
// the player mapping happens under mu.
type GameServer struct {
	cfg    *config.Config
	store  *store.Store
	tokens *auth.TokenIssuer
	dock   *stardock.Processor

	upgrader websocket.Upgrader

	mu      sync.Mutex
	galaxy  *galaxy.Galaxy
	players map[string]*player.State // all known records, live and persisted
	conns   map[string]*connection   // live sessions only; never persisted
	docked  map[string]bool

	quit     chan struct{}
	stopOnce sync.Once
}

// New wires a server around an already loaded (or freshly generated)
// galaxy and player mapping.
func New(cfg *config.Config, g *galaxy.Galaxy, players map[string]*player.State, st *store.Store, tokens *auth.TokenIssuer) *GameServer {
	if players == nil {
		players = make(map[string]*player.State)
	}
	return &GameServer{
		cfg:    cfg,
		store:  st,
		tokens: tokens,
		dock:   stardock.New(rand.New(rand.NewSource(time.Now().UnixNano()))),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		galaxy:  g,
		players: players,
		conns:   make(map[string]*connection),
		docked:  make(map[string]bool),
		quit:    make(chan struct{}),
	}
}

// Run starts the background loops: heartbeats per connection, the
// autosave tick, and the idle world tick.
func (gs *GameServer) Run() {
	go gs.runHeartbeat()
	go gs.runAutosave()
	go gs.runIdle()
}

// Stop halts the background loops and writes a final snapshot.
func (gs *GameServer) Stop() {
	gs.stopOnce.Do(func() {
		close(gs.quit)
		gs.saveAll()
	})
}

// Wire payload shapes (snake_case, matching the packet catalog).

type connectPayload struct {
	PlayerID     string `json:"player_id"`
	SessionToken string `json:"session_token,omitempty"`
}

type sectorUpdatePayload struct {
	PlayerID   string              `json:"player_id"`
	State      *player.State       `json:"state"`
	SectorData galaxy.ClientSector `json:"sector_data"`
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

type chatPayload struct {
	PlayerID string `json:"player_id"`
	Message  string `json:"message"`
}

type scanResultPayload struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Sector  int                  `json:"sector,omitempty"`
	Data    *galaxy.ClientSector `json:"data,omitempty"`
}

type dockResultPayload struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Intro   string   `json:"intro,omitempty"`
	Menu    []string `json:"menu,omitempty"`
	Exit    bool     `json:"exit,omitempty"`
}

type errorPayload struct {
	Reason string `json:"reason"`
}

// HandleWS upgrades the connection and brings the session to ACTIVE:
// identity assignment, registration, connect broadcast, and the initial
// sector snapshot unicast.
func (gs *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := gs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[SERVER] upgrade:", err)
		return
	}

	// A valid session token reclaims the persisted player id; otherwise
	// the session gets a fresh collision-proof id.
	playerID := ""
	if token := r.URL.Query().Get("token"); token != "" {
		id, err := gs.tokens.Validate(token)
		if err != nil {
			log.Printf("[SERVER] Rejecting stale session token: %v", err)
		} else {
			playerID = id
		}
	}
	if playerID == "" {
		playerID = uuid.NewString()
	}

	c := &connection{id: playerID, conn: conn}

	gs.mu.Lock()
	if old, ok := gs.conns[playerID]; ok {
		// Same identity connected twice; the newer session wins.
		log.Printf("[SERVER] Evicting duplicate session for %s", playerID)
		old.conn.Close()
	}
	st, ok := gs.players[playerID]
	if !ok {
		st = gs.newPlayerState()
		gs.players[playerID] = st
	}
	if !gs.galaxy.SectorExists(st.Sector) {
		st.Sector = gs.cfg.StartSector
	}
	gs.conns[playerID] = c
	stateCopy := st.Clone()
	view := gs.galaxy.ClientView(st.Sector)
	gs.mu.Unlock()

	token, err := gs.tokens.Issue(playerID)
	if err != nil {
		log.Printf("[SERVER] Failed to issue session token for %s: %v", playerID, err)
	}

	log.Printf("[SERVER] Player connected: %s", playerID)

	// The new session learns its own id (and token) first, then everyone
	// else hears about it, then the session gets its starting sector.
	c.send(packet.PlayerConnect, connectPayload{PlayerID: playerID, SessionToken: token})
	gs.broadcastExcept(c, packet.PlayerConnect, connectPayload{PlayerID: playerID})
	c.send(packet.SectorUpdate, sectorUpdatePayload{
		PlayerID:   playerID,
		State:      stateCopy,
		SectorData: view,
	})

	go gs.readLoop(c)
}

func (gs *GameServer) newPlayerState() *player.State {
	bal := gs.cfg.Balance
	cargo := make(map[string]int, len(galaxy.Commodities))
	for _, commodity := range galaxy.Commodities {
		cargo[commodity] = 0
	}
	return &player.State{
		Sector:  gs.cfg.StartSector,
		Credits: bal.StartingCredits,
		Bank:    bal.StartingBank,
		Holds:   bal.StartingHolds,
		Cargo:   cargo,
		Hull:    bal.StartingHull,
		Shields: bal.StartingShields,
	}
}

// readLoop processes one session's inbound packets sequentially until the
// socket closes or errors.
func (gs *GameServer) readLoop(c *connection) {
	defer gs.dropConnection(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		pkt, err := packet.Decode(raw)
		if err != nil {
			// Protocol error: report to the offender, never crash.
			c.send(packet.Error, errorPayload{Reason: err.Error()})
			continue
		}
		gs.dispatch(c, pkt)
	}
}

func (gs *GameServer) dispatch(c *connection, pkt packet.Packet) {
	switch pkt.Type {
	case packet.HeartbeatPing:
		c.send(packet.HeartbeatPong, struct{}{})
	case packet.HeartbeatPong:
		// Keep-alive reply; nothing to do.
	case packet.PlayerMove:
		gs.handleMove(c, pkt.Payload)
	case packet.ChatMessage:
		gs.handleChat(c, pkt.Payload)
	case packet.PortTrade:
		gs.handleTrade(c, pkt.Payload)
	case packet.ScanRequest:
		gs.handleScan(c, pkt.Payload)
	case packet.DockRequest:
		gs.handleDockRequest(c)
	case packet.DockAction:
		gs.handleDockAction(c, pkt.Payload)
	default:
		c.send(packet.Error, errorPayload{Reason: "Unknown packet type '" + pkt.Type + "'."})
	}
}

func (gs *GameServer) handleMove(c *connection, payload map[string]interface{}) {
	target, ok := intField(payload, "sector")
	if !ok {
		reason := "No sector given."
		if _, present := payload["sector"]; present {
			reason = "Sector must be a number."
		}
		c.send(packet.MoveReject, rejectPayload{Reason: reason})
		return
	}

	gs.mu.Lock()
	st := gs.players[c.id]
	if !gs.galaxy.SectorExists(target) {
		gs.mu.Unlock()
		c.send(packet.MoveReject, rejectPayload{Reason: "Sector does not exist."})
		return
	}
	if !gs.galaxy.IsAdjacent(st.Sector, target) {
		gs.mu.Unlock()
		c.send(packet.MoveReject, rejectPayload{Reason: "Sector not adjacent."})
		return
	}
	st.Sector = target
	delete(gs.docked, c.id)
	stateCopy := st.Clone()
	view := gs.galaxy.ClientView(target)
	players := gs.snapshotPlayersLocked()
	gs.mu.Unlock()

	gs.persistPlayers(players)
	gs.broadcast(packet.SectorUpdate, sectorUpdatePayload{
		PlayerID:   c.id,
		State:      stateCopy,
		SectorData: view,
	})
}

func (gs *GameServer) handleChat(c *connection, payload map[string]interface{}) {
	message, _ := payload["message"].(string)
	gs.broadcast(packet.ChatMessage, chatPayload{PlayerID: c.id, Message: message})
}

func (gs *GameServer) handleTrade(c *connection, payload map[string]interface{}) {
	action := strings.ToUpper(stringField(payload, "action"))
	good := strings.ToLower(stringField(payload, "good"))
	amount, _ := intField(payload, "amount")

	gs.mu.Lock()
	st := gs.players[c.id]
	sector := gs.galaxy.Sector(st.Sector)
	result := galaxy.Trade(sector, st, action, good, amount)
	result.Player = st.Clone()
	players := gs.snapshotPlayersLocked()
	gs.mu.Unlock()

	gs.persistPlayers(players)
	c.send(packet.TradeResult, result)
}

func (gs *GameServer) handleScan(c *connection, payload map[string]interface{}) {
	target, ok := intField(payload, "sector")
	if !ok {
		reason := "No sector provided."
		if _, present := payload["sector"]; present {
			reason = "Sector must be a number."
		}
		c.send(packet.ScanResult, scanResultPayload{Message: reason})
		return
	}

	gs.mu.Lock()
	st := gs.players[c.id]
	if !gs.galaxy.SectorExists(target) {
		gs.mu.Unlock()
		c.send(packet.ScanResult, scanResultPayload{Message: "Sector does not exist."})
		return
	}
	if target != st.Sector && !gs.galaxy.IsAdjacent(st.Sector, target) {
		gs.mu.Unlock()
		c.send(packet.ScanResult, scanResultPayload{Message: "Sector not adjacent."})
		return
	}
	view := gs.galaxy.ClientView(target)
	gs.mu.Unlock()

	c.send(packet.ScanResult, scanResultPayload{Success: true, Sector: target, Data: &view})
}

func (gs *GameServer) handleDockRequest(c *connection) {
	gs.mu.Lock()
	st := gs.players[c.id]
	sector := gs.galaxy.Sector(st.Sector)
	if sector == nil || !sector.Stardock {
		gs.mu.Unlock()
		c.send(packet.DockResult, dockResultPayload{Message: "No stardock in this sector."})
		return
	}
	gs.docked[c.id] = true
	gs.mu.Unlock()

	c.send(packet.DockResult, dockResultPayload{
		Success: true,
		Intro:   stardock.Intro(),
		Menu:    stardock.ServiceMenu(),
	})
}

func (gs *GameServer) handleDockAction(c *connection, payload map[string]interface{}) {
	action := strings.ToUpper(stringField(payload, "action"))
	amount, _ := intField(payload, "amount")

	if action == "0" || action == "LEAVE" {
		gs.mu.Lock()
		delete(gs.docked, c.id)
		gs.mu.Unlock()
		c.send(packet.DockResult, dockResultPayload{
			Success: true,
			Exit:    true,
			Message: "You undock from the Celestial Bazaar.",
		})
		return
	}

	gs.mu.Lock()
	if !gs.docked[c.id] {
		st := gs.players[c.id].Clone()
		gs.mu.Unlock()
		c.send(packet.DockAction, stardock.Result{
			Message: "Not docked. Send DOCK_REQUEST first.",
			Lines:   []string{},
			Player:  st,
		})
		return
	}
	st := gs.players[c.id]
	result := gs.dock.Process(action, amount, st)
	result.Player = st.Clone()
	players := gs.snapshotPlayersLocked()
	gs.mu.Unlock()

	gs.persistPlayers(players)
	c.send(packet.DockAction, result)
}

// dropConnection is the ACTIVE -> DISCONNECTED transition: deregister,
// persist last-known state, tell everyone else. The player record stays
// in the mapping so the snapshot keeps it and a session token can
// reclaim it later.
func (gs *GameServer) dropConnection(c *connection) {
	c.conn.Close()

	gs.mu.Lock()
	if gs.conns[c.id] != c {
		// Already replaced by a newer session for the same id.
		gs.mu.Unlock()
		return
	}
	delete(gs.conns, c.id)
	delete(gs.docked, c.id)
	players := gs.snapshotPlayersLocked()
	gs.mu.Unlock()

	log.Printf("[SERVER] Player disconnected: %s", c.id)
	gs.persistPlayers(players)
	gs.broadcast(packet.PlayerDisconnect, connectPayload{PlayerID: c.id})
}

// broadcast fans a packet out to every live session. Send failures are
// isolated per peer; the failing peer's own read loop handles cleanup.
func (gs *GameServer) broadcast(packetType string, payload interface{}) {
	gs.broadcastExcept(nil, packetType, payload)
}

func (gs *GameServer) broadcastExcept(skip *connection, packetType string, payload interface{}) {
	gs.mu.Lock()
	targets := make([]*connection, 0, len(gs.conns))
	for _, c := range gs.conns {
		if c != skip {
			targets = append(targets, c)
		}
	}
	gs.mu.Unlock()

	for _, c := range targets {
		if err := c.send(packetType, payload); err != nil {
			log.Printf("[SERVER] Broadcast to %s failed: %v", c.id, err)
		}
	}
}

func (gs *GameServer) snapshotPlayersLocked() map[string]*player.State {
	out := make(map[string]*player.State, len(gs.players))
	for id, st := range gs.players {
		out[id] = st.Clone()
	}
	return out
}

// persistPlayers writes the player snapshot. Failures are logged, not
// fatal; the autosave tick retries.
func (gs *GameServer) persistPlayers(players map[string]*player.State) {
	if err := gs.store.SavePlayers(players); err != nil {
		log.Printf("[SAVE] Player save failed, will retry on next tick: %v", err)
	}
}

func (gs *GameServer) saveAll() {
	gs.mu.Lock()
	galaxySnap := gs.galaxy.Snapshot()
	players := gs.snapshotPlayersLocked()
	gs.mu.Unlock()

	if err := gs.store.SaveGalaxy(galaxySnap); err != nil {
		log.Printf("[SAVE] Galaxy save failed, will retry on next tick: %v", err)
	}
	gs.persistPlayers(players)
}

func (gs *GameServer) runHeartbeat() {
	ticker := time.NewTicker(gs.cfg.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-gs.quit:
			return
		case <-ticker.C:
			gs.broadcast(packet.HeartbeatPing, struct{}{})
		}
	}
}

func (gs *GameServer) runAutosave() {
	ticker := time.NewTicker(gs.cfg.AutosaveInterval())
	defer ticker.Stop()
	for {
		select {
		case <-gs.quit:
			return
		case <-ticker.C:
			gs.saveAll()
		}
	}
}

// runIdle is the galaxy-wide world tick, reserved for future simulation.
func (gs *GameServer) runIdle() {
	ticker := time.NewTicker(gs.cfg.IdleTickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-gs.quit:
			return
		case <-ticker.C:
		}
	}
}

func intField(payload map[string]interface{}, key string) (int, bool) {
	v, ok := payload[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

func stringField(payload map[string]interface{}, key string) string {
	v, _ := payload[key].(string)
	return v
}
