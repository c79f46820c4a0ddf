package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/startrader/internal/auth"
	"github.com/example/startrader/internal/config"
	"github.com/example/startrader/internal/galaxy"
	"github.com/example/startrader/internal/packet"
	"github.com/example/startrader/internal/store"
)

type wireEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireConnect struct {
	PlayerID     string `json:"player_id"`
	SessionToken string `json:"session_token"`
}

type wireSectorUpdate struct {
	PlayerID string `json:"player_id"`
	State    struct {
		Sector  int            `json:"sector"`
		Credits int            `json:"credits"`
		Bank    int            `json:"bank"`
		Cargo   map[string]int `json:"cargo"`
	} `json:"state"`
	SectorData struct {
		ID        int    `json:"id"`
		Neighbors []int  `json:"neighbors"`
		HasPort   bool   `json:"has_port"`
		Stardock  bool   `json:"stardock"`
		PortName  string `json:"port_name"`
	} `json:"sector_data"`
}

// testGalaxy is a small fixed map: sector 1 warps to 2, 5 and 9, sector 2
// is the stardock, sector 5 has a port of known type and stock.
func testGalaxy() *galaxy.Galaxy {
	g := &galaxy.Galaxy{Size: 9, Sectors: make(map[int]*galaxy.Sector, 9)}
	for id := 1; id <= 9; id++ {
		g.Sectors[id] = &galaxy.Sector{ID: id, Neighbors: []int{1}}
	}
	g.Sectors[1].Neighbors = []int{5, 9}
	g.Sectors[2].Stardock = true
	g.Sectors[5].Port = &galaxy.Port{
		Name:   "Rusty Depot",
		TypeID: 2,
		Levels: map[string]int{galaxy.Fuel: 50, galaxy.Ore: 50, galaxy.Equipment: 50},
	}
	return g
}

func startServer(t *testing.T, g *galaxy.Galaxy, startSector int) (*GameServer, string) {
	t.Helper()
	cfg := config.Default()
	cfg.StartSector = startSector

	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	gs := New(cfg, g, nil, st, auth.NewTokenIssuer("test-secret", time.Hour))
	ts := httptest.NewServer(http.HandlerFunc(gs.HandleWS))
	t.Cleanup(ts.Close)

	return gs, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFor reads until a packet of the wanted type arrives, skipping
// unrelated broadcasts and heartbeats.
func waitFor(t *testing.T, conn *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", wantType)

		var env wireEnvelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == wantType {
			return env.Payload
		}
	}
}

func sendPacket(t *testing.T, conn *websocket.Conn, packetType string, payload map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(packet.Envelope{Type: packetType, Payload: payload}))
}

// connect dials and consumes the connect handshake, returning the
// assigned identity.
func connect(t *testing.T, url string) (*websocket.Conn, wireConnect) {
	t.Helper()
	conn := dial(t, url)
	var hello wireConnect
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.PlayerConnect), &hello))
	waitFor(t, conn, packet.SectorUpdate)
	return conn, hello
}

func TestConnectHandshake(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	conn := dial(t, url)

	var hello wireConnect
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.PlayerConnect), &hello))
	assert.NotEmpty(t, hello.PlayerID)
	assert.NotEmpty(t, hello.SessionToken)

	var update wireSectorUpdate
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.SectorUpdate), &update))
	assert.Equal(t, hello.PlayerID, update.PlayerID)
	assert.Equal(t, 1, update.State.Sector)
	assert.Equal(t, 1000, update.State.Credits)
	assert.Equal(t, 1, update.SectorData.ID)
	assert.Equal(t, []int{5, 9}, update.SectorData.Neighbors)
}

func TestMoveAcceptedBroadcastsToAll(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	mover, hello := connect(t, url)
	watcher, _ := connect(t, url)

	sendPacket(t, mover, packet.PlayerMove, map[string]interface{}{"sector": 5})

	for _, conn := range []*websocket.Conn{mover, watcher} {
		var update wireSectorUpdate
		require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.SectorUpdate), &update))
		assert.Equal(t, hello.PlayerID, update.PlayerID)
		assert.Equal(t, 5, update.State.Sector)
		assert.Equal(t, 5, update.SectorData.ID)
		assert.True(t, update.SectorData.HasPort)
		assert.Equal(t, "Rusty Depot", update.SectorData.PortName)
	}
}

func TestMoveRejections(t *testing.T) {
	gs, url := startServer(t, testGalaxy(), 1)
	conn, hello := connect(t, url)

	cases := []struct {
		payload map[string]interface{}
		reason  string
	}{
		{map[string]interface{}{"sector": 7}, "Sector not adjacent."},
		{map[string]interface{}{"sector": 999}, "Sector does not exist."},
		{map[string]interface{}{}, "No sector given."},
		{map[string]interface{}{"sector": "5"}, "Sector must be a number."},
	}
	for _, tc := range cases {
		sendPacket(t, conn, packet.PlayerMove, tc.payload)
		var reject struct {
			Reason string `json:"reason"`
		}
		require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.MoveReject), &reject))
		assert.Equal(t, tc.reason, reject.Reason)
	}

	gs.mu.Lock()
	sector := gs.players[hello.PlayerID].Sector
	gs.mu.Unlock()
	assert.Equal(t, 1, sector)
}

func TestChatBroadcast(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	sender, hello := connect(t, url)
	listener, _ := connect(t, url)

	sendPacket(t, sender, packet.ChatMessage, map[string]interface{}{"message": "anyone out there?"})

	for _, conn := range []*websocket.Conn{sender, listener} {
		var chat struct {
			PlayerID string `json:"player_id"`
			Message  string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.ChatMessage), &chat))
		assert.Equal(t, hello.PlayerID, chat.PlayerID)
		assert.Equal(t, "anyone out there?", chat.Message)
	}
}

func TestHeartbeatPingPong(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	conn, _ := connect(t, url)

	sendPacket(t, conn, packet.HeartbeatPing, map[string]interface{}{})
	waitFor(t, conn, packet.HeartbeatPong)
}

func TestUnknownPacketType(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	conn, _ := connect(t, url)

	sendPacket(t, conn, "WARP_TO_EARTH", map[string]interface{}{})
	var errPayload struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.Error), &errPayload))
	assert.Equal(t, "Unknown packet type 'WARP_TO_EARTH'.", errPayload.Reason)
}

func TestMalformedPacketGetsErrorNotDisconnect(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	conn, _ := connect(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	waitFor(t, conn, packet.Error)

	// The session survives a protocol error.
	sendPacket(t, conn, packet.HeartbeatPing, map[string]interface{}{})
	waitFor(t, conn, packet.HeartbeatPong)
}

func TestTradeOverWire(t *testing.T) {
	gs, url := startServer(t, testGalaxy(), 5)
	conn, hello := connect(t, url)

	gs.mu.Lock()
	gs.players[hello.PlayerID].Cargo[galaxy.Ore] = 5
	gs.mu.Unlock()

	// Type 2 port buys ore at level 50 for 33 a unit.
	sendPacket(t, conn, packet.PortTrade, map[string]interface{}{
		"action": "sell", "good": "ORE", "amount": 2,
	})

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Player  struct {
			Credits int            `json:"credits"`
			Cargo   map[string]int `json:"cargo"`
		} `json:"player_state"`
		Port struct {
			CommodityLevels map[string]int `json:"commodity_levels"`
		} `json:"port"`
	}
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.TradeResult), &result))
	require.True(t, result.Success)
	assert.Equal(t, "Sold 2 ore for 66 credits.", result.Message)
	assert.Equal(t, 1066, result.Player.Credits)
	assert.Equal(t, 3, result.Player.Cargo[galaxy.Ore])
	assert.Equal(t, 52, result.Port.CommodityLevels[galaxy.Ore])
}

func TestTradeWithoutPortFails(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	conn, _ := connect(t, url)

	sendPacket(t, conn, packet.PortTrade, map[string]interface{}{
		"action": "buy", "good": "fuel", "amount": 1,
	})

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.TradeResult), &result))
	assert.False(t, result.Success)
	assert.Equal(t, "No port in this sector.", result.Message)
}

func TestScan(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	conn, _ := connect(t, url)

	type scanResult struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Sector  int    `json:"sector"`
		Data    *struct {
			ID      int  `json:"id"`
			HasPort bool `json:"has_port"`
		} `json:"data"`
	}

	// Adjacent sector.
	sendPacket(t, conn, packet.ScanRequest, map[string]interface{}{"sector": 5})
	var res scanResult
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.ScanResult), &res))
	require.True(t, res.Success)
	assert.Equal(t, 5, res.Sector)
	require.NotNil(t, res.Data)
	assert.True(t, res.Data.HasPort)

	// Own sector is always scannable.
	sendPacket(t, conn, packet.ScanRequest, map[string]interface{}{"sector": 1})
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.ScanResult), &res))
	assert.True(t, res.Success)

	// Out of warp range.
	sendPacket(t, conn, packet.ScanRequest, map[string]interface{}{"sector": 7})
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.ScanResult), &res))
	assert.False(t, res.Success)
	assert.Equal(t, "Sector not adjacent.", res.Message)

	// Mistyped target is called out distinctly from an absent one.
	sendPacket(t, conn, packet.ScanRequest, map[string]interface{}{"sector": "5"})
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.ScanResult), &res))
	assert.False(t, res.Success)
	assert.Equal(t, "Sector must be a number.", res.Message)
}

func TestDockFlow(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 2)
	conn, _ := connect(t, url)

	type dockResult struct {
		Success bool     `json:"success"`
		Message string   `json:"message"`
		Intro   string   `json:"intro"`
		Menu    []string `json:"menu"`
		Exit    bool     `json:"exit"`
	}

	sendPacket(t, conn, packet.DockRequest, map[string]interface{}{})
	var res dockResult
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.DockResult), &res))
	require.True(t, res.Success)
	assert.Contains(t, res.Intro, "Celestial Bazaar")
	assert.NotEmpty(t, res.Menu)

	sendPacket(t, conn, packet.DockAction, map[string]interface{}{
		"action": "bank_deposit", "amount": 500,
	})
	var action struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Player  struct {
			Credits int `json:"credits"`
			Bank    int `json:"bank"`
		} `json:"player_state"`
	}
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.DockAction), &action))
	require.True(t, action.Success)
	assert.Equal(t, "Deposited 500 credits.", action.Message)
	assert.Equal(t, 500, action.Player.Bank)
	assert.Equal(t, 500, action.Player.Credits)

	sendPacket(t, conn, packet.DockAction, map[string]interface{}{"action": "LEAVE"})
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.DockResult), &res))
	assert.True(t, res.Success)
	assert.True(t, res.Exit)
}

func TestDockRequiresStardock(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	conn, _ := connect(t, url)

	sendPacket(t, conn, packet.DockRequest, map[string]interface{}{})
	var res struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.DockResult), &res))
	assert.False(t, res.Success)
	assert.Equal(t, "No stardock in this sector.", res.Message)
}

func TestDockActionRequiresDocking(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 2)
	conn, _ := connect(t, url)

	sendPacket(t, conn, packet.DockAction, map[string]interface{}{
		"action": "BANK_BALANCE",
	})
	var action struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.DockAction), &action))
	assert.False(t, action.Success)
	assert.Equal(t, "Not docked. Send DOCK_REQUEST first.", action.Message)
}

func TestMovingUndocks(t *testing.T) {
	g := testGalaxy()
	g.Sectors[2].Neighbors = []int{1}
	_, url := startServer(t, g, 2)
	conn, _ := connect(t, url)

	sendPacket(t, conn, packet.DockRequest, map[string]interface{}{})
	waitFor(t, conn, packet.DockResult)

	sendPacket(t, conn, packet.PlayerMove, map[string]interface{}{"sector": 1})
	waitFor(t, conn, packet.SectorUpdate)

	sendPacket(t, conn, packet.DockAction, map[string]interface{}{"action": "BANK_BALANCE"})
	var action struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(waitFor(t, conn, packet.DockAction), &action))
	assert.False(t, action.Success)
	assert.Equal(t, "Not docked. Send DOCK_REQUEST first.", action.Message)
}

func TestDisconnectBroadcast(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	watcher, _ := connect(t, url)
	leaver, leaverHello := connect(t, url)

	leaver.Close()

	var gone wireConnect
	require.NoError(t, json.Unmarshal(waitFor(t, watcher, packet.PlayerDisconnect), &gone))
	assert.Equal(t, leaverHello.PlayerID, gone.PlayerID)
}

func TestSessionTokenReclaimsIdentity(t *testing.T) {
	gs, url := startServer(t, testGalaxy(), 1)
	conn, hello := connect(t, url)

	gs.mu.Lock()
	gs.players[hello.PlayerID].Credits = 4321
	gs.mu.Unlock()

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	reconn := dial(t, url+"?token="+hello.SessionToken)
	var again wireConnect
	require.NoError(t, json.Unmarshal(waitFor(t, reconn, packet.PlayerConnect), &again))
	assert.Equal(t, hello.PlayerID, again.PlayerID)

	var update wireSectorUpdate
	require.NoError(t, json.Unmarshal(waitFor(t, reconn, packet.SectorUpdate), &update))
	assert.Equal(t, 4321, update.State.Credits)
}

func TestDuplicateSessionEvictsOld(t *testing.T) {
	_, url := startServer(t, testGalaxy(), 1)
	first, hello := connect(t, url)

	second := dial(t, url+"?token="+hello.SessionToken)
	var again wireConnect
	require.NoError(t, json.Unmarshal(waitFor(t, second, packet.PlayerConnect), &again))
	assert.Equal(t, hello.PlayerID, again.PlayerID)

	// The older session's socket is closed server-side.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
}
