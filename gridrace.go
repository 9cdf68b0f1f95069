// Gridrace multiplayer relay
//
// Players race to find the numbers 1..100, shuffled across a 10x10 board,
// in ascending order. Each room is a shareable six-character code; the
// first player to create it becomes host. Everyone readies up in the
// lobby, a 3-2-1-Go countdown runs, and the race starts.
//
// The relay is the single owner of room state. Clients send intents
// (create_room, join_room, player_ready, player_move, player_confirm);
// the relay re-derives positions from direction intents, never trusting
// a client-submitted position, and fans out whole-room snapshots after
// every mutation. Movement deltas and confirm deltas are tagged
// distinctly so only confirms can trigger target-found effects.
//
// Features:
// - WebSocket relay at /ws, rooms addressed by code inside the protocol
// - Random 6-char room codes via crypto/rand, with collision check
// - Host reassignment in join order when the host disconnects
// - Disconnect grace period before a player is dropped, allowing rejoin
// - Idle and finished rooms reaped after a configurable timeout
// - Validation errors are returned to the sender only, never broadcast
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"crypto/rand"
	"fmt"
	"log"
	mathrand "math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/gridrace/grid"
)

// ClientMessage is the envelope for every client → server intent.
type ClientMessage struct {
	Type      string `json:"type"`                // "create_room", "join_room", "player_ready", "player_move", "player_confirm"
	RoomCode  string `json:"roomCode,omitempty"`  // all except create_room
	PlayerID  string `json:"playerId,omitempty"`  // all except create_room; on join_room, rejoin with an existing id
	HostName  string `json:"hostName,omitempty"`  // create_room
	Name      string `json:"name,omitempty"`      // join_room
	Controls  string `json:"controls,omitempty"`  // create_room / join_room
	Color     string `json:"color,omitempty"`     // create_room / join_room
	IsReady   bool   `json:"isReady,omitempty"`   // player_ready
	Direction int    `json:"direction,omitempty"` // player_move: -10, -1, +1, +10
	Seq       uint64 `json:"seq,omitempty"`       // client intent sequence number, echoed in deltas
}

// RoomCreatedMessage answers a successful create_room, to the host only.
type RoomCreatedMessage struct {
	Type     string        `json:"type"` // "room_created"
	RoomCode string        `json:"roomCode"`
	PlayerID string        `json:"playerId"`
	Room     grid.Snapshot `json:"room"`
}

// RoomJoinedMessage answers a successful join_room, to the joiner only.
type RoomJoinedMessage struct {
	Type     string        `json:"type"` // "room_joined"
	RoomCode string        `json:"roomCode"`
	PlayerID string        `json:"playerId"`
	Room     grid.Snapshot `json:"room"`
}

// RoomEventMessage carries a whole-room snapshot for roster and phase
// events: "player_joined", "player_left", "host_changed", "player_update",
// "game_countdown_start", "game_start".
type RoomEventMessage struct {
	Type  string        `json:"type"`
	Room  grid.Snapshot `json:"room"`
	Count int           `json:"count,omitempty"` // countdown ticks, 3..1
}

// MoveDelta describes the mutation behind a game_update. Only deltas with
// Type "confirm" may carry TargetFound; movement deltas never do.
type MoveDelta struct {
	Type           string `json:"type"` // "move" or "confirm"
	PlayerID       string `json:"playerId"`
	Position       int    `json:"position"`
	Target         int    `json:"target,omitempty"`         // the label that was found
	TargetFound    bool   `json:"targetFound"`              // confirm only
	StolenPosition int    `json:"stolenPosition,omitempty"` // set when the confirm triggered a steal
	Seq            uint64 `json:"seq,omitempty"`
}

// GameUpdateMessage broadcasts an in-game mutation: the authoritative
// snapshot plus the delta that caused it.
type GameUpdateMessage struct {
	Type     string        `json:"type"` // "game_update"
	Room     grid.Snapshot `json:"room"`
	LastMove MoveDelta     `json:"lastMove"`
}

// ErrorMessage reports a rejected intent to the offending client only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

type relayClient struct {
	conn *websocket.Conn
	send chan any

	// Set alongside close(send); guarded by Relay.mu like every other
	// mutation, so trySend never races a closed channel.
	closed bool

	// Weak reference into the registry; the room owns the player record.
	playerID string
	roomCode string
}

// roomState pairs the authoritative game state with the sockets currently
// joined to the room's channel.
type roomState struct {
	game       *grid.Room
	clients    map[*relayClient]bool
	lastActive time.Time
}

// Relay is the process-scoped session registry and protocol handler. A
// single mutex serializes every mutating handler, so each inbound event is
// handled to completion before the next and clients only ever observe
// whole snapshots.
type Relay struct {
	mu    sync.Mutex
	cfg   *Config
	rooms map[string]*roomState
	rng   *mathrand.Rand
}

func newRelay(cfg *Config) *Relay {
	rl := &Relay{
		cfg:   cfg,
		rooms: make(map[string]*roomState),
		rng:   mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}

	if cfg.sessionTimeout > 0 {
		go rl.reaperLoop()
	}

	return rl
}

// Room codes avoid 0/O and 1/I lookalikes since they are read aloud.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newRoomCode generates a crypto-random room code and ensures it doesn't
// collide with an existing room. Caller must hold rl.mu.
func (rl *Relay) newRoomCode() string {
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		out := make([]byte, 6)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(out)

		if _, exists := rl.rooms[code]; !exists {
			return code
		}
	}
}

func (c *relayClient) trySend(msg any) bool {
	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// sendError reports a rejected intent to the sender only.
func (rl *Relay) sendError(c *relayClient, err error) {
	c.trySend(ErrorMessage{
		Type:    "error",
		Message: err.Error(),
	})
}

// broadcast fans one event out to every socket joined to the room.
// Caller must hold rl.mu, so no partial-broadcast state is observable.
func (rl *Relay) broadcast(rs *roomState, msg any) {
	for client := range rs.clients {
		if !client.trySend(msg) {
			delete(rs.clients, client)
			if !client.closed {
				client.closed = true
				close(client.send)
			}
		}
	}
}

// handleCreate processes "create_room".
func (rl *Relay) handleCreate(c *relayClient, msg ClientMessage) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if existing, ok := rl.rooms[c.roomCode]; ok && existing.clients[c] {
		rl.sendError(c, fmt.Errorf("already in room %s", c.roomCode))
		return
	}
	if rl.cfg.maxRooms > 0 && len(rl.rooms) >= rl.cfg.maxRooms {
		rl.sendError(c, grid.ErrCapacityExceeded)
		return
	}
	if msg.HostName == "" {
		rl.sendError(c, fmt.Errorf("create_room requires a host name"))
		return
	}

	code := rl.newRoomCode()
	room := grid.NewRoom(code, rl.rng)

	playerID := uuid.NewString()
	if _, err := room.AddPlayer(playerID, msg.HostName, msg.Controls, msg.Color); err != nil {
		rl.sendError(c, err)
		return
	}

	rs := &roomState{
		game:       room,
		clients:    map[*relayClient]bool{c: true},
		lastActive: time.Now(),
	}
	rl.rooms[code] = rs

	c.playerID = playerID
	c.roomCode = code

	c.trySend(RoomCreatedMessage{
		Type:     "room_created",
		RoomCode: code,
		PlayerID: playerID,
		Room:     room.Snapshot(),
	})

	logf(rl.cfg, "ROOMS: %q created room %s", msg.HostName, code)
}

// handleJoin processes "join_room". A message carrying a playerId that is
// still on the roster re-attaches that player's socket regardless of
// phase, which is how a reconnect inside the grace period works.
func (rl *Relay) handleJoin(c *relayClient, msg ClientMessage) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rs, ok := rl.rooms[msg.RoomCode]
	if !ok {
		rl.sendError(c, grid.ErrRoomNotFound)
		return
	}

	rs.lastActive = time.Now()

	if msg.PlayerID != "" {
		if existing := rs.game.PlayerByID(msg.PlayerID); existing != nil {
			rs.clients[c] = true
			c.playerID = existing.ID
			c.roomCode = msg.RoomCode

			c.trySend(RoomJoinedMessage{
				Type:     "room_joined",
				RoomCode: msg.RoomCode,
				PlayerID: existing.ID,
				Room:     rs.game.Snapshot(),
			})

			logf(rl.cfg, "ROOMS: %q reconnected to room %s", existing.Name, msg.RoomCode)
			return
		}
	}

	playerID := uuid.NewString()
	player, err := rs.game.AddPlayer(playerID, msg.Name, msg.Controls, msg.Color)
	if err != nil {
		rl.sendError(c, err)
		return
	}

	rs.clients[c] = true
	c.playerID = playerID
	c.roomCode = msg.RoomCode

	c.trySend(RoomJoinedMessage{
		Type:     "room_joined",
		RoomCode: msg.RoomCode,
		PlayerID: playerID,
		Room:     rs.game.Snapshot(),
	})

	rl.broadcast(rs, RoomEventMessage{
		Type: "player_joined",
		Room: rs.game.Snapshot(),
	})

	logf(rl.cfg, "ROOMS: %q joined room %s", player.Name, msg.RoomCode)
}

// handleReady processes "player_ready" and kicks off the countdown once
// at least two players are present and the whole roster is ready.
func (rl *Relay) handleReady(c *relayClient, msg ClientMessage) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rs, ok := rl.rooms[msg.RoomCode]
	if !ok {
		rl.sendError(c, grid.ErrRoomNotFound)
		return
	}

	rs.lastActive = time.Now()

	if err := rs.game.SetReady(c.playerID, msg.IsReady); err != nil {
		rl.sendError(c, err)
		return
	}

	rl.broadcast(rs, RoomEventMessage{
		Type: "player_update",
		Room: rs.game.Snapshot(),
	})

	if rs.game.CanStart() {
		_ = rs.game.StartCountdown()

		rl.broadcast(rs, RoomEventMessage{
			Type:  "game_countdown_start",
			Room:  rs.game.Snapshot(),
			Count: 3,
		})

		go rl.runCountdown(msg.RoomCode)

		logf(rl.cfg, "ROOMS: countdown started in room %s", msg.RoomCode)
	}
}

// runCountdown walks the 3, 2, 1, Go sequence, then starts play. The room
// can vanish mid-countdown if everyone disconnects, so each tick revalidates.
func (rl *Relay) runCountdown(code string) {
	for _, count := range []int{2, 1, 0} {
		time.Sleep(rl.cfg.countdownTick)

		rl.mu.Lock()

		rs, ok := rl.rooms[code]
		if !ok || rs.game.Phase != grid.PhaseCountdown {
			rl.mu.Unlock()
			return
		}

		if count > 0 {
			rl.broadcast(rs, RoomEventMessage{
				Type:  "game_countdown_start",
				Room:  rs.game.Snapshot(),
				Count: count,
			})
		} else {
			_ = rs.game.StartPlaying()

			rl.broadcast(rs, RoomEventMessage{
				Type: "game_start",
				Room: rs.game.Snapshot(),
			})

			logf(rl.cfg, "ROOMS: game started in room %s", code)
		}

		rl.mu.Unlock()
	}
}

// handleMove processes "player_move". The payload carries a direction
// intent; the canonical position is re-derived server-side from the last
// authoritative position.
func (rl *Relay) handleMove(c *relayClient, msg ClientMessage) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rs, ok := rl.rooms[msg.RoomCode]
	if !ok {
		rl.sendError(c, grid.ErrRoomNotFound)
		return
	}

	rs.lastActive = time.Now()

	position, err := rs.game.MovePlayer(c.playerID, grid.Direction(msg.Direction))
	if err != nil {
		rl.sendError(c, err)
		return
	}

	rl.broadcast(rs, GameUpdateMessage{
		Type: "game_update",
		Room: rs.game.Snapshot(),
		LastMove: MoveDelta{
			Type:     "move",
			PlayerID: c.playerID,
			Position: position,
			Seq:      msg.Seq,
		},
	})
}

// handleConfirm processes "player_confirm". In a two-player room a
// successful confirm also advances the scorer's power streak, which may
// steal one of the opponent's found cells.
func (rl *Relay) handleConfirm(c *relayClient, msg ClientMessage) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rs, ok := rl.rooms[msg.RoomCode]
	if !ok {
		rl.sendError(c, grid.ErrRoomNotFound)
		return
	}

	rs.lastActive = time.Now()

	player := rs.game.PlayerByID(c.playerID)
	if player == nil {
		rl.sendError(c, grid.ErrRoomNotFound)
		return
	}
	position := player.Position

	outcome, err := rs.game.Confirm(c.playerID)
	if err != nil {
		rl.sendError(c, err)
		return
	}

	delta := MoveDelta{
		Type:        "confirm",
		PlayerID:    c.playerID,
		Position:    position,
		TargetFound: outcome == grid.ConfirmFound,
		Seq:         msg.Seq,
	}

	if outcome == grid.ConfirmFound {
		delta.Target = rs.game.CurrentTarget - 1

		if len(rs.game.Players) == 2 && rs.game.Phase == grid.PhasePlaying {
			actor := rs.game.PlayerByID(c.playerID)

			var opponent *grid.Player
			for i := range rs.game.Players {
				if rs.game.Players[i].ID != c.playerID {
					opponent = &rs.game.Players[i]
					break
				}
			}

			if stolen, ok := rs.game.IncrementPower(actor, opponent); ok {
				delta.StolenPosition = stolen
			}
		}
	}

	rl.broadcast(rs, GameUpdateMessage{
		Type:     "game_update",
		Room:     rs.game.Snapshot(),
		LastMove: delta,
	})

	if rs.game.Phase == grid.PhaseFinished {
		logf(rl.cfg, "ROOMS: game finished in room %s, winner %s", msg.RoomCode, rs.game.WinnerID)
	}
}

// disconnect detaches a socket from its room and schedules the player's
// removal after the grace period, leaving a reconnection window.
func (rl *Relay) disconnect(c *relayClient) {
	rl.mu.Lock()

	rs, ok := rl.rooms[c.roomCode]
	if ok {
		delete(rs.clients, c)
		rs.lastActive = time.Now()
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}

	playerID := c.playerID
	code := c.roomCode
	rl.mu.Unlock()

	if ok && playerID != "" {
		go rl.scheduleRemoval(code, playerID, rl.cfg.roomGrace)
	}
}

// scheduleRemoval waits for d, and if no socket with this playerID has
// re-attached, drops the player from the roster, reassigning the host in
// join order. The room itself is removed once the roster empties.
func (rl *Relay) scheduleRemoval(code, playerID string, d time.Duration) {
	time.Sleep(d)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rs, ok := rl.rooms[code]
	if !ok {
		return
	}

	for client := range rs.clients {
		if client.playerID == playerID {
			return
		}
	}

	if rs.game.PlayerByID(playerID) == nil {
		return
	}

	hostChanged := rs.game.RemovePlayer(playerID)
	rs.lastActive = time.Now()

	if len(rs.game.Players) == 0 {
		delete(rl.rooms, code)
		logf(rl.cfg, "ROOMS: removed empty room %s", code)
		return
	}

	rl.broadcast(rs, RoomEventMessage{
		Type: "player_left",
		Room: rs.game.Snapshot(),
	})

	if hostChanged {
		rl.broadcast(rs, RoomEventMessage{
			Type: "host_changed",
			Room: rs.game.Snapshot(),
		})
	}
}

// reaperLoop periodically removes rooms that have been idle longer than
// the session timeout, finished or not.
func (rl *Relay) reaperLoop() {
	ticker := time.NewTicker(rl.cfg.sessionTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-rl.cfg.sessionTimeout)

		rl.mu.Lock()
		for code, rs := range rl.rooms {
			if rs.lastActive.Before(cutoff) {
				for client := range rs.clients {
					if !client.closed {
						client.closed = true
						close(client.send)
					}
					if client.conn != nil {
						_ = client.conn.Close()
					}
					delete(rs.clients, client)
				}
				delete(rl.rooms, code)
				logf(rl.cfg, "ROOMS: reaped idle room %s", code)
			}
		}
		rl.mu.Unlock()
	}
}

// dispatch routes one decoded client intent. A malformed message affects
// only its own connection, never the room or other rooms.
func (rl *Relay) dispatch(c *relayClient, msg ClientMessage) {
	switch msg.Type {
	case "create_room":
		rl.handleCreate(c, msg)
	case "join_room":
		rl.handleJoin(c, msg)
	case "player_ready":
		rl.handleReady(c, msg)
	case "player_move":
		rl.handleMove(c, msg)
	case "player_confirm":
		rl.handleConfirm(c, msg)
	default:
		// ignore unknown types
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(rl *Relay) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &relayClient{
			conn: conn,
			send: make(chan any, 8),
		}

		go client.writePump()
		client.readPump(rl)
	}
}

func (c *relayClient) readPump(rl *Relay) {
	defer func() {
		rl.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		rl.dispatch(c, msg)
	}
}

func (c *relayClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler generates a PNG QR code linking to the room page, so a code on
// one screen can be joined from a phone.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/room/" + code

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerGridrace sets up the multiplayer routes:
//   - /ws              → relay websocket
//   - /room/:code      → HTML client for that room
//   - /room/:code/qr   → PNG QR code for that room URL
func registerGridrace(cfg *Config, mux *httprouter.Router) *Relay {
	rl := newRelay(cfg)

	mux.GET(cfg.prefix+"/ws", serveWS(rl))
	mux.GET(cfg.prefix+"/room/:code", serveRoomPage(cfg))
	mux.GET(cfg.prefix+"/room/:code/qr", qrHandler(cfg))

	return rl
}
