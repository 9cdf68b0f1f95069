// Package client implements the browser-side half of the relay protocol as
// a reusable Go client: moves are previewed optimistically with the same
// movement rule the server uses, then reconciled against the server's
// authoritative broadcasts.
package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Seednode/gridrace/grid"
)

// Status is the connection state surfaced to the presentation layer.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
)

// Presenter is the presentation surface the reconciler drives: a DOM-like
// collaborator with cells addressable by position. Implementations must not
// block; calls arrive sequentially from the read loop.
type Presenter interface {
	// CursorMoved fires for the local player's own cursor, both for
	// optimistic previews and for server corrections.
	CursorMoved(from, to int)

	// TargetFound fires exactly once per found target, and only ever from
	// a confirm-tagged delta.
	TargetFound(position, playerIndex int)

	// RoomUpdated delivers each authoritative room snapshot.
	RoomUpdated(room grid.Snapshot)

	// Rejected delivers server-side validation errors for this client's
	// own intents.
	Rejected(message string)

	// StatusChanged reports transport state. StatusDisconnected is
	// terminal but not fatal; the caller decides what to do next.
	StatusChanged(status Status)
}

// Config holds the dial parameters. Zero durations fall back to the named
// defaults below.
type Config struct {
	URL         string        // websocket endpoint, e.g. ws://host:8080/ws
	DialTimeout time.Duration // deadline for connection establishment
	RetryDelay  time.Duration // wait before the single reconnection attempt
}

const (
	defaultDialTimeout = 10 * time.Second
	defaultRetryDelay  = 2 * time.Second
)

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

// intent mirrors the server's client message envelope.
type intent struct {
	Type      string `json:"type"`
	RoomCode  string `json:"roomCode,omitempty"`
	PlayerID  string `json:"playerId,omitempty"`
	HostName  string `json:"hostName,omitempty"`
	Name      string `json:"name,omitempty"`
	Controls  string `json:"controls,omitempty"`
	Color     string `json:"color,omitempty"`
	IsReady   bool   `json:"isReady,omitempty"`
	Direction int    `json:"direction,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
}

type moveDelta struct {
	Type           string `json:"type"`
	PlayerID       string `json:"playerId"`
	Position       int    `json:"position"`
	Target         int    `json:"target"`
	TargetFound    bool   `json:"targetFound"`
	StolenPosition int    `json:"stolenPosition"`
	Seq            uint64 `json:"seq"`
}

type serverMessage struct {
	Type     string         `json:"type"`
	RoomCode string         `json:"roomCode"`
	PlayerID string         `json:"playerId"`
	Message  string         `json:"message"`
	Count    int            `json:"count"`
	Room     *grid.Snapshot `json:"room"`
	LastMove *moveDelta     `json:"lastMove"`
}

// Reconciler is a connected relay client. Intents are fire-and-forget; the
// UI stays responsive between an emit and the corresponding broadcast.
type Reconciler struct {
	cfg       Config
	presenter Presenter

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	playerID  string
	roomCode  string
	name      string
	predicted int
	seq       uint64
	applied   map[int]bool
	room      grid.Snapshot
}

// Dial connects to the relay within the configured deadline and starts the
// read loop. Dial failures are transport errors.
func Dial(cfg Config, presenter Presenter) (*Reconciler, error) {
	cfg = cfg.withDefaults()

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.DialTimeout,
	}

	conn, _, err := dialer.Dial(cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", grid.ErrTransport, cfg.URL, err)
	}

	rc := &Reconciler{
		cfg:       cfg,
		presenter: presenter,
		conn:      conn,
		applied:   make(map[int]bool),
	}

	presenter.StatusChanged(StatusConnected)

	go rc.readLoop()

	return rc, nil
}

// CreateRoom asks the relay for a fresh room with this client as host.
func (rc *Reconciler) CreateRoom(hostName, controls, color string) error {
	rc.mu.Lock()
	rc.name = hostName
	rc.mu.Unlock()

	return rc.send(intent{
		Type:     "create_room",
		HostName: hostName,
		Controls: controls,
		Color:    color,
	})
}

// JoinRoom joins an existing room by code.
func (rc *Reconciler) JoinRoom(code, name, controls, color string) error {
	rc.mu.Lock()
	rc.name = name
	rc.mu.Unlock()

	return rc.send(intent{
		Type:     "join_room",
		RoomCode: code,
		Name:     name,
		Controls: controls,
		Color:    color,
	})
}

// Ready flags this player's readiness in the lobby.
func (rc *Reconciler) Ready(ready bool) error {
	rc.mu.Lock()
	msg := intent{
		Type:     "player_ready",
		RoomCode: rc.roomCode,
		PlayerID: rc.playerID,
		IsReady:  ready,
	}
	rc.mu.Unlock()

	return rc.send(msg)
}

// Move previews the step locally with the shared movement rule, notifies
// the presenter immediately, and emits the direction intent. The intent
// carries a sequence number so the server echo can be matched up.
func (rc *Reconciler) Move(direction grid.Direction) error {
	rc.mu.Lock()

	from := rc.predicted
	rc.predicted = grid.Move(rc.predicted, direction)
	to := rc.predicted
	rc.seq++

	msg := intent{
		Type:      "player_move",
		RoomCode:  rc.roomCode,
		PlayerID:  rc.playerID,
		Direction: int(direction),
		Seq:       rc.seq,
	}
	rc.mu.Unlock()

	rc.presenter.CursorMoved(from, to)

	return rc.send(msg)
}

// Confirm emits a claim on the predicted cell. Whether the target was
// found only the server decides; the result arrives as a confirm delta.
func (rc *Reconciler) Confirm() error {
	rc.mu.Lock()
	rc.seq++
	msg := intent{
		Type:     "player_confirm",
		RoomCode: rc.roomCode,
		PlayerID: rc.playerID,
		Seq:      rc.seq,
	}
	rc.mu.Unlock()

	return rc.send(msg)
}

// Close shuts the connection down deliberately, without a reconnect.
func (rc *Reconciler) Close() error {
	rc.mu.Lock()
	rc.closed = true
	conn := rc.conn
	rc.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}

	return nil
}

// Room returns the last authoritative snapshot.
func (rc *Reconciler) Room() grid.Snapshot {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.room
}

// PlayerID returns the server-assigned player id, once joined.
func (rc *Reconciler) PlayerID() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.playerID
}

// RoomCode returns the joined room's code, once joined.
func (rc *Reconciler) RoomCode() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.roomCode
}

// PredictedPosition returns the optimistic local position.
func (rc *Reconciler) PredictedPosition() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.predicted
}

func (rc *Reconciler) send(msg intent) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.conn == nil {
		return fmt.Errorf("%w: not connected", grid.ErrTransport)
	}

	if err := rc.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", grid.ErrTransport, err)
	}

	return nil
}

// readLoop handles server events sequentially. On a transport error it
// makes one bounded reconnection attempt after a fixed delay; exhausting
// that surfaces StatusDisconnected and returns.
func (rc *Reconciler) readLoop() {
	for {
		rc.mu.Lock()
		conn := rc.conn
		rc.mu.Unlock()

		var msg serverMessage
		err := conn.ReadJSON(&msg)
		if err == nil {
			rc.handle(msg)
			continue
		}

		rc.mu.Lock()
		closed := rc.closed
		rc.mu.Unlock()

		if closed || !rc.reconnect() {
			rc.presenter.StatusChanged(StatusDisconnected)
			return
		}
	}
}

// reconnect redials once after the retry delay and re-attaches to the old
// room via the rejoin path, keeping the same player id.
func (rc *Reconciler) reconnect() bool {
	rc.presenter.StatusChanged(StatusReconnecting)
	time.Sleep(rc.cfg.RetryDelay)

	dialer := websocket.Dialer{
		HandshakeTimeout: rc.cfg.DialTimeout,
	}

	conn, _, err := dialer.Dial(rc.cfg.URL, nil)
	if err != nil {
		return false
	}

	rc.mu.Lock()
	rc.conn = conn
	code := rc.roomCode
	playerID := rc.playerID
	name := rc.name
	rc.mu.Unlock()

	rc.presenter.StatusChanged(StatusConnected)

	if code != "" && playerID != "" {
		_ = rc.send(intent{
			Type:     "join_room",
			RoomCode: code,
			PlayerID: playerID,
			Name:     name,
		})
	}

	return true
}

func (rc *Reconciler) handle(msg serverMessage) {
	switch msg.Type {
	case "room_created", "room_joined":
		rc.mu.Lock()
		rc.roomCode = msg.RoomCode
		rc.playerID = msg.PlayerID
		rc.mu.Unlock()

		if msg.Room != nil {
			rc.reconcile(*msg.Room)
		}

	case "player_joined", "player_left", "host_changed", "player_update",
		"game_countdown_start", "game_start":
		if msg.Room != nil {
			rc.reconcile(*msg.Room)
		}

	case "game_update":
		// A found-target effect fires only for confirm-tagged deltas, and
		// only once per target value no matter how many later snapshots
		// repeat it.
		if msg.LastMove != nil && msg.LastMove.Type == "confirm" && msg.LastMove.TargetFound {
			rc.mu.Lock()
			seen := rc.applied[msg.LastMove.Target]
			if !seen {
				rc.applied[msg.LastMove.Target] = true
			}
			index := playerIndex(msg.Room, msg.LastMove.PlayerID)
			rc.mu.Unlock()

			if !seen {
				rc.presenter.TargetFound(msg.LastMove.Position, index)
			}
		}

		if msg.Room != nil {
			rc.reconcile(*msg.Room)
		}

	case "error":
		rc.presenter.Rejected(msg.Message)
	}
}

// reconcile applies an authoritative snapshot: the server's position wins
// over the local prediction, and scores are always taken from the server.
func (rc *Reconciler) reconcile(room grid.Snapshot) {
	rc.mu.Lock()

	rc.room = room

	var from, to int
	corrected := false

	for i := range room.Players {
		if room.Players[i].ID != rc.playerID {
			continue
		}
		if room.Players[i].Position != rc.predicted {
			from = rc.predicted
			to = room.Players[i].Position
			rc.predicted = to
			corrected = true
		}
		break
	}

	rc.mu.Unlock()

	if corrected {
		rc.presenter.CursorMoved(from, to)
	}

	rc.presenter.RoomUpdated(room)
}

func playerIndex(room *grid.Snapshot, playerID string) int {
	if room == nil {
		return -1
	}

	for i := range room.Players {
		if room.Players[i].ID == playerID {
			return room.Players[i].Index
		}
	}

	return -1
}
