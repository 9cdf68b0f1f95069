/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package grid

import (
	"fmt"
	"math/rand"
)

const (
	// MaxPlayers caps the roster of a single room.
	MaxPlayers = 10

	// WinningScore ends the game once any player's score exceeds it.
	WinningScore = 50

	// PowerThreshold is the streak length that grants a steal.
	PowerThreshold = 3
)

// Phase is the lifecycle state of a room.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhasePlaying   Phase = "playing"
	PhaseFinished  Phase = "finished"
)

// startPositions spreads joining players across the board, by join order.
var startPositions = [MaxPlayers]int{1, 100, 10, 91, 5, 96, 41, 60, 45, 56}

// Room is one multiplayer session. It exclusively owns its board and its
// roster; callers are expected to serialize access.
type Room struct {
	Code          string   `json:"code"`
	Players       []Player `json:"players"`
	Board         Board    `json:"board"`
	CurrentTarget int      `json:"currentTarget"`
	HostID        string   `json:"hostId"`
	Phase         Phase    `json:"phase"`
	WinnerID      string   `json:"winnerId,omitempty"`

	rng *rand.Rand
}

// NewRoom creates an empty lobby with a freshly shuffled board. The rng is
// retained for steal selection, so a seeded source makes outcomes
// deterministic in tests.
func NewRoom(code string, rng *rand.Rand) *Room {
	return &Room{
		Code:          code,
		Players:       make([]Player, 0, MaxPlayers),
		Board:         NewBoard(rng),
		CurrentTarget: 1,
		Phase:         PhaseLobby,
		rng:           rng,
	}
}

// AddPlayer appends a player to the roster, assigning the smallest unused
// index. The first player into an empty room becomes host. Fails once the
// room has left the lobby or the roster is full.
func (r *Room) AddPlayer(id, name, controls, color string) (*Player, error) {
	if r.Phase != PhaseLobby {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPhase, r.Phase)
	}
	if len(r.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}

	index := r.nextIndex()
	host := len(r.Players) == 0

	r.Players = append(r.Players, Player{
		ID:       id,
		Name:     name,
		Index:    index,
		Color:    color,
		Controls: controls,
		Position: startPositions[index],
		IsHost:   host,
	})

	if host {
		r.HostID = id
	}

	return &r.Players[len(r.Players)-1], nil
}

// nextIndex returns the smallest index not held by any roster member.
// Indexes are written into cell ownership markers and pick the spawn
// position, so they must stay unique across roster churn.
func (r *Room) nextIndex() int {
	var used [MaxPlayers]bool
	for i := range r.Players {
		used[r.Players[i].Index] = true
	}

	for i, taken := range used {
		if !taken {
			return i
		}
	}

	return len(r.Players)
}

// PlayerByID returns the roster entry for id, or nil.
func (r *Room) PlayerByID(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}

	return nil
}

// RemovePlayer drops a player from the roster. If the host left, the
// next-joined remaining player inherits the role; hostChanged reports
// whether that happened. Indexes of remaining players are preserved so
// cell ownership markers stay valid.
func (r *Room) RemovePlayer(id string) (hostChanged bool) {
	for i := range r.Players {
		if r.Players[i].ID != id {
			continue
		}

		wasHost := r.Players[i].IsHost
		r.Players = append(r.Players[:i], r.Players[i+1:]...)

		if wasHost && len(r.Players) > 0 {
			r.Players[0].IsHost = true
			r.HostID = r.Players[0].ID

			return true
		}
		if len(r.Players) == 0 {
			r.HostID = ""
		}

		return false
	}

	return false
}

// SetReady flags one player's readiness while in the lobby.
func (r *Room) SetReady(id string, ready bool) error {
	if r.Phase != PhaseLobby {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, r.Phase)
	}

	p := r.PlayerByID(id)
	if p == nil {
		return fmt.Errorf("%w: no player %q", ErrRoomNotFound, id)
	}

	p.IsReady = ready

	return nil
}

// CanStart reports whether the lobby may begin its countdown: at least two
// players present and every roster member ready.
func (r *Room) CanStart() bool {
	if r.Phase != PhaseLobby || len(r.Players) < 2 {
		return false
	}

	for i := range r.Players {
		if !r.Players[i].IsReady {
			return false
		}
	}

	return true
}

// StartCountdown moves lobby → countdown.
func (r *Room) StartCountdown() error {
	if r.Phase != PhaseLobby {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, r.Phase)
	}

	r.Phase = PhaseCountdown

	return nil
}

// StartPlaying moves countdown → playing.
func (r *Room) StartPlaying() error {
	if r.Phase != PhaseCountdown {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, r.Phase)
	}

	r.Phase = PhasePlaying

	return nil
}

// MovePlayer re-derives a player's position from a direction intent and the
// last authoritative position. Client-submitted absolute positions are
// never trusted.
func (r *Room) MovePlayer(id string, direction Direction) (int, error) {
	if r.Phase != PhasePlaying {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPhase, r.Phase)
	}

	p := r.PlayerByID(id)
	if p == nil {
		return 0, fmt.Errorf("%w: no player %q", ErrRoomNotFound, id)
	}
	if !ValidDirection(direction) {
		return 0, fmt.Errorf("%w: direction %d", ErrOutOfRange, int(direction))
	}

	p.Position = Move(p.Position, direction)

	return p.Position, nil
}

// ConfirmOutcome classifies the result of a confirm.
type ConfirmOutcome string

const (
	// ConfirmMiss is a confirm on a cell that is neither the current
	// target nor a stolen cell; it has no effect.
	ConfirmMiss ConfirmOutcome = "miss"

	// ConfirmFound means the cell's label matched the current target.
	ConfirmFound ConfirmOutcome = "found"

	// ConfirmSaved means the player recovered a cell an opponent stole.
	ConfirmSaved ConfirmOutcome = "saved"

	// ConfirmRecovered means the player reclaimed a cell they had stolen
	// earlier.
	ConfirmRecovered ConfirmOutcome = "recovered"
)

// Confirm applies a player's claim on the cell at their position.
//
// The current target only ever advances here, by exactly one, and only when
// the label under the player matches it. Stolen cells are converted back to
// found on confirm, bumping savedCount (opponent's steal) or stolenCount
// (the player's own earlier steal) and resetting the power streak.
func (r *Room) Confirm(id string) (ConfirmOutcome, error) {
	if r.Phase != PhasePlaying {
		return ConfirmMiss, fmt.Errorf("%w: %s", ErrInvalidPhase, r.Phase)
	}

	p := r.PlayerByID(id)
	if p == nil {
		return ConfirmMiss, fmt.Errorf("%w: no player %q", ErrRoomNotFound, id)
	}

	cell, err := r.Board.CellAt(p.Position)
	if err != nil {
		return ConfirmMiss, err
	}

	switch {
	case cell.Label == r.CurrentTarget:
		_ = r.Board.MarkFound(p.Position, p.Index)
		r.CurrentTarget++
		p.Score++
		r.checkFinished(p)

		return ConfirmFound, nil

	case cell.Marker == MarkerStolen && cell.Owner != p.Index:
		_ = r.Board.MarkFound(p.Position, p.Index)
		p.SavedCount++
		p.PowerCounter = 0

		return ConfirmSaved, nil

	case cell.Marker == MarkerStolen && cell.Owner == p.Index:
		_ = r.Board.MarkFound(p.Position, p.Index)
		p.StolenCount++
		p.PowerCounter = 0

		return ConfirmRecovered, nil
	}

	return ConfirmMiss, nil
}

// checkFinished applies both end-game conditions after a successful
// confirm. The score threshold is evaluated first: when a single confirm
// satisfies both conditions at once, the scoring player wins outright
// rather than the game ending on target exhaustion.
func (r *Room) checkFinished(scorer *Player) {
	if scorer.Score > WinningScore {
		r.Phase = PhaseFinished
		r.WinnerID = scorer.ID

		return
	}

	if r.CurrentTarget > BoardSize {
		r.Phase = PhaseFinished
		r.WinnerID = r.leaderID()
	}
}

func (r *Room) leaderID() string {
	best := -1
	id := ""

	for i := range r.Players {
		if r.Players[i].Score > best {
			best = r.Players[i].Score
			id = r.Players[i].ID
		}
	}

	return id
}

// IncrementPower advances the acting player's streak after their opponent
// failed to make progress, resetting the opponent's streak. Reaching
// PowerThreshold grants one steal: a uniformly random cell from the
// opponent's found set is converted to stolen-by the acting player. The
// stolen position and whether a steal happened are returned.
func (r *Room) IncrementPower(acting, opponent *Player) (int, bool) {
	opponent.PowerCounter = 0
	acting.PowerCounter++

	if acting.PowerCounter < PowerThreshold {
		return 0, false
	}

	acting.PowerCounter = 0

	found := r.Board.FoundPositions(opponent.Index)
	if len(found) == 0 {
		return 0, false
	}

	position := found[r.rng.Intn(len(found))]
	_ = r.Board.MarkStolen(position, acting.Index)

	return position, true
}

// Snapshot returns a deep copy of the room's observable state, safe to
// marshal and send after the caller releases its lock. Clients only ever
// see whole snapshots, never a torn mid-mutation read.
func (r *Room) Snapshot() Snapshot {
	players := make([]Player, len(r.Players))
	copy(players, r.Players)

	return Snapshot{
		Code:          r.Code,
		Players:       players,
		Board:         r.Board,
		CurrentTarget: r.CurrentTarget,
		HostID:        r.HostID,
		Phase:         r.Phase,
		WinnerID:      r.WinnerID,
	}
}

// Snapshot is the broadcast form of a room: plain data, no rng, no board
// sharing with the live room.
type Snapshot struct {
	Code          string   `json:"code"`
	Players       []Player `json:"players"`
	Board         Board    `json:"board"`
	CurrentTarget int      `json:"currentTarget"`
	HostID        string   `json:"hostId"`
	Phase         Phase    `json:"phase"`
	WinnerID      string   `json:"winnerId,omitempty"`
}
