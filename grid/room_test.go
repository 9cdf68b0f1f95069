package grid

import (
	"errors"
	"math/rand"
	"testing"
)

func newTestRoom(t *testing.T) *Room {
	t.Helper()

	return NewRoom("TESTRM", rand.New(rand.NewSource(42)))
}

func positionOf(t *testing.T, b *Board, label int) int {
	t.Helper()

	for i, cell := range b.Cells {
		if cell.Label == label {
			return i + 1
		}
	}

	t.Fatalf("label %d missing from board", label)
	return 0
}

func addPlayers(t *testing.T, r *Room, names ...string) {
	t.Helper()

	for _, name := range names {
		if _, err := r.AddPlayer("id-"+name, name, "arrows", "blue"); err != nil {
			t.Fatalf("adding %q failed: %v", name, err)
		}
	}
}

func startGame(t *testing.T, r *Room) {
	t.Helper()

	for i := range r.Players {
		if err := r.SetReady(r.Players[i].ID, true); err != nil {
			t.Fatalf("readying %q failed: %v", r.Players[i].Name, err)
		}
	}
	if !r.CanStart() {
		t.Fatalf("room cannot start with %d ready players", len(r.Players))
	}
	if err := r.StartCountdown(); err != nil {
		t.Fatalf("StartCountdown failed: %v", err)
	}
	if err := r.StartPlaying(); err != nil {
		t.Fatalf("StartPlaying failed: %v", err)
	}
}

func TestAddPlayerAssignsHostAndIndexes(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob", "carol")

	if r.HostID != "id-alice" {
		t.Fatalf("host is %q, want first-joined player", r.HostID)
	}
	if !r.Players[0].IsHost || r.Players[1].IsHost {
		t.Fatalf("host flags wrong: %v %v", r.Players[0].IsHost, r.Players[1].IsHost)
	}
	for i := range r.Players {
		if r.Players[i].Index != i {
			t.Fatalf("player %d has index %d", i, r.Players[i].Index)
		}
		if r.Players[i].Position != startPositions[i] {
			t.Fatalf("player %d starts at %d, want %d", i, r.Players[i].Position, startPositions[i])
		}
	}
}

func TestAddPlayerLimits(t *testing.T) {
	r := newTestRoom(t)

	for i := 0; i < MaxPlayers; i++ {
		if _, err := r.AddPlayer(string(rune('a'+i)), "p", "", ""); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}
	if _, err := r.AddPlayer("overflow", "p", "", ""); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("11th join returned %v, want ErrRoomFull", err)
	}
}

func TestAddPlayerOutsideLobby(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	if _, err := r.AddPlayer("late", "late", "", ""); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("join while playing returned %v, want ErrInvalidPhase", err)
	}
}

func TestCanStartRequiresWholeRoster(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")

	if r.CanStart() {
		t.Fatal("room can start with nobody ready")
	}

	_ = r.SetReady("id-alice", true)
	if r.CanStart() {
		t.Fatal("room can start with one unready player")
	}

	_ = r.SetReady("id-bob", true)
	if !r.CanStart() {
		t.Fatal("room cannot start with two ready players")
	}

	// A third, unready join blocks the start again; the transition requires
	// ALL current roster members ready.
	addPlayers(t, r, "carol")
	if r.CanStart() {
		t.Fatal("room can start with an unready third player")
	}
}

func TestCanStartRequiresTwoPlayers(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice")
	_ = r.SetReady("id-alice", true)

	if r.CanStart() {
		t.Fatal("room can start with a single player")
	}
}

func TestPhaseTransitionsAreOrdered(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")

	if err := r.StartPlaying(); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("playing from lobby returned %v, want ErrInvalidPhase", err)
	}
	if err := r.StartCountdown(); err != nil {
		t.Fatalf("countdown from lobby failed: %v", err)
	}
	if err := r.StartCountdown(); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("second countdown returned %v, want ErrInvalidPhase", err)
	}
	if err := r.SetReady("id-alice", true); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("ready during countdown returned %v, want ErrInvalidPhase", err)
	}
	if err := r.StartPlaying(); err != nil {
		t.Fatalf("playing from countdown failed: %v", err)
	}
}

func TestConfirmOnTargetAdvances(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	alice.Position = positionOf(t, &r.Board, 1)

	outcome, err := r.Confirm("id-alice")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if outcome != ConfirmFound {
		t.Fatalf("outcome = %q, want %q", outcome, ConfirmFound)
	}
	if r.CurrentTarget != 2 {
		t.Fatalf("currentTarget = %d, want 2", r.CurrentTarget)
	}
	if alice.Score != 1 {
		t.Fatalf("score = %d, want 1", alice.Score)
	}

	cell, _ := r.Board.CellAt(alice.Position)
	if cell.Marker != MarkerFound || cell.Owner != alice.Index {
		t.Fatalf("cell is %q/%d, want found by %d", cell.Marker, cell.Owner, alice.Index)
	}
}

func TestConfirmOnWrongCellHasNoEffect(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	alice.Position = positionOf(t, &r.Board, 55)

	outcome, err := r.Confirm("id-alice")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if outcome != ConfirmMiss {
		t.Fatalf("outcome = %q, want %q", outcome, ConfirmMiss)
	}
	if r.CurrentTarget != 1 || alice.Score != 0 {
		t.Fatalf("wrong-cell confirm mutated state: target %d score %d", r.CurrentTarget, alice.Score)
	}

	cell, _ := r.Board.CellAt(alice.Position)
	if cell.Marker != MarkerFree {
		t.Fatalf("wrong-cell confirm marked the cell %q", cell.Marker)
	}
}

func TestConfirmTargetOnlyAdvancesOnce(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	alice.Position = positionOf(t, &r.Board, 1)

	if outcome, _ := r.Confirm("id-alice"); outcome != ConfirmFound {
		t.Fatalf("first confirm missed")
	}
	if outcome, _ := r.Confirm("id-alice"); outcome != ConfirmMiss {
		t.Fatalf("repeated confirm on a found cell advanced the target")
	}
	if r.CurrentTarget != 2 {
		t.Fatalf("currentTarget = %d after repeat confirm, want 2", r.CurrentTarget)
	}
}

func TestConfirmSavesStolenCell(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	bob := r.PlayerByID("id-bob")

	position := positionOf(t, &r.Board, 55)
	_ = r.Board.MarkStolen(position, bob.Index)
	alice.Position = position
	alice.PowerCounter = 2

	outcome, err := r.Confirm("id-alice")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if outcome != ConfirmSaved {
		t.Fatalf("outcome = %q, want %q", outcome, ConfirmSaved)
	}
	if alice.SavedCount != 1 {
		t.Fatalf("savedCount = %d, want 1", alice.SavedCount)
	}
	if alice.PowerCounter != 0 {
		t.Fatalf("powerCounter = %d after save, want 0", alice.PowerCounter)
	}

	cell, _ := r.Board.CellAt(position)
	if cell.Marker != MarkerFound || cell.Owner != alice.Index {
		t.Fatalf("saved cell is %q/%d, want found by %d", cell.Marker, cell.Owner, alice.Index)
	}
}

func TestConfirmRecoversOwnSteal(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")

	position := positionOf(t, &r.Board, 55)
	_ = r.Board.MarkStolen(position, alice.Index)
	alice.Position = position
	alice.PowerCounter = 1

	outcome, err := r.Confirm("id-alice")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if outcome != ConfirmRecovered {
		t.Fatalf("outcome = %q, want %q", outcome, ConfirmRecovered)
	}

	// Saves and recoveries track different counters; they must not collapse.
	if alice.StolenCount != 1 || alice.SavedCount != 0 {
		t.Fatalf("stolen/saved = %d/%d, want 1/0", alice.StolenCount, alice.SavedCount)
	}
	if alice.PowerCounter != 0 {
		t.Fatalf("powerCounter = %d after recovery, want 0", alice.PowerCounter)
	}
}

func TestConfirmOutsidePlaying(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")

	if _, err := r.Confirm("id-alice"); !errors.Is(err, ErrInvalidPhase) {
		t.Fatalf("confirm in lobby returned %v, want ErrInvalidPhase", err)
	}
}

func TestMovePlayerValidatesDirection(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	alice.Position = 55

	position, err := r.MovePlayer("id-alice", DirRight)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if position != 56 || alice.Position != 56 {
		t.Fatalf("position = %d/%d, want 56", position, alice.Position)
	}

	if _, err := r.MovePlayer("id-alice", Direction(7)); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("invalid direction returned %v, want ErrOutOfRange", err)
	}
	if alice.Position != 56 {
		t.Fatalf("invalid direction moved the player to %d", alice.Position)
	}
}

func TestFinishOnTargetExhaustion(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	bob := r.PlayerByID("id-bob")
	alice.Score = 10
	bob.Score = 4

	r.CurrentTarget = BoardSize
	alice.Position = positionOf(t, &r.Board, BoardSize)

	if outcome, _ := r.Confirm("id-alice"); outcome != ConfirmFound {
		t.Fatal("final confirm missed")
	}
	if r.Phase != PhaseFinished {
		t.Fatalf("phase = %q after target 100, want finished", r.Phase)
	}
	if r.WinnerID != "id-alice" {
		t.Fatalf("winner = %q, want the leader", r.WinnerID)
	}
}

func TestFinishOnScoreThreshold(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	alice.Score = WinningScore
	alice.Position = positionOf(t, &r.Board, 1)

	if outcome, _ := r.Confirm("id-alice"); outcome != ConfirmFound {
		t.Fatal("confirm missed")
	}
	if r.Phase != PhaseFinished {
		t.Fatalf("phase = %q after score %d, want finished", r.Phase, alice.Score)
	}
	if r.WinnerID != "id-alice" {
		t.Fatalf("winner = %q, want id-alice", r.WinnerID)
	}
}

func TestFinishTieBreakPrefersScore(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	// One confirm satisfies both end conditions at once: bob exhausts the
	// targets while crossing the score threshold. The score winner takes it.
	bob := r.PlayerByID("id-bob")
	bob.Score = WinningScore
	r.PlayerByID("id-alice").Score = WinningScore - 10

	r.CurrentTarget = BoardSize
	bob.Position = positionOf(t, &r.Board, BoardSize)

	if outcome, _ := r.Confirm("id-bob"); outcome != ConfirmFound {
		t.Fatal("confirm missed")
	}
	if r.Phase != PhaseFinished || r.WinnerID != "id-bob" {
		t.Fatalf("phase %q winner %q, want finished/id-bob", r.Phase, r.WinnerID)
	}
}

func TestJoinAfterLeaveKeepsIndexesUnique(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob", "carol")

	r.RemovePlayer("id-bob")
	addPlayers(t, r, "dave")

	seen := make(map[int]bool)
	for i := range r.Players {
		if seen[r.Players[i].Index] {
			t.Fatalf("index %d held by more than one player", r.Players[i].Index)
		}
		seen[r.Players[i].Index] = true
	}

	// The vacated slot is reused, so the new player's ownership markers and
	// spawn cell cannot collide with a remaining player's.
	dave := r.PlayerByID("id-dave")
	if dave.Index != 1 {
		t.Fatalf("dave took index %d, want the vacated 1", dave.Index)
	}
	if dave.Position != startPositions[1] {
		t.Fatalf("dave spawned at %d, want %d", dave.Position, startPositions[1])
	}
	carol := r.PlayerByID("id-carol")
	if carol.Index != 2 || carol.Position == dave.Position {
		t.Fatalf("carol index/position %d/%d after dave joined", carol.Index, carol.Position)
	}
}

func TestJoinAfterLeaveKeepsFoundSetsDistinct(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob", "carol")

	_ = r.Board.MarkFound(25, r.PlayerByID("id-carol").Index)

	r.RemovePlayer("id-bob")
	addPlayers(t, r, "dave")

	dave := r.PlayerByID("id-dave")
	if got := r.Board.FoundPositions(dave.Index); len(got) != 0 {
		t.Fatalf("new player inherited found cells %v", got)
	}
	carol := r.PlayerByID("id-carol")
	if got := r.Board.FoundPositions(carol.Index); len(got) != 1 || got[0] != 25 {
		t.Fatalf("carol's found set = %v, want [25]", got)
	}
}

func TestJoinAfterHostLeftDoesNotGrabHost(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")

	r.RemovePlayer("id-alice")
	addPlayers(t, r, "carol")

	carol := r.PlayerByID("id-carol")
	if carol.Index != 0 {
		t.Fatalf("carol took index %d, want the vacated 0", carol.Index)
	}
	if carol.IsHost || r.HostID != "id-bob" {
		t.Fatalf("host is %q with carol host=%v, want id-bob", r.HostID, carol.IsHost)
	}
}

func TestHostReassignedInJoinOrder(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob", "carol")

	hostChanged := r.RemovePlayer("id-alice")
	if !hostChanged {
		t.Fatal("removing the host did not report a host change")
	}
	if r.HostID != "id-bob" || !r.PlayerByID("id-bob").IsHost {
		t.Fatalf("host is %q, want next-joined player id-bob", r.HostID)
	}

	if hostChanged := r.RemovePlayer("id-carol"); hostChanged {
		t.Fatal("removing a non-host reported a host change")
	}
	if r.HostID != "id-bob" {
		t.Fatalf("host is %q after non-host left, want id-bob", r.HostID)
	}
}

func TestRemoveLastPlayerClearsHost(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice")

	r.RemovePlayer("id-alice")
	if len(r.Players) != 0 || r.HostID != "" {
		t.Fatalf("roster %d host %q after last player left", len(r.Players), r.HostID)
	}
}

func TestIncrementPowerGrantsStealAtThreshold(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	bob := r.PlayerByID("id-bob")

	for _, position := range []int{20, 40, 60} {
		_ = r.Board.MarkFound(position, bob.Index)
	}
	bob.PowerCounter = 2

	for i := 0; i < PowerThreshold-1; i++ {
		if stolen, ok := r.IncrementPower(alice, bob); ok || stolen != 0 {
			t.Fatalf("streak %d already granted a steal", i+1)
		}
		if bob.PowerCounter != 0 {
			t.Fatalf("opponent counter = %d, want reset to 0", bob.PowerCounter)
		}
	}

	stolen, ok := r.IncrementPower(alice, bob)
	if !ok {
		t.Fatal("streak of 3 granted no steal")
	}
	if alice.PowerCounter != 0 {
		t.Fatalf("counter = %d after steal, want 0", alice.PowerCounter)
	}

	cell, _ := r.Board.CellAt(stolen)
	if cell.Marker != MarkerStolen || cell.Owner != alice.Index {
		t.Fatalf("stolen cell is %q/%d, want stolen by %d", cell.Marker, cell.Owner, alice.Index)
	}
	if got := len(r.Board.FoundPositions(bob.Index)); got != 2 {
		t.Fatalf("opponent keeps %d found cells, want 2", got)
	}
}

func TestIncrementPowerWithoutOpponentCells(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")
	startGame(t, r)

	alice := r.PlayerByID("id-alice")
	bob := r.PlayerByID("id-bob")

	var stolen int
	var ok bool
	for i := 0; i < PowerThreshold; i++ {
		stolen, ok = r.IncrementPower(alice, bob)
	}

	if ok || stolen != 0 {
		t.Fatalf("steal granted with zero opponent found cells: %d", stolen)
	}
	for _, cell := range r.Board.Cells {
		if cell.Marker != MarkerFree {
			t.Fatalf("board mutated: cell with %q marker", cell.Marker)
		}
	}
}

func TestIncrementPowerDeterministicWithSeededSource(t *testing.T) {
	pick := func(seed int64) int {
		r := NewRoom("SEEDED", rand.New(rand.NewSource(seed)))
		addPlayers(t, r, "alice", "bob")
		startGame(t, r)

		alice := r.PlayerByID("id-alice")
		bob := r.PlayerByID("id-bob")
		for _, position := range []int{10, 30, 50, 70} {
			_ = r.Board.MarkFound(position, bob.Index)
		}
		alice.PowerCounter = PowerThreshold - 1

		stolen, ok := r.IncrementPower(alice, bob)
		if !ok {
			t.Fatal("no steal granted")
		}
		return stolen
	}

	first := pick(7)
	second := pick(7)
	if first != second {
		t.Fatalf("same seed stole different cells: %d vs %d", first, second)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	r := newTestRoom(t)
	addPlayers(t, r, "alice", "bob")

	snapshot := r.Snapshot()

	r.Players[0].Score = 99
	_ = r.Board.MarkFound(1, 0)

	if snapshot.Players[0].Score == 99 {
		t.Fatal("snapshot shares player storage with the live room")
	}
	if snapshot.Board.Cells[0].Marker == MarkerFound {
		t.Fatal("snapshot shares board storage with the live room")
	}
}
