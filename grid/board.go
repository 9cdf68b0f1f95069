/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package grid

import (
	"fmt"
	"math/rand"
)

const (
	// BoardSize is the number of cells on the board.
	BoardSize = 100

	// Rows and Columns describe the board's row-major layout. Cells are
	// numbered 1..BoardSize, so cell 1 is the top-left corner and cell
	// BoardSize the bottom-right.
	Rows    = 10
	Columns = 10
)

// Marker is the claim state of a single cell.
type Marker string

const (
	MarkerFree   Marker = "free"
	MarkerFound  Marker = "found"
	MarkerStolen Marker = "stolen"
)

// Cell holds one shuffled label and its claim state. Owner is the index of
// the claiming player, or -1 while the cell is free.
type Cell struct {
	Label  int    `json:"label"`
	Marker Marker `json:"marker"`
	Owner  int    `json:"owner"`
}

// Board is an ordered sequence of BoardSize cells whose labels form a
// permutation of 1..BoardSize.
type Board struct {
	Cells [BoardSize]Cell `json:"cells"`
}

// NewBoard shuffles labels 1..BoardSize into the cells using rng, so tests
// can pass a seeded source for reproducible layouts.
func NewBoard(rng *rand.Rand) Board {
	var b Board

	for i, label := range rng.Perm(BoardSize) {
		b.Cells[i] = Cell{
			Label:  label + 1,
			Marker: MarkerFree,
			Owner:  -1,
		}
	}

	return b
}

// CellAt returns the cell at the given 1-based position.
func (b *Board) CellAt(position int) (Cell, error) {
	if position < 1 || position > BoardSize {
		return Cell{}, fmt.Errorf("%w: %d", ErrOutOfRange, position)
	}

	return b.Cells[position-1], nil
}

// MarkFound claims the cell at position for the given player index.
// Reapplying the same marker is a no-op.
func (b *Board) MarkFound(position, playerIndex int) error {
	if position < 1 || position > BoardSize {
		return fmt.Errorf("%w: %d", ErrOutOfRange, position)
	}

	b.Cells[position-1].Marker = MarkerFound
	b.Cells[position-1].Owner = playerIndex

	return nil
}

// MarkStolen reassigns the cell at position to the stealing player's index.
func (b *Board) MarkStolen(position, playerIndex int) error {
	if position < 1 || position > BoardSize {
		return fmt.Errorf("%w: %d", ErrOutOfRange, position)
	}

	b.Cells[position-1].Marker = MarkerStolen
	b.Cells[position-1].Owner = playerIndex

	return nil
}

// ClearMarker returns the cell at position to the free state.
func (b *Board) ClearMarker(position int) error {
	if position < 1 || position > BoardSize {
		return fmt.Errorf("%w: %d", ErrOutOfRange, position)
	}

	b.Cells[position-1].Marker = MarkerFree
	b.Cells[position-1].Owner = -1

	return nil
}

// FoundPositions lists the 1-based positions currently found by the given
// player index, in board order.
func (b *Board) FoundPositions(playerIndex int) []int {
	positions := make([]int, 0, BoardSize)

	for i, cell := range b.Cells {
		if cell.Marker == MarkerFound && cell.Owner == playerIndex {
			positions = append(positions, i+1)
		}
	}

	return positions
}
