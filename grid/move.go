/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package grid

// Direction is a movement step on the row-major board.
type Direction int

const (
	DirUp    Direction = -10
	DirLeft  Direction = -1
	DirRight Direction = 1
	DirDown  Direction = 10
)

// ValidDirection reports whether d is one of the four movement steps.
func ValidDirection(d Direction) bool {
	switch d {
	case DirUp, DirLeft, DirRight, DirDown:
		return true
	}

	return false
}

// Move steps a 1-based position in the given direction and returns the new
// position. The board wraps: up off row 1 lands on row 10 in the same
// column, and down off row 10 on row 1. Horizontal movement wraps the
// linear numbering instead, so stepping left off column 1 lands on column
// 10 of the previous row, right off column 10 on column 1 of the next row,
// and 1 and 100 are horizontal neighbors.
//
// Positions decompose as row = (pos-1)/Columns, col = (pos-1)%Columns;
// all wrapping is derived from that rather than per-corner special cases.
func Move(position int, direction Direction) int {
	if position < 1 || position > BoardSize {
		return clamp(position)
	}

	row := (position - 1) / Columns
	col := (position - 1) % Columns

	switch direction {
	case DirUp:
		row = (row + Rows - 1) % Rows
	case DirDown:
		row = (row + 1) % Rows
	case DirLeft:
		if col == 0 {
			col = Columns - 1
			row = (row + Rows - 1) % Rows
		} else {
			col--
		}
	case DirRight:
		if col == Columns-1 {
			col = 0
			row = (row + 1) % Rows
		} else {
			col++
		}
	default:
		return position
	}

	return clamp(row*Columns + col + 1)
}

func clamp(position int) int {
	switch {
	case position < 1:
		return 1
	case position > BoardSize:
		return BoardSize
	}

	return position
}
