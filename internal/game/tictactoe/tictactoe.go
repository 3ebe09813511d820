// Package tictactoe binds the Grebe session to the 3x3 sample game.
//
// Moves travel as "row,column" with 1-based coordinates; the state travels
// as three rows of '.', 'X' or 'O' separated by whitespace.
package tictactoe

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/grebe/internal/game"
)

const Size = 3

const (
	Empty byte = '.'
	X     byte = 'X'
	O     byte = 'O'
)

const (
	ResultP1Win = "1-0"
	ResultP2Win = "0-1"
	ResultDraw  = "1/2-1/2"

	ReasonThreeInARow  = "Three in a row"
	ReasonOutOfSquares = "Out of squares"
)

var (
	ErrInvalidMove  = errors.New("tictactoe: invalid move")
	ErrInvalidCell  = errors.New("tictactoe: invalid cell")
	ErrCellOccupied = errors.New("tictactoe: cell is already occupied")
	ErrInvalidBoard = errors.New("tictactoe: invalid board")
	ErrGameFinished = errors.New("tictactoe: game is already finished")
)

var winLines = [][3]Cell{
	{{1, 1}, {1, 2}, {1, 3}},
	{{2, 1}, {2, 2}, {2, 3}},
	{{3, 1}, {3, 2}, {3, 3}},
	{{1, 1}, {2, 1}, {3, 1}},
	{{1, 2}, {2, 2}, {3, 2}},
	{{1, 3}, {2, 3}, {3, 3}},
	{{1, 1}, {2, 2}, {3, 3}},
	{{1, 3}, {2, 2}, {3, 1}},
}

// Cell is a 1-based board coordinate.
type Cell struct {
	Row int
	Col int
}

func (c Cell) Valid() bool {
	return c.Row >= 1 && c.Row <= Size && c.Col >= 1 && c.Col <= Size
}

func (c Cell) String() string {
	return strconv.Itoa(c.Row) + "," + strconv.Itoa(c.Col)
}

// Board is a 3x3 grid indexed [row-1][col-1].
type Board [Size][Size]byte

func NewBoard() Board {
	var b Board
	for r := range b {
		for c := range b[r] {
			b[r][c] = Empty
		}
	}
	return b
}

func (b Board) At(c Cell) byte {
	return b[c.Row-1][c.Col-1]
}

// Apply places mark at c.
func (b *Board) Apply(c Cell, mark byte) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCell, c)
	}
	if mark != X && mark != O {
		return fmt.Errorf("%w: mark %q", ErrInvalidMove, mark)
	}
	if _, _, done := b.Result(); done {
		return ErrGameFinished
	}
	if b.At(c) != Empty {
		return fmt.Errorf("%w: %s", ErrCellOccupied, c)
	}
	b[c.Row-1][c.Col-1] = mark
	return nil
}

// OpenCells lists empty cells in row-major order.
func (b Board) OpenCells() []Cell {
	out := make([]Cell, 0, Size*Size)
	for r := 1; r <= Size; r++ {
		for c := 1; c <= Size; c++ {
			cell := Cell{Row: r, Col: c}
			if b.At(cell) == Empty {
				out = append(out, cell)
			}
		}
	}
	return out
}

// ToMove returns the mark of the side to play: X moves first.
func (b Board) ToMove() byte {
	xs, os := b.counts()
	if xs > os {
		return O
	}
	return X
}

// Result reports the arbiter's verdict for the position, if any.
func (b Board) Result() (result, reason string, done bool) {
	switch {
	case b.hasLine(X):
		return ResultP1Win, ReasonThreeInARow, true
	case b.hasLine(O):
		return ResultP2Win, ReasonThreeInARow, true
	case len(b.OpenCells()) == 0:
		return ResultDraw, ReasonOutOfSquares, true
	}
	return "", "", false
}

func (b Board) String() string {
	rows := make([]string, Size)
	for r := range b {
		rows[r] = string(b[r][:])
	}
	return strings.Join(rows, "\n")
}

func (b Board) hasLine(mark byte) bool {
	for _, line := range winLines {
		if b.At(line[0]) == mark && b.At(line[1]) == mark && b.At(line[2]) == mark {
			return true
		}
	}
	return false
}

func (b Board) counts() (xs, os int) {
	for r := range b {
		for c := range b[r] {
			switch b[r][c] {
			case X:
				xs++
			case O:
				os++
			}
		}
	}
	return xs, os
}

// MarkFor returns the mark played by a seat.
func MarkFor(p1 bool) byte {
	if p1 {
		return X
	}
	return O
}

// Adapter is the game.Adapter for tic-tac-toe.
type Adapter struct{}

var _ game.Adapter[Cell, Board] = Adapter{}

func (Adapter) FormatMove(move Cell) (string, error) {
	if !move.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidCell, move)
	}
	return move.String(), nil
}

func (Adapter) ParseMove(raw string) (Cell, error) {
	if raw == "" {
		return Cell{}, nil
	}
	rs, cs, ok := strings.Cut(raw, ",")
	if !ok {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidMove, raw)
	}
	r, err := strconv.Atoi(strings.TrimSpace(rs))
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidMove, raw)
	}
	c, err := strconv.Atoi(strings.TrimSpace(cs))
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidMove, raw)
	}
	return Cell{Row: r, Col: c}, nil
}

func (Adapter) ParseState(raw string) (Board, error) {
	rows := strings.Fields(raw)
	if len(rows) != Size {
		return Board{}, fmt.Errorf("%w: has %d rows", ErrInvalidBoard, len(rows))
	}
	var b Board
	for r, row := range rows {
		if len(row) != Size {
			return Board{}, fmt.Errorf("%w: row %d has incorrect length", ErrInvalidBoard, r+1)
		}
		for c := 0; c < Size; c++ {
			switch row[c] {
			case Empty, X, O:
				b[r][c] = row[c]
			default:
				return Board{}, fmt.Errorf("%w: invalid element %q", ErrInvalidBoard, row[c])
			}
		}
	}
	xs, os := b.counts()
	if xs < os || xs > os+1 {
		return Board{}, fmt.Errorf("%w: incorrect number of Xs and Os", ErrInvalidBoard)
	}
	return b, nil
}
