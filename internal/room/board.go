package room

import "github.com/gomokusrv/arbiter/internal/engine"

// BoardMirror is the server's advisory 15x15 cell grid (spec §3 "Board
// mirror"). It satisfies engine.Board so the rule engine can read it
// directly, and exposes Set so engine.Apply can mutate it in place.
type BoardMirror struct {
	cells [engine.BoardSize][engine.BoardSize]engine.Stone
	count int
}

// NewBoardMirror returns an empty 15x15 board.
func NewBoardMirror() *BoardMirror {
	return &BoardMirror{}
}

func (b *BoardMirror) At(row, col int) engine.Stone { return b.cells[row][col] }
func (b *BoardMirror) Size() int                    { return engine.BoardSize }

// Set places a stone, maintaining the non-empty cell count used to enforce
// invariant I2 (spec §8: "sum of committed moves equals the count of
// non-Empty cells").
func (b *BoardMirror) Set(row, col int, s engine.Stone) {
	if b.cells[row][col] == engine.Empty && s != engine.Empty {
		b.count++
	} else if b.cells[row][col] != engine.Empty && s == engine.Empty {
		b.count--
	}
	b.cells[row][col] = s
}

// StoneCount returns the number of non-empty cells.
func (b *BoardMirror) StoneCount() int { return b.count }
