package engine

import "testing"

type fakeBoard struct {
	cells [BoardSize][BoardSize]Stone
}

func (b *fakeBoard) At(row, col int) Stone   { return b.cells[row][col] }
func (b *fakeBoard) Size() int               { return BoardSize }
func (b *fakeBoard) Set(row, col int, s Stone) { b.cells[row][col] = s }

func TestGomokuEngine_IsLegal(t *testing.T) {
	e := NewGomokuEngine()
	b := &fakeBoard{}
	if !e.IsLegal(b, 7, 7) {
		t.Fatal("empty center cell should be legal")
	}
	b.Set(7, 7, Black)
	if e.IsLegal(b, 7, 7) {
		t.Fatal("occupied cell should be illegal")
	}
	if e.IsLegal(b, -1, 0) || e.IsLegal(b, 0, BoardSize) {
		t.Fatal("out of range coordinates should be illegal")
	}
}

func TestGomokuEngine_HorizontalWin(t *testing.T) {
	e := NewGomokuEngine()
	b := &fakeBoard{}
	for c := 0; c < 4; c++ {
		b.Set(0, c, Black)
	}
	last := Move{Row: 0, Col: 4, Stone: Black}
	e.Apply(b, last.Row, last.Col, Black)
	if got := e.TerminalStatus(b, last); got != WinByBlack {
		t.Fatalf("status = %v, want WinByBlack", got)
	}
}

func TestGomokuEngine_DiagonalWin(t *testing.T) {
	e := NewGomokuEngine()
	b := &fakeBoard{}
	for i := 0; i < 4; i++ {
		b.Set(i, i, White)
	}
	last := Move{Row: 4, Col: 4, Stone: White}
	e.Apply(b, last.Row, last.Col, White)
	if got := e.TerminalStatus(b, last); got != WinByWhite {
		t.Fatalf("status = %v, want WinByWhite", got)
	}
}

func TestGomokuEngine_InProgress(t *testing.T) {
	e := NewGomokuEngine()
	b := &fakeBoard{}
	b.Set(7, 7, Black)
	last := Move{Row: 7, Col: 7, Stone: Black}
	if got := e.TerminalStatus(b, last); got != InProgress {
		t.Fatalf("status = %v, want InProgress", got)
	}
}

func TestGomokuEngine_Snapshot(t *testing.T) {
	e := NewGomokuEngine()
	b := &fakeBoard{}
	b.Set(0, 0, Black)
	b.Set(1, 1, White)
	snap := e.Snapshot(b)
	if snap[0][0] != int(Black) || snap[1][1] != int(White) {
		t.Fatalf("snapshot mismatch: %v", snap)
	}
}
