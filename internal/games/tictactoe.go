package games

const boardSize = 9

// Mark is the content of a board cell
type Mark string

const (
	Empty Mark = ""
	X     Mark = "X"
	O     Mark = "O"
)

// Board is a 3x3 grid in row-major order
type Board [boardSize]Mark

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns "X" or "O" for a completed line, "tie" for a full board
// without one and "" while the game is still open.
func Winner(b Board) string {
	for _, l := range lines {
		m := b[l[0]]
		if m != Empty && b[l[1]] == m && b[l[2]] == m {
			return string(m)
		}
	}
	for _, c := range b {
		if c == Empty {
			return ""
		}
	}
	return Tie
}
