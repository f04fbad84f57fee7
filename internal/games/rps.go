package games

// Choice is a hand in rock-paper-scissors
type Choice string

const (
	Rock     Choice = "rock"
	Paper    Choice = "paper"
	Scissors Choice = "scissors"
)

func (c Choice) Valid() bool {
	_, ok := beats[c]
	return ok
}

// beats maps each choice to the one it defeats
var beats = map[Choice]Choice{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// Outcome of a single round, seen from the first choice
type Outcome int

const (
	Draw Outcome = iota
	FirstWins
	SecondWins
)

func (o Outcome) String() string {
	switch o {
	case FirstWins:
		return "first"
	case SecondWins:
		return "second"
	}
	return Tie
}

// Resolve decides a round. Both players evaluate the same table, so both
// arrive at the same outcome without a referee.
func Resolve(first, second Choice) Outcome {
	switch {
	case first == second:
		return Draw
	case beats[first] == second:
		return FirstWins
	default:
		return SecondWins
	}
}
