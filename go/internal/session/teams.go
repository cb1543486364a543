package session

import "math/rand/v2"

// DefaultTeams are the labels used when none are configured
var DefaultTeams = [2]Team{"Red", "Blue"}

// CoinFlip returns true or false with equal probability
type CoinFlip func() bool

func fairCoin() bool {
	return rand.IntN(2) == 0
}

// assignTeams picks one of the two orderings of labels with a single coin flip
// and returns the label for the first and second peer.
func assignTeams(labels [2]Team, flip CoinFlip) (Team, Team) {
	if flip() {
		return labels[1], labels[0]
	}
	return labels[0], labels[1]
}
