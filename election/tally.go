package election

import "election-ledger/models"

// tieInclusiveWinners returns every candidate id holding the maximum vote count.
// The roster is kept in ascending id order, so the result is too.
func tieInclusiveWinners(candidates []models.Candidate) []uint64 {
	winners := make([]uint64, 0, 1)
	var maxVotes uint64
	for _, c := range candidates {
		switch {
		case c.VoteCount > maxVotes:
			maxVotes = c.VoteCount
			winners = append(winners[:0], c.ID)
		case c.VoteCount == maxVotes:
			winners = append(winners, c.ID)
		}
	}
	return winners
}
