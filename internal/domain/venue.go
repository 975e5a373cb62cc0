package domain

import "github.com/ethereum/go-ethereum/common"

// Venue is a decentralized exchange or other liquidity source that quotes
// token prices. Only venues with Active set are considered by the engine;
// the flag is toggled by configuration, never by the engine itself.
type Venue struct {
	ID     string
	Name   string
	Router common.Address
	FeeBps float64
	Active bool
}

// ActiveVenues filters a venue list down to the active ones, preserving
// order. The result is a fresh slice.
func ActiveVenues(venues []Venue) []Venue {
	out := make([]Venue, 0, len(venues))
	for _, v := range venues {
		if v.Active {
			out = append(out, v)
		}
	}
	return out
}
