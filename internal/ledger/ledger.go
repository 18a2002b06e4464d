package ledger

import (
	"context"
)

// Member is one entry of the membership snapshot maintained by the
// external consensus ledger.
type Member struct {
	UID      int     `json:"uid"`
	Identity string  `json:"identity"`
	Stake    float64 `json:"stake"`
	// Address is optionally published on-ledger. Self-reported
	// registrations take precedence over it.
	Address string `json:"address,omitempty"`
}

// WeightEntry is one element of the weight vector submitted to the
// ledger, indexed by slot index.
type WeightEntry struct {
	UID    int     `json:"uid"`
	Weight float64 `json:"weight"`
}

// Ledger exposes the two ledger operations this service consumes. The
// ledger itself, including transaction signing, is an external
// collaborator.
type Ledger interface {
	Membership(ctx context.Context) ([]Member, error)
	SubmitWeights(ctx context.Context, entries []WeightEntry) error
}
