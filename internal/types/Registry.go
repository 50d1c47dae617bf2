package types

import "github.com/ethereum/go-ethereum/common"

type DlpStatus string

const (
	DlpStatusRegistered   DlpStatus = "REGISTERED"
	DlpStatusEligible     DlpStatus = "ELIGIBLE"
	DlpStatusDeregistered DlpStatus = "DEREGISTERED"
)

// DlpInfo is the registry's view of a DLP. Only eligibility and the token/position
// bindings are read by the reward core.
type DlpInfo struct {
	ID              DlpID          `json:"id"`
	Name            string         `json:"name"`
	Status          DlpStatus      `json:"status"`
	TokenAddress    common.Address `json:"token_address"`
	LpPositionID    uint64         `json:"lp_position_id"`
	TreasuryAddress common.Address `json:"treasury_address"`
}

func (d DlpInfo) IsEligible() bool {
	return d.Status == DlpStatusEligible
}
