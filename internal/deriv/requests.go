package deriv

// Contract directions priced per tick.
const (
	ContractCall = "CALL"
	ContractPut  = "PUT"
)

// DefaultProposalSymbol is used when a tick carries no symbol of its own.
const DefaultProposalSymbol = "RDBEAR"

// TicksRequest subscribes to the live tick stream for one symbol.
type TicksRequest struct {
	Ticks string `json:"ticks"`
}

// ProposalRequest asks for a priced quote for one contract direction.
type ProposalRequest struct {
	Proposal     int     `json:"proposal"`
	Amount       float64 `json:"amount"`
	Barrier      string  `json:"barrier"`
	Basis        string  `json:"basis"`
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Symbol       string  `json:"symbol"`
}

// NewProposalRequest builds the per-tick pricing request for one direction.
func NewProposalRequest(symbol, contractType string) ProposalRequest {
	if symbol == "" {
		symbol = DefaultProposalSymbol
	}
	return ProposalRequest{
		Proposal:     1,
		Amount:       100,
		Barrier:      "+0.1",
		Basis:        "stake",
		ContractType: contractType,
		Currency:     "USD",
		Duration:     60,
		DurationUnit: "s",
		Symbol:       symbol,
	}
}

// AuthorizeRequest exchanges an API token for an authenticated session.
type AuthorizeRequest struct {
	Authorize string `json:"authorize"`
}

// BalanceRequest subscribes to balance updates for an account.
type BalanceRequest struct {
	Balance   int    `json:"balance"`
	Subscribe int    `json:"subscribe"`
	LoginID   string `json:"loginid"`
}

// NewBalanceRequest builds a continuous balance subscription.
func NewBalanceRequest(loginID string) BalanceRequest {
	return BalanceRequest{Balance: 1, Subscribe: 1, LoginID: loginID}
}

// TopUpRequest tops up a virtual-money account.
type TopUpRequest struct {
	TopupVirtual int    `json:"topup_virtual"`
	LoginID      string `json:"loginid"`
}

// NewTopUpRequest builds a virtual top-up request.
func NewTopUpRequest(loginID string) TopUpRequest {
	return TopUpRequest{TopupVirtual: 1, LoginID: loginID}
}

// BuyRequest purchases a previously quoted proposal.
type BuyRequest struct {
	Buy     string  `json:"buy"`
	Price   float64 `json:"price"`
	LoginID string  `json:"loginid"`
}

// ActiveSymbolsRequest fetches the full instrument catalogue.
type ActiveSymbolsRequest struct {
	ActiveSymbols string `json:"active_symbols"`
	ProductType   string `json:"product_type"`
}

// NewActiveSymbolsRequest builds the catalogue request.
func NewActiveSymbolsRequest() ActiveSymbolsRequest {
	return ActiveSymbolsRequest{ActiveSymbols: "full", ProductType: "basic"}
}
