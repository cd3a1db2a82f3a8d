package deriv

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators for inbound frames.
const (
	MsgTypeTick          = "tick"
	MsgTypeProposal      = "proposal"
	MsgTypeTransaction   = "transaction"
	MsgTypeAuthorize     = "authorize"
	MsgTypeBalance       = "balance"
	MsgTypeBuy           = "buy"
	MsgTypeProfitTable   = "profit_table"
	MsgTypeActiveSymbols = "active_symbols"
)

// Envelope is one inbound frame from the Deriv API. Payload fields are
// populated according to MsgType; Raw holds the complete frame for flows
// that rebroadcast the response verbatim.
type Envelope struct {
	MsgType       string          `json:"msg_type"`
	Error         *APIError       `json:"error,omitempty"`
	EchoReq       *EchoRequest    `json:"echo_req,omitempty"`
	Tick          json.RawMessage `json:"tick,omitempty"`
	Proposal      *Proposal       `json:"proposal,omitempty"`
	Authorize     *Authorize      `json:"authorize,omitempty"`
	Balance       json.RawMessage `json:"balance,omitempty"`
	Buy           json.RawMessage `json:"buy,omitempty"`
	ProfitTable   json.RawMessage `json:"profit_table,omitempty"`
	ActiveSymbols json.RawMessage `json:"active_symbols,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseEnvelope decodes a raw frame. The returned envelope retains the
// original bytes in Raw.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	env.Raw = append(json.RawMessage(nil), data...)
	return env, nil
}

// TickSymbol extracts the symbol field from a raw tick payload.
// Returns "" when the payload carries no symbol.
func TickSymbol(tick json.RawMessage) string {
	var t struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(tick, &t); err != nil {
		return ""
	}
	return t.Symbol
}

// APIError is a domain error reported by the Deriv API inside a response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// EchoRequest is the echoed outbound request attached to a response.
// Only the fields the relay correlates on are decoded.
type EchoRequest struct {
	ContractType string `json:"contract_type"`
}

// Proposal is a priced quote for a candidate contract. ID is decoded for
// the follow-up buy request; Raw preserves the full quote for broadcast.
type Proposal struct {
	ID  string
	Raw json.RawMessage
}

func (p *Proposal) UnmarshalJSON(data []byte) error {
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	p.ID = v.ID
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (p Proposal) MarshalJSON() ([]byte, error) {
	if p.Raw != nil {
		return p.Raw, nil
	}
	return json.Marshal(struct {
		ID string `json:"id"`
	}{ID: p.ID})
}

// Authorize is the account summary returned by a successful authorize call.
type Authorize struct {
	LoginID           string          `json:"loginid"`
	Balance           float64         `json:"balance"`
	Email             string          `json:"email"`
	Fullname          string          `json:"fullname"`
	IsVirtual         int             `json:"is_virtual"`
	Currency          string          `json:"currency"`
	Country           string          `json:"country"`
	PreferredLanguage string          `json:"preferred_language"`
	UserID            int64           `json:"user_id"`
	AccountList       json.RawMessage `json:"account_list,omitempty"`
}
