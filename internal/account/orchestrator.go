package account

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/derivhub/relay/internal/deriv"
	"github.com/derivhub/relay/internal/hub"
	"github.com/derivhub/relay/internal/upstream"
)

// Downstream events emitted to user topics.
const (
	EventWalletUpdate         = "walletUpdate"
	EventPurchaseConfirmation = "purchaseConfirmation"
	// Spelling matches the downstream wire contract.
	EventTransactionHistory = "transcationHistory"
)

// ErrorEvent carries a failure to the user's topic.
type ErrorEvent struct {
	Message string `json:"message"`
	Error   any    `json:"error"`
}

// DataEvent carries a success payload to the user's topic.
type DataEvent struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// PurchaseParams describes one trade purchase. Proposal holds the
// caller-supplied trade payload with the credential already stripped.
type PurchaseParams struct {
	LoginID  string
	Token    string
	Amount   float64
	Proposal map[string]any
}

// HistoryParams describes one transaction-history fetch. Request holds
// the caller-supplied filter with the credential already stripped.
type HistoryParams struct {
	LoginID string
	Token   string
	Request map[string]any
}

// Profile is the normalized account summary returned by Login.
type Profile struct {
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
	DerivToken        string          `json:"deriv_token"`
}

// Orchestrator runs authenticated action flows over disposable sessions.
type Orchestrator struct {
	dialer upstream.Dialer
	bus    hub.Broadcaster
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(dialer upstream.Dialer, bus hub.Broadcaster, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{dialer: dialer, bus: bus, logger: logger}
}

// Spawn runs fn as a tracked flow in its own goroutine. The flow is
// registered before Spawn returns, so a Wait that follows any Spawn
// observes that flow.
func (o *Orchestrator) Spawn(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

// Wait blocks until all spawned flows finish. Flows observe context
// cancellation, so callers cancel first, then Wait.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// FetchBalance authorizes and streams balance updates to the user's
// topic until the session ends. Blocks for the flow's lifetime; callers
// dispatch it via Spawn.
func (o *Orchestrator) FetchBalance(ctx context.Context, loginID, token string) {
	log := o.logger.With("flow", "balance", "loginid", loginID)
	f := &flow{loginID: loginID, token: token}

	if err := f.connect(ctx, o.dialer); err != nil {
		log.Warn("flow failed to start", "error", err)
		o.bus.Emit(loginID, EventWalletUpdate, ErrorEvent{Message: "Balance fetch error", Error: err.Error()})
		return
	}
	defer f.close()

	o.streamBalance(ctx, f, log, "Balance fetch error", nil)
}

// TopUp authorizes, fires the virtual top-up, then streams balance
// updates to the user's topic until the session ends.
func (o *Orchestrator) TopUp(ctx context.Context, loginID, token string) {
	log := o.logger.With("flow", "topup", "loginid", loginID)
	f := &flow{loginID: loginID, token: token}

	if err := f.connect(ctx, o.dialer); err != nil {
		log.Warn("flow failed to start", "error", err)
		o.bus.Emit(loginID, EventWalletUpdate, ErrorEvent{Message: "Top-up error", Error: err.Error()})
		return
	}
	defer f.close()

	o.streamBalance(ctx, f, log, "Top-up error", func() error {
		// Fire without waiting for an individual ack; the balance
		// subscription that follows reflects the result.
		return f.sess.SendJSON(deriv.NewTopUpRequest(loginID))
	})
}

// streamBalance runs the shared authorize → balance-subscribe sequence.
// beforeSubscribe, when set, sends flow-specific requests between the
// successful authorize and the balance subscription.
func (o *Orchestrator) streamBalance(ctx context.Context, f *flow, log *slog.Logger, errMessage string, beforeSubscribe func() error) {
	for {
		env, err := f.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.step = stepFailed
				return
			}
			log.Warn("flow transport error", "error", err)
			o.bus.Emit(f.loginID, EventWalletUpdate, ErrorEvent{Message: errMessage, Error: err.Error()})
			f.step = stepFailed
			return
		}

		switch env.MsgType {
		case deriv.MsgTypeAuthorize:
			if env.Error != nil {
				log.Info("authorization failed", "code", env.Error.Code)
				o.bus.Emit(f.loginID, EventWalletUpdate, ErrorEvent{Message: "Authorization failed", Error: env.Error})
				f.step = stepFailed
				return
			}
			f.step = stepActing
			if beforeSubscribe != nil {
				if err := beforeSubscribe(); err != nil {
					log.Warn("flow send failed", "error", err)
					o.bus.Emit(f.loginID, EventWalletUpdate, ErrorEvent{Message: errMessage, Error: err.Error()})
					f.step = stepFailed
					return
				}
			}
			if err := f.sess.SendJSON(deriv.NewBalanceRequest(f.loginID)); err != nil {
				log.Warn("flow send failed", "error", err)
				o.bus.Emit(f.loginID, EventWalletUpdate, ErrorEvent{Message: errMessage, Error: err.Error()})
				f.step = stepFailed
				return
			}

		case deriv.MsgTypeBalance:
			f.step = stepSucceeded
			o.bus.Emit(f.loginID, EventWalletUpdate, env.Raw)

		default:
			log.Debug("ignoring message", "msg_type", env.MsgType)
		}
	}
}

// Purchase authorizes, forwards the trade proposal, buys the quoted
// contract, and reports the outcome to the user's topic.
func (o *Orchestrator) Purchase(ctx context.Context, p PurchaseParams) {
	log := o.logger.With("flow", "purchase", "loginid", p.LoginID)
	f := &flow{loginID: p.LoginID, token: p.Token}

	if err := f.connect(ctx, o.dialer); err != nil {
		log.Warn("flow failed to start", "error", err)
		o.bus.Emit(p.LoginID, EventPurchaseConfirmation, ErrorEvent{Message: "Purchase error", Error: err.Error()})
		return
	}
	defer f.close()

	for {
		env, err := f.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.step = stepFailed
				return
			}
			log.Warn("flow transport error", "error", err)
			o.bus.Emit(p.LoginID, EventPurchaseConfirmation, ErrorEvent{Message: "Purchase error", Error: err.Error()})
			f.step = stepFailed
			return
		}

		switch env.MsgType {
		case deriv.MsgTypeAuthorize:
			if env.Error != nil {
				log.Info("authorization failed", "code", env.Error.Code)
				o.bus.Emit(p.LoginID, EventPurchaseConfirmation, ErrorEvent{Message: "Authorization failed", Error: env.Error})
				f.step = stepFailed
				return
			}
			f.step = stepActing
			if err := f.sess.SendJSON(p.Proposal); err != nil {
				log.Warn("flow send failed", "error", err)
				o.bus.Emit(p.LoginID, EventPurchaseConfirmation, ErrorEvent{Message: "Purchase error", Error: err.Error()})
				f.step = stepFailed
				return
			}

		case deriv.MsgTypeProposal:
			if env.Error != nil {
				log.Info("proposal rejected", "code", env.Error.Code)
				o.bus.Emit(p.LoginID, EventPurchaseConfirmation, ErrorEvent{Message: "Purchase failed", Error: env.Error})
				f.step = stepFailed
				return
			}
			if env.Proposal == nil {
				continue
			}
			buy := deriv.BuyRequest{Buy: env.Proposal.ID, Price: p.Amount, LoginID: p.LoginID}
			if err := f.sess.SendJSON(buy); err != nil {
				log.Warn("flow send failed", "error", err)
				o.bus.Emit(p.LoginID, EventPurchaseConfirmation, ErrorEvent{Message: "Purchase error", Error: err.Error()})
				f.step = stepFailed
				return
			}

		case deriv.MsgTypeBuy:
			// A literal null buy payload is a rejection, not a contract
			if len(env.Buy) > 0 && string(env.Buy) != "null" {
				o.bus.Emit(p.LoginID, EventPurchaseConfirmation, DataEvent{Message: "Purchase successful", Data: env.Raw})
				f.step = stepSucceeded
			} else {
				o.bus.Emit(p.LoginID, EventPurchaseConfirmation, ErrorEvent{Message: "Purchase failed", Error: env.Error})
				f.step = stepFailed
			}
			return

		default:
			log.Debug("ignoring message", "msg_type", env.MsgType)
		}
	}
}

// History authorizes, forwards the history filter, and broadcasts the
// profit table to the user's topic. An authorize error stops the flow
// silently: no failure event is emitted on this path.
func (o *Orchestrator) History(ctx context.Context, p HistoryParams) {
	log := o.logger.With("flow", "history", "loginid", p.LoginID)
	f := &flow{loginID: p.LoginID, token: p.Token}

	if err := f.connect(ctx, o.dialer); err != nil {
		log.Warn("flow failed to start", "error", err)
		return
	}
	defer f.close()

	for {
		env, err := f.next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("flow transport error", "error", err)
			}
			f.step = stepFailed
			return
		}

		switch env.MsgType {
		case deriv.MsgTypeAuthorize:
			if env.Error != nil {
				log.Info("authorization failed", "code", env.Error.Code)
				f.step = stepFailed
				return
			}
			f.step = stepActing
			if err := f.sess.SendJSON(p.Request); err != nil {
				log.Warn("flow send failed", "error", err)
				f.step = stepFailed
				return
			}

		case deriv.MsgTypeProfitTable:
			o.bus.Emit(p.LoginID, EventTransactionHistory, env.Raw)
			f.step = stepSucceeded
			return

		default:
			log.Debug("ignoring message", "msg_type", env.MsgType)
		}
	}
}

// Login authorizes a token on a throwaway session and returns the
// normalized account profile. Callers bound the wait via ctx.
func (o *Orchestrator) Login(ctx context.Context, token string) (*Profile, error) {
	f := &flow{token: token}

	if err := f.connect(ctx, o.dialer); err != nil {
		return nil, err
	}
	defer f.close()

	for {
		env, err := f.next(ctx)
		if err != nil {
			f.step = stepFailed
			return nil, err
		}

		if env.Error != nil {
			f.step = stepFailed
			return nil, env.Error
		}
		if env.MsgType != deriv.MsgTypeAuthorize || env.Authorize == nil {
			o.logger.Debug("ignoring message during login", "msg_type", env.MsgType)
			continue
		}

		a := env.Authorize
		f.step = stepSucceeded
		return &Profile{
			LoginID:           a.LoginID,
			Balance:           a.Balance,
			Email:             a.Email,
			Fullname:          a.Fullname,
			IsVirtual:         a.IsVirtual,
			Currency:          a.Currency,
			Country:           a.Country,
			PreferredLanguage: a.PreferredLanguage,
			UserID:            a.UserID,
			AccountList:       a.AccountList,
			DerivToken:        token,
		}, nil
	}
}
