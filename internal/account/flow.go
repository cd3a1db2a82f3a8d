package account

import (
	"context"
	"errors"

	"github.com/derivhub/relay/internal/deriv"
	"github.com/derivhub/relay/internal/upstream"
)

// step tracks a flow through its state machine:
// connecting → authorizing → acting → (succeeded | failed).
type step int

const (
	stepConnecting step = iota
	stepAuthorizing
	stepActing
	stepSucceeded
	stepFailed
)

// ErrSessionEnded reports that the upstream session closed before the
// flow reached a terminal state.
var ErrSessionEnded = errors.New("upstream session ended")

// flow is the explicit per-invocation state threaded through one
// disposable session. Never reused, never shared between invocations.
type flow struct {
	loginID string
	token   string
	step    step
	sess    upstream.Session
}

// connect dials the disposable session and sends the authorize request.
func (f *flow) connect(ctx context.Context, dialer upstream.Dialer) error {
	sess, err := dialer.Dial(ctx)
	if err != nil {
		return err
	}
	f.sess = sess

	if err := sess.SendJSON(deriv.AuthorizeRequest{Authorize: f.token}); err != nil {
		sess.Close()
		return err
	}
	f.step = stepAuthorizing
	return nil
}

// next waits for the session's next frame. Session end or a transport
// error yields ErrSessionEnded / the underlying error; context
// cancellation yields ctx.Err().
func (f *flow) next(ctx context.Context) (deriv.Envelope, error) {
	select {
	case env, ok := <-f.sess.Messages():
		if !ok {
			return deriv.Envelope{}, ErrSessionEnded
		}
		return env, nil
	case err := <-f.sess.Errors():
		return deriv.Envelope{}, err
	case <-ctx.Done():
		return deriv.Envelope{}, ctx.Err()
	}
}

// close releases the disposable session once the flow is done with it.
func (f *flow) close() {
	if f.sess != nil {
		f.sess.Close()
	}
}
