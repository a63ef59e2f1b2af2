package reqrep

import (
	"errors"
	"time"

	"github.com/htttp-net/htttp/internal/domain"
)

// ErrRejected is returned by Run when a peer rejects the proposal. It
// short-circuits the vote immediately — a single reject is final.
var ErrRejected = errors.New("vote rejected by a peer")

// Classifier interprets one reply as an accept or a reject. ok is false
// for a reply that could not be interpreted at all (e.g. failed to
// decode); such a reply is dropped rather than counted either way.
type Classifier func(domain.Delivery) (accept bool, ok bool)

// Vote layers quorum counting on top of a Requester. It succeeds once
// required accepts have been counted, and
// it also succeeds if the timeout elapses having seen no replies at
// all — the "first player" case, where there is nobody to ask. A
// reject fails the vote immediately, so by construction a timeout is
// only ever reached with zero rejects; the remaining question is
// whether any accepts arrived either, which is exactly the quorum law
// this primitive's only caller (the join protocol) relies on.
type Vote struct {
	req      *Requester
	required int
	accepts  int
	rejects  int

	OnAccepted func(domain.Delivery)
	OnRejected func(domain.Delivery)
	OnSuccess  func()
	OnFailure  func(err error)
}

// NewVote declares the underlying Requester and returns a Vote requiring
// `required` accepts to succeed.
func NewVote(transport domain.Transport, exchange, correlationID string, required int) (*Vote, error) {
	req, err := New(transport, exchange, correlationID)
	if err != nil {
		return nil, err
	}
	return &Vote{req: req, required: required}, nil
}

// ReplyTo is the address peers must reply to.
func (v *Vote) ReplyTo() string { return v.req.ReplyTo() }

// Publish sends the proposal under routingKey.
func (v *Vote) Publish(routingKey string, body []byte) error {
	return v.req.Publish(routingKey, body)
}

// Accepts reports how many accept replies have been counted so far.
func (v *Vote) Accepts() int { return v.accepts }

// Run blocks until the vote resolves: quorum reached, a reject arrives,
// or timeout elapses. It fires OnAccepted/OnRejected as replies arrive
// and OnSuccess/OnFailure exactly once when it resolves. Callers
// typically invoke Run from its own goroutine since the proposal's
// Publish has already gone out.
func (v *Vote) Run(timeout time.Duration, classify Classifier) (bool, error) {
	timer := v.req.StartTimeout(timeout)
	for {
		select {
		case d, ok := <-v.req.Replies():
			if !ok {
				return v.finish(false, domain.ErrRequestCancel)
			}
			accept, ok := classify(d)
			if !ok {
				continue
			}
			if accept {
				v.accepts++
				if v.OnAccepted != nil {
					v.OnAccepted(d)
				}
				if v.accepts >= v.required {
					return v.finish(true, nil)
				}
			} else {
				v.rejects++
				if v.OnRejected != nil {
					v.OnRejected(d)
				}
				return v.finish(false, ErrRejected)
			}
		case <-timer:
			if v.accepts == 0 {
				return v.finish(true, nil)
			}
			return v.finish(false, domain.ErrVoteTimeout)
		}
	}
}

// Cancel aborts the vote. Called before Run, no OnSuccess/OnFailure
// fires; a Run already in progress sees Replies() close and resolves as
// a failure with domain.ErrRequestCancel. Used when the caller abandons
// the vote for an unrelated reason (e.g. the local peer is shutting down).
func (v *Vote) Cancel() { v.req.Cancel() }

func (v *Vote) finish(accepted bool, err error) (bool, error) {
	v.req.Cancel()
	if accepted {
		if v.OnSuccess != nil {
			v.OnSuccess()
		}
	} else if v.OnFailure != nil {
		v.OnFailure(err)
	}
	return accepted, err
}
