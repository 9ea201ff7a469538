package walletconnect

import (
	"context"
	"sort"

	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var ErrRequestNotFound = errors.New("session request not found")

// needsApproval lists the methods that produce a signature. They wait for the user, everything else is answered
// on arrival.
func needsApproval(method string) bool {
	switch method {
	case MethodCosmosSignAmino, MethodPersonalSign:
		return true
	}
	return false
}

func (s *Service) park(req SessionRequest) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	if s.requests == nil {
		s.requests = map[int64]SessionRequest{}
	}
	s.requests[req.ID] = req
}

func (s *Service) take(id int64) (SessionRequest, bool) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	req, ok := s.requests[id]
	delete(s.requests, id)
	return req, ok
}

// dropRequests forgets parked requests of topic, all of them when topic is empty.
func (s *Service) dropRequests(topic string) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	for id, req := range s.requests {
		if topic == "" || req.Topic == topic {
			delete(s.requests, id)
		}
	}
}

// PendingRequests returns the signing requests waiting for the user, oldest id first.
func (s *Service) PendingRequests() []SessionRequest {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	result := make([]SessionRequest, 0, len(s.requests))
	for _, req := range s.requests {
		result = append(result, req)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ApproveRequest signs and answers a parked request. The request is consumed even when signing fails, the dapp
// already got the error response.
func (s *Service) ApproveRequest(ctx context.Context, id int64) error {
	req, ok := s.take(id)
	if !ok {
		return errors.Wrapf(ErrRequestNotFound, "id %d", id)
	}
	return s.HandleSessionRequest(ctx, req)
}

// RejectRequest answers a parked request with the user rejected reason without touching any key.
func (s *Service) RejectRequest(ctx context.Context, id int64) error {
	req, ok := s.take(id)
	if !ok {
		return errors.Wrapf(ErrRequestNotFound, "id %d", id)
	}
	client, err := s.Client(ctx)
	if err != nil {
		return err
	}
	err = client.RespondSessionRequest(ctx, req.Topic, errorResponse(req.ID, ReasonUserRejected))
	if err != nil {
		log.Errorf("wallet connect - reject request %d: %v", req.ID, err)
	}

	e := newSessionEvent(EventRequest)
	e.Topic = req.Topic
	e.Method = req.Method
	e.Error = ReasonUserRejected.Message
	s.publish(ctx, e)
	return err
}
