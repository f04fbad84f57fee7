// Package friends manages friend requests and the friendship graph
package friends

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
)

var log = logger.New("friends")

// Service implements the friend request lifecycle. Only the receiver of a
// request may answer it; accepting creates exactly one edge per pair.
type Service struct {
	db      database.DBInterface
	timeout time.Duration
}

func NewService(db database.DBInterface, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{db: db, timeout: timeout}
}

func (s *Service) ctx(ctx context.Context, actor uuid.UUID) (context.Context, context.CancelFunc) {
	return context.WithTimeout(database.WithUser(ctx, actor), s.timeout)
}

// SendRequest creates a pending request from sender to receiver
func (s *Service) SendRequest(ctx context.Context, sender, receiver uuid.UUID) (*models.FriendRequest, error) {
	if sender == receiver {
		return nil, apperr.ErrSelfFriendRequest
	}
	if receiver == uuid.Nil {
		return nil, apperr.Validation("receiver is required")
	}

	cctx, cancel := s.ctx(ctx, sender)
	defer cancel()

	friends, err := s.db.HasFriendEdge(cctx, sender, receiver)
	if err != nil {
		return nil, apperr.FromContext("check friendship", err)
	}
	if friends {
		return nil, apperr.ErrAlreadyFriends
	}

	existing, err := s.db.FindFriendRequest(cctx, sender, receiver)
	switch {
	case err == nil && existing.Status == models.FriendRequestPending:
		return nil, apperr.ErrDuplicateFriendRequest
	case err != nil && !apperr.Is(err, apperr.CodeNotFound):
		return nil, apperr.FromContext("find friend request", err)
	}

	req, err := s.db.CreateFriendRequest(cctx, sender, receiver)
	if err != nil {
		return nil, apperr.FromContext("send friend request", err)
	}
	log.Info("Friend request %s sent from %s to %s", req.ID, sender, receiver)
	return req, nil
}

// Accept accepts a request addressed to receiver and creates the edge.
// Accepting an already accepted request only makes sure the edge exists.
func (s *Service) Accept(ctx context.Context, receiver, requestID uuid.UUID) (*models.FriendRequest, error) {
	cctx, cancel := s.ctx(ctx, receiver)
	defer cancel()

	req, err := s.answerable(cctx, receiver, requestID)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case models.FriendRequestRejected:
		return nil, apperr.ErrRequestNotPending
	case models.FriendRequestPending:
		if req, err = s.db.SetFriendRequestStatus(cctx, requestID, receiver, models.FriendRequestAccepted); err != nil {
			return nil, apperr.FromContext("accept friend request", err)
		}
	}

	_, created, err := s.db.CreateFriendEdge(cctx, models.NewFriendEdge(req.SenderID, req.ReceiverID))
	if err != nil {
		return nil, apperr.FromContext("create friendship", err)
	}
	if created {
		log.Info("Users %s and %s are now friends", req.SenderID, req.ReceiverID)
	} else {
		log.Debug("Friendship for request %s already existed", req.ID)
	}
	return req, nil
}

// Reject declines a pending request addressed to receiver
func (s *Service) Reject(ctx context.Context, receiver, requestID uuid.UUID) (*models.FriendRequest, error) {
	cctx, cancel := s.ctx(ctx, receiver)
	defer cancel()

	req, err := s.answerable(cctx, receiver, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.FriendRequestPending {
		return nil, apperr.ErrRequestNotPending
	}

	req, err = s.db.SetFriendRequestStatus(cctx, requestID, receiver, models.FriendRequestRejected)
	if err != nil {
		return nil, apperr.FromContext("reject friend request", err)
	}
	return req, nil
}

func (s *Service) answerable(ctx context.Context, receiver, requestID uuid.UUID) (*models.FriendRequest, error) {
	req, err := s.db.GetFriendRequest(ctx, requestID)
	if err != nil {
		return nil, apperr.FromContext("load friend request", err)
	}
	if req.ReceiverID != receiver {
		return nil, apperr.ErrNotRequestReceiver
	}
	return req, nil
}

// Pending splits the pending requests of user into received and sent
func (s *Service) Pending(ctx context.Context, user uuid.UUID) (incoming, outgoing []*models.FriendRequest, err error) {
	cctx, cancel := s.ctx(ctx, user)
	defer cancel()

	reqs, err := s.db.ListFriendRequests(cctx, user, models.FriendRequestPending)
	if err != nil {
		return nil, nil, apperr.FromContext("list friend requests", err)
	}

	incoming, outgoing = []*models.FriendRequest{}, []*models.FriendRequest{}
	for _, r := range reqs {
		if r.ReceiverID == user {
			incoming = append(incoming, r)
		} else {
			outgoing = append(outgoing, r)
		}
	}
	return incoming, outgoing, nil
}

// Friends returns the profiles of everyone user is friends with
func (s *Service) Friends(ctx context.Context, user uuid.UUID) ([]*models.Profile, error) {
	cctx, cancel := s.ctx(ctx, user)
	defer cancel()

	edges, err := s.db.ListFriendEdges(cctx, user)
	if err != nil {
		return nil, apperr.FromContext("list friends", err)
	}
	if len(edges) == 0 {
		return []*models.Profile{}, nil
	}

	ids := make([]uuid.UUID, len(edges))
	for i, e := range edges {
		ids[i] = e.Other(user)
	}
	profiles, err := s.db.GetProfiles(cctx, ids)
	if err != nil {
		return nil, apperr.FromContext("load friend profiles", err)
	}
	return models.OrderProfiles(profiles, ids), nil
}

// AreFriends reports whether a and b share an edge
func (s *Service) AreFriends(ctx context.Context, a, b uuid.UUID) (bool, error) {
	cctx, cancel := s.ctx(ctx, a)
	defer cancel()

	ok, err := s.db.HasFriendEdge(cctx, a, b)
	return ok, apperr.FromContext("check friendship", err)
}
