package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"tap-racer/internal/auth"
	"tap-racer/internal/coordinator"
	"tap-racer/internal/lobby"
	"tap-racer/internal/matchmaking"
	"tap-racer/internal/protocol"
	"tap-racer/internal/race"
)

var (
	errMalformed      = errors.New("malformed_message")
	errUnknownType    = errors.New("unknown_type")
	errMissingField   = errors.New("missing_field")
	errIdentityChange = errors.New("identity_mismatch")
)

func (s *Server) dispatch(ctx context.Context, c *Client, raw []byte) {
	var in protocol.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		s.sendError(c, errMalformed, "", "")
		return
	}
	metricMessagesIn.Add(1)
	if err := s.handle(ctx, c, in); err != nil {
		s.sendError(c, err, in.Type, in.RequestID)
	}
}

func (s *Server) handle(ctx context.Context, c *Client, in protocol.Inbound) error {
	switch in.Type {
	case protocol.TypeJoinQueue:
		return s.lobby.JoinQueue(ctx, c.userID, c.sessionID)
	case protocol.TypeLeaveQueue:
		return s.lobby.LeaveQueue(ctx, c.userID, c.sessionID)
	case protocol.TypeSendChallenge:
		if in.TargetUserID == "" {
			return errMissingField
		}
		return s.lobby.SendChallenge(ctx, c.userID, c.sessionID, in.TargetUserID)
	case protocol.TypeAcceptChallenge:
		if in.FromUserID == "" {
			return errMissingField
		}
		return s.lobby.AcceptChallenge(ctx, c.userID, c.sessionID, in.FromUserID)
	case protocol.TypeDeclineChallenge:
		if in.FromUserID == "" {
			return errMissingField
		}
		return s.lobby.DeclineChallenge(ctx, c.userID, c.sessionID, in.FromUserID)
	case protocol.TypeJoinRace:
		if in.MatchID == "" {
			return errMissingField
		}
		return s.lobby.JoinRace(ctx, c.userID, c.sessionID, in.MatchID)
	case protocol.TypeTap:
		side, err := race.ParseSide(in.Side)
		if err != nil {
			return err
		}
		s.lobby.Tap(ctx, c.userID, c.sessionID, in.MatchID, side)
		return nil
	case protocol.TypeRejoinRace:
		if in.MatchID == "" {
			return errMissingField
		}
		claims, err := s.tokens.Verify(in.AuthToken)
		if err != nil {
			return err
		}
		if claims.UserID != c.userID {
			log.Warn().Str("user_id", c.userID).Str("token_user_id", claims.UserID).Msg("rejoin identity mismatch")
			return errIdentityChange
		}
		return s.lobby.Rejoin(ctx, c.userID, c.sessionID, in.MatchID)
	default:
		return errUnknownType
	}
}

func (s *Server) sendError(c *Client, err error, request, requestID string) {
	metricMessageErrors.Add(1)
	s.hub.Send(c.sessionID, protocol.Encode(protocol.NewError(mapError(err), request, requestID)))
}

// mapError turns a package error into its wire code.
func mapError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errMalformed),
		errors.Is(err, errUnknownType),
		errors.Is(err, errMissingField),
		errors.Is(err, errIdentityChange),
		errors.Is(err, race.ErrInvalidSide),
		errors.Is(err, matchmaking.ErrSelfChallenge),
		errors.Is(err, lobby.ErrSessionSuperseded),
		errors.Is(err, lobby.ErrAlreadyInRace),
		errors.Is(err, lobby.ErrTargetOffline),
		errors.Is(err, coordinator.ErrRaceNotFound),
		errors.Is(err, coordinator.ErrRaceFinished),
		errors.Is(err, coordinator.ErrNotInRace),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return err.Error()
	default:
		return "internal_error"
	}
}
