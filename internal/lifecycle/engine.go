// Package lifecycle is the single authority over a request's status. It is
// stateless: the same record and command always produce the same result.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"barangay/api/internal/domain"
	"barangay/api/internal/rbac"
)

// Command is one requested transition.
type Command struct {
	Action rbac.Action
	Actor  domain.Actor
	At     time.Time
}

// Effect tells the caller what to do after persisting the result.
type Effect struct {
	// Changed is false when the stored record must not be written.
	Changed bool
	// Compose asks for a certificate to be issued.
	Compose bool
	// Notify asks for the requester to be told about the new status.
	Notify bool
}

type transition struct {
	from   domain.Status
	to     domain.Status
	stamp  func(req *domain.Request, s *domain.Stamp)
	effect Effect
}

var transitions = map[rbac.Action]transition{
	rbac.ActionProcess: {
		from:   domain.StatusPending,
		to:     domain.StatusProcessing,
		stamp:  func(req *domain.Request, s *domain.Stamp) { req.Processed = s },
		effect: Effect{Changed: true},
	},
	rbac.ActionAccept: {
		from:   domain.StatusProcessing,
		to:     domain.StatusAccepted,
		stamp:  func(req *domain.Request, s *domain.Stamp) { req.Accepted = s },
		effect: Effect{Changed: true, Compose: true, Notify: true},
	},
	rbac.ActionDecline: {
		from:   domain.StatusPending,
		to:     domain.StatusDeclined,
		stamp:  func(req *domain.Request, s *domain.Stamp) { req.Declined = s },
		effect: Effect{Changed: true, Notify: true},
	},
	rbac.ActionRestore: {
		from: domain.StatusDeclined,
		to:   domain.StatusPending,
		stamp: func(req *domain.Request, s *domain.Stamp) {
			req.Restored = s
			req.Declined = nil
		},
		effect: Effect{Changed: true},
	},
	rbac.ActionReprint: {
		from:   domain.StatusAccepted,
		to:     domain.StatusAccepted,
		effect: Effect{Compose: true},
	},
}

// Actions lists the transition actions in a stable order.
func Actions() []rbac.Action {
	return []rbac.Action{rbac.ActionProcess, rbac.ActionAccept, rbac.ActionDecline, rbac.ActionRestore, rbac.ActionReprint}
}

func ParseAction(value string) (rbac.Action, error) {
	action := rbac.Action(strings.ToLower(strings.TrimSpace(value)))
	if action == "re-print" {
		action = rbac.ActionReprint
	}
	if _, ok := transitions[action]; !ok {
		return "", fmt.Errorf("unknown request action %q", value)
	}
	return action, nil
}

// Allowed lists the actions role may take on a request in status.
func Allowed(status domain.Status, role rbac.Role) []rbac.Action {
	out := make([]rbac.Action, 0, 2)
	for _, action := range Actions() {
		if transitions[action].from == status && rbac.Can(role, action) {
			out = append(out, action)
		}
	}
	return out
}

// Apply checks the command against the current record and returns the
// record as it should be stored. current is never modified.
func Apply(current domain.Request, cmd Command) (domain.Request, Effect, error) {
	t, ok := transitions[cmd.Action]
	if !ok {
		return current, Effect{}, fmt.Errorf("unknown request action %q", cmd.Action)
	}
	if !rbac.Can(rbac.Normalize(cmd.Actor.Role), cmd.Action) {
		return current, Effect{}, &domain.AuthorizationError{Actor: actorLabel(cmd.Actor), Action: string(cmd.Action)}
	}
	if current.Status != t.from {
		return current, Effect{}, &domain.InvalidTransitionError{From: current.Status, Action: string(cmd.Action)}
	}

	next := current.Clone()
	if !t.effect.Changed {
		return next, t.effect, nil
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now()
	}
	next.Status = t.to
	t.stamp(&next, domain.NewStamp(actorLabel(cmd.Actor), at))
	next.UpdatedAt = at.UTC()
	return next, t.effect, nil
}

func actorLabel(actor domain.Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return actor.ID
}
