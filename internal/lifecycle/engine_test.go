package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barangay/api/internal/domain"
	"barangay/api/internal/rbac"
)

var (
	admin = domain.Actor{ID: "usr_admin", Name: "Kap. Reyes", Role: string(rbac.RoleAdmin), UnitID: "u1"}
	staff = domain.Actor{ID: "usr_staff", Name: "Clerk", Role: string(rbac.RoleStaff), UnitID: "u1"}
	now   = time.Date(2026, 10, 5, 8, 0, 0, 0, time.UTC)
)

func pending() domain.Request {
	return domain.Request{ID: "req_1", UnitID: "u1", Status: domain.StatusPending, Version: 1, CertificateType: domain.CertificateIndigency}
}

func apply(t *testing.T, req domain.Request, action rbac.Action) (domain.Request, Effect) {
	t.Helper()
	next, effect, err := Apply(req, Command{Action: action, Actor: admin, At: now})
	require.NoError(t, err)
	return next, effect
}

// stampCount counts non-null actor/timestamp pairs.
func stampCount(req domain.Request) int {
	n := 0
	for _, s := range []*domain.Stamp{req.Processed, req.Accepted, req.Declined, req.Restored} {
		if s != nil {
			n++
		}
	}
	return n
}

func TestProcessThenAccept(t *testing.T) {
	processing, effect := apply(t, pending(), rbac.ActionProcess)
	assert.Equal(t, domain.StatusProcessing, processing.Status)
	require.NotNil(t, processing.Processed)
	assert.Equal(t, "Kap. Reyes", processing.Processed.By)
	assert.True(t, processing.Processed.At.Equal(now))
	assert.False(t, effect.Compose)

	accepted, effect := apply(t, processing, rbac.ActionAccept)
	assert.Equal(t, domain.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.Accepted)
	assert.True(t, effect.Compose)
	assert.True(t, effect.Notify)
	assert.Equal(t, 2, stampCount(accepted))
}

func TestDeclineThenRestoreClearsDeclinePair(t *testing.T) {
	declined, effect := apply(t, pending(), rbac.ActionDecline)
	assert.Equal(t, domain.StatusDeclined, declined.Status)
	require.NotNil(t, declined.Declined)
	assert.True(t, effect.Notify)

	restored, _ := apply(t, declined, rbac.ActionRestore)
	assert.Equal(t, domain.StatusPending, restored.Status)
	assert.Nil(t, restored.Declined)
	require.NotNil(t, restored.Restored)
	assert.Equal(t, 1, stampCount(restored))

	// restored requests re-enter the normal flow
	processing, _ := apply(t, restored, rbac.ActionProcess)
	assert.Equal(t, domain.StatusProcessing, processing.Status)
}

func TestReprintChangesNothing(t *testing.T) {
	req := pending()
	req.Status = domain.StatusAccepted
	req.Accepted = domain.NewStamp("Kap. Reyes", now.Add(-time.Hour))

	next, effect := apply(t, req, rbac.ActionReprint)
	assert.Equal(t, req, next)
	assert.False(t, effect.Changed)
	assert.True(t, effect.Compose)
}

func TestInvalidTransitions(t *testing.T) {
	cases := []struct {
		from   domain.Status
		action rbac.Action
	}{
		{domain.StatusAccepted, rbac.ActionDecline},
		{domain.StatusAccepted, rbac.ActionProcess},
		{domain.StatusPending, rbac.ActionAccept},
		{domain.StatusPending, rbac.ActionRestore},
		{domain.StatusPending, rbac.ActionReprint},
		{domain.StatusProcessing, rbac.ActionDecline},
		{domain.StatusDeclined, rbac.ActionAccept},
		{domain.StatusDeclined, rbac.ActionReprint},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.action), func(t *testing.T) {
			req := pending()
			req.Status = tc.from
			next, _, err := Apply(req, Command{Action: tc.action, Actor: admin, At: now})
			require.Error(t, err)
			assert.True(t, domain.IsInvalidTransition(err))
			assert.Equal(t, tc.from, next.Status)
		})
	}
}

func TestNonAdministrativeActorsAreRejected(t *testing.T) {
	for _, actor := range []domain.Actor{staff, {ID: "r", Role: "resident"}, {ID: "x", Role: "mayor"}} {
		for _, action := range Actions() {
			req := pending()
			next, _, err := Apply(req, Command{Action: action, Actor: actor, At: now})
			require.Error(t, err)
			assert.True(t, domain.IsAuthorization(err), "%s by %s", action, actor.Role)
			assert.Equal(t, req, next)
		}
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	req := pending()
	req.Declined = nil
	snapshot := req.Clone()

	_, _, err := Apply(req, Command{Action: rbac.ActionDecline, Actor: admin, At: now})
	require.NoError(t, err)
	assert.Equal(t, snapshot, req)
}

func TestApplyIsDeterministic(t *testing.T) {
	a, ea, errA := Apply(pending(), Command{Action: rbac.ActionProcess, Actor: admin, At: now})
	b, eb, errB := Apply(pending(), Command{Action: rbac.ActionProcess, Actor: admin, At: now})
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
	assert.Equal(t, ea, eb)
}

func TestParseActionAndAllowed(t *testing.T) {
	action, err := ParseAction(" Re-Print ")
	require.NoError(t, err)
	assert.Equal(t, rbac.ActionReprint, action)

	_, err = ParseAction("delete")
	assert.Error(t, err)

	assert.ElementsMatch(t, []rbac.Action{rbac.ActionProcess, rbac.ActionDecline}, Allowed(domain.StatusPending, rbac.RoleAdmin))
	assert.Equal(t, []rbac.Action{rbac.ActionReprint}, Allowed(domain.StatusAccepted, rbac.RoleAdmin))
	assert.Empty(t, Allowed(domain.StatusPending, rbac.RoleStaff))
	assert.Empty(t, Allowed(domain.StatusDeclined, rbac.RoleResident))
}
