package access

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/distribo/services/recouvrement/internal/models"
)

func invoiceIn(depotID *uuid.UUID, account string) models.Invoice {
	return models.Invoice{ID: uuid.New(), DepotID: depotID, AccountNumber: account}
}

func TestBuildScopeAdminSeesEverything(t *testing.T) {
	scope := BuildScope(models.User{ID: uuid.New(), Role: models.RoleAdmin}, nil, nil)
	require.Equal(t, ScopeAll, scope.Kind)

	depot := uuid.New()
	inv := invoiceIn(&depot, "411ABC1")
	require.True(t, scope.Allows(&inv))
}

func TestBuildScopeOtherRolesHomeDepotOnly(t *testing.T) {
	home := uuid.New()
	other := uuid.New()
	user := models.User{ID: uuid.New(), Role: models.RoleCommercial, DepotID: &home}

	scope := BuildScope(user, nil, nil)
	require.Equal(t, ScopeDepots, scope.Kind)

	inHome := invoiceIn(&home, "411ABC1")
	elsewhere := invoiceIn(&other, "411ABC2")
	require.True(t, scope.Allows(&inHome))
	require.False(t, scope.Allows(&elsewhere))

	// No home depot means no access.
	user.DepotID = nil
	require.Equal(t, ScopeNone, BuildScope(user, nil, nil).Kind)
}

func TestBuildScopeDepotAssignmentWinsOverPatterns(t *testing.T) {
	userID := uuid.New()
	assigned := uuid.New()
	other := uuid.New()
	user := models.User{ID: userID, Role: models.RoleRecouvrement}

	depotAssignments := []models.DepotAssignment{
		{UserID: userID, DepotID: assigned, Active: true},
	}
	patternAssignments := []models.Assignment{
		{UserID: userID, Pattern: "ABC", Active: true},
	}

	scope := BuildScope(user, depotAssignments, patternAssignments)
	require.Equal(t, ScopeDepots, scope.Kind)

	// The pattern would match this invoice, but it sits outside the
	// assigned depot and must stay hidden.
	matching := invoiceIn(&other, "411ABC1")
	require.False(t, scope.Allows(&matching))

	inDepot := invoiceIn(&assigned, "999ZZZ")
	require.True(t, scope.Allows(&inDepot))
}

func TestBuildScopePatternFallback(t *testing.T) {
	userID := uuid.New()
	user := models.User{ID: userID, Role: models.RoleRecouvrement}

	patternAssignments := []models.Assignment{
		{UserID: userID, Pattern: "ABC", Active: true},
		{UserID: userID, Pattern: "DEF", Active: true},
	}

	scope := BuildScope(user, nil, patternAssignments)
	require.Equal(t, ScopePatterns, scope.Kind)

	depot := uuid.New()
	abc := invoiceIn(&depot, "411ABC77")
	def := invoiceIn(&depot, "411DEF12")
	zzz := invoiceIn(&depot, "411ZZZ12")
	require.True(t, scope.Allows(&abc))
	require.True(t, scope.Allows(&def))
	require.False(t, scope.Allows(&zzz))
}

func TestBuildScopePatternExcludesReservedDepots(t *testing.T) {
	userID := uuid.New()
	otherAgent := uuid.New()
	reserved := uuid.New()
	free := uuid.New()
	user := models.User{ID: userID, Role: models.RoleRecouvrement}

	depotAssignments := []models.DepotAssignment{
		{UserID: otherAgent, DepotID: reserved, Active: true},
	}
	patternAssignments := []models.Assignment{
		{UserID: userID, Pattern: "ABC", Active: true},
	}

	scope := BuildScope(user, depotAssignments, patternAssignments)
	require.Equal(t, ScopePatterns, scope.Kind)

	// Same account pattern, but one invoice lives in a depot reserved for
	// another agent.
	inReserved := invoiceIn(&reserved, "411ABC1")
	inFree := invoiceIn(&free, "411ABC2")
	noDepot := invoiceIn(nil, "411ABC3")
	require.False(t, scope.Allows(&inReserved))
	require.True(t, scope.Allows(&inFree))
	require.True(t, scope.Allows(&noDepot))
}

func TestBuildScopeNoAssignmentsDenies(t *testing.T) {
	user := models.User{ID: uuid.New(), Role: models.RoleRecouvrement}

	scope := BuildScope(user, nil, nil)
	require.Equal(t, ScopeNone, scope.Kind)

	depot := uuid.New()
	inv := invoiceIn(&depot, "411ABC1")
	require.False(t, scope.Allows(&inv))
	require.Empty(t, Filter(scope, []models.Invoice{inv}))
}

func TestBuildScopeIgnoresInactiveAssignments(t *testing.T) {
	userID := uuid.New()
	depot := uuid.New()
	user := models.User{ID: userID, Role: models.RoleRecouvrement}

	depotAssignments := []models.DepotAssignment{
		{UserID: userID, DepotID: depot, Active: false},
	}
	patternAssignments := []models.Assignment{
		{UserID: userID, Pattern: "ABC", Active: false},
	}

	scope := BuildScope(user, depotAssignments, patternAssignments)
	require.Equal(t, ScopeNone, scope.Kind)
}

func TestFilter(t *testing.T) {
	userID := uuid.New()
	depot := uuid.New()
	user := models.User{ID: userID, Role: models.RoleRecouvrement}

	scope := BuildScope(user, []models.DepotAssignment{
		{UserID: userID, DepotID: depot, Active: true},
	}, nil)

	other := uuid.New()
	invoices := []models.Invoice{
		invoiceIn(&depot, "411AAA1"),
		invoiceIn(&other, "411AAA2"),
		invoiceIn(nil, "411AAA3"),
	}

	visible := Filter(scope, invoices)
	require.Len(t, visible, 1)
	require.Equal(t, invoices[0].ID, visible[0].ID)
}
