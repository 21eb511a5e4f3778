package conference

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestElectRole_DeterministicRegardlessOfArrivalOrder(t *testing.T) {
	a := uuid.NewString()
	b := uuid.NewString()

	roleFromA := electRole(a, b)
	roleFromB := electRole(b, a)

	// Whichever side computes it, the same one of {a, b} must be elected
	// offerer, so the two perspectives must disagree about their own role
	// in exactly the way that keeps both sides consistent.
	if roleFromA == RoleOfferer {
		assert.Equal(t, RoleAnswerer, roleFromB)
	} else {
		assert.Equal(t, RoleOfferer, roleFromB)
	}
}

func TestElectRole_StableAcrossRepeatedCalls(t *testing.T) {
	a, b := "11111111-1111-1111-1111-111111111111", "22222222-2222-2222-2222-222222222222"

	first := electRole(a, b)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, electRole(a, b))
	}
}

func TestElectRole_GreaterIDOffers(t *testing.T) {
	a, b := "aaaa", "bbbb"
	assert.Equal(t, RoleAnswerer, electRole(a, b))
	assert.Equal(t, RoleOfferer, electRole(b, a))
}
