package thread

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/linanwx/leadbridge/internal/bridgeerr"
)

func TestBindIsIdempotentAndNeverRebinds(t *testing.T) {
	iso := NewIsolation()

	require.NoError(t, iso.Bind("thread_1", "alice"))
	require.NoError(t, iso.Bind("thread_1", "alice"))

	err := iso.Bind("thread_1", "brenden")
	require.ErrorIs(t, err, bridgeerr.ErrThreadAccessDenied)

	owner, ok := iso.Owner("thread_1")
	require.True(t, ok)
	require.Equal(t, "alice", owner)
}

func TestValidateBindsUnknownThreadOnFirstUse(t *testing.T) {
	iso := NewIsolation()

	require.NoError(t, iso.Validate("thread_new", "alice"))
	owner, ok := iso.Owner("thread_new")
	require.True(t, ok)
	require.Equal(t, "alice", owner)

	require.ErrorIs(t, iso.Validate("thread_new", "brenden"), bridgeerr.ErrThreadAccessDenied)
}

func TestValidateStrictRejectsUnknownThread(t *testing.T) {
	iso := NewIsolation(WithStrict(true))

	require.ErrorIs(t, iso.Validate("thread_new", "alice"), bridgeerr.ErrThreadAccessDenied)
	require.Equal(t, 0, iso.Len())

	require.NoError(t, iso.Bind("thread_new", "alice"))
	require.NoError(t, iso.Validate("thread_new", "alice"))
}

func TestCheckNeverBinds(t *testing.T) {
	iso := NewIsolation()
	require.NoError(t, iso.Check("thread_new", "alice"))
	require.Equal(t, 0, iso.Len())

	require.NoError(t, iso.Bind("thread_new", "alice"))
	require.NoError(t, iso.Check("thread_new", "alice"))
	require.ErrorIs(t, iso.Check("thread_new", "brenden"), bridgeerr.ErrThreadAccessDenied)

	strict := NewIsolation(WithStrict(true))
	require.ErrorIs(t, strict.Check("thread_new", "alice"), bridgeerr.ErrThreadAccessDenied)
}

func TestBlankIDsAreMissingFields(t *testing.T) {
	iso := NewIsolation()
	require.ErrorIs(t, iso.Bind("", "alice"), bridgeerr.ErrMissingFields)
	require.ErrorIs(t, iso.Validate("thread_1", "  "), bridgeerr.ErrMissingFields)
}

func TestRestoreSkipsConflicts(t *testing.T) {
	iso := NewIsolation()
	require.NoError(t, iso.Bind("thread_1", "alice"))

	added := iso.Restore(map[string]string{
		"thread_1": "brenden",
		"thread_2": "brenden",
		"":         "alice",
	})
	require.Equal(t, 1, added)

	owner, _ := iso.Owner("thread_1")
	require.Equal(t, "alice", owner)
	owner, _ = iso.Owner("thread_2")
	require.Equal(t, "brenden", owner)
}

func TestConcurrentFirstUseHasSingleWinner(t *testing.T) {
	iso := NewIsolation()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if iso.Validate("thread_race", fmt.Sprintf("emp-%d", n)) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

// Once a thread is bound to one employee, validation for any other employee
// always fails, in both strict and first-use modes.
func TestBoundThreadNeverValidatesForOtherEmployeeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("validate fails for non-owner", prop.ForAll(
		func(threadID, owner, other string, strict bool) bool {
			if owner == other {
				return true
			}
			iso := NewIsolation(WithStrict(strict))
			if err := iso.Bind(threadID, owner); err != nil {
				return false
			}
			if iso.Validate(threadID, other) == nil {
				return false
			}
			if iso.Bind(threadID, other) == nil {
				return false
			}
			return iso.Validate(threadID, owner) == nil
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
