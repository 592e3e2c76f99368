package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports/mocks"
	"go.trai.ch/anvil/internal/engine"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

func TestEngine_DatabaseLookupErrorForcesRebuild(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	database := mocks.NewMockDatabase(ctrl)
	database.EXPECT().GetCurrentIteration().Return(uint64(4), nil)
	// An unreadable record degrades to "never built".
	database.EXPECT().LookupRuleResult(domain.Key("value")).
		Return(nil, zerr.New("disk on fire"))
	database.EXPECT().BuildStarted().Return(nil)
	database.EXPECT().SetRuleResult(domain.Key("value"), gomock.Any()).
		DoAndReturn(func(_ domain.Key, result domain.Result) error {
			assert.Equal(t, uint64(5), result.BuiltAt)
			assert.Equal(t, uint64(5), result.CheckedAt)
			return nil
		})
	database.EXPECT().SetCurrentIteration(uint64(5)).Return(nil)
	database.EXPECT().BuildComplete().Return(nil)

	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn(gomock.Any())

	delegate := &testDelegate{}
	eng := engine.New(delegate, logger)
	require.NoError(t, eng.AttachDB(database))

	ran := false
	require.NoError(t, eng.AddRule(engine.Rule{
		Key: "value",
		Action: func() engine.Task {
			return newSimpleTask(nil, func([]int) int {
				ran = true
				return 7
			})
		},
	}))

	value, err := eng.Build("value")
	require.NoError(t, err)
	assert.Equal(t, 7, intFromValue(value))
	assert.True(t, ran)
}

func TestEngine_AttachDBAfterRulesFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	database := mocks.NewMockDatabase(ctrl)

	eng := engine.New(&testDelegate{}, noopLogger{})
	require.NoError(t, eng.AddRule(engine.Rule{
		Key:    "value",
		Action: func() engine.Task { return newSimpleTask(nil, func([]int) int { return 1 }) },
	}))

	err := eng.AttachDB(database)
	assert.ErrorIs(t, err, domain.ErrDatabaseAttached)
}

func TestEngine_AttachDBTwiceFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	database := mocks.NewMockDatabase(ctrl)
	database.EXPECT().GetCurrentIteration().Return(uint64(0), nil)

	eng := engine.New(&testDelegate{}, noopLogger{})
	require.NoError(t, eng.AttachDB(database))
	assert.ErrorIs(t, eng.AttachDB(database), domain.ErrDatabaseAttached)
}
