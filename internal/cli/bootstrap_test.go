package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/escalator/internal/agent"
	"github.com/example/escalator/internal/ctxutil"
)

func resetActor(t *testing.T) {
	t.Cleanup(func() {
		actorFlag = ""
		globalActorID = ""
	})
}

func TestDetectAndStoreActor_Flag(t *testing.T) {
	resetActor(t)
	actorFlag = "USR-042"

	require.NoError(t, DetectAndStoreActor())

	assert.Equal(t, "USR-042", GetActorID())
	assert.Equal(t, "USR-042", ctxutil.ActorFromContext(NewContext()))
}

func TestDetectAndStoreActor_InvalidFlag(t *testing.T) {
	resetActor(t)
	actorFlag = "system:"

	assert.Error(t, DetectAndStoreActor())
}

func TestDetectAndStoreActor_Env(t *testing.T) {
	resetActor(t)
	t.Setenv(agent.EnvActor, "USR-COUNSELOR")

	require.NoError(t, DetectAndStoreActor())

	assert.Equal(t, "USR-COUNSELOR", GetActorID())
}

func TestNewContext_NoActor(t *testing.T) {
	resetActor(t)

	assert.Empty(t, ctxutil.ActorFromContext(NewContext()))
}
