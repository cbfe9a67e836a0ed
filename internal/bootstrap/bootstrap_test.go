package bootstrap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheEntropyCollective/oswrapper/backend/posix"
	"github.com/TheEntropyCollective/oswrapper/errkind"
	"github.com/TheEntropyCollective/oswrapper/internal/bootstrap"
	"github.com/TheEntropyCollective/oswrapper/mutex"
	"github.com/TheEntropyCollective/oswrapper/thread"
)

func TestInitRegistersBackendFactories(t *testing.T) {
	cfg := bootstrap.DefaultConfig()
	bootstrap.Init(*cfg, bootstrap.Backend(posix.Register))

	m, err := mutex.Create()
	require.NoError(t, err)
	defer mutex.Destroy(m)

	require.Equal(t, errkind.OK, m.Lock())
	require.Equal(t, errkind.OK, m.Unlock())

	require.NotPanics(t, func() {
		_ = thread.PriorityNormal()
	})
}

func TestInitAppliesResolvedPoolSizeFromConfig(t *testing.T) {
	cfg := bootstrap.DefaultConfig()
	cfg.ThreadPoolSize = 3
	bootstrap.Init(*cfg, bootstrap.Backend(posix.Register))

	require.Equal(t, 3, cfg.ResolvedPoolSize())
}
