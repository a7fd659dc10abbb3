package handlers

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubeboot/kubeboot/internal/config"
	"github.com/kubeboot/kubeboot/internal/stage"
	"github.com/kubeboot/kubeboot/internal/state"
)

func TestStatus_ConfigLoadError(t *testing.T) {
	saveAndRestoreFactories(t)

	loadConfigFile = func(_ string) (*config.Config, error) {
		return nil, errors.New("no such file")
	}

	err := Status(context.Background(), StatusOptions{})
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, CodeConfigError, exitErr.Code)
}

func TestStatus_NoStateRecorded(t *testing.T) {
	saveAndRestoreFactories(t)

	var out bytes.Buffer
	stdout = &out
	loadConfigFile = func(_ string) (*config.Config, error) { return testConfig(), nil }
	loadState = func(_ *state.Store) (*state.Cluster, error) { return nil, nil }

	err := Status(context.Background(), StatusOptions{})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No run state recorded")
}

func TestStatus_RendersRecordedState(t *testing.T) {
	saveAndRestoreFactories(t)

	var out bytes.Buffer
	stdout = &out
	loadConfigFile = func(_ string) (*config.Config, error) { return testConfig(), nil }

	st := state.New()
	for _, s := range []string{stage.InstallPackages, stage.PrepareRuntime, stage.InitPrimary} {
		st.Record("10.0.0.10", s, state.OutcomeSucceeded, "")
	}
	st.Record("10.0.0.20", stage.InstallPackages, state.OutcomeSucceeded, "")
	st.Record("10.0.0.20", stage.PrepareRuntime, state.OutcomeFailed, "modprobe exited 1")
	loadState = func(_ *state.Store) (*state.Cluster, error) { return st, nil }

	err := Status(context.Background(), StatusOptions{})
	require.NoError(t, err)

	assert.Contains(t, out.String(), st.RunID())
	assert.Contains(t, out.String(), "10.0.0.10")
	assert.Contains(t, out.String(), "10.0.0.20")
	assert.Contains(t, out.String(), "modprobe exited 1")
	assert.Contains(t, out.String(), "partial")
}

func TestStatus_StateLoadError(t *testing.T) {
	saveAndRestoreFactories(t)

	loadConfigFile = func(_ string) (*config.Config, error) { return testConfig(), nil }
	loadState = func(_ *state.Store) (*state.Cluster, error) {
		return nil, errors.New("corrupt state")
	}

	err := Status(context.Background(), StatusOptions{})
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, CodeConfigError, exitErr.Code)
}
