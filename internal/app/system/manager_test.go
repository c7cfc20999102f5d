package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	*s.log = append(*s.log, "start "+s.name)
	return nil
}

func (s *recordingService) Stop(context.Context) error {
	*s.log = append(*s.log, "stop "+s.name)
	return s.stopErr
}

func TestManager_StartStopOrder(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", log: &log}))
	require.NoError(t, m.Register(&recordingService{name: "b", log: &log}))
	assert.Equal(t, []string{"a", "b"}, m.Names())

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestManager_RegisterRules(t *testing.T) {
	var log []string
	m := NewManager()
	assert.Error(t, m.Register(nil))
	require.NoError(t, m.Register(&recordingService{name: "a", log: &log}))
	assert.Error(t, m.Register(&recordingService{name: "a", log: &log}))

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Register(&recordingService{name: "late", log: &log}))
}

func TestManager_StartFailureStopsStarted(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", log: &log}))
	require.NoError(t, m.Register(&recordingService{name: "b", log: &log, startErr: errors.New("boom")}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "stop a"}, log)
}

func TestManager_StopJoinsErrors(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(&recordingService{name: "a", log: &log, stopErr: errors.New("a failed")}))
	require.NoError(t, m.Register(&recordingService{name: "b", log: &log, stopErr: errors.New("b failed")}))
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a failed")
	assert.Contains(t, err.Error(), "b failed")
	assert.NoError(t, m.Stop(context.Background()), "second stop is a no-op")
}
