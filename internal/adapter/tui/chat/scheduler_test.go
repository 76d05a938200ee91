package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickSchedulerRunsOnce(t *testing.T) {
	s := NewTickScheduler()
	var ran []string
	s.After(10*time.Millisecond, func() { ran = append(ran, "a") })
	s.After(20*time.Millisecond, func() { ran = append(ran, "b") })

	require.Len(t, s.Cmds(), 2)
	assert.Nil(t, s.Cmds(), "commands are handed out once")
	assert.Equal(t, 2, s.Pending())

	assert.True(t, s.Run(2))
	assert.False(t, s.Run(2))
	assert.True(t, s.Run(1))
	assert.False(t, s.Run(99))

	assert.Equal(t, []string{"b", "a"}, ran)
	assert.Equal(t, 0, s.Pending())
}

func TestTickSchedulerCmdDeliversID(t *testing.T) {
	s := NewTickScheduler()
	s.After(time.Millisecond, func() {})

	cmds := s.Cmds()
	require.Len(t, cmds, 1)
	assert.Equal(t, ScheduledMsg{ID: 1}, cmds[0]())
}
