package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerationJob(t *testing.T) {
	j := NewGenerationJob("remote-1")

	assert.Equal(t, "remote-1", j.ID())
	assert.IsType(t, Submitted{}, j.State())
	assert.False(t, j.State().Terminal())
	assert.Nil(t, j.Outputs())
}

func TestGenerationJob_HappyPath(t *testing.T) {
	j := NewGenerationJob("remote-1")

	require.NoError(t, j.Observe("starting"))
	require.NoError(t, j.Observe("processing"))

	p, ok := j.State().(Polling)
	require.True(t, ok)
	assert.Equal(t, 2, p.Polls)
	assert.Equal(t, "processing", p.Remote)

	outputs := []Output{{Ordinal: 1, URL: "https://x/1.png"}, {Ordinal: 2, URL: "https://x/2.png"}}
	require.NoError(t, j.Succeed(outputs))

	assert.True(t, j.State().Terminal())
	assert.Equal(t, outputs, j.Outputs())
}

func TestGenerationJob_Transitions(t *testing.T) {
	submitted := func() *GenerationJob { return NewGenerationJob("r") }
	polling := func() *GenerationJob {
		j := NewGenerationJob("r")
		require.NoError(t, j.Observe("processing"))
		return j
	}
	terminal := func(apply func(*GenerationJob) error) func() *GenerationJob {
		return func() *GenerationJob {
			j := polling()
			require.NoError(t, apply(j))
			return j
		}
	}

	succeed := func(j *GenerationJob) error { return j.Succeed(nil) }
	fail := func(j *GenerationJob) error { return j.Fail("boom") }
	timeOut := func(j *GenerationJob) error { return j.TimeOut() }
	observe := func(j *GenerationJob) error { return j.Observe("processing") }

	tests := []struct {
		name    string
		from    func() *GenerationJob
		apply   func(*GenerationJob) error
		wantErr bool
	}{
		{"submitted to polling", submitted, observe, false},
		{"submitted to timed out", submitted, timeOut, false},
		{"submitted to succeeded", submitted, succeed, true},
		{"submitted to failed", submitted, fail, true},
		{"polling to polling", polling, observe, false},
		{"polling to succeeded", polling, succeed, false},
		{"polling to failed", polling, fail, false},
		{"polling to timed out", polling, timeOut, false},
		{"succeeded is terminal", terminal(succeed), observe, true},
		{"failed is terminal", terminal(fail), succeed, true},
		{"timed out is terminal", terminal(timeOut), fail, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := tt.from()
			before := j.State()

			err := tt.apply(j)

			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, before, j.State(), "state must not change on a rejected transition")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestState_Names(t *testing.T) {
	states := []State{Submitted{}, Polling{}, Succeeded{}, Failed{}, TimedOut{}}
	names := map[string]bool{}
	for _, s := range states {
		assert.NotEmpty(t, s.Name())
		assert.False(t, names[s.Name()], "duplicate state name %s", s.Name())
		names[s.Name()] = true
	}
}
