package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	panic bool
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }
func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	return j.err
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, nil), ErrNilSchedule)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1m0s", jobs[0].Schedule)
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	panicking := &countingJob{name: "panicking", panic: true}
	require.NoError(t, s.Register(ok, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(failing, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(panicking, NewIntervalSchedule(time.Hour)))

	var completed atomic.Int32
	s.OnJobComplete(func(JobResult) { completed.Add(1) })

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	res, err = s.RunNow(context.Background(), "failing")
	assert.Error(t, err)
	assert.False(t, res.Success)

	res, err = s.RunNow(context.Background(), "panicking")
	assert.ErrorIs(t, err, ErrJobPanicked)
	assert.Equal(t, "panicking", res.JobName)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, int32(3), completed.Load())
}

func TestScheduler_StartAndRun(t *testing.T) {
	s := NewScheduler(SchedulerConfig{TickInterval: 10 * time.Millisecond})
	job := &countingJob{name: "a"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.StartAndRun(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestIntervalSchedule(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(5*time.Minute), NewIntervalSchedule(5*time.Minute).Next(base))
	assert.Equal(t, time.Second, NewIntervalSchedule(0).Interval)
}

func TestWindowSchedule(t *testing.T) {
	s := NewWindowSchedule(15*time.Minute, 18, 23)
	assert.Equal(t, "@every 15m0s between 18:00-23:00", s.String())

	morning := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC), s.Next(morning))

	evening := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, evening.Add(15*time.Minute), s.Next(evening))

	late := time.Date(2024, 3, 10, 22, 50, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 11, 18, 0, 0, 0, time.UTC), s.Next(late))

	// An empty window falls back to all day.
	all := NewWindowSchedule(time.Hour, 20, 20)
	assert.Equal(t, "@every 1h0m0s", all.String())
}
