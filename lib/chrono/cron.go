package chrono

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// CronAPI is the interface that anything depending on things to happen on a cron job should use.
type CronAPI interface {
	Cron(spec string, callback func()) error
}

// StandardCron is the standard implementation of CronAPI using `github.com/robfig/cron/v3`,
// schedules are interpreted in the platform's timezone.
type StandardCron struct {
	cron *cron.Cron
	// runs started by CronNow, the scheduler only tracks its own
	immediate *sync.WaitGroup
}

func NewStandardCron() StandardCron {
	cronner := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithLocation(shanghai),
		// a crawl that is still running when the next one is due is not doubled up
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	cronner.Start()

	return StandardCron{
		cron:      cronner,
		immediate: &sync.WaitGroup{},
	}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	return err
}

// CronNow schedules `callback` like Cron and also starts a run right away.
// The first run goes through the same job chain, a scheduled run that comes
// due while it is still going is skipped.
func (s StandardCron) CronNow(spec string, callback func()) error {
	id, err := s.cron.AddFunc(spec, callback)
	if err != nil {
		return err
	}
	job := s.cron.Entry(id).WrappedJob
	s.immediate.Add(1)
	go func() {
		defer s.immediate.Done()
		job.Run()
	}()
	return nil
}

// Stop stops scheduling new runs and waits for running ones to finish.
func (s StandardCron) Stop() {
	<-s.cron.Stop().Done()
	s.immediate.Wait()
}

type cronLogger struct{}

func formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	return params
}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug(fmt.Sprintf("cron: %s", msg), formatParams(keysAndValues)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error(fmt.Sprintf("cron: %s", msg), append(formatParams(keysAndValues), "err", err)...)
}
