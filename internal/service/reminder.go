package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReminderScheduler 定时提醒仍处于 active 状态的 SOS 告警
type ReminderScheduler struct {
	c   *cron.Cron
	sos *SOSService
	log *zap.Logger
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewReminderScheduler registers the reminder sweep on schedule
func NewReminderScheduler(sos *SOSService, schedule string, after time.Duration, log *zap.Logger) (*ReminderScheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{s: log.Sugar()}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	r := &ReminderScheduler{c: c, sos: sos, log: log}
	if _, err := c.AddFunc(schedule, func() { r.sweep(after) }); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ReminderScheduler) sweep(after time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := r.sos.RemindStale(ctx, after)
	if err != nil {
		r.log.Error("sos reminder sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("sos reminders published", zap.Int("alerts", n))
	}
}

// Start 启动调度
func (r *ReminderScheduler) Start() { r.c.Start() }

// Stop waits for a running sweep to finish
func (r *ReminderScheduler) Stop() {
	<-r.c.Stop().Done()
}
