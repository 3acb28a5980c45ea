package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/urlmonitor/internal/domain"
	"github.com/hamed0406/urlmonitor/internal/policy"
	"github.com/hamed0406/urlmonitor/internal/probe"
)

// task is the monitor loop for one definition. It ends only when its
// context is cancelled.
type task struct {
	def  domain.CheckDefinition
	deps Deps
	opts Options
	log  *zap.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	failures atomic.Int64
}

func (t *task) run(ctx context.Context) {
	defer close(t.done)

	interval := t.def.Interval(t.opts.IntervalUnit)
	t.log.Info("monitor_started", zap.Duration("interval", interval))

	for {
		if ctx.Err() != nil {
			t.log.Info("monitor_stopped")
			return
		}
		t.cycle(ctx)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.log.Info("monitor_stopped")
			return
		case <-timer.C:
		}
	}
}

// cycle runs probe, evaluate, alert and record in order. Side effects use a
// context detached from cancellation so a started cycle always completes.
func (t *task) cycle(ctx context.Context) {
	work := context.WithoutCancel(ctx)

	out := t.probe(work)
	completed := time.Now().UTC()

	counter, action := t.deps.Policy.Next(int(t.failures.Load()), out.Pass)
	t.failures.Store(int64(counter))

	t.log.Debug("monitor_checked",
		zap.Bool("pass", out.Pass),
		zap.Int("status", out.StatusCode),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.String("reason", out.Message),
		zap.Int("failures", counter),
		zap.Stringer("action", action),
	)

	if action != policy.None {
		t.alert(work, action)
	}

	state := domain.StateFailure
	if out.Pass {
		state = domain.StateSuccess
	}
	t.record(work, &domain.CheckResult{
		CheckID:     t.def.ID,
		TimeChecked: completed,
		StatusCode:  out.StatusCode,
		State:       state,
	})
}

func (t *task) probe(ctx context.Context) probe.Outcome {
	out := probe.Outcome{Message: "probe did not complete"}
	t.guard("probe", func() error {
		out = t.deps.Checker.Check(ctx, probe.Request{
			URL:            t.def.URL,
			ExpectedStatus: t.def.ExpectedStatus,
			ExpectedString: t.def.ExpectedString,
		})
		return nil
	})

	if t.opts.DNSDiagnostics && out.StatusCode == 0 {
		t.guard("dns_diagnosis", func() error {
			st := probe.Diagnose(ctx, t.def.URL)
			t.log.Warn("monitor_dns_diagnosis",
				zap.String("domain", st.Domain),
				zap.String("class", st.Class),
				zap.Strings("nameservers", st.Nameservers),
				zap.String("resolver_error", st.ResolverError),
			)
			return nil
		})
	}
	return out
}

func (t *task) alert(ctx context.Context, action policy.Action) {
	if t.deps.Notifier == nil {
		t.log.Warn("monitor_alert_dropped", zap.Stringer("action", action))
		return
	}

	if action.Has(policy.UserAlert) {
		var recipients []string
		ok := t.guard("recipients", func() error {
			if t.deps.Recipients == nil {
				return nil
			}
			sctx, cancel := context.WithTimeout(ctx, t.opts.StoreTimeout)
			defer cancel()
			var err error
			recipients, err = t.deps.Recipients.Recipients(sctx, t.def.ID)
			return err
		})
		if ok {
			t.guard("alert_users", func() error {
				nctx, cancel := context.WithTimeout(ctx, t.opts.NotifyTimeout)
				defer cancel()
				return t.deps.Notifier.AlertUsers(nctx, t.def, recipients)
			})
		}
	}

	if action.Has(policy.AdminEscalation) {
		t.guard("alert_admin", func() error {
			nctx, cancel := context.WithTimeout(ctx, t.opts.NotifyTimeout)
			defer cancel()
			return t.deps.Notifier.AlertAdmin(nctx, t.def)
		})
	}
}

func (t *task) record(ctx context.Context, r *domain.CheckResult) {
	if t.deps.Results == nil {
		return
	}
	t.guard("record", func() error {
		sctx, cancel := context.WithTimeout(ctx, t.opts.StoreTimeout)
		defer cancel()
		return t.deps.Results.SaveResult(sctx, r)
	})
}

// guard runs one step of a cycle, logging its error or panic. It reports
// whether the step succeeded.
func (t *task) guard(step string, fn func() error) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("monitor_step_panic",
				zap.String("step", step),
				zap.String("panic", fmt.Sprint(rec)),
				zap.Stack("stack"),
			)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		t.log.Warn("monitor_step_failed", zap.String("step", step), zap.Error(err))
		return false
	}
	return true
}
