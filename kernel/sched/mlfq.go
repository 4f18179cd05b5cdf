package sched

import (
	"github.com/kernelkit/pintos-go/internal/fixedpoint"
	"github.com/kernelkit/pintos-go/kernel/thread"
)

// mlfqOnTick runs the three MLFQ bookkeeping passes in the order the
// formulas require: recent_cpu's own +1 happened already in onTick; here
// load_avg is recomputed (it feeds recent_cpu's decay coefficient), then
// recent_cpu for every thread, then every MLFQRecomputeInterval ticks,
// priority for every thread.
func (s *Scheduler) mlfqOnTick() {
	if s.tick%TimerFreq == 0 {
		s.mlfqRecomputeLoadAvg()
		s.mlfqRecomputeAllRecentCPU()
	}
	s.mlfqTicksSinceRecompute++
	if s.mlfqTicksSinceRecompute >= MLFQRecomputeInterval {
		s.mlfqTicksSinceRecompute = 0
		s.mlfqRecomputeAllPriorities()
	}
}

// mlfqRecomputeLoadAvg implements load_avg = (59/60)*load_avg + (1/60)*ready_threads,
// where ready_threads counts the running thread (if not idle) plus the
// ready queue, per thread_mlfqs_recompute_load_avg.
func (s *Scheduler) mlfqRecomputeLoadAvg() {
	fiftyNineSixtieths := fixedpoint.FromInt(59).Div(fixedpoint.FromInt(60))
	oneSixtieth := fixedpoint.FromInt(1).Div(fixedpoint.FromInt(60))

	readyThreads := s.ready.Len()
	if s.current != nil && s.current != s.idle {
		readyThreads++
	}

	first := fiftyNineSixtieths.Mul(s.loadAvg)
	second := oneSixtieth.MulInt(int64(readyThreads))
	s.loadAvg = first.Add(second)
}

// mlfqRecomputeAllRecentCPU implements
// recent_cpu = (2*load_avg)/(2*load_avg+1) * recent_cpu + nice for every
// live thread, per thread_mlfqs_recompute_recent_cpu.
func (s *Scheduler) mlfqRecomputeAllRecentCPU() {
	twiceLoadAvg := s.loadAvg.MulInt(2)
	coefficient := twiceLoadAvg.Div(twiceLoadAvg.AddInt(1))
	s.forEachLiveThread(func(t *thread.TCB) {
		t.RecentCPU = coefficient.Mul(t.RecentCPU).AddInt(int64(t.Nice))
	})
}

// mlfqRecomputeAllPriorities implements
// priority = PRI_MAX - (recent_cpu/4) - (nice*2), clamped to
// [PriMin,PriMax], per thread_mlfqs_recompute_priority. recent_cpu/4 is
// computed in fixed point and truncated toward zero.
func (s *Scheduler) mlfqRecomputeAllPriorities() {
	s.forEachLiveThread(func(t *thread.TCB) {
		recentCPUQuarter := t.RecentCPU.DivInt(4).ToIntTrunc()
		p := thread.PriMax - int32(recentCPUQuarter) - t.Nice*2
		if p > thread.PriMax {
			p = thread.PriMax
		}
		if p < thread.PriMin {
			p = thread.PriMin
		}
		t.MLFQPriority = p
		t.BasePriority = p
	})
	s.ready.Reorder()
}

// forEachLiveThread applies f to every registered thread except idle.
func (s *Scheduler) forEachLiveThread(f func(*thread.TCB)) {
	for _, t := range s.reg.All() {
		if t == s.idle {
			continue
		}
		f(t)
	}
}

// LoadAvgPercent100 returns 100*load_avg rounded to the nearest integer,
// matching thread_get_load_avg's reporting convention.
func (s *Scheduler) LoadAvgPercent100() int64 {
	return s.loadAvg.Percent100Round()
}

// RecentCPUPercent100 returns 100*t.RecentCPU rounded to the nearest
// integer, matching thread_get_recent_cpu.
func (s *Scheduler) RecentCPUPercent100(t *thread.TCB) int64 {
	return t.RecentCPU.Percent100Round()
}
