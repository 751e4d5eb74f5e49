package orchestrator

// Listener receives the callbacks of one build: OnStageChanged zero or more
// times, then exactly one of OnSuccess or OnFailed.
type Listener interface {
	OnStageChanged(stage string)
	OnSuccess()
	OnFailed(diagnostic string)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	StageChanged func(stage string)
	Success      func()
	Failed       func(diagnostic string)
}

func (l ListenerFuncs) OnStageChanged(stage string) {
	if l.StageChanged != nil {
		l.StageChanged(stage)
	}
}

func (l ListenerFuncs) OnSuccess() {
	if l.Success != nil {
		l.Success()
	}
}

func (l ListenerFuncs) OnFailed(diagnostic string) {
	if l.Failed != nil {
		l.Failed(diagnostic)
	}
}

// Drive forwards the events of h to l and blocks until the build finishes.
// The terminal callback always fires exactly once, after every stage
// callback.
func Drive(h *Handle, l Listener) Result {
	for ev := range h.Events() {
		l.OnStageChanged(ev.Stage.Label())
	}
	<-h.Done()
	res := h.result
	if res.Succeeded() {
		l.OnSuccess()
	} else {
		l.OnFailed(res.Diagnostic)
	}
	return res
}
