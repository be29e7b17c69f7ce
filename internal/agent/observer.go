package agent

import "time"

// Observer 接收编排过程中的事件，metrics 包实现它
type Observer interface {
	ObserveNode(node string, elapsed time.Duration)
	ObserveGrade(grader string, yes bool)
	ObserveRewrite()
	ObserveRetry(mode string)
	ObserveFallback()
	ObserveRun(outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveNode(string, time.Duration) {}
func (nopObserver) ObserveGrade(string, bool) {}
func (nopObserver) ObserveRewrite() {}
func (nopObserver) ObserveRetry(string) {}
func (nopObserver) ObserveFallback() {}
func (nopObserver) ObserveRun(string, time.Duration) {}
