package application

import "time"

// Observer receives pipeline events, typically to feed metrics.
type Observer interface {
	StageCompleted(stage Stage, elapsed time.Duration)
	StageFailed(stage Stage, reason string)
	ReplyDegraded(kind string)
	PersistFailed()
	TurnFinished(outcome string)
}

type NoopObserver struct{}

func (NoopObserver) StageCompleted(Stage, time.Duration) {}
func (NoopObserver) StageFailed(Stage, string)           {}
func (NoopObserver) ReplyDegraded(string)                {}
func (NoopObserver) PersistFailed()                      {}
func (NoopObserver) TurnFinished(string)                 {}
