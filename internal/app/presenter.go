package app

import "context"

// Presenter delivers out-of-band updates to a player's board. Failures never affect engine state.
type Presenter interface {
	PushQuestion(ctx context.Context, view QuestionView) error
	PushResolution(ctx context.Context, res Resolution) error
}

// NopPresenter drops every push.
type NopPresenter struct{}

func (NopPresenter) PushQuestion(context.Context, QuestionView) error { return nil }

func (NopPresenter) PushResolution(context.Context, Resolution) error { return nil }
