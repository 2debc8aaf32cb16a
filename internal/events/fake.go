package events

import "context"

// FakePublisher records every publish call, used by engine tests to
// assert idempotent replays and fraud rejections emit nothing.
type FakePublisher struct {
	Created   []TransferCreated
	Completed []TransferCompleted
	Cancelled []TransferCancelled
}

func NewFakePublisher() *FakePublisher { return &FakePublisher{} }

func (f *FakePublisher) PublishTransferCreated(ctx context.Context, e TransferCreated) error {
	f.Created = append(f.Created, e)
	return nil
}

func (f *FakePublisher) PublishTransferCompleted(ctx context.Context, e TransferCompleted) error {
	f.Completed = append(f.Completed, e)
	return nil
}

func (f *FakePublisher) PublishTransferCancelled(ctx context.Context, e TransferCancelled) error {
	f.Cancelled = append(f.Cancelled, e)
	return nil
}
