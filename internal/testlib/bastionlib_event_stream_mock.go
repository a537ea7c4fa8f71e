package testlib

import (
	"context"

	"github.com/promptdeck/bastion/bastionlib"
	"github.com/stretchr/testify/mock"
)

type BastionlibEventStreamMock struct {
	mock.Mock
}

func (b *BastionlibEventStreamMock) Send(ctx context.Context, evt bastionlib.Event) {
	b.Called(ctx, evt)
}
