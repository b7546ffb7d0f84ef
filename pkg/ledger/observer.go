package ledger

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Telemetry attribute keys shared by the ledger and its Observer.
var (
	AttrOperation   = attribute.Key("buildchain.operation")
	AttrLedger      = attribute.Key("buildchain.ledger")
	AttrCategory    = attribute.Key("buildchain.category")
	AttrBlockNumber = attribute.Key("buildchain.block.number")
	AttrBlockHash   = attribute.Key("buildchain.block.hash")
	AttrVerifyMode  = attribute.Key("buildchain.verify.mode")
)

// Observer receives spans and counters for ledger operations.
// *observability.Provider implements it.
type Observer interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
	RecordBlockAppended(ctx context.Context, ledger, category string, blockNumber int64, hash string)
	RecordVerification(ctx context.Context, ledger, mode string, tampered, breaks int)
}

type noopObserver struct{}

func (noopObserver) TrackOperation(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (noopObserver) RecordBlockAppended(context.Context, string, string, int64, string) {}

func (noopObserver) RecordVerification(context.Context, string, string, int, int) {}
