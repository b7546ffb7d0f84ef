package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/programmer4yugal/buildchain/pkg/ledger"
)

var _ ledger.Observer = (*Provider)(nil)

// RecordBlockAppended counts a committed block and tags the current span.
func (p *Provider) RecordBlockAppended(ctx context.Context, ledgerName, category string, blockNumber int64, hash string) {
	p.blocksAppended.Add(ctx, 1, metric.WithAttributes(ledger.AttrLedger.String(ledgerName), ledger.AttrCategory.String(category)))
	AddSpanEvent(ctx, "block.appended", ledger.AttrBlockNumber.Int64(blockNumber), ledger.AttrBlockHash.String(hash))
}

// RecordVerification counts a finished verification and its findings.
func (p *Provider) RecordVerification(ctx context.Context, ledgerName, mode string, tampered, breaks int) {
	attrs := metric.WithAttributes(ledger.AttrLedger.String(ledgerName), ledger.AttrVerifyMode.String(mode))
	p.verifyRuns.Add(ctx, 1, attrs)
	if tampered > 0 {
		p.verifyTampered.Add(ctx, int64(tampered), attrs)
	}
	if breaks > 0 {
		p.verifyBreaks.Add(ctx, int64(breaks), attrs)
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus marks the current span as failed when err is non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
