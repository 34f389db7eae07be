package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OtelAPI forwards every report to an inner API and mirrors counts and breakages into otel
// metrics so they reach the collector configured by Setup.
type OtelAPI struct {
	inner API

	broken metric.Int64Counter
	warned metric.Int64Counter
	meter  metric.Meter

	mutex  sync.Mutex
	gauges map[string]metric.Int64Gauge
}

func NewOtelAPI(meterName string, inner API) (*OtelAPI, error) {
	meter := otel.Meter(meterName)
	broken, err := meter.Int64Counter("broken_reports")
	if err != nil {
		return nil, err
	}
	warned, err := meter.Int64Counter("warning_reports")
	if err != nil {
		return nil, err
	}
	return &OtelAPI{
		inner:  inner,
		broken: broken,
		warned: warned,
		meter:  meter,
		gauges: make(map[string]metric.Int64Gauge),
	}, nil
}

func (o *OtelAPI) ReportBroken(id string, params ...any) {
	o.broken.Add(context.Background(), 1, metric.WithAttributes(attribute.String("id", id)))
	o.inner.ReportBroken(id, params...)
}

func (o *OtelAPI) ReportWarning(id string, params ...any) {
	o.warned.Add(context.Background(), 1, metric.WithAttributes(attribute.String("id", id)))
	o.inner.ReportWarning(id, params...)
}

func (o *OtelAPI) ReportInfo(msg string, params ...any) {
	o.inner.ReportInfo(msg, params...)
}

func (o *OtelAPI) ReportDebug(msg string, params ...any) {
	o.inner.ReportDebug(msg, params...)
}

func (o *OtelAPI) ReportCount(id string, count int64) {
	o.mutex.Lock()
	gauge, ok := o.gauges[id]
	if !ok {
		var err error
		gauge, err = o.meter.Int64Gauge(id)
		if err != nil {
			o.mutex.Unlock()
			o.inner.ReportBroken("otel.gauge", err, id)
			return
		}
		o.gauges[id] = gauge
	}
	o.mutex.Unlock()

	gauge.Record(context.Background(), count)
	o.inner.ReportCount(id, count)
}
