package store

import "github.com/prometheus/client_golang/prometheus"

// PromCollector is a prometheus.Collector exposing a Runtime's
// statistics snapshot as a read-only bridge. It never touches the cache
// or subscription locks directly: every scrape is a single Stats() call,
// keeping Prometheus entirely off FCOM's hot path, the same separation
// internal/metricdata/prometheus.go draws between its query client and
// the store it reads from.
type PromCollector struct {
	rt *Runtime

	blobsReceived   *prometheus.Desc
	blobsDropped    *prometheus.Desc
	bytesReceived   *prometheus.Desc
	getBlobCalls    *prometheus.Desc
	getBlobTimeouts *prometheus.Desc
	subscribeCalls  *prometheus.Desc
	sendCalls       *prometheus.Desc
	sendErrors      *prometheus.Desc
	poolAvail       *prometheus.Desc
	poolTotal       *prometheus.Desc
}

// NewPromCollector builds a collector for rt. Register it with a
// prometheus.Registry (or prometheus.MustRegister for the default one).
func NewPromCollector(rt *Runtime) *PromCollector {
	ns := "fcom"
	return &PromCollector{
		rt:              rt,
		blobsReceived:   prometheus.NewDesc(ns+"_blobs_received_total", "Blobs successfully received and cached.", nil, nil),
		blobsDropped:    prometheus.NewDesc(ns+"_blobs_dropped_total", "Blobs discarded (decode error, not subscribed, or pool exhaustion).", nil, nil),
		bytesReceived:   prometheus.NewDesc(ns+"_bytes_received_total", "Payload bytes received.", nil, nil),
		getBlobCalls:    prometheus.NewDesc(ns+"_get_blob_calls_total", "get-blob invocations.", nil, nil),
		getBlobTimeouts: prometheus.NewDesc(ns+"_get_blob_timeouts_total", "get-blob calls that timed out waiting for an update.", nil, nil),
		subscribeCalls:  prometheus.NewDesc(ns+"_subscribe_calls_total", "subscribe invocations.", nil, nil),
		sendCalls:       prometheus.NewDesc(ns+"_send_calls_total", "send-blob(s) invocations.", nil, nil),
		sendErrors:      prometheus.NewDesc(ns+"_send_errors_total", "send-blob(s) calls that failed.", nil, nil),
		poolAvail:       prometheus.NewDesc(ns+"_pool_buffers_available", "Free buffers per size class.", []string{"class"}, nil),
		poolTotal:       prometheus.NewDesc(ns+"_pool_buffers_total", "Total buffers per size class.", []string{"class"}, nil),
	}
}

func (p *PromCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.blobsReceived
	ch <- p.blobsDropped
	ch <- p.bytesReceived
	ch <- p.getBlobCalls
	ch <- p.getBlobTimeouts
	ch <- p.subscribeCalls
	ch <- p.sendCalls
	ch <- p.sendErrors
	ch <- p.poolAvail
	ch <- p.poolTotal
}

func (p *PromCollector) Collect(ch chan<- prometheus.Metric) {
	snap := p.rt.Stats()

	ch <- prometheus.MustNewConstMetric(p.blobsReceived, prometheus.CounterValue, float64(snap.BlobsReceived))
	ch <- prometheus.MustNewConstMetric(p.blobsDropped, prometheus.CounterValue, float64(snap.BlobsDropped))
	ch <- prometheus.MustNewConstMetric(p.bytesReceived, prometheus.CounterValue, float64(snap.BytesReceived))
	ch <- prometheus.MustNewConstMetric(p.getBlobCalls, prometheus.CounterValue, float64(snap.GetBlobCalls))
	ch <- prometheus.MustNewConstMetric(p.getBlobTimeouts, prometheus.CounterValue, float64(snap.GetBlobTimeouts))
	ch <- prometheus.MustNewConstMetric(p.subscribeCalls, prometheus.CounterValue, float64(snap.SubscribeCalls))
	ch <- prometheus.MustNewConstMetric(p.sendCalls, prometheus.CounterValue, float64(snap.SendCalls))
	ch <- prometheus.MustNewConstMetric(p.sendErrors, prometheus.CounterValue, float64(snap.SendErrors))

	for i, n := range snap.PoolAvail {
		class := classLabel(i)
		ch <- prometheus.MustNewConstMetric(p.poolAvail, prometheus.GaugeValue, float64(n), class)
	}
	for i, n := range snap.PoolTotal {
		class := classLabel(i)
		ch <- prometheus.MustNewConstMetric(p.poolTotal, prometheus.GaugeValue, float64(n), class)
	}
}

func classLabel(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return string(digits[i/10]) + string(digits[i%10])
}
