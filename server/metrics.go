package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsServed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloud_http_requests",
		Help: "Total number of blob service http requests served",
	})
	httpErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloud_http_errors",
		Help: "Total number of blob service http engine errors",
	})
	uploadsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloud_blob_uploads_total",
		Help: "Total number of committed uploads",
	})
	uploadBytesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloud_blob_upload_bytes_total",
		Help: "Total number of bytes in committed uploads",
	})
	downloadsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloud_blob_downloads_total",
		Help: "Total number of completed downloads",
	})
	downloadAbortsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloud_blob_download_aborts_total",
		Help: "Total number of downloads that failed after the response started",
	})
	deletesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloud_blob_deletes_total",
		Help: "Total number of delete requests served",
	})
	garbageCollectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cloud_blob_gc_collected_total",
		Help: "Total number of orphaned blobs whose chunks were reclaimed",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsServed, httpErrorsCounter, uploadsCounter, uploadBytesCounter,
		downloadsCounter, downloadAbortsCounter, deletesCounter, garbageCollectedCounter)
}

// engineMetrics is a Gin middleware that records things like number of errors directly from the http engine.
func engineMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		httpRequestsServed.Inc()
		if len(c.Errors.Errors()) > 0 {
			httpErrorsCounter.Inc()
		}
	}
}

// GarbageCollected records blobs reclaimed by the orphan sweep
func GarbageCollected(n int) {
	garbageCollectedCounter.Add(float64(n))
}
