package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/docker/go-metrics"

	prometheus "github.com/distribution/archiver/metrics"
)

var (
	// requests counts answered requests by route and status code
	requests = prometheus.HTTPNamespace.NewLabeledCounter("requests", "The number of requests answered", "route", "code")

	// requestDuration is the time taken to answer requests by route
	requestDuration = prometheus.HTTPNamespace.NewLabeledTimer("request_duration", "The number of seconds taken to answer a request", "route")
)

func init() {
	metrics.Register(prometheus.HTTPNamespace)
}

func observeRequest(route string, status int, start time.Time) {
	if status == 0 {
		status = http.StatusOK
	}
	requests.WithValues(route, strconv.Itoa(status)).Inc()
	requestDuration.WithValues(route).UpdateSince(start)
}
