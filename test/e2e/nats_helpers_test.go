package e2e

import (
	"testing"

	"checkengine/test/testutil"
)

const (
	e2eRawSubject    = "checkengine.raw"
	e2eResultSubject = "checkengine.results"
)

// startLocalNATSServer starts a local JetStream NATS process for e2e tests.
// Params: testing handle for lifecycle/error reporting.
// Returns: server URL and stop callback.
func startLocalNATSServer(tb testing.TB) (string, func()) {
	return testutil.StartLocalNATSServer(tb)
}

// publishRaw publishes one raw document to the ingest stream.
func publishRaw(tb testing.TB, url, body string) {
	tb.Helper()

	_, js := testutil.ConnectJetStream(tb, url)
	if _, err := js.Publish(e2eRawSubject, []byte(body)); err != nil {
		tb.Fatalf("publish raw: %v", err)
	}
}
