package streams

import (
	"testing"
	"time"

	"checkengine/test/testutil"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesStreamOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	natsURL, stop := testutil.StartLocalNATSServer(t)
	defer stop()

	spec := Spec{Name: "RAW_TEST", Subject: "raw.test", Retention: nats.WorkQueuePolicy, MaxAge: time.Hour}
	nc, js, err := Open([]string{natsURL}, spec)
	require.NoError(t, err)
	defer nc.Close()

	info, err := js.StreamInfo("RAW_TEST")
	require.NoError(t, err)
	require.Equal(t, []string{"raw.test"}, info.Config.Subjects)

	require.NoError(t, Ensure(js, spec))
}
