package e2e

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

const e2eAgentOutput = `<<<df>>>
/dev/sda1 ext4 1000 100 900 10% /
<<<uptime>>>
3600.0
`

// e2eConfig builds service/ingest/metrics config used in e2e tests.
// Params: HTTP port, service mode, NATS URL (ignored in single mode) and autochecks dir.
// Returns: TOML document with host web01.
func e2eConfig(port int, mode, natsURL, autochecksDir string) string {
	natsEnabled := mode == "nats"
	return fmt.Sprintf(`
[service]
name = "checkengine-e2e"
mode = "%s"
check_interval_sec = 1
check_timeout_sec = 1

[log.console]
enabled = true
level = "error"
format = "line"

[ingest.http]
enabled = true
listen = "127.0.0.1:%d"
health_path = "/healthz"
ready_path = "/readyz"
ingest_path = "/ingest"

[ingest.nats]
enabled = %t
url = ["%s"]

[submit]
log = false

[submit.nats]
enabled = %t

[metrics]
enabled = true

[autochecks]
dir = "%s"

[host.web01]
address = "10.0.0.21"
`, mode, port, natsEnabled, natsURL, natsEnabled, strings.ReplaceAll(autochecksDir, `\`, `/`))
}

// rawDocument renders one raw host data document stamped now.
func rawDocument(t *testing.T, host, payload string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"dt":      time.Now().UnixMilli(),
		"host":    host,
		"payload": payload,
	})
	if err != nil {
		t.Fatalf("marshal raw document: %v", err)
	}
	return string(body)
}
