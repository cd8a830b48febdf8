package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeRawHostDataDefaultsSourceType(t *testing.T) {
	t.Parallel()

	data, err := DecodeRawHostData([]byte(validRawJSON("web01")))
	if err != nil {
		t.Fatalf("decode raw host data: %v", err)
	}
	if data.SourceType != SourceTypeHost {
		t.Fatalf("unexpected source type %q", data.SourceType)
	}
	if data.Key() != (HostKey{Hostname: "web01", SourceType: SourceTypeHost}) {
		t.Fatalf("unexpected key %v", data.Key())
	}
}

func TestDecodeRawHostDataRejectsUnknownSourceType(t *testing.T) {
	t.Parallel()

	_, err := DecodeRawHostData([]byte(`{"dt":1,"host":"h","source_type":"SNMP","payload":"x"}`))
	if err == nil || !strings.Contains(err.Error(), "source_type") {
		t.Fatalf("expected source_type error, got %v", err)
	}
}

func TestDecodeRawHostDataBatch(t *testing.T) {
	t.Parallel()

	payload := "[" + validRawJSON("a") + "," + validRawJSON("b") + "]"
	batch, err := DecodeRawHostDataBatch(json.NewDecoder(strings.NewReader(payload)))
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(batch) != 2 || batch[1].Host != "b" {
		t.Fatalf("unexpected batch %+v", batch)
	}
}

func TestDecodeRawHostDataBatchRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := DecodeRawHostDataBatch(json.NewDecoder(strings.NewReader("[]"))); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}

func validRawJSON(host string) string {
	return `{"dt":1739876543210,"host":"` + host + `","payload":"<<<uptime>>>\n1234.5 100.0\n"}`
}
