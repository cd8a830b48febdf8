package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RawHostData is one fetched agent payload delivered by a collector.
// Params: host, source type, fetch timestamp in unix ms and raw agent output.
// Returns: validated ingest unit for the parse pipeline.
type RawHostData struct {
	DT         int64      `json:"dt"`
	Host       HostName   `json:"host"`
	SourceType SourceType `json:"source_type,omitempty"`
	Payload    string     `json:"payload"`
	Error      string     `json:"error,omitempty"`
}

// FetchedAt converts milliseconds unix timestamp into UTC time.
// Params: none.
// Returns: fetch time.
func (r RawHostData) FetchedAt() time.Time {
	return time.UnixMilli(r.DT).UTC()
}

// Key returns host key of the payload.
// Params: none.
// Returns: host key with HOST default source type.
func (r RawHostData) Key() HostKey {
	return HostKey{Hostname: r.Host, SourceType: r.SourceType}
}

// DecodeRawHostData decodes and validates one payload.
// Params: JSON document bytes.
// Returns: validated payload or decode/validation error.
func DecodeRawHostData(raw []byte) (RawHostData, error) {
	var data RawHostData
	if err := json.Unmarshal(raw, &data); err != nil {
		return RawHostData{}, fmt.Errorf("decode raw host data: %w", err)
	}
	if err := data.Normalize(); err != nil {
		return RawHostData{}, err
	}
	return data, nil
}

// DecodeRawHostDataBatch decodes and validates a JSON array of payloads.
// Params: JSON decoder positioned at an array.
// Returns: validated payloads or decode/validation error.
func DecodeRawHostDataBatch(reader *json.Decoder) ([]RawHostData, error) {
	var batch []RawHostData
	if err := reader.Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode raw host data batch: %w", err)
	}
	if len(batch) == 0 {
		return nil, errors.New("raw host data batch must contain at least one payload")
	}
	for i := range batch {
		if err := batch[i].Normalize(); err != nil {
			return nil, fmt.Errorf("payload[%d]: %w", i, err)
		}
	}
	return batch, nil
}

// Normalize applies defaults and validates the payload contract.
// Params: none (mutates source type default).
// Returns: validation error when schema is violated.
func (r *RawHostData) Normalize() error {
	if r.DT <= 0 {
		return errors.New("dt must be >0")
	}
	r.Host = HostName(strings.TrimSpace(string(r.Host)))
	if r.Host == "" {
		return errors.New("host is required")
	}
	switch r.SourceType {
	case "":
		r.SourceType = SourceTypeHost
	case SourceTypeHost, SourceTypeManagement:
	default:
		return fmt.Errorf("unsupported source_type %q", r.SourceType)
	}
	if r.Payload == "" && r.Error == "" {
		return errors.New("payload or error is required")
	}
	return nil
}
