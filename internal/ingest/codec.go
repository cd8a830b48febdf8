package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"checkengine/internal/domain"
)

const maxPooledBatchCapacity = 4096

type decodeScratch struct {
	payloads []domain.RawHostData
}

var decodeScratchPool = sync.Pool{
	New: func() any {
		return &decodeScratch{payloads: make([]domain.RawHostData, 0, 16)}
	},
}

// decodeRawPayload auto-detects batch vs single payload.
// Params: raw JSON bytes with one object or array.
// Returns: validated payloads (a fresh slice owned by the caller).
func decodeRawPayload(raw []byte) ([]domain.RawHostData, error) {
	scratch := acquireDecodeScratch()
	defer releaseDecodeScratch(scratch)
	decoded, err := decodeRawPayloadInto(raw, scratch)
	if err != nil {
		return nil, err
	}
	return append([]domain.RawHostData(nil), decoded...), nil
}

func decodeRawPayloadInto(raw []byte, scratch *decodeScratch) ([]domain.RawHostData, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	if payload[0] == '[' {
		return decodeBatchInto(decoder, scratch)
	}
	var data domain.RawHostData
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode raw host data: %w", err)
	}
	if err := data.Normalize(); err != nil {
		return nil, err
	}
	if err := ensureJSONEOF(decoder); err != nil {
		return nil, err
	}
	payloads := append(scratch.payloads[:0], data)
	scratch.payloads = payloads
	return payloads, nil
}

func decodeBatchInto(decoder *json.Decoder, scratch *decodeScratch) ([]domain.RawHostData, error) {
	payloads := scratch.payloads[:0]
	if err := decoder.Decode(&payloads); err != nil {
		return nil, fmt.Errorf("decode raw host data batch: %w", err)
	}
	if len(payloads) == 0 {
		return nil, errors.New("raw host data batch must contain at least one payload")
	}
	for i := range payloads {
		if err := payloads[i].Normalize(); err != nil {
			return nil, fmt.Errorf("payload[%d]: %w", i, err)
		}
	}
	if err := ensureJSONEOF(decoder); err != nil {
		return nil, err
	}
	scratch.payloads = payloads
	return payloads, nil
}

func acquireDecodeScratch() *decodeScratch {
	return decodeScratchPool.Get().(*decodeScratch)
}

func releaseDecodeScratch(scratch *decodeScratch) {
	if scratch == nil {
		return
	}
	for i := range scratch.payloads {
		scratch.payloads[i] = domain.RawHostData{}
	}
	if cap(scratch.payloads) > maxPooledBatchCapacity {
		scratch.payloads = make([]domain.RawHostData, 0, 16)
	} else {
		scratch.payloads = scratch.payloads[:0]
	}
	decodeScratchPool.Put(scratch)
}

// ensureJSONEOF rejects trailing tokens after a decoded JSON payload.
// Params: decoder positioned after primary decode.
// Returns: nil on EOF or error on trailing tokens.
func ensureJSONEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode trailing json: %w", err)
	}
	return errors.New("unexpected trailing json tokens")
}

// pushPayloads sends payloads to sink with optional batch support.
// Params: sink and payload slice.
// Returns: first push error or nil.
func pushPayloads(sink Sink, payloads []domain.RawHostData) error {
	if len(payloads) == 0 {
		return nil
	}
	if batchSink, ok := sink.(BatchSink); ok {
		return batchSink.PushBatch(payloads)
	}
	for _, payload := range payloads {
		if err := sink.Push(payload); err != nil {
			return err
		}
	}
	return nil
}
