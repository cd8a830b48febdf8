package ingest

import (
	"io"
	"net/http"
	"strings"
	"time"

	"checkengine/internal/domain"
)

// Sink receives decoded raw host data from ingest interfaces.
// Params: validated payload.
// Returns: processing error.
type Sink interface {
	Push(data domain.RawHostData) error
}

// BatchSink accepts several payloads at once.
type BatchSink interface {
	PushBatch(data []domain.RawHostData) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(data domain.RawHostData) error

// Push calls f.
func (f SinkFunc) Push(data domain.RawHostData) error {
	return f(data)
}

// HTTPHandler decodes raw host data and forwards it to sink.
// JSON bodies carry one payload or an array; text/plain bodies are agent output
// of the host named by the "host" query parameter.
type HTTPHandler struct {
	sink        Sink
	maxBodySize int64
	now         func() time.Time
}

// NewHTTPHandler creates ingest HTTP handler.
// Params: sink and max request body size in bytes.
// Returns: configured handler.
func NewHTTPHandler(sink Sink, maxBodySize int64) *HTTPHandler {
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize, now: time.Now}
}

// ServeHTTP handles one ingest request.
// Params: HTTP request/response writer pair.
// Returns: writes status code according to decode/push result.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	var payloads []domain.RawHostData
	if strings.HasPrefix(request.Header.Get("Content-Type"), "text/plain") {
		payloads, err = h.agentOutput(request, body)
	} else {
		payloads, err = decodeRawPayload(body)
	}
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	if err := pushPayloads(h.sink, payloads); err != nil {
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writer.WriteHeader(http.StatusAccepted)
}

func (h *HTTPHandler) agentOutput(request *http.Request, body []byte) ([]domain.RawHostData, error) {
	query := request.URL.Query()
	data := domain.RawHostData{
		DT:         h.now().UnixMilli(),
		Host:       domain.HostName(query.Get("host")),
		SourceType: domain.SourceType(strings.ToUpper(query.Get("source_type"))),
		Payload:    string(body),
	}
	if err := data.Normalize(); err != nil {
		return nil, err
	}
	return []domain.RawHostData{data}, nil
}
