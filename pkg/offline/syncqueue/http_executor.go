package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
	"github.com/fitlife/fitlife-sync/pkg/utils"
)

// KindHTTP is the action kind for deferred HTTP requests.
const KindHTTP = "http"

// RequestRecord is the stored form of a deferred HTTP request.
type RequestRecord struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// hopHeaders are not replayed.
var hopHeaders = []string{"Connection", "Keep-Alive", "Proxy-Connection", "Transfer-Encoding", "Upgrade", "Te", "Trailer"}

// NewRequestRecord captures req. The request body is read and replaced so
// req can still be sent.
func NewRequestRecord(req *http.Request) (RequestRecord, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return RequestRecord{}, err
		}
		req.Body = io.NopCloser(bytes.NewReader(b))
		body = b
	}
	return RecordRequest(req, body), nil
}

// RecordRequest captures req with a body that was already read. Hop-by-hop
// headers are dropped.
func RecordRequest(req *http.Request, body []byte) RequestRecord {
	rec := RequestRecord{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	}
	if rec.Header == nil {
		rec.Header = http.Header{}
	}
	for _, h := range hopHeaders {
		rec.Header.Del(h)
	}
	return rec
}

// HTTPExecutor re-issues recorded requests.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor creates an executor sending through client. client must
// not route back through the offline router.
func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	if client == nil {
		client = utils.NewDefaultHTTPClient()
	}
	return &HTTPExecutor{client: client}
}

func (e *HTTPExecutor) Execute(ctx context.Context, action QueuedAction) error {
	var rec RequestRecord
	if err := json.Unmarshal(action.Payload, &rec); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeServerRejected, err, "decoding recorded request")
	}

	req, err := http.NewRequestWithContext(ctx, rec.Method, rec.URL, bytes.NewReader(rec.Body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeServerRejected, err, "building recorded request")
	}
	for k, v := range rec.Header {
		req.Header[k] = append([]string(nil), v...)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return utils.TransportError(err, rec.Method, rec.URL)
	}
	defer utils.SafeCloseResponse(resp)

	return utils.CheckHTTPResponse(resp, rec.Method, rec.URL)
}
