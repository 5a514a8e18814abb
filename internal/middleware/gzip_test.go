package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// orderEchoHandler имитирует API заказов: читает JSON-тело запроса и
// возвращает JSON-ответ с идентификатором заказа из него.
func orderEchoHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req struct {
		CustomerID string `json:"customer_id"`
		StoreID    string `json:"store_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"order_id": "ord-" + req.CustomerID,
		"status":   "pending",
	})
}

func gzipBody(t *testing.T, payload string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(payload)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	const orderPayload = `{"customer_id":"cust-1","store_id":"7"}`

	tests := []struct {
		name            string
		compressRequest bool
		acceptEncoding  string
		wantEncoding    string
	}{
		{
			name:           "client accepts gzip",
			acceptEncoding: "gzip",
			wantEncoding:   "gzip",
		},
		{
			name:           "client does not accept gzip",
			acceptEncoding: "",
			wantEncoding:   "",
		},
		{
			name:            "compressed order request",
			compressRequest: true,
			acceptEncoding:  "gzip",
			wantEncoding:    "gzip",
		},
		{
			name:            "compressed request, plain response",
			compressRequest: true,
			acceptEncoding:  "",
			wantEncoding:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(orderPayload)
			if tt.compressRequest {
				body = gzipBody(t, orderPayload)
			}

			req := httptest.NewRequest(http.MethodPost, "/orders", body)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			if tt.compressRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(orderEchoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusCreated {
				t.Fatalf("status: got %d want %d", res.StatusCode, http.StatusCreated)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.wantEncoding)
			}

			var reader io.Reader = res.Body
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}

			var resp struct {
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			}
			if err := json.NewDecoder(reader).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.OrderID != "ord-cust-1" || resp.Status != "pending" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestGzipMiddleware_CorruptRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(orderEchoHandler)).ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}
