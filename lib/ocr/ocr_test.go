package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// decodeImage reads the image from either body format.
func decodeImage(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	encoded := string(raw)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req request
		err = json.Unmarshal(raw, &req)
		if err != nil {
			return nil, err
		}
		encoded = req.Image
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func serve(t *testing.T, handler func(image []byte) (int, string)) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		image, err := decodeImage(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		status, body := handler(image)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSolve(t *testing.T) {
	var received []byte
	server := serve(t, func(image []byte) (int, string) {
		received = image
		return http.StatusOK, `{"result": " AB12 "}`
	})

	text, err := NewClient(server.URL, "", nil).Solve(context.Background(), []byte("\x89PNG captcha"))
	require.NoError(t, err)
	require.Equal(t, "AB12", text)
	require.Equal(t, []byte("\x89PNG captcha"), received)
}

func TestSolveBodyFormats(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		bodies = append(bodies, strings.TrimSpace(string(raw)))
		// the recognizer does not label its answer as json
		w.Header().Set("Content-Type", "text/html;charset=UTF-8")
		w.Write([]byte(`{"result": "AB12"}`))
	}))
	defer server.Close()

	for _, format := range []BodyFormat{FormatRaw, FormatJson} {
		text, err := NewClient(server.URL, format, nil).Solve(context.Background(), []byte("img"))
		require.NoError(t, err)
		require.Equal(t, "AB12", text)
	}
	require.Equal(t, []string{"aW1n", `{"image":"aW1n"}`}, bodies)
}

func TestParseBodyFormat(t *testing.T) {
	format, err := ParseBodyFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatRaw, format)

	format, err = ParseBodyFormat("json")
	require.NoError(t, err)
	require.Equal(t, FormatJson, format)

	_, err = ParseBodyFormat("xml")
	require.Error(t, err)
}

func TestSolveEmpty(t *testing.T) {
	server := serve(t, func([]byte) (int, string) {
		return http.StatusOK, `{"result": ""}`
	})
	_, err := NewClient(server.URL, "", nil).Solve(context.Background(), []byte("img"))
	require.ErrorIs(t, err, ErrNoText)
}

func TestSolveServerError(t *testing.T) {
	server := serve(t, func([]byte) (int, string) {
		return http.StatusInternalServerError, `{"error": "model not loaded"}`
	})
	_, err := NewClient(server.URL, "", nil).Solve(context.Background(), []byte("img"))
	require.ErrorContains(t, err, "500")
	require.ErrorContains(t, err, "model not loaded")
}

func TestSolveUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	_, err := NewClient(server.URL, "", nil).Solve(context.Background(), []byte("img"))
	require.Error(t, err)
}
