package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// SetupTestRouter returns a gin engine in test mode with only the recovery
// middleware installed, so a handler panic fails the test instead of the process.
func SetupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	return router
}

// CreateTestContext returns a gin context backed by a response recorder, for
// calling a handler directly without routing.
func CreateTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

// CreateTestRequest builds a request for ServeHTTP. A non-nil body is sent as JSON.
func CreateTestRequest(method, url string, body interface{}) *http.Request {
	if body == nil {
		return httptest.NewRequest(method, url, nil)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeJSONBody fails the test unless the recorded response carries a JSON
// content type and an object body.
func decodeJSONBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	if ct := recorder.Header().Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not a JSON object: %v\n%s", err, recorder.Body.String())
	}
	return body
}

// AssertJSONResponse checks the status code and that every key in expectedBody
// appears in the response with the same value. Extra response fields are allowed.
func AssertJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, expectedStatus int, expectedBody interface{}) {
	t.Helper()

	if recorder.Code != expectedStatus {
		t.Errorf("status = %d, want %d", recorder.Code, expectedStatus)
	}
	if expectedBody == nil {
		return
	}

	actual := decodeJSONBody(t, recorder)

	// Round-trip the expectation through JSON so its values compare in
	// their unmarshalled form.
	raw, err := json.Marshal(expectedBody)
	if err != nil {
		t.Fatalf("marshal expected body: %v", err)
	}
	var expected map[string]interface{}
	if err := json.Unmarshal(raw, &expected); err != nil {
		t.Fatalf("expected body is not a JSON object: %v", err)
	}

	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			t.Errorf("response is missing key %q", key)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("response[%q] = %v, want %v", key, got, want)
		}
	}
}

// AssertErrorResponse checks the status code and the standard error envelope,
// which carries 'code' and 'message' fields.
func AssertErrorResponse(t *testing.T, recorder *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()

	if recorder.Code != expectedStatus {
		t.Errorf("status = %d, want %d", recorder.Code, expectedStatus)
	}

	body := decodeJSONBody(t, recorder)
	for _, field := range []string{"code", "message"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error response is missing %q", field)
		}
	}
}
