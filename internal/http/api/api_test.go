package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/keyforge/keyforge/internal/db"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + filepath.Join(t.TempDir(), "keyforge-test.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	r := gin.New()
	RegisterRoutes(r, conn, "")
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return payload
}

func TestCreateAndListLicenses(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/licenses", gin.H{"username": "alice", "amount": 9.99})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	key, _ := created["license_key"].(string)
	if !regexp.MustCompile(`^[A-Z]{6}$`).MatchString(key) {
		t.Fatalf("unexpected license_key %q", key)
	}
	if created["devices"].(float64) != 0 || created["is_blocked"].(bool) {
		t.Fatalf("unexpected fresh license: %v", created)
	}

	w = doJSON(t, r, http.MethodGet, "/api/licenses", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var listed []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0]["license_key"] != key {
		t.Fatalf("expected created license in listing, got %v", listed)
	}
}

func TestCreateLicense_AmountAsString(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/licenses", gin.H{"username": "alice", "amount": "12.50"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["amount"].(float64) != 12.50 {
		t.Fatalf("unexpected amount in %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/licenses", gin.H{"username": "bob", "amount": "not-a-number"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateLicense_MissingUsername(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/licenses", gin.H{"amount": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeviceRegistrationFlow(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/licenses", gin.H{"username": "alice", "amount": 1, "license_key": "ABCDEF"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	register := gin.H{"license_key": "ABCDEF", "device_fingerprint": "device-1"}
	w = doJSON(t, r, http.MethodPost, "/api/devices/register", register)
	if w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	payload := decodeBody(t, w)
	if payload["success"] != true || payload["device_count"].(float64) != 1 {
		t.Fatalf("unexpected registration payload: %v", payload)
	}

	// Re-registering the same fingerprint keeps the count at one.
	w = doJSON(t, r, http.MethodPost, "/api/devices/register", register)
	if w.Code != http.StatusOK {
		t.Fatalf("re-register: expected 200, got %d", w.Code)
	}
	if decodeBody(t, w)["device_count"].(float64) != 1 {
		t.Fatalf("expected device_count to stay 1, got %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/licenses/ABCDEF/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list devices: expected 200, got %d", w.Code)
	}
	var devices []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &devices); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if len(devices) != 1 || devices[0]["device_fingerprint"] != "device-1" {
		t.Fatalf("unexpected device list: %v", devices)
	}
}

func TestRegisterDevice_Failures(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/devices/register", gin.H{"license_key": "ABCDEF"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fingerprint, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/devices/register", gin.H{"license_key": "ZZZZZZ", "device_fingerprint": "device-1"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown key, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBlockUnblockOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/licenses", gin.H{"username": "alice", "amount": 1, "license_key": "ABCDEF"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}
	id := decodeBody(t, w)["id"].(float64)

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/licenses/%.0f/block", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("block: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["is_blocked"] != true {
		t.Fatalf("expected blocked license, got %s", w.Body.String())
	}

	register := gin.H{"license_key": "ABCDEF", "device_fingerprint": "device-1"}
	w = doJSON(t, r, http.MethodPost, "/api/devices/register", register)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for blocked license, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/licenses/%.0f/unblock", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unblock: expected 200, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/api/devices/register", register)
	if w.Code != http.StatusOK {
		t.Fatalf("expected registration to succeed after unblock, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUpdateAndDeleteLicense(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/licenses", gin.H{"username": "alice", "amount": 1, "license_key": "ABCDEF"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", w.Code)
	}
	id := decodeBody(t, w)["id"].(float64)

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/licenses/%.0f", id), gin.H{"username": "alice-renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["username"] != "alice-renamed" {
		t.Fatalf("unexpected update result: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodPut, "/api/licenses/9999", gin.H{"username": "ghost"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("update missing: expected 404, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/licenses/%.0f", id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
}

func TestGenerateKeyEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/api/generate-key", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	key, _ := decodeBody(t, w)["license_key"].(string)
	if !regexp.MustCompile(`^[A-Z]{6}$`).MatchString(key) {
		t.Fatalf("unexpected generated key %q", key)
	}
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decodeBody(t, w)["status"] != "ok" {
		t.Fatalf("unexpected health payload: %s", w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/licenses", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS headers")
	}
}
