package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finsight/finsight/internal/config"
	"github.com/finsight/finsight/internal/contextbudget"
	"github.com/finsight/finsight/internal/editlock"
	"github.com/finsight/finsight/internal/editor"
	"github.com/finsight/finsight/internal/generator/mock"
	"github.com/finsight/finsight/internal/model"
	"github.com/finsight/finsight/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupAPI(t *testing.T) (*gin.Engine, store.Store, *mock.Client, *editor.Service, func()) {
	t.Helper()

	st, cleanup := store.SetupTestDB(t)

	locks := editlock.NewRegistry(editlock.Config{TTL: time.Minute, SweepInterval: time.Minute})
	gen := mock.NewClient()
	gen.ChunkSize = 20

	ed := editor.NewService(st, locks, gen, editor.DefaultConfig())
	cm := contextbudget.NewManager(st, gen, contextbudget.DefaultConfig())

	cfg := config.Default()
	cfg.Server.Debug = true

	r := gin.New()
	Setup(r, cfg, st, ed, cm)

	return r, st, gen, ed, func() {
		locks.Close()
		cleanup()
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
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

// decodeFrames parses an SSE response body into its JSON frame payloads
func decodeFrames(t *testing.T, body string) []map[string]interface{} {
	t.Helper()

	var frames []map[string]interface{}
	for _, event := range strings.Split(body, "\n\n") {
		event = strings.TrimSpace(event)
		if event == "" {
			continue
		}
		if !strings.HasPrefix(event, "data: ") {
			t.Fatalf("Malformed SSE event: %q", event)
		}
		var frame map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(event, "data: ")), &frame); err != nil {
			t.Fatalf("Failed to decode frame %q: %v", event, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

// TestHealthEndpoint tests the public health check
func TestHealthEndpoint(t *testing.T) {
	r, _, _, _, cleanup := setupAPI(t)
	defer cleanup()

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// TestCreateAndGetReport tests report creation with initial sections
func TestCreateAndGetReport(t *testing.T) {
	r, _, _, _, cleanup := setupAPI(t)
	defer cleanup()

	w := doJSON(t, r, http.MethodPost, "/api/v1/reports", gin.H{
		"owner_id":  "user-1",
		"thread_id": "thread-1",
		"title":     "Q3 Portfolio Review",
		"sections": []gin.H{
			{"title": "Overview", "content": "<p>intro</p>"},
			{"title": "Holdings", "content": "<p>positions</p>"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created model.Report
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created.Version != 1 {
		t.Errorf("Expected version 1, got %d", created.Version)
	}
	if len(created.Sections) != 2 {
		t.Fatalf("Expected 2 sections, got %d", len(created.Sections))
	}
	if created.Sections[0].Order != 0 || created.Sections[1].Order != 1 {
		t.Error("Sections not in contiguous order")
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/reports/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
}

// TestCreateReport_Validation tests required field enforcement
func TestCreateReport_Validation(t *testing.T) {
	r, _, _, _, cleanup := setupAPI(t)
	defer cleanup()

	w := doJSON(t, r, http.MethodPost, "/api/v1/reports", gin.H{"title": "no owner"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/reports", gin.H{
		"owner_id": "user-1", "title": "x", "mode": "unknown",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad mode, got %d", w.Code)
	}
}

// TestListReports tests pagination and owner filtering
func TestListReports(t *testing.T) {
	r, st, _, _, cleanup := setupAPI(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		store.CreateTestReport(t, st, func(rp *model.Report) {
			rp.OwnerID = "user-a"
			rp.Title = fmt.Sprintf("Report %d", i)
		})
	}
	store.CreateTestReport(t, st, func(rp *model.Report) { rp.OwnerID = "user-b" })

	w := doJSON(t, r, http.MethodGet, "/api/v1/reports?owner_id=user-a&page=1&page_size=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Data  []model.Report `json:"data"`
		Total int64          `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("Expected total 3, got %d", resp.Total)
	}
	if len(resp.Data) != 2 {
		t.Errorf("Expected page of 2, got %d", len(resp.Data))
	}
}

// TestEditSectionStream tests the SSE edit endpoint end to end
func TestEditSectionStream(t *testing.T) {
	r, st, gen, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, report.ID, 0)

	gen.FixedContent = "<h2>Revised</h2><p>The updated holdings table.</p>"

	w := doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/edit",
		gin.H{"prompt": "revise the holdings table", "edited_by": "user-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Expected SSE content type, got %q", ct)
	}

	frames := decodeFrames(t, w.Body.String())
	if len(frames) < 2 {
		t.Fatalf("Expected content and complete frames, got %d", len(frames))
	}

	last := frames[len(frames)-1]
	if last["type"] != "complete" {
		t.Fatalf("Expected terminal complete frame, got %v", last["type"])
	}
	if int(last["version"].(float64)) != 2 {
		t.Errorf("Expected committed version 2, got %v", last["version"])
	}

	var content strings.Builder
	for _, frame := range frames[:len(frames)-1] {
		if frame["type"] != "content" {
			t.Fatalf("Unexpected frame type before terminal: %v", frame["type"])
		}
		content.WriteString(frame["content"].(string))
	}
	if content.String() != gen.FixedContent {
		t.Error("Streamed fragments do not reassemble into the committed content")
	}

	updated, err := st.Section().GetByID(section.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if updated.Content != gen.FixedContent || updated.Version != 2 {
		t.Error("Section was not committed")
	}
}

// TestEditSectionStream_Busy tests that a held lock surfaces as 409 JSON,
// not as a broken stream
func TestEditSectionStream_Busy(t *testing.T) {
	r, st, _, ed, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, report.ID, 0)

	held, err := ed.Locks().Acquire(model.ResourceTypeSection, section.ID, "user-2")
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer ed.Locks().Release(held)

	w := doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/edit",
		gin.H{"prompt": "x", "edited_by": "user-1"})
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Header().Get("Content-Type"), "event-stream") {
		t.Error("Busy rejection must not open an event stream")
	}
}

// TestManualEdit tests the synchronous HTML edit path
func TestManualEdit(t *testing.T) {
	r, st, _, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, report.ID, 0)

	w := doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/edit",
		gin.H{"html": "<p>typed by hand</p>", "edited_by": "user-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result editor.ApplyResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Version != 2 {
		t.Errorf("Expected version 2, got %d", result.Version)
	}
}

// TestEditSection_CrossReport tests that a section is invisible through the
// wrong report's route
func TestEditSection_CrossReport(t *testing.T) {
	r, st, _, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	other := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, other.ID, 0)

	w := doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/edit",
		gin.H{"prompt": "x"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
}

// TestRestoreSection tests the restore endpoint
func TestRestoreSection(t *testing.T) {
	r, st, gen, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, report.ID, 0, func(s *model.Section) {
		s.Content = "<p>v1</p>"
	})

	gen.FixedContent = "<p>v2</p>"
	w := doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/edit",
		gin.H{"prompt": "rewrite", "edited_by": "user-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Edit failed: %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/restore",
		gin.H{"target_version": 1, "restored_by": "user-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result editor.RestoreResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Version != 3 || result.RestoredVersion != 1 {
		t.Errorf("Unexpected restore result: %+v", result)
	}

	updated, _ := st.Section().GetByID(section.ID)
	if updated.Content != "<p>v1</p>" {
		t.Error("Restore did not bring back the old content")
	}

	// Restoring to the current version is rejected
	w = doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/restore",
		gin.H{"target_version": 3})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for current version, got %d", w.Code)
	}
}

// TestSectionHistory tests the history listing endpoint
func TestSectionHistory(t *testing.T) {
	r, st, gen, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, report.ID, 0)

	gen.FixedContent = "<p>new</p>"
	doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/edit",
		gin.H{"prompt": "edit", "edited_by": "user-1"})

	w := doJSON(t, r, http.MethodGet,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp struct {
		Data           []model.EditHistoryEntry `json:"data"`
		CurrentVersion int                      `json:"current_version"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(resp.Data))
	}
	if resp.CurrentVersion != 2 {
		t.Errorf("Expected current version 2, got %d", resp.CurrentVersion)
	}
}

// TestActiveEdit tests edit introspection when no edit is in flight
func TestActiveEdit(t *testing.T) {
	r, st, _, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, report.ID, 0)

	w := doJSON(t, r, http.MethodGet,
		"/api/v1/reports/"+report.ID+"/sections/"+section.ID+"/edits/active", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["active"] != false {
		t.Error("Expected no active edit")
	}
}

// TestInsertSectionEndpoint tests the streamed insert
func TestInsertSectionEndpoint(t *testing.T) {
	r, st, gen, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	store.CreateTestSection(t, st, report.ID, 0, func(s *model.Section) { s.Title = "A" })

	gen.FixedContent = "<h2>Risk</h2><p>factors</p>"
	w := doJSON(t, r, http.MethodPost, "/api/v1/reports/"+report.ID+"/sections",
		gin.H{"title": "Risk", "prompt": "add risk factors", "position": 0, "edited_by": "user-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	frames := decodeFrames(t, w.Body.String())
	last := frames[len(frames)-1]
	if last["type"] != "complete" {
		t.Fatalf("Expected complete frame, got %v", last["type"])
	}

	sections, _ := st.Section().GetByReportID(report.ID)
	if len(sections) != 2 || sections[0].Title != "Risk" {
		t.Errorf("Insert did not land at position 0: %+v", sections)
	}
}

// TestSectionStructureEndpoints tests delete, duplicate, and move
func TestSectionStructureEndpoints(t *testing.T) {
	r, st, _, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	a := store.CreateTestSection(t, st, report.ID, 0, func(s *model.Section) { s.Title = "A" })
	b := store.CreateTestSection(t, st, report.ID, 1, func(s *model.Section) { s.Title = "B" })

	// Duplicate A: A A' B
	w := doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+a.ID+"/duplicate", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Move B up: A B A'
	w = doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+b.ID+"/move",
		gin.H{"direction": "up"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Bad direction
	w = doJSON(t, r, http.MethodPost,
		"/api/v1/reports/"+report.ID+"/sections/"+b.ID+"/move",
		gin.H{"direction": "sideways"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}

	// Delete the duplicate
	sections, _ := st.Section().GetByReportID(report.ID)
	if len(sections) != 3 {
		t.Fatalf("Expected 3 sections, got %d", len(sections))
	}
	w = doJSON(t, r, http.MethodDelete,
		"/api/v1/reports/"+report.ID+"/sections/"+sections[2].ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	sections, _ = st.Section().GetByReportID(report.ID)
	if len(sections) != 2 {
		t.Errorf("Expected 2 sections after delete, got %d", len(sections))
	}
}

// TestDeleteReportEndpoint tests cascading report deletion
func TestDeleteReportEndpoint(t *testing.T) {
	r, st, _, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	section := store.CreateTestSection(t, st, report.ID, 0)

	w := doJSON(t, r, http.MethodDelete, "/api/v1/reports/"+report.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if _, err := st.Section().GetByID(section.ID); err == nil {
		t.Error("Section survived report deletion")
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/reports/"+report.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

// TestContextEndpoints tests estimate and compress over HTTP
func TestContextEndpoints(t *testing.T) {
	r, st, gen, _, cleanup := setupAPI(t)
	defer cleanup()

	report := store.CreateTestReport(t, st)
	store.CreateTestSection(t, st, report.ID, 0, func(s *model.Section) {
		s.Content = strings.Repeat("<p>filler</p>", 50)
	})

	w := doJSON(t, r, http.MethodGet, "/api/v1/context/report/"+report.ID+"/estimate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var est contextbudget.Estimate
	if err := json.Unmarshal(w.Body.Bytes(), &est); err != nil {
		t.Fatalf("Failed to decode estimate: %v", err)
	}
	if est.TotalTokens <= 0 {
		t.Error("Expected positive token estimate")
	}

	gen.FixedContent = "# Condensed"
	w = doJSON(t, r, http.MethodPost, "/api/v1/context/report/"+report.ID+"/compress", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result contextbudget.CompressResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode compress result: %v", err)
	}
	if !result.Applied {
		t.Error("Expected compression to apply")
	}

	// Bad entity type
	w = doJSON(t, r, http.MethodGet, "/api/v1/context/bogus/x/estimate", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad entity type, got %d", w.Code)
	}

	// Missing entity
	w = doJSON(t, r, http.MethodGet, "/api/v1/context/report/no-such/estimate", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for missing entity, got %d", w.Code)
	}
}
