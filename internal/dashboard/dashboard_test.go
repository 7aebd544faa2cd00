package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osobot/oso/internal/db"
	"github.com/osobot/oso/internal/models"
	"github.com/osobot/oso/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(gdb, time.Minute)
}

func newTestRouter(t *testing.T, st *store.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, st)
	return router
}

func seedMsgs(t *testing.T, s *store.Store) {
	t.Helper()
	now := time.Now().Unix()
	story := models.ClassStory
	spam := models.ClassSpam
	summary := "A short tale."
	postID := "t3_p1"
	replyBody := "thanks"
	replyID := "t4_r1"

	fixtures := []models.Msg{
		{ID: "t4_done", CreatedAt: now - 30, Source: "reddit", Sender: "alice", Receiver: "oso",
			IsReceiverMe: true, Body: "story", Classification: &story, Summary: &summary,
			PostID: &postID, ReplyBody: &replyBody, ReplyID: &replyID},
		{ID: "t4_spam", CreatedAt: now - 20, Source: "reddit", Sender: "mallory", Receiver: "oso",
			IsReceiverMe: true, Body: "buy now", Classification: &spam},
		{ID: "t4_new", CreatedAt: now - 10, Source: "reddit", Sender: "bob", Receiver: "oso",
			IsReceiverMe: true, Body: "fresh"},
		{ID: "t4_out", CreatedAt: now - 5, Source: "reddit", Sender: "oso", Receiver: "alice",
			IsReceiverMe: false, Body: "thanks"},
	}
	for i := range fixtures {
		if _, err := s.InsertIfAbsent(&fixtures[i]); err != nil {
			t.Fatalf("seed %s: %v", fixtures[i].ID, err)
		}
	}
}

func getJSON(t *testing.T, router *gin.Engine, path string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (body %s)", path, err, w.Body.String())
		}
	}
	return w.Code
}

func TestHealthz(t *testing.T) {
	s := newTestStore(t)
	router := newTestRouter(t, s)

	var body map[string]string
	if code := getJSON(t, router, "/healthz", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	seedMsgs(t, s)
	router := newTestRouter(t, s)

	var stats Stats
	if code := getJSON(t, router, "/api/stats", &stats); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if stats.Total != 4 || stats.Inbound != 3 {
		t.Errorf("total = %d inbound = %d", stats.Total, stats.Inbound)
	}
	if stats.Stages[models.StageDone] != 2 {
		t.Errorf("done = %d (story + rejected spam)", stats.Stages[models.StageDone])
	}
	if stats.Stages[models.StageReceived] != 1 {
		t.Errorf("received = %d", stats.Stages[models.StageReceived])
	}
	if stats.Classifications[models.ClassStory] != 1 || stats.Classifications[models.ClassSpam] != 1 {
		t.Errorf("classifications = %v", stats.Classifications)
	}
}

func TestMsgListFilters(t *testing.T) {
	s := newTestStore(t)
	seedMsgs(t, s)
	router := newTestRouter(t, s)

	var body struct {
		Msgs []MsgRow `json:"msgs"`
	}
	if code := getJSON(t, router, "/api/msgs", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(body.Msgs) != 4 {
		t.Fatalf("msgs = %d", len(body.Msgs))
	}
	// Newest first.
	if body.Msgs[0].ID != "t4_out" {
		t.Errorf("first = %s", body.Msgs[0].ID)
	}

	body.Msgs = nil
	getJSON(t, router, "/api/msgs?sender=alice", &body)
	if len(body.Msgs) != 1 || body.Msgs[0].ID != "t4_done" {
		t.Errorf("sender filter = %+v", body.Msgs)
	}

	body.Msgs = nil
	getJSON(t, router, "/api/msgs?stage=received", &body)
	if len(body.Msgs) != 1 || body.Msgs[0].ID != "t4_new" {
		t.Errorf("stage filter = %+v", body.Msgs)
	}
}

func TestMsgDetail(t *testing.T) {
	s := newTestStore(t)
	seedMsgs(t, s)
	router := newTestRouter(t, s)

	var d MsgDetail
	if code := getJSON(t, router, "/api/msgs/t4_done", &d); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if d.ID != "t4_done" || d.Summary != "A short tale." || d.PostID != "t3_p1" {
		t.Errorf("detail = %+v", d)
	}
	if d.Stage != models.StageDone {
		t.Errorf("stage = %s", d.Stage)
	}

	if code := getJSON(t, router, "/api/msgs/t4_missing", nil); code != http.StatusNotFound {
		t.Errorf("missing record status = %d", code)
	}
}

func TestSenderActivity(t *testing.T) {
	s := newTestStore(t)
	seedMsgs(t, s)
	router := newTestRouter(t, s)

	var a SenderActivity
	if code := getJSON(t, router, "/api/senders/alice", &a); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(a.Msgs) != 1 || a.Published != 1 || a.Replied != 1 {
		t.Errorf("activity = %+v", a)
	}
}

func TestStartRequiresStore(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil || !strings.Contains(err.Error(), "store is required") {
		t.Fatalf("err = %v", err)
	}
}
