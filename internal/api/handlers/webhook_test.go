package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/sorabane/bangusync/internal/config"
	"github.com/sorabane/bangusync/internal/models"
	"github.com/sorabane/bangusync/internal/normalizer"
)

type recordingRunner struct {
	calls  int
	status models.Status
}

func (r *recordingRunner) Execute(ctx context.Context, event models.SyncEvent, binding config.AccountBinding) *models.SyncRecord {
	r.calls++
	status := r.status
	if status == "" {
		status = models.StatusSuccess
	}
	return &models.SyncRecord{Status: status, Message: "marked watched"}
}

func testHandler(blocked ...string) (*WebhookHandler, *recordingRunner) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		Mode: config.ModeSingle,
		Bindings: map[string]config.AccountBinding{
			"alice": {UserName: "alice", BangumiUser: "alice_bgm", AccessToken: "tok"},
		},
		BlockedKeywords: blocked,
	}
	runner := &recordingRunner{}
	return NewWebhookHandler(normalizer.New(cfg, logger), runner, logger), runner
}

func TestHandleCustomSuccess(t *testing.T) {
	h, runner := testHandler()

	body := `{"media_type":"episode","title":"葬送的芙莉莲","season":1,"episode":5,"user_name":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/custom", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleCustom(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if runner.calls != 1 {
		t.Errorf("expected one execution, got %d", runner.calls)
	}
	if !strings.Contains(rec.Body.String(), "success") {
		t.Errorf("response should carry the outcome: %s", rec.Body.String())
	}
}

func TestHandleCustomBlockedKeywordNeverExecutes(t *testing.T) {
	h, runner := testHandler("无修")

	body := `{"media_type":"episode","title":"某番 无修版","season":1,"episode":1,"user_name":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/custom", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleCustom(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("filtered events still get a 2xx, got %d", rec.Code)
	}
	if runner.calls != 0 {
		t.Errorf("blocked title must not reach the executor, got %d calls", runner.calls)
	}
	if !strings.Contains(rec.Body.String(), "filtered") {
		t.Errorf("response should say filtered: %s", rec.Body.String())
	}
}

func TestHandleCustomUnboundUserFiltered(t *testing.T) {
	h, runner := testHandler()

	body := `{"media_type":"episode","title":"某番","season":1,"episode":1,"user_name":"mallory"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/custom", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleCustom(rec, req)

	if rec.Code != http.StatusOK || runner.calls != 0 {
		t.Errorf("unbound user should be dropped quietly: code=%d calls=%d", rec.Code, runner.calls)
	}
}

func TestHandleCustomValidationError(t *testing.T) {
	h, runner := testHandler()

	body := `{"media_type":"episode","title":"","season":1,"episode":1,"user_name":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/custom", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleCustom(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad payload, got %d", rec.Code)
	}
	if runner.calls != 0 {
		t.Errorf("invalid payload must not execute")
	}
}

func TestHandlePlexMultipart(t *testing.T) {
	h, runner := testHandler()

	payload := `{"event":"media.scrobble","Account":{"title":"alice"},"Metadata":{"type":"episode","grandparentTitle":"葬送的芙莉莲","parentIndex":1,"index":5,"originallyAvailableAt":"2023-10-27"}}`
	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload", payload); err != nil {
		t.Fatalf("failed to build form: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sync/plex", strings.NewReader(buf.String()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.HandlePlex(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if runner.calls != 1 {
		t.Errorf("expected one execution, got %d", runner.calls)
	}
}

func TestHandlePlexNonScrobbleIgnored(t *testing.T) {
	h, runner := testHandler()

	body := `{"event":"media.play","Account":{"title":"alice"},"Metadata":{"type":"episode","grandparentTitle":"x","parentIndex":1,"index":1}}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/plex", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandlePlex(rec, req)

	if rec.Code != http.StatusOK || runner.calls != 0 {
		t.Errorf("non-scrobble events are acknowledged but dropped: code=%d calls=%d", rec.Code, runner.calls)
	}
}

func TestHandleEmbyPlaybackStop(t *testing.T) {
	h, runner := testHandler()

	body := `{"Event":"playback.stop","Item":{"Type":"Episode","SeriesName":"孤独摇滚","ParentIndexNumber":1,"IndexNumber":8,"PremiereDate":"2022-11-26T00:00:00Z"},"User":{"Name":"alice"},"PlaybackInfo":{"PlayedToCompletion":true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/emby", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleEmby(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if runner.calls != 1 {
		t.Errorf("expected one execution, got %d", runner.calls)
	}
}

func TestHandleJellyfin(t *testing.T) {
	h, runner := testHandler()

	body := `{"NotificationType":"PlaybackStop","PlayedToCompletion":"True","media_type":"episode","title":"孤独摇滚","season":1,"episode":8,"user_name":"alice"}`
	req := httptest.NewRequest(http.MethodPost, "/api/sync/jellyfin", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleJellyfin(rec, req)

	if rec.Code != http.StatusOK || runner.calls != 1 {
		t.Errorf("code=%d calls=%d body=%s", rec.Code, runner.calls, rec.Body.String())
	}
}
