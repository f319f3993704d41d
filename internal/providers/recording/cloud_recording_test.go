package recording

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yoockh/groupspeak/internal/models"
)

func newTestRecorder(url string) *CloudRecorder {
	return NewCloudRecorder(CloudRecorderConfig{
		BaseURL:        url,
		AppID:          "app",
		CustomerID:     "cust",
		CustomerSecret: "secret",
		Storage:        StorageConfig{Vendor: 6, Bucket: "bucket"},
	})
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return m
}

func TestAcquire_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/apps/app/cloud_recording/acquire" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cust" || pass != "secret" {
			t.Fatalf("unexpected basic auth: %s %s", user, pass)
		}
		body := decodeBody(t, r)
		if body["cname"] != "room1" || body["uid"] != "100001" {
			t.Fatalf("unexpected body: %+v", body)
		}
		_, _ = w.Write([]byte(`{"resourceId":"res-1"}`))
	}))
	defer server.Close()

	rid, err := newTestRecorder(server.URL).Acquire(context.Background(), "room1", "100001")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rid != "res-1" {
		t.Fatalf("unexpected resource id: %s", rid)
	}
}

func TestStart_ModeSpecificConfig(t *testing.T) {
	var gotPaths []string
	var configs []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		body := decodeBody(t, r)
		cr := body["clientRequest"].(map[string]any)
		configs = append(configs, cr["recordingConfig"].(map[string]any))
		_, _ = w.Write([]byte(`{"resourceId":"res-1","sid":"sid-1"}`))
	}))
	defer server.Close()

	rec := newTestRecorder(server.URL)
	for _, mode := range []models.RecordingMode{models.RecordingIndividual, models.RecordingComposite} {
		sid, err := rec.Start(context.Background(), "res-1", "room1", "1", mode)
		if err != nil || sid != "sid-1" {
			t.Fatalf("unexpected start result sid=%s err=%v", sid, err)
		}
	}

	if gotPaths[0] != "/v1/apps/app/cloud_recording/resourceid/res-1/mode/individual/start" {
		t.Fatalf("unexpected individual path: %s", gotPaths[0])
	}
	if gotPaths[1] != "/v1/apps/app/cloud_recording/resourceid/res-1/mode/mix/start" {
		t.Fatalf("unexpected composite path: %s", gotPaths[1])
	}
	if _, ok := configs[0]["subscribeAudioUids"]; !ok {
		t.Fatalf("individual config must subscribe all uids: %+v", configs[0])
	}
	if configs[0]["channelType"].(float64) != 1 {
		t.Fatalf("individual config must use live broadcast channel type: %+v", configs[0])
	}
	tc, ok := configs[1]["transcodingConfig"].(map[string]any)
	if !ok || tc["backgroundColor"] != "#000000" || tc["bitrate"].(float64) != 1130 {
		t.Fatalf("unexpected composite transcoding config: %+v", configs[1])
	}
}

func TestStop_ParsesFileList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/apps/app/cloud_recording/resourceid/res-1/sid/sid-1/mode/mix/stop" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"resourceId":"res-1","sid":"sid-1","serverResponse":{"fileList":[{"fileName":"a.m3u8"},{"fileName":"b.mp4"}],"uploadingStatus":"uploaded"}}`))
	}))
	defer server.Close()

	res, err := newTestRecorder(server.URL).Stop(context.Background(), "res-1", "sid-1", "room1", "1", models.RecordingComposite)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(res.FileNames) != 2 || res.FileNames[1] != "b.mp4" || res.UploadingStatus != "uploaded" {
		t.Fatalf("unexpected stop result: %+v", res)
	}
}

func TestStop_Non2xxCarriesDiagnostics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":404,"reason":"failed to find worker"}`))
	}))
	defer server.Close()

	_, err := newTestRecorder(server.URL).Stop(context.Background(), "res-1", "sid-1", "room1", "1", models.RecordingIndividual)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusNotFound || pe.Op != "stop" || pe.Body == "" {
		t.Fatalf("unexpected provider error: %+v", pe)
	}
}

func TestParseFileList_StringMode(t *testing.T) {
	got := parseFileList(json.RawMessage(`"rec.m3u8"`))
	if len(got) != 1 || got[0] != "rec.m3u8" {
		t.Fatalf("unexpected file list: %v", got)
	}
	if parseFileList(nil) != nil {
		t.Fatal("expected nil for empty file list")
	}
}
