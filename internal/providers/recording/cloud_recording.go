package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yoockh/groupspeak/internal/models"
)

type StorageConfig struct {
	Vendor    int
	Region    int
	Bucket    string
	AccessKey string
	SecretKey string
}

// Layout of the composite (mixed) stream.
type CompositeLayout struct {
	Width           int
	Height          int
	FPS             int
	Bitrate         int
	MixedLayout     int
	BackgroundColor string
}

var DefaultCompositeLayout = CompositeLayout{
	Width:           1280,
	Height:          720,
	FPS:             15,
	Bitrate:         1130,
	MixedLayout:     1, // best fit
	BackgroundColor: "#000000",
}

type CloudRecorderConfig struct {
	BaseURL        string
	AppID          string
	CustomerID     string
	CustomerSecret string
	Timeout        time.Duration
	Storage        StorageConfig
	Layout         CompositeLayout
}

// CloudRecorder talks to the cloud recording REST API.
type CloudRecorder struct {
	cfg  CloudRecorderConfig
	http *http.Client
}

func NewCloudRecorder(cfg CloudRecorderConfig) *CloudRecorder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Layout == (CompositeLayout{}) {
		cfg.Layout = DefaultCompositeLayout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CloudRecorder{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// vendor path segment per mode
func modeSegment(mode models.RecordingMode) (string, error) {
	switch mode {
	case models.RecordingIndividual:
		return "individual", nil
	case models.RecordingComposite:
		return "mix", nil
	default:
		return "", fmt.Errorf("unknown recording mode %q", mode)
	}
}

type acquireResponse struct {
	ResourceID string `json:"resourceId"`
}

func (c *CloudRecorder) Acquire(ctx context.Context, cname, uid string) (string, error) {
	body := map[string]any{
		"cname": cname,
		"uid":   uid,
		"clientRequest": map[string]any{
			"resourceExpiredHour": 24,
			"scene":               0,
		},
	}
	var out acquireResponse
	if err := c.post(ctx, "acquire", c.appPath("acquire"), body, &out); err != nil {
		return "", err
	}
	if out.ResourceID == "" {
		return "", &ProviderError{Op: "acquire", StatusCode: http.StatusOK, Body: "empty resourceId"}
	}
	return out.ResourceID, nil
}

type startResponse struct {
	ResourceID string `json:"resourceId"`
	SID        string `json:"sid"`
}

func (c *CloudRecorder) Start(ctx context.Context, resourceID, cname, uid string, mode models.RecordingMode) (string, error) {
	seg, err := modeSegment(mode)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"cname": cname,
		"uid":   uid,
		"clientRequest": map[string]any{
			"recordingConfig": c.recordingConfig(mode),
			"storageConfig":   c.storageConfig(cname),
		},
	}
	path := c.appPath("resourceid", resourceID, "mode", seg, "start")

	var out startResponse
	if err := c.post(ctx, "start", path, body, &out); err != nil {
		return "", err
	}
	if out.SID == "" {
		return "", &ProviderError{Op: "start", StatusCode: http.StatusOK, Body: "empty sid"}
	}
	return out.SID, nil
}

type stopResponse struct {
	ResourceID     string `json:"resourceId"`
	SID            string `json:"sid"`
	ServerResponse struct {
		FileList        json.RawMessage `json:"fileList"`
		UploadingStatus string          `json:"uploadingStatus"`
	} `json:"serverResponse"`
}

func (c *CloudRecorder) Stop(ctx context.Context, resourceID, sid, cname, uid string, mode models.RecordingMode) (*StopResult, error) {
	seg, err := modeSegment(mode)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"cname":         cname,
		"uid":           uid,
		"clientRequest": map[string]any{},
	}
	path := c.appPath("resourceid", resourceID, "sid", sid, "mode", seg, "stop")

	var out stopResponse
	if err := c.post(ctx, "stop", path, body, &out); err != nil {
		return nil, err
	}
	return &StopResult{
		FileNames:       parseFileList(out.ServerResponse.FileList),
		UploadingStatus: out.ServerResponse.UploadingStatus,
	}, nil
}

func (c *CloudRecorder) recordingConfig(mode models.RecordingMode) map[string]any {
	rc := map[string]any{
		"channelType": 1, // live broadcast
		"streamTypes": 2, // audio + video
		"maxIdleTime": 30,
	}
	if mode == models.RecordingIndividual {
		rc["subscribeUidGroup"] = 0
		rc["subscribeAudioUids"] = []string{"#allstream#"}
		rc["subscribeVideoUids"] = []string{"#allstream#"}
		return rc
	}
	l := c.cfg.Layout
	rc["audioProfile"] = 1
	rc["transcodingConfig"] = map[string]any{
		"width":            l.Width,
		"height":           l.Height,
		"fps":              l.FPS,
		"bitrate":          l.Bitrate,
		"mixedVideoLayout": l.MixedLayout,
		"backgroundColor":  l.BackgroundColor,
	}
	return rc
}

func (c *CloudRecorder) storageConfig(cname string) map[string]any {
	s := c.cfg.Storage
	return map[string]any{
		"vendor":         s.Vendor,
		"region":         s.Region,
		"bucket":         s.Bucket,
		"accessKey":      s.AccessKey,
		"secretKey":      s.SecretKey,
		"fileNamePrefix": []string{"recordings", cname},
	}
}

func (c *CloudRecorder) appPath(parts ...string) string {
	escaped := make([]string, 0, len(parts)+3)
	escaped = append(escaped, "v1", "apps", url.PathEscape(c.cfg.AppID), "cloud_recording")
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return c.cfg.BaseURL + "/" + strings.Join(escaped, "/")
}

func (c *CloudRecorder) post(ctx context.Context, op, endpoint string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.CustomerID, c.cfg.CustomerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("recording %s: %w", op, err)
	}
	defer resp.Body.Close()

	const maxBody = 1 << 20
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("recording %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: "invalid json: " + err.Error()}
	}
	return nil
}

// fileList is an array of objects in object mode and a bare string otherwise.
func parseFileList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []string{asString}
	}
	var asList []struct {
		FileName string `json:"fileName"`
	}
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil
	}
	out := make([]string, 0, len(asList))
	for _, f := range asList {
		if f.FileName != "" {
			out = append(out, f.FileName)
		}
	}
	return out
}
