package rembg

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	nhttp "github.com/chaos-io/rembg-cli/util/http"
)

const (
	uploadPath  = "/api/upload/image"
	promptPath  = "/api/prompt"
	historyPath = "/api/history/"
	viewPath    = "/api/view"

	// workflow.json 中的节点编号
	loadImageNode = "1"
	removeNode    = "2"
	saveImageNode = "3"

	defaultPollInterval = time.Second
	defaultWaitTimeout  = 5 * time.Minute
)

//go:embed workflow.json
var workflowData []byte

// comfyUISession 通过 ComfyUI 工作流（BiRefNet 节点）完成抠图
//
//	上传图片 -> 提交 prompt -> 轮询 history -> 下载输出图片
type comfyUISession struct {
	cli          nhttp.IClient
	baseURL      string
	model        string
	clientID     string
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

func newComfyUISession(cli nhttp.IClient, baseURL, model string, timeout, pollInterval time.Duration, logger *zap.Logger) (*comfyUISession, error) {
	if !json.Valid(workflowData) {
		return nil, errors.New("embedded workflow is not valid json")
	}
	if timeout <= 0 {
		timeout = defaultWaitTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	clientID := ksuid.New().String()
	return &comfyUISession{
		cli:          cli,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        model,
		clientID:     clientID,
		timeout:      timeout,
		pollInterval: pollInterval,
		logger: logger.With(
			zap.String("backend", BackendComfyUI),
			zap.String("model", model),
			zap.String("client_id", clientID),
		),
	}, nil
}

func (c *comfyUISession) Model() string {
	return c.model
}

func (c *comfyUISession) Remove(ctx context.Context, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	uploaded, err := c.uploadImage(ctx, data)
	if err != nil {
		return nil, err
	}

	promptID, err := c.prompt(ctx, uploaded)
	if err != nil {
		return nil, err
	}

	ref, err := c.waitForOutput(ctx, promptID)
	if err != nil {
		return nil, err
	}

	return c.view(ctx, ref)
}

type imageRef struct {
	Name      string `json:"name,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

/*
	curl -X POST "$BASE_URL/api/upload/image" \
	  -F "image=@my_image.png" \
	  -F "type=input" \
	  -F "overwrite=true"

{"name": "my_image1.png", "subfolder": "", "type": "input"}%
*/
func (c *comfyUISession) uploadImage(ctx context.Context, data []byte) (*imageRef, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", ksuid.New().String()+".png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	_ = writer.WriteField("type", "input")
	_ = writer.WriteField("overwrite", "true")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	resp := &imageRef{}
	reqParam := &nhttp.RequestParam{
		RequestURI: c.baseURL + uploadPath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   resp,
	}
	if err := c.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	if resp.Name == "" {
		return nil, errors.New("upload image: empty name in response")
	}

	c.logger.Debug("image uploaded", zap.String("name", resp.Name), zap.String("subfolder", resp.Subfolder))
	return resp, nil
}

type promptReq struct {
	Prompt   map[string]any `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type promptResp struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

/*
	curl -X POST "$BASE_URL/api/prompt" \
	  -H "Content-Type: application/json" \
	  -d '{"prompt": '"$(cat workflow.json)"'}'
*/
func (c *comfyUISession) prompt(ctx context.Context, uploaded *imageRef) (string, error) {
	wk, err := c.buildWorkflow(uploaded)
	if err != nil {
		return "", err
	}

	resp := &promptResp{}
	reqParam := &nhttp.RequestParam{
		RequestURI: c.baseURL + promptPath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": "application/json"},
		Body:       &promptReq{Prompt: wk, ClientID: c.clientID},
		Response:   resp,
	}
	if err := c.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	if len(resp.NodeErrors) > 0 {
		return "", fmt.Errorf("queue prompt: node errors %v", resp.NodeErrors)
	}
	if resp.PromptID == "" {
		return "", errors.New("queue prompt: empty prompt id")
	}

	c.logger.Debug("prompt queued", zap.String("prompt_id", resp.PromptID), zap.Int("number", resp.Number))
	return resp.PromptID, nil
}

// buildWorkflow 每次从内嵌模板重新解析，再替换输入图片、模型和输出前缀
func (c *comfyUISession) buildWorkflow(uploaded *imageRef) (map[string]any, error) {
	wk := map[string]any{}
	if err := json.Unmarshal(workflowData, &wk); err != nil {
		return nil, fmt.Errorf("unmarshal workflow data: %w", err)
	}

	imageName := uploaded.Name
	if uploaded.Subfolder != "" {
		imageName = uploaded.Subfolder + "/" + uploaded.Name
	}

	set := map[string][2]string{
		loadImageNode: {"image", imageName},
		removeNode:    {"model", c.model},
		saveImageNode: {"filename_prefix", "rembg_" + ksuid.New().String()},
	}
	for id, kv := range set {
		inputs, err := nodeInputs(wk, id)
		if err != nil {
			return nil, err
		}
		inputs[kv[0]] = kv[1]
	}
	return wk, nil
}

func nodeInputs(wk map[string]any, id string) (map[string]any, error) {
	node, ok := wk[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("workflow node %s not found", id)
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("workflow node %s has no inputs", id)
	}
	return inputs, nil
}

type historyEntry struct {
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []imageRef `json:"images"`
	} `json:"outputs"`
}

func (c *comfyUISession) waitForOutput(ctx context.Context, promptID string) (*imageRef, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		ref, done, err := c.checkHistory(ctx, promptID)
		if err != nil || done {
			return ref, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for prompt %s: %w", promptID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *comfyUISession) checkHistory(ctx context.Context, promptID string) (*imageRef, bool, error) {
	history := map[string]historyEntry{}
	reqParam := &nhttp.RequestParam{
		RequestURI: c.baseURL + historyPath + url.PathEscape(promptID),
		Method:     http.MethodGet,
		Response:   &history,
	}
	if err := c.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, false, fmt.Errorf("get history: %w", err)
	}

	entry, ok := history[promptID]
	if !ok {
		return nil, false, nil
	}
	if entry.Status.StatusStr == "error" {
		return nil, false, fmt.Errorf("prompt %s failed", promptID)
	}
	if out, ok := entry.Outputs[saveImageNode]; ok && len(out.Images) > 0 {
		return &out.Images[0], true, nil
	}
	if entry.Status.Completed {
		return nil, false, fmt.Errorf("prompt %s completed without output image", promptID)
	}
	return nil, false, nil
}

func (c *comfyUISession) view(ctx context.Context, ref *imageRef) ([]byte, error) {
	q := url.Values{}
	q.Set("filename", ref.Filename)
	q.Set("subfolder", ref.Subfolder)
	q.Set("type", ref.Type)

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: c.baseURL + viewPath + "?" + q.Encode(),
		Method:     http.MethodGet,
		Response:   &out,
	}
	if err := c.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("download output: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("download output: empty image %s", ref.Filename)
	}

	c.logger.Debug("output downloaded", zap.String("filename", ref.Filename), zap.Int("bytes", len(out)))
	return out, nil
}
