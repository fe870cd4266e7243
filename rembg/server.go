package rembg

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	nhttp "github.com/chaos-io/rembg-cli/util/http"
)

const removePath = "/api/remove"

// serverSession 调用 rembg HTTP 服务（rembg s）完成抠图
type serverSession struct {
	cli     nhttp.IClient
	baseURL string
	model   string
	opts    RemoveOptions
	logger  *zap.Logger
}

func newServerSession(cli nhttp.IClient, baseURL, model string, opts RemoveOptions, logger *zap.Logger) *serverSession {
	return &serverSession{
		cli:     cli,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		opts:    opts,
		logger:  logger.With(zap.String("backend", BackendServer), zap.String("model", model)),
	}
}

func (s *serverSession) Model() string {
	return s.model
}

/*
	curl -X POST "$BASE_URL/api/remove" \
	  -F "file=@my_image.jpg" \
	  -F "model=u2net" \
	  -o my_image.png
*/
func (s *serverSession) Remove(ctx context.Context, data []byte) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}

	fields := map[string]string{
		"model": s.model,
		"a":     strconv.FormatBool(s.opts.AlphaMatting),
		"om":    strconv.FormatBool(s.opts.OnlyMask),
		"ppm":   strconv.FormatBool(s.opts.PostProcessMask),
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out []byte
	reqParam := &nhttp.RequestParam{
		RequestURI: s.baseURL + removePath,
		Method:     http.MethodPost,
		Header:     map[string]string{"Content-Type": writer.FormDataContentType()},
		Body:       body,
		Response:   &out,
	}
	if err := s.cli.DoHTTPRequest(ctx, reqParam); err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty response from %s", reqParam.RequestURI)
	}

	s.logger.Debug("background removed", zap.Int("input_bytes", len(data)), zap.Int("output_bytes", len(out)))
	return out, nil
}
