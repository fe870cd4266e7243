package http

import (
	"context"
	"time"
)

type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

// RequestParam 描述一次 HTTP 调用
//
//	Body: nil / io.Reader / []byte 原样发送，其他类型按 JSON 编码
//	Response: nil 忽略响应体，*[]byte 写入原始字节，其他类型按 JSON 解码
type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	Body       interface{}
	Response   interface{}

	Timeout time.Duration
}
