package remover

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound 输入文件或目录不存在，直接返回给调用方，不在内部吞掉
var ErrNotFound = errors.New("not found")

type Stage string

const (
	StageRead    Stage = "read"
	StagePrepare Stage = "prepare"
	StageSession Stage = "session"
	StageSegment Stage = "segment"
	StageFinish  Stage = "finish"
	StageWrite   Stage = "write"
)

// ProcessError 单个文件处理失败，记录失败所在阶段
type ProcessError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *ProcessError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *ProcessError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newProcessError(stage Stage, path string, err error) error {
	return &ProcessError{Stage: stage, Path: path, Err: err}
}
