package simulation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRequest - запрос отвергнут до начала работы
	ErrInvalidRequest = errors.New("invalid simulation request")
	// ErrNoRegions - в источнике нет ни одного региона
	ErrNoRegions = errors.New("no region files found")
)

// RunError - ошибка одного запуска или одной задачи пула
type RunError struct {
	RunID     uint32 // 0 для ошибок вне запуска (загрузка региона, запись результата)
	File      string
	Technique string
	Y         int
	Err       error
}

func (e *RunError) Error() string {
	if e.RunID == 0 {
		return fmt.Sprintf("%s/%s: %v", e.File, e.Technique, e.Err)
	}
	return fmt.Sprintf("run %d (%s/%s y=%d): %v", e.RunID, e.File, e.Technique, e.Y, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func newRunError(job Job, err error) *RunError {
	return &RunError{RunID: job.RunID, File: job.File, Technique: job.Technique.String(), Y: job.Y, Err: err}
}

// RunErrors - все ошибки пакета запусков. Остальные запуски при этом доводятся до конца.
type RunErrors []*RunError

func (es RunErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d run(s) failed: %s", len(es), strings.Join(msgs, "; "))
}

// Unwrap позволяет errors.Is/As находить вложенные ошибки
func (es RunErrors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
