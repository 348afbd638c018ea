package checkpoint

import (
	"errors"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "deadline" }
func (timeoutErr) Timeout() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{timeoutErr{}, ErrTimeout},
		{errors.New("open /data/x: permission denied"), ErrPermissionDenied},
		{errors.New("operation error S3: PutObject, AccessDenied: Access Denied"), ErrAccessDenied},
		{errors.New("open /data/x: no such file or directory"), ErrNotFound},
		{errors.New("NoSuchBucket: bucket gone"), ErrNotFound},
		{errors.New("write /data/x: no space left on device"), ErrDiskFull},
		{errors.New("context deadline exceeded"), ErrTimeout},
		{errors.New("SlowDown: reduce your request rate"), ErrThrottled},
		{errors.New("failed to retrieve credentials"), ErrAuth},
		{errors.New("dial tcp 10.0.0.1:9000: connect: connection refused"), ErrNetwork},
		{errors.New("something else"), ErrUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("open /data: permission denied")
	err := wrap("write", "mobius_state/s", cause)

	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("errors.Is(err, ErrPermissionDenied) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost from chain")
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "write" || se.Path != "mobius_state/s" {
		t.Errorf("StorageError = %+v", se)
	}
	if again := wrap("read", "", err); again != err {
		t.Error("wrap re-wrapped a StorageError")
	}
	if wrap("write", "", nil) != nil {
		t.Error("wrap(nil) != nil")
	}
}
