package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"interviewdesk/internal/domain"
)

func TestVideoCaptureStopAndUpload(t *testing.T) {
	t.Parallel()

	recorder := &fakeVideoRecorder{payload: domain.VideoPayload{Data: []byte("webm"), MIMEType: "video/webm"}}
	uploader := &fakeUploader{}
	video := NewVideoCapture(recorder, uploader, zerolog.Nop())

	if err := video.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := video.Start(context.Background()); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	if err := video.StopAndUpload(context.Background(), "key-1"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if recorder.starts != 1 || recorder.stops != 1 || uploader.count() != 1 || uploader.keys[0] != "key-1" {
		t.Fatalf("unexpected calls: starts=%d stops=%d uploads=%d", recorder.starts, recorder.stops, uploader.count())
	}
}

func TestVideoCaptureCannotStartAfterFinish(t *testing.T) {
	t.Parallel()

	recorder := &fakeVideoRecorder{}
	video := NewVideoCapture(recorder, &fakeUploader{}, zerolog.Nop())

	if err := video.StopAndUpload(context.Background(), "key"); !errors.Is(err, ErrVideoNotRecording) {
		t.Fatalf("expected not recording, got %v", err)
	}
	if err := video.Start(context.Background()); !errors.Is(err, ErrVideoClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	if recorder.starts != 0 {
		t.Fatalf("recorder must not start after finish")
	}
}

func TestVideoCaptureFailures(t *testing.T) {
	t.Parallel()

	empty := NewVideoCapture(&fakeVideoRecorder{}, &fakeUploader{}, zerolog.Nop())
	_ = empty.Start(context.Background())
	if err := empty.StopAndUpload(context.Background(), "key"); domain.KindOf(err) != domain.ErrorKindEmptyResult {
		t.Fatalf("expected empty result, got %v", err)
	}

	uploader := &fakeUploader{err: errors.New("413 too large")}
	failing := NewVideoCapture(&fakeVideoRecorder{payload: domain.VideoPayload{Data: []byte("x")}}, uploader, zerolog.Nop())
	_ = failing.Start(context.Background())
	if err := failing.StopAndUpload(context.Background(), "key"); err == nil {
		t.Fatalf("expected upload error")
	}
	if uploader.count() != 1 {
		t.Fatalf("upload must be attempted exactly once, got %d", uploader.count())
	}
}
