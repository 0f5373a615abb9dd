package service_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/kiosk/internal/adapters/backend"
	service "github.com/okian/kiosk/internal/app"
	"github.com/okian/kiosk/internal/capture"
	"github.com/okian/kiosk/internal/domain/label"
	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/internal/domain/recognition"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeDevice struct {
	closed atomic.Bool
}

func (d *fakeDevice) Read() (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeDetector struct {
	face atomic.Bool
}

func (f *fakeDetector) Detect(_ context.Context, img image.Image) (*model.DetectionFrame, error) {
	if !f.face.Load() {
		return nil, nil
	}
	b := img.Bounds()
	return &model.DetectionFrame{
		Box:    model.Box{X: 16, Y: 12, Width: 24, Height: 24},
		Score:  0.95,
		Source: model.Size{Width: float64(b.Dx()), Height: float64(b.Dy())},
	}, nil
}

type fakeRecognizer struct {
	calls     atomic.Int32
	cancelled atomic.Bool
	block     bool
	resp      recognition.Response
	err       error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, _ []byte) (recognition.Response, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		f.cancelled.Store(true)
		return recognition.Response{}, ctx.Err()
	}
	return f.resp, f.err
}

type fakeSubmitter struct {
	mu   sync.Mutex
	sent []model.CheckIn
}

func (f *fakeSubmitter) CheckIn(_ context.Context, c model.CheckIn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return nil
}

func (f *fakeSubmitter) first() model.CheckIn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[0]
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	types map[string]int
}

func (f *fakeBroadcaster) Broadcast(typ string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[typ]++
}

func (f *fakeBroadcaster) seen(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types[typ]
}

type fakeAuthorizer struct{ err error }

func (f fakeAuthorizer) Login(context.Context) (string, error) { return "employee", f.err }

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func ptr[T any](v T) *T { return &v }

type rig struct {
	svc  *service.Service
	dev  *fakeDevice
	det  *fakeDetector
	rec  *fakeRecognizer
	sub  *fakeSubmitter
	bc   *fakeBroadcaster
	open atomic.Int32
}

func newRig(openErr error, extra ...service.Option) *rig {
	r := &rig{
		dev: &fakeDevice{},
		det: &fakeDetector{},
		rec: &fakeRecognizer{resp: recognition.Response{UserID: ptr("u1"), Accuracy: ptr(0.88), IsRecognized: true}},
		sub: &fakeSubmitter{},
		bc:  &fakeBroadcaster{types: map[string]int{}},
	}
	r.det.face.Store(true)
	opener := capture.OpenerFunc(func(context.Context, capture.Request) (capture.Device, error) {
		r.open.Add(1)
		if openErr != nil {
			return nil, openErr
		}
		return r.dev, nil
	})
	opts := []service.Option{
		service.WithCamera(opener, capture.Request{Width: 64, Height: 48}),
		service.WithDetector(r.det),
		service.WithRecognizer(r.rec),
		service.WithStaticRoster(
			[]model.Event{{ID: "e1", Title: "Standup"}},
			[]model.Employee{{ID: "u1", FullName: "Alice Nguyen"}},
		),
		service.WithEvent("e1"),
		service.WithBroadcaster(r.bc),
		service.WithRenderInterval(2 * time.Millisecond),
		service.WithRecognitionInterval(10 * time.Millisecond),
		service.WithRecognitionTimeout(time.Second),
		service.WithDetectionLog(10, time.Minute),
		service.WithCheckins(r.sub, 1, 16, 1000),
	}
	r.svc = service.New(append(opts, extra...)...)
	return r
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service without a camera", t, func() {
		svc := service.New()

		Convey("Then starting it fails", func() {
			So(errors.Is(svc.Start(context.Background()), service.ErrNotConfigured), ShouldBeTrue)
		})
	})

	Convey("Given a configured service that was not started", t, func() {
		r := newRig(nil)

		Convey("Then the camera cannot start", func() {
			So(errors.Is(r.svc.StartCamera(context.Background()), service.ErrNotStarted), ShouldBeTrue)
			So(r.svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestService_Recognition(t *testing.T) {
	Convey("Given a started kiosk with a face in view", t, func() {
		r := newRig(nil)
		ctx := context.Background()
		So(r.svc.Start(ctx), ShouldBeNil)
		defer r.svc.Stop()

		Convey("When the camera starts", func() {
			So(r.svc.StartCamera(ctx), ShouldBeNil)
			So(r.svc.StartCamera(ctx), ShouldBeNil)

			Convey("Then u1 is logged with the roster name and 88.0", func() {
				So(eventually(func() bool { return len(r.svc.Detections()) > 0 }), ShouldBeTrue)
				entry := r.svc.Detections()[0]
				So(entry.EmployeeName, ShouldEqual, "Alice Nguyen")
				So(entry.Accuracy, ShouldEqual, 88.0)
				So(entry.EventName, ShouldEqual, "Standup")
				So(r.open.Load(), ShouldEqual, 1)
			})

			Convey("Then the label switches to the recognized name", func() {
				So(eventually(func() bool { return r.svc.Label().Kind == label.Recognized }), ShouldBeTrue)
				So(r.svc.Label().Text, ShouldEqual, "Alice Nguyen")
			})

			Convey("Then the composed frame is served", func() {
				So(eventually(func() bool {
					img, err := r.svc.LatestJPEG()
					return err == nil && len(img) > 0
				}), ShouldBeTrue)
			})

			Convey("Then one check-in is posted despite repeated recognitions", func() {
				So(eventually(func() bool { return r.rec.calls.Load() >= 3 && r.sub.count() == 1 }), ShouldBeTrue)
				time.Sleep(30 * time.Millisecond)
				So(r.sub.count(), ShouldEqual, 1)
				So(r.sub.first().Key(), ShouldEqual, "u1|e1")
			})

			Convey("Then outcomes and log changes are broadcast", func() {
				So(eventually(func() bool { return r.bc.seen("outcome") > 0 && r.bc.seen("log") > 0 }), ShouldBeTrue)
				So(r.bc.seen("camera"), ShouldBeGreaterThan, 0)
			})

			Convey("And when the camera stops", func() {
				So(eventually(func() bool { return r.rec.calls.Load() > 0 }), ShouldBeTrue)
				So(r.svc.StopCamera(ctx), ShouldBeNil)
				calls := r.rec.calls.Load()
				time.Sleep(40 * time.Millisecond)

				Convey("Then the device is released and dispatching stops", func() {
					So(r.dev.closed.Load(), ShouldBeTrue)
					So(r.svc.Streaming(), ShouldBeFalse)
					So(r.rec.calls.Load(), ShouldEqual, calls)
					So(r.svc.Label().Kind, ShouldEqual, label.Scanning)
					_, err := r.svc.LatestJPEG()
					So(errors.Is(err, capture.ErrNotStreaming), ShouldBeTrue)
				})
			})
		})

		Convey("When no face is in view", func() {
			r.det.face.Store(false)
			So(r.svc.StartCamera(ctx), ShouldBeNil)
			time.Sleep(50 * time.Millisecond)

			Convey("Then nothing is sent and the log stays empty", func() {
				So(r.rec.calls.Load(), ShouldEqual, 0)
				So(len(r.svc.Detections()), ShouldEqual, 0)
				So(r.svc.Label().Text, ShouldEqual, label.ScanningText)
			})
		})

		Convey("When the recognizer fails", func() {
			r.rec.err = fmt.Errorf("%w: connection refused", recognition.ErrTransport)
			So(r.svc.StartCamera(ctx), ShouldBeNil)

			Convey("Then the log stays empty and dispatching retries", func() {
				So(eventually(func() bool { return r.rec.calls.Load() >= 2 }), ShouldBeTrue)
				So(len(r.svc.Detections()), ShouldEqual, 0)
				So(r.sub.count(), ShouldEqual, 0)
			})
		})

		Convey("When no event is selected", func() {
			So(r.svc.SelectEvent(""), ShouldBeNil)
			So(r.svc.StartCamera(ctx), ShouldBeNil)
			time.Sleep(50 * time.Millisecond)

			Convey("Then recognition waits for an event", func() {
				So(r.rec.calls.Load(), ShouldEqual, 0)
			})
		})
	})
}

func TestService_CameraFailures(t *testing.T) {
	Convey("Given a kiosk whose camera access is denied", t, func() {
		r := newRig(fmt.Errorf("open /dev/video0: %w", os.ErrPermission))
		ctx := context.Background()
		So(r.svc.Start(ctx), ShouldBeNil)
		defer r.svc.Stop()

		err := r.svc.StartCamera(ctx)

		Convey("Then start fails with a classified error and no session", func() {
			So(errors.Is(err, capture.ErrPermissionDenied), ShouldBeTrue)
			So(r.svc.Streaming(), ShouldBeFalse)
			So(r.svc.CameraStatus().ErrorKind, ShouldEqual, capture.KindPermissionDenied)
		})
	})

	Convey("Given a kiosk logged in with a role that may not run the camera", t, func() {
		r := newRig(nil, service.WithAuthorizer(fakeAuthorizer{err: backend.ErrForbidden}))
		ctx := context.Background()
		So(r.svc.Start(ctx), ShouldBeNil)
		defer r.svc.Stop()

		err := r.svc.StartCamera(ctx)

		Convey("Then the camera is never opened", func() {
			So(errors.Is(err, backend.ErrForbidden), ShouldBeTrue)
			So(r.open.Load(), ShouldEqual, 0)
		})
	})
}

func TestService_Teardown(t *testing.T) {
	Convey("Given a kiosk with a recognition call in flight", t, func() {
		r := newRig(nil)
		r.rec.block = true
		ctx := context.Background()
		So(r.svc.Start(ctx), ShouldBeNil)
		So(r.svc.StartCamera(ctx), ShouldBeNil)
		So(eventually(func() bool { return r.rec.calls.Load() == 1 }), ShouldBeTrue)

		Convey("When the service stops", func() {
			r.svc.Stop()

			Convey("Then the call is cancelled and the camera released", func() {
				So(r.rec.cancelled.Load(), ShouldBeTrue)
				So(r.dev.closed.Load(), ShouldBeTrue)
				So(r.rec.calls.Load(), ShouldEqual, 1)
				So(r.svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Recognize(t *testing.T) {
	Convey("Given a kiosk used for a one-shot recognition", t, func() {
		r := newRig(nil)
		out, err := r.svc.Recognize(context.Background(), []byte("jpeg"))

		Convey("Then the outcome carries the roster name and the event", func() {
			So(err, ShouldBeNil)
			So(out.Recognized, ShouldBeTrue)
			So(out.Label, ShouldEqual, "Alice Nguyen")
			So(out.Accuracy, ShouldEqual, 88.0)
			So(out.EventName, ShouldEqual, "Standup")
		})
	})
}
