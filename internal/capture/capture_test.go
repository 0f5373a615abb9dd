package capture_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/okian/kiosk/internal/capture"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeDevice struct {
	frame  image.Image
	err    error
	closed atomic.Bool
}

func (d *fakeDevice) Read() (image.Image, error) { return d.frame, d.err }
func (d *fakeDevice) Close() error               { d.closed.Store(true); return nil }

func TestManager(t *testing.T) {
	Convey("Given a manager with a working camera", t, func() {
		dev := &fakeDevice{frame: image.NewRGBA(image.Rect(0, 0, 64, 48))}
		var opens atomic.Int32
		m := capture.NewManager(capture.OpenerFunc(func(_ context.Context, req capture.Request) (capture.Device, error) {
			opens.Add(1)
			return dev, nil
		}), capture.Request{Index: 0, Width: 1280, Height: 720}, nil)

		Convey("When started", func() {
			So(m.Start(context.Background()), ShouldBeNil)

			Convey("Then it should stream and deliver frames", func() {
				So(m.Streaming(), ShouldBeTrue)
				img, err := m.Read()
				So(err, ShouldBeNil)
				So(img.Bounds().Dx(), ShouldEqual, 64)
				So(m.Status().Streaming, ShouldBeTrue)
				So(m.Status().Since.IsZero(), ShouldBeFalse)
			})

			Convey("And starting again should not open a second session", func() {
				So(m.Start(context.Background()), ShouldBeNil)
				So(opens.Load(), ShouldEqual, 1)
			})

			Convey("And stopping should release the device", func() {
				So(m.Stop(), ShouldBeNil)
				So(dev.closed.Load(), ShouldBeTrue)
				So(m.Streaming(), ShouldBeFalse)

				_, err := m.Read()
				So(errors.Is(err, capture.ErrNotStreaming), ShouldBeTrue)
				So(m.Stop(), ShouldBeNil)
			})
		})

		Convey("When the device yields an empty frame", func() {
			dev.frame = image.NewRGBA(image.Rectangle{})
			So(m.Start(context.Background()), ShouldBeNil)

			Convey("Then read should report no frame", func() {
				_, err := m.Read()
				So(errors.Is(err, capture.ErrNoFrame), ShouldBeTrue)
			})
		})

		Convey("When the device read fails", func() {
			dev.err = errors.New("timeout")
			So(m.Start(context.Background()), ShouldBeNil)

			Convey("Then read should wrap both errors", func() {
				_, err := m.Read()
				So(errors.Is(err, capture.ErrNoFrame), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "timeout")
			})
		})
	})

	Convey("Given a manager whose camera cannot be opened", t, func() {
		m := capture.NewManager(capture.OpenerFunc(func(context.Context, capture.Request) (capture.Device, error) {
			return nil, fmt.Errorf("open /dev/video0: %w", os.ErrPermission)
		}), capture.Request{}, nil)

		err := m.Start(context.Background())

		Convey("Then start should fail with a classified error and no session", func() {
			So(errors.Is(err, capture.ErrPermissionDenied), ShouldBeTrue)
			So(m.Streaming(), ShouldBeFalse)
			st := m.Status()
			So(st.ErrorKind, ShouldEqual, capture.KindPermissionDenied)
			So(st.Error, ShouldContainSubstring, "denied")
		})
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"nil", nil, capture.KindOK},
		{"sentinel kept", fmt.Errorf("x: %w", capture.ErrDeviceBusy), capture.KindDeviceBusy},
		{"os permission", &os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}, capture.KindPermissionDenied},
		{"missing node", &os.PathError{Op: "open", Path: "/dev/video9", Err: syscall.ENOENT}, capture.KindNoDevice},
		{"no device errno", syscall.ENODEV, capture.KindNoDevice},
		{"busy errno", syscall.EBUSY, capture.KindDeviceBusy},
		{"busy text", errors.New("VIDIOC_STREAMON: Device or resource busy"), capture.KindDeviceBusy},
		{"opencv cannot open", errors.New("can't open camera by index"), capture.KindNoDevice},
		{"not allowed text", errors.New("operation not allowed"), capture.KindPermissionDenied},
		{"other", errors.New("weird"), capture.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := capture.Classify(tt.err)
			if kind := capture.KindOf(got); kind != tt.kind {
				t.Fatalf("KindOf(Classify(%v)) = %s, want %s", tt.err, kind, tt.kind)
			}
			if tt.err != nil && !errors.Is(got, tt.err) {
				t.Fatalf("classified error should wrap the cause")
			}
			if tt.err != nil && capture.Message(got) == "" {
				t.Fatalf("message should not be empty")
			}
		})
	}
}
