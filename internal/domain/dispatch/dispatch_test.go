package dispatch_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/kiosk/internal/domain/detectionlog"
	"github.com/okian/kiosk/internal/domain/dispatch"
	"github.com/okian/kiosk/internal/domain/label"
	"github.com/okian/kiosk/internal/domain/model"
	"github.com/okian/kiosk/internal/domain/recognition"
	"github.com/okian/kiosk/internal/domain/roster"
	"github.com/okian/kiosk/internal/imaging"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeRecognizer struct {
	mu      sync.Mutex
	resp    recognition.Response
	err     error
	release chan struct{}
	calls   atomic.Int32
	sizes   []int
}

func (f *fakeRecognizer) Recognize(ctx context.Context, jpeg []byte) (recognition.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.sizes = append(f.sizes, len(jpeg))
	release, resp, err := f.release, f.resp, f.err
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return recognition.Response{}, ctx.Err()
		}
	}
	return resp, err
}

type stream struct{ on atomic.Bool }

func (s *stream) Streaming() bool { return s.on.Load() }

func ptr[T any](v T) *T { return &v }

func recognized(id string, accuracy float64) recognition.Response {
	return recognition.Response{UserID: ptr(id), Accuracy: ptr(accuracy), IsRecognized: true, Message: "ok"}
}

func TestDispatcher(t *testing.T) {
	Convey("Given a streaming kiosk with a latched face and a selected event", t, func() {
		rec := &fakeRecognizer{resp: recognized("u1", 0.88)}
		st := &stream{}
		st.on.Store(true)

		latch := &dispatch.Latch{}
		frame := image.NewRGBA(image.Rect(0, 0, 64, 48))
		latch.Store(frame, &model.DetectionFrame{
			Box:    model.Box{X: 10, Y: 8, Width: 24, Height: 24},
			Score:  0.97,
			Source: model.Size{Width: 64, Height: 48},
		})

		r := roster.New()
		r.SetEmployees([]model.Employee{{ID: "u1", FullName: "Alice Nguyen"}})
		r.SetEvents([]model.Event{{ID: "e1", Title: "Standup"}})
		So(r.Select("e1"), ShouldBeNil)

		log := detectionlog.New(detectionlog.WithExpiry(time.Minute))
		defer log.Close()
		board := label.NewBoard()

		var outcomes []model.RecognitionOutcome
		var outMu sync.Mutex
		d := dispatch.New(rec, latch, st,
			dispatch.WithJournal(log),
			dispatch.WithLabels(board),
			dispatch.WithNames(r),
			dispatch.WithEvents(r),
			dispatch.WithTimeout(time.Second),
			dispatch.WithOnOutcome(func(o model.RecognitionOutcome) {
				outMu.Lock()
				outcomes = append(outcomes, o)
				outMu.Unlock()
			}),
		)
		defer d.Close()
		ctx := context.Background()

		Convey("When u1 is recognized at 0.88", func() {
			_, ok := d.Tick(ctx)
			d.Wait()

			Convey("Then one entry with the roster name and 88.0 is logged", func() {
				So(ok, ShouldBeTrue)
				So(rec.calls.Load(), ShouldEqual, 1)
				entries := log.Snapshot()
				So(len(entries), ShouldEqual, 1)
				So(entries[0].EmployeeName, ShouldEqual, "Alice Nguyen")
				So(entries[0].Accuracy, ShouldEqual, 88.0)
				So(entries[0].Recognized, ShouldBeTrue)
				So(entries[0].EventName, ShouldEqual, "Standup")
				So(len(entries[0].Image), ShouldBeGreaterThan, 0)
			})

			Convey("Then the label switches to the recognized name", func() {
				So(board.Current(), ShouldResemble, label.State{Text: "Alice Nguyen", Kind: label.Recognized})
			})

			Convey("Then the outcome hook receives the subject and event", func() {
				outMu.Lock()
				defer outMu.Unlock()
				So(len(outcomes), ShouldEqual, 1)
				So(*outcomes[0].SubjectID, ShouldEqual, "u1")
				So(outcomes[0].EventID, ShouldEqual, "e1")
			})

			Convey("Then the dispatcher is idle again", func() {
				So(d.State(), ShouldEqual, dispatch.Idle)
			})
		})

		Convey("When the accuracy is 0.957", func() {
			rec.resp = recognized("u1", 0.957)
			d.Tick(ctx)
			d.Wait()

			Convey("Then the entry shows 95.7", func() {
				So(log.Snapshot()[0].Accuracy, ShouldEqual, 95.7)
			})
		})

		Convey("When the id is missing from the roster", func() {
			rec.resp = recognized("u9", 0.7)
			d.Tick(ctx)
			d.Wait()

			Convey("Then a generic name is used", func() {
				So(log.Snapshot()[0].EmployeeName, ShouldEqual, model.RegisteredUserName)
			})
		})

		Convey("When the face is not recognized", func() {
			rec.resp = recognition.Response{Confidence: ptr(0.31), Message: "no match"}
			d.Tick(ctx)
			d.Wait()

			Convey("Then an Unknown entry is logged with the unknown label", func() {
				entries := log.Snapshot()
				So(len(entries), ShouldEqual, 1)
				So(entries[0].EmployeeName, ShouldEqual, model.UnknownName)
				So(entries[0].Recognized, ShouldBeFalse)
				So(entries[0].Accuracy, ShouldEqual, 31.0)
				So(board.Current(), ShouldResemble, label.State{Text: model.UnknownName, Kind: label.Unknown})
			})
		})

		Convey("When the network fails", func() {
			rec.err = errors.Join(recognition.ErrTransport, errors.New("connection refused"))
			d.Tick(ctx)
			d.Wait()

			Convey("Then the log is unchanged and the label shows Error", func() {
				So(log.Len(), ShouldEqual, 0)
				So(board.Current().Text, ShouldEqual, label.ErrorText)
				So(d.State(), ShouldEqual, dispatch.Idle)
			})

			Convey("And the next tick dispatches again", func() {
				_, ok := d.Tick(ctx)
				d.Wait()
				So(ok, ShouldBeTrue)
				So(rec.calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When a call is in flight", func() {
			rec.release = make(chan struct{})
			_, first := d.Tick(ctx)
			reason, second := d.Tick(ctx)

			Convey("Then a second dispatch is skipped", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(reason, ShouldEqual, dispatch.SkipInFlight)
				So(d.State(), ShouldEqual, dispatch.AwaitingResponse)
				So(rec.calls.Load(), ShouldEqual, 1)

				close(rec.release)
				d.Wait()
				_, third := d.Tick(ctx)
				d.Wait()
				So(third, ShouldBeTrue)
				So(rec.calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the camera stops while a call is in flight", func() {
			rec.release = make(chan struct{})
			d.Tick(ctx)
			st.on.Store(false)
			close(rec.release)
			d.Wait()

			Convey("Then the result is dropped and the guard is released", func() {
				So(log.Len(), ShouldEqual, 0)
				So(board.Current().Kind, ShouldEqual, label.Scanning)
				So(d.State(), ShouldEqual, dispatch.Idle)
			})
		})

		Convey("When the session restarts before a stale call returns", func() {
			rec.release = make(chan struct{})
			d.Tick(ctx)
			d.Invalidate()
			close(rec.release)
			d.Wait()

			Convey("Then the stale result is dropped", func() {
				So(log.Len(), ShouldEqual, 0)
				So(d.State(), ShouldEqual, dispatch.Idle)
			})
		})

		Convey("When the dispatcher is closed with a call in flight", func() {
			rec.release = make(chan struct{})
			d.Tick(ctx)
			d.Close()

			Convey("Then the call is cancelled and later ticks are skipped", func() {
				So(log.Len(), ShouldEqual, 0)
				So(board.Current().Kind, ShouldEqual, label.Scanning)
				reason, ok := d.Tick(ctx)
				So(ok, ShouldBeFalse)
				So(reason, ShouldEqual, dispatch.SkipClosed)
			})
		})

		Convey("When the call outlives its timeout", func() {
			rec.release = make(chan struct{})
			short := dispatch.New(rec, latch, st, dispatch.WithJournal(log), dispatch.WithLabels(board),
				dispatch.WithTimeout(20*time.Millisecond))
			defer short.Close()
			short.Tick(ctx)
			short.Wait()

			Convey("Then it fails with the Error label", func() {
				So(log.Len(), ShouldEqual, 0)
				So(board.Current().Text, ShouldEqual, label.ErrorText)
			})
		})
	})
}

func TestDispatcherGuards(t *testing.T) {
	Convey("Given a dispatcher whose guards can be toggled", t, func() {
		rec := &fakeRecognizer{resp: recognized("u1", 0.9)}
		st := &stream{}
		st.on.Store(true)
		latch := &dispatch.Latch{}
		latch.Store(image.NewRGBA(image.Rect(0, 0, 32, 32)), &model.DetectionFrame{Box: model.Box{X: 4, Y: 4, Width: 16, Height: 16}})
		log := detectionlog.New()
		defer log.Close()
		r := roster.New()
		r.SetEvents([]model.Event{{ID: "e1", Title: "Standup"}})
		So(r.Select("e1"), ShouldBeNil)

		d := dispatch.New(rec, latch, st, dispatch.WithJournal(log), dispatch.WithEvents(r))
		defer d.Close()
		ctx := context.Background()

		Convey("When there is no current detection", func() {
			latch.Clear()
			reason, ok := d.Tick(ctx)

			Convey("Then no remote call is made and the log stays empty", func() {
				So(ok, ShouldBeFalse)
				So(reason, ShouldEqual, dispatch.SkipNoDetection)
				So(rec.calls.Load(), ShouldEqual, 0)
				So(log.Len(), ShouldEqual, 0)

				overlay := imaging.NewOverlay().Render(image.Pt(32, 32), nil, label.NewBoard().Current())
				painted := 0
				for _, px := range overlay.Pix {
					if px != 0 {
						painted++
					}
				}
				So(painted, ShouldEqual, 0)
			})
		})

		Convey("When a frame was latched without a face", func() {
			latch.Store(image.NewRGBA(image.Rect(0, 0, 32, 32)), nil)
			reason, _ := d.Tick(ctx)
			So(reason, ShouldEqual, dispatch.SkipNoDetection)
		})

		Convey("When the camera is not streaming", func() {
			st.on.Store(false)
			reason, ok := d.Tick(ctx)
			So(ok, ShouldBeFalse)
			So(reason, ShouldEqual, dispatch.SkipNotStreaming)
			So(rec.calls.Load(), ShouldEqual, 0)
		})

		Convey("When no event is selected", func() {
			So(r.Select(""), ShouldBeNil)
			reason, ok := d.Tick(ctx)
			So(ok, ShouldBeFalse)
			So(reason, ShouldEqual, dispatch.SkipNoEvent)
			So(rec.calls.Load(), ShouldEqual, 0)
		})

		Convey("When the box lies outside the frame", func() {
			latch.Store(image.NewRGBA(image.Rect(0, 0, 32, 32)), &model.DetectionFrame{Box: model.Box{X: 100, Y: 100, Width: 10, Height: 10}})
			reason, ok := d.Tick(ctx)

			Convey("Then the attempt aborts to idle without a remote call", func() {
				So(ok, ShouldBeFalse)
				So(reason, ShouldEqual, dispatch.SkipCropFailed)
				So(rec.calls.Load(), ShouldEqual, 0)
				So(d.State(), ShouldEqual, dispatch.Idle)
			})
		})

		Convey("When every guard passes", func() {
			_, ok := d.Tick(ctx)
			d.Wait()
			So(ok, ShouldBeTrue)
			So(rec.calls.Load(), ShouldEqual, 1)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a dispatcher driven by its ticker", t, func() {
		rec := &fakeRecognizer{err: recognition.ErrStatus}
		st := &stream{}
		st.on.Store(true)
		latch := &dispatch.Latch{}
		latch.Store(image.NewRGBA(image.Rect(0, 0, 32, 32)), &model.DetectionFrame{Box: model.Box{X: 4, Y: 4, Width: 16, Height: 16}})
		d := dispatch.New(rec, latch, st)
		defer d.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			d.Run(ctx, 5*time.Millisecond)
			close(done)
		}()

		deadline := time.Now().Add(2 * time.Second)
		for rec.calls.Load() < 3 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
		<-done
		d.Wait()

		Convey("Then failed calls are retried every period without backoff", func() {
			So(rec.calls.Load(), ShouldBeGreaterThanOrEqualTo, 3)
		})

		Convey("Then no call starts once the loop has stopped", func() {
			n := rec.calls.Load()
			time.Sleep(20 * time.Millisecond)
			So(rec.calls.Load(), ShouldEqual, n)
		})
	})
}

func TestCloseWhileTicking(t *testing.T) {
	Convey("Given a dispatcher ticked from several goroutines", t, func() {
		rec := &fakeRecognizer{resp: recognized("u1", 0.9), release: make(chan struct{})}
		st := &stream{}
		st.on.Store(true)
		latch := &dispatch.Latch{}
		latch.Store(image.NewRGBA(image.Rect(0, 0, 32, 32)), &model.DetectionFrame{Box: model.Box{X: 4, Y: 4, Width: 16, Height: 16}})
		d := dispatch.New(rec, latch, st)

		stop := make(chan struct{})
		var tickers sync.WaitGroup
		for range 8 {
			tickers.Add(1)
			go func() {
				defer tickers.Done()
				for {
					select {
					case <-stop:
						return
					default:
						d.Tick(context.Background())
					}
				}
			}()
		}

		So(waitUntil(func() bool { return rec.calls.Load() > 0 }), ShouldBeTrue)

		Convey("When it is closed mid-flight", func() {
			d.Close()
			close(stop)
			tickers.Wait()
			n := rec.calls.Load()

			Convey("Then every started call has returned and no new one starts", func() {
				So(n, ShouldEqual, 1)
				So(d.State(), ShouldEqual, dispatch.Idle)

				reason, ok := d.Tick(context.Background())
				So(ok, ShouldBeFalse)
				So(reason, ShouldEqual, dispatch.SkipClosed)
				So(rec.calls.Load(), ShouldEqual, n)
			})
		})
	})
}

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
