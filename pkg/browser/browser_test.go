package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/ram-browser/internal/testutil"
	"github.com/Sternrassler/ram-browser/pkg/client"
	"github.com/Sternrassler/ram-browser/pkg/filter"
	"github.com/Sternrassler/ram-browser/pkg/model"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestBrowser(t *testing.T, mock *testutil.MockRAM) *Browser {
	t.Helper()

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 2 * time.Second
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	bcfg := DefaultConfig()
	bcfg.Pagination.Timeout = 2 * time.Second
	bcfg.Episodes.Timeout = 2 * time.Second
	return New(c, bcfg, zerolog.Nop())
}

// eventually polls cond until it holds or two seconds pass.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestBrowser_ListAndDetail(t *testing.T) {
	Convey("Given a browser over a catalogue of 30 characters", t, func() {
		mock := testutil.NewMockRAM(testutil.Characters(30), testutil.Episodes(3))
		Reset(func() { mock.Close() })
		b := newTestBrowser(t, mock)
		ctx := context.Background()

		Convey("When the first page is loaded", func() {
			So(b.Pager.LoadNext(ctx), ShouldBeNil)
			snap := b.Pager.Snapshot()

			Convey("Then it holds one page of characters", func() {
				So(len(snap.Items), ShouldEqual, 10)
				So(snap.NextCursor, ShouldEqual, 2)
				So(snap.Initial.Status, ShouldEqual, model.LoadLoaded)
			})

			Convey("And selecting a listed character shows its episodes", func() {
				c, err := b.Select(3)
				So(err, ShouldBeNil)
				So(c.ID, ShouldEqual, 3)

				d, err := b.Detail(ctx)
				So(err, ShouldBeNil)
				So(d.Character.ID, ShouldEqual, 3)
				So(d.StatusKind, ShouldEqual, model.StatusUnknown)
				So(d.LastLocation, ShouldEqual, "unknown")
				So(d.Episodes.State.Status, ShouldEqual, model.LoadLoaded)
				So(len(d.Episodes.Episodes), ShouldEqual, 3)
				So(d.FirstSeen, ShouldEqual, "Episode 1")

				Convey("And opening it again does not hit the API", func() {
					before := mock.TotalRequests()
					_, err := b.Detail(ctx)
					So(err, ShouldBeNil)
					So(mock.TotalRequests(), ShouldEqual, before)
				})
			})

			Convey("And a character without episodes needs no request", func() {
				_, err := b.Select(4)
				So(err, ShouldBeNil)
				before := mock.TotalRequests()

				d, err := b.Detail(ctx)
				So(err, ShouldBeNil)
				So(d.Episodes.State.Status, ShouldEqual, model.LoadLoaded)
				So(d.Episodes.Episodes, ShouldBeEmpty)
				So(d.FirstSeen, ShouldEqual, "")
				So(mock.TotalRequests(), ShouldEqual, before)
			})

			Convey("And an unknown id cannot be selected", func() {
				_, err := b.Select(999)
				So(errors.Is(err, ErrUnknownCharacter), ShouldBeTrue)
			})

			Convey("And a failed episode load keeps the character visible", func() {
				mock.SetResponse(testutil.EpisodePath+"1,2,3", testutil.NewServerErrorResponse())
				_, err := b.Select(3)
				So(err, ShouldBeNil)

				d, err := b.Detail(ctx)
				So(err, ShouldBeNil)
				So(d.Character.ID, ShouldEqual, 3)
				So(d.Episodes.State.IsError(), ShouldBeTrue)
				So(client.ClassOf(d.Episodes.State.Err), ShouldEqual, client.ErrorClassServer)

				Convey("And asking again retries", func() {
					mock.ClearResponse(testutil.EpisodePath + "1,2,3")
					d, err := b.Detail(ctx)
					So(err, ShouldBeNil)
					So(d.Episodes.State.Status, ShouldEqual, model.LoadLoaded)
					So(len(d.Episodes.Episodes), ShouldEqual, 3)
				})
			})
		})

		Convey("When nothing is selected", func() {
			_, err := b.Detail(ctx)

			Convey("Then the detail is unavailable", func() {
				So(errors.Is(err, filter.ErrNoSelection), ShouldBeTrue)
			})
		})

		Convey("When the list is scrolled to the end", func() {
			for b.Pager.Snapshot().NextCursor != model.NoCursor {
				So(b.Pager.LoadNext(ctx), ShouldBeNil)
			}

			Convey("Then every character is listed once and nothing more is requested", func() {
				So(len(b.Pager.Snapshot().Items), ShouldEqual, 30)
				before := mock.RequestCount(testutil.CharacterPath)
				So(b.Pager.Visible(ctx, 29), ShouldBeNil)
				So(mock.RequestCount(testutil.CharacterPath), ShouldEqual, before)
			})
		})
	})
}

func TestBrowser_Run(t *testing.T) {
	Convey("Given a running browser", t, func() {
		mock := testutil.NewMockRAM(testutil.Characters(30), testutil.Episodes(3))
		b := newTestBrowser(t, mock)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- b.Run(ctx) }()

		Reset(func() {
			cancel()
			<-done
			mock.Close()
		})

		Convey("Then the first page loads by itself", func() {
			So(eventually(func() bool {
				return len(b.Pager.Snapshot().Items) == 10
			}), ShouldBeTrue)
		})

		Convey("When a status filter is applied", func() {
			snap := b.ApplyFilter("Dead", "")
			So(snap.Status, ShouldEqual, "dead")

			Convey("Then the list restarts with dead characters only", func() {
				So(eventually(func() bool {
					s := b.Pager.Snapshot()
					return s.Filter.Status == "dead" && s.Initial.Status == model.LoadLoaded
				}), ShouldBeTrue)

				for _, c := range b.Pager.Snapshot().Items {
					So(c.StatusKind(), ShouldEqual, model.StatusDead)
				}
			})

			Convey("And clearing it lists everyone again", func() {
				So(eventually(func() bool {
					return b.Pager.Snapshot().Filter.Status == "dead"
				}), ShouldBeTrue)

				cleared := b.ClearFilter()
				So(cleared.IsZero(), ShouldBeTrue)
				So(eventually(func() bool {
					s := b.Pager.Snapshot()
					return s.Filter.IsZero() && s.Initial.Status == model.LoadLoaded && len(s.Items) == 10
				}), ShouldBeTrue)
			})
		})

		Convey("When a character is selected", func() {
			So(eventually(func() bool {
				return len(b.Pager.Snapshot().Items) == 10
			}), ShouldBeTrue)
			_, err := b.Select(2)
			So(err, ShouldBeNil)

			Convey("Then its episodes load in the background", func() {
				So(eventually(func() bool {
					res := b.Episodes.Current()
					return res.CharacterID == 2 && res.State.Status == model.LoadLoaded
				}), ShouldBeTrue)
				So(len(b.Episodes.Current().Episodes), ShouldEqual, 2)
			})
		})
	})
}

func TestBrowser_FilterAppliedBeforeRun(t *testing.T) {
	Convey("Given a browser whose filter was set before it started", t, func() {
		mock := testutil.NewMockRAM(testutil.Characters(30), testutil.Episodes(3))
		b := newTestBrowser(t, mock)
		b.ApplyFilter("dead", "")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- b.Run(ctx) }()

		Reset(func() {
			cancel()
			<-done
			mock.Close()
		})

		Convey("Then the first page already honours the filter", func() {
			So(eventually(func() bool {
				return b.Pager.Snapshot().Initial.Status == model.LoadLoaded
			}), ShouldBeTrue)

			snap := b.Pager.Snapshot()
			So(snap.Filter.Status, ShouldEqual, "dead")
			So(snap.Items, ShouldNotBeEmpty)
			for _, c := range snap.Items {
				So(c.StatusKind(), ShouldEqual, model.StatusDead)
			}
			So(mock.Queries(), ShouldHaveLength, 1)
			So(mock.Queries()[0], ShouldContainSubstring, "status=dead")
		})
	})
}
