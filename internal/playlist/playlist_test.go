package playlist_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"framecache/internal/item"
	"framecache/internal/playlist"
	"framecache/internal/synthetic"
)

func newList(t *testing.T, frames ...int) (*playlist.Playlist, []item.Handle) {
	t.Helper()
	reg := item.NewRegistry()
	list := playlist.New()
	var handles []item.Handle
	for i, n := range frames {
		h := reg.Register(synthetic.New(synthetic.Options{Name: string(rune('A' + i)), Frames: n, FrameBytes: 1}))
		list.Add(h)
		handles = append(handles, h)
	}
	return list, handles
}

func TestAddSelectsFirstItem(t *testing.T) {
	list, hs := newList(t, 10, 20)
	sel, ok := list.Selected()
	if !ok || sel.ID() != hs[0].ID() {
		t.Fatalf("selected = %v, want %v", sel.ID(), hs[0].ID())
	}
	if err := list.Select(hs[1].ID()); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if sel, _ := list.Selected(); sel.ID() != hs[1].ID() {
		t.Fatalf("selected = %v, want %v", sel.ID(), hs[1].ID())
	}
	if err := list.Select(99); !errors.Is(err, playlist.ErrUnknownItem) {
		t.Fatalf("got %v want ErrUnknownItem", err)
	}
}

func TestRemoveWaitsForDeleteHooks(t *testing.T) {
	list, hs := newList(t, 10, 20, 30)
	release := make(chan struct{})
	var hooked item.ID
	list.OnAboutToDelete(func(h item.Handle) <-chan struct{} {
		hooked = h.ID()
		return release
	})
	changes := 0
	list.OnChange(func() { changes++ })
	if err := list.Select(hs[1].ID()); err != nil {
		t.Fatalf("Select: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- list.Remove(context.Background(), hs[1].ID()) }()

	select {
	case <-done:
		t.Fatal("Remove returned before the hook released the item")
	case <-time.After(20 * time.Millisecond):
	}
	if list.Len() != 3 {
		t.Fatalf("item dropped before release: len %d", list.Len())
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if hooked != hs[1].ID() {
		t.Fatalf("hook saw %v want %v", hooked, hs[1].ID())
	}
	if list.Len() != 2 {
		t.Fatalf("len = %d want 2", list.Len())
	}
	if sel, _ := list.Selected(); sel.ID() != hs[2].ID() {
		t.Fatalf("selection moved to %v want %v", sel.ID(), hs[2].ID())
	}
	if changes != 2 {
		t.Fatalf("changes = %d want 2", changes)
	}
}

func TestRemoveWithoutHooksReleases(t *testing.T) {
	list, hs := newList(t, 10)
	if err := list.Remove(context.Background(), hs[0].ID()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if hs[0].Valid() {
		t.Fatal("expected handle released")
	}
	if _, ok := list.Selected(); ok {
		t.Fatal("expected no selection on empty playlist")
	}
}

func TestRemoveHonoursContext(t *testing.T) {
	list, hs := newList(t, 10)
	list.OnAboutToDelete(func(item.Handle) <-chan struct{} { return make(chan struct{}) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := list.Remove(ctx, hs[0].ID()); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}

func TestPlayerSeekClampsAndNotifies(t *testing.T) {
	list, hs := newList(t, 10)
	player := playlist.NewPlayer(list, time.Millisecond)
	var mu sync.Mutex
	var seen []playlist.Position
	player.OnPosition(func(pos playlist.Position) {
		mu.Lock()
		seen = append(seen, pos)
		mu.Unlock()
	})

	pos, err := player.Seek(hs[0].ID(), 50)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if pos.Frame != 9 {
		t.Fatalf("frame = %d want 9", pos.Frame)
	}
	if _, err := player.Step(-3); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got := player.Position().Frame; got != 6 {
		t.Fatalf("frame = %d want 6", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("notifications = %d want 2", len(seen))
	}
}

func TestPlayerRunAdvancesIntoNextItem(t *testing.T) {
	list, hs := newList(t, 3, 5)
	player := playlist.NewPlayer(list, time.Millisecond)
	reached := make(chan struct{})
	var once sync.Once
	player.OnPosition(func(pos playlist.Position) {
		if pos.Item == hs[1].ID() && pos.Frame == 2 {
			once.Do(func() { close(reached) })
		}
	})
	if pos := player.Play(false); pos.Item != hs[0].ID() || !pos.Playing {
		t.Fatalf("unexpected position after Play: %+v", pos)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go player.Run(ctx)

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatalf("playback did not reach B:2, at %+v", player.Position())
	}
}

func TestPlayerReverseStopsAtItemStart(t *testing.T) {
	list, hs := newList(t, 4)
	player := playlist.NewPlayer(list, time.Millisecond)
	if _, err := player.Seek(hs[0].ID(), 1); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	player.Play(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go player.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for player.Position().Playing {
		if time.Now().After(deadline) {
			t.Fatal("reverse playback never stopped")
		}
		time.Sleep(time.Millisecond)
	}
	if got := player.Position(); got.Frame != 0 || !got.Reverse {
		t.Fatalf("unexpected final position %+v", got)
	}
}
