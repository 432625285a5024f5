// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package relay

import (
	"context"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RendezvousTimeout = 50 * time.Millisecond
	cfg.DownloadTimeout = 100 * time.Millisecond
	return cfg
}

func TestRegistryIdsAreMonotonicAndNeverReused(t *testing.T) {
	r := NewRegistry(testConfig())
	file := FileDescriptor{Name: "a.txt", Size: 1}

	id1 := r.Create(file)
	id2 := r.Create(file)
	id3 := r.Create(file)

	if id1 != 1 || id2 != 2 || id3 != 3 {
		t.Fatalf("ids = %d, %d, %d, want 1, 2, 3", id1, id2, id3)
	}
}

func TestRegistryGetUnknownIsAbsent(t *testing.T) {
	r := NewRegistry(testConfig())
	if _, ok := r.Get(42); ok {
		t.Fatalf("expected absent for unknown id")
	}
}

func TestRegistryRemovesOnSessionCompletion(t *testing.T) {
	r := NewRegistry(testConfig())
	file := FileDescriptor{Name: "a.txt", Size: 1}
	id := r.Create(file)

	if _, ok := r.Get(id); !ok {
		t.Fatalf("expected session to be present immediately after creation")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}

	// Nobody rendezvouses: the session times out on its own and the
	// registry must reap it without any handler ever touching it.
	session, _ := r.Get(id)
	select {
	case <-session.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not time out in time")
	}

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := r.Get(id); !ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("registry did not remove completed session")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := r.Count(); got != 0 {
		t.Fatalf("Count() after removal = %d, want 0", got)
	}
}

func TestRegistryGetAfterDoneReturnsAbsent(t *testing.T) {
	r := NewRegistry(testConfig())
	file := FileDescriptor{Name: "a.txt", Size: 1}
	id := r.Create(file)

	session, _ := r.Get(id)
	<-session.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		if _, ok := r.Get(id); !ok {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("registry.Get(id) kept returning present after Done()")
		default:
		}
	}
}
