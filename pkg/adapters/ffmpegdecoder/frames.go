package ffmpegdecoder

import (
	"container/heap"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/surface"
)

// pendingPTS is the timestamp of a submitted access unit. ffmpeg emits
// surfaces in presentation order, so each surface takes the smallest
// outstanding timestamp.
type pendingPTS struct {
	pts     int64
	discard bool
	seq     uint64 // submission order, breaks ties between equal timestamps
}

type ptsHeap []pendingPTS

func (h ptsHeap) Len() int { return len(h) }
func (h ptsHeap) Less(i, j int) bool {
	if h[i].pts != h[j].pts {
		return h[i].pts < h[j].pts
	}
	return h[i].seq < h[j].seq
}
func (h ptsHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *ptsHeap) Push(x any) { *h = append(*h, x.(pendingPTS)) }

func (h *ptsHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// timestamps assigns submitted timestamps to emitted surfaces.
type timestamps struct {
	h   ptsHeap
	seq uint64
}

func (t *timestamps) push(pts int64, discard bool) {
	t.seq++
	heap.Push(&t.h, pendingPTS{pts: pts, discard: discard, seq: t.seq})
}

// pop returns the next presentation timestamp. ok is false when ffmpeg
// produced more surfaces than it was given access units.
func (t *timestamps) pop() (p pendingPTS, ok bool) {
	if t.h.Len() == 0 {
		return pendingPTS{}, false
	}
	return heap.Pop(&t.h).(pendingPTS), true
}

func (t *timestamps) reset() {
	t.h = t.h[:0]
}

// decodedFrame is a surface waiting for GetFrame. owner is nil when
// surfaces are not mapped.
type decodedFrame struct {
	owner *buffer.Shared
	info  surface.Info
	pts   int64
}

// frameQueue holds decoded surfaces in the order ffmpeg finalized them.
type frameQueue struct {
	frames []decodedFrame
}

func (q *frameQueue) push(f decodedFrame) { q.frames = append(q.frames, f) }

func (q *frameQueue) pop() (decodedFrame, bool) {
	if len(q.frames) == 0 {
		return decodedFrame{}, false
	}
	f := q.frames[0]
	q.frames[0] = decodedFrame{}
	q.frames = q.frames[1:]
	return f, true
}

func (q *frameQueue) len() int { return len(q.frames) }

// drain removes every queued frame, passing each to fn.
func (q *frameQueue) drain(fn func(decodedFrame)) {
	for _, f := range q.frames {
		fn(f)
	}
	q.frames = nil
}
