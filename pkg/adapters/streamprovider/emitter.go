package streamprovider

import (
	"fmt"

	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/packet"
)

// emitter owns the bitstream buffer currently lent out through a packet.
type emitter struct {
	pool    *buffer.Pool
	own     bool
	current *buffer.Shared
}

func newEmitter(pool *buffer.Pool) *emitter {
	if pool == nil {
		return &emitter{pool: buffer.NewPool(buffer.NewHostAllocator(buffer.DefaultMaxIdle)), own: true}
	}
	return &emitter{pool: pool}
}

// emit copies data into a fresh bitstream buffer and describes it in pkt.
// The previously emitted buffer is released.
func (e *emitter) emit(pkt *packet.PacketData, data []byte, pts int64, flags packet.Flag) error {
	e.release()
	if len(data) == 0 {
		return fmt.Errorf("streamprovider: empty access unit: %w", buffer.ErrInvalidSize)
	}
	buf, err := e.pool.Get(len(data))
	if err != nil {
		return fmt.Errorf("bitstream buffer: %w", err)
	}
	if err := buf.WriteAt(data, 0); err != nil {
		buf.Release()
		return err
	}
	e.current = buf

	pkt.EndOfStream = false
	pkt.BitstreamAddr = buf.Addr()
	pkt.BitstreamSize = int64(len(data))
	pkt.PTS = pts
	pkt.Flags = flags
	return nil
}

// end releases the current buffer and marks pkt as end of stream.
func (e *emitter) end(pkt *packet.PacketData) {
	e.release()
	pkt.SignalEndOfStream()
}

func (e *emitter) release() {
	if e.current != nil {
		e.current.Release()
		e.current = nil
	}
}

func (e *emitter) close() error {
	e.release()
	if e.own {
		return e.pool.Close()
	}
	return nil
}
