package bindings

import (
	"fmt"

	"github.com/user/videobridge/pkg/adapters/ffmpegdecoder"
	"github.com/user/videobridge/pkg/adapters/streamprovider"
	"github.com/user/videobridge/pkg/buffer"
	"github.com/user/videobridge/pkg/codec"
	"github.com/user/videobridge/pkg/device"
	"github.com/user/videobridge/pkg/packet"
	"github.com/user/videobridge/pkg/ports"
	"github.com/user/videobridge/pkg/surface"
)

// Submodule names used by Init.
const (
	DecoderModule    = "decoder"
	DecoderCPUModule = "decodercpu"
	DemuxerModule    = "demuxer"
)

// Init attaches every capability under root: the hardware decoder, the CPU
// decoder, and the demuxer with its stream provider, each in its own
// submodule, and buffer export on root itself.
func Init(root *Module) {
	ExportInitializer(root)
	DecoderInitializer(root.Submodule(DecoderModule))
	DecoderCPUInitializer(root.Submodule(DecoderCPUModule))
	demux := root.Submodule(DemuxerModule)
	DemuxerInitializer(demux)
	StreamProviderInitializer(demux)
}

// defineFrameTypes adds the packet record, device descriptor and surface
// enumerations shared by both decoder modules.
func defineFrameTypes(d *definer) {
	d.def("PacketData", packet.New)
	d.def("PlaneY", packet.PlaneY)
	d.def("PlaneUV", packet.PlaneUV)
	d.def("PlaneU", packet.PlaneU)
	d.def("PlaneV", packet.PlaneV)
	d.def("FlagKeyFrame", packet.FlagKeyFrame)
	d.def("FlagCorrupt", packet.FlagCorrupt)
	d.def("FlagDiscard", packet.FlagDiscard)

	d.def("MemInternal", surface.MemInternal)
	d.def("MemDevCopied", surface.MemDevCopied)
	d.def("MemHostCopied", surface.MemHostCopied)
	d.def("MemNotMapped", surface.MemNotMapped)

	d.def("FlushNone", ports.FlushNone)
	d.def("FlushDump", ports.FlushDump)
	d.def("FlushSegment", ports.FlushSegment)

	d.def("RGB24", ports.RGB24)
	d.def("BGR24", ports.BGR24)
	d.def("RGBA32", ports.RGBA32)

	d.def("CodecFromAVCodecID", codec.FromAVCodecID)
	d.def("CodecFromName", codec.FromName)
}

// DecoderInitializer attaches the hardware decoder to m.
func DecoderInitializer(m *Module) {
	m.apply("decoder", func(d *definer) {
		defineFrameTypes(d)
		d.def("New", ffmpegdecoder.NewHardware)
		d.def("Devices", device.Enumerate)
		d.def("SelectDevice", device.Select)
	})
}

// DecoderCPUInitializer attaches the CPU fallback decoder to m.
func DecoderCPUInitializer(m *Module) {
	m.apply("decodercpu", func(d *definer) {
		defineFrameTypes(d)
		d.def("New", ffmpegdecoder.NewCPU)
	})
}

// DemuxerInitializer attaches file demuxing and seek parameters to m.
func DemuxerInitializer(m *Module) {
	m.apply("demuxer", func(d *definer) {
		d.def("Open", streamprovider.Open)
		d.def("SeekExactFrame", ports.SeekExactFrame)
		d.def("SeekPrevKeyFrame", ports.SeekPrevKeyFrame)
		d.def("ByFrameNumber", ports.ByFrameNumber)
		d.def("ByTimestamp", ports.ByTimestamp)
	})
}

// StreamProviderInitializer attaches demuxing from a host-supplied reader to m.
func StreamProviderInitializer(m *Module) {
	m.apply("streamprovider", func(d *definer) {
		d.def("NewStreamProvider", streamprovider.New)
		d.def("Sniff", streamprovider.Sniff)
	})
}

// ExportPlane exports slot idx of pkt as a tensor holding its own reference.
func ExportPlane(pkt *packet.PacketData, idx packet.PlaneIndex, deviceID int) (*buffer.Tensor, error) {
	if idx < 0 || idx >= packet.NumPlanes {
		return nil, fmt.Errorf("bindings: plane %d out of range", idx)
	}
	return pkt.Plane(idx).Export(deviceID)
}

// ExportInitializer attaches buffer export to m.
func ExportInitializer(m *Module) {
	m.apply("export", func(d *definer) {
		d.def("ExportPlane", ExportPlane)
		d.def("DomainHost", buffer.DomainHost)
		d.def("DomainMapped", buffer.DomainMapped)
		d.def("DomainDevice", buffer.DomainDevice)
	})
}
