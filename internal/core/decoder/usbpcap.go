package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/sahara/internal/core"
)

const (
	// USBPcap packet header, packed, little-endian.
	usbpcapHeaderLen = 27

	// Bit 0 of the info byte: 1 = device to host.
	usbpcapInfoToHost = 0x01

	// LinkTypeUSBPcap is the DLT assigned to USBPcap captures.
	LinkTypeUSBPcap layers.LinkType = 249
)

// LayerTypeUSBPcap identifies the USBPcap transfer envelope.
var LayerTypeUSBPcap = gopacket.RegisterLayerType(2049, gopacket.LayerTypeMetadata{
	Name:    "USBPcap",
	Decoder: gopacket.DecodeFunc(decodeUSBPcap),
})

// USBPcap is the per-transfer header USBPcap prepends to every frame.
type USBPcap struct {
	layers.BaseLayer
	HeaderLen  uint16
	IRPID      uint64
	Status     uint32
	Function   uint16
	Info       uint8
	Bus        uint16
	Device     uint16
	Endpoint   uint8
	Transfer   uint8
	DataLength uint32
}

func (u *USBPcap) LayerType() gopacket.LayerType { return LayerTypeUSBPcap }

func (u *USBPcap) CanDecode() gopacket.LayerClass { return LayerTypeUSBPcap }

func (u *USBPcap) NextLayerType() gopacket.LayerType {
	if len(u.Payload) == 0 {
		return gopacket.LayerTypeZero
	}
	return gopacket.LayerTypePayload
}

// Direction reports the transfer direction encoded in the info byte.
func (u *USBPcap) Direction() core.Direction {
	if u.Info&usbpcapInfoToHost != 0 {
		return core.ToHost
	}
	return core.FromHost
}

// DecodeFromBytes decodes the fixed header and bounds the payload to the
// declared transfer length. Extra trailing bytes are dropped.
func (u *USBPcap) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < usbpcapHeaderLen {
		df.SetTruncated()
		return fmt.Errorf("%w: got %d bytes, need %d", core.ErrPacketTooShort, len(data), usbpcapHeaderLen)
	}

	u.HeaderLen = binary.LittleEndian.Uint16(data[0:2])
	u.IRPID = binary.LittleEndian.Uint64(data[2:10])
	u.Status = binary.LittleEndian.Uint32(data[10:14])
	u.Function = binary.LittleEndian.Uint16(data[14:16])
	u.Info = data[16]
	u.Bus = binary.LittleEndian.Uint16(data[17:19])
	u.Device = binary.LittleEndian.Uint16(data[19:21])
	u.Endpoint = data[21]
	u.Transfer = data[22]
	u.DataLength = binary.LittleEndian.Uint32(data[23:27])

	rest := data[usbpcapHeaderLen:]
	if uint64(len(rest)) < uint64(u.DataLength) {
		df.SetTruncated()
		return fmt.Errorf("%w: declared %d, captured %d", core.ErrPayloadTruncated, u.DataLength, len(rest))
	}

	u.Contents = data[:usbpcapHeaderLen]
	u.Payload = rest[:u.DataLength]
	return nil
}

func decodeUSBPcap(data []byte, p gopacket.PacketBuilder) error {
	u := &USBPcap{}
	if err := u.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(u)
	return p.NextDecoder(u.NextLayerType())
}

// USBPcapDecoder turns USBPcap frames into transactions. It reuses one
// layer value and is not safe for concurrent use.
type USBPcapDecoder struct {
	layer USBPcap
}

// NewUSBPcapDecoder creates a decoder for USBPcap framed captures.
func NewUSBPcapDecoder() *USBPcapDecoder {
	return &USBPcapDecoder{}
}

// Decode implements Decoder. The returned payload aliases rec.Data.
func (d *USBPcapDecoder) Decode(rec core.CaptureRecord) (core.Transaction, error) {
	if err := d.layer.DecodeFromBytes(rec.Data, gopacket.NilDecodeFeedback); err != nil {
		return core.Transaction{}, fmt.Errorf("packet %d: %w", rec.Number, err)
	}
	return core.Transaction{
		Direction: d.layer.Direction(),
		Bus:       d.layer.Bus,
		Device:    d.layer.Device,
		Endpoint:  d.layer.Endpoint,
		Payload:   d.layer.Payload,
	}, nil
}

// SerializeTo writes the header in front of the payload already in b.
// With FixLengths set, HeaderLen and DataLength are derived from b.
func (u *USBPcap) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	payloadLen := len(b.Bytes())
	hdr, err := b.PrependBytes(usbpcapHeaderLen)
	if err != nil {
		return err
	}
	if opts.FixLengths {
		u.HeaderLen = usbpcapHeaderLen
		u.DataLength = uint32(payloadLen)
	}
	binary.LittleEndian.PutUint16(hdr[0:2], u.HeaderLen)
	binary.LittleEndian.PutUint64(hdr[2:10], u.IRPID)
	binary.LittleEndian.PutUint32(hdr[10:14], u.Status)
	binary.LittleEndian.PutUint16(hdr[14:16], u.Function)
	hdr[16] = u.Info
	binary.LittleEndian.PutUint16(hdr[17:19], u.Bus)
	binary.LittleEndian.PutUint16(hdr[19:21], u.Device)
	hdr[21] = u.Endpoint
	hdr[22] = u.Transfer
	binary.LittleEndian.PutUint32(hdr[23:27], u.DataLength)
	return nil
}
