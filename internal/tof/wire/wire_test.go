package wire

import "testing"

func sampleEvent() RBEventPacket {
	traceLen := 4
	samples := make([]uint16, traceLen)
	for i := range samples {
		samples[i] = uint16(1000 + i)
	}
	return RBEventPacket{
		Header: RBEventHeader{
			ROI:         uint16(traceLen - 1),
			DNA:         0x0123456789ABCDEF,
			FWHash:      0xBEEF,
			BoardID:     7,
			ChannelMask: 0b101, // channels 0 and 2
			EventCount:  424242,
			DTap0:       1,
			DTap1:       2,
			Timestamp:   0x0000FFEEDDCC,
		},
		StopCell: 512,
		Channels: []ChannelBlock{
			{Channel: 0, Samples: append([]uint16{}, samples...)},
			{Channel: 2, Samples: append([]uint16{}, samples...)},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleEvent()
	encoded := EncodeRBEvent(want)

	got, n, err := DecodeRBEvent(encoded)
	if err != nil {
		t.Fatalf("DecodeRBEvent: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("consumed %d bytes, want %d", n, len(encoded))
	}
	if !got.CRCOk {
		t.Fatal("expected packet CRC to validate")
	}
	if got.Header.DNA != want.Header.DNA {
		t.Errorf("DNA = %x, want %x", got.Header.DNA, want.Header.DNA)
	}
	if got.Header.EventCount != want.Header.EventCount {
		t.Errorf("EventCount = %d, want %d", got.Header.EventCount, want.Header.EventCount)
	}
	if got.Header.Timestamp != want.Header.Timestamp {
		t.Errorf("Timestamp = %x, want %x", got.Header.Timestamp, want.Header.Timestamp)
	}
	if len(got.Channels) != len(want.Channels) {
		t.Fatalf("got %d channels, want %d", len(got.Channels), len(want.Channels))
	}
	for i, ch := range got.Channels {
		if !ch.CRCOk {
			t.Errorf("channel %d: CRC did not validate", ch.Channel)
		}
		for j, s := range ch.Samples {
			if s != want.Channels[i].Samples[j] {
				t.Errorf("channel %d sample %d = %d, want %d", ch.Channel, j, s, want.Channels[i].Samples[j])
			}
		}
	}
}

func TestDecodeTailMismatch(t *testing.T) {
	encoded := EncodeRBEvent(sampleEvent())
	encoded[len(encoded)-1] ^= 0xFF

	_, _, err := DecodeRBEvent(encoded)
	if err != ErrTailMismatch {
		t.Fatalf("expected ErrTailMismatch, got %v", err)
	}
}

func TestDecodeCrcMismatchStillDecodes(t *testing.T) {
	encoded := EncodeRBEvent(sampleEvent())
	// Flip a sample bit inside channel 0's trace without touching its CRC.
	encoded[headerFixedLen+channelHeadLen] ^= 0x01

	got, _, err := DecodeRBEvent(encoded)
	if err != nil {
		t.Fatalf("expected decode to still succeed on a bad channel CRC, got %v", err)
	}
	if got.Channels[0].CRCOk {
		t.Fatal("expected channel 0 CRC to be invalid")
	}
}

func TestDecodeTruncated(t *testing.T) {
	encoded := EncodeRBEvent(sampleEvent())
	_, _, err := DecodeRBEvent(encoded[:len(encoded)-10])
	if err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeMalformedHead(t *testing.T) {
	encoded := EncodeRBEvent(sampleEvent())
	encoded[0] ^= 0xFF
	_, _, err := DecodeRBEvent(encoded)
	if err != ErrMalformedHeader {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestScanFindsPacketsAndResyncs(t *testing.T) {
	good := EncodeRBEvent(sampleEvent())
	junk := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	data := append(append(append([]byte{}, junk...), good...), good...)

	results := Scan(data, func(b []byte) (int, PacketTag, error) {
		_, n, err := DecodeRBEvent(b)
		return n, TagRBEvent, err
	})

	var ok int
	for _, r := range results {
		if r.Err == nil {
			ok++
			if r.Length != len(good) {
				t.Errorf("result length = %d, want %d", r.Length, len(good))
			}
		}
	}
	if ok != 2 {
		t.Fatalf("expected 2 successful packets, got %d (results=%v)", ok, results)
	}
}
