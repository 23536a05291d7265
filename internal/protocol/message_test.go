package protocol

import (
	"bytes"
	"testing"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	m := &ProtoMessage{SeqNum: 7, Kind: KindPeekMem, Data: []byte{0xde, 0xad, 0xbe, 0xef}}
	buf, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.SeqNum != m.SeqNum || got.Kind != m.Kind || !bytes.Equal(got.Data, m.Data) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestMarshalEmptyData(t *testing.T) {
	m := &ProtoMessage{SeqNum: 1, Kind: KindAck}
	buf, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Data) != 0 {
		t.Errorf("Data = %v, want empty", got.Data)
	}
}

func TestMarshalDataTooLong(t *testing.T) {
	m := &ProtoMessage{Kind: KindPokeMem, Data: make([]byte, MaxMsgDataLen+1)}
	if _, err := m.Marshal(); err != ErrDataTooLong {
		t.Fatalf("err = %v, want ErrDataTooLong", err)
	}
}

func TestUnmarshalChecksumMismatch(t *testing.T) {
	m := &ProtoMessage{SeqNum: 3, Kind: KindInit}
	buf, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	buf[2] ^= 0xff // corrupt the checksum's high byte
	if _, err := Unmarshal(buf); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	if _, err := Unmarshal([]byte{0x00, 0x01}); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestKindString(t *testing.T) {
	if KindRun.String() != "RUN" {
		t.Errorf("KindRun.String() = %q, want RUN", KindRun.String())
	}
}

func TestDbgErrorString(t *testing.T) {
	if ErrInvalidState.String() != "INVALID_STATE" {
		t.Errorf("ErrInvalidState.String() = %q, want INVALID_STATE", ErrInvalidState.String())
	}
}
