package hidio

import "testing"

func newTestInterface() *CommandInterface {
	return New(8, DeviceInfo{
		DeviceName:     "TestBoard",
		FirmwareName:   "kiibohd-core",
		FirmwareVendor: "kiibohd",
	}, Version{Major: 1, Minor: 2, Patch: 3})
}

func roundTrip(t *testing.T, c *CommandInterface, req Packet) Packet {
	t.Helper()
	if err := c.PushRx(encodePacket(req)); err != nil {
		t.Fatalf("PushRx() error = %v", err)
	}
	if _, err := c.ProcessRx(1); err != nil {
		t.Fatalf("ProcessRx() error = %v", err)
	}
	raw, ok := c.PopTx()
	if !ok {
		t.Fatal("PopTx() ok = false, want a queued response")
	}
	resp, err := decodePacket(raw)
	if err != nil {
		t.Fatalf("decodePacket() error = %v", err)
	}
	return resp
}

func TestSupportedIDsListsRegisteredCommands(t *testing.T) {
	c := newTestInterface()
	resp := roundTrip(t, c, Packet{ID: CmdSupportedIDs, Type: PacketData})
	if resp.Type != PacketAck {
		t.Fatalf("Type = %v, want PacketAck", resp.Type)
	}
	if len(resp.Data)%2 != 0 || len(resp.Data) == 0 {
		t.Fatalf("Data = %v, want a nonempty even-length u16 list", resp.Data)
	}
}

func TestInfoReportsFirmwareVersion(t *testing.T) {
	c := newTestInterface()
	resp := roundTrip(t, c, Packet{ID: CmdInfo, Type: PacketData, Data: []byte{byte(InfoMajorVersion)}})
	if resp.Type != PacketAck || len(resp.Data) != 2 || resp.Data[0] != 1 {
		t.Fatalf("resp = %+v, want Ack major version 1", resp)
	}
}

func TestInfoUnknownPropertyNaks(t *testing.T) {
	c := newTestInterface()
	resp := roundTrip(t, c, Packet{ID: CmdInfo, Type: PacketData, Data: []byte{0xFF}})
	if resp.Type != PacketNak {
		t.Fatalf("Type = %v, want PacketNak", resp.Type)
	}
}

func TestTestCommandEchoes(t *testing.T) {
	c := newTestInterface()
	payload := []byte("ping")
	resp := roundTrip(t, c, Packet{ID: CmdTest, Type: PacketData, Data: payload})
	if resp.Type != PacketAck || string(resp.Data) != "ping" {
		t.Fatalf("resp = %+v, want Ack echoing %q", resp, payload)
	}
}

func TestFlashModeWithoutHookNaks(t *testing.T) {
	c := newTestInterface()
	resp := roundTrip(t, c, Packet{ID: CmdFlashMode, Type: PacketData})
	if resp.Type != PacketNak {
		t.Fatalf("Type = %v, want PacketNak (no hook registered)", resp.Type)
	}
}

func TestFlashModeWithHookAcks(t *testing.T) {
	c := newTestInterface()
	called := false
	c.FlashModeFunc = func() error { called = true; return nil }
	resp := roundTrip(t, c, Packet{ID: CmdFlashMode, Type: PacketData})
	if resp.Type != PacketAck {
		t.Fatalf("Type = %v, want PacketAck", resp.Type)
	}
	if !called {
		t.Error("FlashModeFunc was not invoked")
	}
}

func TestTerminalOutputDrainsOnce(t *testing.T) {
	c := newTestInterface()
	c.QueueTerminalOutput([]byte("hello"))

	resp := roundTrip(t, c, Packet{ID: CmdTerminalOut, Type: PacketData})
	if resp.Type != PacketAck || string(resp.Data) != "hello" {
		t.Fatalf("resp = %+v, want Ack \"hello\"", resp)
	}

	resp2 := roundTrip(t, c, Packet{ID: CmdTerminalOut, Type: PacketData})
	if resp2.Type != PacketNak {
		t.Fatalf("second drain Type = %v, want PacketNak (buffer empty)", resp2.Type)
	}
}

func TestRxQueueFullReturnsError(t *testing.T) {
	c := New(1, DeviceInfo{}, Version{})
	if err := c.PushRx([]byte{0, 0, 0}); err != nil {
		t.Fatalf("first PushRx() error = %v", err)
	}
	if err := c.PushRx([]byte{0, 0, 0}); err == nil {
		t.Error("second PushRx() on full queue err = nil, want error")
	}
}

func TestUnknownCommandNaks(t *testing.T) {
	c := newTestInterface()
	resp := roundTrip(t, c, Packet{ID: CommandID(0xBEEF), Type: PacketData})
	if resp.Type != PacketNak {
		t.Fatalf("Type = %v, want PacketNak", resp.Type)
	}
}
