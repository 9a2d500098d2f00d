package protocol

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := AssignWork{
		JobID:           "job-1",
		StoredHash:      "$6$salt$hash",
		StartIndex:      1000,
		Count:           500,
		CheckpointEvery: 50,
	}
	line, err := Encode(KindAssignWork, want)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.HasSuffix(string(line), "\n") {
		t.Fatal("encoded line must end with a newline")
	}

	r := NewReader(strings.NewReader(string(line)))
	env, err := r.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	if env.Type != KindAssignWork {
		t.Fatalf("Type = %q, want %q", env.Type, KindAssignWork)
	}

	var got AssignWork
	if err := DecodeBody(env, &got); err != nil {
		t.Fatalf("DecodeBody failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

// TestWorkResultOmitsPasswordWhenNotFound covers the optional password
// field being absent on the wire when found is false.
func TestWorkResultOmitsPasswordWhenNotFound(t *testing.T) {
	result := WorkResult{JobID: "job-1", Found: false, Tried: 1000, DurationMs: 42}
	line, err := Encode(KindWorkResult, result)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Contains(string(line), "password") {
		t.Errorf("encoded line should omit password when absent: %s", line)
	}
}

func TestWorkResultIncludesPasswordWhenFound(t *testing.T) {
	pw := "Cc"
	result := WorkResult{JobID: "job-1", Found: true, Password: &pw, Tried: 501, DurationMs: 7}
	line, err := Encode(KindWorkResult, result)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(string(line), `"password":"Cc"`) {
		t.Errorf("encoded line should include password: %s", line)
	}
}

// TestReaderToleratesCarriageReturn covers \r before \n.
func TestReaderToleratesCarriageReturn(t *testing.T) {
	stop := Stop{Reason: "operator request"}
	line, err := Encode(KindStop, stop)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	withCR := strings.TrimSuffix(string(line), "\n") + "\r\n"

	r := NewReader(strings.NewReader(withCR))
	env, err := r.ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	var got Stop
	if err := DecodeBody(env, &got); err != nil {
		t.Fatalf("DecodeBody failed: %v", err)
	}
	if got != stop {
		t.Errorf("got %+v, want %+v", got, stop)
	}
}

// TestReaderDrainsMultipleBufferedLines covers reading several
// messages buffered from a single underlying read, in order.
func TestReaderDrainsMultipleBufferedLines(t *testing.T) {
	line1, _ := Encode(KindCheckpoint, Checkpoint{JobID: "j", Tried: 10, LastIndex: 9, Timestamp: time.Now()})
	line2, _ := Encode(KindCheckpoint, Checkpoint{JobID: "j", Tried: 20, LastIndex: 19, Timestamp: time.Now()})
	line3, _ := Encode(KindWorkResult, WorkResult{JobID: "j", Found: false, Tried: 20})

	combined := string(line1) + string(line2) + string(line3)
	r := NewReader(strings.NewReader(combined))

	var kinds []Kind
	for i := 0; i < 3; i++ {
		env, err := r.ReadEnvelope()
		if err != nil {
			t.Fatalf("ReadEnvelope %d failed: %v", i, err)
		}
		kinds = append(kinds, env.Type)
	}
	want := []Kind{KindCheckpoint, KindCheckpoint, KindWorkResult}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("message %d: kind = %q, want %q", i, kinds[i], k)
		}
	}
}

// TestMalformedLineIsReportedDistinctly covers malformed JSON being
// surfaced as a MalformedError rather than a generic decode failure,
// so callers can log and continue the session.
func TestMalformedLineIsReportedDistinctly(t *testing.T) {
	r := NewReader(strings.NewReader("not json at all\n"))
	_, err := r.ReadEnvelope()
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
	var me *MalformedError
	if !asMalformed(err, &me) {
		t.Fatalf("err = %v (%T), want *MalformedError", err, err)
	}
}

func asMalformed(err error, target **MalformedError) bool {
	me, ok := err.(*MalformedError)
	if !ok {
		return false
	}
	*target = me
	return true
}

func TestClientRegisterFieldNames(t *testing.T) {
	line, err := Encode(KindClientRegister, ClientRegister{
		NodeID: "node-1", ListenHost: "10.0.0.5", ListenPort: 9000, Threads: 8,
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, field := range []string{`"nodeId"`, `"listenHost"`, `"listenPort"`, `"threads"`} {
		if !strings.Contains(string(line), field) {
			t.Errorf("encoded line missing field %s: %s", field, line)
		}
	}
}
