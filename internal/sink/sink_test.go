package sink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/framerec/internal/ffmpeg"
	"github.com/smazurov/framerec/internal/pipeline"
)

// fakeFFmpeg writes a script that copies stdin to its last argument and,
// when FAKE_FFMPEG_ARGS is set, records its argv there.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if body == "" {
		body = `for last; do :; done
[ -n "$FAKE_FFMPEG_ARGS" ] && printf '%s\n' "$@" > "$FAKE_FFMPEG_ARGS"
cat > "$last"`
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func videoPool(t *testing.T, size int) *pipeline.Pool {
	t.Helper()
	pool, err := pipeline.NewPool(size, pipeline.VideoShape(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	return pool
}

// frame fills a 2x2 I420 buffer (6 bytes) with b.
func frame(t *testing.T, pool *pipeline.Pool, b byte) *pipeline.Buffer {
	t.Helper()
	buf, ok := pool.Acquire()
	if !ok {
		t.Fatal("pool empty")
	}
	for i := range buf.Data {
		buf.Data[i] = b
	}
	return buf
}

func newTestSink(t *testing.T, binary string, out string) *FFmpegSink {
	t.Helper()
	params := ffmpeg.DefaultEncodeParams(2, 2, 30, out)
	params.Binary = binary
	s, err := NewFFmpegSink(FFmpegConfig{Params: params, FlushTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewFFmpegSink: %v", err)
	}
	return s
}

func TestFFmpegSinkFillsGapsWithPreviousFrame(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.avi")
	s := newTestSink(t, fakeFFmpeg(t, ""), out)
	pool := videoPool(t, 3)

	for _, tc := range []struct {
		stamp int64
		fill  byte
	}{{0, 'a'}, {1, 'b'}, {4, 'e'}} {
		buf := frame(t, pool, tc.fill)
		if err := s.Submit(buf, tc.stamp); err != nil {
			t.Fatalf("Submit(%d): %v", tc.stamp, err)
		}
		_ = pool.Release(buf)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Errorf("second Flush: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Repeat("a", 6) + strings.Repeat("b", 18) + strings.Repeat("e", 6)
	if string(got) != want {
		t.Errorf("encoded input = %q, want %q", got, want)
	}
	if s.Written() != 5 || s.Duplicated() != 2 {
		t.Errorf("written/duplicated = %d/%d, want 5/2", s.Written(), s.Duplicated())
	}
}

func TestFFmpegSinkLeadingGapRepeatsFirstFrame(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.avi")
	s := newTestSink(t, fakeFFmpeg(t, ""), out)
	pool := videoPool(t, 1)

	if err := s.Submit(frame(t, pool, 'x'), 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(out)
	if !bytes.Equal(got, bytes.Repeat([]byte("x"), 18)) {
		t.Errorf("encoded input = %q", got)
	}
}

func TestFFmpegSinkRejectsBadInput(t *testing.T) {
	s := newTestSink(t, fakeFFmpeg(t, ""), filepath.Join(t.TempDir(), "out.avi"))
	defer s.Flush()
	pool := videoPool(t, 2)

	if err := s.Submit(frame(t, pool, 'a'), 5); err != nil {
		t.Fatal(err)
	}
	if err := s.Submit(frame(t, pool, 'b'), 5); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("repeated stamp err = %v, want ErrOutOfOrder", err)
	}

	big, err := pipeline.NewPool(1, pipeline.VideoShape(4, 4))
	if err != nil {
		t.Fatal(err)
	}
	wrong, _ := big.Acquire()
	if err := s.Submit(wrong, 6); err == nil {
		t.Error("expected error for wrong frame size")
	}
}

func TestFFmpegSinkFlushReportsEncoderFailure(t *testing.T) {
	bin := fakeFFmpeg(t, `cat > /dev/null
echo "[error] Invalid argument" >&2
exit 1`)
	s := newTestSink(t, bin, filepath.Join(t.TempDir(), "out.avi"))

	err := s.Flush()
	if err == nil {
		t.Fatal("expected flush error")
	}
	if !strings.Contains(err.Error(), "code 1") || !strings.Contains(err.Error(), "Invalid argument") {
		t.Errorf("error = %v", err)
	}
}

func TestFFmpegSinkProgressSocket(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Unix socket path too long on macOS")
	}
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	t.Setenv("FAKE_FFMPEG_ARGS", argsFile)

	params := ffmpeg.DefaultEncodeParams(2, 2, 30, filepath.Join(dir, "out.avi"))
	params.Binary = fakeFFmpeg(t, "")
	socket := filepath.Join(dir, "p.sock")
	s, err := NewFFmpegSink(FFmpegConfig{Params: params, ProgressSocket: socket, Session: "progress-test"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(args), "-progress\nunix://"+socket+"\n") {
		t.Errorf("args missing progress url:\n%s", args)
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Error("progress socket should be removed after flush")
	}
}

func TestFFmpegSinkClose(t *testing.T) {
	s := newTestSink(t, fakeFFmpeg(t, "exec sleep 5"), filepath.Join(t.TempDir(), "out.avi"))
	_ = s.Close()
	if err := s.Flush(); err == nil {
		t.Error("Flush after Close should report the unflushed close")
	}
}

func TestNewFFmpegSinkErrors(t *testing.T) {
	params := ffmpeg.DefaultEncodeParams(3, 2, 30, "out.avi")
	if _, err := NewFFmpegSink(FFmpegConfig{Params: params}); err == nil {
		t.Error("expected validation error for odd width")
	}

	params = ffmpeg.DefaultEncodeParams(2, 2, 30, filepath.Join(t.TempDir(), "out.avi"))
	params.Binary = "/nonexistent/ffmpeg"
	if _, err := NewFFmpegSink(FFmpegConfig{Params: params}); err == nil {
		t.Error("expected start error for missing binary")
	}
}

func audioPool(t *testing.T) *pipeline.Pool {
	t.Helper()
	pool, err := pipeline.NewPool(2, pipeline.AudioShape(8000, 2, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	return pool
}

func TestWAVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.wav")
	shape := pipeline.AudioShape(8000, 2, 2, 2)
	s, err := NewWAVSink(path, shape)
	if err != nil {
		t.Fatal(err)
	}
	pool := audioPool(t)

	for _, stamp := range []int64{1, 3} {
		buf, _ := pool.Acquire()
		for i := range buf.Data {
			buf.Data[i] = byte(stamp)
		}
		if err := s.Submit(buf, stamp); err != nil {
			t.Fatalf("Submit(%d): %v", stamp, err)
		}
		_ = pool.Release(buf)
	}
	if s.DataBytes() != 32 {
		t.Errorf("DataBytes = %d, want 32", s.DataBytes())
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Errorf("second Flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != wavHeaderSize+32 {
		t.Fatalf("file is %d bytes, want %d", len(data), wavHeaderSize+32)
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"RIFF", string(data[0:4]), "RIFF"},
		{"chunk size", le.Uint32(data[4:]), uint32(36 + 32)},
		{"WAVE", string(data[8:12]), "WAVE"},
		{"fmt", string(data[12:16]), "fmt "},
		{"format", le.Uint16(data[20:]), uint16(1)},
		{"channels", le.Uint16(data[22:]), uint16(2)},
		{"rate", le.Uint32(data[24:]), uint32(8000)},
		{"byte rate", le.Uint32(data[28:]), uint32(32000)},
		{"block align", le.Uint16(data[32:]), uint16(4)},
		{"bits", le.Uint16(data[34:]), uint16(16)},
		{"data", string(data[36:40]), "data"},
		{"data size", le.Uint32(data[40:]), uint32(32)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	pcm := data[wavHeaderSize:]
	want := append(append(append(make([]byte, 8), bytes.Repeat([]byte{1}, 8)...), make([]byte, 8)...), bytes.Repeat([]byte{3}, 8)...)
	if !bytes.Equal(pcm, want) {
		t.Errorf("pcm = %v, want %v", pcm, want)
	}

	buf, _ := pool.Acquire()
	if err := s.Submit(buf, 10); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Submit after Flush err = %v", err)
	}
}

func TestWAVSinkRejects(t *testing.T) {
	if _, err := NewWAVSink(filepath.Join(t.TempDir(), "x.wav"), pipeline.VideoShape(2, 2)); err == nil {
		t.Error("expected error for video shape")
	}
	if _, err := NewWAVSink(filepath.Join(t.TempDir(), "missing", "x.wav"), pipeline.AudioShape(8000, 1, 2, 1)); err == nil {
		t.Error("expected error for missing directory")
	}

	s, err := NewWAVSink(filepath.Join(t.TempDir(), "x.wav"), pipeline.AudioShape(8000, 2, 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Flush()
	pool := audioPool(t)
	buf, _ := pool.Acquire()
	if err := s.Submit(buf, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Submit(buf, 1); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("err = %v, want ErrOutOfOrder", err)
	}
}

func TestOutputNaming(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.Local)
	if got := OutputName(VideoPrefix, "avi", now); got != "dxgi_output_20260102_150405.avi" {
		t.Errorf("OutputName = %q", got)
	}
	path := OutputPath(filepath.Join("srv", "rec"), AudioPrefix, "wav", now)
	if path != filepath.Join("srv", "rec", "recording_20260102_150405.wav") {
		t.Errorf("OutputPath = %q", path)
	}
	if got := SessionName(path); got != "recording_20260102_150405" {
		t.Errorf("SessionName = %q", got)
	}
}
