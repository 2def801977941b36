package ebook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// TempNamer generates collision-free temporary file names.
// Names combine the process id, a timestamp and a monotonic counter,
// so concurrent callers sharing one namer never collide.
type TempNamer struct {
	Dir string
	PID int
	Now func() time.Time

	counter atomic.Uint64
}

// NewTempNamer returns a namer rooted at dir using the current process id.
func NewTempNamer(dir string) *TempNamer {
	return &TempNamer{Dir: dir, PID: os.Getpid(), Now: time.Now}
}

// DefaultTempNamer is the process-scoped namer used by the package helpers.
var DefaultTempNamer = NewTempNamer(os.TempDir())

// Next returns a fresh path for prefix.
func (n *TempNamer) Next(prefix string) string {
	seq := n.counter.Add(1)
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	name := fmt.Sprintf("%s_%d_%d_%d.tmp", prefix, n.PID, now().UnixNano(), seq)
	return filepath.Join(n.Dir, name)
}

// Streamer adapts file-based handlers to arbitrary readers and writers
// by staging the bytes in a temporary file.
type Streamer struct {
	Temp *TempNamer
}

// DefaultStreamer stages files through DefaultTempNamer.
var DefaultStreamer = Streamer{Temp: DefaultTempNamer}

func (s Streamer) namer() *TempNamer {
	if s.Temp == nil {
		return DefaultTempNamer
	}
	return s.Temp
}

// ReadFrom buffers r into a temporary file and reads it with h.
// The file keeps ext so that extension-sensitive handlers see the right name.
func (s Streamer) ReadFrom(h Reader, r io.Reader, ext string) error {
	path := s.namer().Next("ebook_read") + ext
	f, err := os.Create(path)
	if err != nil {
		return Wrap(KindIO, err, "create temporary file")
	}
	defer os.Remove(path)

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return Wrap(KindIO, err, "buffer input")
	}
	if err := f.Close(); err != nil {
		return Wrap(KindIO, err, "close temporary file")
	}
	return h.ReadFile(path)
}

// WriteTo serializes h into a temporary file and copies it to w.
func (s Streamer) WriteTo(h Writer, w io.Writer, ext string) (int64, error) {
	path := s.namer().Next("ebook_write") + ext
	defer os.Remove(path)

	if err := h.WriteFile(path); err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, Wrap(KindIO, err, "open temporary file")
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, Wrap(KindIO, err, "copy output")
	}
	return n, nil
}

// ReadFrom reads h from r using DefaultStreamer.
func ReadFrom(h Reader, r io.Reader, ext string) error {
	return DefaultStreamer.ReadFrom(h, r, ext)
}

// WriteTo writes h to w using DefaultStreamer.
func WriteTo(h Writer, w io.Writer, ext string) (int64, error) {
	return DefaultStreamer.WriteTo(h, w, ext)
}
