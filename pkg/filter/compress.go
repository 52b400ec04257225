/*
Copyright 2024 The pgblock Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package filter

import (
	"bytes"
	"io"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

// Compression names one of the repository's four supported codecs.
type Compression int

const (
	CompressionGZ Compression = iota
	CompressionZST
	CompressionLZ4
	CompressionBZ2
)

var compressionFilterType = map[Compression]stringid.ID{
	CompressionGZ:  stringid.MustNew("cmp-gzip"),
	CompressionZST: stringid.MustNew("cmp-zst"),
	CompressionLZ4: stringid.MustNew("cmp-lz4"),
	CompressionBZ2: stringid.MustNew("cmp-bz2"),
}

// codecPipe runs a stdlib-style io.Writer or io.Reader codec on a
// background goroutine connected to the filter's push-based
// ProcessInOut calls via an in-memory pipe, since none of the four
// compression libraries offer a push/pull streaming API that matches
// the group's buffer-with-used-region contract directly.
type codecPipe struct {
	pr     *io.PipeReader
	pw     *io.PipeWriter
	done   chan error
	closed bool
	outEOF bool
}

func newCodecPipe(run func(r io.Reader, w io.Writer) error, outSide io.Writer) *codecPipe {
	pr, pw := io.Pipe()
	p := &codecPipe{pr: pr, pw: pw, done: make(chan error, 1)}
	go func() {
		p.done <- run(pr, outSide)
	}()
	return p
}

// safeBuffer guards a bytes.Buffer written by the codec goroutine and
// drained by the caller's goroutine. io.Pipe.Write only blocks until
// the reader side's Read call returns the bytes to the codec — it
// gives no guarantee the codec has finished writing its output for
// those bytes into outSide before ProcessInOut reads it back out, so
// the buffer itself needs its own lock rather than relying on the
// pipe's handoff for ordering.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// drainInto moves everything currently buffered into output, bounded
// by output's remaining capacity.
func (b *safeBuffer) drainInto(output *Buffer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := output.Append(b.buf.Bytes())
	b.buf.Next(n)
}

// Compress applies one of the four supported codecs to a stream,
// unchanged on decompress-less round trip: ProcessInOut writes compressed
// (or decompressed) bytes to output as they become available.
type Compress struct {
	kind     Compression
	decode   bool
	level    int
	pipe     *codecPipe
	outBuf   *safeBuffer
	finished bool
}

// NewCompress returns a compressing filter for the given codec at the
// given level. Only gzip uses the level; zstd, lz4 and bz2 run at their
// library defaults.
func NewCompress(kind Compression, level int) *Compress {
	return &Compress{kind: kind, level: level}
}

// NewDecompress returns a decompressing filter for the given codec.
func NewDecompress(kind Compression) *Compress {
	return &Compress{kind: kind, decode: true}
}

func (c *Compress) FilterType() stringid.ID { return compressionFilterType[c.kind] }

func (c *Compress) ensurePipe() {
	if c.pipe != nil {
		return
	}
	c.outBuf = &safeBuffer{}
	if c.decode {
		c.pipe = newCodecPipe(c.runDecode, c.outBuf)
	} else {
		c.pipe = newCodecPipe(c.runEncode, c.outBuf)
	}
}

func (c *Compress) runEncode(r io.Reader, w io.Writer) error {
	switch c.kind {
	case CompressionGZ:
		gw, err := gzip.NewWriterLevel(w, levelOrDefault(c.level, gzip.DefaultCompression))
		if err != nil {
			return err
		}
		if _, err := io.Copy(gw, r); err != nil {
			return err
		}
		return gw.Close()
	case CompressionZST:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, r); err != nil {
			return err
		}
		return zw.Close()
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		if _, err := io.Copy(lw, r); err != nil {
			return err
		}
		return lw.Close()
	case CompressionBZ2:
		bw, err := bzip2.NewWriter(w, nil)
		if err != nil {
			return err
		}
		if _, err := io.Copy(bw, r); err != nil {
			return err
		}
		return bw.Close()
	default:
		return xerr.Newf(xerr.KindAssert, "unknown compression kind %d", c.kind)
	}
}

func (c *Compress) runDecode(r io.Reader, w io.Writer) error {
	switch c.kind {
	case CompressionGZ:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, gr)
		return err
	case CompressionZST:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		_, err = io.Copy(w, zr)
		return err
	case CompressionLZ4:
		_, err := io.Copy(w, lz4.NewReader(r))
		return err
	case CompressionBZ2:
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return err
		}
		defer br.Close()
		_, err = io.Copy(w, br)
		return err
	default:
		return xerr.Newf(xerr.KindAssert, "unknown compression kind %d", c.kind)
	}
}

func levelOrDefault(level, def int) int {
	if level == 0 {
		return def
	}
	return level
}

// ProcessInOut feeds input into the codec's writer side and drains
// whatever the codec has produced so far into output. input == nil
// closes the pipe's write side so the codec can flush its trailer.
func (c *Compress) ProcessInOut(input []byte, output *Buffer) error {
	c.ensurePipe()
	if input == nil {
		if !c.pipe.closed {
			c.pipe.closed = true
			c.pipe.pw.Close()
			if err := <-c.pipe.done; err != nil {
				return xerr.Wrap(xerr.KindFormat, err, "compression codec failed")
			}
			c.finished = true
		}
	} else if _, err := c.pipe.pw.Write(input); err != nil {
		return xerr.Wrap(xerr.KindFormat, err, "compression codec failed")
	}
	c.outBuf.drainInto(output)
	return nil
}

func (c *Compress) closedWrite() bool { return c.pipe.closed }

// Done reports whether the codec has flushed its final trailer and
// every produced byte has been claimed by a caller.
func (c *Compress) Done() bool { return c.finished && c.outBuf.Len() == 0 }

// InputSame reports whether undrained output bytes remain from the
// codec, in which case a caller must drain output and recall.
func (c *Compress) InputSame() bool { return c.outBuf != nil && c.outBuf.Len() > 0 && !c.finished }
