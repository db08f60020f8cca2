package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

// analyzeLarge streams path through the analyzer one chunk at a time.
// Findings from later chunks have their line numbers shifted by the
// newlines seen in earlier chunks. A match that spans a chunk boundary
// is not detected. Any chunk error fails the whole file.
func (b *batch) analyzeLarge(ctx context.Context, path string) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		b.fail(ctx, "large", errCancelled(path, err))
		return
	}

	f, err := os.Open(path) // #nosec G304 -- analyzing caller-supplied paths
	if err != nil {
		b.fail(ctx, "large", errFileAccess(path, err))
		return
	}
	defer func() { _ = f.Close() }()

	chunkSize := b.engine.StreamingChunkSize()
	buf := b.engine.pools.Content.GetForSize(int64(chunkSize))
	defer b.engine.pools.Content.Put(buf)
	buf = buf[:chunkSize]

	var (
		findings   []finding.Finding
		lineOffset uint32
		total      int64
	)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			b.fail(ctx, "large", errCancelled(path, err).WithContext("chunk", idx))
			return
		}
		if b.limiter != nil {
			if err := b.limiter.wait(ctx, int64(chunkSize)); err != nil {
				b.fail(ctx, "large", NewFileError(CodeRateLimited, path, "read", "rate limit wait failed", err).
					WithContext("chunk", idx))
				return
			}
		}

		n, rerr := io.ReadFull(f, buf)
		if rerr != nil && !errors.Is(rerr, io.ErrUnexpectedEOF) && !errors.Is(rerr, io.EOF) {
			b.fail(ctx, "large", errFileRead(path, rerr).WithContext("chunk", idx))
			return
		}
		if n == 0 {
			break
		}
		chunk := buf[:n]
		total += int64(n)

		got, ferr := b.invoke(ctx, path, chunk)
		if ferr != nil {
			b.fail(ctx, "large", ferr.WithContext("chunk", idx))
			return
		}
		for _, fd := range got {
			findings = append(findings, fd.ShiftLine(lineOffset))
		}
		lineOffset += uint32(bytes.Count(chunk, []byte{'\n'})) // #nosec G115 -- chunk is far below 4G lines

		if n < chunkSize {
			break
		}
		runtime.Gosched()
	}

	b.succeed(ctx, "large", findings, total, time.Since(start))
}
