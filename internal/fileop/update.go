package fileop

import (
	"context"
	"fmt"
	"foldersync/internal/delta"
	"foldersync/internal/logger"
	"foldersync/internal/util"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// update tracks the temporary files of one delta update so they can be
// removed whatever the outcome.
type update struct {
	d     *Dispatcher
	src   string
	dst   string
	temps []string
}

func (u *update) tempFile(pattern string) (*os.File, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	u.temps = append(u.temps, f.Name())
	return f, nil
}

func (u *update) cleanup() {
	for _, p := range u.temps {
		if err := util.RemoveIfExists(p); err != nil {
			logger.Log.Warn("failed to remove temp file",
				zap.String("path", p),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) updateFile(ctx context.Context, src, dst string) (err error) {
	start := time.Now()

	info, err := statSource(src)
	if err != nil {
		return err
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		return copySymlink(src, dst)
	}

	// the delta is only applied onto a regular file; a link or anything else
	// in the replica is replaced, never written through
	if existing, err := os.Lstat(dst); err == nil && !existing.Mode().IsRegular() {
		logger.Log.Info("replica is not a regular file, recreating",
			zap.String("dst", dst),
			zap.String("mode", existing.Mode().String()))
		return d.createFile(ctx, src, dst)
	}

	u := &update{d: d, src: src, dst: dst}
	defer u.cleanup()

	defer func() {
		if err == nil {
			return
		}
		logger.Log.Error("delta update failed",
			zap.String("src", src),
			zap.String("dst", dst),
			zap.Error(err))
		if d.opts.Diagnose != nil && ctx.Err() == nil {
			d.opts.Diagnose(ctx, dst)
		}
	}()

	sigPath, err := u.buildSignature(ctx)
	if err != nil {
		return &PhaseError{Phase: PhaseSignature, Path: dst, Err: err}
	}

	deltaPath, stats, err := u.buildDelta(ctx, sigPath)
	if err != nil {
		return &PhaseError{Phase: PhaseDelta, Path: dst, Err: err}
	}

	patchedPath, err := u.applyDelta(ctx, deltaPath)
	if err != nil {
		return &PhaseError{Phase: PhaseApply, Path: dst, Err: err}
	}

	if err := u.commit(ctx, patchedPath); err != nil {
		return &PhaseError{Phase: PhaseCommit, Path: dst, Err: err}
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return &PhaseError{Phase: PhaseCommit, Path: dst, Err: fmt.Errorf("failed to set modification time: %w", err)}
	}

	elapsed := time.Since(start)
	logger.Log.Info("file updated",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("size", humanize.Bytes(uint64(stats.Size))),
		zap.String("reused", humanize.Bytes(uint64(stats.Copied))),
		zap.String("transferred", humanize.Bytes(uint64(stats.Inserted))),
		zap.String("throughput", throughput(stats.Size, elapsed)),
		zap.Duration("elapsed", elapsed))

	return nil
}

func (u *update) buildSignature(ctx context.Context) (string, error) {
	basis, err := util.OpenExclusive(u.dst, os.O_RDONLY, 0)
	if err != nil {
		return "", fmt.Errorf("failed to open replica: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(basis)

	out, err := u.tempFile("foldersync-*.sig")
	if err != nil {
		return "", err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(out)

	if _, err := delta.WriteSignature(ctx, basis, out, u.d.opts.Params); err != nil {
		return "", err
	}

	return out.Name(), out.Sync()
}

func (u *update) buildDelta(ctx context.Context, sigPath string) (string, delta.Stats, error) {
	sigFile, err := os.Open(sigPath)
	if err != nil {
		return "", delta.Stats{}, fmt.Errorf("failed to open signature: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(sigFile)

	sig, err := delta.ReadSignature(sigFile)
	if err != nil {
		return "", delta.Stats{}, err
	}

	in, err := os.Open(u.src)
	if err != nil {
		return "", delta.Stats{}, fmt.Errorf("failed to open src: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(in)

	out, err := u.tempFile("foldersync-*.delta")
	if err != nil {
		return "", delta.Stats{}, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(out)

	stats, err := delta.WriteDelta(ctx, in, sig, out)
	if err != nil {
		return "", delta.Stats{}, err
	}

	return out.Name(), stats, nil
}

func (u *update) applyDelta(ctx context.Context, deltaPath string) (string, error) {
	basis, err := util.OpenExclusive(u.dst, os.O_RDONLY, 0)
	if err != nil {
		return "", fmt.Errorf("failed to open replica: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(basis)

	deltaFile, err := os.Open(deltaPath)
	if err != nil {
		return "", fmt.Errorf("failed to open delta: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(deltaFile)

	out, err := u.tempFile("foldersync-*.patched")
	if err != nil {
		return "", err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(out)

	if _, err := delta.Apply(ctx, basis, deltaFile, out, u.d.opts.VerifyPatched); err != nil {
		return "", err
	}

	return out.Name(), out.Sync()
}

// commit is the only step that writes to the replica itself.
func (u *update) commit(ctx context.Context, patchedPath string) error {
	patched, err := os.Open(patchedPath)
	if err != nil {
		return fmt.Errorf("failed to open patched file: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(patched)

	_, err = writeExclusive(ctx, u.dst, patched)
	return err
}
