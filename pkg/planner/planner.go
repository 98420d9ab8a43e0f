package planner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/lms/internal/checksum"
	"github.com/yuya-takeyama/lms/internal/pool"
	"github.com/yuya-takeyama/lms/internal/walker"
	"github.com/yuya-takeyama/lms/pkg/logger"
)

// Planner compares a source and a destination tree and decides what has to
// change.
type Planner struct {
	hasher  *checksum.Hasher
	workers int
	logger  logger.Logger
}

// NewPlanner creates a planner hashing files on fs. workers follows
// pool.New: 0 means one per CPU and 1 hashes sequentially. A nil hasher
// uses the fast algorithm.
func NewPlanner(fs afero.Fs, hasher *checksum.Hasher, workers int, l logger.Logger) *Planner {
	if hasher == nil {
		hasher = checksum.New(fs, checksum.AlgorithmCRC64NVME)
	}
	if l == nil {
		l = &logger.NullLogger{}
	}
	return &Planner{
		hasher:  hasher,
		workers: workers,
		logger:  l,
	}
}

// Plan diffs two walk results. dest may be nil when the destination does not
// exist yet, in which case everything is copied and nothing deleted.
func (p *Planner) Plan(ctx context.Context, source, dest *walker.Result, opts Options) ([]Operation, error) {
	destEntries := walker.Entries{}
	destRoot := ""
	if dest != nil {
		destEntries = dest.Entries
		destRoot = dest.Root
	}

	if opts.SourceIncomplete == nil {
		opts.SourceIncomplete = source.Incomplete
	}

	p.logger.PhaseStart("compare", len(source.Entries))
	phase1Result := Phase1Compare(source.Entries, destEntries, opts)
	p.logger.PhaseComplete("compare", len(source.Entries))

	checksums, err := p.Phase2CollectChecksums(ctx, phase1Result.NeedChecksum, source.Root, destRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to collect checksums: %w", err)
	}

	return Phase3GeneratePlan(phase1Result, checksums), nil
}

// Phase2CollectChecksums hashes both copies of every candidate. A pair that
// cannot be hashed is returned with Err set and will be copied; only a
// cancelled context fails the whole phase.
func (p *Planner) Phase2CollectChecksums(ctx context.Context, items []ItemRef, srcRoot, destRoot string) ([]ChecksumData, error) {
	if len(items) == 0 {
		return []ChecksumData{}, nil
	}

	p.logger.PhaseStart("checksum", len(items))
	p.logger.Debug(fmt.Sprintf("hashing %d pairs with %s", len(items), p.hasher.Algorithm()))

	checksums := make([]ChecksumData, len(items))
	workers := pool.New(p.workers)

	for i, item := range items {
		idx, itm := i, item
		workers.Submit(func() {
			checksums[idx] = p.collectChecksum(ctx, itm, srcRoot, destRoot)
		})
	}
	workers.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.PhaseComplete("checksum", len(items))
	return checksums, nil
}

func (p *Planner) collectChecksum(ctx context.Context, item ItemRef, srcRoot, destRoot string) ChecksumData {
	data := ChecksumData{ItemRef: item}

	if err := ctx.Err(); err != nil {
		data.Err = err
		return data
	}

	sourcePath := filepath.Join(srcRoot, filepath.FromSlash(item.Path))
	sourceChecksum, err := p.hasher.File(sourcePath)
	if err != nil {
		p.logger.Error("checksum", sourcePath, err)
		data.Err = fmt.Errorf("source: %w", err)
		return data
	}

	destPath := filepath.Join(destRoot, filepath.FromSlash(item.Path))
	destChecksum, err := p.hasher.File(destPath)
	if err != nil {
		p.logger.Error("checksum", destPath, err)
		data.Err = fmt.Errorf("destination: %w", err)
		return data
	}

	data.SourceChecksum = sourceChecksum
	data.DestChecksum = destChecksum
	return data
}
