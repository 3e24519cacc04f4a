// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"fmt"
	"os"
	gosort "sort"
	"sync"
)

// partitionBySize splits an index's blocks into at most nWorkers
// contiguous runs, each holding roughly total-bytes/nWorkers of data,
// by walking the blocks in file order and closing a partition once
// its accumulated byte span reaches the target -- the greedy
// left-to-right accumulation strategy grounded on the original
// implementation's output_sorter.cpp.
func partitionBySize(idx *Index, nWorkers int) [][]int {
	if nWorkers < 1 {
		nWorkers = 1
	}
	n := idx.Size()
	if n == 0 {
		return nil
	}
	total := idx.TotalBytes()
	target := total / uint64(nWorkers)
	if target == 0 {
		target = 1
	}

	var partitions [][]int
	var cur []int
	var curBytes uint64
	for i := 0; i < n; i++ {
		e := idx.At(i)
		cur = append(cur, i)
		curBytes += e.ByteOffsetEnd - e.ByteOffset
		if curBytes >= target && len(partitions) < nWorkers-1 {
			partitions = append(partitions, cur)
			cur, curBytes = nil, 0
		}
	}
	if len(cur) > 0 {
		partitions = append(partitions, cur)
	}
	return partitions
}

// partitionedOutput is the sort phase's single output file, appended
// to concurrently by every worker goroutine under one mutex (spec
// §4.7/§5: "a single mutex-guarded append").
type partitionedOutput struct {
	mu     sync.Mutex
	f      *os.File
	offset int64
	index  Index
}

func newPartitionedOutput(path string) (*partitionedOutput, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	if _, err := f.Write(FileMagic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrIO, err)
	}
	return &partitionedOutput{f: f, offset: int64(len(FileMagic))}, nil
}

// appendRecords deflates records (splitting into ldRecordsPerBlock-
// sized blocks as needed) and appends them, recording one Totempole
// entry per block.
func (o *partitionedOutput) appendRecords(records []LDRecord) error {
	for len(records) > 0 {
		n := ldRecordsPerBlock
		if n > len(records) {
			n = len(records)
		}
		chunk := records[:n]
		records = records[n:]

		raw := make([]byte, 0, n*ldRecordSize)
		minPos, maxPos := chunk[0].PosA, chunk[0].PosA
		for _, r := range chunk {
			b := r.Marshal()
			raw = append(raw, b[:]...)
			if r.PosA < minPos {
				minPos = r.PosA
			}
			if r.PosA > maxPos {
				maxPos = r.PosA
			}
		}
		block, err := Deflate(raw)
		if err != nil {
			return err
		}

		o.mu.Lock()
		start := o.offset
		_, werr := o.f.Write(block.Bytes())
		o.offset += int64(block.Len())
		if werr == nil {
			o.index.Append(TotempoleEntry{
				ContigID:         chunk[0].ContigA,
				MinPosition:      minPos,
				MaxPosition:      maxPos,
				ByteOffset:       uint64(start),
				ByteOffsetEnd:    uint64(o.offset),
				UncompressedSize: uint32(len(raw)),
				NVariants:        uint32(n),
			})
		}
		o.mu.Unlock()
		if werr != nil {
			return fmt.Errorf("%w: %s", ErrIO, werr)
		}
	}
	return nil
}

// close finalizes the output, marking the index as partially sorted
// (after phase 1) or fully sorted (after phase 2's merge).
func (o *partitionedOutput) close(fullySorted bool) error {
	if fullySorted {
		o.index.sorted = true
	} else {
		o.index.partialSorted = true
	}
	indexOffset := o.offset
	idxBlock, err := Deflate(marshalIndex(&o.index))
	if err != nil {
		o.f.Close()
		return err
	}
	if _, err := o.f.Write(idxBlock.Bytes()); err != nil {
		o.f.Close()
		return fmt.Errorf("%w: %s", ErrIO, err)
	}
	o.offset += int64(idxBlock.Len())
	if _, err := o.f.Write(EOFBlock()); err != nil {
		o.f.Close()
		return fmt.Errorf("%w: %s", ErrIO, err)
	}
	o.offset += int64(len(EOFBlock()))
	if err := writeFooter(o.f, uint64(indexOffset), uint64(indexOffset)); err != nil {
		o.f.Close()
		return err
	}
	return o.f.Close()
}

// SortPartitioned runs the sort phase's first pass (spec §4.7): it
// refuses an already (partially) sorted input, partitions the
// unsorted LD-output file into maxWorkers contiguous byte ranges,
// sorts each range's records in memory under the records' total
// order, and writes the result to outputPath with partialSorted set.
// A second k-way merge pass (MergeSorted, in merge.go) is required
// before the result is fully sorted.
func SortPartitioned(inputPath, outputPath string, maxWorkers int) error {
	lf, err := OpenLDFile(inputPath)
	if err != nil {
		return err
	}
	if lf.Index.IsSorted() || lf.Index.IsPartialSorted() {
		return fmt.Errorf("%w: input is already sorted or partially sorted", ErrState)
	}

	partitions := partitionBySize(lf.Index, maxWorkers)
	if len(partitions) == 0 {
		out, err := newPartitionedOutput(outputPath)
		if err != nil {
			return err
		}
		return out.close(false)
	}

	out, err := newPartitionedOutput(outputPath)
	if err != nil {
		return err
	}

	runErr := runPartitioned(len(partitions), maxWorkers, func(i int) error {
		h, err := lf.OpenReadHandle()
		if err != nil {
			return err
		}
		defer h.Close()

		var records []LDRecord
		for _, blockID := range partitions[i] {
			recs, err := ReadBlockRecords(h, lf.Index.At(blockID))
			if err != nil {
				return err
			}
			records = append(records, recs...)
		}
		gosort.Slice(records, func(a, b int) bool {
			return CompareLDRecords(records[a], records[b]) < 0
		})
		return out.appendRecords(records)
	})
	if runErr != nil {
		out.f.Close()
		return runErr
	}
	return out.close(false)
}
