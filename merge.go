// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package twk

import (
	"container/heap"
	"fmt"
)

// mergeStream is one block's records, consumed in order; every block
// in a partially-sorted file is, by construction (sort.go writes each
// block from one contiguous slice of an already-sorted run), itself a
// sorted run -- so the merge treats one stream per Totempole entry
// rather than one per sort-phase worker.
type mergeStream struct {
	records []LDRecord
	pos     int
}

func (s *mergeStream) next() (LDRecord, bool) {
	if s.pos >= len(s.records) {
		return LDRecord{}, false
	}
	r := s.records[s.pos]
	s.pos++
	return r, true
}

type heapItem struct {
	rec    LDRecord
	stream int
}

// recordHeap is a min-heap over heapItem ordered by the records' total
// order, tie-broken by stream id so the merge is deterministic across
// runs (spec §4.7).
type recordHeap []heapItem

func (h recordHeap) Len() int { return len(h) }
func (h recordHeap) Less(i, j int) bool {
	if c := CompareLDRecords(h[i].rec, h[j].rec); c != 0 {
		return c < 0
	}
	return h[i].stream < h[j].stream
}
func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *recordHeap) Push(x any)   { *h = append(*h, x.(heapItem)) }
func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MergeSorted runs the sort phase's second pass (spec §4.7): it
// requires a partially-sorted input (phase 1's output), opens one
// in-memory stream per block, and performs a k-way merge keyed by the
// records' total order, writing a single fully-sorted result. When a
// stream's current record survives as the heap root, its replacement
// is installed in place and the heap repaired with a single Fix
// rather than a Pop followed by a Push, saving one of the two
// O(log k) rebalances per record.
func MergeSorted(inputPath, outputPath string) error {
	lf, err := OpenLDFile(inputPath)
	if err != nil {
		return err
	}
	if !lf.Index.IsPartialSorted() {
		return fmt.Errorf("%w: input is not partially sorted; run SortPartitioned first", ErrState)
	}

	h, err := lf.OpenReadHandle()
	if err != nil {
		return err
	}
	defer h.Close()

	streams := make([]*mergeStream, lf.Index.Size())
	for i := 0; i < lf.Index.Size(); i++ {
		records, err := ReadBlockRecords(h, lf.Index.At(i))
		if err != nil {
			return err
		}
		streams[i] = &mergeStream{records: records}
	}

	out, err := newPartitionedOutput(outputPath)
	if err != nil {
		return err
	}

	rh := &recordHeap{}
	heap.Init(rh)
	for i, s := range streams {
		if r, ok := s.next(); ok {
			heap.Push(rh, heapItem{rec: r, stream: i})
		}
	}

	var pending []LDRecord
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := out.appendRecords(pending)
		pending = pending[:0]
		return err
	}

	for rh.Len() > 0 {
		top := (*rh)[0]
		pending = append(pending, top.rec)
		if len(pending) >= ldRecordsPerBlock {
			if err := flush(); err != nil {
				out.f.Close()
				return err
			}
		}

		if r, ok := streams[top.stream].next(); ok {
			(*rh)[0] = heapItem{rec: r, stream: top.stream}
			heap.Fix(rh, 0)
		} else {
			heap.Pop(rh)
		}
	}
	if err := flush(); err != nil {
		out.f.Close()
		return err
	}

	return out.close(true)
}
