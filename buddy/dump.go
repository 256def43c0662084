package buddy

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/buddyheap/memutils"
)

func formatAddress(address uintptr) string {
	return fmt.Sprintf("%#x", address)
}

// Dump writes one line per block to w, in address order, followed by a blank line
func (a *Allocator) Dump(w io.Writer) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.dump(w)
}

func (a *Allocator) dump(w io.Writer) error {
	err := a.visitAllRegions(func(offset int, size int, _ any, free bool) error {
		status := statusAllocated
		link := 0
		if free {
			status = statusFree
			if a.memory != nil {
				link = a.readHeader(offset).link
			}
		}

		_, err := fmt.Fprintf(w, "Block size: %d, offset %d, link %d, %s\n", size, offset, link, status)
		return err
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w)
	return errors.Wrap(err, "failed to write block map")
}

// PrintDetailedMap writes a JSON object describing the arena and every block in it to writer
func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	objState := writer.Object()
	defer objState.End()

	a.blockJsonData(&objState)
	a.printDetailedMapBlocks(&objState)
}

func (a *Allocator) blockJsonData(json *jwriter.ObjectState) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	_ = a.visitAllRegions(func(offset int, size int, _ any, free bool) error {
		if free {
			stats.AddFreeBlock(size)
			return nil
		}

		record, _ := a.records.Get(offset)
		stats.AddAllocation(size, record.requested)
		return nil
	})

	json.Name("TotalBytes").Int(a.heapSize)
	json.Name("MinBlockSize").Int(a.minBlockSize)
	json.Name("Acquired").Bool(a.memory != nil)
	json.Name("UnusedBytes").Int(a.sumFreeSize())
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("RequestedBytes").Int(stats.RequestedBytes)
	json.Name("UnusedRanges").Int(stats.FreeBlockCount)
}

func (a *Allocator) printDetailedMapBlocks(json *jwriter.ObjectState) {
	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	_ = a.visitAllRegions(func(offset int, size int, userData any, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String(statusFree.String())
			return nil
		}

		record, _ := a.records.Get(offset)
		obj.Name("Type").String(statusAllocated.String())
		obj.Name("RequestedSize").Int(record.requested)
		if userData != nil {
			obj.Name("CustomData").String(fmt.Sprintf("%+v", userData))
		}
		return nil
	})
}

// BuildStatsString returns a JSON summary of the arena. When detailedMap is true, every block
// is listed as well.
func (a *Allocator) BuildStatsString(detailedMap bool) string {
	writer := jwriter.NewWriter()

	if detailedMap {
		a.PrintDetailedMap(&writer)
		return string(writer.Bytes())
	}

	a.mutex.RLock()
	defer a.mutex.RUnlock()

	objState := writer.Object()
	a.blockJsonData(&objState)
	objState.End()

	return string(writer.Bytes())
}
