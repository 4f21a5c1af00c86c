package locindex

import "github.com/azybler/map_locator/pkg/geo"

// tileItem is a pending tile in the best-first search.
type tileItem struct {
	tile uint32
	box  geo.BBox
	dist float64 // lower bound in meters for any edge inside the tile
}

// tileHeap is a concrete-typed min-heap on tileItem.dist.
// Avoids interface boxing overhead of container/heap.
type tileHeap struct {
	items []tileItem
}

func (h *tileHeap) Len() int { return len(h.items) }

func (h *tileHeap) Push(it tileItem) {
	h.items = append(h.items, it)
	h.siftUp(len(h.items) - 1)
}

func (h *tileHeap) Pop() tileItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *tileHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].dist >= h.items[parent].dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *tileHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left].dist < h.items[smallest].dist {
			smallest = left
		}
		if right < n && h.items[right].dist < h.items[smallest].dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
