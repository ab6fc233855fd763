package growth

type chainItem struct {
	cell  Cell
	depth int
}

// Chain grows a decorator outward from start with an explicit stack.
// grow places at cell and returns the cells to continue from; nothing at
// depth maxDepth or deeper is visited. Returns the number of grow calls.
func Chain(start Cell, maxDepth int, grow func(cell Cell, depth int) []Cell) int {
	if maxDepth <= 0 {
		return 0
	}
	visited := 0
	stack := []chainItem{{cell: start}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.depth >= maxDepth {
			continue
		}
		visited++
		for _, next := range grow(it.cell, it.depth) {
			stack = append(stack, chainItem{cell: next, depth: it.depth + 1})
		}
	}
	return visited
}
