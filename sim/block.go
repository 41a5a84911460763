package sim

// Block is one CTA of the grid. Blocks are created when the grid is
// enumerated, admitted to exactly one SM, and destroyed when retired.
type Block struct {
	// ID is the row-major enumeration index over (bz, by, bx).
	ID int
	// Coord is the block's grid coordinate (bx, by, bz).
	Coord Dim3
	// SM is the resident SM index, or -1 before admission.
	SM int
	// Done is set when every warp of the block has retired.
	Done bool
}

// enumerateGrid lists the grid's blocks in row-major order over (bz, by, bx),
// which is also the strict admission order of the block scheduler.
func enumerateGrid(grid Dim3) []*Block {
	blocks := make([]*Block, 0, grid.Size())
	id := 0
	for bz := 0; bz < grid.Z; bz++ {
		for by := 0; by < grid.Y; by++ {
			for bx := 0; bx < grid.X; bx++ {
				blocks = append(blocks, &Block{
					ID:    id,
					Coord: Dim3{X: bx, Y: by, Z: bz},
					SM:    -1,
				})
				id++
			}
		}
	}
	return blocks
}
