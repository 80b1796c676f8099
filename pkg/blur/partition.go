package blur

import "fmt"

// Band is a contiguous range of rows, both ends inclusive, owned by one worker.
type Band struct {
	StartRow    int
	EndRow      int
	TotalHeight int
	TotalWidth  int
}

// Rows returns the number of rows in the band.
func (b Band) Rows() int {
	return b.EndRow - b.StartRow + 1
}

func (b Band) String() string {
	return fmt.Sprintf("rows %d-%d", b.StartRow, b.EndRow)
}

// Partition splits height rows into threadCount contiguous bands. A thread
// count above height is clamped to height so that no band is empty. The first
// height%threadCount bands carry one extra row.
func Partition(width, height, threadCount int) ([]Band, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("%w: cannot partition %dx%d image", ErrInvalidArgument, width, height)
	}
	if threadCount < 1 {
		return nil, fmt.Errorf("%w: thread count %d must be positive", ErrInvalidArgument, threadCount)
	}
	threadCount = min(threadCount, height)

	rowsPerBand := height / threadCount
	extraRows := height % threadCount

	bands := make([]Band, threadCount)
	currentRow := 0
	for i := range bands {
		rows := rowsPerBand
		if i < extraRows {
			rows++
		}
		bands[i] = Band{
			StartRow:    currentRow,
			EndRow:      currentRow + rows - 1,
			TotalHeight: height,
			TotalWidth:  width,
		}
		currentRow += rows
	}
	return bands, nil
}

// checkBands verifies that bands tile [0, height-1] in order with no gap or
// overlap. Overlapping bands would let two workers write the same rows.
func checkBands(bands []Band, width, height int) error {
	next := 0
	for _, band := range bands {
		if band.StartRow != next || band.EndRow < band.StartRow {
			return fmt.Errorf("band %s does not start at row %d", band, next)
		}
		if band.TotalHeight != height || band.TotalWidth != width {
			return fmt.Errorf("band %s sized for %dx%d, image is %dx%d",
				band, band.TotalWidth, band.TotalHeight, width, height)
		}
		next = band.EndRow + 1
	}
	if next != height {
		return fmt.Errorf("bands cover %d of %d rows", next, height)
	}
	return nil
}
