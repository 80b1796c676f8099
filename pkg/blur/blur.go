package blur

// blurBand writes the box-blurred rows of band into dst. src is the whole
// source image and is only read. dst holds exactly the band's rows, so its
// row 0 is image row band.StartRow.
//
// The window is truncated at the image edges: only in-bounds samples are
// summed and count shrinks accordingly. The center pixel is always in bounds,
// so count is never zero. Channel averages truncate toward zero.
func blurBand(src, dst []byte, band Band, radius int) {
	width := band.TotalWidth
	height := band.TotalHeight
	stride := width * bytesPerPixel

	for row := band.StartRow; row <= band.EndRow; row++ {
		rowLo := max(row-radius, 0)
		rowHi := min(row+radius, height-1)
		out := dst[(row-band.StartRow)*stride : (row-band.StartRow+1)*stride]

		for col := 0; col < width; col++ {
			colLo := max(col-radius, 0)
			colHi := min(col+radius, width-1)

			var sumRed, sumGreen, sumBlue int
			for r := rowLo; r <= rowHi; r++ {
				line := src[r*stride+colLo*bytesPerPixel : r*stride+(colHi+1)*bytesPerPixel]
				for i := 0; i < len(line); i += bytesPerPixel {
					sumRed += int(line[i])
					sumGreen += int(line[i+1])
					sumBlue += int(line[i+2])
				}
			}
			count := (rowHi - rowLo + 1) * (colHi - colLo + 1)

			o := col * bytesPerPixel
			out[o] = uint8(sumRed / count)
			out[o+1] = uint8(sumGreen / count)
			out[o+2] = uint8(sumBlue / count)
			out[o+3] = src[row*stride+o+3]
		}
	}
}
