package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/park285/cheese-board/internal/board"
)

//go:embed assets/pieces/*.svg
var pieceFiles embed.FS

type sizedPiece struct {
	piece board.Piece
	size  int
}

// pieceSet parses each SVG once and keeps one raster per (piece, size).
type pieceSet struct {
	mu     sync.Mutex
	icons  map[board.Piece]*oksvg.SvgIcon
	raster sync.Map // sizedPiece -> *image.RGBA
}

var pieces = &pieceSet{icons: map[board.Piece]*oksvg.SvgIcon{}}

func renderPieceImage(piece board.Piece, size int) (image.Image, error) {
	return pieces.image(piece, size)
}

func (ps *pieceSet) image(piece board.Piece, size int) (image.Image, error) {
	if !piece.Valid() {
		return nil, fmt.Errorf("invalid piece %q/%q", piece.Kind, piece.Color)
	}
	key := sizedPiece{piece, size}
	if img, ok := ps.raster.Load(key); ok {
		return img.(*image.RGBA), nil
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	icon, err := ps.icon(piece)
	if err != nil {
		return nil, err
	}
	// SetTarget mutates the icon, so rasterizing stays under mu
	icon.SetTarget(0, 0, float64(size), float64(size))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	ps.raster.Store(key, img)
	return img, nil
}

func (ps *pieceSet) icon(piece board.Piece) (*oksvg.SvgIcon, error) {
	if icon, ok := ps.icons[piece]; ok {
		return icon, nil
	}
	name := pieceAssetName(piece)
	data, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(data)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	ps.icons[piece] = icon
	return icon, nil
}

// pieceAssetName maps a piece to assets/pieces/<w|b><K|Q|R|B|N|P>.svg.
func pieceAssetName(piece board.Piece) string {
	side := "b"
	if piece.Color == board.White {
		side = "w"
	}
	return "assets/pieces/" + side + string(piece.Kind) + ".svg"
}

var svgStyleFix = strings.NewReplacer("fill: #", "fill:#", "stroke: #", "stroke:#")

// sanitizeSVG normalises style spellings oksvg does not parse.
func sanitizeSVG(svg []byte) []byte {
	return []byte(svgStyleFix.Replace(string(svg)))
}
