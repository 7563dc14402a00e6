package texture

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format is an on-disk image encoding.
type Format string

const (
	FormatUnknown Format = ""
	FormatTIFF    Format = "TIFF"
	FormatPNG     Format = "PNG"
	FormatJPEG    Format = "JPEG"
	FormatGIF     Format = "GIF"
	FormatBMP     Format = "BMP"
	FormatWebP    Format = "WEBP"
)

// Image is a source texture supplied by the authoring tool.
type Image interface {
	// Filepath returns where the image currently lives on disk.
	Filepath() string
	// Format returns the encoding of the file at Filepath.
	Format() Format
	// SaveAs writes a copy of the image to path in the given format
	// without changing Filepath.
	SaveAs(path string, format Format) error
}

// FileImage is an Image backed by a file on disk.
type FileImage struct {
	path string
}

// NewFileImage wraps the image file at path.
func NewFileImage(path string) *FileImage {
	return &FileImage{path: path}
}

// Filepath returns the image path.
func (i *FileImage) Filepath() string {
	return i.path
}

// Format sniffs the file header. Unreadable or unrecognised files are FormatUnknown.
func (i *FileImage) Format() Format {
	kind, err := filetype.MatchFile(i.path)
	if err != nil {
		return FormatUnknown
	}
	return formatFromExtension(kind.Extension)
}

// SaveAs decodes the image and re-encodes it as TIFF. Other target formats
// are not needed by the compiler and are rejected.
func (i *FileImage) SaveAs(path string, format Format) error {
	if format != FormatTIFF {
		return fmt.Errorf("saving %s as %q: only TIFF output is supported", i.path, format)
	}

	in, err := os.Open(i.path)
	if err != nil {
		return err
	}
	defer in.Close()

	img, _, err := image.Decode(bufio.NewReader(in))
	if err != nil {
		return fmt.Errorf("decoding %s: %w", i.path, err)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		out.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func formatFromExtension(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "tif", "tiff":
		return FormatTIFF
	case "png":
		return FormatPNG
	case "jpg", "jpeg":
		return FormatJPEG
	case "gif":
		return FormatGIF
	case "bmp":
		return FormatBMP
	case "webp":
		return FormatWebP
	default:
		return FormatUnknown
	}
}

// hasTIFFExtension reports whether path ends in .tif or .tiff.
func hasTIFFExtension(path string) bool {
	return formatFromExtension(filepath.Ext(path)) == FormatTIFF
}
