package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wailsapp/mimetype"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"agrivoice/internal/ports"
)

// ErrNoSelection is returned when the user dismisses the file dialog.
var ErrNoSelection = errors.New("no image selected")

// ErrNotAnImage is returned when the chosen file is not an image.
var ErrNotAnImage = errors.New("selected file is not an image")

// DialogPicker selects an image file through the native open dialog.
type DialogPicker struct{}

func NewDialogPicker() *DialogPicker {
	return &DialogPicker{}
}

func (p *DialogPicker) Pick(ctx context.Context) (ports.ImageSelection, error) {
	path, err := runtime.OpenFileDialog(ctx, runtime.OpenDialogOptions{
		Title: "Choose an image",
		Filters: []runtime.FileFilter{
			{DisplayName: "Images", Pattern: "*.png;*.jpg;*.jpeg;*.webp;*.gif"},
		},
	})
	if err != nil {
		return ports.ImageSelection{}, fmt.Errorf("image dialog failed: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return ports.ImageSelection{}, ErrNoSelection
	}
	return ReadImageFile(path)
}

// ReadImageFile loads path and enforces the image MIME constraint.
func ReadImageFile(path string) (ports.ImageSelection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ports.ImageSelection{}, fmt.Errorf("failed to read image file: %w", err)
	}

	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return ports.ImageSelection{}, fmt.Errorf("%w: %s", ErrNotAnImage, detected.String())
	}

	return ports.ImageSelection{
		Data:     data,
		MIMEType: detected.String(),
		Filename: filepath.Base(path),
	}, nil
}
