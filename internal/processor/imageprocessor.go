// imageprocessor.go - Input preparation: MIME detection, selection crop and optional enhancement

package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/bosocmputer/document_extract_gemini/internal/model"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers image/webp for imaging.Decode
)

// ErrUnsupportedFileType is returned for files outside the accepted extensions.
var ErrUnsupportedFileType = errors.New("unsupported file type")

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// DetectMIMEType maps a file name to the MIME type sent to the AI service.
func DetectMIMEType(fileName string) (string, error) {
	mimeType, ok := mimeTypes[strings.ToLower(filepath.Ext(fileName))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, fileName)
	}
	return mimeType, nil
}

// IsImage reports whether the MIME type can be cropped.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// PrepareOptions controls optional image enhancement.
type PrepareOptions struct {
	Enhance      bool
	MaxDimension int
}

// PreparedInput is what gets submitted for one file.
type PreparedInput struct {
	Data         []byte
	MIMEType     string
	HadSelection bool
}

// PrepareInput crops image files to the selection, when one is given and
// large enough, and optionally enhances them. PDFs pass through untouched.
func PrepareInput(fileName string, data []byte, sel *model.Selection, opts PrepareOptions) (PreparedInput, error) {
	mimeType, err := DetectMIMEType(fileName)
	if err != nil {
		return PreparedInput{}, err
	}

	out := PreparedInput{Data: data, MIMEType: mimeType}
	crop := sel != nil && sel.Valid()
	if !IsImage(mimeType) || (!crop && !opts.Enhance) {
		return out, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return PreparedInput{}, fmt.Errorf("failed to decode image %s: %w", fileName, err)
	}

	if crop {
		rect := sel.Rect().Intersect(img.Bounds())
		if !rect.Empty() {
			img = imaging.Crop(img, rect)
			out.HadSelection = true
		}
	}

	if opts.Enhance {
		img = enhance(img, opts.MaxDimension)
	}

	// Cropped or enhanced output is always PNG.
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return PreparedInput{}, fmt.Errorf("failed to encode processed image: %w", err)
	}
	out.Data = buf.Bytes()
	out.MIMEType = "image/png"
	return out, nil
}

// enhance downscales to maxDimension and applies adaptive contrast/sharpening.
func enhance(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		maxDimension = 2000
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width > maxDimension || height > maxDimension {
		if width > height {
			img = imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
		}
	}

	qualityScore := analyzeImageQuality(img)
	switch {
	case qualityScore < 50:
		img = applyAggressiveEnhancement(img)
	case qualityScore < 75:
		img = applyStandardEnhancement(img)
	default:
		img = applyLightEnhancement(img)
	}

	return imaging.Sharpen(img, 1.0)
}

// analyzeImageQuality analyzes image and returns quality score (0-100)
func analyzeImageQuality(img image.Image) float64 {
	bounds := img.Bounds()

	var totalBrightness float64
	var minBrightness float64 = 255
	var maxBrightness float64 = 0
	pixelCount := 0

	// every 10th pixel
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 10 {
		for x := bounds.Min.X; x < bounds.Max.X; x += 10 {
			r, g, b, _ := img.At(x, y).RGBA()
			brightness := (float64(r>>8) + float64(g>>8) + float64(b>>8)) / 3.0

			totalBrightness += brightness
			if brightness < minBrightness {
				minBrightness = brightness
			}
			if brightness > maxBrightness {
				maxBrightness = brightness
			}
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return 0
	}

	avgBrightness := totalBrightness / float64(pixelCount)
	contrast := maxBrightness - minBrightness

	// Ideal: avgBrightness = 128, contrast = 200+
	brightnessScore := 100.0 - math.Abs(avgBrightness-128.0)/1.28
	contrastScore := math.Min(contrast/2.0, 100.0)

	return (brightnessScore * 0.4) + (contrastScore * 0.6)
}

func applyLightEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 2.0)
	result = imaging.AdjustContrast(result, 30)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 20)
	return imaging.AdjustGamma(result, 1.05)
}

func applyStandardEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 3.0)
	result = imaging.AdjustContrast(result, 45)
	result = imaging.AdjustBrightness(result, 15)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 35)
	return imaging.AdjustGamma(result, 1.15)
}

// applyAggressiveEnhancement is for faint or low-contrast scans
func applyAggressiveEnhancement(img image.Image) image.Image {
	result := imaging.Sharpen(img, 4.0)
	result = imaging.AdjustContrast(result, 60)
	result = imaging.AdjustBrightness(result, 25)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 55)
	result = imaging.AdjustGamma(result, 1.3)

	// blur + sharpen removes speckle
	result = imaging.Blur(result, 0.5)
	result = imaging.Sharpen(result, 2.5)

	return imaging.AdjustContrast(result, 20)
}
