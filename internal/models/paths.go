package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// Model filename patterns. Detection ships in two resolution variants,
// recognition in one variant per maximum aspect ratio.
const (
	DetectionPattern   = "det_v5_%d.onnx"       // 640 or 960
	RecognitionPattern = "rec_v5_ratio_%d.onnx" // 3, 5, 10, 15, 25, 35

	DocOrientation      = "doc_ori.onnx"
	TextLineOrientation = "textline_ori.onnx"
	UVDoc               = "uvdoc.onnx"

	DictionaryPPOCRV5 = "ppocrv5_dict.txt"
)

// Model family directories under the models root.
const (
	FamilyServer = "server"
	FamilyMobile = "mobile"
)

// DetectionSides are the long sides the detection variants were trained at.
var DetectionSides = []int{640, 960}

// RecognitionRatios are the maximum aspect ratios of the recognition
// variants; each accepts height 48 and width ratio*48.
var RecognitionRatios = []int{3, 5, 10, 15, 25, 35}

// DefaultModelsDir is used when no directory is configured.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "DXOCR_MODELS_DIR"

// GetModelsDir resolves the models directory: explicit argument, then
// environment, then the default relative directory.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	return DefaultModelsDir
}

// GetDetectionModelPath returns the path for the detection variant with
// the given trained long side.
func GetDetectionModelPath(modelsDir, family string, side int) string {
	return filepath.Join(GetModelsDir(modelsDir), family, fmt.Sprintf(DetectionPattern, side))
}

// GetRecognitionModelPath returns the path for the recognition variant
// with the given maximum aspect ratio.
func GetRecognitionModelPath(modelsDir, family string, ratio int) string {
	return filepath.Join(GetModelsDir(modelsDir), family, fmt.Sprintf(RecognitionPattern, ratio))
}

// GetDocOrientationModelPath returns the document orientation classifier path.
func GetDocOrientationModelPath(modelsDir, family string) string {
	return filepath.Join(GetModelsDir(modelsDir), family, DocOrientation)
}

// GetTextLineOrientationModelPath returns the text line orientation classifier path.
func GetTextLineOrientationModelPath(modelsDir, family string) string {
	return filepath.Join(GetModelsDir(modelsDir), family, TextLineOrientation)
}

// GetUVDocModelPath returns the unwarping model path.
func GetUVDocModelPath(modelsDir, family string) string {
	return filepath.Join(GetModelsDir(modelsDir), family, UVDoc)
}

// GetDictionaryPath returns the recognition dictionary path.
func GetDictionaryPath(modelsDir string) string {
	return filepath.Join(GetModelsDir(modelsDir), DictionaryPPOCRV5)
}

// ValidateModelExists checks that a model file is present and readable.
func ValidateModelExists(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("model not found: %s", modelPath)
	}
	if info.IsDir() {
		return fmt.Errorf("model path is a directory: %s", modelPath)
	}
	return nil
}
