// Command analyze-photo runs one local image through the same preparation and
// Vision calls as the upload pipeline, without storage or persistence.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/example/wardrobe-scan/internal/config"
	"github.com/example/wardrobe-scan/internal/imaging"
	"github.com/example/wardrobe-scan/internal/logging"
	"github.com/example/wardrobe-scan/internal/usecase"
	"github.com/example/wardrobe-scan/internal/visionclient"
)

// settings is the subset of the service configuration this tool needs.
type settings struct {
	LogLevel string `env:"LOG_LEVEL" env-default:"warn"`
	Vision   config.Vision
	Pipeline config.Pipeline
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <image-path> [--raw]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  VISION_ENDPOINT         - Optional API endpoint override\n")
		fmt.Fprintf(os.Stderr, "  VISION_CREDENTIALS_FILE - Service account key file\n")
		fmt.Fprintf(os.Stderr, "  PIPELINE_MAX_WIDTH      - Resize width (default 800)\n")
		os.Exit(1)
	}

	imagePath := os.Args[1]
	raw := len(os.Args) >= 3 && os.Args[2] == "--raw"

	var cfg settings
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}
	if err := imaging.Validate(imageData); err != nil {
		fmt.Fprintf(os.Stderr, "Rejected image: %v\n", err)
		os.Exit(1)
	}

	normalized, err := imaging.Normalize(imageData, cfg.Pipeline.MaxWidth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to normalize image: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.AnalysisTimeout+10*time.Second)
	defer cancel()

	client, err := visionclient.Dial(ctx, visionclient.Options{
		Endpoint:        cfg.Vision.Endpoint,
		CredentialsFile: cfg.Vision.CredentialsFile,
		Insecure:        cfg.Vision.Insecure,
		MaxResults:      cfg.Vision.MaxResults,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if raw {
		printRaw(ctx, client, normalized, logger)
		return
	}

	detections, err := client.DetectObjects(ctx, normalized)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== DETECTIONS ===")
	for _, d := range detections {
		marker := " "
		if usecase.IsClothing(d.Label) {
			marker = "*"
		}
		fmt.Printf("%s %-20s %.2f  [%.3f,%.3f - %.3f,%.3f]\n", marker, d.Label, d.Confidence, d.Box.MinX, d.Box.MinY, d.Box.MaxX, d.Box.MaxY)
	}
	fmt.Printf("\nClothing items: %d of %d\n", len(usecase.FilterClothing(detections)), len(detections))

	fmt.Println("\n" + strings.Repeat("-", 50) + "\n")
	fmt.Println("=== COLORS ===")
	colors, err := client.DominantColors(ctx, normalized)
	if err != nil {
		fmt.Printf("Color extraction failed: %v\n", err)
		return
	}
	for _, c := range colors {
		fmt.Printf("%-20s %.3f\n", c.Color.String(), c.Score)
	}
}

func printRaw(ctx context.Context, client *visionclient.Client, imageData []byte, logger *zap.Logger) {
	resp, err := client.Annotate(ctx, imageData, visionpb.Feature_OBJECT_LOCALIZATION, visionpb.Feature_IMAGE_PROPERTIES)
	if err != nil {
		logger.Error("annotate failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Annotate failed: %v\n", err)
		os.Exit(1)
	}

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
