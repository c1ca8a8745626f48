// Package visionclient implements analysis.Provider on top of Google Cloud
// Vision.
package visionclient

import (
	"context"
	"errors"
	"math"
	"sort"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/example/wardrobe-scan/internal/analysis"
	"github.com/example/wardrobe-scan/internal/apperror"
)

// ErrEmptyResponse is returned when the provider answers without any
// per-image result.
var ErrEmptyResponse = errors.New("vision returned no annotation result")

// Options controls how the annotator connection is established.
type Options struct {
	// Endpoint overrides the default API host, e.g. an emulator address.
	Endpoint        string
	CredentialsFile string
	// Insecure disables TLS and authentication, for local emulators only.
	Insecure   bool
	MaxResults int32
}

type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// Client calls the image annotator for object localization and image
// properties.
type Client struct {
	annotator  annotator
	maxResults int32
	logger     *zap.Logger
}

var _ analysis.Provider = (*Client)(nil)

// Dial returns a ready-to-use Vision client.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		clientOpts = append(clientOpts,
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	} else if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	c, err := vision.NewImageAnnotatorClient(ctx, clientOpts...)
	if err != nil {
		wrapped := apperror.New(apperror.KindAnalysis, "visionclient.dial", "", err)
		logger.Error("failed to create vision client", zap.Error(wrapped), zap.String("endpoint", opts.Endpoint))
		return nil, wrapped
	}
	return newClient(c, opts.MaxResults, logger), nil
}

func newClient(a annotator, maxResults int32, logger *zap.Logger) *Client {
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Client{annotator: a, maxResults: maxResults, logger: logger.Named("vision_client")}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.annotator.Close()
}

// Annotate runs the requested features against one image and returns the raw
// provider result.
func (c *Client) Annotate(ctx context.Context, imageBytes []byte, features ...visionpb.Feature_Type) (*visionpb.AnnotateImageResponse, error) {
	req := &visionpb.AnnotateImageRequest{Image: &visionpb.Image{Content: imageBytes}}
	for _, f := range features {
		req.Features = append(req.Features, &visionpb.Feature{Type: f, MaxResults: c.maxResults})
	}

	resp, err := c.annotator.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.GetResponses()) == 0 {
		return nil, ErrEmptyResponse
	}

	result := resp.GetResponses()[0]
	if st := result.GetError(); st != nil && codes.Code(st.GetCode()) != codes.OK {
		return nil, status.ErrorProto(st)
	}
	return result, nil
}

// DetectObjects implements analysis.Provider using object localization.
func (c *Client) DetectObjects(ctx context.Context, imageBytes []byte) ([]analysis.Detection, error) {
	const op = "visionclient.detect_objects"

	result, err := c.Annotate(ctx, imageBytes, visionpb.Feature_OBJECT_LOCALIZATION)
	if err != nil {
		return nil, c.fail(op, err)
	}

	objects := result.GetLocalizedObjectAnnotations()
	detections := make([]analysis.Detection, 0, len(objects))
	for _, obj := range objects {
		detections = append(detections, analysis.Detection{
			Label:      obj.GetName(),
			Confidence: obj.GetScore(),
			Box:        boundingBox(obj.GetBoundingPoly()),
		})
	}
	c.logger.Debug("objects localized", zap.Int("count", len(detections)))
	return detections, nil
}

// DominantColors implements analysis.Provider using image properties.
func (c *Client) DominantColors(ctx context.Context, imageBytes []byte) ([]analysis.ColorScore, error) {
	const op = "visionclient.dominant_colors"

	result, err := c.Annotate(ctx, imageBytes, visionpb.Feature_IMAGE_PROPERTIES)
	if err != nil {
		return nil, c.fail(op, err)
	}

	infos := result.GetImagePropertiesAnnotation().GetDominantColors().GetColors()
	colors := make([]analysis.ColorScore, 0, len(infos))
	for _, info := range infos {
		col := info.GetColor()
		colors = append(colors, analysis.ColorScore{
			Color: analysis.RGB{
				R: channel(col.GetRed()),
				G: channel(col.GetGreen()),
				B: channel(col.GetBlue()),
			},
			Score: info.GetScore(),
		})
	}
	sort.SliceStable(colors, func(i, j int) bool { return colors[i].Score > colors[j].Score })
	return colors, nil
}

func (c *Client) fail(op string, err error) error {
	wrapped := apperror.New(apperror.KindAnalysis, op, "", err)
	c.logger.Error("vision call failed", zap.Error(wrapped), zap.String("grpc_code", status.Code(err).String()))
	return wrapped
}

func boundingBox(poly *visionpb.BoundingPoly) analysis.BoundingBox {
	vertices := poly.GetNormalizedVertices()
	if len(vertices) == 0 {
		return analysis.BoundingBox{}
	}
	box := analysis.BoundingBox{MinX: 1, MinY: 1}
	for _, v := range vertices {
		x, y := float64(v.GetX()), float64(v.GetY())
		box.MinX = math.Min(box.MinX, x)
		box.MinY = math.Min(box.MinY, y)
		box.MaxX = math.Max(box.MaxX, x)
		box.MaxY = math.Max(box.MaxY, y)
	}
	return box
}

func channel(v float32) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(float64(v)))))
}
