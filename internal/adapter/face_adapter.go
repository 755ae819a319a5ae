package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/eventsnap/service-gallery/internal/watermark"
)

// MaxImageBytes is the largest image the face provider accepts inline.
const MaxImageBytes = 5 << 20

// ErrProviderUnavailable wraps failures of the face provider call itself, as
// opposed to a successful call that found no face.
var ErrProviderUnavailable = errors.New("face provider unavailable")

// FaceMatch is one search hit.
type FaceMatch struct {
	FaceID     string
	Similarity float64
}

// FaceIndexer indexes and searches faces in a shared collection.
type FaceIndexer interface {
	// Index registers the most prominent face of image. found is false when
	// the image has no detectable face.
	Index(ctx context.Context, image []byte, externalID string) (faceID string, found bool, err error)

	// Search returns indexed faces similar to the face in selfie. A selfie
	// without a face yields an empty result and no error.
	Search(ctx context.Context, selfie []byte) ([]FaceMatch, error)
}

type rekognitionAPI interface {
	IndexFaces(ctx context.Context, in *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	SearchFacesByImage(ctx context.Context, in *rekognition.SearchFacesByImageInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
	CreateCollection(ctx context.Context, in *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
}

// RekognitionIndexer implements FaceIndexer on AWS Rekognition.
type RekognitionIndexer struct {
	client       rekognitionAPI
	collectionID string
	threshold    float32
	logger       *zap.Logger
}

// NewRekognitionIndexer loads AWS credentials from the environment and
// returns an indexer for collectionID.
func NewRekognitionIndexer(ctx context.Context, region, collectionID string, threshold float64, logger *zap.Logger) (*RekognitionIndexer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newRekognitionIndexer(rekognition.NewFromConfig(cfg), collectionID, threshold, logger), nil
}

func newRekognitionIndexer(client rekognitionAPI, collectionID string, threshold float64, logger *zap.Logger) *RekognitionIndexer {
	if threshold <= 0 || threshold > 100 {
		threshold = 90
	}
	return &RekognitionIndexer{
		client:       client,
		collectionID: collectionID,
		threshold:    float32(threshold),
		logger:       logger,
	}
}

// EnsureCollection creates the collection unless it already exists.
func (r *RekognitionIndexer) EnsureCollection(ctx context.Context) error {
	_, err := r.client.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(r.collectionID),
	})
	var exists *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("%w: create collection: %w", ErrProviderUnavailable, err)
	}
	return nil
}

// Index adds the face in img to the collection, tagged with externalID.
func (r *RekognitionIndexer) Index(ctx context.Context, img []byte, externalID string) (string, bool, error) {
	img, err := PrepareImage(img, MaxImageBytes)
	if err != nil {
		return "", false, err
	}

	out, err := r.client.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId:    aws.String(r.collectionID),
		Image:           &types.Image{Bytes: img},
		ExternalImageId: aws.String(externalID),
		MaxFaces:        aws.Int32(1),
		QualityFilter:   types.QualityFilterAuto,
	})
	if err != nil {
		var badParam *types.InvalidParameterException
		if errors.As(err, &badParam) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: index faces: %w", ErrProviderUnavailable, err)
	}

	for _, rec := range out.FaceRecords {
		if rec.Face != nil && rec.Face.FaceId != nil {
			return *rec.Face.FaceId, true, nil
		}
	}
	r.logger.Debug("no face indexed", zap.String("external_id", externalID))
	return "", false, nil
}

// Search finds faces in the collection matching the face in selfie.
func (r *RekognitionIndexer) Search(ctx context.Context, selfie []byte) ([]FaceMatch, error) {
	selfie, err := PrepareImage(selfie, MaxImageBytes)
	if err != nil {
		return nil, err
	}

	out, err := r.client.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(r.collectionID),
		Image:              &types.Image{Bytes: selfie},
		FaceMatchThreshold: aws.Float32(r.threshold),
		MaxFaces:           aws.Int32(100),
	})
	if err != nil {
		var badParam *types.InvalidParameterException
		if errors.As(err, &badParam) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: search faces: %w", ErrProviderUnavailable, err)
	}

	matches := make([]FaceMatch, 0, len(out.FaceMatches))
	for _, m := range out.FaceMatches {
		if m.Face == nil || m.Face.FaceId == nil {
			continue
		}
		var sim float64
		if m.Similarity != nil {
			sim = float64(*m.Similarity)
		}
		matches = append(matches, FaceMatch{FaceID: *m.Face.FaceId, Similarity: sim})
	}
	return matches, nil
}

// DisabledFaceIndexer is used when no face provider is configured. Nothing
// is indexed and searches are always empty.
type DisabledFaceIndexer struct{}

// Index never finds a face.
func (DisabledFaceIndexer) Index(context.Context, []byte, string) (string, bool, error) {
	return "", false, nil
}

// Search never matches.
func (DisabledFaceIndexer) Search(context.Context, []byte) ([]FaceMatch, error) {
	return nil, nil
}

// PrepareImage returns data unchanged when it fits in limit bytes. Larger
// images are re-encoded as JPEG, halving the longest side until they fit.
func PrepareImage(data []byte, limit int) ([]byte, error) {
	if len(data) <= limit {
		return data, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Permanent(fmt.Errorf("%w: %v", watermark.ErrUndecodable, err))
	}
	img := watermark.Orient(src, watermark.ReadOrientation(data))

	for {
		b := img.Bounds()
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("encode downscaled image: %w", err)
		}
		if buf.Len() <= limit {
			return buf.Bytes(), nil
		}
		if b.Dx() <= 64 || b.Dy() <= 64 {
			return nil, Permanent(fmt.Errorf("image cannot be reduced below %d bytes", limit))
		}
		if b.Dx() >= b.Dy() {
			img = resize.Resize(uint(b.Dx()/2), 0, img, resize.Lanczos3)
		} else {
			img = resize.Resize(0, uint(b.Dy()/2), img, resize.Lanczos3)
		}
	}
}
