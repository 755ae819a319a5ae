package adapter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := RetryWithBackoff(ctx, 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryWithBackoff(ctx, 3, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 3 attempts")

	calls = 0
	boom := errors.New("bad input")
	err = RetryWithBackoff(ctx, 3, time.Millisecond, func(context.Context) error {
		calls++
		return Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, 5, time.Hour, func(context.Context) error {
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "events/e1/originals/p1-IMG_01.JPG", OriginalKey("e1", "p1", "IMG_01.JPG"))
	assert.Equal(t, "events/e1/previews/p1-IMG_01.jpg", PreviewKey("e1", "p1", "IMG_01.JPG"))
	assert.Equal(t, "events/e1/originals/p1-evil.png", OriginalKey("e1", "p1", "../../evil.png"))
	assert.Equal(t, "events/e1/originals/p1-my_photo.png", OriginalKey("e1", "p1", "my photo.png"))
	assert.Equal(t, "events/e1/", EventPrefix("e1"))

	assert.NotEqual(t, OriginalKey("e1", "p1", "IMG_01.JPG"), OriginalKey("e1", "p2", "IMG_01.JPG"),
		"same filename in one batch must not share an object")
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage("http://cdn.local/")

	url, err := s.Put(ctx, []byte("a"), "events/1/originals/a.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.local/events/1/originals/a.jpg", url)

	_, err = s.Put(ctx, []byte("b"), "events/1/originals/a.jpg", "image/jpeg")
	require.NoError(t, err)
	data, err := s.Get(ctx, "events/1/originals/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)

	_, err = s.Put(ctx, []byte("c"), "events/2/previews/c.jpg", "image/jpeg")
	require.NoError(t, err)

	require.NoError(t, s.DeletePrefix(ctx, "events/1/"))
	assert.Equal(t, []string{"events/2/previews/c.jpg"}, s.Keys())

	_, err = s.Get(ctx, "events/1/originals/a.jpg")
	assert.True(t, IsPermanent(err))

	require.NoError(t, s.Delete(ctx, "events/2/previews/c.jpg", "missing"))
	assert.Empty(t, s.Keys())
}

func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepareImage(t *testing.T) {
	small := []byte("tiny")
	out, err := PrepareImage(small, 100)
	require.NoError(t, err)
	assert.Equal(t, small, out)

	big := noisyPNG(t, 400, 300)
	limit := 40 << 10
	require.Greater(t, len(big), limit)

	out, err = PrepareImage(big, limit)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), limit)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Less(t, cfg.Width, 400)

	_, err = PrepareImage(bytes.Repeat([]byte{1}, 200), 100)
	assert.True(t, IsPermanent(err))
}

type fakeRekognition struct {
	indexOut  *rekognition.IndexFacesOutput
	indexErr  error
	searchOut *rekognition.SearchFacesByImageOutput
	searchErr error
	lastIndex *rekognition.IndexFacesInput
}

func (f *fakeRekognition) IndexFaces(_ context.Context, in *rekognition.IndexFacesInput, _ ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error) {
	f.lastIndex = in
	return f.indexOut, f.indexErr
}

func (f *fakeRekognition) SearchFacesByImage(context.Context, *rekognition.SearchFacesByImageInput, ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error) {
	return f.searchOut, f.searchErr
}

func (f *fakeRekognition) CreateCollection(context.Context, *rekognition.CreateCollectionInput, ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error) {
	return nil, &types.ResourceAlreadyExistsException{Message: aws.String("exists")}
}

func TestRekognitionIndexer_Index(t *testing.T) {
	fake := &fakeRekognition{indexOut: &rekognition.IndexFacesOutput{
		FaceRecords: []types.FaceRecord{{Face: &types.Face{FaceId: aws.String("face-1")}}},
	}}
	idx := newRekognitionIndexer(fake, "col", 0, zap.NewNop())
	require.NoError(t, idx.EnsureCollection(context.Background()))

	faceID, found, err := idx.Index(context.Background(), []byte("img"), "photo-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "face-1", faceID)
	assert.Equal(t, int32(1), *fake.lastIndex.MaxFaces)
	assert.Equal(t, types.QualityFilterAuto, fake.lastIndex.QualityFilter)
	assert.Equal(t, "photo-1", *fake.lastIndex.ExternalImageId)

	fake.indexOut = &rekognition.IndexFacesOutput{}
	_, found, err = idx.Index(context.Background(), []byte("img"), "photo-2")
	require.NoError(t, err)
	assert.False(t, found)

	fake.indexErr = errors.New("throttled")
	_, _, err = idx.Index(context.Background(), []byte("img"), "photo-3")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestRekognitionIndexer_Search(t *testing.T) {
	fake := &fakeRekognition{searchOut: &rekognition.SearchFacesByImageOutput{
		FaceMatches: []types.FaceMatch{
			{Face: &types.Face{FaceId: aws.String("f1")}, Similarity: aws.Float32(99.1)},
			{Face: nil},
		},
	}}
	idx := newRekognitionIndexer(fake, "col", 90, zap.NewNop())

	matches, err := idx.Search(context.Background(), []byte("selfie"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "f1", matches[0].FaceID)

	fake.searchErr = &types.InvalidParameterException{Message: aws.String("There are no faces in the image")}
	matches, err = idx.Search(context.Background(), []byte("selfie"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	fake.searchErr = errors.New("connection reset")
	_, err = idx.Search(context.Background(), []byte("selfie"))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestMockPaymentGateway(t *testing.T) {
	gw := NewMockPaymentGateway("https://pay.local/checkout", zap.NewNop())
	ref, redirect, err := gw.CreateCheckout(context.Background(), [16]byte{1}, 1500, "USD", "a@b.c")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "cs_mock_"))
	assert.Contains(t, redirect, "https://pay.local/checkout?session="+ref)
	assert.NoError(t, gw.CancelCheckout(context.Background(), ref))
}

