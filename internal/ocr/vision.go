package ocr

import (
	"context"
	"errors"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// Vision is the Google Cloud Vision text detector.
type Vision struct {
	client *vision.ImageAnnotatorClient
}

func NewVision(ctx context.Context, credentialsFile string) (*Vision, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Vision{client: client}, nil
}

func (v *Vision) DetectText(ctx context.Context, image []byte) (string, error) {
	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("text detection: %w", err)
	}

	rs := resp.GetResponses()
	if len(rs) == 0 {
		return "", errors.New("text detection: empty response")
	}
	if msg := rs[0].GetError().GetMessage(); msg != "" {
		return "", fmt.Errorf("vision api: %s", msg)
	}

	ann := rs[0].GetTextAnnotations()
	if len(ann) == 0 {
		return "", nil
	}
	// The first annotation is the whole detected block.
	return ann[0].GetDescription(), nil
}

func (v *Vision) Close() error {
	return v.client.Close()
}
