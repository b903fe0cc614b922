package gcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/yungbote/recipe-backend/internal/pkg/ctxutil"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

// Vision describes kitchen frames from label, object and text annotations.
// It is the non-generative caption provider.
type Vision interface {
	DescribeImage(ctx context.Context, img []byte, mimeType string, prompt string) (string, error)
	Close() error
}

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

type visionService struct {
	log      *logger.Logger
	client   *vision.ImageAnnotatorClient
	annotate annotateFunc

	minScore   float32
	maxLabels  int
	maxObjects int
}

func NewVision(log *logger.Logger, credentials string) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	s := newVisionService(log, func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return c.BatchAnnotateImages(ctx, req)
	})
	s.client = c
	return s, nil
}

func newVisionService(log *logger.Logger, annotate annotateFunc) *visionService {
	return &visionService{
		log:        log.With("service", "gcp.Vision"),
		annotate:   annotate,
		minScore:   0.6,
		maxLabels:  10,
		maxObjects: 10,
	}
}

func (s *visionService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// DescribeImage ignores prompt; the annotation features are fixed.
func (s *visionService) DescribeImage(ctx context.Context, img []byte, mimeType string, prompt string) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("empty image")
	}
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: int32(s.maxLabels)},
			{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: int32(s.maxObjects)},
			{Type: visionpb.Feature_TEXT_DETECTION},
		},
	}
	resp, err := s.annotate(ctx, &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}})
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", fmt.Errorf("vision returned no annotations")
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	desc := s.describe(r0)
	if desc == "" {
		return "", fmt.Errorf("vision found nothing recognizable")
	}
	return desc, nil
}

func (s *visionService) describe(r *visionpb.AnnotateImageResponse) string {
	seen := map[string]bool{}
	var items []string
	add := func(name string, score float32) {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" || score < s.minScore || seen[n] {
			return
		}
		seen[n] = true
		items = append(items, n)
	}

	objs := append([]*visionpb.LocalizedObjectAnnotation(nil), r.GetLocalizedObjectAnnotations()...)
	sort.SliceStable(objs, func(i, j int) bool { return objs[i].GetScore() > objs[j].GetScore() })
	for _, o := range objs {
		add(o.GetName(), o.GetScore())
	}
	for _, l := range r.GetLabelAnnotations() {
		add(l.GetDescription(), l.GetScore())
	}

	var parts []string
	if len(items) > 0 {
		parts = append(parts, "Visible items: "+strings.Join(items, ", ")+".")
	}
	if ta := r.GetTextAnnotations(); len(ta) > 0 {
		if text := collapseWhitespace(ta[0].GetDescription()); text != "" {
			if len(text) > 200 {
				text = text[:200]
			}
			parts = append(parts, fmt.Sprintf("On-screen text: %q.", text))
		}
	}
	return strings.Join(parts, " ")
}
