package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/toolcall"
)

// ImageToolID is the stored tool ID of the image generation tool.
var ImageToolID = uuid.MustParse("b3f07a6e-5e01-423e-1f05-ee51830608be")

// Image sizes accepted by DALL-E 3.
const (
	SizeSquare    = openai.CreateImageSize1024x1024
	SizeLandscape = openai.CreateImageSize1792x1024
	SizePortrait  = openai.CreateImageSize1024x1792
)

var (
	ErrPromptRequired  = errors.New("prompt is required")
	ErrPromptNotString = errors.New("prompt must be a string")
	ErrImageGeneration = errors.New("failed to generate image")
	ErrMissingAPIKey   = errors.New("OpenAI API Key not found")
)

// ImageClient is the part of the OpenAI client the generator uses.
type ImageClient interface {
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

// ImageConfig holds OpenAI credentials for image generation.
type ImageConfig struct {
	APIKey  string
	OrgID   string
	BaseURL string
}

// NewImageClient creates an OpenAI client from cfg.
func NewImageClient(cfg ImageConfig) (ImageClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.OrgID = cfg.OrgID
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(oc), nil
}

// ImageResult is what generateImage returns.
type ImageResult struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
	Size   string `json:"size"`
}

// ImageGenerator implements the generateImage function on DALL-E 3.
type ImageGenerator struct {
	client ImageClient
}

// NewImageGenerator creates the generator. A nil client makes every call
// fail with ErrMissingAPIKey.
func NewImageGenerator(client ImageClient) *ImageGenerator {
	return &ImageGenerator{client: client}
}

func (g *ImageGenerator) Name() string { return "generateImage" }
func (g *ImageGenerator) Description() string {
	return "Generate an image from a prompt. Returns the URL of the image. Never display the image in the response, nor include the link or url, it is handled in the frontend."
}
func (g *ImageGenerator) Parameters() []openapi.Parameter {
	return []openapi.Parameter{
		{
			Name:        "prompt",
			Description: "The prompt, a detailed description, to generate an image from.",
			Required:    true,
			Type:        "string",
		},
		{
			Name:        "format",
			Description: "The format of the image to generate. Allowed values: square, portrait or tall, or landscape or wide. Defaults to square.",
			Required:    true,
			Type:        "string",
		},
	}
}

// Invoke accepts {"parameters":{"prompt","format"}} as well as the flat
// {"prompt","format"} form.
func (g *ImageGenerator) Invoke(ctx context.Context, args toolcall.Arguments) (any, error) {
	values := args.Values()
	raw, ok := values["prompt"]
	if !ok || raw == nil {
		return nil, ErrPromptRequired
	}
	prompt, ok := raw.(string)
	if !ok {
		return nil, ErrPromptNotString
	}
	format, _ := values["format"].(string)
	size := ImageSize(format)

	if g.client == nil {
		return nil, fmt.Errorf("%w: %w", ErrImageGeneration, ErrMissingAPIKey)
	}
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		slog.Error("image generation failed",
			slog.String("size", size),
			slog.Any("error", err))
		return nil, ErrImageGeneration
	}
	if len(resp.Data) == 0 {
		slog.Error("image generation returned no data", slog.String("size", size))
		return nil, ErrImageGeneration
	}
	return ImageResult{Prompt: prompt, URL: resp.Data[0].URL, Size: size}, nil
}

// ImageSize maps a format name onto a DALL-E 3 size. Unknown formats are square.
func ImageSize(format string) string {
	switch format {
	case "landscape", "wide":
		return SizeLandscape
	case "portrait", "tall":
		return SizePortrait
	default:
		return SizeSquare
	}
}

// ImageTool returns the image generation tool around gen.
func ImageTool(gen *ImageGenerator) Tool {
	return Tool{
		ID:          ImageToolID,
		Name:        "Image Generation",
		ToolName:    "imageGenerator",
		Version:     "v1.0.0",
		Description: "This tool allows you to generate images from a prompt.",
		Functions:   []Function{gen},
	}
}

// NewDefaultRegistry registers every built-in platform tool. Without an API
// key the image tool is still listed but its calls fail.
func NewDefaultRegistry(cfg ImageConfig) (*Registry, error) {
	client, err := NewImageClient(cfg)
	if err != nil {
		slog.Warn("image generation disabled", slog.Any("error", err))
	}
	r := NewRegistry()
	if err := r.Register(ImageTool(NewImageGenerator(client))); err != nil {
		return nil, err
	}
	return r, nil
}
