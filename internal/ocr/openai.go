package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const noText = "NO_TEXT"

const systemPrompt = `
You are the OCR stage of a children's homework kiosk.
Transcribe every piece of text and every arithmetic expression in the image, exactly as written.
Keep operators such as + - × ÷ = as symbols.
Do NOT solve anything. Do NOT add explanations or markdown.
If the image contains no text, reply with exactly ` + noText + `.
`

// OpenAI reads text from images with a vision-capable chat model.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(apiKey, model string, httpClient *http.Client, opts ...option.RequestOption) *OpenAI {
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		base = append(base, option.WithHTTPClient(httpClient))
	}
	return &OpenAI{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

func (o *OpenAI) DetectText(ctx context.Context, image []byte) (string, error) {
	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Model: openai.ChatModel(o.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Debug("OCR response", "data", content)

	if content == "" || content == noText {
		return "", nil
	}
	return content, nil
}
