//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/pixseek/pixseek/pkg/utils"
)

// CLIPEmbedder runs exported CLIP text and image encoder models through ONNX
// Runtime. Both encoders project into the same space, so their outputs are
// directly comparable under inner product after normalization. It requires
// CGO and the onnxruntime shared library.
type CLIPEmbedder struct {
	textSession  *ort.AdvancedSession
	imageSession *ort.AdvancedSession
	dimensions   int
	maxTokens    int
	cache        *EmbeddingCache
	tokenizer    Tokenizer

	// Pre-allocated tensors for Run(); we update input data and read output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	textOutputTensor    *ort.Tensor[float32]
	pixelTensor         *ort.Tensor[float32]
	imageOutputTensor   *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewCLIPEmbedder creates sessions for both encoders. InitializeEnvironment
// is called if not already done.
func NewCLIPEmbedder(textModelPath, imageModelPath string, dimensions, maxTokens, cacheSize int) (*CLIPEmbedder, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	if maxTokens <= 0 {
		maxTokens = 77
	}

	e := &CLIPEmbedder{
		dimensions: dimensions,
		maxTokens:  maxTokens,
		cache:      NewEmbeddingCache(cacheSize),
		tokenizer:  &SimpleTokenizer{},
	}

	if err := e.initText(textModelPath); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.initImage(imageModelPath); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *CLIPEmbedder) initText(modelPath string) error {
	inputIDs, attentionMask := e.tokenizer.Tokenize("", e.maxTokens)

	var err error
	e.inputIDsTensor, err = ort.NewTensor(ort.NewShape(1, int64(e.maxTokens)), inputIDs)
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.attentionMaskTensor, err = ort.NewTensor(ort.NewShape(1, int64(e.maxTokens)), attentionMask)
	if err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	e.textOutputTensor, err = ort.NewTensor(ort.NewShape(1, int64(e.dimensions)), make([]float32, e.dimensions))
	if err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}

	e.textSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attentionMaskTensor},
		[]ort.ArbitraryTensor{e.textOutputTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text encoder session: %w", err)
	}
	return nil
}

func (e *CLIPEmbedder) initImage(modelPath string) error {
	pixels := make([]float32, 3*clipImageSize*clipImageSize)

	var err error
	e.pixelTensor, err = ort.NewTensor(ort.NewShape(1, 3, clipImageSize, clipImageSize), pixels)
	if err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	e.imageOutputTensor, err = ort.NewTensor(ort.NewShape(1, int64(e.dimensions)), make([]float32, e.dimensions))
	if err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}

	e.imageSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOutputTensor},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create image encoder session: %w", err)
	}
	return nil
}

// EmbedText returns the normalized text embedding, using cache when available.
func (e *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.GetText(text); ok {
		return cached, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attentionMaskTensor.GetData(), attentionMask)

	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.textOutputTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	e.cache.SetText(text, embedding)
	return embedding, nil
}

// EmbedImage returns the normalized image embedding, using cache keyed by a
// digest of the raw bytes.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if cached, ok := e.cache.GetImage(data); ok {
		return cached, nil
	}

	pixels, err := PreprocessImage(data, clipImageSize)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.pixelTensor.GetData(), pixels)
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}

	embedding := make([]float32, e.dimensions)
	copy(embedding, e.imageOutputTensor.GetData()[:e.dimensions])
	utils.NormalizeL2(embedding)
	e.cache.SetImage(data, embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *CLIPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the sessions and tensors.
func (e *CLIPEmbedder) Close() error {
	var err error
	if e.textSession != nil {
		err = e.textSession.Destroy()
		e.textSession = nil
	}
	if e.imageSession != nil {
		if derr := e.imageSession.Destroy(); err == nil {
			err = derr
		}
		e.imageSession = nil
	}
	if e.inputIDsTensor != nil {
		_ = e.inputIDsTensor.Destroy()
		e.inputIDsTensor = nil
	}
	if e.attentionMaskTensor != nil {
		_ = e.attentionMaskTensor.Destroy()
		e.attentionMaskTensor = nil
	}
	if e.textOutputTensor != nil {
		_ = e.textOutputTensor.Destroy()
		e.textOutputTensor = nil
	}
	if e.pixelTensor != nil {
		_ = e.pixelTensor.Destroy()
		e.pixelTensor = nil
	}
	if e.imageOutputTensor != nil {
		_ = e.imageOutputTensor.Destroy()
		e.imageOutputTensor = nil
	}
	return err
}
