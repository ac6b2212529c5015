package common

import (
	"context"
	"errors"
	"testing"

	"github.com/bosocmputer/document_extract_gemini/configs"
	"github.com/stretchr/testify/assert"
)

func TestCalculateTokenCost(t *testing.T) {
	configs.GEMINI_INPUT_PRICE_PER_MILLION = 0.10
	configs.GEMINI_OUTPUT_PRICE_PER_MILLION = 0.40
	configs.USD_TO_JPY = 150

	usage := CalculateTokenCost(1_000_000, 500_000)
	assert.Equal(t, 1_500_000, usage.TotalTokens)
	assert.InDelta(t, 0.30, usage.CostUSD, 1e-9)
	assert.InDelta(t, 45.0, usage.CostJPY, 1e-9)
}

func TestEndStepAccumulatesTokens(t *testing.T) {
	rc := NewRequestContext("invoice")

	rc.StartStep("submit")
	rc.EndStep("success", &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, nil)
	rc.StartStep("submit")
	rc.EndStep("failed", nil, errors.New("boom"))
	rc.StartStep("submit")
	rc.EndStep("success", &TokenUsage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2}, nil)

	assert.Equal(t, 17, rc.TotalTokens.TotalTokens)
	assert.Len(t, rc.Steps, 3)
	assert.Equal(t, "boom", rc.Steps[1].Error)

	summary := rc.GetSummary()
	assert.Equal(t, 1, summary["failed_steps"])
	assert.Equal(t, 3, summary["total_steps"])
}

func TestSubStepsAttachToStep(t *testing.T) {
	rc := NewRequestContext("delivery")
	rc.StartStep("prepare_input")
	rc.StartSubStep("crop")
	rc.EndSubStep("100x50")
	rc.EndSubStep("ignored without an open sub-step")
	rc.EndStep("success", nil, nil)

	if assert.Len(t, rc.Steps, 1) {
		assert.Len(t, rc.Steps[0].SubSteps, 1)
		assert.Equal(t, "100x50", rc.Steps[0].SubSteps[0].Details)
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "12,345", formatNumber(12345))
	assert.Equal(t, "1,002,003", formatNumber(1002003))
}

func TestRequestContextTravelsInContext(t *testing.T) {
	rc := NewRequestContext("invoice")
	ctx := WithRequestContext(context.Background(), rc)
	assert.Same(t, rc, FromContext(ctx))

	missing := FromContext(context.Background())
	assert.Nil(t, missing)
	assert.NotPanics(t, func() { missing.LogInfo("no batch %d", 1) })
}
