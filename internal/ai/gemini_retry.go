// gemini_retry.go - Retry logic and error handling for inference calls

package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bosocmputer/document_extract_gemini/internal/common"
	"google.golang.org/api/googleapi"
)

// RetryConfig defines retry behavior for inference calls
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for retry behavior
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// ProviderError is a categorized inference transport failure.
type ProviderError struct {
	Provider      string
	OriginalError error
	Category      string
	StatusCode    int
	Message       string
	Retryable     bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Category, e.Message, e.StatusCode, e.Retryable)
}

func (e *ProviderError) Unwrap() error { return e.OriginalError }

// HTTPStatusError is returned by plain HTTP providers for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// categorizeError analyzes error and determines retry strategy
func categorizeError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	var already *ProviderError
	if errors.As(err, &already) {
		return already
	}

	perr := &ProviderError{
		Provider:      provider,
		OriginalError: err,
		Category:      "unknown",
		Message:       err.Error(),
	}

	status := 0
	detail := ""
	var apiErr *googleapi.Error
	var httpErr *HTTPStatusError
	switch {
	case errors.As(err, &apiErr):
		status, detail = apiErr.Code, apiErr.Message
	case errors.As(err, &httpErr):
		status, detail = httpErr.StatusCode, httpErr.Body
	}

	if status != 0 {
		perr.StatusCode = status

		switch status {
		case 400:
			perr.Category = "bad_request"
			perr.Message = "Invalid request format or parameters"
		case 401:
			perr.Category = "unauthorized"
			perr.Message = "Invalid API key or authentication failed"
		case 403:
			perr.Category = "forbidden"
			perr.Message = "API key lacks required permissions"
		case 404:
			perr.Category = "not_found"
			perr.Message = "Model not found or invalid endpoint"
		case 413:
			perr.Category = "payload_too_large"
			perr.Message = "Request size exceeds limit (reduce image size)"
		case 429:
			perr.Category = "rate_limit"
			perr.Message = "Rate limit exceeded - too many requests"
			perr.Retryable = true
		case 500, 502, 503, 504:
			perr.Category = "server_error"
			perr.Message = fmt.Sprintf("%s server error (%d)", provider, status)
			perr.Retryable = true
		default:
			perr.Category = "unknown_api_error"
			perr.Message = fmt.Sprintf("API error: %s", detail)
			perr.Retryable = status >= 500
		}
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		perr.Category = "timeout"
		perr.Message = "Request timeout - processing took too long"
		perr.Retryable = true
		return perr
	}

	if errors.Is(err, context.Canceled) {
		perr.Category = "canceled"
		perr.Message = "Request was canceled"
		return perr
	}

	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "quota"):
		perr.Category = "quota_exceeded"
		perr.Message = "API quota exceeded - daily or monthly limit reached"
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		perr.Category = "timeout"
		perr.Message = "Request timeout"
		perr.Retryable = true
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network"):
		perr.Category = "network_error"
		perr.Message = "Network connection error"
		perr.Retryable = true
	}

	return perr
}

// callWithRetry executes an inference call with exponential backoff on
// retryable failures.
func callWithRetry[T any](
	ctx context.Context,
	provider string,
	config RetryConfig,
	call func(context.Context) (T, error),
) (T, error) {
	reqCtx := common.FromContext(ctx)

	var zero T
	var lastErr *ProviderError

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if attempt > 1 {
			reqCtx.LogInfo("Retry attempt %d/%d", attempt, config.MaxAttempts)
		}

		resp, err := call(ctx)
		if err == nil {
			if attempt > 1 {
				reqCtx.LogInfo("✅ Retry succeeded on attempt %d", attempt)
			}
			return resp, nil
		}

		lastErr = categorizeError(provider, err)
		reqCtx.LogError("API call failed (attempt %d/%d): %s", attempt, config.MaxAttempts, lastErr.Error())

		if !lastErr.Retryable {
			return zero, lastErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, config)
		if lastErr.Category == "rate_limit" {
			delay *= 2
			reqCtx.LogWarning("Rate limit hit, waiting %v before retry", delay)
		} else {
			reqCtx.LogInfo("Waiting %v before retry", delay)
		}

		select {
		case <-ctx.Done():
			return zero, categorizeError(provider, fmt.Errorf("context canceled during retry wait: %w", ctx.Err()))
		case <-time.After(delay):
		}
	}

	reqCtx.LogError("All %d attempts failed, last error: %s", config.MaxAttempts, lastErr.Error())
	return zero, lastErr
}

// calculateBackoff computes exponential backoff delay
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt-1))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// UserFriendlyError converts a technical error to an operator-facing payload.
func UserFriendlyError(err error) map[string]interface{} {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return map[string]interface{}{
			"error":   "AI処理に失敗しました",
			"details": err.Error(),
		}
	}

	resp := map[string]interface{}{
		"error":    "AI処理に失敗しました",
		"provider": perr.Provider,
		"category": perr.Category,
		"details":  perr.Message,
	}

	switch perr.Category {
	case "rate_limit":
		resp["suggestion"] = "リクエストが多すぎます。しばらく待ってから再実行してください。"
		resp["retry_after"] = "30-60 seconds"
	case "quota_exceeded":
		resp["suggestion"] = "API の利用上限に達しました。管理者に連絡してください。"
		resp["action_required"] = "upgrade_plan"
	case "unauthorized", "forbidden":
		resp["suggestion"] = "API キーの認証に失敗しました。設定を確認してください。"
		resp["action_required"] = "check_api_key"
	case "payload_too_large":
		resp["suggestion"] = "ファイルが大きすぎます。範囲を選択するか解像度を下げてください。"
		resp["action_required"] = "reduce_image_size"
	case "timeout", "server_error", "network_error":
		resp["suggestion"] = "一時的なエラーです。時間をおいて再実行してください。"
		resp["retry_recommended"] = true
	default:
		resp["suggestion"] = "予期しないエラーが発生しました。"
		resp["retry_recommended"] = false
	}

	return resp
}
