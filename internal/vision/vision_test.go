package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ecoclassify/internal/domain"
)

func TestParseRawAnalysis(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		raw, err := ParseRawAnalysis(`{"category":"potholes","severity":72,"scale":"large pothole","justification":"deep hole","objects":["road","hole"],"indoor_household":false,"confidence":0.9}`)
		require.NoError(t, err)
		assert.Equal(t, "potholes", raw.Category)
		assert.Equal(t, json.Number("72"), raw.Severity)
		assert.Equal(t, "large pothole", raw.Scale)
		assert.Equal(t, []string{"road", "hole"}, raw.Objects)
		require.NotNil(t, raw.Confidence)
		assert.InDelta(t, 0.9, *raw.Confidence, 1e-9)
	})

	t.Run("code fence and prose", func(t *testing.T) {
		raw, err := ParseRawAnalysis("Here you go:\n```json\n{\"category\": \"garbage\", \"severity\": \"40\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, "garbage", raw.Category)
		assert.Equal(t, "40", raw.Severity)
	})

	t.Run("repairable json", func(t *testing.T) {
		raw, err := ParseRawAnalysis(`{"category": "deforestation", "severity": 88, "scale": "extensive clearing",}`)
		require.NoError(t, err)
		assert.Equal(t, "deforestation", raw.Category)
		assert.Equal(t, "extensive clearing", raw.Scale)
	})

	t.Run("legacy field names", func(t *testing.T) {
		raw, err := ParseRawAnalysis(`{"category":"reject","is_indoor_household":true,"reasoning":"kitchen bin","objects_detected":["bin"]}`)
		require.NoError(t, err)
		assert.True(t, raw.IndoorHousehold)
		assert.Equal(t, "kitchen bin", raw.Justification)
		assert.Equal(t, []string{"bin"}, raw.Objects)
	})

	t.Run("wrong typed optional fields are dropped", func(t *testing.T) {
		raw, err := ParseRawAnalysis(`{"category":"garbage","scale":12,"objects":"many","indoor_household":"no","confidence":"high"}`)
		require.NoError(t, err)
		assert.Empty(t, raw.Scale)
		assert.Nil(t, raw.Objects)
		assert.False(t, raw.IndoorHousehold)
		assert.Nil(t, raw.Confidence)
	})

	t.Run("missing severity is kept as nil", func(t *testing.T) {
		raw, err := ParseRawAnalysis(`{"category":"garbage"}`)
		require.NoError(t, err)
		assert.Nil(t, raw.Severity)
	})

	malformed := map[string]string{
		"empty":            "",
		"plain text":       "I cannot help with that.",
		"missing category": `{"severity": 10}`,
		"category not str": `{"category": 3}`,
	}
	for name, content := range malformed {
		t.Run("malformed "+name, func(t *testing.T) {
			_, err := ParseRawAnalysis(content)
			require.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestUpstreamErrorTemporary(t *testing.T) {
	assert.True(t, (&UpstreamError{StatusCode: 429, Err: errors.New("x")}).Temporary())
	assert.True(t, (&UpstreamError{StatusCode: 503, Err: errors.New("x")}).Temporary())
	assert.False(t, (&UpstreamError{StatusCode: 400, Err: errors.New("x")}).Temporary())
}

func chatResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": content},
		}},
		"usage": map[string]interface{}{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *OpenAIModel {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	model, err := NewOpenAIModel(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"}, nil)
	require.NoError(t, err)
	return model
}

func TestOpenAIModelSendsImageAndSchema(t *testing.T) {
	var captured map[string]interface{}
	model := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse(`{"category":"garbage","severity":35,"scale":"small pile","justification":"litter on sidewalk","description":"","objects":[],"environment":"urban","indoor_household":false,"confidence":0.8}`))
	})

	raw, err := model.GenerateStructuredAnalysis(context.Background(), &domain.Image{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "garbage", raw.Category)
	assert.Equal(t, "small pile", raw.Scale)
	assert.Equal(t, DefaultModel, model.Name())

	assert.Equal(t, DefaultModel, captured["model"])
	format := captured["response_format"].(map[string]interface{})
	assert.Equal(t, "json_schema", format["type"])

	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})
	parts := user["content"].([]interface{})
	require.Len(t, parts, 2)
	imagePart := parts[1].(map[string]interface{})
	url := imagePart["image_url"].(map[string]interface{})["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
}

func TestOpenAIModelMalformedContent(t *testing.T) {
	model := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse("sorry, no JSON today"))
	})

	_, err := model.GenerateStructuredAnalysis(context.Background(), &domain.Image{Data: []byte{1}})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestOpenAIModelUpstreamFailure(t *testing.T) {
	calls := 0
	model := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	_, err := model.GenerateStructuredAnalysis(context.Background(), &domain.Image{Data: []byte{1}})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusServiceUnavailable, upstream.StatusCode)
	assert.True(t, upstream.Temporary())
	assert.Equal(t, 1, calls)
}

func TestOpenAIModelCancelledContext(t *testing.T) {
	model := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := model.GenerateStructuredAnalysis(ctx, &domain.Image{Data: []byte{1}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewOpenAIModelRequiresKey(t *testing.T) {
	_, err := NewOpenAIModel(OpenAIConfig{}, nil)
	require.Error(t, err)
}
