package oic_test

import (
	"encoding/json"
	"testing"

	"github.com/WolVesz/oic-devops/pkg/oic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResourceKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  oic.ResourceKind
	}{
		{"connection", oic.KindConnection},
		{"connections", oic.KindConnection},
		{"libraries", oic.KindLibrary},
		{"library", oic.KindLibrary},
		{"instances", oic.KindInstance},
		{"packages", oic.KindPackage},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			kind, err := oic.ParseResourceKind(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}

	_, err := oic.ParseResourceKind("widgets")
	require.ErrorIs(t, err, oic.ErrUnknownResourceKind)
}

func TestObject_Accessors(t *testing.T) {
	t.Parallel()

	var obj oic.Object

	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "HELLO|01.00.0000",
		"name": "Hello",
		"status": "ACTIVATED",
		"totalResults": 12,
		"hasMore": "true",
		"schedule": {"enabled": true, "frequency": "DAILY"},
		"references": [{"type": "CONNECTION", "id": "REST"}, "junk"]
	}`), &obj))

	assert.Equal(t, "HELLO|01.00.0000", obj.ID())
	assert.Equal(t, "Hello", obj.Name())
	assert.Equal(t, "ACTIVATED", obj.Status())
	assert.Equal(t, "12", obj.String("totalResults"))
	assert.Equal(t, "fallback", obj.StringOr("missing", "fallback"))

	total, ok := obj.Int("totalResults")
	assert.True(t, ok)
	assert.Equal(t, 12, total)

	hasMore, ok := obj.Bool("hasMore")
	assert.True(t, ok)
	assert.True(t, hasMore)

	assert.Equal(t, "DAILY", obj.Map("schedule").String("frequency"))
	assert.Len(t, obj.Objects("references"), 1)
	assert.Nil(t, obj.Map("missing"))
}

func TestObject_CloneIsDeep(t *testing.T) {
	t.Parallel()

	original := oic.Object{
		"schedule": map[string]interface{}{"enabled": true},
		"tags":     []interface{}{"a", map[string]interface{}{"k": "v"}},
	}

	clone := original.Clone()
	clone.Map("schedule")["enabled"] = false
	clone.Slice("tags")[0] = "changed"

	enabled, _ := original.Map("schedule").Bool("enabled")
	assert.True(t, enabled)
	assert.Equal(t, "a", original.Slice("tags")[0])

	_, isPlainMap := clone["schedule"].(map[string]interface{})
	assert.True(t, isPlainMap)
}

func TestResourceRef_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "connection/REST", oic.ResourceRef{Kind: oic.KindConnection, ID: "REST"}.String())
	assert.Equal(t, "lookup/L (Countries)", oic.ResourceRef{Kind: oic.KindLookup, ID: "L", Name: "Countries"}.String())
}
