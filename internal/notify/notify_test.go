// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetLink(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		token   string
		want    string
	}{
		{
			name:    "plain base",
			baseURL: "https://studyshare.example/reset",
			token:   "abc123",
			want:    "https://studyshare.example/reset?token=abc123",
		},
		{
			name:    "existing query preserved",
			baseURL: "https://studyshare.example/reset?lang=de",
			token:   "abc123",
			want:    "https://studyshare.example/reset?lang=de&token=abc123",
		},
		{
			name:    "token escaped",
			baseURL: "https://studyshare.example/reset",
			token:   "a+b/c",
			want:    "https://studyshare.example/reset?token=a%2Bb%2Fc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResetLink(tt.baseURL, tt.token))
		})
	}
}

func TestResetBody(t *testing.T) {
	body := ResetBody("https://studyshare.example/reset?token=abc")

	assert.Contains(t, body, "https://studyshare.example/reset?token=abc")
	assert.Contains(t, body, "password reset")
}

func TestLogDeliverer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	d := NewLogDeliverer(logger, "https://studyshare.example/reset")

	err := d.DeliverResetLink(context.Background(), "alice@uni.example", "tok-1")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "alice@uni.example")
	assert.Contains(t, out, "token=tok-1")
}

func TestNewLogDelivererNilLogger(t *testing.T) {
	d := NewLogDeliverer(nil, "https://studyshare.example/reset")

	assert.NotNil(t, d)
	assert.NoError(t, d.DeliverResetLink(context.Background(), "bob@uni.example", "tok-2"))
}
