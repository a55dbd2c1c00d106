package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDurationConcise(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{14 * 24 * time.Hour, "14d"},
		{3 * time.Hour, "3h"},
		{90 * time.Minute, "90m"},
		{5 * time.Second, "5s"},
		{1500 * time.Millisecond, "1.5s"},
		{0, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDurationConcise(tt.in), tt.in.String())
	}
}

func TestAccessibleURLs(t *testing.T) {
	urls := AccessibleURLs(28090)
	assert.GreaterOrEqual(t, len(urls), 2)
	assert.Equal(t, "http://localhost:28090", urls[0])
	assert.Equal(t, "http://127.0.0.1:28090", urls[1])
}
