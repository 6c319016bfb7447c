package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseURLMeta(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want map[string]string
	}{
		{
			name: "lower-case stay keys",
			url:  "https://www.booking.com/hotel/x.html?checkin=2025-11-12&checkout=2025-11-13&adults=2&rooms=1",
			want: map[string]string{"checkin": "2025-11-12", "checkout": "2025-11-13", "adults": "2", "rooms": "1"},
		},
		{
			name: "camel-case stay keys",
			url:  "https://www.agoda.com/hotel/x.html?checkIn=2025-11-12&checkOut=2025-11-13&adults=2&rooms=1&los=1",
			want: map[string]string{"checkin": "2025-11-12", "checkout": "2025-11-13", "adults": "2", "rooms": "1", "los": "1"},
		},
		{
			name: "exact key wins over other spellings",
			url:  "https://www.agoda.com/hotel/x.html?CHECKIN=2025-01-01&checkin=2025-11-12",
			want: map[string]string{"checkin": "2025-11-12", "checkout": "", "adults": "", "rooms": ""},
		},
		{
			name: "other keys keep their case",
			url:  "https://www.coupang.com/vp/products/1?itemId=9&vendorItemId=7",
			want: map[string]string{"checkin": "", "checkout": "", "adults": "", "rooms": "", "itemId": "9", "vendorItemId": "7"},
		},
		{
			name: "unparseable url",
			url:  "://bad",
			want: map[string]string{"checkin": "", "checkout": "", "adults": "", "rooms": ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseURLMeta(tt.url))
		})
	}
}
