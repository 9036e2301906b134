package fingerprint

import (
	"image"
	"image/color"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HammingDistance(tc.hash1, tc.hash2); got != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d", tc.hash1, tc.hash2, got, tc.expected)
			}
		})
	}
}

func TestSimilar(t *testing.T) {
	if !Similar(0x0, 0x3FF, 10) {
		t.Error("10 bits apart should be similar at threshold 10")
	}
	if Similar(0x0, 0x7FF, 10) {
		t.Error("11 bits apart should not be similar at threshold 10")
	}
}

func gradient(w, h int, reverse bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(x * 255 / (w - 1))
			if reverse {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestDHash(t *testing.T) {
	a := DHash(gradient(90, 80, false))
	b := DHash(gradient(180, 160, false))
	c := DHash(gradient(90, 80, true))

	if !Similar(a, b, 4) {
		t.Errorf("same content at different sizes: %s vs %s", FormatHash(a), FormatHash(b))
	}
	if Similar(a, c, 10) {
		t.Errorf("mirrored gradient should differ: %s vs %s", FormatHash(a), FormatHash(c))
	}
	if len(FormatHash(a)) != 16 {
		t.Errorf("FormatHash length = %d", len(FormatHash(a)))
	}
}
