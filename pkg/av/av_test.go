package av

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGifFilter(t *testing.T) {
	tests := []struct {
		Name      string
		InputSize int
		Expected  string
	}{
		{
			Name:      "small_clip_keeps_full_scale",
			InputSize: 512 * 1024,
			Expected:  "fps=15,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		},
		{
			Name:      "medium_clip_scales_to_480",
			InputSize: 2 * 1024 * 1024,
			Expected:  "fps=15,scale=480:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		},
		{
			Name:      "large_clip_drops_frames_too",
			InputSize: 8 * 1024 * 1024,
			Expected:  "fps=10,scale=320:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		},
		{
			Name:      "tier_boundaries_round_up",
			InputSize: gifLargeInput,
			Expected:  "fps=10,scale=320:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			assert.Equal(t, test.Expected, gifFilter(test.InputSize))
		})
	}
}
