// Package av wraps the external ffmpeg tool for the two jobs the
// resolver cannot do itself: muxing reddit's split audio and video
// streams back into one container, and turning short clips into gifs.
package av

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/go-faster/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Size tiers for the gif conversion. Bigger inputs trade frame rate and
// scale for a gif that stays shareable.
const (
	gifLargeInput  = 4 * 1024 * 1024
	gifMediumInput = 1 * 1024 * 1024
)

// Available returns true if ffmpeg is found
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Mux combines a video elementary stream with its audio counterpart into
// one playable mp4. Both streams are copied, not re-encoded.
func Mux(video, audio []byte) ([]byte, error) {
	videoFile, err := tempInput("video-*.mp4", video)
	if err != nil {
		return nil, err
	}
	defer os.Remove(videoFile)
	audioFile, err := tempInput("audio-*.mp4", audio)
	if err != nil {
		return nil, err
	}
	defer os.Remove(audioFile)

	outputFile, err := tempOutput("muxed-*.mp4")
	if err != nil {
		return nil, err
	}
	defer os.Remove(outputFile)

	err = ffmpeg.Output(
		[]*ffmpeg.Stream{ffmpeg.Input(videoFile), ffmpeg.Input(audioFile)},
		outputFile,
		ffmpeg.KwArgs{
			"map":      []string{"0:v:0", "1:a:0"},
			"movflags": "+faststart",
			"c:v":      "copy",
			"c:a":      "copy",
		}).
		Silent(true).
		OverWriteOutput().
		Run()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg failed to mux streams")
	}
	return os.ReadFile(outputFile)
}

// ConvertToGIF transcodes an mp4 clip into an animated gif. Frame rate
// and scale adapt to the input size.
func ConvertToGIF(video []byte) ([]byte, error) {
	videoFile, err := tempInput("clip-*.mp4", video)
	if err != nil {
		return nil, err
	}
	defer os.Remove(videoFile)

	outputFile, err := tempOutput("clip-*.gif")
	if err != nil {
		return nil, err
	}
	defer os.Remove(outputFile)

	err = ffmpeg.Input(videoFile).
		Output(outputFile, ffmpeg.KwArgs{
			"vf":   gifFilter(len(video)),
			"loop": "-1",
		}).
		Silent(true).
		OverWriteOutput().
		Run()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg failed to build the gif")
	}
	return os.ReadFile(outputFile)
}

// gifFilter picks an fps/scale filter chain for the input size
func gifFilter(inputSize int) string {
	fps, scale := 15, 0
	switch {
	case inputSize >= gifLargeInput:
		fps, scale = 10, 320
	case inputSize >= gifMediumInput:
		fps, scale = 15, 480
	}
	if scale > 0 {
		return fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse", fps, scale)
	}
	return fmt.Sprintf("fps=%d,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse", fps)
}

// tempInput writes a payload into a temp file for ffmpeg to consume
func tempInput(pattern string, payload []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", errors.Wrap(err, "unable to create a temporary file")
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "unable to write the temporary file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "unable to close the temporary file")
	}
	return f.Name(), nil
}

// tempOutput reserves a temp file name for ffmpeg to write into
func tempOutput(pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", errors.Wrap(err, "unable to create a temporary file")
	}
	name := f.Name()
	_ = f.Close()
	return name, nil
}
