package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/ollamatray-io/ollamatray/internal/service"
)

const iconSize = 22

// Status dot colors: green running, gray stopped, amber unknown. Green
// and gray match the desktop theme the utility replaced.
var (
	colorRunning = color.NRGBA{R: 0, G: 180, B: 0, A: 255}
	colorStopped = color.NRGBA{R: 160, G: 160, B: 160, A: 255}
	colorUnknown = color.NRGBA{R: 230, G: 168, B: 23, A: 255}
)

var icons = map[service.State][]byte{
	service.StateRunning: renderDot(colorRunning),
	service.StateStopped: renderDot(colorStopped),
	service.StateUnknown: renderDot(colorUnknown),
}

// stateIcon returns the PNG status dot for a state.
func stateIcon(st service.State) []byte {
	if icon, ok := icons[st]; ok {
		return icon
	}
	return icons[service.StateUnknown]
}

// renderDot draws an anti-aliased filled circle on a transparent square
// and encodes it as PNG.
func renderDot(c color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))

	center := float64(iconSize) / 2
	radius := center - 1.5

	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx := float64(x) + 0.5 - center
			dy := float64(y) + 0.5 - center
			dist := math.Sqrt(dx*dx + dy*dy)

			switch {
			case dist <= radius:
				img.SetNRGBA(x, y, c)
			case dist <= radius+1:
				edge := c
				edge.A = uint8(float64(c.A) * (radius + 1 - dist))
				img.SetNRGBA(x, y, edge)
			}
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
