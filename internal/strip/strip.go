package strip

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"

	"github.com/jpalmerr/ledsim/internal/store"
)

// DefaultFreq is the SPI clock used for NRZ strips (WS2812 family).
const DefaultFreq = 2500 * physic.KiloHertz

// Style maps LED activity to colours.
type Style struct {
	On  color.NRGBA
	Off color.NRGBA
}

// DefaultStyle draws active LEDs white and inactive ones dark grey.
var DefaultStyle = Style{
	On:  color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	Off: color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff},
}

// Strip is a render sink that draws the LED array onto a one-dimensional
// periph display, such as an nrzled strip or the console emulator.
//
// LED i is pixel i. Positions are ignored.
type Strip struct {
	mu     sync.Mutex
	drawer display.Drawer
	style  Style
	img    *image.NRGBA
	closer func() error
}

// New wraps drawer for n LEDs.
func New(drawer display.Drawer, n int, style Style) *Strip {
	return &Strip{
		drawer: drawer,
		style:  style,
		img:    image.NewNRGBA(image.Rect(0, 0, n, 1)),
	}
}

// NewConsole returns a strip that prints n LEDs as ANSI colours on stdout.
func NewConsole(n int, style Style) *Strip {
	return New(screen.New(n), n, style)
}

// OpenSPI initialises the host drivers and opens an nrzled strip with n LEDs
// on the named SPI port. An empty name picks the first available port.
func OpenSPI(name string, n int, freq physic.Frequency, style Style) (*Strip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise periph host: %w", err)
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", name, err)
	}

	s, err := newSPI(port, n, freq, style)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	s.closer = port.Close
	return s, nil
}

// newSPI builds an nrzled strip on an already opened port.
func newSPI(port spi.Port, n int, freq physic.Frequency, style Style) (*Strip, error) {
	if freq == 0 {
		freq = DefaultFreq
	}
	dev, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: n,
		Channels:  3,
		Freq:      freq,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open nrzled strip: %w", err)
	}
	return New(dev, n, style), nil
}

// SetPositions is a no-op: a strip is ordered by LED index.
func (s *Strip) SetPositions([]store.Position) error {
	return nil
}

// SetActivity paints one pixel per LED and draws the strip.
//
// Extra flags beyond the strip length are ignored; missing ones are drawn off.
func (s *Strip) SetActivity(activity []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	width := s.img.Bounds().Dx()
	for i := 0; i < width; i++ {
		c := s.style.Off
		if i < len(activity) && activity[i] {
			c = s.style.On
		}
		s.img.SetNRGBA(i, 0, c)
	}

	if err := s.drawer.Draw(s.drawer.Bounds(), s.img, image.Point{}); err != nil {
		return fmt.Errorf("failed to draw strip: %w", err)
	}
	return nil
}

// Pixels returns a copy of the last painted frame.
func (s *Strip) Pixels() []color.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	width := s.img.Bounds().Dx()
	out := make([]color.NRGBA, width)
	for i := range out {
		out[i] = s.img.NRGBAAt(i, 0)
	}
	return out
}

// Close halts the device and releases the port, if any.
func (s *Strip) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.drawer.Halt()
	if s.closer != nil {
		err = errors.Join(err, s.closer())
		s.closer = nil
	}
	return err
}
