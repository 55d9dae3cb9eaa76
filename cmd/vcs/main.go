// vcs runs an Atari 2600 cart in an SDL window:
//
//	vcs -cart <path> [-scale N] [-mode NTSC|PAL|SECAM] [-debug]
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"io/ioutil"
	"log"
	"net/http"
	_ "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/retrosilicon/vcs6502/atari2600"
	"github.com/retrosilicon/vcs6502/io"
	"github.com/retrosilicon/vcs6502/tia"
	"github.com/veandco/go-sdl2/sdl"
	xdraw "golang.org/x/image/draw"
)

var (
	debug       = flag.Bool("debug", false, "If true will emit full CPU/TIA/PIA debugging while running")
	cart        = flag.String("cart", "", "Path to cart image to load")
	scale       = flag.Int("scale", 1, "Scale factor to render screen")
	port        = flag.Int("port", 6060, "Port to run HTTP server for pprof")
	advance     = flag.Bool("advance", true, "If true the game select will be toggled to advance the play screen")
	advanceRate = flag.Int("advance_rate", 60, "After how many frames to toggle the game select")
	mode        = flag.String("mode", "NTSC", "Either NTSC, PAL or SECAM (case insensitive) to determine video mode")
)

type swtch struct {
	b bool
}

func (s *swtch) Input() bool {
	return s.b
}

type fastImage struct {
	surface *sdl.Surface
	data    []byte
}

func (f *fastImage) Set(x, y int, c color.Color) {
	// Calculate and poke the values in directly which avoids a call to Convert
	// that Surface.Set does which chews measurable CPU because of GC'ing color.Color.
	// The scaler feeds us NRGBA samples from the TIA frame, so convert explicitly
	// rather than assume the caller already handed us color.RGBA.
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	i := int32(y)*f.surface.Pitch + int32(x)*int32(f.surface.Format.BytesPerPixel)
	f.data[i+0] = rgba.R
	f.data[i+1] = rgba.G
	f.data[i+2] = rgba.B
	f.data[i+3] = rgba.A
}

func (f *fastImage) ColorModel() color.Model {
	return f.surface.ColorModel()
}

func (f *fastImage) Bounds() image.Rectangle {
	return f.surface.Bounds()
}

func (f *fastImage) At(x, y int) color.Color {
	return f.surface.At(x, y)
}

func main() {
	flag.Parse()

	vidMode := strings.ToUpper(*mode)
	var tiaMode tia.TIAMode
	var h, w int
	switch vidMode {
	case "NTSC":
		tiaMode = tia.TIA_MODE_NTSC
		h = tia.NTSCHeight
		w = tia.NTSCWidth
	case "PAL":
		tiaMode = tia.TIA_MODE_PAL
		h = tia.PALHeight
		w = tia.PALWidth
	case "SECAM":
		tiaMode = tia.TIA_MODE_SECAM
		h = tia.SECAMHeight
		w = tia.SECAMWidth
	default:
		log.Fatalf("Invalid video mode %q - Must be NTSC, PAL or SECAM\n", vidMode)
	}

	go func() {
		log.Println(http.ListenAndServe(fmt.Sprintf("localhost:%d", *port), nil))
	}()
	var window *sdl.Window
	fi := &fastImage{}

	sdl.Main(func() {
		var wg sync.WaitGroup
		wg.Add(1)
		sdl.Do(func() {
			if err := sdl.Init(sdl.INIT_EVERYTHING); err != nil {
				log.Fatalf("Can't init SDL: %v", err)
			}

			var err error
			window, err = sdl.CreateWindow("vcs", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(w**scale), int32(h**scale), sdl.WINDOW_SHOWN)
			if err != nil {
				log.Fatalf("Can't create window: %v", err)
			}
			fi.surface, err = window.GetSurface()
			if err != nil {
				log.Fatalf("Can't get window surface: %v", err)
			}
			fi.data = fi.surface.Pixels()
			wg.Done()
		})

		game := &swtch{false}

		// Luckily carts are so tiny by modern standards we just read it in.
		// Size validation (2k/4k only) happens in atari2600.Init.
		rom, err := ioutil.ReadFile(*cart)
		if err != nil {
			log.Fatalf("Can't load rom: %v from path: %s", err, *cart)
		}
		wg.Wait()
		defer func() {
			window.Destroy()
			sdl.Quit()
		}()

		now := time.Now()
		var tot, cnt time.Duration
		a, err := atari2600.Init(&atari2600.VCSDef{
			Mode:       tiaMode,
			Difficulty: [2]io.PortIn1{&swtch{false}, &swtch{false}},
			ColorBW:    &swtch{true},
			GameSelect: game,
			Reset:      &swtch{false},
			FrameDone: func(frame *image.NRGBA) {
				sdl.Do(func() {
					dr := image.Rect(0, 0, w**scale, h**scale)
					xdraw.NearestNeighbor.Scale(fi, dr, frame, frame.Bounds(), xdraw.Over, nil)

					df := time.Now().Sub(now)
					tot += df
					cnt++
					if *advance && int(cnt)%*advanceRate == 0 {
						game.b = !game.b
					}
					fmt.Printf("Frame took %s average %s\n", df, tot/cnt)
					window.UpdateSurface()
					now = time.Now()
				})
			},
			Rom:   []uint8(rom),
			Debug: *debug,
		})
		if err != nil {
			log.Fatalf("Can't init VCS: %v", err)
		}
		for {
			if err := a.Tick(); err != nil {
				log.Fatalf("Tick error: %v", err)
			}
		}
	})
}
