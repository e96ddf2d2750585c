// SPDX-License-Identifier: MPL-2.0

package confinity

import (
	"io"
	"log/slog"
	"time"

	"github.com/rohanprabhu-jm/confinity/internal/bundle"
	"github.com/rohanprabhu-jm/confinity/internal/container"
	"github.com/rohanprabhu-jm/confinity/internal/image"
	"github.com/rohanprabhu-jm/confinity/internal/reaper"
)

// DefaultImageName is the tag given to the sandbox image.
const DefaultImageName = "confinity-local"

type (
	// Option configures a Runtime.
	Option func(*settings)

	settings struct {
		engine             container.Engine
		engineType         container.EngineType
		engineHost         string
		logger             *slog.Logger
		locator            bundle.Locator
		vendored           []string
		suffixes           map[string]string
		imageName          container.ImageTag
		baseImage          string
		cleanupInterval    time.Duration
		cleanupConcurrency int
		leakAfter          int
		clock              reaper.Clock
		stagingDir         string
		keepStaging        bool
		callTimeout        time.Duration
		buildOutput        io.Writer
		noCache            bool
	}
)

func defaultSettings() settings {
	return settings{
		logger:             slog.Default(),
		suffixes:           bundle.DefaultSuffixes(),
		imageName:          DefaultImageName,
		baseImage:          image.DefaultBaseImage,
		cleanupInterval:    reaper.DefaultInterval,
		cleanupConcurrency: reaper.DefaultConcurrency,
		leakAfter:          reaper.DefaultLeakAfter,
	}
}

// WithEngine sets the container engine. Without it the engine is detected
// lazily on first use.
func WithEngine(engine container.Engine) Option {
	return func(s *settings) {
		s.engine = engine
	}
}

// WithEngineType selects which engine lazy detection constructs, and the
// daemon host it connects to. An empty type probes every engine.
func WithEngineType(t container.EngineType, host string) Option {
	return func(s *settings) {
		s.engineType = t
		s.engineHost = host
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocator resolves extra dependency units. Generated handler units and
// the dispatcher executable are always available.
func WithLocator(l bundle.Locator) Option {
	return func(s *settings) {
		s.locator = l
	}
}

// WithVendored lists support files copied into the image library path.
func WithVendored(paths ...string) Option {
	return func(s *settings) {
		s.vendored = append(s.vendored, paths...)
	}
}

// WithVendoredSuffixes replaces the staging-only suffix translations.
func WithVendoredSuffixes(suffixes map[string]string) Option {
	return func(s *settings) {
		s.suffixes = suffixes
	}
}

// WithImageName sets the sandbox image tag.
func WithImageName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.imageName = container.ImageTag(name)
		}
	}
}

// WithBaseImage sets the image the sandbox is built from.
func WithBaseImage(ref string) Option {
	return func(s *settings) {
		if ref != "" {
			s.baseImage = ref
		}
	}
}

// WithCleanupInterval sets the delay between background reclamation passes.
// Zero disables the background loop; Close still reclaims everything.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *settings) {
		s.cleanupInterval = d
	}
}

// WithCleanupConcurrency bounds concurrent removals.
func WithCleanupConcurrency(n int) Option {
	return func(s *settings) {
		s.cleanupConcurrency = n
	}
}

// WithLeakAfter sets after how many failed passes a container is reported leaked.
func WithLeakAfter(n int) Option {
	return func(s *settings) {
		s.leakAfter = n
	}
}

// WithClock replaces the clock driving background reclamation.
func WithClock(c reaper.Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithStagingDir sets the parent directory of the staging directory.
func WithStagingDir(dir string) Option {
	return func(s *settings) {
		s.stagingDir = dir
	}
}

// WithKeepStaging leaves the staging directory in place on Close.
func WithKeepStaging(keep bool) Option {
	return func(s *settings) {
		s.keepStaging = keep
	}
}

// WithCallTimeout bounds each call. Zero means no timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.callTimeout = d
	}
}

// WithBuildOutput forwards the engine's image build progress to w.
func WithBuildOutput(w io.Writer) Option {
	return func(s *settings) {
		s.buildOutput = w
	}
}

// WithNoCache builds the sandbox image without the engine's layer cache.
func WithNoCache(noCache bool) Option {
	return func(s *settings) {
		s.noCache = noCache
	}
}
