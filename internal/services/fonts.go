package services

import (
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Font use cases.
const (
	FontHeadline = "headline"
	FontBody     = "body"
	FontSymbol   = "symbol"
)

var fontCandidates = map[string][]string{
	FontHeadline: {"Montserrat-ExtraBold.ttf", "Inter-Bold.ttf", "Roboto-Bold.ttf", "DejaVuSans-Bold.ttf", "LiberationSans-Bold.ttf"},
	FontBody:     {"Inter-SemiBold.ttf", "Inter-Regular.ttf", "Roboto-Regular.ttf", "DejaVuSans.ttf", "LiberationSans-Regular.ttf"},
	FontSymbol:   {"DejaVuSans.ttf", "NotoSansSymbols2-Regular.ttf", "FreeSans.ttf"},
}

var systemFontDirs = []string{
	"/usr/share/fonts/truetype/dejavu",
	"/usr/share/fonts/truetype/liberation",
	"/usr/share/fonts/truetype/freefont",
	"/usr/share/fonts/TTF",
	"/usr/share/fonts",
	"/Library/Fonts",
}

// FontResolver finds a font file for a use case. A use case with no font on
// disk resolves to "" so drawtext falls back to ffmpeg's default font.
type FontResolver struct {
	dirs []string

	mu    sync.Mutex
	cache map[string]string
}

// NewFontResolver searches fontDir first, then the usual system locations.
func NewFontResolver(fontDir string) *FontResolver {
	var dirs []string
	if fontDir != "" {
		dirs = append(dirs, fontDir)
	}
	dirs = append(dirs, systemFontDirs...)
	return &FontResolver{dirs: dirs, cache: make(map[string]string)}
}

// ResolveFont returns the path of the first candidate found for useCase.
func (r *FontResolver) ResolveFont(useCase string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path, ok := r.cache[useCase]; ok {
		return path, path != ""
	}

	candidates, ok := fontCandidates[useCase]
	if !ok {
		candidates = fontCandidates[FontBody]
	}

	path := ""
	for _, dir := range r.dirs {
		for _, name := range candidates {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				path = p
				break
			}
		}
		if path != "" {
			break
		}
	}

	if path == "" {
		log.Printf("[Fonts] No font found for %s, using ffmpeg default", useCase)
	}
	r.cache[useCase] = path
	return path, path != ""
}
