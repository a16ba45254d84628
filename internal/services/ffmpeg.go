package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultTailLines = 20
	defaultThreads   = 2

	// How long Wait may block on output pipes after the child is killed.
	killWaitDelay = 5 * time.Second
)

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

// FFmpegOptions configures the binaries and per-invocation limits.
type FFmpegOptions struct {
	FFmpegPath  string
	FFprobePath string
	Threads     int // -threads for every ffmpeg call
	TailLines   int // lines of diagnostic output kept for errors
}

// FFmpegService runs ffmpeg and ffprobe as child processes. Arguments are
// always passed as a vector; nothing goes through a shell.
type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	threads     int
	tailLines   int
}

func NewFFmpegService(opts FFmpegOptions) *FFmpegService {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.Threads <= 0 {
		opts.Threads = defaultThreads
	}
	if opts.TailLines <= 0 {
		opts.TailLines = defaultTailLines
	}
	return &FFmpegService{
		ffmpegPath:  opts.FFmpegPath,
		ffprobePath: opts.FFprobePath,
		threads:     opts.Threads,
		tailLines:   opts.TailLines,
	}
}

// ProcessError is a failed or timed-out child process with the last lines it
// printed.
type ProcessError struct {
	Label    string
	ExitCode int
	TimedOut bool
	Tail     []string
	Err      error
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	if e.TimedOut {
		fmt.Fprintf(&b, "%s timed out", e.Label)
	} else {
		fmt.Fprintf(&b, "%s exited with code %d", e.Label, e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Tail) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(e.Tail, "\n"))
	}
	return b.String()
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Run executes ffmpeg with args under a timeout. Output on both streams is
// reduced to a bounded tail that is attached to the error on failure.
func (s *FFmpegService) Run(ctx context.Context, label string, timeout time.Duration, args []string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-y", "-threads", strconv.Itoa(s.threads)}, args...)
	tail := newLineTail(s.tailLines)
	return s.exec(ctx, label, s.ffmpegPath, timeout, full, tail, tail)
}

// exec is the core subprocess execution helper shared by ffmpeg and ffprobe.
func (s *FFmpegService) exec(ctx context.Context, label, bin string, timeout time.Duration, args []string, stdout io.Writer, tail *lineTail) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = tail
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = killWaitDelay

	start := time.Now()
	log.Printf("[FFmpeg] %s: %s %s", label, filepath.Base(bin), strings.Join(args, " "))

	err := cmd.Run()
	elapsed := time.Since(start).Round(time.Millisecond)
	if err == nil {
		log.Printf("[FFmpeg] %s finished in %v", label, elapsed)
		return nil
	}

	perr := &ProcessError{Label: label, ExitCode: -1, Tail: tail.Lines(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		perr.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		perr.TimedOut = true
		perr.Err = fmt.Errorf("killed after %v: %w", timeout, ctx.Err())
	}
	log.Printf("[FFmpeg] %s failed after %v (exit=%d, timed_out=%v)", label, elapsed, perr.ExitCode, perr.TimedOut)
	return perr
}

// lineTail is an io.Writer that keeps only the last n complete lines. ffmpeg
// rewrites its progress line with carriage returns, so \r also ends a line.
type lineTail struct {
	mu      sync.Mutex
	n       int
	lines   []string
	partial []byte
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := append(t.partial, p...)
	for {
		idx := bytes.IndexAny(data, "\r\n")
		if idx < 0 {
			break
		}
		t.push(string(data[:idx]))
		data = data[idx+1:]
	}
	t.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (t *lineTail) push(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

// Lines returns the retained lines, including an unterminated last line.
func (t *lineTail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := append([]string(nil), t.lines...)
	if last := strings.TrimSpace(string(t.partial)); last != "" {
		out = append(out, last)
		if len(out) > t.n {
			out = out[len(out)-t.n:]
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Argument builders. These are pure so they can be checked without ffmpeg.
// ---------------------------------------------------------------------------

// EncodeSettings are the shared H.264 output settings. Every clip uses the
// same settings so the concat demuxer can join them by stream copy.
type EncodeSettings struct {
	FPS    int
	Preset string
	CRF    int
}

func (e EncodeSettings) args() []string {
	preset := e.Preset
	if preset == "" {
		preset = "veryfast"
	}
	crf := e.CRF
	if crf <= 0 {
		crf = 20
	}
	return []string{
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(e.FPS),
	}
}

// ClipArgs renders one still image into a silent clip of exactly frames
// frames. zoompan emits all frames from the single input image.
func ClipArgs(imagePath, outputPath, filter string, frames int, enc EncodeSettings) []string {
	args := []string{
		"-i", imagePath,
		"-vf", filter,
		"-frames:v", strconv.Itoa(frames),
	}
	args = append(args, enc.args()...)
	return append(args, "-an", "-movflags", "+faststart", outputPath)
}

// ConcatArgs joins the clips in a concat list by stream copy.
func ConcatArgs(listPath, outputPath string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}
}

// TransitionArgs runs a -filter_complex over the clip inputs and encodes the
// mapped pad.
func TransitionArgs(inputs []string, graph, outPad, outputPath string, enc EncodeSettings) []string {
	var args []string
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "["+outPad+"]",
	)
	args = append(args, enc.args()...)
	return append(args, "-an", "-movflags", "+faststart", outputPath)
}

// WriteConcatList writes an ffmpeg concat demuxer list to listPath.
// It verifies each clip path exists before writing.
func WriteConcatList(listPath string, clipPaths []string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}
	var missing []string
	for _, p := range clipPaths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %d clip file(s): %s", len(missing), strings.Join(missing, ", "))
	}

	var b strings.Builder
	for _, p := range clipPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		// Escape single quotes in paths for the concat file format.
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return nil
}
