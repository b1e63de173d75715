// Package symbolize turns program counters into source locations for
// deadlock reports.
//
// Two backends exist. The default resolves frames in-process through
// runtime.CallersFrames, which always works for the binary's own code.
// Optionally an external symbolizer subprocess can be configured (any tool
// speaking the llvm-symbolizer stdin/stdout contract): the runtime starts
// it once, keeps the pipes open for its lifetime, and queries it one PC
// per line. The external path exists for stripped binaries and for
// matching the reporting pipeline of the C++ sanitizer runtimes; if the
// subprocess cannot be started or dies more than once, the runtime backend
// silently takes over rather than losing the report.
//
// Results are cached per PC. Reports tend to re-resolve the same few
// acquisition sites, and a subprocess round trip is far too slow to repeat.
package symbolize

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// Frame is one resolved stack frame. With an external symbolizer a single
// PC may resolve to several frames when the call was inlined.
type Frame struct {
	Function string
	File     string
	Line     int
}

// unknownFunc is reported when neither backend can resolve a PC.
const unknownFunc = "??"

// maxRestarts is how many times a dead external subprocess is restarted
// before the runtime backend takes over for good.
const maxRestarts = 1

// Symbolizer resolves program counters to frames.
//
// Safe for concurrent use: the subprocess pipes are guarded by an internal
// lock and the cache is lock-free for hits. Symbolization runs only while
// formatting a report, never on the lock hooks themselves.
type Symbolizer struct {
	mu       sync.Mutex
	path     string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *bufio.Reader
	broken   bool
	restarts int

	cache sync.Map // uintptr -> []Frame
}

// Runtime returns a symbolizer backed only by runtime.CallersFrames.
func Runtime() *Symbolizer {
	return &Symbolizer{}
}

// External returns a symbolizer that queries the tool at path, started
// immediately so a missing or broken tool surfaces at configuration time
// rather than at the first report.
func External(path string) (*Symbolizer, error) {
	s := &Symbolizer{path: path}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.start(); err != nil {
		return nil, fmt.Errorf("symbolize: starting %q: %w", path, err)
	}
	return s, nil
}

// Symbolize resolves one program counter. It never fails: when everything
// else falls through it returns a single "??" frame so report formatting
// stays total.
func (s *Symbolizer) Symbolize(pc uintptr) []Frame {
	if pc == 0 {
		return []Frame{{Function: unknownFunc}}
	}
	if cached, ok := s.cache.Load(pc); ok {
		return cached.([]Frame)
	}

	var frames []Frame
	if s.path != "" {
		frames = s.symbolizeExternal(pc)
	}
	if len(frames) == 0 {
		frames = symbolizeRuntime(pc)
	}
	s.cache.Store(pc, frames)
	return frames
}

// Close terminates the external subprocess, if any.
func (s *Symbolizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop()
}

// symbolizeRuntime resolves a PC against the binary's own symbol table.
func symbolizeRuntime(pc uintptr) []Frame {
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.Function == "" && f.File == "" {
		return []Frame{{Function: unknownFunc}}
	}
	fn := f.Function
	if fn == "" {
		fn = unknownFunc
	}
	return []Frame{{Function: fn, File: f.File, Line: f.Line}}
}

// symbolizeExternal queries the subprocess, restarting it once on pipe
// failure. Returns nil when the external path is unusable so the caller
// falls back.
func (s *Symbolizer) symbolizeExternal(pc uintptr) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.broken {
			return nil
		}
		if s.cmd == nil {
			if err := s.start(); err != nil {
				s.broken = true
				return nil
			}
		}
		frames, err := s.query(pc)
		if err == nil {
			return frames
		}
		// The subprocess died or wrote garbage. Tear it down and retry
		// once; after that the runtime backend takes over for good.
		_ = s.stop()
		s.restarts++
		if s.restarts > maxRestarts {
			s.broken = true
			return nil
		}
	}
}

func (s *Symbolizer) start() error {
	cmd := exec.Command(s.path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	s.cmd = cmd
	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	return nil
}

func (s *Symbolizer) stop() error {
	if s.cmd == nil {
		return nil
	}
	_ = s.stdin.Close()
	_ = s.cmd.Process.Kill()
	err := s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil
	return err
}

// query performs one round trip: the PC in hex on one line, then frame
// pairs (function line, "file:line[:col]" line) until the blank line that
// terminates the record.
func (s *Symbolizer) query(pc uintptr) ([]Frame, error) {
	if _, err := fmt.Fprintf(s.stdin, "0x%x\n", pc); err != nil {
		return nil, err
	}
	var frames []Frame
	for {
		fn, err := s.readLine()
		if err != nil {
			return nil, err
		}
		if fn == "" {
			// End of record. An empty record is a protocol violation.
			if len(frames) == 0 {
				return nil, fmt.Errorf("symbolize: empty response for 0x%x", pc)
			}
			return frames, nil
		}
		loc, err := s.readLine()
		if err != nil {
			return nil, err
		}
		file, line := parseLocation(loc)
		frames = append(frames, Frame{Function: fn, File: file, Line: line})
	}
}

func (s *Symbolizer) readLine() (string, error) {
	line, err := s.stdout.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parseLocation splits "file:line:col" or "file:line". File paths may
// themselves contain colons on some platforms, so the numbers are taken
// from the right.
func parseLocation(loc string) (file string, line int) {
	rest := loc
	// Drop the column if present.
	if i := strings.LastIndexByte(rest, ':'); i >= 0 {
		if _, err := strconv.Atoi(rest[i+1:]); err == nil {
			if j := strings.LastIndexByte(rest[:i], ':'); j >= 0 {
				if n, err := strconv.Atoi(rest[j+1 : i]); err == nil {
					return rest[:j], n
				}
			}
			n, _ := strconv.Atoi(rest[i+1:])
			return rest[:i], n
		}
	}
	return rest, 0
}
