// Package capture pulls still frames out of RTSP cameras, by running ffmpeg
// in the background and repeatedly reading the snapshot that it overwrites.
package capture

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/mlqueue/pkg/balancedq"
	"github.com/cyclopcam/mlqueue/pkg/frame"
	"golang.org/x/sys/unix"
)

var ErrRunning = errors.New("Camera is already running")

// Sink receives decoded frames. A *balancedq.Queue[*frame.Frame] is a Sink.
type Sink interface {
	Insert(frames ...*frame.Frame) balancedq.InsertResult
}

// Options that are shared by all cameras
type Options struct {
	FFmpeg       string        // Path to the ffmpeg binary
	SnapshotDir  string        // Directory where ffmpeg writes <name>.jpg. Ideally a ramdisk.
	Width        int           // Output resolution
	Height       int           // Output resolution
	FPS          int           // Output frame rate
	LogLevel     string        // ffmpeg -loglevel
	Format       string        // ffmpeg -f
	Quality      int           // ffmpeg -qscale:v (2 is best, 31 is worst)
	LoopDelay    time.Duration // Time that ffmpeg needs to produce its first snapshot
	RestartDelay time.Duration // Pause before relaunching ffmpeg after it exits
}

func DefaultOptions() Options {
	return Options{
		FFmpeg:       "ffmpeg",
		SnapshotDir:  "/ramdisk",
		Width:        1920,
		Height:       1080,
		FPS:          5,
		LogLevel:     "error",
		Format:       "image2",
		Quality:      2,
		LoopDelay:    3 * time.Second,
		RestartDelay: 5 * time.Second,
	}
}

// Stats are counters from the moment the camera was created
type Stats struct {
	Starts    int64 `json:"starts"`    // Number of times ffmpeg was launched
	Frames    int64 `json:"frames"`    // Frames sent to the sink
	Corrupted int64 `json:"corrupted"` // Snapshots that could not be decoded
	Rejected  int64 `json:"rejected"`  // Frames that the sink had no room for
}

// Camera feeds frames from a single RTSP stream into a Sink
type Camera struct {
	Name     string
	Address  string        // RTSP URL
	Interval time.Duration // Time between snapshot reads

	log  logs.Log
	opt  Options
	sink Sink

	lock    sync.Mutex
	stop    chan struct{} // nil when not running
	done    chan struct{}
	stats   Stats
	lastErr error
}

func NewCamera(log logs.Log, name, address string, interval time.Duration, opt Options, sink Sink) *Camera {
	return &Camera{
		Name:     name,
		Address:  address,
		Interval: interval,
		log:      log,
		opt:      opt,
		sink:     sink,
	}
}

// SnapshotPath is the file that ffmpeg overwrites with every new frame
func (c *Camera) SnapshotPath() string {
	return filepath.Join(c.opt.SnapshotDir, c.Name+".jpg")
}

// Args returns the ffmpeg command line (excluding the program name)
func (c *Camera) Args() []string {
	return []string{
		"-y",
		"-rtsp_transport", "tcp",
		"-i", c.Address,
		"-loglevel", c.opt.LogLevel,
		"-f", c.opt.Format,
		"-qscale:v", fmt.Sprintf("%v", c.opt.Quality),
		"-s", fmt.Sprintf("%vx%v", c.opt.Width, c.opt.Height),
		"-vf", fmt.Sprintf("fps=fps=%v", c.opt.FPS),
		"-threads", "1",
		"-update", "1",
		c.SnapshotPath(),
	}
}

func (c *Camera) IsRunning() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stop != nil
}

func (c *Camera) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.stats
}

// Start launches ffmpeg in the background. The camera keeps relaunching
// ffmpeg whenever it exits, until Stop is called.
func (c *Camera) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.stop != nil {
		return ErrRunning
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
	return nil
}

// Stop kills ffmpeg and waits for the camera's goroutine to exit
func (c *Camera) Stop() {
	c.lock.Lock()
	stop, done := c.stop, c.done
	c.stop = nil
	c.done = nil
	c.lock.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Camera) Restart() error {
	c.log.Infof("Camera %v is restarting", c.Name)
	c.Stop()
	return c.Start()
}

func (c *Camera) run(stop, done chan struct{}) {
	defer close(done)
	for {
		err := c.runOnce(stop)
		select {
		case <-stop:
			return
		default:
		}
		if err != nil {
			c.log.Warnf("Camera %v ffmpeg exited: %v", c.Name, err)
		} else {
			c.log.Warnf("Camera %v ffmpeg exited", c.Name)
		}
		select {
		case <-stop:
			return
		case <-time.After(c.opt.RestartDelay):
		}
	}
}

// runOnce runs ffmpeg until it exits, or until stop is closed
func (c *Camera) runOnce(stop chan struct{}) error {
	if err := os.MkdirAll(c.opt.SnapshotDir, 0755); err != nil {
		return err
	}
	cmd := exec.Command(c.opt.FFmpeg, c.Args()...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("Failed to start %v: %w", c.opt.FFmpeg, err)
	}
	c.lock.Lock()
	c.stats.Starts++
	c.lock.Unlock()

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	select {
	case <-stop:
		c.kill(cmd)
		<-exited
		return nil
	case err := <-exited:
		return err
	case <-time.After(c.opt.LoopDelay):
	}
	c.log.Infof("Camera %v started at %v fps", c.Name, c.opt.FPS)

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			c.kill(cmd)
			<-exited
			return nil
		case err := <-exited:
			return err
		case <-ticker.C:
			c.readSnapshot()
		}
	}
}

func (c *Camera) readSnapshot() {
	b, err := os.ReadFile(c.SnapshotPath())
	if err != nil {
		c.setLastErr(err)
		return
	}
	f := frame.Decode(b)
	if f.IsCorrupted() {
		// ffmpeg may be halfway through writing the file
		c.lock.Lock()
		c.stats.Corrupted++
		c.lock.Unlock()
		return
	}
	res := c.sink.Insert(f)
	c.lock.Lock()
	c.stats.Frames += int64(res.Accepted)
	c.stats.Rejected += int64(res.Dropped)
	c.lock.Unlock()
}

// Log a read error once, instead of on every tick
func (c *Camera) setLastErr(err error) {
	c.lock.Lock()
	same := c.lastErr != nil && c.lastErr.Error() == err.Error()
	c.lastErr = err
	c.lock.Unlock()
	if !same {
		c.log.Warnf("Camera %v failed to read snapshot: %v", c.Name, err)
	}
}

// Signal the whole process group, because ffmpeg can leave children behind
func (c *Camera) kill(cmd *exec.Cmd) {
	if err := unix.Kill(-cmd.Process.Pid, unix.SIGTERM); err != nil {
		c.log.Warnf("Camera %v failed to kill ffmpeg process group %v: %v", c.Name, cmd.Process.Pid, err)
		cmd.Process.Kill()
		return
	}
	c.log.Infof("Camera %v ffmpeg killed", c.Name)
}
