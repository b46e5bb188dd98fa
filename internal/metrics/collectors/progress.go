// Package collectors feeds encoder metrics from ffmpeg's -progress output.
package collectors

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/metrics"
)

// ProgressCollector listens on a Unix socket that ffmpeg writes its
// key=value progress blocks to (-progress unix://path).
type ProgressCollector struct {
	logger     logging.Logger
	socketPath string
	session    string
	listener   net.Listener
	wg         sync.WaitGroup
	stopOnce   sync.Once
	mu         sync.Mutex
	conns      map[net.Conn]struct{}
}

// NewProgressCollector creates a collector for one recording session.
func NewProgressCollector(socketPath, session string) *ProgressCollector {
	return &ProgressCollector{
		logger:     logging.GetLogger("ffmpeg").With("session", session),
		socketPath: socketPath,
		session:    session,
		conns:      make(map[net.Conn]struct{}),
	}
}

// URL is the value to pass to ffmpeg's -progress option.
func (c *ProgressCollector) URL() string {
	return "unix://" + c.socketPath
}

// Start binds the socket. It returns once ffmpeg can connect.
func (c *ProgressCollector) Start(ctx context.Context) error {
	if err := os.Remove(c.socketPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("Failed to clean up old socket file", "error", err)
	}

	listener, err := net.Listen("unix", c.socketPath)
	if err != nil {
		return err
	}
	c.listener = listener
	c.logger.Debug("Progress socket listening", "socket", c.socketPath)

	c.wg.Add(1)
	go c.accept()

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()
	return nil
}

// Stop closes the socket and open connections and removes the session's
// encoder series.
func (c *ProgressCollector) Stop() error {
	c.stopOnce.Do(func() {
		if c.listener != nil {
			c.listener.Close()
		}
		c.mu.Lock()
		for conn := range c.conns {
			conn.Close()
		}
		c.mu.Unlock()
		c.wg.Wait()
		os.Remove(c.socketPath)
		metrics.DeleteEncoderMetrics(c.session)
	})
	return nil
}

func (c *ProgressCollector) accept() {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("Error accepting progress connection", "error", err)
			}
			return
		}

		c.mu.Lock()
		c.conns[conn] = struct{}{}
		c.mu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() {
				c.mu.Lock()
				delete(c.conns, conn)
				c.mu.Unlock()
				conn.Close()
			}()
			c.consume(conn)
		}()
	}
}

// consume reads progress blocks until EOF. Each block ends with a
// progress=continue or progress=end line.
func (c *ProgressCollector) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	block := make(map[string]string)

	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		block[key] = strings.TrimSpace(value)

		if key == "progress" {
			c.apply(block)
			block = make(map[string]string)
		}
	}
}

func (c *ProgressCollector) apply(block map[string]string) {
	if fps, err := strconv.ParseFloat(block["fps"], 64); err == nil {
		metrics.SetEncoderFPS(c.session, fps)
	}
	if dropped, err := strconv.ParseFloat(block["drop_frames"], 64); err == nil {
		metrics.SetEncoderDroppedFrames(c.session, dropped)
	}
	if dup, err := strconv.ParseFloat(block["dup_frames"], 64); err == nil {
		metrics.SetEncoderDuplicateFrames(c.session, dup)
	}
	speed := strings.TrimSpace(strings.TrimSuffix(block["speed"], "x"))
	if v, err := strconv.ParseFloat(speed, 64); err == nil {
		metrics.SetEncoderSpeed(c.session, v)
	}
}
