package worker

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/puntaiq/aigate/internal/metrics"
)

// defaultSinkBuffer is the number of output records the file sink may lag
// behind the console mirror before records are dropped.
const defaultSinkBuffer = 1024

// LogRecord is one captured line of worker output tagged with its stream.
type LogRecord struct {
	Stream string    // "stdout" or "stderr"
	Time   time.Time
	Line   string
}

// outputPump captures the worker's stdout/stderr. Each line is mirrored to
// the console logger immediately and queued for the rotating file sink on a
// buffered channel; a full queue drops the record rather than stalling the
// pump, so slow disk writes never back-pressure the worker's pipes.
type outputPump struct {
	name    string
	log     *slog.Logger
	sinkOut io.WriteCloser // may be nil
	sinkErr io.WriteCloser // may be nil

	ch       chan LogRecord
	scanners sync.WaitGroup
	writerWG sync.WaitGroup
}

func newOutputPump(name string, sinkOut, sinkErr io.WriteCloser, log *slog.Logger) *outputPump {
	return &outputPump{
		name:    name,
		log:     log,
		sinkOut: sinkOut,
		sinkErr: sinkErr,
		ch:      make(chan LogRecord, defaultSinkBuffer),
	}
}

// attach starts the scanner goroutines for both pipes and the sink writer.
func (p *outputPump) attach(stdout, stderr io.Reader) {
	p.writerWG.Add(1)
	go p.writeSink()
	p.scanners.Add(2)
	go p.scan("stdout", stdout)
	go p.scan("stderr", stderr)
}

func (p *outputPump) scan(stream string, r io.Reader) {
	defer p.scanners.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		rec := LogRecord{Stream: stream, Time: time.Now(), Line: sc.Text()}
		p.log.Debug("worker output", "name", p.name, "stream", rec.Stream, "line", rec.Line)
		select {
		case p.ch <- rec:
		default:
			metrics.IncOutputDropped()
		}
	}
}

func (p *outputPump) writeSink() {
	defer p.writerWG.Done()
	for rec := range p.ch {
		sink := p.sinkOut
		if rec.Stream == "stderr" {
			sink = p.sinkErr
		}
		if sink == nil {
			continue
		}
		_, _ = fmt.Fprintf(sink, "%s [%s] %s\n", rec.Time.UTC().Format(time.RFC3339Nano), rec.Stream, rec.Line)
	}
}

// waitEOF blocks until both pipe scanners have read to EOF. The process must
// not be reaped before this returns: Wait closes the parent pipe ends, and
// output still buffered in them would be lost.
func (p *outputPump) waitEOF() { p.scanners.Wait() }

// close drains both pipes, flushes the queue, and closes the file sinks.
// Must be called after the process has exited so the pipe readers hit EOF.
func (p *outputPump) close() {
	p.scanners.Wait()
	close(p.ch)
	p.writerWG.Wait()
	if p.sinkOut != nil {
		_ = p.sinkOut.Close()
	}
	if p.sinkErr != nil {
		_ = p.sinkErr.Close()
	}
}
