// Package process runs helper subprocesses (ffmpeg) that the recorder
// feeds or reads from.
//
// A Process wraps os/exec and adds:
//   - Optional stdin and stdout pipes for streaming media in or out
//   - stderr streamed line by line to a logger through a LogParser
//   - Graceful shutdown: close stdin, then SIGINT, then SIGKILL, each
//     bounded by a timeout
//   - Exit code extraction
//
// Example feeding an encoder:
//
//	p := process.New(args, logger,
//	    process.WithStdin(),
//	    process.WithLogParser(ffmpegLogger, ffmpeg.ParseLogLevel),
//	)
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	_, err := p.Stdin().Write(frame)
//	...
//	code, err := p.CloseAndWait(10 * time.Second)
package process
